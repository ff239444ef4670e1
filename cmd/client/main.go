// Command client learns which of its elements the server also holds.
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/oprf"
	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/psi"
	"github.com/SanthoshCheemala/PolyPSI/internal/dataset"
	"github.com/SanthoshCheemala/PolyPSI/internal/jobs"
	"github.com/SanthoshCheemala/PolyPSI/internal/storage"
	"github.com/SanthoshCheemala/PolyPSI/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.BindFlags(flag.CommandLine)
	params := config.BindParams(flag.CommandLine)

	setPath := flag.String("set", "client_set", "file of newline-separated elements")
	csvPath := flag.String("csv", "", "read records from this CSV file instead of -set")
	cols := flag.String("columns", "", "comma-separated CSV columns hashed into one element")
	keyPath := flag.String("key", "client.key", "OPRF key file, created if missing")
	load := flag.Bool("load", false, "load the blinded set checkpoint instead of blinding again")
	out := flag.String("out", "", "write the intersection to this file instead of stdout")
	local := flag.String("local", "", "run both parties in process against this server set file")
	flag.Parse()

	p, err := params.Params()
	if err != nil {
		log.Fatalf("Invalid parameters: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		set     []uint64
		records []dataset.Record
	)
	if !*load {
		set, records, err = readInput(*setPath, *csvPath, *cols)
		if err != nil {
			log.Fatalf("Failed to read client set: %v", err)
		}
	}

	opts := []psi.Option{psi.WithWorkers(cfg.Workers())}
	if *local != "" {
		serverSet, err := dataset.ReadSet(*local)
		if err != nil {
			log.Fatalf("Failed to read server set: %v", err)
		}
		res, err := psi.RunLocal(ctx, p, cfg.PSI.Scheme, serverSet, set, opts...)
		if err != nil {
			log.Fatalf("Local run failed: %v", err)
		}
		finish(res, records, *out)
		return
	}

	key, err := oprf.LoadOrCreateKey(*keyPath, rand.Reader)
	if err != nil {
		log.Fatalf("Failed to load key: %v", err)
	}
	if dsn := cfg.DatabaseDSN(); dsn != "" {
		store, err := storage.Open(ctx, cfg.Database.Driver, dsn)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer store.Close()
		opts = append(opts, psi.WithStore(store))
	}

	client, err := psi.NewClient(p, key, cfg.PSI.Scheme, opts...)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	run := jobs.NewRun(fmt.Sprintf("client_%d", time.Now().UnixNano()), jobs.RoleClient)
	if *load {
		if err := client.LoadBlinded(ctx); err != nil {
			log.Fatalf("Failed to load checkpoint: %v", err)
		}
		log.Println("Loaded blinded set from checkpoint")
	} else {
		start := time.Now()
		if err := client.Offline(ctx, set, run); err != nil {
			log.Fatalf("Offline phase failed: %v", err)
		}
		log.Printf("Offline phase finished in %s", time.Since(start))
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Network.DialTimeout)
	conn, err := transport.Dial(dialCtx, cfg.Network.Address, cfg.Network.IOTimeout)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	conn.MaxFrame = cfg.Network.MaxFrame

	res, err := client.Run(ctx, conn, run)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}
	finish(res, records, *out)
}

func readInput(setPath, csvPath, cols string) ([]uint64, []dataset.Record, error) {
	if csvPath == "" {
		set, err := dataset.ReadSet(setPath)
		return set, nil, err
	}
	if cols == "" {
		return nil, nil, fmt.Errorf("-csv needs -columns")
	}
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	records, err := dataset.ReadRecordsCSV(f, strings.Split(cols, ","))
	if err != nil {
		return nil, nil, err
	}
	set, _ := dataset.HashRecords(records)
	return set, records, nil
}

// finish prints the intersection, as record rows when the input was CSV,
// followed by the timing report.
func finish(res *psi.Result, records []dataset.Record, outPath string) {
	w := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", outPath, err)
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	if records != nil {
		_, index := dataset.HashRecords(records)
		for _, v := range res.Intersection {
			fmt.Fprintln(bw, records[index[v]])
		}
	} else {
		for _, v := range res.Intersection {
			fmt.Fprintln(bw, v)
		}
	}
	if err := bw.Flush(); err != nil {
		log.Fatalf("Failed to write intersection: %v", err)
	}

	fmt.Fprintf(os.Stderr, "Intersection size: %d\n", len(res.Intersection))
	if res.Report != nil {
		res.Report.Print(os.Stderr)
	}
}
