// Command server holds the server set of a PSI deployment: it runs the
// offline phase (or loads its checkpoint) and answers clients over TCP.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/SanthoshCheemala/PolyPSI/internal/api"
	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/he"
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

	setPath := flag.String("set", "server_set", "file of newline-separated elements")
	table := flag.String("table", "", "read elements from this database table instead of -set")
	cols := flag.String("columns", "", "comma-separated columns of -table hashed into one element")
	limit := flag.Int("limit", 0, "rows read from -table (0 = all)")
	importCSV := flag.String("import", "", "load this CSV file into -table before reading it")
	keyPath := flag.String("key", "server.key", "OPRF key file, created if missing")
	load := flag.Bool("load", false, "load the polynomial table checkpoint instead of running the offline phase")
	allowClear := flag.Bool("allow-clear", false, "also answer clients using the insecure clear scheme")
	token := flag.String("token", "", "print an admin API token for this subject and exit")
	once := flag.Bool("once", false, "exit after serving one client")
	flag.Parse()

	if *token != "" {
		if cfg.Admin.JWTSecret == "" {
			log.Fatal("-token needs -jwt-secret")
		}
		auth := api.NewAuth(cfg.Admin.JWTSecret, cfg.Admin.JWTIssuer, cfg.Admin.TokenTTL)
		signed, err := auth.GenerateToken(*token, "admin")
		if err != nil {
			log.Fatalf("Failed to sign token: %v", err)
		}
		fmt.Println(signed)
		return
	}

	p, err := params.Params()
	if err != nil {
		log.Fatalf("Invalid parameters: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	key, err := oprf.LoadOrCreateKey(*keyPath, rand.Reader)
	if err != nil {
		log.Fatalf("Failed to load key: %v", err)
	}

	var store *storage.Store
	if dsn := cfg.DatabaseDSN(); dsn != "" {
		store, err = storage.Open(ctx, cfg.Database.Driver, dsn)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer store.Close()
	}

	schemes := []string{he.SchemeBFV}
	if *allowClear {
		log.Println("WARNING: answering clear-scheme clients reveals polynomial evaluations")
		schemes = append(schemes, he.SchemeClear)
	}
	opts := []psi.Option{
		psi.WithWorkers(cfg.Workers()),
		psi.WithSecurityBits(cfg.PSI.SecurityBits),
		psi.WithSchemes(schemes...),
	}
	if store != nil {
		opts = append(opts, psi.WithStore(store))
	}

	server, err := psi.NewServer(p, key, opts...)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	log.Printf("Parameters: %s", p)

	runs := jobs.NewManager(0)
	if *load {
		if store == nil {
			log.Fatal("-load needs a checkpoint database (-db)")
		}
		if err := server.LoadTable(ctx); err != nil {
			log.Fatalf("Failed to load checkpoint: %v", err)
		}
		log.Println("Loaded polynomial table from checkpoint")
	} else {
		if *importCSV != "" {
			if err := importTable(ctx, store, *importCSV, *table); err != nil {
				log.Fatalf("Failed to import %s: %v", *importCSV, err)
			}
		}
		set, err := readSet(ctx, store, *setPath, *table, *cols, *limit)
		if err != nil {
			log.Fatalf("Failed to read server set: %v", err)
		}
		start := time.Now()
		if err := server.Offline(ctx, set, runs.Create(jobs.RoleServer)); err != nil {
			log.Fatalf("Offline phase failed: %v", err)
		}
		log.Printf("Offline phase finished in %s", time.Since(start))
	}

	if cfg.Admin.Address != "" {
		var auth *api.Auth
		if cfg.Admin.JWTSecret != "" {
			auth = api.NewAuth(cfg.Admin.JWTSecret, cfg.Admin.JWTIssuer, cfg.Admin.TokenTTL)
		}
		handler := api.NewHandler(runs, api.Info{Params: p, Scheme: strings.Join(schemes, ","), Address: cfg.Network.Address})
		srv := &http.Server{
			Addr:         cfg.Admin.Address,
			Handler:      api.NewRouter(handler, auth),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0, // event streams stay open
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Printf("Admin API listening on %s", cfg.Admin.Address)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Admin API failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	l, err := transport.Listen(cfg.Network.Address, cfg.Network.IOTimeout)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	defer l.Close()
	log.Printf("Serving PSI on %s", l.Addr())

	var wg sync.WaitGroup
	for {
		conn, err := l.AcceptRetry(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("Listener stopped: %v", err)
			}
			break
		}
		conn.MaxFrame = cfg.Network.MaxFrame
		run := runs.Create(jobs.RoleServer)
		log.Printf("Run %s: client connected", run.ID)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			start := time.Now()
			if err := server.Serve(ctx, conn, run); err != nil {
				log.Printf("Run %s failed: %v", run.ID, err)
				return
			}
			sent, recvd := conn.Stats.Sent.Load(), conn.Stats.Recvd.Load()
			log.Printf("Run %s done in %s (sent %d bytes, received %d bytes)", run.ID, time.Since(start), sent, recvd)
		}()
		if *once {
			break
		}
	}
	wg.Wait()
	log.Println("Server stopped")
}

// readSet loads the server elements from a set file or, with table set,
// from hashed database records.
func readSet(ctx context.Context, store *storage.Store, path, table, cols string, limit int) ([]uint64, error) {
	if table == "" {
		return dataset.ReadSet(path)
	}
	if store == nil {
		return nil, errors.New("-table needs a database (-db)")
	}
	if cols == "" {
		return nil, errors.New("-table needs -columns")
	}
	rows, err := store.Records(ctx, table, strings.Split(cols, ","), limit)
	if err != nil {
		return nil, err
	}
	records := make([]dataset.Record, len(rows))
	for i, r := range rows {
		records[i] = dataset.Record(r)
	}
	set, _ := dataset.HashRecords(records)
	log.Printf("Hashed %d records of %s into %d elements", len(records), table, len(set))
	return set, nil
}

// importTable copies a CSV file into a database table, every column as
// text.
func importTable(ctx context.Context, store *storage.Store, path, table string) error {
	if store == nil || table == "" {
		return errors.New("-import needs -db and -table")
	}
	if storage.SanitizeName(table, "tbl_") != table {
		return fmt.Errorf("table name %q is not a plain identifier", table)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	records, err := dataset.ReadRecordsCSV(f, nil)
	if err != nil {
		return err
	}
	rows := make([]storage.Record, len(records))
	for i, r := range records {
		rows[i] = storage.Record(r)
	}
	n, err := store.ImportRecords(ctx, table, rows, storage.DefaultImportBatch)
	if err != nil {
		return err
	}
	log.Printf("Imported %d rows from %s into %s", n, path, table)
	return nil
}
