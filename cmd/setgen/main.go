// Command setgen writes a server set, a client set and their planted
// intersection as newline-separated decimal files.
package main

import (
	"flag"
	"log"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/SanthoshCheemala/PolyPSI/internal/dataset"
)

func main() {
	serverSize := flag.Int("server-size", 1<<16, "number of server elements")
	clientSize := flag.Int("client-size", 5, "number of client elements")
	intersection := flag.Int("intersection", 2, "number of shared elements")
	dir := flag.String("dir", ".", "output directory")
	seed := flag.Uint64("seed", 0, "random seed (0 = time based)")
	flag.Parse()

	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(*seed, *seed>>32|1))

	sets, err := dataset.Generate(rng, *serverSize, *clientSize, *intersection)
	if err != nil {
		log.Fatalf("Failed to generate sets: %v", err)
	}
	files := []struct {
		name string
		set  []uint64
	}{
		{"server_set", sets.Server},
		{"client_set", sets.Client},
		{"intersection", sets.Intersection},
	}
	for _, f := range files {
		path := filepath.Join(*dir, f.name)
		if err := dataset.WriteSet(path, f.set); err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
		log.Printf("Wrote %d elements to %s", len(f.set), path)
	}
}
