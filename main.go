package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"ParHist/internal/coordinator"
	"ParHist/internal/store"
	"ParHist/internal/types"
	"ParHist/internal/worker"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitNoWork  = 2
	exitTooMany = 3
)

func main() {
	out := flag.String("out", ".", "Directory for .hist result files (fs store)")
	storeKind := flag.String("store", "fs", "Result store: 'fs' or 'bolt'")
	dbPath := flag.String("db", "results.db", "Path to the bbolt database (bolt store)")
	logLevel := flag.String("log-level", "INFO", "Log level: DEBUG, INFO, WARN, ERROR")
	stagger := flag.Duration("stagger", 0, "Per-unit delay step before a worker exits, to vary completion order")
	sentinelTimeout := flag.Duration("sentinel-timeout", worker.DefaultSentinelTimeout, "How long a SIG worker waits for its interrupt")
	flag.Usage = usage
	flag.Parse()

	specs := flag.Args()

	st, err := newStore(*storeKind, *out, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}
	defer st.Close()

	coord := coordinator.New(coordinator.Config{
		Store:           st,
		Stagger:         *stagger,
		SentinelTimeout: *sentinelTimeout,
		LogLevel:        *logLevel,
	})

	switch err := coord.Run(specs); {
	case errors.Is(err, coordinator.ErrNoWork):
		fmt.Fprintln(os.Stderr, "Error: no input files provided.")
		flag.Usage()
		os.Exit(exitNoWork)
	case errors.Is(err, coordinator.ErrTooManyUnits):
		fmt.Fprintf(os.Stderr, "Error: too many input files provided. Maximum allowed is %d.\n", types.MaxWorkers)
		os.Exit(exitTooMany)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}

	os.Exit(exitOK)
}

func newStore(kind, outDir, dbPath string) (store.Store, error) {
	switch kind {
	case "fs":
		return store.NewFSStore(outDir)
	case "bolt":
		return store.NewBoltStore(dbPath)
	default:
		return nil, fmt.Errorf("unknown store %q (want 'fs' or 'bolt')", kind)
	}
}

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "Usage: %s [flags] <file|%s>...\n\n", os.Args[0], types.SentinelSpec)
	fmt.Fprintf(w, "Computes a letter-frequency histogram for each input file in its own\n")
	fmt.Fprintf(w, "worker and persists one record per completed worker. The literal\n")
	fmt.Fprintf(w, "argument %q spawns a worker that waits for an interrupt instead of\n", types.SentinelSpec)
	fmt.Fprintf(w, "processing a file.\n\nFlags:\n")
	flag.PrintDefaults()
}
