package coordinator

import (
	"errors"
	"fmt"
	"time"

	"ParHist/internal/collector"
	"ParHist/internal/logger"
	"ParHist/internal/pipeline"
	"ParHist/internal/store"
	"ParHist/internal/types"
	"ParHist/internal/worker"
)

var (
	// ErrNoWork is returned when the work list is empty.
	ErrNoWork = errors.New("no work specified")

	// ErrTooManyUnits is returned when the work list exceeds MaxWorkers.
	ErrTooManyUnits = errors.New("too many work units")
)

// Config for a run.
type Config struct {
	// Store persists retired results. Required.
	Store store.Store

	// Stagger is the per-unit artificial delay step: unit i sleeps
	// Stagger*i before exiting. Zero disables staggering.
	Stagger time.Duration

	// SentinelTimeout bounds the sentinel worker's wait.
	SentinelTimeout time.Duration

	// ReadFile acquires input bytes for workers. Defaults to os.ReadFile.
	ReadFile func(string) ([]byte, error)

	LogLevel string
}

// Coordinator spawns one worker plus channel per work unit and waits
// until the collector has retired every one of them. All shared state is
// owned here and handed to the collector; the coordinator itself only
// reads the retirement counters.
type Coordinator struct {
	cfg       Config
	log       *logger.Logger
	registry  *pipeline.Registry
	collector *collector.Collector
	spawned   int
}

// New creates a coordinator for one run.
func New(cfg Config) *Coordinator {
	lg := logger.New("parhist", cfg.LogLevel)
	registry := pipeline.NewRegistry(types.MaxWorkers)

	return &Coordinator{
		cfg:       cfg,
		log:       lg,
		registry:  registry,
		collector: collector.New(lg, registry, cfg.Store),
	}
}

// Run spawns one worker per spec, in order, then blocks until all of them
// have been retired. Spawn failures are fatal; per-worker input failures
// are not.
func (c *Coordinator) Run(specs []string) error {
	if len(specs) == 0 {
		return ErrNoWork
	}
	if len(specs) > types.MaxWorkers {
		return fmt.Errorf("%w: %d given, maximum is %d", ErrTooManyUnits, len(specs), types.MaxWorkers)
	}

	c.log.Info("Starting run: units=%d", len(specs))
	c.collector.Start()

	for i, spec := range specs {
		unit := types.WorkUnit{Index: i, Spec: spec}

		// Channel before worker: no race where a worker writes before
		// its channel exists.
		ch, err := c.registry.Open(i)
		if err != nil {
			return fmt.Errorf("spawn failure for unit %d: %w", i, err)
		}

		w := worker.New(worker.Config{
			Unit:            unit,
			Out:             ch.WriteEnd(),
			Notifier:        c.collector,
			ReadFile:        c.cfg.ReadFile,
			Delay:           c.cfg.Stagger * time.Duration(i),
			SentinelTimeout: c.cfg.SentinelTimeout,
			Log:             c.log,
		})
		if err := c.registry.Bind(i, w.Identity()); err != nil {
			return fmt.Errorf("spawn failure for unit %d: %w", i, err)
		}

		c.collector.Track(&types.WorkerRecord{
			Unit:     unit,
			Identity: w.Identity(),
			State:    types.WorkerRunning,
		})

		w.Start()
		c.spawned++
		c.log.Info("Spawned worker %s for unit %d (%s)", w.Identity(), i, spec)

		if unit.Sentinel() {
			c.log.Info("Sending interrupt to sentinel worker %s", w.Identity())
			w.Interrupt()
		}
	}

	c.log.Info("Waiting for %d workers to retire...", c.spawned)
	c.collector.Wait(c.spawned)
	c.log.Info("Run complete: spawned=%d retired=%d", c.spawned, c.collector.Retired())

	return c.collector.Close()
}

// Spawned returns how many workers this run created.
func (c *Coordinator) Spawned() int {
	return c.spawned
}

// Retired returns how many workers have been retired.
func (c *Coordinator) Retired() int {
	return c.collector.Retired()
}

// Records returns a snapshot of the per-worker records.
func (c *Coordinator) Records() []types.WorkerRecord {
	return c.collector.Records()
}
