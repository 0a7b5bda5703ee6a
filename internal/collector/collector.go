package collector

import (
	"errors"
	"io"
	"sync"

	"ParHist/internal/histogram"
	"ParHist/internal/logger"
	"ParHist/internal/pipeline"
	"ParHist/internal/store"
	"ParHist/internal/types"
)

// Collector turns worker terminations into retired results.
//
// Notification and collection are deliberately split: Notify only records
// the termination and pokes a coalescing wake channel, doing no
// allocation-heavy or formatted work on the terminating worker's
// goroutine. The collection loop runs on its own goroutine, where it is
// free to read channels, persist records and log.
//
// The wake channel has capacity one and is written with a non-blocking
// send, so any number of terminations between two drains collapse into a
// single wakeup. No completion is lost because each drain swaps out the
// entire pending list, not just one entry.
type Collector struct {
	log      *logger.Logger
	registry *pipeline.Registry
	store    store.Store

	mu      sync.Mutex
	cond    *sync.Cond
	pending []types.Termination
	records []*types.WorkerRecord
	retired int

	wake chan struct{}
	done chan struct{}
	exit chan struct{}
}

// New creates a collector draining terminations against the given
// registry and persisting results to the given store.
func New(log *logger.Logger, registry *pipeline.Registry, st store.Store) *Collector {
	c := &Collector{
		log:      log,
		registry: registry,
		store:    st,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		exit:     make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Start launches the collection loop.
func (c *Collector) Start() {
	go c.loop()
}

// Close stops the collection loop and waits for it to exit. Call only
// after Wait has returned.
func (c *Collector) Close() error {
	close(c.done)
	<-c.exit
	return nil
}

// Track registers a spawned worker's record. Called by the coordinator at
// spawn time; the record is mutated afterwards only by the collector.
func (c *Collector) Track(rec *types.WorkerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

// Notify implements worker.Notifier: append the termination, poke the
// wake channel, return. No reads, no persistence, no formatting here.
func (c *Collector) Notify(t types.Termination) {
	c.mu.Lock()
	c.pending = append(c.pending, t)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
		// A wakeup is already queued; this termination coalesces into it.
	}
}

// Retired returns how many workers have been retired so far.
func (c *Collector) Retired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retired
}

// Wait blocks until total workers have been retired. No polling: the
// collection loop broadcasts on every retirement.
func (c *Collector) Wait(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.retired < total {
		c.cond.Wait()
	}
}

// Records returns a snapshot of all tracked worker records.
func (c *Collector) Records() []types.WorkerRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.WorkerRecord, len(c.records))
	for i, rec := range c.records {
		out[i] = *rec
	}
	return out
}

func (c *Collector) loop() {
	defer close(c.exit)
	for {
		select {
		case <-c.wake:
			c.drain()
		case <-c.done:
			return
		}
	}
}

// drain reaps every currently-terminated worker. Loops until the pending
// list stays empty, so terminations arriving mid-drain are picked up
// without waiting for another wakeup.
func (c *Collector) drain() {
	for {
		c.mu.Lock()
		batch := c.pending
		c.pending = nil
		c.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, t := range batch {
			c.reap(t)
		}
	}
}

func (c *Collector) reap(t types.Termination) {
	c.log.Info("Caught termination from %s (unit=%d signaled=%v code=%d)",
		t.Identity, t.Unit.Index, t.Status.Signaled, t.Status.Code)

	state := types.WorkerExited
	if t.Status.Signaled {
		state = types.WorkerSignaled
		c.log.Info("Worker %s terminated abnormally, no result to read", t.Identity)
	} else {
		c.collect(t)
	}

	// The channel never outlives its worker's retirement, whatever the
	// outcome of the read.
	if err := c.registry.Release(t.Unit.Index); err != nil {
		c.log.Error("Failed to release channel for unit %d: %v", t.Unit.Index, err)
	}

	c.mu.Lock()
	for _, rec := range c.records {
		if rec.Identity == t.Identity {
			rec.State = state
			rec.Retired = true
			break
		}
	}
	c.retired++
	c.cond.Broadcast()
	c.mu.Unlock()
}

// collect reads the result block of a normally-exited worker and persists
// it. A worker that exited without writing (EOF) is a valid non-result,
// never retried.
func (c *Collector) collect(t types.Termination) {
	ch, err := c.registry.Resolve(t.Identity)
	if err != nil {
		// Should not happen under correct spawn sequencing.
		c.log.Error("Internal consistency error resolving %s: %v", t.Identity, err)
		return
	}

	counts, err := histogram.ReadBlock(ch.ReadEnd())
	switch {
	case err == nil:
		c.log.Info("Read histogram from %s (total=%d)", t.Identity, counts.Total())
		if err := c.store.Persist(t.Identity, counts); err != nil {
			c.log.Error("Failed to persist result for %s: %v", t.Identity, err)
		}
	case errors.Is(err, io.EOF):
		c.log.Info("Worker %s produced no result", t.Identity)
	case errors.Is(err, io.ErrUnexpectedEOF):
		c.log.Error("Protocol violation: partial result block from %s", t.Identity)
	default:
		c.log.Error("Failed to read result from %s: %v", t.Identity, err)
	}
}
