package worker

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"ParHist/internal/histogram"
	"ParHist/internal/logger"
	"ParHist/internal/types"
)

// DefaultSentinelTimeout bounds how long a sentinel worker waits for an
// interrupt before giving up and exiting normally.
const DefaultSentinelTimeout = 10 * time.Second

// Notifier receives the termination event a worker raises as its last
// act. Implementations must be safe to call from any goroutine and must
// not block for long: Notify runs on the worker's goroutine.
type Notifier interface {
	Notify(types.Termination)
}

// Config for a single worker.
type Config struct {
	Unit types.WorkUnit

	// Out is the write end of the worker's channel. The worker owns it
	// and closes it exactly once, before notifying termination.
	Out io.WriteCloser

	Notifier Notifier

	// ReadFile acquires the input bytes for a path. Defaults to
	// os.ReadFile.
	ReadFile func(string) ([]byte, error)

	// Delay is an artificial pause before exit, to model heterogeneous
	// completion ordering. Zero disables it.
	Delay time.Duration

	// SentinelTimeout bounds the sentinel wait.
	SentinelTimeout time.Duration

	Log *logger.Logger
}

// Worker computes one histogram over its assigned input and delivers the
// result block on its channel, then terminates. A sentinel worker skips
// the histogram work and waits for Interrupt instead.
type Worker struct {
	identity  string
	cfg       Config
	interrupt chan struct{}
	stopOnce  sync.Once
}

// New creates a worker with a freshly minted identity. The worker does
// not run until Start.
func New(cfg Config) *Worker {
	if cfg.ReadFile == nil {
		cfg.ReadFile = os.ReadFile
	}
	if cfg.SentinelTimeout <= 0 {
		cfg.SentinelTimeout = DefaultSentinelTimeout
	}

	return &Worker{
		identity:  "worker-" + uuid.New().String()[:8],
		cfg:       cfg,
		interrupt: make(chan struct{}),
	}
}

// Identity returns the worker's process identity.
func (w *Worker) Identity() string {
	return w.identity
}

// Interrupt terminates a sentinel worker abnormally. The interrupt is
// latched: sending it before the worker reaches its wait is safe, the
// worker observes it as soon as it gets there. Idempotent.
func (w *Worker) Interrupt() {
	w.stopOnce.Do(func() { close(w.interrupt) })
}

// Start runs the worker on its own goroutine.
func (w *Worker) Start() {
	go w.run()
}

func (w *Worker) run() {
	status := w.execute()

	// Close the write end before raising termination: the collector's
	// read of this channel must never block.
	if err := w.cfg.Out.Close(); err != nil {
		w.cfg.Log.Error("Worker %s failed to close channel: %v", w.identity, err)
	}

	w.cfg.Notifier.Notify(types.Termination{
		Identity: w.identity,
		Unit:     w.cfg.Unit,
		Status:   status,
	})
}

func (w *Worker) execute() types.ExitStatus {
	if w.cfg.Unit.Sentinel() {
		return w.waitForInterrupt()
	}

	data, err := w.cfg.ReadFile(w.cfg.Unit.Spec)
	if err != nil {
		w.cfg.Log.Error("Worker %s cannot read %s: %v", w.identity, w.cfg.Unit.Spec, err)
		return types.ExitStatus{Code: 1}
	}

	counts := histogram.Compute(data)
	w.cfg.Log.Debug("Worker %s computed histogram: spec=%s letters=%d", w.identity, w.cfg.Unit.Spec, counts.Total())

	if _, err := w.cfg.Out.Write(counts.AppendBinary(nil)); err != nil {
		w.cfg.Log.Error("Worker %s failed to write result: %v", w.identity, err)
		return types.ExitStatus{Code: 1}
	}

	if w.cfg.Delay > 0 {
		w.cfg.Log.Debug("Worker %s sleeping %v before exit", w.identity, w.cfg.Delay)
		time.Sleep(w.cfg.Delay)
	}

	return types.ExitStatus{Code: 0}
}

func (w *Worker) waitForInterrupt() types.ExitStatus {
	w.cfg.Log.Info("Worker %s waiting for interrupt", w.identity)

	select {
	case <-w.interrupt:
		w.cfg.Log.Info("Worker %s interrupted, terminating abnormally", w.identity)
		return types.ExitStatus{Signaled: true}
	case <-time.After(w.cfg.SentinelTimeout):
		w.cfg.Log.Warn("Worker %s sentinel wait timed out after %v", w.identity, w.cfg.SentinelTimeout)
		return types.ExitStatus{Code: 0}
	}
}
