package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	// ErrUnknownWorker is returned by Resolve for an identity that was
	// never bound. Seeing it means spawn sequencing is broken.
	ErrUnknownWorker = errors.New("unknown worker identity")

	// ErrReleased is returned when a channel's read end is released twice.
	ErrReleased = errors.New("channel already released")
)

// Channel is the unidirectional byte stream between one worker and the
// collector, backed by an OS pipe. The worker owns the write end and
// closes it exactly once before raising its termination event; the
// collector owns the read end and closes it exactly once via
// Registry.Release. The kernel pipe buffer holds a full result block, so
// a worker's single write never blocks on the collector.
type Channel struct {
	r *os.File
	w *os.File
}

// WriteEnd returns the worker-owned end of the channel.
func (c *Channel) WriteEnd() io.WriteCloser { return c.w }

// ReadEnd returns the collector-owned end of the channel.
func (c *Channel) ReadEnd() io.Reader { return c.r }

type entry struct {
	open     bool
	released bool
	identity string
	ch       *Channel
}

// Registry owns one channel per worker, in a fixed-capacity table indexed
// by spawn order. Open must be called before the corresponding worker is
// spawned, so a worker can never write before its channel exists.
type Registry struct {
	mu      sync.Mutex
	entries []entry
}

// NewRegistry creates a registry with room for capacity workers.
func NewRegistry(capacity int) *Registry {
	return &Registry{entries: make([]entry, capacity)}
}

// Open creates the channel for the given work unit. Fails when the unit
// index falls outside the configured capacity or the unit already has a
// channel; both are spawn failures, fatal to the run.
func (r *Registry) Open(unit int) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if unit < 0 || unit >= len(r.entries) {
		return nil, fmt.Errorf("unit %d outside registry capacity %d", unit, len(r.entries))
	}
	if r.entries[unit].open {
		return nil, fmt.Errorf("unit %d already has a channel", unit)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe for unit %d: %w", unit, err)
	}

	ch := &Channel{r: pr, w: pw}
	r.entries[unit] = entry{open: true, ch: ch}
	return ch, nil
}

// Bind associates a worker identity with the unit's channel. Called at
// spawn time, after Open.
func (r *Registry) Bind(unit int, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if unit < 0 || unit >= len(r.entries) || !r.entries[unit].open {
		return fmt.Errorf("cannot bind identity %s: unit %d has no channel", identity, unit)
	}
	r.entries[unit].identity = identity
	return nil
}

// Resolve looks up a live worker identity back to its channel.
func (r *Registry) Resolve(identity string) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].open && r.entries[i].identity == identity {
			return r.entries[i].ch, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, identity)
}

// Release closes the read end of the unit's channel. Releasing twice is a
// caller bug and returns ErrReleased.
func (r *Registry) Release(unit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if unit < 0 || unit >= len(r.entries) || !r.entries[unit].open {
		return fmt.Errorf("cannot release unit %d: no channel", unit)
	}
	if r.entries[unit].released {
		return fmt.Errorf("%w: unit %d", ErrReleased, unit)
	}

	r.entries[unit].released = true
	if err := r.entries[unit].ch.r.Close(); err != nil {
		return fmt.Errorf("failed to close read end for unit %d: %w", unit, err)
	}
	return nil
}
