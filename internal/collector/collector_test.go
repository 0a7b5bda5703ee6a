package collector

import (
	"errors"
	"sync"
	"testing"
	"time"

	"ParHist/internal/histogram"
	"ParHist/internal/logger"
	"ParHist/internal/pipeline"
	"ParHist/internal/types"
)

// memStore records persists in memory; optionally fails every call.
type memStore struct {
	mu    sync.Mutex
	saved map[string]histogram.Counts
	fail  bool
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]histogram.Counts)}
}

func (s *memStore) Persist(identity string, counts histogram.Counts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("persist failed")
	}
	s.saved[identity] = counts
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) get(identity string) (histogram.Counts, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.saved[identity]
	return c, ok
}

func quietLogger() *logger.Logger {
	return logger.New("collector-test", "ERROR")
}

// finish plays a worker's last act: write the block (if any), close the
// write end, raise the termination.
func finish(t *testing.T, c *Collector, ch *pipeline.Channel, term types.Termination, counts *histogram.Counts) {
	t.Helper()
	if counts != nil {
		if _, err := ch.WriteEnd().Write(counts.AppendBinary(nil)); err != nil {
			t.Fatalf("Failed to write block: %v", err)
		}
	}
	if err := ch.WriteEnd().Close(); err != nil {
		t.Fatalf("Failed to close write end: %v", err)
	}
	c.Notify(term)
}

func track(t *testing.T, reg *pipeline.Registry, c *Collector, unit int, identity string) *pipeline.Channel {
	t.Helper()
	ch, err := reg.Open(unit)
	if err != nil {
		t.Fatalf("Failed to open channel: %v", err)
	}
	if err := reg.Bind(unit, identity); err != nil {
		t.Fatalf("Failed to bind: %v", err)
	}
	c.Track(&types.WorkerRecord{
		Unit:     types.WorkUnit{Index: unit, Spec: "input"},
		Identity: identity,
		State:    types.WorkerRunning,
	})
	return ch
}

func TestCollectorRetiresNormalExit(t *testing.T) {
	reg := pipeline.NewRegistry(4)
	st := newMemStore()
	c := New(quietLogger(), reg, st)
	c.Start()
	defer c.Close()

	ch := track(t, reg, c, 0, "worker-aaaa0000")
	counts := histogram.Compute([]byte("hello"))
	finish(t, c, ch, types.Termination{
		Identity: "worker-aaaa0000",
		Unit:     types.WorkUnit{Index: 0},
	}, &counts)

	c.Wait(1)

	saved, ok := st.get("worker-aaaa0000")
	if !ok {
		t.Fatalf("Result was not persisted")
	}
	if saved != counts {
		t.Fatalf("Persisted %v, want %v", saved, counts)
	}

	recs := c.Records()
	if len(recs) != 1 || !recs[0].Retired || recs[0].State != types.WorkerExited {
		t.Fatalf("Unexpected record state: %+v", recs)
	}

	t.Logf("✓ Normal exit read, persisted, retired")
}

func TestCoalescedTerminationsAllRetired(t *testing.T) {
	reg := pipeline.NewRegistry(4)
	st := newMemStore()
	c := New(quietLogger(), reg, st)

	chA := track(t, reg, c, 0, "worker-aaaa0000")
	chB := track(t, reg, c, 1, "worker-bbbb1111")

	countsA := histogram.Compute([]byte("aaa"))
	countsB := histogram.Compute([]byte("bbb"))

	// Both terminations land before the collection loop even starts, so
	// they must coalesce into (at most) one wakeup and still both retire.
	finish(t, c, chA, types.Termination{Identity: "worker-aaaa0000", Unit: types.WorkUnit{Index: 0}}, &countsA)
	finish(t, c, chB, types.Termination{Identity: "worker-bbbb1111", Unit: types.WorkUnit{Index: 1}}, &countsB)

	c.Start()
	defer c.Close()
	c.Wait(2)

	if _, ok := st.get("worker-aaaa0000"); !ok {
		t.Fatalf("First coalesced result lost")
	}
	if _, ok := st.get("worker-bbbb1111"); !ok {
		t.Fatalf("Second coalesced result lost")
	}

	t.Logf("✓ Coalesced terminations: both workers retired from one wakeup")
}

func TestSignaledWorkerRetiredWithoutRead(t *testing.T) {
	reg := pipeline.NewRegistry(4)
	st := newMemStore()
	c := New(quietLogger(), reg, st)
	c.Start()
	defer c.Close()

	ch := track(t, reg, c, 0, "worker-cccc2222")
	finish(t, c, ch, types.Termination{
		Identity: "worker-cccc2222",
		Unit:     types.WorkUnit{Index: 0},
		Status:   types.ExitStatus{Signaled: true},
	}, nil)

	c.Wait(1)

	if _, ok := st.get("worker-cccc2222"); ok {
		t.Fatalf("Signaled worker must not produce a persisted record")
	}
	recs := c.Records()
	if recs[0].State != types.WorkerSignaled || !recs[0].Retired {
		t.Fatalf("Unexpected record state: %+v", recs[0])
	}

	// The channel was released: a second release is the double-release bug.
	if err := reg.Release(0); !errors.Is(err, pipeline.ErrReleased) {
		t.Fatalf("Expected channel already released, got %v", err)
	}

	t.Logf("✓ Abnormal termination retired with no result, channel released")
}

func TestExitedWithoutResultIsNotFatal(t *testing.T) {
	reg := pipeline.NewRegistry(4)
	st := newMemStore()
	c := New(quietLogger(), reg, st)
	c.Start()
	defer c.Close()

	// Exit code 1, nothing written: a valid "no result" outcome.
	ch := track(t, reg, c, 0, "worker-dddd3333")
	finish(t, c, ch, types.Termination{
		Identity: "worker-dddd3333",
		Unit:     types.WorkUnit{Index: 0},
		Status:   types.ExitStatus{Code: 1},
	}, nil)

	c.Wait(1)

	if _, ok := st.get("worker-dddd3333"); ok {
		t.Fatalf("No block was written, nothing should be persisted")
	}
	if c.Retired() != 1 {
		t.Fatalf("Expected retired=1, got %d", c.Retired())
	}

	t.Logf("✓ Terminated-with-nothing-read handled as a distinct outcome")
}

func TestPersistFailureDoesNotBlockOthers(t *testing.T) {
	reg := pipeline.NewRegistry(4)
	st := newMemStore()
	st.fail = true
	c := New(quietLogger(), reg, st)
	c.Start()
	defer c.Close()

	counts := histogram.Compute([]byte("xy"))
	chA := track(t, reg, c, 0, "worker-eeee4444")
	chB := track(t, reg, c, 1, "worker-ffff5555")
	finish(t, c, chA, types.Termination{Identity: "worker-eeee4444", Unit: types.WorkUnit{Index: 0}}, &counts)
	finish(t, c, chB, types.Termination{Identity: "worker-ffff5555", Unit: types.WorkUnit{Index: 1}}, &counts)

	done := make(chan struct{})
	go func() {
		c.Wait(2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Persist failures stalled retirement")
	}

	t.Logf("✓ Persist failure reported, both workers still retired")
}

func TestUnknownIdentityStillRetires(t *testing.T) {
	reg := pipeline.NewRegistry(4)
	st := newMemStore()
	c := New(quietLogger(), reg, st)
	c.Start()
	defer c.Close()

	// Channel exists but the identity was never bound: an
	// internal-consistency bug, surfaced loudly but not fatal.
	if _, err := reg.Open(0); err != nil {
		t.Fatalf("Failed to open channel: %v", err)
	}
	c.Track(&types.WorkerRecord{
		Unit:     types.WorkUnit{Index: 0},
		Identity: "worker-ghost999",
		State:    types.WorkerRunning,
	})
	c.Notify(types.Termination{
		Identity: "worker-ghost999",
		Unit:     types.WorkUnit{Index: 0},
	})

	c.Wait(1)
	if c.Retired() != 1 {
		t.Fatalf("Expected retired=1, got %d", c.Retired())
	}

	t.Logf("✓ Unknown identity diagnosed without aborting the run")
}
