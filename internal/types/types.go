package types

// MaxWorkers bounds how many work units a single run may spawn.
const MaxWorkers = 100

// SentinelSpec is the work spec token for a worker that performs no
// histogram work and waits for an external interrupt instead.
const SentinelSpec = "SIG"

// WorkUnit is a single unit of work: one input file, or the sentinel
// wait-for-interrupt mode. Immutable after creation, consumed by exactly
// one worker.
type WorkUnit struct {
	Index int
	Spec  string
}

// Sentinel reports whether this unit requests wait-for-interrupt mode.
func (u WorkUnit) Sentinel() bool {
	return u.Spec == SentinelSpec
}

// WorkerState represents where a worker is in its lifecycle
type WorkerState string

const (
	WorkerRunning  WorkerState = "running"
	WorkerExited   WorkerState = "exited"
	WorkerSignaled WorkerState = "signaled"
)

// ExitStatus describes how a worker terminated.
type ExitStatus struct {
	Code     int
	Signaled bool
}

// Normal reports a clean exit: not interrupted, zero code.
func (s ExitStatus) Normal() bool {
	return !s.Signaled && s.Code == 0
}

// WorkerRecord tracks one spawned worker from spawn to retirement.
// Created by the coordinator at spawn time; mutated only by the collector,
// exactly once, when the worker is retired.
type WorkerRecord struct {
	Unit     WorkUnit
	Identity string
	State    WorkerState
	Retired  bool
}

// Termination is the completion event a worker raises when it terminates.
type Termination struct {
	Identity string
	Unit     WorkUnit
	Status   ExitStatus
}
