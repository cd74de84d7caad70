package enrichment

import (
	"sync/atomic"

	"travelog-backend/internal/shared/metrics"
)

// RunState is the batch run lifecycle.
type RunState int32

const (
	StateIdle RunState = iota
	StateRunning
	StateRunningRerunPending
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateRunningRerunPending:
		return "running_rerun_pending"
	default:
		return "unknown"
	}
}

// runState serializes batch runs. Transitions are lock-free CAS loops.
type runState struct {
	v atomic.Int32
}

func (r *runState) load() RunState {
	return RunState(r.v.Load())
}

// request records a trigger. It returns true when the caller owns a new run.
func (r *runState) request() bool {
	for {
		switch cur := r.load(); cur {
		case StateIdle:
			if r.v.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
				return true
			}
		case StateRunning:
			if r.v.CompareAndSwap(int32(StateRunning), int32(StateRunningRerunPending)) {
				metrics.IncRerunQueued()
				return false
			}
		default:
			return false
		}
	}
}

// finish ends the current run. It returns true when a rerun was pending; the
// caller then keeps ownership and must run again.
func (r *runState) finish() bool {
	for {
		switch cur := r.load(); cur {
		case StateRunningRerunPending:
			if r.v.CompareAndSwap(int32(StateRunningRerunPending), int32(StateRunning)) {
				return true
			}
		case StateRunning:
			if r.v.CompareAndSwap(int32(StateRunning), int32(StateIdle)) {
				return false
			}
		default:
			return false
		}
	}
}

// abandon drops ownership regardless of pending reruns.
func (r *runState) abandon() {
	r.v.Store(int32(StateIdle))
}
