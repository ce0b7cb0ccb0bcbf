// Package probestate holds the liveness and readiness flags of the probes
// demo. Both flags start true and are owned by a single State built in main
// and handed to the HTTP layer.
//
// The two flags are deliberately asymmetric. Readiness is toggled and can be
// restored by toggling again. Liveness only ever goes from true to false:
// there is no revive operation, a crashed process is expected to be restarted
// by the orchestrator, which also resets both flags.
package probestate

import (
	"fmt"
	"sync/atomic"

	"github.com/keithlinneman/k8sdemo/internal/health"
)

const (
	msgAlive    = "I am alive!"
	msgCrashed  = "Crashed!"
	msgReady    = "Ready!"
	msgNotReady = "Not Ready!"
	msgCrash    = "Liveness set to false"
)

// Outcome is the result of an operation. OK=false on a read is the designed
// failure signal, not an error; mutations always report OK.
type Outcome struct {
	OK      bool
	Message string
}

// Flag names used in Change.
const (
	FlagLiveness  = "liveness"
	FlagReadiness = "readiness"
)

// Change is a single flag transition, exactly as the mutation made it.
type Change struct {
	Flag  string
	Value bool
}

// Observer is called once per flag transition. Calls from concurrent
// mutations may arrive in any order, but each one describes its own
// transition, so counting them is exact.
type Observer func(Change)

type Option func(*State)

// WithObserver registers fn to be called after each toggle and after the
// crash that clears liveness.
func WithObserver(fn Observer) Option {
	return func(s *State) {
		if fn != nil {
			s.observers = append(s.observers, fn)
		}
	}
}

// State is safe for concurrent use. Each flag is an independent atomic, no
// invariant spans both.
type State struct {
	alive atomic.Bool
	ready atomic.Bool

	observers []Observer
}

// New returns a State with both flags true.
func New(opts ...Option) *State {
	s := &State{}
	s.alive.Store(true)
	s.ready.Store(true)
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *State) Alive() bool { return s.alive.Load() }
func (s *State) Ready() bool { return s.ready.Load() }

// Liveness reports "I am alive!" or the "Crashed!" failure signal.
func (s *State) Liveness() Outcome {
	if s.Alive() {
		return Outcome{OK: true, Message: msgAlive}
	}
	return Outcome{OK: false, Message: msgCrashed}
}

// Readiness reports "Ready!" or the "Not Ready!" failure signal.
func (s *State) Readiness() Outcome {
	if s.Ready() {
		return Outcome{OK: true, Message: msgReady}
	}
	return Outcome{OK: false, Message: msgNotReady}
}

// ToggleReadiness inverts the readiness flag and reports the new value.
// Concurrent toggles never lose an inversion.
func (s *State) ToggleReadiness() Outcome {
	var next bool
	for {
		cur := s.ready.Load()
		next = !cur
		if s.ready.CompareAndSwap(cur, next) {
			break
		}
	}
	s.notify(Change{Flag: FlagReadiness, Value: next})
	return Outcome{OK: true, Message: fmt.Sprintf("Readiness set to %t", next)}
}

// Crash sets the liveness flag to false. It is unconditional and one-way:
// crashing an already crashed State reports the same confirmation.
func (s *State) Crash() Outcome {
	if s.alive.Swap(false) {
		s.notify(Change{Flag: FlagLiveness, Value: false})
	}
	return Outcome{OK: true, Message: msgCrash}
}

func (s *State) notify(c Change) {
	for _, fn := range s.observers {
		fn(c)
	}
}

// LivenessProbe fails while the liveness flag is false.
func (s *State) LivenessProbe() health.CheckFunc {
	return health.Flag(s.Alive, "liveness flag is false")
}

// ReadinessProbe fails while the readiness flag is false.
func (s *State) ReadinessProbe() health.CheckFunc {
	return health.Flag(s.Ready, "readiness flag is false")
}
