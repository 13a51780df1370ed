// Package autoplay drives unattended arbitration: one round after
// another with a fixed inter-round delay, an optional round budget, and
// immediate-stop cancellation.
package autoplay

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// DefaultDelay is the inter-round delay.
const DefaultDelay = time.Second

// ErrAlreadyRunning is returned by Start while a loop is active.
var ErrAlreadyRunning = errors.New("autoplay already running")

// Unbounded runs rounds until stopped.
const Unbounded = 0

// State is the scheduler's lifecycle state.
type State int

const (
	// StateIdle: no loop is running.
	StateIdle State = iota
	// StateWaiting: the inter-round delay is elapsing.
	StateWaiting
	// StateRoundInFlight: a round is executing.
	StateRoundInFlight
	// StateStopped: stop requested, loop winding down. Transient; the
	// scheduler returns to StateIdle once the loop exits.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateRoundInFlight:
		return "round_in_flight"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Runner executes one full arbitration round.
type Runner interface {
	// RunRound runs Collector → Arbiter → Memory Writer → Ledger once.
	// An error halts autoplay; per-agent failures and empty rounds are
	// not errors.
	RunRound(ctx context.Context) error

	// Busy reports whether a round is currently in flight. The
	// scheduler never starts a round while Busy is true.
	Busy() bool
}

// Scheduler repeats rounds cooperatively: at most one round in flight,
// strictly sequential, stop wins immediately over any pending delay.
type Scheduler struct {
	runner Runner
	delay  time.Duration

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	budget   int
	executed int
	done     chan struct{}
}

// New creates an idle scheduler. A non-positive delay means
// DefaultDelay.
func New(runner Runner, delay time.Duration) *Scheduler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Scheduler{runner: runner, delay: delay}
}

// Start launches the loop. budget is the number of rounds to run before
// self-stopping, or Unbounded. The first round triggers immediately
// rather than after a delay. ctx bounds the rounds themselves; Stop
// cancels only the scheduling, letting an in-flight round finish.
func (s *Scheduler) Start(ctx context.Context, budget int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrAlreadyRunning
	}
	if budget < 0 {
		budget = Unbounded
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.budget = budget
	s.executed = 0
	s.state = StateWaiting
	s.done = make(chan struct{})

	go s.loop(ctx, loopCtx)
	log.Printf("[AUTOPLAY] Started (budget=%d)", budget)
	return nil
}

// Stop forces the scheduler down from any state. Any pending delay is
// canceled immediately; a round already in flight finishes, but no
// further round is scheduled. Stopping an idle scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.cancel()
	s.mu.Unlock()
	log.Printf("[AUTOPLAY] Stop requested")
}

// Wait blocks until the current loop exits. Returns immediately when
// the scheduler was never started.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Executed returns the number of rounds run in the current loop. It
// resets to zero when the loop stops, including budget self-stop.
func (s *Scheduler) Executed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executed
}

// loop runs rounds until cancellation, budget exhaustion, or a round
// error. roundCtx bounds round execution; loopCtx only the scheduling,
// so Stop never cancels an in-flight round.
func (s *Scheduler) loop(roundCtx, loopCtx context.Context) {
	defer func() {
		s.mu.Lock()
		s.state = StateIdle
		s.executed = 0
		s.cancel = nil
		close(s.done)
		s.mu.Unlock()
	}()

	for {
		if loopCtx.Err() != nil || roundCtx.Err() != nil {
			return
		}

		// A round triggered outside the scheduler may still be in
		// flight; never overlap it.
		if s.runner.Busy() {
			if !s.sleep(loopCtx) {
				return
			}
			continue
		}

		s.setState(StateRoundInFlight)
		if err := s.runner.RunRound(roundCtx); err != nil {
			log.Printf("[AUTOPLAY] Round failed, stopping: %v", err)
			return
		}

		s.mu.Lock()
		s.executed++
		exhausted := s.budget != Unbounded && s.executed >= s.budget
		s.mu.Unlock()
		if exhausted {
			log.Printf("[AUTOPLAY] Budget exhausted, stopping")
			return
		}

		s.setState(StateWaiting)
		if !s.sleep(loopCtx) {
			return
		}
	}
}

// sleep waits one inter-round delay. Returns false when the loop was
// canceled before the delay elapsed.
func (s *Scheduler) sleep(ctx context.Context) bool {
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	// Stop already won; don't mask it.
	if s.state != StateStopped {
		s.state = st
	}
	s.mu.Unlock()
}
