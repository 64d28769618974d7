// Package session runs the hub event pump on a background goroutine.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/myolink/internal/groutine"
	"github.com/srg/myolink/internal/myo"
)

// DefaultSlice is the time budget of one pump iteration (50 Hz updates)
const DefaultSlice = 20 * time.Millisecond

// State is the lifecycle state of a Session
type State int32

const (
	Idle State = iota
	Starting
	Running
	StopRequested
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case StopRequested:
		return "stop_requested"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Pump is the part of myo.Hub the session drives
type Pump interface {
	Run(d time.Duration) error
}

// Options configures a Session. Zero values use defaults.
type Options struct {
	Slice   time.Duration  // pump time budget per iteration (0 = DefaultSlice)
	OnError func(error)    // called on the worker goroutine when the pump fails
	Logger  *logrus.Logger // optional
}

// Session owns the pump worker goroutine.
//
// The worker holds the session lock only while the pump runs. Listener
// callbacks fire inside the pump, so they run with the lock held; any other
// goroutine touching state shared with listeners must take Lock first.
// The lock is reentrant for the goroutine holding it, so a listener may call
// back into code that takes Lock.
//
// Start and Stop are idempotent. Stop blocks until the worker has exited,
// except when called from the worker itself, where it only requests the stop.
// A pump failure ends the session without retry; a later Start begins a new one.
type Session struct {
	pump    Pump
	slice   time.Duration
	onError func(error)
	logger  *logrus.Logger

	pumpMu sync.Mutex    // shared with listener state
	owner  atomic.Uint64 // goroutine holding pumpMu, 0 when free
	depth  int           // nested Lock calls of the owner
	worker atomic.Uint64 // goroutine running the pump

	mu     sync.Mutex // guards state, task, gen
	state  State
	task   *groutine.Task
	gen    uint64
	cancel atomic.Bool
}

// New creates an idle session around pump
func New(pump Pump, opts *Options) *Session {
	if opts == nil {
		opts = &Options{}
	}
	slice := opts.Slice
	if slice <= 0 {
		slice = DefaultSlice
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	onError := opts.OnError
	if onError == nil {
		onError = func(error) {}
	}

	return &Session{
		pump:    pump,
		slice:   slice,
		onError: onError,
		logger:  logger,
	}
}

// Lock acquires the pump lock. It waits for the current pump slice to end,
// unless the caller already holds the lock.
func (s *Session) Lock() {
	gid := groutine.GetGID()
	if gid != 0 && s.owner.Load() == gid {
		s.depth++
		return
	}
	s.pumpMu.Lock()
	s.owner.Store(gid)
}

// Unlock releases one Lock call
func (s *Session) Unlock() {
	if s.depth > 0 {
		s.depth--
		return
	}
	s.owner.Store(0)
	s.pumpMu.Unlock()
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether a worker is starting or pumping
func (s *Session) Running() bool {
	st := s.State()
	return st == Starting || st == Running
}

// Slice returns the pump time budget per iteration
func (s *Session) Slice() time.Duration {
	return s.slice
}

// Start spawns the pump worker if the session is idle.
// It reports whether a new worker was started.
func (s *Session) Start(ctx context.Context) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		s.logger.WithField("state", s.state).Debug("Session already active, ignoring start")
		return false
	}

	// A worker that ended on its own (pump failure) left its handle behind
	if s.task != nil {
		s.task.Wait()
		s.task = nil
	}

	s.gen++
	gen := s.gen
	s.state = Starting
	s.cancel.Store(false)
	s.task = groutine.Go(ctx, fmt.Sprintf("hub-pump-%d", gen), func(ctx context.Context) {
		s.run(ctx, gen)
	})

	s.logger.WithField("slice", s.slice).Debug("Session started")
	return true
}

// Stop requests cancellation and waits for the worker to exit.
// It is a no-op when no worker exists.
func (s *Session) Stop() {
	s.mu.Lock()
	task := s.task
	if task == nil {
		s.mu.Unlock()
		return
	}
	if s.state == Starting || s.state == Running {
		s.state = StopRequested
	}
	s.cancel.Store(true)
	s.mu.Unlock()

	// A listener stopping its own session: the worker exits after this slice
	if gid := groutine.GetGID(); gid != 0 && s.worker.Load() == gid {
		s.logger.Debug("Session stop requested from the pump worker")
		return
	}

	task.Wait()

	s.mu.Lock()
	if s.task == task {
		s.task = nil
		s.state = Idle
		s.cancel.Store(false)
	}
	s.mu.Unlock()

	s.logger.Debug("Session stopped")
}

func (s *Session) run(ctx context.Context, gen uint64) {
	gid := groutine.GetGID()
	s.worker.Store(gid)
	defer s.exit(gen)
	defer s.worker.CompareAndSwap(gid, 0)

	s.mu.Lock()
	if s.state == Starting {
		s.state = Running
	}
	s.mu.Unlock()

	s.logger.WithField("goroutine", groutine.GetName(ctx)).Debug("Pump worker running")

	for {
		if s.cancel.Load() {
			return
		}
		if err := ctx.Err(); err != nil {
			s.logger.WithError(err).Debug("Pump worker context done")
			return
		}

		if err := s.pumpOnce(); err != nil {
			s.logger.WithError(err).Error("Hub pump failed, ending session")
			s.onError(err)
			return
		}
	}
}

// pumpOnce runs one slice under the pump lock, converting panics into errors
func (s *Session) pumpOnce() (err error) {
	s.Lock()
	defer s.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = &myo.HubError{Op: "run", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := s.pump.Run(s.slice); err != nil {
		return &myo.HubError{Op: "run", Err: err}
	}
	return nil
}

// exit resets the session so a later Start works, unless a newer worker
// already replaced this one.
func (s *Session) exit(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.state = Idle
	s.cancel.Store(false)
}
