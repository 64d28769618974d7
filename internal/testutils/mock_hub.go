package testutils

import (
	"sync"
	"time"

	"github.com/srg/myolink/internal/myo"
	"github.com/stretchr/testify/mock"
)

// MockHub is a testify mock of myo.Hub.
//
// Listener registration, locking policy and Close are pre-expected (Maybe) so
// tests only script Run. Events queued with Queue are delivered to the
// registered listeners during the next Run call, after its expectation fired.
//
//	hub := testutils.NewMockHub()
//	hub.OnRunSleeping()
//	hub.Queue(func(l myo.Listener) { l.OnConnect(dev, 1, myo.FirmwareVersion{}) })
type MockHub struct {
	mock.Mock

	mu        sync.Mutex
	listeners []myo.Listener
	pending   []func(myo.Listener)
	runs      int
}

// NewMockHub creates a MockHub with default expectations for everything but Run
func NewMockHub() *MockHub {
	h := &MockHub{}
	h.On("AddListener", mock.Anything).Return().Maybe()
	h.On("RemoveListener", mock.Anything).Return().Maybe()
	h.On("SetLockingPolicy", mock.Anything).Return().Maybe()
	h.On("Close").Return(nil).Maybe()
	return h
}

// OnRunSleeping makes every Run call succeed after sleeping for its slice
func (h *MockHub) OnRunSleeping() *mock.Call {
	return h.On("Run", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		time.Sleep(args.Get(0).(time.Duration))
	})
}

func (h *MockHub) Run(d time.Duration) error {
	args := h.Called(d)

	h.mu.Lock()
	h.runs++
	pending := h.pending
	h.pending = nil
	listeners := append([]myo.Listener(nil), h.listeners...)
	h.mu.Unlock()

	for _, ev := range pending {
		for _, l := range listeners {
			ev(l)
		}
	}
	return args.Error(0)
}

func (h *MockHub) AddListener(l myo.Listener) {
	h.Called(l)
	h.mu.Lock()
	h.listeners = append(h.listeners, l)
	h.mu.Unlock()
}

func (h *MockHub) RemoveListener(l myo.Listener) {
	h.Called(l)
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, registered := range h.listeners {
		if registered == l {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			return
		}
	}
}

func (h *MockHub) SetLockingPolicy(p myo.LockingPolicy) {
	h.Called(p)
}

func (h *MockHub) Close() error {
	return h.Called().Error(0)
}

// Queue schedules an event for delivery during the next Run
func (h *MockHub) Queue(ev func(l myo.Listener)) {
	h.mu.Lock()
	h.pending = append(h.pending, ev)
	h.mu.Unlock()
}

// Pending returns the number of queued events not yet delivered
func (h *MockHub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Runs returns how many times Run was called
func (h *MockHub) Runs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs
}

// Listeners returns the registered listeners
func (h *MockHub) Listeners() []myo.Listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]myo.Listener(nil), h.listeners...)
}
