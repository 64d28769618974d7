// Package sim provides an in-process armband hub.
//
// The hub keeps a table of simulated devices, queues scripted events and, while
// Run is pumping, synthesizes IMU samples at 50 Hz and EMG samples at 200 Hz for
// connected devices. It stands in for the vendor SDK in the CLI and in tests.
package sim

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/myolink/internal/myo"
	"github.com/srg/myolink/internal/ringchan"
)

const (
	// IMUPeriod is the orientation/accelerometer/gyroscope sample period (50 Hz)
	IMUPeriod = 20 * time.Millisecond
	// EMGPacketPeriod is the EMG packet period; each packet carries two
	// frames sharing one timestamp (200 Hz)
	EMGPacketPeriod = 10 * time.Millisecond

	DefaultQueueSize = 256

	// samples further behind than this are skipped instead of replayed
	maxCatchUp = time.Second
)

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrNotPaired     = errors.New("device not paired")
)

// DefaultFirmware is reported on pair and connect
var DefaultFirmware = myo.FirmwareVersion{Major: 1, Minor: 5, Patch: 1970, HardwareRev: 2}

// Options configures a Hub. Zero values use defaults.
type Options struct {
	Synthesize bool           // generate sensor samples for connected devices
	QueueSize  int            // pending event capacity (0 = DefaultQueueSize)
	Logger     *logrus.Logger // optional
}

type event struct {
	apply func(ts uint64)
	fire  func(l myo.Listener, ts uint64)
}

// Hub is a simulated myo.Hub
type Hub struct {
	logger     *logrus.Logger
	synthesize bool
	start      time.Time

	devices *hashmap.Map[DeviceID, *Device]
	nextID  atomic.Uint32
	events  *ringchan.RingChannel[event]
	closed  atomic.Bool

	mu        sync.Mutex // guards listeners, policy, failNext
	listeners []myo.Listener
	policy    myo.LockingPolicy
	failNext  error
}

// NewHub creates an empty simulated hub
func NewHub(opts *Options) *Hub {
	if opts == nil {
		opts = &Options{}
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &Hub{
		logger:     logger,
		synthesize: opts.Synthesize,
		start:      time.Now(),
		devices:    hashmap.New[DeviceID, *Device](),
		events:     ringchan.New[event](size),
		policy:     myo.LockingPolicyStandard,
	}
}

func (h *Hub) AddListener(l myo.Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, registered := range h.listeners {
		if registered == l {
			return
		}
	}
	h.listeners = append(h.listeners, l)
}

func (h *Hub) RemoveListener(l myo.Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, registered := range h.listeners {
		if registered == l {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			return
		}
	}
}

func (h *Hub) SetLockingPolicy(p myo.LockingPolicy) {
	h.mu.Lock()
	h.policy = p
	h.mu.Unlock()
	h.logger.WithField("policy", p).Debug("Locking policy set")
}

// LockingPolicy returns the hub-wide locking policy
func (h *Hub) LockingPolicy() myo.LockingPolicy {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.policy
}

// FailNextRun makes the next Run return err without dispatching anything
func (h *Hub) FailNextRun(err error) {
	h.mu.Lock()
	h.failNext = err
	h.mu.Unlock()
}

// Close marks the hub closed. Later Run calls return myo.ErrHubClosed.
func (h *Hub) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		m := h.events.Metrics()
		h.logger.WithFields(logrus.Fields{
			"queue_size":  h.events.Cap(),
			"events_sent": m.Sent,
			"dropped":     m.Dropped,
		}).Debug("Simulated hub closed")
	}
	return nil
}

// Run dispatches queued events and synthesized samples to the listeners on
// the calling goroutine until d elapses.
func (h *Hub) Run(d time.Duration) error {
	if h.closed.Load() {
		return myo.ErrHubClosed
	}

	h.mu.Lock()
	fail := h.failNext
	h.failNext = nil
	h.mu.Unlock()
	if fail != nil {
		return fail
	}

	deadline := time.Now().Add(d)
	for {
		h.dispatchQueued()
		if h.synthesize {
			h.synthesizeSamples()
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if remaining > time.Millisecond {
			remaining = time.Millisecond
		}
		time.Sleep(remaining)
	}
}

// Pair adds a new paired device and queues its pair event
func (h *Hub) Pair(name string) *Device {
	dev := &Device{
		id:      DeviceID(h.nextID.Add(1)),
		name:    name,
		hub:     h,
		paired:  true,
		locked:  true,
		rssi:    -50,
		battery: 100,
	}
	h.devices.Set(dev.id, dev)
	h.enqueue(nil, func(l myo.Listener, ts uint64) { l.OnPair(dev, ts, DefaultFirmware) })
	h.logger.WithFields(logrus.Fields{"device": name, "id": dev.id}).Debug("Simulated device paired")
	return dev
}

// Unpair forgets a device and queues its unpair event
func (h *Hub) Unpair(id DeviceID) error {
	dev, err := h.lookup(id)
	if err != nil {
		return err
	}
	h.devices.Del(id)
	h.enqueue(func(uint64) {
		dev.mu.Lock()
		dev.paired = false
		dev.connected = false
		dev.mu.Unlock()
	}, func(l myo.Listener, ts uint64) { l.OnUnpair(dev, ts) })
	return nil
}

// Connect queues a connect event for a paired device
func (h *Hub) Connect(id DeviceID) error {
	dev, err := h.lookup(id)
	if err != nil {
		return err
	}
	if !dev.Paired() {
		return fmt.Errorf("connect %s: %w", dev.name, ErrNotPaired)
	}
	h.enqueue(func(ts uint64) {
		dev.mu.Lock()
		dev.connected = true
		dev.locked = true
		dev.nextIMU = ts
		dev.nextEMG = ts
		dev.mu.Unlock()
	}, func(l myo.Listener, ts uint64) { l.OnConnect(dev, ts, DefaultFirmware) })
	return nil
}

// Disconnect queues a disconnect event
func (h *Hub) Disconnect(id DeviceID) error {
	dev, err := h.lookup(id)
	if err != nil {
		return err
	}
	h.enqueue(func(uint64) {
		dev.mu.Lock()
		dev.connected = false
		dev.streamEmg = myo.StreamEmgDisabled
		dev.mu.Unlock()
	}, func(l myo.Listener, ts uint64) { l.OnDisconnect(dev, ts) })
	return nil
}

// Sync queues an arm sync event for a warm device
func (h *Hub) Sync(id DeviceID, arm myo.Arm, dir myo.XDirection) error {
	dev, err := h.lookup(id)
	if err != nil {
		return err
	}
	h.enqueue(nil, func(l myo.Listener, ts uint64) {
		l.OnArmSync(dev, ts, arm, dir, 0, myo.WarmupWarm)
	})
	return nil
}

// Unsync queues an arm unsync event
func (h *Hub) Unsync(id DeviceID) error {
	dev, err := h.lookup(id)
	if err != nil {
		return err
	}
	h.enqueue(nil, func(l myo.Listener, ts uint64) { l.OnArmUnsync(dev, ts) })
	return nil
}

// EmitPose queues a recognized pose.
//
// Under the standard locking policy a device starts locked: only doubleTap is
// delivered and it unlocks the device.
func (h *Hub) EmitPose(id DeviceID, pose myo.Pose) error {
	dev, err := h.lookup(id)
	if err != nil {
		return err
	}
	h.enqueue(nil, func(l myo.Listener, ts uint64) {
		if !h.poseAllowed(dev, pose) {
			return
		}
		l.OnPose(dev, ts, pose)
	})
	return nil
}

// Inject queues an arbitrary event, delivered to every listener
func (h *Hub) Inject(fire func(l myo.Listener, ts uint64)) {
	h.enqueue(nil, fire)
}

// Device returns a device by id
func (h *Hub) Device(id DeviceID) (*Device, bool) {
	return h.devices.Get(id)
}

// Devices returns the paired devices ordered by id
func (h *Hub) Devices() []*Device {
	devs := make([]*Device, 0, h.devices.Len())
	h.devices.Range(func(_ DeviceID, dev *Device) bool {
		devs = append(devs, dev)
		return true
	})
	sort.Slice(devs, func(i, j int) bool { return devs[i].id < devs[j].id })
	return devs
}

// Pending returns the number of queued events
func (h *Hub) Pending() int {
	return h.events.Len()
}

func (h *Hub) lookup(id DeviceID) (*Device, error) {
	dev, ok := h.devices.Get(id)
	if !ok {
		return nil, fmt.Errorf("device %d: %w", id, ErrUnknownDevice)
	}
	return dev, nil
}

func (h *Hub) enqueue(apply func(ts uint64), fire func(l myo.Listener, ts uint64)) {
	if h.events.Send(event{apply: apply, fire: fire}) {
		h.logger.Warn("Simulated hub event queue full, dropped oldest event")
	}
}

func (h *Hub) now() uint64 {
	return uint64(time.Since(h.start).Microseconds())
}

func (h *Hub) snapshotListeners() []myo.Listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]myo.Listener(nil), h.listeners...)
}

func (h *Hub) dispatchQueued() {
	for {
		ev, ok := h.events.TryReceive()
		if !ok {
			return
		}
		ts := h.now()
		if ev.apply != nil {
			ev.apply(ts)
		}
		for _, l := range h.snapshotListeners() {
			ev.fire(l, ts)
		}
	}
}

// poseAllowed applies the locking policy. Runs on the pump goroutine.
func (h *Hub) poseAllowed(dev *Device, pose myo.Pose) bool {
	if h.LockingPolicy() == myo.LockingPolicyNone {
		return true
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if pose == myo.PoseDoubleTap {
		dev.locked = false
		return true
	}
	return !dev.locked
}

func (h *Hub) synthesizeSamples() {
	now := h.now()
	listeners := h.snapshotListeners()

	for _, dev := range h.Devices() {
		dev.mu.Lock()
		if !dev.connected {
			dev.mu.Unlock()
			continue
		}
		streaming := dev.streamEmg == myo.StreamEmgEnabled
		imuDue := dueSamples(&dev.nextIMU, now, IMUPeriod)
		emgDue := dueSamples(&dev.nextEMG, now, EMGPacketPeriod)
		dev.mu.Unlock()

		for _, ts := range imuDue {
			q, accel, gyro := imuSample(dev.id, ts)
			for _, l := range listeners {
				l.OnOrientationData(dev, ts, q)
				l.OnAccelerometerData(dev, ts, accel)
				l.OnGyroscopeData(dev, ts, gyro)
			}
		}
		if !streaming {
			continue
		}
		for _, ts := range emgDue {
			first, second := emgPacket(dev.id, ts)
			for _, l := range listeners {
				l.OnEmgData(dev, ts, first)
				l.OnEmgData(dev, ts, second)
			}
		}
	}
}

// dueSamples returns the timestamps of samples due at now and advances next
func dueSamples(next *uint64, now uint64, period time.Duration) []uint64 {
	step := uint64(period.Microseconds())
	if *next+uint64(maxCatchUp.Microseconds()) < now {
		*next = now - now%step
	}
	var due []uint64
	for *next <= now {
		due = append(due, *next)
		*next += step
	}
	return due
}

// imuSample is a slow rotation about z with matching gyro and a gentle bob
func imuSample(id DeviceID, ts uint64) (myo.Quaternion, myo.Vector3, myo.Vector3) {
	t := float64(ts)/1e6 + float64(id)
	theta := 2 * math.Pi * 0.25 * t
	q := myo.Quaternion{
		Z: float32(math.Sin(theta / 2)),
		W: float32(math.Cos(theta / 2)),
	}
	accel := myo.Vector3{
		X: float32(0.05 * math.Sin(2*math.Pi*t)),
		Z: 1,
	}
	gyro := myo.Vector3{Z: 90}
	return q, accel, gyro
}

func emgPacket(id DeviceID, ts uint64) ([8]int8, [8]int8) {
	var first, second [8]int8
	t := float64(ts)/1e6 + float64(id)
	for ch := 0; ch < 8; ch++ {
		phase := float64(ch) * math.Pi / 4
		first[ch] = int8(60 * math.Sin(2*math.Pi*3*t+phase))
		second[ch] = int8(60 * math.Sin(2*math.Pi*3*(t+0.005)+phase))
	}
	return first, second
}
