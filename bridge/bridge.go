// Package bridge exposes an armband hub as a command facade that writes
// sensor data and status notifications to output channels.
package bridge

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/myolink/internal/hubfactory"
	"github.com/srg/myolink/internal/myo"
	"github.com/srg/myolink/internal/output"
	"github.com/srg/myolink/internal/registry"
	"github.com/srg/myolink/internal/sensor"
	"github.com/srg/myolink/internal/session"
	"go.uber.org/atomic"
)

// Options contains the initial policies and the hub configuration
type Options struct {
	Hub          hubfactory.HubOptions // hub driver and simulated devices
	Device       string                // device selector: registry.Auto or a device name
	Stream       bool                  // emit every sample as it arrives
	Emg          bool                  // enable raw EMG streaming on the bound device
	Unlock       bool                  // disable the pose locking policy
	PollInterval time.Duration         // pump slice (0 = session.DefaultSlice)
}

// Status is a snapshot of the bridge state
type Status struct {
	Running   bool
	Selector  string
	Bound     string // empty when nothing is bound
	Devices   []string
	EMGFrames int
}

// Bridge is the command facade over one hub.
//
// If the hub cannot be created the bridge is disabled: the error is reported
// once on the info channel and every command becomes a no-op returning
// ErrDisabled.
type Bridge struct {
	logger *logrus.Logger
	sink   output.Sink

	hub      myo.Hub
	session  *session.Session
	listener *listener

	// guarded by the session lock
	registry *registry.Registry
	sensors  *sensor.State

	stream   *atomic.Bool
	emg      *atomic.Bool
	unlock   *atomic.Bool
	disabled *atomic.Error
	closed   *atomic.Bool
}

// New creates a bridge and its hub through hubfactory.HubFactory.
// A nil sink discards output; a nil logger discards logs.
func New(opts *Options, sink output.Sink, logger *logrus.Logger) *Bridge {
	if opts == nil {
		opts = &Options{}
	}
	if sink == nil {
		sink = output.Discard
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	b := &Bridge{
		logger:   logger,
		sink:     sink,
		registry: registry.New(opts.Device),
		sensors:  sensor.New(),
		stream:   atomic.NewBool(opts.Stream),
		emg:      atomic.NewBool(opts.Emg),
		unlock:   atomic.NewBool(opts.Unlock),
		disabled: atomic.NewError(nil),
		closed:   atomic.NewBool(false),
	}

	hub, err := hubfactory.HubFactory(opts.Hub, logger)
	if err != nil {
		b.disabled.Store(err)
		logger.WithError(err).Error("Failed to create hub, bridge disabled")
		b.emitError(err)
		return b
	}

	b.hub = hub
	b.listener = &listener{b: b}
	b.session = session.New(hub, &session.Options{
		Slice:   opts.PollInterval,
		OnError: b.onPumpError,
		Logger:  logger,
	})
	hub.AddListener(b.listener)
	hub.SetLockingPolicy(lockingPolicyFor(opts.Unlock))

	logger.WithFields(logrus.Fields{
		"driver":   opts.Hub.Driver,
		"selector": b.registry.Selector(),
		"stream":   opts.Stream,
		"emg":      opts.Emg,
		"unlock":   opts.Unlock,
	}).Debug("Bridge created")
	return b
}

// Disabled returns the hub creation error, or nil
func (b *Bridge) Disabled() error {
	return b.disabled.Load()
}

// Connect starts pumping hub events. It is a no-op while a session is
// already starting or running. The session ends when ctx is done.
func (b *Bridge) Connect(ctx context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	if !b.session.Start(ctx) {
		b.logger.Debug("Already connected")
	}
	return nil
}

// Disconnect stops the session and waits for the pump goroutine to exit.
// It is a no-op when no session is running. Output consumers run on the pump
// goroutine; a Disconnect issued from one only requests the stop.
func (b *Bridge) Disconnect() {
	if b.check() != nil {
		return
	}
	b.session.Stop()
}

// Running reports whether a session is pumping events
func (b *Bridge) Running() bool {
	return b.Disabled() == nil && b.session.Running()
}

// Close disconnects, detaches from the hub, restores the standard locking
// policy, forgets the connected devices and releases the hub. Idempotent.
func (b *Bridge) Close() error {
	if b.Disabled() != nil || !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.session.Stop()
	b.hub.RemoveListener(b.listener)
	b.hub.SetLockingPolicy(myo.LockingPolicyStandard)

	b.session.Lock()
	b.registry.Clear()
	b.sensors.Reset()
	b.session.Unlock()

	if err := b.hub.Close(); err != nil {
		return &myo.HubError{Op: "close", Err: err}
	}
	b.logger.Debug("Bridge closed")
	return nil
}

// RequestInfo asks the bound device for its battery level and RSSI, which
// arrive later as listener events, and emits the device list.
func (b *Bridge) RequestInfo() {
	if b.check() != nil {
		return
	}
	b.session.Lock()
	defer b.session.Unlock()

	if dev := b.registry.Bound(); dev != nil {
		dev.RequestBatteryLevel()
		dev.RequestRssi()
	}
	b.emitDevices()
}

// DumpDevices emits the names of the connected devices
func (b *Bridge) DumpDevices() {
	if b.check() != nil {
		return
	}
	b.session.Lock()
	defer b.session.Unlock()
	b.emitDevices()
}

// SetStream switches between streaming every sample and on-demand emission
func (b *Bridge) SetStream(enabled bool) {
	if b.check() != nil {
		return
	}
	b.stream.Store(enabled)
}

func (b *Bridge) Stream() bool { return b.stream.Load() }

// SetEmgPolicy stores the EMG policy and applies it to the bound device.
// Devices bound later get it on bind.
func (b *Bridge) SetEmgPolicy(enabled bool) {
	if b.check() != nil {
		return
	}
	b.emg.Store(enabled)

	b.session.Lock()
	defer b.session.Unlock()
	if dev := b.registry.Bound(); dev != nil {
		b.applyEmgPolicy(dev)
	}
}

func (b *Bridge) EmgPolicy() bool { return b.emg.Load() }

// SetUnlockPolicy stores the unlock policy and sets the hub-wide locking policy
func (b *Bridge) SetUnlockPolicy(enabled bool) {
	if b.check() != nil {
		return
	}
	b.unlock.Store(enabled)

	b.session.Lock()
	defer b.session.Unlock()
	b.hub.SetLockingPolicy(lockingPolicyFor(enabled))
}

func (b *Bridge) UnlockPolicy() bool { return b.unlock.Load() }

// SetDeviceSelector selects the bound device by name, or registry.Auto for the
// earliest connected one. When the selector changes the binding is recomputed
// and announced; a name with no connected match leaves the bridge waiting.
func (b *Bridge) SetDeviceSelector(selector string) {
	if b.check() != nil {
		return
	}
	if selector == "" {
		selector = registry.Auto
	}

	b.session.Lock()
	defer b.session.Unlock()

	previous := b.registry.Bound()
	if !b.registry.SetSelector(selector) {
		return
	}

	bound := b.registry.Bound()
	if bound != previous {
		b.sensors.Reset()
	}
	if bound != nil {
		b.applyEmgPolicy(bound)
	}

	b.logger.WithFields(logrus.Fields{
		"selector": selector,
		"bound":    deviceName(bound),
	}).Info("Device selector changed")

	if bound == nil && !b.registry.IsAuto() {
		b.emitWarning(fmt.Sprintf("Myo named %s is not connected. Waiting...", selector))
	}
	b.emitConnected()
}

// DeviceSelector returns the current selector
func (b *Bridge) DeviceSelector() string {
	if b.Disabled() == nil {
		b.session.Lock()
		defer b.session.Unlock()
	}
	return b.registry.Selector()
}

// Vibrate triggers a vibration on the bound device. An empty pattern sends
// the generic user notification; 0|short, 1|medium and 2|long select a
// pattern. Anything else is ignored.
func (b *Bridge) Vibrate(pattern string) {
	if b.check() != nil {
		return
	}

	b.session.Lock()
	defer b.session.Unlock()

	dev := b.registry.Bound()
	if dev == nil {
		return
	}
	if pattern == "" {
		dev.NotifyUserAction()
		return
	}
	v, ok := parseVibration(pattern)
	if !ok {
		b.logger.WithField("pattern", pattern).Debug("Ignoring unknown vibration pattern")
		return
	}
	dev.Vibrate(v)
}

// EmitOnDemand emits the cached samples of the bound device: EMG (consuming
// one queued frame), orientation, angular velocity then acceleration.
func (b *Bridge) EmitOnDemand() {
	if b.check() != nil {
		return
	}

	b.session.Lock()
	defer b.session.Unlock()

	if b.registry.Bound() == nil {
		return
	}
	frame := b.sensors.ConsumeEMG()
	b.sink.Emit(output.EMG, output.Floats(frame[:]...))
	b.emitOrientation()
	b.emitAngularVelocity()
	b.emitAcceleration()
}

// Status returns a snapshot of the bridge state
func (b *Bridge) Status() Status {
	if b.Disabled() != nil {
		return Status{Selector: b.registry.Selector()}
	}

	b.session.Lock()
	defer b.session.Unlock()
	return Status{
		Running:   b.session.Running(),
		Selector:  b.registry.Selector(),
		Bound:     deviceName(b.registry.Bound()),
		Devices:   b.registry.Names(),
		EMGFrames: b.sensors.EMGFrameCount(),
	}
}

func (b *Bridge) check() error {
	if err := b.disabled.Load(); err != nil {
		return fmt.Errorf("%w: %v", ErrDisabled, err)
	}
	return nil
}

// onPumpError runs on the pump goroutine after the session lock was released
func (b *Bridge) onPumpError(err error) {
	b.session.Lock()
	defer b.session.Unlock()
	b.emitError(err)
}

// applyEmgPolicy must be called with the session lock held
func (b *Bridge) applyEmgPolicy(dev myo.Device) {
	dev.SetStreamEmg(myo.StreamEmgFor(b.emg.Load()))
}

func (b *Bridge) emitConnected() {
	if dev := b.registry.Bound(); dev != nil {
		b.sink.Emit(output.Info, output.Tagged(output.TagConnected, output.Sym(dev.Name())))
		return
	}
	b.sink.Emit(output.Info, output.Tagged(output.TagConnected, output.Int(0)))
}

func (b *Bridge) emitDevices() {
	names := b.registry.Names()
	atoms := make([]output.Atom, 0, len(names))
	for _, name := range names {
		atoms = append(atoms, output.Sym(name))
	}
	b.sink.Emit(output.Info, output.Tagged(output.TagDevices, atoms...))
}

func (b *Bridge) emitOrientation() {
	q := b.sensors.Orientation()
	b.sink.Emit(output.Orientation, output.Floats(q[:]...))
}

func (b *Bridge) emitAngularVelocity() {
	g := b.sensors.AngularVelocity()
	b.sink.Emit(output.AngularVelocity, output.Floats(g[:]...))
}

func (b *Bridge) emitAcceleration() {
	a := b.sensors.Acceleration()
	b.sink.Emit(output.Acceleration, output.Floats(a[:]...))
}

func (b *Bridge) emitWarning(msg string) {
	b.logger.Warn(msg)
	b.sink.Emit(output.Info, output.Tagged(output.TagWarning, output.Sym(msg)))
}

func (b *Bridge) emitError(err error) {
	b.sink.Emit(output.Info, output.Tagged(output.TagError, output.Sym(err.Error())))
}

func lockingPolicyFor(unlock bool) myo.LockingPolicy {
	if unlock {
		return myo.LockingPolicyNone
	}
	return myo.LockingPolicyStandard
}

func parseVibration(pattern string) (myo.VibrationType, bool) {
	switch pattern {
	case "0", "short":
		return myo.VibrationShort, true
	case "1", "medium":
		return myo.VibrationMedium, true
	case "2", "long":
		return myo.VibrationLong, true
	default:
		return 0, false
	}
}

func deviceName(dev myo.Device) string {
	if dev == nil {
		return ""
	}
	return dev.Name()
}
