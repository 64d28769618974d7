package testutils

import (
	"sync"

	"github.com/srg/myolink/internal/myo"
)

// DeviceCall is one command recorded by FakeDevice
type DeviceCall struct {
	Method string
	Arg    interface{}
}

// FakeDevice is a myo.Device that records the commands it receives.
// Two FakeDevices with the same name are still distinct devices.
type FakeDevice struct {
	name string

	mu    sync.Mutex
	calls []DeviceCall
}

// NewFakeDevice creates a recording device with the given name
func NewFakeDevice(name string) *FakeDevice {
	return &FakeDevice{name: name}
}

func (d *FakeDevice) Name() string { return d.name }

func (d *FakeDevice) Vibrate(v myo.VibrationType) { d.record("Vibrate", v) }

func (d *FakeDevice) NotifyUserAction() { d.record("NotifyUserAction", nil) }

func (d *FakeDevice) RequestBatteryLevel() { d.record("RequestBatteryLevel", nil) }

func (d *FakeDevice) RequestRssi() { d.record("RequestRssi", nil) }

func (d *FakeDevice) SetStreamEmg(mode myo.StreamEmg) { d.record("SetStreamEmg", mode) }

// Calls returns a copy of the recorded commands
func (d *FakeDevice) Calls() []DeviceCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeviceCall, len(d.calls))
	copy(out, d.calls)
	return out
}

// CallsTo returns the recorded arguments of one method
func (d *FakeDevice) CallsTo(method string) []interface{} {
	var args []interface{}
	for _, c := range d.Calls() {
		if c.Method == method {
			args = append(args, c.Arg)
		}
	}
	return args
}

// LastStreamEmg returns the last EMG mode set on the device
func (d *FakeDevice) LastStreamEmg() (myo.StreamEmg, bool) {
	args := d.CallsTo("SetStreamEmg")
	if len(args) == 0 {
		return myo.StreamEmgDisabled, false
	}
	return args[len(args)-1].(myo.StreamEmg), true
}

// Reset forgets the recorded commands
func (d *FakeDevice) Reset() {
	d.mu.Lock()
	d.calls = nil
	d.mu.Unlock()
}

func (d *FakeDevice) record(method string, arg interface{}) {
	d.mu.Lock()
	d.calls = append(d.calls, DeviceCall{Method: method, Arg: arg})
	d.mu.Unlock()
}
