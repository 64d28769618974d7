package sim

import (
	"sync"

	"github.com/srg/myolink/internal/myo"
)

// DeviceID identifies a simulated armband within its hub
type DeviceID uint32

// Device is a simulated armband. It implements myo.Device.
//
// Commands are recorded; battery and RSSI requests are answered by queueing
// the matching event on the owning hub.
type Device struct {
	id   DeviceID
	name string
	hub  *Hub

	mu         sync.Mutex
	paired     bool
	connected  bool
	locked     bool
	streamEmg  myo.StreamEmg
	rssi       int8
	battery    uint8
	vibrations []myo.VibrationType
	notifies   int
	nextIMU    uint64
	nextEMG    uint64
}

func (d *Device) ID() DeviceID { return d.id }

func (d *Device) Name() string { return d.name }

func (d *Device) Vibrate(v myo.VibrationType) {
	d.mu.Lock()
	d.vibrations = append(d.vibrations, v)
	d.mu.Unlock()
	d.hub.logger.WithField("device", d.name).WithField("type", v).Debug("Simulated vibration")
}

func (d *Device) NotifyUserAction() {
	d.mu.Lock()
	d.notifies++
	d.mu.Unlock()
}

func (d *Device) RequestBatteryLevel() {
	d.mu.Lock()
	level := d.battery
	d.mu.Unlock()
	d.hub.enqueue(nil, func(l myo.Listener, ts uint64) { l.OnBatteryLevelReceived(d, ts, level) })
}

func (d *Device) RequestRssi() {
	d.mu.Lock()
	rssi := d.rssi
	d.mu.Unlock()
	d.hub.enqueue(nil, func(l myo.Listener, ts uint64) { l.OnRssi(d, ts, rssi) })
}

func (d *Device) SetStreamEmg(mode myo.StreamEmg) {
	d.mu.Lock()
	d.streamEmg = mode
	d.mu.Unlock()
}

// SetBattery changes the level reported by the next battery request
func (d *Device) SetBattery(level uint8) {
	d.mu.Lock()
	d.battery = level
	d.mu.Unlock()
}

// SetRssi changes the value reported by the next RSSI request
func (d *Device) SetRssi(rssi int8) {
	d.mu.Lock()
	d.rssi = rssi
	d.mu.Unlock()
}

func (d *Device) Paired() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paired
}

func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// StreamEmg returns the EMG mode last set on the device
func (d *Device) StreamEmg() myo.StreamEmg {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streamEmg
}

// Vibrations returns the vibrations received so far
func (d *Device) Vibrations() []myo.VibrationType {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]myo.VibrationType(nil), d.vibrations...)
}

// Notifies returns how many user action notifications were received
func (d *Device) Notifies() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.notifies
}
