// Package registry tracks connected armbands and the one bound for output.
package registry

import (
	"github.com/srg/myolink/internal/myo"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Auto selects the earliest connected device regardless of its name
const Auto = "auto"

// Registry is the set of connected devices plus the bound one.
//
// Devices are keyed by handle identity and kept in connection order.
// Invariant: the bound device is either nil or a member of the connected set.
// Registry is not synchronized; see sensor.State for the locking discipline.
type Registry struct {
	connected *orderedmap.OrderedMap[myo.Device, struct{}]
	bound     myo.Device
	selector  string
}

// New creates an empty registry. An empty selector means Auto.
func New(selector string) *Registry {
	if selector == "" {
		selector = Auto
	}
	return &Registry{
		connected: orderedmap.New[myo.Device, struct{}](),
		selector:  selector,
	}
}

// Selector returns Auto or the device name being selected
func (r *Registry) Selector() string {
	return r.selector
}

// IsAuto reports whether the registry uses auto selection
func (r *Registry) IsAuto() bool {
	return r.selector == Auto
}

// Bound returns the bound device, nil if none
func (r *Registry) Bound() myo.Device {
	return r.bound
}

// IsBound reports whether dev is the bound device. Always false for nil.
func (r *Registry) IsBound(dev myo.Device) bool {
	return dev != nil && r.bound == dev
}

// Contains reports whether dev is connected
func (r *Registry) Contains(dev myo.Device) bool {
	_, ok := r.connected.Get(dev)
	return ok
}

// Add inserts dev into the connected set and binds it when nothing is bound
// and the selector accepts it. It reports whether dev became bound.
func (r *Registry) Add(dev myo.Device) bool {
	if dev == nil {
		return false
	}
	if _, present := r.connected.Set(dev, struct{}{}); present {
		return false
	}
	if r.bound == nil && r.accepts(dev) {
		r.bound = dev
		return true
	}
	return false
}

// Remove drops dev from the connected set. If it was bound, the binding is
// recomputed against the remaining devices under any selector: with a name
// selector the earliest other device of that name takes over. It reports
// whether dev was bound.
func (r *Registry) Remove(dev myo.Device) bool {
	if _, present := r.connected.Delete(dev); !present {
		return false
	}
	if r.bound != dev {
		return false
	}
	r.bound = nil
	r.Rebind()
	return true
}

// SetSelector switches the selection policy. When the selector actually
// changes, the binding is cleared and recomputed. It reports whether it changed.
func (r *Registry) SetSelector(selector string) bool {
	if selector == "" {
		selector = Auto
	}
	if selector == r.selector {
		return false
	}
	r.selector = selector
	r.bound = nil
	r.Rebind()
	return true
}

// Rebind binds the earliest connected device accepted by the selector if
// nothing is bound, and returns the bound device.
func (r *Registry) Rebind() myo.Device {
	if r.bound != nil {
		return r.bound
	}
	for pair := r.connected.Oldest(); pair != nil; pair = pair.Next() {
		if r.accepts(pair.Key) {
			r.bound = pair.Key
			break
		}
	}
	return r.bound
}

// Devices returns the connected devices in connection order
func (r *Registry) Devices() []myo.Device {
	devs := make([]myo.Device, 0, r.connected.Len())
	for pair := r.connected.Oldest(); pair != nil; pair = pair.Next() {
		devs = append(devs, pair.Key)
	}
	return devs
}

// Names returns the names of the connected devices in connection order
func (r *Registry) Names() []string {
	names := make([]string, 0, r.connected.Len())
	for pair := r.connected.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key.Name())
	}
	return names
}

// Len returns the number of connected devices
func (r *Registry) Len() int {
	return r.connected.Len()
}

// Clear forgets every device and the binding; the selector is kept
func (r *Registry) Clear() {
	r.connected = orderedmap.New[myo.Device, struct{}]()
	r.bound = nil
}

func (r *Registry) accepts(dev myo.Device) bool {
	return r.selector == Auto || dev.Name() == r.selector
}
