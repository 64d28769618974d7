package hubfactory

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"
	"github.com/srg/myolink/internal/myo"
	"github.com/srg/myolink/internal/myo/sim"
)

// DriverSim selects the in-process simulated hub
const DriverSim = "sim"

// DefaultApplicationID identifies the application to the hub
const DefaultApplicationID = "com.srg.myolink"

var ErrInvalidApplicationID = errors.New("invalid application id")

var applicationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)+$`)

// DeviceSpec describes a simulated armband present when the hub is created.
// Zero Rssi and Battery keep the simulator defaults.
type DeviceSpec struct {
	Name      string `yaml:"name" json:"name"`
	Connected *bool  `yaml:"connected,omitempty" json:"connected,omitempty"` // nil = connected
	Rssi      int8   `yaml:"rssi,omitempty" json:"rssi,omitempty"`
	Battery   uint8  `yaml:"battery,omitempty" json:"battery,omitempty"`
}

// HubOptions configures hub creation
type HubOptions struct {
	ApplicationID string       `yaml:"-" json:"-"`
	Driver        string       `yaml:"driver" json:"driver" default:"sim"`
	Synthesize    bool         `yaml:"synthesize" json:"synthesize" default:"true"`
	Devices       []DeviceSpec `yaml:"devices" json:"devices"`
}

// HubFactory creates the hub behind a bridge.
// This is a variable so that it can be overridden in tests.
var HubFactory = func(opts HubOptions, logger *logrus.Logger) (myo.Hub, error) {
	return NewHub(opts, logger)
}

// NewHub creates a hub for the configured driver. Failures are *myo.HubError
// with Op "create".
func NewHub(opts HubOptions, logger *logrus.Logger) (myo.Hub, error) {
	appID := opts.ApplicationID
	if appID == "" {
		appID = DefaultApplicationID
	}
	if !applicationIDPattern.MatchString(appID) {
		return nil, &myo.HubError{Op: "create", Err: fmt.Errorf("%w: %q", ErrInvalidApplicationID, appID)}
	}

	switch opts.Driver {
	case "", DriverSim:
		return newSimHub(opts, logger)
	default:
		return nil, &myo.HubError{Op: "create", Err: fmt.Errorf("%w: %q", myo.ErrUnsupportedDriver, opts.Driver)}
	}
}

func newSimHub(opts HubOptions, logger *logrus.Logger) (myo.Hub, error) {
	hub := sim.NewHub(&sim.Options{Synthesize: opts.Synthesize, Logger: logger})

	for i, spec := range opts.Devices {
		if spec.Name == "" {
			return nil, &myo.HubError{Op: "create", Err: fmt.Errorf("device #%d has no name", i+1)}
		}
		dev := hub.Pair(spec.Name)
		if spec.Rssi != 0 {
			dev.SetRssi(spec.Rssi)
		}
		if spec.Battery != 0 {
			dev.SetBattery(spec.Battery)
		}
		if spec.Connected == nil || *spec.Connected {
			if err := hub.Connect(dev.ID()); err != nil {
				return nil, &myo.HubError{Op: "create", Err: err}
			}
		}
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"driver":  DriverSim,
			"devices": len(opts.Devices),
		}).Debug("Hub created")
	}
	return hub, nil
}
