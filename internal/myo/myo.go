package myo

import (
	"fmt"
	"time"
)

// Arm identifies which arm the armband is synced on
type Arm int

const (
	ArmRight Arm = iota
	ArmLeft
	ArmUnknown
)

func (a Arm) String() string {
	switch a {
	case ArmLeft:
		return "Left"
	case ArmRight:
		return "Right"
	default:
		return "Unknown"
	}
}

// XDirection is the direction of the device +x axis relative to the arm
type XDirection int

const (
	XDirectionTowardWrist XDirection = iota
	XDirectionTowardElbow
	XDirectionUnknown
)

func (d XDirection) String() string {
	switch d {
	case XDirectionTowardWrist:
		return "TowardWrist"
	case XDirectionTowardElbow:
		return "TowardElbow"
	default:
		return "Unknown"
	}
}

// WarmupState reports whether the EMG sensors reached skin temperature
type WarmupState int

const (
	WarmupUnknown WarmupState = iota
	WarmupCold
	WarmupWarm
)

func (w WarmupState) String() string {
	switch w {
	case WarmupCold:
		return "Cold"
	case WarmupWarm:
		return "Warm"
	default:
		return "Unknown"
	}
}

// Pose is a gesture recognized by the SDK classifier
type Pose int

const (
	PoseRest Pose = iota
	PoseFist
	PoseWaveIn
	PoseWaveOut
	PoseFingersSpread
	PoseDoubleTap
	PoseUnknown Pose = 0xffff
)

var poseNames = map[Pose]string{
	PoseRest:          "rest",
	PoseFist:          "fist",
	PoseWaveIn:        "waveIn",
	PoseWaveOut:       "waveOut",
	PoseFingersSpread: "fingersSpread",
	PoseDoubleTap:     "doubleTap",
}

// String returns the SDK identifier of the pose
func (p Pose) String() string {
	if name, ok := poseNames[p]; ok {
		return name
	}
	return "unknown"
}

// VibrationType selects a vibration pattern length
type VibrationType int

const (
	VibrationShort VibrationType = iota
	VibrationMedium
	VibrationLong
)

func (v VibrationType) String() string {
	switch v {
	case VibrationShort:
		return "short"
	case VibrationMedium:
		return "medium"
	case VibrationLong:
		return "long"
	default:
		return fmt.Sprintf("vibration(%d)", int(v))
	}
}

// StreamEmg toggles raw EMG streaming on a device
type StreamEmg int

const (
	StreamEmgDisabled StreamEmg = iota
	StreamEmgEnabled
)

func (s StreamEmg) String() string {
	if s == StreamEmgEnabled {
		return "enabled"
	}
	return "disabled"
}

// StreamEmgFor maps a boolean policy to the SDK value
func StreamEmgFor(enabled bool) StreamEmg {
	if enabled {
		return StreamEmgEnabled
	}
	return StreamEmgDisabled
}

// LockingPolicy controls whether pose recognition requires an unlock gesture.
// It applies hub-wide.
type LockingPolicy int

const (
	LockingPolicyNone LockingPolicy = iota
	LockingPolicyStandard
)

func (p LockingPolicy) String() string {
	if p == LockingPolicyNone {
		return "none"
	}
	return "standard"
}

// FirmwareVersion is reported with every connect event
type FirmwareVersion struct {
	Major, Minor, Patch, HardwareRev uint32
}

func (f FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d (rev %d)", f.Major, f.Minor, f.Patch, f.HardwareRev)
}

// Vector3 holds accelerometer (g) or gyroscope (deg/s) samples
type Vector3 struct {
	X, Y, Z float32
}

// Quaternion holds an orientation sample
type Quaternion struct {
	X, Y, Z, W float32
}

// Device is a handle on a paired armband. Two handles refer to the same
// armband only if they compare equal; names may be duplicated.
type Device interface {
	Name() string
	Vibrate(v VibrationType)
	NotifyUserAction()
	RequestBatteryLevel()
	RequestRssi()
	SetStreamEmg(mode StreamEmg)
}

// Hub pumps SDK events and owns the listener registrations
type Hub interface {
	// Run dispatches pending events to listeners, on the calling goroutine,
	// for at most d.
	Run(d time.Duration) error
	AddListener(l Listener)
	RemoveListener(l Listener)
	SetLockingPolicy(p LockingPolicy)
	Close() error
}

// Listener receives device events from Hub.Run. Callbacks are delivered
// synchronously and in order on the goroutine calling Run.
type Listener interface {
	OnPair(dev Device, ts uint64, fw FirmwareVersion)
	OnUnpair(dev Device, ts uint64)
	OnConnect(dev Device, ts uint64, fw FirmwareVersion)
	OnDisconnect(dev Device, ts uint64)
	OnArmSync(dev Device, ts uint64, arm Arm, dir XDirection, rotation float32, warmup WarmupState)
	OnArmUnsync(dev Device, ts uint64)
	OnPose(dev Device, ts uint64, pose Pose)
	OnOrientationData(dev Device, ts uint64, q Quaternion)
	OnAccelerometerData(dev Device, ts uint64, accel Vector3)
	OnGyroscopeData(dev Device, ts uint64, gyro Vector3)
	OnEmgData(dev Device, ts uint64, emg [8]int8)
	OnRssi(dev Device, ts uint64, rssi int8)
	OnBatteryLevelReceived(dev Device, ts uint64, level uint8)
}

// BaseListener implements Listener with no-ops. Embed it to handle a subset of events.
type BaseListener struct{}

func (BaseListener) OnPair(Device, uint64, FirmwareVersion)                          {}
func (BaseListener) OnUnpair(Device, uint64)                                         {}
func (BaseListener) OnConnect(Device, uint64, FirmwareVersion)                       {}
func (BaseListener) OnDisconnect(Device, uint64)                                     {}
func (BaseListener) OnArmSync(Device, uint64, Arm, XDirection, float32, WarmupState) {}
func (BaseListener) OnArmUnsync(Device, uint64)                                      {}
func (BaseListener) OnPose(Device, uint64, Pose)                                     {}
func (BaseListener) OnOrientationData(Device, uint64, Quaternion)                    {}
func (BaseListener) OnAccelerometerData(Device, uint64, Vector3)                     {}
func (BaseListener) OnGyroscopeData(Device, uint64, Vector3)                         {}
func (BaseListener) OnEmgData(Device, uint64, [8]int8)                               {}
func (BaseListener) OnRssi(Device, uint64, int8)                                     {}
func (BaseListener) OnBatteryLevelReceived(Device, uint64, uint8)                    {}
