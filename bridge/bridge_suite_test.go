package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/srg/myolink/internal/hubfactory"
	"github.com/srg/myolink/internal/myo"
	"github.com/srg/myolink/internal/output"
	"github.com/srg/myolink/internal/testutils"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"
)

// BridgeSuite provides a bridge wired to a MockHub, a Recorder sink and a
// set of named FakeDevices.
//
// Hub events are delivered straight to the bridge listener under the session
// lock, the same way the pump goroutine delivers them, so scenarios run
// deterministically without a running session.
type BridgeSuite struct {
	suite.Suite

	Logger   *logrus.Logger
	Hub      *testutils.MockHub
	Recorder *output.Recorder
	Bridge   *Bridge

	devices         map[string]*testutils.FakeDevice
	originalFactory func(hubfactory.HubOptions, *logrus.Logger) (myo.Hub, error)
}

func (suite *BridgeSuite) SetupTest() {
	suite.Logger = testutils.NewTestHelper(suite.T()).Logger
	suite.Hub = testutils.NewMockHub()
	suite.Recorder = output.NewRecorder(1024)
	suite.devices = make(map[string]*testutils.FakeDevice)

	suite.originalFactory = hubfactory.HubFactory
	hubfactory.HubFactory = func(hubfactory.HubOptions, *logrus.Logger) (myo.Hub, error) {
		return suite.Hub, nil
	}
}

func (suite *BridgeSuite) TearDownTest() {
	if suite.Bridge != nil {
		suite.NoError(suite.Bridge.Close())
		suite.Bridge = nil
	}
	hubfactory.HubFactory = suite.originalFactory
}

// NewBridge creates the bridge under test with the given options
func (suite *BridgeSuite) NewBridge(opts *Options) *Bridge {
	suite.Bridge = New(opts, suite.Recorder, suite.Logger)
	return suite.Bridge
}

// Device returns the FakeDevice registered under label, creating it on first
// use. A label "A#2" names a second, distinct device called "A".
func (suite *BridgeSuite) Device(label string) *testutils.FakeDevice {
	if dev, ok := suite.devices[label]; ok {
		return dev
	}
	name := label
	if i := strings.IndexByte(label, '#'); i >= 0 {
		name = label[:i]
	}
	dev := testutils.NewFakeDevice(name)
	suite.devices[label] = dev
	return dev
}

// Deliver runs a hub event against the bridge listener under the session lock
func (suite *BridgeSuite) Deliver(ev func(l myo.Listener)) {
	suite.Bridge.session.Lock()
	defer suite.Bridge.session.Unlock()
	ev(suite.Bridge.listener)
}

// Output drains the recorder and renders each emission as "<channel> <atoms>"
func (suite *BridgeSuite) Output() []string {
	lines := []string{}
	for _, em := range suite.Recorder.Drain() {
		line := em.Channel.String()
		if len(em.Message) > 0 {
			line += " " + em.Message.String()
		}
		lines = append(lines, line)
	}
	return lines
}

// Scenario is one YAML test case
type Scenario struct {
	Name    string `yaml:"name"`
	Options struct {
		Device string `yaml:"device"`
		Stream bool   `yaml:"stream"`
		Emg    bool   `yaml:"emg"`
		Unlock bool   `yaml:"unlock"`
	} `yaml:"options"`
	Steps []ScenarioStep `yaml:"steps"`
}

// ScenarioStep performs at most one action (event or exec) then checks every
// expectation it names.
type ScenarioStep struct {
	Event     string              `yaml:"event"`      // "connect A", "emg A 10 127 -127 0 64 -64 1 -1 0", ...
	Exec      string              `yaml:"exec"`       // command line passed to Bridge.Exec
	Error     string              `yaml:"error"`      // expected Exec error substring
	Output    *[]string           `yaml:"output"`     // emissions since the previous output check
	Bound     *string             `yaml:"bound"`      // expected bound device name ("" = none)
	Devices   *[]string           `yaml:"devices"`    // expected connected device names
	EMGFrames *int                `yaml:"emg_frames"` // expected queued EMG frames
	Calls     map[string][]string `yaml:"calls"`      // device label -> recorded "Method arg"
}

// RunScenariosFromYAML runs every scenario as a subtest with a fresh bridge
func (suite *BridgeSuite) RunScenariosFromYAML(content string) {
	var doc struct {
		Scenarios []Scenario `yaml:"scenarios"`
	}
	suite.Require().NoError(yaml.Unmarshal([]byte(content), &doc), "Failed to parse scenarios")
	suite.Require().NotEmpty(doc.Scenarios)

	for _, sc := range doc.Scenarios {
		sc := sc
		suite.Run(sc.Name, func() {
			suite.TearDownTest()
			suite.SetupTest()
			suite.NewBridge(&Options{
				Device: sc.Options.Device,
				Stream: sc.Options.Stream,
				Emg:    sc.Options.Emg,
				Unlock: sc.Options.Unlock,
			})
			for i, step := range sc.Steps {
				suite.runStep(i+1, step)
			}
		})
	}
}

func (suite *BridgeSuite) runStep(n int, step ScenarioStep) {
	at := fmt.Sprintf("step %d", n)

	if step.Event != "" {
		ev, err := suite.parseEvent(step.Event)
		suite.Require().NoError(err, at)
		suite.Deliver(ev)
	}
	if step.Exec != "" {
		err := suite.Bridge.Exec(step.Exec)
		if step.Error != "" {
			suite.Require().Error(err, at)
			suite.Contains(err.Error(), step.Error, at)
		} else {
			suite.NoError(err, at)
		}
	}

	if step.Output != nil {
		testutils.NewTextAsserter(suite.T()).AssertLines(suite.Output(), *step.Output, "%s: output", at)
	}
	status := suite.Bridge.Status()
	if step.Bound != nil {
		suite.Equal(*step.Bound, status.Bound, "%s: bound device", at)
	}
	if step.Devices != nil {
		expected := *step.Devices
		if expected == nil {
			expected = []string{}
		}
		suite.Equal(expected, status.Devices, "%s: connected devices", at)
	}
	if step.EMGFrames != nil {
		suite.Equal(*step.EMGFrames, status.EMGFrames, "%s: EMG frames", at)
	}
	for label, expected := range step.Calls {
		if expected == nil {
			expected = []string{}
		}
		actual := []string{}
		for _, c := range suite.Device(label).Calls() {
			if c.Arg == nil {
				actual = append(actual, c.Method)
				continue
			}
			actual = append(actual, fmt.Sprintf("%s %v", c.Method, c.Arg))
		}
		suite.Equal(expected, actual, "%s: calls on %s", at, label)
	}
}

var poses = map[string]myo.Pose{}

func init() {
	for _, p := range []myo.Pose{myo.PoseRest, myo.PoseFist, myo.PoseWaveIn, myo.PoseWaveOut,
		myo.PoseFingersSpread, myo.PoseDoubleTap, myo.PoseUnknown} {
		poses[p.String()] = p
	}
}

// parseEvent converts "<event> <device> [args...]" into a listener call
func (suite *BridgeSuite) parseEvent(line string) (func(myo.Listener), error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("event %q: expects <event> <device>", line)
	}
	kind, dev, args := fields[0], suite.Device(fields[1]), fields[2:]

	floats, ferr := parseFloats(args)
	switch kind {
	case "pair":
		return func(l myo.Listener) { l.OnPair(dev, 0, myo.FirmwareVersion{}) }, nil
	case "connect":
		return func(l myo.Listener) { l.OnConnect(dev, 0, myo.FirmwareVersion{}) }, nil
	case "disconnect":
		return func(l myo.Listener) { l.OnDisconnect(dev, 0) }, nil
	case "unpair":
		return func(l myo.Listener) { l.OnUnpair(dev, 0) }, nil
	case "armunsync":
		return func(l myo.Listener) { l.OnArmUnsync(dev, 0) }, nil
	case "armsync":
		if len(args) != 4 {
			return nil, fmt.Errorf("event %q: expects <arm> <direction> <rotation> <warmup>", line)
		}
		rotation, err := strconv.ParseFloat(args[2], 32)
		if err != nil {
			return nil, err
		}
		arm, dir, warmup := parseArm(args[0]), parseDirection(args[1]), parseWarmup(args[3])
		return func(l myo.Listener) { l.OnArmSync(dev, 0, arm, dir, float32(rotation), warmup) }, nil
	case "pose":
		if len(args) != 1 {
			return nil, fmt.Errorf("event %q: expects <pose>", line)
		}
		pose, ok := poses[args[0]]
		if !ok {
			return nil, fmt.Errorf("event %q: unknown pose", line)
		}
		return func(l myo.Listener) { l.OnPose(dev, 0, pose) }, nil
	case "quat":
		if ferr != nil || len(floats) != 4 {
			return nil, fmt.Errorf("event %q: expects 4 floats", line)
		}
		q := myo.Quaternion{X: floats[0], Y: floats[1], Z: floats[2], W: floats[3]}
		return func(l myo.Listener) { l.OnOrientationData(dev, 0, q) }, nil
	case "accel", "gyro":
		if ferr != nil || len(floats) != 3 {
			return nil, fmt.Errorf("event %q: expects 3 floats", line)
		}
		v := myo.Vector3{X: floats[0], Y: floats[1], Z: floats[2]}
		if kind == "accel" {
			return func(l myo.Listener) { l.OnAccelerometerData(dev, 0, v) }, nil
		}
		return func(l myo.Listener) { l.OnGyroscopeData(dev, 0, v) }, nil
	case "emg":
		if len(args) != 9 {
			return nil, fmt.Errorf("event %q: expects <timestamp> and 8 samples", line)
		}
		ts, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return nil, err
		}
		var raw [8]int8
		for i, s := range args[1:] {
			v, err := strconv.ParseInt(s, 10, 8)
			if err != nil {
				return nil, err
			}
			raw[i] = int8(v)
		}
		return func(l myo.Listener) { l.OnEmgData(dev, ts, raw) }, nil
	case "rssi", "battery":
		if len(args) != 1 {
			return nil, fmt.Errorf("event %q: expects one value", line)
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, err
		}
		if kind == "rssi" {
			return func(l myo.Listener) { l.OnRssi(dev, 0, int8(v)) }, nil
		}
		return func(l myo.Listener) { l.OnBatteryLevelReceived(dev, 0, uint8(v)) }, nil
	default:
		return nil, fmt.Errorf("event %q: unknown event", line)
	}
}

func parseFloats(args []string) ([]float32, error) {
	out := make([]float32, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseFloat(a, 32)
		if err != nil {
			return nil, err
		}
		out = append(out, float32(v))
	}
	return out, nil
}

func parseArm(s string) myo.Arm {
	for _, a := range []myo.Arm{myo.ArmLeft, myo.ArmRight} {
		if a.String() == s {
			return a
		}
	}
	return myo.ArmUnknown
}

func parseDirection(s string) myo.XDirection {
	for _, d := range []myo.XDirection{myo.XDirectionTowardWrist, myo.XDirectionTowardElbow} {
		if d.String() == s {
			return d
		}
	}
	return myo.XDirectionUnknown
}

func parseWarmup(s string) myo.WarmupState {
	for _, w := range []myo.WarmupState{myo.WarmupCold, myo.WarmupWarm} {
		if w.String() == s {
			return w
		}
	}
	return myo.WarmupUnknown
}
