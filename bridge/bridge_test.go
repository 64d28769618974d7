package bridge

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/myolink/internal/hubfactory"
	"github.com/srg/myolink/internal/myo"
	"github.com/srg/myolink/internal/output"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// BridgeTestSuite runs the bridge scenarios and lifecycle tests
type BridgeTestSuite struct {
	BridgeSuite
}

// TestBridgeScenarios runs all Bridge test scenarios from the YAML file
func (suite *BridgeTestSuite) TestBridgeScenarios() {
	yamlContent, err := os.ReadFile("bridge-test-scenarios.yaml")
	suite.Require().NoError(err, "Failed to read bridge-test-scenarios.yaml")

	suite.RunScenariosFromYAML(string(yamlContent))
}

func (suite *BridgeTestSuite) TestConnectPumpsEventsUntilDisconnect() {
	suite.Hub.OnRunSleeping()
	b := suite.NewBridge(&Options{PollInterval: time.Millisecond})
	dev := suite.Device("A")

	suite.Require().NoError(b.Connect(context.Background()))
	suite.Require().NoError(b.Connect(context.Background()), "duplicate connect is a no-op")
	suite.True(b.Running())

	suite.Hub.Queue(func(l myo.Listener) { l.OnConnect(dev, 1, myo.FirmwareVersion{}) })
	suite.Eventually(func() bool { return b.Status().Bound == "A" }, time.Second, 2*time.Millisecond)

	b.Disconnect()
	suite.False(b.Running())
	runs := suite.Hub.Runs()
	time.Sleep(10 * time.Millisecond)
	suite.Equal(runs, suite.Hub.Runs(), "no pumping after disconnect")

	b.Disconnect()
	suite.Require().NoError(b.Connect(context.Background()), "connect after disconnect starts a new session")
	suite.Eventually(func() bool { return suite.Hub.Runs() > runs }, time.Second, 2*time.Millisecond)
}

func (suite *BridgeTestSuite) TestPumpFailureEndsSessionAndIsReported() {
	suite.Hub.On("Run", mock.Anything).Return(errors.New("device lost")).Once()
	b := suite.NewBridge(&Options{PollInterval: time.Millisecond})

	suite.Require().NoError(b.Connect(context.Background()))
	suite.Eventually(func() bool { return !b.Running() }, time.Second, 2*time.Millisecond)

	errs := output.WithTag(output.OnChannel(suite.Recorder.Drain(), output.Info), output.TagError)
	suite.Require().Len(errs, 1)
	suite.Equal("error hub run failed: device lost", errs[0].String())
	suite.Equal(1, suite.Hub.Runs(), "no retry")
}

func (suite *BridgeTestSuite) TestUnlockPolicyAndTeardown() {
	b := suite.NewBridge(&Options{Unlock: true})
	suite.Hub.AssertCalled(suite.T(), "SetLockingPolicy", myo.LockingPolicyNone)
	suite.Len(suite.Hub.Listeners(), 1)
	suite.Deliver(func(l myo.Listener) { l.OnConnect(suite.Device("A"), 1, myo.FirmwareVersion{}) })
	suite.Equal("A", b.Status().Bound)

	b.SetUnlockPolicy(false)
	suite.False(b.UnlockPolicy())
	b.SetUnlockPolicy(true)
	suite.True(b.UnlockPolicy())

	suite.Require().NoError(b.Close())
	suite.Require().NoError(b.Close(), "Close is idempotent")
	suite.Bridge = nil

	suite.Empty(suite.Hub.Listeners())
	var last myo.LockingPolicy = -1
	for _, call := range suite.Hub.Calls {
		if call.Method == "SetLockingPolicy" {
			last = call.Arguments.Get(0).(myo.LockingPolicy)
		}
	}
	suite.Equal(myo.LockingPolicyStandard, last, "teardown restores the standard policy")
	suite.Hub.AssertNumberOfCalls(suite.T(), "Close", 1)

	status := b.Status()
	suite.Empty(status.Devices, "teardown forgets connected devices")
	suite.Empty(status.Bound)
}

func (suite *BridgeTestSuite) TestPolicyGetters() {
	b := suite.NewBridge(&Options{Device: "Myo", Stream: true, Emg: true})
	suite.True(b.Stream())
	suite.True(b.EmgPolicy())
	suite.False(b.UnlockPolicy())
	suite.Equal("Myo", b.DeviceSelector())

	b.SetStream(false)
	b.SetEmgPolicy(false)
	b.SetDeviceSelector("")
	suite.False(b.Stream())
	suite.False(b.EmgPolicy())
	suite.Equal("auto", b.DeviceSelector())
}

func (suite *BridgeTestSuite) TestSwitchCommandsTreatNonzeroAsOn() {
	b := suite.NewBridge(nil)

	suite.Require().NoError(b.Exec("stream 2"))
	suite.True(b.Stream())
	suite.Require().NoError(b.Exec("emg -1"))
	suite.True(b.EmgPolicy())
	suite.Require().NoError(b.Exec("unlock 1"))
	suite.True(b.UnlockPolicy())

	suite.Require().NoError(b.Exec("stream 0"))
	suite.False(b.Stream())

	var cmdErr *CommandError
	suite.ErrorAs(b.Exec("emg on"), &cmdErr)
	suite.True(b.EmgPolicy(), "rejected argument leaves the policy unchanged")
}

func (suite *BridgeTestSuite) TestDisabledWhenHubCreationFails() {
	hubfactory.HubFactory = func(hubfactory.HubOptions, *logrus.Logger) (myo.Hub, error) {
		return nil, &myo.HubError{Op: "create", Err: myo.ErrHubUnavailable}
	}
	b := suite.NewBridge(&Options{Stream: true})

	suite.ErrorIs(b.Disabled(), myo.ErrHubUnavailable)
	suite.Equal([]string{"info error hub create failed: hub unavailable"}, suite.Output(), "reported once")

	suite.ErrorIs(b.Connect(context.Background()), ErrDisabled)
	suite.ErrorIs(b.Exec("vibrate"), ErrDisabled)
	suite.ErrorIs(b.Exec("dance"), ErrDisabled)
	b.Disconnect()
	b.RequestInfo()
	b.DumpDevices()
	b.EmitOnDemand()
	b.Vibrate("short")
	b.SetStream(false)
	b.SetDeviceSelector("Myo")

	suite.Empty(suite.Output(), "every command is a no-op")
	suite.True(b.Stream())
	suite.Equal("auto", b.DeviceSelector())
	suite.False(b.Running())
	suite.NoError(b.Close())
}

func (suite *BridgeTestSuite) TestSimulatedHubEndToEnd() {
	hubfactory.HubFactory = suite.originalFactory
	b := suite.NewBridge(&Options{
		Hub: hubfactory.HubOptions{
			Driver:     hubfactory.DriverSim,
			Synthesize: true,
			Devices:    []hubfactory.DeviceSpec{{Name: "Myo", Battery: 64, Rssi: -42}},
		},
		Stream:       true,
		Emg:          true,
		PollInterval: 5 * time.Millisecond,
	})
	suite.Require().NoError(b.Disabled())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	suite.Require().NoError(b.Exec("connect"))
	suite.Require().NoError(b.ExecContext(ctx, "connect"))

	seen := map[output.Channel]int{}
	var info []output.Message
	suite.Eventually(func() bool {
		for _, em := range suite.Recorder.Drain() {
			seen[em.Channel]++
			if em.Channel == output.Info {
				info = append(info, em.Message)
			}
		}
		return seen[output.EMG] >= 4 && seen[output.Orientation] >= 2
	}, 2*time.Second, 5*time.Millisecond)

	suite.Require().NotEmpty(output.WithTag(info, output.TagConnected))
	suite.Equal("connected Myo", output.WithTag(info, output.TagConnected)[0].String())

	suite.Require().NoError(b.Exec("info"))
	suite.Eventually(func() bool {
		for _, em := range suite.Recorder.Drain() {
			if em.Channel == output.Info {
				info = append(info, em.Message)
			}
		}
		return len(output.WithTag(info, output.TagBattery)) > 0 && len(output.WithTag(info, output.TagRssi)) > 0
	}, 2*time.Second, 5*time.Millisecond)
	suite.Equal("battery 64", output.WithTag(info, output.TagBattery)[0].String())
	suite.Equal("rssi -42", output.WithTag(info, output.TagRssi)[0].String())

	suite.Require().NoError(b.Exec("disconnect"))
	suite.False(b.Running())
}

func (suite *BridgeTestSuite) TestSynchronousConsumerMayCallBack() {
	hubfactory.HubFactory = suite.originalFactory

	var b *Bridge
	answered := make(chan struct{})
	var once sync.Once
	reactive := output.SinkFunc(func(ch output.Channel, msg output.Message) {
		if ch != output.Info {
			return
		}
		switch msg.Tag() {
		case output.TagConnected:
			// Runs on the pump goroutine while it dispatches events
			b.RequestInfo()
			b.DumpDevices()
			b.SetStream(false)
		case output.TagBattery:
			b.Disconnect()
			once.Do(func() { close(answered) })
		}
	})

	b = New(&Options{
		Hub: hubfactory.HubOptions{
			Driver:  hubfactory.DriverSim,
			Devices: []hubfactory.DeviceSpec{{Name: "Myo", Battery: 77}},
		},
		PollInterval: 5 * time.Millisecond,
	}, output.Multi{suite.Recorder, reactive}, suite.Logger)
	suite.Bridge = b
	suite.Require().NoError(b.Disabled())
	suite.Require().NoError(b.Connect(context.Background()))

	select {
	case <-answered:
	case <-time.After(2 * time.Second):
		suite.FailNow("consumer callback never completed")
	}
	suite.Eventually(func() bool { return !b.Running() }, time.Second, 5*time.Millisecond,
		"disconnect from the consumer ends the session")

	disconnected := make(chan struct{})
	go func() {
		b.Disconnect()
		close(disconnected)
	}()
	select {
	case <-disconnected:
	case <-time.After(time.Second):
		suite.FailNow("Disconnect blocked")
	}

	var info []output.Message
	for _, em := range suite.Recorder.Drain() {
		if em.Channel == output.Info {
			info = append(info, em.Message)
		}
	}
	suite.Equal("connected Myo", output.WithTag(info, output.TagConnected)[0].String())
	suite.GreaterOrEqual(len(output.WithTag(info, output.TagDevices)), 3)
	suite.Equal("battery 77", output.WithTag(info, output.TagBattery)[0].String())
}

// TestBridgeTestSuite runs the test suite using testify/suite
func TestBridgeTestSuite(t *testing.T) {
	suite.Run(t, new(BridgeTestSuite))
}
