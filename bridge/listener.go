package bridge

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/myolink/internal/myo"
	"github.com/srg/myolink/internal/output"
)

// listener turns hub events into registry/sensor updates and output messages.
//
// Callbacks are delivered by Hub.Run on the pump goroutine, which holds the
// session lock, so they must never take it again.
type listener struct {
	b *Bridge
}

var _ myo.Listener = (*listener)(nil)

func (l *listener) OnPair(dev myo.Device, _ uint64, fw myo.FirmwareVersion) {
	l.b.logger.WithFields(logrus.Fields{
		"device":   dev.Name(),
		"firmware": fw.String(),
	}).Debug("Device paired")
}

func (l *listener) OnUnpair(dev myo.Device, _ uint64) {
	l.remove(dev, "unpaired")
}

func (l *listener) OnConnect(dev myo.Device, _ uint64, fw myo.FirmwareVersion) {
	b := l.b
	if b.registry.Add(dev) {
		b.sensors.Reset()
		b.applyEmgPolicy(dev)
	}
	b.sensors.ClearEMG()

	b.logger.WithFields(logrus.Fields{
		"device":   dev.Name(),
		"firmware": fw.String(),
		"bound":    b.registry.IsBound(dev),
	}).Info("Device connected")

	b.emitConnected()
	b.emitDevices()
}

func (l *listener) OnDisconnect(dev myo.Device, _ uint64) {
	l.remove(dev, "disconnected")
}

func (l *listener) remove(dev myo.Device, event string) {
	b := l.b
	if !b.registry.Contains(dev) {
		return
	}

	if b.registry.Remove(dev) {
		b.sensors.Reset()
		if next := b.registry.Bound(); next != nil {
			b.applyEmgPolicy(next)
		}
	}

	b.logger.WithFields(logrus.Fields{
		"device": dev.Name(),
		"event":  event,
	}).Info("Device left")

	b.emitConnected()
	b.emitDevices()
}

func (l *listener) OnArmSync(dev myo.Device, _ uint64, arm myo.Arm, dir myo.XDirection, rotation float32, warmup myo.WarmupState) {
	if !l.b.registry.IsBound(dev) {
		return
	}
	l.b.sink.Emit(output.Info, output.Tagged(output.TagArmSync,
		output.Int(1),
		output.Sym(arm.String()),
		output.Sym(dir.String()),
		output.Float32(rotation),
		output.Sym(warmup.String()),
	))
}

func (l *listener) OnArmUnsync(myo.Device, uint64) {
	l.b.sink.Emit(output.Info, output.Tagged(output.TagArmSync, output.Int(0)))
}

func (l *listener) OnPose(dev myo.Device, _ uint64, pose myo.Pose) {
	if !l.b.registry.IsBound(dev) {
		return
	}
	l.b.sink.Emit(output.Poses, output.Message{output.Sym(pose.String())})
}

func (l *listener) OnOrientationData(dev myo.Device, _ uint64, q myo.Quaternion) {
	b := l.b
	if !b.registry.IsBound(dev) {
		return
	}
	b.sensors.SetOrientation(q.X, q.Y, q.Z, q.W)
	if b.stream.Load() {
		b.emitOrientation()
	}
}

func (l *listener) OnAccelerometerData(dev myo.Device, _ uint64, accel myo.Vector3) {
	b := l.b
	if !b.registry.IsBound(dev) {
		return
	}
	b.sensors.SetAcceleration(accel.X, accel.Y, accel.Z)
	if b.stream.Load() {
		b.emitAcceleration()
	}
}

func (l *listener) OnGyroscopeData(dev myo.Device, _ uint64, gyro myo.Vector3) {
	b := l.b
	if !b.registry.IsBound(dev) {
		return
	}
	b.sensors.SetAngularVelocity(gyro.X, gyro.Y, gyro.Z)
	if b.stream.Load() {
		b.emitAngularVelocity()
	}
}

func (l *listener) OnEmgData(dev myo.Device, ts uint64, emg [8]int8) {
	b := l.b
	if !b.registry.IsBound(dev) {
		return
	}
	streaming := b.stream.Load()
	if !b.sensors.AppendEMG(ts, emg, streaming) {
		return
	}
	if streaming {
		frame := b.sensors.LatestEMG()
		b.sink.Emit(output.EMG, output.Floats(frame[:]...))
	}
}

func (l *listener) OnRssi(dev myo.Device, _ uint64, rssi int8) {
	if !l.b.registry.IsBound(dev) {
		return
	}
	l.b.sink.Emit(output.Info, output.Tagged(output.TagRssi, output.Int(int64(rssi))))
}

func (l *listener) OnBatteryLevelReceived(dev myo.Device, _ uint64, level uint8) {
	if !l.b.registry.IsBound(dev) {
		return
	}
	l.b.sink.Emit(output.Info, output.Tagged(output.TagBattery, output.Int(int64(level))))
}
