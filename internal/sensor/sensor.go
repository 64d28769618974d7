// Package sensor holds the cached samples of the bound armband.
package sensor

const (
	// EMGChannels is the number of EMG pods on the armband
	EMGChannels = 8

	// MaxEMGFrames bounds the EMG frame queue
	MaxEMGFrames = 4

	emgScale = 127.0
)

// EMGFrame is one normalized EMG sample, each channel in [-1, 1]
type EMGFrame [EMGChannels]float32

// State caches the most recent samples received from the bound device.
//
// State is not synchronized. Callers serialize access with the session pump
// lock: listener callbacks already run under it and on-demand readers take it.
type State struct {
	emgFrames    [MaxEMGFrames]EMGFrame
	emgCount     int
	emgTimestamp uint64
	acceleration [3]float32
	angular      [3]float32
	orientation  [4]float32
}

// New returns a zeroed State
func New() *State {
	return &State{}
}

// NormalizeEMG scales raw signed EMG magnitudes to [-1, 1]
func NormalizeEMG(raw [EMGChannels]int8) EMGFrame {
	var f EMGFrame
	for i, v := range raw {
		f[i] = float32(v) / emgScale
	}
	return f
}

// Reset zeroes every cached field
func (s *State) Reset() {
	*s = State{}
}

// ClearEMG zeroes the EMG frames and empties the queue
func (s *State) ClearEMG() {
	s.emgFrames = [MaxEMGFrames]EMGFrame{}
	s.emgCount = 0
}

// AppendEMG queues a raw EMG sample received at ts.
//
// The sample is dropped when the queue already holds MaxEMGFrames frames.
// Otherwise the queue restarts when streaming is on or when ts differs from
// the last stored timestamp, so in pull mode only the sub-frames sharing one
// timestamp accumulate. It reports whether the sample was stored.
func (s *State) AppendEMG(ts uint64, raw [EMGChannels]int8, streaming bool) bool {
	if s.emgCount == MaxEMGFrames {
		return false
	}
	if streaming || ts != s.emgTimestamp {
		s.emgCount = 0
	}
	s.emgTimestamp = ts
	s.emgFrames[s.emgCount] = NormalizeEMG(raw)
	s.emgCount++
	return true
}

// ConsumeEMG returns the most recent queued frame. The frame is dequeued only
// if others remain, so the queue never drains below one frame once filled.
// With nothing queued it returns the zero frame.
func (s *State) ConsumeEMG() EMGFrame {
	if s.emgCount == 0 {
		return s.emgFrames[0]
	}
	f := s.emgFrames[s.emgCount-1]
	if s.emgCount > 1 {
		s.emgCount--
	}
	return f
}

// LatestEMG returns the most recent frame without dequeuing it
func (s *State) LatestEMG() EMGFrame {
	if s.emgCount == 0 {
		return s.emgFrames[0]
	}
	return s.emgFrames[s.emgCount-1]
}

// EMGFrameCount returns the number of queued EMG frames
func (s *State) EMGFrameCount() int {
	return s.emgCount
}

func (s *State) SetAcceleration(x, y, z float32) {
	s.acceleration = [3]float32{x, y, z}
}

func (s *State) SetAngularVelocity(x, y, z float32) {
	s.angular = [3]float32{x, y, z}
}

func (s *State) SetOrientation(x, y, z, w float32) {
	s.orientation = [4]float32{x, y, z, w}
}

// Acceleration in g
func (s *State) Acceleration() [3]float32 {
	return s.acceleration
}

// AngularVelocity in deg/s
func (s *State) AngularVelocity() [3]float32 {
	return s.angular
}

// Orientation as a quaternion x, y, z, w
func (s *State) Orientation() [4]float32 {
	return s.orientation
}
