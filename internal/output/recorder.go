package output

import (
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// Emission is one message recorded on a channel
type Emission struct {
	Channel Channel
	Message Message
}

// Recorder is a Sink keeping the most recent emissions in an overlapped ring
// buffer: when full, the oldest emissions are overwritten.
//
// Safe for concurrent Emit and Drain.
type Recorder struct {
	buf         mpmc.RichOverlappedRingBuffer[Emission]
	recorded    int64
	overwritten int64
}

// NewRecorder creates a Recorder holding up to capacity emissions
func NewRecorder(capacity uint32) *Recorder {
	if capacity == 0 {
		capacity = 1024
	}
	return &Recorder{buf: mpmc.NewOverlappedRingBuffer[Emission](capacity)}
}

func (r *Recorder) Emit(ch Channel, msg Message) {
	cp := make(Message, len(msg))
	copy(cp, msg)
	overwrites, err := r.buf.EnqueueM(Emission{Channel: ch, Message: cp})
	if err != nil {
		return
	}
	atomic.AddInt64(&r.recorded, 1)
	atomic.AddInt64(&r.overwritten, int64(overwrites))
}

// Drain removes and returns every buffered emission, oldest first
func (r *Recorder) Drain() []Emission {
	var out []Emission
	for !r.buf.IsEmpty() {
		em, err := r.buf.Dequeue()
		if err != nil {
			break
		}
		out = append(out, em)
	}
	return out
}

// Recorded returns how many emissions were accepted since creation
func (r *Recorder) Recorded() int64 {
	return atomic.LoadInt64(&r.recorded)
}

// Overwritten returns how many emissions were lost to overflow
func (r *Recorder) Overwritten() int64 {
	return atomic.LoadInt64(&r.overwritten)
}

// OnChannel filters emissions to one channel, keeping their order
func OnChannel(ems []Emission, ch Channel) []Message {
	var out []Message
	for _, em := range ems {
		if em.Channel == ch {
			out = append(out, em.Message)
		}
	}
	return out
}

// WithTag filters messages by leading tag
func WithTag(msgs []Message, tag string) []Message {
	var out []Message
	for _, m := range msgs {
		if m.Tag() == tag {
			out = append(out, m)
		}
	}
	return out
}
