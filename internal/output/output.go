// Package output models the host side of the bridge: a fixed set of output
// channels, each accepting ordered tuples of symbols and numbers.
package output

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Channel identifies one host output
type Channel int

const (
	Info Channel = iota
	Poses
	EMG
	Orientation
	AngularVelocity
	Acceleration
)

var channelNames = [...]string{
	Info:            "info",
	Poses:           "pose",
	EMG:             "emg",
	Orientation:     "quat",
	AngularVelocity: "gyro",
	Acceleration:    "accel",
}

func (c Channel) String() string {
	if c >= 0 && int(c) < len(channelNames) {
		return channelNames[c]
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// Channels lists every channel in outlet order
var Channels = []Channel{Info, Poses, EMG, Orientation, AngularVelocity, Acceleration}

// Symbolic tags leading info-channel messages
const (
	TagDevices   = "devices"
	TagConnected = "connected"
	TagArmSync   = "armsync"
	TagRssi      = "rssi"
	TagBattery   = "battery"
	TagError     = "error"
	TagWarning   = "warning"
)

// AtomKind is the type of a message element
type AtomKind int

const (
	KindSymbol AtomKind = iota
	KindInt
	KindFloat
)

// Atom is one element of a message
type Atom struct {
	Kind  AtomKind
	Sym   string
	Int   int64
	Float float64
}

func Sym(s string) Atom      { return Atom{Kind: KindSymbol, Sym: s} }
func Int(i int64) Atom       { return Atom{Kind: KindInt, Int: i} }
func Float(f float64) Atom   { return Atom{Kind: KindFloat, Float: f} }
func Float32(f float32) Atom { return Atom{Kind: KindFloat, Float: float64(f)} }

func (a Atom) String() string {
	switch a.Kind {
	case KindInt:
		return strconv.FormatInt(a.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(a.Float, 'f', -1, 32)
	default:
		return a.Sym
	}
}

// MarshalJSON encodes symbols as strings and numbers as numbers.
// NaN and infinities have no JSON form and encode as null.
func (a Atom) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case KindInt:
		return json.Marshal(a.Int)
	case KindFloat:
		if math.IsNaN(a.Float) || math.IsInf(a.Float, 0) {
			return []byte("null"), nil
		}
		return []byte(strconv.FormatFloat(a.Float, 'f', -1, 32)), nil
	default:
		return json.Marshal(a.Sym)
	}
}

// Message is an ordered tuple delivered on a channel
type Message []Atom

func (m Message) String() string {
	parts := make([]string, len(m))
	for i, a := range m {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}

// Tag returns the leading symbol of the message, if any
func (m Message) Tag() string {
	if len(m) > 0 && m[0].Kind == KindSymbol {
		return m[0].Sym
	}
	return ""
}

// Floats builds a numeric message
func Floats[T ~float32 | ~float64](vals ...T) Message {
	m := make(Message, len(vals))
	for i, v := range vals {
		m[i] = Float(float64(v))
	}
	return m
}

// Tagged builds a message starting with a symbolic tag
func Tagged(tag string, atoms ...Atom) Message {
	return append(Message{Sym(tag)}, atoms...)
}

// Sink receives messages. Emit is called synchronously from the goroutine
// producing the message and must not retain msg.
type Sink interface {
	Emit(ch Channel, msg Message)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ch Channel, msg Message)

func (f SinkFunc) Emit(ch Channel, msg Message) { f(ch, msg) }

// Multi fans each message out to several sinks
type Multi []Sink

func (m Multi) Emit(ch Channel, msg Message) {
	for _, s := range m {
		s.Emit(ch, msg)
	}
}

// Discard drops every message
var Discard Sink = SinkFunc(func(Channel, Message) {})
