package output_test

import (
	"bytes"
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/srg/myolink/internal/output"
	"github.com/srg/myolink/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_String(t *testing.T) {
	tests := []struct {
		name     string
		msg      output.Message
		expected string
	}{
		{
			name:     "connected with name",
			msg:      output.Tagged(output.TagConnected, output.Sym("Myo")),
			expected: "connected Myo",
		},
		{
			name:     "connected none",
			msg:      output.Tagged(output.TagConnected, output.Int(0)),
			expected: "connected 0",
		},
		{
			name:     "armsync",
			msg:      output.Tagged(output.TagArmSync, output.Int(1), output.Sym("Left"), output.Sym("TowardWrist"), output.Float32(0.25), output.Sym("Warm")),
			expected: "armsync 1 Left TowardWrist 0.25 Warm",
		},
		{
			name:     "float32 values are printed at float32 precision",
			msg:      output.Floats(float32(64) / 127),
			expected: "0.503937",
		},
		{
			name:     "empty",
			msg:      output.Message{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.msg.String())
		})
	}
}

func TestMessage_Tag(t *testing.T) {
	assert.Equal(t, "rssi", output.Tagged(output.TagRssi, output.Int(-40)).Tag())
	assert.Equal(t, "", output.Floats(1.0, 2.0).Tag())
	assert.Equal(t, "", output.Message(nil).Tag())
}

func TestChannel_String(t *testing.T) {
	names := make([]string, 0, len(output.Channels))
	for _, ch := range output.Channels {
		names = append(names, ch.String())
	}
	assert.Equal(t, []string{"info", "pose", "emg", "quat", "gyro", "accel"}, names)
	assert.Equal(t, "channel(42)", output.Channel(42).String())
}

func TestMulti(t *testing.T) {
	a := output.NewRecorder(16)
	b := output.NewRecorder(16)
	sink := output.Multi{a, b, output.Discard}

	sink.Emit(output.Poses, output.Message{output.Sym("fist")})

	for _, r := range []*output.Recorder{a, b} {
		ems := r.Drain()
		require.Len(t, ems, 1)
		assert.Equal(t, output.Poses, ems[0].Channel)
		assert.Equal(t, "fist", ems[0].Message.String())
	}
}

func TestRecorder(t *testing.T) {
	t.Run("drains in order and copies messages", func(t *testing.T) {
		r := output.NewRecorder(16)
		msg := output.Floats(1.0, 2.0, 3.0)
		r.Emit(output.Acceleration, msg)
		msg[0] = output.Float(9)
		r.Emit(output.AngularVelocity, output.Floats(4.0, 5.0, 6.0))

		ems := r.Drain()
		require.Len(t, ems, 2)
		assert.Equal(t, "1 2 3", ems[0].Message.String())
		assert.Equal(t, output.AngularVelocity, ems[1].Channel)
		assert.Empty(t, r.Drain())
		assert.EqualValues(t, 2, r.Recorded())
	})

	t.Run("overflow overwrites the oldest", func(t *testing.T) {
		r := output.NewRecorder(4)
		for i := 0; i < 10; i++ {
			r.Emit(output.Info, output.Message{output.Int(int64(i))})
		}
		ems := r.Drain()
		require.NotEmpty(t, ems)
		assert.Equal(t, "9", ems[len(ems)-1].Message.String(), "newest emission survives")
		assert.Less(t, len(ems), 10)
		assert.EqualValues(t, 10, r.Recorded())
	})

	t.Run("filters", func(t *testing.T) {
		r := output.NewRecorder(16)
		r.Emit(output.Info, output.Tagged(output.TagDevices, output.Sym("A")))
		r.Emit(output.EMG, output.Floats(0.0))
		r.Emit(output.Info, output.Tagged(output.TagConnected, output.Sym("A")))

		info := output.OnChannel(r.Drain(), output.Info)
		require.Len(t, info, 2)
		connected := output.WithTag(info, output.TagConnected)
		require.Len(t, connected, 1)
		assert.Equal(t, "connected A", connected[0].String())
	})
}

func TestWriterSink_Text(t *testing.T) {
	var buf syncBuffer
	w := output.NewWriterSink(context.Background(), &buf, nil)

	w.Emit(output.Info, output.Tagged(output.TagConnected, output.Sym("Myo")))
	w.Emit(output.Orientation, output.Floats(0.0, 0.0, 0.0, 1.0))
	w.Emit(output.Poses, output.Message{output.Sym("waveIn")})
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "Close is idempotent")

	assert.Equal(t, "info connected Myo\nquat 0 0 0 1\npose waveIn\n", buf.String())
	stats := w.Stats()
	assert.EqualValues(t, 3, stats.Lines)
	assert.EqualValues(t, 0, stats.DroppedLines)
	assert.EqualValues(t, buf.Len(), stats.Bytes)

	w.Emit(output.Info, output.Message{output.Sym("late")})
	assert.EqualValues(t, 3, w.Stats().Lines, "emits after Close are ignored")
}

func TestWriterSink_JSON(t *testing.T) {
	var buf syncBuffer
	w := output.NewWriterSink(context.Background(), &buf, &output.WriterOptions{Format: output.FormatJSON})

	w.Emit(output.Info, output.Tagged(output.TagBattery, output.Int(87)))
	w.Emit(output.EMG, output.Floats(1.0, -1.0, 0.5))
	require.NoError(t, w.Close())

	testutils.NewJSONAsserter(t).AssertLines(buf.String(), `[
		{"channel": "info", "values": ["battery", 87]},
		{"channel": "emg", "values": [1, -1, 0.5]}
	]`)
}

func TestWriterSink_JSONNonFiniteFloats(t *testing.T) {
	var buf syncBuffer
	w := output.NewWriterSink(context.Background(), &buf, &output.WriterOptions{Format: output.FormatJSON})

	w.Emit(output.Acceleration, output.Floats(math.NaN(), math.Inf(1), 0.5))
	require.NoError(t, w.Close())

	assert.Equal(t, `{"channel":"accel","values":[null,null,0.5]}`+"\n", buf.String())
	assert.EqualValues(t, 1, w.Stats().Lines)
}

func TestWriterSink_ColorsWarnings(t *testing.T) {
	var buf syncBuffer
	w := output.NewWriterSink(context.Background(), &buf, &output.WriterOptions{Color: true})

	w.Emit(output.Info, output.Tagged(output.TagWarning, output.Sym("waiting")))
	w.Emit(output.Info, output.Tagged(output.TagConnected, output.Int(0)))
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "\x1b[33m", "warning is yellow")
	assert.Equal(t, "info connected 0", lines[1])
}

func TestWriterSink_DropsWholeLinesWhenFull(t *testing.T) {
	blocked := newBlockingWriter()
	w := output.NewWriterSink(context.Background(), blocked, &output.WriterOptions{BufferSize: 64})

	const total = 100
	for i := 0; i < total; i++ {
		w.Emit(output.Acceleration, output.Floats(0.125, 0.25, 0.5))
	}

	stats := w.Stats()
	assert.Greater(t, stats.DroppedLines, uint64(0))
	assert.EqualValues(t, total, stats.Lines+stats.DroppedLines)

	blocked.release()
	require.NoError(t, w.Close())

	for _, line := range strings.Split(strings.TrimSpace(blocked.String()), "\n") {
		assert.Equal(t, "accel 0.125 0.25 0.5", line, "no partial lines")
	}
}

func TestWriterSink_CloseFlushesAfterCancel(t *testing.T) {
	var buf syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	w := output.NewWriterSink(ctx, &buf, nil)

	w.Emit(output.Poses, output.Message{output.Sym("fist")})
	cancel()
	time.Sleep(10 * time.Millisecond)
	w.Emit(output.Poses, output.Message{output.Sym("rest")})
	require.NoError(t, w.Close())

	assert.Equal(t, "pose fist\npose rest\n", buf.String())
}

func TestParseFormat(t *testing.T) {
	f, err := output.ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, output.FormatJSON, f)

	f, err = output.ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, output.FormatText, f)

	_, err = output.ParseFormat("xml")
	assert.Error(t, err)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// blockingWriter blocks every Write until released
type blockingWriter struct {
	syncBuffer
	gate chan struct{}
	once sync.Once
}

func newBlockingWriter() *blockingWriter {
	return &blockingWriter{gate: make(chan struct{})}
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	select {
	case <-w.gate:
	case <-time.After(5 * time.Second):
	}
	return w.syncBuffer.Write(p)
}

func (w *blockingWriter) release() {
	w.once.Do(func() { close(w.gate) })
}
