package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/myolink/internal/groutine"
	"golang.org/x/term"
)

// Format selects how WriterSink renders messages
type Format int

const (
	FormatText Format = iota // "<channel> <atoms...>"
	FormatJSON               // {"channel":"emg","values":[...]}
)

// ParseFormat converts a CLI/config format name
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("invalid output format %q: use text or json", s)
	}
}

const (
	// DefaultWriterBufferSize is the byte capacity of the WriterSink queue
	DefaultWriterBufferSize = 64 * 1024

	drainChunkSize = 4096
)

// WriterOptions configures a WriterSink. Zero values use defaults.
type WriterOptions struct {
	Format     Format
	BufferSize int            // queue capacity in bytes (0 = DefaultWriterBufferSize)
	Color      bool           // colorize warnings and errors
	Logger     *logrus.Logger // optional
}

// WriterStats counts WriterSink traffic
type WriterStats struct {
	Lines        uint64
	DroppedLines uint64
	Bytes        uint64
}

// WriterSink renders messages as lines and writes them to an io.Writer.
//
// Emit only formats the line and copies it into a byte ring buffer; a
// background goroutine drains the buffer to the writer. A slow writer
// therefore never stalls the hub pump. Lines that do not fit are dropped
// whole and counted.
type WriterSink struct {
	out    io.Writer
	format Format
	logger *logrus.Logger

	mu  sync.Mutex // serializes producers so a line is queued whole
	buf *ringbuffer.RingBuffer

	warnColor *color.Color
	errColor  *color.Color

	wake   chan struct{}
	stop   chan struct{}
	task   *groutine.Task
	closed atomic.Bool

	lines   atomic.Uint64
	dropped atomic.Uint64
	bytes   atomic.Uint64
}

// NewWriterSink creates a WriterSink and starts its drain goroutine.
// Close must be called to flush and stop it.
func NewWriterSink(ctx context.Context, out io.Writer, opts *WriterOptions) *WriterSink {
	if opts == nil {
		opts = &WriterOptions{}
	}
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultWriterBufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	w := &WriterSink{
		out:    out,
		format: opts.Format,
		logger: logger,
		buf:    ringbuffer.New(size),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	if opts.Color {
		w.warnColor = color.New(color.FgYellow)
		w.warnColor.EnableColor()
		w.errColor = color.New(color.FgRed)
		w.errColor.EnableColor()
	}

	w.task = groutine.Go(ctx, "output-writer", w.drainLoop)
	return w
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (w *WriterSink) Emit(ch Channel, msg Message) {
	if w.closed.Load() {
		return
	}

	line, err := w.render(ch, msg)
	if err != nil {
		w.logger.WithError(err).WithField("channel", ch).Warn("Failed to render output message")
		return
	}

	w.mu.Lock()
	if w.buf.Free() < len(line) {
		w.mu.Unlock()
		w.dropped.Add(1)
		return
	}
	n, err := w.buf.Write(line)
	w.mu.Unlock()
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		w.logger.WithError(err).Warn("Output queue write failed")
	}
	if n < len(line) {
		w.dropped.Add(1)
		return
	}
	w.lines.Add(1)

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Close flushes queued lines and stops the drain goroutine. Idempotent.
func (w *WriterSink) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(w.stop)
	w.task.Wait()
	// lines queued after ctx ended the drain loop
	w.flush(make([]byte, drainChunkSize))
	return nil
}

// Stats returns a snapshot of the counters
func (w *WriterSink) Stats() WriterStats {
	return WriterStats{
		Lines:        w.lines.Load(),
		DroppedLines: w.dropped.Load(),
		Bytes:        w.bytes.Load(),
	}
}

func (w *WriterSink) drainLoop(ctx context.Context) {
	chunk := make([]byte, drainChunkSize)
	for {
		select {
		case <-w.wake:
			w.flush(chunk)
		case <-w.stop:
			w.flush(chunk)
			return
		case <-ctx.Done():
			w.flush(chunk)
			return
		}
	}
}

func (w *WriterSink) flush(chunk []byte) {
	for {
		n, err := w.buf.TryRead(chunk)
		if n == 0 || errors.Is(err, ringbuffer.ErrIsEmpty) {
			return
		}
		written, werr := w.out.Write(chunk[:n])
		w.bytes.Add(uint64(written))
		if werr != nil {
			w.logger.WithError(werr).Debug("Output writer failed")
			return
		}
	}
}

type jsonLine struct {
	Channel string  `json:"channel"`
	Values  Message `json:"values"`
}

func (w *WriterSink) render(ch Channel, msg Message) ([]byte, error) {
	if w.format == FormatJSON {
		data, err := json.Marshal(jsonLine{Channel: ch.String(), Values: msg})
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}

	line := ch.String()
	if len(msg) > 0 {
		line += " " + msg.String()
	}
	if ch == Info {
		switch msg.Tag() {
		case TagWarning:
			if w.warnColor != nil {
				line = w.warnColor.Sprint(line)
			}
		case TagError:
			if w.errColor != nil {
				line = w.errColor.Sprint(line)
			}
		}
	}
	return []byte(line + "\n"), nil
}
