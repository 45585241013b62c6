package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("stream: decoder closed")

// RecordError describes a single NDJSON record that failed to parse.
// Decoding continues past it.
type RecordError struct {
	Record int    // ordinal of the non-blank record within the stream
	Raw    string // record text without the trailing newline
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("stream record %d: %v", e.Record, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// TransportError wraps a failure of the underlying chunk source mid-stream.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "stream transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Option configures a Decoder.
type Option func(*Decoder)

// WithParseErrorHandler registers fn to be called for every malformed record.
func WithParseErrorHandler(fn func(*RecordError)) Option {
	return func(d *Decoder) { d.onParseError = fn }
}

// Decoder turns a ChunkSource carrying newline-delimited JSON into a pull-based
// sequence of Events. It is single-pass and not safe for concurrent use.
type Decoder struct {
	src  ChunkSource
	text *textDecoder

	// buffer holds text after the last newline seen; it never contains '\n'.
	buffer []byte
	ready  []Event
	err    error

	records     int
	eventIndex  int
	parseErrors []*RecordError

	onParseError func(*RecordError)
}

func NewDecoder(src ChunkSource, opts ...Option) *Decoder {
	d := &Decoder{
		src:  src,
		text: newTextDecoder(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next decoded event. It blocks only while waiting for the
// source to deliver a chunk. At the end of the stream it returns io.EOF; a
// source failure is returned as *TransportError, and context cancellation as
// the context's error. Once Next has returned an error it keeps returning it.
func (d *Decoder) Next(ctx context.Context) (Event, error) {
	for {
		if len(d.ready) > 0 {
			ev := d.ready[0]
			d.ready = d.ready[1:]
			return ev, nil
		}
		if d.err != nil {
			return Event{}, d.err
		}

		chunk, err := d.src.Next(ctx)
		if err != nil {
			d.finish(ctx, err)
			continue
		}
		d.ready = append(d.ready, d.ParseChunk(chunk)...)
	}
}

// All ranges over the remaining events. Iteration stops silently at the end of
// the stream; any other error is yielded once as the final element.
func (d *Decoder) All(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := d.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// ParseChunk decodes one chunk and returns the complete records it finished.
// Text after the last newline is kept for the next call.
func (d *Decoder) ParseChunk(chunk []byte) []Event {
	text := d.text.decode(chunk)

	// The carried buffer has no newline, so only the new text is searched.
	idx := strings.LastIndexByte(text, '\n')
	if idx == -1 {
		d.buffer = append(d.buffer, text...)
		return nil
	}
	ready := string(append(d.buffer, text[:idx]...))
	d.buffer = append(d.buffer[:0], text[idx+1:]...)

	var events []Event
	for _, line := range strings.Split(ready, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		d.records++

		var raw json.RawMessage
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			d.recordParseError(line, err)
			continue
		}

		d.eventIndex++
		ev := Classify(raw)
		ev.Index = d.eventIndex
		events = append(events, ev)
	}
	return events
}

// ParseErrors returns the malformed records seen so far.
func (d *Decoder) ParseErrors() []*RecordError {
	out := make([]*RecordError, len(d.parseErrors))
	copy(out, d.parseErrors)
	return out
}

// Buffered returns the unterminated text carried over to the next chunk.
func (d *Decoder) Buffered() string {
	return string(d.buffer)
}

// Close stops decoding and releases the source. Pending events are dropped.
func (d *Decoder) Close() error {
	if d.err == nil || errors.Is(d.err, io.EOF) {
		d.err = ErrClosed
	}
	d.ready = nil
	d.buffer = nil
	return d.src.Close()
}

func (d *Decoder) recordParseError(line string, err error) {
	recErr := &RecordError{Record: d.records, Raw: line, Err: err}
	d.parseErrors = append(d.parseErrors, recErr)

	log.Warn().
		Err(err).
		Int("record", recErr.Record).
		Str("raw", truncate(line, 256)).
		Msg("skipping malformed stream record")

	if d.onParseError != nil {
		d.onParseError(recErr)
	}
}

func (d *Decoder) finish(ctx context.Context, err error) {
	switch {
	case errors.Is(err, io.EOF):
		d.err = io.EOF
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		d.err = err
	default:
		d.err = &TransportError{Err: err}
	}

	// A record without a terminating newline is not complete and is dropped.
	if dropped := len(d.buffer) + d.text.pendingLen(); dropped > 0 {
		log.Debug().
			Int("bytes", dropped).
			Msg("discarding unterminated trailing stream data")
	}
	d.buffer = nil

	if closeErr := d.src.Close(); closeErr != nil {
		log.Debug().Err(closeErr).Msg("closing stream source")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
