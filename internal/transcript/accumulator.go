package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/namikmesic/chatstream/internal/stream"
	"github.com/rs/zerolog/log"
)

// EmptySubmissionNotice is the user-facing text published when a blank
// message is submitted.
const EmptySubmissionNotice = "Please enter a message before sending."

type Option func(*Accumulator)

func WithSink(s Sink) Option {
	return func(a *Accumulator) { a.sink = s }
}

func WithHistory(h History) Option {
	return func(a *Accumulator) { a.history = h }
}

// WithDecoderOptions passes options to the per-turn stream decoder.
func WithDecoderOptions(opts ...stream.Option) Option {
	return func(a *Accumulator) { a.decoderOpts = append(a.decoderOpts, opts...) }
}

// Accumulator owns the transcript of one session. Turns run on the caller's
// goroutine; Snapshot and Phase may be called from any goroutine.
type Accumulator struct {
	session     Session
	opener      Opener
	sink        Sink
	history     History
	decoderOpts []stream.Option

	mu    sync.Mutex
	state State
	phase Phase
}

func New(session Session, opener Opener, opts ...Option) *Accumulator {
	a := &Accumulator{
		session: session,
		opener:  opener,
		sink:    nopSink{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Accumulator) Session() Session {
	return a.session
}

func (a *Accumulator) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.clone()
}

func (a *Accumulator) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// Submit runs one turn: it appends userText as a user message, streams the
// assistant reply into StreamingText and folds it into the transcript once the
// stream ends. It returns when the turn is over.
//
// A failure to open the stream leaves the transcript untouched. A failure
// after streaming began returns a *TurnError; the partial reply is kept.
func (a *Accumulator) Submit(ctx context.Context, userText string) error {
	if strings.TrimSpace(userText) == "" {
		log.Warn().Str("session_id", a.session.ID.String()).Msg("ignoring empty submission")
		a.publish(Update{Kind: UpdateNotice, State: a.Snapshot(), Notice: EmptySubmissionNotice})
		return ErrEmptySubmission
	}

	userMsg := NewMessage(RoleUser, userText)

	a.mu.Lock()
	if a.phase != PhaseIdle {
		a.mu.Unlock()
		return ErrTurnInProgress
	}
	a.phase = PhaseSubmitted
	req := Request{
		ModelID:  a.session.ModelID,
		System:   a.session.SystemPrompt,
		Messages: append(cloneMessages(a.state.Messages), userMsg),
	}
	a.mu.Unlock()

	src, err := a.opener.Open(ctx, req)
	if err != nil {
		a.mu.Lock()
		a.phase = PhaseIdle
		a.mu.Unlock()

		log.Error().Err(err).Str("session_id", a.session.ID.String()).Msg("failed to open stream")
		a.publish(Update{Kind: UpdateNotice, State: a.Snapshot(), Error: err.Error()})
		return fmt.Errorf("open stream: %w", err)
	}

	turnID := uuid.New()

	a.mu.Lock()
	seq := len(a.state.Messages)
	a.state.Messages = append(a.state.Messages, userMsg)
	a.state.StreamingText = ""
	a.state.IsStreaming = true
	snap := a.state.clone()
	a.mu.Unlock()

	a.publish(Update{
		Kind:     UpdateTurnStarted,
		TurnID:   turnID,
		State:    snap,
		Appended: []Message{userMsg},
		FirstSeq: seq,
	})

	return a.consume(ctx, turnID, seq, src)
}

// Reset clears the transcript. It is rejected while a turn is running.
func (a *Accumulator) Reset() error {
	a.mu.Lock()
	if a.phase != PhaseIdle {
		a.mu.Unlock()
		return ErrTurnInProgress
	}
	a.state = State{}
	a.mu.Unlock()

	a.publish(Update{Kind: UpdateReset})
	return nil
}

// Restore replaces the transcript with the messages stored in History.
func (a *Accumulator) Restore(ctx context.Context) error {
	if a.history == nil {
		return nil
	}

	a.mu.Lock()
	if a.phase != PhaseIdle {
		a.mu.Unlock()
		return ErrTurnInProgress
	}
	a.mu.Unlock()

	msgs, err := a.history.LoadMessages(ctx, a.session.ID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseIdle {
		return ErrTurnInProgress
	}
	a.state = State{Messages: cloneMessages(msgs)}
	if n := len(msgs); n > 0 && msgs[n-1].Role == RoleAssistant {
		a.state.StreamingText = msgs[n-1].Text()
	}
	return nil
}

func (a *Accumulator) consume(ctx context.Context, turnID uuid.UUID, seq int, src stream.ChunkSource) error {
	dec := stream.NewDecoder(src, a.decoderOpts...)
	defer dec.Close()

	start := time.Now()
	var (
		usage      *stream.Usage
		stopReason string
		streamErr  error
	)

	for {
		ev, err := dec.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				streamErr = err
			}
			break
		}

		switch ev.Kind {
		case stream.KindContentDelta:
			delta, _ := ev.ContentDelta()
			a.applyDelta(turnID, delta.Text)
			continue
		case stream.KindMetadata:
			meta, _ := ev.Metadata()
			u := meta.Usage
			usage = &u
		case stream.KindMessageStop:
			stop, _ := ev.MessageStop()
			stopReason = stop.StopReason
		}
		a.markStreaming()
	}

	a.mu.Lock()
	a.phase = PhaseFinalizing
	a.state.Messages = append(a.state.Messages, NewMessage(RoleAssistant, a.state.StreamingText))
	a.state.IsStreaming = false
	snap := a.state.clone()
	a.phase = PhaseIdle
	a.mu.Unlock()

	update := Update{
		Kind:        UpdateTurnFinished,
		TurnID:      turnID,
		State:       snap,
		Appended:    cloneMessages(snap.Messages[seq:]),
		FirstSeq:    seq,
		Usage:       usage,
		StopReason:  stopReason,
		ParseErrors: len(dec.ParseErrors()),
		DurationMs:  time.Since(start).Milliseconds(),
	}
	if streamErr != nil {
		update.Error = streamErr.Error()
	}
	a.publish(update)

	logEvent := log.Info()
	if streamErr != nil {
		logEvent = log.Warn().Err(streamErr)
	}
	logEvent.
		Str("session_id", a.session.ID.String()).
		Str("turn_id", turnID.String()).
		Int("chars", len(snap.StreamingText)).
		Int("parse_errors", update.ParseErrors).
		Str("stop_reason", stopReason).
		Dur("duration", time.Since(start)).
		Msg("turn finished")

	if streamErr != nil {
		return &TurnError{TurnID: turnID, Partial: snap.StreamingText, Err: streamErr}
	}
	return nil
}

func (a *Accumulator) markStreaming() {
	a.mu.Lock()
	if a.phase == PhaseSubmitted {
		a.phase = PhaseStreaming
	}
	a.mu.Unlock()
}

func (a *Accumulator) applyDelta(turnID uuid.UUID, text string) {
	a.mu.Lock()
	if a.phase == PhaseSubmitted {
		a.phase = PhaseStreaming
	}
	if text == "" {
		a.mu.Unlock()
		return
	}
	a.state.StreamingText += text

	// The in-progress assistant message is visible as the last message.
	snap := a.state.clone()
	snap.Messages = append(snap.Messages, NewMessage(RoleAssistant, a.state.StreamingText))
	a.mu.Unlock()

	a.publish(Update{Kind: UpdateDelta, TurnID: turnID, State: snap, Delta: text})
}

func (a *Accumulator) publish(u Update) {
	u.SessionID = a.session.ID
	u.ModelID = a.session.ModelID
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now()
	}
	a.sink.Publish(u)
}
