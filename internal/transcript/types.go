package transcript

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/namikmesic/chatstream/internal/stream"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ContentBlock struct {
	Text string `json:"text"`
}

// Message is one chat message in the role/content shape the model endpoint expects.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

func NewMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Text: text}}}
}

// Text joins the text of all content blocks.
func (m Message) Text() string {
	if len(m.Content) == 1 {
		return m.Content[0].Text
	}
	var b strings.Builder
	for _, c := range m.Content {
		b.WriteString(c.Text)
	}
	return b.String()
}

// State is the visible conversation. Values handed out by the Accumulator are
// copies; mutating them has no effect on the transcript.
type State struct {
	Messages      []Message `json:"messages"`
	StreamingText string    `json:"streamingText"`
	IsStreaming   bool      `json:"isStreaming"`
}

func (s State) clone() State {
	s.Messages = cloneMessages(s.Messages)
	return s
}

func cloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, m := range in {
		out[i] = Message{Role: m.Role, Content: append([]ContentBlock(nil), m.Content...)}
	}
	return out
}

// Phase is the per-turn lifecycle position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitted
	PhaseStreaming
	PhaseFinalizing
)

func (p Phase) String() string {
	switch p {
	case PhaseSubmitted:
		return "submitted"
	case PhaseStreaming:
		return "streaming"
	case PhaseFinalizing:
		return "finalizing"
	default:
		return "idle"
	}
}

// Session identifies one conversation and the model settings it runs with.
type Session struct {
	ID           uuid.UUID
	ModelID      string
	SystemPrompt string
}

func NewSession(modelID, systemPrompt string) Session {
	return Session{ID: uuid.New(), ModelID: modelID, SystemPrompt: systemPrompt}
}

// Request is what the Opener sends to the model endpoint for one turn.
type Request struct {
	ModelID  string    `json:"modelId"`
	System   string    `json:"system"`
	Messages []Message `json:"messages"`
}

// Opener starts a streaming generation. It must fail before returning a source
// when the endpoint answers with a non-success status.
type Opener interface {
	Open(ctx context.Context, req Request) (stream.ChunkSource, error)
}

// OpenerFunc adapts a function into an Opener.
type OpenerFunc func(ctx context.Context, req Request) (stream.ChunkSource, error)

func (f OpenerFunc) Open(ctx context.Context, req Request) (stream.ChunkSource, error) {
	return f(ctx, req)
}

// History loads a previously persisted conversation.
type History interface {
	LoadMessages(ctx context.Context, sessionID uuid.UUID) ([]Message, error)
}

type UpdateKind string

const (
	UpdateTurnStarted  UpdateKind = "turn_started"
	UpdateDelta        UpdateKind = "delta"
	UpdateTurnFinished UpdateKind = "turn_finished"
	UpdateNotice       UpdateKind = "notice"
	UpdateReset        UpdateKind = "reset"
)

// Update is pushed to the Sink on every observable state transition.
//
// Appended holds the messages this update added to the transcript, starting at
// position FirstSeq: the user message on turn_started, the user and assistant
// messages on turn_finished.
type Update struct {
	Kind        UpdateKind    `json:"kind"`
	SessionID   uuid.UUID     `json:"sessionId"`
	TurnID      uuid.UUID     `json:"turnId"`
	ModelID     string        `json:"modelId,omitempty"`
	Timestamp   time.Time     `json:"ts"`
	State       State         `json:"state"`
	Appended    []Message     `json:"appended,omitempty"`
	FirstSeq    int           `json:"firstSeq"`
	Delta       string        `json:"delta,omitempty"`
	Usage       *stream.Usage `json:"usage,omitempty"`
	StopReason  string        `json:"stopReason,omitempty"`
	ParseErrors int           `json:"parseErrors,omitempty"`
	DurationMs  int64         `json:"durationMs,omitempty"`
	Notice      string        `json:"notice,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Compact returns u without the full message history. StreamingText and the
// appended messages are kept, so the result stays small however long the
// conversation grows.
func (u Update) Compact() Update {
	u.State.Messages = nil
	u.Appended = cloneMessages(u.Appended)
	return u
}

// Sink receives transcript updates, typically to re-render or fan them out.
type Sink interface {
	Publish(u Update)
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(u Update)

func (f SinkFunc) Publish(u Update) { f(u) }

type nopSink struct{}

func (nopSink) Publish(Update) {}

// MultiSink publishes every update to each sink in order.
func MultiSink(sinks ...Sink) Sink {
	return SinkFunc(func(u Update) {
		for _, s := range sinks {
			s.Publish(u)
		}
	})
}
