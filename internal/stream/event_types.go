package stream

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Kind tags the shape of a decoded stream record.
type Kind int

const (
	KindUnknown Kind = iota
	KindMessageStart
	KindContentDelta
	KindMessageStop
	KindMetadata
)

func (k Kind) String() string {
	switch k {
	case KindMessageStart:
		return "message_start"
	case KindContentDelta:
		return "content_delta"
	case KindMessageStop:
		return "message_stop"
	case KindMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// Event is a single decoded NDJSON record.
type Event struct {
	Index int             // ordinal within this stream, starting at 1
	Kind  Kind            // classified shape
	Raw   json.RawMessage // record as received

	start MessageStart
	delta ContentDelta
	stop  MessageStop
	meta  Metadata
}

type MessageStart struct {
	Role string
}

// ContentDelta carries an incremental text fragment for the in-progress message.
type ContentDelta struct {
	Role  string
	Index int
	Text  string
}

type MessageStop struct {
	StopReason string
}

type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

type Metadata struct {
	Usage     Usage
	LatencyMs int64
}

// MessageStart returns the payload of a KindMessageStart event.
func (e Event) MessageStart() (MessageStart, bool) {
	return e.start, e.Kind == KindMessageStart
}

// ContentDelta returns the payload of a KindContentDelta event.
func (e Event) ContentDelta() (ContentDelta, bool) {
	return e.delta, e.Kind == KindContentDelta
}

// MessageStop returns the payload of a KindMessageStop event.
func (e Event) MessageStop() (MessageStop, bool) {
	return e.stop, e.Kind == KindMessageStop
}

// Metadata returns the payload of a KindMetadata event.
func (e Event) Metadata() (Metadata, bool) {
	return e.meta, e.Kind == KindMetadata
}

func (e Event) String() string {
	return fmt.Sprintf("%s#%d", e.Kind, e.Index)
}

// Classify probes a well-formed JSON record for one of the known event shapes.
// Both wrapped records ({"contentBlockDelta":{...}}) and flat records
// ({"type":"content_delta","text":"..."}) are recognised; anything else is
// KindUnknown.
func Classify(raw []byte) Event {
	ev := Event{Raw: json.RawMessage(raw)}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return ev
	}

	if v := root.Get("messageStart"); v.Exists() {
		ev.Kind = KindMessageStart
		ev.start = MessageStart{Role: v.Get("role").String()}
		return ev
	}
	if v := root.Get("contentBlockDelta"); v.Exists() {
		return classifyDelta(ev, v.Get("delta.text"), v.Get("role"), v.Get("contentBlockIndex"))
	}
	if v := root.Get("messageStop"); v.Exists() {
		ev.Kind = KindMessageStop
		ev.stop = MessageStop{StopReason: v.Get("stopReason").String()}
		return ev
	}
	if v := root.Get("metadata"); v.Exists() {
		return classifyMetadata(ev, v)
	}

	switch root.Get("type").String() {
	case "message_start":
		ev.Kind = KindMessageStart
		ev.start = MessageStart{Role: root.Get("role").String()}
		return ev
	case "message_stop":
		ev.Kind = KindMessageStop
		ev.stop = MessageStop{StopReason: root.Get("stopReason").String()}
		return ev
	case "metadata":
		return classifyMetadata(ev, root)
	}

	// Flat { role, index, text } deltas, with or without a type tag.
	if text := root.Get("text"); text.Exists() {
		return classifyDelta(ev, text, root.Get("role"), root.Get("index"))
	}
	if text := root.Get("delta.text"); text.Exists() {
		return classifyDelta(ev, text, root.Get("role"), root.Get("index"))
	}
	return ev
}

func classifyDelta(ev Event, text, role, index gjson.Result) Event {
	if text.Type != gjson.String {
		return ev
	}
	ev.Kind = KindContentDelta
	ev.delta = ContentDelta{
		Role:  role.String(),
		Index: int(index.Int()),
		Text:  text.String(),
	}
	return ev
}

func classifyMetadata(ev Event, v gjson.Result) Event {
	ev.Kind = KindMetadata
	usage := v.Get("usage")
	ev.meta = Metadata{
		Usage: Usage{
			InputTokens:  int(usage.Get("inputTokens").Int()),
			OutputTokens: int(usage.Get("outputTokens").Int()),
			TotalTokens:  int(usage.Get("totalTokens").Int()),
		},
		LatencyMs: v.Get("metrics.latencyMs").Int(),
	}
	return ev
}
