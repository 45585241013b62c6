package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind Kind
	}{
		{"wrapped start", `{"messageStart":{"role":"assistant"}}`, KindMessageStart},
		{"flat start", `{"type":"message_start","role":"assistant"}`, KindMessageStart},
		{"wrapped delta", `{"contentBlockDelta":{"delta":{"text":"Hi"},"contentBlockIndex":0}}`, KindContentDelta},
		{"flat delta", `{"role":"assistant","index":1,"text":"Hi"}`, KindContentDelta},
		{"nested delta", `{"type":"content_delta","delta":{"text":"Hi"}}`, KindContentDelta},
		{"wrapped stop", `{"messageStop":{"stopReason":"end_turn"}}`, KindMessageStop},
		{"flat stop", `{"type":"message_stop","stopReason":"max_tokens"}`, KindMessageStop},
		{"metadata", `{"metadata":{"usage":{"inputTokens":3,"outputTokens":5,"totalTokens":8}}}`, KindMetadata},
		{"non-string text", `{"text":42}`, KindUnknown},
		{"other object", `{"ping":true}`, KindUnknown},
		{"array", `[1,2,3]`, KindUnknown},
		{"scalar", `"hello"`, KindUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev := Classify([]byte(tc.raw))
			assert.Equal(t, tc.kind, ev.Kind)
			assert.Equal(t, tc.raw, string(ev.Raw))
		})
	}
}

func TestClassify_Payloads(t *testing.T) {
	delta, ok := Classify([]byte(`{"role":"assistant","index":2,"text":"llo"}`)).ContentDelta()
	assert.True(t, ok)
	assert.Equal(t, ContentDelta{Role: "assistant", Index: 2, Text: "llo"}, delta)

	wrapped, ok := Classify([]byte(`{"contentBlockDelta":{"delta":{"text":"He"},"contentBlockIndex":1}}`)).ContentDelta()
	assert.True(t, ok)
	assert.Equal(t, "He", wrapped.Text)
	assert.Equal(t, 1, wrapped.Index)

	stop, ok := Classify([]byte(`{"messageStop":{"stopReason":"end_turn"}}`)).MessageStop()
	assert.True(t, ok)
	assert.Equal(t, "end_turn", stop.StopReason)

	meta, ok := Classify([]byte(`{"metadata":{"usage":{"inputTokens":3,"outputTokens":5,"totalTokens":8},"metrics":{"latencyMs":120}}}`)).Metadata()
	assert.True(t, ok)
	assert.Equal(t, Usage{InputTokens: 3, OutputTokens: 5, TotalTokens: 8}, meta.Usage)
	assert.Equal(t, int64(120), meta.LatencyMs)

	_, ok = Classify([]byte(`{"ping":true}`)).ContentDelta()
	assert.False(t, ok)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "content_delta", KindContentDelta.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
