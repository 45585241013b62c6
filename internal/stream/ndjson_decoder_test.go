package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, d *Decoder) ([]string, error) {
	t.Helper()
	var raws []string
	for {
		ev, err := d.Next(context.Background())
		if err != nil {
			if errors.Is(err, io.EOF) {
				return raws, nil
			}
			return raws, err
		}
		raws = append(raws, string(ev.Raw))
	}
}

func TestDecoder_RecordSplitAcrossChunks(t *testing.T) {
	d := NewDecoder(NewSliceSource(`{"a":1}`+"\n"+`{"b"`, `:2}`+"\n"))

	got, err := collect(t, d)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, got)
	assert.Empty(t, d.ParseErrors())
}

func TestDecoder_MalformedLineIsSkipped(t *testing.T) {
	var handled []*RecordError
	d := NewDecoder(
		NewSliceSource(`{"a":1}`+"\n"+`{bad-json}`+"\n"+`{"b":2}`+"\n"),
		WithParseErrorHandler(func(e *RecordError) { handled = append(handled, e) }),
	)

	got, err := collect(t, d)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, got)

	errs := d.ParseErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, 2, errs[0].Record)
	assert.Equal(t, `{bad-json}`, errs[0].Raw)
	assert.Equal(t, errs, handled)
}

func TestDecoder_TrailingDataDroppedAtEOF(t *testing.T) {
	d := NewDecoder(NewSliceSource(`{"a":1}`+"\n", `{"b":2}`))

	got, err := collect(t, d)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"a":1}`}, got)
	assert.Empty(t, d.ParseErrors())

	_, err = d.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_NoNewlineBuffersEverything(t *testing.T) {
	d := NewDecoder(NewSliceSource())

	assert.Empty(t, d.ParseChunk([]byte(`{"a":`)))
	assert.Equal(t, `{"a":`, d.Buffered())

	events := d.ParseChunk([]byte("1}\n{\"b\""))
	require.Len(t, events, 1)
	assert.Equal(t, `{"a":1}`, string(events[0].Raw))
	assert.Equal(t, `{"b"`, d.Buffered())
}

func TestDecoder_BlankLinesIgnored(t *testing.T) {
	d := NewDecoder(NewSliceSource("\n\n{\"a\":1}\r\n  \n{\"b\":2}\n"))

	got, err := collect(t, d)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Empty(t, d.ParseErrors())
}

func TestDecoder_AnySplitPreservesOrder(t *testing.T) {
	records := []string{
		`{"contentBlockDelta":{"delta":{"text":"héllo wörld"},"contentBlockIndex":0}}`,
		`{"text":"日本語のテキスト","role":"assistant","index":0}`,
		`{"messageStop":{"stopReason":"end_turn"}}`,
		`["array", "record", 3]`,
		`{"emoji":"🙂🚀"}`,
	}
	body := strings.Join(records, "\n") + "\n"
	raw := []byte(body)

	for _, size := range []int{1, 2, 3, 5, 7, 11, 64, len(raw)} {
		var chunks [][]byte
		for i := 0; i < len(raw); i += size {
			end := min(i+size, len(raw))
			chunks = append(chunks, raw[i:end])
		}

		d := NewDecoder(&SliceSource{Chunks: chunks})
		got, err := collect(t, d)
		require.NoError(t, err, "chunk size %d", size)
		assert.Equal(t, records, got, "chunk size %d", size)
		assert.Empty(t, d.ParseErrors(), "chunk size %d", size)
		assert.NotContains(t, d.Buffered(), "\n")
	}
}

func chunked(raw []byte, size int) [][]byte {
	var chunks [][]byte
	for i := 0; i < len(raw); i += size {
		chunks = append(chunks, raw[i:min(i+size, len(raw))])
	}
	return chunks
}

func TestDecoder_LongRecordInSmallChunks(t *testing.T) {
	record := `{"text":"` + strings.Repeat("a", 256*1024) + `"}`
	raw := []byte(record + "\n" + `{"b":2}` + "\n")

	d := NewDecoder(NewSliceSource())
	var got []string
	for _, chunk := range chunked(raw, 16) {
		for _, ev := range d.ParseChunk(chunk) {
			got = append(got, string(ev.Raw))
		}
		assert.NotContains(t, d.Buffered(), "\n")
	}

	require.Len(t, got, 2)
	assert.Equal(t, record, got[0])
	assert.Equal(t, `{"b":2}`, got[1])
	assert.Empty(t, d.Buffered())
}

func BenchmarkDecoder_LongRecordSmallChunks(b *testing.B) {
	raw := []byte(`{"text":"` + strings.Repeat("a", 1<<20) + `"}` + "\n")
	chunks := chunked(raw, 64)

	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for range b.N {
		d := NewDecoder(NewSliceSource())
		for _, chunk := range chunks {
			d.ParseChunk(chunk)
		}
	}
}

func TestDecoder_MultiByteCharacterSplit(t *testing.T) {
	raw := []byte(`{"t":"€"}` + "\n")
	euro := strings.Index(string(raw), "€")

	// Split inside the three-byte euro sign.
	d := NewDecoder(&SliceSource{Chunks: [][]byte{raw[:euro+1], raw[euro+1 : euro+2], raw[euro+2:]}})
	got, err := collect(t, d)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"t":"€"}`}, got)
}

func TestDecoder_LeadingBOMStripped(t *testing.T) {
	d := NewDecoder(&SliceSource{Chunks: [][]byte{{0xEF, 0xBB}, []byte("\xBF{\"a\":1}\n")}})

	got, err := collect(t, d)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"a":1}`}, got)
}

func TestDecoder_TransportErrorKeepsEmittedEvents(t *testing.T) {
	boom := errors.New("connection reset")
	src := NewSliceSource(`{"a":1}`+"\n", `{"b":`)
	src.Err = boom
	d := NewDecoder(src)

	ev, err := d.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(ev.Raw))

	_, err = d.Next(context.Background())
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.ErrorIs(t, err, boom)
	assert.True(t, src.Closed())

	// Sticky.
	_, err = d.Next(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestDecoder_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDecoder(NewSliceSource(`{"a":1}` + "\n"))
	_, err := d.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	var transportErr *TransportError
	assert.False(t, errors.As(err, &transportErr))
}

func TestDecoder_CloseReleasesSource(t *testing.T) {
	src := NewSliceSource(`{"a":1}`+"\n"+`{"b":2}`+"\n", `{"c":3}`+"\n")
	d := NewDecoder(src)

	_, err := d.Next(context.Background())
	require.NoError(t, err)

	require.NoError(t, d.Close())
	assert.True(t, src.Closed())

	_, err = d.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDecoder_All(t *testing.T) {
	d := NewDecoder(NewSliceSource(`{"a":1}` + "\n" + `{"b":2}` + "\n" + `{"c":3}` + "\n"))

	var indexes []int
	for ev, err := range d.All(context.Background()) {
		require.NoError(t, err)
		indexes = append(indexes, ev.Index)
		if ev.Index == 2 {
			break
		}
	}
	assert.Equal(t, []int{1, 2}, indexes)

	ev, err := d.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, ev.Index)
}

func TestDecoder_AllYieldsTransportError(t *testing.T) {
	src := NewSliceSource(`{"a":1}` + "\n")
	src.Err = errors.New("eof mid-body")
	d := NewDecoder(src)

	var n int
	var last error
	for _, err := range d.All(context.Background()) {
		if err != nil {
			last = err
			continue
		}
		n++
	}
	assert.Equal(t, 1, n)
	assert.Error(t, last)
}

func TestReaderSource_CopiesChunks(t *testing.T) {
	src := NewReaderSource(io.NopCloser(strings.NewReader("abcdef")), 4)

	first, err := src.Next(context.Background())
	require.NoError(t, err)
	second, err := src.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "abcd", string(first))
	assert.Equal(t, "ef", string(second))

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, src.Close())
	assert.NoError(t, src.Close())
}
