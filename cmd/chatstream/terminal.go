package main

import (
	"fmt"
	"io"

	"github.com/namikmesic/chatstream/internal/stream"
	"github.com/namikmesic/chatstream/internal/transcript"
)

// terminalSink renders transcript updates as plain text.
type terminalSink struct {
	out    io.Writer
	notice io.Writer
}

func newTerminalSink(out, notice io.Writer) *terminalSink {
	return &terminalSink{out: out, notice: notice}
}

func (s *terminalSink) Publish(u transcript.Update) {
	switch u.Kind {
	case transcript.UpdateTurnStarted:
		fmt.Fprint(s.out, "assistant> ")
	case transcript.UpdateDelta:
		fmt.Fprint(s.out, u.Delta)
	case transcript.UpdateTurnFinished:
		if u.Error != "" {
			fmt.Fprintf(s.out, " [interrupted: %s]", u.Error)
		}
		fmt.Fprintln(s.out)
	case transcript.UpdateNotice:
		if u.Notice != "" {
			fmt.Fprintln(s.notice, u.Notice)
		}
	case transcript.UpdateReset:
		fmt.Fprintln(s.notice, "(new chat)")
	}
}

// parseError reports a skipped stream record alongside other notices.
func (s *terminalSink) parseError(e *stream.RecordError) {
	fmt.Fprintf(s.notice, "(skipped malformed record %d)\n", e.Record)
}
