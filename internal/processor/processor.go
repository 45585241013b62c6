package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/namikmesic/chatstream/internal/jetstream"
	"github.com/namikmesic/chatstream/internal/storage"
	"github.com/namikmesic/chatstream/internal/transcript"
	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const consumerName = "chatstream-processor"

// Enqueuer accepts write jobs; *storage.BatchWriter satisfies it.
type Enqueuer interface {
	Enqueue(job storage.WriteJob)
}

// Processor persists transcript updates consumed from JetStream.
type Processor struct {
	writer Enqueuer
}

func New(writer Enqueuer) *Processor {
	return &Processor{writer: writer}
}

// Handle turns one transcript update into write jobs. Deltas and notices are
// transient and are not stored.
func (p *Processor) Handle(u transcript.Update) {
	switch u.Kind {
	case transcript.UpdateTurnStarted:
		var userText string
		if len(u.Appended) > 0 {
			userText = u.Appended[0].Text()
		}
		p.writer.Enqueue(storage.InsertTurnJob(&storage.TurnRecord{
			ID:        u.TurnID,
			SessionID: u.SessionID,
			Timestamp: u.Timestamp,
			Model:     u.ModelID,
			UserText:  userText,
		}))

	case transcript.UpdateTurnFinished:
		rec := &storage.TurnRecord{
			ID:            u.TurnID,
			SessionID:     u.SessionID,
			AssistantText: u.State.StreamingText,
			StopReason:    u.StopReason,
			ParseErrors:   u.ParseErrors,
			DurationMs:    u.DurationMs,
			ErrorMessage:  u.Error,
			FinishedAt:    u.Timestamp,
		}
		if u.Usage != nil {
			rec.InputTokens = u.Usage.InputTokens
			rec.OutputTokens = u.Usage.OutputTokens
			rec.TotalTokens = u.Usage.TotalTokens
		}
		p.writer.Enqueue(storage.FinishTurnJob(rec))

		if len(u.Appended) > 0 {
			p.writer.Enqueue(storage.InsertMessagesJob(u.SessionID, u.TurnID, u.Timestamp, u.FirstSeq, u.Appended))
		}

	case transcript.UpdateReset:
		p.writer.Enqueue(storage.DeleteSessionJob(u.SessionID))

	case transcript.UpdateNotice:
		log.Debug().
			Str("session_id", u.SessionID.String()).
			Str("notice", u.Notice).
			Str("error", u.Error).
			Msg("transcript notice")
	}
}

// StartConsumer subscribes to transcript updates with a durable consumer and
// handles them until ctx is cancelled.
func (p *Processor) StartConsumer(ctx context.Context, js nats.JetStreamContext) error {
	sub, err := js.Subscribe(jetstream.AllSubjects, func(msg *nats.Msg) {
		u, err := jetstream.DecodeUpdate(msg)
		if err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("dropping undecodable update")
			_ = msg.Term()
			return
		}
		p.Handle(u)
		if err := msg.Ack(); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("failed to ack update")
		}
	},
		nats.Durable(consumerName),
		nats.ManualAck(),
		nats.DeliverAll(),
		nats.AckWait(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("subscribe to transcript updates: %w", err)
	}

	log.Info().Str("consumer", consumerName).Msg("transcript consumer started")
	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		log.Warn().Err(err).Msg("failed to drain transcript consumer")
	}
	return nil
}
