package jetstream

import (
	"encoding/json"

	"github.com/namikmesic/chatstream/internal/transcript"
	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Publisher fans transcript updates out over JetStream. It implements
// transcript.Sink; publish failures are logged and never reach the turn.
// Updates are sent compacted: consumers rebuild history from the appended
// messages rather than from full snapshots.
type Publisher struct {
	js nats.JetStreamContext
}

func NewPublisher(js nats.JetStreamContext) *Publisher {
	return &Publisher{js: js}
}

func (p *Publisher) Publish(u transcript.Update) {
	data, err := json.Marshal(u.Compact())
	if err != nil {
		log.Error().Err(err).Str("kind", string(u.Kind)).Msg("failed to encode transcript update")
		return
	}

	subject := UpdateSubject(u.SessionID.String(), string(u.Kind))
	if _, err := p.js.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish transcript update")
	}
}

// DecodeUpdate parses a message published by Publisher.
func DecodeUpdate(msg *nats.Msg) (transcript.Update, error) {
	var u transcript.Update
	err := json.Unmarshal(msg.Data, &u)
	return u, err
}
