package jetstream

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/namikmesic/chatstream/internal/transcript"
	nats "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startJetStream(t *testing.T) (*nats.Conn, nats.JetStreamContext) {
	t.Helper()

	srv, err := NewServer(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	nc, err := srv.Connect()
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := nc.JetStream()
	require.NoError(t, err)
	require.NoError(t, EnsureStream(js))
	return nc, js
}

func TestEnsureStream_Idempotent(t *testing.T) {
	_, js := startJetStream(t)
	assert.NoError(t, EnsureStream(js))

	info, err := js.StreamInfo(StreamName)
	require.NoError(t, err)
	assert.Equal(t, []string{"chatstream.>"}, info.Config.Subjects)
}

func TestPublisher_PublishesOnSessionSubject(t *testing.T) {
	nc, js := startJetStream(t)

	sessionID := uuid.New()
	sub, err := nc.SubscribeSync(SessionSubjects(sessionID.String()))
	require.NoError(t, err)

	pub := NewPublisher(js)
	pub.Publish(transcript.Update{
		Kind:      transcript.UpdateDelta,
		SessionID: sessionID,
		TurnID:    uuid.New(),
		Delta:     "He",
		State: transcript.State{
			Messages:      []transcript.Message{transcript.NewMessage(transcript.RoleUser, "hi")},
			StreamingText: "He",
			IsStreaming:   true,
		},
	})

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, UpdateSubject(sessionID.String(), "delta"), msg.Subject)

	u, err := DecodeUpdate(msg)
	require.NoError(t, err)
	assert.Equal(t, sessionID, u.SessionID)
	assert.Equal(t, "He", u.State.StreamingText)
	assert.True(t, u.State.IsStreaming)
	assert.Empty(t, u.State.Messages)

	info, err := js.StreamInfo(StreamName)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)
}

func TestUpdateSubject(t *testing.T) {
	assert.Equal(t, "chatstream.session.abc.turn_finished", UpdateSubject("abc", "turn_finished"))
	assert.Equal(t, "chatstream.session.abc.>", SessionSubjects("abc"))
}
