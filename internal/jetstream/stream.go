package jetstream

import (
	"errors"
	"strings"
	"time"

	nats "github.com/nats-io/nats.go"
)

const (
	StreamName    = "CHATSTREAM"
	SubjectPrefix = "chatstream.session."
)

// EnsureStream creates the transcript update stream if it does not exist.
func EnsureStream(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"chatstream.>"},
		Storage:   nats.FileStorage,
		MaxAge:    24 * time.Hour,
		Retention: nats.LimitsPolicy,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) && !strings.Contains(err.Error(), "already in use") {
		return err
	}
	return nil
}

// UpdateSubject is the subject a transcript update of the given kind is
// published on, e.g. chatstream.session.<id>.delta.
func UpdateSubject(sessionID, kind string) string {
	return SubjectPrefix + sessionID + "." + kind
}

// SessionSubjects matches every update of one session.
func SessionSubjects(sessionID string) string {
	return SubjectPrefix + sessionID + ".>"
}

// AllSubjects matches every session's updates.
const AllSubjects = SubjectPrefix + "*.*"
