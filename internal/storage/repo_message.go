package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/namikmesic/chatstream/internal/transcript"
)

// InsertMessagesJob stores msgs as consecutive rows starting at firstSeq,
// using the COPY protocol.
func InsertMessagesJob(sessionID, turnID uuid.UUID, ts time.Time, firstSeq int, msgs []transcript.Message) WriteJob {
	return WriteJobFunc(func(ctx context.Context, db DB) error {
		rows := make([][]any, len(msgs))
		for i, m := range msgs {
			rows[i] = []any{
				sessionID,
				firstSeq + i,
				turnID,
				ts,
				string(m.Role),
				m.Content,
			}
		}

		_, err := db.CopyFrom(ctx,
			pgx.Identifier{"messages"},
			[]string{"session_id", "seq", "turn_id", "ts", "role", "content"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
}

// Repository reads stored transcripts. It implements transcript.History.
type Repository struct {
	db DB
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) LoadMessages(ctx context.Context, sessionID uuid.UUID) ([]transcript.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT role, content FROM messages
		WHERE session_id = $1
		ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []transcript.Message
	for rows.Next() {
		var role string
		var content []transcript.ContentBlock
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, transcript.Message{Role: transcript.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	return msgs, nil
}
