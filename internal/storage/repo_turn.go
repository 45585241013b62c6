package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TurnRecord is one row of the turns table.
type TurnRecord struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	Timestamp     time.Time
	Model         string
	UserText      string
	AssistantText string
	StopReason    string
	InputTokens   int
	OutputTokens  int
	TotalTokens   int
	ParseErrors   int
	DurationMs    int64
	ErrorMessage  string
	FinishedAt    time.Time
}

func InsertTurnJob(r *TurnRecord) WriteJob {
	return WriteJobFunc(func(ctx context.Context, db DB) error {
		_, err := db.Exec(ctx, `
			INSERT INTO turns (id, session_id, ts, model, user_text)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`,
			r.ID, r.SessionID, r.Timestamp, nilIfEmpty(r.Model), r.UserText,
		)
		return err
	})
}

func FinishTurnJob(r *TurnRecord) WriteJob {
	return WriteJobFunc(func(ctx context.Context, db DB) error {
		_, err := db.Exec(ctx, `
			UPDATE turns SET
				assistant_text = $1,
				stop_reason = $2,
				input_tokens = $3,
				output_tokens = $4,
				total_tokens = $5,
				parse_errors = $6,
				duration_ms = $7,
				error_message = $8,
				finished_at = $9
			WHERE id = $10`,
			r.AssistantText, nilIfEmpty(r.StopReason),
			r.InputTokens, r.OutputTokens, r.TotalTokens, r.ParseErrors,
			r.DurationMs, nilIfEmpty(r.ErrorMessage), r.FinishedAt, r.ID,
		)
		return err
	})
}

// DeleteSessionJob removes every stored turn and message of a session.
func DeleteSessionJob(sessionID uuid.UUID) WriteJob {
	return WriteJobFunc(func(ctx context.Context, db DB) error {
		if _, err := db.Exec(ctx, `DELETE FROM messages WHERE session_id = $1`, sessionID); err != nil {
			return err
		}
		_, err := db.Exec(ctx, `DELETE FROM turns WHERE session_id = $1`, sessionID)
		return err
	})
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
