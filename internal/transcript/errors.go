package transcript

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrEmptySubmission = errors.New("transcript: empty submission")
	ErrTurnInProgress  = errors.New("transcript: a turn is already in progress")
)

// TurnError reports a turn that failed after streaming began. The partial
// assistant text has already been folded into the transcript.
type TurnError struct {
	TurnID  uuid.UUID
	Partial string
	Err     error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn %s: %v", e.TurnID, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }
