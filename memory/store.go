// Package memory stores per-session conversation transcripts.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrInvalidTurn is returned when a session id or role is not acceptable.
var ErrInvalidTurn = errors.New("memory: invalid turn")

// Turn is one message of a session transcript. Sequence starts at 1 and is
// strictly increasing within a session.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Sequence  int64     `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionStore is an append-only transcript per session. Implementations
// must assign sequence numbers atomically and keep sessions isolated.
type SessionStore interface {
	// Append adds a turn and returns it with its sequence number.
	Append(ctx context.Context, sessionID, role, text string) (Turn, error)

	// Turns returns the transcript in sequence order. Unknown sessions
	// have no turns.
	Turns(ctx context.Context, sessionID string) ([]Turn, error)

	// Reset atomically removes every turn of the session. The next
	// Append starts again at sequence 1.
	Reset(ctx context.Context, sessionID string) error
}

// ValidateAppend checks the arguments shared by every Append.
func ValidateAppend(sessionID, role string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidTurn)
	}
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("%w: role %q", ErrInvalidTurn, role)
	}
	return nil
}
