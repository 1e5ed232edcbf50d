package dispatch

import (
	"context"
	"errors"
	"time"
)

// Sender is the session capability the dispatcher drives. The real
// implementation is session.Manager.
type Sender interface {
	IsReady() bool
	Send(ctx context.Context, chatAddr, body, mediaPath string) error
}

// Config controls sweep behavior.
type Config struct {
	// CountryCode is prepended to phones of 10 digits or fewer.
	CountryCode string

	// ChatSuffix is the transport's JID server suffix.
	ChatSuffix string

	// SendDelay is the minimum spacing between send attempts. The
	// transport is single-connection and ordering-sensitive; concurrent
	// or rapid-fire sends risk transport-level bans. Zero means 2s.
	SendDelay time.Duration
}

const defaultSendDelay = 2 * time.Second

// SendError names one failed contact within an otherwise completed sweep.
type SendError struct {
	Number string `json:"number"`
	Error  string `json:"error"`
}

// Result aggregates one sweep.
type Result struct {
	ID        string      `json:"id"`
	Sent      int         `json:"sent"`
	Failed    int         `json:"failed"`
	Errors    []SendError `json:"errors,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	DoneAt    time.Time   `json:"done_at"`
}

var (
	// ErrNotReady means the session must be authenticated before a sweep.
	ErrNotReady = errors.New("session is not ready")

	// ErrSweepActive means another sweep is already running over the
	// contact store.
	ErrSweepActive = errors.New("a sweep is already in progress")
)
