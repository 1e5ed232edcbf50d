package session

import (
	"errors"
	"time"
)

// State is the session lifecycle state.
type State int

const (
	StateAbsent State = iota
	StateConnecting
	StateAwaitingScan
	StateReady
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateConnecting:
		return "connecting"
	case StateAwaitingScan:
		return "awaiting-scan"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config configures the session manager.
type Config struct {
	// StorePath is the whatsmeow credential database file.
	StorePath string

	// ConnectTimeout bounds Connect()'s wait for a terminal transport
	// event. Zero means the 60s default.
	ConnectTimeout time.Duration
}

const defaultConnectTimeout = 60 * time.Second

// ConnectResult is the single terminal outcome of one Connect() call.
//
// Exactly one of the two shapes applies: Ready, or a QR challenge
// (QRCode + QRPNG set). Errors are returned separately.
type ConnectResult struct {
	Ready bool

	// QRCode is the raw challenge payload; QRPNG is the same challenge
	// rendered as a PNG image for embedding in an HTML page.
	QRCode string
	QRPNG  []byte
}

// Status is the external view of the session, shaped like the
// /bot/status payload.
type Status struct {
	Status       string `json:"status"` // connected | disconnected
	Client       string `json:"client"` // initialized | not_initialized
	Initializing bool   `json:"initializing"`
}

var (
	// ErrNotReady is returned by Send when the session is not authenticated.
	ErrNotReady = errors.New("session not ready: scan the QR code first")

	// ErrNoSession is returned by Logout when no client exists.
	ErrNoSession = errors.New("no active session")

	// ErrConnectTimeout is returned when no terminal transport event
	// arrives within the bounded wait.
	ErrConnectTimeout = errors.New("timed out waiting for transport events")
)
