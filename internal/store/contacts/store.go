package contacts

import (
	"context"
	"errors"
	"strings"

	logx "wabot/pkg/logx"
)

// Store is the persistence API the dispatcher and import paths use.
//
// All mutations are serialized internally; concurrent callers (a sweep and
// an import arriving mid-sweep) never interleave partial writes.
type Store interface {
	// ReadAll returns every contact in insertion order.
	// A missing backing file/table yields an empty slice, not an error.
	ReadAll(ctx context.Context) ([]Contact, error)

	// Merge partitions batch into new (phone unseen) and repeated (phone
	// present) contacts. New ones are appended with Sent=false; repeated
	// ones have their Sent flag stamped to resetStatus. The batch is
	// deduplicated by phone first (last occurrence wins).
	Merge(ctx context.Context, batch []Contact, resetStatus bool) (MergeResult, error)

	// UpdateStatus stamps Sent=status on the rows whose phone matches one
	// of the given contacts. Rows not named are left untouched.
	UpdateStatus(ctx context.Context, processed []Contact, status bool) error

	// Reset stamps Sent=status on every row (administrative bulk stamp).
	Reset(ctx context.Context, status bool) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file", "csv":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown contacts driver: " + driver)
	}
}

// phoneSet builds a membership set from a contact slice.
func phoneSet(cs []Contact) map[string]struct{} {
	m := make(map[string]struct{}, len(cs))
	for _, c := range cs {
		m[c.Phone] = struct{}{}
	}
	return m
}
