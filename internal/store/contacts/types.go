package contacts

import (
	"strings"
	"time"
)

// NameSentinel is the marker stored in place of a missing contact name at
// the file boundary. It is never kept in memory; ReadAll maps it to "".
const NameSentinel = "NULL"

// Contact is one row of the campaign contact table.
type Contact struct {
	Phone string
	Name  string // "" when no name was supplied
	Sent  bool
}

// HasName reports whether the contact carries a usable display name.
func (c Contact) HasName() bool {
	n := strings.TrimSpace(c.Name)
	return n != "" && n != NameSentinel
}

// MergeResult summarizes one import batch.
type MergeResult struct {
	Added    int
	Repeated int
}

// Config configures the contact store.
//
// Driver values:
//   - "file" (default): CSV backend
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Dedup removes duplicate phones from an import batch, keeping insertion
// order of first occurrence. The last duplicate's fields win.
func Dedup(batch []Contact) []Contact {
	if len(batch) < 2 {
		return batch
	}
	idx := make(map[string]int, len(batch))
	out := make([]Contact, 0, len(batch))
	for _, c := range batch {
		if i, ok := idx[c.Phone]; ok {
			out[i] = c
			continue
		}
		idx[c.Phone] = len(out)
		out = append(out, c)
	}
	return out
}
