package contacts

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "wabot/pkg/logx"
)

// fileStore is the CSV backend.
//
// The table is small (one campaign's contact list), so every mutation
// reads the whole file, mutates in memory and rewrites it atomically via a
// temp file + rename. That keeps the on-disk file always well-formed.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("contacts.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) ReadAll(ctx context.Context) ([]Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *fileStore) Merge(ctx context.Context, batch []Contact, resetStatus bool) (MergeResult, error) {
	batch = Dedup(batch)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readLocked()
	if err != nil {
		return MergeResult{}, err
	}

	known := phoneSet(existing)
	var res MergeResult
	repeated := make(map[string]struct{})
	for _, c := range batch {
		if _, ok := known[c.Phone]; ok {
			res.Repeated++
			repeated[c.Phone] = struct{}{}
			continue
		}
		c.Sent = false
		existing = append(existing, c)
		known[c.Phone] = struct{}{}
		res.Added++
	}
	for i := range existing {
		if _, ok := repeated[existing[i].Phone]; ok {
			existing[i].Sent = resetStatus
		}
	}

	if err := s.writeLocked(existing); err != nil {
		return MergeResult{}, err
	}
	s.log.Info("contacts merged",
		logx.Int("added", res.Added),
		logx.Int("repeated", res.Repeated),
		logx.Int("total", len(existing)),
	)
	return res, nil
}

func (s *fileStore) UpdateStatus(ctx context.Context, processed []Contact, status bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readLocked()
	if err != nil {
		return err
	}
	match := phoneSet(processed)
	changed := 0
	for i := range existing {
		if _, ok := match[existing[i].Phone]; ok && existing[i].Sent != status {
			existing[i].Sent = status
			changed++
		}
	}
	if changed == 0 {
		return nil
	}
	return s.writeLocked(existing)
}

func (s *fileStore) Reset(ctx context.Context, status bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readLocked()
	if err != nil {
		return err
	}
	for i := range existing {
		existing[i].Sent = status
	}
	return s.writeLocked(existing)
}

func (s *fileStore) readLocked() ([]Contact, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var out []Contact
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if isHeader(rec) {
				continue
			}
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		c := Contact{Phone: strings.TrimSpace(rec[0])}
		if len(rec) > 1 {
			name := strings.TrimSpace(rec[1])
			if name != NameSentinel {
				c.Name = name
			}
		}
		if len(rec) > 2 {
			c.Sent = strings.EqualFold(strings.TrimSpace(rec[2]), "true")
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *fileStore) writeLocked(cs []Contact) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".contacts-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.Write([]string{"phone", "name", "sent"}); err != nil {
		_ = tmp.Close()
		return err
	}
	for _, c := range cs {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			name = NameSentinel
		}
		sent := "false"
		if c.Sent {
			sent = "true"
		}
		if err := w.Write([]string{c.Phone, name, sent}); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

func isHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "phone")
}
