package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	logx "wabot/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS contacts (
    id    INTEGER PRIMARY KEY AUTOINCREMENT,
    phone TEXT NOT NULL UNIQUE,
    name  TEXT NOT NULL DEFAULT '',
    sent  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_contacts_sent ON contacts(sent);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	mu sync.Mutex
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("contacts.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ReadAll(ctx context.Context) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phone, name, sent FROM contacts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		var sent int
		if err := rows.Scan(&c.Phone, &c.Name, &sent); err != nil {
			return nil, err
		}
		if c.Name == NameSentinel {
			c.Name = ""
		}
		c.Sent = sent != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Merge(ctx context.Context, batch []Contact, resetStatus bool) (MergeResult, error) {
	batch = Dedup(batch)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MergeResult{}, err
	}
	defer tx.Rollback()

	var res MergeResult
	reset := 0
	if resetStatus {
		reset = 1
	}
	for _, c := range batch {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM contacts WHERE phone = ?`, c.Phone).Scan(&exists)
		if err != nil {
			return MergeResult{}, err
		}
		if exists > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE contacts SET sent = ? WHERE phone = ?`, reset, c.Phone); err != nil {
				return MergeResult{}, err
			}
			res.Repeated++
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contacts(phone, name, sent) VALUES(?, ?, 0)`,
			c.Phone, strings.TrimSpace(c.Name)); err != nil {
			return MergeResult{}, err
		}
		res.Added++
	}
	if err := tx.Commit(); err != nil {
		return MergeResult{}, err
	}
	s.log.Info("contacts merged",
		logx.Int("added", res.Added),
		logx.Int("repeated", res.Repeated),
	)
	return res, nil
}

func (s *sqliteStore) UpdateStatus(ctx context.Context, processed []Contact, status bool) error {
	if len(processed) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	v := 0
	if status {
		v = 1
	}
	for _, c := range processed {
		if _, err := tx.ExecContext(ctx,
			`UPDATE contacts SET sent = ? WHERE phone = ?`, v, c.Phone); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Reset(ctx context.Context, status bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := 0
	if status {
		v = 1
	}
	_, err := s.db.ExecContext(ctx, `UPDATE contacts SET sent = ?`, v)
	return err
}
