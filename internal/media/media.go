// Package media manages the single current campaign attachment.
//
// The asset directory holds at most one meaningfully-named file; "current"
// is simply the most recently modified non-hidden entry.
package media

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	logx "wabot/pkg/logx"
)

// Locator finds and manages campaign assets in one directory.
type Locator struct {
	dir string
	log logx.Logger
}

func NewLocator(dir string, log logx.Logger) *Locator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Locator{dir: dir, log: log}
}

func (l *Locator) Dir() string { return l.dir }

// Latest returns the path of the most recently modified non-hidden file in
// the asset directory, or "" when there is none. Equal timestamps resolve
// to the first entry in listing order.
func (l *Locator) Latest() string {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return ""
	}

	var (
		best     string
		bestTime int64
	)
	for _, e := range entries {
		if e.IsDir() || IsHidden(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().UnixNano() > bestTime {
			best = filepath.Join(l.dir, e.Name())
			bestTime = info.ModTime().UnixNano()
		}
	}
	return best
}

// Save stores an uploaded attachment as the current asset. The stored name
// is "Promo" plus the upload's extension, so re-uploads of the same type
// replace the prior asset.
func (l *Locator) Save(originalName string, r io.Reader) (string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(l.dir, "Promo"+filepath.Ext(originalName))

	tmp, err := os.CreateTemp(l.dir, ".upload-*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", err
	}
	l.log.Info("media stored", logx.String("path", dst))
	return dst, nil
}

// Purge deletes every file in the asset directory. A missing directory is
// not an error. It reports how many files were removed.
func (l *Locator) Purge() (int, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(l.dir, e.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// IsHidden reports whether the path's base name is a dotfile.
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}
