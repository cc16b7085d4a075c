// Package filestore provides file read/write with timestamped backups so
// destructive edits made during automated repair can always be rolled back.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DannyJanmaat/VSPilot-sub000/internal/logging"
)

const backupDirName = ".vspilot/backups"

// Store performs file operations rooted at a workspace directory.
type Store struct {
	root string
	log  *zap.Logger
}

// New creates a Store rooted at dir.
func New(dir string) *Store {
	return &Store{
		root: dir,
		log:  logging.L().Named("filestore"),
	}
}

// ReadText reads a file relative to the store root.
func (s *Store) ReadText(path string) (string, error) {
	data, err := s.ReadBytes(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadBytes reads raw file contents relative to the store root.
func (s *Store) ReadBytes(path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("filestore: read %s: %w", path, err)
	}
	return data, nil
}

// WriteText overwrites a file, taking a timestamped backup first when the
// file already exists.
func (s *Store) WriteText(path, content string) error {
	return s.WriteBytes(path, []byte(content))
}

// WriteBytes overwrites a file with raw bytes, backing up any existing
// content first.
func (s *Store) WriteBytes(path string, data []byte) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(full); statErr == nil {
		if _, err := s.Backup(path); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("filestore: mkdir for %s: %w", path, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("filestore: write %s: %w", path, err)
	}
	return nil
}

// Backup copies the file to the backup directory under a timestamped name
// and returns the backup path (relative to the store root).
func (s *Store) Backup(path string) (string, error) {
	data, err := s.ReadBytes(path)
	if err != nil {
		return "", err
	}

	stamp := time.Now().UTC().Format("20060102T150405.000000000")
	name := fmt.Sprintf("%s__%s", stamp, strings.ReplaceAll(path, string(os.PathSeparator), "_"))
	rel := filepath.Join(backupDirName, name)
	full := filepath.Join(s.root, rel)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("filestore: create backup dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("filestore: write backup for %s: %w", path, err)
	}

	s.log.Debug("backup created", zap.String("file", path), zap.String("backup", rel))
	return rel, nil
}

// Restore copies a backup produced by Backup over the target path. The
// current target content is itself backed up first, so a restore is never
// destructive.
func (s *Store) Restore(backupPath, targetPath string) error {
	data, err := s.ReadBytes(backupPath)
	if err != nil {
		return err
	}
	return s.WriteBytes(targetPath, data)
}

// resolve joins path with the root and rejects escapes outside it.
func (s *Store) resolve(path string) (string, error) {
	full := filepath.Join(s.root, path)
	rootAbs, err := filepath.Abs(s.root)
	if err != nil {
		return "", fmt.Errorf("filestore: resolve root: %w", err)
	}
	fullAbs, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("filestore: resolve %s: %w", path, err)
	}
	if fullAbs != rootAbs && !strings.HasPrefix(fullAbs, rootAbs+string(os.PathSeparator)) {
		return "", fmt.Errorf("filestore: path %s escapes workspace root", path)
	}
	return fullAbs, nil
}
