// Package snapstore reads and writes the golden files behind
// toMatchSnapshot: one assertion kind's on-disk storage, keyed by test id
// and the sequence number of the snapshot call within that test.
package snapstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store reads and writes snapshots for a single test file, living
// alongside it under a per-file snapshot directory (spec.md §6: "Snapshot
// files live alongside test files under a per-file snapshot directory"),
// following cboone-crawler's testdata/<name>-<hash>/ golden-file layout.
type Store struct {
	dir string
}

// ForSourceFile returns the Store for a loaded test file's snapshots.
func ForSourceFile(sourcePath string) *Store {
	dir := filepath.Join(filepath.Dir(sourcePath), "__snapshots__", filepath.Base(sourcePath)+".snap")
	return &Store{dir: dir}
}

func (s *Store) path(testID string, seq int) string {
	h := sha256.Sum256([]byte(testID))
	hash := hex.EncodeToString(h[:6])
	return filepath.Join(s.dir, fmt.Sprintf("%s-%d.txt", hash, seq))
}

// Load reads the stored snapshot for (testID, seq). ok is false if no
// snapshot has been written yet.
func (s *Store) Load(testID string, seq int) (content string, ok bool, err error) {
	b, err := os.ReadFile(s.path(testID, seq))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("snapstore: load: %w", err)
	}
	return string(b), true, nil
}

// Save writes content as the stored snapshot for (testID, seq), creating
// the snapshot directory if needed.
func (s *Store) Save(testID string, seq int, content string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("snapstore: save: mkdir: %w", err)
	}
	if err := os.WriteFile(s.path(testID, seq), []byte(content), 0o644); err != nil {
		return fmt.Errorf("snapstore: save: %w", err)
	}
	return nil
}

// Normalize prepares raw buffer text for stable, comparable storage:
// trailing spaces trimmed per line, trailing blank lines dropped, content
// ends with a single newline.
func Normalize(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n") + "\n"
}
