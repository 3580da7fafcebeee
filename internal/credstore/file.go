package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FilePerms restricts the credential file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credential file's directory.
const DirPerms = 0o700

// FileBackend keeps every user's record in one JSON object keyed by user ID.
// Each mutation rewrites the whole file atomically (temp file, fsync,
// rename), so readers never see a torn file. A mutex serializes the
// read-modify-write cycle within the process.
type FileBackend struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileBackend returns a backend storing records at path.
func NewFileBackend(path string, logger *slog.Logger) *FileBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &FileBackend{path: path, logger: logger}
}

// Get returns the raw record for userID, or nil if none exists.
func (b *FileBackend) Get(_ context.Context, userID string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.readAll()
	if err != nil {
		return nil, err
	}

	return records[userID], nil
}

// Put replaces the record for userID.
func (b *FileBackend) Put(_ context.Context, userID string, blob []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.readAll()
	if err != nil {
		return err
	}

	records[userID] = json.RawMessage(blob)

	return b.writeAll(records)
}

// Delete removes the record for userID and reports whether it existed.
func (b *FileBackend) Delete(_ context.Context, userID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.readAll()
	if err != nil {
		return false, err
	}

	if _, ok := records[userID]; !ok {
		return false, nil
	}

	delete(records, userID)

	return true, b.writeAll(records)
}

// List returns every stored user ID in sorted order.
func (b *FileBackend) List(_ context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.readAll()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids, nil
}

// readAll loads the record map. A missing file is an empty map. A file that
// does not decode is logged and also treated as empty; the next write
// replaces it.
func (b *FileBackend) readAll() (map[string]json.RawMessage, error) {
	records := make(map[string]json.RawMessage)

	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return records, nil
	}

	if err != nil {
		return nil, fmt.Errorf("credstore: reading %s: %w", b.path, err)
	}

	if len(data) == 0 {
		return records, nil
	}

	if err := json.Unmarshal(data, &records); err != nil {
		b.logger.Warn("credential file is corrupt, treating as empty",
			slog.String("path", b.path),
			slog.String("error", err.Error()),
		)

		return make(map[string]json.RawMessage), nil
	}

	return records, nil
}

// writeAll writes the record map atomically with 0600 permissions.
func (b *FileBackend) writeAll(records map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("credstore: encoding: %w", err)
	}

	dir := filepath.Dir(b.path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("credstore: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("credstore: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credstore: closing: %w", err)
	}

	if err := os.Rename(tmpPath, b.path); err != nil {
		return fmt.Errorf("credstore: renaming: %w", err)
	}

	success = true

	return nil
}
