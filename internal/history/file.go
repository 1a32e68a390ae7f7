package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"kitascrape-engine/internal/domain"
)

const fileVersion = 1

type fileDoc struct {
	Version int                   `json:"version"`
	Entries []domain.HistoryEntry `json:"entries"`
}

// FilePersister keeps the history as one JSON document, replaced atomically
// on every save.
type FilePersister struct {
	Path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

// Load returns an empty list when the file does not exist yet.
func (f *FilePersister) Load(ctx context.Context) ([]domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc fileDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	if doc.Version != fileVersion {
		return nil, fmt.Errorf("%s: unsupported version %d", f.Path, doc.Version)
	}
	return doc.Entries, nil
}

func (f *FilePersister) Save(ctx context.Context, entries []domain.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	b, err := json.MarshalIndent(fileDoc{Version: fileVersion, Entries: entries}, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}
