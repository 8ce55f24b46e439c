package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"karybot/lib/sl"
)

// FileStore keeps each named record as a JSON file under a single
// directory. Writes go through a temp file and rename so a concurrent
// reader never observes a partial record.
type FileStore struct {
	dir string
	log *slog.Logger
}

func NewFileStore(dir string, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store dir: %w", err)
	}
	return &FileStore{
		dir: dir,
		log: log.With(sl.Module("store.file")),
	}, nil
}

func (f *FileStore) path(name string) string {
	return filepath.Join(f.dir, name+".json")
}

// Load reads the named record into out. Absent or corrupt files are
// treated as empty: availability wins over strict durability.
func (f *FileStore) Load(name string, out any) error {
	data, err := os.ReadFile(f.path(name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.log.With(slog.String("record", name)).Warn("reading record", sl.Err(err))
		}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		f.log.With(slog.String("record", name)).Warn("corrupt record, starting empty", sl.Err(err))
		return nil
	}
	return nil
}

// Save replaces the named record with the full content of v.
func (f *FileStore) Save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	tmp := f.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, f.path(name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
