package batch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// maxLineBytes bounds a single record; multimodal records carry base64 images.
const maxLineBytes = 16 << 20

// FileStore keeps pending lines in a local JSONL file opened in append mode.
// It provides no locking; callers serialize cycles.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at path. The file is created on first append.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("batch: file path is required")
	}
	return &FileStore{path: path}, nil
}

// Append writes lines to the end of the file, creating it when missing.
func (f *FileStore) Append(_ context.Context, lines [][]byte) error {
	if len(lines) == 0 {
		return nil
	}
	if err := validate(lines); err != nil {
		return err
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("batch: mkdir: %w", err)
		}
	}

	fh, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("batch: open: %w", err)
	}
	w := bufio.NewWriter(fh)
	for _, l := range lines {
		w.Write(l)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		fh.Close()
		return fmt.Errorf("batch: write: %w", err)
	}
	return fh.Close()
}

func (f *FileStore) Count(_ context.Context) (int, error) {
	fh, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("batch: open: %w", err)
	}
	defer fh.Close()

	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	n := 0
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("batch: count: %w", err)
	}
	return n, nil
}

func (f *FileStore) Contents(_ context.Context) ([]byte, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("batch: read: %w", err)
	}
	return b, nil
}

func (f *FileStore) Reset(_ context.Context) error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("batch: reset: %w", err)
	}
	return nil
}
