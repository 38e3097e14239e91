package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirSink writes finished exports into a directory.
type DirSink struct {
	Dir string
}

// Deliver implements Sink.
func (s DirSink) Deliver(_ context.Context, f File) error {
	if s.Dir == "" {
		return fmt.Errorf("export: directory not configured")
	}
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return fmt.Errorf("export: create dir: %w", err)
	}
	path := filepath.Join(s.Dir, filepath.Base(f.Name))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, f.Body, 0o640); err != nil {
		return fmt.Errorf("export: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("export: rename %s: %w", path, err)
	}
	return nil
}

// Path returns where f would be written.
func (s DirSink) Path(name string) string {
	return filepath.Join(s.Dir, filepath.Base(name))
}
