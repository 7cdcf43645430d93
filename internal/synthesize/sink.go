package synthesize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"dubber/internal/config"
	"dubber/internal/fileutil"
)

// AudioSink stores synthesized audio clips and returns a stable asset
// reference for each one.
type AudioSink interface {
	Save(ctx context.Context, jobID, name string, data []byte) (string, error)
}

// DirSink writes clips beneath the daemon's data directory, one folder per
// job.
type DirSink struct {
	root string
}

// NewDirSink builds a sink rooted at the configured data directory.
func NewDirSink(cfg *config.Config) *DirSink {
	return &DirSink{root: filepath.Join(cfg.Paths.DataDir, "audio")}
}

// Save writes the clip and returns its path.
func (s *DirSink) Save(ctx context.Context, jobID, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("audio sink: empty clip %s", name)
	}
	dir := filepath.Join(s.root, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("audio sink: create %s: %w", dir, err)
	}
	target := filepath.Join(dir, name)
	if err := fileutil.WriteFileAtomic(target, data, 0o644); err != nil {
		return "", fmt.Errorf("audio sink: write %s: %w", target, err)
	}
	if err := fileutil.VerifyWrite(target, data); err != nil {
		return "", fmt.Errorf("audio sink: %w", err)
	}
	return target, nil
}
