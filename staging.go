package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ============================================================================
// Source Staging and Output Placement
// ============================================================================

// Stager resolves an opaque source locator into a locally readable file
// path. Implementations may copy bytes into a scratch location or validate
// the locator in place.
type Stager interface {
	Stage(ctx context.Context, locator string) (string, error)
}

// OutputProvider returns the directory finished files are written into,
// creating it when needed.
type OutputProvider interface {
	OutputDir() (string, error)
}

// SizeQuerier reports the byte size of a locator, 0 when it cannot tell.
type SizeQuerier interface {
	Size(locator string) int64
}

// LocalStager stages plain filesystem paths. With ScratchDir set, sources
// are copied there before use; otherwise the path is validated and used in
// place. Copies are left behind for the caller to clean up.
type LocalStager struct {
	ScratchDir string
}

func (s LocalStager) Stage(ctx context.Context, locator string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := os.Open(locator)
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", locator, err)
	}
	defer src.Close()

	if s.ScratchDir == "" {
		return locator, nil
	}

	if err := os.MkdirAll(s.ScratchDir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	path := filepath.Join(s.ScratchDir, uuid.NewString()+filepath.Ext(locator))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("stage %s: %w", locator, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("stage %s: %w", locator, err)
	}
	return path, nil
}

// DirOutput provides one fixed output directory.
type DirOutput struct {
	Dir string
}

func (d DirOutput) OutputDir() (string, error) {
	if d.Dir == "" {
		return "", errors.New("output directory not set")
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return d.Dir, nil
}

// StatSizer measures local files with os.Stat.
type StatSizer struct{}

func (StatSizer) Size(locator string) int64 {
	fi, err := os.Stat(locator)
	if err != nil {
		return 0
	}
	return fi.Size()
}
