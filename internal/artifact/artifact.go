package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// DefaultExt is used when a capture file carries no extension
const DefaultExt = ".opus"

// Store copies finished captures out of whatever transient location the
// capture layer produced them in (usually a temp dir the OS may reclaim)
// into an app-owned directory
type Store struct {
	dir string
	log *log.Logger
}

func NewStore(dir string, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}

	return &Store{
		dir: dir,
		log: logger,
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Ingest copies a raw capture into durable storage under a fresh unique
// name, preserving the extension. A failed copy is not fatal: the original
// URI is returned alongside the error so the recording is never lost just
// because the durability copy failed. Callers should log the error and
// keep going.
func (s *Store) Ingest(ctx context.Context, rawURI string) (string, error) {
	if err := ctx.Err(); err != nil {
		return rawURI, err
	}

	ext := filepath.Ext(rawURI)
	if ext == "" {
		ext = DefaultExt
	}

	durableURI := filepath.Join(s.dir, uuid.New().String()+ext)

	if err := copyFile(rawURI, durableURI); err != nil {
		return rawURI, fmt.Errorf("failed to copy capture into durable storage: %w", err)
	}

	s.log.Debug("Capture ingested", "from", rawURI, "to", durableURI)
	return durableURI, nil
}

// Delete removes an artifact. A missing file is not an error: cleanup is
// best-effort and a leaked file is preferable to a failure.
func (s *Store) Delete(ctx context.Context, uri string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(uri); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}

	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	return nil
}
