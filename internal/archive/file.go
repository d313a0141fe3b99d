package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// fileArchiver writes gzipped records below a root directory.
type fileArchiver struct {
	dir    string
	logger zerolog.Logger
}

// NewFileArchiver creates an archiver rooted at dir.
func NewFileArchiver(dir string, logger zerolog.Logger) Archiver {
	return &fileArchiver{
		dir:    dir,
		logger: logger.With().Str("component", "webhook-archive").Logger(),
	}
}

// Archive writes the record to dir/key. The file is written under a temporary
// name and renamed so readers never see a partial archive.
func (a *fileArchiver) Archive(ctx context.Context, key string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	filePath := filepath.Join(a.dir, filepath.FromSlash(key))

	data, err := compress(rec)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		a.logger.Error().Err(err).Str("file", filePath).Msg("failed to create archive directory")
		return fmt.Errorf("failed to create archive directory for %s: %w", filePath, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".webhook-*")
	if err != nil {
		a.logger.Error().Err(err).Str("file", filePath).Msg("failed to create archive file")
		return fmt.Errorf("failed to create archive file %s: %w", filePath, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write archive file %s: %w", filePath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write archive file %s: %w", filePath, err)
	}

	if err := os.Rename(tmp.Name(), filePath); err != nil {
		a.logger.Error().Err(err).Str("file", filePath).Msg("failed to move archive file into place")
		return fmt.Errorf("failed to move archive file %s: %w", filePath, err)
	}

	a.logger.Debug().
		Str("file", filePath).
		Int("bytes", len(data)).
		Msg("webhook archived to local file system")

	return nil
}
