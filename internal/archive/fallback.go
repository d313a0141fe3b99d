package archive

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// fallbackArchiver tries S3 first, then falls back to the local file system.
type fallbackArchiver struct {
	s3Archiver   Archiver
	fileArchiver Archiver
	s3Prefix     string
	s3Enabled    bool
	logger       zerolog.Logger
}

// NewFallbackArchiver creates an archiver that writes to S3 when enabled and
// configured, and to the file archiver when S3 is skipped or fails. Either
// archiver may be nil.
func NewFallbackArchiver(s3Archiver, fileArchiver Archiver, s3Prefix string, s3Enabled bool, logger zerolog.Logger) Archiver {
	return &fallbackArchiver{
		s3Archiver:   s3Archiver,
		fileArchiver: fileArchiver,
		s3Prefix:     s3Prefix,
		s3Enabled:    s3Enabled,
		logger:       logger.With().Str("component", "fallback-archive").Logger(),
	}
}

// Archive prepends the S3 prefix for uploads; local writes use key as-is.
func (a *fallbackArchiver) Archive(ctx context.Context, key string, rec Record) error {
	var s3Err error

	if a.s3Enabled && a.s3Archiver != nil {
		s3Key := a.s3Prefix + key

		s3Err = a.s3Archiver.Archive(ctx, s3Key, rec)
		if s3Err == nil {
			return nil
		}

		if a.fileArchiver == nil {
			return s3Err
		}

		a.logger.Warn().
			Err(s3Err).
			Str("s3_key", s3Key).
			Msg("failed to archive to S3, falling back to local file system")
	}

	if a.fileArchiver == nil {
		return errors.New("no webhook archive configured")
	}

	return a.fileArchiver.Archive(ctx, key, rec)
}
