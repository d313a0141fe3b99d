// Package archive keeps a gzipped copy of every webhook delivery, on local
// disk, in S3, or in S3 with a local fallback.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"time"

	"isawan/internal/config"

	"github.com/rs/zerolog"
)

// Record is one raw webhook delivery.
type Record struct {
	ReceivedAt time.Time
	Signature  string
	Body       []byte
}

// Key returns the relative object name for the record:
// YYYY/MM/DD/<unix-nanos>-<body-sha256-prefix>.json.gz (UTC).
func (r Record) Key() string {
	sum := sha256.Sum256(r.Body)
	ts := r.ReceivedAt.UTC()
	return path.Join(
		ts.Format("2006/01/02"),
		fmt.Sprintf("%d-%s.json.gz", ts.UnixNano(), hex.EncodeToString(sum[:6])),
	)
}

// Archiver stores webhook records.
type Archiver interface {
	// Archive writes the record under key. Implementations must not retain
	// rec.Body after returning.
	Archive(ctx context.Context, key string, rec Record) error
}

// New builds the archiver described by cfg. A disabled archive returns a
// no-op archiver.
func New(ctx context.Context, cfg config.ArchiveConfig, logger zerolog.Logger) (Archiver, error) {
	if !cfg.Enabled {
		return Nop(), nil
	}

	var local Archiver
	if cfg.Dir != "" {
		local = NewFileArchiver(cfg.Dir, logger)
	}

	var remote Archiver
	if cfg.S3Enabled {
		s3Archiver, err := NewS3Archiver(ctx, cfg.Bucket, cfg.Region, logger)
		if err != nil {
			if local == nil {
				return nil, err
			}
			logger.Warn().Err(err).Msg("S3 archive unavailable, archiving to local directory only")
		} else {
			remote = s3Archiver
		}
	}

	return NewFallbackArchiver(remote, local, cfg.Prefix, cfg.S3Enabled, logger), nil
}

// compress gzips the record body.
func compress(rec Record) ([]byte, error) {
	var buf bytes.Buffer

	gzipWriter := gzip.NewWriter(&buf)
	gzipWriter.ModTime = rec.ReceivedAt
	if _, err := gzipWriter.Write(rec.Body); err != nil {
		return nil, fmt.Errorf("failed to compress webhook body: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress webhook body: %w", err)
	}

	return buf.Bytes(), nil
}

type nopArchiver struct{}

// Nop returns an archiver that discards records.
func Nop() Archiver {
	return nopArchiver{}
}

func (nopArchiver) Archive(context.Context, string, Record) error {
	return nil
}
