// Package avatar stores user avatar images.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wc-reservation-backend/config"
)

var (
	ErrEmpty    = errors.New("no file provided")
	ErrTooLarge = errors.New("file too large")
)

// Service validates uploads and hands them to a Store.
type Service struct {
	store    Store
	maxBytes int64
	log      zerolog.Logger
}

// NewService creates a service accepting files up to maxBytes.
func NewService(store Store, maxBytes int64, log zerolog.Logger) *Service {
	return &Service{store: store, maxBytes: maxBytes, log: log}
}

// NewFromConfig picks the backend named in cfg.
func NewFromConfig(ctx context.Context, cfg config.AvatarConfig, log zerolog.Logger) (*Service, *LocalStore, error) {
	switch cfg.Backend {
	case "local":
		local, err := NewLocalStore(cfg.Dir, cfg.URLPath)
		if err != nil {
			return nil, nil, err
		}
		return NewService(local, cfg.MaxBytes, log), local, nil
	case "minio":
		remote, err := NewMinioStore(cfg.Minio)
		if err != nil {
			return nil, nil, err
		}
		if err := remote.EnsureBucket(ctx); err != nil {
			return nil, nil, err
		}
		return NewService(remote, cfg.MaxBytes, log), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported avatar backend: %s", cfg.Backend)
	}
}

// MaxBytes is the size limit for one upload.
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Upload reads an image from r and returns its public URL.
func (s *Service) Upload(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if int64(len(data)) > s.maxBytes {
		return "", ErrTooLarge
	}

	kind, err := Detect(data)
	if err != nil {
		return "", err
	}

	name := "avatar-" + uuid.NewString() + kind.Ext
	url, err := s.store.Put(ctx, name, kind, data)
	if err != nil {
		return "", err
	}
	s.log.Info().Str("name", name).Int("bytes", len(data)).Msg("avatar stored")
	return url, nil
}
