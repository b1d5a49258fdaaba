// Package photos implements the famille photo upload and listing flows on top
// of the identity resolver and the signed object store client.
package photos

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stefando/weddingPhotos/internal/identity"
	"github.com/stefando/weddingPhotos/internal/metrics"
	"github.com/stefando/weddingPhotos/internal/objectstore"
)

// DefaultMaxBytes is the upload limit used when none is configured.
const DefaultMaxBytes int64 = 10 << 20

// Store is the subset of the object store the service needs.
type Store interface {
	Bucket() string
	Put(ctx context.Context, key, contentType string, body []byte) error
	List(ctx context.Context, prefix string) ([]objectstore.Object, error)
	PublicURL(key string) string
}

// File is an uploaded photo.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadResult describes a stored photo.
type UploadResult struct {
	Path      string `json:"path"`
	PublicURL string `json:"publicUrl"`
	FamilleID int64  `json:"familleId"`
}

// Item is one photo of a famille listing.
type Item struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified"`
}

// Options tunes a Service. Zero values select defaults.
type Options struct {
	MaxBytes int64
	Keys     KeyGenerator
	Observer metrics.Observer
	Logger   *slog.Logger
}

// Service handles photo uploads and listings with famille isolation
type Service struct {
	resolver identity.Resolver
	store    Store
	maxBytes int64
	keys     KeyGenerator
	observer metrics.Observer
	logger   *slog.Logger
}

// NewService creates a photo service backed by resolver and store.
func NewService(resolver identity.Resolver, store Store, opts Options) *Service {
	s := &Service{
		resolver: resolver,
		store:    store,
		maxBytes: opts.MaxBytes,
		keys:     opts.Keys,
		observer: opts.Observer,
		logger:   opts.Logger,
	}
	if s.maxBytes <= 0 {
		s.maxBytes = DefaultMaxBytes
	}
	if s.keys.Now == nil && s.keys.Random == nil {
		s.keys = NewKeyGenerator()
	}
	if s.observer == nil {
		s.observer = metrics.Nop()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// MaxBytes returns the inclusive upload size limit.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload stores file under the famille owning token.
func (s *Service) Upload(ctx context.Context, token string, file File) (res *UploadResult, err error) {
	start := time.Now()
	defer func() {
		s.observer.RecordUpload(time.Since(start), int64(len(file.Data)), err)
	}()

	if token == "" {
		return nil, ErrMissingToken
	}
	if file.Data == nil {
		return nil, ErrMissingFile
	}
	// Limit is inclusive
	if int64(len(file.Data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(file.Data), s.maxBytes)
	}

	familleID, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}

	key := s.keys.Key(familleID, file.Name)
	if err := s.store.Put(ctx, key, file.ContentType, file.Data); err != nil {
		return nil, fmt.Errorf("failed to upload photo: %w", err)
	}

	s.logger.InfoContext(ctx, "photo uploaded",
		slog.Int64("famille_id", familleID),
		slog.String("key", key),
		slog.Int("size", len(file.Data)))

	return &UploadResult{
		Path:      s.store.Bucket() + "/" + key,
		PublicURL: s.store.PublicURL(key),
		FamilleID: familleID,
	}, nil
}

// List returns the photos of the famille owning token.
func (s *Service) List(ctx context.Context, token string) (items []Item, err error) {
	start := time.Now()
	defer func() {
		s.observer.RecordList(time.Since(start), len(items), err)
	}()

	if token == "" {
		return nil, ErrMissingToken
	}

	familleID, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}

	prefix := TenantPrefix(familleID) + "/"
	objects, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}

	items = make([]Item, 0, len(objects))
	for _, obj := range objects {
		// The store may ignore the prefix parameter
		if !strings.HasPrefix(obj.Key, prefix) {
			s.logger.WarnContext(ctx, "dropping foreign key from listing",
				slog.Int64("famille_id", familleID),
				slog.String("key", obj.Key))
			continue
		}
		items = append(items, Item{
			Key:          obj.Key,
			Name:         baseName(obj.Key),
			URL:          s.store.PublicURL(obj.Key),
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return items, nil
}
