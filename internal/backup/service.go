// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package backup exports the blog as a JSON snapshot and imports it back.

Snapshots can be downloaded and uploaded directly, or kept in an S3-compatible
bucket. Every operation requires canManageBackups. Imported posts receive new
identifiers and are authored by the importing principal.
*/
package backup

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/blog/post"
	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/pkg/pointer"
)

// SnapshotVersion is written into every export.
const SnapshotVersion = "2.0"

// errStorageDisabled backs the 503 returned when no bucket is configured.
var errStorageDisabled = errors.New("backup storage is not configured")

// # Domain Entities

// Snapshot is the serialized form of the blog.
type Snapshot struct {
	Version    string           `json:"version"`
	ExportDate time.Time        `json:"exportDate"`
	ExportedBy string           `json:"exportedBy,omitempty"`
	Categories []*post.Category `json:"categories"`
	Posts      []*post.Post     `json:"posts"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Categories int      `json:"categories"`
	Imported   int      `json:"imported"`
	Skipped    int      `json:"skipped"`
	Failures   []string `json:"failures"`
}

/*
ParseSnapshot decodes a snapshot. A bare JSON array is read as a list of posts,
the format of the earliest exports.

Returns:
  - *Snapshot
  - error: VALIDATION_ERROR for anything that is not a snapshot
*/
func ParseSnapshot(data []byte) (*Snapshot, error) {
	invalid := apperr.ValidationError("Invalid backup file format")

	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		var posts []*post.Post
		if err := json.Unmarshal(trimmed, &posts); err != nil {
			return nil, invalid
		}
		return &Snapshot{Posts: posts}, nil
	}

	var snapshot Snapshot
	if err := json.Unmarshal(trimmed, &snapshot); err != nil || snapshot.Posts == nil {
		return nil, invalid
	}
	return &snapshot, nil
}

// # Collaborators

// Blog writes imported content through the regular post rules.
type Blog interface {
	Create(ctx context.Context, principal *authz.Principal, input post.Input) (*post.Post, error)
	CreateCategory(ctx context.Context, principal *authz.Principal, input post.CategoryInput) (*post.Category, error)
}

// # Service Layer

// Service implements the backup use cases.
type Service struct {
	posts      post.PostRepository
	categories post.CategoryRepository
	blog       Blog
	objects    ObjectStore
	access     *authz.Service
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a [Service].
type Option func(*Service)

// WithObjectStore enables stored backups.
func WithObjectStore(objects ObjectStore) Option {
	return func(service *Service) { service.objects = objects }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(service *Service) { service.now = now }
}

// NewService constructs a [Service].
func NewService(posts post.PostRepository, categories post.CategoryRepository, blog Blog, access *authz.Service, logger *slog.Logger, options ...Option) *Service {
	service := &Service{
		posts:      posts,
		categories: categories,
		blog:       blog,
		access:     access,
		logger:     logger,
		now:        time.Now,
	}
	for _, option := range options {
		option(service)
	}
	return service
}

// StorageEnabled reports whether stored backups are available.
func (service *Service) StorageEnabled() bool { return service.objects != nil }

// Export captures every post in every status, with the categories.
func (service *Service) Export(context context.Context, principal *authz.Principal) (*Snapshot, error) {
	if err := service.access.Authorize(principal, authz.CanManageBackups); err != nil {
		return nil, err
	}

	posts, err := service.posts.List(context, post.Filter{})
	if err != nil {
		return nil, err
	}
	categories, err := service.categories.List(context)
	if err != nil {
		return nil, err
	}

	service.logger.InfoContext(context, "backup_exported",
		slog.String("actor_id", principal.ID),
		slog.Int("posts", len(posts)),
	)
	return &Snapshot{
		Version:    SnapshotVersion,
		ExportDate: service.now().UTC(),
		ExportedBy: principal.Email,
		Categories: categories,
		Posts:      posts,
	}, nil
}

/*
Import recreates the content of snapshot.

Categories that already exist are kept. A post that fails validation is
skipped and reported in the result; the rest are still imported.
*/
func (service *Service) Import(context context.Context, principal *authz.Principal, snapshot *Snapshot) (ImportResult, error) {
	result := ImportResult{Failures: []string{}}
	if err := service.access.Authorize(principal, authz.CanManageBackups); err != nil {
		return result, err
	}

	for _, category := range snapshot.Categories {
		if category == nil || category.Slug == post.DefaultCategory {
			continue
		}
		_, err := service.blog.CreateCategory(context, principal, post.CategoryInput{
			Name:        cmp.Or(category.Name, category.Slug),
			Description: category.Description,
		})
		switch {
		case err == nil:
			result.Categories++
		case apperr.HasCode(err, apperr.CodeConflict):
		default:
			return result, err
		}
	}

	for _, imported := range snapshot.Posts {
		if imported == nil {
			continue
		}
		input := post.Input{
			Title:    imported.Title,
			Body:     imported.Body,
			Excerpt:  imported.Excerpt,
			Category: imported.Category,
			Tags:     imported.Tags,
			Status:   imported.Status,
			Featured: imported.Featured,
		}
		if !imported.Date.IsZero() {
			input.Date = pointer.To(imported.Date)
		}
		if !validImport(input) {
			result.Skipped++
			result.Failures = append(result.Failures, cmp.Or(imported.Title, "(untitled)"))
			continue
		}

		if _, err := service.blog.Create(context, principal, input); err != nil {
			if !apperr.IsAppError(err) || apperr.HasCode(err, apperr.CodeStoreUnavailable) {
				return result, err
			}
			service.logger.WarnContext(context, "backup_post_skipped",
				slog.String("title", imported.Title),
				slog.Any("error", err),
			)
			result.Skipped++
			result.Failures = append(result.Failures, cmp.Or(imported.Title, "(untitled)"))
			continue
		}
		result.Imported++
	}

	service.logger.InfoContext(context, "backup_imported",
		slog.String("actor_id", principal.ID),
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped),
	)
	return result, nil
}

// # Stored Backups

// Store exports a snapshot and uploads it to the bucket.
func (service *Service) Store(context context.Context, principal *authz.Principal) (Object, error) {
	if err := service.access.Authorize(principal, authz.CanManageBackups); err != nil {
		return Object{}, err
	}
	if service.objects == nil {
		return Object{}, apperr.StoreUnavailable(errStorageDisabled)
	}

	snapshot, err := service.Export(context, principal)
	if err != nil {
		return Object{}, err
	}
	body, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return Object{}, apperr.Internal(fmt.Errorf("snapshot_encode_failed: %w", err))
	}

	name := ObjectName(snapshot.ExportDate)
	if err := service.objects.Put(context, name, body); err != nil {
		return Object{}, apperr.StoreUnavailable(err)
	}

	service.logger.InfoContext(context, "backup_stored",
		slog.String("name", name),
		slog.Int("bytes", len(body)),
	)
	return Object{Name: name, Size: int64(len(body)), LastModified: snapshot.ExportDate}, nil
}

// Stored lists the backups in the bucket, newest first.
func (service *Service) Stored(context context.Context, principal *authz.Principal) ([]Object, error) {
	if err := service.access.Authorize(principal, authz.CanManageBackups); err != nil {
		return nil, err
	}
	if service.objects == nil {
		return nil, apperr.StoreUnavailable(errStorageDisabled)
	}

	objects, err := service.objects.List(context)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return objects, nil
}

// Restore imports a stored backup by name.
func (service *Service) Restore(context context.Context, principal *authz.Principal, name string) (ImportResult, error) {
	if err := service.access.Authorize(principal, authz.CanManageBackups); err != nil {
		return ImportResult{}, err
	}
	if service.objects == nil {
		return ImportResult{}, apperr.StoreUnavailable(errStorageDisabled)
	}
	if strings.ContainsAny(name, `/\`) || !strings.HasSuffix(name, ".json") {
		return ImportResult{}, apperr.ValidationError("Invalid backup name",
			apperr.FieldError{Field: "name", Message: "Must be a .json backup name"})
	}

	body, err := service.objects.Get(context, name)
	if errors.Is(err, ErrObjectNotFound) {
		return ImportResult{}, apperr.NotFound("Backup")
	}
	if err != nil {
		return ImportResult{}, apperr.StoreUnavailable(err)
	}

	snapshot, err := ParseSnapshot(body)
	if err != nil {
		return ImportResult{}, err
	}
	return service.Import(context, principal, snapshot)
}

// ObjectName is the stored name of a snapshot taken at instant.
func ObjectName(instant time.Time) string {
	return "dreamlog-backup-" + instant.UTC().Format("20060102T150405Z") + ".json"
}

func validImport(input post.Input) bool {
	if input.Status != "" {
		if _, err := post.ParseStatus(string(input.Status)); err != nil {
			return false
		}
	}
	title := strings.TrimSpace(input.Title)
	return title != "" &&
		len([]rune(title)) <= post.MaxTitleLength &&
		len([]rune(input.Body)) <= post.MaxBodyLength &&
		len(input.Tags) <= post.MaxTags
}
