// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comment_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/blog/comment"
	"github.com/taibuivan/dreamlog/internal/blog/post"
	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/database/schema"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
)

// # Fixtures

// racingStore bumps a comment's version right before the next races updates,
// as a concurrent writer would.
type racingStore struct {
	docstore.Store

	mu    sync.Mutex
	races int
}

func (store *racingStore) Update(ctx context.Context, collection, id string, fields docstore.Fields, preconds ...docstore.Precondition) (*docstore.Document, error) {
	store.mu.Lock()
	race := collection == schema.BlogComment.Collection && store.races > 0
	if race {
		store.races--
	}
	store.mu.Unlock()

	if race {
		if _, err := store.Store.Update(ctx, collection, id, docstore.Fields{}); err != nil {
			return nil, err
		}
	}
	return store.Store.Update(ctx, collection, id, fields, preconds...)
}

func (store *racingStore) race(n int) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.races = n
}

type fixture struct {
	store    *racingStore
	access   *authz.Service
	posts    *post.Service
	comments *comment.Service
	now      time.Time
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: &racingStore{Store: docstore.NewMemoryStore()},
		now:   time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	f.access = authz.NewService(f.store, discardLogger())
	f.posts = post.NewService(
		post.NewPostRepository(f.store),
		post.NewCategoryRepository(f.store),
		f.access,
		discardLogger(),
		post.WithClock(clock),
	)
	f.comments = comment.NewService(comment.NewRepository(f.store), f.posts, f.access, discardLogger(), comment.WithClock(clock))
	return f
}

func (f *fixture) seed(t *testing.T, id string, role authz.Role) *authz.Principal {
	t.Helper()
	p := schema.UserProfile
	_, err := f.store.Set(context.Background(), p.Collection, id, docstore.Fields{
		p.Email:       id + "@dreamlog.app",
		p.DisplayName: strings.ToUpper(id[:1]) + id[1:],
		p.Role:        string(role),
		p.IsActive:    true,
	})
	require.NoError(t, err)

	principal, err := f.access.LoadPrincipal(context.Background(), id)
	require.NoError(t, err)
	return principal
}

func (f *fixture) publish(t *testing.T, editor *authz.Principal, title string) *post.Post {
	t.Helper()
	created, err := f.posts.Create(context.Background(), editor, post.Input{Title: title, Body: "Once.", Status: post.StatusPublished})
	require.NoError(t, err)
	return created
}

func (f *fixture) add(t *testing.T, author *authz.Principal, postID, content, parentID string) *comment.Comment {
	t.Helper()
	added, err := f.comments.Add(context.Background(), author, postID, content, parentID)
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	return added
}

// # Threads

/*
TestService_Thread nests replies one level deep and hides unapproved comments.
*/
func TestService_Thread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editor := f.seed(t, "editor", authz.RoleEditor)
	reader := f.seed(t, "reader", authz.RoleUser)
	published := f.publish(t, editor, "Night Ferry")

	first := f.add(t, reader, published.ID, "Loved the ending.", "")
	reply := f.add(t, editor, published.ID, "Thank you!", first.ID)
	nested := f.add(t, reader, published.ID, "You're welcome.", reply.ID)
	second := f.add(t, reader, published.ID, "  Part two?  ", "")
	hidden := f.add(t, reader, published.ID, "spam", "")

	assert.Equal(t, first.ID, nested.ParentID, "reply to a reply attaches to the top-level comment")
	assert.Equal(t, "Part two?", second.Content)
	assert.Equal(t, "Reader", first.AuthorName)
	assert.Equal(t, comment.StatusApproved, first.Status)

	_, err := f.comments.SetStatus(ctx, editor, hidden.ID, comment.StatusHidden)
	require.NoError(t, err)

	threaded, err := f.comments.Thread(ctx, published.ID)
	require.NoError(t, err)
	require.Len(t, threaded, 2)
	assert.Equal(t, first.ID, threaded[0].ID)
	assert.Equal(t, second.ID, threaded[1].ID)
	require.Len(t, threaded[0].Replies, 2)
	assert.Equal(t, reply.ID, threaded[0].Replies[0].ID)
	assert.Equal(t, nested.ID, threaded[0].Replies[1].ID)
	assert.Empty(t, threaded[1].Replies)

	t.Run("unpublished_post", func(t *testing.T) {
		draft, err := f.posts.Create(ctx, editor, post.Input{Title: "Draft"})
		require.NoError(t, err)

		_, err = f.comments.Thread(ctx, draft.ID)
		assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))

		_, err = f.comments.Add(ctx, reader, draft.ID, "first!", "")
		assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
	})

	t.Run("empty_thread", func(t *testing.T) {
		quiet := f.publish(t, editor, "Quiet Post")
		threaded, err := f.comments.Thread(ctx, quiet.ID)
		require.NoError(t, err)
		assert.NotNil(t, threaded)
		assert.Empty(t, threaded)
	})
}

/*
TestService_Add rejects anonymous callers, bad content and foreign parents.
*/
func TestService_Add(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editor := f.seed(t, "editor", authz.RoleEditor)
	reader := f.seed(t, "reader", authz.RoleUser)
	one := f.publish(t, editor, "One")
	two := f.publish(t, editor, "Two")
	parent := f.add(t, reader, one.ID, "Hello", "")

	tests := []struct {
		name      string
		principal *authz.Principal
		postID    string
		content   string
		parentID  string
		code      string
	}{
		{"anonymous", nil, one.ID, "hi", "", apperr.CodeUnauthenticated},
		{"blank", reader, one.ID, "   ", "", apperr.CodeValidation},
		{"too_long", reader, one.ID, strings.Repeat("a", comment.MaxContentLength+1), "", apperr.CodeValidation},
		{"missing_post", reader, "nope", "hi", "", apperr.CodeNotFound},
		{"missing_parent", reader, one.ID, "hi", "nope", apperr.CodeValidation},
		{"foreign_parent", reader, two.ID, "hi", parent.ID, apperr.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.comments.Add(ctx, tt.principal, tt.postID, tt.content, tt.parentID)
			assert.True(t, apperr.HasCode(err, tt.code), "got %v", err)
		})
	}

	t.Run("inactive", func(t *testing.T) {
		inactive := *reader
		inactive.IsActive = false
		_, err := f.comments.Add(ctx, &inactive, one.ID, "hi", "")
		assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))
	})
}

// # Edits

/*
TestService_EditDelete lets authors and moderators modify, nobody else.
*/
func TestService_EditDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editor := f.seed(t, "editor", authz.RoleEditor)
	reader := f.seed(t, "reader", authz.RoleUser)
	other := f.seed(t, "other", authz.RoleUser)
	published := f.publish(t, editor, "Lanterns")

	own := f.add(t, reader, published.ID, "Frist", "")

	t.Run("author_edits", func(t *testing.T) {
		edited, err := f.comments.Edit(ctx, reader, own.ID, "First")
		require.NoError(t, err)
		assert.Equal(t, "First", edited.Content)
		assert.True(t, edited.Edited)
		assert.Greater(t, edited.Version, own.Version)
	})

	t.Run("stranger_forbidden", func(t *testing.T) {
		_, err := f.comments.Edit(ctx, other, own.ID, "Mine now")
		assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))

		err = f.comments.Delete(ctx, other, own.ID)
		assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))
	})

	t.Run("anonymous", func(t *testing.T) {
		err := f.comments.Delete(ctx, nil, own.ID)
		assert.True(t, apperr.HasCode(err, apperr.CodeUnauthenticated))
	})

	t.Run("moderator_edits", func(t *testing.T) {
		edited, err := f.comments.Edit(ctx, editor, own.ID, "[removed link]")
		require.NoError(t, err)
		assert.Equal(t, reader.ID, edited.AuthorID)
	})

	t.Run("delete_cascades_replies", func(t *testing.T) {
		root := f.add(t, other, published.ID, "Root", "")
		f.add(t, reader, published.ID, "Reply one", root.ID)
		f.add(t, editor, published.ID, "Reply two", root.ID)

		require.NoError(t, f.comments.Delete(ctx, other, root.ID))

		threaded, err := f.comments.Thread(ctx, published.ID)
		require.NoError(t, err)
		require.Len(t, threaded, 1)
		assert.Equal(t, own.ID, threaded[0].ID)

		count, err := f.store.Count(ctx, schema.BlogComment.Collection, docstore.Query{}.
			Where(schema.BlogComment.ParentID, docstore.OpEqual, root.ID))
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("delete_missing", func(t *testing.T) {
		err := f.comments.Delete(ctx, editor, "nope")
		assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
	})
}

// # Likes

/*
TestService_ToggleLike flips likes and retries on concurrent writes.
*/
func TestService_ToggleLike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editor := f.seed(t, "editor", authz.RoleEditor)
	reader := f.seed(t, "reader", authz.RoleUser)
	other := f.seed(t, "other", authz.RoleUser)
	published := f.publish(t, editor, "Tidepools")
	target := f.add(t, editor, published.ID, "Pinned", "")

	liked, on, err := f.comments.ToggleLike(ctx, reader, target.ID)
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, 1, liked.Likes)
	assert.Equal(t, []string{"reader"}, liked.LikedBy)

	liked, on, err = f.comments.ToggleLike(ctx, other, target.ID)
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, 2, liked.Likes)

	liked, on, err = f.comments.ToggleLike(ctx, reader, target.ID)
	require.NoError(t, err)
	assert.False(t, on)
	assert.Equal(t, 1, liked.Likes)
	assert.Equal(t, []string{"other"}, liked.LikedBy)

	t.Run("anonymous", func(t *testing.T) {
		_, _, err := f.comments.ToggleLike(ctx, nil, target.ID)
		assert.True(t, apperr.HasCode(err, apperr.CodeUnauthenticated))
	})

	t.Run("retries_conflicts", func(t *testing.T) {
		f.store.race(2)
		liked, on, err := f.comments.ToggleLike(ctx, reader, target.ID)
		require.NoError(t, err)
		assert.True(t, on)
		assert.Equal(t, 2, liked.Likes)
	})

	t.Run("gives_up", func(t *testing.T) {
		f.store.race(3)
		_, _, err := f.comments.ToggleLike(ctx, other, target.ID)
		assert.True(t, apperr.HasCode(err, apperr.CodeConflict))
		f.store.race(0)

		current, _, err := f.comments.ToggleLike(ctx, editor, target.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, current.Likes, "the abandoned toggle left no trace")
	})

	t.Run("hidden_comment", func(t *testing.T) {
		_, err := f.comments.SetStatus(ctx, editor, target.ID, comment.StatusHidden)
		require.NoError(t, err)
		_, _, err = f.comments.ToggleLike(ctx, reader, target.ID)
		assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
	})
}

// # Moderation

/*
TestService_Moderation restricts status changes and the queue to moderators.
*/
func TestService_Moderation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editor := f.seed(t, "editor", authz.RoleEditor)
	writer := f.seed(t, "writer", authz.RoleContributor)
	reader := f.seed(t, "reader", authz.RoleUser)
	published := f.publish(t, editor, "Harbor")

	first := f.add(t, reader, published.ID, "one", "")
	second := f.add(t, reader, published.ID, "two", "")

	_, err := f.comments.SetStatus(ctx, writer, first.ID, comment.StatusHidden)
	assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))

	_, err = f.comments.SetStatus(ctx, nil, first.ID, comment.StatusHidden)
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthenticated))

	for _, id := range []string{first.ID, second.ID} {
		moderated, err := f.comments.SetStatus(ctx, editor, id, comment.StatusPending)
		require.NoError(t, err)
		assert.Equal(t, comment.StatusPending, moderated.Status)
	}

	unchanged, err := f.comments.SetStatus(ctx, editor, first.ID, comment.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, comment.StatusPending, unchanged.Status)

	queue, err := f.comments.Queue(ctx, editor, comment.StatusPending, 10)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, second.ID, queue[0].ID, "newest first")

	_, err = f.comments.Queue(ctx, reader, comment.StatusPending, 10)
	assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))
}

/*
TestService_DeleteForPost removes a deleted post's comments and nothing else.
*/
func TestService_DeleteForPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	editor := f.seed(t, "editor", authz.RoleEditor)
	reader := f.seed(t, "reader", authz.RoleUser)
	doomed := f.publish(t, editor, "Doomed")
	kept := f.publish(t, editor, "Kept")

	root := f.add(t, reader, doomed.ID, "a", "")
	f.add(t, reader, doomed.ID, "b", root.ID)
	f.add(t, reader, kept.ID, "c", "")

	require.NoError(t, f.comments.DeleteForPost(ctx, doomed.ID))

	c := schema.BlogComment
	remaining, err := f.store.Count(ctx, c.Collection, docstore.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	threaded, err := f.comments.Thread(ctx, kept.ID)
	require.NoError(t, err)
	assert.Len(t, threaded, 1)
}

func TestParseStatus(t *testing.T) {
	status, err := comment.ParseStatus("hidden")
	assert.NoError(t, err)
	assert.Equal(t, comment.StatusHidden, status)

	_, err = comment.ParseStatus("deleted")
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
}
