// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/dreamlog/internal/api"
	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/backup"
	"github.com/taibuivan/dreamlog/internal/blog/comment"
	"github.com/taibuivan/dreamlog/internal/blog/post"
	"github.com/taibuivan/dreamlog/internal/blog/subscriber"
	"github.com/taibuivan/dreamlog/internal/identity"
	"github.com/taibuivan/dreamlog/internal/platform/config"
	"github.com/taibuivan/dreamlog/internal/platform/constants"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
	"github.com/taibuivan/dreamlog/internal/platform/metrics"
	"github.com/taibuivan/dreamlog/internal/platform/sec"
	"github.com/taibuivan/dreamlog/internal/users"
)

const password = "correct horse battery"

func TestMain(m *testing.M) {
	sec.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

// # Fixture

type app struct {
	server  *httptest.Server
	access  *authz.Service
	healthy atomic.Bool
}

// newApp wires the full router over a memory store and an in-process Redis,
// the same way cmd/api does.
func newApp(t *testing.T) *app {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rdb := redis.NewClient(&redis.Options{Addr: miniredis.RunT(t).Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokens := sec.NewTokenServiceFromKeys(key, &key.PublicKey, constants.AuthIssuer)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	store := docstore.NewMemoryStore()
	broker := identity.NewBroker(rdb, m, log)
	require.NoError(t, broker.Start(ctx))

	accounts := identity.NewAccountRepository(store)
	sessions := identity.NewSessionRepository(rdb)
	access := authz.NewService(store, log, authz.WithDirectory(accounts), authz.WithNotifier(broker), authz.WithMetrics(m))
	identityService := identity.NewService(identity.Dependencies{
		Accounts: accounts,
		Sessions: sessions,
		Resets:   identity.NewResetTokenRepository(rdb),
		Tokens:   tokens,
		Events:   broker,
		Metrics:  m,
		Logger:   log,
	})

	postRepository := post.NewPostRepository(store)
	categoryRepository := post.NewCategoryRepository(store)
	var comments *comment.Service
	posts := post.NewService(postRepository, categoryRepository, access, log,
		post.WithCommentPurger(post.CommentPurgerFunc(func(ctx context.Context, postID string) error {
			return comments.DeleteForPost(ctx, postID)
		})))
	comments = comment.NewService(comment.NewRepository(store), posts, access, log)
	backups := backup.NewService(postRepository, categoryRepository, posts, access, log)

	a := &app{access: access}
	a.healthy.Store(true)
	liveness, readiness := api.NewHealthHandlers([]api.DependencyCheck{{
		Name: "redis",
		Probe: func(context.Context) error {
			if !a.healthy.Load() {
				return errors.New("connection refused")
			}
			return nil
		},
	}}, log)

	cfg := &config.Config{ServerPort: "0", Environment: "development", StoreBackend: config.StoreMemory}
	server := api.NewServer(ctx, cfg, log, tokens, m, api.Handlers{
		Liveness:    liveness,
		Readiness:   readiness,
		Metrics:     metrics.Handler(registry),
		Access:      access,
		Identity:    identity.NewHandler(identityService, true),
		Authz:       authz.NewHandler(access, identity.NewPresenceTracker(broker, sessions), constants.GuardInterval, log),
		Users:       users.NewHandler(users.NewService(users.NewProfileRepository(store), access, identityService, log)),
		Posts:       post.NewHandler(posts),
		Comments:    comment.NewHandler(comments),
		Subscribers: subscriber.NewHandler(subscriber.NewService(subscriber.NewRepository(store), access, log)),
		Backups:     backup.NewHandler(backups),
	})

	a.server = httptest.NewServer(server.Handler())
	t.Cleanup(a.server.Close)
	return a
}

type reply struct {
	status int
	body   map[string]any
	raw    string
}

func (r reply) data() map[string]any {
	data, _ := r.body["data"].(map[string]any)
	return data
}

func (a *app) call(t *testing.T, method, path, token, body string) reply {
	t.Helper()
	request, err := http.NewRequest(method, a.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set(constants.HeaderAuthorization, "Bearer "+token)
	}

	response, err := a.server.Client().Do(request)
	require.NoError(t, err)
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	require.NoError(t, err)

	result := reply{status: response.StatusCode, raw: string(raw)}
	_ = json.Unmarshal(raw, &result.body)
	return result
}

// signUp registers email through the API and returns an access token.
func (a *app) signUp(t *testing.T, email, name string) (string, string) {
	t.Helper()
	registered := a.call(t, http.MethodPost, "/api/v1/auth/register", "",
		`{"email":"`+email+`","password":"`+password+`","displayName":"`+name+`"}`)
	require.Equal(t, http.StatusCreated, registered.status, registered.raw)

	login := a.call(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, login.status, login.raw)
	return registered.data()["id"].(string), login.data()["accessToken"].(string)
}

// # Tests

/*
TestServer_Health reports dependency failures on /ready only.
*/
func TestServer_Health(t *testing.T) {
	a := newApp(t)

	assert.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/health", "", "").status)

	ready := a.call(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, ready.status)
	assert.Equal(t, "ready", ready.data()["status"])

	a.healthy.Store(false)
	ready = a.call(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, ready.status)
	assert.Equal(t, "degraded", ready.data()["status"])
	assert.Equal(t, http.StatusOK, a.call(t, http.MethodGet, "/health", "", "").status)
}

/*
TestServer_PublishAndDiscuss walks a reader and an owner through the public API.
*/
func TestServer_PublishAndDiscuss(t *testing.T) {
	a := newApp(t)

	ownerID, ownerToken := a.signUp(t, "owner@dreamlog.app", "Owner")
	_, readerToken := a.signUp(t, "reader@dreamlog.app", "Reader")

	me := a.call(t, http.MethodGet, "/api/v1/me", readerToken, "")
	require.Equal(t, http.StatusOK, me.status, me.raw)
	assert.Equal(t, "user", me.data()["role"])

	assert.Equal(t, http.StatusUnauthorized, a.call(t, http.MethodGet, "/api/v1/me", "", "").status)
	assert.Equal(t, http.StatusForbidden, a.call(t, http.MethodPost, "/api/v1/categories", readerToken, `{"name":"Poetry"}`).status)

	_, err := a.access.BootstrapSuperAdmin(context.Background(), ownerID)
	require.NoError(t, err)

	created := a.call(t, http.MethodPost, "/api/v1/categories", ownerToken, `{"name":"Poetry","description":"Short lines"}`)
	require.Equal(t, http.StatusCreated, created.status, created.raw)

	created = a.call(t, http.MethodPost, "/api/v1/posts", ownerToken,
		`{"title":"First Light","body":"Morning falls on the river.","category":"poetry","status":"published","tags":["Dawn"]}`)
	require.Equal(t, http.StatusCreated, created.status, created.raw)
	postID := created.data()["id"].(string)
	assert.Equal(t, "first-light", created.data()["slug"])

	listed := a.call(t, http.MethodGet, "/api/v1/posts?category=poetry", "", "")
	require.Equal(t, http.StatusOK, listed.status, listed.raw)
	assert.Len(t, listed.body["data"], 1)

	tags := a.call(t, http.MethodGet, "/api/v1/tags", "", "")
	require.Equal(t, http.StatusOK, tags.status, tags.raw)
	assert.Contains(t, tags.raw, `"name":"dawn"`)

	subscribed := a.call(t, http.MethodPost, "/api/v1/subscribers", "", `{"email":"Reader@dreamlog.app"}`)
	require.Equal(t, http.StatusCreated, subscribed.status, subscribed.raw)
	assert.Equal(t, http.StatusConflict, a.call(t, http.MethodPost, "/api/v1/subscribers", "", `{"email":"reader@dreamlog.app"}`).status)

	comment := a.call(t, http.MethodPost, "/api/v1/comments", readerToken, `{"postId":"`+postID+`","content":"Lovely."}`)
	require.Equal(t, http.StatusCreated, comment.status, comment.raw)
	assert.Equal(t, "Reader", comment.data()["authorName"])

	thread := a.call(t, http.MethodGet, "/api/v1/comments?postId="+postID, "", "")
	require.Equal(t, http.StatusOK, thread.status, thread.raw)
	assert.Len(t, thread.body["data"], 1)

	assert.Equal(t, http.StatusNoContent, a.call(t, http.MethodDelete, "/api/v1/posts/"+postID, ownerToken, "").status)
	assert.Equal(t, http.StatusNotFound, a.call(t, http.MethodGet, "/api/v1/comments?postId="+postID, "", "").status)

	scraped := a.call(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, scraped.status)
	assert.Contains(t, scraped.raw, "dreamlog_http_requests_total")
}
