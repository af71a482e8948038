// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package post_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/blog/post"
	"github.com/taibuivan/dreamlog/internal/platform/ctxutil"
	"github.com/taibuivan/dreamlog/internal/platform/sec"
)

// testUserHeader stands in for a verified bearer token.
const testUserHeader = "X-Test-User"

func newTestServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	handler := post.NewHandler(f.service)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if id := request.Header.Get(testUserHeader); id != "" {
				claims := &sec.AuthClaims{UserID: id, Email: id + "@dreamlog.app"}
				request = request.WithContext(ctxutil.WithAuthUser(request.Context(), claims))
			}
			next.ServeHTTP(writer, request)
		})
	})
	router.Use(f.access.Resolve)
	router.Mount("/posts", handler.Routes())
	router.Mount("/categories", handler.CategoryRoutes())
	router.Mount("/tags", handler.TagRoutes())

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func call(t *testing.T, server *httptest.Server, method, path, user, body string) (*http.Response, map[string]any) {
	t.Helper()
	request, err := http.NewRequest(method, server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if user != "" {
		request.Header.Set(testUserHeader, user)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := server.Client().Do(request)
	require.NoError(t, err)
	defer response.Body.Close()

	var payload map[string]any
	_ = json.NewDecoder(response.Body).Decode(&payload)
	return response, payload
}

/*
TestHandler_PostLifecycle drafts, publishes and deletes a post over HTTP.
*/
func TestHandler_PostLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "writer", authz.RoleContributor)
	f.seed(t, "editor", authz.RoleEditor)
	f.seed(t, "admin", authz.RoleAdmin)
	server := newTestServer(t, f)

	body := `{"title":"Notes on Dialogue","body":"Read your lines aloud.","tags":["craft"],"date":"2025-08-29"}`

	response, _ := call(t, server, http.MethodPost, "/posts", "", body)
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)

	response, _ = call(t, server, http.MethodPost, "/posts", "writer", `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	response, _ = call(t, server, http.MethodPost, "/posts", "writer", `{"title":"x","date":"yesterday"}`)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	response, payload := call(t, server, http.MethodPost, "/posts", "writer", body)
	require.Equal(t, http.StatusCreated, response.StatusCode)
	created := payload["data"].(map[string]any)
	id := created["id"].(string)
	assert.Equal(t, "draft", created["status"])
	assert.Equal(t, "2025-08-29T00:00:00Z", created["date"])

	response, _ = call(t, server, http.MethodGet, "/posts/"+id, "", "")
	assert.Equal(t, http.StatusNotFound, response.StatusCode)

	response, payload = call(t, server, http.MethodGet, "/posts", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Empty(t, payload["data"])

	response, _ = call(t, server, http.MethodPatch, "/posts/"+id, "writer", `{"status":"published"}`)
	assert.Equal(t, http.StatusForbidden, response.StatusCode)

	response, _ = call(t, server, http.MethodPost, "/posts/"+id+"/publish", "writer", "")
	assert.Equal(t, http.StatusForbidden, response.StatusCode)

	response, payload = call(t, server, http.MethodPost, "/posts/"+id+"/publish", "editor", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "published", payload["data"].(map[string]any)["status"])

	response, payload = call(t, server, http.MethodGet, "/posts?q=lines", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Len(t, payload["data"], 1)
	assert.EqualValues(t, 1, payload["meta"].(map[string]any)["total"])

	response, payload = call(t, server, http.MethodGet, "/posts/slug/notes-on-dialogue", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, id, payload["data"].(map[string]any)["id"])

	response, _ = call(t, server, http.MethodGet, "/posts?status=archived", "", "")
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	response, _ = call(t, server, http.MethodDelete, "/posts/"+id, "writer", "")
	assert.Equal(t, http.StatusForbidden, response.StatusCode)

	response, _ = call(t, server, http.MethodDelete, "/posts/"+id, "admin", "")
	assert.Equal(t, http.StatusNoContent, response.StatusCode)
}

/*
TestHandler_Categories lists publicly and writes with canManageCategories.
*/
func TestHandler_Categories(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "writer", authz.RoleContributor)
	f.seed(t, "editor", authz.RoleEditor)
	server := newTestServer(t, f)

	response, _ := call(t, server, http.MethodPost, "/categories", "writer", `{"name":"Fiction"}`)
	assert.Equal(t, http.StatusForbidden, response.StatusCode)

	response, payload := call(t, server, http.MethodPost, "/categories", "editor", `{"name":"Fiction"}`)
	require.Equal(t, http.StatusCreated, response.StatusCode)
	assert.Equal(t, "fiction", payload["data"].(map[string]any)["slug"])

	response, payload = call(t, server, http.MethodGet, "/categories", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Len(t, payload["data"], 1)

	response, _ = call(t, server, http.MethodDelete, "/categories/fiction", "editor", "")
	assert.Equal(t, http.StatusNoContent, response.StatusCode)
}

/*
TestHandler_ListTags serves published tags to anonymous readers.
*/
func TestHandler_ListTags(t *testing.T) {
	f := newFixture(t)
	editor := f.seed(t, "editor", authz.RoleEditor)
	f.create(t, editor, post.Input{Title: "Tide", Status: post.StatusPublished, Tags: []string{"sea"}})
	server := newTestServer(t, f)

	response, payload := call(t, server, http.MethodGet, "/tags", "", "")
	require.Equal(t, http.StatusOK, response.StatusCode)

	tags, ok := payload["data"].([]any)
	require.True(t, ok)
	require.Len(t, tags, 1)
	assert.Equal(t, "sea", tags[0].(map[string]any)["name"])
}
