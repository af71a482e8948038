// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package users_test

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
	"github.com/taibuivan/dreamlog/internal/platform/ctxutil"
	"github.com/taibuivan/dreamlog/internal/platform/sec"
	"github.com/taibuivan/dreamlog/internal/users"
)

// testUserHeader stands in for a verified bearer token.
const testUserHeader = "X-Test-User"

func newTestServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	handler := users.NewHandler(f.service)

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
	router.Mount("/admin/users", handler.AdminRoutes())
	router.Mount("/profile", handler.ProfileRoutes())

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
TestHandler_Admin drives listing, deactivation and role changes over HTTP.
*/
func TestHandler_Admin(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "boss", authz.RoleSuperAdmin, true, epoch)
	f.seed(t, "admin", authz.RoleAdmin, true, epoch)
	f.seed(t, "reader", authz.RoleUser, true, epoch)
	server := newTestServer(t, f)

	response, _ := call(t, server, http.MethodGet, "/admin/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)

	response, _ = call(t, server, http.MethodGet, "/admin/users", "reader", "")
	assert.Equal(t, http.StatusForbidden, response.StatusCode)

	response, payload := call(t, server, http.MethodGet, "/admin/users?role=user&limit=5", "admin", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Len(t, payload["data"], 1)

	response, _ = call(t, server, http.MethodGet, "/admin/users?role=owner", "admin", "")
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	response, _ = call(t, server, http.MethodGet, "/admin/users?active=maybe", "admin", "")
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	response, payload = call(t, server, http.MethodPost, "/admin/users/reader/deactivate", "admin", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, false, payload["data"].(map[string]any)["isActive"])

	// Deactivated principals are stopped by Resolve before any handler runs.
	response, _ = call(t, server, http.MethodGet, "/profile", "reader", "")
	assert.Equal(t, http.StatusForbidden, response.StatusCode)

	response, _ = call(t, server, http.MethodPost, "/admin/users/boss/deactivate", "admin", "")
	assert.Equal(t, http.StatusForbidden, response.StatusCode)

	response, _ = call(t, server, http.MethodPost, "/admin/users/reader/activate", "admin", "")
	require.Equal(t, http.StatusOK, response.StatusCode)

	response, _ = call(t, server, http.MethodPut, "/admin/users/reader/role", "admin", `{"role":"editor"}`)
	assert.Equal(t, http.StatusForbidden, response.StatusCode)

	response, _ = call(t, server, http.MethodPut, "/admin/users/reader/role", "boss", `{"role":"owner"}`)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	response, payload = call(t, server, http.MethodPut, "/admin/users/reader/role", "boss", `{"role":"editor"}`)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "editor", payload["data"].(map[string]any)["role"])

	response, payload = call(t, server, http.MethodPost, "/admin/users/reader/demote", "boss", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "contributor", payload["data"].(map[string]any)["role"])

	response, payload = call(t, server, http.MethodGet, "/admin/users/stats", "admin", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.EqualValues(t, 1, payload["data"].(map[string]any)["contributor"])
}

/*
TestHandler_Profile reads and renames the caller.
*/
func TestHandler_Profile(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "reader", authz.RoleUser, true, epoch)
	server := newTestServer(t, f)

	response, payload := call(t, server, http.MethodGet, "/profile", "reader", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "reader", payload["data"].(map[string]any)["displayName"])

	response, _ = call(t, server, http.MethodPatch, "/profile", "reader", `{"displayName":""}`)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	response, payload = call(t, server, http.MethodPatch, "/profile", "reader", `{"displayName":"Night Owl"}`)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "Night Owl", payload["data"].(map[string]any)["displayName"])
}
