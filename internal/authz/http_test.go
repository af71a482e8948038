// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/platform/ctxutil"
	"github.com/taibuivan/dreamlog/internal/platform/sec"
)

// testUserHeader stands in for a verified bearer token.
const testUserHeader = "X-Test-User"

func newTestServer(t *testing.T, f *fixture, presence authz.PresenceFactory) *httptest.Server {
	t.Helper()
	handler := authz.NewHandler(f.service, presence, 10*time.Millisecond, discardLogger())

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if id := request.Header.Get(testUserHeader); id != "" {
				claims := &sec.AuthClaims{UserID: id, Email: id + "@dreamlog.app", SessionID: "s-" + id}
				request = request.WithContext(ctxutil.WithAuthUser(request.Context(), claims))
			}
			next.ServeHTTP(writer, request)
		})
	})
	router.Use(f.service.Resolve)
	router.Mount("/petitions", handler.PetitionRoutes())
	router.Mount("/access", handler.AccessRoutes())
	router.Mount("/me", handler.MeRoutes())

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
TestHandler_PetitionFlow drives submission and approval over HTTP.
*/
func TestHandler_PetitionFlow(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "boss", authz.RoleSuperAdmin, true)
	f.seed(t, "reader", authz.RoleUser, true)
	server := newTestServer(t, f, nil)

	body := `{"motivation":"I love writing","sampleLinks":["https://example.com/a"]}`

	response, _ := call(t, server, http.MethodPost, "/petitions", "", body)
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)

	response, payload := call(t, server, http.MethodPost, "/petitions", "reader", body)
	require.Equal(t, http.StatusCreated, response.StatusCode)
	id := payload["data"].(map[string]any)["id"].(string)

	response, payload = call(t, server, http.MethodPost, "/petitions", "reader", body)
	assert.Equal(t, http.StatusConflict, response.StatusCode)
	assert.Equal(t, "DUPLICATE_PENDING", payload["code"])

	response, payload = call(t, server, http.MethodGet, "/petitions/eligibility", "reader", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, authz.ReasonPendingExists, payload["data"].(map[string]any)["reason"])

	response, _ = call(t, server, http.MethodGet, "/petitions", "reader", "")
	assert.Equal(t, http.StatusForbidden, response.StatusCode)

	response, payload = call(t, server, http.MethodGet, "/petitions", "boss", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Len(t, payload["data"], 1)

	response, _ = call(t, server, http.MethodPost, "/petitions/"+id+"/approve", "reader", "")
	assert.Equal(t, http.StatusForbidden, response.StatusCode)

	response, payload = call(t, server, http.MethodPost, "/petitions/"+id+"/approve", "boss", `{"notes":"Welcome"}`)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "approved", payload["data"].(map[string]any)["status"])
	assert.Equal(t, authz.RoleContributor, f.roleOf(t, "reader"))

	response, payload = call(t, server, http.MethodGet, "/petitions/"+id, "reader", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "Welcome", payload["data"].(map[string]any)["reviewNotes"])
}

/*
TestHandler_CooldownRetryAfter exposes the cooldown end as Retry-After.
*/
func TestHandler_CooldownRetryAfter(t *testing.T) {
	f := newFixture(t)
	boss := f.seed(t, "boss", authz.RoleSuperAdmin, true)
	reader := f.seed(t, "reader", authz.RoleUser, true)
	f.clock.Set(time.Now().UTC())
	petition := f.submit(t, reader)
	_, err := f.service.RejectPetition(context.Background(), boss, petition.ID, "")
	require.NoError(t, err)

	server := newTestServer(t, f, nil)
	response, payload := call(t, server, http.MethodPost, "/petitions", "reader", `{"motivation":"Again"}`)
	assert.Equal(t, http.StatusTooManyRequests, response.StatusCode)
	assert.Equal(t, "COOLDOWN_ACTIVE", payload["code"])
	assert.NotEmpty(t, response.Header.Get("Retry-After"))
	assert.NotNil(t, payload["retry_after"])
}

/*
TestHandler_Me returns the fresh role and its permission flags.
*/
func TestHandler_Me(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "editor", authz.RoleEditor, true)
	f.seed(t, "gone", authz.RoleEditor, false)
	server := newTestServer(t, f, nil)

	response, payload := call(t, server, http.MethodGet, "/me", "editor", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	data := payload["data"].(map[string]any)
	assert.Equal(t, "editor", data["role"])
	permissions := data["permissions"].(map[string]any)
	assert.Equal(t, true, permissions["canPublishPosts"])
	assert.Equal(t, false, permissions["canEditOwnPosts"])

	response, payload = call(t, server, http.MethodGet, "/me", "gone", "")
	assert.Equal(t, http.StatusForbidden, response.StatusCode)
	assert.Equal(t, authz.VerdictDeactivated, payload["error"])
}

/*
TestHandler_CheckAccess evaluates one-shot requirements.
*/
func TestHandler_CheckAccess(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "admin", authz.RoleAdmin, true)
	server := newTestServer(t, f, nil)

	tests := []struct {
		query   string
		user    string
		status  int
		allowed bool
		reason  string
	}{
		{"?role=admin", "admin", http.StatusOK, true, ""},
		{"?role=super_admin", "admin", http.StatusOK, false, authz.VerdictInsufficient},
		{"?capability=canManageUsers", "admin", http.StatusOK, true, ""},
		{"?capability=canManageRoles", "", http.StatusOK, false, authz.VerdictNotAuthenticated},
		{"?role=owner", "admin", http.StatusBadRequest, false, ""},
		{"", "admin", http.StatusBadRequest, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			response, payload := call(t, server, http.MethodGet, "/access/check"+tt.query, tt.user, "")
			require.Equal(t, tt.status, response.StatusCode)
			if tt.status != http.StatusOK {
				return
			}
			data := payload["data"].(map[string]any)
			assert.Equal(t, tt.allowed, data["allowed"])
			if tt.reason != "" {
				assert.Equal(t, tt.reason, data["reason"])
			}
		})
	}
}

type presenceFactory struct {
	identity *provider
}

func (p presenceFactory) Presence(context.Context, string, string) (authz.IdentityProvider, error) {
	return p.identity, nil
}

/*
TestHandler_StreamAccess pushes a new verdict when the session signs out.
*/
func TestHandler_StreamAccess(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "boss", authz.RoleSuperAdmin, true)
	identity := newProvider("boss")
	server := newTestServer(t, f, presenceFactory{identity: identity})

	response, _ := call(t, server, http.MethodGet, "/access/stream?role=super_admin", "", "")
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/access/stream?role=super_admin", nil)
	require.NoError(t, err)
	request.Header.Set(testUserHeader, "boss")

	stream, err := server.Client().Do(request)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	events := readVerdicts(stream)

	first := <-events
	assert.True(t, first.Allowed)

	identity.Emit("")
	second := <-events
	assert.False(t, second.Allowed)
	assert.Equal(t, authz.VerdictSessionExpired, second.Reason)
}

func readVerdicts(response *http.Response) <-chan authz.Verdict {
	events := make(chan authz.Verdict, 8)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(response.Body)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			var verdict authz.Verdict
			if json.Unmarshal([]byte(data), &verdict) == nil {
				events <- verdict
			}
		}
	}()
	return events
}
