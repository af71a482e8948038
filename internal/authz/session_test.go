// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/platform/database/schema"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
)

// # Fakes

type provider struct {
	mu        sync.Mutex
	current   string
	listeners map[int]func(string)
	nextID    int
}

func newProvider(current string) *provider {
	return &provider{current: current, listeners: make(map[int]func(string))}
}

func (p *provider) CurrentPrincipalID() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.current != ""
}

func (p *provider) OnSessionChange(listener func(string)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = listener
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *provider) Emit(principalID string) {
	p.mu.Lock()
	p.current = principalID
	listeners := make([]func(string), 0, len(p.listeners))
	for _, listener := range p.listeners {
		listeners = append(listeners, listener)
	}
	p.mu.Unlock()

	for _, listener := range listeners {
		listener(principalID)
	}
}

func (p *provider) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// blockingStore holds profile reads for one principal until released.
type blockingStore struct {
	docstore.Store
	blockID  string
	entered  chan struct{}
	released chan struct{}
	returned chan struct{}
	once     sync.Once
}

func newBlockingStore(store docstore.Store, blockID string) *blockingStore {
	return &blockingStore{
		Store:    store,
		blockID:  blockID,
		entered:  make(chan struct{}),
		released: make(chan struct{}),
		returned: make(chan struct{}),
	}
}

func (s *blockingStore) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	if collection != schema.UserProfile.Collection || id != s.blockID {
		return s.Store.Get(ctx, collection, id)
	}

	s.once.Do(func() { close(s.entered) })
	<-s.released
	defer close(s.returned)
	return s.Store.Get(ctx, collection, id)
}

func waitResolved(t *testing.T, session *authz.Session) authz.SessionState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := session.Wait(ctx)
	require.NoError(t, err)
	return state
}

// # Session

/*
TestSession_Resolves binds the current principal and re-resolves on change.
*/
func TestSession_Resolves(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "writer", authz.RoleContributor, true)
	f.seed(t, "boss", authz.RoleSuperAdmin, true)

	identity := newProvider("writer")
	session := f.service.BindSession(context.Background(), identity)
	defer session.Close()

	state := waitResolved(t, session)
	assert.True(t, state.Resolved)
	assert.True(t, state.SignedIn())
	require.NotNil(t, state.Principal)
	assert.Equal(t, authz.RoleContributor, state.Principal.Role)
	assert.True(t, session.HasPermission(authz.CanCreatePosts))
	assert.False(t, session.HasPermission(authz.CanManageRoles))

	identity.Emit("boss")
	state = waitResolved(t, session)
	assert.Equal(t, "boss", state.PrincipalID)
	assert.Equal(t, authz.RoleSuperAdmin, session.Principal().Role)
	assert.True(t, session.HasPermission(authz.CanManageRoles))

	identity.Emit("")
	state = waitResolved(t, session)
	assert.False(t, state.SignedIn())
	assert.Nil(t, session.Principal())
	assert.False(t, session.HasPermission(authz.CanCreatePosts))
}

/*
TestSession_DiscardsStaleResolution: a slow lookup for a previous principal must
never overwrite the state of the current one.
*/
func TestSession_DiscardsStaleResolution(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "elevated", authz.RoleSuperAdmin, true)
	f.seed(t, "plain", authz.RoleUser, true)

	store := newBlockingStore(f.store, "elevated")
	service := authz.NewService(store, discardLogger())

	identity := newProvider("elevated")
	session := service.BindSession(context.Background(), identity)
	defer session.Close()

	<-store.entered
	assert.False(t, session.State().Resolved)
	assert.Nil(t, session.Principal())
	assert.False(t, session.HasPermission(authz.CanManageRoles))

	identity.Emit("plain")
	state := waitResolved(t, session)
	require.NotNil(t, state.Principal)
	assert.Equal(t, "plain", state.Principal.ID)

	close(store.released)
	<-store.returned

	assert.Never(t, func() bool {
		principal := session.Principal()
		return principal == nil || principal.Role == authz.RoleSuperAdmin
	}, 100*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, uint64(2), session.State().Generation)
}

/*
TestSession_Changes delivers the latest snapshot and closes on Close.
*/
func TestSession_Changes(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "writer", authz.RoleContributor, true)

	identity := newProvider("")
	session := f.service.BindSession(context.Background(), identity)

	changes, stop := session.Changes()
	defer stop()

	identity.Emit("writer")

	require.Eventually(t, func() bool {
		select {
		case state := <-changes:
			return state.Resolved && state.PrincipalID == "writer"
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)

	session.Close()
	session.Close()
	assert.Equal(t, 0, identity.Listeners())

	_, open := <-changes
	assert.False(t, open)

	state, err := session.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "writer", state.PrincipalID)
}

/*
TestSession_ContextCancel tears the session down with its context.
*/
func TestSession_ContextCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	identity := newProvider("")
	session := f.service.BindSession(ctx, identity)
	require.Equal(t, 1, identity.Listeners())

	cancel()
	require.Eventually(t, func() bool { return identity.Listeners() == 0 }, 2*time.Second, 5*time.Millisecond)

	identity.Emit("someone")
	assert.Empty(t, session.State().PrincipalID)
}

/*
TestSession_Refresh picks up a role written after binding.
*/
func TestSession_Refresh(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "reader", authz.RoleUser, true)

	session := f.service.BindSession(context.Background(), newProvider("reader"))
	defer session.Close()
	assert.Equal(t, authz.RoleUser, waitResolved(t, session).Principal.Role)

	f.seed(t, "reader", authz.RoleContributor, true)
	session.Refresh()
	assert.Equal(t, authz.RoleContributor, waitResolved(t, session).Principal.Role)
}
