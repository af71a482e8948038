// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/platform/apperr"
	"github.com/taibuivan/dreamlog/internal/platform/database/schema"
	"github.com/taibuivan/dreamlog/internal/platform/docstore"
)

// # Fixtures

var errBoom = errors.New("connection reset by peer")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}

type notifier struct {
	mu      sync.Mutex
	changes []string
}

func (n *notifier) RoleChanged(_ context.Context, principalID string, role authz.Role) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, principalID+"="+string(role))
}

func (n *notifier) Changes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.changes...)
}

type directory map[string]bool

func (d directory) PrincipalExists(_ context.Context, principalID string) (bool, error) {
	return d[principalID], nil
}

type fixture struct {
	store    *docstore.MemoryStore
	clock    *clock
	notifier *notifier
	service  *authz.Service
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, options ...authz.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    docstore.NewMemoryStore(),
		clock:    newClock(),
		notifier: &notifier{},
	}
	options = append([]authz.Option{
		authz.WithClock(f.clock.Now),
		authz.WithNotifier(f.notifier),
	}, options...)
	f.service = authz.NewService(f.store, discardLogger(), options...)
	return f
}

// seed writes a profile document for id.
func (f *fixture) seed(t *testing.T, id string, role authz.Role, active bool) *authz.Principal {
	t.Helper()
	p := schema.UserProfile
	_, err := f.store.Set(context.Background(), p.Collection, id, docstore.Fields{
		p.Email:       id + "@dreamlog.app",
		p.DisplayName: id,
		p.Role:        string(role),
		p.IsActive:    active,
	})
	require.NoError(t, err)
	return &authz.Principal{ID: id, Email: id + "@dreamlog.app", DisplayName: id, Role: role, IsActive: active}
}

func (f *fixture) roleOf(t *testing.T, id string) authz.Role {
	t.Helper()
	role, err := f.service.LoadRole(context.Background(), id)
	require.NoError(t, err)
	return role
}

// failingStore fails the configured operations and is deliberately not a Transactor.
type failingStore struct {
	docstore.Store
	failGet    bool
	failUpdate func(collection string, fields docstore.Fields) bool
}

func (s *failingStore) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	if s.failGet {
		return nil, errBoom
	}
	return s.Store.Get(ctx, collection, id)
}

func (s *failingStore) Update(ctx context.Context, collection, id string, fields docstore.Fields, preconds ...docstore.Precondition) (*docstore.Document, error) {
	if s.failUpdate != nil && s.failUpdate(collection, fields) {
		return nil, errBoom
	}
	return s.Store.Update(ctx, collection, id, fields, preconds...)
}

// # Role Resolution

/*
TestScenarioA_NewPrincipal: a principal without a profile resolves to user and
may petition.
*/
func TestScenarioA_NewPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role, err := f.service.LoadRole(ctx, "newcomer")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleUser, role)

	eligibility, err := f.service.CanSubmitPetition(ctx, &authz.Principal{ID: "newcomer", IsActive: true})
	require.NoError(t, err)
	assert.True(t, eligibility.Allowed)
	assert.Empty(t, eligibility.Reason)
}

/*
TestLoadRole_Errors covers anonymous callers, unknown roles and store failures.
*/
func TestLoadRole_Errors(t *testing.T) {
	ctx := context.Background()
	p := schema.UserProfile

	t.Run("anonymous", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.LoadRole(ctx, "")
		assert.True(t, apperr.HasCode(err, apperr.CodeUnauthenticated))
	})

	t.Run("unknown_role", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.store.Set(ctx, p.Collection, "u1", docstore.Fields{p.Role: "owner"})
		require.NoError(t, err)

		_, err = f.service.LoadRole(ctx, "u1")
		assert.True(t, apperr.HasCode(err, apperr.CodeUnknownRole))
	})

	t.Run("non_string_role", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.store.Set(ctx, p.Collection, "u1", docstore.Fields{p.Role: 3})
		require.NoError(t, err)

		_, err = f.service.LoadRole(ctx, "u1")
		assert.True(t, apperr.HasCode(err, apperr.CodeUnknownRole))
	})

	t.Run("store_unavailable", func(t *testing.T) {
		store := &failingStore{Store: docstore.NewMemoryStore(), failGet: true}
		service := authz.NewService(store, discardLogger())

		_, err := service.LoadRole(ctx, "u1")
		assert.True(t, apperr.HasCode(err, apperr.CodeStoreUnavailable))
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("missing_role_field", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.store.Set(ctx, p.Collection, "u1", docstore.Fields{p.Email: "u1@dreamlog.app"})
		require.NoError(t, err)
		assert.Equal(t, authz.RoleUser, f.roleOf(t, "u1"))
	})
}

/*
TestLoadRole_Fresh checks that a role written behind the service's back is seen
by the very next lookup.
*/
func TestLoadRole_Fresh(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", authz.RoleUser, true)
	assert.Equal(t, authz.RoleUser, f.roleOf(t, "u1"))

	f.seed(t, "u1", authz.RoleEditor, true)
	assert.Equal(t, authz.RoleEditor, f.roleOf(t, "u1"))
}

// # Grants

/*
TestScenarioD_GrantForbidden: a non-super_admin grant fails and writes nothing.
*/
func TestScenarioD_GrantForbidden(t *testing.T) {
	f := newFixture(t, authz.WithDirectory(directory{"target": true}))
	ctx := context.Background()
	admin := f.seed(t, "admin", authz.RoleAdmin, true)

	_, err := f.service.GrantRole(ctx, admin, "target", authz.RoleEditor)
	assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))

	_, err = f.store.Get(ctx, schema.UserProfile.Collection, "target")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	assert.Empty(t, f.notifier.Changes())
}

/*
TestGrantRole_StaleActor re-reads the actor: a principal value claiming
super_admin is not trusted once the stored role changed.
*/
func TestGrantRole_StaleActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.seed(t, "boss", authz.RoleSuperAdmin, true)
	f.seed(t, "target", authz.RoleUser, true)

	f.seed(t, "boss", authz.RoleAdmin, true)

	_, err := f.service.GrantRole(ctx, actor, "target", authz.RoleEditor)
	assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))
	assert.Equal(t, authz.RoleUser, f.roleOf(t, "target"))
}

/*
TestGrantRole writes role, permissions and audit fields and notifies listeners.
*/
func TestGrantRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.seed(t, "boss", authz.RoleSuperAdmin, true)
	f.seed(t, "target", authz.RoleUser, true)

	granted, err := f.service.GrantRole(ctx, actor, "target", authz.RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, authz.RoleEditor, granted.Role)

	p := schema.UserProfile
	document, err := f.store.Get(ctx, p.Collection, "target")
	require.NoError(t, err)
	assert.Equal(t, "editor", document.String(p.Role))
	assert.Equal(t, "boss", document.String(p.UpdatedBy))
	assert.True(t, document.BoolMap(p.Permissions)[string(authz.CanPublishPosts)])
	assert.False(t, document.BoolMap(p.Permissions)[string(authz.CanManageUsers)])

	updatedAt, ok := document.Time(p.UpdatedAt)
	require.True(t, ok)
	assert.True(t, f.clock.Now().Equal(updatedAt))

	assert.Equal(t, []string{"target=editor"}, f.notifier.Changes())
}

/*
TestGrantRole_SelfDemotion refuses a super admin lowering their own role.
*/
func TestGrantRole_SelfDemotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.seed(t, "boss", authz.RoleSuperAdmin, true)

	for _, role := range []authz.Role{authz.RoleAdmin, authz.RoleUser} {
		_, err := f.service.GrantRole(ctx, actor, "boss", role)
		assert.True(t, apperr.HasCode(err, apperr.CodeForbidden), role)
	}
	assert.Equal(t, authz.RoleSuperAdmin, f.roleOf(t, "boss"))

	_, err := f.service.GrantRole(ctx, actor, "boss", authz.RoleSuperAdmin)
	require.NoError(t, err)
	assert.Equal(t, []string{"boss=super_admin"}, f.notifier.Changes())
}

/*
TestGrantRole_Validation rejects unknown roles and empty targets.
*/
func TestGrantRole_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.seed(t, "boss", authz.RoleSuperAdmin, true)

	_, err := f.service.GrantRole(ctx, actor, "target", authz.Role("owner"))
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	_, err = f.service.GrantRole(ctx, actor, "", authz.RoleEditor)
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	_, err = f.service.GrantRole(ctx, nil, "target", authz.RoleEditor)
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthenticated))
}

/*
TestGrantRole_MissingProfile only creates profiles for principals known to identity.
*/
func TestGrantRole_MissingProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("no_directory", func(t *testing.T) {
		f := newFixture(t)
		actor := f.seed(t, "boss", authz.RoleSuperAdmin, true)

		_, err := f.service.GrantRole(ctx, actor, "ghost", authz.RoleEditor)
		assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
	})

	t.Run("unknown_principal", func(t *testing.T) {
		f := newFixture(t, authz.WithDirectory(directory{}))
		actor := f.seed(t, "boss", authz.RoleSuperAdmin, true)

		_, err := f.service.GrantRole(ctx, actor, "ghost", authz.RoleEditor)
		assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
	})

	t.Run("known_principal", func(t *testing.T) {
		f := newFixture(t, authz.WithDirectory(directory{"fresh": true}))
		actor := f.seed(t, "boss", authz.RoleSuperAdmin, true)

		granted, err := f.service.GrantRole(ctx, actor, "fresh", authz.RoleContributor)
		require.NoError(t, err)
		assert.True(t, granted.IsActive)
		assert.Equal(t, authz.RoleContributor, f.roleOf(t, "fresh"))
	})
}

/*
TestGrantRole_ExpectedVersion turns a stale read into CONFLICT.
*/
func TestGrantRole_ExpectedVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.seed(t, "boss", authz.RoleSuperAdmin, true)
	f.seed(t, "target", authz.RoleUser, true)

	document, err := f.store.Get(ctx, schema.UserProfile.Collection, "target")
	require.NoError(t, err)

	_, err = f.service.GrantRole(ctx, actor, "target", authz.RoleContributor, authz.WithExpectedVersion(document.Version))
	require.NoError(t, err)

	_, err = f.service.GrantRole(ctx, actor, "target", authz.RoleAdmin, authz.WithExpectedVersion(document.Version))
	assert.True(t, apperr.HasCode(err, apperr.CodeConflict))
	assert.Equal(t, authz.RoleContributor, f.roleOf(t, "target"))
}

/*
TestGrantRole_CustomPermissions stores an explicit permission set.
*/
func TestGrantRole_CustomPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.seed(t, "boss", authz.RoleSuperAdmin, true)
	f.seed(t, "target", authz.RoleUser, true)

	_, err := f.service.GrantRole(ctx, actor, "target", authz.RoleContributor,
		authz.WithPermissions(authz.NewPermissionSet(authz.CanCreatePosts)))
	require.NoError(t, err)

	document, err := f.store.Get(ctx, schema.UserProfile.Collection, "target")
	require.NoError(t, err)
	flags := document.BoolMap(schema.UserProfile.Permissions)
	assert.True(t, flags[string(authz.CanCreatePosts)])
	assert.False(t, flags[string(authz.CanEditOwnPosts)])
}

/*
TestPromoteDemote_Ladder walks the ladder and checks both ends.
*/
func TestPromoteDemote_Ladder(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		start   authz.Role
		promote bool
		want    authz.Role
		code    string
	}{
		{"promote user", authz.RoleUser, true, authz.RoleContributor, ""},
		{"promote contributor", authz.RoleContributor, true, authz.RoleEditor, ""},
		{"promote editor", authz.RoleEditor, true, authz.RoleAdmin, ""},
		{"promote admin", authz.RoleAdmin, true, authz.RoleAdmin, apperr.CodeInvalidTransition},
		{"demote admin", authz.RoleAdmin, false, authz.RoleEditor, ""},
		{"demote contributor", authz.RoleContributor, false, authz.RoleUser, ""},
		{"demote user", authz.RoleUser, false, authz.RoleUser, apperr.CodeInvalidTransition},
		{"demote super admin", authz.RoleSuperAdmin, false, authz.RoleSuperAdmin, apperr.CodeInvalidTransition},
		{"promote super admin", authz.RoleSuperAdmin, true, authz.RoleSuperAdmin, apperr.CodeInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			actor := f.seed(t, "boss", authz.RoleSuperAdmin, true)
			f.seed(t, "target", tt.start, true)

			var err error
			if tt.promote {
				_, err = f.service.PromoteUser(ctx, actor, "target")
			} else {
				_, err = f.service.DemoteUser(ctx, actor, "target")
			}

			if tt.code != "" {
				assert.True(t, apperr.HasCode(err, tt.code), "got %v", err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, f.roleOf(t, "target"))
		})
	}
}

/*
TestDemote_NonSuperAdmin always fails for lesser actors.
*/
func TestDemote_NonSuperAdmin(t *testing.T) {
	f := newFixture(t)
	admin := f.seed(t, "admin", authz.RoleAdmin, true)
	f.seed(t, "target", authz.RoleEditor, true)

	_, err := f.service.DemoteUser(context.Background(), admin, "target")
	assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))
	assert.Equal(t, authz.RoleEditor, f.roleOf(t, "target"))
}

// # Decisions

/*
TestAuthorize maps decisions onto errors.
*/
func TestAuthorize(t *testing.T) {
	f := newFixture(t)

	assert.True(t, apperr.HasCode(f.service.Authorize(nil, authz.CanCreatePosts), apperr.CodeUnauthenticated))
	assert.True(t, apperr.HasCode(f.service.Authorize(&authz.Principal{Role: authz.RoleUser, IsActive: true}, authz.CanCreatePosts), apperr.CodeForbidden))
	assert.NoError(t, f.service.Authorize(&authz.Principal{Role: authz.RoleContributor, IsActive: true}, authz.CanCreatePosts))
	assert.True(t, apperr.HasCode(f.service.Authorize(&authz.Principal{Role: authz.RoleAdmin, IsActive: false}, authz.CanCreatePosts), apperr.CodeForbidden))
}

/*
TestBootstrapSuperAdmin promotes the first profile and refuses afterwards.
*/
func TestBootstrapSuperAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "first", authz.RoleUser, true)
	f.seed(t, "second", authz.RoleUser, true)

	_, err := f.service.BootstrapSuperAdmin(ctx, "ghost")
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))

	principal, err := f.service.BootstrapSuperAdmin(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleSuperAdmin, principal.Role)
	assert.Equal(t, authz.RoleSuperAdmin, f.roleOf(t, "first"))

	document, err := f.store.Get(ctx, schema.UserProfile.Collection, "first")
	require.NoError(t, err)
	assert.Equal(t, "bootstrap", document.String(schema.UserProfile.UpdatedBy))

	_, err = f.service.BootstrapSuperAdmin(ctx, "second")
	assert.True(t, apperr.HasCode(err, apperr.CodeConflict))
	assert.Equal(t, authz.RoleUser, f.roleOf(t, "second"))

	assert.Equal(t, []string{"first=super_admin"}, f.notifier.Changes())
}
