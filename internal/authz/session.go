// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz

import (
	"context"
	"log/slog"
	"sync"
)

// # Identity Binding

// IdentityProvider is the session collaborator: it knows who is signed in and
// reports every change. An empty principal ID means signed out.
type IdentityProvider interface {
	CurrentPrincipalID() (string, bool)
	OnSessionChange(listener func(principalID string)) (unsubscribe func())
}

// SessionState is a snapshot of a [Session].
type SessionState struct {
	// Generation increases on every identity change.
	Generation uint64

	// PrincipalID is the signed-in principal, or "" when signed out.
	PrincipalID string

	// Resolved is false while the role lookup for PrincipalID is in flight.
	Resolved bool

	// Principal is the resolved principal. It is nil when signed out or when
	// resolution failed.
	Principal *Principal

	// Err is the resolution error, if any.
	Err error
}

// SignedIn reports whether a principal is bound, resolved or not.
func (state SessionState) SignedIn() bool { return state.PrincipalID != "" }

/*
Session binds a [Service] to one identity provider.

Every session change cancels the in-flight role resolution for the previous
principal and starts a new one. A resolution that completes after a newer
change is discarded, so a stale elevated role is never applied to the current
session. Nothing is cached across changes.
*/
type Session struct {
	service  *Service
	provider IdentityProvider
	base     context.Context
	logger   *slog.Logger

	mu          sync.Mutex
	state       SessionState
	cancel      context.CancelFunc
	ready       chan struct{}
	subscribers map[int]chan SessionState
	nextID      int
	closed      bool
	done        chan struct{}
	unsubscribe func()
}

// BindSession subscribes to provider and resolves the current principal.
// The session lives until [Session.Close] or until context is cancelled.
func (service *Service) BindSession(context context.Context, provider IdentityProvider) *Session {
	session := &Session{
		service:     service,
		provider:    provider,
		base:        context,
		logger:      service.logger,
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
		subscribers: make(map[int]chan SessionState),
	}

	session.unsubscribe = provider.OnSessionChange(session.handleChange)

	principalID, _ := provider.CurrentPrincipalID()
	session.initial(principalID)

	go func() {
		select {
		case <-context.Done():
			session.Close()
		case <-session.done:
		}
	}()

	return session
}

// handleChange starts a new resolution generation for principalID.
func (session *Session) handleChange(principalID string) {
	session.mu.Lock()
	if session.closed {
		session.mu.Unlock()
		return
	}
	session.advance(principalID)
}

// initial applies the provider's current principal unless a change event won
// the race against BindSession.
func (session *Session) initial(principalID string) {
	session.mu.Lock()
	if session.closed || session.state.Generation > 0 {
		session.mu.Unlock()
		return
	}
	session.advance(principalID)
}

// advance is called with mu held and releases it.
func (session *Session) advance(principalID string) {
	if session.cancel != nil {
		session.cancel()
		session.cancel = nil
	}

	// Waiters of the previous generation wake up and wait on the new channel.
	session.closeReady()
	session.ready = make(chan struct{})

	generation := session.state.Generation + 1
	session.state = SessionState{Generation: generation, PrincipalID: principalID}

	if principalID == "" {
		session.state.Resolved = true
		session.closeReady()
		state := session.state
		session.mu.Unlock()

		session.publish(state)
		return
	}

	ctx, cancel := context.WithCancel(session.base)
	session.cancel = cancel
	state := session.state
	session.mu.Unlock()

	session.publish(state)
	go session.resolve(ctx, generation, principalID)
}

// Refresh re-resolves the current principal, for example after a role change
// notification for this principal.
func (session *Session) Refresh() {
	session.mu.Lock()
	principalID := session.state.PrincipalID
	session.mu.Unlock()
	session.handleChange(principalID)
}

func (session *Session) resolve(context context.Context, generation uint64, principalID string) {
	principal, err := session.service.LoadPrincipal(context, principalID)

	session.mu.Lock()
	if session.closed || session.state.Generation != generation || context.Err() != nil {
		session.mu.Unlock()
		session.logger.DebugContext(context, "session_resolution_discarded",
			slog.String("principal_id", principalID),
			slog.Uint64("generation", generation),
		)
		return
	}

	session.state.Resolved = true
	session.state.Principal = principal
	session.state.Err = err
	if session.cancel != nil {
		session.cancel()
		session.cancel = nil
	}
	state := session.state
	session.closeReady()
	session.mu.Unlock()

	session.publish(state)
}

// closeReady releases waiters of the current generation. Callers hold mu.
func (session *Session) closeReady() {
	select {
	case <-session.ready:
	default:
		close(session.ready)
	}
}

// State returns the current snapshot without blocking.
func (session *Session) State() SessionState {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.state
}

// Principal returns the resolved principal, or nil while signed out or unresolved.
func (session *Session) Principal() *Principal {
	state := session.State()
	if !state.Resolved {
		return nil
	}
	return state.Principal
}

// HasPermission evaluates capability against the resolved principal. An
// unresolved session holds nothing.
func (session *Session) HasPermission(capability Capability) bool {
	return session.service.Check(session.Principal(), capability)
}

// Wait blocks until the latest generation is resolved or context ends.
func (session *Session) Wait(context context.Context) (SessionState, error) {
	for {
		session.mu.Lock()
		state := session.state
		ready := session.ready
		closed := session.closed
		session.mu.Unlock()

		if state.Resolved || closed {
			return state, nil
		}

		select {
		case <-ready:
		case <-context.Done():
			return state, context.Err()
		}
	}
}

// Changes subscribes to state snapshots. Slow readers only see the latest
// snapshot. The channel is closed by the returned cancel func or by Close.
func (session *Session) Changes() (<-chan SessionState, func()) {
	session.mu.Lock()
	defer session.mu.Unlock()

	updates := make(chan SessionState, 1)
	if session.closed {
		close(updates)
		return updates, func() {}
	}

	id := session.nextID
	session.nextID++
	session.subscribers[id] = updates

	var once sync.Once
	return updates, func() {
		once.Do(func() {
			session.mu.Lock()
			defer session.mu.Unlock()
			if subscriber, ok := session.subscribers[id]; ok {
				delete(session.subscribers, id)
				close(subscriber)
			}
		})
	}
}

func (session *Session) publish(state SessionState) {
	session.mu.Lock()
	defer session.mu.Unlock()

	// A newer generation may already have been published.
	if state.Generation < session.state.Generation {
		return
	}
	for _, subscriber := range session.subscribers {
		select {
		case <-subscriber:
		default:
		}
		subscriber <- state
	}
}

// Close tears the session down. It is safe to call more than once.
func (session *Session) Close() {
	session.mu.Lock()
	if session.closed {
		session.mu.Unlock()
		return
	}
	session.closed = true
	close(session.done)
	if session.cancel != nil {
		session.cancel()
		session.cancel = nil
	}
	session.closeReady()
	for id, subscriber := range session.subscribers {
		delete(session.subscribers, id)
		close(subscriber)
	}
	unsubscribe := session.unsubscribe
	session.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
