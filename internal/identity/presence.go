// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"sync"

	"github.com/taibuivan/dreamlog/internal/authz"
)

// # Presence

// sessionChecker reports whether a refresh session is still signed in.
type sessionChecker interface {
	Active(ctx context.Context, userID, sessionID string) (bool, error)
}

// PresenceTracker opens [Presence] providers for access streams. It
// implements authz.PresenceFactory.
type PresenceTracker struct {
	broker   *Broker
	sessions sessionChecker
}

// NewPresenceTracker wires the broker and session store together.
func NewPresenceTracker(broker *Broker, sessions sessionChecker) *PresenceTracker {
	return &PresenceTracker{broker: broker, sessions: sessions}
}

/*
Presence follows one client session of principalID.

The provider reports the principal as signed out when the session is revoked,
signed back in when it is refreshed or re-established, and re-announces the
principal when its role changes so bound authz sessions re-resolve.
The subscription ends with ctx.

Parameters:
  - ctx: context.Context (lifetime of the stream)
  - principalID: string
  - sessionID: string (may be empty for tokens issued without a session)

Returns:
  - authz.IdentityProvider
  - error: Session store failures
*/
func (tracker *PresenceTracker) Presence(ctx context.Context, principalID, sessionID string) (authz.IdentityProvider, error) {
	signedIn := principalID != ""
	if signedIn && sessionID != "" {
		active, err := tracker.sessions.Active(ctx, principalID, sessionID)
		if err != nil {
			return nil, err
		}
		signedIn = active
	}

	presence := &Presence{
		principalID: principalID,
		sessionID:   sessionID,
		signedIn:    signedIn,
		listeners:   make(map[int]func(string)),
	}

	if principalID != "" {
		unsubscribe := tracker.broker.Subscribe(principalID, presence.apply)
		go func() {
			<-ctx.Done()
			unsubscribe()
		}()
	}
	return presence, nil
}

// Presence is the identity provider of a single client session.
type Presence struct {
	principalID string
	sessionID   string

	mu        sync.Mutex
	signedIn  bool
	listeners map[int]func(string)
	nextID    int
}

// CurrentPrincipalID implements authz.IdentityProvider.
func (presence *Presence) CurrentPrincipalID() (string, bool) {
	presence.mu.Lock()
	defer presence.mu.Unlock()
	if !presence.signedIn {
		return "", false
	}
	return presence.principalID, true
}

// OnSessionChange implements authz.IdentityProvider.
func (presence *Presence) OnSessionChange(listener func(principalID string)) func() {
	presence.mu.Lock()
	defer presence.mu.Unlock()

	id := presence.nextID
	presence.nextID++
	presence.listeners[id] = listener

	return func() {
		presence.mu.Lock()
		defer presence.mu.Unlock()
		delete(presence.listeners, id)
	}
}

// apply folds one broker event into the presence state.
func (presence *Presence) apply(event Event) {
	mine := presence.sessionID == "" || event.SessionID == "" || event.SessionID == presence.sessionID

	presence.mu.Lock()
	notify := false
	switch event.Kind {
	case EventSignedOut:
		if mine && presence.signedIn {
			presence.signedIn = false
			notify = true
		}
	case EventSignedIn, EventRefreshed:
		if mine && !presence.signedIn {
			presence.signedIn = true
			notify = true
		}
	case EventRoleChanged:
		notify = presence.signedIn
	}
	current := ""
	if presence.signedIn {
		current = presence.principalID
	}
	listeners := make([]func(string), 0, len(presence.listeners))
	for _, listener := range presence.listeners {
		listeners = append(listeners, listener)
	}
	presence.mu.Unlock()

	if !notify {
		return
	}
	for _, listener := range listeners {
		listener(current)
	}
}
