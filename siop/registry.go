/*
 * Copyright (C) 2025 Nuts community
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 *
 */

package siop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nuts-foundation/siop-op/siop/logging"
)

// DefaultSessionTTL is how long a registered session stays available without being removed.
const DefaultSessionTTL = 5 * time.Minute

// sessionRegistry keeps the live OP sessions, keyed by session id.
// Sessions expire after their TTL; expired sessions are treated as absent and
// pruned in the background.
type sessionRegistry struct {
	mux      sync.Mutex
	ttl      time.Duration
	sessions map[string]registeredSession
	done     chan struct{}
}

type registeredSession struct {
	session *OpSession
	expiry  time.Time
}

func newSessionRegistry(ttl time.Duration) *sessionRegistry {
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}
	registry := &sessionRegistry{
		ttl:      ttl,
		sessions: make(map[string]registeredSession),
		done:     make(chan struct{}),
	}
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-registry.done:
				return
			case <-ticker.C:
				registry.prune()
			}
		}
	}()
	return registry
}

// add registers a session. Registering an id that is already taken fails.
func (r *sessionRegistry) add(session *OpSession) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if existing, ok := r.sessions[session.ID()]; ok && existing.expiry.After(time.Now()) {
		return ErrSessionExists
	}
	r.sessions[session.ID()] = registeredSession{
		session: session,
		expiry:  time.Now().Add(r.ttl),
	}
	return nil
}

// get returns the session with the given id, refreshing its TTL.
func (r *sessionRegistry) get(id string) (*OpSession, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	entry, ok := r.sessions[id]
	if !ok || entry.expiry.Before(time.Now()) {
		return nil, ErrSessionNotFound
	}
	entry.expiry = time.Now().Add(r.ttl)
	r.sessions[id] = entry
	return entry.session, nil
}

// remove deletes the session with the given id. Removing an unknown id is a no-op.
func (r *sessionRegistry) remove(id string) {
	r.mux.Lock()
	defer r.mux.Unlock()
	delete(r.sessions, id)
}

func (r *sessionRegistry) prune() {
	r.mux.Lock()
	defer r.mux.Unlock()
	now := time.Now()
	for id, entry := range r.sessions {
		if entry.expiry.Before(now) {
			logging.Log().WithField("sessionID", id).Debug("Evicting expired OP session")
			delete(r.sessions, id)
		}
	}
}

func (r *sessionRegistry) close() {
	close(r.done)
}

// CustomApprovalFn lets an application hook into the response flow: it is invoked before
// the authorization response is sent and may veto it by returning an error.
type CustomApprovalFn func(ctx context.Context, session *OpSession, selected []CredentialsWithDefinition) error

// approvalRegistry keeps the registered custom approval callbacks, keyed by name.
type approvalRegistry struct {
	mux       sync.RWMutex
	approvals map[string]CustomApprovalFn
}

func newApprovalRegistry() *approvalRegistry {
	return &approvalRegistry{approvals: make(map[string]CustomApprovalFn)}
}

// add registers a callback under the given key. A key can only be registered once.
func (r *approvalRegistry) add(key string, fn CustomApprovalFn) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if _, ok := r.approvals[key]; ok {
		return errors.New("custom approval already registered: " + key)
	}
	r.approvals[key] = fn
	return nil
}

// remove unregisters the callback under the given key.
// It reports whether a callback was registered under it.
func (r *approvalRegistry) remove(key string) bool {
	r.mux.Lock()
	defer r.mux.Unlock()
	_, ok := r.approvals[key]
	delete(r.approvals, key)
	return ok
}

// all returns the registered callbacks.
func (r *approvalRegistry) all() []CustomApprovalFn {
	r.mux.RLock()
	defer r.mux.RUnlock()
	result := make([]CustomApprovalFn, 0, len(r.approvals))
	for _, fn := range r.approvals {
		result = append(result, fn)
	}
	return result
}
