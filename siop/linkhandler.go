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
	"fmt"
	"net/url"

	"github.com/nuts-foundation/siop-op/siop/logging"
	"github.com/nuts-foundation/siop-op/storage"
)

// flowSnapshot is the persisted form of a flow, so it can be resumed later,
// e.g. after the application was restarted while the user was deciding.
type flowSnapshot struct {
	State State       `json:"state"`
	Flow  FlowContext `json:"flow"`
}

// LinkHandler starts authentication flows from wallet invocation links and persists
// their progress, keyed by session id.
type LinkHandler struct {
	auth     *Authenticator
	store    storage.SessionStore
	listener NavigationListener
}

// NewLinkHandler creates a LinkHandler. Flow snapshots are kept in the given session
// database with the Authenticator's session TTL. The listener may be nil.
func NewLinkHandler(auth *Authenticator, sessionDB storage.SessionDatabase, listener NavigationListener) *LinkHandler {
	ttl := auth.config.SessionTTL
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}
	return &LinkHandler{
		auth:     auth,
		store:    sessionDB.GetStore(ttl, "siop", "flows"),
		listener: listener,
	}
}

// Handle starts a new flow for the given wallet invocation link and runs it up to the
// first user-facing or terminal state.
func (h *LinkHandler) Handle(ctx context.Context, link string) (*Machine, error) {
	if !looksLikeJWT(link) {
		linkURL, err := url.Parse(link)
		if err != nil {
			return nil, fmt.Errorf("invalid wallet invocation link: %w", err)
		}
		if !supportedScheme(linkURL.Scheme) {
			return nil, fmt.Errorf("unsupported wallet invocation scheme: %s", linkURL.Scheme)
		}
	}
	machine := h.auth.GetMachine(link, h.persisting())
	if err := machine.Start(ctx); err != nil {
		return nil, err
	}
	h.persist(machine.State(), machine.Context())
	return machine, nil
}

// Resume restores the flow with the given session id from its persisted snapshot.
func (h *LinkHandler) Resume(_ context.Context, sessionID string) (*Machine, error) {
	var snapshot flowSnapshot
	if err := h.store.Get(sessionID, &snapshot); err != nil {
		return nil, fmt.Errorf("unable to resume flow (sessionID=%s): %w", sessionID, err)
	}
	return NewMachineAt(snapshot.State, h.auth.Services(), snapshot.Flow, h.persisting()), nil
}

// StartOrResume resumes the flow with the given session id if a snapshot exists,
// and starts a new flow from the link otherwise.
func (h *LinkHandler) StartOrResume(ctx context.Context, sessionID string, link string) (*Machine, error) {
	if sessionID != "" && h.store.Exists(sessionID) {
		return h.Resume(ctx, sessionID)
	}
	return h.Handle(ctx, link)
}

// persisting wraps the navigation listener so every user-facing state change is persisted.
func (h *LinkHandler) persisting() NavigationListener {
	return func(state State, flow FlowContext) {
		h.persist(state, flow)
		if h.listener != nil {
			h.listener(state, flow)
		}
	}
}

func (h *LinkHandler) persist(state State, flow FlowContext) {
	if flow.SessionID == "" {
		return
	}
	if terminalStates[state] {
		if err := h.store.Delete(flow.SessionID); err != nil {
			logging.Log().WithError(err).Warn("Unable to delete flow snapshot")
		}
		return
	}
	if err := h.store.Put(flow.SessionID, flowSnapshot{State: state, Flow: flow}); err != nil {
		logging.Log().WithError(err).Warn("Unable to persist flow snapshot")
	}
}
