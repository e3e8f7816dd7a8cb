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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuts-foundation/siop-op/storage"
)

func TestLinkHandler(t *testing.T) {
	ctx := context.Background()

	newHandler := func(t *testing.T, env *testEnv) (*LinkHandler, storage.SessionDatabase) {
		t.Helper()
		sessionDB := storage.NewInMemorySessionDatabase()
		t.Cleanup(sessionDB.Close)
		return NewLinkHandler(newTestAuthenticator(t, env), sessionDB, nil), sessionDB
	}

	t.Run("invalid link", func(t *testing.T) {
		env := newTestEnv(t)
		handler, _ := newHandler(t, env)

		_, err := handler.Handle(ctx, "mailto:someone@example.com")

		assert.ErrorContains(t, err, "unsupported wallet invocation scheme")
	})
	t.Run("flow progress is persisted and resumable", func(t *testing.T) {
		env := newTestEnv(t)
		handler, _ := newHandler(t, env)

		machine, err := handler.Handle(ctx, env.vpRequestURI())
		require.NoError(t, err)
		require.Equal(t, StateAddContact, machine.State())
		sessionID := machine.Context().SessionID
		require.NotEmpty(t, sessionID)

		resumed, err := handler.Resume(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, StateAddContact, resumed.State())
		assert.Equal(t, env.vpRequestURI(), resumed.Context().RequestInput)
	})
	t.Run("flow is resumable after a restart", func(t *testing.T) {
		env := newTestEnv(t)
		sessionDB := storage.NewInMemorySessionDatabase()
		t.Cleanup(sessionDB.Close)
		handler := NewLinkHandler(newTestAuthenticator(t, env), sessionDB, nil)

		machine, err := handler.Handle(ctx, env.vpRequestURI())
		require.NoError(t, err)
		require.Equal(t, StateAddContact, machine.State())
		sessionID := machine.Context().SessionID

		// a fresh Authenticator has no in-memory session for the persisted flow
		restarted := NewLinkHandler(newTestAuthenticator(t, env), sessionDB, nil)
		resumed, err := restarted.Resume(ctx, sessionID)
		require.NoError(t, err)
		require.Equal(t, StateAddContact, resumed.State())

		require.NoError(t, resumed.Send(ctx, Event{Type: EventSetConsent, Consent: true}))
		require.NoError(t, resumed.Send(ctx, Event{Type: EventCreateContact, Alias: "My RP"}))
		require.Equal(t, StateSelectCredentials, resumed.State())
		assert.Equal(t, sessionID, resumed.Context().SessionID)

		flow := resumed.Context()
		require.Len(t, flow.Selectable, 1)
		selection := []CredentialsWithDefinition{{
			Definition:  flow.Request.PresentationDefinitions[0],
			Credentials: flow.Selectable[0].Candidates[0].Matches,
		}}
		require.NoError(t, resumed.Send(ctx, Event{Type: EventSelectCredentials, Selection: selection}))
		require.NoError(t, resumed.Send(ctx, Event{Type: EventNext}))

		assert.Equal(t, StateDone, resumed.State())
		require.Len(t, env.received, 1)
	})
	t.Run("StartOrResume prefers the snapshot", func(t *testing.T) {
		env := newTestEnv(t)
		handler, _ := newHandler(t, env)
		machine, err := handler.Handle(ctx, env.vpRequestURI())
		require.NoError(t, err)
		sessionID := machine.Context().SessionID

		resumed, err := handler.StartOrResume(ctx, sessionID, env.vpRequestURI())
		require.NoError(t, err)
		assert.Equal(t, sessionID, resumed.Context().SessionID)
	})
	t.Run("StartOrResume without a snapshot starts fresh", func(t *testing.T) {
		env := newTestEnv(t)
		handler, _ := newHandler(t, env)

		machine, err := handler.StartOrResume(ctx, "gone", env.vpRequestURI())

		require.NoError(t, err)
		assert.NotEqual(t, "gone", machine.Context().SessionID)
	})
	t.Run("terminal states delete the snapshot", func(t *testing.T) {
		env := newTestEnv(t)
		handler, _ := newHandler(t, env)
		machine, err := handler.Handle(ctx, env.vpRequestURI())
		require.NoError(t, err)
		sessionID := machine.Context().SessionID

		require.NoError(t, machine.Send(ctx, Event{Type: EventAbort}))

		assert.Equal(t, StateAborted, machine.State())
		_, err = handler.Resume(ctx, sessionID)
		assert.ErrorContains(t, err, "unable to resume flow")
	})
}
