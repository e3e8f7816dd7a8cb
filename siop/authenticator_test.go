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
	"strings"
	"testing"
	"time"

	"github.com/nuts-foundation/go-did/did"
	"github.com/nuts-foundation/go-did/vc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuts-foundation/siop-op/contact"
	"github.com/nuts-foundation/siop-op/oauth"
	"github.com/nuts-foundation/siop-op/storage"
)

func newTestAuthenticator(t *testing.T, env *testEnv) *Authenticator {
	t.Helper()
	db, err := storage.NewTestDatabase()
	require.NoError(t, err)
	auth := NewAuthenticator(Config{Holder: env.holder, DIDMethods: []string{"jwk"}}, env.deps, contact.NewStore(db))
	t.Cleanup(auth.Shutdown)
	return auth
}

func TestAuthenticator_sessions(t *testing.T) {
	env := newTestEnv(t)
	auth := newTestAuthenticator(t, env)

	t.Run("register and get", func(t *testing.T) {
		session, err := auth.RegisterSession(env.vpRequestURI())
		require.NoError(t, err)

		found, err := auth.GetSession(session.ID())
		require.NoError(t, err)
		assert.Same(t, session, found)
	})
	t.Run("unknown session", func(t *testing.T) {
		_, err := auth.GetSession("unknown")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
	t.Run("remove", func(t *testing.T) {
		session, err := auth.RegisterSession(env.vpRequestURI())
		require.NoError(t, err)

		auth.RemoveSession(session.ID())

		_, err = auth.GetSession(session.ID())
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
	t.Run("duplicate session id", func(t *testing.T) {
		registry := newSessionRegistry(0)
		defer registry.close()
		session := NewOpSession("dup", env.vpRequestURI(), []string{"jwk"}, env.deps)

		require.NoError(t, registry.add(session))
		err := registry.add(NewOpSession("dup", env.vpRequestURI(), []string{"jwk"}, env.deps))

		assert.ErrorIs(t, err, ErrSessionExists)
	})
	t.Run("sessions expire after their TTL", func(t *testing.T) {
		registry := newSessionRegistry(time.Millisecond)
		defer registry.close()
		session := NewOpSession("ttl", env.vpRequestURI(), []string{"jwk"}, env.deps)
		require.NoError(t, registry.add(session))

		time.Sleep(5 * time.Millisecond)

		_, err := registry.get("ttl")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
	t.Run("supported DIDs", func(t *testing.T) {
		session, err := auth.RegisterSession(env.vpRequestURI())
		require.NoError(t, err)
		_, err = session.GetAuthorizationRequest(context.Background())
		require.NoError(t, err)

		identities, err := auth.SupportedDIDs(session.ID())

		require.NoError(t, err)
		assert.Equal(t, []did.DID{env.holder}, identities)
	})
}

func TestAuthenticator_customApprovals(t *testing.T) {
	env := newTestEnv(t)
	auth := newTestAuthenticator(t, env)
	noop := func(context.Context, *OpSession, []CredentialsWithDefinition) error { return nil }

	t.Run("register once", func(t *testing.T) {
		require.NoError(t, auth.RegisterCustomApproval("policy", noop))

		err := auth.RegisterCustomApproval("policy", noop)

		assert.ErrorContains(t, err, "already registered")
	})
	t.Run("remove reports existence", func(t *testing.T) {
		require.NoError(t, auth.RegisterCustomApproval("removable", noop))

		assert.True(t, auth.RemoveCustomApproval("removable"))
		assert.False(t, auth.RemoveCustomApproval("removable"))
	})
	t.Run("approval veto blocks the response", func(t *testing.T) {
		require.NoError(t, auth.RegisterCustomApproval("veto", func(context.Context, *OpSession, []CredentialsWithDefinition) error {
			return errors.New("not allowed by policy")
		}))
		defer auth.RemoveCustomApproval("veto")
		session, err := auth.RegisterSession(env.siopRequestURI())
		require.NoError(t, err)
		_, err = session.GetAuthorizationRequest(context.Background())
		require.NoError(t, err)

		_, err = auth.SendResponse(context.Background(), session.ID(), nil)

		assert.ErrorContains(t, err, "authorization response vetoed")
		assert.Empty(t, env.received)
	})
}

func TestAuthenticator_SendResponse(t *testing.T) {
	ctx := context.Background()

	vpSession := func(t *testing.T, env *testEnv, auth *Authenticator) *OpSession {
		t.Helper()
		session, err := auth.RegisterSession(env.vpRequestURI())
		require.NoError(t, err)
		_, err = session.GetAuthorizationRequest(ctx)
		require.NoError(t, err)
		return session
	}

	t.Run("ok", func(t *testing.T) {
		env := newTestEnv(t)
		auth := newTestAuthenticator(t, env)
		session := vpSession(t, env, auth)
		oid4vp, err := session.OID4VP()
		require.NoError(t, err)
		selected, err := oid4vp.FilterCredentialsAgainstAllDefinitions(ctx, env.holder)
		require.NoError(t, err)

		response, err := auth.SendResponse(ctx, session.ID(), selected)

		require.NoError(t, err)
		assert.Equal(t, "https://rp.example.com/done", response.RedirectURI)
		require.Len(t, env.received, 1)
	})
	t.Run("selection count mismatch", func(t *testing.T) {
		env := newTestEnv(t)
		auth := newTestAuthenticator(t, env)
		session := vpSession(t, env, auth)

		_, err := auth.SendResponse(ctx, session.ID(), nil)

		assert.ErrorIs(t, err, ErrPresentationCountMismatch)
	})
	t.Run("empty selection", func(t *testing.T) {
		env := newTestEnv(t)
		auth := newTestAuthenticator(t, env)
		session := vpSession(t, env, auth)
		request, err := session.GetAuthorizationRequest(ctx)
		require.NoError(t, err)

		_, err = auth.SendResponse(ctx, session.ID(), []CredentialsWithDefinition{
			{Definition: request.PresentationDefinitions[0]},
		})

		assert.ErrorIs(t, err, ErrNoCredentialsSelected)
	})
	t.Run("selection does not satisfy the definition", func(t *testing.T) {
		env := newTestEnv(t)
		auth := newTestAuthenticator(t, env)
		session := vpSession(t, env, auth)
		request, err := session.GetAuthorizationRequest(ctx)
		require.NoError(t, err)
		nonMatching := testCredentialOfType(t, env.holder, "MembershipCredential")

		_, err = auth.SendResponse(ctx, session.ID(), []CredentialsWithDefinition{
			{Definition: request.PresentationDefinitions[0], Credentials: []vc.VerifiableCredential{nonMatching}},
		})

		assert.ErrorContains(t, err, "do not satisfy presentation definition")
	})
	t.Run("unknown session", func(t *testing.T) {
		env := newTestEnv(t)
		auth := newTestAuthenticator(t, env)

		_, err := auth.SendResponse(ctx, "unknown", nil)

		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

// TestAuthenticator_endToEnd drives a full OpenID4VP flow: an unknown relying party asks
// for a driver license credential, the user names the contact, selects the credential and
// the response is delivered.
func TestAuthenticator_endToEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	auth := newTestAuthenticator(t, env)

	machine := NewMachine(auth.Services(), FlowContext{RequestInput: env.vpRequestURI()}, nil)
	require.NoError(t, machine.Start(ctx))

	// the relying party is unknown, so the user consents to storing it and names it
	require.Equal(t, StateAddContact, machine.State())
	require.NoError(t, machine.Send(ctx, Event{Type: EventSetConsent, Consent: true}))
	require.NoError(t, machine.Send(ctx, Event{Type: EventCreateContact, Alias: "My Verifier"}))

	// the wallet holds one matching credential
	require.Equal(t, StateSelectCredentials, machine.State())
	flow := machine.Context()
	require.Len(t, flow.Selectable, 1)
	require.Len(t, flow.Selectable[0].Candidates, 1)
	matches := flow.Selectable[0].Candidates[0].Matches
	require.Len(t, matches, 1)

	selection := []CredentialsWithDefinition{{
		Definition:  flow.Request.PresentationDefinitions[0],
		Credentials: matches,
	}}
	require.NoError(t, machine.Send(ctx, Event{Type: EventSelectCredentials, Selection: selection}))
	require.NoError(t, machine.Send(ctx, Event{Type: EventNext}))

	assert.Equal(t, StateDone, machine.State())
	flow = machine.Context()
	require.NotNil(t, flow.Response)
	assert.Equal(t, "https://rp.example.com/done", flow.Response.RedirectURI)

	// the relying party received the presentation
	require.Len(t, env.received, 1)
	received := env.received[0]
	assert.True(t, strings.HasPrefix(received.Get(oauth.VpTokenParam), "ey"))
	assert.Contains(t, received.Get(oauth.PresentationSubmissionParam), "driver_license")
	assert.Equal(t, "state123", received.Get(oauth.StateParam))

	// the contact is persisted for the next session
	persisted, err := auth.contacts.FindByCorrelationID(env.rp.String())
	require.NoError(t, err)
	assert.Equal(t, "My Verifier", persisted.Name)
}
