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

	"github.com/nuts-foundation/go-did/vc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpSession_OID4VP(t *testing.T) {
	env := newTestEnv(t)

	t.Run("not available for SIOP-only sessions", func(t *testing.T) {
		session := env.verifiedSession(t, env.siopRequestURI())

		_, err := session.OID4VP()

		assert.ErrorContains(t, err, "does not request presentations")
	})
	t.Run("available when presentations are requested", func(t *testing.T) {
		session := env.verifiedSession(t, env.vpRequestURI())

		oid4vp, err := session.OID4VP()

		require.NoError(t, err)
		definitions, err := oid4vp.GetPresentationDefinitions()
		require.NoError(t, err)
		require.Len(t, definitions, 1)
	})
	t.Run("definitions unavailable after the session is cleared", func(t *testing.T) {
		session := env.verifiedSession(t, env.vpRequestURI())
		oid4vp, err := session.OID4VP()
		require.NoError(t, err)

		session.Clear()
		definitions, err := oid4vp.GetPresentationDefinitions()

		assert.ErrorIs(t, err, ErrRequestNotVerified)
		assert.Nil(t, definitions)
	})
}

func TestOID4VP_filtering(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	session := env.verifiedSession(t, env.vpRequestURI())
	oid4vp, err := session.OID4VP()
	require.NoError(t, err)
	definitions, err := oid4vp.GetPresentationDefinitions()
	require.NoError(t, err)
	definition := definitions[0]

	t.Run("with selection status", func(t *testing.T) {
		result, err := oid4vp.FilterCredentialsWithSelectionStatus(ctx, env.holder, definition)

		require.NoError(t, err)
		require.Len(t, result.Candidates, 1)
		assert.Equal(t, "driver_license", result.Candidates[0].InputDescriptorId)
		assert.Len(t, result.Candidates[0].Matches, 1)
	})
	t.Run("empty wallet", func(t *testing.T) {
		emptyHolder := testIdentity(t, env.keyStore)

		_, err := oid4vp.FilterCredentialsWithSelectionStatus(ctx, emptyHolder, definition)

		assert.Error(t, err)
	})
	t.Run("matches only", func(t *testing.T) {
		credentials, err := oid4vp.FilterCredentials(ctx, env.holder, definition)

		require.NoError(t, err)
		require.Len(t, credentials, 1)
		assert.Contains(t, credentials[0].Raw(), "DriverLicenseCredential")
	})
	t.Run("against all definitions, in definition order", func(t *testing.T) {
		selections, err := oid4vp.FilterCredentialsAgainstAllDefinitions(ctx, env.holder)

		require.NoError(t, err)
		require.Len(t, selections, 1)
		assert.Equal(t, definition.Id, selections[0].Definition.Id)
		assert.Len(t, selections[0].Credentials, 1)
	})
}

func TestOID4VP_CreateVerifiablePresentation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	session := env.verifiedSession(t, env.vpRequestURI())
	oid4vp, err := session.OID4VP()
	require.NoError(t, err)
	definitions, err := oid4vp.GetPresentationDefinitions()
	require.NoError(t, err)
	definition := definitions[0]
	credential := testCredential(t, env.holder)
	selection := CredentialsWithDefinition{Definition: definition, Credentials: []vc.VerifiableCredential{credential}}

	t.Run("with explicit holder", func(t *testing.T) {
		result, err := oid4vp.CreateVerifiablePresentation(ctx, selection, PresentationOptions{Holder: &env.holder})

		require.NoError(t, err)
		assert.Equal(t, vc.JWTPresentationProofFormat, result.Presentation.Format())
		assert.Equal(t, definition.Id, result.Submission.DefinitionId)
		require.Len(t, result.Submission.DescriptorMap, 1)
		assert.Equal(t, "driver_license", result.Submission.DescriptorMap[0].Id)
	})
	t.Run("holder derived from credential subject", func(t *testing.T) {
		result, err := oid4vp.CreateVerifiablePresentation(ctx, selection, PresentationOptions{SubjectIsHolder: true})

		require.NoError(t, err)
		assert.NotNil(t, result)
	})
	t.Run("holder and subjectIsHolder are mutually exclusive", func(t *testing.T) {
		_, err := oid4vp.CreateVerifiablePresentation(ctx, selection, PresentationOptions{Holder: &env.holder, SubjectIsHolder: true})

		assert.ErrorContains(t, err, "either specify a holder or set subjectIsHolder")

		_, err = oid4vp.CreateVerifiablePresentation(ctx, selection, PresentationOptions{})

		assert.ErrorContains(t, err, "either specify a holder or set subjectIsHolder")
	})
	t.Run("credentials are required", func(t *testing.T) {
		empty := CredentialsWithDefinition{Definition: definition}

		_, err := oid4vp.CreateVerifiablePresentation(ctx, empty, PresentationOptions{Holder: &env.holder})

		assert.ErrorIs(t, err, ErrNoCredentialsSelected)
	})
	t.Run("re-filter drops non-matching credentials", func(t *testing.T) {
		mixed := CredentialsWithDefinition{Definition: definition, Credentials: []vc.VerifiableCredential{
			credential,
			testCredentialOfType(t, env.holder, "MembershipCredential"),
		}}

		result, err := oid4vp.CreateVerifiablePresentation(ctx, mixed, PresentationOptions{Holder: &env.holder, ApplyFilter: true})

		require.NoError(t, err)
		require.Len(t, result.Submission.DescriptorMap, 1)
	})
}

func TestOID4VP_CreateVerifiablePresentations(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	session := env.verifiedSession(t, env.vpRequestURI())
	oid4vp, err := session.OID4VP()
	require.NoError(t, err)
	definitions, err := oid4vp.GetPresentationDefinitions()
	require.NoError(t, err)
	definition := definitions[0]
	credential := testCredential(t, env.holder)

	t.Run("order is preserved", func(t *testing.T) {
		selections := []CredentialsWithDefinition{
			{Definition: definition, Credentials: []vc.VerifiableCredential{credential}},
			{Definition: definition, Credentials: []vc.VerifiableCredential{credential}},
		}

		results, err := oid4vp.CreateVerifiablePresentations(ctx, selections, PresentationOptions{Holder: &env.holder})

		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, result := range results {
			assert.Equal(t, definition.Id, result.Submission.DefinitionId)
		}
	})
	t.Run("a single failure fails the whole batch", func(t *testing.T) {
		selections := []CredentialsWithDefinition{
			{Definition: definition, Credentials: []vc.VerifiableCredential{credential}},
			{Definition: definition}, // no credentials
		}

		_, err := oid4vp.CreateVerifiablePresentations(ctx, selections, PresentationOptions{Holder: &env.holder})

		assert.ErrorIs(t, err, ErrNoCredentialsSelected)
	})
}
