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

package pe

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/nuts-foundation/go-did/did"
	"github.com/nuts-foundation/go-did/vc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresentationSubmissionBuilder_Build(t *testing.T) {
	holderA := did.MustParseDID("did:example:holderA")
	holderB := did.MustParseDID("did:example:holderB")
	licenseVC := testCredential(t)
	membershipVC := membershipCredential(t)

	t.Run("single wallet, single VP", func(t *testing.T) {
		definition := parseDefinition(t, testDefinition)
		builder := definition.PresentationSubmissionBuilder()
		builder.AddWallet(holderA, []vc.VerifiableCredential{licenseVC, membershipVC})

		submission, signInstructions, err := builder.Build("ldp_vp")

		require.NoError(t, err)
		require.Len(t, signInstructions, 1)
		assert.Equal(t, holderA, signInstructions[0].Holder)
		assert.Len(t, signInstructions[0].VerifiableCredentials, 1)
		require.Len(t, submission.DescriptorMap, 1)
		assert.Equal(t, "$.verifiableCredential[0]", submission.DescriptorMap[0].Path)
		assert.Nil(t, submission.DescriptorMap[0].PathNested)
	})
	t.Run("two wallets, two VPs", func(t *testing.T) {
		definition := parseDefinition(t, allFromNestedDefinition)
		builder := definition.PresentationSubmissionBuilder()
		builder.AddWallet(holderA, []vc.VerifiableCredential{licenseVC})
		builder.AddWallet(holderB, []vc.VerifiableCredential{membershipVC})

		submission, signInstructions, err := builder.Build("jwt_vp")

		require.NoError(t, err)
		require.Len(t, signInstructions, 2)
		assert.Equal(t, holderA, signInstructions[0].Holder)
		assert.Equal(t, holderB, signInstructions[1].Holder)
		require.Len(t, submission.DescriptorMap, 2)
		for i, mapping := range submission.DescriptorMap {
			assert.Equal(t, "jwt_vp", mapping.Format)
			assert.Equal(t, fmt.Sprintf("$[%d]", i), mapping.Path)
			require.NotNil(t, mapping.PathNested)
			assert.Equal(t, "$.verifiableCredential[0]", mapping.PathNested.Path)
		}
	})
	t.Run("unfulfillable definition yields empty sign instructions", func(t *testing.T) {
		definition := parseDefinition(t, testDefinition)
		builder := definition.PresentationSubmissionBuilder()
		builder.AddWallet(holderA, []vc.VerifiableCredential{membershipVC})

		submission, signInstructions, err := builder.Build("ldp_vp")

		require.NoError(t, err)
		assert.True(t, signInstructions.Empty())
		assert.Empty(t, submission.DescriptorMap)
	})
}

func TestParsePresentationSubmission(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		submission, err := ParsePresentationSubmission([]byte(`{"id": "1", "definition_id": "2", "descriptor_map": [{"id": "3", "path": "$.verifiableCredential[0]", "format": "ldp_vc"}]}`))

		require.NoError(t, err)
		assert.Equal(t, "1", submission.Id)
		require.Len(t, submission.DescriptorMap, 1)
	})
	t.Run("missing id", func(t *testing.T) {
		_, err := ParsePresentationSubmission([]byte(`{"definition_id": "2", "descriptor_map": []}`))

		require.Error(t, err)
		assert.ErrorContains(t, err, "invalid presentation submission")
	})
}

func TestPresentationSubmission_Resolve(t *testing.T) {
	licenseVC := testCredential(t)
	vpJSON := `{
	  "@context": ["https://www.w3.org/2018/credentials/v1"],
	  "type": "VerifiablePresentation",
	  "verifiableCredential": [` + testCredentialString + `]
	}`
	var envelope interface{}
	require.NoError(t, json.Unmarshal([]byte(vpJSON), &envelope))

	t.Run("ok", func(t *testing.T) {
		submission := PresentationSubmission{
			DescriptorMap: []InputDescriptorMappingObject{
				{Id: "driver_license", Path: "$.verifiableCredential[0]", Format: "ldp_vc"},
			},
		}

		credentials, err := submission.Resolve(envelope)

		require.NoError(t, err)
		require.Len(t, credentials, 1)
		assert.Equal(t, licenseVC.ID, credentials["driver_license"].ID)
	})
	t.Run("path does not resolve to a credential", func(t *testing.T) {
		submission := PresentationSubmission{
			DescriptorMap: []InputDescriptorMappingObject{
				{Id: "driver_license", Path: "$.type", Format: "ldp_vc"},
			},
		}

		_, err := submission.Resolve(envelope)

		require.Error(t, err)
		assert.ErrorContains(t, err, "driver_license")
	})
	t.Run("invalid envelope", func(t *testing.T) {
		_, err := PresentationSubmission{}.Resolve(1)

		assert.EqualError(t, err, "invalid Presentation Exchange envelope")
	})
}
