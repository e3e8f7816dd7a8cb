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

package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	ssi "github.com/nuts-foundation/go-did"
	"github.com/nuts-foundation/go-did/did"
	"github.com/nuts-foundation/go-did/vc"

	"github.com/nuts-foundation/siop-op/crypto"
	"github.com/nuts-foundation/siop-op/pe"
	"github.com/nuts-foundation/siop-op/vdr"
)

// VerifiableCredentialLDContextV1 is the JSON-LD context for W3C verifiable credentials.
var VerifiableCredentialLDContextV1 = ssi.MustParseURI("https://www.w3.org/2018/credentials/v1")

// VerifiablePresentationLDType is the JSON-LD type of a verifiable presentation.
var VerifiablePresentationLDType = ssi.MustParseURI("VerifiablePresentation")

// BuildParams contains the parameters that will be included in the signature of the verifiable presentation
type BuildParams struct {
	Audience string
	Expires  time.Time
	Nonce    string
}

// Presenter creates verifiable presentations signed by the holder.
// Presentations are created in the JWT (jwt_vp) format.
type Presenter struct {
	Signer      crypto.JWTSigner
	KeyResolver vdr.KeyResolver
}

// BuildPresentation creates and signs a verifiable presentation containing the given credentials.
// The credentials keep their original wire format inside the presentation.
// If signerDID is nil, the signer is resolved from the credentials' subject.
func (p Presenter) BuildPresentation(ctx context.Context, signerDID *did.DID, credentials []vc.VerifiableCredential, params BuildParams) (*vc.VerifiablePresentation, error) {
	var err error
	if signerDID == nil {
		signerDID, err = ResolveSubjectDID(credentials...)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve signer DID from VCs for creating VP: %w", err)
		}
	}
	kid, _, err := p.KeyResolver.ResolveKey(*signerDID)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve assertion key for signing VP (did=%s): %w", *signerDID, err)
	}
	return p.buildJWTPresentation(ctx, *signerDID, credentials, params, kid)
}

// buildJWTPresentation builds a JWT presentation according to https://www.w3.org/TR/vc-data-model/#json-web-token
func (p Presenter) buildJWTPresentation(ctx context.Context, subjectDID did.DID, credentials []vc.VerifiableCredential, params BuildParams, keyID string) (*vc.VerifiablePresentation, error) {
	headers := map[string]interface{}{
		jws.TypeKey: "JWT",
	}
	id := did.DIDURL{DID: subjectDID}
	id.Fragment = strings.ToLower(uuid.NewString())
	claims := map[string]interface{}{
		jwt.IssuerKey:  subjectDID.String(),
		jwt.SubjectKey: subjectDID.String(),
		jwt.JwtIDKey:   id.String(),
		"vp": vc.VerifiablePresentation{
			Context:              []ssi.URI{VerifiableCredentialLDContextV1},
			Type:                 []ssi.URI{VerifiablePresentationLDType},
			VerifiableCredential: credentials,
		},
		jwt.NotBeforeKey: time.Now().Unix(),
	}
	if params.Nonce != "" {
		claims["nonce"] = params.Nonce
	}
	if params.Audience != "" {
		claims[jwt.AudienceKey] = params.Audience
	}
	if !params.Expires.IsZero() {
		claims[jwt.ExpirationKey] = params.Expires.Unix()
	}
	token, err := p.Signer.SignJWT(ctx, claims, headers, keyID)
	if err != nil {
		return nil, fmt.Errorf("unable to sign JWT presentation: %w", err)
	}
	return vc.ParseVerifiablePresentation(token)
}

// BuildSubmission matches the given credentials against the presentation definition and
// creates a signed presentation plus submission for the result.
// acceptedFormats restricts the VP format to what the verifier supports; nil means no restriction.
// Returns ErrNoCredentials if the definition requires credentials the holder does not have.
func (p Presenter) BuildSubmission(ctx context.Context, holderDID did.DID, credentials []vc.VerifiableCredential,
	presentationDefinition pe.PresentationDefinition, acceptedFormats map[string]map[string][]string, params BuildParams) (*vc.VerifiablePresentation, *pe.PresentationSubmission, error) {
	format := chooseFormat(presentationDefinition, acceptedFormats)
	if format == "" {
		return nil, nil, errors.New("holder, verifier and presentation definition don't share a supported VP format")
	}
	builder := presentationDefinition.PresentationSubmissionBuilder()
	builder.AddWallet(holderDID, credentials)
	presentationSubmission, signInstructions, err := builder.Build(format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build presentation submission: %w", err)
	}
	if signInstructions.Empty() {
		// empty is allowed if no credentials are required
		if presentationDefinition.CredentialsRequired() {
			return nil, nil, ErrNoCredentials
		}
		signInstructions = pe.SignInstructions{{Holder: holderDID}}
		presentationSubmission = pe.PresentationSubmission{
			Id:            uuid.NewString(),
			DefinitionId:  presentationDefinition.Id,
			DescriptorMap: make([]pe.InputDescriptorMappingObject, 0),
		}
	}

	vp, err := p.BuildPresentation(ctx, &holderDID, signInstructions[0].VerifiableCredentials, params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create verifiable presentation: %w", err)
	}
	return vp, &presentationSubmission, nil
}

// holderSupportedFormats lists the VP formats this agent can produce.
func holderSupportedFormats() map[string]map[string][]string {
	return map[string]map[string][]string{
		vc.JWTPresentationProofFormat: {"alg_values_supported": {"ES256"}},
	}
}

// chooseFormat intersects the holder's formats with the verifier's accepted formats and
// the definition's claim format designations, and picks the preferred one.
func chooseFormat(presentationDefinition pe.PresentationDefinition, acceptedFormats map[string]map[string][]string) string {
	candidates := holderSupportedFormats()
	if acceptedFormats != nil && hasVPFormats(acceptedFormats) {
		candidates = intersectFormats(candidates, acceptedFormats)
	}
	if presentationDefinition.Format != nil && hasVPFormats(*presentationDefinition.Format) {
		candidates = intersectFormats(candidates, *presentationDefinition.Format)
	}
	return pe.ChooseVPFormat(candidates)
}

// hasVPFormats returns true if the designations restrict presentation formats.
// Designations listing only credential formats don't restrict the VP envelope.
func hasVPFormats(formats map[string]map[string][]string) bool {
	for format := range formats {
		if strings.Contains(format, "vp") {
			return true
		}
	}
	return false
}

func intersectFormats(left, right map[string]map[string][]string) map[string]map[string][]string {
	result := map[string]map[string][]string{}
	for format, properties := range left {
		if _, ok := right[format]; ok {
			result[format] = properties
		} else if format == vc.JWTPresentationProofFormat {
			// jwt_vp and jwt_vp_json identify the same format in the wild
			if _, ok := right["jwt_vp_json"]; ok {
				result[format] = properties
			}
		}
	}
	return result
}
