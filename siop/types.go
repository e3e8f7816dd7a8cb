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
	"errors"
	"net/url"

	"github.com/nuts-foundation/go-did/vc"
	"github.com/nuts-foundation/siop-op/oauth"
	"github.com/nuts-foundation/siop-op/pe"
)

var (
	// ErrSessionNotFound is returned when the session registry has no session under the given id.
	ErrSessionNotFound = errors.New("OP session not found")
	// ErrSessionExists is returned when a session is registered under an id that is already taken.
	ErrSessionExists = errors.New("OP session already registered")
	// ErrRequestNotVerified is returned when request-derived values are read before the
	// authorization request has been fetched and verified.
	ErrRequestNotVerified = errors.New("authorization request has not been verified yet")
	// ErrNoDIDMethodIntersection is returned when the relying party restricts DID methods
	// to a set that does not overlap with the methods this agent supports.
	ErrNoDIDMethodIntersection = errors.New("no supported DID methods in common with the relying party")
	// ErrPresentationCountMismatch is returned when the number of presentations sent does not
	// match the number of presentation definitions in the authorization request.
	ErrPresentationCountMismatch = errors.New("number of presentations does not match number of presentation definitions")
	// ErrMissingPresentationSubmission is returned when presentations are sent without a submission.
	ErrMissingPresentationSubmission = errors.New("presentation submission is required when sending presentations")
	// ErrNoCredentialsSelected signals that a response requiring credentials was attempted
	// without a non-empty selection.
	ErrNoCredentialsSelected = errors.New("no credentials selected")
	// ErrNoMatchingCredentials is returned when the wallet holds no credentials that satisfy
	// the presentation definition.
	ErrNoMatchingCredentials = errors.New("no credentials in wallet match the presentation definition")
)

// oauthError constructs an OAuth2Error, optionally wrapping an internal cause.
func oauthError(code oauth.ErrorCode, description string, internalError ...error) oauth.OAuth2Error {
	return oauth.OAuth2Error{
		Code:          code,
		Description:   description,
		InternalError: errors.Join(internalError...),
	}
}

// AuthorizationRequestData is the verified content of a SIOPv2/OpenID4VP authorization request.
type AuthorizationRequestData struct {
	// CorrelationID identifies the relying party across sessions. It is the client_id when
	// that is a DID, otherwise the hostname of the redirect target.
	CorrelationID string
	// ClientID is the OAuth2 client_id of the relying party.
	ClientID string
	// RedirectURI is where the authorization response must be delivered.
	// With response_mode=direct_post this is the response_uri.
	RedirectURI string
	ResponseType string
	ResponseMode string
	Nonce        string
	State        string
	Scope        string
	// ClientMetadata holds the relying party's registration metadata, if provided.
	ClientMetadata *oauth.RelyingPartyMetadata
	// PresentationDefinitions is non-empty if and only if the request asks for a vp_token.
	PresentationDefinitions []pe.PresentationDefinition
}

// RequestsPresentation returns whether the request asks for Verifiable Presentations.
func (r AuthorizationRequestData) RequestsPresentation() bool {
	return len(r.PresentationDefinitions) > 0
}

// CredentialsWithDefinition pairs a presentation definition with the wallet credentials
// that were selected (or filtered) for it.
type CredentialsWithDefinition struct {
	Definition  pe.PresentationDefinition
	Credentials []vc.VerifiableCredential
}

// PresentationWithSubmission pairs a signed presentation with the submission describing
// how it fulfills its presentation definition.
type PresentationWithSubmission struct {
	Presentation vc.VerifiablePresentation
	Submission   pe.PresentationSubmission
}

// Response is the relying party's reply to an authorization response.
type Response struct {
	// Body is the parsed JSON body, or the raw body as string when it is not JSON.
	Body interface{}
	// RedirectURI is the redirect_uri returned by the relying party, if any.
	RedirectURI string
	// QueryParams are the query parameters decoded from RedirectURI.
	QueryParams url.Values
	StatusCode  int
}

// ErrorDetails describes a failure in a form suitable for display.
type ErrorDetails struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}
