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
 */

// Package oauth contains generic OAuth2/SIOPv2/OpenID4VP related functionality, variables and constants
package oauth

// oauth parameter keys
const (
	// ClientIDParam is the parameter name for the client_id parameter. (RFC6749)
	ClientIDParam = "client_id"
	// ClientMetadataParam is the parameter name for the client_metadata parameter. (OpenID4VP)
	ClientMetadataParam = "client_metadata"
	// ClientMetadataURIParam is the parameter name for the client_metadata_uri parameter. (OpenID4VP)
	ClientMetadataURIParam = "client_metadata_uri"
	// NonceParam is the parameter name for the nonce parameter. (OpenID Connect Core)
	NonceParam = "nonce"
	// PresentationDefParam is the parameter name for the OpenID4VP presentation_definition parameter.
	PresentationDefParam = "presentation_definition"
	// PresentationDefUriParam is the parameter name for the OpenID4VP presentation_definition_uri parameter.
	PresentationDefUriParam = "presentation_definition_uri"
	// PresentationSubmissionParam is the parameter name for the presentation_submission parameter. (OpenID4VP)
	PresentationSubmissionParam = "presentation_submission"
	// RedirectURIParam is the parameter name for the redirect_uri parameter. (RFC6749)
	RedirectURIParam = "redirect_uri"
	// RegistrationParam is the parameter name for the SIOPv2 registration parameter.
	RegistrationParam = "registration"
	// RegistrationURIParam is the parameter name for the SIOPv2 registration_uri parameter.
	RegistrationURIParam = "registration_uri"
	// RequestParam is the parameter name for the request parameter. (RFC9101)
	RequestParam = "request"
	// RequestURIParam is the parameter name for the request_uri parameter. (RFC9101)
	RequestURIParam = "request_uri"
	// ResponseModeParam is the parameter name for the OAuth2 response_mode parameter.
	ResponseModeParam = "response_mode"
	// ResponseTypeParam is the parameter name for the response_type parameter. (RFC6749)
	ResponseTypeParam = "response_type"
	// ResponseURIParam is the parameter name for the OpenID4VP response_uri parameter.
	ResponseURIParam = "response_uri"
	// ScopeParam is the parameter name for the scope parameter. (RFC6749)
	ScopeParam = "scope"
	// StateParam is the parameter name for the state parameter. (RFC6749)
	StateParam = "state"
	// IDTokenParam is the parameter name for the id_token response parameter. (OpenID Connect Core)
	IDTokenParam = "id_token"
	// VpTokenParam is the parameter name for the vp_token parameter. (OpenID4VP)
	VpTokenParam = "vp_token"
)

// response types
const (
	// IDTokenResponseType is the SIOPv2 id_token response type.
	IDTokenResponseType = "id_token"
	// VPTokenResponseType is the OpenID4VP vp_token response type.
	VPTokenResponseType = "vp_token"
)

// response modes
const (
	// DirectPostResponseMode is the OpenID4VP direct_post response mode.
	DirectPostResponseMode = "direct_post"
	// PostResponseMode is the OAuth 2.0 form_post response mode.
	PostResponseMode = "post"
	// QueryResponseMode is the default response mode for response_type=code.
	QueryResponseMode = "query"
	// FragmentResponseMode is the default response mode for implicit grants.
	FragmentResponseMode = "fragment"
)

const (
	// ErrorParam is the parameter name for the error parameter
	ErrorParam = "error"
	// ErrorDescriptionParam is the parameter name for the error_description parameter
	ErrorDescriptionParam = "error_description"
)

// SubjectSyntaxDID is the subject_syntax_types_supported entry declaring generic DID support,
// without constraining the DID method.
const SubjectSyntaxDID = "did"

// SubjectSyntaxDIDPrefix is the prefix for DID-method-specific subject syntax types, e.g. "did:web".
const SubjectSyntaxDIDPrefix = "did:"

// RelyingPartyMetadata holds the client/registration metadata a relying party declares with its
// authorization request, either inline (client_metadata/registration) or by reference
// (client_metadata_uri/registration_uri).
// Specified by https://www.rfc-editor.org/rfc/rfc7591.html, SIOPv2 and OpenID4VP.
type RelyingPartyMetadata struct {
	// ClientName is a human-readable name of the relying party.
	ClientName string `json:"client_name,omitempty"`

	// ClientURI is a URL of a web page providing information about the relying party.
	ClientURI string `json:"client_uri,omitempty"`

	// LogoURI points to a logo for the relying party.
	LogoURI string `json:"logo_uri,omitempty"`

	// ClientPurpose describes why the relying party requests the presentation. (OpenID4VP)
	ClientPurpose string `json:"client_purpose,omitempty"`

	// RedirectURIs lists all URIs that the relying party may use in any redirect-based flow.
	RedirectURIs []string `json:"redirect_uris,omitempty"`

	// ResponseTypesSupported lists the response types the relying party accepts.
	ResponseTypesSupported []string `json:"response_types_supported,omitempty"`

	// SubjectSyntaxTypesSupported lists the subject identifier syntaxes (e.g. "did:web") the
	// relying party accepts. An empty list or the generic "did" entry means all DID methods.
	SubjectSyntaxTypesSupported []string `json:"subject_syntax_types_supported,omitempty"`

	// VPFormats is an object containing key value pairs, where the key identifies a credential
	// format supported by the relying party.
	VPFormats map[string]map[string][]string `json:"vp_formats,omitempty"`
}

// Redirect is the response from the verifier on the direct_post authorization response.
type Redirect struct {
	// RedirectURI is the URI to redirect the user-agent to.
	RedirectURI string `json:"redirect_uri"`
}
