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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nuts-foundation/go-did/did"
	"github.com/nuts-foundation/siop-op/core"
	cryptoutil "github.com/nuts-foundation/siop-op/crypto"
	"github.com/nuts-foundation/siop-op/oauth"
	"github.com/nuts-foundation/siop-op/pe"
	"github.com/nuts-foundation/siop-op/vdr"
)

// schemes under which a wallet invocation URI may arrive.
var requestURISchemes = []string{"openid", "openid4vp", "openid-vc", "https", "http"}

// HTTPRequestDoer performs HTTP requests. Implemented by core.StrictHTTPClient.
type HTTPRequestDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestParser turns a wallet invocation (URI or signed request object) into
// verified AuthorizationRequestData.
type RequestParser struct {
	HTTPClient  HTTPRequestDoer
	KeyResolver vdr.KeyResolver
}

// Parse parses and verifies an authorization request. The input may be a SIOPv2/OpenID4VP
// invocation URI (openid://, openid4vp://, openid-vc:// or https://), or a bare signed
// request object (JWT). Request objects passed by value (request=) or by reference
// (request_uri=) are fetched and validated against the relying party's DID key.
func (p RequestParser) Parse(ctx context.Context, input string) (*AuthorizationRequestData, error) {
	input = strings.TrimSpace(input)
	if looksLikeJWT(input) {
		return p.parseRequestObject(ctx, input)
	}
	requestURL, err := url.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("invalid authorization request URI: %w", err)
	}
	if !supportedScheme(requestURL.Scheme) {
		return nil, fmt.Errorf("unsupported authorization request scheme: %s", requestURL.Scheme)
	}
	params := requestURL.Query()
	if requestObject := params.Get(oauth.RequestParam); requestObject != "" {
		return p.parseRequestObject(ctx, requestObject)
	}
	if requestURI := params.Get(oauth.RequestURIParam); requestURI != "" {
		requestObject, err := p.fetchRequestObject(ctx, requestURI)
		if err != nil {
			return nil, err
		}
		return p.parseRequestObject(ctx, requestObject)
	}
	flat := make(map[string]interface{}, len(params))
	for key := range params {
		flat[key] = params.Get(key)
	}
	return p.fromParams(ctx, flat)
}

// parseRequestObject validates a JAR request object (RFC9101) and extracts its claims.
// The object must be signed by the key of the DID in its client_id claim.
func (p RequestParser) parseRequestObject(ctx context.Context, requestObject string) (*AuthorizationRequestData, error) {
	token, err := cryptoutil.ParseJWT(requestObject, vdr.KeyFunc(p.KeyResolver))
	if err != nil {
		return nil, fmt.Errorf("request object signature validation failed: %w", err)
	}
	claims, err := token.AsMap(ctx)
	if err != nil {
		return nil, err
	}
	clientID, _ := claims[oauth.ClientIDParam].(string)
	clientDID, err := did.ParseDID(clientID)
	if err != nil {
		return nil, fmt.Errorf("client_id of a signed request object must be a DID: %w", err)
	}
	kid, _, err := cryptoutil.JWTKidAlg(requestObject)
	if err != nil {
		return nil, err
	}
	signerDID, err := did.ParseDIDURL(kid)
	if err != nil || !signerDID.DID.Equals(*clientDID) {
		return nil, errors.New("request object is not signed by its client_id")
	}
	return p.fromParams(ctx, claims)
}

// fromParams builds AuthorizationRequestData from flat request parameters.
func (p RequestParser) fromParams(ctx context.Context, params map[string]interface{}) (*AuthorizationRequestData, error) {
	request := AuthorizationRequestData{
		ClientID:     stringParam(params, oauth.ClientIDParam),
		ResponseType: stringParam(params, oauth.ResponseTypeParam),
		ResponseMode: stringParam(params, oauth.ResponseModeParam),
		Nonce:        stringParam(params, oauth.NonceParam),
		State:        stringParam(params, oauth.StateParam),
		Scope:        stringParam(params, oauth.ScopeParam),
	}
	if request.ClientID == "" {
		return nil, oauthError(oauth.InvalidRequest, "missing client_id parameter")
	}
	if request.ResponseType == "" {
		return nil, oauthError(oauth.InvalidRequest, "missing response_type parameter")
	}
	if !responseTypeSupported(request.ResponseType) {
		return nil, oauthError(oauth.UnsupportedResponseType, "unsupported response_type: "+request.ResponseType)
	}
	request.RedirectURI = stringParam(params, oauth.RedirectURIParam)
	if responseURI := stringParam(params, oauth.ResponseURIParam); responseURI != "" {
		if request.RedirectURI != "" {
			return nil, oauthError(oauth.InvalidRequest, "redirect_uri and response_uri are mutually exclusive")
		}
		request.RedirectURI = responseURI
	}
	if request.RedirectURI == "" {
		return nil, oauthError(oauth.InvalidRequest, "missing redirect_uri/response_uri parameter")
	}
	var err error
	if request.ClientMetadata, err = p.clientMetadata(ctx, params); err != nil {
		return nil, err
	}
	if request.PresentationDefinitions, err = p.presentationDefinitions(ctx, params); err != nil {
		return nil, err
	}
	if requestsVPToken(request.ResponseType) != (len(request.PresentationDefinitions) > 0) {
		return nil, oauthError(oauth.InvalidRequest, "response_type and presentation definitions do not agree")
	}
	if len(request.PresentationDefinitions) > 0 && request.Nonce == "" {
		return nil, oauthError(oauth.InvalidRequest, "missing nonce parameter")
	}
	request.CorrelationID = correlationID(request)
	return &request, nil
}

// clientMetadata resolves the relying party's metadata from the request parameters.
// client_metadata/registration carry it inline, client_metadata_uri/registration_uri by reference.
func (p RequestParser) clientMetadata(ctx context.Context, params map[string]interface{}) (*oauth.RelyingPartyMetadata, error) {
	inline := rawParam(params, oauth.ClientMetadataParam)
	if inline == nil {
		inline = rawParam(params, oauth.RegistrationParam)
	}
	byRef := stringParam(params, oauth.ClientMetadataURIParam)
	if byRef == "" {
		byRef = stringParam(params, oauth.RegistrationURIParam)
	}
	if inline != nil && byRef != "" {
		return nil, oauthError(oauth.InvalidRequest, "client metadata can be passed inline or by reference, not both")
	}
	if byRef != "" {
		var err error
		if inline, err = p.fetch(ctx, byRef); err != nil {
			return nil, oauthError(oauth.InvalidRequest, "failed to retrieve client metadata", err)
		}
	}
	if inline == nil {
		return nil, nil
	}
	var metadata oauth.RelyingPartyMetadata
	if err := json.Unmarshal(inline, &metadata); err != nil {
		return nil, oauthError(oauth.InvalidRequest, "invalid client metadata", err)
	}
	return &metadata, nil
}

// presentationDefinitions resolves the requested presentation definitions, inline or by reference.
func (p RequestParser) presentationDefinitions(ctx context.Context, params map[string]interface{}) ([]pe.PresentationDefinition, error) {
	inline := rawParam(params, oauth.PresentationDefParam)
	byRef := stringParam(params, oauth.PresentationDefUriParam)
	if inline != nil && byRef != "" {
		return nil, oauthError(oauth.InvalidRequest, "presentation_definition and presentation_definition_uri are mutually exclusive")
	}
	if byRef != "" {
		var err error
		if inline, err = p.fetch(ctx, byRef); err != nil {
			return nil, oauthError(oauth.InvalidRequest, "failed to retrieve presentation definition", err)
		}
	}
	if inline == nil {
		return nil, nil
	}
	// a single definition object, or an array of definitions
	trimmed := strings.TrimSpace(string(inline))
	if strings.HasPrefix(trimmed, "[") {
		var rawDefinitions []json.RawMessage
		if err := json.Unmarshal(inline, &rawDefinitions); err != nil {
			return nil, oauthError(oauth.InvalidPresentationDefinitionURI, "invalid presentation definitions", err)
		}
		definitions := make([]pe.PresentationDefinition, 0, len(rawDefinitions))
		for _, rawDefinition := range rawDefinitions {
			definition, err := pe.ParsePresentationDefinition(rawDefinition)
			if err != nil {
				return nil, oauthError(oauth.InvalidPresentationDefinitionURI, "invalid presentation definition", err)
			}
			definitions = append(definitions, *definition)
		}
		return definitions, nil
	}
	definition, err := pe.ParsePresentationDefinition(inline)
	if err != nil {
		return nil, oauthError(oauth.InvalidPresentationDefinitionURI, "invalid presentation definition", err)
	}
	return []pe.PresentationDefinition{*definition}, nil
}

// fetchRequestObject retrieves a request object by reference (request_uri).
func (p RequestParser) fetchRequestObject(ctx context.Context, requestURI string) (string, error) {
	body, err := p.fetch(ctx, requestURI)
	if err != nil {
		return "", oauthError(oauth.InvalidRequestURI, "failed to retrieve request object", err)
	}
	return strings.TrimSpace(string(body)), nil
}

func (p RequestParser) fetch(ctx context.Context, target string) ([]byte, error) {
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	httpResponse, err := p.HTTPClient.Do(httpRequest)
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()
	if err := core.TestResponseCode(http.StatusOK, httpResponse); err != nil {
		return nil, err
	}
	return io.ReadAll(httpResponse.Body)
}

// correlationID derives a stable identifier for the relying party: its DID when the
// client_id is one, otherwise the hostname of the response target.
func correlationID(request AuthorizationRequestData) string {
	if clientDID, err := did.ParseDID(request.ClientID); err == nil {
		return clientDID.String()
	}
	if redirectURL, err := url.Parse(request.RedirectURI); err == nil && redirectURL.Hostname() != "" {
		return redirectURL.Hostname()
	}
	return request.ClientID
}

func looksLikeJWT(input string) bool {
	return strings.HasPrefix(input, "ey") && strings.Count(input, ".") == 2
}

func supportedScheme(scheme string) bool {
	for _, candidate := range requestURISchemes {
		if scheme == candidate {
			return true
		}
	}
	return false
}

func responseTypeSupported(responseType string) bool {
	for _, part := range strings.Fields(responseType) {
		if part != oauth.IDTokenResponseType && part != oauth.VPTokenResponseType {
			return false
		}
	}
	return true
}

func requestsVPToken(responseType string) bool {
	for _, part := range strings.Fields(responseType) {
		if part == oauth.VPTokenResponseType {
			return true
		}
	}
	return false
}

func stringParam(params map[string]interface{}, key string) string {
	value, _ := params[key].(string)
	return value
}

// rawParam returns the parameter value as raw JSON. String values that are themselves
// JSON documents (as in query parameters) are passed through as-is.
func rawParam(params map[string]interface{}, key string) []byte {
	value, ok := params[key]
	if !ok || value == nil {
		return nil
	}
	if str, ok := value.(string); ok {
		return []byte(str)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return raw
}
