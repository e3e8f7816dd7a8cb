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
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/nuts-foundation/go-did/did"
	"github.com/nuts-foundation/go-did/vc"
	"github.com/nuts-foundation/siop-op/core"
	cryptoutil "github.com/nuts-foundation/siop-op/crypto"
	"github.com/nuts-foundation/siop-op/oauth"
	"github.com/nuts-foundation/siop-op/pe"
	"github.com/nuts-foundation/siop-op/siop/logging"
	"github.com/nuts-foundation/siop-op/vdr"
	"github.com/nuts-foundation/siop-op/wallet"
)

// idTokenValidity is how long a self-issued id_token is valid.
const idTokenValidity = 5 * time.Minute

// Dependencies are the collaborators an OpSession needs. All fields are required.
type Dependencies struct {
	HTTPClient  HTTPRequestDoer
	KeyResolver vdr.KeyResolver
	Signer      cryptoutil.JWTSigner
	Wallet      wallet.Wallet
}

// OpSession is a single SIOPv2/OpenID4VP flow between this agent (acting as OpenID Provider)
// and a relying party. A session is created from a wallet invocation (URI or request object)
// and lives until the authorization response has been delivered or the flow is abandoned.
//
// Methods are safe for concurrent use.
type OpSession struct {
	id           string
	requestInput string
	didMethods   []string
	deps         Dependencies

	mux sync.Mutex
	// request and requestErr memoize the outcome of GetAuthorizationRequest,
	// so fetching and signature verification happen at most once per session.
	request    *AuthorizationRequestData
	requestErr error
	oid4vp     *OID4VP
}

// NewOpSession creates a session for the given wallet invocation.
// didMethods is the set of DID methods this agent can use as holder identity.
func NewOpSession(id string, requestInput string, didMethods []string, deps Dependencies) *OpSession {
	return &OpSession{
		id:           id,
		requestInput: requestInput,
		didMethods:   didMethods,
		deps:         deps,
	}
}

// ID returns the session identifier.
func (s *OpSession) ID() string {
	return s.id
}

// GetAuthorizationRequest fetches and verifies the authorization request.
// The result, success or failure, is memoized: repeated calls return the first outcome
// without fetching or verifying again. Clear resets the memoized state.
func (s *OpSession) GetAuthorizationRequest(ctx context.Context) (*AuthorizationRequestData, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.request == nil && s.requestErr == nil {
		parser := RequestParser{HTTPClient: s.deps.HTTPClient, KeyResolver: s.deps.KeyResolver}
		s.request, s.requestErr = parser.Parse(ctx, s.requestInput)
		if s.requestErr != nil {
			logging.Log().WithError(s.requestErr).Info("Authorization request verification failed")
		}
	}
	return s.request, s.requestErr
}

// verifiedRequest returns the memoized request, or ErrRequestNotVerified when
// GetAuthorizationRequest has not (successfully) run yet.
func (s *OpSession) verifiedRequest() (*AuthorizationRequestData, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.request == nil {
		return nil, ErrRequestNotVerified
	}
	return s.request, nil
}

// Nonce returns the nonce of the verified authorization request.
func (s *OpSession) Nonce() (string, error) {
	request, err := s.verifiedRequest()
	if err != nil {
		return "", err
	}
	return request.Nonce, nil
}

// State returns the state of the verified authorization request.
func (s *OpSession) State() (string, error) {
	request, err := s.verifiedRequest()
	if err != nil {
		return "", err
	}
	return request.State, nil
}

// HasPresentationDefinitions returns whether the relying party asks for Verifiable Presentations.
func (s *OpSession) HasPresentationDefinitions() (bool, error) {
	request, err := s.verifiedRequest()
	if err != nil {
		return false, err
	}
	return request.RequestsPresentation(), nil
}

// SupportedDIDMethods returns the DID methods usable in this session: the intersection of
// the agent's methods and the methods the relying party declares in
// subject_syntax_types_supported. The generic "did" entry, or the absence of any DID entry,
// does not constrain the agent's set. An empty intersection is an error.
// With withPrefix the methods are returned as "did:<method>".
func (s *OpSession) SupportedDIDMethods(withPrefix bool) ([]string, error) {
	request, err := s.verifiedRequest()
	if err != nil {
		return nil, err
	}
	restriction := relyingPartyDIDMethods(request.ClientMetadata)
	result := s.didMethods
	if restriction != nil {
		result = nil
		for _, method := range s.didMethods {
			if _, ok := restriction[method]; ok {
				result = append(result, method)
			}
		}
		if len(result) == 0 {
			return nil, ErrNoDIDMethodIntersection
		}
	}
	if withPrefix {
		prefixed := make([]string, len(result))
		for i, method := range result {
			prefixed[i] = oauth.SubjectSyntaxDIDPrefix + method
		}
		return prefixed, nil
	}
	return result, nil
}

// SupportedDIDs filters the given managed identities down to those whose DID method is
// usable in this session.
func (s *OpSession) SupportedDIDs(identities ...did.DID) ([]did.DID, error) {
	methods, err := s.SupportedDIDMethods(false)
	if err != nil {
		return nil, err
	}
	var result []did.DID
	for _, identity := range identities {
		for _, method := range methods {
			if identity.Method == method {
				result = append(result, identity)
				break
			}
		}
	}
	return result, nil
}

// relyingPartyDIDMethods returns the DID methods the relying party accepts, or nil when
// it does not constrain them.
func relyingPartyDIDMethods(metadata *oauth.RelyingPartyMetadata) map[string]struct{} {
	if metadata == nil || len(metadata.SubjectSyntaxTypesSupported) == 0 {
		return nil
	}
	methods := make(map[string]struct{})
	for _, syntaxType := range metadata.SubjectSyntaxTypesSupported {
		if syntaxType == oauth.SubjectSyntaxDID {
			// generic DID support, no method restriction
			return nil
		}
		if strings.HasPrefix(syntaxType, oauth.SubjectSyntaxDIDPrefix) {
			methods[strings.TrimPrefix(syntaxType, oauth.SubjectSyntaxDIDPrefix)] = struct{}{}
		}
	}
	if len(methods) == 0 {
		// no DID entries at all, e.g. only jwk_thumbprint
		return nil
	}
	return methods
}

// OID4VP returns the OpenID4VP operations for this session.
// It fails when the relying party does not request Verifiable Presentations.
func (s *OpSession) OID4VP() (*OID4VP, error) {
	request, err := s.verifiedRequest()
	if err != nil {
		return nil, err
	}
	if !request.RequestsPresentation() {
		return nil, errors.New("authorization request does not request presentations")
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.oid4vp == nil {
		s.oid4vp = &OID4VP{session: s}
	}
	return s.oid4vp, nil
}

// SendAuthorizationResponse builds the authorization response and delivers it to the
// relying party. The holder DID identifies this agent in the self-issued id_token.
// When the request contains presentation definitions, exactly one presentation (with
// submission) per definition must be given; a SIOP-only request takes none.
func (s *OpSession) SendAuthorizationResponse(ctx context.Context, holder did.DID, presentations []PresentationWithSubmission) (*Response, error) {
	request, err := s.verifiedRequest()
	if err != nil {
		return nil, err
	}
	if len(presentations) != len(request.PresentationDefinitions) {
		return nil, ErrPresentationCountMismatch
	}
	for _, presentation := range presentations {
		if len(presentation.Submission.DescriptorMap) == 0 && presentation.Submission.Id == "" {
			return nil, ErrMissingPresentationSubmission
		}
	}

	values := url.Values{}
	if request.State != "" {
		values.Set(oauth.StateParam, request.State)
	}
	if containsResponseType(request.ResponseType, oauth.IDTokenResponseType) {
		idToken, err := s.buildIDToken(ctx, holder, *request)
		if err != nil {
			return nil, fmt.Errorf("unable to create id_token: %w", err)
		}
		values.Set(oauth.IDTokenParam, idToken)
	}
	if len(presentations) > 0 {
		vpToken, err := encodeVPToken(presentations)
		if err != nil {
			return nil, err
		}
		values.Set(oauth.VpTokenParam, vpToken)
		submission, err := json.Marshal(mergeSubmissions(presentations))
		if err != nil {
			return nil, err
		}
		values.Set(oauth.PresentationSubmissionParam, string(submission))
	}
	return s.postResponse(ctx, request.RedirectURI, values)
}

// buildIDToken creates the self-issued OpenID Provider id_token, signed with the holder's key.
func (s *OpSession) buildIDToken(ctx context.Context, holder did.DID, request AuthorizationRequestData) (string, error) {
	kid, _, err := s.deps.KeyResolver.ResolveKey(holder)
	if err != nil {
		return "", fmt.Errorf("unable to resolve signing key (did=%s): %w", holder, err)
	}
	now := time.Now()
	claims := map[string]interface{}{
		jwt.IssuerKey:     holder.String(),
		jwt.SubjectKey:    holder.String(),
		jwt.AudienceKey:   request.ClientID,
		jwt.IssuedAtKey:   now.Unix(),
		jwt.ExpirationKey: now.Add(idTokenValidity).Unix(),
	}
	if request.Nonce != "" {
		claims[oauth.NonceParam] = request.Nonce
	}
	return s.deps.Signer.SignJWT(ctx, claims, nil, kid)
}

// postResponse delivers the authorization response with response_mode=direct_post.
func (s *OpSession) postResponse(ctx context.Context, responseURI string, values url.Values) (*Response, error) {
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, responseURI, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	httpRequest.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpResponse, err := s.deps.HTTPClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("unable to deliver authorization response: %w", err)
	}
	defer httpResponse.Body.Close()
	if err := core.TestResponseOK(httpResponse); err != nil {
		return nil, fmt.Errorf("authorization response rejected by relying party: %w", err)
	}
	result := Response{StatusCode: httpResponse.StatusCode}
	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, err
	}
	var redirect oauth.Redirect
	if json.Unmarshal(body, &redirect) == nil && redirect.RedirectURI != "" {
		result.RedirectURI = redirect.RedirectURI
		if redirectURL, err := url.Parse(redirect.RedirectURI); err == nil {
			result.QueryParams = redirectURL.Query()
		}
	}
	var jsonBody interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &jsonBody); err != nil {
			jsonBody = string(body)
		}
		result.Body = jsonBody
	}
	return &result, nil
}

// Clear drops the memoized authorization request and derived state, so the next
// GetAuthorizationRequest verifies again. The session keeps its id.
func (s *OpSession) Clear() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.request = nil
	s.requestErr = nil
	s.oid4vp = nil
}

func containsResponseType(responseType string, wanted string) bool {
	for _, part := range strings.Fields(responseType) {
		if part == wanted {
			return true
		}
	}
	return false
}

// encodeVPToken renders the vp_token parameter: the single presentation in its wire format,
// or a JSON array when there are multiple.
func encodeVPToken(presentations []PresentationWithSubmission) (string, error) {
	if len(presentations) == 1 {
		return rawPresentation(presentations[0].Presentation)
	}
	tokens := make([]vc.VerifiablePresentation, len(presentations))
	for i, presentation := range presentations {
		tokens[i] = presentation.Presentation
	}
	vpToken, err := json.Marshal(tokens)
	if err != nil {
		return "", err
	}
	return string(vpToken), nil
}

// rawPresentation returns the presentation in its original wire format:
// the compact JWT for jwt_vp, the JSON document otherwise.
func rawPresentation(presentation vc.VerifiablePresentation) (string, error) {
	if presentation.Format() == vc.JWTPresentationProofFormat {
		return presentation.Raw(), nil
	}
	raw, err := json.Marshal(presentation)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// mergeSubmissions combines the per-definition submissions into the single
// presentation_submission of the response. With multiple presentations the vp_token is an
// array, so each descriptor mapping is nested under its presentation's index.
func mergeSubmissions(presentations []PresentationWithSubmission) pe.PresentationSubmission {
	if len(presentations) == 1 {
		return presentations[0].Submission
	}
	merged := pe.PresentationSubmission{
		Id:           presentations[0].Submission.Id,
		DefinitionId: presentations[0].Submission.DefinitionId,
	}
	for i, presentation := range presentations {
		format := vc.JSONLDPresentationProofFormat
		if presentation.Presentation.Format() == vc.JWTPresentationProofFormat {
			format = vc.JWTPresentationProofFormat
		}
		for _, mapping := range presentation.Submission.DescriptorMap {
			nested := mapping
			merged.DescriptorMap = append(merged.DescriptorMap, pe.InputDescriptorMappingObject{
				Id:         mapping.Id,
				Format:     format,
				Path:       fmt.Sprintf("$[%d]", i),
				PathNested: &nested,
			})
		}
	}
	return merged
}
