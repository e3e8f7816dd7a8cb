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
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/nuts-foundation/go-did/did"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuts-foundation/siop-op/oauth"
)

func TestOpSession_GetAuthorizationRequest(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	t.Run("fetches and verifies at most once", func(t *testing.T) {
		var fetches int
		requestObject, err := env.keyStore.SignJWT(ctx, map[string]interface{}{
			oauth.ResponseTypeParam: oauth.IDTokenResponseType,
			oauth.ClientIDParam:     env.rp.String(),
			oauth.RedirectURIParam:  env.server.URL,
		}, nil, env.rp.String()+"#0")
		require.NoError(t, err)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fetches++
			_, _ = w.Write([]byte(requestObject))
		}))
		defer server.Close()
		session := NewOpSession("s", "openid://?request_uri="+url.QueryEscape(server.URL), []string{"jwk"}, env.deps)

		first, err := session.GetAuthorizationRequest(ctx)
		require.NoError(t, err)
		second, err := session.GetAuthorizationRequest(ctx)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, fetches)

		t.Run("concurrent calls share one verification", func(t *testing.T) {
			session := NewOpSession("s2", "openid://?request_uri="+url.QueryEscape(server.URL), []string{"jwk"}, env.deps)
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = session.GetAuthorizationRequest(ctx)
				}()
			}
			wg.Wait()
			assert.Equal(t, 2, fetches)
		})
		t.Run("Clear resets the memoized request", func(t *testing.T) {
			session.Clear()
			_, err := session.GetAuthorizationRequest(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, fetches)
		})
	})
	t.Run("failure is memoized as well", func(t *testing.T) {
		var fetches int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fetches++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()
		session := NewOpSession("s", "openid://?request_uri="+url.QueryEscape(server.URL), []string{"jwk"}, env.deps)

		_, firstErr := session.GetAuthorizationRequest(ctx)
		_, secondErr := session.GetAuthorizationRequest(ctx)

		assert.Error(t, firstErr)
		assert.Equal(t, firstErr, secondErr)
		assert.Equal(t, 1, fetches)
	})
}

func TestOpSession_accessors(t *testing.T) {
	env := newTestEnv(t)

	t.Run("before verification", func(t *testing.T) {
		session := NewOpSession("s", env.vpRequestURI(), []string{"jwk"}, env.deps)

		_, err := session.Nonce()
		assert.ErrorIs(t, err, ErrRequestNotVerified)
		_, err = session.State()
		assert.ErrorIs(t, err, ErrRequestNotVerified)
		_, err = session.HasPresentationDefinitions()
		assert.ErrorIs(t, err, ErrRequestNotVerified)
		_, err = session.SupportedDIDMethods(false)
		assert.ErrorIs(t, err, ErrRequestNotVerified)
		_, err = session.OID4VP()
		assert.ErrorIs(t, err, ErrRequestNotVerified)
	})
	t.Run("after verification", func(t *testing.T) {
		session := env.verifiedSession(t, env.vpRequestURI())

		nonce, err := session.Nonce()
		require.NoError(t, err)
		assert.Equal(t, "nonce123", nonce)
		state, err := session.State()
		require.NoError(t, err)
		assert.Equal(t, "state123", state)
		hasDefinitions, err := session.HasPresentationDefinitions()
		require.NoError(t, err)
		assert.True(t, hasDefinitions)
	})
}

func TestOpSession_SupportedDIDMethods(t *testing.T) {
	env := newTestEnv(t)

	sessionWithMetadata := func(t *testing.T, metadata string) *OpSession {
		t.Helper()
		values := url.Values{}
		values.Set(oauth.ResponseTypeParam, oauth.IDTokenResponseType)
		values.Set(oauth.ClientIDParam, env.rp.String())
		values.Set(oauth.RedirectURIParam, env.server.URL)
		if metadata != "" {
			values.Set(oauth.ClientMetadataParam, metadata)
		}
		return env.verifiedSession(t, "openid://?"+values.Encode())
	}

	t.Run("no metadata leaves the agent's set", func(t *testing.T) {
		session := sessionWithMetadata(t, "")

		methods, err := session.SupportedDIDMethods(false)

		require.NoError(t, err)
		assert.Equal(t, []string{"jwk"}, methods)
	})
	t.Run("intersection", func(t *testing.T) {
		session := sessionWithMetadata(t, `{"subject_syntax_types_supported": ["did:jwk", "did:web"]}`)

		methods, err := session.SupportedDIDMethods(false)

		require.NoError(t, err)
		assert.Equal(t, []string{"jwk"}, methods)
	})
	t.Run("generic did entry means no restriction", func(t *testing.T) {
		session := sessionWithMetadata(t, `{"subject_syntax_types_supported": ["did"]}`)

		methods, err := session.SupportedDIDMethods(false)

		require.NoError(t, err)
		assert.Equal(t, []string{"jwk"}, methods)
	})
	t.Run("empty intersection", func(t *testing.T) {
		session := sessionWithMetadata(t, `{"subject_syntax_types_supported": ["did:web"]}`)

		_, err := session.SupportedDIDMethods(false)

		assert.ErrorIs(t, err, ErrNoDIDMethodIntersection)
	})
	t.Run("non-DID syntax types do not restrict", func(t *testing.T) {
		session := sessionWithMetadata(t, `{"subject_syntax_types_supported": ["urn:ietf:params:oauth:jwk-thumbprint"]}`)

		methods, err := session.SupportedDIDMethods(false)

		require.NoError(t, err)
		assert.Equal(t, []string{"jwk"}, methods)
	})
	t.Run("with prefix", func(t *testing.T) {
		session := sessionWithMetadata(t, "")

		methods, err := session.SupportedDIDMethods(true)

		require.NoError(t, err)
		assert.Equal(t, []string{"did:jwk"}, methods)
	})
}

func TestOpSession_SupportedDIDs(t *testing.T) {
	env := newTestEnv(t)
	session := env.verifiedSession(t, env.vpRequestURI())
	webDID := did.MustParseDID("did:web:example.com")

	supported, err := session.SupportedDIDs(env.holder, webDID)

	require.NoError(t, err)
	assert.Equal(t, []did.DID{env.holder}, supported)
}

func TestOpSession_SendAuthorizationResponse(t *testing.T) {
	ctx := context.Background()

	t.Run("SIOP-only response carries an id_token", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.verifiedSession(t, env.siopRequestURI())

		response, err := session.SendAuthorizationResponse(ctx, env.holder, nil)

		require.NoError(t, err)
		assert.Equal(t, "https://rp.example.com/done", response.RedirectURI)
		assert.Empty(t, response.QueryParams)
		require.Len(t, env.received, 1)
		received := env.received[0]
		assert.Equal(t, "state123", received.Get(oauth.StateParam))
		assert.Empty(t, received.Get(oauth.VpTokenParam))

		idToken, err := jwt.ParseString(received.Get(oauth.IDTokenParam), jwt.WithVerify(false))
		require.NoError(t, err)
		assert.Equal(t, env.holder.String(), idToken.Issuer())
		assert.Equal(t, env.holder.String(), idToken.Subject())
		assert.Equal(t, []string{env.rp.String()}, idToken.Audience())
	})
	t.Run("query parameters of the returned redirect URI are decoded", func(t *testing.T) {
		env := newTestEnv(t)
		env.responseBody = `{"redirect_uri": "https://rp.example.com/done?code=42"}`
		session := env.verifiedSession(t, env.siopRequestURI())

		response, err := session.SendAuthorizationResponse(ctx, env.holder, nil)

		require.NoError(t, err)
		assert.Equal(t, "42", response.QueryParams.Get("code"))
	})
	t.Run("presentation count must match definitions", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.verifiedSession(t, env.vpRequestURI())

		_, err := session.SendAuthorizationResponse(ctx, env.holder, nil)

		assert.ErrorIs(t, err, ErrPresentationCountMismatch)
	})
	t.Run("SIOP-only takes no presentations", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.verifiedSession(t, env.siopRequestURI())

		_, err := session.SendAuthorizationResponse(ctx, env.holder, make([]PresentationWithSubmission, 1))

		assert.ErrorIs(t, err, ErrPresentationCountMismatch)
	})
	t.Run("vp_token response", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.verifiedSession(t, env.vpRequestURI())
		oid4vp, err := session.OID4VP()
		require.NoError(t, err)
		selections, err := oid4vp.FilterCredentialsAgainstAllDefinitions(ctx, env.holder)
		require.NoError(t, err)
		presentations, err := oid4vp.CreateVerifiablePresentations(ctx, selections, PresentationOptions{Holder: &env.holder})
		require.NoError(t, err)

		_, err = session.SendAuthorizationResponse(ctx, env.holder, presentations)

		require.NoError(t, err)
		require.Len(t, env.received, 1)
		received := env.received[0]
		// jwt_vp in its compact form
		assert.True(t, strings.HasPrefix(received.Get(oauth.VpTokenParam), "ey"))
		assert.Contains(t, received.Get(oauth.PresentationSubmissionParam), "driver_license")
		// response_type=vp_token, so no id_token
		assert.Empty(t, received.Get(oauth.IDTokenParam))
	})
	t.Run("non-200 success replies are accepted", func(t *testing.T) {
		env := newTestEnv(t)
		env.responseStatus = http.StatusCreated
		env.responseBody = `{"redirect_uri": "https://rp.example.com/done"}`
		session := env.verifiedSession(t, env.siopRequestURI())

		response, err := session.SendAuthorizationResponse(ctx, env.holder, nil)

		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, response.StatusCode)
		assert.Equal(t, "https://rp.example.com/done", response.RedirectURI)
	})
	t.Run("relying party rejects the response", func(t *testing.T) {
		env := newTestEnv(t)
		env.responseStatus = http.StatusBadRequest
		env.responseBody = `{"error": "invalid_request"}`
		session := env.verifiedSession(t, env.siopRequestURI())

		_, err := session.SendAuthorizationResponse(ctx, env.holder, nil)

		assert.ErrorContains(t, err, "authorization response rejected by relying party")
	})
	t.Run("requires a verified request", func(t *testing.T) {
		env := newTestEnv(t)
		session := NewOpSession("s", env.siopRequestURI(), []string{"jwk"}, env.deps)

		_, err := session.SendAuthorizationResponse(ctx, env.holder, nil)

		assert.ErrorIs(t, err, ErrRequestNotVerified)
	})
}
