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
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/nuts-foundation/go-did/did"
	"github.com/nuts-foundation/go-did/vc"
	"github.com/stretchr/testify/require"

	"github.com/nuts-foundation/siop-op/crypto"
	"github.com/nuts-foundation/siop-op/oauth"
	"github.com/nuts-foundation/siop-op/vdr"
	"github.com/nuts-foundation/siop-op/wallet"
)

const testDefinitionJSON = `{
  "id": "driver_license_check",
  "input_descriptors": [{
    "id": "driver_license",
    "constraints": {
      "fields": [{
        "path": ["$.type"],
        "filter": {"type": "string", "const": "DriverLicenseCredential"}
      }]
    }
  }]
}`

// testIdentity generates a key, registers it with the key store under its did:jwk kid
// and returns the DID.
func testIdentity(t *testing.T, keyStore *crypto.MemoryKeyStore) did.DID {
	t.Helper()
	tempKID := "temp-" + t.Name()
	publicKey, err := keyStore.Generate(tempKID)
	require.NoError(t, err)
	identity, err := vdr.CreateJWKDID(publicKey)
	require.NoError(t, err)
	privateKey, err := keyStore.Private(tempKID)
	require.NoError(t, err)
	require.NoError(t, privateKey.Set(jwk.KeyIDKey, identity.String()+"#0"))
	require.NoError(t, keyStore.Add(privateKey))
	return *identity
}

func testCredential(t *testing.T, holderDID did.DID) vc.VerifiableCredential {
	return testCredentialOfType(t, holderDID, "DriverLicenseCredential")
}

func testCredentialOfType(t *testing.T, holderDID did.DID, credentialType string) vc.VerifiableCredential {
	t.Helper()
	credentialJSON := fmt.Sprintf(`{
	  "@context": ["https://www.w3.org/2018/credentials/v1"],
	  "id": "did:example:issuer#%s-1",
	  "type": ["VerifiableCredential", "%s"],
	  "issuer": "did:example:issuer",
	  "issuanceDate": "2023-04-01T00:00:00Z",
	  "credentialSubject": {"id": "%s"},
	  "proof": [{"type": "JsonWebSignature2020"}]
	}`, credentialType, credentialType, holderDID.String())
	credential := vc.VerifiableCredential{}
	require.NoError(t, json.Unmarshal([]byte(credentialJSON), &credential))
	return credential
}

// testEnv is everything a session test needs: a holder with a wallet and a relying party
// with a direct_post endpoint.
type testEnv struct {
	keyStore *crypto.MemoryKeyStore
	deps     Dependencies
	holder   did.DID
	rp       did.DID
	server   *httptest.Server
	// received holds the form values of every authorization response the RP received.
	received []url.Values
	// responseStatus and responseBody configure the RP's reply, default 200 {"redirect_uri": ...}.
	responseStatus int
	responseBody   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{keyStore: crypto.NewMemoryKeyStore(), responseStatus: http.StatusOK}
	env.holder = testIdentity(t, env.keyStore)
	env.rp = testIdentity(t, env.keyStore)
	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		env.received = append(env.received, r.PostForm)
		w.WriteHeader(env.responseStatus)
		if env.responseBody != "" {
			_, _ = w.Write([]byte(env.responseBody))
			return
		}
		_, _ = w.Write([]byte(`{"redirect_uri": "https://rp.example.com/done"}`))
	}))
	t.Cleanup(env.server.Close)
	memWallet := wallet.NewMemoryWallet()
	require.NoError(t, memWallet.Put(context.Background(), testCredential(t, env.holder)))
	env.deps = Dependencies{
		HTTPClient:  http.DefaultClient,
		KeyResolver: vdr.DIDResolver{},
		Signer:      env.keyStore,
		Wallet:      memWallet,
	}
	return env
}

// vpRequestURI builds an openid:// invocation asking for a vp_token.
func (env *testEnv) vpRequestURI() string {
	values := url.Values{}
	values.Set(oauth.ResponseTypeParam, oauth.VPTokenResponseType)
	values.Set(oauth.ClientIDParam, env.rp.String())
	values.Set(oauth.RedirectURIParam, env.server.URL)
	values.Set(oauth.NonceParam, "nonce123")
	values.Set(oauth.StateParam, "state123")
	values.Set(oauth.PresentationDefParam, testDefinitionJSON)
	return "openid://?" + values.Encode()
}

// siopRequestURI builds an openid:// invocation asking for an id_token only.
func (env *testEnv) siopRequestURI() string {
	values := url.Values{}
	values.Set(oauth.ResponseTypeParam, oauth.IDTokenResponseType)
	values.Set(oauth.ClientIDParam, env.rp.String())
	values.Set(oauth.RedirectURIParam, env.server.URL)
	values.Set(oauth.StateParam, "state123")
	return "openid://?" + values.Encode()
}

// verifiedSession creates a session for the given invocation and verifies its request.
func (env *testEnv) verifiedSession(t *testing.T, requestInput string) *OpSession {
	t.Helper()
	session := NewOpSession("test-session", requestInput, []string{"jwk"}, env.deps)
	_, err := session.GetAuthorizationRequest(context.Background())
	require.NoError(t, err)
	return session
}
