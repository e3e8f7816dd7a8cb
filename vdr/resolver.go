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

// Package vdr resolves keys for the DID methods the agent can hold and verify.
package vdr

import (
	"crypto"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/nuts-foundation/go-did/did"

	cryptoutil "github.com/nuts-foundation/siop-op/crypto"
)

// KeyResolver resolves the signing key for a DID.
type KeyResolver interface {
	// ResolveKey resolves the assertion key for the given DID.
	// It returns the key id in kid form (a DID URL) and the public key.
	ResolveKey(id did.DID) (string, crypto.PublicKey, error)
	// Methods returns the DID methods this resolver supports, without the did: prefix.
	Methods() []string
}

var _ KeyResolver = DIDResolver{}

// DIDResolver is a KeyResolver for self-resolving DID methods: the verification key
// is encoded in the DID itself. It supports did:jwk.
type DIDResolver struct{}

func (DIDResolver) Methods() []string {
	return []string{"jwk"}
}

func (DIDResolver) ResolveKey(id did.DID) (string, crypto.PublicKey, error) {
	if id.Method != "jwk" {
		return "", nil, fmt.Errorf("unsupported DID method: %s", id.Method)
	}
	data, err := base64.RawURLEncoding.DecodeString(id.ID)
	if err != nil {
		return "", nil, fmt.Errorf("invalid did:jwk: %w", err)
	}
	key, err := jwk.ParseKey(data)
	if err != nil {
		return "", nil, fmt.Errorf("invalid did:jwk: %w", err)
	}
	publicJWK, err := key.PublicKey()
	if err != nil {
		return "", nil, err
	}
	var publicKey crypto.PublicKey
	if err := publicJWK.Raw(&publicKey); err != nil {
		return "", nil, err
	}
	// did:jwk documents contain a single verification method with fragment 0
	keyID := did.DIDURL{DID: id, Fragment: "0"}
	return keyID.String(), publicKey, nil
}

// KeyFunc adapts a KeyResolver to a crypto.PublicKeyFunc for JWT parsing.
// The kid must be a DID URL; the key is resolved through the DID part.
func KeyFunc(keyResolver KeyResolver) cryptoutil.PublicKeyFunc {
	return func(kid string) (crypto.PublicKey, error) {
		keyID, err := did.ParseDIDURL(kid)
		if err != nil {
			return nil, fmt.Errorf("invalid key id %s: %w", kid, err)
		}
		_, publicKey, err := keyResolver.ResolveKey(keyID.DID)
		if err != nil {
			return nil, err
		}
		return publicKey, nil
	}
}

// CreateJWKDID creates a did:jwk DID from the given key. Private keys are reduced
// to their public part first.
func CreateJWKDID(key jwk.Key) (*did.DID, error) {
	publicJWK, err := key.PublicKey()
	if err != nil {
		return nil, err
	}
	asJSON, err := json.Marshal(publicJWK)
	if err != nil {
		return nil, err
	}
	return did.ParseDID("did:jwk:" + base64.RawURLEncoding.EncodeToString(asJSON))
}
