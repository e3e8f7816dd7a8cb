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

package crypto

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

var _ JWTSigner = (*MemoryKeyStore)(nil)

// MemoryKeyStore is a JWTSigner that holds private JWKs in memory, keyed by key ID.
// This should only be used for low-assurance use cases and tests; production deployments
// plug in a KMS-backed signer.
type MemoryKeyStore struct {
	mux  sync.RWMutex
	keys map[string]jwk.Key
}

// NewMemoryKeyStore creates an empty MemoryKeyStore.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: map[string]jwk.Key{}}
}

// Generate creates a new P-256 key under the given key ID and returns the public key as JWK.
func (m *MemoryKeyStore) Generate(kid string) (jwk.Key, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	key, err := jwk.FromRaw(privateKey)
	if err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.ES256); err != nil {
		return nil, err
	}
	m.mux.Lock()
	m.keys[kid] = key
	m.mux.Unlock()
	return key.PublicKey()
}

// Add stores the given private JWK under its key ID.
func (m *MemoryKeyStore) Add(key jwk.Key) error {
	if key.KeyID() == "" {
		return fmt.Errorf("JWK has no kid")
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	m.keys[key.KeyID()] = key
	return nil
}

// Private returns the private key for the given key ID.
func (m *MemoryKeyStore) Private(kid string) (jwk.Key, error) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	key, ok := m.keys[kid]
	if !ok {
		return nil, ErrPrivateKeyNotFound
	}
	return key, nil
}

// Resolve returns the public key for the given key ID.
func (m *MemoryKeyStore) Resolve(kid string) (jwk.Key, error) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	key, ok := m.keys[kid]
	if !ok {
		return nil, ErrPrivateKeyNotFound
	}
	return key.PublicKey()
}

func (m *MemoryKeyStore) SignJWT(_ context.Context, claims map[string]interface{}, headers map[string]interface{}, kid string) (string, error) {
	m.mux.RLock()
	key, ok := m.keys[kid]
	m.mux.RUnlock()
	if !ok {
		return "", ErrPrivateKeyNotFound
	}
	return SignJWT(key, claims, headers)
}
