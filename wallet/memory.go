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
	"sync"

	ssi "github.com/nuts-foundation/go-did"
	"github.com/nuts-foundation/go-did/did"
	"github.com/nuts-foundation/go-did/vc"
)

var _ Wallet = (*memoryWallet)(nil)

// NewMemoryWallet creates a Wallet that keeps credentials in memory.
func NewMemoryWallet() Wallet {
	return &memoryWallet{credentials: map[string]map[string]vc.VerifiableCredential{}}
}

type memoryWallet struct {
	mux sync.RWMutex
	// credentials maps holder DID to credential id to credential
	credentials map[string]map[string]vc.VerifiableCredential
}

func (m *memoryWallet) Put(_ context.Context, credentials ...vc.VerifiableCredential) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	for _, credential := range credentials {
		subjectDID, err := ResolveSubjectDID(credential)
		if err != nil {
			return err
		}
		holder := subjectDID.String()
		if m.credentials[holder] == nil {
			m.credentials[holder] = map[string]vc.VerifiableCredential{}
		}
		m.credentials[holder][credentialKey(credential)] = credential
	}
	return nil
}

func (m *memoryWallet) List(_ context.Context, holderDID did.DID) ([]vc.VerifiableCredential, error) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	result := make([]vc.VerifiableCredential, 0)
	for _, credential := range m.credentials[holderDID.String()] {
		result = append(result, credential)
	}
	return result, nil
}

func (m *memoryWallet) Remove(_ context.Context, holderDID did.DID, credentialID ssi.URI) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	holder, ok := m.credentials[holderDID.String()]
	if !ok {
		return ErrNotFound
	}
	if _, ok := holder[credentialID.String()]; !ok {
		return ErrNotFound
	}
	delete(holder, credentialID.String())
	return nil
}

func (m *memoryWallet) IsEmpty() (bool, error) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	for _, holder := range m.credentials {
		if len(holder) > 0 {
			return false, nil
		}
	}
	return true, nil
}

func credentialKey(credential vc.VerifiableCredential) string {
	if credential.ID != nil {
		return credential.ID.String()
	}
	// credentials without an id are keyed by their raw form
	return credential.Raw()
}
