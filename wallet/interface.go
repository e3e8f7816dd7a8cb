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

// Package wallet holds the credentials of the agent and creates presentations with them.
package wallet

import (
	"context"
	"errors"

	ssi "github.com/nuts-foundation/go-did"
	"github.com/nuts-foundation/go-did/did"
	"github.com/nuts-foundation/go-did/vc"
)

// ErrNoCredentials is returned when no matching credentials are found in the wallet based on a PresentationDefinition
var ErrNoCredentials = errors.New("no matching credentials")

// ErrNotFound is returned when a credential is not present in the wallet.
var ErrNotFound = errors.New("credential not found")

// Wallet holds the credentials of the agent.
// Credentials keep their original wire format: a credential received as JWT stays a JWT,
// a JSON-LD credential stays JSON-LD.
type Wallet interface {
	// Put adds the given credentials to the wallet. It is idempotent per credential id.
	Put(ctx context.Context, credentials ...vc.VerifiableCredential) error
	// List returns all credentials in the wallet held by the given DID.
	List(ctx context.Context, holderDID did.DID) ([]vc.VerifiableCredential, error)
	// Remove removes the credential with the given id from the wallet.
	// Returns ErrNotFound if the wallet does not hold the credential.
	Remove(ctx context.Context, holderDID did.DID, credentialID ssi.URI) error
	// IsEmpty returns true if the wallet holds no credentials at all.
	IsEmpty() (bool, error)
}

// ResolveSubjectDID returns the subject DID shared by the given credentials.
// It returns an error when the credentials have no subject DID or don't share the same one.
func ResolveSubjectDID(credentials ...vc.VerifiableCredential) (*did.DID, error) {
	var result *did.DID
	for _, credential := range credentials {
		subjectDID, err := credential.SubjectDID()
		if err != nil {
			return nil, err
		}
		if result != nil && !result.Equals(*subjectDID) {
			return nil, errors.New("not all VCs have the same credentialSubject.id")
		}
		result = subjectDID
	}
	if result == nil {
		return nil, errors.New("no VCs to resolve subject DID from")
	}
	return result, nil
}
