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
	"crypto"
	"errors"
)

// ErrPrivateKeyNotFound is returned when the private key for a given kid doesn't exist.
var ErrPrivateKeyNotFound = errors.New("private key not found")

// JWTSigner signs JWTs with a key identified by a key ID.
type JWTSigner interface {
	// SignJWT creates a signed JWT with the given claims and optional headers,
	// using the private key identified by kid.
	SignJWT(ctx context.Context, claims map[string]interface{}, headers map[string]interface{}, kid string) (string, error)
}

// PublicKeyFunc resolves the public key for the given key ID.
// It is used during JWT verification to look up the signer's key, typically in a DID document.
type PublicKeyFunc func(kid string) (crypto.PublicKey, error)
