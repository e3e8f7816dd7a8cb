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
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// SignJWT creates a signed JWT with the given claims and optional headers, using the given JWK.
// The JWK must carry an "alg" field.
func SignJWT(key jwk.Key, claims map[string]interface{}, headers map[string]interface{}) (string, error) {
	token := jwt.New()
	for name, value := range claims {
		if err := token.Set(name, value); err != nil {
			return "", fmt.Errorf("unable to set claim %s: %w", name, err)
		}
	}
	alg, ok := key.Algorithm().(jwa.SignatureAlgorithm)
	if !ok || alg == "" {
		return "", errors.New("JWK has no signature algorithm")
	}
	hdr := jws.NewHeaders()
	for name, value := range headers {
		if err := hdr.Set(name, value); err != nil {
			return "", fmt.Errorf("unable to set header %s: %w", name, err)
		}
	}
	signed, err := jwt.Sign(token, jwt.WithKey(alg, key, jws.WithProtectedHeaders(hdr)))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// JWTKidAlg parses a JWT without validating it and returns the 'kid' and 'alg' headers.
func JWTKidAlg(tokenString string) (string, jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(tokenString)
	if err != nil {
		return "", "", err
	}
	if len(message.Signatures()) != 1 {
		return "", "", errors.New("incorrect number of signatures in JWT")
	}
	headers := message.Signatures()[0].ProtectedHeaders()
	return headers.KeyID(), headers.Algorithm(), nil
}

// ParseJWT parses and validates a signed JWT. The signer's public key is resolved
// through the given PublicKeyFunc using the token's kid header.
func ParseJWT(tokenString string, keyFn PublicKeyFunc, options ...jwt.ParseOption) (jwt.Token, error) {
	kid, alg, err := JWTKidAlg(tokenString)
	if err != nil {
		return nil, err
	}
	key, err := keyFn(kid)
	if err != nil {
		return nil, err
	}
	options = append(options, jwt.WithKey(alg, key), jwt.WithValidate(true))
	return jwt.ParseString(tokenString, options...)
}
