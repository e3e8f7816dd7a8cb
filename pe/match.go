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

package pe

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/dlclark/regexp2"
	"github.com/nuts-foundation/go-did/vc"
)

// ErrUnsupportedFilter is returned when a filter uses unsupported features.
var ErrUnsupportedFilter = errors.New("unsupported filter")

// matchCredential returns true if the credential satisfies all constraints of the descriptor.
// A descriptor without constraints matches any credential.
func matchCredential(descriptor InputDescriptor, credential vc.VerifiableCredential) (bool, error) {
	if descriptor.Constraints == nil {
		return true, nil
	}
	for _, field := range descriptor.Constraints.Fields {
		match, err := matchField(field, credential)
		if err != nil {
			return false, err
		}
		if !match {
			return false, nil
		}
	}
	return true, nil
}

// matchField matches the field against the credential.
// A field matches when one of its paths yields a value passing the filter.
// An optional field also matches when none of its paths yield a value at all,
// but not when a value was found and the filter rejected it.
func matchField(field Field, credential vc.VerifiableCredential) (bool, error) {
	// jsonpath operates on interfaces, so convert the credential through JSON
	asJSON, _ := json.Marshal(credential)
	var asInterface interface{}
	_ = json.Unmarshal(asJSON, &asInterface)

	var filterRejections int
	for _, path := range field.Path {
		value, err := valueAtPath(path, asInterface)
		if err != nil {
			return false, err
		}
		if value == nil {
			continue
		}
		if field.Filter == nil {
			return true, nil
		}
		match, err := matchFilter(*field.Filter, value)
		if err != nil {
			return false, err
		}
		if match {
			return true, nil
		}
		filterRejections++
	}
	if field.Optional != nil && *field.Optional && filterRejections == 0 {
		return true, nil
	}
	return false, nil
}

// valueAtPath evaluates the JSON path expression against the credential.
// A path that doesn't resolve is not an error, it yields nil.
func valueAtPath(path string, document interface{}) (interface{}, error) {
	value, err := jsonpath.Get(path, document)
	if err != nil && (strings.HasPrefix(err.Error(), "unknown key") || strings.HasPrefix(err.Error(), "unsupported value type")) {
		return nil, nil
	}
	return value, err
}

// matchFilter matches the value against the filter.
// Supported schema types: string, number, boolean and array; supported properties:
// const, enum and pattern (strings only). Patterns are ECMAScript regular expressions.
// It returns ErrUnsupportedFilter for object values.
func matchFilter(filter Filter, value interface{}) (bool, error) {
	if filter.Enum != nil {
		// an enum is equivalent to a disjunction of const filters
		for _, enum := range filter.Enum {
			match, _ := matchFilter(Filter{Type: "string", Const: &enum}, value)
			if match {
				return true, nil
			}
		}
		return false, nil
	}

	switch typedValue := value.(type) {
	case string:
		if filter.Type != "string" {
			return false, nil
		}
	case float64, int:
		if filter.Type != "number" {
			return false, nil
		}
	case bool:
		if filter.Type != "boolean" {
			return false, nil
		}
	case []interface{}:
		// an array matches if any of its members matches
		for _, member := range typedValue {
			match, err := matchFilter(filter, member)
			if err != nil {
				return false, err
			}
			if match {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, ErrUnsupportedFilter
	}

	if filter.Const != nil && value != *filter.Const {
		return false, nil
	}
	if filter.Pattern != nil && filter.Type == "string" {
		pattern, err := regexp2.Compile(*filter.Pattern, regexp2.ECMAScript)
		if err != nil {
			return false, err
		}
		return pattern.MatchString(value.(string))
	}
	// only the type was requested
	return true, nil
}

// matchFormat checks whether the credential's format (and its proof/algorithm) is
// accepted by the definition's claim format designations. A definition without
// credential format restrictions accepts any credential; vp formats are ignored here.
func matchFormat(format *ClaimFormatDesignations, credential vc.VerifiableCredential) bool {
	if format == nil {
		return true
	}
	asMap := map[string]map[string][]string(*format)
	if asMap[vc.JSONLDCredentialProofFormat] == nil && asMap[vc.JWTCredentialProofFormat] == nil {
		return true
	}

	switch credential.Format() {
	case vc.JSONLDCredentialProofFormat:
		entry := asMap[vc.JSONLDCredentialProofFormat]
		if entry == nil {
			return false
		}
		proofTypes := entry["proof_type"]
		if len(proofTypes) == 0 {
			return true
		}
		proofs, _ := credential.Proofs()
		for _, proofType := range proofTypes {
			for _, credentialProof := range proofs {
				if string(credentialProof.Type) == proofType {
					return true
				}
			}
		}
		return false
	case vc.JWTCredentialProofFormat:
		// alg restrictions would require parsing the JWT header, accept on format match
		return asMap[vc.JWTCredentialProofFormat] != nil
	default:
		return false
	}
}
