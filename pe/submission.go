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
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/google/uuid"
	"github.com/nuts-foundation/go-did/did"
	"github.com/nuts-foundation/go-did/vc"
	"github.com/nuts-foundation/siop-op/pe/schema"
)

// ParsePresentationSubmission validates the given JSON against the presentation submission
// JSON schema and parses it into a PresentationSubmission.
func ParsePresentationSubmission(raw []byte) (*PresentationSubmission, error) {
	enveloped := `{"presentation_submission":` + string(raw) + `}`
	if err := schema.Validate([]byte(enveloped), schema.PresentationSubmission); err != nil {
		return nil, fmt.Errorf("invalid presentation submission: %w", err)
	}
	var result PresentationSubmission
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PresentationSubmissionBuilder is a builder for PresentationSubmissions.
type PresentationSubmissionBuilder struct {
	holders                []did.DID
	presentationDefinition PresentationDefinition
	wallets                [][]vc.VerifiableCredential
}

// PresentationSubmissionBuilder returns a new PresentationSubmissionBuilder.
// A PresentationSubmissionBuilder can be used to create a PresentationSubmission with multiple wallets as input.
func (presentationDefinition PresentationDefinition) PresentationSubmissionBuilder() PresentationSubmissionBuilder {
	return PresentationSubmissionBuilder{
		presentationDefinition: presentationDefinition,
	}
}

// AddWallet adds credentials from a wallet that may be used to create the PresentationSubmission.
func (b *PresentationSubmissionBuilder) AddWallet(holder did.DID, vcs []vc.VerifiableCredential) *PresentationSubmissionBuilder {
	b.holders = append(b.holders, holder)
	b.wallets = append(b.wallets, vcs)
	return b
}

// SignInstruction describes a VerifiablePresentation to be created: the holder that signs it
// and the credentials it contains. When credentials come from multiple wallets the outcome
// of a PresentationSubmission might require multiple VPs.
type SignInstruction struct {
	// Holder contains the DID of the holder that should sign the VP.
	Holder did.DID
	// VerifiableCredentials contains the VCs that should be included in the VP.
	VerifiableCredentials []vc.VerifiableCredential
	// Mappings contains the input descriptor mappings covered by this VP,
	// with paths relative to the VP.
	Mappings []InputDescriptorMappingObject
}

// Empty returns true if there are no VCs in the SignInstruction.
func (signInstruction SignInstruction) Empty() bool {
	return len(signInstruction.VerifiableCredentials) == 0
}

// SignInstructions is a list of SignInstruction.
type SignInstructions []SignInstruction

// Empty returns true if all SignInstructions are empty.
func (signInstructions SignInstructions) Empty() bool {
	for _, signInstruction := range signInstructions {
		if !signInstruction.Empty() {
			return false
		}
	}
	return true
}

// Build matches the wallets against the presentation definition and creates a
// PresentationSubmission with one SignInstruction per wallet that contributes credentials.
// The given format is used as the VP format in the descriptor map.
// If the definition cannot be fulfilled, the SignInstructions are empty.
func (b *PresentationSubmissionBuilder) Build(format string) (PresentationSubmission, SignInstructions, error) {
	var allVCs []vc.VerifiableCredential
	for _, walletVCs := range b.wallets {
		allVCs = append(allVCs, walletVCs...)
	}

	innerSubmission, selectedVCs, err := b.presentationDefinition.Match(allVCs)
	if err != nil {
		return PresentationSubmission{}, nil, err
	}

	presentationSubmission := PresentationSubmission{
		Id:           uuid.New().String(),
		DefinitionId: b.presentationDefinition.Id,
	}

	// distribute the selected credentials over the wallets that hold them and
	// remap each descriptor mapping to the index of the credential within its own VP
	signInstructions := make([]SignInstruction, len(b.wallets))
	for _, mapping := range innerSubmission.DescriptorMap {
		var selectedIndex int
		if _, err := fmt.Sscanf(mapping.Path, "$.verifiableCredential[%d]", &selectedIndex); err != nil {
			return PresentationSubmission{}, nil, fmt.Errorf("unable to parse credential path: %w", err)
		}
		credential := selectedVCs[selectedIndex]
		walletIndex := b.walletOf(credential)
		if walletIndex == -1 {
			return PresentationSubmission{}, nil, fmt.Errorf("credential for input descriptor '%s' is not present in any wallet", mapping.Id)
		}
		instruction := &signInstructions[walletIndex]
		instruction.Holder = b.holders[walletIndex]
		credentialIndex := indexOf(instruction.VerifiableCredentials, credential)
		if credentialIndex == -1 {
			credentialIndex = len(instruction.VerifiableCredentials)
			instruction.VerifiableCredentials = append(instruction.VerifiableCredentials, credential)
		}
		mapping.Path = fmt.Sprintf("$.verifiableCredential[%d]", credentialIndex)
		instruction.Mappings = append(instruction.Mappings, mapping)
	}

	var nonEmptySignInstructions SignInstructions
	for _, signInstruction := range signInstructions {
		if !signInstruction.Empty() {
			nonEmptySignInstructions = append(nonEmptySignInstructions, signInstruction)
		}
	}

	// with a single VP the mappings are used as-is, with multiple VPs each mapping is
	// wrapped in a path_nested entry relative to the list of VPs
	for index, signInstruction := range nonEmptySignInstructions {
		for _, inputDescriptorMapping := range signInstruction.Mappings {
			if len(nonEmptySignInstructions) > 1 {
				inputDescriptorMapping := inputDescriptorMapping
				presentationSubmission.DescriptorMap = append(presentationSubmission.DescriptorMap, InputDescriptorMappingObject{
					Id:         inputDescriptorMapping.Id,
					Format:     format,
					Path:       fmt.Sprintf("$[%d]", index),
					PathNested: &inputDescriptorMapping,
				})
			} else {
				presentationSubmission.DescriptorMap = append(presentationSubmission.DescriptorMap, inputDescriptorMapping)
			}
		}
	}

	return presentationSubmission, nonEmptySignInstructions, nil
}

func (b *PresentationSubmissionBuilder) walletOf(credential vc.VerifiableCredential) int {
	for i, walletVCs := range b.wallets {
		for _, walletVC := range walletVCs {
			if walletVC.Raw() == credential.Raw() {
				return i
			}
		}
	}
	return -1
}

// Resolve returns a map where each of the input descriptors is mapped to the corresponding VerifiableCredential.
// If an input descriptor can't be mapped to a VC, an error is returned.
// This function is specified by https://identity.foundation/presentation-exchange/#processing-of-submission-entries
func (s PresentationSubmission) Resolve(envelope interface{}) (map[string]vc.VerifiableCredential, error) {
	switch envelope.(type) {
	case []interface{}:
		// list of VPs
	case map[string]interface{}:
		// single VP (JSON)
	case string:
		// single VP (JWT)
	default:
		return nil, errors.New("invalid Presentation Exchange envelope")
	}

	result := make(map[string]vc.VerifiableCredential)
	for _, inputDescriptor := range s.DescriptorMap {
		resolvedCredential, err := resolveCredential(inputDescriptor, envelope)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve credential for input descriptor '%s': %w", inputDescriptor.Id, err)
		}
		result[inputDescriptor.Id] = *resolvedCredential
	}
	return result, nil
}

func resolveCredential(mapping InputDescriptorMappingObject, value interface{}) (*vc.VerifiableCredential, error) {
	resolved, err := jsonpath.Get(mapping.Path, value)
	if err != nil {
		return nil, fmt.Errorf("unable to get value for path %s: %w", mapping.Path, err)
	}

	if mapping.PathNested != nil {
		// descend into the nested structure, possibly through an enveloping JWT
		nestedValue := resolved
		if asString, ok := nestedValue.(string); ok && strings.HasPrefix(asString, "ey") {
			presentation, err := vc.ParseVerifiablePresentation(asString)
			if err != nil {
				return nil, fmt.Errorf("unable to parse JWT presentation: %w", err)
			}
			asJSON, _ := json.Marshal(presentation)
			_ = json.Unmarshal(asJSON, &nestedValue)
		}
		return resolveCredential(*mapping.PathNested, nestedValue)
	}

	// the value at the path must be a credential, either as JSON object or as JWT string
	switch typedValue := resolved.(type) {
	case map[string]interface{}:
		asJSON, _ := json.Marshal(typedValue)
		return vc.ParseVerifiableCredential(string(asJSON))
	case string:
		return vc.ParseVerifiableCredential(typedValue)
	default:
		return nil, errors.New("value of Go type '" + fmt.Sprintf("%T", resolved) + "' at JSON path '" + mapping.Path + "' is not a VerifiableCredential")
	}
}
