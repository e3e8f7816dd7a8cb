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
	"fmt"

	"github.com/google/uuid"
	"github.com/nuts-foundation/go-did/vc"
	"github.com/nuts-foundation/siop-op/pe/schema"
)

// Candidate holds the match between an input descriptor and a credential.
// A non-matching input descriptor also yields a Candidate, but without a VC.
type Candidate struct {
	InputDescriptor InputDescriptor
	VC              *vc.VerifiableCredential
}

// GroupCandidates holds all candidates for a submission requirement group.
type GroupCandidates struct {
	Name       string
	Candidates []Candidate
}

// ParsePresentationDefinition validates the given JSON against the presentation definition
// JSON schema and parses it into a PresentationDefinition.
func ParsePresentationDefinition(raw []byte) (*PresentationDefinition, error) {
	if err := schema.Validate(raw, schema.PresentationDefinition); err != nil {
		return nil, fmt.Errorf("invalid presentation definition: %w", err)
	}
	definition := PresentationDefinition{}
	if err := json.Unmarshal(raw, &definition); err != nil {
		return nil, err
	}
	return &definition, nil
}

// Match matches the VCs against the presentation definition and builds a presentation submission
// for the matching credentials.
// It supports the ldp_vc and jwt_vc formats, pattern/const/enum on string fields,
// the number/boolean/array/string JSON schema types and the Submission Requirements Feature.
// It doesn't do the credential search, this should be done before calling this function.
// The resulting PresentationSubmission has paths relative to a single enveloping VP;
// when multiple VPs are created the paths must be remapped with path_nested entries.
// If the definition cannot be fulfilled an empty submission and empty credential list are
// returned without error; ErrUnsupportedFilter and JSON path or pattern errors are returned as errors.
func (presentationDefinition PresentationDefinition) Match(vcs []vc.VerifiableCredential) (PresentationSubmission, []vc.VerifiableCredential, error) {
	if len(presentationDefinition.SubmissionRequirements) > 0 {
		return presentationDefinition.matchSubmissionRequirements(vcs)
	}
	return presentationDefinition.matchBasic(vcs)
}

// matchConstraints returns one Candidate per input descriptor, holding the first credential
// (in vcs order) that satisfies both the descriptor and the definition's format designations.
func (presentationDefinition PresentationDefinition) matchConstraints(vcs []vc.VerifiableCredential) ([]Candidate, error) {
	var candidates []Candidate
	for _, inputDescriptor := range presentationDefinition.InputDescriptors {
		candidate := Candidate{
			InputDescriptor: *inputDescriptor,
		}
		for _, credential := range vcs {
			if !matchFormat(presentationDefinition.Format, credential) {
				continue
			}
			isMatch, err := matchCredential(*inputDescriptor, credential)
			if err != nil {
				return nil, err
			}
			if isMatch {
				credential := credential
				candidate.VC = &credential
				break
			}
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (presentationDefinition PresentationDefinition) matchBasic(vcs []vc.VerifiableCredential) (PresentationSubmission, []vc.VerifiableCredential, error) {
	// without submission requirements every input descriptor must be satisfied
	presentationSubmission := PresentationSubmission{
		Id:           uuid.New().String(),
		DefinitionId: presentationDefinition.Id,
	}
	candidates, err := presentationDefinition.matchConstraints(vcs)
	if err != nil {
		return PresentationSubmission{}, nil, err
	}
	var matchingCredentials []vc.VerifiableCredential
	for _, candidate := range candidates {
		if candidate.VC == nil {
			return PresentationSubmission{}, []vc.VerifiableCredential{}, nil
		}
		presentationSubmission.DescriptorMap = append(presentationSubmission.DescriptorMap, InputDescriptorMappingObject{
			Id:     candidate.InputDescriptor.Id,
			Format: candidate.VC.Format(),
			Path:   fmt.Sprintf("$.verifiableCredential[%d]", len(matchingCredentials)),
		})
		matchingCredentials = append(matchingCredentials, *candidate.VC)
	}

	return presentationSubmission, matchingCredentials, nil
}

func (presentationDefinition PresentationDefinition) matchSubmissionRequirements(vcs []vc.VerifiableCredential) (PresentationSubmission, []vc.VerifiableCredential, error) {
	// first we use the constraint matching algorithm to get the matching credentials
	candidates, err := presentationDefinition.matchConstraints(vcs)
	if err != nil {
		return PresentationSubmission{}, nil, err
	}

	availableGroups, err := presentationDefinition.groupCandidates(candidates)
	if err != nil {
		return PresentationSubmission{}, nil, err
	}

	presentationSubmission := PresentationSubmission{
		Id:           uuid.New().String(),
		DefinitionId: presentationDefinition.Id,
	}
	var selectedVCs []vc.VerifiableCredential

	// for each submission requirement we select the credentials that match the requirement,
	// apply the rules and save the resulting credentials
	for _, submissionRequirement := range presentationDefinition.SubmissionRequirements {
		submissionRequirementVCs, err := submissionRequirement.match(availableGroups)
		if err != nil {
			return PresentationSubmission{}, []vc.VerifiableCredential{}, nil
		}
		selectedVCs = append(selectedVCs, submissionRequirementVCs...)
	}

	// deduplicate the selected credentials and build the descriptor map
	uniqueVCs := deduplicate(selectedVCs)
	for _, credential := range uniqueVCs {
		for _, candidate := range candidates {
			if candidate.VC != nil && candidate.VC.Raw() == credential.Raw() {
				presentationSubmission.DescriptorMap = append(presentationSubmission.DescriptorMap, InputDescriptorMappingObject{
					Id:     candidate.InputDescriptor.Id,
					Format: credential.Format(),
					Path:   fmt.Sprintf("$.verifiableCredential[%d]", indexOf(uniqueVCs, credential)),
				})
			}
		}
	}

	return presentationSubmission, uniqueVCs, nil
}

// checkSubmissionRequirements reports whether the submission requirements can be satisfied
// with the given per-descriptor candidates. Used for selection, where all candidates per
// descriptor are known instead of a single pick.
func (presentationDefinition PresentationDefinition) checkSubmissionRequirements(descriptorCandidates []DescriptorCandidates) error {
	var candidates []Candidate
	for i, inputDescriptor := range presentationDefinition.InputDescriptors {
		candidate := Candidate{InputDescriptor: *inputDescriptor}
		if i < len(descriptorCandidates) && len(descriptorCandidates[i].Matches) > 0 {
			first := descriptorCandidates[i].Matches[0]
			candidate.VC = &first
		}
		candidates = append(candidates, candidate)
	}
	availableGroups, err := presentationDefinition.groupCandidates(candidates)
	if err != nil {
		return err
	}
	for _, submissionRequirement := range presentationDefinition.SubmissionRequirements {
		if _, err := submissionRequirement.match(availableGroups); err != nil {
			return err
		}
	}
	return nil
}

// groupCandidates distributes the candidates over the submission requirement groups.
// For each 'group' referenced by an input descriptor a matching 'from' field must exist
// in a submission requirement.
func (presentationDefinition PresentationDefinition) groupCandidates(candidates []Candidate) (map[string]GroupCandidates, error) {
	availableGroups := make(map[string]GroupCandidates)
	for _, submissionRequirement := range presentationDefinition.SubmissionRequirements {
		for _, group := range submissionRequirement.Groups() {
			availableGroups[group] = GroupCandidates{
				Name: group,
			}
		}
	}
	for _, inputDescriptor := range presentationDefinition.InputDescriptors {
		for _, group := range inputDescriptor.Group {
			if _, ok := availableGroups[group]; !ok {
				return nil, fmt.Errorf("group %s is required but not available", group)
			}
		}
	}
	for _, candidate := range candidates {
		for _, group := range candidate.InputDescriptor.Group {
			current := availableGroups[group]
			current.Candidates = append(current.Candidates, candidate)
			availableGroups[group] = current
		}
	}
	return availableGroups, nil
}

func deduplicate(vcs []vc.VerifiableCredential) []vc.VerifiableCredential {
	var result []vc.VerifiableCredential
	seen := map[string]bool{}
	for _, credential := range vcs {
		if !seen[credential.Raw()] {
			seen[credential.Raw()] = true
			result = append(result, credential)
		}
	}
	return result
}

func indexOf(vcs []vc.VerifiableCredential, credential vc.VerifiableCredential) int {
	for i, curr := range vcs {
		if curr.Raw() == credential.Raw() {
			return i
		}
	}
	return -1
}

// ChooseVPFormat chooses the format for the verifiable presentation from the formats
// supported by the verifier, in preferred order.
func ChooseVPFormat(formats map[string]map[string][]string) string {
	if _, ok := formats[vc.JWTPresentationProofFormat]; ok {
		return vc.JWTPresentationProofFormat
	}
	if _, ok := formats["jwt_vp_json"]; ok {
		return vc.JWTPresentationProofFormat
	}
	if _, ok := formats[vc.JSONLDPresentationProofFormat]; ok {
		return vc.JSONLDPresentationProofFormat
	}
	return ""
}
