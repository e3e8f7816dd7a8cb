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
	"fmt"

	"github.com/nuts-foundation/go-did/vc"
)

// Status reports whether the required credentials for a presentation definition are present
// in a candidate set.
type Status string

const (
	// StatusInfo means all required credentials are present.
	StatusInfo Status = "info"
	// StatusWarn means the selection is usable but some optional inputs are unfulfilled.
	StatusWarn Status = "warn"
	// StatusError means one or more required credentials are absent.
	StatusError Status = "error"
)

// DescriptorCandidates lists all credentials from the candidate set that satisfy
// a single input descriptor.
type DescriptorCandidates struct {
	// InputDescriptorId is the id of the input descriptor the candidates satisfy.
	InputDescriptorId string
	// Name and Purpose are copied from the input descriptor for display purposes.
	Name    string
	Purpose string
	// Matches holds every candidate credential satisfying the descriptor, in candidate-set order.
	Matches []vc.VerifiableCredential
}

// SelectionResult is the outcome of matching a candidate credential set against a
// presentation definition: per-descriptor candidates, the deduplicated credential set
// satisfying the definition, and the required-credentials status.
type SelectionResult struct {
	// Candidates holds one entry per input descriptor, in definition order.
	Candidates []DescriptorCandidates
	// Credentials is the deduplicated union of matching credentials, in candidate-set order.
	Credentials []vc.VerifiableCredential
	// Errors lists the unfulfilled required inputs. Empty unless Status is StatusError.
	Errors []string
	// Status is the required-credentials status of this selection.
	Status Status
}

// SelectFrom matches the candidate credentials against the presentation definition and
// reports, per input descriptor, which candidates satisfy it.
// Credentials that don't match the definition's claim format designations are not candidates.
// It returns an error only on faulty definitions (bad JSON paths, invalid patterns,
// unsupported filters); an unfulfillable definition is reported through Status/Errors.
func (presentationDefinition PresentationDefinition) SelectFrom(vcs []vc.VerifiableCredential) (SelectionResult, error) {
	result := SelectionResult{Status: StatusInfo}
	seen := map[string]bool{}
	for _, inputDescriptor := range presentationDefinition.InputDescriptors {
		candidates := DescriptorCandidates{
			InputDescriptorId: inputDescriptor.Id,
			Name:              inputDescriptor.Name,
			Purpose:           inputDescriptor.Purpose,
		}
		for _, credential := range vcs {
			if !matchFormat(presentationDefinition.Format, credential) {
				continue
			}
			isMatch, err := matchCredential(*inputDescriptor, credential)
			if err != nil {
				return SelectionResult{}, err
			}
			if isMatch {
				candidates.Matches = append(candidates.Matches, credential)
				if !seen[credential.Raw()] {
					seen[credential.Raw()] = true
					result.Credentials = append(result.Credentials, credential)
				}
			}
		}
		result.Candidates = append(result.Candidates, candidates)
	}

	if len(presentationDefinition.SubmissionRequirements) > 0 {
		// the definition is fulfillable if the submission requirement rules can be satisfied
		// with the per-group candidates
		if err := presentationDefinition.checkSubmissionRequirements(result.Candidates); err != nil {
			result.Status = StatusError
			result.Errors = append(result.Errors, err.Error())
		}
		return result, nil
	}

	// without submission requirements every input descriptor is required
	for _, candidates := range result.Candidates {
		if len(candidates.Matches) == 0 {
			result.Status = StatusError
			result.Errors = append(result.Errors, fmt.Sprintf("no credentials satisfy input descriptor: %s", candidates.InputDescriptorId))
		}
	}
	return result, nil
}

// CredentialsRequired returns false if the definition can be satisfied without any credential,
// i.e. it has no input descriptors and no submission requirements demanding a pick.
func (presentationDefinition PresentationDefinition) CredentialsRequired() bool {
	if len(presentationDefinition.SubmissionRequirements) > 0 {
		return true
	}
	return len(presentationDefinition.InputDescriptors) > 0
}
