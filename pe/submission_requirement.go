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
	"slices"

	"github.com/nuts-foundation/go-did/vc"
)

const (
	ruleAll  = "all"
	rulePick = "pick"
)

// Groups returns all the group names from the 'from' field. It traverses the 'from_nested' field recursively.
func (submissionRequirement SubmissionRequirement) Groups() []string {
	result := []string{}
	if submissionRequirement.From != "" {
		result = append(result, submissionRequirement.From)
	}
	for _, nested := range submissionRequirement.FromNested {
		result = append(result, nested.Groups()...)
	}
	// deduplicate by using sort and compact
	slices.Sort(result)
	return slices.Compact(result)
}

func (submissionRequirement SubmissionRequirement) match(availableGroups map[string]GroupCandidates) ([]vc.VerifiableCredential, error) {
	if submissionRequirement.From != "" && len(submissionRequirement.FromNested) > 0 {
		return nil, fmt.Errorf("submission requirement (%s) contains both 'from' and 'from_nested'", submissionRequirement.Name)
	}
	if submissionRequirement.From == "" && len(submissionRequirement.FromNested) == 0 {
		return nil, fmt.Errorf("submission requirement (%s) is missing 'from' or 'from_nested'", submissionRequirement.Name)
	}

	if len(submissionRequirement.FromNested) > 0 {
		return submissionRequirement.fromNested(availableGroups)
	}
	return submissionRequirement.from(availableGroups)
}

// pickSets applies the pick rule's count/min/max bounds to a list of credential sets.
// A set with at least one credential counts as a fulfilled member.
func (submissionRequirement SubmissionRequirement) pickSets(sets [][]vc.VerifiableCredential) ([]vc.VerifiableCredential, error) {
	var fulfilled int
	for _, set := range sets {
		if len(set) > 0 {
			fulfilled++
		}
	}

	wanted := fulfilled
	if submissionRequirement.Count != nil {
		if fulfilled < *submissionRequirement.Count {
			return nil, fmt.Errorf("submission requirement (%s) has less credentials (%d) than required (%d)", submissionRequirement.Name, fulfilled, *submissionRequirement.Count)
		}
		wanted = *submissionRequirement.Count
	} else {
		if submissionRequirement.Min != nil && fulfilled < *submissionRequirement.Min {
			return nil, fmt.Errorf("submission requirement (%s) has less matches (%d) than minimal required (%d)", submissionRequirement.Name, fulfilled, *submissionRequirement.Min)
		}
		if submissionRequirement.Max != nil && fulfilled > *submissionRequirement.Max {
			wanted = *submissionRequirement.Max
		}
	}

	var result []vc.VerifiableCredential
	var taken int
	for _, set := range sets {
		if taken == wanted {
			break
		}
		if len(set) > 0 {
			result = append(result, set...)
			taken++
		}
	}
	return result, nil
}

func (submissionRequirement SubmissionRequirement) from(availableGroups map[string]GroupCandidates) ([]vc.VerifiableCredential, error) {
	group := availableGroups[submissionRequirement.From]
	switch submissionRequirement.Rule {
	case ruleAll:
		// all candidates in the group must hold a credential
		selectedVCs := make([]vc.VerifiableCredential, 0)
		for _, candidate := range group.Candidates {
			if candidate.VC == nil {
				return nil, fmt.Errorf("submission requirement (%s) does not have all credentials from the group", submissionRequirement.Name)
			}
			selectedVCs = append(selectedVCs, *candidate.VC)
		}
		return selectedVCs, nil
	case rulePick:
		sets := make([][]vc.VerifiableCredential, len(group.Candidates))
		for i, candidate := range group.Candidates {
			if candidate.VC != nil {
				sets[i] = []vc.VerifiableCredential{*candidate.VC}
			}
		}
		return submissionRequirement.pickSets(sets)
	default:
		return nil, fmt.Errorf("submission requirement (%s) contains unknown rule (%s)", submissionRequirement.Name, submissionRequirement.Rule)
	}
}

func (submissionRequirement SubmissionRequirement) fromNested(availableGroups map[string]GroupCandidates) ([]vc.VerifiableCredential, error) {
	sets := make([][]vc.VerifiableCredential, len(submissionRequirement.FromNested))
	for i, nested := range submissionRequirement.FromNested {
		vcs, err := nested.match(availableGroups)
		if err != nil {
			if submissionRequirement.Rule == ruleAll {
				return nil, fmt.Errorf("submission requirement (%s) does not have all credentials from nested requirements", submissionRequirement.Name)
			}
			continue
		}
		sets[i] = vcs
	}
	switch submissionRequirement.Rule {
	case ruleAll:
		var result []vc.VerifiableCredential
		for _, set := range sets {
			result = append(result, set...)
		}
		return result, nil
	case rulePick:
		return submissionRequirement.pickSets(sets)
	default:
		return nil, fmt.Errorf("submission requirement (%s) contains unknown rule (%s)", submissionRequirement.Name, submissionRequirement.Rule)
	}
}
