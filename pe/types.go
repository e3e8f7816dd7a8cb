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

// Package pe implements the parts of the Presentation Exchange specification (v2.x.x)
// needed to act as a holder: matching wallet credentials against presentation definitions,
// selecting candidate credentials per input descriptor and building presentation submissions.
// See https://identity.foundation/presentation-exchange/
package pe

// PresentationDefinition describes the credentials and claims a verifier requires.
type PresentationDefinition struct {
	// Id is the unique id of the presentation definition.
	Id string `json:"id"`
	// Name is an optional human-friendly name.
	Name string `json:"name,omitempty"`
	// Purpose describes why the verifier requests the presentation.
	Purpose string `json:"purpose,omitempty"`
	// Format restricts the claim formats (and algorithms/proof types) accepted by the verifier.
	Format *ClaimFormatDesignations `json:"format,omitempty"`
	// InputDescriptors describe the individual credentials/claims being requested.
	InputDescriptors []*InputDescriptor `json:"input_descriptors"`
	// SubmissionRequirements, when present, group input descriptors and define selection rules over them.
	SubmissionRequirements []*SubmissionRequirement `json:"submission_requirements,omitempty"`
}

// ClaimFormatDesignations maps a claim format identifier (e.g. jwt_vc, ldp_vp) to
// format-specific properties, e.g. alg_values_supported or proof_type_values_supported.
type ClaimFormatDesignations map[string]map[string][]string

// InputDescriptor describes a single requested credential and the constraints it must satisfy.
type InputDescriptor struct {
	Id      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Purpose string   `json:"purpose,omitempty"`
	// Group ties the descriptor to submission requirements through their 'from' field.
	Group       []string     `json:"group,omitempty"`
	Constraints *Constraints `json:"constraints,omitempty"`
}

// Constraints holds the field constraints of an input descriptor.
type Constraints struct {
	Fields []Field `json:"fields,omitempty"`
	// LimitDisclosure is not supported, it is parsed so definitions using it can be rejected explicitly.
	LimitDisclosure string `json:"limit_disclosure,omitempty"`
}

// Field selects a value from a credential through one or more JSON paths and optionally filters it.
type Field struct {
	Id       *string  `json:"id,omitempty"`
	Path     []string `json:"path"`
	Purpose  *string  `json:"purpose,omitempty"`
	Optional *bool    `json:"optional,omitempty"`
	Filter   *Filter  `json:"filter,omitempty"`
}

// Filter is a JSON Schema descriptor applied to the value found at a Field's path.
// Supported: string, number, boolean and array types with const, enum and pattern properties.
type Filter struct {
	Type    string   `json:"type"`
	Const   *string  `json:"const,omitempty"`
	Enum    []string `json:"enum,omitempty"`
	Pattern *string  `json:"pattern,omitempty"`
}

// SubmissionRequirement defines a selection rule ('all' or 'pick') over a group of
// input descriptors ('from') or over nested requirements ('from_nested').
type SubmissionRequirement struct {
	Name    string  `json:"name,omitempty"`
	Purpose *string `json:"purpose,omitempty"`
	Rule    string  `json:"rule"`
	Count   *int    `json:"count,omitempty"`
	Min     *int    `json:"min,omitempty"`
	Max     *int    `json:"max,omitempty"`
	From    string  `json:"from,omitempty"`
	FromNested []*SubmissionRequirement `json:"from_nested,omitempty"`
}

// PresentationSubmission describes how the credentials in a presentation satisfy
// the input descriptors of a presentation definition.
type PresentationSubmission struct {
	// Id is the id of the presentation submission, a UUID.
	Id string `json:"id"`
	// DefinitionId is the id of the presentation definition this submission answers.
	DefinitionId string `json:"definition_id"`
	// DescriptorMap maps input descriptors to locations within the presentation.
	DescriptorMap []InputDescriptorMappingObject `json:"descriptor_map"`
}

// InputDescriptorMappingObject maps a single input descriptor to the credential
// satisfying it, located by a JSON path relative to the presentation.
type InputDescriptorMappingObject struct {
	Id     string `json:"id"`
	Path   string `json:"path"`
	Format string `json:"format"`
	// PathNested is set when the credential is enveloped in another structure (e.g. multiple VPs).
	PathNested *InputDescriptorMappingObject `json:"path_nested,omitempty"`
}
