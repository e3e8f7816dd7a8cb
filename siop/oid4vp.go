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

package siop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nuts-foundation/go-did/did"
	"github.com/nuts-foundation/go-did/vc"
	"github.com/nuts-foundation/siop-op/pe"
	"github.com/nuts-foundation/siop-op/wallet"
	"golang.org/x/sync/errgroup"
)

// presentationValidity is how long a created presentation is valid.
const presentationValidity = 15 * time.Minute

// PresentationOptions steer CreateVerifiablePresentation.
// Exactly one of Holder and SubjectIsHolder must be set.
type PresentationOptions struct {
	// Holder explicitly identifies the DID that signs the presentation.
	Holder *did.DID
	// SubjectIsHolder derives the signer from the credentials' subject.
	SubjectIsHolder bool
	// ApplyFilter re-runs the presentation definition filter over the given credentials,
	// so a caller may pass its full wallet instead of a pre-filtered selection.
	ApplyFilter bool
}

// OID4VP provides the OpenID4VP operations of a session that requests presentations.
// Obtained through OpSession.OID4VP.
type OID4VP struct {
	session *OpSession
}

// GetPresentationDefinitions returns the presentation definitions of the authorization request.
// It fails when the session no longer holds a verified request, e.g. after OpSession.Clear.
func (o *OID4VP) GetPresentationDefinitions() ([]pe.PresentationDefinition, error) {
	request, err := o.session.verifiedRequest()
	if err != nil {
		return nil, err
	}
	return request.PresentationDefinitions, nil
}

// FilterCredentialsWithSelectionStatus matches the holder's wallet against the given
// presentation definition and returns the per-descriptor candidates.
// It fails when the definition cannot be satisfied or nothing in the wallet matches.
func (o *OID4VP) FilterCredentialsWithSelectionStatus(ctx context.Context, holder did.DID, definition pe.PresentationDefinition) (*pe.SelectionResult, error) {
	credentials, err := o.session.deps.Wallet.List(ctx, holder)
	if err != nil {
		return nil, fmt.Errorf("unable to list wallet credentials: %w", err)
	}
	result, err := definition.SelectFrom(credentials)
	if err != nil {
		return nil, err
	}
	if result.Status == pe.StatusError {
		return nil, fmt.Errorf("presentation definition cannot be satisfied: %s", strings.Join(result.Errors, ", "))
	}
	if len(result.Credentials) == 0 && definition.CredentialsRequired() {
		return nil, ErrNoMatchingCredentials
	}
	return &result, nil
}

// FilterCredentials returns the holder's wallet credentials that satisfy the definition.
func (o *OID4VP) FilterCredentials(ctx context.Context, holder did.DID, definition pe.PresentationDefinition) ([]vc.VerifiableCredential, error) {
	result, err := o.FilterCredentialsWithSelectionStatus(ctx, holder, definition)
	if err != nil {
		return nil, err
	}
	return result.Credentials, nil
}

// FilterCredentialsAgainstAllDefinitions filters the holder's wallet against every
// presentation definition of the request. The order of the definitions is preserved.
func (o *OID4VP) FilterCredentialsAgainstAllDefinitions(ctx context.Context, holder did.DID) ([]CredentialsWithDefinition, error) {
	definitions, err := o.GetPresentationDefinitions()
	if err != nil {
		return nil, err
	}
	result := make([]CredentialsWithDefinition, 0, len(definitions))
	for _, definition := range definitions {
		credentials, err := o.FilterCredentials(ctx, holder, definition)
		if err != nil {
			return nil, fmt.Errorf("filtering credentials for presentation definition %s: %w", definition.Id, err)
		}
		result = append(result, CredentialsWithDefinition{Definition: definition, Credentials: credentials})
	}
	return result, nil
}

// CreateVerifiablePresentation creates and signs a presentation with submission for the
// given selection. Credentials keep their original wire format inside the presentation.
func (o *OID4VP) CreateVerifiablePresentation(ctx context.Context, selection CredentialsWithDefinition, options PresentationOptions) (*PresentationWithSubmission, error) {
	if options.SubjectIsHolder == (options.Holder != nil) {
		return nil, errors.New("either specify a holder or set subjectIsHolder, not both")
	}
	if len(selection.Credentials) == 0 {
		return nil, ErrNoCredentialsSelected
	}
	holder := options.Holder
	if holder == nil {
		var err error
		holder, err = wallet.ResolveSubjectDID(selection.Credentials...)
		if err != nil {
			return nil, fmt.Errorf("unable to derive holder from credentials: %w", err)
		}
	}
	credentials := selection.Credentials
	if options.ApplyFilter {
		selectionResult, err := selection.Definition.SelectFrom(credentials)
		if err != nil {
			return nil, err
		}
		if selectionResult.Status == pe.StatusError {
			return nil, fmt.Errorf("presentation definition cannot be satisfied: %s", strings.Join(selectionResult.Errors, ", "))
		}
		credentials = selectionResult.Credentials
	}
	request, err := o.session.verifiedRequest()
	if err != nil {
		return nil, err
	}
	var acceptedFormats map[string]map[string][]string
	if request.ClientMetadata != nil {
		acceptedFormats = request.ClientMetadata.VPFormats
	}
	presenter := wallet.Presenter{Signer: o.session.deps.Signer, KeyResolver: o.session.deps.KeyResolver}
	presentation, submission, err := presenter.BuildSubmission(ctx, *holder, credentials, selection.Definition, acceptedFormats, wallet.BuildParams{
		Audience: request.ClientID,
		Nonce:    request.Nonce,
		Expires:  time.Now().Add(presentationValidity),
	})
	if err != nil {
		return nil, err
	}
	return &PresentationWithSubmission{Presentation: *presentation, Submission: *submission}, nil
}

// CreateVerifiablePresentations creates a presentation for every selection, concurrently.
// The first failure cancels the remaining work and is returned.
// The result preserves the order of the selections.
func (o *OID4VP) CreateVerifiablePresentations(ctx context.Context, selections []CredentialsWithDefinition, options PresentationOptions) ([]PresentationWithSubmission, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	results := make([]PresentationWithSubmission, len(selections))
	for i, selection := range selections {
		i, selection := i, selection
		group.Go(func() error {
			presentation, err := o.CreateVerifiablePresentation(groupCtx, selection, options)
			if err != nil {
				return fmt.Errorf("presentation for definition %s: %w", selection.Definition.Id, err)
			}
			results[i] = *presentation
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
