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

	"github.com/google/uuid"
	"github.com/nuts-foundation/go-did/did"
	"github.com/nuts-foundation/siop-op/contact"
	"github.com/nuts-foundation/siop-op/pe"
	"github.com/nuts-foundation/siop-op/siop/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// Config configures the Authenticator.
type Config struct {
	// Holder is the DID this agent presents itself with.
	Holder did.DID `koanf:"-"`
	// DIDMethods are the DID methods the agent supports as holder identity.
	DIDMethods []string `koanf:"didmethods"`
	// SessionTTL is how long an idle OP session is kept. Zero means DefaultSessionTTL.
	SessionTTL time.Duration `koanf:"sessionttl"`
}

// Authenticator is the entrypoint for applications driving SIOPv2/OpenID4VP flows.
// It keeps the active OP sessions, the registered custom approval hooks, and implements
// the services the flow machine invokes.
type Authenticator struct {
	config    Config
	deps      Dependencies
	contacts  *contact.Store
	sessions  *sessionRegistry
	approvals *approvalRegistry

	sessionsStarted prometheus.Counter
	responsesSent   *prometheus.CounterVec
}

// NewAuthenticator creates an Authenticator. The contact store may not be nil.
func NewAuthenticator(config Config, deps Dependencies, contacts *contact.Store) *Authenticator {
	return &Authenticator{
		config:    config,
		deps:      deps,
		contacts:  contacts,
		sessions:  newSessionRegistry(config.SessionTTL),
		approvals: newApprovalRegistry(),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "siop",
			Name:      "sessions_started_total",
			Help:      "Number of OP sessions started.",
		}),
		responsesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "siop",
			Name:      "responses_sent_total",
			Help:      "Number of authorization responses sent, by outcome.",
		}, []string{"outcome"}),
	}
}

// Holder returns the DID this agent presents itself with.
func (a *Authenticator) Holder() did.DID {
	return a.config.Holder
}

// Collectors returns the prometheus collectors of this Authenticator.
func (a *Authenticator) Collectors() []prometheus.Collector {
	return []prometheus.Collector{a.sessionsStarted, a.responsesSent}
}

// Shutdown releases background resources.
func (a *Authenticator) Shutdown() {
	a.sessions.close()
}

// RegisterSession creates an OP session for the given wallet invocation and registers it.
// The generated session id is returned through the session.
func (a *Authenticator) RegisterSession(requestInput string) (*OpSession, error) {
	session := NewOpSession(uuid.NewString(), requestInput, a.config.DIDMethods, a.deps)
	if err := a.sessions.add(session); err != nil {
		return nil, err
	}
	a.sessionsStarted.Inc()
	logging.Log().WithField("sessionID", session.ID()).Debug("Registered OP session")
	return session, nil
}

// registerSessionWithID registers an OP session under a caller-supplied id.
// Used to revive persisted flows whose in-memory session is gone, e.g. after a restart.
func (a *Authenticator) registerSessionWithID(id string, requestInput string) (*OpSession, error) {
	session := NewOpSession(id, requestInput, a.config.DIDMethods, a.deps)
	if err := a.sessions.add(session); err != nil {
		return nil, err
	}
	a.sessionsStarted.Inc()
	logging.Log().WithField("sessionID", id).Debug("Revived OP session")
	return session, nil
}

// GetSession returns the registered session with the given id.
func (a *Authenticator) GetSession(id string) (*OpSession, error) {
	return a.sessions.get(id)
}

// RemoveSession unregisters the session with the given id.
func (a *Authenticator) RemoveSession(id string) {
	a.sessions.remove(id)
}

// GetMachine builds a flow machine that starts the flow for the given wallet invocation,
// driven by this Authenticator's services.
func (a *Authenticator) GetMachine(requestInput string, listener NavigationListener) *Machine {
	return NewMachine(a.Services(), FlowContext{RequestInput: requestInput}, listener)
}

// SupportedDIDs returns the agent identities usable in the given session.
func (a *Authenticator) SupportedDIDs(sessionID string) ([]did.DID, error) {
	session, err := a.sessions.get(sessionID)
	if err != nil {
		return nil, err
	}
	return session.SupportedDIDs(a.config.Holder)
}

// RegisterCustomApproval registers a hook that can veto sending the authorization response.
// A key can only be registered once.
func (a *Authenticator) RegisterCustomApproval(key string, fn CustomApprovalFn) error {
	return a.approvals.add(key, fn)
}

// RemoveCustomApproval unregisters the hook under the given key and reports whether it existed.
func (a *Authenticator) RemoveCustomApproval(key string) bool {
	return a.approvals.remove(key)
}

// SendResponse validates the credential selection, runs the custom approval hooks, creates
// the presentations and delivers the authorization response of the given session.
// For a plain SIOP session, selected must be empty.
func (a *Authenticator) SendResponse(ctx context.Context, sessionID string, selected []CredentialsWithDefinition) (*Response, error) {
	session, err := a.sessions.get(sessionID)
	if err != nil {
		return nil, err
	}
	request, err := session.GetAuthorizationRequest(ctx)
	if err != nil {
		return nil, err
	}
	if len(selected) != len(request.PresentationDefinitions) {
		return nil, ErrPresentationCountMismatch
	}
	if err := validateSelection(selected, request.PresentationDefinitions); err != nil {
		return nil, err
	}
	for _, approve := range a.approvals.all() {
		if err := approve(ctx, session, selected); err != nil {
			a.responsesSent.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("authorization response vetoed: %w", err)
		}
	}
	var presentations []PresentationWithSubmission
	if len(selected) > 0 {
		oid4vp, err := session.OID4VP()
		if err != nil {
			return nil, err
		}
		presentations, err = oid4vp.CreateVerifiablePresentations(ctx, selected, PresentationOptions{Holder: &a.config.Holder})
		if err != nil {
			a.responsesSent.WithLabelValues("error").Inc()
			return nil, err
		}
	}
	response, err := session.SendAuthorizationResponse(ctx, a.config.Holder, presentations)
	if err != nil {
		a.responsesSent.WithLabelValues("error").Inc()
		return nil, err
	}
	a.responsesSent.WithLabelValues("ok").Inc()
	return response, nil
}

// validateSelection checks that every selection satisfies its presentation definition.
// The selections must be in definition order.
func validateSelection(selected []CredentialsWithDefinition, definitions []pe.PresentationDefinition) error {
	for i, selection := range selected {
		if selection.Definition.Id != definitions[i].Id {
			return fmt.Errorf("selection %d does not belong to presentation definition %s", i, definitions[i].Id)
		}
		if len(selection.Credentials) == 0 {
			return ErrNoCredentialsSelected
		}
		result, err := selection.Definition.SelectFrom(selection.Credentials)
		if err != nil {
			return err
		}
		if result.Status == pe.StatusError {
			return fmt.Errorf("selected credentials do not satisfy presentation definition %s: %s",
				selection.Definition.Id, strings.Join(result.Errors, ", "))
		}
	}
	return nil
}

// Services returns the FlowServices for driving the flow machine with this Authenticator.
func (a *Authenticator) Services() FlowServices {
	return flowServices{auth: a}
}

// flowServices implements FlowServices on top of the Authenticator.
type flowServices struct {
	auth *Authenticator
}

func (s flowServices) CreateConfig(_ context.Context, flow *FlowContext) error {
	if flow.RequestInput == "" {
		return errors.New("missing authorization request input")
	}
	if flow.SessionID != "" {
		// resumed flow
		_, err := s.session(flow)
		return err
	}
	session, err := s.auth.RegisterSession(flow.RequestInput)
	if err != nil {
		return err
	}
	flow.SessionID = session.ID()
	return nil
}

// session returns the OP session of the flow. A session that is no longer registered,
// e.g. because the process restarted since the flow was persisted, is re-registered
// under the flow's session id from its original request input.
func (s flowServices) session(flow *FlowContext) (*OpSession, error) {
	session, err := s.auth.GetSession(flow.SessionID)
	if errors.Is(err, ErrSessionNotFound) && flow.RequestInput != "" {
		return s.auth.registerSessionWithID(flow.SessionID, flow.RequestInput)
	}
	return session, err
}

func (s flowServices) GetSiopRequest(ctx context.Context, flow *FlowContext) error {
	session, err := s.session(flow)
	if err != nil {
		return err
	}
	flow.Request, err = session.GetAuthorizationRequest(ctx)
	return err
}

func (s flowServices) RetrieveContact(_ context.Context, flow *FlowContext) error {
	found, err := s.auth.contacts.FindByCorrelationID(flow.Request.CorrelationID)
	if errors.Is(err, contact.ErrNotFound) {
		flow.Contact = nil
		return nil
	}
	if err != nil {
		return err
	}
	flow.Contact = found
	return nil
}

func (s flowServices) AddContactIdentity(_ context.Context, flow *FlowContext) error {
	identity := contact.Identity{CorrelationID: flow.Request.CorrelationID}
	if clientDID, err := did.ParseDID(flow.Request.ClientID); err == nil {
		identity.DID = clientDID.String()
	}
	added, err := s.auth.contacts.Add(flow.ContactAlias, identity)
	if err != nil {
		return err
	}
	flow.Contact = added
	return nil
}

func (s flowServices) GetSelectableCredentials(ctx context.Context, flow *FlowContext) error {
	session, err := s.session(flow)
	if err != nil {
		return err
	}
	// a revived session has not verified its request yet
	if _, err := session.GetAuthorizationRequest(ctx); err != nil {
		return err
	}
	oid4vp, err := session.OID4VP()
	if err != nil {
		return err
	}
	selectable := make([]pe.SelectionResult, 0, len(flow.Request.PresentationDefinitions))
	for _, definition := range flow.Request.PresentationDefinitions {
		result, err := oid4vp.FilterCredentialsWithSelectionStatus(ctx, s.auth.config.Holder, definition)
		if err != nil {
			return err
		}
		selectable = append(selectable, *result)
	}
	flow.Selectable = selectable
	return nil
}

func (s flowServices) SendResponse(ctx context.Context, flow *FlowContext) error {
	if _, err := s.session(flow); err != nil {
		return err
	}
	response, err := s.auth.SendResponse(ctx, flow.SessionID, flow.Selected)
	if err != nil {
		return err
	}
	flow.Response = response
	return nil
}
