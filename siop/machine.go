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
	"fmt"
	"sync"

	"github.com/nuts-foundation/siop-op/contact"
	"github.com/nuts-foundation/siop-op/pe"
	"github.com/nuts-foundation/siop-op/siop/logging"
)

// State is a state of the authentication flow.
type State string

const (
	// StateCreateConfig prepares the session configuration.
	StateCreateConfig State = "createConfig"
	// StateGetSiopRequest fetches and verifies the authorization request.
	StateGetSiopRequest State = "getSiopRequest"
	// StateRetrieveContact looks up the relying party among the known contacts.
	StateRetrieveContact State = "retrieveContact"
	// stateTransitionFromSetup routes to the next step once the request and contact are known.
	stateTransitionFromSetup State = "transitionFromSetup"
	// StateAddContact waits for the user to name the unknown relying party.
	StateAddContact State = "addContact"
	// StateAddContactIdentity persists the new contact and its identity.
	StateAddContactIdentity State = "addContactIdentity"
	// StateGetSelectableCredentials filters the wallet against the presentation definitions.
	StateGetSelectableCredentials State = "getSelectableCredentials"
	// StateSelectCredentials waits for the user to select the credentials to present.
	StateSelectCredentials State = "selectCredentials"
	// StateSendResponse delivers the authorization response.
	StateSendResponse State = "sendResponse"
	// StateHandleError presents a failure to the user.
	StateHandleError State = "handleError"

	// StateDone is the terminal state of a completed flow.
	StateDone State = "done"
	// StateDeclined is the terminal state when the user declined to present.
	StateDeclined State = "declined"
	// StateAborted is the terminal state when the user broke off the flow.
	StateAborted State = "aborted"
	// StateError is the terminal state after an acknowledged failure.
	StateError State = "error"
)

// EventType identifies an event sent to the flow machine.
type EventType string

const (
	// EventNext advances the flow from a user-facing state.
	EventNext EventType = "NEXT"
	// EventPrevious navigates back. Currently only used to acknowledge an error.
	EventPrevious EventType = "PREVIOUS"
	// EventDecline declines the presentation request.
	EventDecline EventType = "DECLINE"
	// EventAbort breaks off the flow.
	EventAbort EventType = "ABORT"
	// EventSetConsent records whether the user agrees to store the relying party
	// as a contact. Carries Consent. Does not advance the flow.
	EventSetConsent EventType = "SET_CONSENT"
	// EventSetAlias names the relying party without advancing the flow. Carries Alias.
	EventSetAlias EventType = "SET_ALIAS"
	// EventCreateContact persists the relying party as a contact. May carry Alias.
	// Only allowed once consent has been given.
	EventCreateContact EventType = "CREATE_CONTACT"
	// EventSelectCredentials sets the credentials to present. Carries Selection.
	EventSelectCredentials EventType = "SELECT_CREDENTIALS"

	// internal events, emitted by entry actions
	eventSuccess  EventType = "SUCCESS"
	eventFailure  EventType = "FAILURE"
	eventEvaluate EventType = "EVALUATE"
)

// Event is sent to the machine to drive the flow.
type Event struct {
	Type EventType
	// Alias is the contact name, for EventSetAlias and EventCreateContact.
	Alias string
	// Consent is whether the user agrees to store the contact, for EventSetConsent.
	Consent bool
	// Selection is the credential selection, for EventSelectCredentials.
	Selection []CredentialsWithDefinition
}

// FlowContext is the accumulated state of one authentication flow.
type FlowContext struct {
	SessionID string
	// RequestInput is the wallet invocation that started the flow.
	RequestInput string
	// Request is set once the authorization request has been verified.
	Request *AuthorizationRequestData
	// Contact is the relying party, nil until known.
	Contact      *contact.Contact
	ContactAlias string
	// Consent is whether the user agreed to store the relying party as a contact.
	Consent bool
	// Selectable holds the per-definition credential candidates, nil until the wallet
	// has been filtered.
	Selectable []pe.SelectionResult
	// Selected is the user's credential selection.
	Selected []CredentialsWithDefinition
	// Response is the relying party's reply, set when the flow is done.
	Response *Response
	// Error describes the failure that moved the flow to handleError.
	Error *ErrorDetails
}

// FlowServices are the side effects the machine invokes when entering a service state.
// Implementations mutate the given FlowContext.
type FlowServices interface {
	CreateConfig(ctx context.Context, flow *FlowContext) error
	GetSiopRequest(ctx context.Context, flow *FlowContext) error
	RetrieveContact(ctx context.Context, flow *FlowContext) error
	AddContactIdentity(ctx context.Context, flow *FlowContext) error
	GetSelectableCredentials(ctx context.Context, flow *FlowContext) error
	SendResponse(ctx context.Context, flow *FlowContext) error
}

// NavigationListener is notified when the flow reaches a user-facing or terminal state.
// It is not invoked for internal service states. The listener runs on the goroutine that
// sent the event and must not call back into the machine.
type NavigationListener func(state State, flow FlowContext)

type transition struct {
	from  State
	event EventType
	to    State
	// guard must hold for the transition to apply, nil means always.
	// For a given (from, event) the first row with a passing guard wins,
	// so the order of rows with guards is significant.
	guard func(*FlowContext) bool
}

func guardNoContact(flow *FlowContext) bool {
	return flow.Contact == nil
}

func guardSiopOnly(flow *FlowContext) bool {
	return !flow.Request.RequestsPresentation()
}

func guardSelectableKnown(flow *FlowContext) bool {
	return flow.Selectable != nil && flow.Contact != nil
}

func guardConsentGiven(flow *FlowContext) bool {
	return flow.Consent
}

func guardHasSelection(flow *FlowContext) bool {
	if len(flow.Selected) == 0 {
		return false
	}
	for _, selection := range flow.Selected {
		if len(selection.Credentials) == 0 {
			return false
		}
	}
	return true
}

// transitions is the full flow, as a static table.
var transitions = []transition{
	{StateCreateConfig, eventSuccess, StateGetSiopRequest, nil},
	{StateCreateConfig, eventFailure, StateHandleError, nil},

	{StateGetSiopRequest, eventSuccess, StateRetrieveContact, nil},
	{StateGetSiopRequest, eventFailure, StateHandleError, nil},

	{StateRetrieveContact, eventSuccess, stateTransitionFromSetup, nil},
	{StateRetrieveContact, eventFailure, StateHandleError, nil},

	// routing guards, evaluated in this order:
	// an unknown relying party must be named first, a plain SIOP flow needs no
	// credentials, a filtered wallet goes to selection, otherwise filter the wallet.
	{stateTransitionFromSetup, eventEvaluate, StateAddContact, guardNoContact},
	{stateTransitionFromSetup, eventEvaluate, StateSendResponse, guardSiopOnly},
	{stateTransitionFromSetup, eventEvaluate, StateSelectCredentials, guardSelectableKnown},
	{stateTransitionFromSetup, eventEvaluate, StateGetSelectableCredentials, nil},

	{StateAddContact, EventSetConsent, StateAddContact, nil},
	{StateAddContact, EventSetAlias, StateAddContact, nil},
	{StateAddContact, EventCreateContact, StateAddContactIdentity, guardConsentGiven},
	{StateAddContact, EventDecline, StateDeclined, nil},
	{StateAddContact, EventAbort, StateAborted, nil},

	{StateAddContactIdentity, eventSuccess, stateTransitionFromSetup, nil},
	{StateAddContactIdentity, eventFailure, StateHandleError, nil},

	{StateGetSelectableCredentials, eventSuccess, stateTransitionFromSetup, nil},
	{StateGetSelectableCredentials, eventFailure, StateHandleError, nil},

	{StateSelectCredentials, EventSelectCredentials, StateSelectCredentials, nil},
	{StateSelectCredentials, EventNext, StateSendResponse, guardHasSelection},
	{StateSelectCredentials, EventDecline, StateDeclined, nil},
	{StateSelectCredentials, EventAbort, StateAborted, nil},

	{StateSendResponse, eventSuccess, StateDone, nil},
	{StateSendResponse, eventFailure, StateHandleError, nil},

	{StateHandleError, EventNext, StateError, nil},
	{StateHandleError, EventPrevious, StateError, nil},
	{StateHandleError, EventAbort, StateAborted, nil},
}

// userFacingStates are the states the navigation listener is notified of.
var userFacingStates = map[State]bool{
	StateAddContact:        true,
	StateSelectCredentials: true,
	StateHandleError:       true,
	StateDone:              true,
	StateDeclined:          true,
	StateAborted:           true,
	StateError:             true,
}

// terminalStates accept no further events.
var terminalStates = map[State]bool{
	StateDone:     true,
	StateDeclined: true,
	StateAborted:  true,
	StateError:    true,
}

// Machine drives one authentication flow through the transition table.
// Entry actions (service calls) run synchronously on the caller's goroutine; their outcome
// is fed back into the table as an internal success or failure event.
// Methods are safe for concurrent use.
type Machine struct {
	mux      sync.Mutex
	state    State
	flow     FlowContext
	services FlowServices
	listener NavigationListener
}

// NewMachine creates a machine in StateCreateConfig for the given flow.
// The listener may be nil.
func NewMachine(services FlowServices, flow FlowContext, listener NavigationListener) *Machine {
	return &Machine{
		state:    StateCreateConfig,
		flow:     flow,
		services: services,
		listener: listener,
	}
}

// NewMachineAt restores a machine at the given state, e.g. from a persisted flow.
func NewMachineAt(state State, services FlowServices, flow FlowContext, listener NavigationListener) *Machine {
	return &Machine{
		state:    state,
		flow:     flow,
		services: services,
		listener: listener,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.state
}

// Context returns a copy of the flow context.
func (m *Machine) Context() FlowContext {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.flow
}

// Start runs the flow up to the first user-facing or terminal state.
func (m *Machine) Start(ctx context.Context) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.state != StateCreateConfig {
		return fmt.Errorf("flow already started (state=%s)", m.state)
	}
	m.runEntryAction(ctx)
	return nil
}

// Send applies an external event. It returns an error when the event is not
// allowed in the current state, leaving the state unchanged.
func (m *Machine) Send(ctx context.Context, event Event) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if terminalStates[m.state] {
		return fmt.Errorf("flow has ended (state=%s)", m.state)
	}
	switch event.Type {
	case eventSuccess, eventFailure, eventEvaluate:
		return fmt.Errorf("internal event %s cannot be sent", event.Type)
	}
	return m.apply(ctx, event)
}

func (m *Machine) apply(ctx context.Context, event Event) error {
	next, ok := m.lookup(event.Type)
	if !ok {
		return fmt.Errorf("event %s not allowed in state %s", event.Type, m.state)
	}
	switch event.Type {
	case EventSetConsent:
		m.flow.Consent = event.Consent
	case EventSetAlias:
		m.flow.ContactAlias = event.Alias
	case EventCreateContact:
		if event.Alias != "" {
			m.flow.ContactAlias = event.Alias
		}
	case EventSelectCredentials:
		m.flow.Selected = event.Selection
	}
	logging.Log().WithField("sessionID", m.flow.SessionID).
		Debugf("Flow transition %s --%s--> %s", m.state, event.Type, next)
	stateChanged := next != m.state
	m.state = next
	if m.listener != nil && stateChanged && userFacingStates[next] {
		m.listener(next, m.flow)
	}
	m.runEntryAction(ctx)
	return nil
}

// lookup finds the target state for the given event in the current state,
// honoring guard order.
func (m *Machine) lookup(event EventType) (State, bool) {
	for _, row := range transitions {
		if row.from != m.state || row.event != event {
			continue
		}
		if row.guard != nil && !row.guard(&m.flow) {
			continue
		}
		return row.to, true
	}
	return "", false
}

// runEntryAction invokes the service of the current state, if it has one, and feeds the
// outcome back into the table.
func (m *Machine) runEntryAction(ctx context.Context) {
	var err error
	switch m.state {
	case StateCreateConfig:
		err = m.services.CreateConfig(ctx, &m.flow)
	case StateGetSiopRequest:
		err = m.services.GetSiopRequest(ctx, &m.flow)
	case StateRetrieveContact:
		err = m.services.RetrieveContact(ctx, &m.flow)
	case StateAddContactIdentity:
		err = m.services.AddContactIdentity(ctx, &m.flow)
	case StateGetSelectableCredentials:
		err = m.services.GetSelectableCredentials(ctx, &m.flow)
	case StateSendResponse:
		err = m.services.SendResponse(ctx, &m.flow)
	case stateTransitionFromSetup:
		// router, no service
		_ = m.apply(ctx, Event{Type: eventEvaluate})
		return
	default:
		return
	}
	if err != nil {
		logging.Log().WithError(err).WithField("sessionID", m.flow.SessionID).
			Infof("Flow service failed in state %s", m.state)
		m.flow.Error = &ErrorDetails{
			Title:   string(m.state),
			Message: err.Error(),
		}
		_ = m.apply(ctx, Event{Type: eventFailure})
		return
	}
	_ = m.apply(ctx, Event{Type: eventSuccess})
}
