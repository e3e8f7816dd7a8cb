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

// Package v0 exposes the holder agent's operations over HTTP for local applications.
package v0

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nuts-foundation/siop-op/core"
	"github.com/nuts-foundation/siop-op/oauth"
	"github.com/nuts-foundation/siop-op/pe"
	"github.com/nuts-foundation/siop-op/siop"
)

const basePath = "/internal/siop/v0"

// Wrapper bridges Echo routes to the holder agent.
type Wrapper struct {
	Auth *siop.Authenticator
}

// Routes registers the Echo routes for the API.
func (w Wrapper) Routes(router core.EchoRouter) {
	router.Add(http.MethodPost, basePath+"/sessions", w.createSession)
	router.Add(http.MethodGet, basePath+"/sessions/:id", w.getSession)
	router.Add(http.MethodGet, basePath+"/sessions/:id/credentials", w.getSelectableCredentials)
	router.Add(http.MethodPost, basePath+"/sessions/:id/response", w.sendResponse)
	router.Add(http.MethodDelete, basePath+"/sessions/:id", w.removeSession)
}

// CreateSessionRequest starts an OP session from a wallet invocation.
type CreateSessionRequest struct {
	// AuthorizationRequest is the invocation URI or signed request object.
	AuthorizationRequest string `json:"authorizationRequest"`
}

// CreateSessionResponse is the result of creating an OP session.
type CreateSessionResponse struct {
	SessionID string `json:"sessionID"`
}

// SessionDetails describes a verified session to the application.
type SessionDetails struct {
	SessionID               string                      `json:"sessionID"`
	ClientID                string                      `json:"clientID"`
	CorrelationID           string                      `json:"correlationID"`
	ClientName              string                      `json:"clientName,omitempty"`
	RequestsPresentation    bool                        `json:"requestsPresentation"`
	PresentationDefCount    int                         `json:"presentationDefinitionCount"`
	SupportedDIDMethods     []string                    `json:"supportedDIDMethods"`
	PresentationDefinitions []pe.PresentationDefinition `json:"presentationDefinitions,omitempty"`
}

// SendResponseRequest carries the credential selection for the authorization response.
type SendResponseRequest struct {
	Selection []siop.CredentialsWithDefinition `json:"selection"`
}

func (w Wrapper) createSession(c echo.Context) error {
	var request CreateSessionRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if request.AuthorizationRequest == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing authorizationRequest")
	}
	session, err := w.Auth.RegisterSession(request.AuthorizationRequest)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, CreateSessionResponse{SessionID: session.ID()})
}

// getSession fetches and verifies the authorization request of the session.
// Repeated calls return the memoized result.
func (w Wrapper) getSession(c echo.Context) error {
	session, err := w.Auth.GetSession(c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	request, err := session.GetAuthorizationRequest(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	methods, err := session.SupportedDIDMethods(false)
	if err != nil {
		return mapError(err)
	}
	details := SessionDetails{
		SessionID:               session.ID(),
		ClientID:                request.ClientID,
		CorrelationID:           request.CorrelationID,
		RequestsPresentation:    request.RequestsPresentation(),
		PresentationDefCount:    len(request.PresentationDefinitions),
		SupportedDIDMethods:     methods,
		PresentationDefinitions: request.PresentationDefinitions,
	}
	if request.ClientMetadata != nil {
		details.ClientName = request.ClientMetadata.ClientName
	}
	return c.JSON(http.StatusOK, details)
}

func (w Wrapper) getSelectableCredentials(c echo.Context) error {
	session, err := w.Auth.GetSession(c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	ctx := c.Request().Context()
	if _, err := session.GetAuthorizationRequest(ctx); err != nil {
		return mapError(err)
	}
	oid4vp, err := session.OID4VP()
	if err != nil {
		return mapError(err)
	}
	definitions, err := oid4vp.GetPresentationDefinitions()
	if err != nil {
		return mapError(err)
	}
	results := make([]pe.SelectionResult, 0)
	for _, definition := range definitions {
		result, err := oid4vp.FilterCredentialsWithSelectionStatus(ctx, w.Auth.Holder(), definition)
		if err != nil {
			return mapError(err)
		}
		results = append(results, *result)
	}
	return c.JSON(http.StatusOK, results)
}

func (w Wrapper) sendResponse(c echo.Context) error {
	var request SendResponseRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	response, err := w.Auth.SendResponse(c.Request().Context(), c.Param("id"), request.Selection)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, response)
}

func (w Wrapper) removeSession(c echo.Context) error {
	w.Auth.RemoveSession(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

// mapError translates domain errors to HTTP errors.
func mapError(err error) error {
	if errors.Is(err, siop.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if oauthErr, ok := oauth.IsOAuth2Error(err); ok {
		return echo.NewHTTPError(oauthErr.StatusCode(), oauthErr.Error())
	}
	switch {
	case errors.Is(err, siop.ErrRequestNotVerified),
		errors.Is(err, siop.ErrPresentationCountMismatch),
		errors.Is(err, siop.ErrMissingPresentationSubmission),
		errors.Is(err, siop.ErrNoCredentialsSelected),
		errors.Is(err, siop.ErrNoMatchingCredentials),
		errors.Is(err, siop.ErrNoDIDMethodIntersection):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
