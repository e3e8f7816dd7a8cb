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
 */

package oauth

import (
	"errors"
	"net/url"
)

// ErrorCode specifies error codes as defined by the OAuth2 RFCs and the OpenID4VP specification.
type ErrorCode string

const (
	// InvalidRequest is returned when the request is missing a required parameter,
	// includes an invalid parameter value or is otherwise malformed. (RFC6749)
	InvalidRequest ErrorCode = "invalid_request"
	// InvalidRequestObject is returned when the request parameter contains an invalid request object. (RFC9101)
	InvalidRequestObject ErrorCode = "invalid_request_object"
	// InvalidRequestURI is returned when the request_uri returns an error or invalid data. (RFC9101)
	InvalidRequestURI ErrorCode = "invalid_request_uri"
	// InvalidPresentationDefinitionURI is returned when the presentation_definition_uri can't be
	// resolved or returns invalid data. (OpenID4VP)
	InvalidPresentationDefinitionURI ErrorCode = "invalid_presentation_definition_uri"
	// UnsupportedResponseType is returned when the authorization server does not support
	// obtaining an authorization code using this method. (RFC6749)
	UnsupportedResponseType ErrorCode = "unsupported_response_type"
	// ServerError is returned when the authorization server encountered an unexpected condition. (RFC6749)
	ServerError ErrorCode = "server_error"
	// AccessDenied is returned when the resource owner or authorization server denied the request. (RFC6749)
	AccessDenied ErrorCode = "access_denied"
)

// OAuth2Error is the error response as defined by RFC6749 §5.2 and the OpenID4VP error responses.
type OAuth2Error struct {
	// Code is the error code as defined by the OAuth2 specifications.
	Code ErrorCode `json:"error"`
	// Description is a human-readable text providing additional information about the error.
	Description string `json:"error_description,omitempty"`
	// InternalError is the underlying error. It is never returned to a relying party.
	InternalError error `json:"-"`
	// RedirectURI is the redirect URI of the current flow, errors are redirected to it when set.
	RedirectURI *url.URL `json:"-"`
}

// StatusCode returns the HTTP status code to be returned to the client when the error isn't redirected.
func (e OAuth2Error) StatusCode() int {
	switch e.Code {
	case ServerError:
		return 500
	default:
		return 400
	}
}

func (e OAuth2Error) Error() string {
	parts := []string{string(e.Code)}
	if e.Description != "" {
		parts = append(parts, e.Description)
	}
	result := parts[0]
	for _, part := range parts[1:] {
		result += " - " + part
	}
	return result
}

// Unwrap makes errors.Is and errors.As consider the internal error.
func (e OAuth2Error) Unwrap() error {
	return e.InternalError
}

// IsOAuth2Error returns the OAuth2Error if err is (or wraps) one.
func IsOAuth2Error(err error) (OAuth2Error, bool) {
	var oauthErr OAuth2Error
	ok := errors.As(err, &oauthErr)
	return oauthErr, ok
}
