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

package core

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// ParsePublicURL parses the given input string as URL and asserts that it has a scheme.
// In strict mode it additionally requires https and a hostname that is not an IP address or localhost.
func ParsePublicURL(input string, strictmode bool) (*url.URL, error) {
	if !strings.Contains(input, "://") {
		return nil, errors.New("URL missing scheme")
	}
	parsed, err := url.Parse(input)
	if err != nil {
		return nil, err
	}
	if parsed.Hostname() == "" {
		return nil, errors.New("URL missing hostname")
	}
	if strictmode {
		if parsed.Scheme != "https" {
			return nil, errors.New("scheme must be https")
		}
		if net.ParseIP(parsed.Hostname()) != nil {
			return nil, errors.New("hostname is IP")
		}
		if parsed.Hostname() == "localhost" {
			return nil, errors.New("hostname is localhost")
		}
	}
	return parsed, nil
}

// AddQueryParams adds the given params to the given url as query params.
// Existing params with the same name are kept.
func AddQueryParams(u url.URL, params map[string]string) url.URL {
	values := u.Query()
	for key, value := range params {
		values.Add(key, value)
	}
	u.RawQuery = values.Encode()
	return u
}
