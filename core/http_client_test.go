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
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func response(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestTestResponseCode(t *testing.T) {
	t.Run("matching status code", func(t *testing.T) {
		assert.NoError(t, TestResponseCode(http.StatusOK, response(http.StatusOK, "")))
	})
	t.Run("other status code", func(t *testing.T) {
		err := TestResponseCode(http.StatusOK, response(http.StatusNotFound, "not found"))

		require.Error(t, err)
		var httpError HttpError
		require.ErrorAs(t, err, &httpError)
		assert.Equal(t, http.StatusNotFound, httpError.StatusCode)
		assert.Equal(t, []byte("not found"), httpError.ResponseBody)
	})
}

func TestTestResponseOK(t *testing.T) {
	t.Run("any status below 400 is accepted", func(t *testing.T) {
		for _, statusCode := range []int{http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusFound} {
			assert.NoError(t, TestResponseOK(response(statusCode, "")))
		}
	})
	t.Run("status 400 and up is rejected", func(t *testing.T) {
		for _, statusCode := range []int{http.StatusBadRequest, http.StatusInternalServerError} {
			err := TestResponseOK(response(statusCode, "oops"))

			require.Error(t, err)
			var httpError HttpError
			require.ErrorAs(t, err, &httpError)
			assert.Equal(t, statusCode, httpError.StatusCode)
			assert.Equal(t, []byte("oops"), httpError.ResponseBody)
		}
	})
}
