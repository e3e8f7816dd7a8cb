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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSessionRegistry_close(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	registry := newSessionRegistry(0)

	registry.close()
}

func TestSessionRegistry_prune(t *testing.T) {
	env := newTestEnv(t)
	registry := newSessionRegistry(time.Millisecond)
	defer registry.close()
	require.NoError(t, registry.add(NewOpSession("expired", env.vpRequestURI(), []string{"jwk"}, env.deps)))

	time.Sleep(5 * time.Millisecond)
	registry.prune()

	registry.mux.Lock()
	defer registry.mux.Unlock()
	assert.Empty(t, registry.sessions)
}
