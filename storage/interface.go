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

// Package storage provides the session and SQL storage for the agent.
package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a key is not present or expired.
var ErrNotFound = errors.New("not found")

// SessionDatabase is a KV database that holds session data with a TTL.
// Keys could be nonces, request ids, session ids, etc.
// All entries are stored with a TTL, so they will be removed automatically.
type SessionDatabase interface {
	// GetStore returns a SessionStore with the given TTL. The keys are used as key prefix.
	GetStore(ttl time.Duration, keys ...string) SessionStore
	// Close stops any background processes and closes the database.
	Close()
}

// SessionStore is a key-value store bound to a prefix and TTL within a SessionDatabase.
type SessionStore interface {
	// Delete deletes the entry for the given key. It does not return an error if the key does not exist.
	Delete(key string) error
	// Exists returns true if the key exists.
	Exists(key string) bool
	// Get unmarshals the value for the given key into target.
	// Returns ErrNotFound if the key does not exist or is expired.
	Get(key string, target interface{}) error
	// Put stores the value as JSON under the given key with the store's TTL.
	Put(key string, value interface{}) error
}
