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

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nuts-foundation/siop-op/storage/logging"
)

var _ SessionDatabase = (*redisSessionDatabase)(nil)
var _ SessionStore = (*redisSessionStore)(nil)

// NewRedisSessionDatabase creates a session database on top of the given Redis client.
// The prefix is prepended to every key to allow multiple agents to share a Redis database.
func NewRedisSessionDatabase(client *redis.Client, prefix string) SessionDatabase {
	return redisSessionDatabase{
		client: client,
		prefix: prefix,
	}
}

type redisSessionDatabase struct {
	client *redis.Client
	prefix string
}

func (s redisSessionDatabase) GetStore(ttl time.Duration, keys ...string) SessionStore {
	var prefixes []string
	if s.prefix != "" {
		prefixes = append(prefixes, s.prefix)
	}
	prefixes = append(prefixes, keys...)
	return redisSessionStore{
		client:    s.client,
		ttl:       ttl,
		storeName: strings.Join(prefixes, "."),
	}
}

func (s redisSessionDatabase) Close() {
	if err := s.client.Close(); err != nil {
		logging.Log().WithError(err).Error("Failed to close Redis client")
	}
}

type redisSessionStore struct {
	client    *redis.Client
	ttl       time.Duration
	storeName string
}

func (s redisSessionStore) Delete(key string) error {
	return s.client.Del(context.Background(), s.fullKey(key)).Err()
}

func (s redisSessionStore) Exists(key string) bool {
	result, err := s.client.Exists(context.Background(), s.fullKey(key)).Result()
	if err != nil {
		logging.Log().WithError(err).Errorf("Failed to check existence of key %s", key)
		return false
	}
	return result > 0
}

func (s redisSessionStore) Get(key string, target interface{}) error {
	data, err := s.client.Get(context.Background(), s.fullKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal([]byte(data), target)
}

func (s redisSessionStore) Put(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(context.Background(), s.fullKey(key), data, s.ttl).Err()
}

func (s redisSessionStore) fullKey(key string) string {
	return s.storeName + "." + key
}
