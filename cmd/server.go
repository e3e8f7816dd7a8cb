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

package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/nuts-foundation/go-did/did"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	apiv0 "github.com/nuts-foundation/siop-op/api/v0"
	"github.com/nuts-foundation/siop-op/contact"
	"github.com/nuts-foundation/siop-op/core"
	"github.com/nuts-foundation/siop-op/crypto"
	"github.com/nuts-foundation/siop-op/siop"
	"github.com/nuts-foundation/siop-op/storage"
	"github.com/nuts-foundation/siop-op/vdr"
	"github.com/nuts-foundation/siop-op/wallet"
)

const httpClientTimeout = 30 * time.Second

// StorageConfig holds the configuration of the databases.
type StorageConfig struct {
	SQL     storage.SQLConfig    `koanf:"sql"`
	Session SessionStorageConfig `koanf:"session"`
}

// SessionStorageConfig holds the configuration of the session database.
type SessionStorageConfig struct {
	Redis storage.RedisConfig `koanf:"redis"`
}

func runServer(ctx context.Context, config *core.ServerConfig) error {
	var storageConfig StorageConfig
	if err := config.Unmarshal("storage", &storageConfig); err != nil {
		return err
	}
	var siopConfig siop.Config
	if err := config.Unmarshal("siop", &siopConfig); err != nil {
		return err
	}

	db, err := storage.NewSQLDatabase(storageConfig.SQL)
	if err != nil {
		return err
	}

	var sessionDB storage.SessionDatabase
	if storageConfig.Session.Redis.IsConfigured() {
		redisClient, err := storage.NewRedisClient(storageConfig.Session.Redis)
		if err != nil {
			return err
		}
		sessionDB = storage.NewRedisSessionDatabase(redisClient, storageConfig.Session.Redis.Prefix)
	} else {
		sessionDB = storage.NewInMemorySessionDatabase()
	}
	defer sessionDB.Close()

	keyStore := crypto.NewMemoryKeyStore()
	holder, err := provisionHolder(keyStore)
	if err != nil {
		return err
	}
	logrus.Infof("Agent holder identity: %s", holder)
	siopConfig.Holder = *holder
	if len(siopConfig.DIDMethods) == 0 {
		siopConfig.DIDMethods = vdr.DIDResolver{}.Methods()
	}

	auth := siop.NewAuthenticator(siopConfig, siop.Dependencies{
		HTTPClient:  core.NewStrictHTTPClient(config.Strictmode, httpClientTimeout, nil),
		KeyResolver: vdr.DIDResolver{},
		Signer:      keyStore,
		Wallet:      wallet.NewSQLWallet(db),
	}, contact.NewStore(db))
	defer auth.Shutdown()

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(collectors.NewGoCollector())
	metricsRegistry.MustRegister(auth.Collectors()...)

	server := core.NewEchoServer()
	server.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})))
	apiv0.Wrapper{Auth: auth}.Routes(server)

	// Stop the server when the context is cancelled (interrupt signal).
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logrus.Error(err)
		}
	}()

	if err := server.Start(config.HTTP.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// provisionHolder generates a fresh key pair and derives the agent's did:jwk identity from it.
func provisionHolder(keyStore *crypto.MemoryKeyStore) (*did.DID, error) {
	const tempKID = "holder-bootstrap"
	publicKey, err := keyStore.Generate(tempKID)
	if err != nil {
		return nil, err
	}
	holder, err := vdr.CreateJWKDID(publicKey)
	if err != nil {
		return nil, err
	}
	privateKey, err := keyStore.Private(tempKID)
	if err != nil {
		return nil, err
	}
	if err := privateKey.Set(jwk.KeyIDKey, holder.String()+"#0"); err != nil {
		return nil, err
	}
	if err := keyStore.Add(privateKey); err != nil {
		return nil, err
	}
	return holder, nil
}
