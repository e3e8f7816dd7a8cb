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
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/nuts-foundation/siop-op/storage/logging"
)

//go:embed sql_migrations/*.sql
var sqlMigrationsFS embed.FS

// SQLConfig specifies the config for the SQL database.
type SQLConfig struct {
	// ConnectionString is the SQLite DSN, e.g. file:data/agent.db or file::memory:?cache=shared.
	ConnectionString string `koanf:"connection"`
}

// NewSQLDatabase opens the SQL database and runs the schema migrations.
func NewSQLDatabase(config SQLConfig) (*gorm.DB, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("SQL connection string is not configured")
	}
	db, err := gorm.Open(sqlite.Open(config.ConnectionString), &gorm.Config{
		Logger: NewGormLogger(),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQL database: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// NewTestDatabase returns an isolated in-memory SQL database for testing.
func NewTestDatabase() (*gorm.DB, error) {
	return NewSQLDatabase(SQLConfig{ConnectionString: "file::memory:"})
}

func migrate(db *gorm.DB) error {
	underlyingDB, err := db.DB()
	if err != nil {
		return err
	}
	goose.SetBaseFS(sqlMigrationsFS)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	if err := goose.Up(underlyingDB, "sql_migrations"); err != nil {
		return fmt.Errorf("failed to run SQL migrations: %w", err)
	}
	return nil
}

type gooseLogger struct {
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	logging.Log().Fatalf(format, v...)
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	logging.Log().Debugf(format, v...)
}
