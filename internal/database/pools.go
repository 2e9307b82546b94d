/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package database opens the three Postgres roles described in
// spec.md §6: a write pool, a read-only pool (bound to a read-only
// database role so the query engine cannot write even if application
// code tried to), and a migration connection used only by cmd/migrator.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/argoplatform/argonaut/internal/config"
)

// Pools bundles the write and read-only connection pools plus the sqlx
// wrapper the repository layer scans rows into structs with. WriteDB
// and ReadOnlyDB are the database/sql handles every pkg/datastorage/repository
// method is written against; Write/ReadOnly (pgxpool) exist alongside
// them for call sites that need pgx-native features such as CopyFrom
// batch inserts.
type Pools struct {
	Write    *pgxpool.Pool
	ReadOnly *pgxpool.Pool
	WriteX   *sqlx.DB

	WriteDB    *sql.DB
	ReadOnlyDB *sql.DB
}

// Open dials both pools. The read-only pool MUST be authenticated as a
// database role with no INSERT/UPDATE/DELETE grants — spec.md §5 is
// explicit that this is enforced by role privileges, not application
// code, so Open does not attempt to defend against writes itself.
func Open(ctx context.Context, writeCfg, readOnlyCfg config.DatabaseConfig) (*Pools, error) {
	writePool, err := dial(ctx, writeCfg)
	if err != nil {
		return nil, fmt.Errorf("open write pool: %w", err)
	}

	readPool, err := dial(ctx, readOnlyCfg)
	if err != nil {
		writePool.Close()
		return nil, fmt.Errorf("open read-only pool: %w", err)
	}

	writeX, err := sqlx.Connect("pgx", writeCfg.DSN())
	if err != nil {
		writePool.Close()
		readPool.Close()
		return nil, fmt.Errorf("open sqlx write connection: %w", err)
	}
	writeX.SetMaxOpenConns(writeCfg.MaxOpenConns)
	writeX.SetMaxIdleConns(writeCfg.MaxIdleConns)
	writeX.SetConnMaxLifetime(writeCfg.ConnMaxLifetime)
	writeX.SetConnMaxIdleTime(writeCfg.ConnMaxIdleTime)

	readX, err := sqlx.Connect("pgx", readOnlyCfg.DSN())
	if err != nil {
		writePool.Close()
		readPool.Close()
		writeX.Close()
		return nil, fmt.Errorf("open sqlx read-only connection: %w", err)
	}
	readX.SetMaxOpenConns(readOnlyCfg.MaxOpenConns)
	readX.SetMaxIdleConns(readOnlyCfg.MaxIdleConns)

	return &Pools{
		Write:      writePool,
		ReadOnly:   readPool,
		WriteX:     writeX,
		WriteDB:    writeX.DB,
		ReadOnlyDB: readX.DB,
	}, nil
}

func dial(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Close releases both pools and the sqlx connection. Safe to call with
// a nil receiver or partially-initialized Pools.
func (p *Pools) Close() {
	if p == nil {
		return
	}
	if p.Write != nil {
		p.Write.Close()
	}
	if p.ReadOnly != nil {
		p.ReadOnly.Close()
	}
	if p.WriteX != nil {
		p.WriteX.Close()
	}
	if p.ReadOnlyDB != nil {
		p.ReadOnlyDB.Close()
	}
}
