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

// Command migrator applies the schema under internal/database/migrations
// against MigrationDatabase — a role distinct from both the write and
// read-only application roles, so DDL privileges never need to be
// granted to the services that run day to day.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pressly/goose/v3"

	"github.com/argoplatform/argonaut/internal/config"
)

const migrationsDir = "internal/database/migrations"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the service config file")
	command := flag.String("command", "up", "goose command: up, down, status, redo")
	flag.Parse()

	if err := run(*configPath, *command); err != nil {
		fmt.Fprintln(os.Stderr, "migrator:", err)
		os.Exit(1)
	}
}

func run(configPath, command string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sql.Open("pgx", cfg.MigrationDatabase.DSN())
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	switch command {
	case "up":
		return goose.Up(db, migrationsDir)
	case "down":
		return goose.Down(db, migrationsDir)
	case "status":
		return goose.Status(db, migrationsDir)
	case "redo":
		return goose.Redo(db, migrationsDir)
	default:
		return fmt.Errorf("unknown command %q, expected up, down, status or redo", command)
	}
}
