// Package database opens the PostgreSQL pool and applies the bot's schema migrations.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	// registers the "postgres" driver
	_ "github.com/lib/pq"
)

// Migrations holds the embedded schema changes owned by the bot.
//
//go:embed migrations/*.up.sql
var Migrations embed.FS

// MigrationsRoot is the directory inside Migrations.
const MigrationsRoot = "migrations"

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}
