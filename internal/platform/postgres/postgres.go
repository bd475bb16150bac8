package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to PostgreSQL and verifies the connection.
// Returns nil if the URL is empty (Postgres not configured; in-memory stores
// are used instead).
func Open(url string) (*sql.DB, error) {
	if url == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return db, nil
}

// Migrate applies the schema. Idempotent; meant for development and tests,
// production deployments run migrations out of band.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS consumers (
		id            BIGSERIAL PRIMARY KEY,
		uuid          TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		owner_id      TEXT NOT NULL,
		type          TEXT NOT NULL,
		hypervisor_id TEXT,
		last_checkin  TIMESTAMPTZ,
		updated       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_consumers_owner ON consumers (owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_consumers_hypervisor
		ON consumers (owner_id, lower(hypervisor_id))`,
	`CREATE TABLE IF NOT EXISTS consumer_facts (
		consumer_id BIGINT NOT NULL REFERENCES consumers (id) ON DELETE CASCADE,
		mapkey      TEXT NOT NULL,
		element     TEXT NOT NULL,
		element_lower TEXT NOT NULL,
		PRIMARY KEY (consumer_id, mapkey)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_consumer_facts_lower
		ON consumer_facts (mapkey, element_lower)`,
	`CREATE TABLE IF NOT EXISTS guest_ids (
		consumer_id    BIGINT NOT NULL REFERENCES consumers (id) ON DELETE CASCADE,
		guest_id       TEXT NOT NULL,
		guest_id_lower TEXT NOT NULL,
		updated        TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (consumer_id, guest_id_lower)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_guest_ids_lower ON guest_ids (guest_id_lower)`,
	`CREATE TABLE IF NOT EXISTS deleted_consumers (
		consumer_uuid TEXT PRIMARY KEY,
		owner_id      TEXT NOT NULL,
		deleted_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS certificate_serials (
		id        BIGSERIAL PRIMARY KEY,
		revoked   BOOLEAN NOT NULL DEFAULT FALSE,
		collected BOOLEAN NOT NULL DEFAULT FALSE,
		created   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS consumer_key_pairs (
		consumer_uuid TEXT PRIMARY KEY,
		private_key   BYTEA NOT NULL,
		created       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS entitlement_certificates (
		serial         BIGINT PRIMARY KEY REFERENCES certificate_serials (id),
		entitlement_id TEXT NOT NULL,
		key_pem        BYTEA NOT NULL,
		cert_pem       BYTEA NOT NULL,
		created        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ent_certs_entitlement
		ON entitlement_certificates (entitlement_id)`,
}
