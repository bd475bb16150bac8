package revocation

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
)

// PostgresLedger marks serials revoked on their certificate_serials rows.
// The rows themselves are never deleted, so the ledger stays append-only
// even after the certificate is purged from primary storage.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed revocation ledger.
func NewPostgres(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Record(ctx context.Context, serial *big.Int) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE certificate_serials SET revoked = TRUE WHERE id = $1`,
		serial.Int64())
	if err != nil {
		return fmt.Errorf("record revoked serial: %w", err)
	}
	return nil
}

func (l *PostgresLedger) IsRevoked(ctx context.Context, serial *big.Int) (bool, error) {
	var revoked bool
	err := l.db.QueryRowContext(ctx,
		`SELECT revoked FROM certificate_serials WHERE id = $1`,
		serial.Int64()).Scan(&revoked)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check revoked serial: %w", err)
	}
	return revoked, nil
}

func (l *PostgresLedger) ListRevoked(ctx context.Context) ([]*big.Int, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id FROM certificate_serials WHERE revoked ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list revoked serials: %w", err)
	}
	defer rows.Close()

	var out []*big.Int
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list revoked serials: %w", err)
		}
		out = append(out, new(big.Int).SetInt64(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list revoked serials: %w", err)
	}
	return out, nil
}
