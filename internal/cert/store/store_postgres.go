package store

import (
	"context"
	"crypto/rsa"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"charter/internal/cert/pki"
	"charter/internal/entitlement/models"
)

// PostgresKeyPairStore persists consumer key pairs as PEM blobs.
type PostgresKeyPairStore struct {
	db *sql.DB
}

// NewPostgresKeyPairStore constructs a PostgreSQL-backed key pair store.
func NewPostgresKeyPairStore(db *sql.DB) *PostgresKeyPairStore {
	return &PostgresKeyPairStore{db: db}
}

// EnsureKeyPair loads the consumer's key pair, generating and inserting one
// when absent. The insert uses ON CONFLICT DO NOTHING followed by a
// re-select so concurrent issuances for a brand new consumer converge on a
// single winning key.
func (s *PostgresKeyPairStore) EnsureKeyPair(ctx context.Context, consumerUUID string, generate func() (*rsa.PrivateKey, error)) (*rsa.PrivateKey, error) {
	key, err := s.load(ctx, consumerUUID)
	if err != nil {
		return nil, err
	}
	if key != nil {
		return key, nil
	}

	fresh, err := generate()
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO consumer_key_pairs (consumer_uuid, private_key)
		VALUES ($1, $2)
		ON CONFLICT (consumer_uuid) DO NOTHING
	`, consumerUUID, pki.EncodePrivateKeyPEM(fresh))
	if err != nil {
		return nil, fmt.Errorf("store key pair: %w", err)
	}

	// Re-read so a concurrent winner's key is the one returned.
	key, err = s.load(ctx, consumerUUID)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, fmt.Errorf("key pair for consumer %s disappeared", consumerUUID)
	}
	return key, nil
}

func (s *PostgresKeyPairStore) load(ctx context.Context, consumerUUID string) (*rsa.PrivateKey, error) {
	var pemBytes []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT private_key FROM consumer_key_pairs WHERE consumer_uuid = $1`,
		consumerUUID).Scan(&pemBytes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return pki.ParsePrivateKeyPEM(pemBytes)
}

// PostgresSerialStore allocates serials from the certificate_serials
// sequence. BIGSERIAL allocation is transactional, strictly increasing and
// never reassigned, which is exactly the ledger discipline serials need.
type PostgresSerialStore struct {
	db *sql.DB
}

// NewPostgresSerialStore constructs a PostgreSQL-backed serial store.
func NewPostgresSerialStore(db *sql.DB) *PostgresSerialStore {
	return &PostgresSerialStore{db: db}
}

func (s *PostgresSerialStore) Next(ctx context.Context) (*models.CertificateSerial, error) {
	serial := &models.CertificateSerial{}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO certificate_serials DEFAULT VALUES
		RETURNING id, revoked, collected, created
	`).Scan(&serial.ID, &serial.Revoked, &serial.Collected, &serial.Created)
	if err != nil {
		return nil, fmt.Errorf("allocate serial: %w", err)
	}
	return serial, nil
}

// PostgresCertificateStore persists issued certificates.
type PostgresCertificateStore struct {
	db *sql.DB
}

// NewPostgresCertificateStore constructs a PostgreSQL-backed certificate
// store.
func NewPostgresCertificateStore(db *sql.DB) *PostgresCertificateStore {
	return &PostgresCertificateStore{db: db}
}

func (s *PostgresCertificateStore) Create(ctx context.Context, cert *models.EntitlementCertificate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entitlement_certificates (serial, entitlement_id, key_pem, cert_pem, created)
		VALUES ($1, $2, $3, $4, $5)
	`, cert.Serial.Int64(), cert.EntitlementID, cert.KeyPEM, cert.CertPEM, cert.Created)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

func (s *PostgresCertificateStore) ListByEntitlement(ctx context.Context, entitlementID string) ([]*models.EntitlementCertificate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT serial, entitlement_id, key_pem, cert_pem, created
		FROM entitlement_certificates
		WHERE entitlement_id = $1
		ORDER BY serial
	`, entitlementID)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var certs []*models.EntitlementCertificate
	for rows.Next() {
		var (
			serial  int64
			cert    models.EntitlementCertificate
			created time.Time
		)
		if err := rows.Scan(&serial, &cert.EntitlementID, &cert.KeyPEM, &cert.CertPEM, &created); err != nil {
			return nil, fmt.Errorf("list certificates: %w", err)
		}
		cert.Serial = new(big.Int).SetInt64(serial)
		cert.Created = created
		certs = append(certs, &cert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return certs, nil
}

func (s *PostgresCertificateStore) Delete(ctx context.Context, serial *big.Int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM entitlement_certificates WHERE serial = $1`, serial.Int64())
	if err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	return nil
}
