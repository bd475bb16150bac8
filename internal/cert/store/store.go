package store

import (
	"context"
	"crypto/rsa"
	"math/big"

	"charter/internal/entitlement/models"
)

// KeyPairStore holds consumer-scoped key pairs. A consumer's key pair is
// created lazily on first issuance and reused across all of that consumer's
// certificates; its lifetime is the consumer's lifetime.
type KeyPairStore interface {
	// EnsureKeyPair returns the consumer's key pair, invoking generate to
	// create one if none exists yet. Concurrent callers for the same
	// consumer must observe the same winning key.
	EnsureKeyPair(ctx context.Context, consumerUUID string, generate func() (*rsa.PrivateKey, error)) (*rsa.PrivateKey, error)
}

// SerialStore allocates certificate serial numbers from a shared counter.
// Serials are strictly increasing, totally ordered across concurrent
// issuances, and never reused, even across revocation.
type SerialStore interface {
	Next(ctx context.Context) (*models.CertificateSerial, error)
}

// CertificateStore persists issued entitlement certificates.
type CertificateStore interface {
	Create(ctx context.Context, cert *models.EntitlementCertificate) error
	ListByEntitlement(ctx context.Context, entitlementID string) ([]*models.EntitlementCertificate, error)
	Delete(ctx context.Context, serial *big.Int) error
}
