// Package cert issues and revokes entitlement certificates. Issuance encodes
// the product/content/subscription model behind a granted entitlement into a
// signed X.509 artifact with strict serial and extension-deduplication
// guarantees; revocation retires certificates while keeping their serials in
// an append-only ledger.
package cert

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"charter/internal/cert/extensions"
	"charter/internal/cert/metrics"
	"charter/internal/cert/pki"
	"charter/internal/cert/store"
	"charter/internal/cert/store/revocation"
	cmodels "charter/internal/consumer/models"
	"charter/internal/entitlement/models"
	"charter/internal/events"
	"charter/pkg/sentinel"
)

// Service implements the certificate issuance pipeline.
type Service struct {
	keyPairs  store.KeyPairStore
	serials   store.SerialStore
	certs     store.CertificateStore
	ledger    revocation.Ledger
	authority *pki.Authority
	publisher *events.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	keyBits   int
}

// Config wires the issuer's collaborators.
type Config struct {
	KeyPairs  store.KeyPairStore
	Serials   store.SerialStore
	Certs     store.CertificateStore
	Ledger    revocation.Ledger
	Authority *pki.Authority
	Publisher *events.Publisher
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	// KeyBits sizes lazily generated consumer key pairs; defaults to 2048.
	KeyBits int
}

// New constructs the certificate service.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.KeyPairs == nil:
		return nil, fmt.Errorf("key pair store is required")
	case cfg.Serials == nil:
		return nil, fmt.Errorf("serial store is required")
	case cfg.Certs == nil:
		return nil, fmt.Errorf("certificate store is required")
	case cfg.Ledger == nil:
		return nil, fmt.Errorf("revocation ledger is required")
	case cfg.Authority == nil:
		return nil, fmt.Errorf("issuing authority is required")
	case cfg.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	keyBits := cfg.KeyBits
	if keyBits == 0 {
		keyBits = 2048
	}
	return &Service{
		keyPairs:  cfg.KeyPairs,
		serials:   cfg.Serials,
		certs:     cfg.Certs,
		ledger:    cfg.Ledger,
		authority: cfg.Authority,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tracer:    otel.Tracer("charter/cert"),
		keyBits:   keyBits,
	}, nil
}

// Issue generates, signs and persists the entitlement certificate for a
// granted entitlement. The consumer's key pair is created lazily and reused
// across all of that consumer's certificates; the serial comes from the
// shared monotonic counter. Callers are responsible for not double-issuing
// against a live entitlement.
func (s *Service) Issue(ctx context.Context, consumer *cmodels.Consumer,
	ent *models.Entitlement, sub *models.Subscription, product *models.Product,
	endDate time.Time) (*models.EntitlementCertificate, error) {

	ctx, span := s.tracer.Start(ctx, "cert.Issue")
	defer span.End()
	start := time.Now()

	if consumer == nil || ent == nil || sub == nil || product == nil {
		return nil, fmt.Errorf("consumer, entitlement, subscription and product are required: %w",
			sentinel.ErrBadInput)
	}

	cert, err := s.issue(ctx, consumer, ent, sub, product, endDate)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IssueFailures.Inc()
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Issued.Inc()
		s.metrics.IssueDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}
	s.logger.InfoContext(ctx, "issued entitlement certificate",
		"consumer", consumer.UUID,
		"entitlement", ent.ID,
		"product", product.ID,
		"serial", cert.Serial.String(),
	)

	if err := s.publisher.Emit(ctx, events.Event{
		Type:          events.TypeCertificateIssued,
		OwnerID:       consumer.OwnerID,
		ConsumerUUID:  consumer.UUID,
		EntitlementID: ent.ID,
		Serial:        cert.Serial.String(),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to publish issuance event", "error", err)
	}
	return cert, nil
}

func (s *Service) issue(ctx context.Context, consumer *cmodels.Consumer,
	ent *models.Entitlement, sub *models.Subscription, product *models.Product,
	endDate time.Time) (*models.EntitlementCertificate, error) {

	key, err := s.keyPairs.EnsureKeyPair(ctx, consumer.UUID, func() (*rsa.PrivateKey, error) {
		return pki.GenerateKeyPair(s.keyBits)
	})
	if err != nil {
		return nil, fmt.Errorf("consumer key pair: %w", errors.Join(sentinel.ErrSecurity, err))
	}

	serial, err := s.serials.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate serial: %w", err)
	}
	serialNumber := new(big.Int).SetUint64(uint64(serial.ID))

	extSet := extensions.ForEntitlement(consumer, ent, sub, product)

	der, err := s.authority.CreateCertificate(consumer.Name, consumer.UUID,
		extSet.List(), sub.StartDate, endDate, &key.PublicKey, serialNumber)
	if err != nil {
		return nil, fmt.Errorf("create x509 certificate: %w", errors.Join(sentinel.ErrSecurity, err))
	}

	cert := &models.EntitlementCertificate{
		Serial:        serialNumber,
		EntitlementID: ent.ID,
		KeyPEM:        pki.EncodePrivateKeyPEM(key),
		CertPEM:       pki.EncodeCertificatePEM(der),
		Created:       time.Now().UTC(),
	}
	// Single transactional write: a failure here leaves nothing partially
	// persisted, only a burned serial.
	if err := s.certs.Create(ctx, cert); err != nil {
		return nil, fmt.Errorf("persist certificate: %w", err)
	}

	ent.Certificates = append(ent.Certificates, cert)
	return cert, nil
}

// Revoke retires every certificate owned by the entitlement. Serials are
// recorded in the append-only ledger before the certificate rows are
// deleted, so a partial failure can only over-revoke, never lose a serial.
func (s *Service) Revoke(ctx context.Context, ent *models.Entitlement) error {
	ctx, span := s.tracer.Start(ctx, "cert.Revoke")
	defer span.End()

	if ent == nil {
		return fmt.Errorf("entitlement is required: %w", sentinel.ErrBadInput)
	}

	certs := ent.Certificates
	if len(certs) == 0 {
		loaded, err := s.certs.ListByEntitlement(ctx, ent.ID)
		if err != nil {
			return fmt.Errorf("load certificates for revocation: %w", err)
		}
		certs = loaded
	}

	for _, cert := range certs {
		if err := s.ledger.Record(ctx, cert.Serial); err != nil {
			return fmt.Errorf("record revoked serial %s: %w", cert.Serial, err)
		}
		if err := s.certs.Delete(ctx, cert.Serial); err != nil {
			return fmt.Errorf("delete certificate %s: %w", cert.Serial, err)
		}
		if s.metrics != nil {
			s.metrics.Revoked.Inc()
		}
		if err := s.publisher.Emit(ctx, events.Event{
			Type:          events.TypeCertificateRevoked,
			EntitlementID: ent.ID,
			Serial:        cert.Serial.String(),
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to publish revocation event", "error", err)
		}
	}
	ent.Certificates = nil

	s.logger.InfoContext(ctx, "revoked entitlement certificates",
		"entitlement", ent.ID, "count", len(certs))
	return nil
}

// RevokedSerials lists every revoked serial for revocation-list generation.
func (s *Service) RevokedSerials(ctx context.Context) ([]*big.Int, error) {
	return s.ledger.ListRevoked(ctx)
}
