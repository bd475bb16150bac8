package cert

import (
	"context"
	"crypto/rsa"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"charter/internal/cert/pki"
	"charter/internal/cert/store"
	"charter/internal/cert/store/revocation"
	cmodels "charter/internal/consumer/models"
	"charter/internal/entitlement/models"
	"charter/internal/events"
	"charter/pkg/sentinel"
)

type CertServiceSuite struct {
	suite.Suite
	keyPairs *store.InMemoryKeyPairStore
	certs    *store.InMemoryCertificateStore
	ledger   *revocation.InMemoryLedger
	sink     *events.MemorySink
	service  *Service
}

func TestCertServiceSuite(t *testing.T) {
	suite.Run(t, new(CertServiceSuite))
}

var testAuthority *pki.Authority

func (s *CertServiceSuite) SetupSuite() {
	// One shared authority; generating RSA keys per test is needless work.
	var err error
	testAuthority, err = pki.NewAuthority("test-authority", 2048, time.Hour)
	s.Require().NoError(err)
}

func (s *CertServiceSuite) SetupTest() {
	s.keyPairs = store.NewMemoryKeyPairStore()
	s.certs = store.NewMemoryCertificateStore()
	s.ledger = revocation.NewMemory()
	s.sink = events.NewMemorySink()

	var err error
	s.service, err = New(Config{
		KeyPairs:  s.keyPairs,
		Serials:   store.NewMemorySerialStore(),
		Certs:     s.certs,
		Ledger:    s.ledger,
		Authority: testAuthority,
		Publisher: events.NewPublisher(s.sink),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		KeyBits:   2048,
	})
	s.Require().NoError(err)
}

func issueFixture() (*cmodels.Consumer, *models.Subscription, *models.Product) {
	product := &models.Product{
		ID:   "1001",
		Name: "ACME OS",
		Content: []models.Content{{
			ID: "2001", Name: "acme-os-rpms", Label: "acme-os-rpms",
			Vendor: "ACME", URL: "https://cdn.example.com/os", Enabled: true,
		}},
	}
	sub := &models.Subscription{
		ID:        "sub-1",
		Product:   product,
		Quantity:  5,
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	consumer := cmodels.New("host.example.com", "org-1", cmodels.TypeSystem)
	return consumer, sub, product
}

func (s *CertServiceSuite) TestIssue() {
	ctx := context.Background()
	endDate := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Run("missing inputs are rejected", func() {
		_, err := s.service.Issue(ctx, nil, nil, nil, nil, endDate)
		s.ErrorIs(err, sentinel.ErrBadInput)
	})

	s.Run("produces a parseable signed certificate bound to the entitlement", func() {
		consumer, sub, product := issueFixture()
		ent := &models.Entitlement{ID: "ent-1", ConsumerUUID: consumer.UUID, PoolID: "pool-1", Quantity: 1}

		cert, err := s.service.Issue(ctx, consumer, ent, sub, product, endDate)
		s.Require().NoError(err)

		s.Equal(ent.ID, cert.EntitlementID)
		s.Require().Len(ent.Certificates, 1, "certificate appended to the entitlement")

		parsed, err := pki.ParseCertificatePEM(cert.CertPEM)
		s.Require().NoError(err)
		s.Equal(consumer.Name, parsed.Subject.CommonName)
		s.NoError(parsed.CheckSignatureFrom(testAuthority.Certificate()))
		s.True(parsed.NotBefore.Equal(sub.StartDate))
		s.True(parsed.NotAfter.Equal(endDate))

		key, err := pki.ParsePrivateKeyPEM(cert.KeyPEM)
		s.Require().NoError(err)
		s.Zero(key.PublicKey.N.Cmp(parsed.PublicKey.(*rsa.PublicKey).N),
			"certificate bound to the consumer's key pair")

		stored, err := s.certs.ListByEntitlement(ctx, ent.ID)
		s.Require().NoError(err)
		s.Len(stored, 1)

		published := s.sink.Events()
		s.Require().Len(published, 1)
		s.Equal(events.TypeCertificateIssued, published[0].Type)
		s.Equal(cert.Serial.String(), published[0].Serial)
	})

	s.Run("sequential issuances increase serials and reuse the key pair", func() {
		consumer, sub, product := issueFixture()
		ent1 := &models.Entitlement{ID: "ent-a", ConsumerUUID: consumer.UUID, PoolID: "pool-1", Quantity: 1}
		ent2 := &models.Entitlement{ID: "ent-b", ConsumerUUID: consumer.UUID, PoolID: "pool-1", Quantity: 1}

		first, err := s.service.Issue(ctx, consumer, ent1, sub, product, endDate)
		s.Require().NoError(err)
		second, err := s.service.Issue(ctx, consumer, ent2, sub, product, endDate)
		s.Require().NoError(err)

		s.Negative(first.Serial.Cmp(second.Serial), "serials strictly increase")

		key1, err := pki.ParsePrivateKeyPEM(first.KeyPEM)
		s.Require().NoError(err)
		key2, err := pki.ParsePrivateKeyPEM(second.KeyPEM)
		s.Require().NoError(err)
		s.Zero(key1.D.Cmp(key2.D), "same consumer key pair backs both certificates")
	})

	s.Run("key pair failure is a security error", func() {
		svc, err := New(Config{
			KeyPairs:  failingKeyPairStore{},
			Serials:   store.NewMemorySerialStore(),
			Certs:     s.certs,
			Ledger:    s.ledger,
			Authority: testAuthority,
			Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		s.Require().NoError(err)

		consumer, sub, product := issueFixture()
		ent := &models.Entitlement{ID: "ent-x", ConsumerUUID: consumer.UUID}

		_, err = svc.Issue(ctx, consumer, ent, sub, product, endDate)
		s.ErrorIs(err, sentinel.ErrSecurity)
		s.Empty(ent.Certificates, "nothing persisted on failure")
	})
}

type failingKeyPairStore struct{}

func (failingKeyPairStore) EnsureKeyPair(context.Context, string, func() (*rsa.PrivateKey, error)) (*rsa.PrivateKey, error) {
	return nil, errors.New("hsm unavailable")
}

func (s *CertServiceSuite) TestRevoke() {
	ctx := context.Background()
	endDate := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Run("records serials in the ledger and deletes certificates", func() {
		consumer, sub, product := issueFixture()
		ent := &models.Entitlement{ID: "ent-r", ConsumerUUID: consumer.UUID, Quantity: 1}

		cert, err := s.service.Issue(ctx, consumer, ent, sub, product, endDate)
		s.Require().NoError(err)
		serial := new(big.Int).Set(cert.Serial)

		s.Require().NoError(s.service.Revoke(ctx, ent))

		revoked, err := s.ledger.IsRevoked(ctx, serial)
		s.NoError(err)
		s.True(revoked)

		remaining, err := s.certs.ListByEntitlement(ctx, ent.ID)
		s.NoError(err)
		s.Empty(remaining)
		s.Empty(ent.Certificates)

		listed, err := s.service.RevokedSerials(ctx)
		s.NoError(err)
		s.Require().Len(listed, 1)
		s.Zero(listed[0].Cmp(serial))
	})

	s.Run("revoked serials are never reissued", func() {
		consumer, sub, product := issueFixture()
		ent := &models.Entitlement{ID: "ent-s", ConsumerUUID: consumer.UUID, Quantity: 1}

		first, err := s.service.Issue(ctx, consumer, ent, sub, product, endDate)
		s.Require().NoError(err)
		firstSerial := new(big.Int).Set(first.Serial)
		s.Require().NoError(s.service.Revoke(ctx, ent))

		second, err := s.service.Issue(ctx, consumer, ent, sub, product, endDate)
		s.Require().NoError(err)
		s.Positive(second.Serial.Cmp(firstSerial), "counter keeps climbing past revoked serials")
	})

	s.Run("revoking an entitlement with no certificates is a no-op", func() {
		s.NoError(s.service.Revoke(ctx, &models.Entitlement{ID: "ent-empty"}))
	})
}
