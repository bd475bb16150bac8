package store

import (
	"context"
	"crypto/rsa"
	"math/big"
	"sync"
	"time"

	"charter/internal/entitlement/models"
)

// InMemoryKeyPairStore keeps consumer key pairs in process memory.
type InMemoryKeyPairStore struct {
	mu   sync.Mutex
	keys map[string]*rsa.PrivateKey
}

// NewMemoryKeyPairStore constructs an empty key pair store.
func NewMemoryKeyPairStore() *InMemoryKeyPairStore {
	return &InMemoryKeyPairStore{keys: make(map[string]*rsa.PrivateKey)}
}

func (s *InMemoryKeyPairStore) EnsureKeyPair(_ context.Context, consumerUUID string, generate func() (*rsa.PrivateKey, error)) (*rsa.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.keys[consumerUUID]; ok {
		return key, nil
	}
	key, err := generate()
	if err != nil {
		return nil, err
	}
	s.keys[consumerUUID] = key
	return key, nil
}

// InMemorySerialStore allocates serials from an in-process counter.
type InMemorySerialStore struct {
	mu   sync.Mutex
	next int64
}

// NewMemorySerialStore constructs a serial store starting at 1.
func NewMemorySerialStore() *InMemorySerialStore {
	return &InMemorySerialStore{}
}

func (s *InMemorySerialStore) Next(_ context.Context) (*models.CertificateSerial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return &models.CertificateSerial{ID: s.next, Created: time.Now().UTC()}, nil
}

// InMemoryCertificateStore keeps issued certificates in process memory.
type InMemoryCertificateStore struct {
	mu    sync.RWMutex
	certs map[string]*models.EntitlementCertificate // keyed by serial string
}

// NewMemoryCertificateStore constructs an empty certificate store.
func NewMemoryCertificateStore() *InMemoryCertificateStore {
	return &InMemoryCertificateStore{certs: make(map[string]*models.EntitlementCertificate)}
}

func (s *InMemoryCertificateStore) Create(_ context.Context, cert *models.EntitlementCertificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certs[cert.Serial.String()] = cert
	return nil
}

func (s *InMemoryCertificateStore) ListByEntitlement(_ context.Context, entitlementID string) ([]*models.EntitlementCertificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.EntitlementCertificate
	for _, cert := range s.certs {
		if cert.EntitlementID == entitlementID {
			out = append(out, cert)
		}
	}
	return out, nil
}

func (s *InMemoryCertificateStore) Delete(_ context.Context, serial *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.certs, serial.String())
	return nil
}
