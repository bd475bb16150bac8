package models

import (
	"math/big"
	"time"
)

// AttrType is the product attribute that distinguishes marketing aggregates
// from products that carry content of their own.
const (
	AttrType      = "type"
	TypeMarketing = "MKT"
)

// Content is a repository definition delivered by a product.
type Content struct {
	ID      string
	Name    string
	Label   string
	Vendor  string
	URL     string
	GpgURL  string
	Enabled bool
}

// Product describes what a subscription grants. A marketing product has no
// content of its own; its value is carried entirely by the provided child
// products on the subscription.
type Product struct {
	ID         string
	Name       string
	Attributes map[string]string
	Content    []Content
}

// AttributeValue returns the attribute for key, or "" when unset.
func (p *Product) AttributeValue(key string) string {
	return p.Attributes[key]
}

// IsMarketing reports whether this product is an aggregate that contributes
// no content extensions of its own.
func (p *Product) IsMarketing() bool {
	return p.AttributeValue(AttrType) == TypeMarketing
}

// Subscription is the purchased block a pool is carved from. It references a
// top level product and the provided products that deliver its content.
type Subscription struct {
	ID             string
	Product        *Product
	Provided       []*Product
	Quantity       int64
	StartDate      time.Time
	EndDate        time.Time
	ContractNumber string
	AccountNumber  string
	OrderNumber    string
}

// Pool is an allocatable quantity of a subscription available for
// entitlement.
type Pool struct {
	ID             string
	OwnerID        string
	ProductID      string
	SubscriptionID string
	Quantity       int64
	Consumed       int64
	StartDate      time.Time
	EndDate        time.Time
}

// Entitlement grants quantity from a pool to a consumer. Its certificate set
// is append-only at the model level; revocation is the only operation that
// removes certificates, and it retains their serials.
type Entitlement struct {
	ID           string
	ConsumerUUID string
	PoolID       string
	Quantity     int
	Certificates []*EntitlementCertificate
}

// EntitlementCertificate is immutable once issued.
type EntitlementCertificate struct {
	Serial        *big.Int
	EntitlementID string
	KeyPEM        []byte
	CertPEM       []byte
	Created       time.Time
}

// CertificateSerial is the ledger row behind a certificate serial number.
// Serials are allocated monotonically and never reused, even across
// revocation; the collected flag tracks CRL publication.
type CertificateSerial struct {
	ID        int64
	Revoked   bool
	Collected bool
	Created   time.Time
}
