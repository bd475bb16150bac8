package events

import "time"

// Event types emitted by the certificate pipeline.
const (
	TypeCertificateIssued  = "entitlement.certificate.issued"
	TypeCertificateRevoked = "entitlement.certificate.revoked"
)

// Event is an entitlement lifecycle notification. Events are best-effort:
// downstream systems reconcile from primary storage, so a lost event is an
// inconvenience, not corruption.
type Event struct {
	Type          string    `json:"type"`
	OwnerID       string    `json:"ownerId,omitempty"`
	ConsumerUUID  string    `json:"consumerUuid,omitempty"`
	EntitlementID string    `json:"entitlementId"`
	Serial        string    `json:"serial,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
