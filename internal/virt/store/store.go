package store

import (
	"context"

	"charter/internal/consumer/models"
)

// Store is the lookup surface the guest/host resolver needs. Implementations
// are pure I/O; matching semantics beyond what the queries express (identifier
// expansion, chunking, first-write-wins merging) live in the resolver service.
type Store interface {
	// HostsClaimingGuests returns host consumers in the owner's organization
	// holding a guest claim whose lowercase form is in guestIDsLower, ordered
	// by the host's updated timestamp descending. A host matching several
	// identifiers may appear more than once. Guest lists are loaded eagerly.
	HostsClaimingGuests(ctx context.Context, ownerID string, guestIDsLower []string) ([]*models.Consumer, error)

	// GuestByVirtUUID returns the most recently updated consumer in the
	// owner's organization whose virt.uuid fact lowercase form is in
	// uuidsLower, or nil when none matches.
	GuestByVirtUUID(ctx context.Context, ownerID string, uuidsLower []string) (*models.Consumer, error)

	// HypervisorsByIDs returns consumers in the owner's organization whose
	// case-folded hypervisor identifier is in hypervisorIDsLower.
	HypervisorsByIDs(ctx context.Context, ownerID string, hypervisorIDsLower []string) ([]*models.Consumer, error)

	// SaveConsumer creates or replaces a consumer record with its facts and
	// guest list.
	SaveConsumer(ctx context.Context, consumer *models.Consumer) error

	// DeleteConsumer removes a consumer, leaving the given tombstone behind.
	DeleteConsumer(ctx context.Context, consumer *models.Consumer, tombstone models.DeletedConsumer) error
}
