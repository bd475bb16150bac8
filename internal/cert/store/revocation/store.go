// Package revocation tracks certificate serials that are no longer valid.
// The ledger is append-only: certificate rows may be deleted from primary
// storage, but every revoked serial stays queryable for revocation-list
// publication and is never reassigned.
package revocation

import (
	"context"
	"math/big"
)

// Ledger records revoked certificate serials.
type Ledger interface {
	// Record marks a serial revoked. Recording the same serial twice is a
	// no-op, not an error.
	Record(ctx context.Context, serial *big.Int) error

	// IsRevoked reports whether a serial has been revoked.
	IsRevoked(ctx context.Context, serial *big.Int) (bool, error)

	// ListRevoked returns every revoked serial, for revocation-list
	// generation.
	ListRevoked(ctx context.Context) ([]*big.Int, error)
}
