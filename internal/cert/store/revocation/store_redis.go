package revocation

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/redis/go-redis/v9"
)

// revokedSerialsKey is the Redis set holding every revoked serial. No TTL:
// the ledger is append-only and must remain queryable for revocation-list
// publication.
const revokedSerialsKey = "crl:serials"

// RedisLedger is a Redis-backed revocation ledger for distributed
// deployments where multiple instances share revocation state.
type RedisLedger struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed revocation ledger.
func NewRedis(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (l *RedisLedger) Record(ctx context.Context, serial *big.Int) error {
	if err := l.client.SAdd(ctx, revokedSerialsKey, serial.String()).Err(); err != nil {
		return fmt.Errorf("record revoked serial: %w", err)
	}
	return nil
}

func (l *RedisLedger) IsRevoked(ctx context.Context, serial *big.Int) (bool, error) {
	revoked, err := l.client.SIsMember(ctx, revokedSerialsKey, serial.String()).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked serial: %w", err)
	}
	return revoked, nil
}

func (l *RedisLedger) ListRevoked(ctx context.Context) ([]*big.Int, error) {
	members, err := l.client.SMembers(ctx, revokedSerialsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list revoked serials: %w", err)
	}

	out := make([]*big.Int, 0, len(members))
	for _, m := range members {
		n, ok := new(big.Int).SetString(m, 10)
		if !ok {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out, nil
}
