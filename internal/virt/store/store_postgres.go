package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"charter/internal/consumer/models"
)

// PostgresStore persists consumers, their facts and guest claims in
// PostgreSQL. This store is pure I/O; resolver semantics live in the service.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed consumer store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const consumerColumns = `c.id, c.uuid, c.name, c.owner_id, c.type, c.hypervisor_id, c.last_checkin, c.updated`

func (s *PostgresStore) HostsClaimingGuests(ctx context.Context, ownerID string, guestIDsLower []string) ([]*models.Consumer, error) {
	if len(guestIDsLower) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + consumerColumns + `
		FROM consumers c
		INNER JOIN guest_ids g ON g.consumer_id = c.id
		WHERE c.owner_id = $1 AND g.guest_id_lower = ANY($2)
		ORDER BY c.updated DESC
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID, pq.Array(guestIDsLower))
	if err != nil {
		return nil, fmt.Errorf("hosts claiming guests: %w", err)
	}
	defer rows.Close()

	hosts, err := scanConsumers(rows)
	if err != nil {
		return nil, fmt.Errorf("hosts claiming guests: %w", err)
	}
	if err := s.loadGuestIDs(ctx, hosts); err != nil {
		return nil, fmt.Errorf("hosts claiming guests: %w", err)
	}
	if err := s.loadFacts(ctx, hosts); err != nil {
		return nil, fmt.Errorf("hosts claiming guests: %w", err)
	}
	return hosts, nil
}

func (s *PostgresStore) GuestByVirtUUID(ctx context.Context, ownerID string, uuidsLower []string) (*models.Consumer, error) {
	if len(uuidsLower) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + consumerColumns + `
		FROM consumers c
		INNER JOIN consumer_facts f ON f.consumer_id = c.id
		WHERE f.mapkey = $1 AND f.element_lower = ANY($2) AND c.owner_id = $3
		ORDER BY c.updated DESC
		LIMIT 1
	`
	rows, err := s.db.QueryContext(ctx, query, models.VirtUUIDFact, pq.Array(uuidsLower), ownerID)
	if err != nil {
		return nil, fmt.Errorf("guest by virt uuid: %w", err)
	}
	defer rows.Close()

	guests, err := scanConsumers(rows)
	if err != nil {
		return nil, fmt.Errorf("guest by virt uuid: %w", err)
	}
	if len(guests) == 0 {
		return nil, nil
	}
	if err := s.loadFacts(ctx, guests); err != nil {
		return nil, fmt.Errorf("guest by virt uuid: %w", err)
	}
	return guests[0], nil
}

func (s *PostgresStore) HypervisorsByIDs(ctx context.Context, ownerID string, hypervisorIDsLower []string) ([]*models.Consumer, error) {
	if len(hypervisorIDsLower) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + consumerColumns + `
		FROM consumers c
		WHERE c.owner_id = $1 AND lower(c.hypervisor_id) = ANY($2)
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID, pq.Array(hypervisorIDsLower))
	if err != nil {
		return nil, fmt.Errorf("hypervisors by ids: %w", err)
	}
	defer rows.Close()

	matches, err := scanConsumers(rows)
	if err != nil {
		return nil, fmt.Errorf("hypervisors by ids: %w", err)
	}
	if err := s.loadGuestIDs(ctx, matches); err != nil {
		return nil, fmt.Errorf("hypervisors by ids: %w", err)
	}
	return matches, nil
}

// SaveConsumer upserts the consumer row and replaces its facts and guest list
// wholesale inside one transaction.
func (s *PostgresStore) SaveConsumer(ctx context.Context, consumer *models.Consumer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save consumer: %w", err)
	}
	defer tx.Rollback()

	var hypervisorID any
	if consumer.HypervisorID != "" {
		hypervisorID = consumer.HypervisorID
	}
	var lastCheckin any
	if !consumer.LastCheckin.IsZero() {
		lastCheckin = consumer.LastCheckin
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO consumers (uuid, name, owner_id, type, hypervisor_id, last_checkin, updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (uuid) DO UPDATE SET
			name = EXCLUDED.name,
			owner_id = EXCLUDED.owner_id,
			type = EXCLUDED.type,
			hypervisor_id = EXCLUDED.hypervisor_id,
			last_checkin = EXCLUDED.last_checkin,
			updated = EXCLUDED.updated
		RETURNING id
	`, consumer.UUID, consumer.Name, consumer.OwnerID, string(consumer.Type),
		hypervisorID, lastCheckin, consumer.Updated).Scan(&consumer.ID)
	if err != nil {
		return fmt.Errorf("save consumer: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM consumer_facts WHERE consumer_id = $1`, consumer.ID); err != nil {
		return fmt.Errorf("save consumer facts: %w", err)
	}
	for key, value := range consumer.Facts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO consumer_facts (consumer_id, mapkey, element, element_lower)
			VALUES ($1, $2, $3, $4)
		`, consumer.ID, key, value, strings.ToLower(value))
		if err != nil {
			return fmt.Errorf("save consumer facts: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM guest_ids WHERE consumer_id = $1`, consumer.ID); err != nil {
		return fmt.Errorf("save guest ids: %w", err)
	}
	for _, g := range consumer.GuestIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO guest_ids (consumer_id, guest_id, guest_id_lower, updated)
			VALUES ($1, $2, $3, $4)
		`, consumer.ID, g.GuestID, g.GuestIDLower, g.Updated)
		if err != nil {
			return fmt.Errorf("save guest ids: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save consumer: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteConsumer(ctx context.Context, consumer *models.Consumer, tombstone models.DeletedConsumer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete consumer: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM consumers WHERE uuid = $1`, consumer.UUID); err != nil {
		return fmt.Errorf("delete consumer: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO deleted_consumers (consumer_uuid, owner_id, deleted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (consumer_uuid) DO UPDATE SET deleted_at = EXCLUDED.deleted_at
	`, tombstone.ConsumerUUID, tombstone.OwnerID, tombstone.DeletedAt)
	if err != nil {
		return fmt.Errorf("delete consumer tombstone: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete consumer: %w", err)
	}
	return nil
}

func scanConsumers(rows *sql.Rows) ([]*models.Consumer, error) {
	var consumers []*models.Consumer
	for rows.Next() {
		var (
			c            models.Consumer
			consumerType string
			hypervisorID sql.NullString
			lastCheckin  sql.NullTime
		)
		err := rows.Scan(&c.ID, &c.UUID, &c.Name, &c.OwnerID, &consumerType,
			&hypervisorID, &lastCheckin, &c.Updated)
		if err != nil {
			return nil, err
		}
		c.Type = models.Type(consumerType)
		c.HypervisorID = hypervisorID.String
		if lastCheckin.Valid {
			c.LastCheckin = lastCheckin.Time
		}
		c.Facts = make(map[string]string)
		consumers = append(consumers, &c)
	}
	return consumers, rows.Err()
}

func (s *PostgresStore) loadGuestIDs(ctx context.Context, consumers []*models.Consumer) error {
	byID := indexByID(consumers)
	if len(byID) == 0 {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT consumer_id, guest_id, guest_id_lower, updated
		FROM guest_ids
		WHERE consumer_id = ANY($1)
	`, pq.Array(idsOf(byID)))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			consumerID int64
			g          models.GuestID
			updated    time.Time
		)
		if err := rows.Scan(&consumerID, &g.GuestID, &g.GuestIDLower, &updated); err != nil {
			return err
		}
		g.Updated = updated
		if c, ok := byID[consumerID]; ok {
			c.GuestIDs = append(c.GuestIDs, g)
		}
	}
	return rows.Err()
}

func (s *PostgresStore) loadFacts(ctx context.Context, consumers []*models.Consumer) error {
	byID := indexByID(consumers)
	if len(byID) == 0 {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT consumer_id, mapkey, element
		FROM consumer_facts
		WHERE consumer_id = ANY($1)
	`, pq.Array(idsOf(byID)))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			consumerID int64
			key, value string
		)
		if err := rows.Scan(&consumerID, &key, &value); err != nil {
			return err
		}
		if c, ok := byID[consumerID]; ok {
			c.Facts[key] = value
		}
	}
	return rows.Err()
}

// indexByID collapses duplicate candidate rows so related records are loaded
// once per consumer even when a host matched several identifiers.
func indexByID(consumers []*models.Consumer) map[int64]*models.Consumer {
	byID := make(map[int64]*models.Consumer, len(consumers))
	for _, c := range consumers {
		if _, ok := byID[c.ID]; !ok {
			byID[c.ID] = c
		}
	}
	return byID
}

func idsOf(byID map[int64]*models.Consumer) []int64 {
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	return ids
}
