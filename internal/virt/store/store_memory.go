package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"charter/internal/consumer/models"
)

// InMemoryStore keeps consumers in process memory. Used by unit tests and by
// deployments without a configured database.
type InMemoryStore struct {
	mu        sync.RWMutex
	consumers map[string]*models.Consumer // keyed by consumer UUID
	deleted   map[string]models.DeletedConsumer
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		consumers: make(map[string]*models.Consumer),
		deleted:   make(map[string]models.DeletedConsumer),
	}
}

func (s *InMemoryStore) SaveConsumer(_ context.Context, consumer *models.Consumer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumers[consumer.UUID] = consumer
	return nil
}

func (s *InMemoryStore) DeleteConsumer(_ context.Context, consumer *models.Consumer, tombstone models.DeletedConsumer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.consumers, consumer.UUID)
	s.deleted[tombstone.ConsumerUUID] = tombstone
	return nil
}

// Tombstone returns the deletion record for a consumer UUID, if any.
func (s *InMemoryStore) Tombstone(uuid string) (models.DeletedConsumer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.deleted[uuid]
	return t, ok
}

func (s *InMemoryStore) HostsClaimingGuests(_ context.Context, ownerID string, guestIDsLower []string) ([]*models.Consumer, error) {
	wanted := toSet(guestIDsLower)

	s.mu.RLock()
	var hosts []*models.Consumer
	for _, c := range s.consumers {
		if c.OwnerID != ownerID {
			continue
		}
		for _, g := range c.GuestIDs {
			if _, ok := wanted[g.GuestIDLower]; ok {
				hosts = append(hosts, c)
			}
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(hosts, func(i, j int) bool {
		return hosts[i].Updated.After(hosts[j].Updated)
	})
	return hosts, nil
}

func (s *InMemoryStore) GuestByVirtUUID(_ context.Context, ownerID string, uuidsLower []string) (*models.Consumer, error) {
	wanted := toSet(uuidsLower)

	s.mu.RLock()
	defer s.mu.RUnlock()
	var match *models.Consumer
	for _, c := range s.consumers {
		if c.OwnerID != ownerID {
			continue
		}
		virtUUID := strings.ToLower(c.Fact(models.VirtUUIDFact))
		if virtUUID == "" {
			continue
		}
		if _, ok := wanted[virtUUID]; !ok {
			continue
		}
		if match == nil || c.Updated.After(match.Updated) {
			match = c
		}
	}
	return match, nil
}

func (s *InMemoryStore) HypervisorsByIDs(_ context.Context, ownerID string, hypervisorIDsLower []string) ([]*models.Consumer, error) {
	wanted := toSet(hypervisorIDsLower)

	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []*models.Consumer
	for _, c := range s.consumers {
		if c.OwnerID != ownerID || c.HypervisorID == "" {
			continue
		}
		if _, ok := wanted[strings.ToLower(c.HypervisorID)]; ok {
			matches = append(matches, c)
		}
	}
	return matches, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
