package virt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"charter/internal/consumer/models"
	"charter/internal/virt/store"
	"charter/pkg/sentinel"
)

type ResolverSuite struct {
	suite.Suite
	store   *countingStore
	service *Service
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.store = &countingStore{Store: store.NewMemory()}

	var err error
	s.service, err = New(s.store, testLogger(), nil)
	s.Require().NoError(err)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingStore tracks how often the backend is hit so short-circuit and
// chunking behavior can be asserted. Chunked queries run concurrently, so the
// counter is atomic.
type countingStore struct {
	store.Store
	calls atomic.Int64
}

func (c *countingStore) HostsClaimingGuests(ctx context.Context, ownerID string, guestIDsLower []string) ([]*models.Consumer, error) {
	c.calls.Add(1)
	return c.Store.HostsClaimingGuests(ctx, ownerID, guestIDsLower)
}

const owner = "org-1"

func (s *ResolverSuite) newHost(name string, updated time.Time, guestIDs ...string) *models.Consumer {
	host := models.New(name, owner, models.TypeSystem)
	host.SetGuestIDs(updated, guestIDs...)
	host.Updated = updated
	s.Require().NoError(s.store.SaveConsumer(context.Background(), host))
	return host
}

func (s *ResolverSuite) newGuest(name, virtUUID string, updated time.Time) *models.Consumer {
	guest := models.New(name, owner, models.TypeSystem)
	guest.SetFact(models.VirtUUIDFact, virtUUID)
	guest.Updated = updated
	s.Require().NoError(s.store.SaveConsumer(context.Background(), guest))
	return guest
}

func (s *ResolverSuite) TestFindHost() {
	ctx := context.Background()

	s.Run("empty guest id is rejected", func() {
		_, err := s.service.FindHost(ctx, owner, "")
		s.ErrorIs(err, sentinel.ErrBadInput)
	})

	s.Run("no claiming host yields nil without error", func() {
		host, err := s.service.FindHost(ctx, owner, "deadbeef-0000-0000-0000-000000000000")
		s.NoError(err)
		s.Nil(host)
	})

	s.Run("most recently updated host wins", func() {
		guest := "78d74d4c-d100-4c64-b0cd-2949b29418f2"
		s.newHost("stale", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), guest)
		fresh := s.newHost("fresh", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), guest)

		host, err := s.service.FindHost(ctx, owner, guest)
		s.NoError(err)
		s.Require().NotNil(host)
		s.Equal(fresh.UUID, host.UUID)
	})

	s.Run("case and endianness differences still match", func() {
		// Host reported the big endian uppercase form, lookup uses the
		// little endian lowercase form the guest itself reports.
		host := s.newHost("esx-1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			"4C4DD778-00D1-644C-AAAA-2949B29418F2")

		found, err := s.service.FindHost(ctx, owner, "78d74d4c-d100-4c64-aaaa-2949b29418f2")
		s.NoError(err)
		s.Require().NotNil(found)
		s.Equal(host.UUID, found.UUID)
	})

	s.Run("other owners never match", func() {
		guest := "11111111-2222-3333-4444-555555555555"
		s.newHost("mine", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), guest)

		host, err := s.service.FindHost(ctx, "org-other", guest)
		s.NoError(err)
		s.Nil(host)
	})
}

func (s *ResolverSuite) TestMapGuestsByOwner() {
	ctx := context.Background()

	s.Run("empty input short-circuits without querying storage", func() {
		result, err := s.service.MapGuestsByOwner(ctx, owner, nil)
		s.NoError(err)
		s.Empty(result)
		s.Zero(s.store.calls.Load())
	})

	s.Run("one entry per guest key bound to the most recent host", func() {
		guest := "78d74d4c-d100-4c64-b0cd-2949b29418f2"
		s.newHost("stale", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), guest)
		fresh := s.newHost("fresh", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), guest)

		result, err := s.service.MapGuestsByOwner(ctx, owner, []string{guest})
		s.NoError(err)
		s.Require().Contains(result, guest)
		s.Equal(fresh.UUID, result[guest].UUID)
	})

	s.Run("unmatched identifiers are absent, not errors", func() {
		result, err := s.service.MapGuestsByOwner(ctx, owner, []string{
			"deadbeef-dead-beef-dead-beefdeadbeef",
		})
		s.NoError(err)
		s.Empty(result)
	})

	s.Run("winning host is reachable under each of its reported encodings", func() {
		reported := "AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE"
		host := s.newHost("esx-2", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), reported)

		result, err := s.service.MapGuestsByOwner(ctx, owner, []string{"aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"})
		s.NoError(err)
		s.Require().Contains(result, "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
		s.Equal(host.UUID, result["aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"].UUID)
	})
}

// Crossing the block boundary makes candidates for the same guest key come
// back from different queries, in whatever order the blocks complete; recency
// must still decide the winner.
func (s *ResolverSuite) TestMapGuestsByOwnerAcrossBlocks() {
	ctx := context.Background()

	stale := s.newHost("reported-first", time.Unix(10, 0).UTC(), "aaaa-guest", "shared-guest")
	fresh := s.newHost("reported-later", time.Unix(20, 0).UTC(), "bbbb-guest", "shared-guest")

	// stale's identifier lands in the first block, fresh's in the second, so
	// an unsorted merge would let the staler claimant write "shared-guest"
	// first.
	ids := make([]string, 0, inBlockSize+1)
	ids = append(ids, "aaaa-guest")
	for i := 0; i < inBlockSize-1; i++ {
		ids = append(ids, fmt.Sprintf("padding-%04d", i))
	}
	ids = append(ids, "bbbb-guest")

	result, err := s.service.MapGuestsByOwner(ctx, owner, ids)
	s.NoError(err)
	s.Equal(int64(2), s.store.calls.Load(), "identifiers split across two query blocks")

	s.Require().Contains(result, "shared-guest")
	s.Equal(fresh.UUID, result["shared-guest"].UUID,
		"most recent claimant wins even when its block is queried last")
	s.Equal(stale.UUID, result["aaaa-guest"].UUID)
	s.Equal(fresh.UUID, result["bbbb-guest"].UUID)
}

func (s *ResolverSuite) TestMapHostsByHypervisorID() {
	ctx := context.Background()

	s.Run("empty input yields empty mapping", func() {
		result, err := s.service.MapHostsByHypervisorID(ctx, owner, nil)
		s.NoError(err)
		s.Empty(result)
	})

	s.Run("matching is case folded", func() {
		hv := models.New("hv-1", owner, models.TypeSystem)
		hv.HypervisorID = "ESX-Cluster-01"
		s.Require().NoError(s.store.SaveConsumer(ctx, hv))

		result, err := s.service.MapHostsByHypervisorID(ctx, owner, []string{"esx-cluster-01"})
		s.NoError(err)
		s.Require().Contains(result, "esx-cluster-01")
		s.Equal(hv.UUID, result["esx-cluster-01"].UUID)
	})

	s.Run("unknown hypervisors are absent", func() {
		result, err := s.service.MapHostsByHypervisorID(ctx, owner, []string{"no-such-hv"})
		s.NoError(err)
		s.Empty(result)
	})
}

func (s *ResolverSuite) TestGuestsOf() {
	ctx := context.Background()

	s.Run("virtual guests cannot have guests", func() {
		host := models.New("nested", owner, models.TypeSystem)
		host.SetFact(models.VirtUUIDFact, "99999999-8888-7777-6666-555555555555")

		_, err := s.service.GuestsOf(ctx, host)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("superseded claims are excluded, current claims included", func() {
		guestUUID := "78d74d4c-d100-4c64-b0cd-2949b29418f2"
		// C1 reported the guest at t=10, C2 re-reported it (case differing)
		// at t=20; C2 is now authoritative.
		c1 := s.newHost("c1", time.Unix(10, 0).UTC(), guestUUID)
		c2 := s.newHost("c2", time.Unix(20, 0).UTC(), "78D74D4C-D100-4C64-B0CD-2949B29418F2")
		guest := s.newGuest("the-guest", guestUUID, time.Unix(15, 0).UTC())

		current, err := s.service.FindHost(ctx, owner, guestUUID)
		s.NoError(err)
		s.Require().NotNil(current)
		s.Equal(c2.UUID, current.UUID)

		c1Guests, err := s.service.GuestsOf(ctx, c1)
		s.NoError(err)
		s.Empty(c1Guests)

		c2Guests, err := s.service.GuestsOf(ctx, c2)
		s.NoError(err)
		s.Require().Len(c2Guests, 1)
		s.Equal(guest.UUID, c2Guests[0].UUID)
	})

	s.Run("claims with no registered guest consumer contribute nothing", func() {
		host := s.newHost("lonely", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			"0a0a0a0a-0b0b-0c0c-0d0d-0e0e0e0e0e0e")

		guests, err := s.service.GuestsOf(ctx, host)
		s.NoError(err)
		s.Empty(guests)
	})
}
