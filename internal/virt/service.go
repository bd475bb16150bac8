// Package virt resolves which host consumer currently owns a virtual guest.
// Hypervisors report guest identifiers imprecisely (mixed endianness, mixed
// case), and a guest can be re-reported by a different host after migration,
// so every lookup expands the identifier into its possible representations
// and the most recently updated host wins.
package virt

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"charter/internal/consumer/models"
	"charter/internal/virt/metrics"
	"charter/internal/virt/store"
	"charter/internal/virt/uuidutil"
	"charter/pkg/sentinel"
)

// inBlockSize caps the number of identifiers bound into a single query so
// bulk lookups stay under backend IN-list limits.
const inBlockSize = 1000

// Service implements guest/host resolution over a consumer store.
type Service struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// New constructs the resolver service.
func New(st store.Store, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("consumer store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{
		store:   st,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("charter/virt"),
	}, nil
}

// FindHost returns the host consumer that most recently claimed the guest
// identifier within the owner's organization, or nil when no host claims it.
// Multiple hosts may historically have reported the same guest; the newest
// claim is authoritative.
func (s *Service) FindHost(ctx context.Context, ownerID, guestID string) (*models.Consumer, error) {
	if guestID == "" {
		return nil, fmt.Errorf("guest id is required: %w", sentinel.ErrBadInput)
	}
	if s.metrics != nil {
		s.metrics.HostLookups.Inc()
	}

	hosts, err := s.store.HostsClaimingGuests(ctx, ownerID, expandLower(guestID))
	if err != nil {
		return nil, fmt.Errorf("find host for guest %q: %w", guestID, err)
	}
	if len(hosts) == 0 {
		if s.metrics != nil {
			s.metrics.HostLookupMisses.Inc()
		}
		return nil, nil
	}
	return hosts[0], nil
}

// MapGuestsByOwner resolves a batch of guest identifiers to their current
// hosts. The result maps every lowercase guest fact of each winning host, so
// callers can look up by any encoding a host reported. Unmatched identifiers
// are simply absent.
func (s *Service) MapGuestsByOwner(ctx context.Context, ownerID string, guestIDs []string) (map[string]*models.Consumer, error) {
	result := make(map[string]*models.Consumer)
	if len(guestIDs) == 0 {
		return result, nil
	}

	ctx, span := s.tracer.Start(ctx, "virt.MapGuestsByOwner")
	defer span.End()
	start := time.Now()
	if s.metrics != nil {
		s.metrics.BulkMapRequests.Inc()
		defer func() {
			s.metrics.BulkMapDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
		}()
	}

	expanded := make([]string, 0, len(guestIDs)*4)
	for _, g := range guestIDs {
		expanded = append(expanded, expandLower(g)...)
	}
	expanded = dedupe(expanded)

	candidates, err := s.hostsInBlocks(ctx, ownerID, expanded)
	if err != nil {
		return nil, fmt.Errorf("map guests by owner: %w", err)
	}

	// Chunks ran concurrently, so re-establish the single-query ordering
	// before the first-write-wins merge: the most recently updated host must
	// win per guest key.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Updated.After(candidates[j].Updated)
	})

	for _, host := range candidates {
		for _, g := range host.GuestIDs {
			key := g.GuestIDLower
			if key == "" {
				key = strings.ToLower(g.GuestID)
			}
			if _, ok := result[key]; !ok {
				result[key] = host
			}
			// Already present means a staler host reported the same guest
			// (re-registration); safe to ignore.
		}
	}
	return result, nil
}

// MapHostsByHypervisorID resolves hypervisor identifiers to their registered
// consumers. Hypervisor identifiers are expected unique per owner, so no
// recency tie-break applies; matching is case-folded. An identifier absent
// from the result has no registered consumer yet.
func (s *Service) MapHostsByHypervisorID(ctx context.Context, ownerID string, hypervisorIDs []string) (map[string]*models.Consumer, error) {
	result := make(map[string]*models.Consumer)
	if len(hypervisorIDs) == 0 {
		return result, nil
	}

	lowered := make([]string, 0, len(hypervisorIDs))
	for _, h := range hypervisorIDs {
		lowered = append(lowered, strings.ToLower(h))
	}
	lowered = dedupe(lowered)

	for _, block := range blocks(lowered, inBlockSize) {
		matches, err := s.store.HypervisorsByIDs(ctx, ownerID, block)
		if err != nil {
			return nil, fmt.Errorf("map hosts by hypervisor id: %w", err)
		}
		for _, c := range matches {
			result[strings.ToLower(c.HypervisorID)] = c
		}
	}
	return result, nil
}

// GuestsOf returns the registered guest consumers of a host. Host claims are
// not invalidated eagerly when another host re-reports a guest, so each claim
// is re-validated against FindHost on read; superseded claims are skipped.
func (s *Service) GuestsOf(ctx context.Context, host *models.Consumer) ([]*models.Consumer, error) {
	if host == nil {
		return nil, fmt.Errorf("host consumer is required: %w", sentinel.ErrBadInput)
	}
	if host.IsGuest() {
		return nil, fmt.Errorf("consumer %s is a virtual guest and cannot have guests: %w",
			host.UUID, sentinel.ErrInvalidState)
	}

	var guests []*models.Consumer
	for _, claim := range host.GuestIDs {
		current, err := s.FindHost(ctx, host.OwnerID, claim.GuestID)
		if err != nil {
			return nil, err
		}
		if current == nil || current.UUID != host.UUID {
			continue
		}
		guest, err := s.store.GuestByVirtUUID(ctx, host.OwnerID, expandLower(claim.GuestID))
		if err != nil {
			return nil, fmt.Errorf("guests of %s: %w", host.UUID, err)
		}
		if guest != nil {
			guests = append(guests, guest)
		}
	}
	return guests, nil
}

// hostsInBlocks fans the expanded identifier set out over block-sized
// queries. Blocks run concurrently; callers must not rely on result order.
func (s *Service) hostsInBlocks(ctx context.Context, ownerID string, idsLower []string) ([]*models.Consumer, error) {
	chunks := blocks(idsLower, inBlockSize)
	results := make([][]*models.Consumer, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			hosts, err := s.store.HostsClaimingGuests(ctx, ownerID, chunk)
			if err != nil {
				return err
			}
			results[i] = hosts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []*models.Consumer
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}

func expandLower(id string) []string {
	reps := uuidutil.PossibleRepresentations(id)
	lowered := make([]string, 0, len(reps))
	for _, r := range reps {
		lowered = append(lowered, strings.ToLower(r))
	}
	return dedupe(lowered)
}

func blocks(values []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		out = append(out, values[start:end])
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
