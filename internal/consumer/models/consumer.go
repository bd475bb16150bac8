package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// FactValueMaxLength caps stored fact values; longer values are truncated
// rather than rejected because reporting agents cannot be trusted to bound
// their output.
const FactValueMaxLength = 255

// VirtUUIDFact is the fact key a virtual guest reports for its own VM
// identifier. A consumer carrying this fact is a guest and can never act as a
// host.
const VirtUUIDFact = "virt.uuid"

// Type classifies a registered consumer.
type Type string

const (
	TypeSystem    Type = "system"
	TypePerson    Type = "person"
	TypeDomain    Type = "domain"
	TypeInternal  Type = "internal"
)

// Consumer is a registered system, person, domain, or administrative
// principal under an owning organization.
type Consumer struct {
	ID           int64
	UUID         string
	Name         string
	OwnerID      string
	Type         Type
	Facts        map[string]string
	HypervisorID string
	LastCheckin  time.Time
	Updated      time.Time

	// GuestIDs is owned exclusively by this consumer and replaced wholesale
	// whenever the host re-reports its guest list.
	GuestIDs []GuestID
}

// New registers a consumer with a fresh UUID.
func New(name, ownerID string, t Type) *Consumer {
	now := time.Now().UTC()
	return &Consumer{
		UUID:    uuid.NewString(),
		Name:    name,
		OwnerID: ownerID,
		Type:    t,
		Facts:   make(map[string]string),
		Updated: now,
	}
}

// Fact returns the value for key, or "" when unset.
func (c *Consumer) Fact(key string) string {
	return c.Facts[key]
}

// SetFact stores a fact value, truncating it to FactValueMaxLength on a rune
// boundary so a multi-byte character is never split. Fact keys are case
// sensitive.
func (c *Consumer) SetFact(key, value string) {
	if c.Facts == nil {
		c.Facts = make(map[string]string)
	}
	if len(value) > FactValueMaxLength {
		cut := FactValueMaxLength
		for cut > 0 && !utf8.RuneStart(value[cut]) {
			cut--
		}
		value = value[:cut]
	}
	c.Facts[key] = value
}

// IsGuest reports whether this consumer is itself a virtual guest.
func (c *Consumer) IsGuest() bool {
	return strings.TrimSpace(c.Fact(VirtUUIDFact)) != ""
}

// Checkin records client contact and bumps the update timestamp.
func (c *Consumer) Checkin(now time.Time) {
	c.LastCheckin = now
	c.Updated = now
}

// SetGuestIDs replaces the reported guest list wholesale and bumps the update
// timestamp, making this consumer the most recent claimant of every listed
// guest.
func (c *Consumer) SetGuestIDs(now time.Time, guestIDs ...string) {
	replaced := make([]GuestID, 0, len(guestIDs))
	for _, g := range guestIDs {
		replaced = append(replaced, GuestID{
			GuestID:      g,
			GuestIDLower: strings.ToLower(g),
			Updated:      now,
		})
	}
	c.GuestIDs = replaced
	c.Updated = now
}

// Tombstone produces the deletion record left behind when this consumer is
// removed, so cross-instance reconciliation can detect the deletion later.
func (c *Consumer) Tombstone(now time.Time) DeletedConsumer {
	return DeletedConsumer{
		ConsumerUUID: c.UUID,
		OwnerID:      c.OwnerID,
		DeletedAt:    now,
	}
}

// GuestID associates a host consumer with a virtual machine identifier it
// last reported. The lowercase form is precomputed for case insensitive
// matching.
type GuestID struct {
	GuestID      string
	GuestIDLower string
	Updated      time.Time
}

// DeletedConsumer is the tombstone left by a deleted consumer.
type DeletedConsumer struct {
	ConsumerUUID string
	OwnerID      string
	DeletedAt    time.Time
}
