// Package extensions turns the product/subscription/entitlement/consumer
// graph behind a granted entitlement into the ordered set of named values
// embedded in the entitlement certificate.
package extensions

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	cmodels "charter/internal/consumer/models"
	"charter/internal/entitlement/models"
)

// oidRoot anchors every entitlement extension OID.
const oidRoot = "1.3.6.1.4.1.2312.9"

// Extension is a single named value destined for certificate encoding.
// Identity is the full OID plus value: two products may legitimately emit
// the same OID with different values, but exact duplicates collapse.
type Extension struct {
	OID   string
	Value string
}

// Set is an insertion-ordered, deduplicating extension collection. Order is
// preserved so reissued certificates stay byte-for-byte diffable; duplicates
// collapse so shared entries (e.g. an architecture constraint emitted by
// several provided products) do not bloat the encoded certificate.
type Set struct {
	order []Extension
	seen  map[Extension]struct{}
}

// NewSet returns an empty extension set.
func NewSet() *Set {
	return &Set{seen: make(map[Extension]struct{})}
}

// Add appends ext unless an identical entry is already present.
func (s *Set) Add(ext Extension) {
	if _, ok := s.seen[ext]; ok {
		return
	}
	s.seen[ext] = struct{}{}
	s.order = append(s.order, ext)
}

// AddAll appends each extension in order.
func (s *Set) AddAll(exts []Extension) {
	for _, e := range exts {
		s.Add(e)
	}
}

// List returns the extensions in insertion order.
func (s *Set) List() []Extension {
	return s.order
}

// Len returns the number of distinct extensions.
func (s *Set) Len() int {
	return len(s.order)
}

// ForEntitlement builds the full extension set for a granted entitlement:
// product identity and content for the top product and every provided
// product (marketing aggregates contribute no content of their own), then
// subscription, entitlement and consumer extensions in that fixed order.
// Deterministic given identical inputs.
func ForEntitlement(consumer *cmodels.Consumer, ent *models.Entitlement,
	sub *models.Subscription, product *models.Product) *Set {

	set := NewSet()
	visited := make(map[string]struct{})

	addProduct(set, product, visited)
	for _, provided := range sub.Provided {
		addProduct(set, provided, visited)
	}

	set.AddAll(SubscriptionExtensions(sub))
	set.AddAll(EntitlementExtensions(ent))
	set.AddAll(ConsumerExtensions(consumer))
	return set
}

// addProduct contributes a product's extensions once. A marketing aggregate
// keeps its identity extensions but emits no content of its own; that is
// carried by its provided children. The visited set guards against a product
// appearing twice in the reference list.
func addProduct(set *Set, product *models.Product, visited map[string]struct{}) {
	if product == nil {
		return
	}
	if _, ok := visited[product.ID]; ok {
		return
	}
	visited[product.ID] = struct{}{}

	set.AddAll(ProductExtensions(product))
	if product.IsMarketing() {
		return
	}
	set.AddAll(ContentExtensions(product))
}

// ProductExtensions emits the identity attributes of a product.
func ProductExtensions(product *models.Product) []Extension {
	base := fmt.Sprintf("%s.1.%s", oidRoot, oidComponent(product.ID))
	exts := []Extension{
		{OID: base + ".1", Value: product.Name},
	}
	if v := product.AttributeValue("version"); v != "" {
		exts = append(exts, Extension{OID: base + ".2", Value: v})
	}
	if v := product.AttributeValue("arch"); v != "" {
		exts = append(exts, Extension{OID: base + ".3", Value: v})
	}
	if v := product.AttributeValue("variant"); v != "" {
		exts = append(exts, Extension{OID: base + ".4", Value: v})
	}
	return exts
}

// ContentExtensions emits repository definitions for each content of a
// product.
func ContentExtensions(product *models.Product) []Extension {
	var exts []Extension
	for _, content := range product.Content {
		base := fmt.Sprintf("%s.2.%s.1", oidRoot, oidComponent(content.ID))
		exts = append(exts,
			Extension{OID: base + ".1", Value: content.Name},
			Extension{OID: base + ".2", Value: content.Label},
			Extension{OID: base + ".5", Value: content.Vendor},
			Extension{OID: base + ".6", Value: content.URL},
			Extension{OID: base + ".7", Value: content.GpgURL},
			Extension{OID: base + ".8", Value: boolValue(content.Enabled)},
		)
	}
	return exts
}

// SubscriptionExtensions emits contract and quantity terms of the order.
func SubscriptionExtensions(sub *models.Subscription) []Extension {
	base := oidRoot + ".4"
	exts := []Extension{
		{OID: base + ".1", Value: sub.Product.Name},
		{OID: base + ".2", Value: sub.OrderNumber},
		{OID: base + ".3", Value: sub.Product.ID},
		{OID: base + ".5", Value: strconv.FormatInt(sub.Quantity, 10)},
		{OID: base + ".6", Value: dateValue(sub.StartDate)},
		{OID: base + ".7", Value: dateValue(sub.EndDate)},
	}
	if sub.ContractNumber != "" {
		exts = append(exts, Extension{OID: base + ".10", Value: sub.ContractNumber})
	}
	if sub.AccountNumber != "" {
		exts = append(exts, Extension{OID: base + ".11", Value: sub.AccountNumber})
	}
	return exts
}

// EntitlementExtensions emits the grant's pool linkage and quantity.
func EntitlementExtensions(ent *models.Entitlement) []Extension {
	base := oidRoot + ".4"
	return []Extension{
		{OID: base + ".13", Value: strconv.Itoa(ent.Quantity)},
		{OID: base + ".14", Value: ent.PoolID},
	}
}

// ConsumerExtensions emits the identity of the consuming system.
func ConsumerExtensions(consumer *cmodels.Consumer) []Extension {
	return []Extension{
		{OID: oidRoot + ".5.1", Value: consumer.UUID},
	}
}

// oidComponent maps a domain identifier onto a numeric OID arc. Numeric
// identifiers pass through unchanged; anything else hashes to a stable
// 31-bit component.
func oidComponent(id string) string {
	if id != "" && allDigits(id) {
		return id
	}
	h := fnv.New32a()
	h.Write([]byte(id))
	return strconv.FormatUint(uint64(h.Sum32()&0x7fffffff), 10)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func boolValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func dateValue(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
