package extensions

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cmodels "charter/internal/consumer/models"
	"charter/internal/entitlement/models"
)

func TestSet(t *testing.T) {
	t.Run("preserves insertion order", func(t *testing.T) {
		set := NewSet()
		set.Add(Extension{OID: "1.2", Value: "b"})
		set.Add(Extension{OID: "1.1", Value: "a"})
		set.Add(Extension{OID: "1.3", Value: "c"})

		got := set.List()
		require.Len(t, got, 3)
		assert.Equal(t, "1.2", got[0].OID)
		assert.Equal(t, "1.1", got[1].OID)
		assert.Equal(t, "1.3", got[2].OID)
	})

	t.Run("exact duplicates collapse", func(t *testing.T) {
		set := NewSet()
		set.Add(Extension{OID: "1.1", Value: "x"})
		set.Add(Extension{OID: "1.1", Value: "x"})
		assert.Equal(t, 1, set.Len())
	})

	t.Run("same oid with different values coexists", func(t *testing.T) {
		set := NewSet()
		set.Add(Extension{OID: "1.1", Value: "x"})
		set.Add(Extension{OID: "1.1", Value: "y"})
		assert.Equal(t, 2, set.Len())
	})
}

func fixtureContent(id, name string) models.Content {
	return models.Content{
		ID:      id,
		Name:    name,
		Label:   name + "-label",
		Vendor:  "ACME",
		URL:     "https://cdn.example.com/" + name,
		GpgURL:  "https://cdn.example.com/" + name + "/gpg",
		Enabled: true,
	}
}

func fixture() (*cmodels.Consumer, *models.Entitlement, *models.Subscription, *models.Product) {
	osProduct := &models.Product{
		ID:         "1001",
		Name:       "ACME OS",
		Attributes: map[string]string{"arch": "x86_64", "version": "9"},
		Content:    []models.Content{fixtureContent("2001", "acme-os-rpms")},
	}
	repoProduct := &models.Product{
		ID:         "1002",
		Name:       "ACME Tools",
		Attributes: map[string]string{"arch": "x86_64"},
		Content:    []models.Content{fixtureContent("2002", "acme-tools-rpms")},
	}
	marketing := &models.Product{
		ID:         "900",
		Name:       "ACME Platform Bundle",
		Attributes: map[string]string{models.AttrType: models.TypeMarketing},
		Content:    []models.Content{fixtureContent("2999", "never-emitted")},
	}
	sub := &models.Subscription{
		ID:             "sub-1",
		Product:        marketing,
		Provided:       []*models.Product{osProduct, repoProduct},
		Quantity:       10,
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ContractNumber: "CN-42",
		OrderNumber:    "ORD-7",
	}
	ent := &models.Entitlement{ID: "ent-1", ConsumerUUID: "abc", PoolID: "pool-1", Quantity: 1}
	consumer := cmodels.New("host.example.com", "org-1", cmodels.TypeSystem)
	return consumer, ent, sub, marketing
}

func TestForEntitlement(t *testing.T) {
	t.Run("deterministic across calls", func(t *testing.T) {
		consumer, ent, sub, product := fixture()
		first := ForEntitlement(consumer, ent, sub, product).List()
		second := ForEntitlement(consumer, ent, sub, product).List()
		assert.Equal(t, first, second)
	})

	t.Run("no two records share oid and value", func(t *testing.T) {
		consumer, ent, sub, product := fixture()
		got := ForEntitlement(consumer, ent, sub, product).List()

		seen := make(map[Extension]struct{})
		for _, e := range got {
			_, dup := seen[e]
			assert.False(t, dup, "duplicate extension %v", e)
			seen[e] = struct{}{}
		}
	})

	t.Run("marketing product contributes no content of its own", func(t *testing.T) {
		consumer, ent, sub, product := fixture()
		got := ForEntitlement(consumer, ent, sub, product).List()

		for _, e := range got {
			assert.NotContains(t, e.Value, "never-emitted")
		}
	})

	t.Run("marketing product keeps its identity extensions", func(t *testing.T) {
		consumer, ent, sub, product := fixture()
		got := ForEntitlement(consumer, ent, sub, product).List()

		values := make([]string, 0, len(got))
		for _, e := range got {
			values = append(values, e.Value)
		}
		assert.Contains(t, values, "ACME Platform Bundle")
	})

	t.Run("provided children contribute their content", func(t *testing.T) {
		consumer, ent, sub, product := fixture()
		got := ForEntitlement(consumer, ent, sub, product).List()

		values := make([]string, 0, len(got))
		for _, e := range got {
			values = append(values, e.Value)
		}
		assert.Contains(t, values, "acme-os-rpms")
		assert.Contains(t, values, "acme-tools-rpms")
	})

	t.Run("shared attribute entries collapse across provided products", func(t *testing.T) {
		consumer, ent, sub, product := fixture()
		got := ForEntitlement(consumer, ent, sub, product).List()

		arch := 0
		for _, e := range got {
			if e.Value == "x86_64" {
				arch++
			}
		}
		// Both provided products carry arch=x86_64 under their own product
		// arc, so two distinct entries survive; nothing collapses them into
		// fewer or duplicates them into more.
		assert.Equal(t, 2, arch)
	})

	t.Run("subscription then entitlement then consumer ordering", func(t *testing.T) {
		consumer, ent, sub, product := fixture()
		got := ForEntitlement(consumer, ent, sub, product).List()

		idxSub, idxEnt, idxConsumer := -1, -1, -1
		for i, e := range got {
			switch {
			case e.Value == "ORD-7":
				idxSub = i
			case e.Value == "pool-1":
				idxEnt = i
			case e.Value == consumer.UUID:
				idxConsumer = i
			}
		}
		require.NotEqual(t, -1, idxSub)
		require.NotEqual(t, -1, idxEnt)
		require.NotEqual(t, -1, idxConsumer)
		assert.Less(t, idxSub, idxEnt)
		assert.Less(t, idxEnt, idxConsumer)
	})

	t.Run("non numeric identifiers map to stable numeric arcs", func(t *testing.T) {
		p := &models.Product{ID: "P-os", Name: "named"}
		exts := ProductExtensions(p)
		require.NotEmpty(t, exts)
		for _, part := range strings.Split(exts[0].OID, ".") {
			assert.NotEmpty(t, part)
			for _, r := range part {
				assert.True(t, r >= '0' && r <= '9', "oid %s has non numeric arc", exts[0].OID)
			}
		}
	})
}
