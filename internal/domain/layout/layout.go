// Package layout describes how authoritative records are keyed in the
// single-table store and how their kind is recognised from a key.
package layout

import (
	"fmt"
	"strings"
)

// Key attribute names of the table.
const (
	PartitionKey = "PK"
	SortKey      = "SK"
)

// Layout holds the key shapes of each record kind and the singleton aggregate.
type Layout struct {
	ItemPrefix           string // PK prefix of item and tag-link records
	ItemSortKey          string // SK of the item record itself
	TagPrefix            string // SK prefix of tag links, PK prefix of tag definitions
	RestrictionPartition string // PK shared by all restriction records
	EntityAttribute      string // restriction attribute naming the reference entity
	TypeAttribute        string // restriction attribute naming the restriction type
	AggregatePK          string
	AggregateSK          string
}

// Default returns the layout used by the catalog table.
func Default() Layout {
	return Layout{
		ItemPrefix:           "item#",
		ItemSortKey:          "i",
		TagPrefix:            "tag#",
		RestrictionPartition: "ban",
		EntityAttribute:      "GSI1PK",
		TypeAttribute:        "restrictionTypeId",
		AggregatePK:          "omni",
		AggregateSK:          "i",
	}
}

// Merge returns l with every empty field taken from Default.
func (l Layout) Merge() Layout {
	d := Default()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&l.ItemPrefix, d.ItemPrefix)
	fill(&l.ItemSortKey, d.ItemSortKey)
	fill(&l.TagPrefix, d.TagPrefix)
	fill(&l.RestrictionPartition, d.RestrictionPartition)
	fill(&l.EntityAttribute, d.EntityAttribute)
	fill(&l.TypeAttribute, d.TypeAttribute)
	fill(&l.AggregatePK, d.AggregatePK)
	fill(&l.AggregateSK, d.AggregateSK)
	return l
}

// Validate rejects layouts whose prefixes make kinds ambiguous.
func (l Layout) Validate() error {
	if l.ItemPrefix == l.TagPrefix {
		return fmt.Errorf("item prefix and tag prefix must differ, both are %q", l.ItemPrefix)
	}
	if strings.HasPrefix(l.RestrictionPartition, l.ItemPrefix) ||
		strings.HasPrefix(l.RestrictionPartition, l.TagPrefix) {
		return fmt.Errorf("restriction partition %q overlaps an item or tag prefix", l.RestrictionPartition)
	}
	if l.AggregatePK == l.RestrictionPartition || strings.HasPrefix(l.AggregatePK, l.ItemPrefix) {
		return fmt.Errorf("aggregate key %q overlaps a record kind", l.AggregatePK)
	}
	return nil
}

// Suffix returns the part of v after prefix, or false if v lacks the prefix.
func Suffix(v, prefix string) (string, bool) {
	if !strings.HasPrefix(v, prefix) {
		return "", false
	}
	return v[len(prefix):], true
}

// RefID extracts an identifier from a reference value such as "entity#X":
// the text after the first '#', or the whole value when there is none.
func RefID(v string) string {
	if _, after, ok := strings.Cut(v, "#"); ok {
		return after
	}
	return v
}
