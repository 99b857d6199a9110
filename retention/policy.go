// Package retention decides which feed versions are kept in the archive.
package retention

import (
	"fmt"
	"strings"

	"github.com/theoremus-urban-solutions/transitdata/transitland"
)

// Kind names a retention policy.
type Kind string

const (
	// Latest keeps the newest version.
	Latest Kind = "latest"
	// Oldest keeps the oldest version within MaxDepth versions of the newest.
	Oldest Kind = "oldest"
	// Recent keeps the newest Count versions.
	Recent Kind = "recent"
)

const (
	DefaultMaxDepth = 12
	DefaultCount    = 12
)

// Slot is the storage role of a selected version.
type Slot string

const (
	SlotLatest   Slot = "latest"
	SlotArchived Slot = "archived"
	SlotRecent   Slot = "recent"
)

// Policy is one retention rule.
type Policy struct {
	Kind     Kind
	MaxDepth int
	Count    int
}

// ParsePolicy builds a policy from its config representation.
func ParsePolicy(kind string, maxDepth, count int) (Policy, error) {
	p := Policy{Kind: Kind(strings.ToLower(strings.TrimSpace(kind))), MaxDepth: maxDepth, Count: count}
	switch p.Kind {
	case Latest, Oldest, Recent:
	default:
		return Policy{}, fmt.Errorf("unknown retention policy %q", kind)
	}
	return p.normalized(), nil
}

func (p Policy) normalized() Policy {
	if p.MaxDepth <= 0 {
		p.MaxDepth = DefaultMaxDepth
	}
	if p.Count <= 0 {
		p.Count = DefaultCount
	}
	return p
}

// Selection is a version chosen by a policy together with its storage key.
type Selection struct {
	Slot    Slot
	Version transitland.FeedVersion
	Key     string
	// UseLatestEndpoint downloads through the feed's latest-version endpoint,
	// which transit.land serves even when archived downloads are restricted.
	UseLatestEndpoint bool
}

// MinimumListing reports how many versions, newest first, must be listed to
// evaluate every policy.
func MinimumListing(policies []Policy) int {
	n := 1
	for _, p := range policies {
		p = p.normalized()
		switch p.Kind {
		case Oldest:
			if p.MaxDepth+1 > n {
				n = p.MaxDepth + 1
			}
		case Recent:
			if p.Count > n {
				n = p.Count
			}
		}
	}
	return n
}

// Select applies policies to versions (newest first) and returns the
// versions to keep. Keys are unique; the first policy claiming a key wins.
func Select(feedKey string, versions []transitland.FeedVersion, policies []Policy) []Selection {
	if len(versions) == 0 {
		return nil
	}

	var out []Selection
	seen := map[string]bool{}
	add := func(s Selection) {
		if seen[s.Key] {
			return
		}
		seen[s.Key] = true
		out = append(out, s)
	}

	for _, p := range policies {
		p = p.normalized()
		switch p.Kind {
		case Latest:
			add(Selection{
				Slot:              SlotLatest,
				Version:           versions[0],
				Key:               SlotKey(feedKey, SlotLatest),
				UseLatestEndpoint: true,
			})
		case Oldest:
			idx := p.MaxDepth
			if idx > len(versions)-1 {
				idx = len(versions) - 1
			}
			add(Selection{
				Slot:    SlotArchived,
				Version: versions[idx],
				Key:     SlotKey(feedKey, SlotArchived),
			})
		case Recent:
			n := p.Count
			if n > len(versions) {
				n = len(versions)
			}
			for i, v := range versions[:n] {
				add(Selection{
					Slot:              SlotRecent,
					Version:           v,
					Key:               RecentKey(feedKey, v),
					UseLatestEndpoint: i == 0,
				})
			}
		}
	}
	return out
}

// SlotKey is the storage key of the single-version slots.
func SlotKey(feedKey string, slot Slot) string {
	return fmt.Sprintf("gtfs/gtfs_%s_%s.zip", feedKey, slot)
}

// RecentKey is the storage key of a version kept by the recent policy.
func RecentKey(feedKey string, v transitland.FeedVersion) string {
	sha := v.SHA1
	if len(sha) > 8 {
		sha = sha[:8]
	}
	return fmt.Sprintf("gtfs/%s/gtfs_%s_%s_%s.zip", feedKey, feedKey, v.FetchedAt.UTC().Format("20060102"), sha)
}

// Stale returns the keys in stored that are recent-slot keys for feedKey but
// are no longer selected.
func Stale(feedKey string, stored []string, selected []Selection) []string {
	keep := make(map[string]bool, len(selected))
	for _, s := range selected {
		keep[s.Key] = true
	}
	prefix := fmt.Sprintf("gtfs/%s/", feedKey)

	var out []string
	for _, k := range stored {
		if strings.HasPrefix(k, prefix) && !keep[k] {
			out = append(out, k)
		}
	}
	return out
}
