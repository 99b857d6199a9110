package retention

import (
	"fmt"
	"testing"
	"time"

	"github.com/theoremus-urban-solutions/transitdata/transitland"
)

func feedVersions(n int) []transitland.FeedVersion {
	base := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)
	out := make([]transitland.FeedVersion, n)
	for i := range out {
		out[i] = transitland.FeedVersion{
			SHA1:      fmt.Sprintf("%040d", i),
			FetchedAt: base.AddDate(0, 0, -i),
		}
	}
	return out
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		name      string
		kind      string
		depth     int
		count     int
		wantErr   bool
		wantDepth int
		wantCount int
	}{
		{name: "latest", kind: "latest", wantDepth: DefaultMaxDepth, wantCount: DefaultCount},
		{name: "oldest with depth", kind: "Oldest", depth: 4, wantDepth: 4, wantCount: DefaultCount},
		{name: "recent with count", kind: " recent ", count: 3, wantDepth: DefaultMaxDepth, wantCount: 3},
		{name: "negative count defaults", kind: "recent", count: -1, wantDepth: DefaultMaxDepth, wantCount: DefaultCount},
		{name: "unknown", kind: "newest", wantErr: true},
		{name: "empty", kind: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePolicy(tt.kind, tt.depth, tt.count)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.MaxDepth != tt.wantDepth || p.Count != tt.wantCount {
				t.Errorf("got depth=%d count=%d, want depth=%d count=%d", p.MaxDepth, p.Count, tt.wantDepth, tt.wantCount)
			}
		})
	}
}

func TestSelect_OldestIsCapped(t *testing.T) {
	tests := []struct {
		name     string
		versions int
		wantIdx  int
	}{
		{name: "single version", versions: 1, wantIdx: 0},
		{name: "fewer than cap", versions: 5, wantIdx: 4},
		{name: "exactly cap", versions: 12, wantIdx: 11},
		{name: "cap plus one", versions: 13, wantIdx: 12},
		{name: "many versions", versions: 40, wantIdx: 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := feedVersions(tt.versions)
			sel := Select("f-x", vs, []Policy{{Kind: Oldest}})
			if len(sel) != 1 {
				t.Fatalf("expected 1 selection, got %d", len(sel))
			}
			if sel[0].Version.SHA1 != vs[tt.wantIdx].SHA1 {
				t.Errorf("selected %s, want index %d", sel[0].Version.SHA1, tt.wantIdx)
			}
			if sel[0].Slot != SlotArchived || sel[0].Key != "gtfs/gtfs_f-x_archived.zip" {
				t.Errorf("unexpected slot/key %s %s", sel[0].Slot, sel[0].Key)
			}
			if sel[0].UseLatestEndpoint {
				t.Error("archived selection must not use the latest endpoint")
			}
		})
	}
}

func TestSelect_LatestAndOldest(t *testing.T) {
	vs := feedVersions(20)
	sel := Select("f-drt0", vs, []Policy{{Kind: Latest}, {Kind: Oldest, MaxDepth: 12}})

	if len(sel) != 2 {
		t.Fatalf("expected 2 selections, got %d", len(sel))
	}
	if sel[0].Key != "gtfs/gtfs_f-drt0_latest.zip" || !sel[0].UseLatestEndpoint {
		t.Errorf("unexpected latest selection %+v", sel[0])
	}
	if sel[0].Version.SHA1 != vs[0].SHA1 {
		t.Error("latest should be the newest version")
	}
	if sel[1].Version.SHA1 != vs[12].SHA1 {
		t.Error("oldest should be 12 versions back")
	}
}

func TestSelect_Recent(t *testing.T) {
	vs := feedVersions(5)
	sel := Select("f-x", vs, []Policy{{Kind: Recent, Count: 3}})

	if len(sel) != 3 {
		t.Fatalf("expected 3 selections, got %d", len(sel))
	}
	want := "gtfs/f-x/gtfs_f-x_20250331_00000000.zip"
	if sel[0].Key != want {
		t.Errorf("got key %s, want %s", sel[0].Key, want)
	}
	if !sel[0].UseLatestEndpoint || sel[1].UseLatestEndpoint {
		t.Error("only the newest recent version should use the latest endpoint")
	}

	all := Select("f-x", vs, []Policy{{Kind: Recent, Count: 50}})
	if len(all) != 5 {
		t.Errorf("count above available versions should select all, got %d", len(all))
	}
}

func TestSelect_DeduplicatesKeys(t *testing.T) {
	vs := feedVersions(3)
	sel := Select("f-x", vs, []Policy{{Kind: Latest}, {Kind: Latest}, {Kind: Oldest}, {Kind: Oldest, MaxDepth: 1}})
	if len(sel) != 2 {
		t.Fatalf("expected 2 unique selections, got %d", len(sel))
	}
	if sel[1].Version.SHA1 != vs[2].SHA1 {
		t.Error("first oldest policy should win")
	}
}

func TestSelect_NoVersions(t *testing.T) {
	if sel := Select("f-x", nil, []Policy{{Kind: Latest}}); sel != nil {
		t.Errorf("expected nil, got %v", sel)
	}
}

func TestMinimumListing(t *testing.T) {
	tests := []struct {
		name     string
		policies []Policy
		want     int
	}{
		{"latest only", []Policy{{Kind: Latest}}, 1},
		{"default oldest", []Policy{{Kind: Latest}, {Kind: Oldest}}, 13},
		{"recent dominates", []Policy{{Kind: Oldest, MaxDepth: 2}, {Kind: Recent, Count: 20}}, 20},
		{"none", nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MinimumListing(tt.policies); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStale(t *testing.T) {
	vs := feedVersions(4)
	sel := Select("f-x", vs, []Policy{{Kind: Recent, Count: 2}})
	stored := []string{
		sel[0].Key,
		RecentKey("f-x", vs[3]),
		"gtfs/gtfs_f-x_latest.zip",
		RecentKey("f-other", vs[3]),
	}

	stale := Stale("f-x", stored, sel)
	if len(stale) != 1 || stale[0] != RecentKey("f-x", vs[3]) {
		t.Errorf("unexpected stale keys %v", stale)
	}
}
