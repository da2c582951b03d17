package store

import (
	"context"
	"testing"
	"time"

	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

func snap(source, network, category, asset string, observed time.Time, total float64) snapshot.Snapshot {
	return snapshot.Snapshot{
		Source:      source,
		Network:     network,
		Category:    category,
		AssetSymbol: asset,
		TotalRate:   snapshot.Float(total),
		ObservedAt:  observed,
		CapturedAt:  observed,
		DayBucket:   snapshot.DayBucket(observed),
		UpdatedAt:   observed,
	}
}

func day(n int) time.Time {
	return time.Date(2026, 5, n, 12, 0, 0, 0, time.UTC)
}

func TestUpsertSameDayOverwrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first := snap("defillama", "ethereum", "lending", "USDC", day(1), 4.1)
	first.SetExtra(snapshot.ExtraPoolID, "a")
	second := snap("defillama", "ethereum", "lending", "USDC", day(1).Add(3*time.Hour), 5.2)

	for _, s := range []snapshot.Snapshot{first, second} {
		if err := m.UpsertSnapshot(ctx, &s); err != nil {
			t.Fatal(err)
		}
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d, want 1", m.Len())
	}
	got, _ := m.SnapshotHistory(ctx, HistoryFilter{})
	if *got[0].TotalRate != 5.2 {
		t.Errorf("TotalRate = %v, want second run's 5.2", *got[0].TotalRate)
	}
	if got[0].Extra != nil {
		t.Errorf("Extra = %v, want fully replaced (nil)", got[0].Extra)
	}
}

func TestUpsertRollover(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	late := snap("merkl", "base", "lending", "WETH", time.Date(2026, 5, 1, 23, 59, 59, 0, time.UTC), 2)
	early := snap("merkl", "base", "lending", "WETH", time.Date(2026, 5, 2, 0, 0, 1, 0, time.UTC), 3)
	_ = m.UpsertSnapshot(ctx, &late)
	_ = m.UpsertSnapshot(ctx, &early)

	got, _ := m.SnapshotHistory(ctx, HistoryFilter{Asset: "weth"})
	if len(got) != 2 {
		t.Fatalf("history = %d records, want 2", len(got))
	}
	if got[0].DayBucket != "2026-05-01" || got[1].DayBucket != "2026-05-02" {
		t.Errorf("buckets = %s, %s", got[0].DayBucket, got[1].DayBucket)
	}
}

func TestUpsertCopiesExtra(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	s := snap("turtle", "ethereum", "farming", "USDT", day(1), 1)
	s.SetExtra(snapshot.ExtraURL, "https://example.org")
	_ = m.UpsertSnapshot(ctx, &s)
	s.Extra[snapshot.ExtraURL] = "changed"

	got, _ := m.SnapshotHistory(ctx, HistoryFilter{})
	if got[0].Extra[snapshot.ExtraURL] != "https://example.org" {
		t.Errorf("stored Extra aliased caller map: %v", got[0].Extra)
	}
}

func TestLatestSnapshots(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rows := []snapshot.Snapshot{
		snap("defillama", "ethereum", "lending", "USDC", day(1), 3),
		snap("defillama", "ethereum", "lending", "USDC", day(2), 4),
		snap("defillama", "ethereum", "lending", "USDC", day(3), 5),
		snap("merkl", "ethereum", "lending", "DAI", day(2), 7),
		snap("merkl", "arbitrum", "dex", "ARB", day(3).Add(time.Hour), 1),
	}
	for i := range rows {
		_ = m.UpsertSnapshot(ctx, &rows[i])
	}

	tests := []struct {
		name   string
		filter LatestFilter
		want   []string
	}{
		{"all", LatestFilter{}, []string{"ARB", "USDC", "DAI"}},
		{"asset case-insensitive", LatestFilter{Asset: "usdc"}, []string{"USDC"}},
		{"network", LatestFilter{Network: "arbitrum"}, []string{"ARB"}},
		{"category", LatestFilter{Category: "lending"}, []string{"USDC", "DAI"}},
		{"min rate", LatestFilter{MinRate: snapshot.Float(4.5)}, []string{"USDC", "DAI"}},
		{"min rate excludes all", LatestFilter{MinRate: snapshot.Float(100)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.LatestSnapshots(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(got), len(tt.want))
			}
			for i, s := range got {
				if s.AssetSymbol != tt.want[i] {
					t.Errorf("[%d] = %s, want %s", i, s.AssetSymbol, tt.want[i])
				}
			}
		})
	}

	got, _ := m.LatestSnapshots(ctx, LatestFilter{Asset: "USDC"})
	if !got[0].ObservedAt.Equal(day(3)) {
		t.Errorf("latest USDC observed %v, want %v", got[0].ObservedAt, day(3))
	}
}

func TestLatestMinRateBeforeDedup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	old := snap("defillama", "ethereum", "lending", "USDC", day(1), 9)
	recent := snap("defillama", "ethereum", "lending", "USDC", day(2), 2)
	_ = m.UpsertSnapshot(ctx, &old)
	_ = m.UpsertSnapshot(ctx, &recent)

	got, _ := m.LatestSnapshots(ctx, LatestFilter{MinRate: snapshot.Float(5)})
	if len(got) != 1 || !got[0].ObservedAt.Equal(day(1)) {
		t.Errorf("filter must apply before dedup, got %+v", got)
	}
}

func TestSnapshotHistoryRange(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for d := 10; d >= 1; d-- {
		s := snap("defillama", "ethereum", "lending", "USDC", day(d), float64(d))
		_ = m.UpsertSnapshot(ctx, &s)
	}

	got, err := m.SnapshotHistory(ctx, HistoryFilter{From: day(3), To: day(7)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d records, want 5", len(got))
	}
	for i, s := range got {
		if want := day(3 + i); !s.ObservedAt.Equal(want) {
			t.Errorf("[%d] observed %v, want %v", i, s.ObservedAt, want)
		}
	}

	open, _ := m.SnapshotHistory(ctx, HistoryFilter{From: day(9)})
	if len(open) != 2 {
		t.Errorf("open upper bound: got %d records, want 2", len(open))
	}
	none, _ := m.SnapshotHistory(ctx, HistoryFilter{Source: "merkl"})
	if none == nil || len(none) != 0 {
		t.Errorf("no match should be empty non-nil, got %v", none)
	}
}

func TestGroups(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rows := []snapshot.Snapshot{
		snap("defillama", "ethereum", "lending", "USDC", day(1), 1),
		snap("merkl", "ethereum", "lending", "USDC", day(1), 1),
		snap("merkl", "base", "dex", "WETH", day(1), 1),
	}
	// merkl/ethereum/lending/USDC shares the defillama key; give it another day.
	rows[1].DayBucket = snapshot.DayBucket(day(2))
	for i := range rows {
		_ = m.UpsertSnapshot(ctx, &rows[i])
	}

	networks, _ := m.NetworkGroups(ctx)
	if len(networks) != 2 || networks[0].Network != "base" || networks[1].Network != "ethereum" {
		t.Fatalf("networks = %+v", networks)
	}
	if got := networks[1].Sources; len(got) != 2 || got[0] != "defillama" || got[1] != "merkl" {
		t.Errorf("ethereum sources = %v", got)
	}

	categories, _ := m.CategoryGroups(ctx)
	if len(categories) != 2 || categories[1].Category != "lending" || categories[1].Assets != 1 {
		t.Errorf("categories = %+v", categories)
	}

	assets, _ := m.AssetGroups(ctx)
	if len(assets) != 2 || assets[0].Symbol != "USDC" {
		t.Fatalf("assets = %+v", assets)
	}
	if got := assets[1]; got.Symbol != "WETH" || got.Networks[0] != "base" || got.Categories[0] != "dex" {
		t.Errorf("WETH group = %+v", got)
	}
}

func TestRecentActivity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, src := range []string{"a", "b", "c"} {
		_ = m.Record(ctx, snapshot.ActivityRecord{Source: src, Success: true})
	}

	got, _ := m.RecentActivity(ctx, 2)
	if len(got) != 2 || got[0].Source != "c" || got[1].Source != "b" {
		t.Errorf("RecentActivity(2) = %+v", got)
	}
	all, _ := m.RecentActivity(ctx, 0)
	if len(all) != 3 {
		t.Errorf("RecentActivity(0) = %d records, want 3", len(all))
	}
}
