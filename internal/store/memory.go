package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

// Memory is a process-local Store. It backs tests and single-node deployments
// started with STORE_DRIVER=memory.
type Memory struct {
	mu        sync.RWMutex
	snapshots map[snapshot.Key]snapshot.Snapshot
	activity  []snapshot.ActivityRecord
}

func NewMemory() *Memory {
	return &Memory{snapshots: make(map[snapshot.Key]snapshot.Snapshot)}
}

func clone(s snapshot.Snapshot) snapshot.Snapshot {
	s.Extra = maps.Clone(s.Extra)
	return s
}

func (m *Memory) UpsertSnapshot(_ context.Context, s *snapshot.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.Key()] = clone(*s)
	return nil
}

func (m *Memory) all() []snapshot.Snapshot {
	out := make([]snapshot.Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		out = append(out, clone(s))
	}
	return out
}

func (m *Memory) LatestSnapshots(_ context.Context, f LatestFilter) ([]snapshot.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]snapshot.Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		if f.match(&s) {
			matched = append(matched, clone(s))
		}
	}
	return snapshot.LatestPerKey(matched), nil
}

func (m *Memory) SnapshotHistory(_ context.Context, f HistoryFilter) ([]snapshot.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]snapshot.Snapshot, 0)
	for _, s := range m.snapshots {
		if f.match(&s) {
			out = append(out, clone(s))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].ObservedAt.Before(out[j].ObservedAt)
		}
		return out[i].AssetSymbol < out[j].AssetSymbol
	})
	return out, nil
}

type set map[string]struct{}

func (s set) add(v string) { s[v] = struct{}{} }

func (s set) sorted() []string { return slices.Sorted(maps.Keys(s)) }

func (m *Memory) NetworkGroups(_ context.Context) ([]NetworkGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := make(map[string]set)
	for _, s := range m.snapshots {
		if groups[s.Network] == nil {
			groups[s.Network] = make(set)
		}
		groups[s.Network].add(s.Source)
	}
	out := make([]NetworkGroup, 0, len(groups))
	for _, network := range slices.Sorted(maps.Keys(groups)) {
		out = append(out, NetworkGroup{Network: network, Sources: groups[network].sorted()})
	}
	return out, nil
}

func (m *Memory) CategoryGroups(_ context.Context) ([]CategoryGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sources := make(map[string]set)
	assets := make(map[string]set)
	for _, s := range m.snapshots {
		if sources[s.Category] == nil {
			sources[s.Category] = make(set)
			assets[s.Category] = make(set)
		}
		sources[s.Category].add(s.Source)
		assets[s.Category].add(s.AssetSymbol)
	}
	out := make([]CategoryGroup, 0, len(sources))
	for _, category := range slices.Sorted(maps.Keys(sources)) {
		out = append(out, CategoryGroup{
			Category: category,
			Sources:  sources[category].sorted(),
			Assets:   len(assets[category]),
		})
	}
	return out, nil
}

func (m *Memory) AssetGroups(_ context.Context) ([]AssetGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type agg struct{ sources, networks, categories set }
	groups := make(map[string]*agg)
	for _, s := range m.snapshots {
		g, ok := groups[s.AssetSymbol]
		if !ok {
			g = &agg{sources: make(set), networks: make(set), categories: make(set)}
			groups[s.AssetSymbol] = g
		}
		g.sources.add(s.Source)
		g.networks.add(s.Network)
		g.categories.add(s.Category)
	}
	out := make([]AssetGroup, 0, len(groups))
	for _, symbol := range slices.Sorted(maps.Keys(groups)) {
		g := groups[symbol]
		out = append(out, AssetGroup{
			Symbol:     symbol,
			Sources:    g.sources.sorted(),
			Networks:   g.networks.sorted(),
			Categories: g.categories.sorted(),
		})
	}
	return out, nil
}

func (m *Memory) Record(_ context.Context, rec snapshot.ActivityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, rec)
	return nil
}

// RecentActivity returns up to limit records, newest first. limit <= 0 returns all.
func (m *Memory) RecentActivity(_ context.Context, limit int) ([]snapshot.ActivityRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]snapshot.ActivityRecord, 0, len(m.activity))
	for i := len(m.activity) - 1; i >= 0; i-- {
		out = append(out, m.activity[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Len reports the number of stored snapshots.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}

var _ Store = (*Memory)(nil)
