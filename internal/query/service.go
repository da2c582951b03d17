// Package query serves the read side: latest and historical snapshots and the
// distinct networks, categories and assets seen so far.
package query

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/web3-frozen/yield-tracker/internal/cache"
	"github.com/web3-frozen/yield-tracker/internal/metrics"
	"github.com/web3-frozen/yield-tracker/internal/snapshot"
	"github.com/web3-frozen/yield-tracker/internal/store"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
	DefaultSort  = snapshot.FieldTotalRate
)

var (
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidRange     = errors.New("from must not be after to")
)

// Cache keys of the distinct-value aggregations.
const (
	KeyNetworks   = "meta:networks"
	KeyCategories = "meta:categories"
	KeyAssets     = "meta:assets"
)

// Reader is the part of the store the read side needs.
type Reader interface {
	LatestSnapshots(ctx context.Context, f store.LatestFilter) ([]snapshot.Snapshot, error)
	SnapshotHistory(ctx context.Context, f store.HistoryFilter) ([]snapshot.Snapshot, error)
	NetworkGroups(ctx context.Context) ([]store.NetworkGroup, error)
	CategoryGroups(ctx context.Context) ([]store.CategoryGroup, error)
	AssetGroups(ctx context.Context) ([]store.AssetGroup, error)
}

// LatestFilter selects and orders the latest view. Zero values mean defaults.
type LatestFilter struct {
	Asset     string
	Category  string
	Network   string
	MinRate   *float64
	SortField string
	Limit     int
}

// HistoryFilter is passed to the store unchanged.
type HistoryFilter = store.HistoryFilter

type Network struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Sources []string `json:"sources"`
}

type Category struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

type Asset struct {
	Symbol     string   `json:"symbol"`
	Sources    []string `json:"sources"`
	Networks   []string `json:"networks"`
	Categories []string `json:"categories"`
}

type Service struct {
	store  Reader
	cache  cache.Cache
	logger *slog.Logger
}

func NewService(r Reader, c cache.Cache, logger *slog.Logger) *Service {
	return &Service{store: r, cache: c, logger: logger}
}

// Latest returns the newest snapshot per (source, category, asset), sorted
// descending by the requested metric with missing values last.
func (s *Service) Latest(ctx context.Context, f LatestFilter) ([]snapshot.Snapshot, error) {
	field := f.SortField
	if field == "" {
		field = DefaultSort
	}
	var probe snapshot.Snapshot
	if _, ok := probe.Metric(field); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSortField, field)
	}

	rows, err := s.store.LatestSnapshots(ctx, store.LatestFilter{
		Asset:    f.Asset,
		Category: f.Category,
		Network:  f.Network,
		MinRate:  f.MinRate,
	})
	if err != nil {
		return nil, fmt.Errorf("latest snapshots: %w", err)
	}
	if rows == nil {
		rows = []snapshot.Snapshot{}
	}
	sortByMetric(rows, field)
	return rows[:min(len(rows), clampLimit(f.Limit))], nil
}

func clampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	return min(n, MaxLimit)
}

func sortByMetric(rows []snapshot.Snapshot, field string) {
	slices.SortStableFunc(rows, func(a, b snapshot.Snapshot) int {
		av, _ := a.Metric(field)
		bv, _ := b.Metric(field)
		switch {
		case av == nil && bv == nil:
		case av == nil:
			return 1
		case bv == nil:
			return -1
		case *av != *bv:
			return cmp.Compare(*bv, *av)
		}
		return b.ObservedAt.Compare(a.ObservedAt)
	})
}

// History returns every snapshot in the inclusive range, oldest first.
func (s *Service) History(ctx context.Context, f HistoryFilter) ([]snapshot.Snapshot, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return nil, ErrInvalidRange
	}
	rows, err := s.store.SnapshotHistory(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("snapshot history: %w", err)
	}
	if rows == nil {
		rows = []snapshot.Snapshot{}
	}
	return rows, nil
}

func (s *Service) DistinctNetworks(ctx context.Context) ([]Network, error) {
	return cached(ctx, s, KeyNetworks, func(ctx context.Context) ([]Network, error) {
		groups, err := s.store.NetworkGroups(ctx)
		if err != nil {
			return nil, fmt.Errorf("network groups: %w", err)
		}
		out := make([]Network, 0, len(groups))
		for _, g := range groups {
			out = append(out, Network{ID: g.Network, Label: NetworkLabel(g.Network), Sources: g.Sources})
		}
		return out, nil
	})
}

func (s *Service) DistinctCategories(ctx context.Context) ([]Category, error) {
	return cached(ctx, s, KeyCategories, func(ctx context.Context) ([]Category, error) {
		groups, err := s.store.CategoryGroups(ctx)
		if err != nil {
			return nil, fmt.Errorf("category groups: %w", err)
		}
		out := make([]Category, 0, len(groups))
		for _, g := range groups {
			out = append(out, Category{ID: g.Category, Label: CategoryLabel(g.Category), Kind: CategoryKind(g.Category)})
		}
		return out, nil
	})
}

func (s *Service) DistinctAssets(ctx context.Context) ([]Asset, error) {
	return cached(ctx, s, KeyAssets, func(ctx context.Context) ([]Asset, error) {
		groups, err := s.store.AssetGroups(ctx)
		if err != nil {
			return nil, fmt.Errorf("asset groups: %w", err)
		}
		out := make([]Asset, 0, len(groups))
		for _, g := range groups {
			out = append(out, Asset{Symbol: g.Symbol, Sources: g.Sources, Networks: g.Networks, Categories: g.Categories})
		}
		return out, nil
	})
}

// InvalidateMeta drops the cached aggregations so the next read recomputes them.
func (s *Service) InvalidateMeta(ctx context.Context) {
	for _, key := range []string{KeyNetworks, KeyCategories, KeyAssets} {
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.logger.Warn("cache invalidate failed", "key", key, "error", err)
		}
	}
}

// cached serves key from the cache, computing and storing it on a miss.
// A failing cache never fails the request.
func cached[T any](ctx context.Context, s *Service, key string, compute func(context.Context) (T, error)) (T, error) {
	var v T
	hit, err := s.cache.Get(ctx, key, &v)
	switch {
	case err != nil:
		metrics.CacheRequestsTotal.WithLabelValues(key, "error").Inc()
		s.logger.Warn("cache read failed, querying store", "key", key, "error", err)
		return compute(ctx)
	case hit:
		metrics.CacheRequestsTotal.WithLabelValues(key, "hit").Inc()
		return v, nil
	}

	metrics.CacheRequestsTotal.WithLabelValues(key, "miss").Inc()
	v, err = compute(ctx)
	if err != nil {
		return v, err
	}
	if err := s.cache.Set(ctx, key, v); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return v, nil
}
