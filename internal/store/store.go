// Package store persists snapshots and ingestion activity.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

// Store is the persistence boundary shared by ingestion and the read side.
type Store interface {
	snapshot.Writer
	snapshot.ActivitySink

	// LatestSnapshots returns the most recent record per (source, category, assetSymbol)
	// among records matching f, newest first.
	LatestSnapshots(ctx context.Context, f LatestFilter) ([]snapshot.Snapshot, error)
	// SnapshotHistory returns every record matching f ordered by ObservedAt ascending.
	SnapshotHistory(ctx context.Context, f HistoryFilter) ([]snapshot.Snapshot, error)

	NetworkGroups(ctx context.Context) ([]NetworkGroup, error)
	CategoryGroups(ctx context.Context) ([]CategoryGroup, error)
	AssetGroups(ctx context.Context) ([]AssetGroup, error)

	// RecentActivity returns newest first; limit <= 0 returns every record.
	RecentActivity(ctx context.Context, limit int) ([]snapshot.ActivityRecord, error)

	Ping(ctx context.Context) error
	Close()
}

// LatestFilter narrows the latest view. Empty strings match everything.
// String filters compare case-insensitively.
type LatestFilter struct {
	Asset    string
	Category string
	Network  string
	// MinRate excludes records whose TotalRate is below it or missing.
	MinRate *float64
}

// HistoryFilter narrows the history view. Zero From/To leave that side open;
// both bounds are inclusive.
type HistoryFilter struct {
	Asset    string
	Category string
	Network  string
	Source   string
	From     time.Time
	To       time.Time
}

type NetworkGroup struct {
	Network string
	Sources []string
}

type CategoryGroup struct {
	Category string
	Sources  []string
	Assets   int
}

type AssetGroup struct {
	Symbol     string
	Sources    []string
	Networks   []string
	Categories []string
}

func matches(filter, value string) bool {
	return filter == "" || strings.EqualFold(filter, value)
}

func (f LatestFilter) match(s *snapshot.Snapshot) bool {
	if !matches(f.Asset, s.AssetSymbol) || !matches(f.Category, s.Category) || !matches(f.Network, s.Network) {
		return false
	}
	if f.MinRate != nil && (s.TotalRate == nil || *s.TotalRate < *f.MinRate) {
		return false
	}
	return true
}

func (f HistoryFilter) match(s *snapshot.Snapshot) bool {
	if !matches(f.Asset, s.AssetSymbol) || !matches(f.Category, s.Category) ||
		!matches(f.Network, s.Network) || !matches(f.Source, s.Source) {
		return false
	}
	if !f.From.IsZero() && s.ObservedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && s.ObservedAt.After(f.To) {
		return false
	}
	return true
}
