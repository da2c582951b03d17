// Package snapshot defines the normalized record every source adapter produces
// and the identity rules the store and read side rely on.
package snapshot

import (
	"context"
	"time"
)

// DayLayout is the format of a day bucket key.
const DayLayout = "2006-01-02"

// Snapshot is one fact about one (source, network, category, asset) at a point in time.
// Metric fields are nil when the source does not measure them.
type Snapshot struct {
	Source      string `json:"source"`
	Network     string `json:"network"`
	Category    string `json:"category"`
	AssetSymbol string `json:"assetSymbol"`

	SupplyRate       *float64 `json:"supplyRate,omitempty"`
	BorrowRate       *float64 `json:"borrowRate,omitempty"`
	RewardRate       *float64 `json:"rewardRate,omitempty"`
	TotalRate        *float64 `json:"totalRate,omitempty"`
	TVLUSD           *float64 `json:"totalValueLockedUsd,omitempty"`
	UtilizationRatio *float64 `json:"utilizationRatio,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`

	ObservedAt time.Time `json:"observedAt"`
	CapturedAt time.Time `json:"capturedAt"`
	DayBucket  string    `json:"dayBucket"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Key identifies the single stored record per asset per day.
type Key struct {
	Network     string
	Category    string
	AssetSymbol string
	DayBucket   string
}

// LatestKey identifies a tracked asset across days for latest-dedup.
type LatestKey struct {
	Source      string
	Category    string
	AssetSymbol string
}

func (s *Snapshot) Key() Key {
	return Key{Network: s.Network, Category: s.Category, AssetSymbol: s.AssetSymbol, DayBucket: s.DayBucket}
}

func (s *Snapshot) LatestKey() LatestKey {
	return LatestKey{Source: s.Source, Category: s.Category, AssetSymbol: s.AssetSymbol}
}

// DayBucket returns the UTC calendar day of t.
func DayBucket(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// Float returns a pointer to v, for populating optional metrics.
func Float(v float64) *float64 {
	return &v
}

// SetExtra stores v under key, allocating the map on first use.
func (s *Snapshot) SetExtra(key string, v any) {
	if s.Extra == nil {
		s.Extra = make(map[string]any)
	}
	s.Extra[key] = v
}

// Metric returns the metric named by its JSON field name.
// ok is false when the name is not a metric field.
func (s *Snapshot) Metric(field string) (v *float64, ok bool) {
	switch field {
	case FieldSupplyRate:
		return s.SupplyRate, true
	case FieldBorrowRate:
		return s.BorrowRate, true
	case FieldRewardRate:
		return s.RewardRate, true
	case FieldTotalRate:
		return s.TotalRate, true
	case FieldTVLUSD:
		return s.TVLUSD, true
	case FieldUtilizationRatio:
		return s.UtilizationRatio, true
	}
	return nil, false
}

// Metric field names, as exposed on the wire.
const (
	FieldSupplyRate       = "supplyRate"
	FieldBorrowRate       = "borrowRate"
	FieldRewardRate       = "rewardRate"
	FieldTotalRate        = "totalRate"
	FieldTVLUSD           = "tvlUsd"
	FieldUtilizationRatio = "utilizationRatio"
)

// Writer persists snapshots with replace-on-conflict semantics keyed on Key().
type Writer interface {
	UpsertSnapshot(ctx context.Context, s *Snapshot) error
}
