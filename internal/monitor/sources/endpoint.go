package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/web3-frozen/yield-tracker/internal/config"
	"github.com/web3-frozen/yield-tracker/internal/monitor"
	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

// Endpoint reads any JSON API whose fields are described by gjson paths in the registry.
type Endpoint struct {
	cfg    config.EndpointSource
	client *httpClient
}

func NewEndpoint(cfg config.EndpointSource, client *httpClient) *Endpoint {
	if cfg.RateScale == 0 {
		cfg.RateScale = 1
	}
	return &Endpoint{cfg: cfg, client: client}
}

func (e *Endpoint) Info() monitor.SourceInfo {
	return monitor.SourceInfo{Name: e.cfg.Name, Network: e.cfg.Network, Category: e.cfg.Category}
}

// FetchRaw returns the array at ItemsPath, or the single object found there.
func (e *Endpoint) FetchRaw(ctx context.Context) ([]gjson.Result, error) {
	body, err := e.client.getRaw(ctx, e.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%s API: %w", e.cfg.Name, err)
	}
	root := gjson.ParseBytes(body)
	items := root
	if e.cfg.ItemsPath != "" {
		items = root.Get(e.cfg.ItemsPath)
	}
	switch {
	case items.IsArray():
		return items.Array(), nil
	case items.IsObject():
		return []gjson.Result{items}, nil
	case !items.Exists():
		return nil, fmt.Errorf("%s: nothing at %q", e.cfg.Name, e.cfg.ItemsPath)
	default:
		return nil, fmt.Errorf("%s: %q is %s, want array or object", e.cfg.Name, e.cfg.ItemsPath, items.Type)
	}
}

// number reads path as a float; absent, null and non-numeric values are nil.
func number(item gjson.Result, path string, scale float64) *float64 {
	if path == "" {
		return nil
	}
	v := item.Get(path)
	switch v.Type {
	case gjson.Number:
	case gjson.String:
		if p := parsePercent(v.Str); p != nil {
			return finite(*p * scale)
		}
		return nil
	default:
		return nil
	}
	return finite(v.Float() * scale)
}

// timestamp reads unix seconds, unix milliseconds or RFC 3339.
func timestamp(item gjson.Result, path string) time.Time {
	if path == "" {
		return time.Time{}
	}
	v := item.Get(path)
	switch v.Type {
	case gjson.Number:
		n := v.Int()
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	case gjson.String:
		t, err := time.Parse(time.RFC3339, v.Str)
		if err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (e *Endpoint) Normalize(item gjson.Result) (snapshot.Snapshot, error) {
	f := e.cfg.Fields
	asset := item.Get(f.Asset).String()
	if asset == "" {
		return snapshot.Snapshot{}, fmt.Errorf("no asset at %q", f.Asset)
	}

	s := snapshot.Snapshot{
		Network:          e.cfg.Network,
		Category:         e.cfg.Category,
		AssetSymbol:      asset,
		SupplyRate:       number(item, f.SupplyRate, e.cfg.RateScale),
		BorrowRate:       number(item, f.BorrowRate, e.cfg.RateScale),
		RewardRate:       number(item, f.RewardRate, e.cfg.RateScale),
		TotalRate:        number(item, f.TotalRate, e.cfg.RateScale),
		TVLUSD:           number(item, f.TVLUSD, 1),
		UtilizationRatio: number(item, f.UtilizationRatio, 1),
		ObservedAt:       timestamp(item, f.ObservedAt),
	}
	if f.Network != "" {
		if n := item.Get(f.Network).String(); n != "" {
			s.Network = slug(n)
		}
	}
	if f.Category != "" {
		if c := item.Get(f.Category).String(); c != "" {
			s.Category = c
		}
	}
	if s.TotalRate == nil {
		s.TotalRate = sumRates(s.SupplyRate, s.RewardRate)
	}
	if s.Network == "" {
		return snapshot.Snapshot{}, fmt.Errorf("no network for %s", asset)
	}
	return s, nil
}
