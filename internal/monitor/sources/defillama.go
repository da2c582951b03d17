package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/web3-frozen/yield-tracker/internal/config"
	"github.com/web3-frozen/yield-tracker/internal/monitor"
	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

const defiLlamaAPI = "https://yields.llama.fi/pools"

// LlamaPool is one pool from the DefiLlama yields API. Rates are already percent.
type LlamaPool struct {
	Chain       string   `json:"chain"`
	Project     string   `json:"project"`
	Symbol      string   `json:"symbol"`
	PoolID      string   `json:"pool"`
	TVLUSD      float64  `json:"tvlUsd"`
	APY         *float64 `json:"apy"`
	APYBase     *float64 `json:"apyBase"`
	APYReward   *float64 `json:"apyReward"`
	APYMean30d  *float64 `json:"apyMean30d"`
	APYBase7d   *float64 `json:"apyBase7d"`
	VolumeUSD1d *float64 `json:"volumeUsd1d"`
	PoolMeta    *string  `json:"poolMeta"`
	Exposure    string   `json:"exposure"`
	Stablecoin  bool     `json:"stablecoin"`
}

type llamaResponse struct {
	Status string      `json:"status"`
	Data   []LlamaPool `json:"data"`
}

// llamaRules classifies pools by project slug; multi-asset exposure means an LP.
var llamaRules = []config.CategoryRule{
	{Contains: "lido", Category: CategoryStaking},
	{Contains: "rocket-pool", Category: CategoryStaking},
	{Contains: "staked", Category: CategoryStaking},
	{Contains: "staking", Category: CategoryStaking},
	{Contains: "restak", Category: CategoryStaking},
	{Contains: "aave", Category: CategoryLending},
	{Contains: "compound", Category: CategoryLending},
	{Contains: "morpho", Category: CategoryLending},
	{Contains: "spark", Category: CategoryLending},
	{Contains: "euler", Category: CategoryLending},
	{Contains: "lend", Category: CategoryLending},
}

func llamaCategory(p LlamaPool) string {
	fallback := CategoryFarming
	if p.Exposure == "multi" {
		fallback = CategoryDex
	}
	return classify(p.Project, llamaRules, fallback)
}

// DefiLlama reads the yields API in a single call.
type DefiLlama struct {
	url      string
	cfg      config.DefiLlamaSource
	client   *httpClient
	projects map[string]bool
	chains   map[string]bool
}

func NewDefiLlama(cfg config.DefiLlamaSource, client *httpClient) *DefiLlama {
	d := &DefiLlama{
		url:      defiLlamaAPI,
		cfg:      cfg,
		client:   client,
		projects: make(map[string]bool),
		chains:   make(map[string]bool),
	}
	if cfg.URL != "" {
		d.url = cfg.URL
	}
	for _, p := range cfg.Projects {
		d.projects[strings.ToLower(p)] = true
	}
	for _, c := range cfg.Chains {
		d.chains[strings.ToLower(c)] = true
	}
	return d
}

func (d *DefiLlama) Info() monitor.SourceInfo {
	return monitor.SourceInfo{Name: "defillama"}
}

func (d *DefiLlama) FetchRaw(ctx context.Context) ([]LlamaPool, error) {
	var resp llamaResponse
	if err := d.client.getJSON(ctx, d.url, &resp); err != nil {
		return nil, fmt.Errorf("defillama API: %w", err)
	}
	if resp.Status != "" && resp.Status != "success" {
		return nil, fmt.Errorf("defillama API status %q", resp.Status)
	}
	return keepMostLiquid(d.filter(resp.Data), d.key, func(p LlamaPool) float64 { return p.TVLUSD }), nil
}

func (d *DefiLlama) filter(pools []LlamaPool) []LlamaPool {
	out := make([]LlamaPool, 0, len(pools))
	for _, p := range pools {
		if p.Symbol == "" || p.Chain == "" {
			continue
		}
		if len(d.projects) > 0 && !d.projects[strings.ToLower(p.Project)] {
			continue
		}
		if len(d.chains) > 0 && !d.chains[strings.ToLower(p.Chain)] {
			continue
		}
		if p.TVLUSD < d.cfg.MinTVLUSD {
			continue
		}
		if d.cfg.StablecoinsOnly && !p.Stablecoin {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (d *DefiLlama) key(p LlamaPool) snapshot.Key {
	return snapshot.Key{Network: slug(p.Chain), Category: llamaCategory(p), AssetSymbol: p.Symbol}
}

func (d *DefiLlama) Normalize(p LlamaPool) (snapshot.Snapshot, error) {
	s := snapshot.Snapshot{
		Network:     slug(p.Chain),
		Category:    llamaCategory(p),
		AssetSymbol: p.Symbol,
		SupplyRate:  p.APYBase,
		RewardRate:  p.APYReward,
		TotalRate:   p.APY,
		TVLUSD:      snapshot.Float(p.TVLUSD),
	}
	if s.TotalRate == nil {
		s.TotalRate = sumRates(p.APYBase, p.APYReward)
	}
	s.SetExtra(snapshot.ExtraPoolID, p.PoolID)
	s.SetExtra(snapshot.ExtraSubCategory, p.Project)
	s.SetExtra(snapshot.ExtraStablecoin, p.Stablecoin)
	if p.APYMean30d != nil {
		s.SetExtra(snapshot.ExtraAPYMean30d, *p.APYMean30d)
	}
	if p.APYBase7d != nil {
		s.SetExtra(snapshot.ExtraAPYBase7d, *p.APYBase7d)
	}
	if p.VolumeUSD1d != nil {
		s.SetExtra(snapshot.ExtraVolumeUSD1d, *p.VolumeUSD1d)
	}
	if p.PoolMeta != nil && *p.PoolMeta != "" {
		s.SetExtra(snapshot.ExtraPoolMeta, *p.PoolMeta)
	}
	return s, nil
}
