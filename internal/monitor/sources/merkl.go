package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/web3-frozen/yield-tracker/internal/config"
	"github.com/web3-frozen/yield-tracker/internal/metrics"
	"github.com/web3-frozen/yield-tracker/internal/monitor"
	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

const merklAPI = "https://api.merkl.xyz/v4/opportunities"

// MerklOpportunity represents a single yield opportunity from Merkl.
// APR is incentive APR in percent.
type MerklOpportunity struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Action     string  `json:"action"`
	TVL        float64 `json:"tvl"`
	APR        float64 `json:"apr"`
	Status     string  `json:"status"`
	Identifier string  `json:"identifier"`
	DepositURL string  `json:"depositUrl"`
	Chain      struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"chain"`
	Protocol *struct {
		Name string `json:"name"`
	} `json:"protocol"`
	Tokens []struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	} `json:"tokens"`
}

// merklCategories maps Merkl actions onto pool categories. Actions not listed are skipped.
var merklCategories = map[string]string{
	"LEND":   CategoryLending,
	"BORROW": CategoryLending,
	"POOL":   CategoryDex,
	"HOLD":   CategoryFarming,
}

// AssetSymbol joins the token symbols of the opportunity: "USDC" or "USDC-WETH".
func (o *MerklOpportunity) AssetSymbol() string {
	syms := make([]string, 0, len(o.Tokens))
	for _, t := range o.Tokens {
		if t.Symbol != "" {
			syms = append(syms, t.Symbol)
		}
	}
	return strings.Join(syms, "-")
}

// IsStablecoin returns true if all tokens in the opportunity are stablecoins.
func (o *MerklOpportunity) IsStablecoin() bool {
	if len(o.Tokens) == 0 {
		return false
	}
	for _, t := range o.Tokens {
		if !isStable(t.Symbol, t.Price) {
			return false
		}
	}
	return true
}

// ProtocolName returns the protocol name or "Unknown".
func (o *MerklOpportunity) ProtocolName() string {
	if o.Protocol != nil && o.Protocol.Name != "" {
		return o.Protocol.Name
	}
	return "Unknown"
}

// MerklURL returns the direct link to this opportunity on app.merkl.xyz.
func (o *MerklOpportunity) MerklURL() string {
	return fmt.Sprintf("https://app.merkl.xyz/opportunities/%s/%s/%s", slug(o.Chain.Name), o.Type, o.Identifier)
}

// Merkl fetches live opportunities with one call per configured chain.
type Merkl struct {
	baseURL string
	cfg     config.MerklSource
	client  *httpClient
	logger  *slog.Logger
}

func NewMerkl(cfg config.MerklSource, client *httpClient, logger *slog.Logger) *Merkl {
	m := &Merkl{baseURL: merklAPI, cfg: cfg, client: client, logger: logger}
	if cfg.URL != "" {
		m.baseURL = cfg.URL
	}
	if m.cfg.Items <= 0 {
		m.cfg.Items = 100
	}
	return m
}

func (m *Merkl) Info() monitor.SourceInfo { return monitor.SourceInfo{Name: "merkl"} }

func (m *Merkl) chainURL(chainID int) string {
	q := url.Values{}
	q.Set("chainId", strconv.Itoa(chainID))
	q.Set("status", "LIVE")
	q.Set("items", strconv.Itoa(m.cfg.Items))
	q.Set("sort", "tvl")
	q.Set("order", "desc")
	if m.cfg.MinTVLUSD > 0 {
		q.Set("minimumTvl", strconv.FormatFloat(m.cfg.MinTVLUSD, 'f', 0, 64))
	}
	if m.cfg.MinAPR > 0 {
		q.Set("minimumApr", strconv.FormatFloat(m.cfg.MinAPR, 'f', -1, 64))
	}
	return m.baseURL + "?" + q.Encode()
}

// FetchRaw calls each chain in turn. A chain answering non-2xx or timing out
// is skipped; any other error aborts the crawl, and so does having no chain answer.
func (m *Merkl) FetchRaw(ctx context.Context) ([]MerklOpportunity, error) {
	var (
		all      []MerklOpportunity
		answered int
		lastSkip error
	)
	for _, chainID := range m.cfg.ChainIDs {
		var opps []MerklOpportunity
		err := m.client.getJSON(ctx, m.chainURL(chainID), &opps)
		if skippable(ctx, err) {
			metrics.ItemsSkippedTotal.WithLabelValues("merkl").Inc()
			m.logger.Warn("merkl chain skipped", "chain_id", chainID, "error", err)
			lastSkip = fmt.Errorf("merkl API chain %d: %w", chainID, err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("merkl API chain %d: %w", chainID, err)
		}
		answered++
		for _, o := range opps {
			if _, ok := merklCategories[o.Action]; !ok || o.AssetSymbol() == "" {
				continue
			}
			if o.Status != "" && o.Status != "LIVE" {
				continue
			}
			all = append(all, o)
		}
	}
	if answered == 0 && lastSkip != nil {
		return nil, fmt.Errorf("no merkl chain answered: %w", lastSkip)
	}
	return keepMostLiquid(all, m.key, func(o MerklOpportunity) float64 { return o.TVL }), nil
}

func (m *Merkl) key(o MerklOpportunity) snapshot.Key {
	return snapshot.Key{Network: slug(o.Chain.Name), Category: merklCategories[o.Action], AssetSymbol: o.AssetSymbol()}
}

func (m *Merkl) Normalize(o MerklOpportunity) (snapshot.Snapshot, error) {
	category, ok := merklCategories[o.Action]
	if !ok {
		return snapshot.Snapshot{}, fmt.Errorf("unsupported merkl action %q", o.Action)
	}
	s := snapshot.Snapshot{
		Network:     slug(o.Chain.Name),
		Category:    category,
		AssetSymbol: o.AssetSymbol(),
		RewardRate:  snapshot.Float(o.APR),
		TotalRate:   snapshot.Float(o.APR),
		TVLUSD:      snapshot.Float(o.TVL),
	}
	s.SetExtra(snapshot.ExtraChainID, o.Chain.ID)
	s.SetExtra(snapshot.ExtraSubCategory, o.ProtocolName())
	s.SetExtra(snapshot.ExtraStablecoin, o.IsStablecoin())
	s.SetExtra(snapshot.ExtraPoolID, o.ID)
	if o.DepositURL != "" {
		s.SetExtra(snapshot.ExtraURL, o.DepositURL)
	} else {
		s.SetExtra(snapshot.ExtraURL, o.MerklURL())
	}
	if len(o.Tokens) == 1 && o.Tokens[0].Price > 0 {
		s.SetExtra(snapshot.ExtraPriceUSD, o.Tokens[0].Price)
	}
	return s, nil
}
