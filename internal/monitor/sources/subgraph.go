package sources

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/web3-frozen/yield-tracker/internal/config"
	"github.com/web3-frozen/yield-tracker/internal/monitor"
	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

const marketsQuery = `{
  markets(first: 200, orderBy: totalValueLockedUSD, orderDirection: desc) {
    id
    inputToken { symbol lastPriceUSD }
    supplyRate
    borrowRate
    rewardRate
    totalSupplyUSD
    totalBorrowUSD
    totalValueLockedUSD
    collateralFactor
  }
}`

// decimal decodes a subgraph BigDecimal, sent as a string or a number.
// A null or empty value decodes to "absent".
type decimal struct {
	value *float64
}

func (d *decimal) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.value = nil
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("decimal %s: %w", b, err)
	}
	// "NaN" and "Infinity" parse, but are no more a reading than null is.
	d.value = finite(f)
	return nil
}

func (d decimal) Float() *float64 { return d.value }

// SubgraphMarket is one lending market. Rates are fractions (0.0425 = 4.25%).
type SubgraphMarket struct {
	ID         string `json:"id"`
	InputToken struct {
		Symbol       string  `json:"symbol"`
		LastPriceUSD decimal `json:"lastPriceUSD"`
	} `json:"inputToken"`
	SupplyRate          decimal `json:"supplyRate"`
	BorrowRate          decimal `json:"borrowRate"`
	RewardRate          decimal `json:"rewardRate"`
	TotalSupplyUSD      decimal `json:"totalSupplyUSD"`
	TotalBorrowUSD      decimal `json:"totalBorrowUSD"`
	TotalValueLockedUSD decimal `json:"totalValueLockedUSD"`
	CollateralFactor    decimal `json:"collateralFactor"`
}

type graphqlRequest struct {
	Query string `json:"query"`
}

type marketsResponse struct {
	Data struct {
		Markets []SubgraphMarket `json:"markets"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Subgraph reads lending markets of one network from a GraphQL endpoint.
type Subgraph struct {
	cfg    config.SubgraphSource
	client *httpClient
}

func NewSubgraph(cfg config.SubgraphSource, client *httpClient) *Subgraph {
	if cfg.Query == "" {
		cfg.Query = marketsQuery
	}
	return &Subgraph{cfg: cfg, client: client}
}

func (s *Subgraph) Info() monitor.SourceInfo {
	return monitor.SourceInfo{Name: s.cfg.Name, Network: s.cfg.Network, Category: s.cfg.Category}
}

func (s *Subgraph) FetchRaw(ctx context.Context) ([]SubgraphMarket, error) {
	var resp marketsResponse
	if err := s.client.postJSON(ctx, s.cfg.URL, graphqlRequest{Query: s.cfg.Query}, &resp); err != nil {
		return nil, fmt.Errorf("graphql request: %w", err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]error, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, errors.New(e.Message))
		}
		return nil, fmt.Errorf("graphql errors: %w", errors.Join(msgs...))
	}
	markets := make([]SubgraphMarket, 0, len(resp.Data.Markets))
	for _, m := range resp.Data.Markets {
		if m.InputToken.Symbol == "" {
			continue
		}
		markets = append(markets, m)
	}
	return markets, nil
}

func scaled(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return snapshot.Float(percent(*v))
}

// utilization is borrowed/supplied, undefined when nothing is supplied.
func utilization(supplied, borrowed *float64) *float64 {
	if supplied == nil || borrowed == nil || *supplied <= 0 {
		return nil
	}
	return snapshot.Float(*borrowed / *supplied)
}

func (s *Subgraph) Normalize(m SubgraphMarket) (snapshot.Snapshot, error) {
	supply := scaled(m.SupplyRate.Float())
	reward := scaled(m.RewardRate.Float())

	tvl := m.TotalValueLockedUSD.Float()
	if tvl == nil {
		tvl = m.TotalSupplyUSD.Float()
	}

	snap := snapshot.Snapshot{
		Network:          s.cfg.Network,
		Category:         s.cfg.Category,
		AssetSymbol:      m.InputToken.Symbol,
		SupplyRate:       supply,
		BorrowRate:       scaled(m.BorrowRate.Float()),
		RewardRate:       reward,
		TotalRate:        sumRates(supply, reward),
		TVLUSD:           tvl,
		UtilizationRatio: utilization(m.TotalSupplyUSD.Float(), m.TotalBorrowUSD.Float()),
	}
	snap.SetExtra(snapshot.ExtraMarketAddress, m.ID)
	if cf := m.CollateralFactor.Float(); cf != nil {
		snap.SetExtra(snapshot.ExtraCollateralFactor, *cf)
	}
	if p := m.InputToken.LastPriceUSD.Float(); p != nil {
		snap.SetExtra(snapshot.ExtraPriceUSD, *p)
	}
	return snap, nil
}
