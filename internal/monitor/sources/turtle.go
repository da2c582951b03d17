package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/web3-frozen/yield-tracker/internal/config"
	"github.com/web3-frozen/yield-tracker/internal/monitor"
	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

const turtleAPI = "https://api.turtle.xyz/turtle/opportunities"

// TurtleOpportunity represents a single yield opportunity from Turtle.
type TurtleOpportunity struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	TVL       float64 `json:"tvl"`
	TurtleTVL float64 `json:"turtleTvl"`
	Status    string  `json:"status"`

	DepositTokens []struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"priceUsd"`
		Chain  struct {
			Name string `json:"name"`
			Slug string `json:"slug"`
		} `json:"chain"`
	} `json:"depositTokens"`

	Products []struct {
		Name         string `json:"name"`
		Organization struct {
			Name string `json:"name"`
		} `json:"organization"`
	} `json:"products"`

	Incentives []struct {
		Name  string  `json:"name"`
		Yield float64 `json:"yield"`
	} `json:"incentives"`

	Tags []struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"tags"`
}

// TotalYield returns the sum of all incentive yields (APR %).
func (o *TurtleOpportunity) TotalYield() float64 {
	var total float64
	for _, inc := range o.Incentives {
		total += inc.Yield
	}
	return total
}

// Network returns the chain slug of the first deposit token.
func (o *TurtleOpportunity) Network() string {
	if len(o.DepositTokens) == 0 {
		return ""
	}
	c := o.DepositTokens[0].Chain
	if c.Slug != "" {
		return slug(c.Slug)
	}
	return slug(c.Name)
}

// TokenSymbol returns the token symbol from the first deposit token.
func (o *TurtleOpportunity) TokenSymbol() string {
	if len(o.DepositTokens) > 0 {
		return o.DepositTokens[0].Symbol
	}
	return ""
}

// OrganizationName returns the first product's organization name.
func (o *TurtleOpportunity) OrganizationName() string {
	if len(o.Products) > 0 && o.Products[0].Organization.Name != "" {
		return o.Products[0].Organization.Name
	}
	return "Unknown"
}

// IsStablecoin returns true if all deposit tokens are stablecoins.
func (o *TurtleOpportunity) IsStablecoin() bool {
	if len(o.DepositTokens) == 0 {
		return false
	}
	for _, t := range o.DepositTokens {
		if !isStable(t.Symbol, t.Price) {
			return false
		}
	}
	return true
}

// HasTag returns true if the opportunity has the given tag code.
func (o *TurtleOpportunity) HasTag(tag string) bool {
	for _, t := range o.Tags {
		if strings.EqualFold(t.Code, tag) {
			return true
		}
	}
	return false
}

var turtleTagCategories = []struct {
	tag      string
	category string
}{
	{"lending", CategoryLending},
	{"staking", CategoryStaking},
	{"restaking", CategoryStaking},
	{"dex", CategoryDex},
	{"lp", CategoryDex},
}

// Category maps the first recognised tag onto a pool category.
func (o *TurtleOpportunity) Category() string {
	for _, tc := range turtleTagCategories {
		if o.HasTag(tc.tag) {
			return tc.category
		}
	}
	return CategoryFarming
}

type turtleResponse struct {
	Opportunities []TurtleOpportunity `json:"opportunities"`
}

// Turtle fetches yield opportunities from the Turtle API.
type Turtle struct {
	baseURL string
	cfg     config.TurtleSource
	client  *httpClient
}

func NewTurtle(cfg config.TurtleSource, client *httpClient) *Turtle {
	t := &Turtle{baseURL: turtleAPI, cfg: cfg, client: client}
	if cfg.URL != "" {
		t.baseURL = cfg.URL
	}
	return t
}

func (t *Turtle) Info() monitor.SourceInfo { return monitor.SourceInfo{Name: "turtle"} }

func (t *Turtle) FetchRaw(ctx context.Context) ([]TurtleOpportunity, error) {
	var data turtleResponse
	if err := t.client.getJSON(ctx, t.baseURL, &data); err != nil {
		return nil, fmt.Errorf("turtle API: %w", err)
	}
	filtered := filterOpportunities(data.Opportunities, t.cfg.MinTVLUSD)
	return keepMostLiquid(filtered, t.key, func(o TurtleOpportunity) float64 { return o.TVL }), nil
}

// filterOpportunities keeps active opportunities above minTVL with a deposit token.
func filterOpportunities(opps []TurtleOpportunity, minTVL float64) []TurtleOpportunity {
	var result []TurtleOpportunity
	for _, o := range opps {
		if o.Status != "active" {
			continue
		}
		if o.TVL < minTVL {
			continue
		}
		if o.TokenSymbol() == "" || o.Network() == "" {
			continue
		}
		result = append(result, o)
	}
	return result
}

func (t *Turtle) key(o TurtleOpportunity) snapshot.Key {
	return snapshot.Key{Network: o.Network(), Category: o.Category(), AssetSymbol: o.TokenSymbol()}
}

func (t *Turtle) Normalize(o TurtleOpportunity) (snapshot.Snapshot, error) {
	if len(o.DepositTokens) == 0 {
		return snapshot.Snapshot{}, fmt.Errorf("turtle opportunity %s has no deposit token", o.ID)
	}
	s := snapshot.Snapshot{
		Network:     o.Network(),
		Category:    o.Category(),
		AssetSymbol: o.TokenSymbol(),
		TotalRate:   snapshot.Float(o.TotalYield()),
		TVLUSD:      snapshot.Float(o.TVL),
	}
	s.SetExtra(snapshot.ExtraPoolID, o.ID)
	s.SetExtra(snapshot.ExtraSubCategory, o.OrganizationName())
	s.SetExtra(snapshot.ExtraStablecoin, o.IsStablecoin())
	s.SetExtra(snapshot.ExtraURL, "https://app.turtle.xyz/earn/opportunities")
	if p := o.DepositTokens[0].Price; p > 0 {
		s.SetExtra(snapshot.ExtraPriceUSD, p)
	}
	return s, nil
}
