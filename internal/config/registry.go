package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Registry lists the sources to ingest and how to reach them.
type Registry struct {
	// RequestsPerSecond paces sequential calls inside one adapter.
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`

	DefiLlama *DefiLlamaSource `yaml:"defillama"`
	Merkl     *MerklSource     `yaml:"merkl"`
	Turtle    *TurtleSource    `yaml:"turtle"`

	Subgraphs []SubgraphSource `yaml:"subgraphs"`
	Pages     []PageSource     `yaml:"pages"`
	Endpoints []EndpointSource `yaml:"endpoints"`
}

type DefiLlamaSource struct {
	Disabled        bool     `yaml:"disabled"`
	URL             string   `yaml:"url"`
	Projects        []string `yaml:"projects"`
	Chains          []string `yaml:"chains"`
	MinTVLUSD       float64  `yaml:"minTvlUsd"`
	StablecoinsOnly bool     `yaml:"stablecoinsOnly"`
}

type MerklSource struct {
	Disabled  bool    `yaml:"disabled"`
	URL       string  `yaml:"url"`
	ChainIDs  []int   `yaml:"chainIds"`
	MinTVLUSD float64 `yaml:"minTvlUsd"`
	MinAPR    float64 `yaml:"minApr"`
	Items     int     `yaml:"items"`
}

type TurtleSource struct {
	Disabled  bool    `yaml:"disabled"`
	URL       string  `yaml:"url"`
	MinTVLUSD float64 `yaml:"minTvlUsd"`
}

// SubgraphSource is a lending-market subgraph serving fractional rates.
type SubgraphSource struct {
	Name     string `yaml:"name"`
	Disabled bool   `yaml:"disabled"`
	Network  string `yaml:"network"`
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
	// Query overrides the default markets query.
	Query string `yaml:"query"`
}

// PageSource is a JavaScript-rendered table read through a headless browser.
type PageSource struct {
	Name          string `yaml:"name"`
	Disabled      bool   `yaml:"disabled"`
	Network       string `yaml:"network"`
	URL           string `yaml:"url"`
	ReadySelector string `yaml:"readySelector"`
	RowSelector   string `yaml:"rowSelector"`
	NextSelector  string `yaml:"nextSelector"`
	MaxPages      int    `yaml:"maxPages"`

	Columns PageColumns `yaml:"columns"`

	// CategoryRules are tried in order against the row text; first match wins.
	CategoryRules   []CategoryRule `yaml:"categoryRules"`
	DefaultCategory string         `yaml:"defaultCategory"`
}

// PageColumns maps metrics to zero-based cell indexes. Nil means not present.
type PageColumns struct {
	Asset      *int `yaml:"asset"`
	Network    *int `yaml:"network"`
	SupplyRate *int `yaml:"supplyRate"`
	BorrowRate *int `yaml:"borrowRate"`
	RewardRate *int `yaml:"rewardRate"`
	TotalRate  *int `yaml:"totalRate"`
	TVLUSD     *int `yaml:"tvlUsd"`
}

type CategoryRule struct {
	Contains string `yaml:"contains"`
	Category string `yaml:"category"`
}

// EndpointSource is a JSON API described entirely by gjson paths.
type EndpointSource struct {
	Name      string         `yaml:"name"`
	Disabled  bool           `yaml:"disabled"`
	Network   string         `yaml:"network"`
	Category  string         `yaml:"category"`
	URL       string         `yaml:"url"`
	ItemsPath string         `yaml:"itemsPath"`
	Fields    EndpointFields `yaml:"fields"`
	// RateScale multiplies every rate; 100 turns fractions into percent.
	RateScale float64 `yaml:"rateScale"`
}

type EndpointFields struct {
	Asset            string `yaml:"asset"`
	Network          string `yaml:"network"`
	Category         string `yaml:"category"`
	SupplyRate       string `yaml:"supplyRate"`
	BorrowRate       string `yaml:"borrowRate"`
	RewardRate       string `yaml:"rewardRate"`
	TotalRate        string `yaml:"totalRate"`
	TVLUSD           string `yaml:"tvlUsd"`
	UtilizationRatio string `yaml:"utilizationRatio"`
	ObservedAt       string `yaml:"observedAt"`
}

// LoadRegistry reads and validates the source registry at path.
// ${VAR} references in the file are expanded from the environment.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source registry: %w", err)
	}
	return ParseRegistry([]byte(os.ExpandEnv(string(data))))
}

func ParseRegistry(data []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse source registry: %w", err)
	}
	r.applyDefaults()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Registry) applyDefaults() {
	if r.RequestsPerSecond <= 0 {
		r.RequestsPerSecond = 5
	}
	for i := range r.Subgraphs {
		if r.Subgraphs[i].Category == "" {
			r.Subgraphs[i].Category = "lending"
		}
	}
	for i := range r.Pages {
		if r.Pages[i].RowSelector == "" {
			r.Pages[i].RowSelector = "table tbody tr"
		}
		if r.Pages[i].ReadySelector == "" {
			r.Pages[i].ReadySelector = r.Pages[i].RowSelector
		}
		if r.Pages[i].DefaultCategory == "" {
			r.Pages[i].DefaultCategory = "defi"
		}
	}
	for i := range r.Endpoints {
		if r.Endpoints[i].RateScale == 0 {
			r.Endpoints[i].RateScale = 1
		}
	}
}

// Validate checks required fields and that source names are unique.
func (r *Registry) Validate() error {
	var errs []error
	seen := map[string]bool{}
	claim := func(name string) {
		if seen[name] {
			errs = append(errs, fmt.Errorf("duplicate source name %q", name))
		}
		seen[name] = true
	}

	for _, name := range []string{"defillama", "merkl", "turtle"} {
		seen[name] = true
	}
	if r.Merkl != nil && !r.Merkl.Disabled && len(r.Merkl.ChainIDs) == 0 {
		errs = append(errs, errors.New("merkl: at least one chain id is required"))
	}
	for i, s := range r.Subgraphs {
		if s.Name == "" || s.URL == "" || s.Network == "" {
			errs = append(errs, fmt.Errorf("subgraphs[%d]: name, url and network are required", i))
			continue
		}
		claim(s.Name)
	}
	for i, p := range r.Pages {
		if p.Name == "" || p.URL == "" {
			errs = append(errs, fmt.Errorf("pages[%d]: name and url are required", i))
			continue
		}
		if p.Columns.Asset == nil {
			errs = append(errs, fmt.Errorf("page %s: columns.asset is required", p.Name))
		}
		if p.Network == "" && p.Columns.Network == nil {
			errs = append(errs, fmt.Errorf("page %s: network or columns.network is required", p.Name))
		}
		for j, rule := range p.CategoryRules {
			if rule.Contains == "" || rule.Category == "" {
				errs = append(errs, fmt.Errorf("page %s: categoryRules[%d] needs contains and category", p.Name, j))
			}
		}
		claim(p.Name)
	}
	for i, e := range r.Endpoints {
		if e.Name == "" || e.URL == "" {
			errs = append(errs, fmt.Errorf("endpoints[%d]: name and url are required", i))
			continue
		}
		if e.Fields.Asset == "" {
			errs = append(errs, fmt.Errorf("endpoint %s: fields.asset is required", e.Name))
		}
		if e.Network == "" && e.Fields.Network == "" {
			errs = append(errs, fmt.Errorf("endpoint %s: network or fields.network is required", e.Name))
		}
		claim(e.Name)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid source registry: %w", errors.Join(errs...))
	}
	return nil
}
