package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleRegistry = `
requestsPerSecond: 2
defillama:
  projects: [aave-v3, lido]
  chains: [Ethereum]
  minTvlUsd: 1000000
merkl:
  chainIds: [1, 8453]
subgraphs:
  - name: compound-v3-base
    network: base
    url: https://example.org/subgraph
pages:
  - name: vault-board
    network: ethereum
    url: https://example.org/vaults
    nextSelector: button.next
    columns:
      asset: 0
      totalRate: 2
      tvlUsd: 3
    categoryRules:
      - contains: stak
        category: staking
endpoints:
  - name: rates-api
    url: https://example.org/rates
    itemsPath: data.markets
    fields:
      asset: symbol
      network: chain
      supplyRate: supplyApr
    rateScale: 100
`

func TestParseRegistry(t *testing.T) {
	r, err := ParseRegistry([]byte(sampleRegistry))
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}
	if r.RequestsPerSecond != 2 {
		t.Errorf("RequestsPerSecond = %v", r.RequestsPerSecond)
	}
	if r.DefiLlama == nil || len(r.DefiLlama.Projects) != 2 || r.DefiLlama.MinTVLUSD != 1_000_000 {
		t.Errorf("DefiLlama = %+v", r.DefiLlama)
	}
	if r.Turtle != nil {
		t.Errorf("Turtle = %+v, want nil when absent", r.Turtle)
	}
	if got := r.Subgraphs[0].Category; got != "lending" {
		t.Errorf("subgraph category default = %q", got)
	}

	p := r.Pages[0]
	if p.RowSelector != "table tbody tr" || p.ReadySelector != p.RowSelector || p.DefaultCategory != "defi" {
		t.Errorf("page defaults = %+v", p)
	}
	if p.Columns.Asset == nil || *p.Columns.Asset != 0 || p.Columns.SupplyRate != nil || *p.Columns.TVLUSD != 3 {
		t.Errorf("page columns = %+v", p.Columns)
	}
	if r.Endpoints[0].RateScale != 100 {
		t.Errorf("RateScale = %v", r.Endpoints[0].RateScale)
	}
}

func TestParseRegistryDefaults(t *testing.T) {
	r, err := ParseRegistry([]byte(`endpoints: [{name: e, url: "http://x", network: ethereum, fields: {asset: sym}}]`))
	if err != nil {
		t.Fatal(err)
	}
	if r.RequestsPerSecond != 5 || r.Endpoints[0].RateScale != 1 {
		t.Errorf("defaults = %v / %v", r.RequestsPerSecond, r.Endpoints[0].RateScale)
	}
}

func TestRegistryValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"merkl without chains", `merkl: {}`, "chain id"},
		{"subgraph missing url", `subgraphs: [{name: s, network: base}]`, "subgraphs[0]"},
		{"page without asset column", `pages: [{name: p, url: "http://x", network: eth}]`, "columns.asset"},
		{"page without network", `pages: [{name: p, url: "http://x", columns: {asset: 0}}]`, "network"},
		{"bad category rule", `pages: [{name: p, url: "http://x", network: eth, columns: {asset: 0}, categoryRules: [{contains: x}]}]`, "categoryRules[0]"},
		{"duplicate names", `
subgraphs: [{name: dup, network: base, url: "http://a"}]
endpoints: [{name: dup, url: "http://b", network: eth, fields: {asset: s}}]`, `duplicate source name "dup"`},
		{"reserved name", `endpoints: [{name: merkl, url: "http://b", network: eth, fields: {asset: s}}]`, "duplicate"},
		{"malformed", `pages: [`, "parse source registry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(sampleRegistry), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRegistry(path); err != nil {
		t.Errorf("LoadRegistry: %v", err)
	}
	if _, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadRegistry of missing file should fail")
	}
}

func TestShippedRegistryIsValid(t *testing.T) {
	if _, err := LoadRegistry(filepath.Join("..", "..", "config", "sources.yaml")); err != nil {
		t.Errorf("config/sources.yaml: %v", err)
	}
}

func TestLoadRegistryExpandsEnv(t *testing.T) {
	t.Setenv("TEST_SUBGRAPH_KEY", "secret-key")
	path := filepath.Join(t.TempDir(), "sources.yaml")
	body := "subgraphs: [{name: s, network: base, url: \"https://gw.example/${TEST_SUBGRAPH_KEY}/q\"}]"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	r, err := LoadRegistry(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Subgraphs[0].URL; got != "https://gw.example/secret-key/q" {
		t.Errorf("URL = %q", got)
	}
}
