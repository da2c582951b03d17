package sources

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/web3-frozen/yield-tracker/internal/config"
	"github.com/web3-frozen/yield-tracker/internal/monitor"
	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

// PageRow is one table row as extracted in the browser.
type PageRow struct {
	Cells []string `json:"cells"`
	Text  string   `json:"text"`
}

// rowsScript is evaluated in the browser to pull the trimmed text of every cell.
func rowsScript(rowSelector string) string {
	return fmt.Sprintf(`
(() => {
	const rows = document.querySelectorAll(%s);
	const data = [];
	rows.forEach(row => {
		const cells = Array.from(row.querySelectorAll('td')).map(td => (td.textContent || '').trim());
		if (cells.length === 0) return;
		data.push({cells: cells, text: (row.textContent || '').trim()});
	});
	return JSON.stringify(data);
})()
`, strconv.Quote(rowSelector))
}

// Page reads a rendered table whose columns are described in the registry.
type Page struct {
	cfg        config.PageSource
	navTimeout time.Duration
}

func NewPage(cfg config.PageSource, navTimeout time.Duration) *Page {
	return &Page{cfg: cfg, navTimeout: navTimeout}
}

func (p *Page) Info() monitor.SourceInfo {
	return monitor.SourceInfo{Name: p.cfg.Name, Network: p.cfg.Network}
}

func (p *Page) Page() monitor.PageSpec {
	return monitor.PageSpec{
		URL:           p.cfg.URL,
		ReadySelector: p.cfg.ReadySelector,
		RowsScript:    rowsScript(p.cfg.RowSelector),
		NextSelector:  p.cfg.NextSelector,
		MaxPages:      p.cfg.MaxPages,
		NavTimeout:    p.navTimeout,
	}
}

func cell(row PageRow, idx *int) (string, bool) {
	if idx == nil || *idx < 0 || *idx >= len(row.Cells) {
		return "", false
	}
	return row.Cells[*idx], true
}

func (p *Page) Normalize(row PageRow) (snapshot.Snapshot, error) {
	cols := p.cfg.Columns
	asset, ok := cell(row, cols.Asset)
	if !ok || asset == "" {
		return snapshot.Snapshot{}, fmt.Errorf("row has no asset cell (%d cells)", len(row.Cells))
	}
	// Symbols are often followed by a protocol badge: "USDC Aave".
	asset = strings.Fields(asset)[0]

	s := snapshot.Snapshot{
		Network:     p.cfg.Network,
		Category:    classify(row.Text, p.cfg.CategoryRules, p.cfg.DefaultCategory),
		AssetSymbol: asset,
	}
	if n, ok := cell(row, cols.Network); ok && n != "" {
		s.Network = slug(n)
	}

	rate := func(idx *int) *float64 {
		v, _ := cell(row, idx)
		return parsePercent(v)
	}
	s.SupplyRate = rate(cols.SupplyRate)
	s.BorrowRate = rate(cols.BorrowRate)
	s.RewardRate = rate(cols.RewardRate)
	s.TotalRate = rate(cols.TotalRate)
	if s.TotalRate == nil {
		s.TotalRate = sumRates(s.SupplyRate, s.RewardRate)
	}
	if v, ok := cell(row, cols.TVLUSD); ok {
		s.TVLUSD = parseUSD(v)
	}
	s.SetExtra(snapshot.ExtraURL, p.cfg.URL)
	return s, nil
}

// parsePercent reads "4.25%", "4.25 %" or "4.25". Unreadable cells ("-", "N/A") are absent.
func parsePercent(s string) *float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return finite(f)
}

var usdSuffixes = map[byte]float64{'K': 1e3, 'M': 1e6, 'B': 1e9, 'T': 1e12}

// parseUSD reads "$1,234.5", "$12.3M" or "4.1B".
func parseUSD(s string) *float64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return nil
	}
	mult := 1.0
	if m, ok := usdSuffixes[s[len(s)-1]]; ok {
		mult = m
		s = s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return finite(f * mult)
}
