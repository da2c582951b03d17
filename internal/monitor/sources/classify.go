package sources

import (
	"strings"

	"github.com/web3-frozen/yield-tracker/internal/config"
	"github.com/web3-frozen/yield-tracker/internal/snapshot"
)

// Pool categories shared by the adapters.
const (
	CategoryStaking = "staking"
	CategoryLending = "lending"
	CategoryDex     = "dex"
	CategoryFarming = "farming"
)

// classify returns the category of the first rule whose Contains occurs in
// text (case-insensitive), or fallback.
func classify(text string, rules []config.CategoryRule, fallback string) string {
	text = strings.ToLower(text)
	for _, r := range rules {
		if strings.Contains(text, strings.ToLower(r.Contains)) {
			return r.Category
		}
	}
	return fallback
}

// keepMostLiquid keeps one item per stored identity, the one with the highest
// TVL, so an aggregator never overwrites a pool with a smaller one for the same
// asset in the same run. First-occurrence order is preserved.
func keepMostLiquid[T any](items []T, key func(T) snapshot.Key, tvl func(T) float64) []T {
	index := make(map[snapshot.Key]int, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		k := key(it)
		if i, ok := index[k]; ok {
			if tvl(it) > tvl(out[i]) {
				out[i] = it
			}
			continue
		}
		index[k] = len(out)
		out = append(out, it)
	}
	return out
}
