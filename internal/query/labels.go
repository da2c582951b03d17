package query

import "strings"

var networkLabels = map[string]string{
	"ethereum":     "Ethereum",
	"arbitrum":     "Arbitrum",
	"arbitrum-one": "Arbitrum One",
	"op-mainnet":   "OP Mainnet",
	"optimism":     "Optimism",
	"base":         "Base",
	"polygon":      "Polygon",
	"bsc":          "BNB Chain",
	"bnb-chain":    "BNB Chain",
	"zksync-era":   "zkSync Era",
	"avalanche":    "Avalanche",
	"hyperevm":     "HyperEVM",
}

var categoryLabels = map[string]string{
	"defi": "DeFi",
	"dex":  "DEX",
	"lst":  "Liquid Staking",
}

var categoryKinds = map[string]string{
	"staking":   "staking",
	"lst":       "staking",
	"restaking": "staking",
	"lending":   "lending",
	"borrowing": "lending",
	"defi":      "defi",
	"dex":       "defi",
	"farming":   "defi",
	"vault":     "defi",
}

// NetworkLabel returns the display name of a network id: "polygon-zkevm" -> "Polygon Zkevm".
func NetworkLabel(id string) string {
	id = strings.ToLower(id)
	if l, ok := networkLabels[id]; ok {
		return l
	}
	return titleWords(id)
}

func CategoryLabel(id string) string {
	id = strings.ToLower(id)
	if l, ok := categoryLabels[id]; ok {
		return l
	}
	return titleWords(id)
}

// CategoryKind groups categories into staking, defi, lending or other.
func CategoryKind(id string) string {
	if k, ok := categoryKinds[strings.ToLower(id)]; ok {
		return k
	}
	return "other"
}

func titleWords(id string) string {
	words := strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(id))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
