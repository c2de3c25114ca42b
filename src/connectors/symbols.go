package connectors

import "strings"

const DefaultSymbol = "BTCUSDT"

var quoteAssets = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD"}

var pairSeparators = strings.NewReplacer("/", "", "-", "")

// NormalizeSymbol turns a strategy pair such as "eth/usdt" or "ETH-USDT" into
// the venue symbol ETHUSDT. An empty pair maps to DefaultSymbol.
func NormalizeSymbol(pair string) string {
	symbol := strings.ToUpper(pairSeparators.Replace(strings.TrimSpace(pair)))
	if symbol == "" {
		return DefaultSymbol
	}
	return symbol
}

// SplitSymbol returns the base and quote asset of a venue symbol.
// Unknown quotes return the whole symbol as base and an empty quote.
func SplitSymbol(symbol string) (base, quote string) {
	for _, q := range quoteAssets {
		if len(symbol) > len(q) && strings.HasSuffix(symbol, q) {
			return strings.TrimSuffix(symbol, q), q
		}
	}
	return symbol, ""
}

// BaseAsset is the asset held on spot after buying symbol.
func BaseAsset(symbol string) string {
	base, _ := SplitSymbol(symbol)
	return base
}
