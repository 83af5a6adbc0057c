package domain

import (
	"fmt"
	"strings"
)

var knownQuotes = []string{"USDT", "USDC", "EUR", "USD", "GBP", "BTC"}

// Pair - parsed trading pair
type Pair struct {
	Base  string // BTC
	Quote string // EUR
}

// ParsePair accepts "btceur", "BTCUSDT", "BTC-EUR" or "BTC/EUR".
func ParsePair(symbol string) (Pair, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, sep := range []string{"-", "/", "_"} {
		if parts := strings.Split(s, sep); len(parts) == 2 {
			if parts[0] == "" || parts[1] == "" {
				return Pair{}, fmt.Errorf("invalid pair format: %s", symbol)
			}
			return Pair{Base: parts[0], Quote: parts[1]}, nil
		}
	}

	for _, quote := range knownQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Pair{Base: strings.TrimSuffix(s, quote), Quote: quote}, nil
		}
	}
	return Pair{}, fmt.Errorf("invalid pair format: %s", symbol)
}

// Bitstamp channels use the lower-case concatenation: "btceur".
func (p Pair) Bitstamp() string { return strings.ToLower(p.Base + p.Quote) }

// Bybit linear symbols use the upper-case concatenation: "BTCUSDT".
func (p Pair) Bybit() string { return p.Base + p.Quote }

func (p Pair) String() string { return p.Base + "/" + p.Quote }
