// symbols.go converts between the canonical BASE/QUOTE symbol form and
// venue-specific forms.
//
// Venues with a separator (OKX-style BASE-QUOTE) convert trivially. Venues
// that concatenate (Binance BTCUSDT) are split with a priority-ordered list
// of known quote assets; when no suffix matches, long symbols split off the
// last four characters and short ones the last three.
package exchange

import (
	"fmt"
	"strings"
)

// Denormalize converts canonical BASE/QUOTE to the venue's native form.
// Inputs already in venue form pass through unchanged.
func Denormalize(symbol string, venue VenueProfile) string {
	base, quote, ok := strings.Cut(symbol, "/")
	if !ok {
		return symbol
	}
	return strings.ToUpper(base) + venue.SymbolSep + strings.ToUpper(quote)
}

// Normalize converts a venue-native symbol to canonical BASE/QUOTE.
// Inputs already canonical pass through unchanged.
func Normalize(symbol string, venue VenueProfile) string {
	if strings.Contains(symbol, "/") {
		return strings.ToUpper(symbol)
	}
	symbol = strings.ToUpper(symbol)

	if venue.SymbolSep != "" {
		base, quote, ok := strings.Cut(symbol, venue.SymbolSep)
		if !ok {
			return symbol
		}
		return base + "/" + quote
	}

	for _, quote := range venue.QuoteSuffixes {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return symbol[:len(symbol)-len(quote)] + "/" + quote
		}
	}

	// Unknown quote asset: guess the split point by length.
	if len(symbol) > 6 {
		return symbol[:len(symbol)-4] + "/" + symbol[len(symbol)-4:]
	}
	if len(symbol) > 3 {
		return symbol[:len(symbol)-3] + "/" + symbol[len(symbol)-3:]
	}
	return symbol
}

// SplitSymbol returns the base and quote of a canonical symbol.
func SplitSymbol(symbol string) (base, quote string, err error) {
	base, quote, ok := strings.Cut(symbol, "/")
	if !ok || base == "" || quote == "" {
		return "", "", fmt.Errorf("malformed symbol %q: %w", symbol, ErrInvalidOrder)
	}
	return base, quote, nil
}

// StreamSymbol returns the lowercase venue form used in stream names,
// e.g. BTC/USDT → btcusdt.
func StreamSymbol(symbol string, venue VenueProfile) string {
	return strings.ToLower(Denormalize(symbol, venue))
}
