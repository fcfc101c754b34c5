// venue.go holds per-venue connection profiles: endpoints, symbol format,
// and published rate ceilings. The gateway picks the production or testnet
// endpoints from a single flag.
package exchange

// VenueProfile describes how to reach one venue and how it formats symbols.
type VenueProfile struct {
	Name          string
	RESTBaseURL   string
	RESTTestURL   string
	WSBaseURL     string
	WSTestURL     string
	SymbolSep     string   // "" when the venue concatenates base and quote
	QuoteSuffixes []string // priority-ordered, used when SymbolSep is empty
	RateLimits    LimiterConfig
}

// RESTURL returns the REST base for the chosen network.
func (v VenueProfile) RESTURL(testnet bool) string {
	if testnet {
		return v.RESTTestURL
	}
	return v.RESTBaseURL
}

// WSURL returns the WebSocket base for the chosen network.
func (v VenueProfile) WSURL(testnet bool) string {
	if testnet {
		return v.WSTestURL
	}
	return v.WSBaseURL
}

// BinanceFutures is the USD-M futures venue profile.
var BinanceFutures = VenueProfile{
	Name:        "binance_futures",
	RESTBaseURL: "https://fapi.binance.com",
	RESTTestURL: "https://testnet.binancefuture.com",
	WSBaseURL:   "wss://fstream.binance.com",
	WSTestURL:   "wss://stream.binancefuture.com",
	SymbolSep:   "",
	// Longest suffix wins; ordering matters for e.g. BTCUSDT vs ...USDC.
	QuoteSuffixes: []string{"USDT", "BUSD", "USDC", "BTC", "ETH", "BNB", "DAI"},
	RateLimits: LimiterConfig{
		RequestsPerMinute: 2400,
		WeightPerMinute:   2400,
		OrdersPerSecond:   300,
	},
}

// OKXFutures is kept for symbol-codec coverage of dash-separated venues.
var OKXFutures = VenueProfile{
	Name:        "okx_futures",
	RESTBaseURL: "https://www.okx.com",
	RESTTestURL: "https://www.okx.com",
	WSBaseURL:   "wss://ws.okx.com:8443",
	WSTestURL:   "wss://wspap.okx.com:8443",
	SymbolSep:   "-",
	RateLimits: LimiterConfig{
		RequestsPerMinute: 1200,
		WeightPerMinute:   1200,
		OrdersPerSecond:   60,
	},
}
