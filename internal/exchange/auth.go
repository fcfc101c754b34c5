// auth.go implements request signing for the venue's private REST API.
//
// Binance futures authenticates with an API key header plus an HMAC-SHA256
// signature over the url-encoded query string, which must include a
// millisecond timestamp. Public market-data endpoints skip signing.
package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"
)

const apiKeyHeader = "X-MBX-APIKEY"

// Credentials are passed to the gateway constructor; the core never reads
// them from the environment.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Signer produces signed query strings for private endpoints.
type Signer struct {
	creds Credentials
}

// NewSigner creates a signer for the given credentials.
func NewSigner(creds Credentials) *Signer {
	return &Signer{creds: creds}
}

// APIKey returns the key for the auth header.
func (s *Signer) APIKey() string { return s.creds.APIKey }

// Sign appends a timestamp to params, signs the encoded query, and returns
// the final query string with the signature attached.
func (s *Signer) Sign(params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	query := params.Encode()
	return query + "&signature=" + s.signature(query)
}

func (s *Signer) signature(payload string) string {
	mac := hmac.New(sha256.New, []byte(s.creds.APISecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
