// errors.go defines the error taxonomy for venue interactions.
//
// Raw venue errors (numeric code + message) are classified into a small set
// of kinds that the rest of the bot branches on: only Transient errors are
// retried, RateLimit means the venue's ceiling was hit despite local
// shaping, InvalidOrder and InsufficientBalance are caller mistakes that
// must not be retried. Callers classify with errors.Is against the
// sentinel kinds below.
package exchange

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds. An *APIError unwraps to exactly one of these.
var (
	ErrTransient           = errors.New("transient venue error")
	ErrPermanent           = errors.New("permanent venue error")
	ErrRateLimit           = errors.New("venue rate limit exceeded")
	ErrInvalidOrder        = errors.New("invalid order")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConnection          = errors.New("connection error")
	ErrWebSocket           = errors.New("websocket error")
)

// Venue error codes (Binance USD-M Futures).
var (
	transientCodes = map[int]bool{
		-1001: true, // internal error
		-1021: true, // timestamp outside recv window
		-1022: true, // invalid signature (clock skew re-sign usually fixes it)
	}
	permanentCodes = map[int]bool{
		-1100: true, // illegal characters in parameter
		-1102: true, // mandatory parameter missing or malformed
	}
	invalidOrderCodes = map[int]bool{
		-2010: true, // new order rejected
		-2011: true, // cancel rejected
		-4001: true, // invalid leverage
		-4003: true, // quantity below minimum
		-4004: true, // quantity above maximum
		-4131: true, // price below minimum
		-4132: true, // price above maximum
	}
)

const rateLimitCode = -1003

// APIError is a classified venue error. Code and Message come straight off
// the wire; Unwrap returns the taxonomy kind so errors.Is works.
type APIError struct {
	Code    int
	Message string
	kind    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("venue error %d: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.kind }

// ClassifyAPIError maps a raw venue error to the taxonomy. The insufficient
// balance message check overrides code-based classification because the
// venue reports funding failures under order-rejection codes.
func ClassifyAPIError(code int, message string) *APIError {
	var kind error
	switch {
	case code == rateLimitCode:
		kind = ErrRateLimit
	case strings.Contains(strings.ToLower(message), "insufficient balance"):
		kind = ErrInsufficientBalance
	case invalidOrderCodes[code]:
		kind = ErrInvalidOrder
	case transientCodes[code]:
		kind = ErrTransient
	case permanentCodes[code]:
		kind = ErrPermanent
	default:
		kind = ErrPermanent
	}
	return &APIError{Code: code, Message: message, kind: kind}
}

// IsRetryable reports whether the retry policy may re-attempt the call.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// connErr wraps a transport-level failure as a Connection kind error.
func connErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrConnection, err)
}

// errorKindLabel renders an error's taxonomy kind as a metric label value.
// A nil error yields the empty string.
func errorKindLabel(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimit):
		return "rate_limit"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInvalidOrder):
		return "invalid_order"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrPermanent):
		return "permanent"
	default:
		return "error"
	}
}
