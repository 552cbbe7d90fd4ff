package twelvedata

import (
	"errors"
	"fmt"
	"strconv"

	"marketpanel/internal/domain"
)

var (
	// ErrMissingCredential is returned when no API key is configured.
	ErrMissingCredential = errors.New("twelvedata: TWELVE_API_KEY is not set")
	// ErrSymbolNotFound marks a provider "not found"/"invalid" response.
	ErrSymbolNotFound = errors.New("twelvedata: symbol not supported")
	// ErrRateLimited marks HTTP 429 or a credit/rate-limit error envelope.
	ErrRateLimited = errors.New("twelvedata: rate limited")
	// ErrHTTPStatus marks a non-200 response without a clearer meaning.
	ErrHTTPStatus = errors.New("twelvedata: unexpected HTTP status")
	// ErrProviderFatal marks any other error envelope.
	ErrProviderFatal = errors.New("twelvedata: provider error")
)

// ErrorKind classifies a provider failure.
type ErrorKind int

const (
	KindHTTP ErrorKind = iota
	KindRateLimited
	KindNotFound
	KindFatal
)

// APIError describes a failed provider call.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Code       int
	Message    string
	Endpoint   string
	Symbol     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twelvedata %s %s: %s (status: %d, code: %d)",
		e.Endpoint, e.Symbol, e.Message, e.StatusCode, e.Code)
}

// Unwrap exposes the sentinel for the error's kind.
func (e *APIError) Unwrap() error {
	switch e.Kind {
	case KindRateLimited:
		return ErrRateLimited
	case KindNotFound:
		return ErrSymbolNotFound
	case KindFatal:
		return ErrProviderFatal
	}
	return ErrHTTPStatus
}

// envelope is the status part every response may carry.
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// SeriesMeta is the meta block of a time_series response.
type SeriesMeta struct {
	Symbol           string `json:"symbol"`
	Name             string `json:"name"`
	Interval         string `json:"interval"`
	Currency         string `json:"currency"`
	ExchangeTimezone string `json:"exchange_timezone"`
	Exchange         string `json:"exchange"`
	MICCode          string `json:"mic_code"`
	Type             string `json:"type"`
}

// Value is one raw time_series row. Keys may be missing and values may be
// null, strings, or numbers depending on the instrument.
type Value map[string]any

// Datetime returns the row's datetime field.
func (v Value) Datetime() string {
	s, _ := v.Field("datetime")
	return s
}

// Field returns the field as a string and whether the key was present at
// all. A JSON null is reported as present with an empty string.
func (v Value) Field(name string) (string, bool) {
	raw, ok := v[name]
	if !ok {
		return "", false
	}
	switch x := raw.(type) {
	case nil:
		return "", true
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return fmt.Sprint(x), true
	}
}

// SeriesResponse is a decoded time_series response, newest row first as
// the provider returns it.
type SeriesResponse struct {
	Meta   SeriesMeta `json:"meta"`
	Values []Value    `json:"values"`
}

// QuoteResponse is a decoded quote response.
type QuoteResponse struct {
	domain.Quote
}
