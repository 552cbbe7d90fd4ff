package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"marketpanel/internal/domain"
	"marketpanel/internal/gather/twelvedata"
	"marketpanel/internal/marketcache"
	"marketpanel/internal/util"
)

// Provider is the cache surface the service exposes.
type Provider interface {
	GetSeries(ctx context.Context, symbol, interval, period string) (*domain.Series, error)
	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)
	CompanyName(ctx context.Context, symbol string) string
}

// Compile-time interface checks.
var (
	_ Provider         = (*marketcache.Manager)(nil)
	_ MarketDataServer = (*MarketDataService)(nil)
)

// MarketDataService serves cached series, quotes, and company names.
type MarketDataService struct {
	provider Provider
	log      *slog.Logger
}

// NewMarketDataService creates a MarketDataService backed by provider.
func NewMarketDataService(provider Provider, logger *slog.Logger) *MarketDataService {
	if logger == nil {
		logger = util.Discard()
	}
	return &MarketDataService{provider: provider, log: logger.With("component", "grpc")}
}

// GetSeries takes {symbol, interval?, period?} and returns the series with
// one entry per bar under "bars".
func (s *MarketDataService) GetSeries(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	symbol, err := symbolArg(req)
	if err != nil {
		return nil, err
	}
	interval := stringArg(req, "interval", marketcache.DefaultInterval)
	period := stringArg(req, "period", marketcache.DefaultPeriod)

	series, err := s.provider.GetSeries(ctx, symbol, interval, period)
	if err != nil {
		return nil, s.toStatus("GetSeries", symbol, err)
	}

	bars := make([]any, len(series.Bars))
	for i, b := range series.Bars {
		bars[i] = map[string]any{
			"datetime": b.Date.Format(domain.DateLayout),
			"open":     number(b.Open),
			"high":     number(b.High),
			"low":      number(b.Low),
			"close":    number(b.Close),
			"volume":   number(b.Volume),
		}
	}
	return newStruct(map[string]any{
		"symbol":   series.Symbol,
		"interval": series.Interval,
		"meta": map[string]any{
			"name":     series.Meta.Name,
			"exchange": series.Meta.Exchange,
			"mic_code": series.Meta.MICCode,
			"currency": series.Meta.Currency,
		},
		"bars": bars,
	})
}

// GetQuote takes {symbol} and returns the quote fields in provider naming.
func (s *MarketDataService) GetQuote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	symbol, err := symbolArg(req)
	if err != nil {
		return nil, err
	}
	q, err := s.provider.GetQuote(ctx, symbol)
	if err != nil {
		return nil, s.toStatus("GetQuote", symbol, err)
	}

	raw, err := json.Marshal(q)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding quote: %v", err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, status.Errorf(codes.Internal, "encoding quote: %v", err)
	}
	fields["derived"] = q.Derived
	return newStruct(fields)
}

// GetCompanyName takes {symbol} and returns {symbol, name}. It falls back to
// the symbol itself and never fails on provider errors.
func (s *MarketDataService) GetCompanyName(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	symbol, err := symbolArg(req)
	if err != nil {
		return nil, err
	}
	return newStruct(map[string]any{
		"symbol": symbol,
		"name":   s.provider.CompanyName(ctx, symbol),
	})
}

func symbolArg(req *structpb.Struct) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(stringArg(req, "symbol", "")))
	if symbol == "" {
		return "", status.Error(codes.InvalidArgument, "symbol is required")
	}
	return symbol, nil
}

func stringArg(req *structpb.Struct, key, def string) string {
	v, ok := req.GetFields()[key]
	if !ok {
		return def
	}
	if s := v.GetStringValue(); s != "" {
		return s
	}
	return def
}

// number maps non-finite values to null since JSON clients cannot read them.
func number(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return out, nil
}

// toStatus maps domain errors onto gRPC codes.
func (s *MarketDataService) toStatus(method, symbol string, err error) error {
	code := Code(err)
	if code == codes.Internal || code == codes.Unavailable {
		s.log.Error("request failed", "method", method, "symbol", symbol, "error", err)
	} else {
		s.log.Debug("request rejected", "method", method, "symbol", symbol, "code", code, "error", err)
	}
	return status.Error(code, err.Error())
}

// Code returns the gRPC code for err.
func Code(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, twelvedata.ErrSymbolNotFound):
		return codes.NotFound
	case errors.Is(err, util.ErrRetriesExhausted):
		return codes.Unavailable
	case errors.Is(err, twelvedata.ErrMissingCredential),
		errors.Is(err, twelvedata.ErrProviderFatal),
		errors.Is(err, marketcache.ErrEmptyResponse):
		return codes.FailedPrecondition
	}
	return codes.Internal
}
