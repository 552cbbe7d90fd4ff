package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"marketpanel/internal/domain"
	"marketpanel/internal/gather/twelvedata"
	"marketpanel/internal/marketcache"
	"marketpanel/internal/util"
)

type fakeProvider struct {
	got struct{ symbol, interval, period string }
	err error
}

func (f *fakeProvider) GetSeries(_ context.Context, symbol, interval, period string) (*domain.Series, error) {
	f.got.symbol, f.got.interval, f.got.period = symbol, interval, period
	if f.err != nil {
		return nil, f.err
	}
	d := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	return &domain.Series{
		Symbol:   symbol,
		Interval: interval,
		Meta:     domain.SeriesMeta{Name: "Apple Inc", Exchange: "NASDAQ", Currency: "USD"},
		Bars: []domain.Bar{
			{Date: d.AddDate(0, 0, -3), Open: 181.99, High: 182.76, Low: 180.17, Close: 181.18, Volume: 62e6},
			{Date: d, Open: 182.09, High: 185.6, Low: 181.5, Close: math.NaN(), Volume: 59e6},
		},
	}, nil
}

func (f *fakeProvider) GetQuote(_ context.Context, symbol string) (domain.Quote, error) {
	if f.err != nil {
		return domain.Quote{}, f.err
	}
	return domain.Quote{Symbol: symbol, Name: "Apple Inc", Close: "185.56", Change: "4.38", Derived: true}, nil
}

func (f *fakeProvider) CompanyName(_ context.Context, symbol string) string {
	if symbol == "AAPL" {
		return "Apple Inc"
	}
	return symbol
}

func startServer(t *testing.T, p Provider) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer("bufnet", NewMarketDataService(p, util.Discard()), util.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errc; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})

	c, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGetSeries(t *testing.T) {
	p := &fakeProvider{}
	c := startServer(t, p)

	out, err := c.GetSeries(context.Background(), " aapl ", "", "12mo")
	if err != nil {
		t.Fatalf("GetSeries: %v", err)
	}
	if p.got.symbol != "AAPL" || p.got.interval != marketcache.DefaultInterval || p.got.period != "12mo" {
		t.Errorf("provider called with %+v", p.got)
	}

	m := out.AsMap()
	if m["symbol"] != "AAPL" || m["interval"] != "1day" {
		t.Errorf("header = %v / %v", m["symbol"], m["interval"])
	}
	if name := m["meta"].(map[string]any)["name"]; name != "Apple Inc" {
		t.Errorf("meta.name = %v", name)
	}
	bars := m["bars"].([]any)
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	first := bars[0].(map[string]any)
	if first["datetime"] != "2024-01-05" || first["close"] != 181.18 {
		t.Errorf("bars[0] = %v", first)
	}
	if last := bars[1].(map[string]any); last["close"] != nil {
		t.Errorf("NaN close should be null, got %v", last["close"])
	}
}

func TestGetQuote(t *testing.T) {
	c := startServer(t, &fakeProvider{})

	out, err := c.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	m := out.AsMap()
	if m["close"] != "185.56" || m["change"] != "4.38" || m["derived"] != true {
		t.Errorf("quote = %v", m)
	}
	if _, ok := m["fifty_two_week"].(map[string]any); !ok {
		t.Errorf("fifty_two_week missing: %v", m["fifty_two_week"])
	}
}

func TestGetCompanyName(t *testing.T) {
	c := startServer(t, &fakeProvider{})

	for symbol, want := range map[string]string{"aapl": "Apple Inc", "ZZZZ": "ZZZZ"} {
		got, err := c.GetCompanyName(context.Background(), symbol)
		if err != nil {
			t.Fatalf("GetCompanyName(%s): %v", symbol, err)
		}
		if got != want {
			t.Errorf("GetCompanyName(%s) = %q, want %q", symbol, got, want)
		}
	}
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"not found", &twelvedata.APIError{Kind: twelvedata.KindNotFound, Symbol: "ZZZZ", Message: "symbol not found"}, codes.NotFound},
		{"exhausted", fmt.Errorf("%w after 3 attempts: %w", util.ErrRetriesExhausted, twelvedata.ErrRateLimited), codes.Unavailable},
		{"fatal", &twelvedata.APIError{Kind: twelvedata.KindFatal, Message: "bad api key"}, codes.FailedPrecondition},
		{"credential", twelvedata.ErrMissingCredential, codes.FailedPrecondition},
		{"empty", marketcache.ErrEmptyResponse, codes.FailedPrecondition},
		{"other", errors.New("disk on fire"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := startServer(t, &fakeProvider{err: tt.err})
			_, err := c.GetSeries(context.Background(), "ZZZZ", "", "")
			if got := status.Code(err); got != tt.want {
				t.Errorf("code = %s, want %s (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestMissingSymbol(t *testing.T) {
	c := startServer(t, &fakeProvider{})
	_, err := c.GetQuote(context.Background(), "  ")
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("code = %s, want InvalidArgument", status.Code(err))
	}
}

func TestCode(t *testing.T) {
	if Code(context.Canceled) != codes.Canceled || Code(fmt.Errorf("x: %w", context.DeadlineExceeded)) != codes.DeadlineExceeded {
		t.Error("context errors should map to their gRPC codes")
	}
}
