package marketpanel

import (
	"context"
	"math"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"marketpanel/internal/api"
	"marketpanel/internal/domain"
)

type stubProvider struct{}

func (stubProvider) GetSeries(_ context.Context, symbol, interval, _ string) (*domain.Series, error) {
	return &domain.Series{
		Symbol:   symbol,
		Interval: interval,
		Meta:     domain.SeriesMeta{Name: "SPDR Gold Shares", Exchange: "NYSE", Currency: "USD"},
		Bars: []domain.Bar{
			{Date: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), Open: 188.1, High: 188.9, Low: 187.2, Close: 187.94, Volume: math.NaN()},
		},
	}, nil
}

func (stubProvider) GetQuote(_ context.Context, symbol string) (domain.Quote, error) {
	return domain.Quote{
		Symbol: symbol, Name: "SPDR Gold Shares", Close: "187.94", PercentChange: "-0.21",
		FiftyTwoWeek: domain.FiftyTwoWeek{High: "193.86"},
	}, nil
}

func (stubProvider) CompanyName(_ context.Context, symbol string) string { return "SPDR Gold Shares" }

func newTestClient(t *testing.T) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := api.NewServer("bufnet", api.NewMarketDataService(stubProvider{}, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, lis)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	c, err := NewClient("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSeries(t *testing.T) {
	c := newTestClient(t)
	s, err := c.Series(context.Background(), "GLD", "", "")
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if s.Symbol != "GLD" || s.Interval != "1day" || s.Name != "SPDR Gold Shares" {
		t.Errorf("series header = %+v", s)
	}
	if len(s.Bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(s.Bars))
	}
	b := s.Bars[0]
	if !b.Date.Equal(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)) || b.Close != 187.94 {
		t.Errorf("bar = %+v", b)
	}
	if !math.IsNaN(b.Volume) {
		t.Errorf("missing volume should decode as NaN, got %v", b.Volume)
	}
}

func TestQuote(t *testing.T) {
	c := newTestClient(t)
	q, err := c.Quote(context.Background(), "gld")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Symbol != "GLD" || q.Close != "187.94" || q.PercentChange != "-0.21" || q.FiftyTwoWeek.High != "193.86" {
		t.Errorf("quote = %+v", q)
	}
	if q.Derived {
		t.Error("quote should not be marked derived")
	}

	name, err := c.CompanyName(context.Background(), "GLD")
	if err != nil || name != "SPDR Gold Shares" {
		t.Errorf("CompanyName = %q, %v", name, err)
	}
}
