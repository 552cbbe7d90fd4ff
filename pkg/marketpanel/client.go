// Package marketpanel is a Go client for the marketpanel-server gRPC API.
package marketpanel

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"marketpanel/internal/api"
	"marketpanel/internal/domain"
)

// Quote is a latest-quote snapshot in provider string form.
type Quote = domain.Quote

// Bar is one daily OHLCV row. Missing values are NaN.
type Bar struct {
	Date                           time.Time
	Open, High, Low, Close, Volume float64
}

// Series is a symbol's cached history.
type Series struct {
	Symbol   string
	Interval string
	Name     string
	Exchange string
	Currency string
	Bars     []Bar
}

// Client talks to a marketpanel-server.
type Client struct {
	rpc *api.Client
}

// NewClient creates a client for the server at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	rpc, err := api.Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: rpc}, nil
}

// Close closes the connection.
func (c *Client) Close() error { return c.rpc.Close() }

// Series retrieves a symbol's series. Empty interval and period select the
// server defaults.
func (c *Client) Series(ctx context.Context, symbol, interval, period string) (*Series, error) {
	out, err := c.rpc.GetSeries(ctx, symbol, interval, period)
	if err != nil {
		return nil, err
	}
	f := out.GetFields()
	meta := f["meta"].GetStructValue().GetFields()
	s := &Series{
		Symbol:   f["symbol"].GetStringValue(),
		Interval: f["interval"].GetStringValue(),
		Name:     meta["name"].GetStringValue(),
		Exchange: meta["exchange"].GetStringValue(),
		Currency: meta["currency"].GetStringValue(),
	}
	for i, v := range f["bars"].GetListValue().GetValues() {
		bf := v.GetStructValue().GetFields()
		d, err := domain.ParseDay(bf["datetime"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
		s.Bars = append(s.Bars, Bar{
			Date:   d,
			Open:   number(bf["open"]),
			High:   number(bf["high"]),
			Low:    number(bf["low"]),
			Close:  number(bf["close"]),
			Volume: number(bf["volume"]),
		})
	}
	return s, nil
}

// Quote retrieves the latest quote.
func (c *Client) Quote(ctx context.Context, symbol string) (Quote, error) {
	out, err := c.rpc.GetQuote(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	raw, err := out.MarshalJSON()
	if err != nil {
		return Quote{}, err
	}
	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return Quote{}, fmt.Errorf("decoding quote: %w", err)
	}
	q.Derived = out.GetFields()["derived"].GetBoolValue()
	return q, nil
}

// CompanyName returns the company name, or the symbol when unknown.
func (c *Client) CompanyName(ctx context.Context, symbol string) (string, error) {
	return c.rpc.GetCompanyName(ctx, symbol)
}

func number(v *structpb.Value) float64 {
	if n, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
		return n.NumberValue
	}
	return math.NaN()
}
