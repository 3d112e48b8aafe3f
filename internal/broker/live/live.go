// Package live implements a broker.Gateway adapter over a minimal generic
// HTTP+JSON REST contract plus a websocket stream, for any vendor exposing
// that shape: no vendor-specific parsing belongs in the core, only at this
// adapter boundary. REST calls are rate-limited with internal/broker.Limiter;
// the two realtime streams are read through internal/broker/wsfeed's generic
// reconnecting client.
package live

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matiasvillaverde/trust-core/internal/broker"
	"github.com/matiasvillaverde/trust-core/internal/broker/wsfeed"
	"github.com/matiasvillaverde/trust-core/internal/errs"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/orderbook"
)

// Credentials authenticate REST calls against the vendor's API.
type Credentials struct {
	APIKey string
	APISecret string
}

// Adapter implements broker.Gateway against BaseURL's REST surface and
// StreamURL's websocket surface.
type Adapter struct {
	BaseURL string
	StreamURL string
	Creds Credentials
	HTTP *http.Client
	Limiter *broker.Limiter
}

// New builds an Adapter with a 10req/s, burst-20 limiter (a conservative
// default any vendor's free tier tolerates) and a 10s HTTP timeout.
func New(baseURL, streamURL string, creds Credentials) *Adapter {
	return &Adapter{
		BaseURL: baseURL,
		StreamURL: streamURL,
		Creds: creds,
		HTTP: &http.Client{Timeout: 10 * time.Second},
		Limiter: broker.NewLimiter(10, 20),
	}
}

func (a *Adapter) do(ctx context.Context, method, path string, body, out any) (string, error) {
	if err := a.Limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reader)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", a.Creds.APIKey)

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return "", errs.NewBrokerError(errs.Transient, "ConnectionReset", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errs.NewBrokerError(errs.Transient, "Timeout", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", errs.NewBrokerError(errs.Transient, "RateLimited", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return "", errs.NewBrokerError(errs.Fatal, "Unauthorized", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 500 {
		return "", errs.NewBrokerError(errs.Transient, "Timeout", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return "", errs.NewBrokerError(errs.Fatal, "Rejected", fmt.Errorf("status %d: %s", resp.StatusCode, raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return string(raw), fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return string(raw), nil
}

type submitRequest struct {
	Symbol string `json:"symbol"`
	Entry orderRequest `json:"entry"`
	Target orderRequest `json:"target"`
	Stop orderRequest `json:"stop"`
}

type orderRequest struct {
	ClientOrderID string `json:"client_order_id"`
	Category string `json:"category"`
	Action string `json:"action"`
	Quantity uint64 `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type submitResponse struct {
	EntryBrokerOrderID string `json:"entry_broker_order_id"`
	TargetBrokerOrderID string `json:"target_broker_order_id"`
	SafetyStopBrokerOrderID string `json:"safety_stop_broker_order_id"`
}

// SubmitTrade posts the bracket order to POST /orders.
func (a *Adapter) SubmitTrade(ctx context.Context, entry, target, stop orderbook.Order, symbol string) (broker.Log, broker.OrderIDs, error) {
	req := submitRequest{
		Symbol: symbol,
		Entry: toOrderRequest(entry),
		Target: toOrderRequest(target),
		Stop: toOrderRequest(stop),
	}
	var resp submitResponse
	raw, err := a.do(ctx, http.MethodPost, "/orders", req, &resp)
	if err != nil {
		return broker.Log{}, broker.OrderIDs{}, err
	}
	return broker.Log{Operation: "submit_trade", Payload: raw, CreatedAt: time.Now().UTC()},
		broker.OrderIDs{
			EntryBrokerOrderID: resp.EntryBrokerOrderID,
			TargetBrokerOrderID: resp.TargetBrokerOrderID,
			SafetyStopBrokerOrderID: resp.SafetyStopBrokerOrderID,
		}, nil
}

func toOrderRequest(o orderbook.Order) orderRequest {
	return orderRequest{
		ClientOrderID: o.ID,
		Category: string(o.Category),
		Action: string(o.Action),
		Quantity: uint64(o.Quantity),
		UnitPrice: o.UnitPrice.String(),
	}
}

type vendorOrderWire struct {
	ClientOrderID string `json:"client_order_id"`
	BrokerOrderID string `json:"broker_order_id"`
	Status string `json:"status"`
	FilledQuantity uint64 `json:"filled_quantity"`
	AverageFilledPrice *string `json:"average_filled_price"`
	FilledAt *string `json:"filled_at"`
	CancelledAt *string `json:"cancelled_at"`
	ExpiredAt *string `json:"expired_at"`
}

func (w vendorOrderWire) toVendorOrder() (broker.VendorOrder, error) {
	v := broker.VendorOrder{
		ClientOrderID: w.ClientOrderID,
		BrokerOrderID: w.BrokerOrderID,
		Status: orderbook.ParseStatus(w.Status),
		FilledQuantity: money.Quantity(w.FilledQuantity),
	}
	if w.AverageFilledPrice != nil {
		d, err := money.Parse(*w.AverageFilledPrice)
		if err != nil {
			return broker.VendorOrder{}, err
		}
		v.AverageFilledPrice = &d
	}
	var err error
	if v.FilledAt, err = parseOptionalTime(w.FilledAt); err != nil {
		return broker.VendorOrder{}, err
	}
	if v.CancelledAt, err = parseOptionalTime(w.CancelledAt); err != nil {
		return broker.VendorOrder{}, err
	}
	if v.ExpiredAt, err = parseOptionalTime(w.ExpiredAt); err != nil {
		return broker.VendorOrder{}, err
	}
	return v, nil
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", *s, err)
	}
	return &t, nil
}

// SyncTrade pulls current vendor order state for symbol from GET /orders.
func (a *Adapter) SyncTrade(ctx context.Context, symbol string, localStatus string, entryClientID, targetBrokerID string) ([]broker.VendorOrder, broker.Log, error) {
	path := fmt.Sprintf("/orders?symbol=%s&entry_client_id=%s&target_broker_order_id=%s", symbol, entryClientID, targetBrokerID)
	var wire []vendorOrderWire
	raw, err := a.do(ctx, http.MethodGet, path, nil, &wire)
	if err != nil {
		return nil, broker.Log{}, err
	}
	out := make([]broker.VendorOrder, 0, len(wire))
	for _, w := range wire {
		v, err := w.toVendorOrder()
		if err != nil {
			return nil, broker.Log{}, fmt.Errorf("decode vendor order: %w", err)
		}
		out = append(out, v)
	}
	return out, broker.Log{Operation: "sync_trade", Payload: raw, CreatedAt: time.Now().UTC()}, nil
}

// CloseTrade posts an immediate market exit to POST /orders/close.
func (a *Adapter) CloseTrade(ctx context.Context, symbol string, quantity money.Quantity) (broker.VendorOrder, broker.Log, error) {
	req := map[string]any{"symbol": symbol, "quantity": uint64(quantity)}
	var wire vendorOrderWire
	raw, err := a.do(ctx, http.MethodPost, "/orders/close", req, &wire)
	if err != nil {
		return broker.VendorOrder{}, broker.Log{}, err
	}
	v, err := wire.toVendorOrder()
	if err != nil {
		return broker.VendorOrder{}, broker.Log{}, err
	}
	return v, broker.Log{Operation: "close_trade", Payload: raw, CreatedAt: time.Now().UTC()}, nil
}

// CancelTrade cancels every given broker order id.
func (a *Adapter) CancelTrade(ctx context.Context, orderIDs []string) error {
	req := map[string]any{"broker_order_ids": orderIDs}
	_, err := a.do(ctx, http.MethodPost, "/orders/cancel", req, nil)
	return err
}

type replaceResponse struct {
	BrokerOrderID string `json:"broker_order_id"`
}

// ModifyStop replaces the stop leg's price via POST /orders/{id}/modify.
func (a *Adapter) ModifyStop(ctx context.Context, orderID string, newPrice money.Decimal) (string, error) {
	return a.modify(ctx, orderID, newPrice)
}

// ModifyTarget replaces the target leg's price via POST /orders/{id}/modify.
func (a *Adapter) ModifyTarget(ctx context.Context, orderID string, newPrice money.Decimal) (string, error) {
	return a.modify(ctx, orderID, newPrice)
}

func (a *Adapter) modify(ctx context.Context, orderID string, newPrice money.Decimal) (string, error) {
	req := map[string]any{"new_price": newPrice.String()}
	var resp replaceResponse
	if _, err := a.do(ctx, http.MethodPost, "/orders/"+orderID+"/modify", req, &resp); err != nil {
		return "", err
	}
	return resp.BrokerOrderID, nil
}

type barWire struct {
	Timestamp string `json:"timestamp"`
	Open string `json:"open"`
	High string `json:"high"`
	Low string `json:"low"`
	Close string `json:"close"`
	Volume string `json:"volume"`
}

// GetBars fetches OHLCV history for grading's ADV-20/ATR-14 backfill from
// GET /bars.
func (a *Adapter) GetBars(ctx context.Context, symbol string, start, end time.Time, timeframe string) ([]broker.MarketBar, error) {
	path := fmt.Sprintf("/bars?symbol=%s&start=%s&end=%s&timeframe=%s",
		symbol, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), timeframe)
	var wire []barWire
	if _, err := a.do(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]broker.MarketBar, 0, len(wire))
	for _, w := range wire {
		bar, err := w.toMarketBar()
		if err != nil {
			return nil, err
		}
		out = append(out, bar)
	}
	return out, nil
}

func (w barWire) toMarketBar() (broker.MarketBar, error) {
	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		return broker.MarketBar{}, fmt.Errorf("parse bar timestamp: %w", err)
	}
	open, err := money.Parse(w.Open)
	if err != nil {
		return broker.MarketBar{}, err
	}
	high, err := money.Parse(w.High)
	if err != nil {
		return broker.MarketBar{}, err
	}
	low, err := money.Parse(w.Low)
	if err != nil {
		return broker.MarketBar{}, err
	}
	closePx, err := money.Parse(w.Close)
	if err != nil {
		return broker.MarketBar{}, err
	}
	volume, err := money.Parse(w.Volume)
	if err != nil {
		return broker.MarketBar{}, err
	}
	return broker.MarketBar{Timestamp: ts, Open: open, High: high, Low: low, Close: closePx, Volume: volume}, nil
}

type orderUpdateWire struct {
	BrokerOrderID string `json:"broker_order_id"`
	ClientOrderID string `json:"client_order_id"`
	EventType string `json:"event_type"`
	Status string `json:"status"`
	FilledQuantity uint64 `json:"filled_quantity"`
	AverageFilledPrice *string `json:"average_filled_price"`
	At string `json:"at"`
}

// SubscribeOrderUpdates opens the vendor's realtime order stream at
// StreamURL + "/order_updates".
func (a *Adapter) SubscribeOrderUpdates(ctx context.Context) (<-chan broker.OrderUpdate, error) {
	client := wsfeed.New(a.StreamURL + "/order_updates")
	out, _, err := wsfeed.Subscribe(ctx, client, decodeOrderUpdate)
	if err != nil {
		return nil, errs.NewBrokerError(errs.Transient, "ConnectionReset", err)
	}
	return out, nil
}

func decodeOrderUpdate(raw []byte) (broker.OrderUpdate, error) {
	var w orderUpdateWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return broker.OrderUpdate{}, err
	}
	at, err := time.Parse(time.RFC3339, w.At)
	if err != nil {
		return broker.OrderUpdate{}, err
	}
	upd := broker.OrderUpdate{
		BrokerOrderID: w.BrokerOrderID,
		ClientOrderID: w.ClientOrderID,
		EventType: w.EventType,
		Status: orderbook.ParseStatus(w.Status),
		FilledQuantity: money.Quantity(w.FilledQuantity),
		At: at,
		PayloadJSON: string(raw),
	}
	if w.AverageFilledPrice != nil {
		d, err := money.Parse(*w.AverageFilledPrice)
		if err != nil {
			return broker.OrderUpdate{}, err
		}
		upd.AverageFilledPrice = &d
	}
	return upd, nil
}

type tickWire struct {
	Symbol string `json:"symbol"`
	Price string `json:"price"`
	Size uint64 `json:"size"`
	Timestamp string `json:"timestamp"`
}

// SubscribeMarketData opens the vendor's realtime trade-tick stream at
// StreamURL + "/market_data".
func (a *Adapter) SubscribeMarketData(ctx context.Context, symbols []string, channels []string) (<-chan broker.Tick, error) {
	client := wsfeed.New(a.StreamURL + "/market_data")
	out, _, err := wsfeed.Subscribe(ctx, client, decodeTick)
	if err != nil {
		return nil, errs.NewBrokerError(errs.Transient, "ConnectionReset", err)
	}
	return out, nil
}

func decodeTick(raw []byte) (broker.Tick, error) {
	var w tickWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return broker.Tick{}, err
	}
	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		return broker.Tick{}, err
	}
	price, err := money.Parse(w.Price)
	if err != nil {
		return broker.Tick{}, err
	}
	return broker.Tick{Symbol: w.Symbol, Price: price, Size: money.Quantity(w.Size), Timestamp: ts}, nil
}

var _ broker.Gateway = (*Adapter)(nil)
