package okx

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Instruments lists tradable instruments of instType (e.g. "SWAP").
func (c *Client) Instruments(ctx context.Context, instType string) ([]Instrument, error) {
	env, err := c.get(ctx, "/api/v5/public/instruments", url.Values{"instType": {instType}}, false)
	if err != nil {
		return nil, err
	}
	var rows []Instrument
	if err := env.decodeRequired(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode instruments: %w", err)
	}
	return rows, nil
}

// Ticker returns the last traded price of instID. ok is false when the
// exchange returned no usable price.
func (c *Client) Ticker(ctx context.Context, instID string) (price float64, ok bool, err error) {
	env, err := c.get(ctx, "/api/v5/market/ticker", url.Values{"instId": {instID}}, false)
	if err != nil {
		return 0, false, err
	}
	var rows []Ticker
	if err := env.decodeData(&rows); err != nil {
		return 0, false, fmt.Errorf("failed to decode ticker: %w", err)
	}
	if len(rows) == 0 || rows[0].Last == "" {
		return 0, false, nil
	}
	p, err := strconv.ParseFloat(rows[0].Last, 64)
	if err != nil {
		return 0, false, nil
	}
	return p, true, nil
}

// Tickers returns instId -> last price for every instrument of instType.
// Rows with unparsable prices are skipped.
func (c *Client) Tickers(ctx context.Context, instType string) (map[string]float64, error) {
	env, err := c.get(ctx, "/api/v5/market/tickers", url.Values{"instType": {instType}}, false)
	if err != nil {
		return nil, err
	}
	var rows []Ticker
	if err := env.decodeRequired(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode tickers: %w", err)
	}
	prices := make(map[string]float64, len(rows))
	for _, r := range rows {
		if r.InstID == "" || r.Last == "" {
			continue
		}
		p, err := strconv.ParseFloat(r.Last, 64)
		if err != nil {
			continue
		}
		prices[r.InstID] = p
	}
	return prices, nil
}

// ServerTime pings /api/v5/public/time and returns the server clock in ms.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	env, err := c.get(ctx, "/api/v5/public/time", nil, false)
	if err != nil {
		return 0, err
	}
	var rows []struct {
		TS string `json:"ts"`
	}
	if err := env.decodeData(&rows); err != nil {
		return 0, fmt.Errorf("failed to decode server time: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	ts, _ := strconv.ParseInt(rows[0].TS, 10, 64)
	return ts, nil
}
