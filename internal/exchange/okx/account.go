package okx

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// SetPositionMode switches the account between hedge (long_short_mode) and net mode.
func (c *Client) SetPositionMode(ctx context.Context, mode string) error {
	if mode != PosModeLongShort && mode != PosModeNet {
		return fmt.Errorf("invalid position mode %q", mode)
	}
	_, err := c.post(ctx, "/api/v5/account/set-position-mode", map[string]string{"posMode": mode})
	return err
}

// SetLeverage sets the leverage of an instrument/side.
func (c *Client) SetLeverage(ctx context.Context, req LeverageRequest) error {
	if req.Lever == "" {
		return fmt.Errorf("lever must be provided")
	}
	_, err := c.post(ctx, "/api/v5/account/set-leverage", req)
	return err
}

// Positions returns the live positions matching filter. InstType defaults to SWAP.
// A reply without a data array fails with ErrMalformedResponse instead of
// reading as "no positions".
func (c *Client) Positions(ctx context.Context, filter PositionsFilter) ([]PositionRow, error) {
	q := url.Values{}
	instType := filter.InstType
	if instType == "" {
		instType = "SWAP"
	}
	q.Set("instType", instType)
	if filter.InstID != "" {
		q.Set("instId", filter.InstID)
	}
	if filter.PosID != "" {
		q.Set("posId", filter.PosID)
	}
	env, err := c.get(ctx, "/api/v5/account/positions", q, true)
	if err != nil {
		return nil, err
	}
	var rows []PositionRow
	if err := env.decodeRequired(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode positions: %w", err)
	}
	return rows, nil
}

// PositionsHistory returns closed-position ledger rows.
func (c *Client) PositionsHistory(ctx context.Context, filter HistoryFilter) ([]HistoryRow, error) {
	q := url.Values{}
	if filter.InstID != "" {
		q.Set("instId", filter.InstID)
	}
	if filter.After > 0 {
		q.Set("after", strconv.FormatInt(filter.After, 10))
	}
	if filter.Before > 0 {
		q.Set("before", strconv.FormatInt(filter.Before, 10))
	}
	env, err := c.get(ctx, "/api/v5/account/positions-history", q, true)
	if err != nil {
		return nil, err
	}
	var rows []HistoryRow
	if err := env.decodeRequired(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode positions history: %w", err)
	}
	return rows, nil
}
