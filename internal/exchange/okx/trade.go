package okx

import (
	"context"
	"fmt"
	"net/url"
)

// PlaceOrder submits an order with attached TP/SL legs. On an application
// error the decoded per-order result is returned alongside the *APIError so
// callers can report sMsg.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if req.OrdType == "limit" && req.Px == "" {
		return nil, fmt.Errorf("px is required for limit orders")
	}
	if req.ReduceOnly == "" {
		req.ReduceOnly = "false"
	}
	env, err := c.post(ctx, "/api/v5/trade/order", req)
	return firstOrderResult(env, err)
}

// CancelOrder cancels an open order by exchange order id.
func (c *Client) CancelOrder(ctx context.Context, instID, ordID string) (*OrderResult, error) {
	body := map[string]string{"instId": instID, "ordId": ordID}
	env, err := c.post(ctx, "/api/v5/trade/cancel-order", body)
	return firstOrderResult(env, err)
}

// OrderByClientID looks up an order by the clOrdId it was placed with.
func (c *Client) OrderByClientID(ctx context.Context, instID, clOrdID string) (*OrderDetail, error) {
	if clOrdID == "" {
		return nil, fmt.Errorf("clOrdId must be provided")
	}
	q := url.Values{"instId": {instID}, "clOrdId": {clOrdID}}
	env, err := c.get(ctx, "/api/v5/trade/order", q, true)
	if err != nil {
		return nil, err
	}
	var rows []OrderDetail
	if err := env.decodeRequired(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode order: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("order %s: %w", clOrdID, ErrOrderNotFound)
	}
	return &rows[0], nil
}

func firstOrderResult(env *Envelope, err error) (*OrderResult, error) {
	if env == nil {
		return nil, err
	}
	var rows []OrderResult
	if decErr := env.decodeData(&rows); decErr != nil && err == nil {
		return nil, fmt.Errorf("failed to decode order result: %w", decErr)
	}
	if len(rows) == 0 {
		return &OrderResult{SMsg: env.Msg}, err
	}
	return &rows[0], err
}
