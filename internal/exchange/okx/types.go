package okx

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Envelope is the common OKX v5 response wrapper.
type Envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// OK reports whether the envelope signals success.
func (e *Envelope) OK() bool {
	return e != nil && e.Code == "0"
}

// decodeData unmarshals the data array into out. An absent data field is not an error.
func (e *Envelope) decodeData(out interface{}) error {
	if e == nil || len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// decodeRequired is decodeData for endpoints that always send a data array,
// even an empty one. A missing array means the reply cannot be trusted.
func (e *Envelope) decodeRequired(out interface{}) error {
	if e == nil || len(e.Data) == 0 || string(e.Data) == "null" {
		return fmt.Errorf("%w: data field missing", ErrMalformedResponse)
	}
	return e.decodeData(out)
}

// Instrument is one row of /api/v5/public/instruments.
type Instrument struct {
	InstID      string `json:"instId"`
	InstType    string `json:"instType"`
	CtVal       string `json:"ctVal"`
	LotSz       string `json:"lotSz"`
	TickSz      string `json:"tickSz"`
	Lever       string `json:"lever"`
	MaxLeverage string `json:"maxLeverage"`
	LeverUp     string `json:"leverUp"`
	State       string `json:"state"`
}

// MaxLever returns the first populated leverage field, or 0 if none is set.
func (i Instrument) MaxLever() int {
	for _, s := range []string{i.Lever, i.MaxLeverage, i.LeverUp} {
		if s == "" {
			continue
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
			return int(f)
		}
	}
	return 0
}

// Ticker is one row of the market ticker endpoints.
type Ticker struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	TS     string `json:"ts"`
}

// PositionRow is one row of /api/v5/account/positions.
type PositionRow struct {
	InstID      string `json:"instId"`
	PosSide     string `json:"posSide"`
	Pos         string `json:"pos"`
	AvgPx       string `json:"avgPx"`
	TradeID     string `json:"tradeId"`
	NotionalUsd string `json:"notionalUsd"`
	Lever       string `json:"lever"`
	CTime       string `json:"cTime"`
	Margin      string `json:"margin"`
	MgnMode     string `json:"mgnMode"`
}

// Side returns the upper-case position side ("LONG"/"SHORT").
func (r PositionRow) Side() string {
	return strings.ToUpper(r.PosSide)
}

// Symbol returns the upper-case instrument id.
func (r PositionRow) Symbol() string {
	return strings.ToUpper(r.InstID)
}

// HistoryRow is one row of /api/v5/account/positions-history.
type HistoryRow struct {
	InstID      string `json:"instId"`
	PosSide     string `json:"posSide"`
	RealizedPnl string `json:"realizedPnl"`
	Fee         string `json:"fee"`
	FundingFee  string `json:"fundingFee"`
	PnlRatio    string `json:"pnlRatio"`
	UTime       string `json:"uTime"`
	CTime       string `json:"cTime"`
	CloseAvgPx  string `json:"closeAvgPx"`
}

// OrderRequest is the body of /api/v5/trade/order with attached TP/SL.
type OrderRequest struct {
	InstID          string `json:"instId"`
	TdMode          string `json:"tdMode"`
	Side            string `json:"side"`
	OrdType         string `json:"ordType"`
	Sz              string `json:"sz"`
	PosSide         string `json:"posSide"`
	ReduceOnly      string `json:"reduceOnly"`
	Px              string `json:"px,omitempty"`
	TpTriggerPx     string `json:"tpTriggerPx,omitempty"`
	TpOrdPx         string `json:"tpOrdPx,omitempty"`
	TpTriggerPxType string `json:"tpTriggerPxType,omitempty"`
	SlTriggerPx     string `json:"slTriggerPx,omitempty"`
	SlOrdPx         string `json:"slOrdPx,omitempty"`
	SlTriggerPxType string `json:"slTriggerPxType,omitempty"`
	ClOrdID         string `json:"clOrdId,omitempty"`
	Tag             string `json:"tag,omitempty"`
}

// OrderResult is data[0] of a place or cancel order response.
type OrderResult struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
	TS      string `json:"ts"`
}

// Accepted reports whether the exchange accepted the order.
func (r *OrderResult) Accepted() bool {
	return r != nil && r.SCode == "0" && r.OrdID != ""
}

// SCodeDuplicateClOrdID is the per-order code OKX returns when a clOrdId was
// already used, typically by an earlier attempt of the same request.
const SCodeDuplicateClOrdID = "51016"

// Order states reported by /api/v5/trade/order.
const (
	OrderStateLive            = "live"
	OrderStatePartiallyFilled = "partially_filled"
	OrderStateFilled          = "filled"
	OrderStateCanceled        = "canceled"
)

// OrderDetail is one row of GET /api/v5/trade/order.
type OrderDetail struct {
	InstID    string `json:"instId"`
	OrdID     string `json:"ordId"`
	ClOrdID   string `json:"clOrdId"`
	State     string `json:"state"`
	Sz        string `json:"sz"`
	AccFillSz string `json:"accFillSz"`
	CTime     string `json:"cTime"`
}

// Active reports whether the order is still working or has (partly) filled.
func (d *OrderDetail) Active() bool {
	if d == nil || d.OrdID == "" {
		return false
	}
	switch d.State {
	case OrderStateLive, OrderStatePartiallyFilled, OrderStateFilled:
		return true
	}
	return false
}

// LeverageRequest is the body of /api/v5/account/set-leverage. Empty optional
// fields are omitted.
type LeverageRequest struct {
	Lever   string `json:"lever"`
	InstID  string `json:"instId,omitempty"`
	MgnMode string `json:"mgnMode,omitempty"`
	PosSide string `json:"posSide,omitempty"`
	Ccy     string `json:"ccy,omitempty"`
}

// PositionsFilter narrows /api/v5/account/positions.
type PositionsFilter struct {
	InstType string
	InstID   string
	PosID    string
}

// HistoryFilter narrows /api/v5/account/positions-history.
type HistoryFilter struct {
	InstID string
	After  int64
	Before int64
}

// Position modes accepted by set-position-mode.
const (
	PosModeLongShort = "long_short_mode"
	PosModeNet       = "net"
)
