package position

import (
	"errors"
	"strconv"

	"github.com/your-org/signal-trader/internal/exchange/okx"
	"github.com/your-org/signal-trader/pkg/precision"
)

var (
	// ErrMissingSpec means the instrument list has no row for the symbol.
	ErrMissingSpec = errors.New("instrument spec not found")
	// ErrNotTradable means the instrument row lacks a required field.
	ErrNotTradable = errors.New("instrument is not tradable")
)

// InstrumentSpec is the immutable contract metadata of a symbol.
type InstrumentSpec struct {
	Symbol            string  `json:"symbol"`
	CtVal             float64 `json:"ct_val"`
	LotSz             float64 `json:"lot_sz"`
	TickSz            float64 `json:"tick_sz"`
	ContractPrecision int     `json:"contract_precision"`
	PricePrecision    int     `json:"price_precision"`
	MaxLeverage       int     `json:"max_leverage"`
}

// SpecFromInstrument derives an InstrumentSpec. Every numeric field must be
// present and positive.
func SpecFromInstrument(in okx.Instrument) (InstrumentSpec, error) {
	ctVal, err1 := positive(in.CtVal)
	lotSz, err2 := positive(in.LotSz)
	tickSz, err3 := positive(in.TickSz)
	maxLev := in.MaxLever()
	if err := errors.Join(err1, err2, err3); err != nil || maxLev <= 0 {
		return InstrumentSpec{}, ErrNotTradable
	}
	return InstrumentSpec{
		Symbol:            in.InstID,
		CtVal:             ctVal,
		LotSz:             lotSz,
		TickSz:            tickSz,
		ContractPrecision: precision.CountDecimals(in.LotSz),
		PricePrecision:    precision.CountDecimals(in.TickSz),
		MaxLeverage:       maxLev,
	}, nil
}

func positive(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, ErrNotTradable
	}
	return v, nil
}
