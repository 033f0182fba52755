// Package signal turns free-text channel posts into deduplicated trading intents.
package signal

import "fmt"

// Side is the direction of a position.
type Side int

const (
	// SideNone indicates no direction could be parsed.
	SideNone Side = iota
	// SideLong indicates a long position.
	SideLong
	// SideShort indicates a short position.
	SideShort
)

// String returns the upper-case side name used in logs and notifications.
func (s Side) String() string {
	switch s {
	case SideLong:
		return "LONG"
	case SideShort:
		return "SHORT"
	case SideNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// PosSide returns the lower-case posSide value OKX expects.
func (s Side) PosSide() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return ""
	}
}

// OrderSide returns the order side that opens a position in this direction.
func (s Side) OrderSide() string {
	if s == SideShort {
		return "sell"
	}
	return "buy"
}

// Sign is +1 for long and -1 for short.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// ParseSide converts "LONG"/"long"/"SHORT"/"short" into a Side.
func ParseSide(v string) Side {
	switch v {
	case "LONG", "long", "Long":
		return SideLong
	case "SHORT", "short", "Short":
		return SideShort
	default:
		return SideNone
	}
}

// Signal is a parsed trade instruction.
type Signal struct {
	Symbol     string
	Side       Side
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Leverage   int
	ArrivalMs  int64
}

// Complete reports whether every field required for execution is present.
func (s Signal) Complete() bool {
	return s.Symbol != "" && s.Side != SideNone && s.Entry > 0 && s.StopLoss > 0 && s.TakeProfit > 0 && s.Leverage > 0
}

func (s Signal) String() string {
	return fmt.Sprintf("Signal{%s %s entry=%v tp=%v sl=%v lev=%d}", s.Symbol, s.Side, s.Entry, s.TakeProfit, s.StopLoss, s.Leverage)
}

// RawMessage is a channel post as delivered by a Source.
type RawMessage struct {
	Text      string
	ArrivalMs int64
}

// Source yields the most recent raw messages, oldest first.
type Source interface {
	Poll() []RawMessage
}
