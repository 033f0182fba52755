package alert

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const headLine = "------------------------------"

// Render formats an event as the plain-text message sent to chat.
func Render(kind Kind, payload Payload) string {
	sub := SubjectOf(payload)
	symbol := strings.TrimSuffix(sub.Symbol, "-USDT-SWAP")
	at := formatTime(sub.TimeMs)

	var b strings.Builder
	b.WriteString(headLine)
	b.WriteString("\n")

	switch p := payload.(type) {
	case *SignalPayload:
		fmt.Fprintf(&b, "SIGNAL RECEIVED [%s]\n[%s]\n%s\nLEVERAGE - %d\nENTRY - %s\nTP - %s\nSL - %s",
			symbol, at, sub.Side, p.Leverage, human(p.Entry), human(p.TakeProfit), human(p.StopLoss))
	case *OrderSentPayload:
		fmt.Fprintf(&b, "[%s] %s ORDER SENT\n%s\n[%s]", symbol, strings.ToUpper(p.OrderKind), sub.Side, at)
	case *OrderFailedPayload:
		fmt.Fprintf(&b, "%s ORDER FAILED\n[%s]\n[%s] | %s\nREASON - %s", strings.ToUpper(p.OrderKind), at, symbol, sub.Side, p.Reason)
	case *OrderFilledPayload:
		fmt.Fprintf(&b, "ORDER FILLED\n[%s]\n[%s] | %s\nVOL_USDT - %s\nMARGIN_VOL - %s\nVOL_ASSETS - %s",
			at, symbol, sub.Side, human(p.NotionalUSDT), human(p.MarginVol), human(p.AssetVol))
	case *PnLReportPayload:
		fmt.Fprintf(&b, "[%s] | %s | %s\nPNL %.2f%% | PNL %s USDT\nCLOSING TIME - [%s]\nTIME IN DEAL - %s",
			symbol, sub.Side, outcome(p.PnLPct), p.PnLPct, signedUSDT(p.PnLUSDT, p.PnLPct), at, p.TimeInDeal)
	default:
		fmt.Fprintf(&b, "%s [%s] | %s", strings.ToUpper(string(kind)), symbol, sub.Side)
	}
	return b.String()
}

func outcome(pct float64) string {
	switch {
	case pct > 0:
		return "SUCCESS"
	case pct < 0:
		return "LOSE"
	default:
		return "0 P&L"
	}
}

func signedUSDT(usdt, pct float64) string {
	switch {
	case pct > 0:
		return fmt.Sprintf("+ %.2f", usdt)
	case pct < 0:
		if usdt < 0 {
			usdt = -usdt
		}
		return fmt.Sprintf("- %.2f", usdt)
	default:
		return fmt.Sprintf("%.4f", usdt)
	}
}

// human prints a float without trailing zeros.
func human(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(ms int64) string {
	if ms <= 0 {
		return "N/A"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05")
}
