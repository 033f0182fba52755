package signal

import (
	"regexp"
	"strconv"
	"strings"
)

// SymbolSuffix turns a quoted ticker such as BTCUSDT into the OKX
// perpetual swap instrument id BTC-USDT-SWAP.
const SymbolSuffix = "-USDT-SWAP"

var (
	symbolRe   = regexp.MustCompile(`(?i)\$([а-яa-z0-9]+)`)
	entryRe    = regexp.MustCompile(`вход\s*[-–—:]?\s*([\d\s.]+)`)
	stopRe     = regexp.MustCompile(`стоп\s*[-–—:]?\s*([\d\s.]+)`)
	takeRe     = regexp.MustCompile(`тейк\s*[-–—:]?\s*([\d\s.]+)`)
	leverageRe = regexp.MustCompile(`плечо\s*[-–—:]?\s*[хx]?\s*(\d+)`)
)

// Parse extracts a Signal from free text. The boolean is false when any of
// symbol, side, entry, stop, take profit or leverage could not be resolved;
// the partially filled Signal is still returned for diagnostics.
func Parse(text string) (Signal, bool) {
	canon := ToCyrillic(strings.TrimSpace(text))

	var lines []string
	for _, l := range strings.Split(canon, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	var s Signal
	if len(lines) > 0 {
		if m := symbolRe.FindStringSubmatch(lines[0]); m != nil {
			s.Symbol = CanonicalSymbol(m[1])
		}
	}

	for _, l := range lines {
		if strings.Contains(l, "лонг") {
			s.Side = SideLong
		} else if strings.Contains(l, "шорт") {
			s.Side = SideShort
		}
	}

	s.Entry = labeledNumber(entryRe, canon)
	s.StopLoss = labeledNumber(stopRe, canon)
	s.TakeProfit = labeledNumber(takeRe, canon)
	if m := leverageRe.FindStringSubmatch(canon); m != nil {
		if lev, err := strconv.Atoi(m[1]); err == nil {
			s.Leverage = lev
		}
	}

	return s, s.Complete()
}

// CanonicalSymbol converts a raw ticker token into an instrument id:
// confusables mapped back to Latin, upper-cased, USDT expanded once.
// Latin is restored on both sides of upper-casing because the pair table
// is case specific.
func CanonicalSymbol(token string) string {
	sym := ToLatin(strings.ToUpper(ToLatin(token)))
	if strings.HasSuffix(sym, SymbolSuffix) {
		return sym
	}
	return strings.Replace(sym, "USDT", SymbolSuffix, 1)
}

func labeledNumber(re *regexp.Regexp, text string) float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	v, ok := CleanNumber(m[1])
	if !ok {
		return 0
	}
	return v
}

func parseFloat(v string) (float64, bool) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
