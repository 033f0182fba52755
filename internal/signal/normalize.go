package signal

import (
	"strings"
	"unicode"
)

// Latin letters that are routinely typed in place of their Cyrillic
// look-alikes (and vice versa).
var confusables = [][2]rune{
	{'a', 'а'}, {'e', 'е'}, {'o', 'о'}, {'p', 'р'}, {'c', 'с'}, {'y', 'у'}, {'x', 'х'},
	{'A', 'А'}, {'B', 'В'}, {'E', 'Е'}, {'K', 'К'}, {'M', 'М'}, {'H', 'Н'}, {'O', 'О'},
	{'P', 'Р'}, {'C', 'С'}, {'T', 'Т'}, {'X', 'Х'},
}

var (
	latinToCyr = make(map[rune]rune, len(confusables))
	cyrToLatin = make(map[rune]rune, len(confusables))
)

func init() {
	for _, p := range confusables {
		latinToCyr[p[0]] = p[1]
		cyrToLatin[p[1]] = p[0]
	}
}

// ToCyrillic maps confusable Latin letters to Cyrillic, lower-cases the
// result and turns decimal commas into dots. It is the canonical form used
// for keyword matching.
func ToCyrillic(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if c, ok := latinToCyr[r]; ok {
			return c
		}
		return r
	}, s)
	return strings.ReplaceAll(strings.ToLower(mapped), ",", ".")
}

// ToLatin maps confusable Cyrillic letters back to Latin.
func ToLatin(s string) string {
	return strings.Map(func(r rune) rune {
		if l, ok := cyrToLatin[r]; ok {
			return l
		}
		return r
	}, s)
}

// CleanNumber keeps digits and dots and treats the last dot as the decimal
// separator, so "62 500" and "1.234.5" parse as 62500 and 1234.5.
func CleanNumber(s string) (float64, bool) {
	var intPart, fracPart strings.Builder
	lastDot := strings.LastIndexByte(s, '.')
	for i, r := range s {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			continue
		}
		if lastDot >= 0 && i > lastDot {
			fracPart.WriteRune(r)
		} else {
			intPart.WriteRune(r)
		}
	}
	if intPart.Len() == 0 && fracPart.Len() == 0 {
		return 0, false
	}
	v := intPart.String()
	if v == "" {
		v = "0"
	}
	if fracPart.Len() > 0 {
		v += "." + fracPart.String()
	}
	return parseFloat(v)
}
