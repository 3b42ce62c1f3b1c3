package export

import (
	"math"
	"strconv"
	"strings"
)

// formatIDFloat formats v with Indonesian separators: dot for thousands,
// comma for decimals. A zero fraction after rounding is omitted.
// 1234.5 (2 decimals) => "1.234,50"; 1000.0 => "1.000".
func formatIDFloat(v float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}

	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}

	factor := int64(math.Pow(10, float64(decimals)))
	scaled := int64(math.Round(v * float64(factor)))
	intPart, fracPart := scaled/factor, scaled%factor

	digits := strconv.FormatInt(intPart, 10)
	var b strings.Builder
	b.WriteString(sign)
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}

	if fracPart == 0 {
		return b.String()
	}

	frac := strconv.FormatInt(fracPart, 10)
	b.WriteByte(',')
	b.WriteString(strings.Repeat("0", decimals-len(frac)))
	b.WriteString(frac)
	return b.String()
}

// formatFloat formats v with a dot decimal separator and no grouping.
func formatFloat(v float64, decimals int) string {
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(v)
	}
	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}
