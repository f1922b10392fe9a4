package report

import (
	"fmt"
	"math"
	"strings"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatMoney formats a dollar amount as "$1,234.56", with the sign before
// the dollar sign.
func FormatMoney(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	cents := int(math.Round(v * 100))
	return fmt.Sprintf("%s$%s.%02d", sign, FormatInt(cents/100), cents%100)
}

// FormatPct formats a percentage that is already scaled to 0-100 as
// "+X.X%" or "-X.X%". Values of 100 or more drop the decimal.
func FormatPct(p float64) string {
	sign := "+"
	if p < 0 {
		sign = "-"
		p = -p
	}
	if p >= 100 {
		return fmt.Sprintf("%s%.0f%%", sign, p)
	}
	return fmt.Sprintf("%s%.1f%%", sign, p)
}

// FormatPrice formats a price as X.XX, or "-" for zero.
func FormatPrice(p float64) string {
	if p == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", p)
}
