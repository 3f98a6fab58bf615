package checkout

import (
	"strconv"
	"strings"
)

// FormatAmount renders cents as "12.500 XOF", using a dot as the thousands
// separator. Minor units are shown only when non-zero.
func FormatAmount(cents int64, currency string) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	major, minor := cents/100, cents%100

	s := strconv.FormatInt(major, 10)
	var b strings.Builder
	b.Grow(len(s) + len(s)/3 + len(currency) + 5)
	if neg {
		b.WriteByte('-')
	}
	rem := len(s) % 3
	if rem == 0 {
		rem = 3
	}
	b.WriteString(s[:rem])
	for i := rem; i < len(s); i += 3 {
		b.WriteByte('.')
		b.WriteString(s[i : i+3])
	}
	if minor != 0 {
		b.WriteByte(',')
		if minor < 10 {
			b.WriteByte('0')
		}
		b.WriteString(strconv.FormatInt(minor, 10))
	}
	if currency != "" {
		b.WriteByte(' ')
		b.WriteString(currency)
	}
	return b.String()
}
