package enrich

import "github.com/shopspring/decimal"

// NormalizePrice parses raw as an exact decimal and returns its canonical
// form: trailing fractional zeros stripped, bare integers without a decimal
// point ("10.50" → "10.5", "100.00" → "100"). If raw is not a valid
// decimal the original string is returned unchanged with ok=false.
func NormalizePrice(raw string) (string, bool) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return raw, false
	}
	return d.String(), true
}
