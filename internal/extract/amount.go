package extract

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

var amountFormatRe = regexp.MustCompile(`^(\d{1,3}(\.\d{3})+|\d+),\d{1,2}$`)

// ParseAmount parses a Brazilian formatted amount ("1.234,56", "1234,56",
// "56,00") into an exact decimal.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if !amountFormatRe.MatchString(s) {
		return decimal.Decimal{}, eris.Errorf("extract: invalid amount %q", s)
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, eris.Wrapf(err, "extract: parse amount %q", s)
	}
	return d, nil
}

// FormatAmount renders an amount with exactly two decimal places. Ledgers
// compare amounts by this form.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
