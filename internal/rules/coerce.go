package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	errEmptyValue  = errors.New("value is empty")
	errNotInteger  = errors.New("value is not a whole number")
	errNotDecimal  = errors.New("value is not a number")
	hundred        = decimal.NewFromInt(100)
	currencyTokens = []string{"CNY", "RMB", "USD", "EUR", "GBP", "元", "¥", "￥", "$", "€", "£"}
	separatorRepl  = strings.NewReplacer(",", "", "，", "", "_", "", " ", "", "\u00a0", "", "'", "")
)

// CoercionError reports an attribute value that could not be read as a number.
type CoercionError struct {
	Attr Attribute
	Raw  string
	Err  error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("coerce %s from %q: %v", e.Attr, e.Raw, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// ParseAmount reads a number that may carry a currency symbol or code,
// thousands separators or a trailing percent sign.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, errEmptyValue
	}

	upper := strings.ToUpper(s)
	for _, tok := range currencyTokens {
		upper = strings.ReplaceAll(upper, tok, "")
	}
	s = separatorRepl.Replace(upper)

	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	if s == "" {
		return decimal.Zero, errEmptyValue
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errNotDecimal
	}
	if percent {
		d = d.Div(hundred)
	}
	return d, nil
}

// coerce converts the raw value of a numeric attribute.
func coerce(attr Attribute, kind Kind, raw string) (decimal.Decimal, error) {
	d, err := ParseAmount(raw)
	if err != nil {
		return decimal.Zero, &CoercionError{Attr: attr, Raw: raw, Err: err}
	}
	if kind == KindInt && !d.IsInteger() {
		return decimal.Zero, &CoercionError{Attr: attr, Raw: raw, Err: errNotInteger}
	}
	return d, nil
}
