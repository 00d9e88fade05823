package rules

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"10000", "10000", false},
		{"¥50,000", "50000", false},
		{"￥1,234.50", "1234.5", false},
		{"$ 1 000", "1000", false},
		{"CNY 8,000元", "8000", false},
		{"45%", "0.45", false},
		{"0.3", "0.3", false},
		{"5e3", "5000", false},
		{" 650 ", "650", false},
		{"", "", true},
		{"¥", "", true},
		{"n/a", "", true},
		{"12abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAmount(%q) = %s, expected error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) failed: %v", tt.raw, err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCoerceIntegerAttribute(t *testing.T) {
	if _, err := coerce(AttrCreditScore, KindInt, "650.0"); err != nil {
		t.Errorf("expected 650.0 to coerce to an integer: %v", err)
	}

	_, err := coerce(AttrCreditScore, KindInt, "650.5")
	var ce *CoercionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CoercionError, got %v", err)
	}
	if ce.Attr != AttrCreditScore || ce.Raw != "650.5" {
		t.Errorf("unexpected error fields: %+v", ce)
	}
	if !errors.Is(err, errNotInteger) {
		t.Errorf("expected errNotInteger, got %v", ce.Err)
	}
}
