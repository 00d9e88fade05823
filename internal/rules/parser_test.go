package rules

import (
	"errors"
	"strings"
	"testing"
)

func TestParseCanonicalForm(t *testing.T) {
	p, err := NewParser()
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	tests := []struct {
		expr string
		want string
	}{
		{"credit_score < 550", "credit_score < 550"},
		{"550 > credit_score", "credit_score < 550"},
		{"debt_ratio > 0.6", "debt_ratio > 0.6"},
		{"Credit_Score <= 600 or overdue_count > 3", "credit_score <= 600 or overdue_count > 3"},
		{"has_mortgage and has_car_loan", "has_mortgage and has_car_loan"},
		{"has_mortgage AND NOT has_car_loan", "has_mortgage and not has_car_loan"},
		{"has_mortgage && has_car_loan && credit_score < 600", "has_mortgage and has_car_loan and credit_score < 600"},
		{"has_mortgage == True", "has_mortgage"},
		{"has_car_loan == false", "not has_car_loan"},
		{"not (has_car_loan != true)", "has_car_loan"},
		{"loan_purpose == 'Business Loan' and loan_amount > 500000", `loan_purpose == "Business Loan" and loan_amount > 500000`},
		{"(credit_score < 550 or debt_ratio > 0.6) and overdue_count > 0", "(credit_score < 550 or debt_ratio > 0.6) and overdue_count > 0"},
		{"credit_score > -1", "credit_score > -1"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			node, err := p.Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.expr, err)
			}
			if got := node.String(); got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.expr, got, tt.want)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	p, _ := NewParser()

	tests := []struct {
		name string
		expr string
		want error
	}{
		{"unknown attribute", "foo_bar < 10", ErrUnknownAttribute},
		{"unknown flag", "has_yacht and has_mortgage", ErrUnknownAttribute},
		{"bare numeric attribute", "credit_score", ErrUnsupported},
		{"type mismatch", "credit_score < 'high'", ErrUnsupported},
		{"ordering on flag", "has_mortgage > false", ErrUnsupported},
		{"function call", "size(loan_purpose) > 3", ErrUnsupported},
		{"literals only", "1 < 2", ErrUnsupported},
		{"attribute against attribute", "credit_score < overdue_count", ErrUnsupported},
		{"empty", "   ", ErrNoAttribute},
		{"syntax error", "credit_score <", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.expr)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, expected error", tt.expr)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Parse(%q) error = %v, want %v", tt.expr, err, tt.want)
			}
		})
	}
}

func TestNormalizeExpressionLeavesStringsAlone(t *testing.T) {
	got := normalizeExpression(`loan_purpose == "and or not" and not has_mortgage`)
	want := `loan_purpose == "and or not" && ! has_mortgage`
	if got != want {
		t.Errorf("normalizeExpression = %q, want %q", got, want)
	}
}

func TestNodeAttributes(t *testing.T) {
	p, _ := NewParser()
	node, err := p.Parse("credit_score < 550 or (has_mortgage and credit_score < 600)")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	attrs := node.Attributes()
	if len(attrs) != 2 || attrs[0] != AttrCreditScore || attrs[1] != AttrHasMortgage {
		t.Errorf("unexpected attributes: %v", attrs)
	}
}

func TestParseWholeVocabulary(t *testing.T) {
	p, _ := NewParser()

	attrs := Attributes()
	if len(attrs) != len(vocabulary) {
		t.Fatalf("Attributes() lists %d names, vocabulary has %d", len(attrs), len(vocabulary))
	}

	for _, attr := range attrs {
		_, kind, ok := LookupAttribute(strings.ToUpper(string(attr)))
		if !ok {
			t.Errorf("%s: lookup is not case-insensitive", attr)
			continue
		}

		var expr string
		switch kind {
		case KindInt:
			expr = string(attr) + " > 3"
		case KindDecimal:
			expr = string(attr) + " > 0.5"
		case KindBool:
			expr = string(attr)
		case KindString:
			expr = string(attr) + " == 'Auto Loan'"
		}

		node, err := p.Parse(expr)
		if err != nil {
			t.Errorf("Parse(%q): %v", expr, err)
			continue
		}
		if got := node.Attributes(); len(got) != 1 || got[0] != attr {
			t.Errorf("Parse(%q) attributes = %v", expr, got)
		}
	}
}
