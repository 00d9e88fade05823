package rules

import (
	"strings"

	"github.com/opensource-finance/lendguard/internal/domain"
)

// Attribute is a name a rule expression may reference.
type Attribute string

// The closed attribute vocabulary.
const (
	AttrCreditScore    Attribute = "credit_score"
	AttrOverdueCount   Attribute = "overdue_count"
	AttrMaxOverdueDays Attribute = "max_overdue_days"
	AttrDebtRatio      Attribute = "debt_ratio"
	AttrLoanAmount     Attribute = "loan_amount"
	AttrHasMortgage    Attribute = "has_mortgage"
	AttrHasCarLoan     Attribute = "has_car_loan"
	AttrLoanPurpose    Attribute = "loan_purpose"
)

// Kind is the value type of an attribute.
type Kind int

const (
	KindInt Kind = iota + 1
	KindDecimal
	KindBool
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

var vocabulary = map[Attribute]Kind{
	AttrCreditScore:    KindInt,
	AttrOverdueCount:   KindInt,
	AttrMaxOverdueDays: KindInt,
	AttrDebtRatio:      KindDecimal,
	AttrLoanAmount:     KindDecimal,
	AttrHasMortgage:    KindBool,
	AttrHasCarLoan:     KindBool,
	AttrLoanPurpose:    KindString,
}

// LookupAttribute resolves an identifier against the vocabulary.
// Matching is case-insensitive.
func LookupAttribute(name string) (Attribute, Kind, bool) {
	a := Attribute(strings.ToLower(name))
	k, ok := vocabulary[a]
	return a, k, ok
}

// Attributes returns the vocabulary in a stable order.
func Attributes() []Attribute {
	return []Attribute{
		AttrCreditScore, AttrOverdueCount, AttrMaxOverdueDays, AttrDebtRatio,
		AttrLoanAmount, AttrHasMortgage, AttrHasCarLoan, AttrLoanPurpose,
	}
}

// rawValue returns the textual value of a numeric or string attribute.
func rawValue(p *domain.ApplicantProfile, a Attribute) string {
	switch a {
	case AttrCreditScore:
		return string(p.CreditScore)
	case AttrOverdueCount:
		return string(p.OverdueCount)
	case AttrMaxOverdueDays:
		return string(p.MaxOverdueDays)
	case AttrDebtRatio:
		return string(p.DebtRatio)
	case AttrLoanAmount:
		return string(p.LoanAmount)
	case AttrLoanPurpose:
		return string(p.LoanPurpose)
	}
	return ""
}

func flagValue(p *domain.ApplicantProfile, a Attribute) bool {
	switch a {
	case AttrHasMortgage:
		return p.HasMortgage
	case AttrHasCarLoan:
		return p.HasCarLoan
	}
	return false
}
