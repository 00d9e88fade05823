package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FieldValue is a numeric applicant attribute in whatever representation the
// caller supplied: 650, "650", "0.45", "¥50,000". Coercion to a number happens
// at rule evaluation time so a malformed value only affects rules that read it.
type FieldValue string

// UnmarshalJSON accepts JSON numbers, strings and null.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = FieldValue(s)
		return nil
	}
	*v = FieldValue(data)
	return nil
}

// Int returns a FieldValue for an integer.
func Int(n int64) FieldValue {
	return FieldValue(strconv.FormatInt(n, 10))
}

// Float returns a FieldValue for a float.
func Float(f float64) FieldValue {
	return FieldValue(strconv.FormatFloat(f, 'f', -1, 64))
}

// Flag is a boolean that also accepts 0/1 and "yes"/"no" style inputs.
type Flag bool

// UnmarshalJSON accepts booleans, numbers and strings.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	s := strings.Trim(string(data), `"`)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on":
		*f = true
	case "false", "0", "no", "n", "off", "", "null":
		*f = false
	default:
		return fmt.Errorf("invalid flag value %s", data)
	}
	return nil
}

// LoanPurpose is the declared use of the requested loan.
type LoanPurpose string

const (
	LoanPurposeConsumer  LoanPurpose = "Consumer Loan"
	LoanPurposeHousing   LoanPurpose = "Housing Loan"
	LoanPurposeAuto      LoanPurpose = "Auto Loan"
	LoanPurposeEducation LoanPurpose = "Education Loan"
	LoanPurposeBusiness  LoanPurpose = "Business Loan"
)

var loanPurposeAliases = map[string]LoanPurpose{
	"consumer":       LoanPurposeConsumer,
	"consumer loan":  LoanPurposeConsumer,
	"housing":        LoanPurposeHousing,
	"housing loan":   LoanPurposeHousing,
	"mortgage":       LoanPurposeHousing,
	"auto":           LoanPurposeAuto,
	"auto loan":      LoanPurposeAuto,
	"car":            LoanPurposeAuto,
	"car loan":       LoanPurposeAuto,
	"education":      LoanPurposeEducation,
	"education loan": LoanPurposeEducation,
	"business":       LoanPurposeBusiness,
	"business loan":  LoanPurposeBusiness,
}

// NormalizeLoanPurpose maps free-form purpose text onto a known purpose.
// Unknown text is returned unchanged.
func NormalizeLoanPurpose(s string) LoanPurpose {
	key := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	if p, ok := loanPurposeAliases[key]; ok {
		return p
	}
	return LoanPurpose(strings.TrimSpace(s))
}

// BusinessLine returns the name list business line for the purpose.
func (p LoanPurpose) BusinessLine() BusinessLine {
	switch NormalizeLoanPurpose(string(p)) {
	case LoanPurposeConsumer:
		return BusinessLineConsumer
	case LoanPurposeHousing:
		return BusinessLineHousing
	case LoanPurposeAuto:
		return BusinessLineAuto
	case LoanPurposeEducation:
		return BusinessLineEducation
	case LoanPurposeBusiness:
		return BusinessLineBusiness
	default:
		return BusinessLineOther
	}
}

// ApplicantProfile is the attribute bag evaluated against rules.
// It is built fresh for every evaluation and never persisted as a unit.
type ApplicantProfile struct {
	Name           string
	Identification string
	Phone          string
	Address        string
	LoanTerm       string
	LoanPurpose    LoanPurpose

	CreditScore    FieldValue
	OverdueCount   FieldValue
	MaxOverdueDays FieldValue
	DebtRatio      FieldValue
	LoanAmount     FieldValue

	HasMortgage bool
	HasCarLoan  bool
}

// EvaluationRequest is the API payload for an evaluation.
type EvaluationRequest struct {
	Name           string     `json:"name"`
	ID             string     `json:"id"`
	Phone          string     `json:"phone,omitempty"`
	Address        string     `json:"address,omitempty"`
	LoanAmount     FieldValue `json:"loanAmount"`
	LoanTerm       string     `json:"loanTerm,omitempty"`
	LoanPurpose    string     `json:"loanPurpose"`
	CreditScore    FieldValue `json:"creditScore"`
	OverdueCount   FieldValue `json:"overdueCount"`
	MaxOverdueDays FieldValue `json:"maxOverdueDays"`
	DebtRatio      FieldValue `json:"debtRatio"`
	HasMortgage    Flag       `json:"hasMortgage"`
	HasCarLoan     Flag       `json:"hasCarLoan"`
}

// ToProfile converts a request to an ApplicantProfile.
func (r *EvaluationRequest) ToProfile() *ApplicantProfile {
	return &ApplicantProfile{
		Name:           strings.TrimSpace(r.Name),
		Identification: strings.TrimSpace(r.ID),
		Phone:          r.Phone,
		Address:        r.Address,
		LoanTerm:       r.LoanTerm,
		LoanPurpose:    NormalizeLoanPurpose(r.LoanPurpose),
		CreditScore:    r.CreditScore,
		OverdueCount:   r.OverdueCount,
		MaxOverdueDays: r.MaxOverdueDays,
		DebtRatio:      r.DebtRatio,
		LoanAmount:     r.LoanAmount,
		HasMortgage:    bool(r.HasMortgage),
		HasCarLoan:     bool(r.HasCarLoan),
	}
}
