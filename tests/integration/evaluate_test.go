//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Lendguard decision engine.
//
// These tests verify the COMPLETE evaluation pipeline:
//
//	Applicant → Active rules → Penalties → Score → Decision → Audit + Blacklist
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The server must run with the default rule battery seeded
// (LENDGUARD_SCORING_SEED_DEFAULTS=true, the default) and without operator
// tokens, so operators are identified by the X-Operator header.
//
// | Expression                    | Penalty |
// |-------------------------------|---------|
// | credit_score < 550            | 50      |
// | credit_score < 600            | 30      |
// | credit_score < 650            | 20      |
// | overdue_count > 5 / > 3 / > 0 | 40 / 25 / 10 |
// | max_overdue_days > 90/60/30   | 45 / 35 / 20 |
// | debt_ratio > 0.6 / 0.5 / 0.4  | 35 / 25 / 15 |
// | has_mortgage and has_car_loan | 15      |
// | loan_amount > 500000          | 10      |
//
// Scores start at 100 and are approved at 60 or above.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	Operator string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("LENDGUARD_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		Operator: "integration-test",
	}
}

// ============================================================================
// API Request/Response Types
// ============================================================================

// EvaluateRequest is the applicant sent to POST /evaluate
type EvaluateRequest struct {
	Name           string `json:"name"`
	ID             string `json:"id"`
	LoanAmount     any    `json:"loanAmount"`
	LoanPurpose    string `json:"loanPurpose"`
	CreditScore    any    `json:"creditScore"`
	OverdueCount   any    `json:"overdueCount"`
	MaxOverdueDays any    `json:"maxOverdueDays"`
	DebtRatio      any    `json:"debtRatio"`
	HasMortgage    any    `json:"hasMortgage"`
	HasCarLoan     any    `json:"hasCarLoan"`
}

type RuleResult struct {
	RuleID     int64  `json:"ruleId"`
	RuleName   string `json:"ruleName"`
	Expression string `json:"ruleExpression"`
	Penalty    int    `json:"penalty"`
}

// EvaluateResponse is what POST /evaluate returns
type EvaluateResponse struct {
	EvaluationID string       `json:"evaluationId"`
	Approved     bool         `json:"approved"`
	Score        int          `json:"score"`
	RuleResults  []RuleResult `json:"ruleResults"`
	Reason       string       `json:"reason"`
	PriorHits    []struct {
		ID     int64 `json:"id"`
		RuleID int64 `json:"ruleId"`
	} `json:"priorHits"`
	Consequences *struct {
		AuditLogID  int64   `json:"auditLogId"`
		Blacklisted []int64 `json:"blacklistedRuleIds"`
	} `json:"consequences"`
	Metadata struct {
		TraceID        string `json:"traceId"`
		RulesEvaluated int    `json:"rulesEvaluated"`
		TotalMs        int64  `json:"totalMs"`
		EngineVersion  string `json:"engineVersion"`
	} `json:"metadata"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func do(t *testing.T, config TestConfig, method, path string, body any, operator string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if operator != "" {
		req.Header.Set("X-Operator", operator)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

func evaluate(t *testing.T, config TestConfig, req EvaluateRequest) EvaluateResponse {
	t.Helper()

	status, body := do(t, config, http.MethodPost, "/evaluate", req, config.Operator)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, string(body))
	}

	var result EvaluateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(body))
	}
	return result
}

// applicant returns a clean profile with a unique identification number so
// runs do not see each other's blacklist entries.
func applicant() EvaluateRequest {
	return EvaluateRequest{
		Name:           "Integration Applicant",
		ID:             "IT-" + uuid.NewString(),
		LoanAmount:     10000,
		LoanPurpose:    "consumer",
		CreditScore:    720,
		OverdueCount:   0,
		MaxOverdueDays: 0,
		DebtRatio:      0.2,
		HasMortgage:    false,
		HasCarLoan:     false,
	}
}

func hasRule(results []RuleResult, expr string) bool {
	for _, r := range results {
		if r.Expression == expr {
			return true
		}
	}
	return false
}

// ============================================================================
// SCENARIO 1: Clean applicant
// ============================================================================

func TestCleanApplicant_Approved(t *testing.T) {
	config := getTestConfig()

	result := evaluate(t, config, applicant())

	if !result.Approved || result.Score != 100 {
		t.Errorf("Expected approved with score 100, got approved=%v score=%d", result.Approved, result.Score)
	}
	if len(result.RuleResults) != 0 {
		t.Errorf("Expected no triggered rules, got %v", result.RuleResults)
	}
	if result.Metadata.RulesEvaluated == 0 {
		t.Error("Expected the default rule battery to be evaluated")
	}
	if result.Consequences == nil || result.Consequences.AuditLogID == 0 {
		t.Error("Expected an audit entry for the evaluation")
	}
}

// ============================================================================
// SCENARIO 2: Low credit score triggers every credit tier
// ============================================================================

func TestLowCreditScore_Rejected(t *testing.T) {
	config := getTestConfig()

	req := applicant()
	req.CreditScore = "500"

	result := evaluate(t, config, req)

	// 100 - 50 - 30 - 20
	if result.Approved || result.Score != 0 {
		t.Errorf("Expected rejected with score 0, got approved=%v score=%d", result.Approved, result.Score)
	}
	for _, expr := range []string{"credit_score < 550", "credit_score < 600", "credit_score < 650"} {
		if !hasRule(result.RuleResults, expr) {
			t.Errorf("Expected %q to trigger", expr)
		}
	}

	// Only the 50 and 30 penalties meet the materiality bar.
	if result.Consequences == nil || len(result.Consequences.Blacklisted) != 2 {
		t.Errorf("Expected 2 blacklisted rules, got %+v", result.Consequences)
	}

	// The same applicant now has prior hits.
	again := evaluate(t, config, req)
	if len(again.PriorHits) == 0 {
		t.Error("Expected prior hits on second evaluation")
	}
	if again.Score != result.Score {
		t.Errorf("Prior hits must not change the score: %d vs %d", again.Score, result.Score)
	}

	status, body := do(t, config, http.MethodGet,
		"/namelist/hit?valueType=1&value="+url.QueryEscape(req.ID), nil, config.Operator)
	if status != http.StatusOK {
		t.Fatalf("Expected 200 from hit check, got %d", status)
	}
	var hit struct {
		Hit bool `json:"hit"`
	}
	json.Unmarshal(body, &hit)
	if !hit.Hit {
		t.Error("Expected the applicant to be on the name list")
	}
}

// ============================================================================
// SCENARIO 3: Combination rule and formatted amounts
// ============================================================================

func TestMortgageAndCarLoan_CombinationPenalty(t *testing.T) {
	config := getTestConfig()

	req := applicant()
	req.CreditScore = 700
	req.DebtRatio = 0.3
	req.LoanAmount = "¥50,000"
	req.HasMortgage = true
	req.HasCarLoan = "yes"

	result := evaluate(t, config, req)

	if !result.Approved || result.Score != 85 {
		t.Errorf("Expected approved with score 85, got approved=%v score=%d", result.Approved, result.Score)
	}
	if !hasRule(result.RuleResults, "has_mortgage and has_car_loan") {
		t.Errorf("Expected combination rule to trigger, got %v", result.RuleResults)
	}
}

// ============================================================================
// SCENARIO 4: Score can fall below zero
// ============================================================================

func TestWorstCaseApplicant_NegativeScore(t *testing.T) {
	config := getTestConfig()

	req := applicant()
	req.CreditScore = 400
	req.OverdueCount = 9
	req.MaxOverdueDays = 120
	req.DebtRatio = 0.9

	result := evaluate(t, config, req)

	if result.Approved {
		t.Error("Expected rejection")
	}
	if result.Score >= 0 {
		t.Errorf("Expected a negative score, got %d", result.Score)
	}
}

// ============================================================================
// SCENARIO 5: Missing operator
// ============================================================================

func TestNoOperator_Refused(t *testing.T) {
	config := getTestConfig()

	status, body := do(t, config, http.MethodPost, "/evaluate", applicant(), "")
	if status != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d: %s", status, string(body))
	}

	var result EvaluateResponse
	json.Unmarshal(body, &result)
	if result.Score != 0 || result.Approved || result.Reason == "" {
		t.Errorf("Expected refusal body, got %+v", result)
	}
}

// ============================================================================
// SCENARIO 6: Rule lifecycle
// ============================================================================

func TestRuleLifecycle(t *testing.T) {
	config := getTestConfig()
	name := "integration " + uuid.NewString()

	status, body := do(t, config, http.MethodPost, "/rules", map[string]any{
		"name":       name,
		"expression": "loan_amount > 500000",
		"priority":   "low",
		"enabled":    false,
	}, config.Operator)
	if status != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", status, string(body))
	}
	var rule struct {
		ID int64 `json:"ruleId"`
	}
	json.Unmarshal(body, &rule)
	path := fmt.Sprintf("/rules/%d", rule.ID)

	status, _ = do(t, config, http.MethodPut, path, map[string]any{"priority": "high"}, config.Operator)
	if status != http.StatusOK {
		t.Errorf("Expected 200 on update, got %d", status)
	}

	status, _ = do(t, config, http.MethodPost, "/rules", map[string]any{
		"name": "bad", "expression": "credit_score <",
	}, config.Operator)
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid expression, got %d", status)
	}

	status, _ = do(t, config, http.MethodDelete, path, nil, config.Operator)
	if status != http.StatusNoContent {
		t.Errorf("Expected 204 on delete, got %d", status)
	}
	status, _ = do(t, config, http.MethodGet, path, nil, config.Operator)
	if status != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", status)
	}
}

// ============================================================================
// SCENARIO 7: Health
// ============================================================================

func TestHealth(t *testing.T) {
	config := getTestConfig()

	status, body := do(t, config, http.MethodGet, "/health", nil, "")
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	var health struct {
		Status string `json:"status"`
	}
	json.Unmarshal(body, &health)
	if health.Status != "healthy" {
		t.Errorf("Expected healthy, got %q (%s)", health.Status, string(body))
	}
}
