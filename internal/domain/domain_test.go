package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestLoadFromEnvOverlaysSetKeys(t *testing.T) {
	t.Setenv("LENDGUARD_SERVER_PORT", "9090")
	t.Setenv("LENDGUARD_DB_DRIVER", "postgres")
	t.Setenv("LENDGUARD_DB_QUERY_TIMEOUT", "750ms")
	t.Setenv("LENDGUARD_BUS_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LENDGUARD_SCORING_APPROVAL_THRESHOLD", "70")
	t.Setenv("LENDGUARD_DEBUG", "true")

	cfg := DefaultConfig()
	if err := LoadFromEnv(cfg); err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Repository.Driver != "postgres" {
		t.Errorf("expected postgres driver, got %s", cfg.Repository.Driver)
	}
	if cfg.Repository.QueryTimeout != 750*time.Millisecond {
		t.Errorf("expected 750ms timeout, got %v", cfg.Repository.QueryTimeout)
	}
	if len(cfg.EventBus.KafkaBrokers) != 2 || cfg.EventBus.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers: %v", cfg.EventBus.KafkaBrokers)
	}
	if cfg.Scoring.ApprovalThreshold != 70 {
		t.Errorf("expected threshold 70, got %d", cfg.Scoring.ApprovalThreshold)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}

	// Untouched keys keep their defaults.
	if cfg.Scoring.BaseScore != DefaultBaseScore {
		t.Errorf("expected base score %d, got %d", DefaultBaseScore, cfg.Scoring.BaseScore)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host, got %s", cfg.Server.Host)
	}
}

func TestLoadFromEnvRejectsBadDriver(t *testing.T) {
	t.Setenv("LENDGUARD_DB_DRIVER", "oracle")
	if err := LoadFromEnv(DefaultConfig()); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestProConfig(t *testing.T) {
	cfg := ProConfig()
	if cfg.Tier != TierPro {
		t.Errorf("expected pro tier, got %s", cfg.Tier)
	}
	if cfg.Repository.Driver != "postgres" || cfg.Cache.Type != "redis" || cfg.EventBus.Type != "nats" {
		t.Errorf("unexpected pro components: %s/%s/%s", cfg.Repository.Driver, cfg.Cache.Type, cfg.EventBus.Type)
	}
	if cfg.Repository.MaxOpenConns != 5 {
		t.Errorf("expected pool size 5, got %d", cfg.Repository.MaxOpenConns)
	}
}

func TestRuleOrdering(t *testing.T) {
	now := time.Now()
	rules := []*Rule{
		{ID: 1, Priority: PriorityLow, CreatedAt: now},
		{ID: 2, Priority: PriorityHigh, CreatedAt: now.Add(-time.Hour)},
		{ID: 3, Priority: PriorityMedium, CreatedAt: now},
		{ID: 4, Priority: PriorityHigh, CreatedAt: now},
		{ID: 5, Priority: PriorityHigh, CreatedAt: now},
	}
	SortRules(rules)

	want := []int64{5, 4, 2, 3, 1}
	for i, id := range want {
		if rules[i].ID != id {
			t.Fatalf("position %d: expected rule %d, got %d", i, id, rules[i].ID)
		}
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"", PriorityMedium, false},
		{"HIGH", PriorityHigh, false},
		{" low ", PriorityLow, false},
		{"urgent", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePriority(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParsePriority(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEvaluationRequestDecoding(t *testing.T) {
	body := `{"name":" Li Wei ","id":"110101199001011234","loanAmount":"¥50,000",
		"loanPurpose":"car","creditScore":700,"overdueCount":"0","debtRatio":0.3,
		"hasMortgage":1,"hasCarLoan":"yes"}`

	var req EvaluationRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	p := req.ToProfile()

	if p.Name != "Li Wei" {
		t.Errorf("expected trimmed name, got %q", p.Name)
	}
	if p.LoanAmount != "¥50,000" {
		t.Errorf("expected raw loan amount, got %q", p.LoanAmount)
	}
	if p.CreditScore != "700" || p.DebtRatio != "0.3" {
		t.Errorf("unexpected numeric fields: %q %q", p.CreditScore, p.DebtRatio)
	}
	if !p.HasMortgage || !p.HasCarLoan {
		t.Error("expected both flags set")
	}
	if p.LoanPurpose != LoanPurposeAuto {
		t.Errorf("expected auto loan, got %q", p.LoanPurpose)
	}
}

func TestLoanPurposeBusinessLine(t *testing.T) {
	tests := []struct {
		purpose LoanPurpose
		want    BusinessLine
	}{
		{LoanPurposeConsumer, BusinessLineConsumer},
		{LoanPurposeHousing, BusinessLineHousing},
		{LoanPurposeAuto, BusinessLineAuto},
		{LoanPurposeEducation, BusinessLineEducation},
		{LoanPurposeBusiness, BusinessLineBusiness},
		{"consumer", BusinessLineConsumer},
		{"Travel", BusinessLineOther},
		{"", BusinessLineOther},
	}
	for _, tt := range tests {
		if got := tt.purpose.BusinessLine(); got != tt.want {
			t.Errorf("%q.BusinessLine() = %d, want %d", tt.purpose, got, tt.want)
		}
	}
}
