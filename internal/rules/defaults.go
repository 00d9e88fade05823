package rules

import "github.com/opensource-finance/lendguard/internal/domain"

// SystemCreator is the creator recorded on seeded rules.
const SystemCreator = "system"

// DefaultRules returns the default rule battery. Each call returns fresh
// values; seeding is keyed by expression.
func DefaultRules() []*domain.Rule {
	def := func(name, expr string, p domain.Priority) *domain.Rule {
		return &domain.Rule{
			Name:       name,
			Expression: expr,
			Priority:   p,
			Enabled:    true,
			Creator:    SystemCreator,
		}
	}
	return []*domain.Rule{
		def("Credit score critically low", "credit_score < 550", domain.PriorityHigh),
		def("Credit score low", "credit_score < 600", domain.PriorityMedium),
		def("Credit score below average", "credit_score < 650", domain.PriorityLow),
		def("Frequent overdue payments", "overdue_count > 5", domain.PriorityHigh),
		def("Repeated overdue payments", "overdue_count > 3", domain.PriorityMedium),
		def("Overdue payment history", "overdue_count > 0", domain.PriorityLow),
		def("Overdue beyond 90 days", "max_overdue_days > 90", domain.PriorityHigh),
		def("Overdue beyond 60 days", "max_overdue_days > 60", domain.PriorityMedium),
		def("Overdue beyond 30 days", "max_overdue_days > 30", domain.PriorityLow),
		def("Debt ratio above 60%", "debt_ratio > 0.6", domain.PriorityHigh),
		def("Debt ratio above 50%", "debt_ratio > 0.5", domain.PriorityMedium),
		def("Debt ratio above 40%", "debt_ratio > 0.4", domain.PriorityLow),
		def("Existing mortgage and car loan", "has_mortgage and has_car_loan", domain.PriorityMedium),
		def("Large loan amount", "loan_amount > 500000", domain.PriorityLow),
	}
}
