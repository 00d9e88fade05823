package rules

import "github.com/shopspring/decimal"

// severity is one row of the penalty table: a recognised threshold on an
// attribute and the deduction it carries.
type severity struct {
	op      Op
	limit   decimal.Decimal
	penalty int
}

func sev(op Op, limit string, penalty int) severity {
	return severity{op: op, limit: decimal.RequireFromString(limit), penalty: penalty}
}

// penaltyTable maps recognised thresholds to penalties. A comparison whose
// operator and limit are not listed carries no penalty, so a rule built only
// from such comparisons never triggers.
var penaltyTable = map[Attribute][]severity{
	AttrCreditScore: {
		sev(OpLess, "550", 50),
		sev(OpLess, "600", 30),
		sev(OpLess, "650", 20),
	},
	AttrOverdueCount: {
		sev(OpGreater, "5", 40),
		sev(OpGreater, "3", 25),
		sev(OpGreater, "0", 10),
	},
	AttrMaxOverdueDays: {
		sev(OpGreater, "90", 45),
		sev(OpGreater, "60", 35),
		sev(OpGreater, "30", 20),
	},
	AttrDebtRatio: {
		sev(OpGreater, "0.6", 35),
		sev(OpGreater, "0.5", 25),
		sev(OpGreater, "0.4", 15),
	},
	AttrLoanAmount: {
		sev(OpGreater, "500000", 10),
	},
}

// combination is a conjunction of boolean attributes with its own penalty.
type combination struct {
	flags   []Attribute
	penalty int
}

var combinations = []combination{
	{flags: []Attribute{AttrHasMortgage, AttrHasCarLoan}, penalty: 15},
}

// thresholdPenalty looks up the penalty for attr op limit.
func thresholdPenalty(attr Attribute, op Op, limit decimal.Decimal) int {
	for _, s := range penaltyTable[attr] {
		if s.op == op && s.limit.Equal(limit) {
			return s.penalty
		}
	}
	return 0
}

// combinationPenalty returns the largest penalty of a combination fully
// contained in flags.
func combinationPenalty(flags map[Attribute]bool) int {
	best := 0
	for _, c := range combinations {
		all := true
		for _, f := range c.flags {
			if !flags[f] {
				all = false
				break
			}
		}
		if all && c.penalty > best {
			best = c.penalty
		}
	}
	return best
}
