package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/opensource-finance/lendguard/internal/domain"
)

// CompiledRule is a parsed rule expression. A rule whose expression failed
// to parse keeps the error and never triggers.
type CompiledRule struct {
	Expression string
	Root       *Node
	Err        error
}

// DefaultCompiledCacheSize bounds the number of parsed expressions kept.
const DefaultCompiledCacheSize = 1024

// Evaluator tests one rule against one applicant profile.
// Parsed expressions are cached by their text in a bounded LRU.
type Evaluator struct {
	parser   *Parser
	compiled *lru.Cache
}

// NewEvaluator creates an evaluator with the default cache size.
func NewEvaluator() (*Evaluator, error) {
	return NewEvaluatorSize(DefaultCompiledCacheSize)
}

// NewEvaluatorSize creates an evaluator that keeps at most size parsed
// expressions.
func NewEvaluatorSize(size int) (*Evaluator, error) {
	if size <= 0 {
		size = DefaultCompiledCacheSize
	}
	parser, err := NewParser()
	if err != nil {
		return nil, err
	}
	compiled, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create expression cache: %w", err)
	}
	return &Evaluator{parser: parser, compiled: compiled}, nil
}

// Compile parses expr, reusing an earlier parse of the same text.
func (e *Evaluator) Compile(expr string) *CompiledRule {
	key := strings.TrimSpace(expr)
	if v, ok := e.compiled.Get(key); ok {
		return v.(*CompiledRule)
	}
	c := e.parse(key)
	e.compiled.Add(key, c)
	return c
}

func (e *Evaluator) parse(key string) *CompiledRule {
	root, err := e.parser.Parse(key)
	return &CompiledRule{Expression: key, Root: root, Err: err}
}

// Validate reports whether expr can ever trigger: it must parse against the
// vocabulary and contain at least one recognised penalty. Candidate text is
// not added to the expression cache.
func (e *Evaluator) Validate(expr string) error {
	key := strings.TrimSpace(expr)
	var c *CompiledRule
	if v, ok := e.compiled.Peek(key); ok {
		c = v.(*CompiledRule)
	} else {
		c = e.parse(key)
	}
	if c.Err != nil {
		return c.Err
	}
	if maxPenalty(c.Root) == 0 {
		return fmt.Errorf("%w: %q carries no recognised threshold", ErrUnsupported, expr)
	}
	return nil
}

// CompiledCount returns the number of cached expressions.
func (e *Evaluator) CompiledCount() int {
	return e.compiled.Len()
}

// Evaluate tests rule against profile. It never fails: an unparseable
// expression, an unreadable attribute value or a panic all yield (false, 0).
func (e *Evaluator) Evaluate(rule *domain.Rule, profile *domain.ApplicantProfile) (triggered bool, penalty int) {
	if rule == nil || profile == nil {
		return false, 0
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("rule evaluation panicked", "rule_id", rule.ID, "panic", r)
			triggered, penalty = false, 0
		}
	}()

	c := e.Compile(rule.Expression)
	if c.Err != nil {
		slog.Debug("rule skipped", "rule_id", rule.ID, "expression", rule.Expression, "error", c.Err)
		return false, 0
	}

	holds, pen, err := eval(c.Root, profile)
	if err != nil {
		var ce *CoercionError
		if errors.As(err, &ce) {
			slog.Debug("rule skipped on coercion failure", "rule_id", rule.ID, "attribute", ce.Attr, "raw", ce.Raw)
		}
		return false, 0
	}
	if !holds || pen <= 0 {
		return false, 0
	}
	return true, pen
}

// eval walks the predicate tree. Every child is evaluated so that a
// coercion failure anywhere in the tree is reported.
func eval(n *Node, p *domain.ApplicantProfile) (bool, int, error) {
	switch n.Kind {
	case NodeFlag:
		return flagValue(p, n.Attr), 0, nil

	case NodeCompare:
		return evalCompare(n, p)

	case NodeNot:
		holds, _, err := eval(n.Children[0], p)
		if err != nil {
			return false, 0, err
		}
		return !holds, 0, nil

	case NodeAnd:
		all, best := true, 0
		flags := make(map[Attribute]bool)
		for _, c := range n.Children {
			holds, pen, err := eval(c, p)
			if err != nil {
				return false, 0, err
			}
			if c.Kind == NodeFlag {
				flags[c.Attr] = true
			}
			all = all && holds
			best = max(best, pen)
		}
		best = max(best, combinationPenalty(flags))
		return all, best, nil

	case NodeOr:
		anyHolds, best := false, 0
		for _, c := range n.Children {
			holds, pen, err := eval(c, p)
			if err != nil {
				return false, 0, err
			}
			if holds {
				anyHolds = true
				best = max(best, pen)
			}
		}
		return anyHolds, best, nil
	}
	return false, 0, fmt.Errorf("%w: node kind %d", ErrUnsupported, n.Kind)
}

func evalCompare(n *Node, p *domain.ApplicantProfile) (bool, int, error) {
	kind := vocabulary[n.Attr]
	raw := rawValue(p, n.Attr)

	if kind == KindString {
		eq := strings.EqualFold(strings.TrimSpace(raw), strings.TrimSpace(n.Lit.Str))
		if n.Op == OpNotEqual {
			return !eq, 0, nil
		}
		return eq, 0, nil
	}

	v, err := coerce(n.Attr, kind, raw)
	if err != nil {
		return false, 0, err
	}

	c := v.Cmp(n.Lit.Num)
	var holds bool
	switch n.Op {
	case OpLess:
		holds = c < 0
	case OpLessEqual:
		holds = c <= 0
	case OpGreater:
		holds = c > 0
	case OpGreaterEqual:
		holds = c >= 0
	case OpEqual:
		holds = c == 0
	case OpNotEqual:
		holds = c != 0
	}
	return holds, thresholdPenalty(n.Attr, n.Op, n.Lit.Num), nil
}

// maxPenalty is the largest penalty the tree can produce.
func maxPenalty(n *Node) int {
	switch n.Kind {
	case NodeCompare:
		return thresholdPenalty(n.Attr, n.Op, n.Lit.Num)
	case NodeAnd, NodeOr:
		best := 0
		flags := make(map[Attribute]bool)
		for _, c := range n.Children {
			best = max(best, maxPenalty(c))
			if n.Kind == NodeAnd && c.Kind == NodeFlag {
				flags[c.Attr] = true
			}
		}
		return max(best, combinationPenalty(flags))
	}
	return 0
}
