package rules

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownAttribute is returned for an identifier outside the vocabulary.
	ErrUnknownAttribute = errors.New("unknown attribute")

	// ErrNoAttribute is returned for an expression that references no attribute.
	ErrNoAttribute = errors.New("expression references no known attribute")

	// ErrUnsupported is returned for syntax the predicate tree cannot express.
	ErrUnsupported = errors.New("unsupported expression")
)

var comparisons = map[string]Op{
	operators.Less:          OpLess,
	operators.LessEquals:    OpLessEqual,
	operators.Greater:       OpGreater,
	operators.GreaterEquals: OpGreaterEqual,
	operators.Equals:        OpEqual,
	operators.NotEquals:     OpNotEqual,
}

// Parser turns rule expression text into a predicate tree.
// The CEL parser supplies the syntax tree; only comparisons, boolean
// attributes and and/or/not over the closed vocabulary are accepted.
type Parser struct {
	env *cel.Env
}

// NewParser creates a parser.
func NewParser() (*Parser, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Parser{env: env}, nil
}

// Parse parses expr into a predicate tree.
func (p *Parser) Parse(expr string) (*Node, error) {
	src := normalizeExpression(expr)
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrNoAttribute)
	}

	parsed, issues := p.env.Parse(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("parse %q: %w", expr, issues.Err())
	}

	root, err := lower(parsed.NativeRep().Expr())
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", expr, err)
	}
	if len(root.Attributes()) == 0 {
		return nil, fmt.Errorf("parse %q: %w", expr, ErrNoAttribute)
	}
	return root, nil
}

func lower(e celast.Expr) (*Node, error) {
	switch e.Kind() {
	case celast.IdentKind:
		attr, kind, ok := LookupAttribute(e.AsIdent())
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAttribute, e.AsIdent())
		}
		if kind != KindBool {
			return nil, fmt.Errorf("%w: %s is not a boolean attribute", ErrUnsupported, attr)
		}
		return &Node{Kind: NodeFlag, Attr: attr}, nil

	case celast.CallKind:
		call := e.AsCall()
		args := call.Args()
		fn := call.FunctionName()

		switch fn {
		case operators.LogicalAnd, operators.LogicalOr:
			kind := NodeAnd
			if fn == operators.LogicalOr {
				kind = NodeOr
			}
			n := &Node{Kind: kind}
			for _, a := range args {
				child, err := lower(a)
				if err != nil {
					return nil, err
				}
				// Flatten nested chains so a && b && c is one node.
				if child.Kind == kind {
					n.Children = append(n.Children, child.Children...)
				} else {
					n.Children = append(n.Children, child)
				}
			}
			return n, nil

		case operators.LogicalNot:
			if len(args) != 1 {
				return nil, fmt.Errorf("%w: malformed negation", ErrUnsupported)
			}
			child, err := lower(args[0])
			if err != nil {
				return nil, err
			}
			return not(child), nil
		}

		if op, ok := comparisons[fn]; ok && len(args) == 2 {
			return lowerComparison(op, args[0], args[1])
		}
		return nil, fmt.Errorf("%w: function %s", ErrUnsupported, fn)

	case celast.LiteralKind:
		return nil, fmt.Errorf("%w: bare literal", ErrUnsupported)
	}
	return nil, fmt.Errorf("%w: expression kind %d", ErrUnsupported, e.Kind())
}

func lowerComparison(op Op, left, right celast.Expr) (*Node, error) {
	if left.Kind() != celast.IdentKind {
		if right.Kind() != celast.IdentKind {
			return nil, fmt.Errorf("%w: comparison needs one attribute", ErrUnsupported)
		}
		left, right = right, left
		op = op.flip()
	}

	name := left.AsIdent()
	attr, kind, ok := LookupAttribute(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}

	lit, err := literalOf(right)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindInt, KindDecimal:
		if lit.Kind != KindInt && lit.Kind != KindDecimal {
			return nil, fmt.Errorf("%w: %s compared with %s", ErrUnsupported, attr, lit.Kind)
		}
		return &Node{Kind: NodeCompare, Attr: attr, Op: op, Lit: lit}, nil

	case KindBool:
		if lit.Kind != KindBool || (op != OpEqual && op != OpNotEqual) {
			return nil, fmt.Errorf("%w: %s %s %s", ErrUnsupported, attr, op, lit)
		}
		flag := &Node{Kind: NodeFlag, Attr: attr}
		if lit.Bool == (op == OpEqual) {
			return flag, nil
		}
		return not(flag), nil

	case KindString:
		if lit.Kind != KindString || (op != OpEqual && op != OpNotEqual) {
			return nil, fmt.Errorf("%w: %s %s %s", ErrUnsupported, attr, op, lit)
		}
		return &Node{Kind: NodeCompare, Attr: attr, Op: op, Lit: lit}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, attr)
}

func literalOf(e celast.Expr) (Literal, error) {
	switch e.Kind() {
	case celast.LiteralKind:
		return literalValue(e.AsLiteral())
	case celast.CallKind:
		call := e.AsCall()
		if call.FunctionName() == operators.Negate && len(call.Args()) == 1 {
			lit, err := literalOf(call.Args()[0])
			if err != nil {
				return Literal{}, err
			}
			if lit.Kind != KindInt && lit.Kind != KindDecimal {
				return Literal{}, fmt.Errorf("%w: negated %s", ErrUnsupported, lit.Kind)
			}
			lit.Num = lit.Num.Neg()
			return lit, nil
		}
	}
	return Literal{}, fmt.Errorf("%w: comparison needs a literal", ErrUnsupported)
}

func literalValue(v ref.Val) (Literal, error) {
	switch val := v.(type) {
	case types.Int:
		return Literal{Kind: KindInt, Num: decimal.NewFromInt(int64(val))}, nil
	case types.Uint:
		return Literal{Kind: KindInt, Num: decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(val)), 0)}, nil
	case types.Double:
		return Literal{Kind: KindDecimal, Num: decimal.NewFromFloat(float64(val))}, nil
	case types.Bool:
		return Literal{Kind: KindBool, Bool: bool(val)}, nil
	case types.String:
		return Literal{Kind: KindString, Str: string(val)}, nil
	}
	return Literal{}, fmt.Errorf("%w: literal of type %s", ErrUnsupported, v.Type().TypeName())
}

func not(n *Node) *Node {
	if n.Kind == NodeNot {
		return n.Children[0]
	}
	return &Node{Kind: NodeNot, Children: []*Node{n}}
}

var wordOperators = map[string]string{
	"and":   "&&",
	"or":    "||",
	"not":   "!",
	"true":  "true",
	"false": "false",
}

// normalizeExpression rewrites the word operators and/or/not and
// capitalised booleans outside string literals into CEL syntax.
func normalizeExpression(expr string) string {
	var b strings.Builder
	b.Grow(len(expr) + 8)

	runes := []rune(expr)
	var quote rune
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case quote != 0:
			b.WriteRune(r)
			if r == '\\' && i+1 < len(runes) {
				b.WriteRune(runes[i+1])
				i += 2
				continue
			}
			if r == quote {
				quote = 0
			}
			i++
		case r == '"' || r == '\'':
			quote = r
			b.WriteRune(r)
			i++
		case r == '_' || unicode.IsLetter(r):
			j := i
			for j < len(runes) && (runes[j] == '_' || unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j])) {
				j++
			}
			word := string(runes[i:j])
			if repl, ok := wordOperators[strings.ToLower(word)]; ok {
				b.WriteString(repl)
			} else {
				b.WriteString(word)
			}
			i = j
		default:
			b.WriteRune(r)
			i++
		}
	}
	return b.String()
}
