package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// NodeKind tags the variant held by a Node.
type NodeKind int

const (
	// NodeCompare compares an attribute with a literal.
	NodeCompare NodeKind = iota + 1
	// NodeFlag tests a boolean attribute.
	NodeFlag
	NodeAnd
	NodeOr
	NodeNot
)

// Op is a comparison operator.
type Op string

const (
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	OpEqual        Op = "=="
	OpNotEqual     Op = "!="
)

// flip mirrors the operator for a literal written on the left.
func (o Op) flip() Op {
	switch o {
	case OpLess:
		return OpGreater
	case OpLessEqual:
		return OpGreaterEqual
	case OpGreater:
		return OpLess
	case OpGreaterEqual:
		return OpLessEqual
	default:
		return o
	}
}

// Literal is the constant side of a comparison.
type Literal struct {
	Kind Kind
	Num  decimal.Decimal
	Bool bool
	Str  string
}

func (l Literal) String() string {
	switch l.Kind {
	case KindInt, KindDecimal:
		return l.Num.String()
	case KindBool:
		return strconv.FormatBool(l.Bool)
	default:
		return strconv.Quote(l.Str)
	}
}

// Node is a predicate tree over applicant attributes.
type Node struct {
	Kind     NodeKind
	Attr     Attribute
	Op       Op
	Lit      Literal
	Children []*Node
}

// Attributes lists every attribute the tree references, in first-use order.
func (n *Node) Attributes() []Attribute {
	var out []Attribute
	seen := make(map[Attribute]bool)
	var walk func(*Node)
	walk = func(n *Node) {
		if n.Attr != "" && !seen[n.Attr] {
			seen[n.Attr] = true
			out = append(out, n.Attr)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}

// String renders the tree in canonical form.
func (n *Node) String() string {
	switch n.Kind {
	case NodeCompare:
		return fmt.Sprintf("%s %s %s", n.Attr, n.Op, n.Lit)
	case NodeFlag:
		return string(n.Attr)
	case NodeNot:
		return "not " + n.Children[0].group()
	case NodeAnd, NodeOr:
		sep := " and "
		if n.Kind == NodeOr {
			sep = " or "
		}
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = c.group()
		}
		return strings.Join(parts, sep)
	}
	return "?"
}

func (n *Node) group() string {
	if n.Kind == NodeAnd || n.Kind == NodeOr {
		return "(" + n.String() + ")"
	}
	return n.String()
}
