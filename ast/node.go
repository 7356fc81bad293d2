// Package ast defines the expression tree produced by the parser (package
// parser) and consumed by the evaluator in this same package, per spec.md
// §3 "Expression node" and §4.4.
package ast

import (
	"regexp"
	"strings"

	"github.com/kirkendall/jsoncalc/ast/function"
	"github.com/kirkendall/jsoncalc/token"
	"github.com/kirkendall/jsoncalc/value"
)

// CaseInsensitive-compare and LIKE wildcard matching live in eval.go.

// AggCall is one aggregate function-call node captured by the aggregate
// discovery pass (package aggpass). Offset is the slot index into the
// enclosing AggDescriptor's accumulator region; per spec.md §3, "distinct
// offsets for distinct calls within the same descriptor".
type AggCall struct {
	Node   *Node
	Offset int
}

// AggDescriptor is attached to the AG wrapper node produced by the
// aggregate-discovery pass (spec.md §4.3): the number of aggregate calls
// within a subtree, the accumulator region's size (here: slot count, since
// this Go implementation models the region as a []interface{} rather than a
// raw byte buffer — see SPEC_FULL.md/DESIGN.md for the rearchitecture
// rationale), and the ordered list of call nodes.
type AggDescriptor struct {
	Calls    []*AggCall
	NumSlots int
}

// NewAccumulator allocates a fresh, zero-initialized accumulator region for
// one evaluation of one aggregate-bearing subtree, per spec.md §3's
// invariant that "the accumulator region for one evaluation... is
// contiguous and zero-initialised on entry".
func (d *AggDescriptor) NewAccumulator() []interface{} {
	return make([]interface{}, d.NumSlots)
}

// CaseBranch is one WHEN/THEN arm of a CASE-shaped conditional, carried in
// Node.Branches. The aggregate pass walks Branches, but neither the parser
// nor the SQL lowering pass builds them, and Eval does not evaluate them.
type CaseBranch struct {
	Cond  *Node
	Value *Node
}

// Node is the tagged-variant expression tree node (spec.md §3). Only the
// fields relevant to Op are populated; this mirrors the teacher's
// sql.Expression family of small, focused constructors (NewEquals, NewAnd,
// NewCase, ...) collapsed into one struct for a tree-walking, not
// interface-dispatch, evaluator -- chosen because spec.md's aggregate pass
// and l-value resolver both need to pattern-match on Op directly.
type Node struct {
	Op token.Opcode

	Left, Right *Node

	// LITERAL
	Lit *value.Value

	// NAME
	Name string
	// IsDefaultTable marks a NAME node synthesised by SQL lowering for a
	// FROM-less SELECT (spec.md §4.6 "Default table for SELECT"); resolved
	// by the evaluator via Scope.DefaultTable instead of Scope.Lookup.
	IsDefaultTable bool

	// FNCALL
	Func       *function.Descriptor
	Args       []*Node
	IsAggCall  bool // Func.IsAggregate, cached for the discovery pass
	AggSlot    int  // valid only once wrapped by an AG node

	// IsStarArg marks the bare `*` placeholder argument of calls like
	// count(*): it carries no value of its own, and the evaluator passes it
	// through to the function as a literal nil args[0] rather than
	// evaluating it, matching the aggregate layer's nil-args[0] convention
	// for "the whole row, unevaluated" (see ast/function/aggregation).
	IsStarArg bool

	// AG (aggregate wrapper, produced by package aggpass)
	AggDesc *AggDescriptor

	// REGEX
	Regex    *regexp.Regexp
	RegexSrc string
	Global   bool

	// ARRAY / OBJECT generator elements, and CASE branches
	Elems    []*Node
	ObjKeys  []string // parallel to Elems when Op == Object
	Branches []CaseBranch
	Else     *Node

	// SELECT (pre-lowering only; never present in a reduced tree)
	Select *SelectSpec

	Pos value.Pos
}

// SelectSpec captures a recognised SELECT before SQL lowering rewrites it
// into an ordinary tree, per spec.md §4.2.1.
type SelectSpec struct {
	Distinct   bool
	Columns    []Node // column expressions, parallel to ColNames; empty for SELECT *
	ColNames   []string
	From       *Node
	FromFields []string
	Where      *Node
	GroupBy    []string
	Having     *Node
	OrderBy    []OrderTerm
	Limit      *Node
}

type OrderTerm struct {
	Name string
	Desc bool
}

// NewLiteral, NewName, and the rest are thin constructors mirroring the
// teacher's NewGetField/NewLiteral/NewAnd naming.

func NewLiteral(v *value.Value) *Node { return &Node{Op: token.Literal, Lit: v} }

func NewName(name string) *Node { return &Node{Op: token.Name, Name: name} }

// NewDefaultTable builds the sentinel resolved at evaluation time by
// Scope.DefaultTable, per spec.md §4.6, for a SELECT with no FROM clause.
func NewDefaultTable() *Node { return &Node{Op: token.Name, IsDefaultTable: true} }

func NewBinary(op token.Opcode, left, right *Node) *Node {
	return &Node{Op: op, Left: left, Right: right}
}

func NewUnary(op token.Opcode, operand *Node) *Node {
	return &Node{Op: op, Left: operand}
}

func NewFuncCall(desc *function.Descriptor, args []*Node) *Node {
	return &Node{Op: token.FuncCall, Func: desc, Args: args, IsAggCall: desc != nil && desc.IsAggregate}
}

// NewStarArg builds the `*` placeholder argument node for calls such as
// count(*); see Node.IsStarArg.
func NewStarArg() *Node { return &Node{Op: token.Multiply, IsStarArg: true} }

func NewSubscript(left, index *Node) *Node {
	return &Node{Op: token.Subscript, Left: left, Right: index}
}

func NewDot(left *Node, name string) *Node {
	return &Node{Op: token.Dot, Left: left, Name: name}
}

func NewArray(elems []*Node) *Node { return &Node{Op: token.Array, Elems: elems} }

func NewObject(keys []string, elems []*Node) *Node {
	return &Node{Op: token.Object, Elems: elems, ObjKeys: keys}
}

// Dump renders a textual tree for the `explain` command (SPEC_FULL.md §12),
// mirroring the teacher's sql.Node.String() tree-printing convention used
// for EXPLAIN-style output. It has no parsing role; it exists purely for
// human-readable diagnostics.
func (n *Node) Dump() string {
	var sb strings.Builder
	n.dump(&sb, 0)
	return sb.String()
}

func (n *Node) dump(sb *strings.Builder, depth int) {
	if n == nil {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString("<nil>\n")
		return
	}
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(n.Op.String())
	switch n.Op {
	case token.Literal:
		sb.WriteString(" ")
		sb.WriteString(n.Lit.JSON())
	case token.Name:
		sb.WriteString(" ")
		sb.WriteString(n.Name)
	case token.Dot:
		sb.WriteString(" .")
		sb.WriteString(n.Name)
	case token.FuncCall:
		sb.WriteString(" ")
		if n.Func != nil {
			sb.WriteString(n.Func.Name)
		}
	}
	sb.WriteString("\n")
	if n.Left != nil {
		n.Left.dump(sb, depth+1)
	}
	if n.Right != nil {
		n.Right.dump(sb, depth+1)
	}
	for _, e := range n.Elems {
		e.dump(sb, depth+1)
	}
	for _, a := range n.Args {
		a.dump(sb, depth+1)
	}
}
