// Package aggpass implements the aggregate-discovery compile pass described
// in spec.md §4.3: a single post-order walk over a fully reduced expression
// tree that finds every aggregate function call reachable without crossing
// into a deeper `#`/`##` scope, and wraps the subtree in an AG node carrying
// an ast.AggDescriptor sized and offset to hold that scope's accumulator.
package aggpass

import (
	"github.com/kirkendall/jsoncalc/ast"
	"github.com/kirkendall/jsoncalc/token"
)

// Run walks root and returns a tree with every aggregation scope wrapped in
// an AG node, per spec.md §4.3. Engine.ParseExpr runs it once on the parsed
// tree; the right operands of the # / ## nodes inside are wrapped by the
// same walk. The parser itself never calls it.
func Run(root *ast.Node) *ast.Node {
	if root == nil {
		return nil
	}
	return wrapScope(root)
}

// wrapScope discovers aggregate calls within node (not crossing into a
// nested #/## scope, which owns its own discovery) and, if any exist, wraps
// node in an AG carrying the descriptor. It is the entry point used both
// for a free-standing expression root and for the right operand of # / ##
// (spec.md §4.3 step 1: "the root of any free-standing expression").
func wrapScope(node *ast.Node) *ast.Node {
	descended := descend(node)

	collector := &collector{}
	collect(descended, collector)

	if len(collector.calls) == 0 {
		return descended
	}

	desc := &ast.AggDescriptor{Calls: collector.calls, NumSlots: len(collector.calls)}
	for i, c := range collector.calls {
		c.Offset = i
		c.Node.AggSlot = i
	}
	return &ast.Node{Op: token.Aggregate, Left: descended, AggDesc: desc, Pos: descended.Pos}
}

// descend recursively applies wrapScope to every # / ## right operand
// found anywhere under node, without itself starting a new top-level
// collection (that only happens at the call site: the program root, or
// the right operand of a # / ##). It returns node with its children
// rewritten in place.
func descend(node *ast.Node) *ast.Node {
	if node == nil {
		return nil
	}
	switch node.Op {
	case token.Group, token.Each:
		node.Left = descend(node.Left)
		node.Right = wrapScope(node.Right)
		return node
	}

	node.Left = descend(node.Left)
	node.Right = descend(node.Right)
	for i, e := range node.Elems {
		node.Elems[i] = descend(e)
	}
	for i, a := range node.Args {
		node.Args[i] = descend(a)
	}
	for i := range node.Branches {
		node.Branches[i].Cond = descend(node.Branches[i].Cond)
		node.Branches[i].Value = descend(node.Branches[i].Value)
	}
	node.Else = descend(node.Else)
	return node
}

type collector struct {
	calls []*ast.AggCall
}

// collect gathers every aggregate FuncCall reachable from node without
// crossing into a nested # / ## scope (that scope performs its own
// collection when wrapScope visits it, per spec.md §4.3 step 1: "do NOT
// descend past another #/## into a still-deeper aggregate scope").
func collect(node *ast.Node, c *collector) {
	if node == nil {
		return
	}
	switch node.Op {
	case token.Group, token.Each, token.Aggregate:
		// Already-wrapped or independently-scoped subtree; stop here.
		return
	case token.FuncCall:
		if node.IsAggCall {
			c.calls = append(c.calls, &ast.AggCall{Node: node})
		}
		for _, a := range node.Args {
			collect(a, c)
		}
		return
	}

	collect(node.Left, c)
	collect(node.Right, c)
	for _, e := range node.Elems {
		collect(e, c)
	}
	for _, br := range node.Branches {
		collect(br.Cond, c)
		collect(br.Value, c)
	}
	collect(node.Else, c)
}
