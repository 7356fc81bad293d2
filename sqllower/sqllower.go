// Package sqllower rewrites a recognised SELECT (captured by the parser as
// an ast.SelectSpec before reduction finishes) into an ordinary function-
// call tree, per spec.md §4.2.1. After lowering, no Select-opcode node
// remains anywhere in the tree.
package sqllower

import (
	"github.com/kirkendall/jsoncalc/ast"
	"github.com/kirkendall/jsoncalc/ast/function"
	"github.com/kirkendall/jsoncalc/token"
	"github.com/kirkendall/jsoncalc/value"
)

// Lower rewrites spec into an ordinary expression tree by threading the
// steps of spec.md §4.2.1 in order: FROM/unroll, GROUP BY, WHERE/column
// list, ORDER BY, DISTINCT, LIMIT.
func Lower(spec *ast.SelectSpec, reg *function.Registry) (*ast.Node, error) {
	table := spec.From
	if table == nil {
		table = ast.NewDefaultTable()
	}
	if len(spec.FromFields) > 0 {
		table = call(reg, "unroll", []*ast.Node{table, ast.NewArray(namesToLiterals(spec.FromFields))})
	}

	collist := columnList(spec)

	var ja *ast.Node
	switch {
	case len(spec.GroupBy) > 0:
		grouped := table
		if spec.Where != nil {
			grouped = call(reg, "each", []*ast.Node{grouped, spec.Where})
		}
		grouped = call(reg, "groupBy", []*ast.Node{grouped, ast.NewArray(namesToLiterals(spec.GroupBy))})
		proj := havingProjection(spec, collist)
		ja = &ast.Node{Op: token.Group, Left: grouped, Right: proj}

	case spec.Where != nil || collist != nil:
		proj := spec.Where
		if collist != nil {
			proj = collist
		}
		ja = call(reg, "each", []*ast.Node{table, proj})

	default:
		ja = table
	}

	if len(spec.OrderBy) > 0 {
		ja = call(reg, "orderBy", []*ast.Node{ja, orderSpecs(spec.OrderBy)})
	}

	if spec.Distinct || everyColumnAggregates(spec) {
		ja = call(reg, "distinct", []*ast.Node{ja, ast.NewLiteral(value.NewBool(true))})
	}

	if spec.Limit != nil {
		ja = call(reg, "slice", []*ast.Node{ja, ast.NewLiteral(value.NewInt(0)), spec.Limit})
	}

	return ja, nil
}

func call(reg *function.Registry, name string, args []*ast.Node) *ast.Node {
	desc, _ := reg.Lookup(name)
	return ast.NewFuncCall(desc, args)
}

func namesToLiterals(names []string) []*ast.Node {
	out := make([]*ast.Node, len(names))
	for i, n := range names {
		out[i] = ast.NewLiteral(value.NewString(n))
	}
	return out
}

// columnList builds the object generator for spec.Columns, or nil for
// SELECT *, per spec.md §4.2's object-generator member rewrite rules
// (already applied by the parser when it filled ColNames).
func columnList(spec *ast.SelectSpec) *ast.Node {
	if len(spec.Columns) == 0 {
		return nil
	}
	elems := make([]*ast.Node, len(spec.Columns))
	for i := range spec.Columns {
		col := spec.Columns[i]
		elems[i] = &col
	}
	return ast.NewObject(spec.ColNames, elems)
}

// havingProjection builds the post-group projection, per spec.md §4.2.1
// step 3. When both HAVING and a column list are present, a group that
// fails HAVING projects to null rather than being dropped: the `#` operator
// always emits one row per group (spec.md §4.4 GROUP), so filtering out
// groups entirely is left to a subsequent `distinct`/caller-side filter.
func havingProjection(spec *ast.SelectSpec, collist *ast.Node) *ast.Node {
	switch {
	case spec.Having != nil && collist != nil:
		return &ast.Node{
			Op:    token.Question,
			Left:  spec.Having,
			Right: &ast.Node{Op: token.Colon, Left: collist, Right: ast.NewLiteral(value.NewNull())},
		}
	case spec.Having != nil:
		return spec.Having
	case collist != nil:
		return collist
	default:
		return ast.NewName("this")
	}
}

func orderSpecs(terms []ast.OrderTerm) *ast.Node {
	elems := make([]*ast.Node, len(terms))
	for i, t := range terms {
		pair := ast.NewArray([]*ast.Node{
			ast.NewLiteral(value.NewString(t.Name)),
			ast.NewLiteral(value.NewBool(t.Desc)),
		})
		elems[i] = pair
	}
	return ast.NewArray(elems)
}

// everyColumnAggregates implements spec.md §4.2.1 step 6's implicit
// grouping rule: a column list with no GROUP BY where every column
// expression contains an aggregate call collapses the whole table to one
// row, the same way an explicit DISTINCT would signal "one row out".
func everyColumnAggregates(spec *ast.SelectSpec) bool {
	if len(spec.GroupBy) > 0 || len(spec.Columns) == 0 {
		return false
	}
	for i := range spec.Columns {
		if !containsAggregateCall(&spec.Columns[i]) {
			return false
		}
	}
	return true
}

func containsAggregateCall(n *ast.Node) bool {
	if n == nil {
		return false
	}
	if n.Op == token.FuncCall && n.IsAggCall {
		return true
	}
	if containsAggregateCall(n.Left) || containsAggregateCall(n.Right) || containsAggregateCall(n.Else) {
		return true
	}
	for _, e := range n.Elems {
		if containsAggregateCall(e) {
			return true
		}
	}
	for _, a := range n.Args {
		if containsAggregateCall(a) {
			return true
		}
	}
	return false
}
