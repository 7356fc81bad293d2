package aggpass

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kirkendall/jsoncalc/ast"
	"github.com/kirkendall/jsoncalc/ast/function"
	"github.com/kirkendall/jsoncalc/ast/function/aggregation"
	"github.com/kirkendall/jsoncalc/token"
	"github.com/kirkendall/jsoncalc/value"
)

func sumDesc() *function.Descriptor {
	r := function.NewRegistry()
	aggregation.RegisterBuiltins(r)
	d, _ := r.Lookup("sum")
	return d
}

func TestWrapScopeNoAggregates(t *testing.T) {
	require := require.New(t)
	n := ast.NewBinary(token.Add, ast.NewLiteral(value.NewInt(1)), ast.NewLiteral(value.NewInt(2)))
	out := Run(n)
	require.Equal(token.Add, out.Op, "no aggregate calls means no AG wrapper")
}

func TestWrapScopeSingleAggregate(t *testing.T) {
	require := require.New(t)
	call := ast.NewFuncCall(sumDesc(), []*ast.Node{ast.NewName("x")})
	out := Run(call)
	require.Equal(token.Aggregate, out.Op)
	require.NotNil(out.AggDesc)
	require.Equal(1, out.AggDesc.NumSlots)
	require.Same(call, out.Left)
	require.Equal(0, call.AggSlot)
}

func TestWrapScopeDistinctOffsets(t *testing.T) {
	require := require.New(t)
	c1 := ast.NewFuncCall(sumDesc(), []*ast.Node{ast.NewName("x")})
	c2 := ast.NewFuncCall(sumDesc(), []*ast.Node{ast.NewName("y")})
	tree := ast.NewBinary(token.Add, c1, c2)
	out := Run(tree)
	require.Equal(token.Aggregate, out.Op)
	require.Equal(2, out.AggDesc.NumSlots)
	require.NotEqual(c1.AggSlot, c2.AggSlot)
}

func TestWrapScopeStopsAtNestedGroup(t *testing.T) {
	require := require.New(t)
	inner := ast.NewFuncCall(sumDesc(), []*ast.Node{ast.NewName("x")})
	nestedGroup := &ast.Node{Op: token.Group, Left: ast.NewName("groups"), Right: inner}
	outerCall := ast.NewFuncCall(sumDesc(), []*ast.Node{ast.NewName("y")})
	tree := ast.NewBinary(token.Add, nestedGroup, outerCall)

	out := Run(tree)
	require.Equal(token.Aggregate, out.Op, "outer scope gets its own AG wrapper")
	require.Equal(1, out.AggDesc.NumSlots, "the nested group's own aggregate call isn't pulled into the outer scope")

	nestedAfter := out.Left.Left
	require.Equal(token.Group, nestedAfter.Op)
	require.Equal(token.Aggregate, nestedAfter.Right.Op, "the group's own right operand got its own AG wrapper")
}
