package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kirkendall/jsoncalc/ast"
	"github.com/kirkendall/jsoncalc/ast/function"
	"github.com/kirkendall/jsoncalc/ast/function/aggregation"
	"github.com/kirkendall/jsoncalc/token"
)

func testRegistry() *function.Registry {
	r := function.NewDefaultRegistry()
	aggregation.RegisterBuiltins(r)
	return r
}

func mustParse(t *testing.T, src string) *ast.Node {
	t.Helper()
	p := New(src, "test", testRegistry())
	node, err := p.Parse()
	require.NoError(t, err)
	return node
}

func TestPrecedenceMultiplicativeOverAdditive(t *testing.T) {
	require := require.New(t)
	node := mustParse(t, "1 + 2 * 3")
	require.Equal(token.Add, node.Op)
	require.Equal(token.Multiply, node.Right.Op)
}

func TestPrecedenceParensOverride(t *testing.T) {
	require := require.New(t)
	node := mustParse(t, "(1 + 2) * 3")
	require.Equal(token.Multiply, node.Op)
	require.Equal(token.Add, node.Left.Op)
}

// TestCountStarParses closes the gap a hand-built AST test can't: count(*)
// must actually parse from source text into the star-placeholder argument
// the aggregation layer expects.
func TestCountStarParses(t *testing.T) {
	require := require.New(t)
	node := mustParse(t, "count(*)")
	require.Equal(token.FuncCall, node.Op)
	require.Equal("count", node.Func.Name)
	require.Len(node.Args, 1)
	require.True(node.Args[0].IsStarArg)
}

func TestCountStarWithWhitespaceParses(t *testing.T) {
	require := require.New(t)
	node := mustParse(t, "count( * )")
	require.Len(node.Args, 1)
	require.True(node.Args[0].IsStarArg)
}

func TestCountColumnStillParsesAsOrdinaryArg(t *testing.T) {
	require := require.New(t)
	node := mustParse(t, "count(a)")
	require.Len(node.Args, 1)
	require.False(node.Args[0].IsStarArg)
	require.Equal(token.Name, node.Args[0].Op)
}

func TestMultiplicationStillWorksOutsideArgList(t *testing.T) {
	require := require.New(t)
	node := mustParse(t, "a * b")
	require.Equal(token.Multiply, node.Op)
	require.False(node.Left.IsStarArg)
	require.False(node.Right.IsStarArg)
}

func TestUnknownFunctionRejectedAtParseTime(t *testing.T) {
	_, err := New("nosuchfn(1)", "test", testRegistry()).Parse()
	require.Error(t, err)
}

func TestSelectLowersToOrdinaryTree(t *testing.T) {
	require := require.New(t)
	node := mustParse(t, "select a, count(*) as n from t group by a order by a")
	require.Equal(token.FuncCall, node.Op)
}

func TestMissingOperandError(t *testing.T) {
	_, err := New("1 +", "test", testRegistry()).Parse()
	require.Error(t, err)
}

func TestUnbalancedParenError(t *testing.T) {
	_, err := New("(1 + 2", "test", testRegistry()).Parse()
	require.Error(t, err)
}
