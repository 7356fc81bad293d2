package ast_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kirkendall/jsoncalc/ast"
	"github.com/kirkendall/jsoncalc/ast/function"
	"github.com/kirkendall/jsoncalc/ast/function/aggregation"
	"github.com/kirkendall/jsoncalc/context"
	"github.com/kirkendall/jsoncalc/token"
	"github.com/kirkendall/jsoncalc/value"
)

func testScope() ast.Scope {
	reg := function.NewDefaultRegistry()
	aggregation.RegisterBuiltins(reg)
	return context.NewContext(reg, "test", value.NewObject())
}

func TestEvalLiteral(t *testing.T) {
	require := require.New(t)
	v, err := ast.Eval(ast.NewLiteral(value.NewInt(42)), testScope(), nil)
	require.NoError(err)
	i, _ := v.Int()
	require.Equal(int64(42), i)
}

func TestEvalArithmeticPrecedence(t *testing.T) {
	require := require.New(t)
	// 1 + 2 * 3
	node := ast.NewBinary(token.Add,
		ast.NewLiteral(value.NewInt(1)),
		ast.NewBinary(token.Multiply, ast.NewLiteral(value.NewInt(2)), ast.NewLiteral(value.NewInt(3))),
	)
	v, err := ast.Eval(node, testScope(), nil)
	require.NoError(err)
	i, _ := v.Int()
	require.Equal(int64(7), i)
}

func TestEvalAndShortCircuits(t *testing.T) {
	require := require.New(t)
	// false && (1/0), the right side must never be evaluated.
	node := ast.NewBinary(token.And,
		ast.NewLiteral(value.NewBool(false)),
		ast.NewBinary(token.Divide, ast.NewLiteral(value.NewInt(1)), ast.NewLiteral(value.NewInt(0))),
	)
	v, err := ast.Eval(node, testScope(), nil)
	require.NoError(err)
	require.False(v.Bool())
}

func TestEvalConditional(t *testing.T) {
	require := require.New(t)
	cond := &ast.Node{Op: token.Question,
		Left:  ast.NewLiteral(value.NewBool(true)),
		Right: &ast.Node{Op: token.Colon, Left: ast.NewLiteral(value.NewInt(1)), Right: ast.NewLiteral(value.NewInt(2))},
	}
	v, err := ast.Eval(cond, testScope(), nil)
	require.NoError(err)
	i, _ := v.Int()
	require.Equal(int64(1), i)
}

func TestEvalDotAccess(t *testing.T) {
	require := require.New(t)
	obj := value.NewObject()
	obj.Set("x", value.NewInt(7))
	scope := context.NewContext(function.NewDefaultRegistry(), "test", obj)
	dot := ast.NewDot(ast.NewName("data"), "x")
	v, err := ast.Eval(dot, scope, nil)
	require.NoError(err)
	i, _ := v.Int()
	require.Equal(int64(7), i)
}

func TestEvalUnknownNameIsError(t *testing.T) {
	require := require.New(t)
	v, err := ast.Eval(ast.NewName("nosuchvar"), testScope(), nil)
	require.NoError(err)
	require.True(v.IsError())
}

// TestEvalFuncCallStarArgPassesNil exercises evalArgs' star-placeholder
// handling directly: a FuncCall whose sole argument is the `*` placeholder
// must reach the descriptor as a literal nil args[0].
func TestEvalFuncCallStarArgPassesNil(t *testing.T) {
	require := require.New(t)
	reg := function.NewRegistry()
	var seenNilArg bool
	reg.Register(&function.Descriptor{
		Name: "probe",
		Fn: func(args []*value.Value, _ function.Slot) (*value.Value, error) {
			seenNilArg = len(args) == 1 && args[0] == nil
			return value.NewBool(seenNilArg), nil
		},
	})
	desc, _ := reg.Lookup("probe")
	call := ast.NewFuncCall(desc, []*ast.Node{ast.NewStarArg()})
	v, err := ast.Eval(call, testScope(), nil)
	require.NoError(err)
	require.True(v.Bool())
	require.True(seenNilArg)
}

// TestEvalGroupCountStar drives the full GROUP accumulator pipeline end to
// end: a table grouped into buckets, each bucket's count(*) folded through
// AgFn row by row, mirroring the shape SELECT ... GROUP BY lowers into
// (spec.md §8 scenario 3 / testable property 4).
func TestEvalGroupCountStar(t *testing.T) {
	require := require.New(t)
	reg := function.NewDefaultRegistry()
	aggregation.RegisterBuiltins(reg)
	countDesc, ok := reg.Lookup("count")
	require.True(ok)

	groupA := value.NewArray()
	groupA.Append(value.NewInt(1))
	groupA.Append(value.NewInt(2))
	groupB := value.NewArray()
	groupB.Append(value.NewInt(3))
	groups := value.NewArray()
	groups.Append(groupA)
	groups.Append(groupB)

	call := ast.NewFuncCall(countDesc, []*ast.Node{ast.NewStarArg()})
	body := &ast.Node{Op: token.Aggregate, Left: call, AggDesc: &ast.AggDescriptor{
		Calls:    []*ast.AggCall{{Node: call, Offset: 0}},
		NumSlots: 1,
	}}
	node := &ast.Node{Op: token.Group, Left: ast.NewLiteral(groups), Right: body}

	v, err := ast.Eval(node, testScope(), nil)
	require.NoError(err)
	require.Equal(2, v.Len())
	first, _ := v.Index(0)
	n, _ := first.Int()
	require.Equal(int64(2), n)
	second, _ := v.Index(1)
	n2, _ := second.Int()
	require.Equal(int64(1), n2)
}
