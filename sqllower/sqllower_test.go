package sqllower

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kirkendall/jsoncalc/ast"
	"github.com/kirkendall/jsoncalc/ast/function"
	"github.com/kirkendall/jsoncalc/token"
)

func TestLowerSelectStarNoFrom(t *testing.T) {
	require := require.New(t)
	reg := function.NewDefaultRegistry()
	spec := &ast.SelectSpec{}
	out, err := Lower(spec, reg)
	require.NoError(err)
	require.True(out.IsDefaultTable)
}

func TestLowerWhereOnly(t *testing.T) {
	require := require.New(t)
	reg := function.NewDefaultRegistry()
	spec := &ast.SelectSpec{
		From:  ast.NewName("t"),
		Where: ast.NewName("active"),
	}
	out, err := Lower(spec, reg)
	require.NoError(err)
	require.Equal(token.FuncCall, out.Op)
	require.Equal("each", out.Func.Name)
}

func TestLowerGroupByWrapsGroupOperator(t *testing.T) {
	require := require.New(t)
	reg := function.NewDefaultRegistry()
	spec := &ast.SelectSpec{
		From:    ast.NewName("orders"),
		GroupBy: []string{"customer"},
	}
	out, err := Lower(spec, reg)
	require.NoError(err)
	require.Equal(token.Group, out.Op)
	require.Equal(token.FuncCall, out.Left.Op)
	require.Equal("groupBy", out.Left.Func.Name)
}

func TestLowerLimitWrapsSlice(t *testing.T) {
	require := require.New(t)
	reg := function.NewDefaultRegistry()
	spec := &ast.SelectSpec{
		From:  ast.NewName("t"),
		Limit: ast.NewName("n"),
	}
	out, err := Lower(spec, reg)
	require.NoError(err)
	require.Equal(token.FuncCall, out.Op)
	require.Equal("slice", out.Func.Name)
}

func TestLowerDistinct(t *testing.T) {
	require := require.New(t)
	reg := function.NewDefaultRegistry()
	spec := &ast.SelectSpec{
		From:     ast.NewName("t"),
		Distinct: true,
	}
	out, err := Lower(spec, reg)
	require.NoError(err)
	require.Equal("distinct", out.Func.Name)
}
