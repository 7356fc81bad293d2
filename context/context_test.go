package context

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kirkendall/jsoncalc/ast"
	"github.com/kirkendall/jsoncalc/ast/function"
	"github.com/kirkendall/jsoncalc/value"
)

func testContext(doc *value.Value) *Context {
	return NewContext(function.NewDefaultRegistry(), "test", doc)
}

func TestLookupResolvesDataVariable(t *testing.T) {
	require := require.New(t)
	doc := value.NewObject()
	doc.Set("x", value.NewInt(1))
	c := testContext(doc)
	v, ok := c.Lookup("data")
	require.True(ok)
	x, ok := v.Get("x")
	require.True(ok)
	i, _ := x.Int()
	require.Equal(int64(1), i)
}

func TestLookupUnknownNameFails(t *testing.T) {
	require := require.New(t)
	c := testContext(value.NewObject())
	_, ok := c.Lookup("nosuchname")
	require.False(ok)
}

func TestDeclareAndAssignVar(t *testing.T) {
	require := require.New(t)
	c := testContext(value.NewObject())
	c.DeclareVar("count", value.NewInt(0))
	v, ok := c.Lookup("count")
	require.True(ok)
	i, _ := v.Int()
	require.Equal(int64(0), i)

	_, err := c.Assign(ast.NewName("count"), value.NewInt(5))
	require.NoError(err)
	v, _ = c.Lookup("count")
	i, _ = v.Int()
	require.Equal(int64(5), i)
}

func TestAssignToUnknownVarIsError(t *testing.T) {
	require := require.New(t)
	c := testContext(value.NewObject())
	result, err := c.Assign(ast.NewName("nope"), value.NewInt(1))
	require.NoError(err)
	require.True(result.IsError())
}

func TestAssignToConstIsError(t *testing.T) {
	require := require.New(t)
	c := testContext(value.NewObject())
	c.DeclareConst("pi", value.NewFloat(3.14))
	result, err := c.Assign(ast.NewName("pi"), value.NewInt(0))
	require.NoError(err)
	require.True(result.IsError())
}

func TestPushThisBindsThisAndThat(t *testing.T) {
	require := require.New(t)
	c := testContext(value.NewObject())
	row1 := value.NewInt(1)
	row2 := value.NewInt(2)
	scope := c.PushThis(row1).PushThis(row2)

	cc := scope.(*Context)
	this, ok := cc.This()
	require.True(ok)
	i, _ := this.Int()
	require.Equal(int64(2), i)

	that, ok := cc.That()
	require.True(ok)
	i, _ = that.Int()
	require.Equal(int64(1), i)
}

func TestDefaultTablePrefersDataMember(t *testing.T) {
	require := require.New(t)
	doc := value.NewObject()
	rows := value.NewArray()
	row := value.NewObject()
	row.Set("a", value.NewInt(1))
	rows.Append(row)
	doc.Set("t", rows)
	c := testContext(doc)
	v, name, err := c.DefaultTable()
	require.NoError(err)
	require.Equal("data.t", name)
	require.Equal(1, v.Len())
}

func TestDefaultTableUnresolvedIsError(t *testing.T) {
	c := testContext(value.NewObject())
	_, _, err := c.DefaultTable()
	require.Error(t, err)
}

func TestGlobalAliasMergesVarsAndConsts(t *testing.T) {
	require := require.New(t)
	c := testContext(value.NewObject())
	c.DeclareVar("v", value.NewInt(1))
	c.DeclareConst("k", value.NewInt(2))
	g, ok := c.Lookup("global")
	require.True(ok)
	vv, ok := g.Get("v")
	require.True(ok)
	i, _ := vv.Int()
	require.Equal(int64(1), i)
	kk, ok := g.Get("k")
	require.True(ok)
	i, _ = kk.Int()
	require.Equal(int64(2), i)
}

func TestOpenFileSwitchesActiveDocument(t *testing.T) {
	require := require.New(t)
	c := testContext(value.NewObject())
	idx := c.OpenFile("second", value.NewString("hi"), true)
	require.Equal(1, idx)
	cur, name := c.CurrentFile()
	require.Equal(1, cur)
	require.Equal("second", name)
	v, ok := c.Lookup("data")
	require.True(ok)
	require.Equal("hi", v.ToString())
}
