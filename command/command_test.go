package command

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kirkendall/jsoncalc/ast/function"
	"github.com/kirkendall/jsoncalc/context"
	"github.com/kirkendall/jsoncalc/value"
)

func run(t *testing.T, src string) (*value.Value, *context.Context) {
	t.Helper()
	reg := function.NewDefaultRegistry()
	cp := NewParser(src, "test", reg)
	block, err := cp.ParseProgram()
	require.NoError(t, err)
	ctx := context.NewContext(reg, "test", value.NewObject())
	v, _, err := block.Exec(ctx)
	require.NoError(t, err)
	return v, ctx
}

func TestVarDeclAndAssignment(t *testing.T) {
	require := require.New(t)
	v, _ := run(t, "var x = 1; x = x + 1; x")
	i, _ := v.Int()
	require.Equal(int64(2), i)
}

func TestAssignWithoutVarIsError(t *testing.T) {
	require := require.New(t)
	v, _ := run(t, "y = 1")
	require.True(v.IsError())
}

func TestIfElse(t *testing.T) {
	require := require.New(t)
	v, _ := run(t, `var x = 0; if (x == 0) { x = 10 } else { x = 20 } x`)
	i, _ := v.Int()
	require.Equal(int64(10), i)
}

func TestWhileLoop(t *testing.T) {
	require := require.New(t)
	v, _ := run(t, `var n = 0; var sum = 0; while (n < 5) { sum = sum + n; n = n + 1 } sum`)
	i, _ := v.Int()
	require.Equal(int64(10), i)
}

func TestForLoopBreaksEarly(t *testing.T) {
	require := require.New(t)
	v, _ := run(t, `var sum = 0; for (n of [0,1,2,3,4,5,6,7,8,9]) { if (n == 5) { break } sum = sum + n } sum`)
	i, _ := v.Int()
	require.Equal(int64(10), i)
}

func TestUserFunctionCall(t *testing.T) {
	require := require.New(t)
	v, _ := run(t, `function add(a, b) { return a + b } add(3, 4)`)
	i, _ := v.Int()
	require.Equal(int64(7), i)
}

func TestUserFunctionDefaultArg(t *testing.T) {
	require := require.New(t)
	v, _ := run(t, `function greet(name = "world") { return name } greet()`)
	require.Equal("world", v.ToString())
}

func TestTryCatchRecoversThrow(t *testing.T) {
	require := require.New(t)
	v, _ := run(t, `var caught = 0; try { throw "boom" } catch (e) { caught = 1 } caught`)
	i, _ := v.Int()
	require.Equal(int64(1), i)
}

func TestConstAssignmentRejected(t *testing.T) {
	require := require.New(t)
	v, _ := run(t, `const k = 1; k = 2`)
	require.True(v.IsError())
}

func TestSwitchStatement(t *testing.T) {
	require := require.New(t)
	v, _ := run(t, `var out = 0; switch (2) { case 1: out = 10; case 2: out = 20; default: out = 30 } out`)
	i, _ := v.Int()
	require.Equal(int64(20), i)
}
