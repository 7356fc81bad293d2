package aggregation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kirkendall/jsoncalc/ast/function"
	"github.com/kirkendall/jsoncalc/value"
)

func TestSumDirectCall(t *testing.T) {
	require := require.New(t)
	d := sumDescriptor()
	arr := value.NewArray()
	for _, n := range []int64{1, 2, 3, 4} {
		arr.Append(value.NewInt(n))
	}
	result, err := d.Fn([]*value.Value{arr}, nil)
	require.NoError(err)
	f, _ := result.Float()
	require.Equal(10.0, f)
}

func TestSumEmptyArray(t *testing.T) {
	require := require.New(t)
	d := sumDescriptor()
	result, err := d.Fn([]*value.Value{value.NewArray()}, nil)
	require.NoError(err)
	f, _ := result.Float()
	require.Equal(0.0, f)
}

func TestAvgEmptyIsNull(t *testing.T) {
	require := require.New(t)
	d := avgDescriptor()
	result, err := d.Fn([]*value.Value{value.NewArray()}, nil)
	require.NoError(err)
	require.True(result.IsNull())
}

func TestSumFoldedThroughSlot(t *testing.T) {
	require := require.New(t)
	d := sumDescriptor()
	var cell interface{}
	slot := function.Slot(&cell)
	rows := []int64{1, 2, 3, 4}
	for _, n := range rows {
		require.NoError(d.AgFn([]*value.Value{value.NewInt(n)}, slot))
	}
	result, err := d.Fn(nil, slot)
	require.NoError(err)
	f, _ := result.Float()
	require.Equal(10.0, f)
}

func TestCountStarAndColumn(t *testing.T) {
	require := require.New(t)
	d := countDescriptor()
	var cell interface{}
	slot := function.Slot(&cell)
	require.NoError(d.AgFn(nil, slot))
	require.NoError(d.AgFn([]*value.Value{value.NewString("foo")}, slot))
	require.NoError(d.AgFn([]*value.Value{value.NewNull()}, slot))
	result, err := d.Fn(nil, slot)
	require.NoError(err)
	n, _ := result.Int()
	require.Equal(int64(2), n)
}

func TestMinMax(t *testing.T) {
	require := require.New(t)
	arr := value.NewArray()
	for _, n := range []int64{5, 1, 9, 3} {
		arr.Append(value.NewInt(n))
	}
	min, err := minDescriptor().Fn([]*value.Value{arr}, nil)
	require.NoError(err)
	minF, _ := min.Float()
	require.Equal(1.0, minF)

	max, err := maxDescriptor().Fn([]*value.Value{arr}, nil)
	require.NoError(err)
	maxF, _ := max.Float()
	require.Equal(9.0, maxF)
}

func TestGroupConcat(t *testing.T) {
	require := require.New(t)
	arr := value.NewArray()
	arr.Append(value.NewString("a"))
	arr.Append(value.NewString("b"))
	result, err := groupConcatDescriptor().Fn([]*value.Value{arr}, nil)
	require.NoError(err)
	require.Equal("a,b", result.ToString())
}
