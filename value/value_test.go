package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseJSONRoundTrip(t *testing.T) {
	var testCases = []struct {
		name string
		text string
	}{
		{"object", `{"a":1,"b":"x"}`},
		{"array", `[1,2,3]`},
		{"nested", `{"x":1,"y":2,"z":{"w":3}}`},
		{"bool", `true`},
		{"null", `null`},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			v, err := ParseJSON(tt.text)
			require.NoError(err)
			require.Equal(tt.text, v.JSON())
		})
	}
}

func TestDotAccessOnNested(t *testing.T) {
	require := require.New(t)
	v, err := ParseJSON(`{"x": 1, "y": 2, "z": {"w":3}}`)
	require.NoError(err)
	z, ok := v.Get("z")
	require.True(ok)
	w, ok := z.Get("w")
	require.True(ok)
	f, ok := w.Float()
	require.True(ok)
	require.Equal(3.0, f)
}

func TestDeepCopyNoAliasing(t *testing.T) {
	require := require.New(t)
	orig := NewArray()
	orig.Append(NewInt(1))
	cp := orig.DeepCopy()
	cp.Append(NewInt(2))
	require.Equal(1, orig.Len())
	require.Equal(2, cp.Len())
}

func TestEqualNumberCoercion(t *testing.T) {
	require := require.New(t)
	require.True(NewInt(1).Equal(NewFloat(1.0)))
	require.True(NewNumberText("1.50").Equal(NewFloat(1.5)))
	require.False(NewInt(1).Equal(NewString("1")))
}

func TestErrorCarryingNull(t *testing.T) {
	require := require.New(t)
	e := NewError(nil, "no member named %q", "foo")
	require.True(e.IsNull())
	require.True(e.IsError())
	require.Equal(`no member named "foo"`, e.ErrorMessage())
	require.True(e.Equal(NewNull()))
}

func TestDeferredMaterializesOnWrite(t *testing.T) {
	require := require.New(t)
	d := &sliceDeferred{items: []*Value{NewInt(1), NewInt(2), NewInt(3)}}
	arr := NewDeferredArray(d)
	arr.Append(NewInt(4))
	require.Equal([]*Value{NewInt(1), NewInt(2), NewInt(3), NewInt(4)}, arr.Elements())
}

// sliceDeferred is a minimal Deferred used only by this test, standing in
// for a file-backed or range-backed provider.
type sliceDeferred struct {
	items []*Value
	i     int
	closed bool
}

func (d *sliceDeferred) First() (*Value, bool) {
	d.i = 0
	return d.Next2()
}
func (d *sliceDeferred) Next2() (*Value, bool) {
	if d.i >= len(d.items) {
		return nil, false
	}
	v := d.items[d.i]
	d.i++
	return v, true
}
func (d *sliceDeferred) Next() (*Value, bool) { return d.Next2() }
func (d *sliceDeferred) IsLast() bool         { return d.i >= len(d.items) }
func (d *sliceDeferred) Close()               { d.closed = true }
