// Package value implements the JSON value model external collaborator
// described in spec.md §3 and §6: an immutable-by-convention, tagged-variant
// JSON value with ownership by convention (Go's GC retires the "explicit
// free" half of the contract, but the shape — insertion-ordered objects as
// linked member lists, arrays as linked element lists with a cached tail,
// lazily-materialized deferred arrays, error-carrying null — is preserved
// because the evaluator, context, and aggregate pass all depend on exactly
// this shape).
package value

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind discriminates the tagged variant.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Pos is a source-position pointer, used to annotate error-carrying nulls
// and propagated to the command layer for file:line mapping.
type Pos struct {
	File   string
	Line   int
	Offset int
}

// Member is one key/value pair in a singly linked, insertion-ordered object.
type Member struct {
	Key  string
	Val  *Value
	Next *Member
}

// Elem is one element of a singly linked array.
type Elem struct {
	Val  *Value
	Next *Elem
}

// Deferred produces array elements lazily. A deferred array must be
// materialized (via Undefer) before any in-place mutation touches it or any
// of its siblings, per spec.md §3's invariant.
type Deferred interface {
	First() (*Value, bool)
	Next() (*Value, bool)
	IsLast() bool
	Close()
}

// Value is the tagged JSON value variant.
type Value struct {
	kind Kind

	b bool

	// Numbers carry two representations: decimal text (as parsed, kept
	// around so re-serialization doesn't introduce float noise) or a
	// binary int64/float64, distinguished by isBin/isFloat. Conversion
	// between representations is lazy.
	numText string
	isBin   bool
	isFloat bool
	binInt  int64
	binFlt  float64

	str string

	objHead *Member
	objTail *Member

	arrHead *Elem
	arrTail *Elem
	deferred Deferred

	errMsg string
	errPos *Pos
}

// Null is the canonical null value with no error payload.
var Null = &Value{kind: KindNull}

func NewNull() *Value { return &Value{kind: KindNull} }

// NewError constructs a null value carrying a printf-expanded error message
// and an optional source position, per spec.md §3 "Null with payload".
func NewError(pos *Pos, format string, args ...interface{}) *Value {
	return &Value{kind: KindNull, errMsg: fmt.Sprintf(format, args...), errPos: pos}
}

func NewBool(b bool) *Value { return &Value{kind: KindBool, b: b} }

// NewNumberText constructs a number from its decimal source text, without
// eagerly parsing it to binary.
func NewNumberText(text string) *Value { return &Value{kind: KindNumber, numText: text} }

func NewInt(i int64) *Value { return &Value{kind: KindNumber, isBin: true, binInt: i} }

func NewFloat(f float64) *Value { return &Value{kind: KindNumber, isBin: true, isFloat: true, binFlt: f} }

func NewString(s string) *Value { return &Value{kind: KindString, str: s} }

func NewObject() *Value { return &Value{kind: KindObject} }

func NewArray() *Value { return &Value{kind: KindArray} }

// NewDeferredArray wraps a Deferred provider. The array materializes lazily;
// see Undefer.
func NewDeferredArray(d Deferred) *Value { return &Value{kind: KindArray, deferred: d} }

func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

func (v *Value) IsNull() bool { return v == nil || v.kind == KindNull }

// IsError reports whether this null carries an error payload.
func (v *Value) IsError() bool { return v != nil && v.kind == KindNull && v.errMsg != "" }

func (v *Value) ErrorMessage() string {
	if v == nil {
		return ""
	}
	return v.errMsg
}

func (v *Value) ErrorPos() *Pos {
	if v == nil {
		return nil
	}
	return v.errPos
}

func (v *Value) Error() string {
	if v == nil {
		return ""
	}
	return v.errMsg
}

// Undefer materializes a deferred array in place. It is a no-op on a
// non-deferred array or on already-materialized arrays.
func (v *Value) Undefer() {
	if v == nil || v.kind != KindArray || v.deferred == nil {
		return
	}
	d := v.deferred
	v.deferred = nil
	elt, ok := d.First()
	for ok {
		v.appendElem(elt)
		if d.IsLast() {
			break
		}
		elt, ok = d.Next()
	}
	d.Close()
}

func (v *Value) appendElem(elt *Value) {
	e := &Elem{Val: elt}
	if v.arrTail != nil {
		v.arrTail.Next = e
	} else {
		v.arrHead = e
	}
	v.arrTail = e
}

// Append adds an element to the end of an array, materializing it first if
// it is deferred.
func (v *Value) Append(elt *Value) {
	v.Undefer()
	v.appendElem(elt)
}

// Set appends-or-replaces a member of an object, preserving insertion order.
func (v *Value) Set(key string, val *Value) {
	for m := v.objHead; m != nil; m = m.Next {
		if m.Key == key {
			m.Val = val
			return
		}
	}
	m := &Member{Key: key, Val: val}
	if v.objTail != nil {
		v.objTail.Next = m
	} else {
		v.objHead = m
	}
	v.objTail = m
}

// Get returns the value of a named object member.
func (v *Value) Get(key string) (*Value, bool) {
	if v == nil || v.kind != KindObject {
		return nil, false
	}
	for m := v.objHead; m != nil; m = m.Next {
		if m.Key == key {
			return m.Val, true
		}
	}
	return nil, false
}

// Members iterates object members in insertion order.
func (v *Value) Members() []*Member {
	if v == nil || v.kind != KindObject {
		return nil
	}
	var out []*Member
	for m := v.objHead; m != nil; m = m.Next {
		out = append(out, m)
	}
	return out
}

// Elements returns array elements, materializing a deferred array first.
func (v *Value) Elements() []*Value {
	if v == nil || v.kind != KindArray {
		return nil
	}
	v.Undefer()
	var out []*Value
	for e := v.arrHead; e != nil; e = e.Next {
		out = append(out, e.Val)
	}
	return out
}

// SetIndex replaces the i-th array element in place, rewriting the linked
// list between predecessor and successor; the replaced element is dropped
// without touching its siblings, per spec.md §4.6 "Assignment to an array
// element in-place". Reports false if the index is out of range.
func (v *Value) SetIndex(i int, val *Value) bool {
	if v == nil || v.kind != KindArray {
		return false
	}
	v.Undefer()
	if i < 0 {
		i += v.Len()
	}
	if i < 0 {
		return false
	}
	var prev *Elem
	e := v.arrHead
	for n := 0; e != nil && n < i; n++ {
		prev = e
		e = e.Next
	}
	if e == nil {
		return false
	}
	next := &Elem{Val: val, Next: e.Next}
	if prev == nil {
		v.arrHead = next
	} else {
		prev.Next = next
	}
	if v.arrTail == e {
		v.arrTail = next
	}
	return true
}

// Index returns the nth array element (0-based; negative counts from the
// end, per the seed scenario `[1,2,3].slice(-2)`).
func (v *Value) Index(i int) (*Value, bool) {
	elts := v.Elements()
	if i < 0 {
		i += len(elts)
	}
	if i < 0 || i >= len(elts) {
		return nil, false
	}
	return elts[i], true
}

func (v *Value) Len() int {
	if v == nil {
		return 0
	}
	switch v.kind {
	case KindArray:
		return len(v.Elements())
	case KindObject:
		return len(v.Members())
	case KindString:
		return len([]rune(v.str))
	default:
		return 0
	}
}

// IsTable reports whether v is an array whose every element is an object,
// the informal "table" type used by SELECT's default-table resolution and
// by GROUP BY.
func (v *Value) IsTable() bool {
	if v == nil || v.kind != KindArray {
		return false
	}
	for _, e := range v.Elements() {
		if e.Kind() != KindObject {
			return false
		}
	}
	return true
}

// Bool returns truthiness: null and error-nulls are false, false is false,
// zero numbers are false, empty strings are false; everything else
// (including empty arrays/objects) is true, matching the spec's
// arithmetic/boolean coercion rules (§4.4).
func (v *Value) Bool() bool {
	if v == nil {
		return false
	}
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		f, _ := v.Float()
		return f != 0
	case KindString:
		return v.str != ""
	default:
		return true
	}
}

// Float returns the binary float64 representation, parsing decimal text
// lazily. The second return is false if v is not a number or the text does
// not parse.
func (v *Value) Float() (float64, bool) {
	if v == nil || v.kind != KindNumber {
		return 0, false
	}
	if v.isBin {
		if v.isFloat {
			return v.binFlt, true
		}
		return float64(v.binInt), true
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.numText), 64)
	return f, err == nil
}

// Int returns the binary int64 representation if the number is integral.
func (v *Value) Int() (int64, bool) {
	if v == nil || v.kind != KindNumber {
		return 0, false
	}
	if v.isBin && !v.isFloat {
		return v.binInt, true
	}
	f, ok := v.Float()
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// Decimal returns a decimal.Decimal for loss-free aggregate accumulation,
// falling back to the float representation for binary-float values.
func (v *Value) Decimal() (decimal.Decimal, bool) {
	if v == nil || v.kind != KindNumber {
		return decimal.Zero, false
	}
	if !v.isBin {
		d, err := decimal.NewFromString(strings.TrimSpace(v.numText))
		if err == nil {
			return d, true
		}
		return decimal.Zero, false
	}
	if v.isFloat {
		return decimal.NewFromFloat(v.binFlt), true
	}
	return decimal.NewFromInt(v.binInt), true
}

// Str returns the value's string contents (only meaningful for KindString).
func (v *Value) Str() string {
	if v == nil {
		return ""
	}
	return v.str
}

// ToString coerces any value to its display string, per the standard
// to-string rules used by string concatenation (§4.4 Arithmetic).
func (v *Value) ToString() string {
	if v == nil || v.kind == KindNull {
		return ""
	}
	switch v.kind {
	case KindString:
		return v.str
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return v.numberString()
	default:
		return v.JSON()
	}
}

func (v *Value) numberString() string {
	if !v.isBin {
		return v.numText
	}
	if v.isFloat {
		return strconv.FormatFloat(v.binFlt, 'g', -1, 64)
	}
	return strconv.FormatInt(v.binInt, 10)
}

// DeepCopy returns a value with no aliasing to v's internal linked
// structure, per spec.md §3's "deep copy" requirement.
func (v *Value) DeepCopy() *Value {
	if v == nil {
		return nil
	}
	cp := &Value{kind: v.kind, b: v.b, numText: v.numText, isBin: v.isBin,
		isFloat: v.isFloat, binInt: v.binInt, binFlt: v.binFlt, str: v.str,
		errMsg: v.errMsg, errPos: v.errPos}
	switch v.kind {
	case KindObject:
		for _, m := range v.Members() {
			cp.Set(m.Key, m.Val.DeepCopy())
		}
	case KindArray:
		for _, e := range v.Elements() {
			cp.Append(e.DeepCopy())
		}
	}
	return cp
}

// Equal implements the loose ("=="-style) structural comparison: numbers
// compare numerically, objects compare by key list and by member value
// equality regardless of order, arrays compare element-wise.
func (v *Value) Equal(o *Value) bool {
	if v.IsNull() && o.IsNull() {
		return true
	}
	if v.Kind() != o.Kind() {
		vf, vok := v.Float()
		of, ook := o.Float()
		if vok && ook {
			return vf == of
		}
		return false
	}
	switch v.Kind() {
	case KindBool:
		return v.b == o.b
	case KindNumber:
		vf, _ := v.Float()
		of, _ := o.Float()
		return vf == of
	case KindString:
		return v.str == o.str
	case KindArray:
		ve, oe := v.Elements(), o.Elements()
		if len(ve) != len(oe) {
			return false
		}
		for i := range ve {
			if !ve[i].Equal(oe[i]) {
				return false
			}
		}
		return true
	case KindObject:
		vm, om := v.Members(), o.Members()
		if len(vm) != len(om) {
			return false
		}
		for _, m := range vm {
			ov, ok := o.Get(m.Key)
			if !ok || !m.Val.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// StrictEqual implements "===": no numeric/string coercion, and kinds must
// match exactly.
func (v *Value) StrictEqual(o *Value) bool {
	if v.Kind() != o.Kind() {
		return false
	}
	return v.Equal(o)
}

// Compare orders two values for ORDER BY / relational operators. Numbers
// compare numerically, strings lexically; mixed kinds compare by kind
// ordinal, a stable (if arbitrary) total order.
func (v *Value) Compare(o *Value) int {
	if v.Kind() == KindNumber && o.Kind() == KindNumber {
		vf, _ := v.Float()
		of, _ := o.Float()
		switch {
		case vf < of:
			return -1
		case vf > of:
			return 1
		default:
			return 0
		}
	}
	if v.Kind() == KindString && o.Kind() == KindString {
		return strings.Compare(v.str, o.str)
	}
	if v.Kind() != o.Kind() {
		return int(v.Kind()) - int(o.Kind())
	}
	return strings.Compare(v.JSON(), o.JSON())
}

// JSON serializes v to a compact JSON string. This is the "configurable
// formatter" external interface of spec.md §6, narrowed to one formatter;
// pretty-printing is explicitly a non-goal (spec.md §1).
func (v *Value) JSON() string {
	var sb strings.Builder
	v.writeJSON(&sb)
	return sb.String()
}

func (v *Value) writeJSON(sb *strings.Builder) {
	if v == nil || v.kind == KindNull {
		sb.WriteString("null")
		return
	}
	switch v.kind {
	case KindBool:
		if v.b {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case KindNumber:
		sb.WriteString(v.numberString())
	case KindString:
		sb.WriteString(strconv.Quote(v.str))
	case KindArray:
		sb.WriteByte('[')
		for i, e := range v.Elements() {
			if i > 0 {
				sb.WriteByte(',')
			}
			e.writeJSON(sb)
		}
		sb.WriteByte(']')
	case KindObject:
		sb.WriteByte('{')
		for i, m := range v.Members() {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(m.Key))
			sb.WriteByte(':')
			m.Val.writeJSON(sb)
		}
		sb.WriteByte('}')
	}
}

// SortedKeys returns an object's member keys, sorted; used by structural-
// comparison call sites that want a canonical key order (not by the value
// model itself, which is insertion-ordered by default).
func (v *Value) SortedKeys() []string {
	var keys []string
	for _, m := range v.Members() {
		keys = append(keys, m.Key)
	}
	sort.Strings(keys)
	return keys
}
