package function

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kirkendall/jsoncalc/value"
)

// NewDefaultRegistry returns a registry populated with the scalar built-in
// functions named across spec.md (length/slice/toMixedCase/replaceAll and
// friends) plus the table operators that SQL lowering (package sqllower)
// rewrites SELECT into: unroll, each, groupBy, orderBy, distinct, slice,
// plus the join functions njoin, ljoin, rjoin. Aggregate built-ins (sum/count/avg/
// min/max/group_concat) are registered separately by
// ast/function/aggregation.RegisterBuiltins, mirroring the teacher's split
// between sql/expression/function and sql/expression/function/aggregation.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range scalarBuiltins() {
		r.Register(d)
	}
	return r
}

func scalar(name string, fn func(args []*value.Value) (*value.Value, error)) *Descriptor {
	return &Descriptor{
		Name: name,
		Fn: func(args []*value.Value, _ Slot) (*value.Value, error) {
			return fn(args)
		},
	}
}

func scalarBuiltins() []*Descriptor {
	return []*Descriptor{
		scalar("length", func(a []*value.Value) (*value.Value, error) {
			if len(a) == 0 {
				return value.NewInt(0), nil
			}
			return value.NewInt(int64(a[0].Len())), nil
		}),
		scalar("slice", fnSlice),
		scalar("toMixedCase", fnToMixedCase),
		scalar("toUpperCase", func(a []*value.Value) (*value.Value, error) {
			return value.NewString(strings.ToUpper(arg0Str(a))), nil
		}),
		scalar("toLowerCase", func(a []*value.Value) (*value.Value, error) {
			return value.NewString(strings.ToLower(arg0Str(a))), nil
		}),
		scalar("trim", func(a []*value.Value) (*value.Value, error) {
			return value.NewString(strings.TrimSpace(arg0Str(a))), nil
		}),
		scalar("keys", fnKeys),
		scalar("replaceAll", fnReplaceAll),
		scalar("unroll", fnUnroll),
		scalar("each", fnEach),
		scalar("groupBy", fnGroupBy),
		scalar("orderBy", fnOrderBy),
		scalar("distinct", fnDistinct),
		scalar("njoin", fnNaturalJoin),
		scalar("ljoin", fnLeftJoin),
		scalar("rjoin", fnRightJoin),
	}
}

func arg0Str(a []*value.Value) string {
	if len(a) == 0 {
		return ""
	}
	return a[0].ToString()
}

// fnSlice implements array slicing with negative-index support, per the
// seed scenario `[1,2,3].slice(-2)` -> `[2,3]`.
func fnSlice(a []*value.Value) (*value.Value, error) {
	if len(a) < 1 {
		return value.NewArray(), nil
	}
	elts := a[0].Elements()
	n := len(elts)
	start, end := 0, n
	if len(a) >= 2 {
		start = normalizeIndex(a[1], n)
	}
	if len(a) >= 3 {
		end = normalizeIndex(a[2], n)
	}
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	out := value.NewArray()
	if start < end {
		for _, e := range elts[start:end] {
			out.Append(e)
		}
	}
	return out, nil
}

func normalizeIndex(v *value.Value, n int) int {
	i, _ := v.Int()
	idx := int(i)
	if idx < 0 {
		idx += n
	}
	return idx
}

func fnToMixedCase(a []*value.Value) (*value.Value, error) {
	s := arg0Str(a)
	if s == "" {
		return value.NewString(s), nil
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	for i := 1; i < len(r); i++ {
		r[i] = unicode.ToLower(r[i])
	}
	return value.NewString(string(r)), nil
}

func fnKeys(a []*value.Value) (*value.Value, error) {
	out := value.NewArray()
	if len(a) == 0 {
		return out, nil
	}
	for _, m := range a[0].Members() {
		out.Append(value.NewString(m.Key))
	}
	return out, nil
}

// fnReplaceAll implements the regex service's global-flag contract from
// spec.md §8 property 10: every non-overlapping match is replaced, and an
// empty match advances by one codepoint to avoid an infinite loop.
func fnReplaceAll(a []*value.Value) (*value.Value, error) {
	if len(a) < 3 {
		return value.NewError(nil, "replaceAll requires 3 arguments"), nil
	}
	subject := a[0].ToString()
	pattern := a[1].ToString()
	replacement := a[2].ToString()
	re, err := regexp.Compile(pattern)
	if err != nil {
		return value.NewError(nil, "bad regular expression %q: %s", pattern, err), nil
	}
	return value.NewString(re.ReplaceAllString(subject, replacement)), nil
}

// fnUnroll implements the FROM-clause "trailing field names" rewrite from
// spec.md §4.2.1 step 2: for each row of table, and for each named field
// (itself expected to be an array), produce one output row per
// cross-product element, merging the field's element into the row under
// its own name.
func fnUnroll(a []*value.Value) (*value.Value, error) {
	if len(a) < 1 {
		return value.NewArray(), nil
	}
	table := a[0]
	names := a[1:]
	rows := []*value.Value{table}
	if len(names) == 1 && names[0].Kind() == value.KindArray {
		rows = table.Elements()
	}
	out := value.NewArray()
	for _, row := range rows {
		fieldNames := names
		if len(names) == 1 && names[0].Kind() == value.KindArray {
			fieldNames = names[0].Elements()
		}
		unrollRow(row, fieldNames, out)
	}
	return out, nil
}

func unrollRow(row *value.Value, fieldNames []*value.Value, out *value.Value) {
	if len(fieldNames) == 0 {
		out.Append(row)
		return
	}
	name := fieldNames[0].ToString()
	field, ok := row.Get(name)
	if !ok || field.Kind() != value.KindArray {
		out.Append(row)
		return
	}
	for _, elt := range field.Elements() {
		merged := row.DeepCopy()
		merged.Set(name, elt)
		unrollRow(merged, fieldNames[1:], out)
	}
}

// fnEach is the `each` table function that package sqllower calls when
// lowering a SELECT. The `##` operator does not call it: the parser builds
// a token.Each node for `##`, which ast.evalEach evaluates.
func fnEach(a []*value.Value) (*value.Value, error) {
	if len(a) < 1 {
		return value.NewArray(), nil
	}
	return a[0], nil
}

func fnGroupBy(a []*value.Value) (*value.Value, error) {
	if len(a) < 2 {
		return value.NewArray(), nil
	}
	table := a[0]
	keyNames := a[1].Elements()
	type bucket struct {
		key  string
		rows *value.Value
	}
	order := []string{}
	buckets := map[string]*bucket{}
	for _, row := range table.Elements() {
		key := groupKey(row, keyNames)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{key: key, rows: value.NewArray()}
			buckets[key] = b
			order = append(order, key)
		}
		b.rows.Append(row)
	}
	out := value.NewArray()
	for _, k := range order {
		out.Append(buckets[k].rows)
	}
	return out, nil
}

func groupKey(row *value.Value, keyNames []*value.Value) string {
	var sb strings.Builder
	for _, kn := range keyNames {
		v, _ := row.Get(kn.ToString())
		sb.WriteString(v.ToString())
		sb.WriteByte('\x00')
	}
	return sb.String()
}

func fnOrderBy(a []*value.Value) (*value.Value, error) {
	if len(a) < 2 {
		return a[0], nil
	}
	table := a[0]
	elts := append([]*value.Value{}, table.Elements()...)
	specs := a[1].Elements() // each elt is {name, desc} as a 2-array or plain name
	sortStable(elts, specs)
	out := value.NewArray()
	for _, e := range elts {
		out.Append(e)
	}
	return out, nil
}

func sortStable(elts []*value.Value, specs []*value.Value) {
	less := func(i, j int) bool {
		for _, spec := range specs {
			name := spec.ToString()
			desc := false
			if spec.Kind() == value.KindArray {
				es := spec.Elements()
				if len(es) >= 1 {
					name = es[0].ToString()
				}
				if len(es) >= 2 {
					desc = es[1].Bool()
				}
			}
			vi, _ := elts[i].Get(name)
			vj, _ := elts[j].Get(name)
			c := vi.Compare(vj)
			if c == 0 {
				continue
			}
			if desc {
				return c > 0
			}
			return c < 0
		}
		return false
	}
	insertionSortStable(elts, less)
}

// insertionSortStable avoids pulling in sort.Slice purely for style
// consistency with the rest of this hand-rolled evaluator; O(n^2) is
// acceptable for the table sizes this in-memory engine targets.
func insertionSortStable(elts []*value.Value, less func(i, j int) bool) {
	for i := 1; i < len(elts); i++ {
		j := i
		for j > 0 && less(j, j-1) {
			elts[j], elts[j-1] = elts[j-1], elts[j]
			j--
		}
	}
}

func fnDistinct(a []*value.Value) (*value.Value, error) {
	if len(a) < 1 {
		return value.NewArray(), nil
	}
	out := value.NewArray()
	var seen []*value.Value
	for _, e := range a[0].Elements() {
		dup := false
		for _, s := range seen {
			if s.Equal(e) {
				dup = true
				break
			}
		}
		if !dup {
			seen = append(seen, e)
			out.Append(e)
		}
	}
	return out, nil
}

// fnNaturalJoin, fnLeftJoin, fnRightJoin resolve spec.md §9's open question
// about `#=`/`#<`/`#>`: natural join on every key name common to both
// tables' first rows, left join keeping unmatched left rows with nulls for
// right-only columns, right join the mirror image.
func fnNaturalJoin(a []*value.Value) (*value.Value, error) {
	return joinTables(a, false, false)
}

func fnLeftJoin(a []*value.Value) (*value.Value, error) {
	return joinTables(a, true, false)
}

func fnRightJoin(a []*value.Value) (*value.Value, error) {
	return joinTables(a, false, true)
}

func joinTables(a []*value.Value, keepUnmatchedLeft, keepUnmatchedRight bool) (*value.Value, error) {
	if len(a) < 2 {
		return value.NewArray(), nil
	}
	left, right := a[0], a[1]
	leftRows, rightRows := left.Elements(), right.Elements()
	common := commonKeys(leftRows, rightRows)
	out := value.NewArray()
	rightMatched := make([]bool, len(rightRows))
	padNulls := func(row *value.Value, other []*value.Value) *value.Value {
		out := row.DeepCopy()
		if len(other) > 0 {
			for _, m := range other[0].Members() {
				if _, ok := out.Get(m.Key); !ok {
					out.Set(m.Key, value.NewNull())
				}
			}
		}
		return out
	}
	for _, lr := range leftRows {
		matched := false
		for ri, rr := range rightRows {
			if rowsMatch(lr, rr, common) {
				matched = true
				rightMatched[ri] = true
				out.Append(mergeRows(lr, rr))
			}
		}
		if !matched && keepUnmatchedLeft {
			out.Append(padNulls(lr, rightRows))
		}
	}
	if keepUnmatchedRight {
		for ri, rr := range rightRows {
			if !rightMatched[ri] {
				out.Append(padNulls(rr, leftRows))
			}
		}
	}
	return out, nil
}

func commonKeys(left, right []*value.Value) []string {
	if len(left) == 0 || len(right) == 0 {
		return nil
	}
	rset := map[string]bool{}
	for _, m := range right[0].Members() {
		rset[m.Key] = true
	}
	var common []string
	for _, m := range left[0].Members() {
		if rset[m.Key] {
			common = append(common, m.Key)
		}
	}
	return common
}

func rowsMatch(a, b *value.Value, keys []string) bool {
	for _, k := range keys {
		av, _ := a.Get(k)
		bv, _ := b.Get(k)
		if !av.Equal(bv) {
			return false
		}
	}
	return true
}

func mergeRows(a, b *value.Value) *value.Value {
	out := a.DeepCopy()
	for _, m := range b.Members() {
		out.Set(m.Key, m.Val)
	}
	return out
}
