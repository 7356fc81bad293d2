// Package aggregation implements the built-in aggregate functions (sum,
// count, avg, min, max, group_concat), grounded on the teacher's
// NewBuffer/Update/Eval accumulator protocol
// (sql/expression/function/aggregation/{sum,count,avg,min,max,group_concat}_test.go),
// adapted to spec.md §4.3/§4.5's caller-allocated accumulator-slot
// convention: the buffer a call accumulates into is a function.Slot (a
// pointer to one interface{} cell of the enclosing AG node's accumulator
// region) rather than a per-aggregate Go struct returned by its own
// NewBuffer.
//
// Every descriptor here follows the same two-path shape required by
// spec.md §4.5's calling convention: if the evaluator hands it a non-nil,
// already-folded slot, Fn finalizes that slot (the GROUP/EACH case); if slot
// is nil, Fn folds args[0]'s elements itself before finalizing (the direct,
// ungrouped case, e.g. `sum([1,2,3,4])`).
package aggregation

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kirkendall/jsoncalc/ast/function"
	"github.com/kirkendall/jsoncalc/value"
)

// RegisterBuiltins adds sum/count/avg/min/max/group_concat to r.
func RegisterBuiltins(r *function.Registry) {
	r.Register(sumDescriptor())
	r.Register(countDescriptor())
	r.Register(avgDescriptor())
	r.Register(minDescriptor())
	r.Register(maxDescriptor())
	r.Register(groupConcatDescriptor())
}

// --- sum ---

// sumState accumulates in decimal rather than float64 so that a column of
// decimal-text numbers (spec.md §3's lazy decimal-text representation) sums
// without the binary-float drift that plain float64 addition would
// introduce, mirroring the teacher's sum_test.go decimal-result assertions.
type sumState struct {
	total decimal.Decimal
}

func sumDescriptor() *function.Descriptor {
	return &function.Descriptor{
		Name:        "sum",
		IsAggregate: true,
		NewSlot:     func() interface{} { return &sumState{} },
		AgFn: func(args []*value.Value, slot function.Slot) error {
			if *slot == nil {
				*slot = &sumState{}
			}
			st := (*slot).(*sumState)
			if len(args) == 0 || args[0].IsNull() {
				return nil
			}
			if d, ok := args[0].Decimal(); ok {
				st.total = st.total.Add(d)
			}
			return nil
		},
		Fn: func(args []*value.Value, slot function.Slot) (*value.Value, error) {
			if slot != nil && *slot != nil {
				return value.NewNumberText((*slot).(*sumState).total.String()), nil
			}
			// Direct, ungrouped call: sum([1,2,3,4]) folds its own array
			// argument, per spec.md §8 scenario 7.
			var total decimal.Decimal
			if len(args) > 0 {
				for _, elt := range args[0].Elements() {
					if d, ok := elt.Decimal(); ok {
						total = total.Add(d)
					}
				}
			}
			return value.NewNumberText(total.String()), nil
		},
	}
}

// --- count ---

type countState struct{ n int64 }

func countDescriptor() *function.Descriptor {
	return &function.Descriptor{
		Name:        "count",
		IsAggregate: true,
		NewSlot:     func() interface{} { return &countState{} },
		AgFn: func(args []*value.Value, slot function.Slot) error {
			if *slot == nil {
				*slot = &countState{}
			}
			st := (*slot).(*countState)
			// COUNT(*) is represented by a nil args[0] (the star
			// placeholder carries no per-row value); any non-null
			// argument counts, matching the teacher's TestCountEval1
			// and TestCountEvalStar.
			if len(args) == 0 || args[0] == nil || !args[0].IsNull() {
				st.n++
			}
			return nil
		},
		Fn: func(args []*value.Value, slot function.Slot) (*value.Value, error) {
			if slot != nil && *slot != nil {
				return value.NewInt((*slot).(*countState).n), nil
			}
			if len(args) > 0 {
				return value.NewInt(int64(len(args[0].Elements()))), nil
			}
			return value.NewInt(0), nil
		},
	}
}

// --- avg ---

// avgState, like sumState, accumulates in decimal to avoid float drift
// across many rows; the division at finalization time is also decimal,
// rounded to decimalAvgScale places.
type avgState struct {
	total decimal.Decimal
	n     int64
}

func avgDescriptor() *function.Descriptor {
	return &function.Descriptor{
		Name:        "avg",
		IsAggregate: true,
		NewSlot:     func() interface{} { return &avgState{} },
		AgFn: func(args []*value.Value, slot function.Slot) error {
			if *slot == nil {
				*slot = &avgState{}
			}
			st := (*slot).(*avgState)
			if len(args) == 0 || args[0].IsNull() {
				return nil
			}
			if d, ok := args[0].Decimal(); ok {
				st.total = st.total.Add(d)
				st.n++
			}
			return nil
		},
		Fn: func(args []*value.Value, slot function.Slot) (*value.Value, error) {
			if slot != nil && *slot != nil {
				st := (*slot).(*avgState)
				if st.n == 0 {
					return value.NewNull(), nil
				}
				avg := st.total.DivRound(decimal.NewFromInt(st.n), decimalAvgScale)
				return value.NewNumberText(avg.String()), nil
			}
			// avg([]) -> null, per spec.md §8 scenario 7.
			if len(args) == 0 {
				return value.NewNull(), nil
			}
			var total decimal.Decimal
			var n int64
			for _, e := range args[0].Elements() {
				if d, ok := e.Decimal(); ok {
					total = total.Add(d)
					n++
				}
			}
			if n == 0 {
				return value.NewNull(), nil
			}
			avg := total.DivRound(decimal.NewFromInt(n), decimalAvgScale)
			return value.NewNumberText(avg.String()), nil
		},
	}
}

// decimalAvgScale bounds AVG's division to a fixed number of decimal places
// so that e.g. 1/3 terminates instead of producing an unbounded repeating
// fraction.
const decimalAvgScale = 16

// --- min / max ---

func minDescriptor() *function.Descriptor { return minMaxDescriptor("min", -1) }
func maxDescriptor() *function.Descriptor { return minMaxDescriptor("max", 1) }

// minMaxDescriptor builds both min and max from the same shape: want is -1
// for min (keep the smaller), +1 for max (keep the larger).
func minMaxDescriptor(name string, want int) *function.Descriptor {
	return &function.Descriptor{
		Name:        name,
		IsAggregate: true,
		NewSlot:     func() interface{} { return (*value.Value)(nil) },
		AgFn: func(args []*value.Value, slot function.Slot) error {
			if len(args) == 0 || args[0].IsNull() {
				return nil
			}
			cur, _ := (*slot).(*value.Value)
			if cur == nil || args[0].Compare(cur) == want {
				*slot = args[0]
			}
			return nil
		},
		Fn: func(args []*value.Value, slot function.Slot) (*value.Value, error) {
			if slot != nil && *slot != nil {
				if v, ok := (*slot).(*value.Value); ok && v != nil {
					return v, nil
				}
			}
			if len(args) == 0 {
				return value.NewNull(), nil
			}
			var best *value.Value
			for _, e := range args[0].Elements() {
				if e.IsNull() {
					continue
				}
				if best == nil || e.Compare(best) == want {
					best = e
				}
			}
			if best == nil {
				return value.NewNull(), nil
			}
			return best, nil
		},
	}
}

// --- group_concat ---

func groupConcatDescriptor() *function.Descriptor {
	return &function.Descriptor{
		Name:        "group_concat",
		IsAggregate: true,
		NewSlot:     func() interface{} { return &[]string{} },
		AgFn: func(args []*value.Value, slot function.Slot) error {
			if *slot == nil {
				*slot = &[]string{}
			}
			if len(args) > 0 && !args[0].IsNull() {
				parts := (*slot).(*[]string)
				*parts = append(*parts, args[0].ToString())
			}
			return nil
		},
		Fn: func(args []*value.Value, slot function.Slot) (*value.Value, error) {
			if slot != nil && *slot != nil {
				parts := (*slot).(*[]string)
				return value.NewString(strings.Join(*parts, ",")), nil
			}
			var parts []string
			if len(args) > 0 {
				for _, e := range args[0].Elements() {
					parts = append(parts, e.ToString())
				}
			}
			return value.NewString(strings.Join(parts, ",")), nil
		},
	}
}
