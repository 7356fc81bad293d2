package ast

import (
	"strings"

	"github.com/kirkendall/jsoncalc/errs"
	"github.com/kirkendall/jsoncalc/token"
	"github.com/kirkendall/jsoncalc/value"
)

// Eval is the tree-walking interpreter described in spec.md §4.4: single-
// threaded, synchronous, every call returns a freshly owned value. agdata
// is nil unless the caller is inside an AG/#/## accumulator context.
func Eval(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	if node == nil {
		return value.NewNull(), nil
	}
	if scope.Interrupted() {
		return value.NewError(&node.Pos, "Interrupted"), errs.ErrInterrupted.New()
	}

	switch node.Op {
	case token.Literal:
		return node.Lit.DeepCopy(), nil

	case token.Name:
		return evalName(node, scope)

	case token.Dot:
		return evalDot(node, scope, agdata)

	case token.Subscript:
		return evalSubscript(node, scope, agdata)

	case token.Array:
		return evalArray(node, scope, agdata)

	case token.Object:
		return evalObject(node, scope, agdata)

	case token.FuncCall:
		return evalFuncCall(node, scope, agdata)

	case token.Aggregate:
		return Eval(node.Left, scope, agdata)

	case token.Each:
		return evalEach(node, scope)

	case token.Group:
		return evalGroup(node, scope)

	case token.Find:
		return evalFind(node, scope, agdata)

	case token.Negate:
		return evalNegate(node, scope, agdata)
	case token.Not:
		return evalNot(node, scope, agdata)
	case token.BitNot:
		return evalBitNot(node, scope, agdata)
	case token.IsNull, token.IsNotNull:
		return evalIsNull(node, scope, agdata)

	case token.And:
		return evalAnd(node, scope, agdata)
	case token.Or:
		return evalOr(node, scope, agdata)
	case token.Coalesce:
		return evalCoalesce(node, scope, agdata)
	case token.Question:
		return evalConditional(node, scope, agdata)

	case token.Add, token.Subtract, token.Multiply, token.Divide, token.Modulo,
		token.BitAnd, token.BitOr, token.BitXor, token.Shl, token.Shr:
		return evalArith(node, scope, agdata)

	case token.Lt, token.Le, token.Gt, token.Ge, token.Eq, token.Ne,
		token.EqStrict, token.NeStrict, token.ICEq, token.ICNe:
		return evalCompare(node, scope, agdata)

	case token.Like, token.NotLike:
		return evalLike(node, scope, agdata)

	case token.Between:
		return evalBetween(node, scope, agdata)

	case token.In, token.NotIn:
		return evalIn(node, scope, agdata)

	case token.Regex:
		// A regex literal evaluates to its pattern text, with an `i` flag
		// already folded in as `(?i)` by the compiled form.
		src := node.RegexSrc
		if node.Regex != nil {
			src = node.Regex.String()
		}
		return value.NewString(src), nil

	case token.Environ:
		return evalEnviron(node, scope)

	case token.Assign:
		return evalAssign(node, scope, agdata)
	case token.Append:
		return evalAppend(node, scope, agdata)
	case token.MaybeAssign:
		return evalMaybeAssign(node, scope, agdata)

	case token.Comma:
		// A bare comma chain evaluated as an expression yields its last
		// value (left-to-right, per spec.md §5 ordering rules).
		if _, err := Eval(node.Left, scope, agdata); err != nil {
			return nil, err
		}
		return Eval(node.Right, scope, agdata)

	default:
		return value.NewError(&node.Pos, "cannot evaluate opcode %s", node.Op), nil
	}
}

func evalName(node *Node, scope Scope) (*value.Value, error) {
	if node.IsDefaultTable {
		v, _, err := scope.DefaultTable()
		if err != nil {
			return value.NewError(&node.Pos, "%s", err.Error()), nil
		}
		return v, nil
	}
	switch node.Name {
	case "this":
		if v, ok := scope.This(); ok {
			return v.DeepCopy(), nil
		}
		return value.NewError(&node.Pos, "unknown variable %q", "this"), nil
	case "that":
		if v, ok := scope.That(); ok {
			return v.DeepCopy(), nil
		}
		return value.NewError(&node.Pos, "unknown variable %q", "that"), nil
	}
	if v, ok := scope.Lookup(node.Name); ok {
		return v.DeepCopy(), nil
	}
	return value.NewError(&node.Pos, "Unknown variable %s", node.Name), nil
}

func evalDot(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	left, err := Eval(node.Left, scope, agdata)
	if err != nil {
		return nil, err
	}
	if left.IsError() {
		return left, nil
	}
	switch left.Kind() {
	case value.KindObject:
		if v, ok := left.Get(node.Name); ok {
			return v.DeepCopy(), nil
		}
		return value.NewError(&node.Pos, "no member named %q", node.Name), nil
	case value.KindArray:
		out := value.NewArray()
		for _, elt := range left.Elements() {
			if elt.Kind() == value.KindObject {
				if v, ok := elt.Get(node.Name); ok {
					out.Append(v.DeepCopy())
					continue
				}
			}
			out.Append(value.NewNull())
		}
		return out, nil
	default:
		return value.NewError(&node.Pos, "%s is not an object", left.Kind()), nil
	}
}

func evalSubscript(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	left, err := Eval(node.Left, scope, agdata)
	if err != nil {
		return nil, err
	}
	if left.IsError() {
		return left, nil
	}

	// `[key:value]` form: scan an array-of-objects for the first member
	// whose `key` equals `value`, per spec.md §4.4 SUBSCRIPT.
	if node.Right.Op == token.Colon {
		keyVal, err := Eval(node.Right.Left, scope, agdata)
		if err != nil {
			return nil, err
		}
		target, err := Eval(node.Right.Right, scope, agdata)
		if err != nil {
			return nil, err
		}
		for _, elt := range left.Elements() {
			if v, ok := elt.Get(keyVal.ToString()); ok && v.Equal(target) {
				return elt.DeepCopy(), nil
			}
		}
		return value.NewNull(), nil
	}

	idx, err := Eval(node.Right, scope, agdata)
	if err != nil {
		return nil, err
	}
	if idx.IsError() {
		return idx, nil
	}

	switch left.Kind() {
	case value.KindArray:
		if idx.Kind() != value.KindNumber {
			return value.NewError(&node.Pos, "bad subscript key"), nil
		}
		i, _ := idx.Int()
		if v, ok := left.Index(int(i)); ok {
			return v.DeepCopy(), nil
		}
		return value.NewNull(), nil
	case value.KindObject:
		if v, ok := left.Get(idx.ToString()); ok {
			return v.DeepCopy(), nil
		}
		return value.NewError(&node.Pos, "no member named %q", idx.ToString()), nil
	default:
		return value.NewError(&node.Pos, "%s is not an object", left.Kind()), nil
	}
}

func evalArray(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	out := value.NewArray()
	for _, e := range node.Elems {
		v, err := Eval(e, scope, agdata)
		if err != nil {
			return nil, err
		}
		out.Append(v)
	}
	return out, nil
}

func evalObject(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	out := value.NewObject()
	for i, e := range node.Elems {
		v, err := Eval(e, scope, agdata)
		if err != nil {
			return nil, err
		}
		out.Set(node.ObjKeys[i], v)
	}
	return out, nil
}

func evalArgs(args []*Node, scope Scope, agdata []interface{}) ([]*value.Value, error) {
	out := make([]*value.Value, len(args))
	for i, a := range args {
		if a.IsStarArg {
			// The `*` placeholder (count(*) and friends) carries no value
			// to evaluate; a literal nil args[0] is the sentinel the
			// aggregate descriptors check for.
			out[i] = nil
			continue
		}
		v, err := Eval(a, scope, agdata)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func firstError(vals []*value.Value) (*value.Value, bool) {
	for _, v := range vals {
		if v.IsError() {
			return v, true
		}
	}
	return nil, false
}

func evalFuncCall(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	if node.Func == nil {
		return value.NewError(&node.Pos, "unknown function"), nil
	}
	argVals, err := evalArgs(node.Args, scope, agdata)
	if err != nil {
		return nil, err
	}
	if e, ok := firstError(argVals); ok {
		return e, nil
	}
	if node.Func.UserBody != nil {
		return scope.CallUser(node.Func, argVals)
	}
	var slotPtr *interface{}
	if node.IsAggCall && agdata != nil && node.AggSlot < len(agdata) {
		slotPtr = &agdata[node.AggSlot]
	}
	return node.Func.Fn(argVals, slotPtr)
}

// evalEach implements `##`, per spec.md §4.4 EACH.
func evalEach(node *Node, scope Scope) (*value.Value, error) {
	tableVal, err := Eval(node.Left, scope, nil)
	if err != nil {
		return nil, err
	}
	if tableVal.IsError() {
		return tableVal, nil
	}
	rows := tableVal.Elements()
	desc, body := aggDescOf(node.Right)

	if desc != nil {
		if scope.Interrupted() {
			return value.NewError(&node.Pos, "Interrupted"), errs.ErrInterrupted.New()
		}
		agdata := agdataFromDesc(desc, rows, scope)
		var thisVal *value.Value = value.NewNull()
		if len(rows) > 0 {
			thisVal = rows[len(rows)-1]
		}
		val, err := Eval(body, scope.PushThis(thisVal), agdata)
		if err != nil {
			return nil, err
		}
		out := value.NewArray()
		out.Append(val)
		return out, nil
	}

	out := value.NewArray()
	for _, row := range rows {
		if scope.Interrupted() {
			return value.NewError(&node.Pos, "Interrupted"), errs.ErrInterrupted.New()
		}
		v, err := Eval(node.Right, scope.PushThis(row), nil)
		if err != nil {
			return nil, err
		}
		out.Append(v)
	}
	return out, nil
}

// agdataFromDesc folds every row through each of desc's aggregate calls into
// a freshly allocated accumulator, used by evalGroup and by evalEach's
// whole-table implicit aggregate path.
func agdataFromDesc(desc *AggDescriptor, rows []*value.Value, scope Scope) []interface{} {
	agdata := desc.NewAccumulator()
	for _, row := range rows {
		rowScope := scope.PushThis(row)
		for _, call := range desc.Calls {
			argVals, err := evalArgs(call.Node.Args, rowScope, nil)
			if err != nil {
				continue
			}
			_ = call.Node.Func.AgFn(argVals, &agdata[call.Offset])
		}
	}
	return agdata
}

// evalGroup implements `#`, per spec.md §4.4 GROUP.
func evalGroup(node *Node, scope Scope) (*value.Value, error) {
	groupsVal, err := Eval(node.Left, scope, nil)
	if err != nil {
		return nil, err
	}
	if groupsVal.IsError() {
		return groupsVal, nil
	}
	desc, body := aggDescOf(node.Right)

	out := value.NewArray()
	for _, grp := range groupsVal.Elements() {
		if scope.Interrupted() {
			return value.NewError(&node.Pos, "Interrupted"), errs.ErrInterrupted.New()
		}
		var agdata []interface{}
		if desc != nil {
			agdata = agdataFromDesc(desc, grp.Elements(), scope)
		}
		val, err := Eval(body, scope.PushThis(grp), agdata)
		if err != nil {
			return nil, err
		}
		out.Append(val)
	}
	return out, nil
}

func aggDescOf(n *Node) (*AggDescriptor, *Node) {
	if n != nil && n.Op == token.Aggregate {
		return n.AggDesc, n.Left
	}
	return nil, n
}

// evalFind implements `@`, a bounded recursive structural search
// (SPEC_FULL.md §12, resolving the opcode named but unused in spec.md's
// body text).
func evalFind(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	haystack, err := Eval(node.Left, scope, agdata)
	if err != nil {
		return nil, err
	}
	needle, err := Eval(node.Right, scope, agdata)
	if err != nil {
		return nil, err
	}
	if found, ok := findValue(haystack, needle, 0); ok {
		return found, nil
	}
	return value.NewNull(), nil
}

func findValue(v, needle *value.Value, depth int) (*value.Value, bool) {
	if depth > 64 {
		return nil, false
	}
	if v.Equal(needle) {
		return v, true
	}
	switch v.Kind() {
	case value.KindObject:
		for _, m := range v.Members() {
			if found, ok := findValue(m.Val, needle, depth+1); ok {
				return found, true
			}
		}
	case value.KindArray:
		for _, e := range v.Elements() {
			if found, ok := findValue(e, needle, depth+1); ok {
				return found, true
			}
		}
	}
	return nil, false
}

func evalNegate(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	v, err := Eval(node.Left, scope, agdata)
	if err != nil {
		return nil, err
	}
	if v.IsError() {
		return v, nil
	}
	f, ok := v.Float()
	if !ok {
		return value.NewError(&node.Pos, "type error: %s", "cannot negate non-number"), nil
	}
	return value.NewFloat(-f), nil
}

func evalNot(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	v, err := Eval(node.Left, scope, agdata)
	if err != nil {
		return nil, err
	}
	if v.IsError() {
		return v, nil
	}
	return value.NewBool(!v.Bool()), nil
}

func evalBitNot(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	v, err := Eval(node.Left, scope, agdata)
	if err != nil {
		return nil, err
	}
	i, ok := v.Int()
	if !ok {
		return value.NewError(&node.Pos, "type error: %s", "cannot bitwise-not non-integer"), nil
	}
	return value.NewInt(^i), nil
}

func evalIsNull(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	v, err := Eval(node.Left, scope, agdata)
	if err != nil {
		return nil, err
	}
	isNull := v.IsNull() && !v.IsError()
	if node.Op == token.IsNotNull {
		return value.NewBool(!isNull), nil
	}
	return value.NewBool(isNull), nil
}

// evalAnd/evalOr implement the short-circuit property required by spec.md
// §8 property 3: the right operand must not be evaluated when the left
// operand already determines the result.
func evalAnd(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	l, err := Eval(node.Left, scope, agdata)
	if err != nil {
		return nil, err
	}
	if l.IsError() || !l.Bool() {
		return l, nil
	}
	return Eval(node.Right, scope, agdata)
}

func evalOr(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	l, err := Eval(node.Left, scope, agdata)
	if err != nil {
		return nil, err
	}
	if l.IsError() {
		return l, nil
	}
	if l.Bool() {
		return l, nil
	}
	return Eval(node.Right, scope, agdata)
}

func evalCoalesce(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	l, err := Eval(node.Left, scope, agdata)
	if err != nil {
		return nil, err
	}
	if !l.IsNull() {
		return l, nil
	}
	return Eval(node.Right, scope, agdata)
}

// evalConditional implements `?:`, right-associative and short-circuit:
// only the selected branch is evaluated.
func evalConditional(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	cond, err := Eval(node.Left, scope, agdata)
	if err != nil {
		return nil, err
	}
	if cond.IsError() {
		return cond, nil
	}
	branch := node.Right
	if branch.Op != token.Colon {
		return value.NewError(&node.Pos, "misuse of ':'"), nil
	}
	if cond.Bool() {
		return Eval(branch.Left, scope, agdata)
	}
	return Eval(branch.Right, scope, agdata)
}

func evalArith(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	l, err := Eval(node.Left, scope, agdata)
	if err != nil {
		return nil, err
	}
	r, err := Eval(node.Right, scope, agdata)
	if err != nil {
		return nil, err
	}
	if e, ok := firstError([]*value.Value{l, r}); ok {
		return e, nil
	}

	if node.Op == token.Add && (l.Kind() == value.KindString || r.Kind() == value.KindString) {
		return value.NewString(l.ToString() + r.ToString()), nil
	}

	switch node.Op {
	case token.BitAnd, token.BitOr, token.BitXor, token.Shl, token.Shr:
		li, lok := l.Int()
		ri, rok := r.Int()
		if !lok || !rok {
			return value.NewError(&node.Pos, "type error: %s", "bitwise operator requires integers"), nil
		}
		switch node.Op {
		case token.BitAnd:
			return value.NewInt(li & ri), nil
		case token.BitOr:
			return value.NewInt(li | ri), nil
		case token.BitXor:
			return value.NewInt(li ^ ri), nil
		case token.Shl:
			return value.NewInt(li << uint(ri)), nil
		case token.Shr:
			return value.NewInt(li >> uint(ri)), nil
		}
	}

	lf, lok := l.Float()
	rf, rok := r.Float()
	if !lok || !rok {
		return value.NewError(&node.Pos, "type error: %s", "arithmetic requires numbers"), nil
	}

	// Numeric-overflow rule (spec.md §9 Open Question, resolved in
	// SPEC_FULL.md §12): prefer an int64 fast path when both operands are
	// integral and the exact result still fits in int64; widen to
	// float64 rather than silently truncating on overflow.
	li, lIsInt := l.Int()
	ri, rIsInt := r.Int()
	if lIsInt && rIsInt && node.Op != token.Divide {
		if result, ok := tryIntArith(node.Op, li, ri); ok {
			return value.NewInt(result), nil
		}
	}

	switch node.Op {
	case token.Add:
		return value.NewFloat(lf + rf), nil
	case token.Subtract:
		return value.NewFloat(lf - rf), nil
	case token.Multiply:
		return value.NewFloat(lf * rf), nil
	case token.Divide:
		if rf == 0 {
			return value.NewError(&node.Pos, "type error: %s", "division by zero"), nil
		}
		return value.NewFloat(lf / rf), nil
	case token.Modulo:
		if rf == 0 {
			return value.NewError(&node.Pos, "type error: %s", "modulo by zero"), nil
		}
		li, ri := int64(lf), int64(rf)
		return value.NewInt(li % ri), nil
	}
	return value.NewError(&node.Pos, "type error: %s", "unsupported arithmetic operator"), nil
}

func tryIntArith(op token.Opcode, a, b int64) (int64, bool) {
	switch op {
	case token.Add:
		r := a + b
		if (r-b != a) || ((a > 0 && b > 0 && r < 0) || (a < 0 && b < 0 && r > 0)) {
			return 0, false
		}
		return r, true
	case token.Subtract:
		r := a - b
		if r+b != a {
			return 0, false
		}
		return r, true
	case token.Multiply:
		if a == 0 || b == 0 {
			return 0, true
		}
		r := a * b
		if r/b != a {
			return 0, false
		}
		return r, true
	case token.Modulo:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	}
	return 0, false
}

func evalCompare(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	l, err := Eval(node.Left, scope, agdata)
	if err != nil {
		return nil, err
	}
	r, err := Eval(node.Right, scope, agdata)
	if err != nil {
		return nil, err
	}
	if e, ok := firstError([]*value.Value{l, r}); ok {
		return e, nil
	}
	switch node.Op {
	case token.EqStrict:
		return value.NewBool(l.StrictEqual(r)), nil
	case token.NeStrict:
		return value.NewBool(!l.StrictEqual(r)), nil
	case token.Eq:
		return value.NewBool(l.Equal(r)), nil
	case token.Ne:
		return value.NewBool(!l.Equal(r)), nil
	case token.ICEq, token.ICNe:
		var eq bool
		if l.Kind() == value.KindString && r.Kind() == value.KindString {
			eq = strings.EqualFold(l.Str(), r.Str())
		} else {
			eq = l.Equal(r)
		}
		if node.Op == token.ICNe {
			eq = !eq
		}
		return value.NewBool(eq), nil
	case token.Lt:
		return value.NewBool(l.Compare(r) < 0), nil
	case token.Le:
		return value.NewBool(l.Compare(r) <= 0), nil
	case token.Gt:
		return value.NewBool(l.Compare(r) > 0), nil
	case token.Ge:
		return value.NewBool(l.Compare(r) >= 0), nil
	}
	return value.NewError(&node.Pos, "type error: %s", "bad comparison"), nil
}

// evalLike implements SQL-style LIKE with `%`/`_` wildcards.
func evalLike(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	l, err := Eval(node.Left, scope, agdata)
	if err != nil {
		return nil, err
	}
	r, err := Eval(node.Right, scope, agdata)
	if err != nil {
		return nil, err
	}
	matched := likeMatch(l.ToString(), r.ToString())
	if node.Op == token.NotLike {
		matched = !matched
	}
	return value.NewBool(matched), nil
}

func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	switch p[0] {
	case '%':
		if likeMatchRunes(s, p[1:]) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if likeMatchRunes(s[i+1:], p[1:]) {
				return true
			}
		}
		return false
	case '_':
		if len(s) == 0 {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	default:
		if len(s) == 0 || s[0] != p[0] {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	}
}

// evalBetween implements `x BETWEEN lo AND hi`.
func evalBetween(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	x, err := Eval(node.Left, scope, agdata)
	if err != nil {
		return nil, err
	}
	if len(node.Elems) != 2 {
		return value.NewError(&node.Pos, "bad BETWEEN"), nil
	}
	lo, err := Eval(node.Elems[0], scope, agdata)
	if err != nil {
		return nil, err
	}
	hi, err := Eval(node.Elems[1], scope, agdata)
	if err != nil {
		return nil, err
	}
	return value.NewBool(x.Compare(lo) >= 0 && x.Compare(hi) <= 0), nil
}

// evalIn resolves spec.md §9's Open Question: IN/NOT IN against a
// non-array right-hand side is a TypeError.
func evalIn(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	l, err := Eval(node.Left, scope, agdata)
	if err != nil {
		return nil, err
	}
	r, err := Eval(node.Right, scope, agdata)
	if err != nil {
		return nil, err
	}
	if r.Kind() != value.KindArray {
		return value.NewError(&node.Pos, "type error: %s", "right-hand side of IN must be an array"), nil
	}
	found := false
	for _, e := range r.Elements() {
		if l.Equal(e) {
			found = true
			break
		}
	}
	if node.Op == token.NotIn {
		found = !found
	}
	return value.NewBool(found), nil
}

func evalEnviron(node *Node, scope Scope) (*value.Value, error) {
	if v, ok := scope.Environ(node.Name); ok {
		return v, nil
	}
	return value.NewNull(), nil
}

func evalAssign(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	val, err := Eval(node.Right, scope, agdata)
	if err != nil {
		return nil, err
	}
	return scope.Assign(node.Left, val)
}

func evalAppend(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	val, err := Eval(node.Right, scope, agdata)
	if err != nil {
		return nil, err
	}
	return scope.AppendAssign(node.Left, val)
}

func evalMaybeAssign(node *Node, scope Scope, agdata []interface{}) (*value.Value, error) {
	val, err := Eval(node.Right, scope, agdata)
	if err != nil {
		return nil, err
	}
	return scope.MaybeAssign(node.Left, val)
}
