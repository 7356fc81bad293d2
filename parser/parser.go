// Package parser implements the shift-reduce, operator-precedence parser
// described in spec.md §4.2: single-threaded, synchronous, driven token by
// token against a precedence ladder, with the lexer consulting the
// parser's own stack for context-sensitive disambiguation.
package parser

import (
	"regexp"
	"strings"

	"github.com/kirkendall/jsoncalc/ast"
	"github.com/kirkendall/jsoncalc/ast/function"
	"github.com/kirkendall/jsoncalc/errs"
	"github.com/kirkendall/jsoncalc/lexer"
	"github.com/kirkendall/jsoncalc/sqllower"
	"github.com/kirkendall/jsoncalc/token"
)

// Parser holds one parse's worth of state: a lexer, the function registry
// used to resolve calls at reduction time (spec.md §4.2 "unknown function
// names are rejected here, not at evaluation time"), and the small operator
// stack the lexer consults through the lexer.StackContext interface.
type Parser struct {
	lex  *lexer.Lexer
	src  string
	reg  *function.Registry
	cur  token.Token
	peek token.Token
	hasPeek bool

	opstack     []token.Opcode
	selectDepth int
	leftShape   *ast.Node
	noAssign    bool
}

// New builds a parser over src, resolving function calls against reg.
func New(src, file string, reg *function.Registry) *Parser {
	p := &Parser{lex: lexer.New(src, file), src: src, reg: reg}
	return p
}

// --- lexer.StackContext ---

func (p *Parser) TopOpcode() (token.Opcode, bool) {
	if len(p.opstack) == 0 {
		return token.Invalid, false
	}
	return p.opstack[len(p.opstack)-1], true
}

func (p *Parser) InSelect() bool { return p.selectDepth > 0 }

func (p *Parser) AssignEnabled() bool { return !p.noAssign && p.selectDepth == 0 }

func (p *Parser) TopIsLValue() bool { return isLValueShape(p.leftShape) }

// --- embedding API for the command layer (package command) ---
//
// Parse() requires the parser to consume its entire input, which suits a
// standalone expression but not an expression embedded inside a statement
// (e.g. the condition of an `if(...)`). Cur/Advance/ParseFull/ParseNoComma
// let the command parser drive the same shift-reduce core token by token,
// stopping wherever the statement grammar -- not end-of-input -- says the
// expression ends.

// Cur returns the token the parser is currently positioned on; valid only
// after at least one Advance call.
func (p *Parser) Cur() token.Token { return p.cur }

// Advance consumes the current token and loads the next one. The command
// parser calls this once to prime a freshly constructed Parser before its
// first ParseFull/ParseNoComma call.
func (p *Parser) Advance() error { return p.advance() }

// ParseFull parses one expression at the lowest precedence, including a
// top-level comma chain and assignment; use for conditions, return values,
// and other single-expression contexts delimited by surrounding syntax
// (e.g. a matching close-paren) rather than by a comma.
func (p *Parser) ParseFull() (*ast.Node, error) { return p.parseExpr(lowestPrec) }

// ParseNoComma parses one expression, stopping before a top-level comma;
// use for comma-separated contexts the command grammar itself delimits
// (var/const initializer lists, print/throw argument lists, switch case
// values, parameter defaults).
func (p *Parser) ParseNoComma() (*ast.Node, error) { return p.parseExpr(precComma + 1) }

func (p *Parser) push(op token.Opcode)             { p.opstack = append(p.opstack, op) }
func (p *Parser) pop()                             { p.opstack = p.opstack[:len(p.opstack)-1] }

func (p *Parser) advance() error {
	if p.hasPeek {
		p.cur = p.peek
		p.hasPeek = false
		return nil
	}
	t, err := p.lex.Next(p)
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

// Parse parses the whole of src as one expression and drains the input,
// per spec.md §4.2 "a final reduce ... drains the stack. Success: exactly
// one node remains".
func (p *Parser) Parse() (*ast.Node, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	node, err := p.parseExpr(lowestPrec)
	if err != nil {
		return nil, err
	}
	if p.cur.Op != token.Invalid {
		return nil, errs.ErrTrailingGarbage.New(p.cur.Text)
	}
	return node, nil
}

// --- precedence table ---

const (
	lowestPrec = iota
	precAssign
	precComma
	precConditional
	precTableOp // # ## #= #< #> @
	precCoalesce
	precOr
	precAnd
	precRelational
	precEquality
	precIn
	precBitOr
	precBitXor
	precBitAnd
	precShift
	precAdditive
	precMultiplicative
)

type opInfo struct {
	prec       int
	rightAssoc bool
}

var binOps = map[token.Opcode]opInfo{
	token.Assign:      {precAssign, true},
	token.Append:      {precAssign, true},
	token.MaybeAssign: {precAssign, true},

	token.Comma: {precComma, false},

	token.Question: {precConditional, true},

	token.Group: {precTableOp, false},
	token.Each:  {precTableOp, false},
	token.NJoin: {precTableOp, false},
	token.LJoin: {precTableOp, false},
	token.RJoin: {precTableOp, false},
	token.Find:  {precTableOp, false},

	token.Coalesce: {precCoalesce, false},
	token.Or:       {precOr, false},
	token.And:      {precAnd, false},

	token.Lt: {precRelational, false}, token.Le: {precRelational, false},
	token.Gt: {precRelational, false}, token.Ge: {precRelational, false},

	token.Eq: {precEquality, false}, token.Ne: {precEquality, false},
	token.EqStrict: {precEquality, false}, token.NeStrict: {precEquality, false},
	token.ICEq: {precEquality, false}, token.ICNe: {precEquality, false},
	token.Like: {precEquality, false}, token.NotLike: {precEquality, false},
	token.Between: {precEquality, false},

	token.In: {precIn, false}, token.NotIn: {precIn, false},

	token.BitOr: {precBitOr, false}, token.BitXor: {precBitXor, false}, token.BitAnd: {precBitAnd, false},
	token.Shl: {precShift, false}, token.Shr: {precShift, false},

	token.Add: {precAdditive, false}, token.Subtract: {precAdditive, false},
	token.Multiply: {precMultiplicative, false}, token.Divide: {precMultiplicative, false}, token.Modulo: {precMultiplicative, false},
}

// parseExpr implements the precedence-climbing core of spec.md §4.2's
// shift-reduce loop: reduce (apply) every operator on the logical stack
// whose precedence is >= the incoming operator before shifting it, with
// strictly-greater-than for the right-associative `:`/`?`/assignment tiers.
func (p *Parser) parseExpr(minPrec int) (*ast.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		p.leftShape = left
		info, ok := binOps[p.cur.Op]
		if !ok || info.prec < minPrec {
			return left, nil
		}
		op := p.cur.Op
		if err := p.advance(); err != nil {
			return nil, err
		}

		switch op {
		case token.Between:
			left, err = p.parseBetween(left)
		case token.Question:
			left, err = p.parseConditional(left)
		case token.NJoin, token.LJoin, token.RJoin:
			left, err = p.parseJoin(left, op)
		case token.Assign, token.Append, token.MaybeAssign:
			left, err = p.parseAssignLike(left, op)
		default:
			left, err = p.parseGenericBinary(left, op, info)
		}
		if err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parseGenericBinary(left *ast.Node, op token.Opcode, info opInfo) (*ast.Node, error) {
	p.push(op)
	defer p.pop()
	nextMin := info.prec + 1
	if info.rightAssoc {
		nextMin = info.prec
	}
	right, err := p.parseExpr(nextMin)
	if err != nil {
		return nil, err
	}
	return ast.NewBinary(op, left, right), nil
}

// parseBetween handles `x BETWEEN lo AND hi`, one of the explicit
// multi-node reductions called out in spec.md §4.2.
func (p *Parser) parseBetween(left *ast.Node) (*ast.Node, error) {
	p.push(token.Between)
	defer p.pop()
	lo, err := p.parseExpr(precEquality + 1)
	if err != nil {
		return nil, err
	}
	if p.cur.Op != token.And {
		return nil, errs.ErrUnexpectedToken.New(p.cur.Text)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	hi, err := p.parseExpr(precEquality + 1)
	if err != nil {
		return nil, err
	}
	return &ast.Node{Op: token.Between, Left: left, Elems: []*ast.Node{lo, hi}}, nil
}

// parseConditional handles `c ? t : e`, right-associative per spec.md §4.2.
func (p *Parser) parseConditional(cond *ast.Node) (*ast.Node, error) {
	p.push(token.Question)
	defer p.pop()
	thenExpr, err := p.parseExpr(precConditional)
	if err != nil {
		return nil, err
	}
	if p.cur.Op != token.Colon {
		return nil, errs.ErrBadColon.New()
	}
	p.push(token.Colon)
	if err := p.advance(); err != nil {
		return nil, err
	}
	elseExpr, err := p.parseExpr(precConditional)
	p.pop()
	if err != nil {
		return nil, err
	}
	return &ast.Node{Op: token.Question, Left: cond, Right: &ast.Node{Op: token.Colon, Left: thenExpr, Right: elseExpr}}, nil
}

// parseJoin lowers `#=`/`#<`/`#>` directly into a call of the resolved
// njoin/ljoin/rjoin table function, per the "ordinary table functions"
// design decision recorded in DESIGN.md.
func (p *Parser) parseJoin(left *ast.Node, op token.Opcode) (*ast.Node, error) {
	p.push(op)
	defer p.pop()
	right, err := p.parseExpr(precTableOp + 1)
	if err != nil {
		return nil, err
	}
	name := map[token.Opcode]string{token.NJoin: "njoin", token.LJoin: "ljoin", token.RJoin: "rjoin"}[op]
	desc, ok := p.reg.Lookup(name)
	if !ok {
		return nil, errs.ErrUnknownFunction.New(name)
	}
	return ast.NewFuncCall(desc, []*ast.Node{left, right}), nil
}

func (p *Parser) parseAssignLike(left *ast.Node, op token.Opcode) (*ast.Node, error) {
	if !isLValueShape(left) {
		return nil, errs.ErrBadLValue.New()
	}
	p.push(op)
	defer p.pop()
	right, err := p.parseExpr(precAssign)
	if err != nil {
		return nil, err
	}
	return ast.NewBinary(op, left, right), nil
}

// isLValueShape implements spec.md §4.1's `=` disambiguation shape test: a
// name, a dotted chain ending in .name, or a subscripted chain.
func isLValueShape(n *ast.Node) bool {
	if n == nil {
		return false
	}
	switch n.Op {
	case token.Name:
		return !n.IsDefaultTable && n.Name != "this" && n.Name != "that"
	case token.Dot, token.Subscript:
		return true
	default:
		return false
	}
}

// --- unary / postfix / primary ---

var unaryOps = map[token.Opcode]bool{token.Negate: true, token.Not: true, token.BitNot: true}

func (p *Parser) parseUnary() (*ast.Node, error) {
	if unaryOps[p.cur.Op] {
		op := p.cur.Op
		p.push(op)
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		p.pop()
		if err != nil {
			return nil, err
		}
		return ast.NewUnary(op, operand), nil
	}
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return p.parsePostfix(node)
}

// parsePostfix applies subscript, dot-access (including the x.f(args) ->
// f(x, args) method-call rewrite of spec.md §4.2), and the IS NULL/IS NOT
// NULL postfix tests.
func (p *Parser) parsePostfix(node *ast.Node) (*ast.Node, error) {
	for {
		switch p.cur.Op {
		case token.Dot:
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.cur.Op != token.Name {
				return nil, errs.ErrUnexpectedToken.New(p.cur.Text)
			}
			name := p.cur.Text
			// See parsePrimary's Name case: publish the shape before the
			// advance that will lex whatever follows this dotted chain.
			p.leftShape = ast.NewDot(node, name)
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.cur.Op == token.StartParen {
				args, err := p.parseArgList()
				if err != nil {
					return nil, err
				}
				desc, ok := p.reg.Lookup(name)
				if !ok {
					return nil, errs.ErrUnknownFunction.New(name)
				}
				node = ast.NewFuncCall(desc, append([]*ast.Node{node}, args...))
			} else {
				node = ast.NewDot(node, name)
			}
		case token.StartArray:
			p.push(token.StartArray)
			if err := p.advance(); err != nil {
				return nil, err
			}
			index, err := p.parseExpr(lowestPrec + 1)
			if err != nil {
				return nil, err
			}
			if p.cur.Op != token.EndArray {
				return nil, errs.ErrUnbalanced.New("[")
			}
			p.pop()
			// See parsePrimary's Name case: publish the shape before the
			// advance that will lex whatever follows this subscript.
			p.leftShape = ast.NewSubscript(node, index)
			if err := p.advance(); err != nil {
				return nil, err
			}
			node = ast.NewSubscript(node, index)
		case token.IsNull, token.IsNotNull:
			op := p.cur.Op
			if err := p.advance(); err != nil {
				return nil, err
			}
			node = &ast.Node{Op: op, Left: node}
		default:
			return node, nil
		}
	}
}

func (p *Parser) parsePrimary() (*ast.Node, error) {
	switch p.cur.Op {
	case token.Literal:
		n := ast.NewLiteral(p.cur.Lit)
		return n, p.advance()

	case token.Regex:
		re, err := compileRegex(p.cur.Text, p.cur.ICase)
		if err != nil {
			return nil, errs.ErrRegex.New(p.cur.Text, err)
		}
		n := &ast.Node{Op: token.Regex, Regex: re, RegexSrc: p.cur.Text, Global: p.cur.Global}
		return n, p.advance()

	case token.Name:
		name := p.cur.Text
		// Provisionally publish this name's shape before advancing, so the
		// lexer's `=` disambiguation (spec.md §4.1) sees the correct
		// lvalue-shape of the token it is about to emit an operator after --
		// parseExpr's own `p.leftShape = left` runs too late, only after
		// the token following this name has already been lexed.
		p.leftShape = ast.NewName(name)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Op == token.StartParen {
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			desc, ok := p.reg.Lookup(name)
			if !ok {
				return nil, errs.ErrUnknownFunction.New(name)
			}
			return ast.NewFuncCall(desc, args), nil
		}
		return ast.NewName(name), nil

	case token.Environ:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Op != token.Name {
			return nil, errs.ErrUnexpectedToken.New(p.cur.Text)
		}
		name := p.cur.Text
		return &ast.Node{Op: token.Environ, Name: name}, p.advance()

	case token.StartParen:
		p.push(token.StartParen)
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr(lowestPrec + 1)
		if err != nil {
			return nil, err
		}
		p.pop()
		if p.cur.Op != token.EndParen {
			return nil, errs.ErrUnbalanced.New("(")
		}
		return inner, p.advance()

	case token.StartArray:
		return p.parseArray()

	case token.StartObject:
		return p.parseObject()

	case token.SelectKw:
		return p.parseSelect()

	default:
		return nil, errs.ErrMissingOperand.New(p.cur.Text)
	}
}

// compileRegex compiles the lexer's raw pattern text, folding the `i` flag
// into Go's inline case-insensitivity flag; the `g` (global) flag is kept
// on the node itself (spec.md §4.4 REGEX) since Go's regexp package has no
// single-vs-all-matches mode of its own.
func compileRegex(src string, icase bool) (*regexp.Regexp, error) {
	if icase {
		src = "(?i)" + src
	}
	return regexp.Compile(src)
}

// parseArgList parses a parenthesized, comma-separated argument list,
// reversing the left-associative comma chain kept on the stack back into
// ordinary left-to-right argument order (spec.md §4.2's comma-chain
// invariant).
//
// A bare `*` standing alone as one argument (count(*) and friends) is
// accepted as the star placeholder rather than parsed as an expression:
// token.Multiply never begins a valid primary (parsePrimary has no case for
// it), so there is no ambiguity with the multiplication operator here.
func (p *Parser) parseArgList() ([]*ast.Node, error) {
	p.push(token.StartParen)
	if err := p.advance(); err != nil {
		return nil, err
	}
	var args []*ast.Node
	if p.cur.Op != token.EndParen {
		for {
			p.push(token.Comma)
			var arg *ast.Node
			var err error
			if p.cur.Op == token.Multiply {
				arg = ast.NewStarArg()
				err = p.advance()
			} else {
				arg, err = p.parseExpr(precComma + 1)
			}
			p.pop()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.cur.Op != token.Comma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	p.pop()
	if p.cur.Op != token.EndParen {
		return nil, errs.ErrUnbalanced.New("(")
	}
	return args, p.advance()
}

func (p *Parser) parseArray() (*ast.Node, error) {
	p.push(token.StartArray)
	if err := p.advance(); err != nil {
		return nil, err
	}
	var elems []*ast.Node
	if p.cur.Op != token.EndArray {
		for {
			p.push(token.Comma)
			e, err := p.parseExpr(precComma + 1)
			p.pop()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if p.cur.Op != token.Comma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	p.pop()
	if p.cur.Op != token.EndArray {
		return nil, errs.ErrUnbalanced.New("[")
	}
	return ast.NewArray(elems), p.advance()
}

// parseObject applies spec.md §4.2's per-element rewrite: `name` -> name:
// name; `expr AS name` -> name:expr; anonymous expr -> its own source text
// as the key.
func (p *Parser) parseObject() (*ast.Node, error) {
	p.push(token.StartObject)
	if err := p.advance(); err != nil {
		return nil, err
	}
	var keys []string
	var vals []*ast.Node
	if p.cur.Op != token.EndObject {
		for {
			key, val, err := p.parseObjectMember()
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
			vals = append(vals, val)
			if p.cur.Op != token.Comma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	p.pop()
	if p.cur.Op != token.EndObject {
		return nil, errs.ErrUnbalanced.New("{")
	}
	return ast.NewObject(keys, vals), p.advance()
}

func (p *Parser) parseObjectMember() (string, *ast.Node, error) {
	// bare `name` (not immediately followed by ':') -> name:name
	if p.cur.Op == token.Name {
		name := p.cur.Text
		save := p.cur
		if err := p.advance(); err != nil {
			return "", nil, err
		}
		if p.cur.Op == token.Colon {
			if err := p.advance(); err != nil {
				return "", nil, err
			}
			val, err := p.parseExpr(precComma + 1)
			if err != nil {
				return "", nil, err
			}
			return name, val, nil
		}
		// not a ':' pair; rewind conceptually by treating `name` itself
		// as the start of a larger expression (e.g. `name.foo AS bar`).
		p.hasPeek = true
		p.peek = p.cur
		p.cur = save
	}
	return p.parseExprMember()
}

// parseExprMember parses `expr [AS name]`, synthesising the source-text key
// for an anonymous expression per spec.md §4.2.
func (p *Parser) parseExprMember() (string, *ast.Node, error) {
	startOffset := p.cur.Pos.Offset
	expr, err := p.parseExpr(precComma + 1)
	if err != nil {
		return "", nil, err
	}
	if p.cur.Op == token.As {
		if err := p.advance(); err != nil {
			return "", nil, err
		}
		if p.cur.Op != token.Name {
			return "", nil, errs.ErrUnexpectedToken.New(p.cur.Text)
		}
		name := p.cur.Text
		return name, expr, p.advance()
	}
	endOffset := len(p.src)
	if p.cur.Pos.Offset > 0 {
		endOffset = p.cur.Pos.Offset
	}
	text := strings.TrimSpace(p.src[startOffset:endOffset])
	return text, expr, nil
}

// --- SELECT ---

func (p *Parser) parseSelect() (*ast.Node, error) {
	p.selectDepth++
	defer func() { p.selectDepth-- }()

	if err := p.advance(); err != nil {
		return nil, err
	}
	spec := &ast.SelectSpec{}
	if p.cur.Op == token.Distinct {
		spec.Distinct = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	if p.cur.Op == token.Multiply {
		if err := p.advance(); err != nil {
			return nil, err
		}
	} else {
		for {
			key, val, err := p.parseObjectMember()
			if err != nil {
				return nil, err
			}
			spec.ColNames = append(spec.ColNames, key)
			spec.Columns = append(spec.Columns, *val)
			if p.cur.Op != token.Comma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}

	if p.cur.Op == token.From {
		if err := p.advance(); err != nil {
			return nil, err
		}
		from, err := p.parseExpr(precTableOp + 1)
		if err != nil {
			return nil, err
		}
		spec.From = from
		for p.cur.Op == token.Comma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.cur.Op != token.Name {
				return nil, errs.ErrUnexpectedToken.New(p.cur.Text)
			}
			spec.FromFields = append(spec.FromFields, p.cur.Text)
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}

	if p.cur.Op == token.Where {
		if err := p.advance(); err != nil {
			return nil, err
		}
		where, err := p.parseExpr(precTableOp + 1)
		if err != nil {
			return nil, err
		}
		spec.Where = where
	}

	if p.cur.Op == token.GroupBy {
		if err := p.advance(); err != nil {
			return nil, err
		}
		names, err := p.parseNameList()
		if err != nil {
			return nil, err
		}
		spec.GroupBy = names
	}

	if p.cur.Op == token.Having {
		if err := p.advance(); err != nil {
			return nil, err
		}
		having, err := p.parseExpr(precTableOp + 1)
		if err != nil {
			return nil, err
		}
		spec.Having = having
	}

	if p.cur.Op == token.OrderBy {
		if err := p.advance(); err != nil {
			return nil, err
		}
		for {
			if p.cur.Op != token.Name {
				return nil, errs.ErrUnexpectedToken.New(p.cur.Text)
			}
			term := ast.OrderTerm{Name: p.cur.Text}
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.cur.Op == token.Descending {
				term.Desc = true
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
			spec.OrderBy = append(spec.OrderBy, term)
			if p.cur.Op != token.Comma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}

	if p.cur.Op == token.Limit {
		if err := p.advance(); err != nil {
			return nil, err
		}
		limit, err := p.parseExpr(precTableOp + 1)
		if err != nil {
			return nil, err
		}
		spec.Limit = limit
	}

	return sqllower.Lower(spec, p.reg)
}

func (p *Parser) parseNameList() ([]string, error) {
	var names []string
	for {
		if p.cur.Op != token.Name {
			return nil, errs.ErrUnexpectedToken.New(p.cur.Text)
		}
		names = append(names, p.cur.Text)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Op != token.Comma {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return names, nil
}
