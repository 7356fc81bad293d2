package command

import (
	"strings"

	"github.com/kirkendall/jsoncalc/ast"
	"github.com/kirkendall/jsoncalc/ast/function"
	"github.com/kirkendall/jsoncalc/errs"
	"github.com/kirkendall/jsoncalc/parser"
	"github.com/kirkendall/jsoncalc/token"
	"github.com/kirkendall/jsoncalc/value"
)

// Parser is the "simple recursive-descent parser" spec.md §6 calls for: a
// thin statement-grammar shell driven token-by-token over the same
// lexer/expression-parser core used for bare expressions (package parser),
// delegating every embedded sub-expression (a condition, an initializer, an
// argument) back to it.
type Parser struct {
	p   *parser.Parser
	reg *function.Registry
}

// NewParser builds a command parser over src, resolving function calls
// against reg (as package parser's expression parser does).
func NewParser(src, file string, reg *function.Registry) *Parser {
	return &Parser{p: parser.New(src, file, reg), reg: reg}
}

// ParseProgram parses an entire script: a sequence of statements up to
// end of input.
func (cp *Parser) ParseProgram() (*Block, error) {
	if err := cp.p.Advance(); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for cp.cur().Op != token.Invalid {
		s, err := cp.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return &Block{Stmts: stmts}, nil
}

func (cp *Parser) cur() token.Token { return cp.p.Cur() }

func (cp *Parser) advance() error { return cp.p.Advance() }

// keyword reports whether the current token is the bare (case-insensitive)
// word w -- command keywords are ordinary NAME tokens (spec.md §4.1 only
// reserves SQL keywords, and only inside a SELECT), recognized here purely
// by statement position.
func (cp *Parser) keyword(w string) bool {
	t := cp.cur()
	return t.Op == token.Name && strings.EqualFold(t.Text, w)
}

func (cp *Parser) expectOp(op token.Opcode, what string) error {
	if cp.cur().Op != op {
		return errs.ErrCommand.New("expected " + what + ", got " + cp.cur().Text)
	}
	return cp.advance()
}

// expectName consumes a NAME token (rejecting reserved-keyword shadowing is
// not attempted here; any NAME-shaped token is accepted as an identifier).
func (cp *Parser) expectName(what string) (string, error) {
	if cp.cur().Op != token.Name {
		return "", errs.ErrCommand.New("expected " + what + ", got " + cp.cur().Text)
	}
	name := cp.cur().Text
	return name, cp.advance()
}

func (cp *Parser) parseStmt() (Stmt, error) {
	if cp.cur().Op == token.StartObject {
		return cp.parseBlock()
	}
	if cp.cur().Op == token.Name {
		switch strings.ToLower(cp.cur().Text) {
		case "if":
			return cp.parseIf()
		case "while":
			return cp.parseWhile()
		case "for":
			return cp.parseFor()
		case "break":
			if err := cp.advance(); err != nil {
				return nil, err
			}
			return Break{}, nil
		case "continue":
			if err := cp.advance(); err != nil {
				return nil, err
			}
			return Continue{}, nil
		case "switch":
			return cp.parseSwitch()
		case "try":
			return cp.parseTry()
		case "throw":
			return cp.parseThrow()
		case "var":
			return cp.parseVarDecl(false)
		case "const":
			return cp.parseVarDecl(true)
		case "function":
			return cp.parseFuncDef()
		case "return":
			return cp.parseReturn()
		case "void":
			return cp.parseVoid()
		case "explain":
			return cp.parseExplain()
		case "file":
			return cp.parseFile()
		case "import":
			return cp.parseImport()
		case "plugin":
			return cp.parsePlugin()
		case "print":
			return cp.parsePrint()
		case "set":
			return cp.parseSet()
		}
	}
	node, err := cp.p.ParseFull()
	if err != nil {
		return nil, err
	}
	return &ExprStmt{Node: node}, nil
}

// parseStmtOrBlock parses the single-statement or brace-delimited body of
// if/while/for/try/catch.
func (cp *Parser) parseStmtOrBlock() (Stmt, error) {
	if cp.cur().Op == token.StartObject {
		return cp.parseBlock()
	}
	return cp.parseStmt()
}

func (cp *Parser) parseBlock() (*Block, error) {
	if err := cp.expectOp(token.StartObject, "'{'"); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for cp.cur().Op != token.EndObject {
		if cp.cur().Op == token.Invalid {
			return nil, errs.ErrCommand.New("unexpected end of input in block")
		}
		s, err := cp.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	if err := cp.advance(); err != nil {
		return nil, err
	}
	return &Block{Stmts: stmts}, nil
}

func (cp *Parser) parseIf() (Stmt, error) {
	if err := cp.advance(); err != nil {
		return nil, err
	}
	if err := cp.expectOp(token.StartParen, "'(' after if"); err != nil {
		return nil, err
	}
	cond, err := cp.p.ParseFull()
	if err != nil {
		return nil, err
	}
	if err := cp.expectOp(token.EndParen, "')'"); err != nil {
		return nil, err
	}
	thenStmt, err := cp.parseStmtOrBlock()
	if err != nil {
		return nil, err
	}
	var elseStmt Stmt
	if cp.keyword("else") {
		if err := cp.advance(); err != nil {
			return nil, err
		}
		elseStmt, err = cp.parseStmtOrBlock()
		if err != nil {
			return nil, err
		}
	}
	return &If{Cond: cond, Then: thenStmt, Else: elseStmt}, nil
}

func (cp *Parser) parseWhile() (Stmt, error) {
	if err := cp.advance(); err != nil {
		return nil, err
	}
	if err := cp.expectOp(token.StartParen, "'(' after while"); err != nil {
		return nil, err
	}
	cond, err := cp.p.ParseFull()
	if err != nil {
		return nil, err
	}
	if err := cp.expectOp(token.EndParen, "')'"); err != nil {
		return nil, err
	}
	body, err := cp.parseStmtOrBlock()
	if err != nil {
		return nil, err
	}
	return &While{Cond: cond, Body: body}, nil
}

func (cp *Parser) parseFor() (Stmt, error) {
	if err := cp.advance(); err != nil {
		return nil, err
	}
	if err := cp.expectOp(token.StartParen, "'(' after for"); err != nil {
		return nil, err
	}
	if cp.keyword("var") {
		if err := cp.advance(); err != nil {
			return nil, err
		}
	}
	name, err := cp.expectName("loop variable")
	if err != nil {
		return nil, err
	}
	switch {
	case cp.cur().Op == token.Assign || cp.cur().Op == token.ICEq:
		if err := cp.advance(); err != nil {
			return nil, err
		}
	case cp.keyword("of"):
		if err := cp.advance(); err != nil {
			return nil, err
		}
	default:
		return nil, errs.ErrCommand.New("expected '=' or 'of' in for(), got " + cp.cur().Text)
	}
	expr, err := cp.p.ParseFull()
	if err != nil {
		return nil, err
	}
	if err := cp.expectOp(token.EndParen, "')'"); err != nil {
		return nil, err
	}
	body, err := cp.parseStmtOrBlock()
	if err != nil {
		return nil, err
	}
	return &For{Name: name, Expr: expr, Body: body}, nil
}

func (cp *Parser) parseSwitch() (Stmt, error) {
	if err := cp.advance(); err != nil {
		return nil, err
	}
	if err := cp.expectOp(token.StartParen, "'(' after switch"); err != nil {
		return nil, err
	}
	expr, err := cp.p.ParseFull()
	if err != nil {
		return nil, err
	}
	if err := cp.expectOp(token.EndParen, "')'"); err != nil {
		return nil, err
	}
	if err := cp.expectOp(token.StartObject, "'{' after switch(...)"); err != nil {
		return nil, err
	}
	sw := &Switch{Expr: expr}
	for cp.cur().Op != token.EndObject {
		switch {
		case cp.keyword("case"):
			if err := cp.advance(); err != nil {
				return nil, err
			}
			lit, err := cp.p.ParseNoComma()
			if err != nil {
				return nil, err
			}
			if err := cp.expectOp(token.Colon, "':' after case value"); err != nil {
				return nil, err
			}
			body, err := cp.parseCaseBody()
			if err != nil {
				return nil, err
			}
			sw.Cases = append(sw.Cases, CaseClause{Value: lit, Body: body})
		case cp.keyword("default"):
			if err := cp.advance(); err != nil {
				return nil, err
			}
			if err := cp.expectOp(token.Colon, "':' after default"); err != nil {
				return nil, err
			}
			body, err := cp.parseCaseBody()
			if err != nil {
				return nil, err
			}
			sw.Default = body
		default:
			return nil, errs.ErrCommand.New("expected 'case' or 'default', got " + cp.cur().Text)
		}
	}
	if err := cp.advance(); err != nil {
		return nil, err
	}
	return sw, nil
}

// parseCaseBody collects statements up to the next case/default/'}'.
func (cp *Parser) parseCaseBody() (Stmt, error) {
	var stmts []Stmt
	for !cp.keyword("case") && !cp.keyword("default") && cp.cur().Op != token.EndObject {
		if cp.cur().Op == token.Invalid {
			return nil, errs.ErrCommand.New("unexpected end of input in switch")
		}
		s, err := cp.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return &Block{Stmts: stmts}, nil
}

func (cp *Parser) parseTry() (Stmt, error) {
	if err := cp.advance(); err != nil {
		return nil, err
	}
	body, err := cp.parseStmtOrBlock()
	if err != nil {
		return nil, err
	}
	t := &Try{Body: body}
	if cp.keyword("catch") {
		t.HasCatch = true
		if err := cp.advance(); err != nil {
			return nil, err
		}
		if cp.cur().Op == token.StartParen {
			if err := cp.advance(); err != nil {
				return nil, err
			}
			name, err := cp.expectName("catch variable")
			if err != nil {
				return nil, err
			}
			t.CatchName = name
			if err := cp.expectOp(token.EndParen, "')'"); err != nil {
				return nil, err
			}
		}
		t.Catch, err = cp.parseStmtOrBlock()
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

// parseThrow parses `throw [code,] "msg" [, arg]`. With one bare expression
// it is the message; with two, code then message; with three, code,
// message, and an extra argument, per spec.md §6.
func (cp *Parser) parseThrow() (Stmt, error) {
	if err := cp.advance(); err != nil {
		return nil, err
	}
	first, err := cp.p.ParseNoComma()
	if err != nil {
		return nil, err
	}
	th := &Throw{Msg: first}
	if cp.cur().Op == token.Comma {
		if err := cp.advance(); err != nil {
			return nil, err
		}
		second, err := cp.p.ParseNoComma()
		if err != nil {
			return nil, err
		}
		th.Code, th.Msg = first, second
		if cp.cur().Op == token.Comma {
			if err := cp.advance(); err != nil {
				return nil, err
			}
			th.Arg, err = cp.p.ParseNoComma()
			if err != nil {
				return nil, err
			}
		}
	}
	return th, nil
}

// parseVarDecl parses `var`/`const name[:type][=expr] [, ...]`. The type
// annotation is accepted and discarded: this implementation's values are
// dynamically typed (spec.md §10.3 "Dynamic typing"), so a declared type is
// documentation, not an enforced constraint.
func (cp *Parser) parseVarDecl(isConst bool) (Stmt, error) {
	if err := cp.advance(); err != nil {
		return nil, err
	}
	decl := &VarDecl{Const: isConst}
	for {
		name, err := cp.expectName("variable name")
		if err != nil {
			return nil, err
		}
		if cp.cur().Op == token.Colon {
			if err := cp.advance(); err != nil {
				return nil, err
			}
			if _, err := cp.expectName("type name"); err != nil {
				return nil, err
			}
		}
		var init *ast.Node
		if cp.cur().Op == token.Assign || cp.cur().Op == token.ICEq {
			if err := cp.advance(); err != nil {
				return nil, err
			}
			init, err = cp.p.ParseNoComma()
			if err != nil {
				return nil, err
			}
		}
		decl.Names = append(decl.Names, name)
		decl.Inits = append(decl.Inits, init)
		if cp.cur().Op != token.Comma {
			break
		}
		if err := cp.advance(); err != nil {
			return nil, err
		}
	}
	return decl, nil
}

// parseFuncDef parses `function name(params):type { body }`.
func (cp *Parser) parseFuncDef() (Stmt, error) {
	if err := cp.advance(); err != nil {
		return nil, err
	}
	name, err := cp.expectName("function name")
	if err != nil {
		return nil, err
	}
	if err := cp.expectOp(token.StartParen, "'(' after function name"); err != nil {
		return nil, err
	}
	var params []function.UserParam
	for cp.cur().Op != token.EndParen {
		pname, err := cp.expectName("parameter name")
		if err != nil {
			return nil, err
		}
		if cp.cur().Op == token.Colon {
			if err := cp.advance(); err != nil {
				return nil, err
			}
			if _, err := cp.expectName("parameter type"); err != nil {
				return nil, err
			}
		}
		var def *ast.Node
		if cp.cur().Op == token.Assign || cp.cur().Op == token.ICEq {
			if err := cp.advance(); err != nil {
				return nil, err
			}
			def, err = cp.p.ParseNoComma()
			if err != nil {
				return nil, err
			}
		}
		p := function.UserParam{Name: pname}
		if def != nil {
			v, err := ast.Eval(def, nullScope{}, nil)
			if err == nil {
				p.Default = v
			}
		}
		params = append(params, p)
		if cp.cur().Op == token.Comma {
			if err := cp.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := cp.advance(); err != nil {
		return nil, err
	}
	retType := ""
	if cp.cur().Op == token.Colon {
		if err := cp.advance(); err != nil {
			return nil, err
		}
		retType, err = cp.expectName("return type")
		if err != nil {
			return nil, err
		}
	}
	body, err := cp.parseBlock()
	if err != nil {
		return nil, err
	}
	// Calls are resolved against the registry at parse time, so the
	// function is registered here for the statements parsed after it.
	cp.reg.Register(&function.Descriptor{Name: name, ReturnType: retType, UserBody: body, UserParams: params})
	return &FuncDef{Name: name, Params: params, ReturnType: retType, Body: body}, nil
}

func (cp *Parser) parseReturn() (Stmt, error) {
	if err := cp.advance(); err != nil {
		return nil, err
	}
	if cp.atStmtEnd() {
		return &Return{}, nil
	}
	expr, err := cp.p.ParseFull()
	if err != nil {
		return nil, err
	}
	return &Return{Expr: expr}, nil
}

func (cp *Parser) parseVoid() (Stmt, error) {
	if err := cp.advance(); err != nil {
		return nil, err
	}
	expr, err := cp.p.ParseFull()
	if err != nil {
		return nil, err
	}
	return &VoidStmt{Node: expr}, nil
}

// parseExplain parses `explain [expr|?]`; a bare `explain` or `explain ?`
// with nothing else to show just dumps whatever follows.
func (cp *Parser) parseExplain() (Stmt, error) {
	if err := cp.advance(); err != nil {
		return nil, err
	}
	if cp.cur().Op == token.Question {
		if err := cp.advance(); err != nil {
			return nil, err
		}
	}
	if cp.atStmtEnd() {
		return &Explain{Node: ast.NewLiteral(value.NewNull())}, nil
	}
	expr, err := cp.p.ParseFull()
	if err != nil {
		return nil, err
	}
	return &Explain{Node: expr}, nil
}

// parseFile parses `file [+|-|(expr)|filename]`.
func (cp *Parser) parseFile() (Stmt, error) {
	if err := cp.advance(); err != nil {
		return nil, err
	}
	switch {
	case cp.cur().Op == token.Add:
		if err := cp.advance(); err != nil {
			return nil, err
		}
		return &FileStmt{Next: true}, nil
	case cp.cur().Op == token.Subtract || cp.cur().Op == token.Negate:
		if err := cp.advance(); err != nil {
			return nil, err
		}
		return &FileStmt{Prev: true}, nil
	case cp.atStmtEnd():
		return &FileStmt{}, nil
	default:
		expr, err := cp.p.ParseNoComma()
		if err != nil {
			return nil, err
		}
		return &FileStmt{Name: expr}, nil
	}
}

// parseImport parses `import path`, where path is a bare dotted/slashed
// name read as source text rather than evaluated as an expression (module
// paths are not values).
func (cp *Parser) parseImport() (Stmt, error) {
	if err := cp.advance(); err != nil {
		return nil, err
	}
	var parts []string
	for cp.cur().Op == token.Name || cp.cur().Op == token.Dot || cp.cur().Op == token.Divide {
		parts = append(parts, cp.cur().Text)
		if err := cp.advance(); err != nil {
			return nil, err
		}
	}
	return &ImportStmt{Path: strings.Join(parts, "")}, nil
}

// parsePlugin parses `plugin name[,settings]`.
func (cp *Parser) parsePlugin() (Stmt, error) {
	if err := cp.advance(); err != nil {
		return nil, err
	}
	name, err := cp.expectName("plugin name")
	if err != nil {
		return nil, err
	}
	ps := &PluginStmt{Name: name}
	if cp.cur().Op == token.Comma {
		if err := cp.advance(); err != nil {
			return nil, err
		}
		ps.Settings, err = cp.p.ParseFull()
		if err != nil {
			return nil, err
		}
	}
	return ps, nil
}

func (cp *Parser) parsePrint() (Stmt, error) {
	if err := cp.advance(); err != nil {
		return nil, err
	}
	pr := &Print{}
	for {
		expr, err := cp.p.ParseNoComma()
		if err != nil {
			return nil, err
		}
		pr.Exprs = append(pr.Exprs, expr)
		if cp.cur().Op != token.Comma {
			break
		}
		if err := cp.advance(); err != nil {
			return nil, err
		}
	}
	return pr, nil
}

// parseSet parses `set settings | set(expr)`; either form is reduced to a
// single settings expression (spec.md §6 leaves the settings format itself
// to the external configuration collaborator).
func (cp *Parser) parseSet() (Stmt, error) {
	if err := cp.advance(); err != nil {
		return nil, err
	}
	if cp.atStmtEnd() {
		return &SetStmt{}, nil
	}
	expr, err := cp.p.ParseFull()
	if err != nil {
		return nil, err
	}
	return &SetStmt{Node: expr}, nil
}

// atStmtEnd reports whether the current token cannot start an expression,
// i.e. this statement has no (further) expression to parse: end of input,
// a closing brace, or a closing paren. Statement keywords are not checked.
func (cp *Parser) atStmtEnd() bool {
	switch cp.cur().Op {
	case token.Invalid, token.EndObject, token.EndParen:
		return true
	}
	return false
}

// nullScope is a minimal ast.Scope used only to evaluate constant parameter
// default-value expressions at function-definition time, independent of
// any particular call's context.
type nullScope struct{}

func (nullScope) Lookup(string) (*value.Value, bool)                       { return nil, false }
func (nullScope) This() (*value.Value, bool)                               { return nil, false }
func (nullScope) That() (*value.Value, bool)                               { return nil, false }
func (nullScope) Environ(string) (*value.Value, bool)                      { return value.NewNull(), true }
func (nullScope) PushThis(*value.Value) ast.Scope                          { return nullScope{} }
func (nullScope) Interrupted() bool                                        { return false }
func (nullScope) DefaultTable() (*value.Value, string, error)              { return nil, "", errs.ErrUnknownTable.New() }
func (nullScope) Assign(*ast.Node, *value.Value) (*value.Value, error)     { return nil, errs.ErrBadLValue.New() }
func (nullScope) AppendAssign(*ast.Node, *value.Value) (*value.Value, error) {
	return nil, errs.ErrBadLValue.New()
}
func (nullScope) MaybeAssign(*ast.Node, *value.Value) (*value.Value, error) {
	return nil, errs.ErrBadLValue.New()
}
func (nullScope) CallUser(interface{}, []*value.Value) (*value.Value, error) {
	return nil, errs.ErrCommand.New("cannot call a function from a parameter default")
}
