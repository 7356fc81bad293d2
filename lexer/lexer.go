// Package lexer scans one token at a time from expression source text, with
// context-sensitive disambiguation driven by the parser's stack, per
// spec.md §4.1.
package lexer

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirkendall/jsoncalc/errs"
	"github.com/kirkendall/jsoncalc/token"
	"github.com/kirkendall/jsoncalc/value"
)

// StackContext is the narrow view of the parser's shift-reduce stack that
// the lexer needs in order to disambiguate `-`, `=`, `/`, and `}`. The
// parser package implements it over its real stack.
type StackContext interface {
	// TopOpcode returns the opcode at the top of the stack, and false if
	// the stack is empty.
	TopOpcode() (token.Opcode, bool)
	// InSelect reports whether an unresolved SELECT token is anywhere on
	// the stack, making the SQL-only keywords reserved.
	InSelect() bool
	// AssignEnabled reports whether `=` may lex as assignment in this parse.
	AssignEnabled() bool
	// TopIsLValue reports whether the stack top forms an assignable
	// l-value shape (a name, a dotted chain ending in .name, or a
	// subscripted chain), per spec.md §4.1's `=` disambiguation rule.
	TopIsLValue() bool
}

var alwaysReserved = map[string]token.Opcode{
	"true": token.Literal, "false": token.Literal, "null": token.Literal,
	"and": token.And, "or": token.Or, "not": token.Not, "in": token.In,
	"like": token.Like, "between": token.Between, "as": token.As, "values": token.Values,
	"select": token.SelectKw,
}

var selectOnlyReserved = map[string]token.Opcode{
	"distinct": token.Distinct, "from": token.From, "where": token.Where,
	"having": token.Having, "desc": token.Descending, "descending": token.Descending,
	"limit": token.Limit,
}

// Lexer scans tokens from src on demand.
type Lexer struct {
	src  string
	pos  int
	file string
}

func New(src, file string) *Lexer {
	return &Lexer{src: src, file: file}
}

func (l *Lexer) posAt(offset int) value.Pos {
	line := 1
	for i := 0; i < offset && i < len(l.src); i++ {
		if l.src[i] == '\n' {
			line++
		}
	}
	return value.Pos{File: l.file, Line: line, Offset: offset}
}

func (l *Lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(n int) byte {
	if l.pos+n >= len(l.src) {
		return 0
	}
	return l.src[l.pos+n]
}

// Next scans and returns the next token, consulting stack for
// context-sensitive disambiguation.
func (l *Lexer) Next(stack StackContext) (token.Token, error) {
	l.skipWSAndComments()
	if l.pos >= len(l.src) {
		return token.Token{Op: token.Invalid, Pos: l.posAt(l.pos)}, nil
	}
	start := l.pos
	c := l.peekByte()

	switch {
	case isDigit(c) || (c == '.' && isDigit(l.peekAt(1))):
		return l.scanNumber(start)
	case c == '"' || c == '\'':
		return l.scanString(start, c)
	case c == '`':
		return l.scanBacktickIdent(start)
	case isIdentStart(c):
		return l.scanIdentOrKeyword(start, stack)
	case c == '/' && l.regexAllowed(stack):
		return l.scanRegex(start)
	default:
		return l.scanOperator(start, stack)
	}
}

func (l *Lexer) skipWSAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		// ';' separates statements and carries no meaning of its own, so it
		// is skipped like whitespace.
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ';' {
			l.pos++
			continue
		}
		if c == '/' && l.peekAt(1) == '/' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		return
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c byte) bool { return isIdentStart(c) || isDigit(c) }

func (l *Lexer) scanNumber(start int) (token.Token, error) {
	if l.peekByte() == '0' && (l.peekAt(1) == 'x' || l.peekAt(1) == 'X') {
		l.pos += 2
		for l.pos < len(l.src) && isHexDigit(l.src[l.pos]) {
			l.pos++
		}
		return l.numTok(start)
	}
	if l.peekByte() == '0' && (l.peekAt(1) == 'o' || l.peekAt(1) == 'O') {
		l.pos += 2
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '7' {
			l.pos++
		}
		return l.numTok(start)
	}
	if l.peekByte() == '0' && (l.peekAt(1) == 'b' || l.peekAt(1) == 'B') {
		l.pos += 2
		for l.pos < len(l.src) && (l.src[l.pos] == '0' || l.src[l.pos] == '1') {
			l.pos++
		}
		return l.numTok(start)
	}
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.peekByte() == '.' && isDigit(l.peekAt(1)) {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.peekByte() == 'e' || l.peekByte() == 'E' {
		save := l.pos
		l.pos++
		if l.peekByte() == '+' || l.peekByte() == '-' {
			l.pos++
		}
		if isDigit(l.peekByte()) {
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		} else {
			l.pos = save
		}
	}
	return l.numTok(start)
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func (l *Lexer) numTok(start int) (token.Token, error) {
	text := l.src[start:l.pos]
	lit := parseNumberLiteral(text)
	return token.Token{Op: token.Literal, Pos: l.posAt(start), Text: text, Lit: lit}, nil
}

// parseNumberLiteral interprets 0x/0o/0b prefixes and bare-leading-zero
// octal into a binary int64 value; ordinary decimals keep their source
// text for lazy conversion, per spec.md §3.
func parseNumberLiteral(text string) *value.Value {
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "0x"):
		if n, err := strconv.ParseInt(lower[2:], 16, 64); err == nil {
			return value.NewInt(n)
		}
	case strings.HasPrefix(lower, "0o"):
		if n, err := strconv.ParseInt(lower[2:], 8, 64); err == nil {
			return value.NewInt(n)
		}
	case strings.HasPrefix(lower, "0b"):
		if n, err := strconv.ParseInt(lower[2:], 2, 64); err == nil {
			return value.NewInt(n)
		}
	case len(text) > 1 && text[0] == '0' && !strings.ContainsAny(text, ".eE") && allDigits(text):
		if n, err := strconv.ParseInt(text, 8, 64); err == nil {
			return value.NewInt(n)
		}
	}
	return value.NewNumberText(text)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func (l *Lexer) scanString(start int, quote byte) (token.Token, error) {
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == quote {
			l.pos++
			return token.Token{Op: token.Literal, Pos: l.posAt(start), Text: l.src[start:l.pos], Lit: value.NewString(sb.String())}, nil
		}
		if c == '\\' && l.pos+1 < len(l.src) {
			l.pos++
			sb.WriteByte(unescape(l.src[l.pos]))
			l.pos++
			continue
		}
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		sb.WriteRune(r)
		l.pos += size
	}
	return token.Token{}, errs.ErrUnbalanced.New(string(quote))
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return c
	}
}

// scanBacktickIdent scans a backtick-delimited identifier (e.g. a column
// name that collides with a reserved word); per spec.md §4.1, backtick
// delimits an identifier, not a string.
func (l *Lexer) scanBacktickIdent(start int) (token.Token, error) {
	l.pos++
	s := l.pos
	for l.pos < len(l.src) && l.src[l.pos] != '`' {
		l.pos++
	}
	text := l.src[s:l.pos]
	if l.pos < len(l.src) {
		l.pos++ // closing backtick
	}
	return token.Token{Op: token.Name, Pos: l.posAt(start), Text: text}, nil
}

func (l *Lexer) scanIdentOrKeyword(start int, stack StackContext) (token.Token, error) {
	for l.pos < len(l.src) && isIdentCont(l.src[l.pos]) {
		l.pos++
	}
	text := l.src[start:l.pos]
	lower := strings.ToLower(text)

	// Multi-word reserved phrases: "not in", "not like", "is null",
	// "is not null", "group by", "order by" are matched against the
	// source as one token spanning the whole phrase.
	if lower == "not" {
		if op, phrase, ok := l.tryPhrase(l.pos, "in", token.NotIn); ok {
			return l.phraseTok(start, phrase, op), nil
		}
		if op, phrase, ok := l.tryPhrase(l.pos, "like", token.NotLike); ok {
			return l.phraseTok(start, phrase, op), nil
		}
	}
	if lower == "is" {
		save := l.pos
		if _, phrase, ok := l.tryPhrase(l.pos, "not null", token.IsNotNull); ok {
			return l.phraseTok(start, phrase, token.IsNotNull), nil
		}
		l.pos = save
		if _, phrase, ok := l.tryPhrase(l.pos, "null", token.IsNull); ok {
			return l.phraseTok(start, phrase, token.IsNull), nil
		}
	}
	if stack.InSelect() {
		if lower == "group" {
			if _, phrase, ok := l.tryPhrase(l.pos, "by", token.GroupBy); ok {
				return l.phraseTok(start, phrase, token.GroupBy), nil
			}
		}
		if lower == "order" {
			if _, phrase, ok := l.tryPhrase(l.pos, "by", token.OrderBy); ok {
				return l.phraseTok(start, phrase, token.OrderBy), nil
			}
		}
	}

	if op, ok := alwaysReserved[lower]; ok {
		if op == token.Literal {
			return token.Token{Op: token.Literal, Pos: l.posAt(start), Text: text, Lit: literalFor(lower)}, nil
		}
		return token.Token{Op: op, Pos: l.posAt(start), Text: text}, nil
	}
	if stack.InSelect() {
		if op, ok := selectOnlyReserved[lower]; ok {
			return token.Token{Op: op, Pos: l.posAt(start), Text: text}, nil
		}
	}
	return token.Token{Op: token.Name, Pos: l.posAt(start), Text: text}, nil
}

func literalFor(lower string) *value.Value {
	switch lower {
	case "true":
		return value.NewBool(true)
	case "false":
		return value.NewBool(false)
	default:
		return value.NewNull()
	}
}

// tryPhrase attempts to match ` <rest>` (whitespace-separated words) at pos,
// case-insensitively, returning the opcode and the full matched phrase
// length. rest may itself contain a space (e.g. "not null").
func (l *Lexer) tryPhrase(pos int, rest string, op token.Opcode) (token.Opcode, string, bool) {
	words := strings.Fields(rest)
	p := pos
	for _, w := range words {
		for p < len(l.src) && (l.src[p] == ' ' || l.src[p] == '\t') {
			p++
		}
		wlen := len(w)
		if p+wlen > len(l.src) || !strings.EqualFold(l.src[p:p+wlen], w) {
			return 0, "", false
		}
		p += wlen
	}
	return op, l.src[pos:p], true
}

func (l *Lexer) phraseTok(start int, matchedRest string, op token.Opcode) token.Token {
	l.pos += len(matchedRest)
	return token.Token{Op: op, Pos: l.posAt(start), Text: l.src[start:l.pos]}
}

// regexAllowed implements spec.md §4.1 rule 5: a `/` lexes as a regex start
// iff the stack is empty or its top is a token that cannot be immediately
// followed by a division (LIKE, NOT LIKE, `(`, `,`).
func (l *Lexer) regexAllowed(stack StackContext) bool {
	top, ok := stack.TopOpcode()
	if !ok {
		return true
	}
	switch top {
	case token.Like, token.NotLike, token.StartParen, token.Comma:
		return true
	default:
		return false
	}
}

func (l *Lexer) scanRegex(start int) (token.Token, error) {
	l.pos++ // opening /
	var sb strings.Builder
	for l.pos < len(l.src) && l.src[l.pos] != '/' {
		if l.src[l.pos] == '\\' && l.pos+1 < len(l.src) {
			sb.WriteByte(l.src[l.pos])
			l.pos++
			sb.WriteByte(l.src[l.pos])
			l.pos++
			continue
		}
		sb.WriteByte(l.src[l.pos])
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token.Token{}, errs.ErrUnbalanced.New("/")
	}
	l.pos++ // closing /
	var global, icase bool
	for l.pos < len(l.src) && (l.src[l.pos] == 'i' || l.src[l.pos] == 'g') {
		if l.src[l.pos] == 'i' {
			icase = true
		} else {
			global = true
		}
		l.pos++
	}
	return token.Token{Op: token.Regex, Pos: l.posAt(start), Text: sb.String(), Global: global, ICase: icase}, nil
}

// symbol table, longest-match-first by construction (entries are tried in
// decreasing length order below).
var symbols = []struct {
	text string
	op   token.Opcode
}{
	{"===", token.EqStrict}, {"!==", token.NeStrict},
	{"...", token.Ellipsis}, {"=??", token.MaybeAssign},
	{"[]=", token.Append},
	{"==", token.Eq}, {"!=", token.Ne}, {"<=", token.Le}, {">=", token.Ge},
	{"<>", token.ICNe}, {"&&", token.And}, {"||", token.Or}, {"??", token.Coalesce},
	{"<<", token.Shl}, {">>", token.Shr}, {"..", token.DotDot}, {"##", token.Each},
	{"#=", token.NJoin}, {"#<", token.LJoin}, {"#>", token.RJoin},
	{"+", token.Add}, {"-", token.Subtract}, {"*", token.Multiply},
	{"/", token.Divide}, {"%", token.Modulo}, {"&", token.BitAnd},
	{"|", token.BitOr}, {"^", token.BitXor}, {"~", token.BitNot},
	{"!", token.Not}, {"=", token.ICEq}, {"<", token.Lt}, {">", token.Gt},
	{"?", token.Question}, {":", token.Colon}, {",", token.Comma},
	{".", token.Dot}, {"#", token.Group}, {"@", token.Find}, {"$", token.Environ},
	{"(", token.StartParen}, {")", token.EndParen},
	{"[", token.StartArray}, {"]", token.EndArray},
	{"{", token.StartObject}, {"}", token.EndObject},
}

func (l *Lexer) scanOperator(start int, stack StackContext) (token.Token, error) {
	c := l.peekByte()

	// `}` with no matching open brace on the parser's stack lexes as
	// end-of-expression, not an opcode (spec.md §4.1 rule 6). The parser
	// is responsible for tracking brace nesting; here we simply emit
	// EndObject and let the parser decide whether it is unmatched.
	if c == '-' && l.unaryContext(stack) {
		l.pos++
		return token.Token{Op: token.Negate, Pos: l.posAt(start), Text: "-"}, nil
	}
	// A lone `=` may be assignment; `==`, `===` and `=??` are left to the
	// symbol table.
	if c == '=' && l.peekAt(1) != '=' && !strings.HasPrefix(l.src[l.pos:], "=??") && l.assignContext(stack) {
		l.pos++
		return token.Token{Op: token.Assign, Pos: l.posAt(start), Text: "="}, nil
	}

	for _, s := range symbols {
		if strings.HasPrefix(l.src[l.pos:], s.text) {
			l.pos += len(s.text)
			return token.Token{Op: s.op, Pos: l.posAt(start), Text: s.text}, nil
		}
	}
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += size
	if unicode.IsSpace(r) {
		return l.Next(stack)
	}
	return token.Token{}, errs.ErrBadCharacter.New(string(r))
}

// unaryContext implements spec.md §4.1's `-` disambiguation: unary-negate
// iff the stack top is a start-grouping token or an incomplete
// infix/prefix operator; otherwise subtract.
func (l *Lexer) unaryContext(stack StackContext) bool {
	top, ok := stack.TopOpcode()
	if !ok {
		return true
	}
	switch top {
	case token.StartParen, token.StartArray, token.StartObject, token.Comma,
		token.Add, token.Subtract, token.Multiply, token.Divide, token.Modulo,
		token.And, token.Or, token.Not, token.Negate, token.BitNot,
		token.Lt, token.Le, token.Gt, token.Ge, token.Eq, token.Ne,
		token.EqStrict, token.NeStrict, token.Assign, token.Colon,
		token.Question, token.Coalesce, token.Each, token.Group:
		return true
	default:
		return false
	}
}

// assignContext implements spec.md §4.1's `=` disambiguation: assignment
// iff assignment is enabled and the stack top forms an l-value shape.
// Names `this`/`that` are ineligible, enforced by the parser when it
// constructs the l-value (package parser rejects it at reduction time).
func (l *Lexer) assignContext(stack StackContext) bool {
	return stack.AssignEnabled() && stack.TopIsLValue()
}
