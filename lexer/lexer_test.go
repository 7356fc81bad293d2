package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kirkendall/jsoncalc/token"
)

// flatStack is a StackContext stub for tests that don't need the parser's
// real disambiguation stack: every query answers as if at the start of a
// fresh top-level expression.
type flatStack struct {
	inSelect bool
	lvalue   bool
}

func (s flatStack) TopOpcode() (token.Opcode, bool) { return token.Invalid, false }
func (s flatStack) InSelect() bool                  { return s.inSelect }
func (s flatStack) AssignEnabled() bool             { return true }
func (s flatStack) TopIsLValue() bool               { return s.lvalue }

func scanAll(t *testing.T, src string, stack StackContext) []token.Token {
	t.Helper()
	l := New(src, "test")
	var toks []token.Token
	for {
		tok, err := l.Next(stack)
		require.NoError(t, err)
		if tok.Op == token.Invalid {
			break
		}
		toks = append(toks, tok)
	}
	return toks
}

func TestScanNumberLiterals(t *testing.T) {
	require := require.New(t)
	toks := scanAll(t, "1 1.5 0x1F 0o17 0b101", flatStack{})
	require.Len(toks, 5)
	for _, tok := range toks {
		require.Equal(token.Literal, tok.Op)
	}
	i, ok := toks[2].Lit.Int()
	require.True(ok)
	require.Equal(int64(31), i)
}

func TestScanStringEscapes(t *testing.T) {
	require := require.New(t)
	toks := scanAll(t, `"a\nb"`, flatStack{})
	require.Len(toks, 1)
	require.Equal("a\nb", toks[0].Lit.ToString())
}

func TestScanKeywordsAndOperators(t *testing.T) {
	require := require.New(t)
	toks := scanAll(t, "a and b or not c", flatStack{})
	ops := make([]token.Opcode, len(toks))
	for i, tok := range toks {
		ops[i] = tok.Op
	}
	require.Equal([]token.Opcode{token.Name, token.And, token.Name, token.Or, token.Not, token.Name}, ops)
}

func TestSelectOnlyKeywordsReservedInSelect(t *testing.T) {
	require := require.New(t)
	toks := scanAll(t, "from", flatStack{inSelect: true})
	require.Equal(token.From, toks[0].Op)

	toks = scanAll(t, "from", flatStack{inSelect: false})
	require.Equal(token.Name, toks[0].Op, "`from` is an ordinary identifier outside a SELECT")
}

func TestLineCommentSkipped(t *testing.T) {
	require := require.New(t)
	toks := scanAll(t, "1 // trailing comment\n+ 2", flatStack{})
	require.Len(toks, 3)
	require.Equal(token.Literal, toks[0].Op)
	require.Equal(token.Add, toks[1].Op)
}

func TestMultiplyOperatorScans(t *testing.T) {
	require := require.New(t)
	toks := scanAll(t, "*", flatStack{})
	require.Len(toks, 1)
	require.Equal(token.Multiply, toks[0].Op)
}
