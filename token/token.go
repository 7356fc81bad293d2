// Package token defines the closed opcode set emitted by the lexer and
// carried by the parser's expression tree, per spec.md §4.1 and the
// "Opcode set" enumeration in §6.
package token

import "github.com/kirkendall/jsoncalc/value"

// Opcode is a closed enumeration; every token the lexer can produce, and
// every expression-tree node opcode the parser can build, is one of these.
type Opcode int

const (
	Invalid Opcode = iota

	// Literals and primaries.
	Literal // numbers, strings, true/false/null carried as value.Value
	Name
	Regex

	// Grouping.
	StartParen
	EndParen
	StartArray
	EndArray
	StartObject
	EndObject

	// Constructors, produced by reduction.
	Array
	Object
	FuncCall
	Aggregate // AG wrapper node from the aggregate-discovery pass
	Select    // only present before SQL lowering; never in a reduced tree

	// Punctuation / structural.
	Comma
	Dot
	DotDot   // ..
	Ellipsis // ...
	Question
	Colon
	Subscript
	MaybeMember // ?.

	// Group/each/join operators.
	Each  // ##
	Group // #
	NJoin // #=
	LJoin // #<
	RJoin // #>
	Find  // @

	// Nullish / boolean.
	Coalesce // ??
	Negate   // unary -
	IsNull
	IsNotNull
	Not
	And
	Or
	BitNot
	BitAnd
	BitOr
	BitXor
	Shl
	Shr

	// Arithmetic.
	Add
	Subtract
	Multiply
	Divide
	Modulo

	// Comparison.
	Lt
	Le
	Eq
	Ne
	Ge
	Gt
	EqStrict
	NeStrict
	ICEq // case-insensitive =
	ICNe // case-insensitive <>
	Between
	Like
	NotLike
	In
	NotIn

	// Misc.
	As
	Assign
	Append
	MaybeAssign
	Environ

	// SQL keyword markers (only meaningful while a SELECT is on the stack;
	// never appear as opcodes of a reduced tree -- lowered away by
	// package sqllower).
	SelectKw
	Distinct
	From
	Where
	GroupBy
	Having
	OrderBy
	Descending
	Limit
	Values
)

var names = map[Opcode]string{
	Invalid: "INVALID", Literal: "LITERAL", Name: "NAME", Regex: "REGEX",
	StartParen: "(", EndParen: ")", StartArray: "[", EndArray: "]",
	StartObject: "{", EndObject: "}", Array: "ARRAY", Object: "OBJECT",
	FuncCall: "CALL", Aggregate: "AG", Select: "SELECT",
	Comma: ",", Dot: ".", DotDot: "..", Ellipsis: "...", Question: "?",
	Colon: ":", Subscript: "SUBSCRIPT", MaybeMember: "?.",
	Each: "##", Group: "#", NJoin: "#=", LJoin: "#<", RJoin: "#>", Find: "@",
	Coalesce: "??", Negate: "NEG", IsNull: "IS NULL", IsNotNull: "IS NOT NULL",
	Not: "!", And: "&&", Or: "||", BitNot: "~", BitAnd: "&", BitOr: "|",
	BitXor: "^", Shl: "<<", Shr: ">>",
	Add: "+", Subtract: "-", Multiply: "*", Divide: "/", Modulo: "%",
	Lt: "<", Le: "<=", Eq: "==", Ne: "!=", Ge: ">=", Gt: ">",
	EqStrict: "===", NeStrict: "!==", ICEq: "=", ICNe: "<>", Between: "BETWEEN",
	Like: "LIKE", NotLike: "NOT LIKE", In: "IN", NotIn: "NOT IN",
	As: "AS", Assign: "=", Append: "[]=", MaybeAssign: "=??", Environ: "$",
	SelectKw: "SELECT", Distinct: "DISTINCT", From: "FROM", Where: "WHERE",
	GroupBy: "GROUP BY", Having: "HAVING", OrderBy: "ORDER BY",
	Descending: "DESC", Limit: "LIMIT", Values: "VALUES",
}

func (op Opcode) String() string {
	if s, ok := names[op]; ok {
		return s
	}
	return "OP?"
}

// Token is one lexeme: an opcode, a pointer into the original source, and a
// byte length, per spec.md §4.1. Literal tokens additionally carry the
// parsed value; Name tokens carry their text.
type Token struct {
	Op     Opcode
	Pos    value.Pos
	Text   string // source slice for this token (used for error reporting
	        // and, for anonymous SELECT/object-generator columns, as the
	        // synthesized key)
	Lit    *value.Value // set when Op == Literal
	Global bool         // set when Op == Regex and the `g` flag was present
	ICase  bool         // set when Op == Regex and the `i` flag was present
}
