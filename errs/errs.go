// Package errs defines the keyed error taxonomy used throughout jsoncalc.
//
// Parse and command failures, interruption, and some lookup failures are
// constructed from the *errors.Kind values below. Error-with-payload nulls
// (value.NewError) carry only a formatted message and a position, and the
// assignment-target errors in package context are plain fmt.Errorf values,
// so neither can be matched by Kind. The key lets callers match on
// error identity (errors.Is-style, via Kind.Is) while the message is
// pre-expanded with printf-style substitution, per spec.md §7.
package errs

import errors "gopkg.in/src-d/go-errors.v1"

// Parse errors. Parsing aborts on the first one. The message names the
// offending token text; no file, line or offset is attached.
var (
	ErrUnexpectedToken  = errors.NewKind("unexpected token %q")
	ErrMissingOperand   = errors.NewKind("missing operand for %q")
	ErrUnbalanced       = errors.NewKind("unbalanced %q")
	ErrBadObjectMember  = errors.NewKind("object member must be name:value, got %q")
	ErrUnknownFunction  = errors.NewKind("unknown function %q")
	ErrTrailingGarbage  = errors.NewKind("unexpected trailing input at %q")
	ErrBadColon         = errors.NewKind("misuse of ':'")
	ErrStackOverflow    = errors.NewKind("expression too deeply nested")
	ErrBadCharacter     = errors.NewKind("bad character %q")
	ErrSelectNotReduced = errors.NewKind("SELECT must be lowered before use as an expression")
)

// Evaluation-time type errors. Returned as error-with-payload null values;
// propagate through most operators and are consumed by ?? and the
// truthiness test of ?:, &&, ||.
var (
	ErrType          = errors.NewKind("type error: %s")
	ErrNotArray      = errors.NewKind("%s is not an array")
	ErrNotObject     = errors.NewKind("%s is not an object")
	ErrUnknownVar    = errors.NewKind("unknown variable %q")
	ErrUnknownMember = errors.NewKind("no member named %q")
	ErrUnknownTable  = errors.NewKind("no default table could be found for SELECT")
	ErrRegex         = errors.NewKind("bad regular expression %q: %s")
)

// Assignment errors, named explicitly in spec.md §7.
var (
	ErrBadLValue     = errors.NewKind("bad assignment target")
	ErrAssignUnknownVar    = errors.NewKind("unknown variable %q")
	ErrAssignUnknownMember = errors.NewKind("unknown member %q")
	ErrNotObjectAssign     = errors.NewKind("%q is not an object")
	ErrNotKey              = errors.NewKind("subscript is not a valid key")
	ErrUnknownSub          = errors.NewKind("no element matches subscript")
	ErrBadSubKey           = errors.NewKind("bad subscript key")
	ErrBadSub              = errors.NewKind("bad subscript")
	ErrConst               = errors.NewKind("cannot assign to const %q")
	ErrAppend              = errors.NewKind("append target is not an array")
)

// Control flow / interruption.
var (
	ErrInterrupted    = errors.NewKind("Interrupted")
	ErrBreakOutside   = errors.NewKind("break outside of loop")
	ErrContinueOutside = errors.NewKind("continue outside of loop")
)

// Command errors carry only their message text; no source position is
// attached, and nothing maps them to a file and line.
var (
	ErrCommand = errors.NewKind("%s")
)
