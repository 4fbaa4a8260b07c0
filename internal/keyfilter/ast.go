package keyfilter

import (
	"fmt"
	"strings"
)

// Expr is a parsed filter expression.
//
// This is a sealed interface: the marker method keeps implementations inside
// this package.
type Expr interface {
	// Eval reports whether key satisfies the expression.
	Eval(key string) bool
	// String renders the expression back to ClickHouse syntax.
	String() string

	exprNode()
}

// And is true when every operand is true.
type And struct {
	Operands []Expr
}

// Or is true when any operand is true.
type Or struct {
	Operands []Expr
}

// Not negates its operand.
type Not struct {
	Operand Expr
}

// Like matches key against a LIKE pattern.
type Like struct {
	Pattern         string
	CaseInsensitive bool // ILIKE
	Negated         bool
}

// In tests key for membership in a literal set.
type In struct {
	Values  []string
	Negated bool
}

// Equals compares key with a literal.
type Equals struct {
	Value   string
	Negated bool
}

// PrefixSuffix is startsWith(key, s) or endsWith(key, s).
type PrefixSuffix struct {
	Value  string
	Suffix bool
}

// Const is a literal boolean (1, 0, true, false).
type Const struct {
	Value bool
}

func (And) exprNode()          {}
func (Or) exprNode()           {}
func (Not) exprNode()          {}
func (Like) exprNode()         {}
func (In) exprNode()           {}
func (Equals) exprNode()       {}
func (PrefixSuffix) exprNode() {}
func (Const) exprNode()        {}

// Eval implements Expr.
func (e And) Eval(key string) bool {
	for _, op := range e.Operands {
		if !op.Eval(key) {
			return false
		}
	}
	return true
}

// Eval implements Expr.
func (e Or) Eval(key string) bool {
	for _, op := range e.Operands {
		if op.Eval(key) {
			return true
		}
	}
	return false
}

// Eval implements Expr.
func (e Not) Eval(key string) bool {
	return !e.Operand.Eval(key)
}

// Eval implements Expr.
func (e Like) Eval(key string) bool {
	return matchLike(key, e.Pattern, e.CaseInsensitive) != e.Negated
}

// Eval implements Expr.
func (e In) Eval(key string) bool {
	found := false
	for _, v := range e.Values {
		if v == key {
			found = true
			break
		}
	}
	return found != e.Negated
}

// Eval implements Expr.
func (e Equals) Eval(key string) bool {
	return (key == e.Value) != e.Negated
}

// Eval implements Expr.
func (e PrefixSuffix) Eval(key string) bool {
	if e.Suffix {
		return strings.HasSuffix(key, e.Value)
	}
	return strings.HasPrefix(key, e.Value)
}

// Eval implements Expr.
func (e Const) Eval(string) bool {
	return e.Value
}

func (e And) String() string { return joinOperands(e.Operands, " AND ") }
func (e Or) String() string  { return joinOperands(e.Operands, " OR ") }
func (e Not) String() string { return "NOT " + wrap(e.Operand) }

func (e Like) String() string {
	op := "LIKE"
	if e.CaseInsensitive {
		op = "ILIKE"
	}
	if e.Negated {
		op = "NOT " + op
	}
	return fmt.Sprintf("key %s %s", op, quote(e.Pattern))
}

func (e In) String() string {
	quoted := make([]string, len(e.Values))
	for i, v := range e.Values {
		quoted[i] = quote(v)
	}
	op := "IN"
	if e.Negated {
		op = "NOT IN"
	}
	return fmt.Sprintf("key %s (%s)", op, strings.Join(quoted, ", "))
}

func (e Equals) String() string {
	if e.Negated {
		return "key != " + quote(e.Value)
	}
	return "key = " + quote(e.Value)
}

func (e PrefixSuffix) String() string {
	if e.Suffix {
		return fmt.Sprintf("endsWith(key, %s)", quote(e.Value))
	}
	return fmt.Sprintf("startsWith(key, %s)", quote(e.Value))
}

func (e Const) String() string {
	if e.Value {
		return "1"
	}
	return "0"
}

func joinOperands(ops []Expr, sep string) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = wrap(op)
	}
	return strings.Join(parts, sep)
}

// wrap parenthesizes compound operands so String output re-parses to the
// same tree.
func wrap(e Expr) string {
	switch e.(type) {
	case And, Or:
		return "(" + e.String() + ")"
	default:
		return e.String()
	}
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// quote renders s as a ClickHouse string literal.
func quote(s string) string {
	return "'" + quoteReplacer.Replace(s) + "'"
}
