package keyfilter

import (
	"fmt"
	"strings"

	"github.com/viant/parsly"
)

// KeyIdentifier is the lambda parameter filters are written against.
const KeyIdentifier = "key"

// Parse parses a filter expression.
// Returns a *SyntaxError if the input is outside the supported fragment.
func Parse(input string) (Expr, error) {
	p := &parser{cursor: parsly.NewCursor("", []byte(input), 0)}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if tok.code != parsly.EOF {
		return nil, p.errorf(tok, "unexpected %s after expression", tok.describe())
	}
	return expr, nil
}

// MustParse is like Parse but panics on error.
func MustParse(input string) Expr {
	expr, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return expr
}

type parser struct {
	cursor *parsly.Cursor
}

// peek returns the next token without consuming it.
func (p *parser) peek() (token, error) {
	pos := p.cursor.Pos
	tok, err := scan(p.cursor)
	p.cursor.Pos = pos
	return tok, err
}

func (p *parser) next() (token, error) {
	return scan(p.cursor)
}

func (p *parser) errorf(tok token, format string, args ...any) *SyntaxError {
	return &SyntaxError{Pos: tok.pos, Message: fmt.Sprintf(format, args...)}
}

// isKeyword matches an identifier token case-insensitively.
func isKeyword(tok token, word string) bool {
	return tok.code == identifierCode && strings.EqualFold(tok.text, word)
}

// acceptKeyword consumes the next token if it is word.
func (p *parser) acceptKeyword(word string) (bool, error) {
	tok, err := p.peek()
	if err != nil || !isKeyword(tok, word) {
		return false, err
	}
	_, err = p.next()
	return true, err
}

func (p *parser) expect(code int, what string) (token, error) {
	tok, err := p.next()
	if err != nil {
		return tok, err
	}
	if tok.code != code {
		return tok, p.errorf(tok, "expected %s, got %s", what, tok.describe())
	}
	return tok, nil
}

func (p *parser) parseOr() (Expr, error) {
	return p.parseChain("OR", p.parseAnd, func(operands []Expr) Expr { return Or{Operands: operands} })
}

func (p *parser) parseAnd() (Expr, error) {
	return p.parseChain("AND", p.parseNot, func(operands []Expr) Expr { return And{Operands: operands} })
}

// parseChain parses operand (keyword operand)* and folds more than one
// operand with join.
func (p *parser) parseChain(keyword string, operand func() (Expr, error), join func([]Expr) Expr) (Expr, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	operands := []Expr{left}
	for {
		ok, err := p.acceptKeyword(keyword)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		right, err := operand()
		if err != nil {
			return nil, err
		}
		operands = append(operands, right)
	}
	if len(operands) == 1 {
		return left, nil
	}
	return join(operands), nil
}

func (p *parser) parseNot() (Expr, error) {
	ok, err := p.acceptKeyword("NOT")
	if err != nil {
		return nil, err
	}
	if ok {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{Operand: operand}, nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (Expr, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}

	switch {
	case tok.code == lParenCode:
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(rParenCode, "')'"); err != nil {
			return nil, err
		}
		return expr, nil

	case tok.code == numberCode:
		switch tok.text {
		case "1":
			return Const{Value: true}, nil
		case "0":
			return Const{Value: false}, nil
		}
		return nil, p.errorf(tok, "only 0 and 1 are supported as numeric literals")

	case isKeyword(tok, "true"), isKeyword(tok, "false"):
		return Const{Value: strings.EqualFold(tok.text, "true")}, nil

	case tok.code == identifierCode && (tok.text == "startsWith" || tok.text == "endsWith"):
		return p.parseCall(tok)

	case tok.code == identifierCode && tok.text == KeyIdentifier:
		return p.parseComparison()
	}

	return nil, p.errorf(tok, "unexpected %s", tok.describe())
}

func (p *parser) parseCall(fn token) (Expr, error) {
	if _, err := p.expect(lParenCode, "'('"); err != nil {
		return nil, err
	}
	arg, err := p.expect(identifierCode, KeyIdentifier)
	if err != nil {
		return nil, err
	}
	if arg.text != KeyIdentifier {
		return nil, p.errorf(arg, "%s: first argument must be %s", fn.text, KeyIdentifier)
	}
	if _, err := p.expect(commaCode, "','"); err != nil {
		return nil, err
	}
	lit, err := p.expect(stringCode, "string literal")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(rParenCode, "')'"); err != nil {
		return nil, err
	}
	return PrefixSuffix{Value: lit.text, Suffix: fn.text == "endsWith"}, nil
}

// parseComparison parses what follows `key`.
func (p *parser) parseComparison() (Expr, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}

	if tok.code == operatorCode {
		lit, err := p.expect(stringCode, "string literal")
		if err != nil {
			return nil, err
		}
		return Equals{Value: lit.text, Negated: tok.text == "!=" || tok.text == "<>"}, nil
	}

	negated := false
	if isKeyword(tok, "NOT") {
		negated = true
		if tok, err = p.next(); err != nil {
			return nil, err
		}
	}

	switch {
	case isKeyword(tok, "LIKE"), isKeyword(tok, "ILIKE"):
		lit, err := p.expect(stringCode, "string literal")
		if err != nil {
			return nil, err
		}
		if trailingEscape(lit.text) {
			return nil, p.errorf(lit, "LIKE pattern ends with an unescaped backslash")
		}
		return Like{
			Pattern:         lit.text,
			CaseInsensitive: isKeyword(tok, "ILIKE"),
			Negated:         negated,
		}, nil

	case isKeyword(tok, "IN"):
		values, err := p.parseStringList()
		if err != nil {
			return nil, err
		}
		return In{Values: values, Negated: negated}, nil
	}

	return nil, p.errorf(tok, "expected comparison after %s, got %s", KeyIdentifier, tok.describe())
}

func (p *parser) parseStringList() ([]string, error) {
	if _, err := p.expect(lParenCode, "'('"); err != nil {
		return nil, err
	}
	var values []string
	for {
		lit, err := p.expect(stringCode, "string literal")
		if err != nil {
			return nil, err
		}
		values = append(values, lit.text)

		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.code == rParenCode {
			return values, nil
		}
		if tok.code != commaCode {
			return nil, p.errorf(tok, "expected ',' or ')', got %s", tok.describe())
		}
	}
}
