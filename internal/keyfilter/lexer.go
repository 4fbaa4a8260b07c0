package keyfilter

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/viant/parsly"
	"github.com/viant/parsly/matcher"
)

const (
	whitespaceCode = iota
	identifierCode
	stringCode
	numberCode
	lParenCode
	rParenCode
	commaCode
	operatorCode // = == != <>
)

var (
	whitespaceToken = parsly.NewToken(whitespaceCode, "Whitespace", matcher.NewWhiteSpace())
	identifierToken = parsly.NewToken(identifierCode, "Identifier", &identifierMatch{})
	stringToken     = parsly.NewToken(stringCode, "String", matcher.NewBlock('\'', '\'', '\\'))
	numberToken     = parsly.NewToken(numberCode, "Number", matcher.NewNumber())
	lParenToken     = parsly.NewToken(lParenCode, "(", matcher.NewByte('('))
	rParenToken     = parsly.NewToken(rParenCode, ")", matcher.NewByte(')'))
	commaToken      = parsly.NewToken(commaCode, ",", matcher.NewByte(','))
	operatorToken   = parsly.NewToken(operatorCode, "Operator", matcher.NewFragments(
		[]byte("=="), []byte("!="), []byte("<>"), []byte("=")))
)

var anyToken = []*parsly.Token{
	lParenToken, rParenToken, commaToken, stringToken, operatorToken, numberToken, identifierToken,
}

// identifierMatch matches a letter or underscore followed by letters,
// digits and underscores.
type identifierMatch struct{}

func (i *identifierMatch) Match(cursor *parsly.Cursor) int {
	pos := cursor.Pos
	for pos < cursor.InputSize {
		r, size := utf8.DecodeRune(cursor.Input[pos:])
		if r != '_' && !unicode.IsLetter(r) && (pos == cursor.Pos || !unicode.IsDigit(r)) {
			break
		}
		pos += size
	}
	return pos - cursor.Pos
}

type token struct {
	code int
	text string // raw identifier/operator, or decoded string literal
	pos  int    // byte offset in the input
}

func (t token) describe() string {
	if t.code == parsly.EOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.text)
}

// SyntaxError reports a malformed filter expression.
type SyntaxError struct {
	Pos     int
	Message string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Message)
}

// scan matches the next token after optional whitespace.
func scan(cursor *parsly.Cursor) (token, error) {
	cursor.MatchOne(whitespaceToken)
	start := cursor.Pos
	if start >= cursor.InputSize {
		return token{code: parsly.EOF, pos: start}, nil
	}

	matched := cursor.MatchAny(anyToken...)
	switch matched.Code {
	case parsly.EOF:
		return token{code: parsly.EOF, pos: start}, nil
	case parsly.Invalid:
		cursor.Pos = start
		if cursor.Input[start] == '\'' {
			return token{}, &SyntaxError{Pos: start, Message: "unterminated string literal"}
		}
		r, _ := utf8.DecodeRune(cursor.Input[start:])
		return token{}, &SyntaxError{Pos: start, Message: fmt.Sprintf("unexpected character %q", r)}
	case stringCode:
		return token{code: stringCode, text: stringLiteral(cursor, matched.Text(cursor)), pos: start}, nil
	}
	return token{code: matched.Code, text: matched.Text(cursor), pos: start}, nil
}

// stringLiteral decodes a quoted block. A quote directly following the
// closing quote continues the literal, so 'it''s' reads as it's.
func stringLiteral(cursor *parsly.Cursor, block string) string {
	var b strings.Builder
	b.WriteString(unquote(block))
	for cursor.Pos < cursor.InputSize && cursor.Input[cursor.Pos] == '\'' {
		matched := cursor.MatchOne(stringToken)
		if matched.Code != stringCode {
			break
		}
		b.WriteByte('\'')
		b.WriteString(unquote(matched.Text(cursor)))
	}
	return b.String()
}

// unquote strips the surrounding quotes and resolves backslash escapes.
func unquote(block string) string {
	body := block[1 : len(block)-1]
	if !strings.ContainsRune(body, '\\') {
		return body
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) {
			i++
			b.WriteString(unescape(body[i]))
			continue
		}
		b.WriteByte(body[i])
	}
	return b.String()
}

// unescape maps the character after a backslash to its value.
// Unknown escapes keep the backslash, so LIKE patterns such as '\%' survive
// to the pattern matcher intact.
func unescape(c byte) string {
	switch c {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case '0':
		return "\x00"
	case '\\':
		return "\\"
	case '\'':
		return "'"
	default:
		return "\\" + string(c)
	}
}
