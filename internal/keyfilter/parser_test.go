package keyfilter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DefaultGroupExpressions(t *testing.T) {
	custom := MustParse("key NOT LIKE '$%' AND key NOT IN ('token', 'distinct_id', 'utm_source')")
	flags := MustParse("key like '$feature/%'")

	testCases := []struct {
		key    string
		custom bool
		flags  bool
	}{
		{key: "$browser", custom: false, flags: false},
		{key: "$feature/my-flag", custom: false, flags: true},
		{key: "purchase_amount", custom: true, flags: false},
		{key: "utm_source", custom: false, flags: false},
		{key: "token", custom: false, flags: false},
		{key: "", custom: true, flags: false},
	}

	for _, tc := range testCases {
		t.Run(tc.key, func(t *testing.T) {
			assert.Equal(t, tc.custom, custom.Eval(tc.key), "custom")
			assert.Equal(t, tc.flags, flags.Eval(tc.key), "feature_flags")
		})
	}
}

func TestParse_Structure(t *testing.T) {
	expr, err := Parse("key NOT LIKE '$%' AND key NOT IN ('a', 'b')")
	require.NoError(t, err)

	and, ok := expr.(And)
	require.True(t, ok, "expected And, got %T", expr)
	require.Len(t, and.Operands, 2)
	assert.Equal(t, Like{Pattern: "$%", Negated: true}, and.Operands[0])
	assert.Equal(t, In{Values: []string{"a", "b"}, Negated: true}, and.Operands[1])
}

func TestParse_Precedence(t *testing.T) {
	// AND binds tighter than OR
	expr := MustParse("key = 'a' OR key = 'b' AND key = 'c'")
	or, ok := expr.(Or)
	require.True(t, ok, "expected Or, got %T", expr)
	require.Len(t, or.Operands, 2)
	_, isAnd := or.Operands[1].(And)
	assert.True(t, isAnd)

	assert.True(t, expr.Eval("a"))
	assert.False(t, expr.Eval("b"))
}

func TestParse_Operators(t *testing.T) {
	testCases := []struct {
		expr     string
		key      string
		expected bool
	}{
		{expr: "key = 'x'", key: "x", expected: true},
		{expr: "key == 'x'", key: "x", expected: true},
		{expr: "key != 'x'", key: "x", expected: false},
		{expr: "key <> 'x'", key: "y", expected: true},
		{expr: "key IN ('x', 'y')", key: "y", expected: true},
		{expr: "key in ('x')", key: "z", expected: false},
		{expr: "key ILIKE 'ABC%'", key: "abcdef", expected: true},
		{expr: "key NOT ILIKE 'ABC%'", key: "abcdef", expected: false},
		{expr: "startsWith(key, '$')", key: "$pageview", expected: true},
		{expr: "endsWith(key, '_id')", key: "user_id", expected: true},
		{expr: "endsWith(key, '_id')", key: "id", expected: false},
		{expr: "NOT key = 'x'", key: "x", expected: false},
		{expr: "NOT (key = 'x' OR key = 'y')", key: "z", expected: true},
		{expr: "1", key: "anything", expected: true},
		{expr: "0", key: "anything", expected: false},
		{expr: "TRUE AND key LIKE '%'", key: "", expected: true},
		{expr: "key = 'it''s'", key: "it's", expected: true},
		{expr: `key = 'it\'s'`, key: "it's", expected: true},
		{expr: `key = 'a\\b'`, key: `a\b`, expected: true},
		{expr: "key = 'ключ'", key: "ключ", expected: true},
	}

	for _, tc := range testCases {
		t.Run(tc.expr, func(t *testing.T) {
			expr, err := Parse(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, expr.Eval(tc.key))
		})
	}
}

func TestParse_Errors(t *testing.T) {
	testCases := []string{
		"",
		"key",
		"key LIKE",
		"key LIKE 5",
		"key IN ()",
		"key IN ('a' 'b')",
		"key = 'unterminated",
		"value = 'x'",
		"startsWith(value, 'x')",
		"lower(key) = 'x'",
		"(key = 'x'",
		"key = 'x')",
		"key = 'x' AND",
		"2",
		"key ~ 'x'",
		"key LIKE 'x' extra",
		`key LIKE 'a\\'`,
		`key NOT ILIKE '%\\'`,
	}

	for _, input := range testCases {
		t.Run(input, func(t *testing.T) {
			expr, err := Parse(input)
			require.Error(t, err)
			assert.Nil(t, expr)

			var syntaxErr *SyntaxError
			assert.True(t, errors.As(err, &syntaxErr), "expected *SyntaxError, got %T", err)
		})
	}
}

func TestParse_ErrorPositions(t *testing.T) {
	testCases := []struct {
		input   string
		pos     int
		message string
	}{
		{input: "key ~ 'x'", pos: 4, message: `unexpected character '~'`},
		{input: "key = 'open", pos: 6, message: "unterminated string literal"},
		{input: "key = 'x'  OR", pos: 13, message: "unexpected end of input"},
		{input: `key LIKE 'x\\'`, pos: 9, message: "LIKE pattern ends with an unescaped backslash"},
		{input: "key\tLIKE\n'x' AND\tvalue = 'y'", pos: 17, message: `unexpected "value"`},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			_, err := Parse(tc.input)
			var syntaxErr *SyntaxError
			require.True(t, errors.As(err, &syntaxErr), "expected *SyntaxError, got %v", err)
			assert.Equal(t, tc.pos, syntaxErr.Pos)
			assert.Equal(t, tc.message, syntaxErr.Message)
		})
	}
}

func TestParse_LikeEscapes(t *testing.T) {
	expr, err := Parse(`key LIKE 'a\\\\'`)
	require.NoError(t, err)
	assert.Equal(t, Like{Pattern: `a\\`}, expr)
	assert.True(t, expr.Eval(`a\`))

	expr, err = Parse(`key LIKE '100\%'`)
	require.NoError(t, err)
	assert.True(t, expr.Eval("100%"))
	assert.False(t, expr.Eval("1000"))
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("key LIKE") })
}

func TestString_RoundTrip(t *testing.T) {
	inputs := []string{
		"key NOT LIKE '$%' AND key NOT IN ('token', 'distinct_id')",
		"key LIKE '$feature/%'",
		"(key = 'a' OR key != 'b') AND NOT startsWith(key, '$')",
		"key ILIKE 'x\\\\_y' OR endsWith(key, 'it\\'s')",
		"NOT (key IN ('a') AND key NOT ILIKE '%b%')",
		"1",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			first := MustParse(input)
			second, err := Parse(first.String())
			require.NoError(t, err, "rendered: %s", first.String())
			assert.Equal(t, first, second)
		})
	}
}
