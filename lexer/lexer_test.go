package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize_Operators(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []TokenType
	}{
		{
			name:     "arithmetic and modulo",
			input:    "1 + 2 % 3",
			expected: []TokenType{Number, BinaryOperator, Number, Modulo, Number},
		},
		{
			name:     "spread vs range vs dot",
			input:    "...a ..b .c",
			expected: []TokenType{Spread, Identifier, Range, Identifier, Dot, Identifier},
		},
		{
			name:     "increment and decrement distinct from binary",
			input:    "x++ y-- z+1",
			expected: []TokenType{Identifier, Increment, Identifier, Decrement, Identifier, BinaryOperator, Number},
		},
		{
			name:     "comparison and logical operators",
			input:    "a == b != c && d || !e",
			expected: []TokenType{Identifier, ComparisonOperator, Identifier, ComparisonOperator, Identifier, LogicalOperator, Identifier, LogicalOperator, Not, Identifier},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tokens := Tokenize(tc.input)
			got := make([]TokenType, len(tokens))
			for i, tok := range tokens {
				got[i] = tok.Type
			}
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestTokenize_KeywordsAndCompoundForRange(t *testing.T) {
	tokens := Tokenize("for range (x, xs) { }")
	assert.Equal(t, ForRange, tokens[0].Type)
	assert.Equal(t, OpenParen, tokens[1].Type)
}

func TestTokenize_StringAndComment(t *testing.T) {
	tokens := Tokenize(`"hello world" // a comment
42`)
	assert.Equal(t, String, tokens[0].Type)
	assert.Equal(t, "hello world", tokens[0].Value)
	assert.Equal(t, Number, tokens[1].Type)
	assert.Equal(t, "42", tokens[1].Value)
}

func TestTokenize_NumberStopsBeforeRangeOperator(t *testing.T) {
	tokens := Tokenize("1..5")
	assert.Equal(t, Number, tokens[0].Type)
	assert.Equal(t, "1", tokens[0].Value)
	assert.Equal(t, Range, tokens[1].Type)
	assert.Equal(t, Number, tokens[2].Type)
	assert.Equal(t, "5", tokens[2].Value)
}
