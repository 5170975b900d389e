package lexer

import "testing"

func tokenTypes(input string) []TokenType {
	l := New(input)
	var types []TokenType
	for {
		tok := l.Next()
		types = append(types, tok.Type)
		if tok.Type == TokenEOF {
			return types
		}
	}
}

func TestTokenizesKeywordsAndIdentifiers(t *testing.T) {
	types := tokenTypes("var x = 1")
	want := []TokenType{TokenVar, TokenIdentifier, TokenAssign, TokenNumber, TokenEOF}
	if len(types) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(types), len(want), types)
	}
	for i, tt := range want {
		if types[i] != tt {
			t.Errorf("token %d: got %v, want %v", i, types[i], tt)
		}
	}
}

func TestTokenizesClassHeader(t *testing.T) {
	types := tokenTypes("class Dog is Object")
	want := []TokenType{TokenClass, TokenIdentifier, TokenIs, TokenIdentifier, TokenEOF}
	for i, tt := range want {
		if i >= len(types) || types[i] != tt {
			t.Fatalf("got %v, want prefix %v", types, want)
		}
	}
}

func TestTokenizesString(t *testing.T) {
	l := New(`"hello"`)
	tok := l.Next()
	if tok.Type != TokenString {
		t.Fatalf("expected TokenString, got %v", tok.Type)
	}
	if tok.Literal != "hello" {
		t.Errorf("expected literal %q, got %q", "hello", tok.Literal)
	}
}

func TestTokenizesNumber(t *testing.T) {
	l := New("3.14")
	tok := l.Next()
	if tok.Type != TokenNumber {
		t.Fatalf("expected TokenNumber, got %v", tok.Type)
	}
	if tok.Literal != "3.14" {
		t.Errorf("expected literal %q, got %q", "3.14", tok.Literal)
	}
}

func TestTokenizesOperators(t *testing.T) {
	types := tokenTypes("== != <= >= ...")
	want := []TokenType{TokenEq, TokenNotEq, TokenLessEq, TokenGreaterEq, TokenDotDotDot, TokenEOF}
	if len(types) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(types), len(want), types)
	}
	for i, tt := range want {
		if types[i] != tt {
			t.Errorf("token %d: got %v, want %v", i, types[i], tt)
		}
	}
}

func TestIllegalCharacterReported(t *testing.T) {
	l := New("$")
	tok := l.Next()
	if tok.Type != TokenIllegal {
		t.Errorf("expected TokenIllegal for '$', got %v", tok.Type)
	}
}
