// Package parser implements the tokenizer and recursive-descent parser
// for Loom source files.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/everydev1618/goloom/script"
)

// TokenType identifies the type of a lexer token.
type TokenType int

const (
	// Keywords
	TokAgent TokenType = iota
	TokTool
	TokSchema
	TokEnum
	TokLet
	TokReturn
	TokIf
	TokElse
	TokFn
	TokTrue
	TokFalse
	TokNull

	// Literals
	TokNumberLit
	TokStringLit

	// Identifiers
	TokIdent

	// Punctuation
	TokLBrace   // {
	TokRBrace   // }
	TokLBracket // [
	TokRBracket // ]
	TokLParen   // (
	TokRParen   // )
	TokColon    // :
	TokComma    // ,
	TokDotDot   // ..
	TokDot      // .
	TokEquals   // =

	// Operators
	TokEqEq    // ==
	TokBangEq  // !=
	TokLtEq    // <=
	TokGtEq    // >=
	TokLt      // <
	TokGt      // >
	TokPlus    // +
	TokMinus   // -
	TokStar    // *
	TokSlash   // /
	TokPercent // %
	TokAndAnd  // &&
	TokOrOr    // ||
	TokBang    // !

	// Special
	TokEOF
)

// interpMarker stands in for an interpolation hole inside a string
// literal's processed text; the hole's source is kept in Token.Exprs.
const interpMarker = "\x00"

// Token is a single lexer token.
type Token struct {
	Type  TokenType
	Value string
	// Exprs holds the raw source of each interpolation hole of a string
	// literal, in order.
	Exprs []string
	Pos   script.Pos
}

var keywords = map[string]TokenType{
	"agent":  TokAgent,
	"tool":   TokTool,
	"schema": TokSchema,
	"enum":   TokEnum,
	"let":    TokLet,
	"return": TokReturn,
	"if":     TokIf,
	"else":   TokElse,
	"fn":     TokFn,
	"true":   TokTrue,
	"false":  TokFalse,
	"null":   TokNull,
}

// SyntaxError is a lexing or parsing failure with a source position.
type SyntaxError struct {
	File    string
	Pos     script.Pos
	Message string
}

func (e *SyntaxError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Pos.Line, e.Pos.Col, e.Message)
	}
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Col, e.Message)
}

type scanner struct {
	source   string
	filename string
	pos      int
	line     int
	col      int
}

func newScanner(source, filename string) *scanner {
	return &scanner{
		source:   source,
		filename: filename,
		line:     1,
		col:      1,
	}
}

func (s *scanner) atEnd() bool {
	return s.pos >= len(s.source)
}

func (s *scanner) peek() byte {
	if s.atEnd() {
		return 0
	}
	return s.source[s.pos]
}

func (s *scanner) peekAt(offset int) byte {
	p := s.pos + offset
	if p >= len(s.source) {
		return 0
	}
	return s.source[p]
}

func (s *scanner) advance() byte {
	ch := s.source[s.pos]
	s.pos++
	if ch == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return ch
}

func (s *scanner) here() script.Pos {
	return script.Pos{Line: s.line, Col: s.col}
}

func (s *scanner) errorf(pos script.Pos, format string, args ...any) error {
	return &SyntaxError{File: s.filename, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func (s *scanner) skipWhitespaceAndComments() {
	for !s.atEnd() {
		ch := s.peek()
		if ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' {
			s.advance()
		} else if ch == '#' {
			for !s.atEnd() && s.peek() != '\n' {
				s.advance()
			}
		} else {
			break
		}
	}
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isAlphaNumeric(ch byte) bool {
	return isAlpha(ch) || isDigit(ch)
}

// scanString scans a double-quoted string, processing escapes and
// extracting {expr} interpolation holes.
func (s *scanner) scanString() (Token, error) {
	start := s.here()
	s.advance() // consume opening "

	var buf strings.Builder
	var exprs []string
	for !s.atEnd() {
		ch := s.peek()
		switch {
		case ch == '"':
			s.advance()
			return Token{Type: TokStringLit, Value: buf.String(), Exprs: exprs, Pos: start}, nil
		case ch == '\\':
			s.advance()
			if s.atEnd() {
				return Token{}, s.errorf(start, "unterminated string escape")
			}
			esc := s.advance()
			switch esc {
			case '"':
				buf.WriteByte('"')
			case '\\':
				buf.WriteByte('\\')
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case '{':
				buf.WriteByte('{')
			case '}':
				buf.WriteByte('}')
			default:
				return Token{}, s.errorf(start, "invalid escape character: \\%c", esc)
			}
		case ch == '{':
			s.advance()
			src, err := s.scanInterpolation(start)
			if err != nil {
				return Token{}, err
			}
			exprs = append(exprs, src)
			buf.WriteString(interpMarker)
		case ch == '\n':
			return Token{}, s.errorf(start, "unterminated string literal")
		default:
			r, size := utf8.DecodeRuneInString(s.source[s.pos:])
			if r == utf8.RuneError && size == 1 {
				return Token{}, s.errorf(start, "invalid UTF-8 character in string")
			}
			buf.WriteRune(r)
			for i := 0; i < size; i++ {
				s.advance()
			}
		}
	}
	return Token{}, s.errorf(start, "unterminated string literal")
}

// scanInterpolation collects the source text of an {expr} hole up to its
// matching close brace.
func (s *scanner) scanInterpolation(start script.Pos) (string, error) {
	var buf strings.Builder
	depth := 1
	for !s.atEnd() {
		ch := s.peek()
		if ch == '{' {
			depth++
		} else if ch == '}' {
			depth--
			if depth == 0 {
				s.advance()
				src := strings.TrimSpace(buf.String())
				if src == "" {
					return "", s.errorf(start, "empty interpolation")
				}
				return src, nil
			}
		} else if ch == '\n' {
			return "", s.errorf(start, "unterminated interpolation")
		}
		buf.WriteByte(s.advance())
	}
	return "", s.errorf(start, "unterminated interpolation")
}

func (s *scanner) scanNumber() Token {
	start := s.here()
	startPos := s.pos

	for !s.atEnd() && isDigit(s.peek()) {
		s.advance()
	}
	// Fractional part, taking care not to eat the ".." range operator.
	if !s.atEnd() && s.peek() == '.' && isDigit(s.peekAt(1)) {
		s.advance()
		for !s.atEnd() && isDigit(s.peek()) {
			s.advance()
		}
	}

	return Token{Type: TokNumberLit, Value: s.source[startPos:s.pos], Pos: start}
}

func (s *scanner) scanIdent() Token {
	start := s.here()
	startPos := s.pos
	for !s.atEnd() && isAlphaNumeric(s.peek()) {
		s.advance()
	}
	value := s.source[startPos:s.pos]
	if tt, ok := keywords[value]; ok {
		return Token{Type: tt, Value: value, Pos: start}
	}
	return Token{Type: TokIdent, Value: value, Pos: start}
}

// Lex tokenizes Loom source. The filename is used in error messages only.
func Lex(source, filename string) ([]Token, error) {
	s := newScanner(source, filename)
	var tokens []Token

	for {
		s.skipWhitespaceAndComments()
		if s.atEnd() {
			tokens = append(tokens, Token{Type: TokEOF, Pos: s.here()})
			return tokens, nil
		}

		ch := s.peek()
		switch {
		case ch == '"':
			tok, err := s.scanString()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		case isDigit(ch):
			tokens = append(tokens, s.scanNumber())
		case isAlpha(ch):
			tokens = append(tokens, s.scanIdent())
		default:
			tok, err := s.scanPunct()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		}
	}
}

func (s *scanner) scanPunct() (Token, error) {
	start := s.here()
	ch := s.advance()

	two := func(next byte, twoType, oneType TokenType, oneVal string) Token {
		if s.peek() == next {
			s.advance()
			return Token{Type: twoType, Value: oneVal + string(next), Pos: start}
		}
		return Token{Type: oneType, Value: oneVal, Pos: start}
	}

	switch ch {
	case '{':
		return Token{Type: TokLBrace, Value: "{", Pos: start}, nil
	case '}':
		return Token{Type: TokRBrace, Value: "}", Pos: start}, nil
	case '[':
		return Token{Type: TokLBracket, Value: "[", Pos: start}, nil
	case ']':
		return Token{Type: TokRBracket, Value: "]", Pos: start}, nil
	case '(':
		return Token{Type: TokLParen, Value: "(", Pos: start}, nil
	case ')':
		return Token{Type: TokRParen, Value: ")", Pos: start}, nil
	case ':':
		return Token{Type: TokColon, Value: ":", Pos: start}, nil
	case ',':
		return Token{Type: TokComma, Value: ",", Pos: start}, nil
	case '.':
		if s.peek() == '.' {
			s.advance()
			return Token{Type: TokDotDot, Value: "..", Pos: start}, nil
		}
		return Token{Type: TokDot, Value: ".", Pos: start}, nil
	case '=':
		return two('=', TokEqEq, TokEquals, "="), nil
	case '!':
		return two('=', TokBangEq, TokBang, "!"), nil
	case '<':
		return two('=', TokLtEq, TokLt, "<"), nil
	case '>':
		return two('=', TokGtEq, TokGt, ">"), nil
	case '+':
		return Token{Type: TokPlus, Value: "+", Pos: start}, nil
	case '-':
		return Token{Type: TokMinus, Value: "-", Pos: start}, nil
	case '*':
		return Token{Type: TokStar, Value: "*", Pos: start}, nil
	case '/':
		return Token{Type: TokSlash, Value: "/", Pos: start}, nil
	case '%':
		return Token{Type: TokPercent, Value: "%", Pos: start}, nil
	case '&':
		if s.peek() == '&' {
			s.advance()
			return Token{Type: TokAndAnd, Value: "&&", Pos: start}, nil
		}
		return Token{}, s.errorf(start, "unexpected character '&'")
	case '|':
		if s.peek() == '|' {
			s.advance()
			return Token{Type: TokOrOr, Value: "||", Pos: start}, nil
		}
		return Token{}, s.errorf(start, "unexpected character '|'")
	default:
		return Token{}, s.errorf(start, "unexpected character %q", ch)
	}
}

func parseNumber(tok Token) (float64, error) {
	v, err := strconv.ParseFloat(tok.Value, 64)
	if err != nil {
		return 0, &SyntaxError{Pos: tok.Pos, Message: fmt.Sprintf("invalid number %q", tok.Value)}
	}
	return v, nil
}
