package parser

import (
	"fmt"

	"github.com/everydev1618/goloom/schema"
	"github.com/everydev1618/goloom/script"
)

// Document is a parsed Loom source file: the declarations it contains,
// in source order.
type Document struct {
	Agents  []*AgentDecl
	Tools   []*ToolDecl
	Schemas []*SchemaDecl
	Enums   []*EnumDecl
}

// AgentDecl is an agent declaration. MaxSteps and OutputRetries are -1
// when the declaration leaves them unset.
type AgentDecl struct {
	Name          string
	Prompt        string
	Tools         []string
	MaxSteps      int
	Model         string
	OutputName    string         // named schema reference
	Output        *schema.Schema // inline schema
	OutputRetries int
	Pos           script.Pos
}

// ToolParam is one declared parameter of a tool.
type ToolParam struct {
	Name string
	Type string // JSON type name, defaults to "string"
}

// ToolDecl is a tool declared in Loom source with a script body.
type ToolDecl struct {
	Name        string
	Description string
	Params      []ToolParam
	Body        *script.Block
	Pos         script.Pos
}

// SchemaDecl is a named output schema declaration.
type SchemaDecl struct {
	Name   string
	Schema *schema.Schema
	Pos    script.Pos
}

// EnumDecl is an enum type declaration.
type EnumDecl struct {
	Name     string
	Variants []script.EnumVariant
	Pos      script.Pos
}

type parser struct {
	tokens   []Token
	pos      int
	filename string
}

// Parse parses a Loom source file into a Document.
func Parse(source, filename string) (*Document, error) {
	tokens, err := Lex(source, filename)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, filename: filename}
	return p.parseDocument()
}

// ParseExpr parses a single expression, as used by string interpolation.
func ParseExpr(source string) (script.Expr, error) {
	tokens, err := Lex(source, "")
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != TokEOF {
		return nil, p.errorf(p.peek(), "unexpected %q after expression", p.peek().Value)
	}
	return expr, nil
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(offset int) Token {
	i := p.pos + offset
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[i]
}

func (p *parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) match(tt TokenType) bool {
	if p.peek().Type == tt {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(tt TokenType, what string) (Token, error) {
	tok := p.peek()
	if tok.Type != tt {
		return Token{}, p.errorf(tok, "expected %s, got %q", what, tok.Value)
	}
	return p.next(), nil
}

func (p *parser) errorf(tok Token, format string, args ...any) error {
	return &SyntaxError{File: p.filename, Pos: tok.Pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) parseDocument() (*Document, error) {
	doc := &Document{}
	for p.peek().Type != TokEOF {
		switch p.peek().Type {
		case TokAgent:
			decl, err := p.parseAgent()
			if err != nil {
				return nil, err
			}
			doc.Agents = append(doc.Agents, decl)
		case TokTool:
			decl, err := p.parseTool()
			if err != nil {
				return nil, err
			}
			doc.Tools = append(doc.Tools, decl)
		case TokSchema:
			decl, err := p.parseSchema()
			if err != nil {
				return nil, err
			}
			doc.Schemas = append(doc.Schemas, decl)
		case TokEnum:
			decl, err := p.parseEnum()
			if err != nil {
				return nil, err
			}
			doc.Enums = append(doc.Enums, decl)
		default:
			return nil, p.errorf(p.peek(), "expected declaration, got %q", p.peek().Value)
		}
	}
	return doc, nil
}

func (p *parser) parseAgent() (*AgentDecl, error) {
	start := p.next() // agent
	name, err := p.expect(TokIdent, "agent name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return nil, err
	}

	decl := &AgentDecl{
		Name:          name.Value,
		MaxSteps:      -1,
		OutputRetries: -1,
		Pos:           start.Pos,
	}

	for p.peek().Type != TokRBrace {
		field, err := p.expect(TokIdent, "agent field")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon, "':'"); err != nil {
			return nil, err
		}

		switch field.Value {
		case "prompt":
			decl.Prompt, err = p.parsePlainString("prompt")
		case "model":
			decl.Model, err = p.parsePlainString("model")
		case "tools":
			decl.Tools, err = p.parseNameList()
		case "max_steps":
			decl.MaxSteps, err = p.parseIntField("max_steps")
		case "output_retries":
			decl.OutputRetries, err = p.parseIntField("output_retries")
		case "output":
			err = p.parseAgentOutput(decl)
		default:
			return nil, p.errorf(field, "unknown agent field %q", field.Value)
		}
		if err != nil {
			return nil, err
		}
		p.match(TokComma)
	}
	p.next() // }
	return decl, nil
}

func (p *parser) parsePlainString(what string) (string, error) {
	tok, err := p.expect(TokStringLit, what+" string")
	if err != nil {
		return "", err
	}
	if len(tok.Exprs) > 0 {
		return "", p.errorf(tok, "%s does not support interpolation", what)
	}
	return tok.Value, nil
}

func (p *parser) parseIntField(what string) (int, error) {
	tok, err := p.expect(TokNumberLit, what+" number")
	if err != nil {
		return 0, err
	}
	v, err := parseNumber(tok)
	if err != nil {
		return 0, err
	}
	if v != float64(int(v)) || v < 0 {
		return 0, p.errorf(tok, "%s must be a non-negative integer", what)
	}
	return int(v), nil
}

func (p *parser) parseNameList() ([]string, error) {
	if _, err := p.expect(TokLBracket, "'['"); err != nil {
		return nil, err
	}
	var names []string
	for p.peek().Type != TokRBracket {
		tok := p.peek()
		switch tok.Type {
		case TokIdent:
			names = append(names, p.next().Value)
		case TokStringLit:
			s, err := p.parsePlainString("tool name")
			if err != nil {
				return nil, err
			}
			names = append(names, s)
		default:
			return nil, p.errorf(tok, "expected tool name, got %q", tok.Value)
		}
		if !p.match(TokComma) {
			break
		}
	}
	if _, err := p.expect(TokRBracket, "']'"); err != nil {
		return nil, err
	}
	return names, nil
}

func (p *parser) parseAgentOutput(decl *AgentDecl) error {
	switch p.peek().Type {
	case TokIdent:
		decl.OutputName = p.next().Value
		return nil
	case TokLBrace:
		fields, err := p.parseSchemaFields()
		if err != nil {
			return err
		}
		decl.Output = &schema.Schema{Fields: fields}
		return nil
	default:
		return p.errorf(p.peek(), "output must be a schema name or an inline schema")
	}
}

func (p *parser) parseTool() (*ToolDecl, error) {
	start := p.next() // tool
	name, err := p.expect(TokIdent, "tool name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLParen, "'('"); err != nil {
		return nil, err
	}

	decl := &ToolDecl{Name: name.Value, Pos: start.Pos}
	for p.peek().Type != TokRParen {
		pname, err := p.expect(TokIdent, "parameter name")
		if err != nil {
			return nil, err
		}
		param := ToolParam{Name: pname.Value, Type: "string"}
		if p.match(TokColon) {
			ptype, err := p.expect(TokIdent, "parameter type")
			if err != nil {
				return nil, err
			}
			switch ptype.Value {
			case "string", "number", "boolean":
				param.Type = ptype.Value
			default:
				return nil, p.errorf(ptype, "unknown parameter type %q", ptype.Value)
			}
		}
		decl.Params = append(decl.Params, param)
		if !p.match(TokComma) {
			break
		}
	}
	if _, err := p.expect(TokRParen, "')'"); err != nil {
		return nil, err
	}

	// Optional description string between signature and body.
	if p.peek().Type == TokStringLit {
		decl.Description, err = p.parsePlainString("tool description")
		if err != nil {
			return nil, err
		}
	}

	decl.Body, err = p.parseBlock()
	if err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *parser) parseSchema() (*SchemaDecl, error) {
	start := p.next() // schema
	name, err := p.expect(TokIdent, "schema name")
	if err != nil {
		return nil, err
	}
	fields, err := p.parseSchemaFields()
	if err != nil {
		return nil, err
	}
	return &SchemaDecl{
		Name:   name.Value,
		Schema: &schema.Schema{Name: name.Value, Fields: fields},
		Pos:    start.Pos,
	}, nil
}

func (p *parser) parseSchemaFields() ([]schema.Field, error) {
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	var fields []schema.Field
	for p.peek().Type != TokRBrace {
		name, err := p.expect(TokIdent, "field name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon, "':'"); err != nil {
			return nil, err
		}
		typ, err := p.parseSchemaType()
		if err != nil {
			return nil, err
		}
		fields = append(fields, schema.Field{Name: name.Value, Type: typ})
		p.match(TokComma)
	}
	p.next() // }
	return fields, nil
}

func (p *parser) parseSchemaType() (schema.Type, error) {
	tok := p.peek()
	switch tok.Type {
	case TokIdent:
		p.next()
		switch tok.Value {
		case "String":
			return schema.Type{Kind: schema.String}, nil
		case "Number":
			return schema.Type{Kind: schema.Number}, nil
		case "Boolean":
			return schema.Type{Kind: schema.Boolean}, nil
		default:
			return schema.Type{Kind: schema.Named, Name: tok.Value}, nil
		}
	case TokLBracket:
		p.next()
		elem, err := p.parseSchemaType()
		if err != nil {
			return schema.Type{}, err
		}
		if _, err := p.expect(TokRBracket, "']'"); err != nil {
			return schema.Type{}, err
		}
		return schema.Type{Kind: schema.Array, Elem: &elem}, nil
	case TokLBrace:
		fields, err := p.parseSchemaFields()
		if err != nil {
			return schema.Type{}, err
		}
		return schema.Type{Kind: schema.Object, Fields: fields}, nil
	default:
		return schema.Type{}, p.errorf(tok, "expected field type, got %q", tok.Value)
	}
}

func (p *parser) parseEnum() (*EnumDecl, error) {
	start := p.next() // enum
	name, err := p.expect(TokIdent, "enum name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return nil, err
	}

	decl := &EnumDecl{Name: name.Value, Pos: start.Pos}
	for p.peek().Type != TokRBrace {
		vname, err := p.expect(TokIdent, "variant name")
		if err != nil {
			return nil, err
		}
		variant := script.EnumVariant{Name: vname.Value}
		if p.match(TokLParen) {
			for p.peek().Type != TokRParen {
				if _, err := p.expect(TokIdent, "payload name"); err != nil {
					return nil, err
				}
				variant.Arity++
				if !p.match(TokComma) {
					break
				}
			}
			if _, err := p.expect(TokRParen, "')'"); err != nil {
				return nil, err
			}
		}
		decl.Variants = append(decl.Variants, variant)
		if !p.match(TokComma) {
			break
		}
	}
	if _, err := p.expect(TokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *parser) parseBlock() (*script.Block, error) {
	open, err := p.expect(TokLBrace, "'{'")
	if err != nil {
		return nil, err
	}
	block := &script.Block{Pos: open.Pos}
	for p.peek().Type != TokRBrace {
		if p.peek().Type == TokEOF {
			return nil, p.errorf(p.peek(), "unterminated block")
		}
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		block.Stmts = append(block.Stmts, stmt)
	}
	p.next() // }
	return block, nil
}

func (p *parser) parseStmt() (script.Stmt, error) {
	tok := p.peek()
	switch tok.Type {
	case TokLet:
		p.next()
		name, err := p.expect(TokIdent, "variable name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokEquals, "'='"); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &script.LetStmt{Name: name.Value, Value: value, Pos: tok.Pos}, nil

	case TokReturn:
		p.next()
		// A bare return is only recognized at the end of a block.
		if p.peek().Type == TokRBrace {
			return &script.ReturnStmt{Pos: tok.Pos}, nil
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &script.ReturnStmt{Value: value, Pos: tok.Pos}, nil

	case TokIf:
		return p.parseIf()

	case TokIdent:
		// Assignment when followed by '=', expression statement otherwise.
		if p.peekAt(1).Type == TokEquals {
			name := p.next()
			p.next() // =
			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return &script.AssignStmt{Name: name.Value, Value: value, Pos: tok.Pos}, nil
		}
		fallthrough

	default:
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &script.ExprStmt{Expr: expr, Pos: tok.Pos}, nil
	}
}

func (p *parser) parseIf() (script.Stmt, error) {
	tok := p.next() // if
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &script.IfStmt{Cond: cond, Then: then, Pos: tok.Pos}

	if p.match(TokElse) {
		if p.peek().Type == TokIf {
			nested, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			stmt.Else = &script.Block{Stmts: []script.Stmt{nested}, Pos: nested.Position()}
		} else {
			stmt.Else, err = p.parseBlock()
			if err != nil {
				return nil, err
			}
		}
	}
	return stmt, nil
}

// Expression parsing, loosest binding first:
// || < && < == != < comparisons < .. < + - < * / % < unary < postfix.

func (p *parser) parseExpr() (script.Expr, error) {
	return p.parseOr()
}

func (p *parser) parseBinaryLevel(types []TokenType, operand func() (script.Expr, error)) (script.Expr, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		matched := false
		for _, tt := range types {
			if p.peek().Type == tt {
				op := p.next()
				right, err := operand()
				if err != nil {
					return nil, err
				}
				left = &script.BinaryExpr{Op: op.Value, Left: left, Right: right, Pos: op.Pos}
				matched = true
				break
			}
		}
		if !matched {
			return left, nil
		}
	}
}

func (p *parser) parseOr() (script.Expr, error) {
	return p.parseBinaryLevel([]TokenType{TokOrOr}, p.parseAnd)
}

func (p *parser) parseAnd() (script.Expr, error) {
	return p.parseBinaryLevel([]TokenType{TokAndAnd}, p.parseEquality)
}

func (p *parser) parseEquality() (script.Expr, error) {
	return p.parseBinaryLevel([]TokenType{TokEqEq, TokBangEq}, p.parseComparison)
}

func (p *parser) parseComparison() (script.Expr, error) {
	return p.parseBinaryLevel([]TokenType{TokLt, TokLtEq, TokGt, TokGtEq}, p.parseRange)
}

func (p *parser) parseRange() (script.Expr, error) {
	low, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.peek().Type == TokDotDot {
		op := p.next()
		high, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &script.RangeExpr{Low: low, High: high, Pos: op.Pos}, nil
	}
	return low, nil
}

func (p *parser) parseAdditive() (script.Expr, error) {
	return p.parseBinaryLevel([]TokenType{TokPlus, TokMinus}, p.parseMultiplicative)
}

func (p *parser) parseMultiplicative() (script.Expr, error) {
	return p.parseBinaryLevel([]TokenType{TokStar, TokSlash, TokPercent}, p.parseUnary)
}

func (p *parser) parseUnary() (script.Expr, error) {
	tok := p.peek()
	if tok.Type == TokMinus || tok.Type == TokBang {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &script.UnaryExpr{Op: tok.Value, Operand: operand, Pos: tok.Pos}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (script.Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case TokDot:
			dot := p.next()
			name, err := p.expect(TokIdent, "member name")
			if err != nil {
				return nil, err
			}
			expr = &script.MemberExpr{Object: expr, Name: name.Value, Pos: dot.Pos}
		case TokLBracket:
			open := p.next()
			index, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokRBracket, "']'"); err != nil {
				return nil, err
			}
			expr = &script.IndexExpr{Target: expr, Index: index, Pos: open.Pos}
		case TokLParen:
			open := p.next()
			var args []script.Expr
			for p.peek().Type != TokRParen {
				arg, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if !p.match(TokComma) {
					break
				}
			}
			if _, err := p.expect(TokRParen, "')'"); err != nil {
				return nil, err
			}
			expr = &script.CallExpr{Callee: expr, Args: args, Pos: open.Pos}
		default:
			return expr, nil
		}
	}
}

func (p *parser) parsePrimary() (script.Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case TokNull:
		p.next()
		return &script.NullLit{Pos: tok.Pos}, nil
	case TokTrue:
		p.next()
		return &script.BoolLit{Value: true, Pos: tok.Pos}, nil
	case TokFalse:
		p.next()
		return &script.BoolLit{Value: false, Pos: tok.Pos}, nil
	case TokNumberLit:
		p.next()
		v, err := parseNumber(tok)
		if err != nil {
			return nil, err
		}
		return &script.NumberLit{Value: v, Pos: tok.Pos}, nil
	case TokStringLit:
		p.next()
		return p.buildStringLit(tok)
	case TokIdent:
		p.next()
		return &script.Ident{Name: tok.Value, Pos: tok.Pos}, nil
	case TokLBracket:
		p.next()
		lit := &script.ArrayLit{Pos: tok.Pos}
		for p.peek().Type != TokRBracket {
			item, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			lit.Items = append(lit.Items, item)
			if !p.match(TokComma) {
				break
			}
		}
		if _, err := p.expect(TokRBracket, "']'"); err != nil {
			return nil, err
		}
		return lit, nil
	case TokLBrace:
		return p.parseObjectLit()
	case TokLParen:
		p.next()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, "')'"); err != nil {
			return nil, err
		}
		return expr, nil
	case TokFn:
		return p.parseLambda()
	default:
		return nil, p.errorf(tok, "expected expression, got %q", tok.Value)
	}
}

func (p *parser) parseObjectLit() (script.Expr, error) {
	open := p.next() // {
	lit := &script.ObjectLit{Pos: open.Pos}
	for p.peek().Type != TokRBrace {
		var key string
		switch p.peek().Type {
		case TokIdent:
			key = p.next().Value
		case TokStringLit:
			tok := p.next()
			if len(tok.Exprs) > 0 {
				return nil, p.errorf(tok, "object keys do not support interpolation")
			}
			key = tok.Value
		default:
			return nil, p.errorf(p.peek(), "expected field name, got %q", p.peek().Value)
		}
		if _, err := p.expect(TokColon, "':'"); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		lit.Fields = append(lit.Fields, script.ObjectField{Name: key, Value: value})
		if !p.match(TokComma) {
			break
		}
	}
	if _, err := p.expect(TokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return lit, nil
}

func (p *parser) parseLambda() (script.Expr, error) {
	start := p.next() // fn
	if _, err := p.expect(TokLParen, "'('"); err != nil {
		return nil, err
	}
	var params []string
	for p.peek().Type != TokRParen {
		name, err := p.expect(TokIdent, "parameter name")
		if err != nil {
			return nil, err
		}
		params = append(params, name.Value)
		if !p.match(TokComma) {
			break
		}
	}
	if _, err := p.expect(TokRParen, "')'"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &script.LambdaLit{Params: params, Body: body, Pos: start.Pos}, nil
}

// buildStringLit assembles an interpolated string literal: the processed
// text split around interpolation markers, with each hole's source
// parsed as an expression.
func (p *parser) buildStringLit(tok Token) (script.Expr, error) {
	lit := &script.StringLit{Pos: tok.Pos}
	if len(tok.Exprs) == 0 {
		lit.Parts = []script.StringPart{{Text: tok.Value}}
		return lit, nil
	}

	rest := tok.Value
	for _, src := range tok.Exprs {
		idx := indexMarker(rest)
		if rest[:idx] != "" {
			lit.Parts = append(lit.Parts, script.StringPart{Text: rest[:idx]})
		}
		expr, err := ParseExpr(src)
		if err != nil {
			return nil, p.errorf(tok, "invalid interpolation %q: %v", src, err)
		}
		lit.Parts = append(lit.Parts, script.StringPart{Expr: expr})
		rest = rest[idx+1:]
	}
	if rest != "" {
		lit.Parts = append(lit.Parts, script.StringPart{Text: rest})
	}
	return lit, nil
}

func indexMarker(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == interpMarker[0] {
			return i
		}
	}
	return len(s)
}
