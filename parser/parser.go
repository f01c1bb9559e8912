package parser

import (
	"fmt"

	"vortex/ast"
	"vortex/lexer"
	"vortex/runtime"
)

// Parser turns a flat token stream into an AST via recursive descent with a
// small lookahead cache, mirroring the structure of the original tree-walker
// parser this VM frontend replaced.
type Parser struct {
	tokens []lexer.Token
	pos    int
}

func NewParser(tokens []lexer.Token) *Parser {
	return &Parser{tokens: tokens}
}

func (p *Parser) notEOF() bool { return p.pos < len(p.tokens) }

func (p *Parser) peek() lexer.Token {
	if p.pos >= len(p.tokens) {
		return lexer.Token{Type: -1}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekAhead(n int) lexer.Token {
	idx := p.pos + n
	if idx >= len(p.tokens) {
		return lexer.Token{Type: -1}
	}
	return p.tokens[idx]
}

func (p *Parser) advance() lexer.Token {
	tok := p.tokens[p.pos]
	p.pos++
	return tok
}

func (p *Parser) expect(t lexer.TokenType, msg string) lexer.Token {
	tok := p.peek()
	if tok.Type != t {
		panic(fmt.Sprintf("Parse error at %d:%d: %s (got %s %q)", tok.Line, tok.Column, msg, tok.Type, tok.Value))
	}
	return p.advance()
}

// ParseProgram parses a complete source file into an *ast.Program.
func ParseProgram(sourceCode string) *ast.Program {
	p := NewParser(lexer.Tokenize(sourceCode))
	prog := ast.NewProgram()
	for p.notEOF() {
		prog.Body = append(prog.Body, p.parseStmt())
	}
	return prog
}

func (p *Parser) parseStmt() ast.Stmt {
	switch p.peek().Type {
	case lexer.Import:
		return p.parseImportStatement()
	case lexer.Funct, lexer.Gen:
		return p.parseFunctionDeclaration()
	case lexer.Return:
		return p.parseReturnStatement()
	case lexer.Yield:
		return p.parseYieldStatement()
	case lexer.Try:
		return p.parseTryStatement()
	case lexer.Let, lexer.Var, lexer.Const:
		return p.parseVarDeclaration()
	case lexer.If:
		return p.parseIfStatement()
	case lexer.ForRange:
		return p.parseForStatement()
	case lexer.While:
		return p.parseWhileStatement()
	case lexer.OpenBrace:
		return p.parseBlockStatement()
	case lexer.Break:
		p.advance()
		return ast.NewBreakStatement()
	case lexer.Continue:
		p.advance()
		return ast.NewContinueStatement()
	case lexer.Type:
		return p.parseTypeDeclaration()
	case lexer.Hook:
		return p.parseHookDeclaration()
	default:
		expr := p.parseExpr()
		return expr
	}
}

func (p *Parser) parseImportStatement() ast.Stmt {
	p.advance() // import
	pathTok := p.expect(lexer.String, "expected import path string")
	alias := pathTok.Value
	if p.peek().Type == lexer.As {
		p.advance()
		alias = p.expect(lexer.Identifier, "expected alias after 'as'").Value
	}
	return &ast.ImportStatement{Path: pathTok.Value, Alias: alias}
}

func (p *Parser) parseFunctionDeclaration() ast.Stmt {
	isGen := false
	if p.peek().Type == lexer.Gen {
		isGen = true
		p.advance()
	}
	p.expect(lexer.Funct, "expected 'funct'")
	name := ""
	if p.peek().Type == lexer.Identifier {
		name = p.advance().Value
	}
	p.expect(lexer.OpenParen, "expected '(' after function name")

	var params []string
	defaults := map[string]ast.Expr{}
	packer := ""
	for p.peek().Type != lexer.CloseParen {
		if p.peek().Type == lexer.Spread {
			p.advance()
			packer = p.expect(lexer.Identifier, "expected packer parameter name").Value
			params = append(params, packer)
		} else {
			pname := p.expect(lexer.Identifier, "expected parameter name").Value
			params = append(params, pname)
			if p.peek().Type == lexer.Equals {
				p.advance()
				defaults[pname] = p.parseAssignmentExpr()
			}
		}
		if p.peek().Type == lexer.Comma {
			p.advance()
		}
	}
	p.expect(lexer.CloseParen, "expected ')' after parameters")
	body := p.parseBlockStatement()
	return &ast.FunctionDeclaration{
		Name: name, Params: params, Defaults: defaults,
		PackerParam: packer, Body: body, IsGenerator: isGen,
	}
}

func (p *Parser) parseReturnStatement() ast.Stmt {
	p.advance()
	var val ast.Expr
	if p.peek().Type != lexer.CloseBrace {
		val = p.parseExpr()
	}
	return &ast.ReturnStatement{Value: val}
}

func (p *Parser) parseYieldStatement() ast.Stmt {
	p.advance()
	var val ast.Expr
	if p.peek().Type != lexer.CloseBrace {
		val = p.parseExpr()
	}
	return &ast.YieldStatement{Value: val}
}

func (p *Parser) parseTryStatement() ast.Stmt {
	p.advance() // try
	tryBlock := p.parseBlockStatement()
	p.expect(lexer.Catch, "expected 'catch' after try block")
	errVar := ""
	if p.peek().Type == lexer.OpenParen {
		p.advance()
		errVar = p.expect(lexer.Identifier, "expected error variable name").Value
		p.expect(lexer.CloseParen, "expected ')' after catch variable")
	}
	catchBlock := p.parseBlockStatement()
	return &ast.TryStatement{TryBlock: tryBlock, CatchBlock: catchBlock, ErrorVar: errVar}
}

func (p *Parser) parseVarDeclaration() ast.Stmt {
	isConst := p.peek().Type == lexer.Const
	p.advance() // let/var/const
	name := p.expect(lexer.Identifier, "expected variable name").Value
	var value ast.Expr
	if p.peek().Type == lexer.Equals {
		p.advance()
		value = p.parseExpr()
	} else {
		value = ast.NewNoneLiteral()
	}
	return &ast.VarDeclaration{Identifier: name, Value: value, Constant: isConst}
}

func (p *Parser) parseIfStatement() ast.Stmt {
	p.advance()
	p.expect(lexer.OpenParen, "expected '(' after 'if'")
	cond := p.parseExpr()
	p.expect(lexer.CloseParen, "expected ')' after if condition")
	cons := p.parseBlockStatement()
	var alt *ast.BlockStatement
	if p.peek().Type == lexer.Else {
		p.advance()
		if p.peek().Type == lexer.If {
			inner := p.parseIfStatement()
			alt = &ast.BlockStatement{Statements: []ast.Stmt{inner}}
		} else {
			alt = p.parseBlockStatement()
		}
	}
	return &ast.IfStatement{Condition: cond, Consequence: cons, Alternative: alt}
}

// parseForStatement parses Vortex's only loop-over-collection form:
// `for range (item, iterable) { ... }`.
func (p *Parser) parseForStatement() ast.Stmt {
	p.advance() // "for range"
	p.expect(lexer.OpenParen, "expected '(' after 'for range'")
	ident := ast.NewIdentifier(p.expect(lexer.Identifier, "expected loop variable name").Value)
	p.expect(lexer.Comma, "expected ',' after loop variable")
	rangeExpr := p.parseExpr()
	p.expect(lexer.CloseParen, "expected ')' after for range clause")
	body := p.parseBlockStatement()
	return &ast.ForStatement{Identifier: ident, Range: rangeExpr, Body: body}
}

func (p *Parser) parseWhileStatement() ast.Stmt {
	p.advance()
	p.expect(lexer.OpenParen, "expected '(' after 'while'")
	cond := p.parseExpr()
	p.expect(lexer.CloseParen, "expected ')' after while condition")
	body := p.parseBlockStatement()
	return &ast.WhileStatement{Condition: cond, Body: body}
}

func (p *Parser) parseBlockStatement() *ast.BlockStatement {
	p.expect(lexer.OpenBrace, "expected '{'")
	var stmts []ast.Stmt
	for p.peek().Type != lexer.CloseBrace && p.notEOF() {
		stmts = append(stmts, p.parseStmt())
	}
	p.expect(lexer.CloseBrace, "expected '}'")
	return &ast.BlockStatement{Statements: stmts}
}

func (p *Parser) parseTypeDeclaration() ast.Stmt {
	p.advance() // type
	name := p.expect(lexer.Identifier, "expected type name").Value
	p.expect(lexer.OpenBrace, "expected '{' after type name")
	var fields []*ast.TypeField
	for p.peek().Type != lexer.CloseBrace {
		fname := p.expect(lexer.Identifier, "expected field name").Value
		var annotation, def ast.Expr
		if p.peek().Type == lexer.Colon {
			p.advance()
			annotation = p.parseCallExpr()
		}
		if p.peek().Type == lexer.Equals {
			p.advance()
			def = p.parseAssignmentExpr()
		}
		fields = append(fields, &ast.TypeField{Name: fname, Annotation: annotation, Default: def})
		if p.peek().Type == lexer.Comma {
			p.advance()
		}
	}
	p.expect(lexer.CloseBrace, "expected '}' after type fields")
	return &ast.TypeDeclaration{Name: name, Fields: fields}
}

// parseHookDeclaration parses `hook onchange(target) handler` /
// `hook onaccess(target) handler` forms, where handler is a bare
// function expression or an identifier naming one.
func (p *Parser) parseHookDeclaration() ast.Stmt {
	p.advance() // hook
	kindTok := p.expect(lexer.Identifier, "expected 'onchange' or 'onaccess'")
	p.expect(lexer.OpenParen, "expected '(' after hook kind")
	target := p.expect(lexer.Identifier, "expected hook target name").Value
	p.expect(lexer.CloseParen, "expected ')' after hook target")
	handler := p.parseAssignmentExpr()
	return &ast.HookDeclaration{Kind: kindTok.Value, Target: target, Handler: handler}
}

// ---- expressions, precedence-climbing from loosest to tightest ----

func (p *Parser) parseExpr() ast.Expr {
	return p.parseAssignmentExpr()
}

func (p *Parser) parseAssignmentExpr() ast.Expr {
	left := p.parseLogicalExpr()
	if p.peek().Type == lexer.Equals {
		p.advance()
		value := p.parseAssignmentExpr()
		return &ast.AssignmentExpr{Assignee: left, Value: value}
	}
	return left
}

func (p *Parser) parseLogicalExpr() ast.Expr {
	left := p.parseComparisonExpr()
	for p.peek().Type == lexer.LogicalOperator {
		op := p.advance().Value
		right := p.parseComparisonExpr()
		left = &ast.BinaryExpr{Left: left, Right: right, Operator: op}
	}
	return left
}

func (p *Parser) parseComparisonExpr() ast.Expr {
	left := p.parseRangeExpr()
	for p.peek().Type == lexer.ComparisonOperator {
		op := p.advance().Value
		right := p.parseRangeExpr()
		left = &ast.BinaryExpr{Left: left, Right: right, Operator: op}
	}
	return left
}

func (p *Parser) parseRangeExpr() ast.Expr {
	left := p.parseAdditiveExpr()
	for p.peek().Type == lexer.Range {
		p.advance()
		right := p.parseAdditiveExpr()
		left = &ast.BinaryExpr{Left: left, Right: right, Operator: ".."}
	}
	return left
}

func (p *Parser) parseAdditiveExpr() ast.Expr {
	left := p.parseMultiplicativeExpr()
	for p.peek().Type == lexer.BinaryOperator && (p.peek().Value == "+" || p.peek().Value == "-") {
		op := p.advance().Value
		right := p.parseMultiplicativeExpr()
		left = &ast.BinaryExpr{Left: left, Right: right, Operator: op}
	}
	return left
}

func (p *Parser) parseMultiplicativeExpr() ast.Expr {
	left := p.parseUnaryExpr()
	for (p.peek().Type == lexer.BinaryOperator && (p.peek().Value == "*" || p.peek().Value == "/")) ||
		p.peek().Type == lexer.Modulo {
		op := p.advance().Value
		right := p.parseUnaryExpr()
		left = &ast.BinaryExpr{Left: left, Right: right, Operator: op}
	}
	return left
}

func (p *Parser) parseUnaryExpr() ast.Expr {
	switch p.peek().Type {
	case lexer.Not:
		p.advance()
		operand := p.parseUnaryExpr()
		return &ast.UnaryExpr{Operand: operand, Operator: "!", Prefix: true}
	case lexer.BinaryOperator:
		if p.peek().Value == "-" {
			p.advance()
			operand := p.parseUnaryExpr()
			return &ast.UnaryExpr{Operand: operand, Operator: "-", Prefix: true}
		}
	case lexer.Increment, lexer.Decrement:
		op := p.advance().Value
		operand := p.parseUnaryExpr()
		return &ast.UnaryExpr{Operand: operand, Operator: op, Prefix: true}
	case lexer.Spread:
		p.advance()
		inner := p.parseUnaryExpr()
		return &ast.UnpackExpr{Inner: inner}
	}
	return p.parsePostfixExpr()
}

func (p *Parser) parsePostfixExpr() ast.Expr {
	expr := p.parseCallExpr()
	for p.peek().Type == lexer.Increment || p.peek().Type == lexer.Decrement {
		op := p.advance().Value
		expr = &ast.UnaryExpr{Operand: expr, Operator: op, Prefix: false}
	}
	return expr
}

func (p *Parser) parseCallExpr() ast.Expr {
	expr := p.parseMemberExpr()
	for p.peek().Type == lexer.OpenParen {
		expr = p.finishCall(expr)
	}
	return expr
}

func (p *Parser) finishCall(callee ast.Expr) ast.Expr {
	p.advance() // (
	var args []ast.Expr
	for p.peek().Type != lexer.CloseParen {
		args = append(args, p.parseAssignmentExpr())
		if p.peek().Type == lexer.Comma {
			p.advance()
		}
	}
	p.expect(lexer.CloseParen, "expected ')' after call arguments")
	method := false
	if m, ok := callee.(*ast.MemberExpr); ok && !m.Computed {
		method = true
	}
	return &ast.CallExpr{Callee: callee, Args: args, Method: method}
}

func (p *Parser) parseMemberExpr() ast.Expr {
	obj := p.parsePrimary()
	for p.peek().Type == lexer.Dot || p.peek().Type == lexer.OpenBracket {
		if p.peek().Type == lexer.Dot {
			p.advance()
			prop := ast.NewIdentifier(p.expect(lexer.Identifier, "expected property name after '.'").Value)
			obj = &ast.MemberExpr{Object: obj, Property: prop, Computed: false}
		} else {
			p.advance()
			prop := p.parseExpr()
			p.expect(lexer.CloseBracket, "expected ']' after computed member expression")
			obj = &ast.MemberExpr{Object: obj, Property: prop, Computed: true}
		}
	}
	return obj
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.peek()
	switch tok.Type {
	case lexer.Number:
		p.advance()
		var v float64
		fmt.Sscanf(tok.Value, "%g", &v)
		return ast.NewNumericLiteral(v)
	case lexer.String:
		p.advance()
		return ast.NewStringLiteral(tok.Value)
	case lexer.True:
		p.advance()
		return ast.NewBooleanLiteral(true)
	case lexer.False:
		p.advance()
		return ast.NewBooleanLiteral(false)
	case lexer.None:
		p.advance()
		return ast.NewNoneLiteral()
	case lexer.This:
		p.advance()
		return ast.NewThisExpr()
	case lexer.Identifier:
		// Typed object-literal construction: `TypeName { field: value, ... }`.
		if p.peekAhead(1).Type == lexer.OpenBrace && isCapitalized(tok.Value) {
			return p.parseMapLiteral(tok.Value)
		}
		p.advance()
		return ast.NewIdentifier(tok.Value)
	case lexer.OpenParen:
		p.advance()
		expr := p.parseExpr()
		p.expect(lexer.CloseParen, "expected closing ')'")
		return expr
	case lexer.OpenBracket:
		return p.parseArrayLiteral()
	case lexer.OpenBrace:
		return p.parseMapLiteral("")
	case lexer.Funct, lexer.Gen:
		return p.parseFunctionDeclaration().(ast.Expr)
	default:
		panic(fmt.Sprintf("Parse error at %d:%d: unexpected token %s %q", tok.Line, tok.Column, tok.Type, tok.Value))
	}
}

func isCapitalized(s string) bool {
	return len(s) > 0 && s[0] >= 'A' && s[0] <= 'Z'
}

func (p *Parser) parseArrayLiteral() ast.Expr {
	p.expect(lexer.OpenBracket, "expected '['")
	var elems []ast.Expr
	for p.peek().Type != lexer.CloseBracket {
		elems = append(elems, p.parseAssignmentExpr())
		if p.peek().Type == lexer.Comma {
			p.advance()
		}
	}
	p.expect(lexer.CloseBracket, "expected ']'")
	return &ast.ArrayLiteral{Elements: elems}
}

func (p *Parser) parseMapLiteral(typeName string) ast.Expr {
	if typeName != "" {
		p.advance() // consume the type identifier
	}
	p.expect(lexer.OpenBrace, "expected '{'")
	var props []*ast.Property
	for p.peek().Type != lexer.CloseBrace {
		var key ast.Expr
		if p.peek().Type == lexer.OpenBracket {
			p.advance()
			key = p.parseExpr()
			p.expect(lexer.CloseBracket, "expected ']' after computed key")
		} else {
			keyTok := p.advance()
			key = ast.NewIdentifier(keyTok.Value)
		}
		p.expect(lexer.Colon, "expected ':' after map key")
		val := p.parseAssignmentExpr()
		props = append(props, ast.NewProperty(key, val))
		if p.peek().Type == lexer.Comma {
			p.advance()
		}
	}
	p.expect(lexer.CloseBrace, "expected '}'")
	return &ast.MapLiteral{TypeName: typeName, Properties: props}
}

// newParseError is kept for callers that want a *runtime.Error instead of a
// panic/recover boundary (e.g. a REPL reporting a diagnostic without
// crashing the whole process).
func newParseError(msg string, line, col int) *runtime.Error {
	return runtime.NewError(msg, line, col)
}
