package main

import (
	"fmt"
)

// Parser builds the syntax tree for one source buffer.
type Parser struct {
	l      *Lexer
	source []byte

	// Set while parsing if/loop conditions, where "name {" opens the body
	// rather than a constructor.
	noConstructor bool
}

// bailout carries the first syntax error up to Parse.
type bailout struct {
	err *SyntaxError
}

// Parse parses a whole source file into a module tree.
func Parse(source []byte) (tree *Node, err error) {
	p := &Parser{l: NewLexer(source), source: source}
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			tree, err = nil, b.err
		}
	}()
	p.l.NextToken()
	return p.parseModule(), nil
}

func (p *Parser) failAt(pos Pos, format string, args ...any) {
	panic(bailout{newSyntaxError(p.source, pos, fmt.Sprintf(format, args...))})
}

func (p *Parser) fail(format string, args ...any) {
	p.failAt(p.l.CurrPos, format, args...)
}

// describe names the current token for error messages.
func (p *Parser) describe() string {
	switch p.l.CurrTokenType {
	case EOF:
		return "end of file"
	case ILLEGAL:
		return fmt.Sprintf("illegal input %q", p.l.CurrLiteral)
	default:
		return fmt.Sprintf("%q", p.l.CurrLiteral)
	}
}

func (p *Parser) next() {
	p.l.NextToken()
}

func (p *Parser) at(t TokenType) bool {
	return p.l.CurrTokenType == t
}

func (p *Parser) expect(t TokenType) Pos {
	if !p.at(t) {
		p.fail("expected %q, found %s", string(t), p.describe())
	}
	pos := p.l.CurrPos
	p.next()
	return pos
}

// token turns the current token into a leaf node and advances.
func (p *Parser) token() *Node {
	n := &Node{Kind: NodeToken, Text: p.l.CurrLiteral, Pos: p.l.CurrPos}
	p.next()
	return n
}

func (p *Parser) ident(what string) *Node {
	if !p.at(IDENT) {
		p.fail("expected %s, found %s", what, p.describe())
	}
	return p.token()
}

// attempt runs parse speculatively. If it hits a syntax error the lexer is
// rewound and attempt returns nil.
func (p *Parser) attempt(parse func() *Node) (n *Node) {
	saved := *p.l
	savedNoConstructor := p.noConstructor
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			*p.l = saved
			p.noConstructor = savedNoConstructor
			n = nil
		}
	}()
	return parse()
}

// nested parses a parenthesized or braced sub-expression, where
// constructors are allowed again.
func (p *Parser) nested(parse func() *Node) *Node {
	saved := p.noConstructor
	p.noConstructor = false
	defer func() { p.noConstructor = saved }()
	return parse()
}

func wrap(kind NodeKind, child *Node) *Node {
	return &Node{Kind: kind, Children: []*Node{child}, Pos: child.Pos}
}

func (p *Parser) parseModule() *Node {
	module := &Node{Kind: NodeModule, Pos: p.l.CurrPos}
	for !p.at(EOF) {
		if p.at(SEMICOLON) {
			p.next()
			continue
		}
		module.Children = append(module.Children, p.parseElement())
	}
	return module
}

func (p *Parser) parseElement() *Node {
	switch p.l.CurrTokenType {
	case INCLUDE:
		return p.parseInclude()
	case GENERIC:
		pos := p.expect(GENERIC)
		return &Node{Kind: NodeGeneric, Children: []*Node{p.ident("generic parameter name")}, Pos: pos}
	case STRUCT:
		return p.parseStruct()
	case IDENT:
		return p.parseFunction()
	default:
		p.fail("expected include, generic, struct or function definition, found %s", p.describe())
		return nil
	}
}

// parseInclude handles both
//
//	include <stdio.h>
//	include "box.grv" (T = int, U = float)
func (p *Parser) parseInclude() *Node {
	pos := p.expect(INCLUDE)

	var target *Node
	switch p.l.CurrTokenType {
	case LT:
		targetPos := p.l.CurrPos
		name, ok := p.l.ReadHeaderName()
		if !ok {
			p.failAt(targetPos, "unterminated header name")
		}
		target = &Node{Kind: NodeToken, Text: name, Pos: targetPos}
	case STRING:
		target = p.token()
	default:
		p.fail("expected include target, found %s", p.describe())
	}

	if !p.at(LPAREN) {
		return &Node{Kind: NodeInclude, Children: []*Node{target}, Pos: pos}
	}

	p.expect(LPAREN)
	include := &Node{Kind: NodeGenericInclude, Pos: pos}
	for {
		assignPos := p.l.CurrPos
		name := p.ident("generic parameter name")
		p.expect(ASSIGN)
		value := p.parseType()
		include.Children = append(include.Children, &Node{
			Kind:     NodeGenericIncludeAssignment,
			Children: []*Node{name, value},
			Pos:      assignPos,
		})
		if !p.at(COMMA) {
			break
		}
		p.next()
	}
	p.expect(RPAREN)
	include.Children = append(include.Children, target)
	return include
}

func (p *Parser) parseStruct() *Node {
	pos := p.expect(STRUCT)
	def := &Node{Kind: NodeStructDefinition, Children: []*Node{p.parseTypeName()}, Pos: pos}
	p.expect(LBRACE)
	for !p.at(RBRACE) {
		fieldPos := p.l.CurrPos
		typ := p.parseType()
		name := p.ident("field name")
		def.Children = append(def.Children, &Node{
			Kind:     NodeVariableDefinition,
			Children: []*Node{typ, name},
			Pos:      fieldPos,
		})
		if p.at(SEMICOLON) || p.at(COMMA) {
			p.next()
		} else if !p.at(RBRACE) {
			p.fail("expected ';' or '}' after field, found %s", p.describe())
		}
	}
	p.expect(RBRACE)
	return def
}

func (p *Parser) parseFunction() *Node {
	pos := p.l.CurrPos
	returnType := p.parseType()

	namePos := p.l.CurrPos
	name := &Node{Kind: NodeFunctionName, Children: []*Node{p.ident("function name")}, Pos: namePos}
	if p.at(LT) {
		name.Children = append(name.Children, p.parseGenericPostfix())
	}

	args := &Node{Kind: NodeArguments, Pos: p.expect(LPAREN)}
	for !p.at(RPAREN) {
		argPos := p.l.CurrPos
		typ := p.parseType()
		argName := p.ident("parameter name")
		args.Children = append(args.Children, &Node{
			Kind:     NodeVariableDefinition,
			Children: []*Node{typ, argName},
			Pos:      argPos,
		})
		if p.at(COMMA) {
			p.next()
		} else if !p.at(RPAREN) {
			p.fail("expected ',' or ')' in parameter list, found %s", p.describe())
		}
	}
	p.expect(RPAREN)

	signature := &Node{Kind: NodeSignature, Children: []*Node{returnType, name, args}, Pos: pos}
	return &Node{Kind: NodeFunctionDefinition, Children: []*Node{signature, p.parseBlock()}, Pos: pos}
}

func (p *Parser) parseTypeName() *Node {
	pos := p.l.CurrPos
	name := &Node{Kind: NodeTypeName, Children: []*Node{p.ident("type name")}, Pos: pos}
	if p.at(LT) {
		name.Children = append(name.Children, p.parseGenericPostfix())
	}
	return name
}

func (p *Parser) parseType() *Node {
	typ := p.parseTypeName()
	for p.at(ASTERISK) {
		pos := p.l.CurrPos
		p.next()
		typ = &Node{Kind: NodePointerType, Children: []*Node{typ}, Pos: pos}
	}
	return typ
}

func (p *Parser) parseGenericPostfix() *Node {
	postfix := &Node{Kind: NodeGenericPostfix, Pos: p.expect(LT)}
	for {
		postfix.Children = append(postfix.Children, p.parseType())
		if !p.at(COMMA) {
			break
		}
		p.next()
	}
	p.closeAngle()
	return postfix
}

// closeAngle consumes one '>', splitting a '>>' that closes two nested
// generic argument lists.
func (p *Parser) closeAngle() {
	switch p.l.CurrTokenType {
	case GT:
		p.next()
	case SHR:
		p.l.CurrTokenType = GT
		p.l.CurrLiteral = string(GT)
		p.l.CurrPos.Col++
	default:
		p.fail("expected '>' to close generic arguments, found %s", p.describe())
	}
}

// item is one entry of a braced list, before it is known whether the list
// is a value block or a statement block.
type item struct {
	node       *Node
	expression bool // node is an expression rather than a statement form
	terminated bool // followed by ';'
}

func (p *Parser) parseItems() ([]item, Pos) {
	pos := p.expect(LBRACE)
	var items []item
	for !p.at(RBRACE) {
		if p.at(SEMICOLON) {
			p.next()
			continue
		}
		it := p.parseItem()
		if p.at(SEMICOLON) {
			p.next()
			it.terminated = true
		} else if !p.at(RBRACE) && !closedByBrace(it.node) {
			p.fail("expected ';' or '}' after statement, found %s", p.describe())
		}
		items = append(items, it)
	}
	p.expect(RBRACE)
	return items, pos
}

func closedByBrace(n *Node) bool {
	return n.Kind == NodeStatementIf || n.Kind == NodeStatementLoop
}

func endsInValue(items []item) bool {
	if len(items) == 0 {
		return false
	}
	last := items[len(items)-1]
	return last.expression && !last.terminated
}

func statementOf(it item) *Node {
	inner := it.node
	if it.expression {
		inner = wrap(NodeExpression, inner)
	}
	return wrap(NodeStatement, inner)
}

func (p *Parser) blockOf(items []item, pos Pos) *Node {
	if len(items) == 0 {
		p.failAt(pos, "block must contain at least one expression or statement")
	}
	block := &Node{Kind: NodeBlock, Pos: pos}
	for i, it := range items {
		if i == len(items)-1 && it.expression && !it.terminated {
			block.Children = append(block.Children, wrap(NodeExpression, it.node))
		} else {
			block.Children = append(block.Children, statementOf(it))
		}
	}
	return block
}

func statementBlockOf(items []item, pos Pos) *Node {
	block := &Node{Kind: NodeStatementBlock, Pos: pos}
	for _, it := range items {
		block.Children = append(block.Children, statementOf(it))
	}
	return block
}

func (p *Parser) parseBlock() *Node {
	items, pos := p.parseItems()
	return p.blockOf(items, pos)
}

func (p *Parser) parseStatementBlock() *Node {
	items, pos := p.parseItems()
	return statementBlockOf(items, pos)
}

// ifClause is a parsed if/else chain that can still become either the
// conditional expression or the conditional statement.
type ifClause struct {
	pos       Pos
	cond      *Node
	then      []item
	thenPos   Pos
	hasElse   bool
	elseIf    *ifClause
	elseItems []item
	elsePos   Pos
}

func (p *Parser) parseIfClause() *ifClause {
	c := &ifClause{pos: p.expect(IF)}
	c.cond = p.parseCondition()
	c.then, c.thenPos = p.parseItems()
	if !p.at(ELSE) {
		return c
	}
	p.next()
	c.hasElse = true
	if p.at(IF) {
		c.elseIf = p.parseIfClause()
	} else {
		c.elseItems, c.elsePos = p.parseItems()
	}
	return c
}

// valued reports whether every branch ends in an unterminated expression.
func (c *ifClause) valued() bool {
	if !c.hasElse || !endsInValue(c.then) {
		return false
	}
	if c.elseIf != nil {
		return c.elseIf.valued()
	}
	return endsInValue(c.elseItems)
}

func (p *Parser) ifExpression(c *ifClause) *Node {
	var otherwise *Node
	if c.elseIf != nil {
		otherwise = p.ifExpression(c.elseIf)
	} else {
		otherwise = p.blockOf(c.elseItems, c.elsePos)
	}
	return &Node{
		Kind:     NodeIf,
		Children: []*Node{c.cond, p.blockOf(c.then, c.thenPos), otherwise},
		Pos:      c.pos,
	}
}

func ifStatement(c *ifClause) *Node {
	stmt := &Node{
		Kind:     NodeStatementIf,
		Children: []*Node{c.cond, statementBlockOf(c.then, c.thenPos)},
		Pos:      c.pos,
	}
	switch {
	case c.elseIf != nil:
		stmt.Children = append(stmt.Children, &Node{
			Kind:     NodeStatementBlock,
			Children: []*Node{wrap(NodeStatement, ifStatement(c.elseIf))},
			Pos:      c.elseIf.pos,
		})
	case c.hasElse:
		stmt.Children = append(stmt.Children, statementBlockOf(c.elseItems, c.elsePos))
	}
	return stmt
}

func (p *Parser) parseCondition() *Node {
	saved := p.noConstructor
	p.noConstructor = true
	defer func() { p.noConstructor = saved }()
	return p.parseExpression()
}

func (p *Parser) parseItem() item {
	pos := p.l.CurrPos
	switch p.l.CurrTokenType {
	case RETURN:
		p.next()
		ret := &Node{Kind: NodeReturn, Pos: pos}
		if !p.at(SEMICOLON) && !p.at(RBRACE) {
			ret.Children = []*Node{p.parseExpression()}
		}
		return item{node: ret}

	case BREAK:
		p.next()
		return item{node: &Node{Kind: NodeBreak, Pos: pos}}

	case CONTINUE:
		p.next()
		return item{node: &Node{Kind: NodeContinue, Pos: pos}}

	case LOOP:
		p.next()
		return item{node: &Node{Kind: NodeStatementLoop, Children: []*Node{p.parseStatementBlock()}, Pos: pos}}

	case IF:
		c := p.parseIfClause()
		// A trailing if/else that yields values is the block's value.
		if p.at(RBRACE) && c.valued() {
			return item{node: p.ifExpression(c), expression: true}
		}
		return item{node: ifStatement(c)}

	case MUT:
		p.next()
		typ := &Node{Kind: NodeMutableType, Children: []*Node{p.parseType()}, Pos: pos}
		def := &Node{Kind: NodeVariableDefinition, Children: []*Node{typ, p.ident("variable name")}, Pos: pos}
		return item{node: p.parseInitializer(def)}

	case IDENT:
		def := p.attempt(func() *Node {
			typ := p.parseType()
			name := p.ident("variable name")
			if !p.at(ASSIGN) && !p.at(SEMICOLON) && !p.at(RBRACE) {
				p.fail("not a variable definition")
			}
			// "a * b" without an initializer is a product.
			if typ.Kind == NodePointerType && !p.at(ASSIGN) {
				p.fail("not a variable definition")
			}
			return &Node{Kind: NodeVariableDefinition, Children: []*Node{typ, name}, Pos: pos}
		})
		if def != nil {
			return item{node: p.parseInitializer(def)}
		}
	}

	lhs := p.parseExpression()
	if p.at(ASSIGN) {
		p.next()
		rhs := p.parseExpression()
		return item{node: &Node{Kind: NodeVariableAssignment, Children: []*Node{lhs, rhs}, Pos: pos}}
	}
	return item{node: lhs, expression: true}
}

func (p *Parser) parseInitializer(def *Node) *Node {
	if p.at(ASSIGN) {
		p.next()
		def.Children = append(def.Children, p.parseExpression())
	}
	return def
}

// precedence returns the binding power of a binary operator, 0 for
// anything else. The levels follow C so that lowered text re-parses to
// the same tree.
func precedence(t TokenType) int {
	switch t {
	case OR:
		return 1
	case AND:
		return 2
	case BIT_OR:
		return 3
	case XOR:
		return 4
	case BIT_AND:
		return 5
	case EQ, NOT_EQ:
		return 6
	case LT, GT, LE, GE:
		return 7
	case SHL, SHR:
		return 8
	case PLUS, MINUS:
		return 9
	case ASTERISK, SLASH, PERCENT:
		return 10
	default:
		return 0
	}
}

// parseExpression parses one expression with precedence climbing.
func (p *Parser) parseExpression() *Node {
	return p.parseBinary(1)
}

func (p *Parser) parseBinary(minPrec int) *Node {
	left := p.parseUnary()
	for {
		prec := precedence(p.l.CurrTokenType)
		if prec == 0 || prec < minPrec {
			return left
		}
		op := p.token()
		right := p.parseBinary(prec + 1) // left-associative
		left = &Node{Kind: NodeInfixOperation, Children: []*Node{left, op, right}, Pos: op.Pos}
	}
}

func (p *Parser) parseUnary() *Node {
	switch p.l.CurrTokenType {
	case MINUS, BANG, TILDE, ASTERISK, BIT_AND:
		op := p.token()
		operand := p.parseUnary()
		return &Node{Kind: NodePrefixOperation, Children: []*Node{op, operand}, Pos: op.Pos}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() *Node {
	expr := p.parsePrimary()
	for {
		pos := p.l.CurrPos
		switch p.l.CurrTokenType {
		case LPAREN:
			p.next()
			call := &Node{Kind: NodeCall, Children: []*Node{expr}, Pos: pos}
			call.Children = append(call.Children, p.parseList(RPAREN)...)
			expr = call
		case LBRACKET:
			p.next()
			index := p.nested(p.parseExpression)
			p.expect(RBRACKET)
			expr = &Node{Kind: NodeIndex, Children: []*Node{expr, index}, Pos: pos}
		default:
			return expr
		}
	}
}

// parseList parses comma-separated expressions up to and including the
// closing token; the opening token is already consumed.
func (p *Parser) parseList(closing TokenType) []*Node {
	var list []*Node
	p.nested(func() *Node {
		for !p.at(closing) {
			list = append(list, p.parseExpression())
			if p.at(COMMA) {
				p.next()
			} else if !p.at(closing) {
				p.fail("expected ',' or %q, found %s", string(closing), p.describe())
			}
		}
		return nil
	})
	p.expect(closing)
	return list
}

func (p *Parser) parsePrimary() *Node {
	pos := p.l.CurrPos
	switch p.l.CurrTokenType {
	case INT, FLOAT, STRING, CHAR:
		return p.token()

	case LPAREN:
		// Parentheses survive as a single-expression block: (x).
		p.next()
		inner := p.nested(p.parseExpression)
		p.expect(RPAREN)
		return &Node{Kind: NodeBlock, Children: []*Node{wrap(NodeExpression, inner)}, Pos: pos}

	case LBRACE:
		return p.nested(p.parseBlock)

	case IF:
		c := p.parseIfClause()
		if !c.valued() {
			p.failAt(c.pos, "if used as a value needs an else branch and an expression at the end of every branch")
		}
		return p.ifExpression(c)

	case IDENT:
		return p.parseName()
	}
	p.fail("expected expression, found %s", p.describe())
	return nil
}

// parseName parses identifiers (p.x), generic names (max<int>) and
// constructors (Point{1, 2}, Box<int>{3}).
func (p *Parser) parseName() *Node {
	pos := p.l.CurrPos
	name := p.token()

	var postfix *Node
	if p.at(LT) {
		postfix = p.attempt(func() *Node {
			g := p.parseGenericPostfix()
			if !p.at(LPAREN) && !(p.at(LBRACE) && !p.noConstructor) {
				p.fail("not a generic argument list")
			}
			return g
		})
	}

	if p.at(LBRACE) && !p.noConstructor {
		typ := &Node{Kind: NodeTypeName, Children: []*Node{name}, Pos: pos}
		if postfix != nil {
			typ.Children = append(typ.Children, postfix)
		}
		p.next()
		ctor := &Node{Kind: NodeConstructor, Children: []*Node{typ}, Pos: pos}
		ctor.Children = append(ctor.Children, p.parseList(RBRACE)...)
		return ctor
	}

	first := name
	if postfix != nil {
		first = &Node{Kind: NodeIdentifierPiece, Children: []*Node{name, postfix}, Pos: pos}
	}
	id := &Node{Kind: NodeIdentifier, Children: []*Node{first}, Pos: pos}
	for p.at(DOT) {
		p.next()
		id.Children = append(id.Children, p.ident("field name after '.'"))
	}
	return id
}
