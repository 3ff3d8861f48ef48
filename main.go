package main

import (
	"fmt"
	"strings"

	"github.com/girvel/girvel/sexy"
)

// Pos is a 1-based line/column position in a source buffer.
// The zero value means "unknown".
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// IsValid reports whether the position points into a source buffer.
func (p Pos) IsValid() bool {
	return p.Line > 0
}

// NodeKind names a node of the syntax tree handed to the lowering engine.
type NodeKind string

const (
	NodeToken NodeKind = "token"

	NodeModule                   NodeKind = "module"
	NodeInclude                  NodeKind = "include"
	NodeGenericInclude           NodeKind = "generic_include"
	NodeGenericIncludeAssignment NodeKind = "generic_include_assignment"
	NodeGeneric                  NodeKind = "generic"
	NodeFunctionDefinition       NodeKind = "function_definition"
	NodeSignature                NodeKind = "signature"
	NodeFunctionName             NodeKind = "function_name"
	NodeArguments                NodeKind = "arguments"
	NodeStructDefinition         NodeKind = "struct_definition"
	NodeTypeName                 NodeKind = "type_name"
	NodeGenericPostfix           NodeKind = "generic_postfix"
	NodePointerType              NodeKind = "pointer_type"
	NodeMutableType              NodeKind = "mutable_type"
	NodeBlock                    NodeKind = "block"
	NodeStatementBlock           NodeKind = "statement_block"
	NodeStatement                NodeKind = "statement"
	NodeExpression               NodeKind = "expression"
	NodeVariableDefinition       NodeKind = "variable_definition"
	NodeVariableAssignment       NodeKind = "variable_assignment"
	NodeVariableDeclaration      NodeKind = "variable_declaration"
	NodeIdentifier               NodeKind = "identifier"
	NodeIdentifierPiece          NodeKind = "identifier_piece"
	NodeIf                       NodeKind = "if"
	NodeStatementIf              NodeKind = "statement_if"
	NodeStatementLoop            NodeKind = "statement_loop"
	NodeReturn                   NodeKind = "return"
	NodeBreak                    NodeKind = "break"
	NodeContinue                 NodeKind = "continue"
	NodeOperation                NodeKind = "operation"
	NodeInfixOperation           NodeKind = "infix_operation"
	NodePrefixOperation          NodeKind = "prefix_operation"
	NodeCall                     NodeKind = "call"
	NodeConstructor              NodeKind = "constructor"
	NodeIndex                    NodeKind = "index"
)

// Node is one node of the syntax tree. Token nodes are leaves and carry
// verbatim source text; every other kind only has children.
type Node struct {
	Kind     NodeKind
	Text     string // NodeToken
	Children []*Node
	Pos      Pos
}

func tok(text string) *Node {
	return &Node{Kind: NodeToken, Text: text}
}

func node(kind NodeKind, children ...*Node) *Node {
	return &Node{Kind: kind, Children: children}
}

// ToSExpr renders a tree as an s-expression: (kind child...), with tokens
// as string atoms.
func ToSExpr(n *Node) string {
	return toSexy(n).String()
}

func toSexy(n *Node) *sexy.Node {
	if n.Kind == NodeToken {
		return sexy.NewString(n.Text)
	}
	items := []*sexy.Node{sexy.NewSymbol(string(n.Kind))}
	for _, child := range n.Children {
		items = append(items, toSexy(child))
	}
	return sexy.NewList(items)
}

// TreeFromSExpr builds a syntax tree from its s-expression form. This is
// the boundary used by external tree producers. Node kinds are not checked
// here; the lowering engine rejects unknown kinds.
func TreeFromSExpr(text string) (*Node, error) {
	datum, err := sexy.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return fromSexy(datum)
}

func fromSexy(d *sexy.Node) (*Node, error) {
	pos := Pos{Line: d.Line, Col: d.Col}
	switch d.Type {
	case sexy.NodeString, sexy.NodeInteger:
		return &Node{Kind: NodeToken, Text: d.Text, Pos: pos}, nil
	case sexy.NodeList:
		if len(d.Items) == 0 || d.Items[0].Type != sexy.NodeSymbol {
			return nil, &StructuralError{Pos: pos, Message: "tree node must start with its kind"}
		}
		n := &Node{Kind: NodeKind(d.Items[0].Text), Pos: pos}
		for _, item := range d.Items[1:] {
			child, err := fromSexy(item)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		}
		return n, nil
	default:
		return nil, &StructuralError{Pos: pos, Message: fmt.Sprintf("unexpected %s in tree", d)}
	}
}

// TokenType is the type of a lexer token.
type TokenType string

const (
	ILLEGAL TokenType = "ILLEGAL"
	EOF     TokenType = "EOF"

	IDENT  TokenType = "IDENT"
	INT    TokenType = "INT"
	FLOAT  TokenType = "FLOAT"
	STRING TokenType = "STRING"
	CHAR   TokenType = "CHAR"

	ASSIGN   TokenType = "="
	PLUS     TokenType = "+"
	MINUS    TokenType = "-"
	BANG     TokenType = "!"
	TILDE    TokenType = "~"
	ASTERISK TokenType = "*"
	SLASH    TokenType = "/"
	PERCENT  TokenType = "%"

	LT     TokenType = "<"
	GT     TokenType = ">"
	EQ     TokenType = "=="
	NOT_EQ TokenType = "!="
	LE     TokenType = "<="
	GE     TokenType = ">="

	AND     TokenType = "&&"
	OR      TokenType = "||"
	BIT_AND TokenType = "&"
	BIT_OR  TokenType = "|"
	XOR     TokenType = "^"
	SHL     TokenType = "<<"
	SHR     TokenType = ">>"

	COMMA     TokenType = ","
	SEMICOLON TokenType = ";"
	LPAREN    TokenType = "("
	RPAREN    TokenType = ")"
	LBRACE    TokenType = "{"
	RBRACE    TokenType = "}"
	LBRACKET  TokenType = "["
	RBRACKET  TokenType = "]"
	DOT       TokenType = "."

	INCLUDE  TokenType = "INCLUDE"
	GENERIC  TokenType = "GENERIC"
	STRUCT   TokenType = "STRUCT"
	IF       TokenType = "IF"
	ELSE     TokenType = "ELSE"
	LOOP     TokenType = "LOOP"
	RETURN   TokenType = "RETURN"
	BREAK    TokenType = "BREAK"
	CONTINUE TokenType = "CONTINUE"
	MUT      TokenType = "MUT"
)

var keywords = map[string]TokenType{
	"include":  INCLUDE,
	"generic":  GENERIC,
	"struct":   STRUCT,
	"if":       IF,
	"else":     ELSE,
	"loop":     LOOP,
	"return":   RETURN,
	"break":    BREAK,
	"continue": CONTINUE,
	"mut":      MUT,
}

// Lexer turns a null-terminated source buffer into tokens, one at a time.
// The current token lives in the Curr* fields.
type Lexer struct {
	input     []byte
	pos       int // current reading position in input
	line      int
	lineStart int // offset of the first byte of the current line

	CurrTokenType TokenType
	CurrLiteral   string
	CurrPos       Pos
}

// NewLexer creates a lexer over input. A terminating 0 byte is appended
// when missing.
func NewLexer(input []byte) *Lexer {
	if len(input) == 0 || input[len(input)-1] != 0 {
		input = append(input[:len(input):len(input)], 0)
	}
	return &Lexer{input: input, line: 1}
}

// PeekToken returns the type of the token after the current one without
// advancing.
func (l *Lexer) PeekToken() TokenType {
	saved := *l
	l.NextToken()
	next := l.CurrTokenType
	*l = saved
	return next
}

// ReadHeaderName reads a raw "<...>" include target. It must be called
// while the current token is LT; on success the lexer is positioned on the
// token following '>'.
func (l *Lexer) ReadHeaderName() (string, bool) {
	if l.CurrTokenType != LT {
		return "", false
	}
	start := l.pos
	for l.input[l.pos] != '>' {
		if l.input[l.pos] == 0 || l.input[l.pos] == '\n' {
			return "", false
		}
		l.pos++
	}
	name := "<" + string(l.input[start:l.pos]) + ">"
	l.pos++
	l.NextToken()
	return name, true
}

func (l *Lexer) set(t TokenType, literal string, width int) {
	l.CurrTokenType = t
	l.CurrLiteral = literal
	l.pos += width
}

// NextToken scans the next token into the Curr* fields.
func (l *Lexer) NextToken() {
	l.skipWhitespaceAndComments()
	l.CurrPos = Pos{Line: l.line, Col: l.pos - l.lineStart + 1}

	c := l.input[l.pos]
	if c != 0 {
		if op, ok := twoByteOperators[string(l.input[l.pos:l.pos+2])]; ok {
			l.set(op, string(op), 2)
			return
		}
	}

	switch {
	case c == 0 && l.pos < len(l.input)-1:
		l.set(ILLEGAL, string(c), 1)
	case c == 0:
		l.set(EOF, "", 0)
	case c == '"':
		l.readQuoted('"', STRING)
	case c == '\'':
		l.readQuoted('\'', CHAR)
	case isLetter(c):
		lit := l.readIdentifier()
		if kw, ok := keywords[lit]; ok {
			l.CurrTokenType = kw
		} else {
			l.CurrTokenType = IDENT
		}
		l.CurrLiteral = lit
	case isDigit(c):
		l.readNumber()
	default:
		if op, ok := oneByteOperators[c]; ok {
			l.set(op, string(c), 1)
			return
		}
		l.set(ILLEGAL, string(c), 1)
	}
}

var twoByteOperators = map[string]TokenType{
	"==": EQ, "!=": NOT_EQ, "<=": LE, ">=": GE,
	"&&": AND, "||": OR, "<<": SHL, ">>": SHR,
}

var oneByteOperators = map[byte]TokenType{
	'=': ASSIGN, '+': PLUS, '-': MINUS, '!': BANG, '~': TILDE,
	'*': ASTERISK, '/': SLASH, '%': PERCENT, '<': LT, '>': GT,
	'&': BIT_AND, '|': BIT_OR, '^': XOR,
	',': COMMA, ';': SEMICOLON, '(': LPAREN, ')': RPAREN,
	'{': LBRACE, '}': RBRACE, '[': LBRACKET, ']': RBRACKET, '.': DOT,
}

func (l *Lexer) newline() {
	l.line++
	l.lineStart = l.pos + 1
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		c := l.input[l.pos]
		switch {
		case c == '\n':
			l.newline()
			l.pos++
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '/' && l.input[l.pos+1] == '/':
			for l.input[l.pos] != '\n' && l.input[l.pos] != 0 {
				l.pos++
			}
		case c == '/' && l.input[l.pos+1] == '*':
			l.pos += 2
			for l.input[l.pos] != 0 && !(l.input[l.pos] == '*' && l.input[l.pos+1] == '/') {
				if l.input[l.pos] == '\n' {
					l.newline()
				}
				l.pos++
			}
			if l.input[l.pos] != 0 {
				l.pos += 2
			}
		default:
			return
		}
	}
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || c == '_'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isLetter(l.input[l.pos]) || isDigit(l.input[l.pos]) {
		l.pos++
	}
	return string(l.input[start:l.pos])
}

// readNumber accepts C-style suffixes and hex digits (12u, 1.5f, 0xff);
// the literal is passed to C verbatim.
func (l *Lexer) readNumber() {
	start := l.pos
	kind := INT
	for {
		c := l.input[l.pos]
		if c == '.' && isDigit(l.input[l.pos+1]) {
			kind = FLOAT
		} else if !isLetter(c) && !isDigit(c) {
			break
		}
		l.pos++
	}
	l.CurrTokenType = kind
	l.CurrLiteral = string(l.input[start:l.pos])
}

// readQuoted keeps the quotes and escapes so the literal can be emitted
// unchanged.
func (l *Lexer) readQuoted(quote byte, kind TokenType) {
	start := l.pos
	l.pos++
	for l.input[l.pos] != quote {
		c := l.input[l.pos]
		if c == 0 || c == '\n' {
			l.CurrTokenType = ILLEGAL
			l.CurrLiteral = strings.TrimSpace(string(l.input[start:l.pos]))
			return
		}
		if c == '\\' && l.input[l.pos+1] != 0 {
			l.pos++
			if l.input[l.pos] == '\n' {
				l.newline()
			}
		}
		l.pos++
	}
	l.pos++
	l.CurrTokenType = kind
	l.CurrLiteral = string(l.input[start:l.pos])
}
