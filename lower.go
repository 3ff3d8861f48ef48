package main

import (
	"fmt"
	"strings"
)

// Options configures the lowering of one unit.
type Options struct {
	// SourceExt marks include targets that are project sources; they are
	// rewritten to OutputExt.
	SourceExt string
	OutputExt string

	// Includes maps include paths, as written between the quotes or angle
	// brackets, to the path the generated C should include instead. It
	// takes precedence over the extension rewrite.
	Includes map[string]string

	// IncludeGuard, when set, wraps units that open no generic guard in an
	// #ifndef/#define/#endif guard with this name.
	IncludeGuard string
}

// DefaultOptions returns the options used by the driver for .grv sources.
func DefaultOptions() Options {
	return Options{SourceExt: ".grv", OutputExt: ".c"}
}

// fragment is the lowered form of one node.
type fragment struct {
	text string
	// parts holds the lowered children a parent may need separately: the
	// pieces of a multi-piece name, the statements of a block, the
	// name/value of a generic include assignment.
	parts []string
	// deferred marks names that are only complete after preprocessing
	// (a generic parameter, or a CONCATn invocation).
	deferred bool
	// arity is n when text is a CONCATn invocation.
	arity int
}

func text(s string) (fragment, error) {
	return fragment{text: s}, nil
}

func texts(kids []fragment) []string {
	out := make([]string, len(kids))
	for i, k := range kids {
		out[i] = k.text
	}
	return out
}

// Translator holds the state of one module translation. A Translator must
// not be shared between goroutines; give each unit its own.
type Translator struct {
	opts Options

	footer   []string        // pending guard closers, innermost last
	arities  map[int]int     // uses of each CONCATn arity in the output
	generics map[string]bool // generic parameters opened by `generic`
	inStruct bool
}

func NewTranslator(opts Options) *Translator {
	t := &Translator{opts: opts}
	t.reset()
	return t
}

func (t *Translator) reset() {
	t.footer = nil
	t.arities = map[int]int{}
	t.generics = map[string]bool{}
	t.inStruct = false
}

// Lower translates a module tree into one C translation unit. State from a
// previous call is discarded first. On error no text is returned.
func (t *Translator) Lower(root *Node) (string, error) {
	t.reset()
	if root == nil {
		return "", &StructuralError{Message: "no tree to lower"}
	}
	if root.Kind != NodeModule {
		return "", &StructuralError{Kind: root.Kind, Pos: root.Pos, Message: "tree root must be a module"}
	}
	f, err := t.visit(root)
	if err != nil {
		return "", err
	}
	return f.text, nil
}

// Lower translates a module tree with a fresh Translator.
func Lower(root *Node, opts Options) (string, error) {
	return NewTranslator(opts).Lower(root)
}

// Transpile parses source and lowers it to C.
func Transpile(source []byte, opts Options) (string, error) {
	tree, err := Parse(source)
	if err != nil {
		return "", err
	}
	return Lower(tree, opts)
}

func (t *Translator) visit(n *Node) (fragment, error) {
	r, ok := rules[n.Kind]
	if !ok {
		return fragment{}, &StructuralError{Kind: n.Kind, Pos: n.Pos, Message: "unknown node kind"}
	}
	if err := r.check(n); err != nil {
		return fragment{}, err
	}

	var restore func()
	if r.enter != nil {
		restore = r.enter(t)
	}
	kids := make([]fragment, len(n.Children))
	var err error
	for i, child := range n.Children {
		if child == nil {
			err = &StructuralError{Kind: n.Kind, Pos: n.Pos, Message: fmt.Sprintf("child %d is missing", i)}
			break
		}
		if kids[i], err = t.visit(child); err != nil {
			break
		}
	}
	if restore != nil {
		restore()
	}
	if err != nil {
		return fragment{}, err
	}
	return r.lower(t, n, kids)
}

// rule is the translation of one node kind.
type rule struct {
	min, max int // accepted child counts; max < 0 means unbounded
	// enter runs before the children are lowered and returns the undo.
	enter func(t *Translator) (restore func())
	lower func(t *Translator, n *Node, kids []fragment) (fragment, error)
}

func (r rule) check(n *Node) error {
	count := len(n.Children)
	if count >= r.min && (r.max < 0 || count <= r.max) {
		return nil
	}
	var want string
	switch {
	case r.min == r.max:
		want = fmt.Sprintf("%d", r.min)
	case r.max < 0:
		want = fmt.Sprintf("at least %d", r.min)
	default:
		want = fmt.Sprintf("%d to %d", r.min, r.max)
	}
	return &StructuralError{
		Kind:    n.Kind,
		Pos:     n.Pos,
		Message: fmt.Sprintf("expected %s children, got %d", want, count),
	}
}

// rules maps every node kind to its translation. A kind missing here is
// rejected as a structural error.
var rules = map[NodeKind]rule{
	NodeToken: {0, 0, nil, lowerToken},

	NodeModule:                   {0, -1, nil, lowerModule},
	NodeInclude:                  {1, 1, nil, lowerInclude},
	NodeGenericInclude:           {1, -1, nil, lowerGenericInclude},
	NodeGenericIncludeAssignment: {2, 2, nil, lowerGenericIncludeAssignment},
	NodeGeneric:                  {1, 1, nil, lowerGeneric},

	NodeFunctionDefinition: {2, 2, nil, lowerFunctionDefinition},
	NodeSignature:          {3, 3, nil, lowerSignature},
	NodeFunctionName:       {1, -1, nil, lowerName},
	NodeArguments:          {0, -1, nil, lowerArguments},

	NodeStructDefinition: {1, -1, enterStruct, lowerStructDefinition},
	NodeTypeName:         {1, -1, nil, lowerName},
	NodeGenericPostfix:   {1, -1, nil, lowerName},
	NodeIdentifierPiece:  {1, -1, nil, lowerName},
	NodePointerType:      {1, 1, nil, lowerPointerType},
	NodeMutableType:      {1, 1, nil, passThrough},

	NodeBlock:          {1, -1, nil, lowerBlock},
	NodeStatementBlock: {0, -1, nil, lowerStatementBlock},
	NodeStatement:      {1, 1, nil, passThrough},
	NodeExpression:     {1, 1, nil, passThrough},

	NodeVariableDefinition:  {2, 3, nil, lowerVariableDefinition},
	NodeVariableAssignment:  {2, 2, nil, lowerVariableAssignment},
	NodeVariableDeclaration: {3, 3, nil, lowerVariableDeclaration},
	NodeIdentifier:          {1, -1, nil, lowerIdentifier},

	NodeIf:            {3, 3, nil, lowerIf},
	NodeStatementIf:   {2, 3, nil, lowerStatementIf},
	NodeStatementLoop: {1, 1, nil, lowerStatementLoop},
	NodeReturn:        {0, 1, nil, lowerReturn},
	NodeBreak:         {0, 0, nil, lowerKeyword("break")},
	NodeContinue:      {0, 0, nil, lowerKeyword("continue")},

	NodeOperation:       {2, -1, nil, lowerOperation},
	NodeInfixOperation:  {3, 3, nil, lowerOperation},
	NodePrefixOperation: {2, 2, nil, lowerOperation},
	NodeCall:            {1, -1, nil, lowerCall},
	NodeConstructor:     {1, -1, nil, lowerConstructor},
	NodeIndex:           {2, 2, nil, lowerIndex},
}

func indent(code string) string {
	return strings.ReplaceAll(code, "\n", "\n    ")
}

// terminate ends a statement with ';' unless it already ends with a
// closing brace.
func terminate(stmt string) string {
	if strings.HasSuffix(stmt, "}") {
		return stmt
	}
	return stmt + ";"
}

func joinStatements(stmts []string) string {
	lines := make([]string, len(stmts))
	for i, s := range stmts {
		lines[i] = terminate(s)
	}
	return strings.Join(lines, "\n")
}

// statementKinds are the statement forms that yield no value.
var statementKinds = map[NodeKind]bool{
	NodeVariableDefinition:  true,
	NodeVariableAssignment:  true,
	NodeVariableDeclaration: true,
	NodeReturn:              true,
	NodeBreak:               true,
	NodeContinue:            true,
	NodeStatementIf:         true,
	NodeStatementLoop:       true,
	NodeStatementBlock:      true,
}

// yieldsValue reports whether a block ends in an expression.
func yieldsValue(block *Node) bool {
	if len(block.Children) == 0 {
		return false
	}
	last := block.Children[len(block.Children)-1]
	if last.Kind == NodeStatement && len(last.Children) == 1 {
		last = last.Children[0]
	}
	return !statementKinds[last.Kind]
}

func lowerToken(t *Translator, n *Node, kids []fragment) (fragment, error) {
	return text(n.Text)
}

func passThrough(t *Translator, n *Node, kids []fragment) (fragment, error) {
	return kids[0], nil
}

func lowerKeyword(keyword string) func(*Translator, *Node, []fragment) (fragment, error) {
	return func(*Translator, *Node, []fragment) (fragment, error) {
		return text(keyword)
	}
}

func lowerFunctionDefinition(t *Translator, n *Node, kids []fragment) (fragment, error) {
	signature, body := kids[0], kids[1]
	if n.Children[0].Kind != NodeSignature {
		return fragment{}, &StructuralError{Kind: n.Kind, Pos: n.Pos, Message: "first child must be a signature"}
	}

	var code string
	switch {
	case n.Children[1].Kind == NodeBlock && !yieldsValue(n.Children[1]):
		code = joinStatements(body.parts)
	case signature.parts[0] == "void":
		code = terminate(body.text)
	default:
		code = "return " + body.text + ";"
	}
	return text("\n" + signature.text + " {" + indent("\n"+code) + "\n}\n")
}

func lowerSignature(t *Translator, n *Node, kids []fragment) (fragment, error) {
	parts := texts(kids)
	return fragment{text: parts[0] + " " + parts[1] + parts[2], parts: parts}, nil
}

func lowerArguments(t *Translator, n *Node, kids []fragment) (fragment, error) {
	return text("(" + strings.Join(texts(kids), ", ") + ")")
}

func lowerPointerType(t *Translator, n *Node, kids []fragment) (fragment, error) {
	return text(kids[0].text + "*")
}

func lowerBlock(t *Translator, n *Node, kids []fragment) (fragment, error) {
	stmts := texts(kids)
	if len(kids) == 1 && yieldsValue(n) {
		return fragment{text: "(" + stmts[0] + ")", parts: stmts}, nil
	}
	// Statement expression: the value of the last statement is the value
	// of the whole block.
	return fragment{text: "({" + indent("\n"+joinStatements(stmts)) + "\n})", parts: stmts}, nil
}

func lowerStatementBlock(t *Translator, n *Node, kids []fragment) (fragment, error) {
	if len(kids) == 0 {
		return text("{}")
	}
	return text("{" + indent("\n"+joinStatements(texts(kids))) + "\n}")
}

func lowerVariableDefinition(t *Translator, n *Node, kids []fragment) (fragment, error) {
	typ := kids[0].text
	// Locals and parameters are immutable unless declared mut; struct
	// fields stay assignable through their instance. East const keeps
	// pointer and macro types correct.
	if !t.inStruct && n.Children[0].Kind != NodeMutableType {
		typ += " const"
	}
	def := typ + " " + kids[1].text
	if len(kids) == 3 {
		def += " = " + kids[2].text
	}
	return text(def)
}

func declare(typ, name, value string) string {
	return typ + " " + name + " = " + value
}

func lowerVariableDeclaration(t *Translator, n *Node, kids []fragment) (fragment, error) {
	return text(declare(kids[0].text, kids[1].text, kids[2].text))
}

func lowerVariableAssignment(t *Translator, n *Node, kids []fragment) (fragment, error) {
	return text(kids[0].text + " = " + kids[1].text)
}

func lowerIdentifier(t *Translator, n *Node, kids []fragment) (fragment, error) {
	return text(strings.Join(texts(kids), "."))
}

func lowerIf(t *Translator, n *Node, kids []fragment) (fragment, error) {
	return text(fmt.Sprintf("(%s ? %s : %s)", kids[0].text, kids[1].text, kids[2].text))
}

func lowerStatementIf(t *Translator, n *Node, kids []fragment) (fragment, error) {
	stmt := "if (" + kids[0].text + ") " + kids[1].text
	if len(kids) == 3 {
		stmt += " else " + kids[2].text
	}
	return text(stmt)
}

func lowerStatementLoop(t *Translator, n *Node, kids []fragment) (fragment, error) {
	return text("while (1) " + kids[0].text)
}

func lowerReturn(t *Translator, n *Node, kids []fragment) (fragment, error) {
	if len(kids) == 0 {
		return text("return")
	}
	return text("return " + kids[0].text)
}

func lowerOperation(t *Translator, n *Node, kids []fragment) (fragment, error) {
	return text(strings.Join(texts(kids), " "))
}

func lowerCall(t *Translator, n *Node, kids []fragment) (fragment, error) {
	args := texts(kids[1:])
	return text(kids[0].text + "(" + strings.Join(args, ", ") + ")")
}

func lowerIndex(t *Translator, n *Node, kids []fragment) (fragment, error) {
	return text(kids[0].text + "[" + kids[1].text + "]")
}
