package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func transpile(t *testing.T, source string) string {
	t.Helper()
	code, err := Transpile([]byte(source), DefaultOptions())
	be.Err(t, err, nil)
	return code
}

func lowerTree(t *testing.T, sexpr string) (string, error) {
	t.Helper()
	tree, err := TreeFromSExpr(sexpr)
	be.Err(t, err, nil)
	return Lower(tree, DefaultOptions())
}

func TestLowerFunctions(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		expected string
	}{
		{
			"single expression body",
			"int sum(Point p) { p.x + p.y }",
			"\nint sum(Point const p) {\n    return (p.x + p.y);\n}\n",
		},
		{
			"statement expression body",
			"int f() { int x = 1; x + 1 }",
			"\nint f() {\n    return ({\n        int const x = 1;\n        x + 1;\n    });\n}\n",
		},
		{
			"explicit return is inlined",
			"int f() { return 1 }",
			"\nint f() {\n    return 1;\n}\n",
		},
		{
			"void body is not returned",
			"void f() { g() }",
			"\nvoid f() {\n    (g());\n}\n",
		},
		{
			"statement if",
			"void f(int x) { if x { g(); } else { h(); } }",
			"\nvoid f(int const x) {\n    if (x) {\n        g();\n    } else {\n        h();\n    }\n}\n",
		},
		{
			"conditional expression",
			"int f(int x) { if x > 0 { 1 } else { 2 } }",
			"\nint f(int const x) {\n    return ((x > 0 ? (1) : (2)));\n}\n",
		},
		{
			"loop with break and continue",
			"void f() { mut int i = 0; loop { if i > 3 { break }; i = i + 1; continue } }",
			"\nvoid f() {\n    int i = 0;\n    while (1) {\n        if (i > 3) {\n            break;\n        }\n        i = i + 1;\n        continue;\n    }\n}\n",
		},
		{
			"empty loop",
			"void f() { loop {} }",
			"\nvoid f() {\n    while (1) {}\n}\n",
		},
		{
			"index and pointer parameter",
			"int f(int* a) { a[0] }",
			"\nint f(int* const a) {\n    return (a[0]);\n}\n",
		},
		{
			"prefix operations",
			"int f(int x) { -x + !x }",
			"\nint f(int const x) {\n    return (- x + ! x);\n}\n",
		},
		{
			"parentheses survive as blocks",
			"int f() { (1 + 2) * 3 }",
			"\nint f() {\n    return ((1 + 2) * 3);\n}\n",
		},
		{
			"call arguments",
			`int main() { printf("%d\n", 1, 2) }`,
			"\nint main() {\n    return (printf(\"%d\\n\", 1, 2));\n}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be.Equal(t, transpile(t, tt.source), tt.expected)
		})
	}
}

func TestLowerConstness(t *testing.T) {
	// Locals and parameters are const unless mut; struct fields never are.
	code := transpile(t, "struct S { int a; int b }\nint f(int p) { int x = p; mut int y = x; y = y + 1; y }")
	be.True(t, strings.Contains(code, "    int a;\n    int b;\n} S;"))
	be.True(t, strings.Contains(code, "int f(int const p)"))
	be.True(t, strings.Contains(code, "int const x = p;"))
	be.True(t, strings.Contains(code, "int y = x;"))
	be.True(t, strings.Contains(code, "y = y + 1;"))
}

func TestLowerStruct(t *testing.T) {
	be.Equal(t,
		transpile(t, "struct Point { int x; int y }"),
		"\ntypedef struct {\n    int x;\n    int y;\n} Point;\n",
	)
	be.Equal(t,
		transpile(t, "struct Empty {}"),
		"\ntypedef struct {\n} Empty;\n",
	)
}

func TestLowerConstructor(t *testing.T) {
	be.Equal(t,
		transpile(t, "Point origin() { Point{0, 0} }"),
		"\nPoint origin() {\n    return (({ Point _constructed = {0, 0}; _constructed; }));\n}\n",
	)

	code, err := lowerTree(t, `(module (function_definition (signature (type_name "Point") (function_name "zero") (arguments)) (block (expression (constructor (type_name "Point"))))))`)
	be.Err(t, err, nil)
	be.True(t, strings.Contains(code, "({ Point _constructed = {0}; _constructed; })"))
}

func TestLowerBlockForms(t *testing.T) {
	tests := []struct {
		name     string
		tree     string
		expected string
	}{
		{
			"single expression",
			`(block (expression "x"))`,
			"(x)",
		},
		{
			"expression wrapped in a statement",
			`(block (statement (expression "x")))`,
			"(x)",
		},
		{
			"single statement",
			`(block (statement (return "x")))`,
			"({\n    return x;\n})",
		},
		{
			"several items",
			`(block (statement (expression (call (identifier "f")))) (statement (statement_if "c" (statement_block))) (expression "y"))`,
			"({\n    f();\n    if (c) {}\n    y;\n})",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := TreeFromSExpr(tt.tree)
			be.Err(t, err, nil)
			f, err := NewTranslator(DefaultOptions()).visit(tree)
			be.Err(t, err, nil)
			be.Equal(t, f.text, tt.expected)
		})
	}
}

func TestLowerStatementBlock(t *testing.T) {
	tree, err := TreeFromSExpr(`(statement_block (statement (variable_assignment "x" "1")) (statement (statement_loop (statement_block (statement (break))))))`)
	be.Err(t, err, nil)
	f, err := NewTranslator(DefaultOptions()).visit(tree)
	be.Err(t, err, nil)
	be.Equal(t, f.text, "{\n    x = 1;\n    while (1) {\n        break;\n    }\n}")
}

func TestLowerOperationsKeepSourceOrder(t *testing.T) {
	code, err := lowerTree(t, `(module (function_definition (signature (type_name "int") (function_name "f") (arguments)) (block (expression (operation "a" "-" "b" "*" "c")))))`)
	be.Err(t, err, nil)
	be.True(t, strings.Contains(code, "return (a - b * c);"))
}

func TestLowerInclude(t *testing.T) {
	tests := []struct {
		source   string
		expected string
	}{
		{"include <stdio.h>", "#include <stdio.h>\n"},
		{`include "box.grv"`, "#include \"box.c\"\n"},
		{"include <vec.grv>", "#include <vec.c>\n"},
		{`include "util.h"`, "#include \"util.h\"\n"},
		{`include "std/io.grv"`, "#include \"io.h\"\n"},
	}

	opts := DefaultOptions()
	opts.Includes = map[string]string{"std/io.grv": "io.h"}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			code, err := Transpile([]byte(tt.source), opts)
			be.Err(t, err, nil)
			be.Equal(t, code, tt.expected)
		})
	}
}

func TestLowerIncludeGuard(t *testing.T) {
	opts := DefaultOptions()
	opts.IncludeGuard = "GIRVEL_MAIN_C"

	code, err := Transpile([]byte("include <stdio.h>"), opts)
	be.Err(t, err, nil)
	be.Equal(t, code, "#ifndef GIRVEL_MAIN_C\n#define GIRVEL_MAIN_C\n#include <stdio.h>\n#endif // GIRVEL_MAIN_C\n")

	// Templates must stay includable once per binding.
	code, err = Transpile([]byte("generic T"), opts)
	be.Err(t, err, nil)
	be.Equal(t, code, "#ifdef T\n#endif // T\n")
}

func TestLowerEmptyModule(t *testing.T) {
	be.Equal(t, transpile(t, ""), "\n")
}

func TestLowerStructuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		tree    string
		kind    NodeKind
		message string
	}{
		{"unknown kind", `(module (frobnicate "x"))`, "frobnicate", "unknown node kind"},
		{"too few children", `(module (include))`, NodeInclude, "expected 1 children, got 0"},
		{"too many children", `(module (generic "T" "U"))`, NodeGeneric, "expected 1 children, got 2"},
		{"unbounded minimum", `(module (function_definition (signature (type_name "int") (function_name "f") (arguments)) (block)))`, NodeBlock, "expected at least 1 children, got 0"},
		{"range", `(module (struct_definition (type_name "S") (variable_definition "int")))`, NodeVariableDefinition, "expected 2 to 3 children, got 1"},
		{"root is not a module", `(block (expression "1"))`, NodeBlock, "tree root must be a module"},
		{"struct name", `(module (struct_definition "S"))`, NodeStructDefinition, "first child must be a type_name"},
		{"struct field", `(module (struct_definition (type_name "S") (return)))`, NodeStructDefinition, "field must be a variable_definition, got return"},
		{"include target", `(module (include (type_name "x")))`, NodeInclude, "target must be a token"},
		{"generic include target", `(module (generic_include (generic_include_assignment "T" (type_name "int")) (type_name "x")))`, NodeGenericInclude, "last child must be the include target"},
		{"generic include assignment", `(module (generic_include (return) "\"x.grv\""))`, NodeGenericInclude, "expected generic_include_assignment, got return"},
		{"function signature", `(module (function_definition (type_name "int") (block (expression "1"))))`, NodeFunctionDefinition, "first child must be a signature"},
		{"three-piece signature stand-in", `(module (function_definition (type_name "a" "b" "c") (block (expression "1"))))`, NodeFunctionDefinition, "first child must be a signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := lowerTree(t, tt.tree)
			be.Equal(t, code, "")
			be.True(t, errors.Is(err, ErrStructure))

			var structErr *StructuralError
			be.True(t, errors.As(err, &structErr))
			be.Equal(t, structErr.Kind, tt.kind)
			be.Equal(t, structErr.Message, tt.message)
		})
	}
}

func TestLowerStructuralErrorMessage(t *testing.T) {
	tree := &Node{Kind: NodeModule, Children: []*Node{
		{Kind: "frobnicate", Pos: Pos{Line: 2, Col: 3}},
	}}
	_, err := Lower(tree, DefaultOptions())
	be.Equal(t, err.Error(), "internal error: malformed syntax tree at frobnicate node (2:3): unknown node kind")
}

func TestLowerHandBuiltTree(t *testing.T) {
	tree := node(NodeModule,
		node(NodeInclude, tok("<stdio.h>")),
		node(NodeFunctionDefinition,
			node(NodeSignature,
				node(NodeTypeName, tok("int")),
				node(NodeFunctionName, tok("main")),
				node(NodeArguments)),
			node(NodeBlock, node(NodeExpression, tok("0")))))

	code, err := Lower(tree, DefaultOptions())
	be.Err(t, err, nil)
	be.Equal(t, code, "#include <stdio.h>\n\nint main() {\n    return (0);\n}\n")
}

func TestLowerNilTree(t *testing.T) {
	code, err := Lower(nil, DefaultOptions())
	be.Equal(t, code, "")
	be.True(t, errors.Is(err, ErrStructure))

	code, err = Lower(&Node{Kind: NodeModule, Children: []*Node{nil}}, DefaultOptions())
	be.Equal(t, code, "")
	be.True(t, errors.Is(err, ErrStructure))
}

func TestTranslatorResetsBetweenModules(t *testing.T) {
	tr := NewTranslator(DefaultOptions())

	tree, err := Parse([]byte("generic T\nT id<T>(T x) { x }"))
	be.Err(t, err, nil)
	first, err := tr.Lower(tree)
	be.Err(t, err, nil)
	be.True(t, strings.Contains(first, "#define CONCAT2"))
	be.True(t, strings.Contains(first, "#endif // T"))

	tree, err = Parse([]byte("int id(int x) { x }"))
	be.Err(t, err, nil)
	second, err := tr.Lower(tree)
	be.Err(t, err, nil)
	be.Equal(t, second, "\nint id(int const x) {\n    return (x);\n}\n")
}

func TestTreeRoundTrip(t *testing.T) {
	source := `include <stdio.h>
include "box.grv" (T = int)
struct Point { int x; int y }
int sum(Point p) { p.x + p.y }
int main() {
    mut int i = 0;
    loop { if i >= 3 { break }; i = i + 1 }
    printf("%d\n", sum(Point{1, 2}));
    0
}`
	tree, err := Parse([]byte(source))
	be.Err(t, err, nil)

	sexpr := ToSExpr(tree)
	again, err := TreeFromSExpr(sexpr)
	be.Err(t, err, nil)
	be.Equal(t, ToSExpr(again), sexpr)

	direct, err := Lower(tree, DefaultOptions())
	be.Err(t, err, nil)
	viaTree, err := Lower(again, DefaultOptions())
	be.Err(t, err, nil)
	be.Equal(t, viaTree, direct)
}

func TestTreeFromSExprErrors(t *testing.T) {
	_, err := TreeFromSExpr("(module")
	be.True(t, errors.Is(err, ErrSyntax))

	_, err = TreeFromSExpr(`("module")`)
	be.True(t, errors.Is(err, ErrStructure))

	_, err = TreeFromSExpr("(module (generic T))")
	be.True(t, errors.Is(err, ErrStructure))

	tree, err := TreeFromSExpr("(module\n  (generic 42))")
	be.Err(t, err, nil)
	be.Equal(t, tree.Children[0].Pos, Pos{Line: 2, Col: 3})
	be.Equal(t, tree.Children[0].Children[0].Kind, NodeToken)
	be.Equal(t, tree.Children[0].Children[0].Text, "42")
}
