package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// lowerName lowers every multi-piece name: function_name, type_name,
// generic_postfix and identifier_piece. A generic_postfix child is flattened
// into its pieces, so List<int, char> has the pieces List, int and char.
//
// Pieces are joined with '_' when they are all known now. When any piece is
// a generic parameter, or a name that is itself deferred, the join is left
// to the preprocessor through CONCATn so it happens after the parameter is
// bound at the including site.
func lowerName(t *Translator, n *Node, kids []fragment) (fragment, error) {
	var pieces []string
	deferred := false
	for i, k := range kids {
		if n.Children[i].Kind == NodeGenericPostfix {
			pieces = append(pieces, k.parts...)
			deferred = deferred || k.deferred
			continue
		}
		pieces = append(pieces, k.text)
		deferred = deferred || k.deferred || t.generics[k.text]
	}
	if n.Kind == NodeGenericPostfix {
		// The parent name concatenates these pieces.
		return fragment{text: strings.Join(pieces, "_"), parts: pieces, deferred: deferred}, nil
	}
	return t.concat(pieces, deferred), nil
}

func (t *Translator) concat(pieces []string, deferred bool) fragment {
	f := fragment{parts: pieces, deferred: deferred}
	switch {
	case len(pieces) == 1:
		f.text = pieces[0]
	case deferred:
		f.arity = len(pieces)
		t.arities[f.arity]++
		f.text = fmt.Sprintf("CONCAT%d(%s)", len(pieces), strings.Join(pieces, ", "))
	default:
		f.text = strings.Join(pieces, "_")
	}
	return f
}

func macroParams(n int) []string {
	params := make([]string, n)
	for i := range params {
		params[i] = fmt.Sprintf("p%d", i)
	}
	return params
}

// pasteMacros defines name as a two-level token-pasting macro. The outer
// macro expands its arguments before the inner one pastes them, so that a
// parameter bound by #define is pasted by value. prefix, when non-empty, is
// pasted in front of the parameters.
func pasteMacros(name, prefix string, arity int) string {
	params := macroParams(arity)
	pasted := params
	if prefix != "" {
		pasted = append([]string{prefix}, params...)
	}
	list := strings.Join(params, ", ")
	return fmt.Sprintf("#define _%s(%s) %s\n#define %s(%s) _%s(%s)\n",
		name, list, strings.Join(pasted, "##_##"),
		name, list, name, list)
}

// concatMacros returns one CONCATn pair for each arity used in the output,
// in ascending order.
func (t *Translator) concatMacros() string {
	var b strings.Builder
	for _, n := range slices.Sorted(maps.Keys(t.arities)) {
		if t.arities[n] <= 0 {
			continue
		}
		b.WriteString(pasteMacros(fmt.Sprintf("CONCAT%d", n), "", n))
	}
	return b.String()
}

func enterStruct(t *Translator) func() {
	saved := t.inStruct
	t.inStruct = true
	return func() { t.inStruct = saved }
}

func lowerStructDefinition(t *Translator, n *Node, kids []fragment) (fragment, error) {
	if n.Children[0].Kind != NodeTypeName {
		return fragment{}, &StructuralError{Kind: n.Kind, Pos: n.Pos, Message: "first child must be a type_name"}
	}
	for _, field := range n.Children[1:] {
		if field.Kind != NodeVariableDefinition {
			return fragment{}, &StructuralError{Kind: n.Kind, Pos: field.Pos, Message: fmt.Sprintf("field must be a variable_definition, got %s", field.Kind)}
		}
	}

	var body strings.Builder
	for _, field := range kids[1:] {
		body.WriteString("\n" + terminate(field.text))
	}
	typedef := "typedef struct {" + indent(body.String()) + "\n}"

	pieces := kids[0].parts
	if len(pieces) <= 1 {
		return text("\n" + typedef + " " + kids[0].text + ";\n")
	}

	// The typedef name is pasted by a macro private to this struct, so the
	// name follows whatever its parameters are bound to. The CONCATn text
	// of the name itself is dropped.
	if a := kids[0].arity; a > 0 {
		t.arities[a]--
	}
	macro := "CONCAT_" + pieces[0]
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(pasteMacros(macro, pieces[0], len(pieces)-1))
	fmt.Fprintf(&b, "%s %s(%s);\n", typedef, macro, strings.Join(pieces[1:], ", "))
	fmt.Fprintf(&b, "#undef %s\n#undef _%s\n", macro, macro)
	return text(b.String())
}

// lowerGeneric opens a guard that keeps the rest of the unit out of the
// compilation until the parameter is bound by a generic include.
func lowerGeneric(t *Translator, n *Node, kids []fragment) (fragment, error) {
	if n.Children[0].Kind != NodeToken {
		return fragment{}, &StructuralError{Kind: n.Kind, Pos: n.Pos, Message: "parameter must be a token"}
	}
	param := kids[0].text
	t.generics[param] = true
	t.footer = append(t.footer, "#endif // "+param+"\n")
	return text("#ifdef " + param + "\n")
}

func lowerConstructor(t *Translator, n *Node, kids []fragment) (fragment, error) {
	values := "{0}"
	if len(kids) > 1 {
		values = "{" + strings.Join(texts(kids[1:]), ", ") + "}"
	}
	return text(fmt.Sprintf("({ %s %s = %s; %s; })", kids[0].text, constructedName, values, constructedName))
}

const constructedName = "_constructed"
