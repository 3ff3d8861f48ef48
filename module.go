package main

import (
	"fmt"
	"strings"
)

func lowerModule(t *Translator, n *Node, kids []fragment) (fragment, error) {
	var b strings.Builder
	b.WriteString(t.concatMacros())

	guard := t.opts.IncludeGuard
	if len(t.footer) > 0 {
		// Template units must stay re-includable with new bindings.
		guard = ""
	}
	if guard != "" {
		fmt.Fprintf(&b, "#ifndef %s\n#define %s\n", guard, guard)
	}
	for _, k := range kids {
		b.WriteString(k.text)
	}
	for i := len(t.footer) - 1; i >= 0; i-- {
		b.WriteString(t.footer[i])
	}
	if guard != "" {
		fmt.Fprintf(&b, "#endif // %s\n", guard)
	}

	out := b.String()
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return text(out)
}

func lowerInclude(t *Translator, n *Node, kids []fragment) (fragment, error) {
	if n.Children[0].Kind != NodeToken {
		return fragment{}, &StructuralError{Kind: n.Kind, Pos: n.Pos, Message: "target must be a token"}
	}
	return text("#include " + t.includeTarget(kids[0].text) + "\n")
}

// includeTarget rewrites a quoted or bracketed include target: mapped paths
// first, then project sources get the output extension. Anything else is
// returned unchanged.
func (t *Translator) includeTarget(target string) string {
	if len(target) < 2 {
		return target
	}
	opening, closing := target[0], target[len(target)-1]
	if !(opening == '"' && closing == '"') && !(opening == '<' && closing == '>') {
		return target
	}
	path := target[1 : len(target)-1]

	if mapped, ok := t.opts.Includes[path]; ok {
		path = mapped
	} else if ext := t.opts.SourceExt; ext != "" && strings.HasSuffix(path, ext) {
		path = strings.TrimSuffix(path, ext) + t.opts.OutputExt
	}
	return string(opening) + path + string(closing)
}

func lowerGenericIncludeAssignment(t *Translator, n *Node, kids []fragment) (fragment, error) {
	if n.Children[0].Kind != NodeToken {
		return fragment{}, &StructuralError{Kind: n.Kind, Pos: n.Pos, Message: "parameter must be a token"}
	}
	name, value := kids[0].text, kids[1].text
	return fragment{text: "#define " + name + " " + value, parts: []string{name, value}}, nil
}

// lowerGenericInclude binds the template parameters for exactly one
// inclusion. A parameter that is also open in this module is saved and
// restored around the inclusion. A parameter bound to itself is left alone.
func lowerGenericInclude(t *Translator, n *Node, kids []fragment) (fragment, error) {
	last := len(n.Children) - 1
	if n.Children[last].Kind != NodeToken {
		return fragment{}, &StructuralError{Kind: n.Kind, Pos: n.Pos, Message: "last child must be the include target"}
	}
	for _, child := range n.Children[:last] {
		if child.Kind != NodeGenericIncludeAssignment {
			return fragment{}, &StructuralError{Kind: n.Kind, Pos: child.Pos, Message: fmt.Sprintf("expected generic_include_assignment, got %s", child.Kind)}
		}
	}

	var b strings.Builder
	// T = T forwards the binding already in effect.
	var assignments []fragment
	for _, a := range kids[:last] {
		if a.parts[0] != a.parts[1] {
			assignments = append(assignments, a)
		}
	}
	for _, a := range assignments {
		param := a.parts[0]
		if t.generics[param] {
			fmt.Fprintf(&b, "#pragma push_macro(\"%s\")\n#undef %s\n", param, param)
		}
		b.WriteString(a.text + "\n")
	}
	b.WriteString("#include " + t.includeTarget(kids[last].text) + "\n")
	for _, a := range assignments {
		param := a.parts[0]
		b.WriteString("#undef " + param + "\n")
		if t.generics[param] {
			fmt.Fprintf(&b, "#pragma pop_macro(\"%s\")\n", param)
		}
	}
	return text(b.String())
}
