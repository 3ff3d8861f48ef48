package main

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSyntax is wrapped by every error coming out of a tree producer.
	ErrSyntax = errors.New("syntax error")
	// ErrStructure is wrapped by every error caused by a tree that does not
	// match the node schema. It signals a producer bug, not a user mistake.
	ErrStructure = errors.New("malformed syntax tree")
)

// SyntaxError is a positioned error from the front-end.
type SyntaxError struct {
	Filename string
	Pos      Pos
	Message  string
	Excerpt  string // offending source line with a caret under Pos
}

func (e *SyntaxError) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("%s:%s: %s", e.Filename, e.Pos, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

func (e *SyntaxError) Unwrap() error {
	return ErrSyntax
}

func newSyntaxError(source []byte, pos Pos, message string) *SyntaxError {
	return &SyntaxError{Pos: pos, Message: message, Excerpt: excerpt(source, pos)}
}

func excerpt(source []byte, pos Pos) string {
	if !pos.IsValid() {
		return ""
	}
	lines := strings.Split(strings.TrimRight(string(source), "\x00"), "\n")
	if pos.Line > len(lines) {
		return ""
	}
	line := strings.TrimRight(lines[pos.Line-1], "\r")
	caret := strings.Repeat(" ", max(pos.Col-1, 0)) + "^"
	return line + "\n" + caret
}

// StructuralError reports a tree that violates the node schema: unknown
// kinds, wrong child counts, or a child of the wrong kind where a rule
// depends on it.
type StructuralError struct {
	Kind    NodeKind
	Pos     Pos
	Message string
}

func (e *StructuralError) Error() string {
	var b strings.Builder
	b.WriteString("internal error: malformed syntax tree")
	if e.Kind != "" {
		fmt.Fprintf(&b, " at %s node", e.Kind)
	}
	if e.Pos.IsValid() {
		fmt.Fprintf(&b, " (%s)", e.Pos)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *StructuralError) Unwrap() error {
	return ErrStructure
}
