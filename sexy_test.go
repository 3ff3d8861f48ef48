package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/girvel/girvel/sexy"
	"github.com/nalgeon/be"
)

func TestSexyAllTests(t *testing.T) {
	testFiles, err := filepath.Glob("test/*_test.md")
	be.Err(t, err, nil)
	be.True(t, len(testFiles) > 0)

	for _, testFile := range testFiles {
		testName := strings.TrimSuffix(filepath.Base(testFile), ".md")

		t.Run(testName, func(t *testing.T) {
			content, err := os.ReadFile(testFile)
			be.Err(t, err, nil)

			testCases, err := sexy.ExtractTestCases(string(content))
			be.Err(t, err, nil)

			for _, tc := range testCases {
				t.Run(tc.Name, func(t *testing.T) {
					runTestCase(t, tc)
				})
			}
		})
	}
}

// runTestCase lowers the input of tc once and checks every assertion
// against the result.
func runTestCase(t *testing.T, tc sexy.TestCase) {
	var tree *Node
	var err error
	switch tc.InputType {
	case sexy.InputTypeGirvel:
		tree, err = Parse([]byte(tc.Input))
	case sexy.InputTypeGirvelTree:
		tree, err = TreeFromSExpr(tc.Input)
	default:
		t.Fatalf("Unknown input type: %s", tc.InputType)
	}

	var code string
	if err == nil {
		code, err = Lower(tree, DefaultOptions())
	}

	for _, assertion := range tc.Assertions {
		t.Run(fmt.Sprintf("%s_line_%d", assertion.Type, assertion.Line), func(t *testing.T) {
			switch assertion.Type {
			case sexy.AssertionTypeC:
				be.Err(t, err, nil)
				be.Equal(t, strings.TrimSpace(code), strings.TrimSpace(assertion.Content))

			case sexy.AssertionTypeTree:
				be.True(t, tree != nil)
				be.Equal(t, ToSExpr(tree), assertion.ParsedSexy.String())

			case sexy.AssertionTypeExecute:
				be.Err(t, err, nil)
				out, _ := compileAndRun(t, code, tc.InputData)
				be.Equal(t, strings.TrimRight(out, "\n"), assertion.Content)

			case sexy.AssertionTypeSyntaxError:
				assertErrorContains(t, err, ErrSyntax, assertion.Content)

			case sexy.AssertionTypeStructuralError:
				assertErrorContains(t, err, ErrStructure, assertion.Content)
				be.Equal(t, code, "")

			default:
				t.Fatalf("Unknown assertion type: %s", assertion.Type)
			}
		})
	}
}

func assertErrorContains(t *testing.T, err, target error, message string) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
	if !strings.Contains(err.Error(), message) {
		t.Errorf("error %q does not contain %q", err.Error(), message)
	}
}
