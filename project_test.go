package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

// writeTree creates files under dir from a path -> content map.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		be.Err(t, os.MkdirAll(filepath.Dir(path), 0o755), nil)
		be.Err(t, os.WriteFile(path, []byte(content), 0o644), nil)
	}
}

func unitOutputs(p *Project) map[string]string {
	outputs := map[string]string{}
	for _, u := range p.Units {
		rel, _ := filepath.Rel(p.Root, u.Source)
		out, _ := filepath.Rel(p.OutDir, u.Output)
		outputs[filepath.ToSlash(rel)] = filepath.ToSlash(out)
	}
	return outputs
}

func TestDiscoverProject(t *testing.T) {
	root := t.TempDir()
	outDir := filepath.Join(root, "out")
	writeTree(t, root, map[string]string{
		"main.grv":          "int main() { 0 }",
		"box.grv":           "struct Box { int v }",
		"std/io.grv":        "include <stdio.h>",
		"notes.txt":         "not a source",
		".git/hooks.grv":    "int broken(",
		"out/stale.grv":     "int broken(",
		"deep/a/b/leaf.grv": "generic T",
	})

	p, err := DiscoverProject(root, outDir, DefaultOptions())
	be.Err(t, err, nil)
	be.Equal(t, unitOutputs(p), map[string]string{
		"main.grv":          "main.c",
		"box.grv":           "box.c",
		"std/io.grv":        "std/io.c",
		"deep/a/b/leaf.grv": "deep/a/b/leaf.c",
	})

	mainUnit, ok := p.Main()
	be.True(t, ok)
	be.Equal(t, mainUnit.Output, filepath.Join(outDir, "main.c"))
}

func TestDiscoverProjectWithoutMain(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"lib/util.grv": "generic T"})

	p, err := DiscoverProject(root, filepath.Join(root, ".build"), DefaultOptions())
	be.Err(t, err, nil)
	be.Equal(t, len(p.Units), 1)

	_, ok := p.Main()
	be.True(t, !ok)
}

func TestDiscoverProjectMissingRoot(t *testing.T) {
	_, err := DiscoverProject(filepath.Join(t.TempDir(), "missing"), t.TempDir(), DefaultOptions())
	be.True(t, err != nil)
	be.True(t, errors.Is(err, os.ErrNotExist))
}

func TestUnitOptions(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.grv":    "",
		"box.grv":     "",
		"std/vec.grv": "",
	})
	opts := DefaultOptions()
	opts.Includes = map[string]string{"box.grv": "custom/box.h"}

	p, err := DiscoverProject(root, filepath.Join(root, "build"), opts)
	be.Err(t, err, nil)

	var vec Unit
	for _, u := range p.Units {
		if strings.HasSuffix(u.Source, "vec.grv") {
			vec = u
		}
	}
	mainUnit, _ := p.Main()

	mainOpts := p.unitOptions(mainUnit)
	be.Equal(t, mainOpts.Includes["std/vec.grv"], "std/vec.c")
	be.Equal(t, mainOpts.Includes["box.grv"], "custom/box.h")
	be.Equal(t, mainOpts.IncludeGuard, "GIRVEL_MAIN_C")

	vecOpts := p.unitOptions(vec)
	be.Equal(t, vecOpts.Includes["../main.grv"], "../main.c")
	be.Equal(t, vecOpts.IncludeGuard, "GIRVEL_STD_VEC_C")

	// The project options are left untouched.
	be.Equal(t, len(p.Options.Includes), 1)
	be.Equal(t, p.Options.IncludeGuard, "")
}

func TestGuardName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.c", "GIRVEL_MAIN_C"},
		{"std/io.c", "GIRVEL_STD_IO_C"},
		{"my-lib/vec2.c", "GIRVEL_MY_LIB_VEC2_C"},
	}
	for _, tt := range tests {
		be.Equal(t, guardName(tt.path), tt.want)
	}
}

func TestBuildProject(t *testing.T) {
	root := t.TempDir()
	outDir := filepath.Join(root, ".build")
	writeTree(t, root, map[string]string{
		"main.grv":   "include \"box.grv\" (T = int)\nint main() { 0 }",
		"box.grv":    "generic T\nstruct Box<T> { T value }",
		"std/io.grv": "include <stdio.h>",
	})

	p, err := DiscoverProject(root, outDir, DefaultOptions())
	be.Err(t, err, nil)
	be.Err(t, p.Build(context.Background(), false), nil)

	mainC, err := os.ReadFile(filepath.Join(outDir, "main.c"))
	be.Err(t, err, nil)
	be.True(t, strings.HasPrefix(string(mainC), "#ifndef GIRVEL_MAIN_C\n#define GIRVEL_MAIN_C\n#define T int\n#include \"box.c\"\n"))

	boxC, err := os.ReadFile(filepath.Join(outDir, "box.c"))
	be.Err(t, err, nil)
	be.True(t, strings.HasPrefix(string(boxC), "#ifdef T\n"))

	ioC, err := os.ReadFile(filepath.Join(outDir, "std", "io.c"))
	be.Err(t, err, nil)
	be.Equal(t, string(ioC), "#ifndef GIRVEL_STD_IO_C\n#define GIRVEL_STD_IO_C\n#include <stdio.h>\n#endif // GIRVEL_STD_IO_C\n")
}

func TestBuildReportsFailingUnit(t *testing.T) {
	root := t.TempDir()
	outDir := filepath.Join(root, ".build")
	writeTree(t, root, map[string]string{
		"bad.grv": "int main( { 0 }",
	})

	p, err := DiscoverProject(root, outDir, DefaultOptions())
	be.Err(t, err, nil)

	err = p.Build(context.Background(), false)
	be.True(t, errors.Is(err, ErrSyntax))
	be.True(t, strings.Contains(err.Error(), "bad.grv"))

	var syntaxErr *SyntaxError
	be.True(t, errors.As(err, &syntaxErr))
	be.Equal(t, syntaxErr.Filename, filepath.Join(root, "bad.grv"))

	_, err = os.Stat(filepath.Join(outDir, "bad.c"))
	be.True(t, errors.Is(err, os.ErrNotExist))
}

func TestBuildCancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"main.grv": "int main() { 0 }"})

	p, err := DiscoverProject(root, filepath.Join(root, ".build"), DefaultOptions())
	be.Err(t, err, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = p.Build(ctx, false)
	be.True(t, errors.Is(err, context.Canceled))
}

func TestTranspileFileNamesSyntaxErrors(t *testing.T) {
	_, err := TranspileFile("demo.grv", []byte("struct {"), DefaultOptions())
	var syntaxErr *SyntaxError
	be.True(t, errors.As(err, &syntaxErr))
	be.Equal(t, syntaxErr.Filename, "demo.grv")
	be.True(t, strings.HasPrefix(err.Error(), "demo.grv:1:8: "))
}

func TestResolveStdDir(t *testing.T) {
	root := t.TempDir()
	_, ok := ResolveStdDir(root)
	be.True(t, !ok)

	writeTree(t, root, map[string]string{"std": "a file, not a directory"})
	_, ok = ResolveStdDir(root)
	be.True(t, !ok)

	other := t.TempDir()
	be.Err(t, os.Mkdir(filepath.Join(other, "std"), 0o755), nil)
	dir, ok := ResolveStdDir(other)
	be.True(t, ok)
	be.Equal(t, dir, filepath.Join(other, "std"))
}
