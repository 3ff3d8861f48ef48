package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Unit is one source file and the path its C translation is written to.
type Unit struct {
	Source string
	Output string
}

// Project is a directory tree of Girvel sources mirrored into an output
// directory.
type Project struct {
	Root    string
	OutDir  string
	Units   []Unit
	Options Options
}

// DiscoverProject finds every source under root. Hidden directories and
// outDir itself are skipped. Each unit's output mirrors its path under
// root, with the source extension replaced.
func DiscoverProject(root, outDir string, opts Options) (*Project, error) {
	p := &Project{Root: filepath.Clean(root), OutDir: filepath.Clean(outDir), Options: opts}
	absOut, err := filepath.Abs(p.OutDir)
	if err != nil {
		return nil, err
	}

	err = filepath.WalkDir(p.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == p.Root {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if abs, err := filepath.Abs(path); err == nil && abs == absOut {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, opts.SourceExt) {
			return nil
		}
		rel, err := filepath.Rel(p.Root, path)
		if err != nil {
			return err
		}
		out := strings.TrimSuffix(rel, opts.SourceExt) + opts.OutputExt
		p.Units = append(p.Units, Unit{Source: path, Output: filepath.Join(p.OutDir, out)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering %s: %w", root, err)
	}
	return p, nil
}

// Main returns the unit translated from main<SourceExt> at the project root.
func (p *Project) Main() (Unit, bool) {
	want := filepath.Join(p.Root, "main"+p.Options.SourceExt)
	for _, u := range p.Units {
		if u.Source == want {
			return u, true
		}
	}
	return Unit{}, false
}

// unitOptions returns the options for translating u: the include table maps
// every other unit, as u would name it, to its output as u's output would
// name it. Entries in the project options win.
func (p *Project) unitOptions(u Unit) Options {
	opts := p.Options
	opts.Includes = map[string]string{}
	for _, other := range p.Units {
		if other == u {
			continue
		}
		src, err1 := filepath.Rel(filepath.Dir(u.Source), other.Source)
		out, err2 := filepath.Rel(filepath.Dir(u.Output), other.Output)
		if err1 != nil || err2 != nil {
			continue
		}
		opts.Includes[filepath.ToSlash(src)] = filepath.ToSlash(out)
	}
	for from, to := range p.Options.Includes {
		opts.Includes[from] = to
	}
	if rel, err := filepath.Rel(p.OutDir, u.Output); err == nil {
		opts.IncludeGuard = guardName(rel)
	}
	return opts
}

// guardName turns an output path into a preprocessor identifier.
func guardName(rel string) string {
	var b strings.Builder
	b.WriteString("GIRVEL_")
	for _, r := range strings.ToUpper(filepath.ToSlash(rel)) {
		if ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Build translates every unit concurrently and writes the results. A
// failed unit writes nothing; the first failure cancels the remaining
// translations and is returned with the unit's path.
func (p *Project) Build(ctx context.Context, verbose bool) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, u := range p.Units {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.buildUnit(u); err != nil {
				return fmt.Errorf("%s: %w", u.Source, err)
			}
			if verbose {
				fmt.Printf("Transpiled %s -> %s\n", u.Source, u.Output)
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *Project) buildUnit(u Unit) error {
	source, err := os.ReadFile(u.Source)
	if err != nil {
		return err
	}
	code, err := TranspileFile(u.Source, source, p.unitOptions(u))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(u.Output), 0o755); err != nil {
		return err
	}
	return os.WriteFile(u.Output, []byte(code), 0o644)
}

// TranspileFile is Transpile with the file name recorded on syntax errors.
func TranspileFile(filename string, source []byte, opts Options) (string, error) {
	code, err := Transpile(source, opts)
	var syntaxErr *SyntaxError
	if errors.As(err, &syntaxErr) {
		syntaxErr.Filename = filename
	}
	return code, err
}

// ResolveStdDir returns the standard library directory of a project, if it
// has one.
func ResolveStdDir(root string) (string, bool) {
	dir := filepath.Join(root, "std")
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return dir, true
}

// CompileC compiles one C translation unit into binary. The compiler's
// output is returned in the error when it fails.
func CompileC(ctx context.Context, cc, mainC, binary string, includeDirs []string) error {
	args := []string{"-std=gnu11", "-o", binary, mainC}
	for _, dir := range includeDirs {
		args = append(args, "-I", dir)
	}
	cmd := exec.CommandContext(ctx, cc, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w\n%s", cc, strings.Join(args, " "), err, out)
	}
	return nil
}
