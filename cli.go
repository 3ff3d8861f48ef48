package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
)

func showUsage() {
	fmt.Fprintf(os.Stderr, `Girvel - a small language that lowers to C

Usage:
    girvel <command> [arguments]

Commands:
    transpile <file>   Lower one .grv file to C
    build [root]       Lower every .grv file under root and compile main.c
    run [root]         Build and execute the program
    eval <code>        Print the C for inline Girvel code
    tree <file>        Print the syntax tree of a .grv file
    lower <file>       Lower a syntax tree given as an s-expression
    help               Show this help message

Examples:
    girvel run demo
    girvel transpile -o box.c box.grv
    girvel eval 'int main() { 0 }'

Use "girvel <command> -h" for more information about a command.
`)
}

func newFlagSet(name, usage, description string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: girvel %s %s\n", name, usage)
		fmt.Fprintf(os.Stderr, "%s\n\n", description)
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	return fs
}

func defaultCC() string {
	if cc := os.Getenv("CC"); cc != "" {
		return cc
	}
	return "cc"
}

// reportError prints err and exits. Syntax errors get the source excerpt.
func reportError(prefix string, err error) {
	var syntaxErr *SyntaxError
	if errors.As(err, &syntaxErr) {
		location := syntaxErr.Pos.String()
		if syntaxErr.Filename != "" {
			location = syntaxErr.Filename + ":" + location
		}
		fmt.Fprintf(os.Stderr, "%s %s\n", highlight("SYNTAX ERROR"), location)
		fmt.Fprintf(os.Stderr, "%s\n", syntaxErr.Message)
		if syntaxErr.Excerpt != "" {
			fmt.Fprintf(os.Stderr, "\n%s\n", syntaxErr.Excerpt)
		}
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", prefix, err)
	os.Exit(1)
}

// highlight renders s in bold red when stderr is a terminal.
func highlight(s string) string {
	info, err := os.Stderr.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return s
	}
	return "\x1b[1;31m" + s + "\x1b[0m"
}

func transpileCommand(args []string) {
	fs := newFlagSet("transpile", "[-o output] [-v] <file>", "Lower one .grv file to C")
	output := fs.String("o", "", "Output file path (default: stdout)")
	verbose := fs.Bool("v", false, "Show verbose details")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: expected exactly one file argument\n")
		fs.Usage()
		os.Exit(1)
	}

	filename := fs.Arg(0)
	if *verbose {
		fmt.Fprintf(os.Stderr, "Transpiling %s...\n", filename)
	}

	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file %s: %v\n", filename, err)
		os.Exit(1)
	}

	code, err := TranspileFile(filename, source, DefaultOptions())
	if err != nil {
		reportError("Transpilation failed", err)
	}

	if *output == "" {
		fmt.Print(code)
		return
	}
	if err := os.WriteFile(*output, []byte(code), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *output, err)
		os.Exit(1)
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "Generated %s (%d bytes)\n", *output, len(code))
	}
}

// buildProject lowers the tree under root and compiles its main unit.
// It returns the binary path, or "" when the project has no main unit.
func buildProject(ctx context.Context, root, outDir, cc string, verbose bool) string {
	if outDir == "" {
		outDir = filepath.Join(root, ".build")
	}

	project, err := DiscoverProject(root, outDir, DefaultOptions())
	if err != nil {
		reportError("Build failed", err)
	}
	if verbose {
		fmt.Printf("Found %d units under %s\n", len(project.Units), root)
	}

	if err := project.Build(ctx, verbose); err != nil {
		reportError("Build failed", err)
	}

	mainUnit, ok := project.Main()
	if !ok {
		if verbose {
			fmt.Printf("No main.grv in %s, nothing to compile\n", root)
		}
		return ""
	}

	includeDirs := []string{outDir}
	if std, ok := ResolveStdDir(root); ok {
		rel, err := filepath.Rel(root, std)
		if err == nil {
			includeDirs = append(includeDirs, filepath.Join(outDir, rel))
		}
	}

	binary := filepath.Join(outDir, "main")
	if verbose {
		fmt.Printf("Compiling %s with %s...\n", mainUnit.Output, cc)
	}
	if err := CompileC(ctx, cc, mainUnit.Output, binary, includeDirs); err != nil {
		reportError("Compilation failed", err)
	}
	return binary
}

func buildCommand(args []string) {
	fs := newFlagSet("build", "[-o outdir] [-cc compiler] [-v] [root]", "Lower every .grv file under root and compile main.c")
	output := fs.String("o", "", "Output directory (default: <root>/.build)")
	cc := fs.String("cc", defaultCC(), "C compiler")
	verbose := fs.Bool("v", false, "Show verbose build details")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() > 1 {
		fmt.Fprintf(os.Stderr, "Error: expected at most one directory argument\n")
		fs.Usage()
		os.Exit(1)
	}

	root := "."
	if fs.NArg() == 1 {
		root = fs.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if binary := buildProject(ctx, root, *output, *cc, *verbose); binary != "" {
		fmt.Printf("Generated %s\n", binary)
	}
}

func runCommand(args []string) {
	fs := newFlagSet("run", "[-cc compiler] [-v] [root]", "Build and execute the program in root")
	cc := fs.String("cc", defaultCC(), "C compiler")
	verbose := fs.Bool("v", false, "Show verbose build details")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() > 1 {
		fmt.Fprintf(os.Stderr, "Error: expected at most one directory argument\n")
		fs.Usage()
		os.Exit(1)
	}

	root := "."
	if fs.NArg() == 1 {
		root = fs.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	binary := buildProject(ctx, root, "", *cc, *verbose)
	if binary == "" {
		fmt.Fprintf(os.Stderr, "Error: no main.grv in %s\n", root)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Executing %s...\n", binary)
	}
	cmd := exec.CommandContext(ctx, binary)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "Execution failed: %v\n", err)
		os.Exit(1)
	}
}

func evalCommand(args []string) {
	fs := newFlagSet("eval", "[-v] <code>", "Print the C for inline Girvel code")
	verbose := fs.Bool("v", false, "Also print the syntax tree")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: expected exactly one code argument\n")
		fs.Usage()
		os.Exit(1)
	}

	source := []byte(fs.Arg(0))
	tree, err := Parse(source)
	if err != nil {
		reportError("Parsing failed", err)
	}
	if *verbose {
		fmt.Printf("// %s\n", ToSExpr(tree))
	}

	code, err := Lower(tree, DefaultOptions())
	if err != nil {
		reportError("Lowering failed", err)
	}
	fmt.Print(code)
}

func treeCommand(args []string) {
	fs := newFlagSet("tree", "<file>", "Print the syntax tree of a .grv file as an s-expression")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: expected exactly one file argument\n")
		fs.Usage()
		os.Exit(1)
	}

	filename := fs.Arg(0)
	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file %s: %v\n", filename, err)
		os.Exit(1)
	}

	tree, err := Parse(source)
	if err != nil {
		var syntaxErr *SyntaxError
		if errors.As(err, &syntaxErr) {
			syntaxErr.Filename = filename
		}
		reportError("Parsing failed", err)
	}
	fmt.Println(ToSExpr(tree))
}

func lowerCommand(args []string) {
	fs := newFlagSet("lower", "[-o output] <file>", "Lower a syntax tree given as an s-expression (- reads stdin)")
	output := fs.String("o", "", "Output file path (default: stdout)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: expected exactly one file argument\n")
		fs.Usage()
		os.Exit(1)
	}

	filename := fs.Arg(0)
	var text []byte
	var err error
	if filename == "-" {
		text, err = io.ReadAll(os.Stdin)
	} else {
		text, err = os.ReadFile(filename)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", filename, err)
		os.Exit(1)
	}

	tree, err := TreeFromSExpr(string(text))
	if err != nil {
		reportError("Reading tree failed", err)
	}
	code, err := Lower(tree, DefaultOptions())
	if err != nil {
		reportError("Lowering failed", err)
	}

	if *output == "" {
		fmt.Print(code)
		return
	}
	if err := os.WriteFile(*output, []byte(code), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *output, err)
		os.Exit(1)
	}
}

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "transpile":
		transpileCommand(args)
	case "build":
		buildCommand(args)
	case "run":
		runCommand(args)
	case "eval":
		evalCommand(args)
	case "tree":
		treeCommand(args)
	case "lower":
		lowerCommand(args)
	case "help", "-h", "--help":
		showUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		showUsage()
		os.Exit(1)
	}
}
