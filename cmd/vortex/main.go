package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"vortex/libraries"
	"vortex/parser"
	"vortex/runtime"
)

const sourceExt = ".vtx"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("You must enter a source path e.g: vortex \"dev/main.vtx\"")
		os.Exit(1)
	}

	path := os.Args[1]
	modulesRoot := ""
	for i, a := range os.Args[2:] {
		if a == "-m" || a == "-modules" {
			if i+3 >= len(os.Args) {
				fmt.Println("Invalid module path")
				os.Exit(1)
			}
			modulesRoot = os.Args[i+3]
		}
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext != sourceExt {
		fmt.Fprintf(os.Stderr, "Error: only %s files are supported (got %s)\n", sourceExt, ext)
		os.Exit(1)
	}

	source, readErr := os.ReadFile(path)
	if readErr != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", readErr)
		os.Exit(1)
	}

	cfg := loadConfig(filepath.Dir(path))
	if modulesRoot != "" {
		cfg.ModulesRoot = modulesRoot
	}

	if parent := filepath.Dir(path); parent != "." {
		if err := os.Chdir(parent); err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot enter %s: %v\n", parent, err)
			os.Exit(1)
		}
		path = filepath.Base(path)
	}

	entry, cerr := compileSource(string(source), path, "")
	if cerr != nil {
		printError(cerr, []string{path})
		os.Exit(1)
	}

	vm := runtime.NewVM(cfg)
	vm.ImportLoad = newImportLoader(vm)
	registerStandardLibrary(vm)

	if _, rerr := vm.Run(entry); rerr != nil {
		printError(rerr, []string{path})
		os.Exit(1)
	}
}

// registerStandardLibrary installs the host-embedding natives (AMBIENT
// STACK "Host embedding"): math, time, and functools are plain globals,
// distinct from the user-module import mechanism newImportLoader serves.
func registerStandardLibrary(vm *runtime.VM) {
	libraries.RegisterFMaths(vm.Globals)
	libraries.RegisterTime(vm.Globals)
	libraries.RegisterFunctools(vm.Globals)
	libraries.RegisterErrors(vm.Globals)
	libraries.RegisterHost(vm.Globals, libraries.NewHostHandles())
}

func loadConfig(dir string) *runtime.Config {
	cfg, err := runtime.LoadConfig(filepath.Join(dir, "vortex.yaml"))
	if err != nil {
		return runtime.DefaultConfig()
	}
	return cfg
}

// compileSource parses and compiles one source file. The hand-written
// recursive-descent parser signals malformed syntax via panic (expect()),
// so this is the single boundary that turns that into a reportable *Error.
func compileSource(source, path, modulePath string) (fn *runtime.FunctionObj, err *runtime.Error) {
	defer func() {
		if r := recover(); r != nil {
			fn = nil
			err = runtime.NewError(fmt.Sprintf("%s: %v", path, r), 0, 0)
		}
	}()
	prog := parser.ParseProgram(source)
	c := runtime.NewCompiler(modulePath)
	return c.Compile(prog), nil
}

// newImportLoader resolves an import path relative to the importing
// module's directory, falling back to Config.ModulesRoot, mirroring the
// original interpreter's single-search-path behavior (main.cpp's -m flag).
func newImportLoader(vm *runtime.VM) runtime.ImportLoader {
	return func(path, fromImportPath string) (*runtime.FunctionObj, *runtime.Error) {
		candidates := []string{path}
		if fromImportPath != "" {
			candidates = append(candidates, filepath.Join(filepath.Dir(fromImportPath), path))
		}
		if vm.Config.ModulesRoot != "" {
			candidates = append(candidates, filepath.Join(vm.Config.ModulesRoot, path))
		}
		for _, cand := range candidates {
			full := cand
			if filepath.Ext(full) == "" {
				full += sourceExt
			}
			data, err := os.ReadFile(full)
			if err != nil {
				continue
			}
			return compileSource(string(data), full, path)
		}
		return nil, runtime.NewTypedError(runtime.ImportErrorKind, "module not found: "+path, 0, 0)
	}
}

// printError renders a diagnostic with its frame-name traceback: abort
// execution, report the error with file + line and the frame-name stack,
// colorized when stderr is a real terminal.
func printError(err *runtime.Error, frames []string) {
	color := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	msg := err.Error()
	if color {
		fmt.Fprintf(os.Stderr, "\x1b[31m%s\x1b[0m\n", msg)
	} else {
		fmt.Fprintln(os.Stderr, msg)
	}
	for _, f := range frames {
		fmt.Fprintf(os.Stderr, "  at %s\n", f)
	}
}
