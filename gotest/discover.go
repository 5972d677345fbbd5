// Package gotest adapts `go test` to the session orchestrator: it discovers
// test functions from source and executes them one at a time.
package gotest

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/mod/modfile"

	"github.com/ethereum-optimism/infra/op-testopt/session"
	"github.com/ethereum-optimism/infra/op-testopt/types"
)

// DiscoveredTest is a test function found in a package's _test.go files.
type DiscoveredTest struct {
	Ref types.TestRef
	// Package is the argument passed to `go test`, relative to the test directory.
	Package string
	// File is the test file relative to the test directory.
	File string
	Line int
}

// Hooks annotate the tree nodes of the test with its location.
func (d DiscoveredTest) Hooks() session.DiscoveryHooks {
	return session.DiscoveryHooks{
		OnModule: func(m *types.TestModule) {
			m.Path = strings.TrimPrefix(d.Package, "./")
		},
		OnTest: func(t *types.Test) {
			t.SetSourceLocation(d.File, d.Line)
		},
	}
}

// Cases converts discovered tests into orchestrator test cases, keeping their order.
func Cases(tests []DiscoveredTest) []session.TestCase {
	out := make([]session.TestCase, 0, len(tests))
	for _, t := range tests {
		out = append(out, session.TestCase{Ref: t.Ref, Hooks: t.Hooks()})
	}
	return out
}

// Discover finds the test functions of every package matching patterns. A
// pattern is a relative directory, optionally ending in "/..." to include
// subdirectories, or an import path inside the module at testDir.
//
// Results are grouped by package and then by file, so suites and modules are
// contiguous.
func Discover(testDir string, patterns []string, logger log.Logger) ([]DiscoveredTest, error) {
	modulePath, err := readModulePath(testDir)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		patterns = []string{AllPackagesPattern}
	}

	var dirs []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matched, err := packageDirs(testDir, modulePath, pattern)
		if err != nil {
			return nil, err
		}
		for _, dir := range matched {
			if !seen[dir] {
				seen[dir] = true
				dirs = append(dirs, dir)
			}
		}
	}

	var tests []DiscoveredTest
	for _, rel := range dirs {
		found, err := findTestFunctions(testDir, rel, importPath(modulePath, rel))
		if err != nil {
			return nil, err
		}
		logger.Debug("Discovered tests", "package", rel, "count", len(found))
		tests = append(tests, found...)
	}
	logger.Info("Discovered tests", "packages", len(dirs), "tests", len(tests))
	return tests, nil
}

// readModulePath returns the module path from testDir/go.mod, or "" when there is none.
func readModulePath(testDir string) (string, error) {
	goModPath := filepath.Join(testDir, "go.mod")
	goModContent, err := os.ReadFile(goModPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read go.mod: %w", err)
	}

	modFile, err := modfile.Parse(goModPath, goModContent, nil)
	if err != nil {
		return "", fmt.Errorf("failed to parse go.mod: %w", err)
	}
	if modFile.Module == nil || modFile.Module.Mod.Path == "" {
		return "", fmt.Errorf("could not find module name in go.mod")
	}
	return modFile.Module.Mod.Path, nil
}

// packageDirs resolves a pattern to slash-separated directories relative to testDir.
func packageDirs(testDir, modulePath, pattern string) ([]string, error) {
	recursive := false
	if pattern == "..." || strings.HasSuffix(pattern, "/...") {
		recursive = true
		pattern = strings.TrimSuffix(strings.TrimSuffix(pattern, "..."), "/")
	}

	var rel string
	switch {
	case pattern == "" || pattern == CurrentDirPattern:
		rel = "."
	case strings.HasPrefix(pattern, "./"):
		rel = filepath.ToSlash(filepath.Clean(strings.TrimPrefix(pattern, "./")))
	case modulePath != "" && (pattern == modulePath || strings.HasPrefix(pattern, modulePath+"/")):
		rel = strings.TrimPrefix(strings.TrimPrefix(pattern, modulePath), "/")
		if rel == "" {
			rel = "."
		}
	default:
		return nil, fmt.Errorf("package %s is not in module %q", pattern, modulePath)
	}

	root := filepath.Join(testDir, filepath.FromSlash(rel))
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	if !recursive {
		return []string{rel}, nil
	}

	var dirs []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata" || name == "vendor") {
			return filepath.SkipDir
		}
		r, err := filepath.Rel(testDir, path)
		if err != nil {
			return err
		}
		dirs = append(dirs, filepath.ToSlash(r))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return dirs, nil
}

func importPath(modulePath, rel string) string {
	switch {
	case modulePath == "":
		return rel
	case rel == ".":
		return modulePath
	default:
		return modulePath + "/" + rel
	}
}

// findTestFunctions parses the _test.go files of one directory.
func findTestFunctions(testDir, rel, pkg string) ([]DiscoveredTest, error) {
	pkgDir := filepath.Join(testDir, filepath.FromSlash(rel))
	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	packageArg := CurrentDirPattern
	if rel != "." {
		packageArg = "./" + rel
	}

	var tests []DiscoveredTest
	fset := token.NewFileSet()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		filePath := filepath.Join(pkgDir, entry.Name())
		f, err := parser.ParseFile(fset, filePath, nil, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}

		file := entry.Name()
		if rel != "." {
			file = rel + "/" + entry.Name()
		}

		for _, decl := range f.Decls {
			funcDecl, ok := decl.(*ast.FuncDecl)
			if !ok || !isTestFunc(funcDecl) {
				continue
			}
			name := funcDecl.Name.Name
			tests = append(tests, DiscoveredTest{
				Ref:     types.NewTestRef(pkg, entry.Name(), name),
				Package: packageArg,
				File:    file,
				Line:    fset.Position(funcDecl.Pos()).Line,
			})
		}
	}
	return tests, nil
}

// isTestFunc applies the rules `go test` uses: a top-level func TestXxx where
// Xxx does not start with a lowercase letter, taking a single *testing.T and
// returning nothing.
func isTestFunc(fn *ast.FuncDecl) bool {
	if fn.Recv != nil || fn.Type.TypeParams != nil || fn.Type.Results != nil {
		return false
	}
	name := fn.Name.Name
	if !strings.HasPrefix(name, "Test") {
		return false
	}
	if rest := name[len("Test"):]; rest != "" {
		r, _ := utf8.DecodeRuneInString(rest)
		if unicode.IsLower(r) {
			return false
		}
	}

	params := fn.Type.Params.List
	if len(params) != 1 || len(params[0].Names) > 1 {
		return false
	}
	star, ok := params[0].Type.(*ast.StarExpr)
	if !ok {
		return false
	}
	sel, ok := star.X.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	_, ok = sel.X.(*ast.Ident)
	return ok && sel.Sel.Name == "T"
}
