// Package testutil provides test helpers that enforce import boundaries
// between the repository's layers.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// LayerRule forbids importing Target (or any package below it) from packages
// outside Allowed. A package under Target may always import its siblings.
type LayerRule struct {
	Name    string
	Target  string
	Allowed []string
}

func (r LayerRule) targets(importPath string) bool {
	return hasPathPrefix(importPath, r.Target)
}

func (r LayerRule) permits(pkgPath string) bool {
	if hasPathPrefix(pkgPath, r.Target) {
		return true
	}
	for _, allowed := range r.Allowed {
		if hasPathPrefix(pkgPath, allowed) {
			return true
		}
	}
	return false
}

func hasPathPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// LayerViolations loads the packages matched by pattern (tests included) and
// returns every import that breaks one of rules, formatted as
// "<rule>: <package> imports <path>".
func LayerViolations(pattern string, rules ...LayerRule) ([]string, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		// test variants are reported as "path [path.test]"
		pkgPath := strings.TrimSuffix(pkg.PkgPath, "_test")
		for importPath := range pkg.Imports {
			for _, rule := range rules {
				if rule.targets(importPath) && !rule.permits(pkgPath) {
					seen[rule.Name+": "+pkgPath+" imports "+importPath] = struct{}{}
				}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// AssertLayering fails t for every violation reported by LayerViolations.
func AssertLayering(t testing.TB, pattern string, rules ...LayerRule) {
	t.Helper()
	viols, err := LayerViolations(pattern, rules...)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	for _, v := range viols {
		t.Errorf("forbidden import: %s", v)
	}
	if len(viols) > 0 {
		t.FailNow()
	}
}

// AssertNoDirectImports parses the non-test .go files in dir and fails if
// any import path satisfies forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

// InternalImportForbidden matches any import path containing /internal/.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

func directImportViolations(dir string, forbidden func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				viols = append(viols, path+" (in "+name+")")
			}
		}
	}
	return viols, nil
}
