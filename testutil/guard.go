// Package testutil provides layering guards that package tests use to keep
// the dependency graph pointing inward: geometry at the bottom, then domain,
// then the engine, with adapters and binaries on the outside.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// ModulePath is the import path prefix of this module.
const ModulePath = "stowage"

// Predicate reports whether an import path is forbidden.
type Predicate func(importPath string) bool

// Internal matches any package under an internal/ directory.
func Internal(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasSuffix(path, "/internal")
}

// ThirdParty matches imports whose first element looks like a host name.
func ThirdParty(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return strings.Contains(first, ".")
}

// Module matches packages of this module.
func Module(path string) bool {
	return path == ModulePath || strings.HasPrefix(path, ModulePath+"/")
}

// Under matches prefix and every package below it.
func Under(prefix string) Predicate {
	prefix = strings.TrimSuffix(prefix, "/")
	return func(path string) bool {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
}

// AnyOf matches when at least one predicate does.
func AnyOf(preds ...Predicate) Predicate {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

// ImportViolations parses the non-test Go files in dir and returns every
// forbidden import as "path (in file.go)", sorted.
func ImportViolations(dir string, forbidden Predicate) ([]string, error) {
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
	sort.Strings(viols)
	return viols, nil
}

type fatalLogger interface {
	Helper()
	Fatalf(format string, args ...any)
}

// AssertImports fails t when a non-test file in dir imports a forbidden path.
func AssertImports(t testing.TB, dir string, forbidden Predicate, reason string) {
	t.Helper()
	assertImports(t, dir, forbidden, reason)
}

func assertImports(t fatalLogger, dir string, forbidden Predicate, reason string) {
	t.Helper()
	viols, err := ImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
		return
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden imports (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
