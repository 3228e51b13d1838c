package flags

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"testing"
)

func TestAllFlags_uniqueNames(t *testing.T) {
	seen := make(map[string]bool)
	for _, f := range AllFlags() {
		for _, name := range strings.Split(f.GetName(), ",") {
			name = strings.TrimSpace(name)
			if seen[name] {
				t.Fatalf("flag %q is registered twice", name)
			}
			seen[name] = true
		}
	}
	for _, name := range []string{"config", "http.port", "ws.port", "preset", "legacy-work"} {
		if !seen[name] {
			t.Fatalf("flag %q is missing", name)
		}
	}
}

// TestFlagGroups_documented verifies that the doc comment of every exported
// function is attached to it, so it shows up in godoc.
func TestFlagGroups_documented(t *testing.T) {
	fset := token.NewFileSet()
	pkgs, err := parser.ParseDir(fset, ".", nil, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	for _, pkg := range pkgs {
		for name, file := range pkg.Files {
			if strings.HasSuffix(name, "_test.go") {
				continue
			}
			for _, decl := range file.Decls {
				fn, ok := decl.(*ast.FuncDecl)
				if !ok || !fn.Name.IsExported() {
					continue
				}
				if fn.Doc == nil {
					t.Fatalf("%s: %s has no doc comment", name, fn.Name.Name)
				}
			}
		}
	}
}
