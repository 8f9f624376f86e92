// Package main provides the custom checks of the module for "go vet".
//
//	go build -o mcheck ./internal/mcheck
//	go vet -vettool=./mcheck ./...
//
// The commentLen check verifies that no comment exceeds MaxLen characters. It
// ignores generated files and "//go:generate" directives.
//
// The xerrors check verifies that the errors are created with the xerrors
// package, so that they carry a frame when printed with "%+v". Test files are
// ignored.
package main

import (
	"go/ast"
	"go/types"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/unitchecker"
)

// MaxLen is the maximum length of a comment
var MaxLen = 80

var commentAnalyzer = &analysis.Analyzer{
	Name: "commentLen",
	Doc:  "checks the lengths of comments",
	Run:  runCommentLen,
}

var xerrorsAnalyzer = &analysis.Analyzer{
	Name: "xerrors",
	Doc:  "checks that errors are created with golang.org/x/xerrors",
	Run:  runXerrors,
}

// forbidden maps the package paths to the functions replaced by xerrors.
var forbidden = map[string]string{
	"errors": "New",
	"fmt":    "Errorf",
}

func main() {
	unitchecker.Main(
		commentAnalyzer,
		xerrorsAnalyzer,
	)
}

func runCommentLen(pass *analysis.Pass) (interface{}, error) {
fileLoop:
	for _, file := range pass.Files {
		isFirst := true
		for _, cg := range file.Comments {
			for _, c := range cg.List {
				if isFirst && strings.HasPrefix(c.Text, "// Code generated") {
					continue fileLoop
				}
				// in case of /* */ comment there might be multiple lines
				lines := strings.Split(c.Text, "\n")
				for _, line := range lines {
					if strings.HasPrefix(line, "//go:generate") {
						continue
					}
					if len(line) > MaxLen {
						pass.Reportf(c.Pos(), "Comment too long: %s (%d)",
							line, len(line))
					}
				}
				isFirst = false
			}
		}
	}
	return nil, nil
}

func runXerrors(pass *analysis.Pass) (interface{}, error) {
	for _, file := range pass.Files {
		filename := pass.Fset.File(file.Pos()).Name()
		if strings.HasSuffix(filename, "_test.go") {
			continue
		}

		ast.Inspect(file, func(node ast.Node) bool {
			call, ok := node.(*ast.CallExpr)
			if !ok {
				return true
			}

			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}

			ident, ok := sel.X.(*ast.Ident)
			if !ok {
				return true
			}

			pkg, ok := pass.TypesInfo.Uses[ident].(*types.PkgName)
			if !ok {
				return true
			}

			path := pkg.Imported().Path()
			if forbidden[path] == sel.Sel.Name {
				pass.Reportf(call.Pos(), "use xerrors.%s instead of %s.%s",
					sel.Sel.Name, path, sel.Sel.Name)
			}

			return true
		})
	}
	return nil, nil
}
