// Package noexit содержит анализатор, который запрещает прямой вызов
// os.Exit и log.Fatal* в функции main пакета main.
package noexit

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"
)

// forbidden полные имена функций, запрещённых в main.
var forbidden = map[string]struct{}{
	"os.Exit":     {},
	"log.Fatal":   {},
	"log.Fatalf":  {},
	"log.Fatalln": {},
}

// Analyzer запрещает os.Exit и log.Fatal* в функции main.
var Analyzer = &analysis.Analyzer{
	Name: "noexit",
	Doc:  "запрещает os.Exit и log.Fatal* в функции main пакета main",
	Run:  run,
}

// NewAnalyzer возвращает анализатор noexit.
func NewAnalyzer() *analysis.Analyzer {
	return Analyzer
}

func run(pass *analysis.Pass) (any, error) {
	if pass.Pkg.Name() != "main" {
		return nil, nil
	}

	for _, file := range pass.Files {
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv != nil || fn.Name.Name != "main" || fn.Body == nil {
				continue
			}
			ast.Inspect(fn.Body, func(n ast.Node) bool {
				// Вложенные функции выполняются не обязательно в main.
				if _, ok := n.(*ast.FuncLit); ok {
					return false
				}
				call, ok := n.(*ast.CallExpr)
				if !ok {
					return true
				}
				if name, ok := calleeName(pass, call); ok {
					if _, bad := forbidden[name]; bad {
						pass.Reportf(call.Pos(), "вызов %s в функции main запрещён", name)
					}
				}
				return true
			})
		}
	}
	return nil, nil
}

// calleeName возвращает полное имя вызываемой функции пакетного уровня.
func calleeName(pass *analysis.Pass, call *ast.CallExpr) (string, bool) {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return "", false
	}
	fn, ok := pass.TypesInfo.Uses[sel.Sel].(*types.Func)
	if !ok || fn.Pkg() == nil {
		return "", false
	}
	if sig, ok := fn.Type().(*types.Signature); ok && sig.Recv() != nil {
		return "", false
	}
	return fn.FullName(), true
}
