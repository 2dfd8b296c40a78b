// Package sqlfmt содержит анализатор, который находит SQL-запросы,
// собранные через fmt.Sprintf прямо в вызове Query/Exec.
package sqlfmt

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"
)

var queryMethods = map[string]struct{}{
	"Query":           {},
	"QueryRow":        {},
	"Exec":            {},
	"QueryContext":    {},
	"QueryRowContext": {},
	"ExecContext":     {},
}

var Analyzer = &analysis.Analyzer{
	Name: "sqlfmt",
	Doc:  "запрещает передавать результат fmt.Sprintf в Query/QueryRow/Exec",
	Run:  run,
}

func run(pass *analysis.Pass) (any, error) {
	for _, file := range pass.Files {
		ast.Inspect(file, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			if _, ok := queryMethods[sel.Sel.Name]; !ok {
				return true
			}
			if _, isMethod := pass.TypesInfo.Selections[sel]; !isMethod {
				return true
			}
			for _, arg := range call.Args {
				if isSprintf(pass, arg) {
					pass.Reportf(arg.Pos(), "SQL собран через fmt.Sprintf, используйте плейсхолдеры")
				}
			}
			return true
		})
	}
	return nil, nil
}

func isSprintf(pass *analysis.Pass, expr ast.Expr) bool {
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		return false
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	fn, ok := pass.TypesInfo.Uses[sel.Sel].(*types.Func)
	return ok && fn.FullName() == "fmt.Sprintf"
}
