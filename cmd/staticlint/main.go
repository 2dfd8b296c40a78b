// Package main запускает multichecker для кода firefly.
//
// Он включает:
//   - анализаторы go/analysis/passes (shadow, structtag, nilness, fieldalignment,
//     printf, lostcancel, errorsas, httpresponse, copylock)
//   - все SA-анализаторы staticcheck
//   - S1000 из simple и ST1005 из stylecheck
//   - U1000 (неиспользуемый код)
//   - bodyclose для незакрытых тел HTTP-ответов
//   - noexit: запрещает os.Exit и log.Fatal* в main
//   - sqlfmt: SQL, собранный через fmt.Sprintf, в Query/Exec
//
// Запуск:
//
//	go run ./cmd/staticlint ./...
package main

import (
	"strings"

	"github.com/timakin/bodyclose/passes/bodyclose"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/multichecker"
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/errorsas"
	"golang.org/x/tools/go/analysis/passes/fieldalignment"
	"golang.org/x/tools/go/analysis/passes/httpresponse"
	"golang.org/x/tools/go/analysis/passes/lostcancel"
	"golang.org/x/tools/go/analysis/passes/nilness"
	"golang.org/x/tools/go/analysis/passes/printf"
	"golang.org/x/tools/go/analysis/passes/shadow"
	"golang.org/x/tools/go/analysis/passes/structtag"
	"honnef.co/go/tools/analysis/lint"
	"honnef.co/go/tools/simple"
	"honnef.co/go/tools/staticcheck"
	"honnef.co/go/tools/stylecheck"
	"honnef.co/go/tools/unused"

	"github.com/Totarae/firefly/cmd/staticlint/noexit"
	"github.com/Totarae/firefly/cmd/staticlint/sqlfmt"
)

func main() {
	multichecker.Main(analyzers()...)
}

func analyzers() []*analysis.Analyzer {
	list := []*analysis.Analyzer{
		shadow.Analyzer,
		structtag.Analyzer,
		nilness.Analyzer,
		fieldalignment.Analyzer,
		printf.Analyzer,
		lostcancel.Analyzer,
		errorsas.Analyzer,
		httpresponse.Analyzer,
		copylock.Analyzer,
	}

	// SA-анализаторы
	for _, a := range staticcheck.Analyzers {
		if strings.HasPrefix(a.Analyzer.Name, "SA") {
			list = append(list, a.Analyzer)
		}
	}

	// не-SA
	list = append(list, pick(simple.Analyzers, "S1000")...)
	list = append(list, pick(stylecheck.Analyzers, "ST1005")...)
	list = append(list, unused.Analyzer.Analyzer)

	list = append(list, bodyclose.Analyzer, noexit.NewAnalyzer(), sqlfmt.Analyzer)
	return list
}

func pick(from []*lint.Analyzer, names ...string) []*analysis.Analyzer {
	var out []*analysis.Analyzer
	for _, a := range from {
		for _, name := range names {
			if a.Analyzer.Name == name {
				out = append(out, a.Analyzer)
			}
		}
	}
	return out
}
