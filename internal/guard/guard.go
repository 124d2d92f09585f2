package guard

import (
	_ "embed"
	"sync"

	"github.com/dop251/goja"
)

//go:embed guard.js
var script string

//go:embed harness_dom.js
var domStub string

// Script returns the guard shim injected into every rewritten document
func Script() string {
	return script
}

var (
	compileOnce sync.Once
	guardProg   *goja.Program
	domProg     *goja.Program
	compileErr  error
)

func programs() (*goja.Program, *goja.Program, error) {
	compileOnce.Do(func() {
		domProg, compileErr = goja.Compile("harness_dom.js", domStub, false)
		if compileErr != nil {
			return
		}
		guardProg, compileErr = goja.Compile("guard.js", script, false)
	})
	return domProg, guardProg, compileErr
}
