// Package exprs evaluates adapter entry expressions using a JavaScript
// runtime (goja). An expression sees two globals: `self`, the value the
// entry extracted from its source bundle, and `inputs`, the arguments
// resolved before it.
package exprs

import (
	"fmt"

	"github.com/dop251/goja"
)

// Evaluate runs expr and returns its result as a plain Go value.
// The expression body is wrapped in a function, so both bare expressions
// ("self * 2") and statement blocks ("var x = self; return x") work;
// a bare expression is returned implicitly.
func Evaluate(expr string, self any, inputs map[string]any) (any, error) {
	vm := goja.New()

	if err := vm.Set("self", self); err != nil {
		return nil, fmt.Errorf("set self: %w", err)
	}
	if err := vm.Set("inputs", inputs); err != nil {
		return nil, fmt.Errorf("set inputs: %w", err)
	}

	// Try the expression form first; fall back to a statement block.
	val, err := vm.RunString(fmt.Sprintf("(function() { return (%s); })()", expr))
	if err != nil {
		val, err = vm.RunString(fmt.Sprintf("(function() { %s })()", expr))
	}
	if err != nil {
		return nil, fmt.Errorf("javascript error: %w", err)
	}

	return val.Export(), nil
}
