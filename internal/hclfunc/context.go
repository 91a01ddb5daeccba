package hclfunc

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// NewEvalContext creates an evaluation context with the custom functions and,
// when variables is non-empty, the variables under the var namespace.
func NewEvalContext(variables map[string]string) *hcl.EvalContext {
	if len(variables) == 0 {
		return &hcl.EvalContext{
			Functions: Functions(),
		}
	}
	return NewEvalContextWithVars(variables)
}

// NewEvalContextWithVars exposes variables as var.<name> in HCL expressions
func NewEvalContextWithVars(variables map[string]string) *hcl.EvalContext {
	varMap := make(map[string]cty.Value, len(variables))
	for k, v := range variables {
		varMap[k] = cty.StringVal(v)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"var": cty.ObjectVal(varMap),
		},
		Functions: Functions(),
	}
}
