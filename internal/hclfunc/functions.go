// Package hclfunc provides the functions available inside worker configuration files.
package hclfunc

import (
	"os"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// EnvFunc returns the value of an environment variable, or "" when unset.
//
//	token = env("BACKEND_TOKEN")
func EnvFunc() function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "varname", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			return cty.StringVal(os.Getenv(args[0].AsString())), nil
		},
	})
}

// EnvOrFunc returns an environment variable, or the fallback when it is unset or empty.
//
//	docker_host = env_or("DOCKER_HOST", "unix:///var/run/docker.sock")
func EnvOrFunc() function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "varname", Type: cty.String},
			{Name: "fallback", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			if value := os.Getenv(args[0].AsString()); value != "" {
				return cty.StringVal(value), nil
			}
			return args[1], nil
		},
	})
}

// LowerFunc converts a string to lowercase
func LowerFunc() function.Function {
	return stringMapper(strings.ToLower)
}

// UpperFunc converts a string to uppercase
func UpperFunc() function.Function {
	return stringMapper(strings.ToUpper)
}

func stringMapper(fn func(string) string) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "str", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			return cty.StringVal(fn(args[0].AsString())), nil
		},
	})
}

// ConcatFunc joins its string arguments. Null arguments are skipped.
func ConcatFunc() function.Function {
	return function.New(&function.Spec{
		VarParam: &function.Parameter{
			Name:      "values",
			Type:      cty.String,
			AllowNull: true,
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			var builder strings.Builder
			for _, arg := range args {
				if arg.IsNull() {
					continue
				}
				builder.WriteString(arg.AsString())
			}
			return cty.StringVal(builder.String()), nil
		},
	})
}

// Functions returns every function available to configuration files
func Functions() map[string]function.Function {
	return map[string]function.Function{
		"env":    EnvFunc(),
		"env_or": EnvOrFunc(),
		"lower":  LowerFunc(),
		"upper":  UpperFunc(),
		"concat": ConcatFunc(),
	}
}
