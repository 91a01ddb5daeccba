package hclfunc

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

func eval(t *testing.T, ctx *hcl.EvalContext, src string) string {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		t.Fatalf("parse %q: %s", src, diags.Error())
	}
	val, diags := expr.Value(ctx)
	if diags.HasErrors() {
		t.Fatalf("eval %q: %s", src, diags.Error())
	}
	return val.AsString()
}

func TestNewEvalContext_Variables(t *testing.T) {
	ctx := NewEvalContext(map[string]string{"region": "eu-west-1", "host": "10.0.0.5"})

	if got := eval(t, ctx, `var.region`); got != "eu-west-1" {
		t.Errorf("var.region = %q", got)
	}
	if got := eval(t, ctx, `"tcp://${var.host}:2376"`); got != "tcp://10.0.0.5:2376" {
		t.Errorf("template = %q", got)
	}
	if got := eval(t, ctx, `upper(var.region)`); got != "EU-WEST-1" {
		t.Errorf("function over variable = %q", got)
	}
}

func TestNewEvalContext_NoVariables(t *testing.T) {
	ctx := NewEvalContext(nil)
	if ctx.Variables != nil {
		t.Errorf("expected no variables, got %v", ctx.Variables)
	}

	t.Setenv("WORKER_TEST_HOST", "")
	if got := eval(t, ctx, `env_or("WORKER_TEST_HOST", "unix:///var/run/docker.sock")`); got != "unix:///var/run/docker.sock" {
		t.Errorf("env_or = %q", got)
	}
}

func TestNewEvalContextWithVars_Empty(t *testing.T) {
	ctx := NewEvalContextWithVars(map[string]string{})
	if _, ok := ctx.Variables["var"]; !ok {
		t.Error("expected var namespace even when empty")
	}
}
