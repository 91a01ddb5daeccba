package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ashutoshpw/coolify/internal/hclfunc"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// variablesOnly is the first decoding pass: variable blocks, everything else left for later
type variablesOnly struct {
	Variables []*VariableConfig `hcl:"variable,block"`
	Remain    hcl.Body          `hcl:",remain"`
}

// ParseFile parses an HCL configuration file and returns a Config struct
func ParseFile(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", absPath)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(absPath)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}
	return decode(file.Body)
}

// ParseBytes parses HCL configuration from a byte slice
func ParseBytes(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %s", diags.Error())
	}
	return decode(file.Body)
}

func decode(body hcl.Body) (*Config, error) {
	// PASS 1: variable definitions only
	var partial variablesOnly
	if diags := gohcl.DecodeBody(body, hclfunc.NewEvalContext(nil), &partial); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode variables: %s", diags.Error())
	}

	// PASS 2: everything, with var.X resolvable
	var config Config
	evalCtx := hclfunc.NewEvalContextWithVars(resolveVariables(partial.Variables))
	if diags := gohcl.DecodeBody(body, evalCtx, &config); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode configuration: %s", diags.Error())
	}

	config.applyDefaults()
	return &config, nil
}

// resolveVariables resolves variable values from their definitions.
// The first non-empty environment variable listed in Env wins, then Default.
func resolveVariables(variables []*VariableConfig) map[string]string {
	resolved := make(map[string]string)

	for _, v := range variables {
		if v == nil {
			continue
		}

		var value string
		for _, envName := range v.Env {
			if envVal := os.Getenv(envName); envVal != "" {
				value = envVal
				break
			}
		}
		if value == "" {
			value = v.Default
		}

		resolved[v.Name] = value
	}

	return resolved
}

// Load parses and validates the file at path. An empty path falls back to
// DEPLOY_WORKER_CONFIG and then to the built-in defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		config := Default()
		return config, Validate(config)
	}

	config, err := ParseFile(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}
