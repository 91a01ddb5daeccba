package nixpacks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ashutoshpw/coolify/internal/plugin"
	"github.com/ashutoshpw/coolify/pkg/artifact"
	"github.com/ashutoshpw/coolify/pkg/component"
	"github.com/ashutoshpw/coolify/pkg/deployment"
	"github.com/hashicorp/go-hclog"
)

// Kinds are the build pack kinds served by nixpacks
var Kinds = []deployment.BuildPackKind{
	deployment.BuildPackNode,
	deployment.BuildPackStatic,
	deployment.BuildPackNextJS,
	deployment.BuildPackNuxtJS,
	deployment.BuildPackReact,
	deployment.BuildPackVueJS,
	deployment.BuildPackSvelte,
	deployment.BuildPackGatsby,
	deployment.BuildPackAstro,
	deployment.BuildPackEleventy,
	deployment.BuildPackPython,
	deployment.BuildPackPHP,
	deployment.BuildPackLaravel,
	deployment.BuildPackRust,
	deployment.BuildPackDeno,
}

// staticKinds produce a directory of files that is served as a single page app
var staticKinds = map[deployment.BuildPackKind]bool{
	deployment.BuildPackStatic:   true,
	deployment.BuildPackReact:    true,
	deployment.BuildPackVueJS:    true,
	deployment.BuildPackSvelte:   true,
	deployment.BuildPackGatsby:   true,
	deployment.BuildPackAstro:    true,
	deployment.BuildPackEleventy: true,
}

// ConfigFile is the nixpacks plan file seeded into the checkout
const ConfigFile = "nixpacks.toml"

// Builder implements Nixpacks build
type Builder struct {
	config *BuilderConfig
}

// BuilderConfig holds the worker-wide settings of the nixpacks build pack
type BuilderConfig struct {
	// Binary is the nixpacks CLI to run (defaults to "nixpacks")
	Binary string

	// Env is added to every build
	Env map[string]string
}

// Build runs nixpacks build with the deployment's commands
func (b *Builder) Build(ctx context.Context, cfg *component.BuildConfig) (*artifact.Artifact, error) {
	if b.config == nil {
		b.config = &BuilderConfig{}
	}
	if cfg == nil || cfg.Request == nil {
		return nil, fmt.Errorf("nixpacks builder requires a build configuration")
	}
	if cfg.Image == "" || cfg.Tag == "" {
		return nil, fmt.Errorf("nixpacks builder requires an image name and tag")
	}

	logger := hclog.FromContext(ctx)
	args := b.args(cfg)

	logger.Info("starting nixpacks build", "image", cfg.ImageRef(), "context", cfg.SourceDir())
	logger.Debug("executing nixpacks", "kind", cfg.Request.BuildPack, "args_count", len(args))

	if err := cfg.Command(ctx, b.binary(), args...).Run(); err != nil {
		logger.Error("nixpacks build failed", "error", err)
		return nil, fmt.Errorf("nixpacks build failed: %w", err)
	}

	logger.Info("nixpacks build completed successfully", "image", cfg.ImageRef())

	return &artifact.Artifact{
		ID:      fmt.Sprintf("nixpacks-%s-%d", cfg.Image, time.Now().Unix()),
		Image:   cfg.Image,
		Tag:     cfg.Tag,
		Builder: "nixpacks",
		Labels:  map[string]string{"builder": "nixpacks"},
		Metadata: map[string]interface{}{
			"kind": string(cfg.Request.BuildPack),
		},
		BuildTime: time.Now(),
		BuildID:   cfg.Request.BuildID,
	}, nil
}

func (b *Builder) args(cfg *component.BuildConfig) []string {
	req := cfg.Request
	args := []string{"build", ".", "--name", cfg.Image, "--tag", cfg.Tag, "--no-error-without-start"}
	if req.InstallCommand != "" {
		args = append(args, "--install-cmd", req.InstallCommand)
	}
	if req.BuildCommand != "" {
		args = append(args, "--build-cmd", req.BuildCommand)
	}
	if req.StartCommand != "" && !staticKinds[req.BuildPack] {
		args = append(args, "--start-cmd", req.StartCommand)
	}
	for _, kv := range cfg.SortedBuildEnv() {
		args = append(args, "--env", kv)
	}
	for _, kv := range plugin.SortedPairs(b.config.Env) {
		args = append(args, "--env", kv)
	}
	return args
}

// Seed writes a nixpacks.toml describing the runtime variables unless the repository ships one
func (b *Builder) Seed(ctx context.Context, cfg *component.BuildConfig) error {
	path := filepath.Join(cfg.SourceDir(), ConfigFile)
	if _, err := os.Stat(path); err == nil {
		hclog.FromContext(ctx).Debug("repository provides nixpacks.toml, not seeding")
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(Plan(cfg.Request)), 0o644)
}

// Plan renders the nixpacks.toml seeded for req
func Plan(req *deployment.Request) string {
	var sb strings.Builder
	sb.WriteString("[variables]\n")
	fmt.Fprintf(&sb, "PORT = %s\n", strconv.Quote(strconv.Itoa(req.Port)))
	if staticKinds[req.BuildPack] {
		dir := strings.TrimPrefix(req.PublishDirectory, "/")
		if dir == "" {
			dir = "."
		}
		fmt.Fprintf(&sb, "NIXPACKS_SPA_OUTPUT_DIR = %s\n", strconv.Quote(dir))
	}
	switch req.BuildPack {
	case deployment.BuildPackPython:
		if req.PythonWSGI != "" && req.PythonModule != "" {
			variable := req.PythonVariable
			if variable == "" {
				variable = "app"
			}
			start := fmt.Sprintf("%s --bind 0.0.0.0:%d %s:%s", strings.ToLower(req.PythonWSGI), req.Port, req.PythonModule, variable)
			fmt.Fprintf(&sb, "\n[start]\ncmd = %s\n", strconv.Quote(start))
		}
	case deployment.BuildPackDeno:
		main := req.DenoMainFile
		if main == "" {
			main = "main.ts"
		}
		start := strings.TrimSpace("deno run " + req.DenoOptions + " " + main)
		fmt.Fprintf(&sb, "\n[start]\ncmd = %s\n", strconv.Quote(start))
	case deployment.BuildPackPHP, deployment.BuildPackLaravel:
		if req.PHPModules != "" {
			fmt.Fprintf(&sb, "NIXPACKS_PHP_EXTENSIONS = %s\n", strconv.Quote(req.PHPModules))
		}
	}
	return sb.String()
}

func (b *Builder) binary() string {
	if b.config != nil && b.config.Binary != "" {
		return b.config.Binary
	}
	return "nixpacks"
}

// Config returns the current configuration
func (b *Builder) Config() (interface{}, error) {
	return b.config, nil
}

// ConfigSet sets the configuration
func (b *Builder) ConfigSet(config interface{}) error {
	switch cfg := config.(type) {
	case map[string]interface{}:
		b.config = &BuilderConfig{
			Binary: plugin.StringSetting(cfg, "binary"),
			Env:    plugin.MapSetting(cfg, "env"),
		}
	case *BuilderConfig:
		b.config = cfg
	default:
		b.config = &BuilderConfig{}
	}
	return nil
}

func init() {
	plugin.Register(&plugin.Plugin{
		Name:      "nixpacks",
		BuildPack: &Builder{config: &BuilderConfig{}},
	}, Kinds...)
}
