package railpack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashutoshpw/coolify/internal/plugin"
	"github.com/ashutoshpw/coolify/pkg/artifact"
	"github.com/ashutoshpw/coolify/pkg/component"
	"github.com/ashutoshpw/coolify/pkg/deployment"
	"github.com/hashicorp/go-hclog"
)

// Builder implements Railpack build
type Builder struct {
	config *BuilderConfig
}

// BuilderConfig holds the configuration for railpack builds
type BuilderConfig struct {
	// Binary is the railpack CLI to run (defaults to "railpack")
	Binary string

	// Env contains environment variables to pass to every build
	Env map[string]string
}

func (b *Builder) Build(ctx context.Context, cfg *component.BuildConfig) (*artifact.Artifact, error) {
	if b.config == nil {
		b.config = &BuilderConfig{}
	}
	if cfg == nil || cfg.Request == nil {
		return nil, fmt.Errorf("railpack builder requires a build configuration")
	}
	if cfg.Image == "" || cfg.Tag == "" {
		return nil, fmt.Errorf("railpack builder requires an image name and tag")
	}

	logger := hclog.FromContext(ctx)

	// railpack takes the full image:tag in --name; the command already runs in the source dir
	args := []string{"build", ".", "--name", cfg.ImageRef()}
	for _, kv := range cfg.SortedBuildEnv() {
		args = append(args, "--env", kv)
	}
	for _, kv := range plugin.SortedPairs(b.config.Env) {
		args = append(args, "--env", kv)
	}

	logger.Info("starting railpack build", "image", cfg.ImageRef(), "context", cfg.SourceDir())

	cmd := cfg.Command(ctx, b.binary(), args...)
	cmd.Env = append(cmd.Env, "DOCKER_BUILDKIT=1")

	if err := cmd.Run(); err != nil {
		logger.Error("railpack build failed", "error", err)
		return nil, fmt.Errorf("railpack build failed: %w", err)
	}

	logger.Info("railpack build completed successfully", "image", cfg.ImageRef())

	return &artifact.Artifact{
		ID:      fmt.Sprintf("railpack-%s-%d", cfg.Image, time.Now().Unix()),
		Image:   cfg.Image,
		Tag:     cfg.Tag,
		Builder: "railpack",
		Labels: map[string]string{
			"builder": "railpack",
		},
		Metadata: map[string]interface{}{
			"builder":        "railpack",
			"railpack_flags": strings.Join(args[:2], " "),
		},
		BuildTime: time.Now(),
		BuildID:   cfg.Request.BuildID,
	}, nil
}

func (b *Builder) binary() string {
	if b.config != nil && b.config.Binary != "" {
		return b.config.Binary
	}
	return "railpack"
}

func (b *Builder) Config() (interface{}, error) {
	return b.config, nil
}

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
		Name:      "railpack",
		BuildPack: &Builder{config: &BuilderConfig{}},
	}, deployment.BuildPackRailpack)
}
