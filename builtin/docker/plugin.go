package docker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashutoshpw/coolify/internal/plugin"
	"github.com/ashutoshpw/coolify/pkg/artifact"
	"github.com/ashutoshpw/coolify/pkg/component"
	"github.com/ashutoshpw/coolify/pkg/deployment"
	"github.com/hashicorp/go-hclog"
)

// defaultDockerignore keeps repository metadata out of the build context
const defaultDockerignore = ".git\n.env\ndocker-compose.yml\n"

// Builder builds images from the repository's own Dockerfile
type Builder struct {
	config *BuilderConfig
}

// BuilderConfig holds the worker-wide settings of the docker build pack
type BuilderConfig struct {
	// Binary is the docker CLI to run (defaults to "docker")
	Binary string

	// BuildArgs are added to every build, after the deployment's own variables
	BuildArgs map[string]string
}

// Build runs docker build against the destination host
func (b *Builder) Build(ctx context.Context, cfg *component.BuildConfig) (*artifact.Artifact, error) {
	if b.config == nil {
		b.config = &BuilderConfig{}
	}
	if cfg == nil || cfg.Request == nil {
		return nil, fmt.Errorf("docker builder requires a build configuration")
	}
	if cfg.Image == "" || cfg.Tag == "" {
		return nil, fmt.Errorf("docker builder requires an image name and tag")
	}

	logger := hclog.FromContext(ctx)

	dockerfile := cfg.Request.DockerfileLocation
	if dockerfile == "" {
		dockerfile = "/Dockerfile"
	}
	dockerfilePath := filepath.Join(cfg.SourceDir(), filepath.FromSlash(dockerfile))
	if _, err := os.Stat(dockerfilePath); err != nil {
		return nil, fmt.Errorf("dockerfile %s not found in repository: %w", dockerfile, err)
	}

	args := []string{"build", "-f", dockerfilePath, "-t", cfg.ImageRef()}
	for _, kv := range cfg.SortedBuildEnv() {
		args = append(args, "--build-arg", kv)
	}
	for _, kv := range plugin.SortedPairs(b.config.BuildArgs) {
		args = append(args, "--build-arg", kv)
	}
	args = append(args, ".")

	logger.Info("starting Docker build", "image", cfg.ImageRef(), "context", cfg.SourceDir())
	logger.Debug("executing docker", "args", redactArgs(args))

	if err := cfg.Command(ctx, b.binary(), args...).Run(); err != nil {
		logger.Error("docker build failed", "error", err)
		return nil, fmt.Errorf("docker build failed: %w", err)
	}

	logger.Info("docker build completed successfully", "image", cfg.ImageRef())

	return &artifact.Artifact{
		ID:      fmt.Sprintf("docker-%s-%d", cfg.Image, time.Now().Unix()),
		Image:   cfg.Image,
		Tag:     cfg.Tag,
		Builder: "docker",
		Labels:  map[string]string{"builder": "docker"},
		Metadata: map[string]interface{}{
			"dockerfile": dockerfile,
		},
		BuildTime: time.Now(),
		BuildID:   cfg.Request.BuildID,
	}, nil
}

// Seed writes a .dockerignore when the repository has none
func (b *Builder) Seed(ctx context.Context, cfg *component.BuildConfig) error {
	path := filepath.Join(cfg.SourceDir(), ".dockerignore")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultDockerignore), 0o644)
}

func (b *Builder) binary() string {
	if b.config != nil && b.config.Binary != "" {
		return b.config.Binary
	}
	return "docker"
}

// redactArgs hides build-arg values, which carry secrets, from debug logs
func redactArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 1; i < len(out); i++ {
		if out[i-1] == "--build-arg" {
			if k, _, ok := strings.Cut(out[i], "="); ok {
				out[i] = k + "=***"
			}
		}
	}
	return out
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
			Binary:    plugin.StringSetting(cfg, "binary"),
			BuildArgs: plugin.MapSetting(cfg, "build_args"),
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
		Name:      "docker",
		BuildPack: &Builder{config: &BuilderConfig{}},
	}, deployment.BuildPackDocker)
}
