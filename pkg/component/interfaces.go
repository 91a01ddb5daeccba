package component

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/ashutoshpw/coolify/pkg/artifact"
	"github.com/ashutoshpw/coolify/pkg/deployment"
)

// BuildPack turns a source checkout into a tagged image on the destination host
type BuildPack interface {
	// Build produces cfg.ImageRef() and returns the resulting artifact
	Build(ctx context.Context, cfg *BuildConfig) (*artifact.Artifact, error)
}

// Seeder is implemented by build packs that write baseline files into the
// checkout before building
type Seeder interface {
	Seed(ctx context.Context, cfg *BuildConfig) error
}

// Configurable is a common interface for all components that can be configured
type Configurable interface {
	// Config returns the current configuration
	Config() (interface{}, error)

	// ConfigSet sets the configuration
	ConfigSet(config interface{}) error
}

// BuildConfig is the fully resolved input of one build
type BuildConfig struct {
	// Request is the deployment being built (defaults already applied)
	Request *deployment.Request

	// WorkDir is the checkout root
	WorkDir string

	// Image and Tag name the image to produce
	Image string
	Tag   string

	// BuildEnv holds the variables visible to the build: PORT and the secrets in scope
	BuildEnv map[string]string

	// Env is extra process environment for build tools (DOCKER_HOST of the destination)
	Env []string

	// Stdout and Stderr receive the build tool output
	Stdout io.Writer
	Stderr io.Writer
}

// ImageRef returns "image:tag"
func (c *BuildConfig) ImageRef() string {
	return c.Image + ":" + c.Tag
}

// SourceDir is the directory the build runs in: the checkout joined with the base directory
func (c *BuildConfig) SourceDir() string {
	if c.Request == nil || c.Request.BaseDirectory == "" {
		return c.WorkDir
	}
	return filepath.Join(c.WorkDir, filepath.FromSlash(c.Request.BaseDirectory))
}

// SortedBuildEnv returns BuildEnv as KEY=VALUE pairs in key order
func (c *BuildConfig) SortedBuildEnv() []string {
	keys := make([]string, 0, len(c.BuildEnv))
	for k := range c.BuildEnv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+c.BuildEnv[k])
	}
	return out
}

// Command prepares a build tool invocation running in SourceDir with the
// destination environment and output wired to the build log
func (c *BuildConfig) Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = c.SourceDir()
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = io.Discard
	}
	if cmd.Stderr == nil {
		cmd.Stderr = io.Discard
	}
	return cmd
}
