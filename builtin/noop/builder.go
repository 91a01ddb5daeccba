package noop

import (
	"context"
	"fmt"
	"time"

	"github.com/ashutoshpw/coolify/internal/plugin"
	"github.com/ashutoshpw/coolify/pkg/artifact"
	"github.com/ashutoshpw/coolify/pkg/component"
	"github.com/ashutoshpw/coolify/pkg/deployment"
)

// Builder is a no-op build pack that reports the requested image without building it.
// It is used for dry runs and for images that are pushed to the destination out of band.
type Builder struct {
	config *BuilderConfig
}

// BuilderConfig is the configuration for the noop builder
type BuilderConfig struct {
	// Message is an optional message to include in the artifact metadata
	Message string
}

// Build returns an artifact for the requested image immediately
func (b *Builder) Build(ctx context.Context, cfg *component.BuildConfig) (*artifact.Artifact, error) {
	if cfg == nil {
		return nil, fmt.Errorf("noop builder requires a build configuration")
	}
	message := ""
	if b.config != nil {
		message = b.config.Message
	}

	art := &artifact.Artifact{
		ID:     "noop-artifact",
		Image:  cfg.Image,
		Tag:    cfg.Tag,
		Labels: map[string]string{"builder": "noop"},
		Metadata: map[string]interface{}{
			"builder": "noop",
			"message": message,
		},
		Builder:   "noop",
		BuildTime: time.Now(),
	}
	if cfg.Request != nil {
		art.BuildID = cfg.Request.BuildID
	}
	return art, nil
}

// Config returns the current configuration
func (b *Builder) Config() (interface{}, error) {
	return b.config, nil
}

// ConfigSet sets the configuration
func (b *Builder) ConfigSet(config interface{}) error {
	switch cfg := config.(type) {
	case map[string]interface{}:
		b.config = &BuilderConfig{Message: plugin.StringSetting(cfg, "message")}
	case *BuilderConfig:
		b.config = cfg
	default:
		b.config = &BuilderConfig{}
	}
	return nil
}

// NewBuilder creates a new noop builder
func NewBuilder() component.BuildPack {
	return &Builder{
		config: &BuilderConfig{},
	}
}

func init() {
	plugin.Register(&plugin.Plugin{
		Name:      "noop",
		BuildPack: NewBuilder(),
	}, deployment.BuildPackNoop)
}
