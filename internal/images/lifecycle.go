// Package images decides whether an application image must be rebuilt and manages
// the running container of a deployment.
package images

import (
	"context"
	"fmt"

	"github.com/ashutoshpw/coolify/internal/runtime"
	"github.com/hashicorp/go-hclog"
	"github.com/kballard/go-shellquote"
)

// Lifecycle issues image and container commands through a runtime executor
type Lifecycle struct {
	exec   runtime.Executor
	logger hclog.Logger
}

// New creates a Lifecycle over exec
func New(exec runtime.Executor, logger hclog.Logger) *Lifecycle {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Lifecycle{exec: exec, logger: logger.Named("images")}
}

// Exists reports whether imageRef is present on the destination.
// Any failure of the inspect command counts as absent.
func (l *Lifecycle) Exists(ctx context.Context, destination, imageRef string) bool {
	_, err := l.exec.Execute(ctx, destination, "docker image inspect "+shellquote.Join(imageRef))
	if err != nil {
		l.logger.Debug("image not available", "image", imageRef, "destination", destination, "error", err)
		return false
	}
	return true
}

// StopAndRemove stops and removes container, ignoring a container that is not there
func (l *Lifecycle) StopAndRemove(ctx context.Context, destination, container string) {
	name := shellquote.Join(container)
	if _, err := l.exec.Execute(ctx, destination, "docker stop -t 0 "+name); err != nil {
		l.logger.Debug("stop container", "container", container, "error", err)
	}
	if _, err := l.exec.Execute(ctx, destination, "docker rm "+name); err != nil {
		l.logger.Debug("remove container", "container", container, "error", err)
	}
}

// ComposeUp starts the services described by the manifest in workdir
func (l *Lifecycle) ComposeUp(ctx context.Context, destination, workdir string) error {
	cmd := "docker compose --project-directory " + shellquote.Join(workdir) + " up -d"
	if _, err := l.exec.Execute(ctx, destination, cmd); err != nil {
		return fmt.Errorf("compose up: %w", err)
	}
	return nil
}

// NeedsBuild decides whether a new image has to be built.
// Previews always rebuild; production reuses an existing image while its configuration is unchanged.
func NeedsBuild(fingerprintChanged, isPreview, forceRebuild, imageExists bool) bool {
	return isPreview || forceRebuild || !imageExists || fingerprintChanged
}
