// Package store defines the record store the deployment pipeline reports to.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashutoshpw/coolify/pkg/deployment"
)

var (
	// ErrNotFound is returned when an addressed build or application does not exist
	ErrNotFound = errors.New("record not found")

	// ErrInvalidTransition is returned when a status change would leave a terminal state
	ErrInvalidTransition = errors.New("invalid build status transition")
)

// Store hands out sessions. Every session must be released exactly once.
type Store interface {
	Acquire(ctx context.Context) (Session, error)
}

// Session is a connection to the record store scoped to one pipeline run
type Session interface {
	// FailStaleBuilds marks every build of applicationID other than exceptBuildID that is still
	// queued or running and was created before cutoff as failed. It returns the number of builds changed.
	FailStaleBuilds(ctx context.Context, applicationID, exceptBuildID string, cutoff time.Time) (int, error)

	// SetBuildStatus moves a build to status
	SetBuildStatus(ctx context.Context, buildID string, status deployment.BuildStatus) error

	// FailBuild marks a build failed if, and only if, it is still queued or running.
	// It reports whether the build was changed.
	FailBuild(ctx context.Context, buildID string) (bool, error)

	// SetBuildCommit records the commit a build checked out
	SetBuildCommit(ctx context.Context, buildID, commit string) error

	// SetApplicationConfigHash stores the fingerprint of the last successful production deployment
	SetApplicationConfigHash(ctx context.Context, applicationID, hash string) error

	// AppendBuildLog appends one human-readable line to a build's log
	AppendBuildLog(ctx context.Context, line deployment.LogLine) error

	// Release returns the session to its store
	Release() error
}

// BuildRegistrar is implemented by stores that accept builds submitted straight to the worker
type BuildRegistrar interface {
	RegisterBuild(ctx context.Context, build deployment.BuildRecord) error
}
