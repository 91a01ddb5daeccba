package backend

import (
	"time"

	"github.com/ashutoshpw/coolify/pkg/deployment"
)

// FailStaleBuildsRequest is the payload of POST /api/v1/applications/{id}/builds/fail-stale
type FailStaleBuildsRequest struct {
	ExceptBuildID string    `json:"exceptBuildId"`
	CreatedBefore time.Time `json:"createdBefore"`
}

// CountResponse reports how many records an update touched
type CountResponse struct {
	Count int `json:"count"`
}

// UpdateBuildStatusRequest is the payload of PUT /api/v1/builds/{id}/status
type UpdateBuildStatusRequest struct {
	Status deployment.BuildStatus `json:"status"`
}

// FailBuildResponse is returned by POST /api/v1/builds/{id}/fail
type FailBuildResponse struct {
	Changed bool `json:"changed"`
}

// UpdateBuildCommitRequest is the payload of PUT /api/v1/builds/{id}/commit
type UpdateBuildCommitRequest struct {
	Commit string `json:"commit"`
}

// UpdateConfigHashRequest is the payload of PUT /api/v1/applications/{id}/config-hash
type UpdateConfigHashRequest struct {
	ConfigHash string `json:"configHash"`
}

// CreateBuildRequest is the payload of POST /api/v1/builds
type CreateBuildRequest struct {
	ID            string                 `json:"id"`
	ApplicationID string                 `json:"applicationId"`
	Status        deployment.BuildStatus `json:"status"`
}

// ErrorResponse is the body the API returns on failure
type ErrorResponse struct {
	Message string `json:"message"`
}
