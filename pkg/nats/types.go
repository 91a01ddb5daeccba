package nats

import "github.com/ashutoshpw/coolify/pkg/deployment"

// BuildLogPayload is one live build log line
type BuildLogPayload struct {
	BuildID       string `json:"buildId"`
	ApplicationID string `json:"applicationId"`
	Content       string `json:"content"`
	Timestamp     int64  `json:"timestamp"` // Unix milliseconds
	Sequence      int    `json:"sequence"`
	Phase         string `json:"phase,omitempty"` // "import", "build", "deploy"
}

// BuildLogEndPayload signals that no further lines follow for a build
type BuildLogEndPayload struct {
	BuildID string                 `json:"buildId"`
	Status  deployment.BuildStatus `json:"status"`
}

// BuildStatusPayload is published whenever a build changes status
type BuildStatusPayload struct {
	BuildID       string                 `json:"buildId"`
	ApplicationID string                 `json:"applicationId"`
	Status        deployment.BuildStatus `json:"status"`
	Timestamp     int64                  `json:"timestamp"`
}

// LogPublisher publishes live build log lines
type LogPublisher interface {
	PublishBuildLog(payload BuildLogPayload) error
}
