package artifact

import "time"

// Artifact represents a built application image
type Artifact struct {
	// ID is a unique identifier for the artifact
	ID string `json:"id"`

	// Image is the image repository (e.g., "app1")
	Image string `json:"image"`

	// Tag is the image tag (e.g., "abc1234" or "abc1234-42")
	Tag string `json:"tag,omitempty"`

	// Builder names the build pack that produced the image
	Builder string `json:"builder"`

	// Labels are metadata labels attached to the artifact
	Labels map[string]string `json:"labels,omitempty"`

	// Metadata contains additional information about the artifact
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// BuildTime is when the artifact was built
	BuildTime time.Time `json:"build_time"`

	// BuildID is the ID of the build that created this artifact
	BuildID string `json:"build_id,omitempty"`
}

// Ref returns the image reference "image:tag"
func (a *Artifact) Ref() string {
	if a.Tag == "" {
		return a.Image
	}
	return a.Image + ":" + a.Tag
}
