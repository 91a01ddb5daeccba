package deployment

import (
	"strconv"
	"strings"
	"time"
)

// BuildPackKind identifies the build pack used to turn a source checkout into an image
type BuildPackKind string

const (
	BuildPackDocker   BuildPackKind = "docker"
	BuildPackNode     BuildPackKind = "node"
	BuildPackStatic   BuildPackKind = "static"
	BuildPackNextJS   BuildPackKind = "nextjs"
	BuildPackNuxtJS   BuildPackKind = "nuxtjs"
	BuildPackReact    BuildPackKind = "react"
	BuildPackVueJS    BuildPackKind = "vuejs"
	BuildPackSvelte   BuildPackKind = "svelte"
	BuildPackGatsby   BuildPackKind = "gatsby"
	BuildPackAstro    BuildPackKind = "astro"
	BuildPackEleventy BuildPackKind = "eleventy"
	BuildPackPython   BuildPackKind = "python"
	BuildPackPHP      BuildPackKind = "php"
	BuildPackLaravel  BuildPackKind = "laravel"
	BuildPackRust     BuildPackKind = "rust"
	BuildPackDeno     BuildPackKind = "deno"
	BuildPackRailpack BuildPackKind = "railpack"
	BuildPackNoop     BuildPackKind = "noop"
)

// BuildStatus is the lifecycle state of a build record.
// The state machine is queued → running → (success | failed).
type BuildStatus string

const (
	StatusQueued  BuildStatus = "queued"
	StatusRunning BuildStatus = "running"
	StatusSuccess BuildStatus = "success"
	StatusFailed  BuildStatus = "failed"
)

// ActiveStatuses are the non-terminal build states
var ActiveStatuses = []BuildStatus{StatusQueued, StatusRunning}

// IsTerminal reports whether no further transition is allowed from s
func (s BuildStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanTransition reports whether a build in status s may move to next
func (s BuildStatus) CanTransition(next BuildStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if s == StatusRunning && next == StatusQueued {
		return false
	}
	return next.Valid()
}

// Valid reports whether s is a known status
func (s BuildStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Secret is an environment variable handed to the build and the running container.
// A secret is visible either to preview deployments or to production deployments, never both.
type Secret struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	IsPreview bool   `json:"isPRMRSecret"`
}

// PersistentStorage is a container path that must survive redeploys
type PersistentStorage struct {
	Path string `json:"path"`
}

// VolumeName returns the durable volume name for the given application
func (p PersistentStorage) VolumeName(applicationID string) string {
	return applicationID + strings.ReplaceAll(p.Path, "/", "-")
}

// Destination is the container runtime host a deployment lands on
type Destination struct {
	// ID names the runtime host (resolved by the runtime executor)
	ID string `json:"id"`

	// Network is the pre-existing external network the service joins
	Network string `json:"network"`
}

// GitSource describes where and how the repository is fetched
type GitSource struct {
	// Type is the provider kind (github, gitlab, bitbucket)
	Type string `json:"type"`

	APIURL     string `json:"apiUrl,omitempty"`
	HTMLURL    string `json:"htmlUrl,omitempty"`
	CustomPort int    `json:"customPort,omitempty"`

	// AppID is the provider application id (GitHub App / GitLab App)
	AppID string `json:"appId,omitempty"`

	// Token is an access token for private repositories
	Token string `json:"token,omitempty"`

	// PrivateSSHKey is a deploy key for SSH based fetches
	PrivateSSHKey string `json:"privateSshKey,omitempty"`

	ForPublic bool `json:"forPublic,omitempty"`
}

// Request is one deployment attempt for one application.
// It is treated as immutable once enqueued.
type Request struct {
	ApplicationID string `json:"id"`
	BuildID       string `json:"build_id"`
	Name          string `json:"name"`
	Type          string `json:"type,omitempty"`
	ProjectID     int    `json:"projectId,omitempty"`

	Repository   string `json:"repository"`
	Branch       string `json:"branch"`
	SourceBranch string `json:"sourceBranch,omitempty"`

	BuildPack   BuildPackKind `json:"buildPack"`
	Destination Destination   `json:"destinationDocker"`
	GitSource   GitSource     `json:"gitSource"`

	Secrets           []Secret            `json:"secrets,omitempty"`
	PersistentStorage []PersistentStorage `json:"persistentStorage,omitempty"`

	FQDN       string `json:"fqdn,omitempty"`
	Port       int    `json:"port,omitempty"`
	ExposePort int    `json:"exposePort,omitempty"`

	InstallCommand     string `json:"installCommand,omitempty"`
	BuildCommand       string `json:"buildCommand,omitempty"`
	StartCommand       string `json:"startCommand,omitempty"`
	BaseDirectory      string `json:"baseDirectory,omitempty"`
	PublishDirectory   string `json:"publishDirectory,omitempty"`
	DockerfileLocation string `json:"dockerFileLocation,omitempty"`
	BaseImage          string `json:"baseImage,omitempty"`
	BaseBuildImage     string `json:"baseBuildImage,omitempty"`
	DeploymentType     string `json:"deploymentType,omitempty"`

	PythonWSGI     string `json:"pythonWSGI,omitempty"`
	PythonModule   string `json:"pythonModule,omitempty"`
	PythonVariable string `json:"pythonVariable,omitempty"`
	DenoMainFile   string `json:"denoMainFile,omitempty"`
	DenoOptions    string `json:"denoOptions,omitempty"`
	PHPModules     string `json:"phpModules,omitempty"`

	// PullRequestID marks a preview deployment when non-empty
	PullRequestID string `json:"pullmergeRequestId,omitempty"`

	ForceRebuild bool `json:"forceRebuild,omitempty"`

	// ConfigHash is the fingerprint stored after the last successful production deployment
	ConfigHash string `json:"configHash,omitempty"`

	Debug bool `json:"debug,omitempty"`
}

// IsPreview reports whether the request deploys a pull/merge request preview
func (r *Request) IsPreview() bool {
	return r.PullRequestID != ""
}

// InstanceID is the service and container name of the deployment
func (r *Request) InstanceID() string {
	if r.IsPreview() {
		return r.ApplicationID + "-" + r.PullRequestID
	}
	return r.ApplicationID
}

// EffectiveBranch is the branch that is checked out; previews build their source branch
func (r *Request) EffectiveBranch() string {
	if r.IsPreview() && r.SourceBranch != "" {
		return r.SourceBranch
	}
	return r.Branch
}

// Domain returns the FQDN without scheme, prefixed with the preview id for previews
func (r *Request) Domain() string {
	domain := StripScheme(r.FQDN)
	if r.IsPreview() && domain != "" {
		return r.PullRequestID + "." + domain
	}
	return domain
}

// PublicURL returns the FQDN with its scheme, adjusted for previews
func (r *Request) PublicURL() string {
	if r.FQDN == "" {
		return ""
	}
	scheme := "http"
	if strings.HasPrefix(r.FQDN, "https://") {
		scheme = "https"
	}
	return scheme + "://" + r.Domain()
}

// PortMapping is "<exposed>:<port>" when a host port is published, otherwise the port alone
func (r *Request) PortMapping() string {
	if r.ExposePort > 0 {
		return strconv.Itoa(r.ExposePort) + ":" + strconv.Itoa(r.Port)
	}
	return strconv.Itoa(r.Port)
}

// ImageName is the repository part of the image reference
func (r *Request) ImageName() string {
	return r.ApplicationID
}

// StripScheme removes an http(s) scheme from a URL-ish string
func StripScheme(fqdn string) string {
	fqdn = strings.TrimPrefix(fqdn, "https://")
	return strings.TrimPrefix(fqdn, "http://")
}

// BuildRecord is the persisted state of one build
type BuildRecord struct {
	ID            string      `json:"id"`
	ApplicationID string      `json:"applicationId"`
	Status        BuildStatus `json:"status"`
	Commit        string      `json:"commit,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// ApplicationRecord holds the fingerprint of the last successful production deployment
type ApplicationRecord struct {
	ID         string `json:"id"`
	ConfigHash string `json:"configHash"`
}

// LogLine is one human-readable build log line
type LogLine struct {
	BuildID       string    `json:"buildId"`
	ApplicationID string    `json:"applicationId"`
	Line          string    `json:"line"`
	Time          time.Time `json:"time"`
}
