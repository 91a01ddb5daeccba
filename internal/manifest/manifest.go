// Package manifest builds the compose-style description of a deployment and the
// environment file that goes with it.
package manifest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ashutoshpw/coolify/pkg/deployment"
	"gopkg.in/yaml.v3"
)

const (
	// ComposeVersion is the compose file format version written to every manifest
	ComposeVersion = "3.8"

	// Filename is the manifest name inside the working directory
	Filename = "docker-compose.yml"

	// EnvFilename is the environment file name inside the working directory
	EnvFilename = ".env"
)

// Manifest is the root of a compose document
type Manifest struct {
	Version  string              `yaml:"version"`
	Services map[string]*Service `yaml:"services"`
	Networks map[string]Network  `yaml:"networks"`
	Volumes  map[string]Volume   `yaml:"volumes"`
}

// Service is one container definition
type Service struct {
	Image         string            `yaml:"image"`
	ContainerName string            `yaml:"container_name"`
	Volumes       []string          `yaml:"volumes"`
	EnvFile       []string          `yaml:"env_file"`
	Labels        map[string]string `yaml:"labels"`
	DependsOn     []string          `yaml:"depends_on"`
	Expose        []string          `yaml:"expose"`
	Ports         []string          `yaml:"ports,omitempty"`
	Networks      []string          `yaml:"networks"`
	Restart       string            `yaml:"restart"`
	Deploy        *Deploy           `yaml:"deploy,omitempty"`
}

// Deploy holds the restart policy of a service
type Deploy struct {
	RestartPolicy RestartPolicy `yaml:"restart_policy"`
}

// RestartPolicy mirrors the compose restart_policy block
type RestartPolicy struct {
	Condition   string `yaml:"condition"`
	Delay       string `yaml:"delay"`
	MaxAttempts int    `yaml:"max_attempts"`
	Window      string `yaml:"window"`
}

// Network declares a network the services attach to
type Network struct {
	External bool `yaml:"external"`
}

// Volume declares a named volume
type Volume struct {
	Name string `yaml:"name"`
}

// Build returns the manifest for req running image tag. envFile is the path of the
// written environment file, or empty when none was written.
func Build(req *deployment.Request, tag, envFile string, labels map[string]string) *Manifest {
	instance := req.InstanceID()
	network := req.Destination.Network

	volumes := make([]string, 0, len(req.PersistentStorage))
	declared := make(map[string]Volume, len(req.PersistentStorage))
	for _, storage := range req.PersistentStorage {
		name := storage.VolumeName(req.ApplicationID)
		volumes = append(volumes, name+":"+ContainerPath(req.BuildPack, storage.Path))
		declared[name] = Volume{Name: name}
	}

	envFiles := []string{}
	if envFile != "" {
		envFiles = append(envFiles, envFile)
	}

	service := &Service{
		Image:         req.ImageName() + ":" + tag,
		ContainerName: instance,
		Volumes:       volumes,
		EnvFile:       envFiles,
		Labels:        labels,
		DependsOn:     []string{},
		Expose:        []string{strconv.Itoa(req.Port)},
		Networks:      []string{network},
		Restart:       "on-failure",
		Deploy: &Deploy{
			RestartPolicy: RestartPolicy{
				Condition:   "on-failure",
				Delay:       "5s",
				MaxAttempts: 10,
				Window:      "120s",
			},
		},
	}
	if req.ExposePort > 0 {
		service.Ports = []string{req.PortMapping()}
	}

	return &Manifest{
		Version:  ComposeVersion,
		Services: map[string]*Service{instance: service},
		Networks: map[string]Network{network: {External: true}},
		Volumes:  declared,
	}
}

// ContainerPath maps a persistent storage path to its location inside the container.
// Images produced by build packs keep the application under /app; raw Dockerfile
// builds control their own layout.
func ContainerPath(kind deployment.BuildPackKind, path string) string {
	if kind == deployment.BuildPackDocker {
		return path
	}
	return "/app" + path
}

// Marshal renders the manifest as YAML
func (m *Manifest) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return data, nil
}

// Write stores the manifest as docker-compose.yml in dir and returns its path
func (m *Manifest) Write(dir string) (string, error) {
	data, err := m.Marshal()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, Filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// Labels returns the discovery labels attached to the service
func Labels(req *deployment.Request, commit string) map[string]string {
	config := labelConfig{
		ApplicationID:    req.ApplicationID,
		FQDN:             req.PublicURL(),
		Name:             req.Name,
		Type:             req.Type,
		PullRequestID:    req.PullRequestID,
		BuildPack:        string(req.BuildPack),
		Repository:       req.Repository,
		Branch:           req.EffectiveBranch(),
		ProjectID:        req.ProjectID,
		Port:             req.PortMapping(),
		Commit:           commit,
		InstallCommand:   req.InstallCommand,
		BuildCommand:     req.BuildCommand,
		StartCommand:     req.StartCommand,
		BaseDirectory:    req.BaseDirectory,
		PublishDirectory: req.PublishDirectory,
	}
	encoded, _ := json.Marshal(config)

	return map[string]string{
		"coolify.managed":            "true",
		"coolify.type":               "standalone-application",
		"coolify.applicationId":      config.ApplicationID,
		"coolify.fqdn":               config.FQDN,
		"coolify.name":               config.Name,
		"coolify.type.app":           config.Type,
		"coolify.pullmergeRequestId": config.PullRequestID,
		"coolify.buildPack":          config.BuildPack,
		"coolify.repository":         config.Repository,
		"coolify.branch":             config.Branch,
		"coolify.projectId":          strconv.Itoa(config.ProjectID),
		"coolify.port":               config.Port,
		"coolify.commit":             config.Commit,
		"coolify.installCommand":     config.InstallCommand,
		"coolify.buildCommand":       config.BuildCommand,
		"coolify.startCommand":       config.StartCommand,
		"coolify.baseDirectory":      config.BaseDirectory,
		"coolify.publishDirectory":   config.PublishDirectory,
		"coolify.configuration":      base64.StdEncoding.EncodeToString(encoded),
	}
}

type labelConfig struct {
	ApplicationID    string `json:"applicationId"`
	FQDN             string `json:"fqdn"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	PullRequestID    string `json:"pullmergeRequestId"`
	BuildPack        string `json:"buildPack"`
	Repository       string `json:"repository"`
	Branch           string `json:"branch"`
	ProjectID        int    `json:"projectId"`
	Port             string `json:"port"`
	Commit           string `json:"commit"`
	InstallCommand   string `json:"installCommand"`
	BuildCommand     string `json:"buildCommand"`
	StartCommand     string `json:"startCommand"`
	BaseDirectory    string `json:"baseDirectory"`
	PublishDirectory string `json:"publishDirectory"`
}
