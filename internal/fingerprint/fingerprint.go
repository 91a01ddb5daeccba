// Package fingerprint hashes the deployment-relevant configuration of a request.
// Two requests with the same fingerprint produce the same runtime behaviour, so an
// already built image can be reused.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/ashutoshpw/coolify/pkg/deployment"
)

// fields is the fixed, ordered set of inputs covered by the fingerprint.
// Struct field order defines serialization order.
type fields struct {
	PythonWSGI     string                   `json:"pythonWSGI"`
	PythonModule   string                   `json:"pythonModule"`
	PythonVariable string                   `json:"pythonVariable"`
	DeploymentType string                   `json:"deploymentType"`
	DenoOptions    string                   `json:"denoOptions"`
	BaseImage      string                   `json:"baseImage"`
	BaseBuildImage string                   `json:"baseBuildImage"`
	BuildPack      deployment.BuildPackKind `json:"buildPack"`
	Port           int                      `json:"port"`
	ExposePort     int                      `json:"exposePort"`
	InstallCommand string                   `json:"installCommand"`
	BuildCommand   string                   `json:"buildCommand"`
	StartCommand   string                   `json:"startCommand"`
	Secrets        []deployment.Secret      `json:"secrets"`
	Branch         string                   `json:"branch"`
	Repository     string                   `json:"repository"`
	FQDN           string                   `json:"fqdn"`
}

// Compute returns the hex sha256 fingerprint of req
func Compute(req *deployment.Request) string {
	f := fields{
		PythonWSGI:     req.PythonWSGI,
		PythonModule:   req.PythonModule,
		PythonVariable: req.PythonVariable,
		DeploymentType: req.DeploymentType,
		DenoOptions:    req.DenoOptions,
		BaseImage:      req.BaseImage,
		BaseBuildImage: req.BaseBuildImage,
		BuildPack:      req.BuildPack,
		Port:           req.Port,
		ExposePort:     req.ExposePort,
		InstallCommand: req.InstallCommand,
		BuildCommand:   req.BuildCommand,
		StartCommand:   req.StartCommand,
		Secrets:        sortedSecrets(req.Secrets),
		Branch:         req.Branch,
		Repository:     req.Repository,
		FQDN:           req.FQDN,
	}

	// Marshalling a struct of strings, ints and bools cannot fail
	data, _ := json.Marshal(f)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Changed reports whether req no longer matches the stored fingerprint
func Changed(req *deployment.Request) bool {
	return Compute(req) != req.ConfigHash
}

func sortedSecrets(secrets []deployment.Secret) []deployment.Secret {
	out := make([]deployment.Secret, len(secrets))
	copy(out, secrets)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		if out[i].IsPreview != out[j].IsPreview {
			return !out[i].IsPreview
		}
		return out[i].Value < out[j].Value
	})
	return out
}
