package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ashutoshpw/coolify/pkg/deployment"
)

// EnvLines returns the KEY=VALUE lines for the container environment.
// PORT comes first, followed by the secrets visible in the request's scope:
// preview-only secrets for previews, production-only secrets otherwise.
// Secrets that would not fit on a single line are left out.
func EnvLines(req *deployment.Request) []string {
	lines := []string{"PORT=" + strconv.Itoa(req.Port)}
	preview := req.IsPreview()
	for _, secret := range req.Secrets {
		if secret.IsPreview != preview || secret.Validate() != nil {
			continue
		}
		lines = append(lines, secret.Name+"="+secret.Value)
	}
	return lines
}

// WriteEnvFile writes lines to .env in dir and returns the file path
func WriteEnvFile(dir string, lines []string) (string, error) {
	path := filepath.Join(dir, EnvFilename)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600); err != nil {
		return "", fmt.Errorf("write env file: %w", err)
	}
	return path, nil
}

// EnvFileExists returns path when the file exists, otherwise an empty string
func EnvFileExists(path string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
