package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/ashutoshpw/coolify/pkg/deployment"
	"github.com/hashicorp/go-hclog"
)

// ImportOptions describes one source import
type ImportOptions struct {
	Repository     string
	Branch         string
	Source         deployment.GitSource
	DestinationDir string

	// OutputWriter receives git's progress output when set
	OutputWriter io.Writer
}

// Importer fetches repositories with the git CLI
type Importer struct {
	// Binary is the git executable (defaults to "git")
	Binary string

	logger hclog.Logger
}

// NewImporter creates an importer using git from PATH
func NewImporter(logger hclog.Logger) *Importer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Importer{Binary: "git", logger: logger.Named("git")}
}

// Import shallow-clones opts.Branch into opts.DestinationDir and returns the
// checked out commit. An empty commit with a nil error means git reported no HEAD.
func (i *Importer) Import(ctx context.Context, opts ImportOptions) (string, error) {
	if opts.Repository == "" {
		return "", errors.New("repository is required")
	}
	if opts.DestinationDir == "" {
		return "", errors.New("destination directory is required")
	}

	provider := Provider(opts.Source.Type)
	host := Host(opts.Source)
	secret := opts.Source.Token

	var env []string
	gitURL := BuildAuthURL(host, opts.Repository, opts.Source.Token, provider)
	if opts.Source.PrivateSSHKey != "" && !opts.Source.ForPublic {
		keyFile, err := writeKey(opts.Source.PrivateSSHKey)
		if err != nil {
			return "", err
		}
		defer os.Remove(keyFile)

		gitURL = BuildSSHURL(host, opts.Repository, opts.Source.CustomPort)
		env = append(env, "GIT_SSH_COMMAND=ssh -i "+keyFile+" -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null")
		secret = ""
	}

	args := []string{"clone", "--depth", "1", "--recurse-submodules", "--shallow-submodules"}
	if opts.Branch != "" {
		args = append(args, "--branch", opts.Branch)
	}
	args = append(args, gitURL, opts.DestinationDir)

	i.logger.Debug("cloning repository", "repository", opts.Repository, "branch", opts.Branch, "host", host)

	if out, err := i.run(ctx, "", env, opts.OutputWriter, args...); err != nil {
		return "", fmt.Errorf("failed to clone repository %s (branch: %s): %s: %w",
			opts.Repository, opts.Branch, redact(out, secret), redactError(err, secret))
	}

	out, err := i.run(ctx, opts.DestinationDir, nil, nil, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve commit of %s: %s: %w", opts.Repository, out, err)
	}
	commit := strings.TrimSpace(out)

	i.logger.Info("Successfully cloned repository",
		"repository", opts.Repository,
		"branch", opts.Branch,
		"commit", commit,
		"destination", opts.DestinationDir)

	return commit, nil
}

// run executes git in dir. Output is returned, and copied to w when set.
func (i *Importer) run(ctx context.Context, dir string, env []string, w io.Writer, args ...string) (string, error) {
	binary := i.Binary
	if binary == "" {
		binary = "git"
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, env...)

	var buf bytes.Buffer
	if w != nil {
		cmd.Stdout = io.MultiWriter(&buf, w)
		cmd.Stderr = io.MultiWriter(&buf, w)
	} else {
		cmd.Stdout = &buf
		cmd.Stderr = &buf
	}
	err := cmd.Run()
	return strings.TrimSpace(buf.String()), err
}

func writeKey(key string) (string, error) {
	f, err := os.CreateTemp("", "deploy-key-*")
	if err != nil {
		return "", fmt.Errorf("create deploy key file: %w", err)
	}
	defer f.Close()

	if !strings.HasSuffix(key, "\n") {
		key += "\n"
	}
	if err := f.Chmod(0o600); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	if _, err := f.WriteString(key); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write deploy key: %w", err)
	}
	return f.Name(), nil
}

// redact removes token from git output
func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "***REDACTED***")
}

func redactError(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(redact(err.Error(), token))
}
