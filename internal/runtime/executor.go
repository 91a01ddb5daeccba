// Package runtime runs container-runtime commands against named destinations.
//
// Commands are written the way an operator would type them ("docker image inspect app:abc1234").
// The common lifecycle commands are served by the Docker Engine API of the destination host;
// anything else is handed to the docker CLI with DOCKER_HOST pointed at that host.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/hashicorp/go-hclog"
	"github.com/kballard/go-shellquote"
)

var (
	// ErrUnknownDestination is returned when a command targets a destination that is not configured
	ErrUnknownDestination = errors.New("unknown destination")

	// ErrNotFound is returned when the addressed image or container does not exist
	ErrNotFound = errors.New("not found")
)

// Executor runs a shell-style command on a destination and returns its output
type Executor interface {
	Execute(ctx context.Context, destinationID, command string) (string, error)
}

// HostResolver exposes the process environment that points external build tools at a destination
type HostResolver interface {
	Environ(destinationID string) ([]string, error)
}

// Host is a container runtime reachable by the worker
type Host struct {
	ID string

	// DockerHost is the engine address (unix:///var/run/docker.sock, tcp://10.0.0.5:2376).
	// Empty means the environment defaults (DOCKER_HOST or the local socket).
	DockerHost string
}

// engine is the subset of the Docker Engine API the executor uses
type engine interface {
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

// commandRunner runs an external binary with extra environment
type commandRunner func(ctx context.Context, env []string, name string, args ...string) ([]byte, error)

// DockerExecutor implements Executor on top of the Docker Engine SDK and the docker CLI
type DockerExecutor struct {
	hosts  map[string]Host
	logger hclog.Logger

	mu      sync.Mutex
	engines map[string]engine

	newEngine func(Host) (engine, error)
	run       commandRunner
}

// NewDockerExecutor creates an executor for the given hosts
func NewDockerExecutor(hosts []Host, logger hclog.Logger) *DockerExecutor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	byID := make(map[string]Host, len(hosts))
	for _, h := range hosts {
		byID[h.ID] = h
	}
	return &DockerExecutor{
		hosts:     byID,
		logger:    logger.Named("runtime"),
		engines:   make(map[string]engine),
		newEngine: dialEngine,
		run:       runCommand,
	}
}

func dialEngine(h Host) (engine, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if h.DockerHost != "" {
		opts = append(opts, client.WithHost(h.DockerHost))
	}
	return client.NewClientWithOpts(opts...)
}

func runCommand(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

// Execute parses command with shell quoting rules and runs it on destinationID
func (e *DockerExecutor) Execute(ctx context.Context, destinationID, command string) (string, error) {
	host, ok := e.hosts[destinationID]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDestination, destinationID)
	}

	args, err := ParseCommand(command)
	if err != nil {
		return "", err
	}
	if args[0] != "docker" {
		return "", fmt.Errorf("unsupported command %q: only docker commands can be executed", args[0])
	}

	e.logger.Debug("executing", "destination", destinationID, "command", FormatCommand(args))

	switch {
	case len(args) == 4 && args[1] == "image" && args[2] == "inspect":
		return e.inspectImage(ctx, host, args[3])
	case len(args) >= 3 && args[1] == "stop":
		return e.stopContainer(ctx, host, args[2:])
	case len(args) == 3 && args[1] == "rm":
		return e.removeContainer(ctx, host, args[2])
	}
	return e.runCLI(ctx, host, args)
}

func (e *DockerExecutor) inspectImage(ctx context.Context, host Host, ref string) (string, error) {
	cli, err := e.engine(host)
	if err != nil {
		return "", err
	}
	_, raw, err := cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		return "", wrapEngineError("inspect image "+ref, err)
	}
	return string(raw), nil
}

func (e *DockerExecutor) stopContainer(ctx context.Context, host Host, args []string) (string, error) {
	var opts container.StopOptions
	var name string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-t", "--time", "--timeout":
			if i+1 >= len(args) {
				return "", fmt.Errorf("stop: missing value for %s", args[i])
			}
			var timeout int
			if _, err := fmt.Sscanf(args[i+1], "%d", &timeout); err != nil {
				return "", fmt.Errorf("stop: invalid timeout %q", args[i+1])
			}
			opts.Timeout = &timeout
			i++
		default:
			name = args[i]
		}
	}
	if name == "" {
		return "", fmt.Errorf("stop: container name is required")
	}

	cli, err := e.engine(host)
	if err != nil {
		return "", err
	}
	if err := cli.ContainerStop(ctx, name, opts); err != nil {
		return "", wrapEngineError("stop container "+name, err)
	}
	return name, nil
}

func (e *DockerExecutor) removeContainer(ctx context.Context, host Host, name string) (string, error) {
	cli, err := e.engine(host)
	if err != nil {
		return "", err
	}
	if err := cli.ContainerRemove(ctx, name, container.RemoveOptions{}); err != nil {
		return "", wrapEngineError("remove container "+name, err)
	}
	return name, nil
}

// Environ returns the DOCKER_HOST setting of destinationID, empty for the local engine
func (e *DockerExecutor) Environ(destinationID string) ([]string, error) {
	host, ok := e.hosts[destinationID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDestination, destinationID)
	}
	return hostEnv(host), nil
}

func hostEnv(host Host) []string {
	if host.DockerHost == "" {
		return nil
	}
	return []string{"DOCKER_HOST=" + host.DockerHost}
}

func (e *DockerExecutor) runCLI(ctx context.Context, host Host, args []string) (string, error) {
	out, err := e.run(ctx, hostEnv(host), args[0], args[1:]...)
	if err != nil {
		return string(out), fmt.Errorf("%s failed: %w: %s", FormatCommand(args), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// engine returns the cached API client of host, dialing it on first use
func (e *DockerExecutor) engine(host Host) (engine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cli, ok := e.engines[host.ID]; ok {
		return cli, nil
	}
	cli, err := e.newEngine(host)
	if err != nil {
		return nil, fmt.Errorf("create docker client for %s: %w", host.ID, err)
	}
	e.engines[host.ID] = cli
	return cli, nil
}

// Close releases every engine client
func (e *DockerExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for id, cli := range e.engines {
		if err := cli.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		delete(e.engines, id)
	}
	return errors.Join(errs...)
}

func wrapEngineError(op string, err error) error {
	if errdefs.IsNotFound(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ParseCommand splits a shell-quoted command string into its arguments
func ParseCommand(command string) ([]string, error) {
	parts, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return parts, nil
}

// FormatCommand renders arguments back into a readable, re-parseable command string
func FormatCommand(args []string) string {
	if len(args) == 0 {
		return "<empty command>"
	}
	return shellquote.Join(args...)
}
