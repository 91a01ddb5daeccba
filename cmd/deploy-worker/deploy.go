package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ashutoshpw/coolify/internal/dispatch"
	"github.com/ashutoshpw/coolify/internal/fingerprint"
	"github.com/ashutoshpw/coolify/pkg/deployment"
	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"
)

const defaultDeployTimeout = 15 * time.Minute

var paramsFlag = &cli.StringFlag{
	Name:    "params",
	Usage:   "Deployment request as JSON or base64 encoded JSON; - reads stdin",
	EnvVars: []string{"DEPLOY_PARAMS"},
}

// readParams returns the request from --params, the first argument, or stdin
func readParams(c *cli.Context) (deployment.Request, error) {
	raw := c.String("params")
	if raw == "" {
		raw = c.Args().First()
	}
	if raw == "-" || raw == "" {
		data, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return deployment.Request{}, fmt.Errorf("%w: read stdin: %v", dispatch.ErrParse, err)
		}
		raw = string(data)
	}
	return dispatch.DecodeParams(raw)
}

func deployCommand() *cli.Command {
	return &cli.Command{
		Name:      "deploy",
		Usage:     "Run one deployment in the foreground and exit",
		ArgsUsage: "[params]",
		Flags: []cli.Flag{
			paramsFlag,
			&cli.DurationFlag{
				Name:  "timeout",
				Value: defaultDeployTimeout,
				Usage: "Fail the deployment when it has not finished in time",
			},
			&cli.BoolFlag{
				Name:  "cleanup",
				Usage: "Remove the build directory after the deployment",
			},
		},
		Action: func(c *cli.Context) error {
			logger := hclog.Default()
			start := time.Now()

			req, err := readParams(c)
			if err != nil {
				dispatch.LogErrorToStderr(logger, "parse_params", err)
				return cli.Exit("", dispatch.ExitCode(err))
			}

			cfg, err := loadConfig(c.String("config"))
			if err != nil {
				dispatch.LogErrorToStderr(logger, "load_config", err)
				return cli.Exit("", dispatch.ExitCodeRuntime)
			}
			if req.Destination.Network == "" {
				req.Destination.Network = cfg.Networks()[req.Destination.ID]
			}

			parts, err := assemble(cfg, nil, logger)
			if err != nil {
				dispatch.LogErrorToStderr(logger, "assemble", err)
				return cli.Exit("", dispatch.ExitCodeRuntime)
			}
			defer parts.close()

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			logger.Info("Deployment started", "buildId", req.BuildID, "application", req.ApplicationID)
			err = parts.store.RegisterBuild(ctx, deployment.BuildRecord{
				ID:            req.BuildID,
				ApplicationID: req.ApplicationID,
				Status:        deployment.StatusQueued,
			})
			if err == nil {
				err = parts.pipeline.Run(ctx, req)
				if err != nil && ctx.Err() == context.DeadlineExceeded {
					err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
				}
			}

			if c.Bool("cleanup") {
				dir := parts.workspaces.Path(req.Repository, req.BuildID)
				if cerr := parts.workspaces.Cleanup(dir); cerr != nil {
					logger.Warn("Failed to remove build directory", "path", dir, "error", cerr)
				}
			}

			logger.Info("Deployment finished", "buildId", req.BuildID, "duration", time.Since(start).Round(time.Millisecond))
			if err != nil {
				dispatch.LogErrorToStderr(logger, "deploy", err)
				return cli.Exit("", dispatch.ExitCode(err))
			}
			return nil
		},
	}
}

func fingerprintCommand() *cli.Command {
	return &cli.Command{
		Name:      "fingerprint",
		Usage:     "Print the configuration fingerprint of a deployment request",
		ArgsUsage: "[params]",
		Flags:     []cli.Flag{paramsFlag},
		Action: func(c *cli.Context) error {
			req, err := readParams(c)
			if err != nil {
				return cli.Exit(err.Error(), dispatch.ExitCode(err))
			}
			fmt.Fprintln(c.App.Writer, fingerprint.Compute(&req))
			return nil
		},
	}
}
