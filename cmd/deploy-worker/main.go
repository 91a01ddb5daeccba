package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"

	// Import builtin build packs to register them
	_ "github.com/ashutoshpw/coolify/builtin/docker"
	_ "github.com/ashutoshpw/coolify/builtin/nixpacks"
	_ "github.com/ashutoshpw/coolify/builtin/noop"
	_ "github.com/ashutoshpw/coolify/builtin/railpack"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

func newApp() *cli.App {
	return &cli.App{
		Name:                   "deploy-worker",
		Usage:                  "Build and deploy applications from queued deployment requests",
		Version:                Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the worker configuration file",
				EnvVars: []string{"DEPLOY_WORKER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (trace, debug, info, warn, error)",
				EnvVars: []string{"DEPLOY_WORKER_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Usage:   "Write logs as JSON",
				EnvVars: []string{"DEPLOY_WORKER_LOG_JSON"},
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			deployCommand(),
			fingerprintCommand(),
		},
		Before: func(c *cli.Context) error {
			logger := hclog.New(&hclog.LoggerOptions{
				Name:       "deploy-worker",
				Level:      hclog.LevelFromString(c.String("log-level")),
				Output:     c.App.ErrWriter,
				JSONFormat: c.Bool("log-json"),
				Color:      hclog.AutoColor,
			})
			hclog.SetDefault(logger)
			return nil
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
