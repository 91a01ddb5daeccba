package main

import (
	"errors"
	"fmt"

	"github.com/ashutoshpw/coolify/internal/config"
	"github.com/ashutoshpw/coolify/internal/images"
	"github.com/ashutoshpw/coolify/internal/lifecycle"
	"github.com/ashutoshpw/coolify/internal/plugin"
	"github.com/ashutoshpw/coolify/internal/runtime"
	"github.com/ashutoshpw/coolify/internal/store"
	"github.com/ashutoshpw/coolify/internal/store/sqlstore"
	"github.com/ashutoshpw/coolify/internal/workspace"
	"github.com/ashutoshpw/coolify/pkg/backend"
	"github.com/ashutoshpw/coolify/pkg/git"
	"github.com/ashutoshpw/coolify/pkg/nats"
	"github.com/hashicorp/go-hclog"
)

// recordStore is a store that can also register builds
type recordStore interface {
	store.Store
	store.BuildRegistrar
}

// components is everything a pipeline needs, built from the configuration
type components struct {
	config     *config.Config
	store      recordStore
	executor   *runtime.DockerExecutor
	nats       *nats.Client
	workspaces *workspace.Manager
	pipeline   *lifecycle.Pipeline

	closers []func() error
}

// openStore opens the record store selected by the configuration
func openStore(cfg *config.Config, logger hclog.Logger) (recordStore, func() error, error) {
	switch cfg.Store.Type {
	case config.StoreHTTP:
		client, err := backend.NewClient(cfg.Store.URL, cfg.Store.Token, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create backend client: %w", err)
		}
		return client, func() error { return nil }, nil
	case config.StoreSQLite:
		// one session per running task plus one for registrations
		db, err := sqlstore.Open(cfg.Store.Path, cfg.Worker.Concurrency+1, logger)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
}

// assemble wires the pipeline and its collaborators. The caller must call close.
func assemble(cfg *config.Config, observer lifecycle.Observer, logger hclog.Logger) (*components, error) {
	c := &components{config: cfg}

	records, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.store = records
	c.closers = append(c.closers, closeStore)

	c.workspaces, err = workspace.New(cfg.Worker.WorkRoot)
	if err != nil {
		c.close()
		return nil, err
	}

	c.executor = runtime.NewDockerExecutor(cfg.Hosts(), logger)
	c.closers = append(c.closers, c.executor.Close)

	opts := []lifecycle.Option{
		lifecycle.WithStaleGracePeriod(cfg.GracePeriod()),
		lifecycle.WithHostResolver(c.executor),
	}
	if observer != nil {
		opts = append(opts, lifecycle.WithObserver(observer))
	}

	if cfg.NATS != nil {
		c.nats, err = nats.NewClientWithPrefix(cfg.NATS.Servers, cfg.NATS.NKeySeed, cfg.NATS.Prefix, logger)
		if err != nil {
			logger.Warn("Failed to initialize NATS client, continuing without NATS", "error", err)
		} else {
			c.closers = append(c.closers, c.nats.Close)
			opts = append(opts, lifecycle.WithMirror(c.nats))
		}
	}

	c.pipeline = lifecycle.NewPipeline(lifecycle.Dependencies{
		Store:      c.store,
		Importer:   git.NewImporter(logger),
		BuildPacks: plugin.NewLoader(nil, cfg.PluginSettings(), logger),
		Images:     images.New(c.executor, logger),
		Workspaces: c.workspaces,
	}, logger, opts...)

	return c, nil
}

// close releases resources in reverse order of acquisition
func (c *components) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// loadConfig reads the file named by --config, falling back to the defaults
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
