package config

import (
	"time"

	"github.com/ashutoshpw/coolify/internal/runtime"
)

// Defaults applied to settings a configuration file leaves out
const (
	DefaultConcurrency      = 1
	DefaultStaleGracePeriod = "10s"
	DefaultWorkRoot         = "/tmp/build-sources"
	DefaultListen           = ":3100"
	DefaultStorePath        = "coolify.db"

	StoreSQLite = "sqlite"
	StoreHTTP   = "http"

	// EnvConfigPath names the environment variable holding the config file path
	EnvConfigPath = "DEPLOY_WORKER_CONFIG"
)

// Config is the root of a worker configuration file
type Config struct {
	// Worker tunes the queue and the pipeline
	Worker *WorkerConfig `hcl:"worker,block"`

	// Store selects where build records live
	Store *StoreConfig `hcl:"store,block"`

	// NATS enables the control bridge and the live log mirror
	NATS *NATSConfig `hcl:"nats,block"`

	// Destinations are the container runtimes deployments may target
	Destinations []*DestinationConfig `hcl:"destination,block"`

	// BuildPacks carry per build pack settings
	BuildPacks []*BuildPackConfig `hcl:"buildpack,block"`

	// Variables contains variable definitions
	Variables []*VariableConfig `hcl:"variable,block"`
}

// VariableConfig represents an HCL variable block definition
type VariableConfig struct {
	// Name is the variable name (block label)
	Name string `hcl:"name,label"`

	// Sensitive marks the variable as sensitive (suppresses logging)
	Sensitive bool `hcl:"sensitive,optional"`

	// Default is the default value if not provided
	Default string `hcl:"default,optional"`

	// Env is a list of environment variable names to check for value
	Env []string `hcl:"env,optional"`

	Description string `hcl:"description,optional"`
}

// WorkerConfig tunes the queue and the pipeline
type WorkerConfig struct {
	Concurrency      int    `hcl:"concurrency,optional"`
	StaleGracePeriod string `hcl:"stale_grace_period,optional"`
	WorkRoot         string `hcl:"work_root,optional"`
	Listen           string `hcl:"listen,optional"`
}

// StoreConfig selects the record store
type StoreConfig struct {
	// Type is sqlite or http
	Type string `hcl:"type,optional"`

	// Path is the sqlite database file
	Path string `hcl:"path,optional"`

	// URL and Token address the platform backend for the http store
	URL   string `hcl:"url,optional"`
	Token string `hcl:"token,optional"`
}

// NATSConfig connects the worker to NATS
type NATSConfig struct {
	Servers  string `hcl:"servers"`
	NKeySeed string `hcl:"nkey_seed,optional"`
	Prefix   string `hcl:"prefix,optional"`
}

// DestinationConfig is one container runtime
type DestinationConfig struct {
	ID         string `hcl:"id,label"`
	DockerHost string `hcl:"docker_host,optional"`

	// Network is used for requests that name this destination without a network
	Network string `hcl:"network,optional"`
}

// BuildPackConfig holds settings handed to one build pack plugin
type BuildPackConfig struct {
	Name      string            `hcl:"name,label"`
	Binary    string            `hcl:"binary,optional"`
	Env       map[string]string `hcl:"env,optional"`
	BuildArgs map[string]string `hcl:"build_args,optional"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	c := &Config{
		Destinations: []*DestinationConfig{{ID: "local"}},
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Worker == nil {
		c.Worker = &WorkerConfig{}
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = DefaultConcurrency
	}
	if c.Worker.StaleGracePeriod == "" {
		c.Worker.StaleGracePeriod = DefaultStaleGracePeriod
	}
	if c.Worker.WorkRoot == "" {
		c.Worker.WorkRoot = DefaultWorkRoot
	}
	if c.Worker.Listen == "" {
		c.Worker.Listen = DefaultListen
	}
	if c.Store == nil {
		c.Store = &StoreConfig{}
	}
	if c.Store.Type == "" {
		c.Store.Type = StoreSQLite
	}
	if c.Store.Type == StoreSQLite && c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
}

// GracePeriod is the parsed stale build grace period. Call after Validate.
func (c *Config) GracePeriod() time.Duration {
	d, err := time.ParseDuration(c.Worker.StaleGracePeriod)
	if err != nil {
		return 0
	}
	return d
}

// Hosts converts the destinations for the runtime executor
func (c *Config) Hosts() []runtime.Host {
	hosts := make([]runtime.Host, 0, len(c.Destinations))
	for _, d := range c.Destinations {
		hosts = append(hosts, runtime.Host{ID: d.ID, DockerHost: d.DockerHost})
	}
	return hosts
}

// Networks maps destination ids to their configured network
func (c *Config) Networks() map[string]string {
	out := make(map[string]string)
	for _, d := range c.Destinations {
		if d.Network != "" {
			out[d.ID] = d.Network
		}
	}
	return out
}

// PluginSettings converts buildpack blocks into the plugin loader's settings map
func (c *Config) PluginSettings() map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(c.BuildPacks))
	for _, b := range c.BuildPacks {
		settings := map[string]interface{}{}
		if b.Binary != "" {
			settings["binary"] = b.Binary
		}
		if len(b.Env) > 0 {
			settings["env"] = b.Env
		}
		if len(b.BuildArgs) > 0 {
			settings["build_args"] = b.BuildArgs
		}
		out[b.Name] = settings
	}
	return out
}
