package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ashutoshpw/coolify/pkg/component"
	"github.com/ashutoshpw/coolify/pkg/deployment"
)

// ErrUnknownBuildPack is returned when no build pack is registered for a kind
var ErrUnknownBuildPack = errors.New("unknown build pack")

// Plugin represents a registered build pack implementation
type Plugin struct {
	// Name is the implementation name (docker, nixpacks, ...)
	Name string

	// BuildPack is the prototype build pack; the loader hands out configured copies
	BuildPack component.BuildPack
}

// Registry maps build pack kinds to plugins
type Registry struct {
	mu      sync.RWMutex
	plugins map[deployment.BuildPackKind]*Plugin
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[deployment.BuildPackKind]*Plugin)}
}

// Global registry instance; builtins register themselves in init
var globalRegistry = NewRegistry()

// Default returns the global registry
func Default() *Registry {
	return globalRegistry
}

// Register registers a plugin for the given kinds in the global registry
func Register(plugin *Plugin, kinds ...deployment.BuildPackKind) {
	globalRegistry.Register(plugin, kinds...)
}

// Get retrieves the plugin of a kind from the global registry
func Get(kind deployment.BuildPackKind) (*Plugin, error) {
	return globalRegistry.Get(kind)
}

// Kinds returns all kinds registered in the global registry
func Kinds() []deployment.BuildPackKind {
	return globalRegistry.Kinds()
}

// Register registers plugin under every kind. A nil plugin or one without a
// build pack is ignored.
func (r *Registry) Register(plugin *Plugin, kinds ...deployment.BuildPackKind) {
	if plugin == nil || plugin.BuildPack == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, kind := range kinds {
		r.plugins[kind] = plugin
	}
}

// Get retrieves the plugin registered for kind
func (r *Registry) Get(kind deployment.BuildPackKind) (*Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plugin, exists := r.plugins[kind]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBuildPack, kind)
	}
	return plugin, nil
}

// Has reports whether kind has a registered build pack
func (r *Registry) Has(kind deployment.BuildPackKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.plugins[kind]
	return exists
}

// Kinds returns the registered kinds in sorted order
func (r *Registry) Kinds() []deployment.BuildPackKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]deployment.BuildPackKind, 0, len(r.plugins))
	for kind := range r.plugins {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
