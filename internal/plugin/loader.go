package plugin

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/ashutoshpw/coolify/pkg/component"
	"github.com/ashutoshpw/coolify/pkg/deployment"
	"github.com/hashicorp/go-hclog"
)

// Loader hands out configured build pack instances
type Loader struct {
	registry *Registry
	settings map[string]map[string]interface{}
	logger   hclog.Logger
}

// NewLoader creates a loader over registry. settings holds per-plugin configuration
// keyed by plugin name (for example settings["nixpacks"]["binary"]).
func NewLoader(registry *Registry, settings map[string]map[string]interface{}, logger hclog.Logger) *Loader {
	if registry == nil {
		registry = globalRegistry
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Loader{
		registry: registry,
		settings: settings,
		logger:   logger.Named("plugin"),
	}
}

// Has reports whether a build pack exists for kind
func (l *Loader) Has(kind deployment.BuildPackKind) bool {
	return l.registry.Has(kind)
}

// Load returns a fresh, configured build pack for kind
func (l *Loader) Load(kind deployment.BuildPackKind) (component.BuildPack, string, error) {
	p, err := l.registry.Get(kind)
	if err != nil {
		return nil, "", err
	}

	l.logger.Debug("loading build pack", "kind", kind, "plugin", p.Name)

	pack, ok := cloneComponent(p.BuildPack).(component.BuildPack)
	if !ok {
		return nil, "", fmt.Errorf("plugin %s: clone is not a build pack", p.Name)
	}

	if c, ok := pack.(component.Configurable); ok {
		if err := configureComponent(c, l.settings[p.Name]); err != nil {
			return nil, "", fmt.Errorf("failed to configure build pack %q: %w", p.Name, err)
		}
	}
	return pack, p.Name, nil
}

// Seed writes the baseline files of kind into cfg.WorkDir. Kinds without a
// registered build pack, and build packs that do not seed, write nothing.
func (l *Loader) Seed(ctx context.Context, kind deployment.BuildPackKind, cfg *component.BuildConfig) error {
	if !l.registry.Has(kind) {
		return nil
	}
	pack, name, err := l.Load(kind)
	if err != nil {
		return err
	}
	seeder, ok := pack.(component.Seeder)
	if !ok {
		return nil
	}
	if err := seeder.Seed(ctx, cfg); err != nil {
		return fmt.Errorf("seed %s files: %w", name, err)
	}
	return nil
}

// configureComponent configures a component with the given configuration
func configureComponent(comp component.Configurable, config map[string]interface{}) error {
	// Always call ConfigSet so plugins can initialize defaults, even with empty config
	if err := comp.ConfigSet(config); err != nil {
		return fmt.Errorf("component configuration failed: %w", err)
	}
	return nil
}

// cloneComponent creates a new zero instance of a component's concrete type
func cloneComponent(comp interface{}) interface{} {
	if comp == nil {
		return nil
	}

	t := reflect.TypeOf(comp)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return reflect.New(t).Interface()
}

// StringSetting reads a string value from a plugin configuration map
func StringSetting(config map[string]interface{}, key string) string {
	if val, ok := config[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
		if s, ok := val.(*string); ok && s != nil {
			return *s
		}
	}
	return ""
}

// MapSetting reads a string map from a plugin configuration map
func MapSetting(config map[string]interface{}, key string) map[string]string {
	out := map[string]string{}
	switch m := config[key].(type) {
	case map[string]string:
		for k, v := range m {
			out[k] = v
		}
	case map[string]interface{}:
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

// SortedPairs renders m as KEY=VALUE pairs in key order
func SortedPairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}
