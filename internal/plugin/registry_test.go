package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ashutoshpw/coolify/pkg/artifact"
	"github.com/ashutoshpw/coolify/pkg/component"
	"github.com/ashutoshpw/coolify/pkg/deployment"
)

type mockBuildPack struct {
	binary string
}

func (m *mockBuildPack) Build(ctx context.Context, cfg *component.BuildConfig) (*artifact.Artifact, error) {
	return &artifact.Artifact{Image: cfg.Image, Tag: cfg.Tag, Builder: "mock"}, nil
}

func (m *mockBuildPack) Config() (interface{}, error) { return m, nil }

func (m *mockBuildPack) ConfigSet(config interface{}) error {
	if cfg, ok := config.(map[string]interface{}); ok {
		m.binary = StringSetting(cfg, "binary")
	}
	if m.binary == "" {
		m.binary = "mock"
	}
	return nil
}

type seedingBuildPack struct {
	mockBuildPack
}

var seeded []string

func (s *seedingBuildPack) Seed(ctx context.Context, cfg *component.BuildConfig) error {
	seeded = append(seeded, cfg.WorkDir)
	if cfg.WorkDir == "fail" {
		return errors.New("read-only")
	}
	return nil
}

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name   string
		plugin *Plugin
		want   bool
	}{
		{"valid plugin", &Plugin{Name: "mock", BuildPack: &mockBuildPack{}}, true},
		{"nil plugin", nil, false},
		{"plugin without build pack", &Plugin{Name: "empty"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			reg.Register(tt.plugin, deployment.BuildPackNode)

			_, err := reg.Get(deployment.BuildPackNode)
			if got := err == nil; got != tt.want {
				t.Errorf("Register() retrievable = %v, want %v", got, tt.want)
			}
			if reg.Has(deployment.BuildPackNode) != tt.want {
				t.Errorf("Has() = %v, want %v", !tt.want, tt.want)
			}
		})
	}
}

func TestRegistry_MultipleKinds(t *testing.T) {
	reg := NewRegistry()
	p := &Plugin{Name: "mock", BuildPack: &mockBuildPack{}}
	reg.Register(p, deployment.BuildPackNode, deployment.BuildPackStatic, deployment.BuildPackAstro)

	kinds := reg.Kinds()
	want := []deployment.BuildPackKind{deployment.BuildPackAstro, deployment.BuildPackNode, deployment.BuildPackStatic}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Errorf("Kinds() = %v, want %v", kinds, want)
	}
	for _, k := range want {
		got, err := reg.Get(k)
		if err != nil || got != p {
			t.Errorf("Get(%s) = %v, %v", k, got, err)
		}
	}
}

func TestRegistry_UnknownKind(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("cobol")
	if !errors.Is(err, ErrUnknownBuildPack) {
		t.Fatalf("expected ErrUnknownBuildPack, got %v", err)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			reg.Register(&Plugin{Name: "mock", BuildPack: &mockBuildPack{}}, deployment.BuildPackKind(fmt.Sprintf("kind-%d", i)))
		}(i)
		go func() {
			defer wg.Done()
			_ = reg.Kinds()
		}()
	}
	wg.Wait()
	if len(reg.Kinds()) != 50 {
		t.Errorf("expected 50 kinds, got %d", len(reg.Kinds()))
	}
}
