package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/ashutoshpw/coolify/pkg/component"
	"github.com/ashutoshpw/coolify/pkg/deployment"
	"github.com/hashicorp/go-hclog"
)

func TestLoader_LoadReturnsConfiguredCopy(t *testing.T) {
	reg := NewRegistry()
	proto := &mockBuildPack{}
	reg.Register(&Plugin{Name: "mock", BuildPack: proto}, deployment.BuildPackNode)

	loader := NewLoader(reg, map[string]map[string]interface{}{
		"mock": {"binary": "/opt/mock"},
	}, hclog.NewNullLogger())

	pack, name, err := loader.Load(deployment.BuildPackNode)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if name != "mock" {
		t.Errorf("name = %q", name)
	}
	loaded, ok := pack.(*mockBuildPack)
	if !ok {
		t.Fatalf("unexpected type %T", pack)
	}
	if loaded == proto {
		t.Error("Load() must not hand out the registered prototype")
	}
	if loaded.binary != "/opt/mock" {
		t.Errorf("binary = %q", loaded.binary)
	}
}

func TestLoader_DefaultsWithoutSettings(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Plugin{Name: "mock", BuildPack: &mockBuildPack{}}, deployment.BuildPackNode)

	pack, _, err := NewLoader(reg, nil, nil).Load(deployment.BuildPackNode)
	if err != nil {
		t.Fatal(err)
	}
	if pack.(*mockBuildPack).binary != "mock" {
		t.Error("ConfigSet should run with empty settings")
	}
}

func TestLoader_UnknownKind(t *testing.T) {
	loader := NewLoader(NewRegistry(), nil, nil)
	if _, _, err := loader.Load("cobol"); !errors.Is(err, ErrUnknownBuildPack) {
		t.Errorf("expected ErrUnknownBuildPack, got %v", err)
	}
	if loader.Has("cobol") {
		t.Error("Has() should be false")
	}
}

func TestLoader_Seed(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Plugin{Name: "seeding", BuildPack: &seedingBuildPack{}}, deployment.BuildPackStatic)
	reg.Register(&Plugin{Name: "mock", BuildPack: &mockBuildPack{}}, deployment.BuildPackNode)
	loader := NewLoader(reg, nil, nil)
	ctx := context.Background()
	seeded = nil

	if err := loader.Seed(ctx, deployment.BuildPackStatic, &component.BuildConfig{WorkDir: "/w"}); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	if err := loader.Seed(ctx, deployment.BuildPackNode, &component.BuildConfig{WorkDir: "/n"}); err != nil {
		t.Fatalf("non-seeding pack: %v", err)
	}
	if err := loader.Seed(ctx, "cobol", &component.BuildConfig{WorkDir: "/c"}); err != nil {
		t.Fatalf("unknown kinds seed nothing: %v", err)
	}
	if len(seeded) != 1 || seeded[0] != "/w" {
		t.Errorf("seeded = %v", seeded)
	}

	if err := loader.Seed(ctx, deployment.BuildPackStatic, &component.BuildConfig{WorkDir: "fail"}); err == nil {
		t.Error("expected seed failure to surface")
	}
}

func TestSettings(t *testing.T) {
	s := "ptr"
	cfg := map[string]interface{}{
		"a":    "x",
		"b":    &s,
		"args": map[string]interface{}{"K": "V", "N": 1},
	}
	if StringSetting(cfg, "a") != "x" || StringSetting(cfg, "b") != "ptr" || StringSetting(cfg, "missing") != "" {
		t.Error("StringSetting mismatch")
	}
	m := MapSetting(cfg, "args")
	if len(m) != 1 || m["K"] != "V" {
		t.Errorf("MapSetting() = %v", m)
	}
}
