package fingerprint

import (
	"testing"

	"github.com/ashutoshpw/coolify/pkg/deployment"
)

func baseRequest() deployment.Request {
	return deployment.Request{
		ApplicationID:  "app1",
		BuildID:        "b1",
		Repository:     "acme/web",
		Branch:         "main",
		BuildPack:      deployment.BuildPackNode,
		Port:           3000,
		InstallCommand: "npm ci",
		StartCommand:   "npm start",
		FQDN:           "https://web.example.com",
		Secrets: []deployment.Secret{
			{Name: "API_KEY", Value: "one"},
			{Name: "DB_URL", Value: "postgres://db"},
			{Name: "API_KEY", Value: "preview", IsPreview: true},
		},
	}
}

func TestCompute_Deterministic(t *testing.T) {
	req := baseRequest()
	first := Compute(&req)
	second := Compute(&req)

	if first != second {
		t.Fatalf("fingerprint not deterministic: %s != %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first))
	}
}

func TestCompute_SecretOrderIndependent(t *testing.T) {
	a := baseRequest()
	b := baseRequest()
	b.Secrets = []deployment.Secret{a.Secrets[2], a.Secrets[1], a.Secrets[0]}

	if Compute(&a) != Compute(&b) {
		t.Error("reordering secrets changed the fingerprint")
	}
}

func TestCompute_DoesNotMutateRequest(t *testing.T) {
	req := baseRequest()
	Compute(&req)
	if req.Secrets[0].Name != "API_KEY" || req.Secrets[1].Name != "DB_URL" {
		t.Errorf("secrets were reordered in place: %+v", req.Secrets)
	}
}

func TestCompute_IgnoresNonRuntimeFields(t *testing.T) {
	a := baseRequest()
	b := baseRequest()
	b.BuildID = "b2"
	b.ConfigHash = "something"
	b.ForceRebuild = true

	if Compute(&a) != Compute(&b) {
		t.Error("fields outside the fingerprint changed the hash")
	}
}

func TestCompute_SensitiveToRuntimeFields(t *testing.T) {
	mutations := map[string]func(r *deployment.Request){
		"port":       func(r *deployment.Request) { r.Port = 8080 },
		"buildPack":  func(r *deployment.Request) { r.BuildPack = deployment.BuildPackStatic },
		"branch":     func(r *deployment.Request) { r.Branch = "develop" },
		"repository": func(r *deployment.Request) { r.Repository = "acme/api" },
		"fqdn":       func(r *deployment.Request) { r.FQDN = "https://other.example.com" },
		"secret":     func(r *deployment.Request) { r.Secrets[0].Value = "two" },
		"baseImage":  func(r *deployment.Request) { r.BaseImage = "node:20" },
		"start":      func(r *deployment.Request) { r.StartCommand = "node server.js" },
	}

	base := baseRequest()
	want := Compute(&base)
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			req := baseRequest()
			mutate(&req)
			if Compute(&req) == want {
				t.Errorf("changing %s did not change the fingerprint", name)
			}
		})
	}
}

func TestChanged(t *testing.T) {
	req := baseRequest()
	if !Changed(&req) {
		t.Error("empty stored hash should count as changed")
	}
	req.ConfigHash = Compute(&req)
	if Changed(&req) {
		t.Error("matching stored hash should not count as changed")
	}
}
