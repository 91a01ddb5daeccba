package images

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"
)

type recordingExecutor struct {
	commands []string
	fail     map[string]error
}

func (r *recordingExecutor) Execute(_ context.Context, destination, command string) (string, error) {
	r.commands = append(r.commands, destination+": "+command)
	if err, ok := r.fail[command]; ok {
		return "", err
	}
	return "", nil
}

func TestExists(t *testing.T) {
	exec := &recordingExecutor{fail: map[string]error{
		"docker image inspect app1:missing": errors.New("no such image"),
	}}
	l := New(exec, hclog.NewNullLogger())

	if !l.Exists(context.Background(), "local", "app1:abc1234") {
		t.Error("expected image to exist")
	}
	if l.Exists(context.Background(), "local", "app1:missing") {
		t.Error("inspect failure must count as absent")
	}
	if exec.commands[0] != "local: docker image inspect app1:abc1234" {
		t.Errorf("command = %q", exec.commands[0])
	}
}

func TestStopAndRemove_SwallowsErrors(t *testing.T) {
	exec := &recordingExecutor{fail: map[string]error{
		"docker stop -t 0 app1": errors.New("no such container"),
		"docker rm app1":        errors.New("no such container"),
	}}
	l := New(exec, hclog.NewNullLogger())

	l.StopAndRemove(context.Background(), "local", "app1")

	want := []string{"local: docker stop -t 0 app1", "local: docker rm app1"}
	if len(exec.commands) != len(want) {
		t.Fatalf("commands = %v", exec.commands)
	}
	for i := range want {
		if exec.commands[i] != want[i] {
			t.Errorf("command[%d] = %q, want %q", i, exec.commands[i], want[i])
		}
	}
}

func TestComposeUp(t *testing.T) {
	exec := &recordingExecutor{}
	l := New(exec, nil)

	if err := l.ComposeUp(context.Background(), "local", "/tmp/build-sources/acme/web/b1"); err != nil {
		t.Fatalf("ComposeUp() error: %v", err)
	}
	if exec.commands[0] != "local: docker compose --project-directory /tmp/build-sources/acme/web/b1 up -d" {
		t.Errorf("command = %q", exec.commands[0])
	}

	exec.fail = map[string]error{exec.commands[0][len("local: "):]: errors.New("boom")}
	if err := l.ComposeUp(context.Background(), "local", "/tmp/build-sources/acme/web/b1"); err == nil {
		t.Error("expected compose failure to surface")
	}
}

func TestNeedsBuild(t *testing.T) {
	tests := []struct {
		name                                  string
		changed, preview, force, exists, want bool
	}{
		{"cached production", false, false, false, true, false},
		{"config changed", true, false, false, true, true},
		{"preview always builds", false, true, false, true, true},
		{"forced", false, false, true, true, true},
		{"image missing", false, false, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsBuild(tt.changed, tt.preview, tt.force, tt.exists); got != tt.want {
				t.Errorf("NeedsBuild() = %v, want %v", got, tt.want)
			}
		})
	}
}
