package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashutoshpw/coolify/internal/dispatch"
	"github.com/ashutoshpw/coolify/pkg/deployment"
	"github.com/hashicorp/go-hclog"
)

type fakeController struct {
	submitted []deployment.Request
	submitErr error
	cancels   int
	flushed   int
}

func (f *fakeController) Submit(ctx context.Context, req deployment.Request) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return "task-1", nil
}

func (f *fakeController) Cancel() string {
	f.cancels++
	return dispatch.CancelledAck
}

func (f *fakeController) Status(caller string) dispatch.StatusReport {
	return dispatch.StatusReport{QueueDepth: 2, ActiveCount: 1, Caller: caller}
}

func (f *fakeController) Flush() int {
	f.flushed++
	return 2
}

func newTestServer(t *testing.T, c Controller, metrics http.Handler) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(c, metrics, hclog.NewNullLogger()).Router())
	t.Cleanup(ts.Close)
	return ts
}

const validBody = `{"id":"app1","build_id":"b1","repository":"acme/web","buildPack":"node","port":"3000","destinationDocker":{"id":"local","network":"coolify"}}`

func TestSubmit(t *testing.T) {
	c := &fakeController{}
	ts := newTestServer(t, c, nil)

	resp, err := http.Post(ts.URL+"/deployments", "application/json", strings.NewReader(validBody))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["task"] != "task-1" || out["buildId"] != "b1" {
		t.Errorf("response = %v", out)
	}
	if len(c.submitted) != 1 || c.submitted[0].Port != 3000 {
		t.Errorf("submitted = %+v", c.submitted)
	}
}

func TestSubmit_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		submitErr error
		want      int
	}{
		{"malformed", `{"id":`, nil, http.StatusBadRequest},
		{"invalid", `{"id":"app1"}`, nil, http.StatusUnprocessableEntity},
		{"registration failure", validBody, errors.New("store down"), http.StatusInternalServerError},
		{"too large", `{"name":"` + strings.Repeat("x", MaxPayloadBytes) + `"}`, nil, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeController{submitErr: tt.submitErr}, nil)
			resp, err := http.Post(ts.URL+"/deployments", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t, &fakeController{}, nil)

	for _, tt := range []struct {
		query      string
		wantCaller string
	}{
		{"?caller=dashboard", "dashboard"},
		{"", ""},
	} {
		resp, err := http.Get(ts.URL + "/status" + tt.query)
		if err != nil {
			t.Fatal(err)
		}
		var report dispatch.StatusReport
		if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()

		if report.QueueDepth != 2 || report.ActiveCount != 1 {
			t.Errorf("report = %+v", report)
		}
		if tt.wantCaller != "" && report.Caller != tt.wantCaller {
			t.Errorf("caller = %q, want %q", report.Caller, tt.wantCaller)
		}
		if tt.wantCaller == "" && report.Caller == "" {
			t.Error("expected a generated caller id")
		}
	}
}

func TestCancelAndFlush(t *testing.T) {
	c := &fakeController{}
	ts := newTestServer(t, c, nil)

	resp, err := http.Post(ts.URL+"/cancel", "text/plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 32)
	n, _ := resp.Body.Read(buf)
	resp.Body.Close()
	if string(buf[:n]) != dispatch.CancelledAck {
		t.Errorf("cancel body = %q", buf[:n])
	}

	resp, err = http.Post(ts.URL+"/flush", "text/plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]int
	json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if out["flushed"] != 2 {
		t.Errorf("flush response = %v", out)
	}

	if c.cancels != 1 || c.flushed != 1 {
		t.Errorf("cancels = %d, flushed = %d", c.cancels, c.flushed)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("deploy_worker_queue_depth 0\n"))
	})
	ts := newTestServer(t, &fakeController{}, metrics)

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/deployments")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /deployments status = %d", resp.StatusCode)
	}
}
