package core

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestHealthcheckTestArgv(t *testing.T) {
	tests := []struct {
		name string
		test HealthcheckTest
		want []string
	}{
		{"shell string", HealthcheckTest{Shell: "curl -f localhost"}, []string{"sh", "-c", "curl -f localhost"}},
		{"cmd vector", HealthcheckTest{Command: []string{"CMD", "curl", "-f", "localhost"}}, []string{"curl", "-f", "localhost"}},
		{"cmd-shell", HealthcheckTest{Command: []string{"CMD-SHELL", "exit 1"}}, []string{"sh", "-c", "exit 1"}},
		{"cmd-shell multi arg", HealthcheckTest{Command: []string{"CMD-SHELL", "curl", "-f"}}, []string{"sh", "-c", "curl -f"}},
		{"bare vector", HealthcheckTest{Command: []string{"curl", "localhost"}}, []string{"curl", "localhost"}},
		{"empty", HealthcheckTest{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.test.Argv(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Argv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHealthcheckTestJSON(t *testing.T) {
	var fromString HealthcheckTest
	if err := json.Unmarshal([]byte(`"exit 0"`), &fromString); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if fromString.Shell != "exit 0" || fromString.Command != nil {
		t.Errorf("got %+v, want shell form", fromString)
	}

	var fromList HealthcheckTest
	if err := json.Unmarshal([]byte(`["CMD","true"]`), &fromList); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if fromList.Shell != "" || len(fromList.Command) != 2 {
		t.Errorf("got %+v, want command form", fromList)
	}

	if err := json.Unmarshal([]byte(`{"x":1}`), &fromList); err == nil {
		t.Error("unmarshal object: want error, got nil")
	}

	out, err := json.Marshal(fromList)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `["CMD","true"]` {
		t.Errorf("marshal = %s, want [\"CMD\",\"true\"]", out)
	}
}

func TestComposeHealthcheckYAML(t *testing.T) {
	doc := `
test: ["CMD-SHELL", "pg_isready -U postgres"]
interval: 5s
timeout: 3
retries: 4
`
	var hc ComposeHealthcheck
	if err := yaml.Unmarshal([]byte(doc), &hc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if want := []string{"sh", "-c", "pg_isready -U postgres"}; !reflect.DeepEqual(hc.Test.Argv(), want) {
		t.Errorf("Argv() = %v, want %v", hc.Test.Argv(), want)
	}
	if hc.Interval != 5 {
		t.Errorf("Interval = %d, want 5", hc.Interval)
	}
	if hc.Timeout != 3 {
		t.Errorf("Timeout = %d, want 3", hc.Timeout)
	}
	if hc.Retries != 4 {
		t.Errorf("Retries = %d, want 4", hc.Retries)
	}
}

func TestSecondsParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Seconds
		wantErr bool
	}{
		{`10`, 10, false},
		{`"10"`, 10, false},
		{`"5s"`, 5, false},
		{`"2m"`, 120, false},
		{`"wat"`, 0, true},
		{`{}`, 0, true},
	}
	for _, tt := range tests {
		var s Seconds
		err := json.Unmarshal([]byte(tt.in), &s)
		if (err != nil) != tt.wantErr {
			t.Errorf("unmarshal %s: error = %v, wantErr = %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && s != tt.want {
			t.Errorf("unmarshal %s = %d, want %d", tt.in, s, tt.want)
		}
	}
}

func TestApplicationNormalize(t *testing.T) {
	app := Application{ID: "p-web", ProjectID: "p", Name: "web", Source: SourceImage}
	app.Normalize()
	if app.SourceBranch != "main" {
		t.Errorf("SourceBranch = %q, want main", app.SourceBranch)
	}
	if app.Dockerfile != "Dockerfile" {
		t.Errorf("Dockerfile = %q, want Dockerfile", app.Dockerfile)
	}
	if app.BuildContext != "." {
		t.Errorf("BuildContext = %q, want .", app.BuildContext)
	}
	if app.Port != 80 {
		t.Errorf("Port = %d, want 80", app.Port)
	}
	if app.Replicas != 1 {
		t.Errorf("Replicas = %d, want 1", app.Replicas)
	}
	if app.Status != StatusPending {
		t.Errorf("Status = %q, want pending", app.Status)
	}

	// Explicit values survive.
	app = Application{Port: 8080, Replicas: 3, Status: StatusRunning}
	app.Normalize()
	if app.Port != 8080 || app.Replicas != 3 || app.Status != StatusRunning {
		t.Errorf("Normalize overwrote explicit values: %+v", app)
	}
}

func TestRouteNormalize(t *testing.T) {
	r := Route{ID: "app-x", Host: "x.example", Upstreams: []Upstream{{Address: "10.0.0.2", Port: 80}}}
	r.Normalize()
	if r.Path != "/" {
		t.Errorf("Path = %q, want /", r.Path)
	}
	if r.Protocol != ProtocolHTTP {
		t.Errorf("Protocol = %q, want http", r.Protocol)
	}
	if r.LoadBalancer != RoundRobin {
		t.Errorf("LoadBalancer = %q, want round_robin", r.LoadBalancer)
	}
	if r.Upstreams[0].Weight != 1 {
		t.Errorf("Weight = %d, want 1", r.Upstreams[0].Weight)
	}
}

func TestHealthCheckNormalize(t *testing.T) {
	var h HealthCheck
	h.Normalize()
	if h.Type != HealthHTTP || h.Path != "/" || h.Interval != 10 || h.Timeout != 5 {
		t.Errorf("defaults wrong: %+v", h)
	}
	if h.HealthyThreshold != 2 || h.UnhealthyThreshold != 3 {
		t.Errorf("thresholds wrong: %+v", h)
	}
}

func TestShortID(t *testing.T) {
	full := "0123456789abcdef0123456789abcdef"
	if got := ShortID(full); got != "0123456789ab" {
		t.Errorf("ShortID = %q, want 0123456789ab", got)
	}
	if got := ShortID("abc"); got != "abc" {
		t.Errorf("ShortID short input = %q, want abc", got)
	}
}

func TestNewID(t *testing.T) {
	id := NewID("app")
	if !strings.HasPrefix(id, "app-") {
		t.Fatalf("id %q missing prefix", id)
	}
	if len(id) != len("app-")+8 {
		t.Errorf("id %q, want 8 hex chars after prefix", id)
	}
	if id == NewID("app") {
		t.Error("two ids collided")
	}
}

func TestDeploymentID(t *testing.T) {
	if got := DeploymentID("p-web", 3); got != "p-web-v3" {
		t.Errorf("DeploymentID = %q, want p-web-v3", got)
	}
}
