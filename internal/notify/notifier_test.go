package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dockhand-io/dockhand/internal/clock"
	"github.com/dockhand-io/dockhand/internal/config"
	"github.com/dockhand-io/dockhand/internal/events"
	"github.com/dockhand-io/dockhand/internal/logging"
)

// --- test helpers ---

type spyLogger struct {
	infoCalls  []logCall
	errorCalls []logCall
}

type logCall struct {
	msg  string
	args []any
}

func (s *spyLogger) Info(msg string, args ...any) {
	s.infoCalls = append(s.infoCalls, logCall{msg, args})
}
func (s *spyLogger) Error(msg string, args ...any) {
	s.errorCalls = append(s.errorCalls, logCall{msg, args})
}

type stubNotifier struct {
	name string
	err  error
	sent []Event
}

func (s *stubNotifier) Name() string { return s.name }
func (s *stubNotifier) Send(_ context.Context, event Event) error {
	s.sent = append(s.sent, event)
	return s.err
}

func testEvent(t EventType) Event {
	return Event{
		Type:      t,
		App:       "p1-web",
		Deploy:    "p1-web-v3",
		Timestamp: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
	}
}

// --- Multi tests ---

func TestMultiDispatchesAll(t *testing.T) {
	a := &stubNotifier{name: "a"}
	b := &stubNotifier{name: "b"}
	log := &spyLogger{}
	m := NewMulti(log, a, b)

	event := testEvent(EventDeploySucceeded)
	m.Notify(context.Background(), event)

	if len(a.sent) != 1 {
		t.Fatalf("notifier a: got %d events, want 1", len(a.sent))
	}
	if len(b.sent) != 1 {
		t.Fatalf("notifier b: got %d events, want 1", len(b.sent))
	}
	if a.sent[0].App != "p1-web" {
		t.Errorf("notifier a: app = %q, want p1-web", a.sent[0].App)
	}
}

func TestMultiLogsErrorsButContinues(t *testing.T) {
	failing := &stubNotifier{name: "broken", err: errors.New("connection refused")}
	ok := &stubNotifier{name: "ok"}
	log := &spyLogger{}
	m := NewMulti(log, failing, ok)

	m.Notify(context.Background(), testEvent(EventDeployStarted))

	// The working notifier should still receive the event.
	if len(ok.sent) != 1 {
		t.Fatalf("ok notifier: got %d events, want 1", len(ok.sent))
	}
	// The error should be logged.
	if len(log.errorCalls) != 1 {
		t.Fatalf("got %d error logs, want 1", len(log.errorCalls))
	}
	if !strings.Contains(log.errorCalls[0].msg, "notification failed") {
		t.Errorf("error log msg = %q, want 'notification failed'", log.errorCalls[0].msg)
	}
}

// --- Webhook tests ---

func TestWebhookSendsBodyAndHeaders(t *testing.T) {
	var received Event
	var gotAuth string
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	headers := map[string]string{"Authorization": "Bearer secret123"}
	wh := NewWebhook(srv.URL, headers)
	event := testEvent(EventDeploySucceeded)
	err := wh.Send(context.Background(), event)

	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotAuth != "Bearer secret123" {
		t.Errorf("Authorization = %q, want 'Bearer secret123'", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if received.App != "p1-web" {
		t.Errorf("app = %q, want p1-web", received.App)
	}
	if received.Type != EventDeploySucceeded {
		t.Errorf("type = %q, want deploy_succeeded", received.Type)
	}
}

func TestWebhookReturnsErrorOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, nil)
	err := wh.Send(context.Background(), testEvent(EventDeployStarted))

	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}

// --- Slack tests ---

func TestSlackFormatsMessage(t *testing.T) {
	var received slackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSlack(srv.URL)
	event := testEvent(EventDeployFailed)
	event.Error = "healthcheck failed"
	if err := s.Send(context.Background(), event); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if !strings.HasPrefix(received.Text, "Deploy failed") {
		t.Errorf("text = %q, want 'Deploy failed' headline", received.Text)
	}
	if !strings.Contains(received.Text, "App: p1-web") {
		t.Errorf("text missing app line: %q", received.Text)
	}
	if !strings.Contains(received.Text, "Error: healthcheck failed") {
		t.Errorf("text missing error line: %q", received.Text)
	}
}

// --- LogNotifier tests ---

func TestLogNotifierCallsLogger(t *testing.T) {
	log := &spyLogger{}
	ln := NewLogNotifier(log)

	event := testEvent(EventCertRenewed)
	err := ln.Send(context.Background(), event)

	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(log.infoCalls) != 1 {
		t.Fatalf("got %d info calls, want 1", len(log.infoCalls))
	}
	if log.infoCalls[0].msg != "notification event" {
		t.Errorf("msg = %q, want 'notification event'", log.infoCalls[0].msg)
	}

	// Verify structured args contain the event type.
	args := log.infoCalls[0].args
	found := false
	for i := 0; i < len(args)-1; i += 2 {
		if args[i] == "type" && args[i+1] == "cert_renewed" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("expected type=cert_renewed in log args: %v", args)
	}
}

// --- bridge tests ---

func TestFromConfigBuildsChain(t *testing.T) {
	log := &spyLogger{}

	m := FromConfig(&config.Config{}, log)
	if len(m.notifiers) != 1 || m.notifiers[0].Name() != "log" {
		t.Fatalf("empty config chain = %v", names(m))
	}

	m = FromConfig(&config.Config{
		NotifyWebhookURL:   "http://hooks.internal/deploys",
		NotifySlackWebhook: "http://slack.internal/T000/B000",
		NotifyMQTTBroker:   "tcp://broker:1883",
		NotifyMQTTTopic:    "dockhand/deploys",
	}, log)
	want := []string{"log", "webhook", "slack", "mqtt"}
	got := names(m)
	if len(got) != len(want) {
		t.Fatalf("chain = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chain[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func names(m *Multi) []string {
	var out []string
	for _, n := range m.notifiers {
		out = append(out, n.Name())
	}
	return out
}

func TestSubscribeForwardsBusEvents(t *testing.T) {
	bus := events.NewBus(logging.New(false, "error"))
	stub := &stubNotifier{name: "stub"}
	m := NewMulti(&spyLogger{}, stub)
	clk := clock.NewFake()
	Subscribe(bus, m, clk)

	ctx := context.Background()
	bus.Emit(ctx, events.Event{Name: events.DeployFailed, Fields: map[string]any{
		"app_id":    "p1-web",
		"deploy_id": "p1-web-v3",
		"error":     "pull failed",
	}})
	bus.Emit(ctx, events.Event{Name: events.CertRenewed, Fields: map[string]any{
		"domain": "shop.example.com",
	}})
	// Names without a subscription pass through silently.
	bus.Emit(ctx, events.Event{Name: events.WebhookReceived})

	if len(stub.sent) != 2 {
		t.Fatalf("got %d notifications, want 2", len(stub.sent))
	}
	failed := stub.sent[0]
	if failed.Type != EventDeployFailed || failed.App != "p1-web" || failed.Error != "pull failed" {
		t.Errorf("deploy_failed notification = %+v", failed)
	}
	if !failed.Timestamp.Equal(clk.Now().UTC()) {
		t.Errorf("timestamp = %v, want %v", failed.Timestamp, clk.Now().UTC())
	}
	renewed := stub.sent[1]
	if renewed.Type != EventCertRenewed || renewed.Domain != "shop.example.com" {
		t.Errorf("cert_renewed notification = %+v", renewed)
	}
}

func TestFormatTitle(t *testing.T) {
	cases := map[EventType]string{
		EventDeployStarted:   "Deploy started",
		EventDeploySucceeded: "Deploy succeeded",
		EventDeployFailed:    "Deploy failed",
		EventCertRenewed:     "Certificate renewed",
		EventCertFailed:      "Certificate renewal failed",
		EventType("custom"):  "custom",
	}
	for typ, want := range cases {
		if got := formatTitle(typ); got != want {
			t.Errorf("formatTitle(%q) = %q, want %q", typ, got, want)
		}
	}
}
