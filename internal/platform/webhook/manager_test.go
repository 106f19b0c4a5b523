package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSignAndVerify(t *testing.T) {
	payload := []byte(`{"metric":"denial_rate"}`)
	sig := SignPayload(payload, "topsecret")
	if !VerifySignature(payload, "topsecret", sig) {
		t.Error("signature did not verify with the correct secret")
	}
	if VerifySignature(payload, "wrong", sig) {
		t.Error("signature verified with the wrong secret")
	}
	if VerifySignature([]byte(`{"metric":"decision_time"}`), "topsecret", sig) {
		t.Error("signature verified for a tampered payload")
	}
}

func TestRegisterEndpoint(t *testing.T) {
	m := NewManager(NewInMemoryStore())
	ctx := context.Background()

	ep, err := m.RegisterEndpoint(ctx, "https://alerts.example.com/hook", "", []string{EventDriftDetected})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if ep.Secret == "" {
		t.Error("empty secret was not auto-generated")
	}
	if ep.Status != "active" {
		t.Errorf("status = %s, want active", ep.Status)
	}

	if _, err := m.RegisterEndpoint(ctx, "ftp://nope", "", nil); err == nil {
		t.Error("expected error for non-http scheme")
	}
	if _, err := m.RegisterEndpoint(ctx, "", "", nil); err == nil {
		t.Error("expected error for empty url")
	}
}

func TestEventMatches(t *testing.T) {
	tests := []struct {
		pattern, event string
		want           bool
	}{
		{"drift.detected", "drift.detected", true},
		{"drift.detected", "report.ready", false},
		{"drift.*", "drift.detected", true},
		{"*.ready", "report.ready", true},
		{"*.ready", "drift.detected", false},
		{"*", "anything.at.all", true},
	}
	for _, tt := range tests {
		if got := eventMatches(tt.pattern, tt.event); got != tt.want {
			t.Errorf("eventMatches(%q, %q) = %v, want %v", tt.pattern, tt.event, got, tt.want)
		}
	}
}

func TestPublish_DeliversSignedPayload(t *testing.T) {
	var gotSig, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Webhook-Signature")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewManager(NewInMemoryStore())
	ctx := context.Background()
	ep, err := m.RegisterEndpoint(ctx, srv.URL, "topsecret", []string{EventDriftDetected})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	attempts := m.Publish(ctx, EventDriftDetected, map[string]string{"metric": "denial_rate"})
	if len(attempts) != 1 {
		t.Fatalf("got %d attempts, want 1", len(attempts))
	}
	if attempts[0].Status != "success" {
		t.Fatalf("attempt status = %s (%s), want success", attempts[0].Status, attempts[0].Error)
	}
	if !VerifySignature([]byte(gotBody), "topsecret", gotSig[len("sha256="):]) {
		t.Error("delivered signature does not verify against the received body")
	}

	var event Event
	if err := json.Unmarshal([]byte(gotBody), &event); err != nil {
		t.Fatalf("unmarshal delivered event: %v", err)
	}
	if event.Type != EventDriftDetected {
		t.Errorf("event type = %s, want %s", event.Type, EventDriftDetected)
	}

	logs, total, err := m.ListDeliveries(ctx, ep.ID, 20, 0)
	if err != nil || total != 1 || len(logs) != 1 {
		t.Errorf("delivery log = (%d items, total %d, err %v), want exactly one row", len(logs), total, err)
	}
}

func TestPublish_SkipsPausedAndUnsubscribed(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewManager(NewInMemoryStore())
	ctx := context.Background()

	paused, _ := m.RegisterEndpoint(ctx, srv.URL, "s", []string{EventDriftDetected})
	m.PauseEndpoint(ctx, paused.ID)
	m.RegisterEndpoint(ctx, srv.URL, "s", []string{EventReportReady})

	if attempts := m.Publish(ctx, EventDriftDetected, map[string]string{}); len(attempts) != 0 {
		t.Errorf("got %d attempts, want 0", len(attempts))
	}
	if hits != 0 {
		t.Errorf("endpoint hit %d times, want 0", hits)
	}
}

func TestPublish_RecordsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := NewManager(NewInMemoryStore())
	ctx := context.Background()
	ep, _ := m.RegisterEndpoint(ctx, srv.URL, "s", []string{"*"})

	attempts := m.Publish(ctx, EventDriftDetected, map[string]string{})
	if len(attempts) != 1 || attempts[0].Status != "failed" {
		t.Fatalf("got %+v, want one failed attempt", attempts)
	}
	logs, _, _ := m.ListDeliveries(ctx, ep.ID, 20, 0)
	if len(logs) != 1 || logs[0].StatusCode != http.StatusBadGateway {
		t.Errorf("delivery log = %+v, want recorded 502", logs)
	}
}
