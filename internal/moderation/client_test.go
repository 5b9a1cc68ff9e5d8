package moderation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openlistings/moderation/internal/models"
	"github.com/openlistings/moderation/internal/observability"
	"go.uber.org/zap"
)

func testRequest() Request {
	return Request{
		Title:       "Blue running shoes, size 10",
		Description: "Barely used, great condition",
		Category:    "fashion",
		Language:    "en",
		User:        RequestUser{ID: "u-1", Company: "acme-sports"},
		Context:     RequestContext{AdID: "AD-202608-1230450001-ABCDEF12", Source: "scanner"},
	}
}

func TestClient_ModerateRealtime(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/moderate/realtime" {
			t.Errorf("Expected path /moderate/realtime, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST method, got %s", r.Method)
		}

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
			return
		}
		if req.Context.AdID == "" {
			t.Error("Expected ad_id in request context")
		}

		score := 0.12
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"success":         true,
			"decision":        "approve",
			"risk_level":      "low",
			"global_score":    score,
			"category_scores": map[string]float64{"scam": 0.05},
			"flags":           []string{},
			"reasons":         []string{},
			"processing_time": 42,
		}); err != nil {
			t.Errorf("Failed to encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, zap.NewNop(), observability.NewNoOpRegistry())

	v, err := client.ModerateRealtime(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("ModerateRealtime failed: %v", err)
	}

	if !v.Safe {
		t.Error("Expected safe verdict for approve decision with low score")
	}
	if v.Score != 12 {
		t.Errorf("Expected score 12, got %d", v.Score)
	}
	if v.RiskLevel != models.RiskLow {
		t.Errorf("Expected low risk, got %s", v.RiskLevel)
	}
	if v.Source != models.SourceExternalAI {
		t.Errorf("Expected source external_ai, got %s", v.Source)
	}
	if !v.Valid() {
		t.Error("Expected structurally valid verdict")
	}
	if len(v.Raw) == 0 {
		t.Error("Expected raw payload to be retained")
	}
}

func TestClient_ModerateRealtime_ApproveWithHighScoreIsNotSafe(t *testing.T) {
	// An approve decision whose score sits above the low tier must not
	// produce a safe verdict; safe implies low risk.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"decision":     "approve",
			"global_score": 0.55,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, zap.NewNop(), observability.NewNoOpRegistry())
	v, err := client.ModerateRealtime(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("ModerateRealtime failed: %v", err)
	}
	if v.Safe {
		t.Error("Expected unsafe verdict")
	}
	if v.RiskLevel != models.RiskMedium {
		t.Errorf("Expected medium risk for score 55, got %s", v.RiskLevel)
	}
	if !v.Valid() {
		t.Error("Expected structurally valid verdict")
	}
}

func TestClient_ModerateRealtime_HTTP500(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, zap.NewNop(), observability.NewNoOpRegistry())
	if _, err := client.ModerateRealtime(context.Background(), testRequest()); err == nil {
		t.Fatal("Expected error for HTTP 500")
	}
}

func TestClient_ModerateRealtime_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "decision":`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, zap.NewNop(), observability.NewNoOpRegistry())
	if _, err := client.ModerateRealtime(context.Background(), testRequest()); err == nil {
		t.Fatal("Expected error for malformed JSON body")
	}
}

func TestClient_ModerateRealtime_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(server.URL, 50*time.Millisecond, zap.NewNop(), observability.NewNoOpRegistry())
	if _, err := client.ModerateRealtime(context.Background(), testRequest()); err == nil {
		t.Fatal("Expected error for timed-out request")
	}
}

func TestClient_ModerateRealtime_SchemaValidation(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
	}{
		{"success false", map[string]any{"success": false, "decision": "approve", "global_score": 0.1}},
		{"missing global_score", map[string]any{"success": true, "decision": "approve"}},
		{"invalid decision", map[string]any{"success": true, "decision": "maybe", "global_score": 0.1}},
		{"score out of range", map[string]any{"success": true, "decision": "approve", "global_score": 3.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tc.body)
			}))
			defer server.Close()

			client := NewClient(server.URL, time.Second, zap.NewNop(), observability.NewNoOpRegistry())
			if _, err := client.ModerateRealtime(context.Background(), testRequest()); err == nil {
				t.Fatal("Expected schema validation error")
			}
		})
	}
}

func TestClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("Expected path /health, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, zap.NewNop(), observability.NewNoOpRegistry())
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}

	client.SetBaseURL("http://127.0.0.1:1")
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("Expected health check failure for dead endpoint")
	}
}
