package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/service/config"
)

func alertEvent() model.DispatchEvent {
	return model.DispatchEvent{
		Type:       model.EventAlert,
		Timestamp:  time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		CameraID:   "cam-1",
		CameraName: "Welding Bay",
		Sequence:   7,
		Violation: &model.Violation{
			CameraID:   "cam-1",
			Severity:   model.SeverityHigh,
			MissingPPE: []string{"safety_glasses"},
			Zone:       "welding",
		},
	}
}

func TestDeliverPostsAlertEnvelope(t *testing.T) {
	var got map[string]interface{}
	var contentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("invalid JSON body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc, err := NewHTTP(config.WebhookParameters{URL: srv.URL, TimeoutSecs: 5})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Deliver(context.Background(), alertEvent()); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("content type = %q", contentType)
	}
	if got["event_type"] != "alert" || got["severity"] != "high" {
		t.Errorf("envelope = %v", got)
	}
	if got["alert_type"] != "missing_ppe" {
		t.Errorf("alert_type = %v", got["alert_type"])
	}
	if got["message"] != "missing PPE detected on Welding Bay: safety_glasses" {
		t.Errorf("message = %v", got["message"])
	}
}

func TestDeliverNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc, err := NewHTTP(config.WebhookParameters{URL: srv.URL, TimeoutSecs: 5})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Deliver(context.Background(), alertEvent()); err == nil {
		t.Error("expected an error for a 503 response")
	}
}

func TestAuthHeaders(t *testing.T) {
	cases := []struct {
		name   string
		params config.WebhookParameters
		check  func(t *testing.T, r *http.Request)
	}{
		{
			name:   "basic",
			params: config.WebhookParameters{AuthType: "basic", Username: "ops", Password: "secret"},
			check: func(t *testing.T, r *http.Request) {
				user, pass, ok := r.BasicAuth()
				if !ok || user != "ops" || pass != "secret" {
					t.Errorf("basic auth = %q/%q ok=%v", user, pass, ok)
				}
			},
		},
		{
			name:   "bearer",
			params: config.WebhookParameters{AuthType: "bearer", BearerToken: "tok123"},
			check: func(t *testing.T, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer tok123" {
					t.Errorf("authorization = %q", got)
				}
			},
		},
		{
			name:   "api_key",
			params: config.WebhookParameters{AuthType: "api_key", APIKey: "k-1", APIKeyHeader: "X-Api-Key"},
			check: func(t *testing.T, r *http.Request) {
				if got := r.Header.Get("X-Api-Key"); got != "k-1" {
					t.Errorf("api key header = %q", got)
				}
			},
		},
		{
			name:   "none",
			params: config.WebhookParameters{AuthType: "none"},
			check: func(t *testing.T, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "" {
					t.Errorf("unexpected authorization header %q", got)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req *http.Request
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				req = r.Clone(r.Context())
				w.WriteHeader(http.StatusNoContent)
			}))
			defer srv.Close()

			tc.params.URL = srv.URL
			tc.params.TimeoutSecs = 5
			svc, err := NewHTTP(tc.params)
			if err != nil {
				t.Fatal(err)
			}
			if err := svc.Deliver(context.Background(), alertEvent()); err != nil {
				t.Fatalf("deliver: %v", err)
			}
			tc.check(t, req)
		})
	}
}

func TestEmptyURLRejected(t *testing.T) {
	if _, err := NewHTTP(config.WebhookParameters{}); err == nil {
		t.Error("expected an error for empty URL")
	}
}
