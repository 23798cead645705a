package gamma

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient("test-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	return client, srv
}

func TestSubmitSendsGenerationRequest(t *testing.T) {
	var gotBody map[string]any
	var gotKey string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/generations" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("X-API-KEY")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"generationId":"gen-123"}`))
	})

	id, err := client.Submit(context.Background(), "prompt text", "pt-br")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "gen-123" {
		t.Fatalf("generation id = %q, want gen-123", id)
	}
	if gotKey != "test-key" {
		t.Fatalf("X-API-KEY = %q", gotKey)
	}
	if gotBody["inputText"] != "prompt text" {
		t.Errorf("inputText = %v", gotBody["inputText"])
	}
	if gotBody["format"] != "presentation" || gotBody["textMode"] != "generate" {
		t.Errorf("format/textMode = %v/%v", gotBody["format"], gotBody["textMode"])
	}
	opts, _ := gotBody["textOptions"].(map[string]any)
	if opts["language"] != "pt-br" {
		t.Errorf("language = %v", opts["language"])
	}
}

func TestSubmitMissingGenerationIDIsError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	if _, err := client.Submit(context.Background(), "p", "en"); err == nil {
		t.Fatal("expected error for missing generationId")
	}
}

func TestSubmitNon2xxIsError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := client.Submit(context.Background(), "p", "en")
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry status: %v", err)
	}
}

func TestPollOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		outcome PollOutcome
		url     string
	}{
		{"completed with url", 200, `{"status":"completed","gammaUrl":"https://gamma.app/docs/abc"}`, OutcomeCompleted, "https://gamma.app/docs/abc"},
		{"completed without url", 200, `{"status":"completed"}`, OutcomeFailed, ""},
		{"failed", 200, `{"status":"failed","error":"generation error"}`, OutcomeFailed, ""},
		{"error state", 200, `{"status":"error"}`, OutcomeFailed, ""},
		{"pending", 200, `{"status":"pending"}`, OutcomeInProgress, ""},
		{"server error", 500, `oops`, OutcomeTransient, ""},
		{"client error", 404, `not found`, OutcomeFatal, ""},
		{"garbage body", 200, `<html>`, OutcomeTransient, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/generations/gen-1" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			res := client.Poll(context.Background(), "gen-1")
			if res.Outcome != tt.outcome {
				t.Fatalf("outcome = %v, want %v (detail %q)", res.Outcome, tt.outcome, res.Detail)
			}
			if res.URL != tt.url {
				t.Errorf("url = %q, want %q", res.URL, tt.url)
			}
		})
	}
}

func TestPollTransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := NewClient("k", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	srv.Close()

	res := client.Poll(context.Background(), "gen-1")
	if res.Outcome != OutcomeTransient {
		t.Fatalf("outcome = %v, want transient", res.Outcome)
	}
}
