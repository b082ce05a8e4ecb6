package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/freedom_case_2/crcollector/internal/models"
)

func TestHTTPAdapterClassifyBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("unexpected auth header %q", got)
		}
		var body struct {
			Model    string        `json:"model"`
			Messages []ChatMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Model != "test-model" || len(body.Messages) != 2 {
			t.Fatalf("unexpected payload %+v", body)
		}
		content := `{"results":[{"index":0,"isRequest":true,"category":"bug","priority":"high","summary":"Login broken"},{"index":7,"isRequest":true}]}`
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
	}))
	defer srv.Close()

	a := HTTPAdapter{Chat: ChatClient{BaseURL: srv.URL, Model: "test-model", APIKey: "secret"}}
	verdicts, _, err := a.ClassifyBatch(context.Background(), []models.ClassifyItem{{ID: "1", Text: "login broken", Author: "kim"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(verdicts) != 1 {
		t.Fatalf("expected out-of-range verdict to be dropped, got %+v", verdicts)
	}
	if verdicts[0].Category != "bug" || verdicts[0].Summary != "Login broken" {
		t.Fatalf("unexpected verdict %+v", verdicts[0])
	}
}

func TestHTTPAdapterRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	a := HTTPAdapter{Chat: ChatClient{BaseURL: srv.URL, Model: "m"}}
	_, _, err := a.ClassifyBatch(context.Background(), []models.ClassifyItem{{ID: "1", Text: "x"}})
	var rl RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rl.RetryAfter.Seconds() != 3 {
		t.Fatalf("unexpected retry after %s", rl.RetryAfter)
	}
}

func TestParseVerdictsMalformed(t *testing.T) {
	if _, err := ParseVerdicts("not json", 1); err == nil {
		t.Fatalf("expected error for malformed content")
	}
	if _, err := ParseVerdicts(`{"results":[]}`, 1); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestBuildBatchPrompt(t *testing.T) {
	p := BuildBatchPrompt([]models.ClassifyItem{
		{Text: "first", Author: "a", Context: "Page A"},
		{Text: "second", Author: "b"},
	})
	if !strings.Contains(p, "[0]") || !strings.Contains(p, "[1]") || !strings.Contains(p, "context: Page A") {
		t.Fatalf("unexpected prompt:\n%s", p)
	}
}
