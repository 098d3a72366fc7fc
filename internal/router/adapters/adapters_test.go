package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/af-corp/aegis-moderation/internal/config"
)

func TestOpenAIAdapter_TransformRequest(t *testing.T) {
	a := NewOpenAIAdapter(config.ProviderConfig{
		BaseURL: "https://api.example.com/v1",
		APIKey:  "sk-1",
		Headers: map[string]string{"X-Org": "mod", "X-Empty": ""},
	}, http.DefaultClient)

	parts := []any{
		map[string]any{"type": "text", "text": "classify"},
		map[string]any{"type": "image_url", "image_url": map[string]any{"url": "https://img/1.jpg"}},
	}
	req, err := a.TransformRequest(context.Background(), &ChatRequest{
		Model:     "gpt-4o",
		System:    "you are a classifier",
		Messages:  []Message{{Role: "user", Content: parts}},
		MaxTokens: 300,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.URL.String() != "https://api.example.com/v1/chat/completions" {
		t.Errorf("unexpected url %s", req.URL)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer sk-1" {
		t.Errorf("unexpected auth header %q", got)
	}
	if req.Header.Get("X-Org") != "mod" || req.Header.Get("X-Empty") != "" {
		t.Error("custom headers not applied correctly")
	}

	raw, _ := io.ReadAll(req.Body)
	var body struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.MaxTokens != 300 || body.Model != "gpt-4o" {
		t.Errorf("unexpected body %+v", body)
	}
	if len(body.Messages) != 2 || body.Messages[0].Role != "system" {
		t.Fatalf("expected system message first, got %+v", body.Messages)
	}
	var gotParts []map[string]any
	if err := json.Unmarshal(body.Messages[1].Content, &gotParts); err != nil {
		t.Fatalf("content parts not passed through: %v", err)
	}
	if len(gotParts) != 2 || gotParts[1]["type"] != "image_url" {
		t.Errorf("unexpected parts %v", gotParts)
	}
}

func TestOpenAIAdapter_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"{\"score\":0.1}"}}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer srv.Close()

	a := NewOpenAIAdapter(config.ProviderConfig{BaseURL: srv.URL}, srv.Client())
	req, err := a.TransformRequest(context.Background(), &ChatRequest{Model: "gpt-4o-mini", Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := a.SendRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	out, err := a.TransformResponse(context.Background(), resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Content != `{"score":0.1}` || out.Provider != "openai" || out.Usage.TotalTokens != 15 {
		t.Errorf("unexpected response %+v", out)
	}
}

func TestOpenAIAdapter_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"image_url must be an object"}}`))
	}))
	defer srv.Close()

	a := NewOpenAIAdapter(config.ProviderConfig{BaseURL: srv.URL}, srv.Client())
	req, _ := a.TransformRequest(context.Background(), &ChatRequest{Model: "m"})
	resp, err := a.SendRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	_, err = a.TransformResponse(context.Background(), resp)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected StatusError 400, got %v", err)
	}
}

func TestAnthropicAdapter_TransformRequest(t *testing.T) {
	a := NewAnthropicAdapter(config.ProviderConfig{BaseURL: "https://api.anthropic.test/v1", APIKey: "ak"}, http.DefaultClient)

	req, err := a.TransformRequest(context.Background(), &ChatRequest{
		Model:    "claude-haiku",
		System:   "classify",
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if req.URL.Path != "/v1/messages" {
		t.Errorf("unexpected path %s", req.URL.Path)
	}
	if req.Header.Get("x-api-key") != "ak" || req.Header.Get("anthropic-version") != defaultAnthropicVersion {
		t.Error("missing anthropic headers")
	}

	var body anthropicRequestBody
	raw, _ := io.ReadAll(req.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatal(err)
	}
	if body.System != "classify" || body.MaxTokens != 1024 || len(body.Messages) != 1 {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestAnthropicAdapter_TransformResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.WriteString(`{"model":"claude-haiku","content":[{"type":"text","text":"[{\"url\":\"u\",\"score\":0.3}]"}],"usage":{"input_tokens":7,"output_tokens":3}}`)
	resp := rec.Result()

	a := NewAnthropicAdapter(config.ProviderConfig{}, http.DefaultClient)
	out, err := a.TransformResponse(context.Background(), resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Content != `[{"url":"u","score":0.3}]` || out.Usage.TotalTokens != 10 {
		t.Errorf("unexpected response %+v", out)
	}
}
