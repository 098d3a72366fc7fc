package adapters

import (
	"context"
	"fmt"
	"net/http"
)

// Message is one chat turn. Content is either a string or a slice of
// provider-specific content parts, passed to the upstream verbatim.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ChatRequest is the provider-neutral completion request.
type ChatRequest struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse carries the first text completion returned by the upstream.
type ChatResponse struct {
	Model    string
	Provider string
	Content  string
	Usage    Usage
}

// ProviderAdapter transforms requests/responses between the canonical chat
// format and provider-specific API formats.
type ProviderAdapter interface {
	Name() string
	TransformRequest(ctx context.Context, req *ChatRequest) (*http.Request, error)
	TransformResponse(ctx context.Context, resp *http.Response) (*ChatResponse, error)
	// SendRequest sends an HTTP request using the provider's configured client.
	SendRequest(req *http.Request) (*http.Response, error)
}

// StatusError is returned by TransformResponse for non-2xx upstream replies.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// maxErrorBody bounds how much of an error body is kept on StatusError.
const maxErrorBody = 512

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody])
	}
	return string(b)
}
