package types

import (
	"errors"
	"strings"
	"testing"
)

func TestModerationRequest_Validate(t *testing.T) {
	tooManyKeys := make([]string, MaxImageKeys+1)
	for i := range tooManyKeys {
		tooManyKeys[i] = "uploads/img.jpg"
	}

	tests := []struct {
		name  string
		req   ModerationRequest
		valid bool
	}{
		{"empty request", ModerationRequest{}, true},
		{"text only", ModerationRequest{Text: "hello"}, true},
		{"keys and urls", ModerationRequest{
			ImageKeys: []string{"posts/1.jpg"},
			ImageURLs: []string{"https://cdn.example.com/posts/1.jpg?sig=abc"},
		}, true},
		{"text too long", ModerationRequest{Text: strings.Repeat("a", MaxTextLength+1)}, false},
		{"too many keys", ModerationRequest{ImageKeys: tooManyKeys}, false},
		{"blank key", ModerationRequest{ImageKeys: []string{"  "}}, false},
		{"relative url", ModerationRequest{ImageURLs: []string{"/posts/1.jpg"}}, false},
		{"ftp url", ModerationRequest{ImageURLs: []string{"ftp://example.com/1.jpg"}}, false},
	}

	for _, tt := range tests {
		err := tt.req.Validate()
		if tt.valid && err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
		}
		if !tt.valid {
			if err == nil {
				t.Errorf("%s: expected error", tt.name)
			} else if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("%s: expected ErrInvalidRequest, got %v", tt.name, err)
			}
		}
	}
}

func TestModerationRequest_IsEmpty(t *testing.T) {
	if !(&ModerationRequest{Text: "   "}).IsEmpty() {
		t.Error("whitespace-only text should count as empty")
	}
	if (&ModerationRequest{ImageURLs: []string{"https://x/y.png"}}).IsEmpty() {
		t.Error("request with urls is not empty")
	}
}

func TestClampScore(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0.42, 0.42},
		{1.7, 1},
	}
	for _, tt := range tests {
		if got := ClampScore(tt.in); got != tt.want {
			t.Errorf("ClampScore(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
