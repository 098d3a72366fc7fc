package types

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// ErrInvalidRequest marks a caller-contract violation. It is the only error
// class Moderate returns besides context cancellation.
var ErrInvalidRequest = errors.New("invalid moderation request")

const (
	MaxImageKeys  = 32
	MaxImageURLs  = 32
	MaxTextLength = 20000
)

// ModerationRequest is the input to a moderation call.
type ModerationRequest struct {
	Text      string   `json:"text,omitempty"`
	ImageKeys []string `json:"image_keys,omitempty"`
	ImageURLs []string `json:"image_urls,omitempty"`
}

// IsEmpty reports whether the request carries nothing to inspect.
func (r *ModerationRequest) IsEmpty() bool {
	return strings.TrimSpace(r.Text) == "" && len(r.ImageKeys) == 0 && len(r.ImageURLs) == 0
}

// Validate checks the request shape. An entirely empty request is valid.
func (r *ModerationRequest) Validate() error {
	if n := utf8.RuneCountInString(r.Text); n > MaxTextLength {
		return fmt.Errorf("%w: text has %d characters, limit is %d", ErrInvalidRequest, n, MaxTextLength)
	}
	if len(r.ImageKeys) > MaxImageKeys {
		return fmt.Errorf("%w: %d image keys, limit is %d", ErrInvalidRequest, len(r.ImageKeys), MaxImageKeys)
	}
	if len(r.ImageURLs) > MaxImageURLs {
		return fmt.Errorf("%w: %d image urls, limit is %d", ErrInvalidRequest, len(r.ImageURLs), MaxImageURLs)
	}
	for i, k := range r.ImageKeys {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("%w: image_keys[%d] is empty", ErrInvalidRequest, i)
		}
	}
	for i, raw := range r.ImageURLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: image_urls[%d] is not an absolute http(s) url", ErrInvalidRequest, i)
		}
	}
	return nil
}
