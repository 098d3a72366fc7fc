package vision

// Encoder builds the user-message content for one batch of image URLs.
// Upstreams disagree on how images are embedded, so several encodings are
// tried in order until one produces a parseable answer.
type Encoder struct {
	Name  string
	Build func(prompt string, urls []string) []any
}

// DefaultEncoders is the ordered list of request encodings.
var DefaultEncoders = []Encoder{
	{Name: "image_url_object", Build: imageURLObject},
	{Name: "image_url_string", Build: imageURLString},
	{Name: "image_source_url", Build: imageSourceURL},
}

func textPart(prompt string) map[string]any {
	return map[string]any{"type": "text", "text": prompt}
}

// imageURLObject is the OpenAI chat completions shape.
func imageURLObject(prompt string, urls []string) []any {
	parts := []any{textPart(prompt)}
	for _, u := range urls {
		parts = append(parts, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": u},
		})
	}
	return parts
}

// imageURLString is accepted by several OpenAI-compatible servers.
func imageURLString(prompt string, urls []string) []any {
	parts := []any{textPart(prompt)}
	for _, u := range urls {
		parts = append(parts, map[string]any{
			"type":      "image_url",
			"image_url": u,
		})
	}
	return parts
}

// imageSourceURL is the Anthropic messages shape.
func imageSourceURL(prompt string, urls []string) []any {
	parts := []any{textPart(prompt)}
	for _, u := range urls {
		parts = append(parts, map[string]any{
			"type":   "image",
			"source": map[string]any{"type": "url", "url": u},
		})
	}
	return parts
}
