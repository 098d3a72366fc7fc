// Package textmodel calls a remote text-understanding model and parses its
// classification.
package textmodel

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/af-corp/aegis-moderation/internal/extract"
	"github.com/af-corp/aegis-moderation/internal/router"
	"github.com/af-corp/aegis-moderation/internal/router/adapters"
	"github.com/af-corp/aegis-moderation/internal/types"
)

// SystemInstruction is the fixed contract sent with every request.
const SystemInstruction = `You are a strict content moderation classifier for a social platform.
Classify the user's message. Use only these categories:
violence_hard, violence_soft, sexual_explicit, sexual_soft, self_harm, hate, harassment, other, safe.
Policy:
- REJECT: credible threats or incitement of violence, explicit sexual content, encouragement of self-harm, hate speech against protected groups.
- FLAG: insults, harassment, suggestive content, mild or ambiguous violence, anything a human reviewer should see.
- APPROVE: everything else.
Respond with a single JSON object and nothing else:
{"score": <number 0..1, severity>, "categories": [<category>...], "decision": "APPROVE"|"FLAG"|"REJECT", "label": "<short reason>"}`

// Completer sends a chat completion for a role.
type Completer interface {
	Complete(ctx context.Context, role string, req adapters.ChatRequest) (*adapters.ChatResponse, error)
}

// Result is the parsed remote classification. When OK is false every
// remote-derived field is absent: zero score, no categories, empty decision.
type Result struct {
	OK         bool
	Score      float64
	Categories types.CategorySet
	Decision   types.Decision
	Label      string
	Model      string
}

type response struct {
	Score      float64  `json:"score"`
	Categories []string `json:"categories"`
	Decision   string   `json:"decision"`
	Label      string   `json:"label"`
}

type Classifier struct {
	completer Completer
	maxTokens int
	timeout   time.Duration
	logger    *slog.Logger
}

func NewClassifier(completer Completer, maxTokens int, timeout time.Duration, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		completer: completer,
		maxTokens: maxTokens,
		timeout:   timeout,
		logger:    logger,
	}
}

func (c *Classifier) Name() string { return string(types.SourceTextModel) }

// Classify never returns an error: upstream and parse failures both yield
// an absent Result.
func (c *Classifier) Classify(ctx context.Context, text string) Result {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	temperature := 0.0
	resp, err := c.completer.Complete(callCtx, router.RoleText, adapters.ChatRequest{
		System:      SystemInstruction,
		Messages:    []adapters.Message{{Role: "user", Content: text}},
		MaxTokens:   c.maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		c.logger.Warn("text classifier unavailable", "error", err)
		return Result{}
	}

	var parsed response
	if !extract.Object(resp.Content, &parsed) {
		c.logger.Warn("text classifier returned unparseable output", "model", resp.Model)
		return Result{Model: resp.Model}
	}

	out := Result{
		OK:         true,
		Score:      types.ClampScore(parsed.Score),
		Categories: types.NewCategorySet(),
		Label:      strings.TrimSpace(parsed.Label),
		Model:      resp.Model,
	}
	for _, raw := range parsed.Categories {
		if cat, ok := types.ParseCategory(strings.ToLower(strings.TrimSpace(raw))); ok {
			out.Categories.Add(cat)
		}
	}
	if d, ok := types.ParseDecision(strings.ToUpper(strings.TrimSpace(parsed.Decision))); ok {
		out.Decision = d
	}
	if out.Label == "" && out.Decision != "" {
		out.Label = string(out.Decision)
	}
	return out
}
