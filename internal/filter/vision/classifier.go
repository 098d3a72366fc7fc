// Package vision classifies batches of image URLs with a remote
// vision-capable model.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/af-corp/aegis-moderation/internal/extract"
	"github.com/af-corp/aegis-moderation/internal/filter"
	"github.com/af-corp/aegis-moderation/internal/filter/taxonomy"
	"github.com/af-corp/aegis-moderation/internal/router"
	"github.com/af-corp/aegis-moderation/internal/router/adapters"
	"github.com/af-corp/aegis-moderation/internal/types"
)

// DefaultBatchSize is the number of URLs sent in one call.
const DefaultBatchSize = 6

// Completer sends a chat completion for a role.
type Completer interface {
	Complete(ctx context.Context, role string, req adapters.ChatRequest) (*adapters.ChatResponse, error)
}

// SystemInstruction lists the fine-grained taxonomy the model must use.
var SystemInstruction = buildInstruction()

func buildInstruction() string {
	var b strings.Builder
	b.WriteString("You are an image moderation classifier. For every image you receive, assign fine-grained labels from this list (coarse category in parentheses):\n")
	for _, l := range taxonomy.VisionPromptLabels {
		fmt.Fprintf(&b, "- %s (%s)\n", l.Label, l.Category)
	}
	b.WriteString("Score each image from 0 (harmless) to 1 (certainly violating).\n")
	b.WriteString("Respond with only a JSON array with one element per image, in input order:\n")
	b.WriteString(`[{"url": "<image url>", "score": <0..1>, "categories": [<coarse category>...], "details": [{"label": "<fine label>", "score": <0..1>}], "decision": "APPROVE"|"FLAG"|"REJECT"}]`)
	return b.String()
}

const userPrompt = "Classify each of the following images. Reply with the JSON array only."

type item struct {
	URL        string          `json:"url"`
	Score      *float64        `json:"score"`
	Categories []string        `json:"categories"`
	Details    json.RawMessage `json:"details"`
	Decision   string          `json:"decision"`
}

type Classifier struct {
	completer  Completer
	encoders   []Encoder
	thresholds filter.Thresholds
	batchSize  int
	maxTokens  int
	timeout    time.Duration
	logger     *slog.Logger
}

type Option func(*Classifier)

// WithEncoders replaces the ordered encoding list.
func WithEncoders(encoders ...Encoder) Option {
	return func(c *Classifier) { c.encoders = encoders }
}

func WithBatchSize(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(c *Classifier) { c.maxTokens = n }
}

// WithTimeout bounds the time spent on one batch across every encoding.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) { c.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

func NewClassifier(completer Completer, thresholds filter.Thresholds, opts ...Option) *Classifier {
	c := &Classifier{
		completer:  completer,
		encoders:   DefaultEncoders,
		thresholds: thresholds,
		batchSize:  DefaultBatchSize,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Classifier) Name() string { return string(types.SourceVisionModel) }

// Calls returns the number of batches n URLs are split into.
func (c *Classifier) Calls(n int) int {
	return (n + c.batchSize - 1) / c.batchSize
}

// Classify returns one result per URL the model answered for, in input
// order. URLs in a batch whose every encoding failed produce no result.
func (c *Classifier) Classify(ctx context.Context, urls []string) []types.ImageResult {
	if len(urls) == 0 {
		return nil
	}

	var batches [][]string
	for start := 0; start < len(urls); start += c.batchSize {
		end := min(start+c.batchSize, len(urls))
		batches = append(batches, urls[start:end])
	}

	perBatch := make([][]types.ImageResult, len(batches))
	var g errgroup.Group
	for i, batch := range batches {
		g.Go(func() error {
			perBatch[i] = c.classifyBatch(ctx, batch)
			return nil
		})
	}
	g.Wait()

	var out []types.ImageResult
	for _, rs := range perBatch {
		out = append(out, rs...)
	}
	return out
}

// classifyBatch tries each encoding in order. All attempts for one batch
// share a single timeout.
func (c *Classifier) classifyBatch(ctx context.Context, batch []string) []types.ImageResult {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	for _, enc := range c.encoders {
		items, err := c.attempt(ctx, enc, batch)
		if err == nil {
			return c.toResults(batch, items)
		}
		c.logger.Warn("vision encoding failed", "encoding", enc.Name, "images", len(batch), "error", err)
		if ctx.Err() != nil || errors.Is(err, router.ErrNoRoute) {
			break
		}
	}
	return nil
}

func (c *Classifier) attempt(ctx context.Context, enc Encoder, batch []string) ([]item, error) {
	temperature := 0.0
	resp, err := c.completer.Complete(ctx, router.RoleVision, adapters.ChatRequest{
		System:      SystemInstruction,
		Messages:    []adapters.Message{{Role: "user", Content: enc.Build(userPrompt, batch)}},
		MaxTokens:   c.maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, err
	}

	var items []item
	if !extract.Array(resp.Content, &items) {
		return nil, fmt.Errorf("no json array in %s response", resp.Provider)
	}
	return items, nil
}

// toResults maps model items onto the batch. Items naming a batch URL are
// matched first; an item whose url is not in the batch is then attributed to
// the batch URL at the same position if nothing claimed it. Items without a
// score, or with neither categories nor details, are dropped.
func (c *Classifier) toResults(batch []string, items []item) []types.ImageResult {
	inBatch := make(map[string]bool, len(batch))
	for _, u := range batch {
		inBatch[u] = true
	}

	byURL := make(map[string]types.ImageResult, len(batch))
	claim := func(url string, it item) {
		if _, seen := byURL[url]; seen {
			return
		}
		if res, ok := c.toResult(url, it); ok {
			byURL[url] = res
		}
	}
	for _, it := range items {
		if url := strings.TrimSpace(it.URL); inBatch[url] {
			claim(url, it)
		}
	}
	for i, it := range items {
		if inBatch[strings.TrimSpace(it.URL)] || i >= len(batch) {
			continue
		}
		claim(batch[i], it)
	}

	out := make([]types.ImageResult, 0, len(byURL))
	for _, u := range batch {
		if r, ok := byURL[u]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (c *Classifier) toResult(url string, it item) (types.ImageResult, bool) {
	labels := parseDetails(it.Details)
	if it.Score == nil || (len(it.Categories) == 0 && len(labels) == 0) {
		return types.ImageResult{}, false
	}

	cats := types.NewCategorySet()
	var raw []string
	for _, l := range append(append([]string{}, it.Categories...), labels...) {
		raw = append(raw, l)
		if cat, ok := taxonomy.VisionLabel(l); ok {
			cats.Add(cat)
		}
	}

	score := types.ClampScore(*it.Score)
	decision, ok := types.ParseDecision(strings.ToUpper(strings.TrimSpace(it.Decision)))
	if !ok {
		decision = c.thresholds.Decide(score)
	}

	return types.ImageResult{
		URL: url,
		SignalResult: types.SignalResult{
			Score:      score,
			Categories: cats.Normalized(),
			Decision:   decision,
			Source:     types.SourceVisionModel,
		},
		RawLabels: raw,
	}, true
}

// parseDetails accepts either ["label", ...] or [{"label": "...", "score": n}, ...].
func parseDetails(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var plain []string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	var scored []struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal(raw, &scored); err != nil {
		return nil
	}
	out := make([]string, 0, len(scored))
	for _, s := range scored {
		if s.Label != "" {
			out = append(out, s.Label)
		}
	}
	return out
}
