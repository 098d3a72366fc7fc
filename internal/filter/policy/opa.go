// Package policy evaluates an optional OPA escalation policy over a finished
// verdict. A policy can raise the action, never lower it.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/af-corp/aegis-moderation/internal/types"
)

// Query is the rule consulted for an escalated action.
const Query = "data.moderation.policy.escalate"

const defaultEvaluationTimeout = 100 * time.Millisecond

// Input is the document a policy sees as input.
type Input struct {
	Action          string   `json:"action"`
	Score           float64  `json:"score"`
	Categories      []string `json:"categories"`
	TextScore       float64  `json:"text_score"`
	TextCategories  []string `json:"text_categories"`
	ImageScore      float64  `json:"image_score"`
	ImageCategories []string `json:"image_categories"`
	ImageCount      int      `json:"image_count"`
}

// InputFromVerdict builds the policy input for v.
func InputFromVerdict(v *types.ModerationVerdict) Input {
	return Input{
		Action:          string(v.Action),
		Score:           v.Score,
		Categories:      v.Categories.Strings(),
		TextScore:       v.Text.Score,
		TextCategories:  v.Text.Categories.Strings(),
		ImageScore:      v.Images.Aggregate.MaxScore,
		ImageCategories: v.Images.Aggregate.Categories.Strings(),
		ImageCount:      len(v.Images.Images),
	}
}

// Escalator holds a prepared escalation query.
type Escalator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	timeout  time.Duration
	logger   *slog.Logger
}

func NewEscalator(timeout time.Duration, logger *slog.Logger) *Escalator {
	if timeout <= 0 {
		timeout = defaultEvaluationTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Escalator{timeout: timeout, logger: logger}
}

// Load compiles every .rego file under bundlePath.
func (e *Escalator) Load(bundlePath string) error {
	modules, err := LoadRegoFiles(bundlePath)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		e.logger.Warn("no rego files found", "path", bundlePath)
		return nil
	}
	if err := e.LoadFromModules(modules); err != nil {
		return err
	}
	e.logger.Info("escalation policies loaded", "modules", len(modules))
	return nil
}

// LoadFromModules compiles policies from provided module sources.
func (e *Escalator) LoadFromModules(modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(Query)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()
	return nil
}

// Evaluate returns the action the policy asks for. ok is false when no
// policy is loaded, the rule is undefined, or evaluation fails.
func (e *Escalator) Evaluate(ctx context.Context, input Input) (types.Decision, bool) {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()
	if prepared == nil {
		return "", false
	}

	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		e.logger.Warn("escalation policy evaluation failed", "error", err)
		return "", false
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "", false
	}

	s, _ := results[0].Expressions[0].Value.(string)
	d, ok := types.ParseDecision(strings.ToUpper(s))
	if !ok {
		e.logger.Warn("escalation policy returned unknown action", "value", results[0].Expressions[0].Value)
		return "", false
	}
	return d, true
}

// Apply raises v.Action to the policy's action when that is stricter.
// It reports whether the verdict changed.
func (e *Escalator) Apply(ctx context.Context, v *types.ModerationVerdict) bool {
	if e == nil {
		return false
	}
	d, ok := e.Evaluate(ctx, InputFromVerdict(v))
	if !ok || d.Level() <= v.Action.Level() {
		return false
	}
	v.Action = d
	if v.Notes != "" {
		v.Notes += "; "
	}
	v.Notes += "escalated to " + string(d) + " by policy"
	return true
}
