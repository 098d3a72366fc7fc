// Package moderation combines every signal source into a single verdict.
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/af-corp/aegis-moderation/internal/config"
	"github.com/af-corp/aegis-moderation/internal/filter"
	"github.com/af-corp/aegis-moderation/internal/filter/lexical"
	"github.com/af-corp/aegis-moderation/internal/filter/textmodel"
	"github.com/af-corp/aegis-moderation/internal/telemetry"
	"github.com/af-corp/aegis-moderation/internal/types"
)

// TextClassifier is the remote text classification source.
type TextClassifier interface {
	Classify(ctx context.Context, text string) textmodel.Result
}

// ImageClassifier is an image source. The managed source takes storage keys,
// the vision classifier takes URLs.
type ImageClassifier interface {
	Classify(ctx context.Context, refs []string) []types.ImageResult
}

// Escalator may raise the action of a finished verdict.
type Escalator interface {
	Apply(ctx context.Context, v *types.ModerationVerdict) bool
}

// Quota decides whether a source may make the given number of upstream
// calls, charging them when it may.
type Quota interface {
	Allow(ctx context.Context, source string, calls int) bool
}

// CallCounter is implemented by image sources whose upstream call count
// differs from one per reference.
type CallCounter interface {
	Calls(refs int) int
}

// pass records what happened to one request across both branches.
type pass struct {
	degraded atomic.Bool
}

// degrade marks the verdict as built without a source that was attempted.
func (p *pass) degrade() { p.degraded.Store(true) }

// Settings is the process-wide engine configuration. An Engine never
// mutates it.
type Settings struct {
	Thresholds                     filter.Thresholds
	SkipTextModelWithoutLexicalHit bool
	SkipVisionUnlessManagedFlagged bool
	FailsafeEnabled                bool
}

func DefaultSettings() Settings {
	return Settings{
		Thresholds:      filter.DefaultThresholds(),
		FailsafeEnabled: true,
	}
}

func SettingsFromConfig(cfg config.ModerationConfig) Settings {
	return Settings{
		Thresholds:                     filter.Thresholds{Soft: cfg.SoftThreshold, Hard: cfg.HardThreshold},
		SkipTextModelWithoutLexicalHit: cfg.SkipTextModelWithoutLexicalHit,
		SkipVisionUnlessManagedFlagged: cfg.SkipVisionUnlessManagedFlagged,
		FailsafeEnabled:                cfg.FailsafeEnabled,
	}
}

// Engine evaluates moderation requests. It is safe for concurrent use.
type Engine struct {
	settings Settings
	lexical  *lexical.Detector
	text     TextClassifier
	managed  ImageClassifier
	vision   ImageClassifier
	policy   Escalator
	quota    Quota
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

type Option func(*Engine)

func WithTextClassifier(c TextClassifier) Option { return func(e *Engine) { e.text = c } }

func WithManagedSource(c ImageClassifier) Option { return func(e *Engine) { e.managed = c } }

func WithVisionClassifier(c ImageClassifier) Option { return func(e *Engine) { e.vision = c } }

func WithEscalator(p Escalator) Option { return func(e *Engine) { e.policy = p } }

func WithQuota(q Quota) Option { return func(e *Engine) { e.quota = q } }

func WithMetrics(m *telemetry.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithLexicalDetector replaces the built-in rule set.
func WithLexicalDetector(d *lexical.Detector) Option { return func(e *Engine) { e.lexical = d } }

// New builds an engine. Sources that are not supplied are treated as
// unavailable.
func New(settings Settings, opts ...Option) (*Engine, error) {
	if err := settings.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("engine settings: %w", err)
	}
	e := &Engine{
		settings: settings,
		lexical:  lexical.NewDetector(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/af-corp/aegis-moderation/internal/moderation"),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Moderate returns the verdict for req. The only errors are a wrapped
// types.ErrInvalidRequest, returned before any remote call, and ctx.Err()
// when the caller gives up; no partial verdict is returned in either case.
// A verdict built while an attempted source failed, or with failsafe
// results, has Degraded set.
func (e *Engine) Moderate(ctx context.Context, req *types.ModerationRequest) (*types.ModerationVerdict, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", types.ErrInvalidRequest)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.IsEmpty() {
		return emptyVerdict(), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "moderation.Moderate", trace.WithAttributes(
		attribute.Int("moderation.text_runes", len([]rune(req.Text))),
		attribute.Int("moderation.image_keys", len(req.ImageKeys)),
		attribute.Int("moderation.image_urls", len(req.ImageURLs)),
	))
	defer span.End()
	start := time.Now()

	var (
		text   types.TextVerdict
		images types.ImageVerdict
		p      pass
		g      errgroup.Group
		done   = make(chan struct{})
	)
	g.Go(func() error {
		text = e.runText(ctx, &p, req.Text)
		return nil
	})
	g.Go(func() error {
		images = e.runImages(ctx, &p, req)
		return nil
	})
	go func() {
		g.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		span.SetStatus(codes.Error, "cancelled")
		return nil, ctx.Err()
	case <-done:
	}
	// A branch may have finished only because ctx expired underneath it.
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return nil, err
	}

	v := e.aggregate(text, images)
	v.Degraded = p.degraded.Load()
	if e.policy != nil {
		e.policy.Apply(ctx, v)
	}

	durationMs := float64(time.Since(start).Milliseconds())
	e.metrics.RecordVerdict(string(v.Action), durationMs)
	span.SetAttributes(
		attribute.String("moderation.action", string(v.Action)),
		attribute.Float64("moderation.score", v.Score),
	)
	e.logger.Debug("moderation verdict",
		"action", v.Action,
		"score", v.Score,
		"categories", v.Categories.Strings(),
		"degraded", v.Degraded,
		"duration_ms", durationMs,
	)
	return v, nil
}

// runText evaluates the text branch. A panic degrades to a neutral verdict.
func (e *Engine) runText(ctx context.Context, p *pass, text string) (out types.TextVerdict) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("text branch panicked", "panic", r)
			p.degrade()
			out = neutralText()
		}
	}()
	ctx, span := e.tracer.Start(ctx, "moderation.text")
	defer span.End()
	return e.buildText(ctx, p, text)
}

// runImages evaluates the image branch. A panic degrades to the verdict an
// image branch with no results would produce, failsafe included.
func (e *Engine) runImages(ctx context.Context, p *pass, req *types.ModerationRequest) (out types.ImageVerdict) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("image branch panicked", "panic", r)
			p.degrade()
			out = e.imageVerdict(p, req, nil)
		}
	}()
	ctx, span := e.tracer.Start(ctx, "moderation.images")
	defer span.End()
	return e.buildImages(ctx, p, req)
}

// allow charges calls upstream calls to the source's quota. A denied source
// is skipped and the verdict marked degraded.
func (e *Engine) allow(ctx context.Context, p *pass, source types.Source, calls int) bool {
	if e.quota == nil || e.quota.Allow(ctx, string(source), calls) {
		return true
	}
	e.logger.Warn("upstream quota exhausted, skipping source", "source", source, "calls", calls)
	e.metrics.RecordSource(string(source), telemetry.OutcomeUnavailable)
	p.degrade()
	return false
}

func emptyVerdict() *types.ModerationVerdict {
	return &types.ModerationVerdict{
		Action:     types.DecisionApprove,
		Score:      0,
		Categories: types.NewCategorySet(types.CategorySafe),
		Text:       neutralText(),
		Images: types.ImageVerdict{
			Images:    []types.ImageResult{},
			Aggregate: neutralAggregate(),
		},
	}
}

func neutralText() types.TextVerdict {
	return types.TextVerdict{
		Score:      0,
		Categories: types.NewCategorySet(types.CategorySafe),
		Decision:   types.DecisionApprove,
	}
}

func neutralAggregate() types.ImageAggregate {
	return types.ImageAggregate{
		MaxScore:   0,
		Decision:   types.DecisionApprove,
		Categories: types.NewCategorySet(types.CategorySafe),
	}
}
