package moderation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/af-corp/aegis-moderation/internal/telemetry"
	"github.com/af-corp/aegis-moderation/internal/types"
)

func (e *Engine) buildImages(ctx context.Context, p *pass, req *types.ModerationRequest) types.ImageVerdict {
	var managedRes, visionRes []types.ImageResult

	if e.settings.SkipVisionUnlessManagedFlagged {
		managedRes = e.classifyManaged(ctx, p, req.ImageKeys)
		if raisedConcern(managedRes) {
			visionRes = e.classifyVision(ctx, p, req.ImageURLs)
		} else if len(req.ImageURLs) > 0 && e.vision != nil {
			e.metrics.RecordSource(string(types.SourceVisionModel), telemetry.OutcomeSkipped)
		}
	} else {
		var g errgroup.Group
		g.Go(func() error {
			managedRes = e.classifyManaged(ctx, p, req.ImageKeys)
			return nil
		})
		g.Go(func() error {
			visionRes = e.classifyVision(ctx, p, req.ImageURLs)
			return nil
		})
		g.Wait()
	}

	return e.imageVerdict(p, req, append(managedRes, visionRes...))
}

// raisedConcern reports whether any managed result is worse than APPROVE.
func raisedConcern(results []types.ImageResult) bool {
	for _, r := range results {
		if r.Decision != types.DecisionApprove {
			return true
		}
	}
	return false
}

func (e *Engine) classifyManaged(ctx context.Context, p *pass, keys []string) []types.ImageResult {
	return e.classifyImages(ctx, p, e.managed, types.SourceManagedVision, keys)
}

func (e *Engine) classifyVision(ctx context.Context, p *pass, urls []string) []types.ImageResult {
	return e.classifyImages(ctx, p, e.vision, types.SourceVisionModel, urls)
}

// calls is the number of upstream calls c makes for refs references.
func calls(c ImageClassifier, refs int) int {
	if cc, ok := c.(CallCounter); ok {
		return max(cc.Calls(refs), 1)
	}
	return refs
}

// classifyImages runs one image source. Any reference left without a result
// marks the verdict degraded.
func (e *Engine) classifyImages(ctx context.Context, p *pass, c ImageClassifier, source types.Source, refs []string) (res []types.ImageResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("image source panicked", "source", source, "panic", r)
			e.metrics.RecordSource(string(source), telemetry.OutcomeFailed)
			p.degrade()
			res = nil
		}
	}()
	if len(refs) == 0 {
		return nil
	}
	if c == nil {
		e.metrics.RecordSource(string(source), telemetry.OutcomeUnavailable)
		return nil
	}
	if !e.allow(ctx, p, source, calls(c, len(refs))) {
		return nil
	}

	res = c.Classify(ctx, refs)
	if len(res) > 0 {
		e.metrics.RecordSource(string(source), telemetry.OutcomeOK)
	} else {
		e.metrics.RecordSource(string(source), telemetry.OutcomeFailed)
	}
	if len(res) < len(refs) {
		p.degrade()
	}
	return res
}

// imageVerdict aggregates per-image results, substituting failsafe results
// when URLs were supplied but nothing at all could be inspected.
func (e *Engine) imageVerdict(p *pass, req *types.ModerationRequest, results []types.ImageResult) types.ImageVerdict {
	if len(results) == 0 && len(req.ImageURLs) > 0 && e.settings.FailsafeEnabled {
		p.degrade()
		results = e.failsafe(req.ImageURLs)
	}
	if results == nil {
		results = []types.ImageResult{}
	}

	agg := neutralAggregate()
	cats := types.NewCategorySet()
	for _, r := range results {
		agg.MaxScore = max(agg.MaxScore, r.Score)
		cats = cats.Union(r.Categories)
	}
	agg.MaxScore = types.ClampScore(agg.MaxScore)
	agg.Categories = cats.Normalized()
	agg.Decision = e.settings.Thresholds.Decide(agg.MaxScore)

	return types.ImageVerdict{Images: results, Aggregate: agg}
}

func (e *Engine) failsafe(urls []string) []types.ImageResult {
	e.logger.Warn("no image could be inspected, applying failsafe", "images", len(urls))
	e.metrics.RecordSource(string(types.SourceFailsafe), telemetry.OutcomeOK)

	score := e.settings.Thresholds.FailsafeScore()
	out := make([]types.ImageResult, len(urls))
	for i, u := range urls {
		out[i] = types.ImageResult{
			URL: u,
			SignalResult: types.SignalResult{
				Score:      score,
				Categories: types.NewCategorySet(types.CategoryPotentialSensitive),
				Decision:   types.DecisionFlag,
				Source:     types.SourceFailsafe,
			},
		}
	}
	return out
}

func failsafeNote(images types.ImageVerdict) string {
	n := 0
	for _, r := range images.Images {
		if r.Source == types.SourceFailsafe {
			n++
		}
	}
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d image(s) could not be inspected and were flagged for review", n)
}
