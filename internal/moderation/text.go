package moderation

import (
	"context"
	"strings"

	"github.com/af-corp/aegis-moderation/internal/filter/taxonomy"
	"github.com/af-corp/aegis-moderation/internal/filter/textmodel"
	"github.com/af-corp/aegis-moderation/internal/telemetry"
	"github.com/af-corp/aegis-moderation/internal/types"
)

// buildText merges the lexical floor with the remote classification. The
// decision comes from the thresholds, never from either source.
func (e *Engine) buildText(ctx context.Context, p *pass, text string) types.TextVerdict {
	if strings.TrimSpace(text) == "" {
		return neutralText()
	}

	lexCats := e.lexical.DetectText(text)
	e.metrics.RecordSource(string(types.SourceLexical), telemetry.OutcomeOK)

	remote := e.classifyText(ctx, p, text, len(lexCats) > 0)

	score := types.ClampScore(max(taxonomy.LexicalFloor(lexCats), remote.Score))
	return types.TextVerdict{
		Score:           score,
		Categories:      lexCats.Union(remote.Categories).Normalized(),
		Decision:        e.settings.Thresholds.Decide(score),
		Notes:           remote.Label,
		ModelIdentifier: remote.Model,
	}
}

func (e *Engine) classifyText(ctx context.Context, p *pass, text string, lexicalHit bool) textmodel.Result {
	source := string(types.SourceTextModel)
	switch {
	case e.text == nil:
		e.metrics.RecordSource(source, telemetry.OutcomeUnavailable)
		return textmodel.Result{}
	case e.settings.SkipTextModelWithoutLexicalHit && !lexicalHit:
		e.metrics.RecordSource(source, telemetry.OutcomeSkipped)
		return textmodel.Result{}
	case !e.allow(ctx, p, types.SourceTextModel, 1):
		return textmodel.Result{}
	}

	res := e.text.Classify(ctx, text)
	if res.OK {
		e.metrics.RecordSource(source, telemetry.OutcomeOK)
	} else {
		e.metrics.RecordSource(source, telemetry.OutcomeFailed)
		p.degrade()
	}
	return res
}
