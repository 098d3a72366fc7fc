package moderation

import (
	"strings"

	"github.com/af-corp/aegis-moderation/internal/types"
)

// aggregate combines the two branch verdicts. The final action depends only
// on the combined score and the thresholds.
func (e *Engine) aggregate(text types.TextVerdict, images types.ImageVerdict) *types.ModerationVerdict {
	score := types.ClampScore(max(text.Score, images.Aggregate.MaxScore))

	var notes []string
	if text.Notes != "" {
		notes = append(notes, "text: "+text.Notes)
	}
	if n := failsafeNote(images); n != "" {
		notes = append(notes, n)
	}

	return &types.ModerationVerdict{
		Action:     e.settings.Thresholds.Decide(score),
		Score:      score,
		Categories: text.Categories.Union(images.Aggregate.Categories).Normalized(),
		Notes:      strings.Join(notes, "; "),
		Text:       text,
		Images:     images,
	}
}
