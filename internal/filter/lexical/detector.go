// Package lexical is the deterministic pattern-based text detector.
package lexical

import (
	"github.com/af-corp/aegis-moderation/internal/normalize"
	"github.com/af-corp/aegis-moderation/internal/types"
)

// Detection records a matched pattern group.
type Detection struct {
	RuleName string
	Category types.Category
	Start    int
	End      int
	// Normalized is true when the match was found in the folded text only.
	Normalized bool
}

// Detector evaluates pattern groups against text. Go regexps run in linear
// time, so evaluation is bounded by input length.
type Detector struct {
	rules []Rule
}

// NewDetector creates a detector with the default pattern groups.
func NewDetector() *Detector {
	return &Detector{rules: DefaultRules()}
}

// NewDetectorWithRules creates a detector with custom pattern groups.
func NewDetectorWithRules(rules []Rule) *Detector {
	return &Detector{rules: rules}
}

func (d *Detector) Name() string { return string(types.SourceLexical) }

// Scan returns every rule hit, testing raw text first and then its folded form.
func (d *Detector) Scan(raw, normalized string) []Detection {
	var detections []Detection
	for _, r := range d.rules {
		if loc := r.Regex.FindStringIndex(raw); loc != nil {
			detections = append(detections, Detection{
				RuleName: r.Name,
				Category: r.Category,
				Start:    loc[0],
				End:      loc[1],
			})
			continue
		}
		if normalized == raw {
			continue
		}
		if loc := r.Regex.FindStringIndex(normalized); loc != nil {
			detections = append(detections, Detection{
				RuleName:   r.Name,
				Category:   r.Category,
				Start:      loc[0],
				End:        loc[1],
				Normalized: true,
			})
		}
	}
	return detections
}

// Detect returns the set of matched categories, possibly empty.
func (d *Detector) Detect(raw, normalized string) types.CategorySet {
	cats := types.NewCategorySet()
	for _, det := range d.Scan(raw, normalized) {
		cats.Add(det.Category)
	}
	return cats
}

// DetectText folds text and runs Detect on both forms.
func (d *Detector) DetectText(text string) types.CategorySet {
	return d.Detect(text, normalize.Fold(text))
}
