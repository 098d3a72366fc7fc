// Package taxonomy maps each upstream vocabulary onto the canonical category set.
//
// Three tables live here side by side: heuristic floor scores for lexical
// matches, label families for the managed label-detection service, and
// fine-grained label families for the vision model.
package taxonomy

import (
	"strings"

	"github.com/af-corp/aegis-moderation/internal/types"
)

// lexicalFloors are the minimum scores implied by a lexical match.
var lexicalFloors = map[types.Category]float64{
	types.CategoryViolenceHard:   0.70,
	types.CategorySexualExplicit: 0.70,
	types.CategoryHate:           0.70,
	types.CategorySelfHarm:       0.65,
	types.CategoryHarassment:     0.60,
	types.CategoryViolenceSoft:   0.40,
}

// LexicalFloor returns the highest floor over the matched categories.
func LexicalFloor(cats types.CategorySet) float64 {
	floor := 0.0
	for c := range cats {
		if f := lexicalFloors[c]; f > floor {
			floor = f
		}
	}
	return floor
}

// Family maps any label containing one of Needles to Category.
type Family struct {
	Needles  []string
	Category types.Category
}

func (f Family) matches(label string) bool {
	for _, n := range f.Needles {
		if strings.Contains(label, n) {
			return true
		}
	}
	return false
}

// managedFamilies is evaluated in order; the first family that matches wins.
var managedFamilies = []Family{
	{Needles: []string{"sexual", "nudity", "explicit", "suggestive"}, Category: types.CategorySexualExplicit},
	{Needles: []string{"violence", "gore", "blood"}, Category: types.CategoryViolenceHard},
	{Needles: []string{"hate", "weapon", "drugs"}, Category: types.CategoryHate},
}

// ManagedLabel maps a managed-service label and its confidence (0-100) to a
// category and score. ok is false when the label belongs to no family.
func ManagedLabel(label string, confidence float64) (cat types.Category, score float64, ok bool) {
	l := strings.ToLower(label)
	for _, f := range managedFamilies {
		if !f.matches(l) {
			continue
		}
		switch f.Category {
		case types.CategoryHate:
			return f.Category, 0.65, true
		default:
			if confidence >= 90 {
				return f.Category, 0.9, true
			}
			return f.Category, 0.7, true
		}
	}
	return "", 0, false
}

// visionFamilies is evaluated in order, so the explicit families must come
// before the broader ones that share substrings with them.
var visionFamilies = []Family{
	{Needles: []string{"nudity_explicit", "sexual_activity", "sexual_explicit", "porn", "genital"}, Category: types.CategorySexualExplicit},
	{Needles: []string{"nudity", "suggestive", "sexual", "lingerie", "underwear"}, Category: types.CategorySexualSoft},
	{Needles: []string{"self_harm", "self-harm", "suicide", "cutting"}, Category: types.CategorySelfHarm},
	{Needles: []string{"violence_graphic", "gore", "blood", "corpse", "weapon_threat", "violence_hard"}, Category: types.CategoryViolenceHard},
	{Needles: []string{"violence", "fight", "weapon"}, Category: types.CategoryViolenceSoft},
	{Needles: []string{"hate", "extremis", "nazi", "terror"}, Category: types.CategoryHate},
	{Needles: []string{"harass", "bully", "insult"}, Category: types.CategoryHarassment},
	{Needles: []string{"drug", "alcohol", "gambling", "other"}, Category: types.CategoryOther},
	{Needles: []string{"sensitive"}, Category: types.CategoryPotentialSensitive},
}

// VisionLabel maps a vision-model label, fine-grained or coarse, to a category.
func VisionLabel(label string) (types.Category, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	if c, ok := types.ParseCategory(l); ok {
		return c, true
	}
	for _, f := range visionFamilies {
		if f.matches(l) {
			return f.Category, true
		}
	}
	if l == "none" || l == "benign" {
		return types.CategorySafe, true
	}
	return "", false
}

// VisionPromptLabels lists the fine-grained labels the vision model is asked
// to use, each with its coarse category.
var VisionPromptLabels = []struct {
	Label    string
	Category types.Category
}{
	{"nudity_explicit", types.CategorySexualExplicit},
	{"sexual_activity", types.CategorySexualExplicit},
	{"nudity_partial", types.CategorySexualSoft},
	{"suggestive", types.CategorySexualSoft},
	{"violence_graphic", types.CategoryViolenceHard},
	{"gore", types.CategoryViolenceHard},
	{"weapon_threat", types.CategoryViolenceHard},
	{"violence_mild", types.CategoryViolenceSoft},
	{"self_harm", types.CategorySelfHarm},
	{"hate_symbol", types.CategoryHate},
	{"extremism", types.CategoryHate},
	{"harassment", types.CategoryHarassment},
	{"drugs", types.CategoryOther},
	{"sensitive_unclear", types.CategoryPotentialSensitive},
	{"safe", types.CategorySafe},
}
