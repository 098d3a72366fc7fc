package types

import (
	"encoding/json"
	"sort"
)

// Category is a violation category in the canonical moderation vocabulary.
type Category string

const (
	CategoryViolenceHard       Category = "violence_hard"
	CategoryViolenceSoft       Category = "violence_soft"
	CategorySexualExplicit     Category = "sexual_explicit"
	CategorySexualSoft         Category = "sexual_soft"
	CategorySelfHarm           Category = "self_harm"
	CategoryHate               Category = "hate"
	CategoryHarassment         Category = "harassment"
	CategoryOther              Category = "other"
	CategoryPotentialSensitive Category = "potential_sensitive"
	CategorySafe               Category = "safe"
)

// AllCategories lists the vocabulary in canonical order.
var AllCategories = []Category{
	CategoryViolenceHard,
	CategoryViolenceSoft,
	CategorySexualExplicit,
	CategorySexualSoft,
	CategorySelfHarm,
	CategoryHate,
	CategoryHarassment,
	CategoryOther,
	CategoryPotentialSensitive,
	CategorySafe,
}

// Rank returns the canonical position of the category, used for stable ordering.
// Unknown categories rank -1.
func (c Category) Rank() int {
	for i, known := range AllCategories {
		if c == known {
			return i
		}
	}
	return -1
}

func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	if c.Rank() < 0 {
		return "", false
	}
	return c, true
}

// CategorySet is a set of categories. It always serializes as a sorted array
// so verdicts built from the same inputs are byte-identical.
type CategorySet map[Category]struct{}

func NewCategorySet(cats ...Category) CategorySet {
	s := make(CategorySet, len(cats))
	for _, c := range cats {
		s.Add(c)
	}
	return s
}

// Add inserts c; unknown categories are ignored.
func (s CategorySet) Add(c Category) {
	if c.Rank() < 0 {
		return
	}
	s[c] = struct{}{}
}

func (s CategorySet) Has(c Category) bool {
	_, ok := s[c]
	return ok
}

// Union returns a new set holding every member of s and the others.
func (s CategorySet) Union(others ...CategorySet) CategorySet {
	out := make(CategorySet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	for _, o := range others {
		for c := range o {
			out[c] = struct{}{}
		}
	}
	return out
}

// Violations returns the set without the safe marker.
func (s CategorySet) Violations() CategorySet {
	out := make(CategorySet, len(s))
	for c := range s {
		if c != CategorySafe {
			out[c] = struct{}{}
		}
	}
	return out
}

// Normalized drops the safe marker when any violation is present and
// defaults to {safe} when the set is empty.
func (s CategorySet) Normalized() CategorySet {
	v := s.Violations()
	if len(v) == 0 {
		return NewCategorySet(CategorySafe)
	}
	return v
}

// Sorted returns the members in canonical order.
func (s CategorySet) Sorted() []Category {
	out := make([]Category, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank() < out[j].Rank() })
	return out
}

func (s CategorySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *CategorySet) UnmarshalJSON(data []byte) error {
	var cats []Category
	if err := json.Unmarshal(data, &cats); err != nil {
		return err
	}
	*s = NewCategorySet(cats...)
	return nil
}

// Strings returns the sorted members as plain strings.
func (s CategorySet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, c := range sorted {
		out[i] = string(c)
	}
	return out
}
