package types

// SignalResult is the output of a single signal source.
type SignalResult struct {
	Score      float64     `json:"score"`
	Categories CategorySet `json:"categories"`
	Decision   Decision    `json:"decision"`
	Source     Source      `json:"source"`
}

// TextVerdict is the combined lexical and text-model assessment.
type TextVerdict struct {
	Score           float64     `json:"score"`
	Categories      CategorySet `json:"categories"`
	Decision        Decision    `json:"decision"`
	Notes           string      `json:"notes,omitempty"`
	ModelIdentifier string      `json:"model_identifier,omitempty"`
}

// ImageResult is the assessment of one image. Exactly one of Key or URL is set.
type ImageResult struct {
	Key string `json:"key,omitempty"`
	URL string `json:"url,omitempty"`
	SignalResult
	RawLabels []string `json:"raw_labels,omitempty"`
}

// ImageAggregate summarizes every ImageResult of a request.
type ImageAggregate struct {
	MaxScore   float64     `json:"max_score"`
	Decision   Decision    `json:"decision"`
	Categories CategorySet `json:"categories"`
}

type ImageVerdict struct {
	Images    []ImageResult  `json:"images"`
	Aggregate ImageAggregate `json:"aggregate"`
}

// ModerationVerdict is the final output of the engine.
type ModerationVerdict struct {
	Action     Decision     `json:"action"`
	Score      float64      `json:"score"`
	Categories CategorySet  `json:"categories"`
	Notes      string       `json:"notes,omitempty"`
	Text       TextVerdict  `json:"text"`
	Images     ImageVerdict `json:"images"`

	// Degraded is set when an attempted source failed or was over quota, or
	// the failsafe fired. It is not serialized.
	Degraded bool `json:"-"`
}

// ClampScore bounds s to [0,1]. NaN becomes 0.
func ClampScore(s float64) float64 {
	if s != s || s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
