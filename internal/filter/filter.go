// Package filter holds the decision thresholds shared by every signal source.
package filter

import (
	"fmt"

	"github.com/af-corp/aegis-moderation/internal/types"
)

const (
	DefaultSoftThreshold = 0.60
	DefaultHardThreshold = 0.85
)

// Thresholds are the score cutoffs separating APPROVE/FLAG (Soft) and
// FLAG/REJECT (Hard).
type Thresholds struct {
	Soft float64 `yaml:"soft"`
	Hard float64 `yaml:"hard"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Soft: DefaultSoftThreshold, Hard: DefaultHardThreshold}
}

// Validate checks 0 < soft <= hard <= 1.
func (t Thresholds) Validate() error {
	if t.Soft <= 0 || t.Soft > 1 || t.Hard <= 0 || t.Hard > 1 {
		return fmt.Errorf("thresholds must be in (0,1]: soft=%.2f hard=%.2f", t.Soft, t.Hard)
	}
	if t.Soft > t.Hard {
		return fmt.Errorf("soft threshold %.2f exceeds hard threshold %.2f", t.Soft, t.Hard)
	}
	return nil
}

// Decide classifies a score. It is monotonic in score.
func (t Thresholds) Decide(score float64) types.Decision {
	switch {
	case score >= t.Hard:
		return types.DecisionReject
	case score >= t.Soft:
		return types.DecisionFlag
	default:
		return types.DecisionApprove
	}
}

// FailsafeScore is the score given to images that could not be inspected.
func (t Thresholds) FailsafeScore() float64 {
	return types.ClampScore(t.Soft + 0.01)
}
