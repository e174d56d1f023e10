// Package score implements the canonical accessibility scoring law. Every
// call site that produces a score must go through Compute so results stay
// comparable across environments.
package score

import (
	"math"

	"github.com/axescan/axescan/internal/model"
)

// Compute maps rule-engine output onto an integer score in [0,100].
//
// A nil violations or passes slice means the engine produced no usable result
// and yields 0 ("unscoreable"), which is distinct from two empty slices
// (zero checks ran, vacuously perfect, 100).
//
// Each violation contributes weight(impact) * max(1, affected nodes) to the
// penalty. The denominator assumes every check could have been a critical
// violation: (violations + passes) * 4. Changing either side would silently
// break comparability with historical scores.
func Compute(violations []model.Violation, passes []model.Pass) int {
	if violations == nil || passes == nil {
		return 0
	}

	total := len(violations) + len(passes)
	if total == 0 {
		return 100
	}

	penalty := 0
	for _, v := range violations {
		nodes := len(v.Nodes)
		if nodes < 1 {
			nodes = 1
		}
		penalty += v.Impact.Weight() * nodes
	}

	maxPenalty := total * 4
	s := int(math.Round(100 - 100*float64(penalty)/float64(maxPenalty)))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
