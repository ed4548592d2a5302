// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package aggregate

import (
	"math"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Weight returns the evidence weight of a study:
//
//	designWeight(design) * ln(1 + max(n, 0))
//
// Unknown designs use cfg.DefaultWeight.
func Weight(design types.StudyDesign, n int, cfg types.BankingConfig) float64 {
	if n < 0 {
		n = 0
	}
	return cfg.DesignWeight(design) * math.Log1p(float64(n))
}

// CardWeight is Weight applied to a card's design and sample size.
func CardWeight(card types.StudyCard, cfg types.BankingConfig) float64 {
	return Weight(card.Design, card.N(), cfg)
}
