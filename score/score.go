// Package score derives impact metrics from on-chain plant state. The score
// is a pure function of ledger data, not a separate reputation system.
package score

import "math"

// ImpactScore is the derived metric bundle returned on the premium tier.
type ImpactScore struct {
	// GrowthVelocity is growth points per block since the last watering,
	// clamped to 1.
	GrowthVelocity float64 `json:"growthVelocity"`

	// ConsistencyScore is progress toward the graduation total.
	ConsistencyScore float64 `json:"consistencyScore"`

	// ImpactReadiness is the graduation percentage.
	ImpactReadiness float64 `json:"impactReadiness"`

	// OverallScore is the weighted blend of the three components.
	OverallScore float64 `json:"overallScore"`
}

// maxGrowth is the growth-point total at which a plant graduates to a Tree.
const maxGrowth = 28

// Compute derives the impact score from raw plant state at the given chain
// height. Weights: velocity 0.3, consistency 0.4, readiness 0.3.
func Compute(growthPoints, lastWaterBlock, currentBlock uint64) ImpactScore {
	blocksSince := uint64(1)
	if currentBlock > lastWaterBlock {
		blocksSince = currentBlock - lastWaterBlock
	}

	velocity := math.Min(float64(growthPoints)/float64(blocksSince), 1)
	consistency := float64(growthPoints) / maxGrowth
	readiness := consistency * 100
	overall := velocity*0.3 + consistency*0.4 + (readiness/100)*0.3

	return ImpactScore{
		GrowthVelocity:   round(velocity, 1000),
		ConsistencyScore: round(consistency, 1000),
		ImpactReadiness:  round(readiness, 10),
		OverallScore:     round(overall, 1000),
	}
}

func round(v float64, scale float64) float64 {
	return math.Round(v*scale) / scale
}
