package core

// Alias confidence steps applied on each confirmed match.
const (
	AliasInitialConfidence = 0.6
	AliasConfidenceStep    = 0.1
	AliasMaxConfidence     = 1.0
)

// NextAliasConfidence returns the confidence after one more confirmation.
func NextAliasConfidence(current float64, exists bool) float64 {
	if !exists {
		return AliasInitialConfidence
	}
	next := current + AliasConfidenceStep
	if next > AliasMaxConfidence {
		return AliasMaxConfidence
	}
	return next
}
