package database

import (
	"fmt"
	"math"
)

// Score scales. The UI edits an integer in [0, 1000]; the database stores a
// float in [0, 10]. The factor between them is 100.
const (
	MinDBScore = 0.0
	MaxDBScore = 10.0
	MinUIScore = 0
	MaxUIScore = 1000

	uiScoreFactor = 100.0
)

// UIScoreToDB converts a UI score (850) to the storage scale (8.5).
func UIScoreToDB(u int) (float64, error) {
	if u < MinUIScore || u > MaxUIScore {
		return 0, fmt.Errorf("%w: ui score %d not in [%d, %d]", ErrScoreOutOfRange, u, MinUIScore, MaxUIScore)
	}
	return float64(u) / uiScoreFactor, nil
}

// DBScoreToUI converts a stored score (8.5) to the UI scale (850), rounding
// to the nearest integer.
func DBScoreToUI(f float64) int {
	return int(math.Round(f * uiScoreFactor))
}

// ValidateDBScore checks that f lies on the storage scale.
func ValidateDBScore(f float64) error {
	if math.IsNaN(f) || f < MinDBScore || f > MaxDBScore {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrScoreOutOfRange, f, MinDBScore, MaxDBScore)
	}
	return nil
}
