// Package reputation maps task quality ratings to bounded reputation changes.
package reputation

const (
	// Min and Max bound every reputation score.
	Min = 0
	Max = 100
	// Bootstrap is the score of an agent the ledger knows nothing about.
	Bootstrap = 50
)

// Delta returns the reputation change earned by a task rated rating (0-100).
//
//	rating >= 90 -> +2
//	70..89       -> +1
//	50..69       ->  0
//	rating < 50  -> -3
func Delta(rating int) int {
	switch {
	case rating >= 90:
		return 2
	case rating >= 70:
		return 1
	case rating >= 50:
		return 0
	default:
		return -3
	}
}

// Clamp bounds score to [Min, Max].
func Clamp(score int) int {
	if score < Min {
		return Min
	}
	if score > Max {
		return Max
	}
	return score
}

// Apply returns the clamped score after a task rated rating, along with the
// unclamped delta that was applied.
func Apply(score, rating int) (int, int) {
	delta := Delta(rating)
	return Clamp(score + delta), delta
}
