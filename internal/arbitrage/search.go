package arbitrage

// maxSearchIterations bounds both searches when the tolerance cannot be met,
// e.g. when every trial is accepted and the trial amount shrinks towards zero.
const maxSearchIterations = 256

// Trial is the verdict on one amount tried by BisectMin.
type Trial int

const (
	// TrialAccepted amounts are recorded and the search moves down.
	TrialAccepted Trial = iota
	// TrialTooLarge amounts are not recorded and the search moves down.
	TrialTooLarge
	// TrialTooSmall amounts are not recorded and the search moves up.
	TrialTooSmall
)

// BisectMin looks for the smallest x in (0, upper) that judge accepts.
// It starts at the midpoint, steps down after an accepted or too large trial
// and up after a too small one, halving the step each time, and stops once
// the step falls below tolerance relative to the current trial.
func BisectMin(upper, tolerance float64, judge func(x float64) Trial) (float64, bool) {
	x := upper
	step := upper / 2
	smaller := true
	best, found := 0.0, false

	for i := 0; i < maxSearchIterations && step > tolerance*x; i++ {
		if smaller {
			x -= step
		} else {
			x += step
		}
		step /= 2
		verdict := judge(x)
		smaller = verdict != TrialTooSmall
		if verdict == TrialAccepted && (!found || x < best) {
			best, found = x, true
		}
	}
	return best, found
}

// Maximize performs a local bisection search on [lower, upper] for the point
// with the largest value. eval reports false when the point cannot be valued;
// an unvalued center always moves towards lower.
func Maximize(lower, upper, tolerance float64, eval func(x float64) (float64, bool)) float64 {
	step := (upper - lower) / 2
	center := lower + step
	value, ok := eval(center)

	for i := 0; i < maxSearchIterations && step > tolerance*center; i++ {
		step /= 2

		left := center - step
		leftValue, leftOK := eval(left)
		if !ok || (leftOK && leftValue > value) {
			center, value, ok = left, leftValue, leftOK
			continue
		}

		right := center + step
		rightValue, rightOK := eval(right)
		if rightOK && rightValue > value {
			center, value, ok = right, rightValue, rightOK
		}
	}
	return center
}
