package reflection

import "fmt"

// movementThreshold is the return percentage below which price movement is
// considered noise rather than a directional move.
const movementThreshold = 2.0

// Outcome classifies a verified prediction.
type Outcome string

const (
	// OutcomeCorrect means the price moved as the decision predicted.
	OutcomeCorrect Outcome = "correct"

	// OutcomeWrong means the price moved against the decision.
	OutcomeWrong Outcome = "wrong"

	// OutcomeNeutral means a directional call saw no meaningful move.
	OutcomeNeutral Outcome = "neutral"

	// OutcomeDeviated means a HOLD saw a large move either way.
	OutcomeDeviated Outcome = "deviated"

	// OutcomeUnclassified means the decision string was not recognized.
	OutcomeUnclassified Outcome = "unclassified"
)

// Verdict is the classification of one verified prediction.
type Verdict struct {
	// Outcome is the classification bucket
	Outcome Outcome

	// Description is the human-readable check result stored with the record
	Description string

	// Good reports whether the prediction counts as correct
	Good bool
}

// Classify evaluates a decision against the realized return percentage.
// Only BUY, SELL and HOLD are recognized; anything else is unclassified.
func Classify(decision string, actualReturn float64) Verdict {
	switch decision {
	case "BUY":
		switch {
		case actualReturn > movementThreshold:
			return Verdict{OutcomeCorrect, "Correct: price rose after BUY", true}
		case actualReturn < -movementThreshold:
			return Verdict{OutcomeWrong, "Wrong: price fell after BUY", false}
		default:
			return Verdict{OutcomeNeutral, "Neutral: limited price movement", false}
		}
	case "SELL":
		switch {
		case actualReturn < -movementThreshold:
			return Verdict{OutcomeCorrect, "Correct: price fell after SELL", true}
		case actualReturn > movementThreshold:
			return Verdict{OutcomeWrong, "Wrong: price rose after SELL", false}
		default:
			return Verdict{OutcomeNeutral, "Neutral: limited price movement", false}
		}
	case "HOLD":
		if actualReturn >= -movementThreshold && actualReturn <= movementThreshold {
			return Verdict{OutcomeCorrect, "Correct: limited movement during HOLD", true}
		}
		return Verdict{
			Outcome:     OutcomeDeviated,
			Description: fmt.Sprintf("Deviated: large movement during HOLD (%.2f%%)", actualReturn),
		}
	default:
		return Verdict{
			Outcome:     OutcomeUnclassified,
			Description: fmt.Sprintf("Unclassified: unrecognized decision %q", decision),
		}
	}
}

// ActualReturn computes the realized return percentage between the recorded
// and current price. A missing or zero initial price yields 0.0 rather than
// a division error.
func ActualReturn(initialPrice, currentPrice float64) float64 {
	if initialPrice == 0 {
		return 0.0
	}
	return (currentPrice - initialPrice) / initialPrice * 100
}
