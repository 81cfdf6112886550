package reflection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name         string
		decision     string
		actualReturn float64
		wantOutcome  Outcome
		wantDesc     string
		wantGood     bool
	}{
		{
			name:         "BUY with strong rise",
			decision:     "BUY",
			actualReturn: 5.0,
			wantOutcome:  OutcomeCorrect,
			wantDesc:     "Correct: price rose after BUY",
			wantGood:     true,
		},
		{
			name:         "BUY with strong fall",
			decision:     "BUY",
			actualReturn: -5.0,
			wantOutcome:  OutcomeWrong,
			wantDesc:     "Wrong: price fell after BUY",
		},
		{
			name:         "BUY at exactly the threshold is neutral",
			decision:     "BUY",
			actualReturn: 2.0,
			wantOutcome:  OutcomeNeutral,
			wantDesc:     "Neutral: limited price movement",
		},
		{
			name:         "BUY with small fall is neutral",
			decision:     "BUY",
			actualReturn: -1.9,
			wantOutcome:  OutcomeNeutral,
			wantDesc:     "Neutral: limited price movement",
		},
		{
			name:         "SELL with strong fall",
			decision:     "SELL",
			actualReturn: -4.2,
			wantOutcome:  OutcomeCorrect,
			wantDesc:     "Correct: price fell after SELL",
			wantGood:     true,
		},
		{
			name:         "SELL with strong rise",
			decision:     "SELL",
			actualReturn: 3.0,
			wantOutcome:  OutcomeWrong,
			wantDesc:     "Wrong: price rose after SELL",
		},
		{
			name:         "SELL with small move is neutral",
			decision:     "SELL",
			actualReturn: 0.5,
			wantOutcome:  OutcomeNeutral,
			wantDesc:     "Neutral: limited price movement",
		},
		{
			name:         "HOLD within band",
			decision:     "HOLD",
			actualReturn: 1.0,
			wantOutcome:  OutcomeCorrect,
			wantDesc:     "Correct: limited movement during HOLD",
			wantGood:     true,
		},
		{
			name:         "HOLD at negative threshold edge",
			decision:     "HOLD",
			actualReturn: -2.0,
			wantOutcome:  OutcomeCorrect,
			wantDesc:     "Correct: limited movement during HOLD",
			wantGood:     true,
		},
		{
			name:         "HOLD with large rise deviates",
			decision:     "HOLD",
			actualReturn: 7.891,
			wantOutcome:  OutcomeDeviated,
			wantDesc:     "Deviated: large movement during HOLD (7.89%)",
		},
		{
			name:         "HOLD with large fall deviates",
			decision:     "HOLD",
			actualReturn: -12.5,
			wantOutcome:  OutcomeDeviated,
			wantDesc:     "Deviated: large movement during HOLD (-12.50%)",
		},
		{
			name:         "unknown decision is unclassified",
			decision:     "ACCUMULATE",
			actualReturn: 5.0,
			wantOutcome:  OutcomeUnclassified,
			wantDesc:     `Unclassified: unrecognized decision "ACCUMULATE"`,
		},
		{
			name:         "lowercase decision is not recognized",
			decision:     "buy",
			actualReturn: 5.0,
			wantOutcome:  OutcomeUnclassified,
			wantDesc:     `Unclassified: unrecognized decision "buy"`,
		},
		{
			name:         "empty decision is unclassified",
			decision:     "",
			actualReturn: 0,
			wantOutcome:  OutcomeUnclassified,
			wantDesc:     `Unclassified: unrecognized decision ""`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			verdict := Classify(tc.decision, tc.actualReturn)
			assert.Equal(t, tc.wantOutcome, verdict.Outcome)
			assert.Equal(t, tc.wantDesc, verdict.Description)
			assert.Equal(t, tc.wantGood, verdict.Good)
		})
	}
}

func TestActualReturn(t *testing.T) {
	testCases := []struct {
		name         string
		initialPrice float64
		currentPrice float64
		want         float64
	}{
		{"rise", 100, 105, 5.0},
		{"fall", 100, 92, -8.0},
		{"flat", 50, 50, 0.0},
		{"zero initial price yields zero", 0, 120, 0.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, ActualReturn(tc.initialPrice, tc.currentPrice), 1e-9)
		})
	}
}
