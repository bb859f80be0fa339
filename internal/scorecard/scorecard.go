// Package scorecard aggregates per-answer evaluations into the final
// interview report. Aggregation is pure: the same evaluations always produce
// the same report, and building a report does not mutate the inputs.
package scorecard

import (
	"fmt"
	"strings"

	"github.com/mkravets/vetriq/internal/evaluate"
)

// Band labels an average score range. Boundaries sit at 9, 8, 7, 6, 5 and 4;
// anything below 4 is unsatisfactory.
type Band string

const (
	BandOutstanding    Band = "Outstanding"
	BandExcellent      Band = "Excellent"
	BandGood           Band = "Good"
	BandCompetent      Band = "Competent"
	BandFair           Band = "Fair"
	BandMarginal       Band = "Marginal"
	BandUnsatisfactory Band = "Unsatisfactory"
)

// Report is the final interview scorecard.
type Report struct {
	Role           string                `json:"role"`
	Evaluations    []evaluate.Evaluation `json:"evaluations"`
	Answered       int                   `json:"answered"`
	TotalExpected  int                   `json:"total_expected"`
	AverageScore   float64               `json:"average_score"`
	Band           Band                  `json:"band"`
	Recommendation string                `json:"recommendation"`
}

// Aggregate builds a report from the recorded evaluations. With no
// evaluations the average is zero, not NaN. totalExpected is the number of
// questions the interview planned to ask; it feeds the completion-aware
// recommendation.
func Aggregate(evals []evaluate.Evaluation, totalExpected int, role string) Report {
	var sum int
	for _, ev := range evals {
		sum += ev.Score
	}

	avg := 0.0
	if len(evals) > 0 {
		avg = float64(sum) / float64(len(evals))
	}

	band := bandFor(avg)
	return Report{
		Role:           role,
		Evaluations:    evals,
		Answered:       len(evals),
		TotalExpected:  totalExpected,
		AverageScore:   avg,
		Band:           band,
		Recommendation: recommend(band, len(evals), totalExpected),
	}
}

func bandFor(avg float64) Band {
	switch {
	case avg >= 9:
		return BandOutstanding
	case avg >= 8:
		return BandExcellent
	case avg >= 7:
		return BandGood
	case avg >= 6:
		return BandCompetent
	case avg >= 5:
		return BandFair
	case avg >= 4:
		return BandMarginal
	default:
		return BandUnsatisfactory
	}
}

func recommend(band Band, answered, totalExpected int) string {
	if answered == 0 {
		return "No answers were recorded; the interview is inconclusive."
	}

	incomplete := totalExpected > 0 && answered*2 < totalExpected

	var verdict string
	switch band {
	case BandOutstanding, BandExcellent:
		verdict = "Strong hire signal; advance to the next round."
	case BandGood, BandCompetent:
		verdict = "Positive signal; advance with a focused follow-up on the weaker areas."
	case BandFair, BandMarginal:
		verdict = "Mixed signal; a second technical screen is recommended before deciding."
	default:
		verdict = "The performance does not meet the bar for this role."
	}

	if incomplete {
		verdict += fmt.Sprintf(" Note: only %d of %d planned questions were answered, so confidence is limited.",
			answered, totalExpected)
	}
	return verdict
}

// Render formats the report as plain text for terminal and log output.
func (r Report) Render() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Interview Scorecard\n")
	if r.Role != "" {
		fmt.Fprintf(&sb, "Role: %s\n", r.Role)
	}
	fmt.Fprintf(&sb, "Questions answered: %d/%d\n", r.Answered, r.TotalExpected)
	fmt.Fprintf(&sb, "Average score: %.1f/10 (%s)\n\n", r.AverageScore, r.Band)

	for i, ev := range r.Evaluations {
		fmt.Fprintf(&sb, "Q%d: %s\n", i+1, ev.Question)
		fmt.Fprintf(&sb, "  Score: %d/10\n", ev.Score)
		if ev.Feedback != "" {
			fmt.Fprintf(&sb, "  Feedback: %s\n", ev.Feedback)
		}
		if ev.IdealAnswer != "" {
			fmt.Fprintf(&sb, "  Ideal answer: %s\n", ev.IdealAnswer)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Recommendation: %s\n", r.Recommendation)
	return sb.String()
}
