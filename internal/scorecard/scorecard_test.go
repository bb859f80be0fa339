package scorecard

import (
	"reflect"
	"strings"
	"testing"

	"github.com/mkravets/vetriq/internal/evaluate"
)

func evals(scores ...int) []evaluate.Evaluation {
	out := make([]evaluate.Evaluation, len(scores))
	for i, s := range scores {
		out[i] = evaluate.Evaluation{Question: "q", Answer: "a", Score: s}
	}
	return out
}

func TestAggregate_Average(t *testing.T) {
	r := Aggregate(evals(6, 8, 10), 10, "Backend Engineer")
	if r.AverageScore != 8 {
		t.Errorf("average = %v, want 8", r.AverageScore)
	}
	if r.Answered != 3 || r.TotalExpected != 10 {
		t.Errorf("answered/expected = %d/%d", r.Answered, r.TotalExpected)
	}
	if r.Role != "Backend Engineer" {
		t.Errorf("role = %q", r.Role)
	}
}

func TestAggregate_EmptyIsZeroNotNaN(t *testing.T) {
	r := Aggregate(nil, 10, "")
	if r.AverageScore != 0 {
		t.Errorf("average = %v, want 0", r.AverageScore)
	}
	if r.Band != BandUnsatisfactory {
		t.Errorf("band = %q", r.Band)
	}
	if !strings.Contains(r.Recommendation, "inconclusive") {
		t.Errorf("recommendation = %q", r.Recommendation)
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	in := evals(7, 9)
	first := Aggregate(in, 10, "SRE")
	second := Aggregate(in, 10, "SRE")
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated aggregation produced different reports")
	}
}

func TestBandBoundaries(t *testing.T) {
	cases := []struct {
		avg  float64
		want Band
	}{
		{10, BandOutstanding},
		{9, BandOutstanding},
		{8.9, BandExcellent},
		{8, BandExcellent},
		{7, BandGood},
		{6, BandCompetent},
		{5, BandFair},
		{4, BandMarginal},
		{3.9, BandUnsatisfactory},
		{0, BandUnsatisfactory},
	}
	for _, c := range cases {
		if got := bandFor(c.avg); got != c.want {
			t.Errorf("bandFor(%v) = %q, want %q", c.avg, got, c.want)
		}
	}
}

func TestRecommend_FlagsIncompleteInterview(t *testing.T) {
	r := Aggregate(evals(9, 9), 10, "")
	if !strings.Contains(r.Recommendation, "2 of 10") {
		t.Errorf("recommendation does not flag early exit: %q", r.Recommendation)
	}

	full := Aggregate(evals(9, 9, 9, 9, 9, 9, 9, 9, 9, 9), 10, "")
	if strings.Contains(full.Recommendation, "confidence is limited") {
		t.Errorf("complete interview flagged as incomplete: %q", full.Recommendation)
	}
}

func TestRender(t *testing.T) {
	in := []evaluate.Evaluation{{
		Question: "What is a goroutine?",
		Answer:   "A lightweight thread.",
		Score:    8,
		Feedback: "Concise and correct.",
	}}
	out := Aggregate(in, 10, "Backend Engineer").Render()

	for _, want := range []string{
		"Role: Backend Engineer",
		"Questions answered: 1/10",
		"8.0/10",
		"What is a goroutine?",
		"Concise and correct.",
		"Recommendation:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered report missing %q:\n%s", want, out)
		}
	}
}
