package evaluate

import (
	"context"
	"fmt"
	"testing"

	"github.com/mkravets/vetriq/internal/llm"
)

type mockEngine struct {
	reply string
	err   error
}

func (m *mockEngine) Chat(ctx context.Context, model string, msgs []llm.Message, schema *llm.Schema) (string, error) {
	return m.reply, m.err
}
func (m *mockEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return nil, fmt.Errorf("not implemented")
}
func (m *mockEngine) IsRunning(ctx context.Context) bool { return true }

func TestParseVerdict_WholeJSON(t *testing.T) {
	raw := `{"score": 8, "breakdown": {"technical_accuracy": 4, "depth": 2, "communication": 1, "practical_application": 1}, "ideal_answer": "Use context cancellation.", "feedback": "Solid answer."}`

	ev := ParseVerdict(raw)
	if ev.Score != 8 {
		t.Errorf("score = %d, want 8", ev.Score)
	}
	if ev.Breakdown.TechnicalAccuracy != 4 || ev.Breakdown.Depth != 2 {
		t.Errorf("breakdown = %+v", ev.Breakdown)
	}
	if ev.Feedback != "Solid answer." {
		t.Errorf("feedback = %q", ev.Feedback)
	}
	if ev.IdealAnswer != "Use context cancellation." {
		t.Errorf("ideal answer = %q", ev.IdealAnswer)
	}
}

func TestParseVerdict_StrayPrefix(t *testing.T) {
	raw := `Sure, here it is: {"score": 7, "feedback": "Good grasp of goroutines."}`

	ev := ParseVerdict(raw)
	if ev.Score != 7 {
		t.Errorf("score = %d, want 7", ev.Score)
	}
	if ev.Feedback != "Good grasp of goroutines." {
		t.Errorf("feedback = %q", ev.Feedback)
	}
}

func TestParseVerdict_NestedBraces(t *testing.T) {
	raw := `The verdict follows. {"score": 6, "breakdown": {"technical_accuracy": 3, "depth": 2, "communication": 1, "practical_application": 0}, "feedback": "ok"} Hope that helps!`

	ev := ParseVerdict(raw)
	if ev.Score != 6 {
		t.Errorf("score = %d, want 6", ev.Score)
	}
	if ev.Breakdown.Depth != 2 {
		t.Errorf("breakdown = %+v", ev.Breakdown)
	}
}

func TestParseVerdict_FieldScan(t *testing.T) {
	// Truncated JSON that no unmarshal will accept; the field scan still
	// recovers score and feedback.
	raw := `{"score": 4, "feedback": "Answer was vague about \"locking\"", "ideal_answer": "Expla`

	ev := ParseVerdict(raw)
	if ev.Score != 4 {
		t.Errorf("score = %d, want 4", ev.Score)
	}
	if ev.Feedback != `Answer was vague about "locking"` {
		t.Errorf("feedback = %q", ev.Feedback)
	}
}

func TestParseVerdict_Unparseable(t *testing.T) {
	ev := ParseVerdict("I cannot grade this answer.")
	if ev.Score != neutralScore {
		t.Errorf("score = %d, want neutral %d", ev.Score, neutralScore)
	}
	if ev.Feedback == "" {
		t.Error("neutral verdict should carry explanatory feedback")
	}
}

func TestParseVerdict_ClampsScore(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`{"score": 15, "feedback": "x"}`, 10},
		{`{"score": -3, "feedback": "x"}`, 0},
		{`{"score": 0, "feedback": "x"}`, 0},
		{`{"score": 10, "feedback": "x"}`, 10},
	}
	for _, c := range cases {
		if got := ParseVerdict(c.raw).Score; got != c.want {
			t.Errorf("ParseVerdict(%q).Score = %d, want %d", c.raw, got, c.want)
		}
	}
}

func TestParseVerdict_ClampsBreakdown(t *testing.T) {
	raw := `{"score": 9, "breakdown": {"technical_accuracy": 9, "depth": -1, "communication": 5, "practical_application": 2}, "feedback": "x"}`

	b := ParseVerdict(raw).Breakdown
	if b.TechnicalAccuracy != 4 || b.Depth != 0 || b.Communication != 2 || b.PracticalApplication != 1 {
		t.Errorf("breakdown not clamped: %+v", b)
	}
}

func TestParseVerdict_SynthesizesBreakdown(t *testing.T) {
	for score := 0; score <= 10; score++ {
		ev := ParseVerdict(fmt.Sprintf(`{"score": %d, "feedback": "ok"}`, score))
		b := ev.Breakdown
		if sum := b.TechnicalAccuracy + b.Depth + b.Communication + b.PracticalApplication; sum != score {
			t.Errorf("score %d: synthesized breakdown sums to %d: %+v", score, sum, b)
		}
		if b.TechnicalAccuracy > 4 || b.Depth > 3 || b.Communication > 2 || b.PracticalApplication > 1 {
			t.Errorf("score %d: dimension over cap: %+v", score, b)
		}
	}
}

func TestEvaluate_RecordsQuestionAndAnswer(t *testing.T) {
	eng := &mockEngine{reply: `{"score": 9, "feedback": "great"}`}
	e := New(eng, "m")

	ev := e.Evaluate(context.Background(), "What is a mutex?", "A mutual exclusion lock.")
	if ev.Question != "What is a mutex?" {
		t.Errorf("question = %q", ev.Question)
	}
	if ev.Answer != "A mutual exclusion lock." {
		t.Errorf("answer = %q", ev.Answer)
	}
	if ev.Score != 9 {
		t.Errorf("score = %d, want 9", ev.Score)
	}
}

func TestEvaluate_ModelFailureDegradesToNeutral(t *testing.T) {
	eng := &mockEngine{err: fmt.Errorf("connection refused")}
	e := New(eng, "m")

	ev := e.Evaluate(context.Background(), "q", "a")
	if ev.Score != neutralScore {
		t.Errorf("score = %d, want neutral %d", ev.Score, neutralScore)
	}
	if ev.Question != "q" || ev.Answer != "a" {
		t.Errorf("question/answer not preserved: %+v", ev)
	}
}
