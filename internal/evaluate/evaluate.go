// Package evaluate scores a candidate's answer against the question that was
// asked, using a weighted rubric. Model output is parsed defensively: a
// malformed response degrades to a neutral score rather than failing the
// interview turn.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/mkravets/vetriq/internal/llm"
)

const (
	// neutralScore is recorded when the model's verdict cannot be parsed at
	// all. The turn still advances.
	neutralScore = 5

	maxScore = 10
)

// Breakdown is the per-dimension rubric split. The weights sum to the overall
// 10-point scale.
type Breakdown struct {
	TechnicalAccuracy    int `json:"technical_accuracy"`    // 0..4
	Depth                int `json:"depth"`                 // 0..3
	Communication        int `json:"communication"`         // 0..2
	PracticalApplication int `json:"practical_application"` // 0..1
}

// Evaluation is the recorded verdict for one question/answer exchange.
type Evaluation struct {
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	IdealAnswer string    `json:"ideal_answer"`
	Score       int       `json:"score"`
	Breakdown   Breakdown `json:"breakdown"`
	Feedback    string    `json:"feedback"`
}

// Evaluator grades answers with a chat model.
type Evaluator struct {
	llm   llm.Engine
	model string
}

func New(engine llm.Engine, model string) *Evaluator {
	return &Evaluator{llm: engine, model: model}
}

const rubricPrompt = `You are a strict technical interviewer grading a candidate's answer.

Question: %s

Candidate's answer: %s

Grade the answer on a 0-10 scale using this rubric:
- technical_accuracy (0-4): is the answer factually correct?
- depth (0-3): does it show understanding beyond the surface?
- communication (0-2): is it clear and well structured?
- practical_application (0-1): does it connect to real-world use?

Respond with a single JSON object:
{"score": <0-10 integer>, "breakdown": {"technical_accuracy": <0-4>, "depth": <0-3>, "communication": <0-2>, "practical_application": <0-1>}, "ideal_answer": "<a model answer in 2-3 sentences>", "feedback": "<1-2 sentences of constructive feedback>"}`

// Evaluate grades answer against question. The returned Evaluation always has
// a score in [0, 10]; model failures and unparseable output degrade to a
// neutral verdict instead of an error so the interview can keep moving.
func (e *Evaluator) Evaluate(ctx context.Context, question, answer string) Evaluation {
	prompt := fmt.Sprintf(rubricPrompt, question, answer)

	raw, err := e.llm.Chat(ctx, e.model, []llm.Message{
		{Role: "user", Content: prompt},
	}, verdictSchema())
	if err != nil {
		slog.Warn("answer evaluation failed", "error", err)
		return neutralEvaluation(question, answer, "The evaluation service was unavailable for this answer.")
	}

	ev := ParseVerdict(raw)
	ev.Question = question
	ev.Answer = answer
	return ev
}

func verdictSchema() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]llm.SchemaProperty{
			"score":        {Type: "integer"},
			"ideal_answer": {Type: "string"},
			"feedback":     {Type: "string"},
		},
		Required: []string{"score", "feedback"},
	}
}

func neutralEvaluation(question, answer, feedback string) Evaluation {
	return Evaluation{
		Question:  question,
		Answer:    answer,
		Score:     neutralScore,
		Breakdown: breakdownFromScore(neutralScore),
		Feedback:  feedback,
	}
}

// ParseVerdict extracts an Evaluation from raw model output, trying
// progressively weaker strategies: parse the whole payload as JSON, then the
// first balanced-brace substring, then independent field scans. If nothing
// yields a score, a neutral verdict is returned. The score is always clamped
// to [0, 10].
func ParseVerdict(raw string) Evaluation {
	if ev, ok := parseWholeJSON(raw); ok {
		return clampEvaluation(ev)
	}
	if ev, ok := parseEmbeddedJSON(raw); ok {
		return clampEvaluation(ev)
	}
	if ev, ok := scanFields(raw); ok {
		return clampEvaluation(ev)
	}

	slog.Warn("unparseable evaluation verdict, recording neutral score", "raw", truncate(raw, 200))
	return Evaluation{
		Score:     neutralScore,
		Breakdown: breakdownFromScore(neutralScore),
		Feedback:  "The evaluation could not be parsed; a neutral score was recorded.",
	}
}

type rawVerdict struct {
	Score       *int      `json:"score"`
	Breakdown   Breakdown `json:"breakdown"`
	IdealAnswer string    `json:"ideal_answer"`
	Feedback    string    `json:"feedback"`
}

func parseWholeJSON(raw string) (Evaluation, bool) {
	return unmarshalVerdict(strings.TrimSpace(raw))
}

// parseEmbeddedJSON finds the first balanced-brace substring and parses that.
// Catches outputs with conversational framing around the JSON object.
func parseEmbeddedJSON(raw string) (Evaluation, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return Evaluation{}, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return unmarshalVerdict(raw[start : i+1])
				}
			}
		}
	}
	return Evaluation{}, false
}

func unmarshalVerdict(s string) (Evaluation, bool) {
	var v rawVerdict
	if err := json.Unmarshal([]byte(s), &v); err != nil || v.Score == nil {
		return Evaluation{}, false
	}
	ev := Evaluation{
		Score:       *v.Score,
		Breakdown:   v.Breakdown,
		IdealAnswer: v.IdealAnswer,
		Feedback:    v.Feedback,
	}
	if ev.Breakdown == (Breakdown{}) {
		ev.Breakdown = breakdownFromScore(ev.Score)
	}
	return ev, true
}

var (
	scoreRe    = regexp.MustCompile(`"score"\s*:\s*(-?\d+)`)
	feedbackRe = regexp.MustCompile(`"feedback"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	idealRe    = regexp.MustCompile(`"ideal_answer"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// scanFields pulls individual fields out of otherwise-broken output with
// regular expressions. A score match is required; the text fields are
// best-effort.
func scanFields(raw string) (Evaluation, bool) {
	m := scoreRe.FindStringSubmatch(raw)
	if m == nil {
		return Evaluation{}, false
	}
	score, err := strconv.Atoi(m[1])
	if err != nil {
		return Evaluation{}, false
	}

	ev := Evaluation{Score: score, Breakdown: breakdownFromScore(score)}
	if fm := feedbackRe.FindStringSubmatch(raw); fm != nil {
		ev.Feedback = unescapeJSONString(fm[1])
	}
	if im := idealRe.FindStringSubmatch(raw); im != nil {
		ev.IdealAnswer = unescapeJSONString(im[1])
	}
	return ev, true
}

func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}

func clampEvaluation(ev Evaluation) Evaluation {
	ev.Score = clamp(ev.Score, 0, maxScore)
	ev.Breakdown.TechnicalAccuracy = clamp(ev.Breakdown.TechnicalAccuracy, 0, 4)
	ev.Breakdown.Depth = clamp(ev.Breakdown.Depth, 0, 3)
	ev.Breakdown.Communication = clamp(ev.Breakdown.Communication, 0, 2)
	ev.Breakdown.PracticalApplication = clamp(ev.Breakdown.PracticalApplication, 0, 1)
	return ev
}

// breakdownFromScore distributes a bare overall score across the rubric
// dimensions proportionally to their weights. Used when the model returned a
// score without a breakdown.
func breakdownFromScore(score int) Breakdown {
	score = clamp(score, 0, maxScore)
	b := Breakdown{
		TechnicalAccuracy:    score * 4 / maxScore,
		Depth:                score * 3 / maxScore,
		Communication:        score * 2 / maxScore,
		PracticalApplication: score * 1 / maxScore,
	}
	// Integer division leaves a remainder of up to three points. Spill it
	// into the dimensions heaviest-first, respecting each cap, so the
	// breakdown always sums to the score.
	remainder := score - b.TechnicalAccuracy - b.Depth - b.Communication - b.PracticalApplication
	dims := []struct {
		v     *int
		limit int
	}{
		{&b.TechnicalAccuracy, 4},
		{&b.Depth, 3},
		{&b.Communication, 2},
		{&b.PracticalApplication, 1},
	}
	for _, d := range dims {
		for remainder > 0 && *d.v < d.limit {
			*d.v++
			remainder--
		}
	}
	return b
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
