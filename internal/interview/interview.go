// Package interview implements the orchestration loop: the per-turn state
// machine that decides what to ask next, when to invoke a capability, when to
// change phase, and when to end the interview with a scorecard.
package interview

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mkravets/vetriq/internal/evaluate"
	"github.com/mkravets/vetriq/internal/fusion"
	"github.com/mkravets/vetriq/internal/llm"
	"github.com/mkravets/vetriq/internal/scorecard"
	"github.com/mkravets/vetriq/internal/session"
)

const (
	// maxToolCalls bounds the capability-call loop within one turn. Hitting
	// the bound abandons the turn's reasoning and falls back to a canned
	// question; the session itself continues.
	maxToolCalls = 4

	// defaultResumePhaseQuestions is how many answered questions the résumé
	// phase covers before the loop moves on to role-grounded questions.
	defaultResumePhaseQuestions = 4

	// transcriptWindow is how many recent messages the decision prompt sees.
	transcriptWindow = 8

	contextDocs = 3
)

// Actions the decision model may choose between turns of the tool loop.
const (
	actionAsk        = "ask"
	actionRetrieve   = "retrieve_context"
	actionEvaluate   = "evaluate_answer"
	actionGenerate   = "generate_question"
	actionConclude   = "conclude"
)

// terminationPhrases end the interview when the candidate's whole message
// matches one of them, case-insensitively.
var terminationPhrases = []string{"exit", "quit", "end interview"}

// fallbackQuestions is the deterministic question list used when generation
// fails or the tool loop overruns, indexed by the question counter and clamped
// at the last entry.
var fallbackQuestions = []string{
	"Can you walk me through the project on your résumé you are most proud of?",
	"Tell me about a difficult technical problem you solved recently. What made it hard?",
	"How do you approach debugging an issue you have never seen before?",
	"Describe a time you had to choose between shipping fast and shipping well. What did you decide?",
	"How would you design a system that must keep working when one of its dependencies goes down?",
	"How do you keep your technical skills current?",
}

// Retriever is the fused résumé-context capability.
type Retriever interface {
	Retrieve(ctx context.Context, resumeID, query string) ([]fusion.RankedDocument, error)
}

// Grader is the answer-evaluation capability.
type Grader interface {
	Evaluate(ctx context.Context, question, answer string) evaluate.Evaluation
}

// Loop drives interview turns. It is stateless across sessions and safe for
// concurrent use; all per-interview state lives in the Session.
type Loop struct {
	llm                  llm.Engine
	model                string
	retriever            Retriever
	grader               Grader
	resumePhaseQuestions int
}

// New creates a Loop. resumePhaseQuestions is how many answered questions
// stay résumé-grounded before the role phase begins (default 4).
func New(engine llm.Engine, model string, retriever Retriever, grader Grader, resumePhaseQuestions int) *Loop {
	if resumePhaseQuestions <= 0 {
		resumePhaseQuestions = defaultResumePhaseQuestions
	}
	return &Loop{
		llm:                  engine,
		model:                model,
		retriever:            retriever,
		grader:               grader,
		resumePhaseQuestions: resumePhaseQuestions,
	}
}

// Turn runs one request/response cycle: it takes the candidate's latest
// message (empty means "produce the first question"), updates the session,
// and returns the agent's user-visible reply. The caller is responsible for
// serializing turns of the same session and for checkpointing afterwards.
func (l *Loop) Turn(ctx context.Context, sess *session.Session, candidateInput string) (string, error) {
	if sess.Phase.Terminal() {
		return l.concludedReply(sess), nil
	}

	input := strings.TrimSpace(candidateInput)
	if input != "" {
		sess.Append(session.RoleCandidate, input)
	}

	if isTermination(input) {
		if err := sess.Advance(session.PhaseConcluding); err != nil {
			return "", err
		}
	}
	if sess.Phase == session.PhaseConcluding {
		return l.conclude(sess)
	}

	reply, err := l.runToolLoop(ctx, sess, input)
	if err != nil {
		return "", err
	}
	return reply, nil
}

// runToolLoop is the bounded capability-call loop for one turn. The decision
// model picks the next action; capability results feed back into the next
// decision. Overrunning the bound or a decision failure degrades to the
// fallback question.
func (l *Loop) runToolLoop(ctx context.Context, sess *session.Session, input string) (string, error) {
	// Nothing to grade when there is no pending question or no answer text.
	evaluated := sess.PendingQuestion == "" || input == ""
	var notes []string

	for calls := 0; calls < maxToolCalls; calls++ {
		d, err := l.decide(ctx, sess, input, notes, evaluated)
		if err != nil {
			slog.Warn("turn decision failed, using fallback question", "session", sess.ID, "error", err)
			return l.finishWithFallback(ctx, sess, input, evaluated)
		}

		switch d.Action {
		case actionRetrieve:
			query := d.Argument
			if query == "" {
				query = input
			}
			docs, rerr := l.retriever.Retrieve(ctx, sess.ResumeID, query)
			if rerr != nil {
				slog.Warn("context retrieval failed", "session", sess.ID, "error", rerr)
				continue
			}
			note := fusion.Context(docs, contextDocs)
			if note != "" {
				notes = append(notes, note)
				payload, _ := json.Marshal(map[string]any{"query": query, "documents": len(docs)})
				sess.AppendTool("retrieved résumé context", payload)
			}

		case actionEvaluate:
			if evaluated {
				continue
			}
			if done, reply, cerr := l.gradeAnswer(ctx, sess, input); done {
				return reply, cerr
			}
			evaluated = true

		case actionConclude:
			if !evaluated {
				if done, reply, cerr := l.gradeAnswer(ctx, sess, input); done {
					return reply, cerr
				}
			}
			if err := sess.Advance(session.PhaseConcluding); err != nil {
				return "", err
			}
			return l.conclude(sess)

		case actionGenerate:
			if !evaluated {
				if done, reply, cerr := l.gradeAnswer(ctx, sess, input); done {
					return reply, cerr
				}
				evaluated = true
			}
			q, gerr := l.generateQuestion(ctx, sess, notes)
			if gerr != nil {
				slog.Warn("question generation failed, using fallback", "session", sess.ID, "error", gerr)
				return l.emitQuestion(sess, l.fallbackQuestion(sess)), nil
			}
			return l.emitQuestion(sess, q), nil

		case actionAsk:
			if !evaluated {
				if done, reply, cerr := l.gradeAnswer(ctx, sess, input); done {
					return reply, cerr
				}
				evaluated = true
			}
			if strings.TrimSpace(d.Argument) == "" {
				continue
			}
			return l.emitQuestion(sess, d.Argument), nil

		default:
			slog.Warn("unknown turn action", "session", sess.ID, "action", d.Action)
		}
	}

	slog.Warn("tool-call loop overran its bound", "session", sess.ID, "bound", maxToolCalls)
	return l.finishWithFallback(ctx, sess, input, evaluated)
}

// finishWithFallback closes out a failed turn: the pending answer is still
// graded so the counter stays honest, then a canned question (or the
// scorecard, if the budget is spent) goes out.
func (l *Loop) finishWithFallback(ctx context.Context, sess *session.Session, input string, evaluated bool) (string, error) {
	if !evaluated {
		if done, reply, err := l.gradeAnswer(ctx, sess, input); done {
			return reply, err
		}
	}
	return l.emitQuestion(sess, l.fallbackQuestion(sess)), nil
}

// gradeAnswer records the evaluation for the pending question and handles the
// transitions that may follow: résumé phase to role phase, and conclusion
// once the question budget is spent. done reports that the turn already
// produced its reply (the scorecard).
func (l *Loop) gradeAnswer(ctx context.Context, sess *session.Session, input string) (done bool, reply string, err error) {
	ev := l.grader.Evaluate(ctx, sess.PendingQuestion, input)
	sess.RecordEvaluation(ev)

	payload, _ := json.Marshal(ev)
	sess.AppendTool("answer evaluated", payload)

	if sess.Phase == session.PhaseResumeBased && sess.QuestionCount >= l.resumePhaseQuestions {
		if aerr := sess.Advance(session.PhaseRoleBased); aerr != nil {
			return true, "", aerr
		}
	}
	if sess.QuestionCount >= sess.MaxQuestions {
		if aerr := sess.Advance(session.PhaseConcluding); aerr != nil {
			return true, "", aerr
		}
		reply, err = l.conclude(sess)
		return true, reply, err
	}
	return false, "", nil
}

// conclude aggregates the scorecard, emits the report, and moves the session
// to its terminal phase.
func (l *Loop) conclude(sess *session.Session) (string, error) {
	report := scorecard.Aggregate(sess.Evaluations, sess.MaxQuestions, sess.Role)
	sess.Report = &report

	text := report.Render()
	sess.Append(session.RoleAgent, text)
	if err := sess.Advance(session.PhaseConcluded); err != nil {
		return "", err
	}
	return text, nil
}

func (l *Loop) concludedReply(sess *session.Session) string {
	if sess.Report != nil {
		return sess.Report.Render()
	}
	return "This interview has concluded. Thank you for your time."
}

// emitQuestion normalizes text into a single interrogative, records it as the
// pending question, and appends it to the transcript.
func (l *Loop) emitQuestion(sess *session.Session, text string) string {
	q := singleQuestion(text)
	sess.PendingQuestion = q
	sess.Append(session.RoleAgent, q)
	return q
}

func (l *Loop) fallbackQuestion(sess *session.Session) string {
	i := sess.QuestionCount
	if i >= len(fallbackQuestions) {
		i = len(fallbackQuestions) - 1
	}
	return fallbackQuestions[i]
}

// singleQuestion trims text to one interrogative ending in a question mark:
// everything past the first "?" is dropped, and a missing "?" is appended.
func singleQuestion(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '?'); i >= 0 {
		return strings.TrimSpace(text[:i+1])
	}
	return text + "?"
}

func isTermination(input string) bool {
	normalized := strings.ToLower(strings.TrimSpace(input))
	for _, p := range terminationPhrases {
		if normalized == p {
			return true
		}
	}
	return false
}

// --- decision step ---

type decision struct {
	Action   string `json:"action"`
	Argument string `json:"argument"`
}

func decisionSchema() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]llm.SchemaProperty{
			"action": {
				Type:        "string",
				Description: "one of: ask, retrieve_context, evaluate_answer, generate_question, conclude",
			},
			"argument": {
				Type:        "string",
				Description: "the question text for ask, or the search query for retrieve_context; empty otherwise",
			},
		},
		Required: []string{"action"},
	}
}

// decide asks the model for the next action given the turn's state so far.
func (l *Loop) decide(ctx context.Context, sess *session.Session, input string, notes []string, evaluated bool) (decision, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are conducting a technical interview for the role %q.\n", sess.Role)
	fmt.Fprintf(&sb, "Interview phase: %s. Questions asked so far: %d of %d.\n",
		sess.Phase, sess.QuestionCount, sess.MaxQuestions)
	fmt.Fprintf(&sb, "Question intent for this turn: %s\n", l.questionIntent(sess))

	if sess.PendingQuestion != "" && !evaluated {
		fmt.Fprintf(&sb, "The candidate just answered %q. Their answer must be evaluated before the next question.\n",
			sess.PendingQuestion)
	}
	if len(notes) > 0 {
		fmt.Fprintf(&sb, "Résumé context gathered this turn:\n%s\n", strings.Join(notes, "\n---\n"))
	}
	sb.WriteString(transcriptTail(sess, transcriptWindow))

	sb.WriteString(`Choose the next action:
- "retrieve_context" with a search query, to ground the next question in the résumé
- "evaluate_answer", to grade the candidate's pending answer
- "generate_question", to have the next question composed for the current phase
- "ask" with the exact question text, to put a question to the candidate now
- "conclude", to end the interview and produce the scorecard
Respond with a single JSON object {"action": ..., "argument": ...}.`)

	raw, err := l.llm.Chat(ctx, l.model, []llm.Message{
		{Role: "user", Content: sb.String()},
	}, decisionSchema())
	if err != nil {
		return decision{}, fmt.Errorf("deciding next action: %w", err)
	}

	var d decision
	if uerr := json.Unmarshal([]byte(strings.TrimSpace(raw)), &d); uerr != nil {
		return decision{}, fmt.Errorf("parsing action decision: %w", uerr)
	}
	if d.Action == "" {
		return decision{}, fmt.Errorf("decision missing action")
	}
	return d, nil
}

// questionIntent states the phase-dependent goal for the next question.
func (l *Loop) questionIntent(sess *session.Session) string {
	switch {
	case sess.QuestionCount >= sess.MaxQuestions:
		return "the question budget is spent; conclude the interview"
	case sess.QuestionCount == 0:
		return "ask one question anchored to a concrete item in the candidate's résumé"
	case sess.Phase == session.PhaseResumeBased && sess.QuestionCount <= 2:
		return "ask a technical-depth or problem-solving question about the candidate's experience"
	case sess.Phase == session.PhaseResumeBased:
		return "ask a deeper question about a specific project or technology on the résumé"
	default:
		return fmt.Sprintf("ask a scenario-based question specific to the %s role", sess.Role)
	}
}

func transcriptTail(sess *session.Session, window int) string {
	msgs := sess.Messages
	if len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	if len(msgs) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Recent transcript:\n")
	for _, m := range msgs {
		if m.Role == session.RoleTool {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}
	return sb.String()
}
