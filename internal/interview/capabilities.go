package interview

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkravets/vetriq/internal/fusion"
	"github.com/mkravets/vetriq/internal/llm"
	"github.com/mkravets/vetriq/internal/session"
)

// InferRole identifies the target role from a sample of the résumé's opening
// content. Returns the bare role title, e.g. "Backend Engineer".
func InferRole(ctx context.Context, eng llm.Engine, model, resumeSample string) (string, error) {
	prompt := fmt.Sprintf(
		"Based on the following résumé excerpt, identify the single job role this candidate "+
			"is best suited for. Respond with the role title only, nothing else.\n\n%s", resumeSample)

	raw, err := eng.Chat(ctx, model, []llm.Message{
		{Role: "user", Content: prompt},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("inferring role: %w", err)
	}

	role := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	if role == "" {
		return "", fmt.Errorf("inferring role: empty response")
	}
	// Keep only the first line in case the model elaborates anyway.
	if i := strings.IndexByte(role, '\n'); i >= 0 {
		role = strings.TrimSpace(role[:i])
	}
	return role, nil
}

// generateQuestion composes the next question for the session's phase:
// résumé-grounded while the interview is in its résumé phase, role-grounded
// afterwards. notes is the résumé context gathered earlier in the turn.
func (l *Loop) generateQuestion(ctx context.Context, sess *session.Session, notes []string) (string, error) {
	grounding := strings.Join(notes, "\n")
	if grounding == "" && l.retriever != nil {
		docs, err := l.retriever.Retrieve(ctx, sess.ResumeID, l.questionIntent(sess))
		if err == nil {
			grounding = fusion.Context(docs, contextDocs)
		}
	}

	if sess.Phase == session.PhaseResumeBased {
		return l.generateResumeQuestion(ctx, sess, grounding)
	}
	return l.generateRoleQuestion(ctx, sess)
}

func (l *Loop) generateResumeQuestion(ctx context.Context, sess *session.Session, grounding string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are interviewing a candidate for the role %q.\n", sess.Role)
	fmt.Fprintf(&sb, "Intent: %s\n", l.questionIntent(sess))
	if grounding != "" {
		fmt.Fprintf(&sb, "Résumé excerpts:\n%s\n", grounding)
	}
	sb.WriteString(previousQuestions(sess))
	sb.WriteString("Write exactly one interview question grounded in the résumé content above. " +
		"Do not repeat a previous question. Respond with the question only.")

	raw, err := l.llm.Chat(ctx, l.model, []llm.Message{
		{Role: "user", Content: sb.String()},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("generating résumé question: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("generating résumé question: empty response")
	}
	return raw, nil
}

func (l *Loop) generateRoleQuestion(ctx context.Context, sess *session.Session) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are interviewing a candidate for the role %q.\n", sess.Role)
	fmt.Fprintf(&sb, "Intent: %s\n", l.questionIntent(sess))
	sb.WriteString(previousQuestions(sess))
	sb.WriteString("Write exactly one scenario-based interview question testing skills this role requires. " +
		"Do not repeat a previous question. Respond with the question only.")

	raw, err := l.llm.Chat(ctx, l.model, []llm.Message{
		{Role: "user", Content: sb.String()},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("generating role question: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("generating role question: empty response")
	}
	return raw, nil
}

func previousQuestions(sess *session.Session) string {
	if len(sess.Evaluations) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Questions already asked:\n")
	for _, ev := range sess.Evaluations {
		fmt.Fprintf(&sb, "- %s\n", ev.Question)
	}
	return sb.String()
}
