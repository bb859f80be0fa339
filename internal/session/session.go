// Package session holds the state of a running interview: the conversation
// transcript, the phase machine, and the per-answer evaluations. Sessions are
// owned by a Store that serializes turns and checkpoints state after every
// mutation.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkravets/vetriq/internal/evaluate"
	"github.com/mkravets/vetriq/internal/scorecard"
)

// Phase is the interview stage. Phases only move forward; a session in a
// later phase never returns to an earlier one.
type Phase string

const (
	PhaseResumeBased Phase = "resume_based"
	PhaseRoleBased   Phase = "role_based"
	PhaseConcluding  Phase = "concluding"
	PhaseConcluded   Phase = "concluded"
)

var phaseRank = map[Phase]int{
	PhaseResumeBased: 0,
	PhaseRoleBased:   1,
	PhaseConcluding:  2,
	PhaseConcluded:   3,
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := phaseRank[p]
	return ok
}

// Terminal reports whether the interview is over.
func (p Phase) Terminal() bool {
	return p == PhaseConcluded
}

// Message roles. Tool messages record intermediate capability results and are
// not shown to the candidate.
const (
	RoleSystem    = "system"
	RoleCandidate = "candidate"
	RoleAgent     = "agent"
	RoleTool      = "tool"
)

// Message is one transcript entry. ToolPayload carries the structured result
// of a capability call when Role is "tool"; it is empty otherwise.
type Message struct {
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	ToolPayload json.RawMessage `json:"tool_payload,omitempty"`
}

// Session is the full state of one interview.
type Session struct {
	ID              string                `json:"id"`
	ResumeID        string                `json:"resume_id"`
	Role            string                `json:"role"`
	Phase           Phase                 `json:"phase"`
	Messages        []Message             `json:"messages"`
	QuestionCount   int                   `json:"question_count"`
	MaxQuestions    int                   `json:"max_questions"`
	PendingQuestion string                `json:"pending_question"`
	Evaluations     []evaluate.Evaluation `json:"evaluations"`
	Report          *scorecard.Report     `json:"report,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// New creates a session in the résumé phase.
func New(id, resumeID, role string, maxQuestions int) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           id,
		ResumeID:     resumeID,
		Role:         role,
		Phase:        PhaseResumeBased,
		MaxQuestions: maxQuestions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Append adds a transcript entry.
func (s *Session) Append(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
	s.UpdatedAt = time.Now().UTC()
}

// AppendTool records a capability result in the transcript.
func (s *Session) AppendTool(content string, payload json.RawMessage) {
	s.Messages = append(s.Messages, Message{Role: RoleTool, Content: content, ToolPayload: payload})
	s.UpdatedAt = time.Now().UTC()
}

// Advance moves the session to a later phase. Moving to the current phase is
// a no-op; moving backwards is an error.
func (s *Session) Advance(to Phase) error {
	if !to.Valid() {
		return fmt.Errorf("unknown phase %q", to)
	}
	if phaseRank[to] < phaseRank[s.Phase] {
		return fmt.Errorf("cannot move phase backwards from %s to %s", s.Phase, to)
	}
	s.Phase = to
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordEvaluation stores the verdict for the pending question and advances
// the question counter. The counter moves only here: a question is counted
// once its answer has been graded.
func (s *Session) RecordEvaluation(ev evaluate.Evaluation) {
	s.Evaluations = append(s.Evaluations, ev)
	s.QuestionCount++
	s.PendingQuestion = ""
	s.UpdatedAt = time.Now().UTC()
}

// Marshal serializes the session for checkpointing.
func (s *Session) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("serializing session %s: %w", s.ID, err)
	}
	return data, nil
}

// Unmarshal restores a session from checkpoint data.
func Unmarshal(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("deserializing session: %w", err)
	}
	if !s.Phase.Valid() {
		return nil, fmt.Errorf("checkpoint has unknown phase %q", s.Phase)
	}
	return &s, nil
}
