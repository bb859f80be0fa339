package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/mkravets/vetriq/internal/evaluate"
	"github.com/mkravets/vetriq/internal/storage"
)

func TestPhaseOnlyMovesForward(t *testing.T) {
	s := New("s1", "r1", "Backend Engineer", 10)

	if err := s.Advance(PhaseRoleBased); err != nil {
		t.Fatalf("forward move failed: %v", err)
	}
	if err := s.Advance(PhaseRoleBased); err != nil {
		t.Fatalf("same-phase move should be a no-op: %v", err)
	}
	if err := s.Advance(PhaseResumeBased); err == nil {
		t.Fatal("backwards move should fail")
	}
	if s.Phase != PhaseRoleBased {
		t.Errorf("phase = %q after rejected move", s.Phase)
	}

	if err := s.Advance(PhaseConcluded); err != nil {
		t.Fatalf("skipping to concluded failed: %v", err)
	}
	if !s.Phase.Terminal() {
		t.Error("concluded should be terminal")
	}
}

func TestAdvanceRejectsUnknownPhase(t *testing.T) {
	s := New("s1", "r1", "", 10)
	if err := s.Advance(Phase("paused")); err == nil {
		t.Fatal("unknown phase accepted")
	}
}

func TestRecordEvaluationAdvancesCounter(t *testing.T) {
	s := New("s1", "r1", "", 10)
	s.PendingQuestion = "What is a channel?"

	if s.QuestionCount != 0 {
		t.Fatalf("initial count = %d", s.QuestionCount)
	}
	s.RecordEvaluation(evaluate.Evaluation{Question: "What is a channel?", Score: 7})
	if s.QuestionCount != 1 {
		t.Errorf("count = %d after one evaluation", s.QuestionCount)
	}
	if s.PendingQuestion != "" {
		t.Errorf("pending question not cleared: %q", s.PendingQuestion)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := New("s1", "r1", "SRE", 10)
	s.Append(RoleAgent, "Tell me about your Kubernetes experience?")
	s.AppendTool("retrieved context", json.RawMessage(`{"chunks": 2}`))
	s.Append(RoleCandidate, "I ran a 40-node cluster.")
	s.PendingQuestion = "Tell me about your Kubernetes experience?"
	s.RecordEvaluation(evaluate.Evaluation{Question: "q", Answer: "a", Score: 8, Feedback: "good"})
	if err := s.Advance(PhaseRoleBased); err != nil {
		t.Fatal(err)
	}

	data, err := s.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if !reflect.DeepEqual(s, got) {
		t.Errorf("round trip changed session:\n before %+v\n after  %+v", s, got)
	}
}

func TestUnmarshalRejectsUnknownPhase(t *testing.T) {
	if _, err := Unmarshal([]byte(`{"id": "x", "phase": "paused"}`)); err == nil {
		t.Fatal("unknown phase accepted from checkpoint")
	}
}

// --- Store ---

type memCheckpointer struct {
	mu   sync.Mutex
	data map[string][]byte
	fail error
}

func newMemCheckpointer() *memCheckpointer {
	return &memCheckpointer{data: make(map[string][]byte)}
}

func (m *memCheckpointer) SaveCheckpoint(id string, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	cp := make([]byte, len(state))
	copy(cp, state)
	m.data[id] = cp
	return nil
}

func (m *memCheckpointer) LoadCheckpoint(id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return state, nil
}

func (m *memCheckpointer) DeleteCheckpoint(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.data, id)
	return nil
}

func TestStorePutGet(t *testing.T) {
	st := NewStore(newMemCheckpointer())
	sess := New("s1", "r1", "", 10)

	if err := st.Put(sess); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := st.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "s1" {
		t.Errorf("got session %q", got.ID)
	}

	if _, err := st.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestStoreRestoresFromCheckpoint(t *testing.T) {
	cp := newMemCheckpointer()

	st := NewStore(cp)
	sess := New("s1", "r1", "SRE", 10)
	sess.Append(RoleAgent, "first question?")
	if err := st.Put(sess); err != nil {
		t.Fatal(err)
	}

	// A fresh store with the same checkpointer simulates a restart.
	restarted := NewStore(cp)
	got, err := restarted.Get("s1")
	if err != nil {
		t.Fatalf("Get after restart: %v", err)
	}
	if got.Role != "SRE" || len(got.Messages) != 1 {
		t.Errorf("restored session lost state: %+v", got)
	}
}

func TestWithSessionCheckpointsMutations(t *testing.T) {
	cp := newMemCheckpointer()
	st := NewStore(cp)
	if err := st.Put(New("s1", "r1", "", 10)); err != nil {
		t.Fatal(err)
	}

	err := st.WithSession("s1", func(s *Session) error {
		s.Append(RoleCandidate, "hello")
		return nil
	})
	if err != nil {
		t.Fatalf("WithSession: %v", err)
	}

	restored, err := NewStore(cp).Get("s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(restored.Messages) != 1 || restored.Messages[0].Content != "hello" {
		t.Errorf("mutation not checkpointed: %+v", restored.Messages)
	}
}

func TestWithSessionCheckpointsEvenOnError(t *testing.T) {
	cp := newMemCheckpointer()
	st := NewStore(cp)
	if err := st.Put(New("s1", "r1", "", 10)); err != nil {
		t.Fatal(err)
	}

	wantErr := fmt.Errorf("turn failed")
	err := st.WithSession("s1", func(s *Session) error {
		s.Append(RoleCandidate, "partial")
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("WithSession = %v, want the turn error", err)
	}

	restored, err := NewStore(cp).Get("s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(restored.Messages) != 1 {
		t.Error("partial progress not checkpointed")
	}
}

func TestWithSessionSerializesTurns(t *testing.T) {
	st := NewStore(newMemCheckpointer())
	if err := st.Put(New("s1", "r1", "", 10)); err != nil {
		t.Fatal(err)
	}

	const turns = 50
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = st.WithSession("s1", func(s *Session) error {
				s.QuestionCount++
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := st.Get("s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.QuestionCount != turns {
		t.Errorf("count = %d, want %d", got.QuestionCount, turns)
	}
}

func TestStoreDelete(t *testing.T) {
	st := NewStore(newMemCheckpointer())
	if err := st.Put(New("s1", "r1", "", 10)); err != nil {
		t.Fatal(err)
	}

	if err := st.Delete("s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Get("s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := st.Delete("s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}
