package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsApply(t *testing.T) {
	s := openTestStore(t)

	// Opening again over the same handle should be a no-op; the tables exist.
	if err := s.migrate(); err != nil {
		t.Fatalf("re-running migrations: %v", err)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := openTestStore(t)

	state := []byte(`{"id":"abc","phase":"resume_based","question_count":2}`)
	if err := s.SaveCheckpoint("abc", state); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	got, err := s.LoadCheckpoint("abc")
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if string(got) != string(state) {
		t.Errorf("state did not round-trip: got %s", got)
	}

	// Overwrite updates in place.
	state2 := []byte(`{"id":"abc","phase":"role_based","question_count":5}`)
	if err := s.SaveCheckpoint("abc", state2); err != nil {
		t.Fatalf("SaveCheckpoint overwrite: %v", err)
	}
	got, err = s.LoadCheckpoint("abc")
	if err != nil {
		t.Fatalf("LoadCheckpoint after overwrite: %v", err)
	}
	if string(got) != string(state2) {
		t.Errorf("overwrite did not round-trip: got %s", got)
	}
}

func TestCheckpointNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.LoadCheckpoint("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadCheckpoint error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteCheckpoint("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteCheckpoint error = %v, want ErrNotFound", err)
	}
}

func TestDeleteCheckpoint(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveCheckpoint("gone", []byte("{}")); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	if err := s.DeleteCheckpoint("gone"); err != nil {
		t.Fatalf("DeleteCheckpoint: %v", err)
	}
	if _, err := s.LoadCheckpoint("gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestResumeCRUD(t *testing.T) {
	s := openTestStore(t)

	r := Resume{
		ID:        "r1",
		FileName:  "jane_doe.pdf",
		FilePath:  "/tmp/uploads/r1_jane_doe.pdf",
		Role:      "Backend Developer",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := s.SaveResume(r); err != nil {
		t.Fatalf("SaveResume: %v", err)
	}

	got, err := s.GetResume("r1")
	if err != nil {
		t.Fatalf("GetResume: %v", err)
	}
	if got.FileName != r.FileName || got.Role != r.Role {
		t.Errorf("GetResume = %+v, want %+v", got, r)
	}

	if err := s.DeleteResume("r1"); err != nil {
		t.Fatalf("DeleteResume: %v", err)
	}
	if _, err := s.GetResume("r1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListSessions(t *testing.T) {
	s := openTestStore(t)

	for _, id := range []string{"s1", "s2"} {
		if err := s.SaveCheckpoint(id, []byte("{}")); err != nil {
			t.Fatalf("SaveCheckpoint %s: %v", id, err)
		}
	}

	infos, err := s.ListSessions(10)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(infos) != 2 {
		t.Errorf("got %d sessions, want 2", len(infos))
	}
}
