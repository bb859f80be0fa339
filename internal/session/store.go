package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mkravets/vetriq/internal/storage"
)

// ErrNotFound is returned when a session exists in neither memory nor the
// checkpoint store.
var ErrNotFound = errors.New("session not found")

// Checkpointer is the durable side of the store. *storage.Store satisfies it.
type Checkpointer interface {
	SaveCheckpoint(id string, state []byte) error
	LoadCheckpoint(id string) ([]byte, error)
	DeleteCheckpoint(id string) error
}

// Store keeps live sessions in memory and checkpoints them after every
// mutation. Turns within one session are serialized; different sessions
// proceed in parallel.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*entry
	checkpoints Checkpointer
}

type entry struct {
	mu   sync.Mutex
	sess *Session
}

func NewStore(cp Checkpointer) *Store {
	return &Store{
		sessions:    make(map[string]*entry),
		checkpoints: cp,
	}
}

// Put registers a new session and writes its first checkpoint.
func (st *Store) Put(sess *Session) error {
	st.mu.Lock()
	st.sessions[sess.ID] = &entry{sess: sess}
	st.mu.Unlock()
	return st.checkpoint(sess)
}

// Get returns the session, restoring it from its checkpoint if it is not in
// memory (e.g. after a restart).
func (st *Store) Get(id string) (*Session, error) {
	e, err := st.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.sess, nil
}

// WithSession runs fn with exclusive access to the session and checkpoints
// the (possibly mutated) state afterwards, even when fn fails. Concurrent
// calls for the same id run one at a time.
func (st *Store) WithSession(id string, fn func(*Session) error) error {
	e, err := st.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fnErr := fn(e.sess)
	if cpErr := st.checkpoint(e.sess); cpErr != nil {
		if fnErr != nil {
			return fnErr
		}
		return cpErr
	}
	return fnErr
}

// Delete removes the session from memory and the checkpoint store.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()

	err := st.checkpoints.DeleteCheckpoint(id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (st *Store) lookup(id string) (*entry, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if e, ok := st.sessions[id]; ok {
		return e, nil
	}

	data, err := st.checkpoints.LoadCheckpoint(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("restoring session %s: %w", id, err)
	}

	sess, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("restoring session %s: %w", id, err)
	}

	e := &entry{sess: sess}
	st.sessions[id] = e
	return e, nil
}

func (st *Store) checkpoint(sess *Session) error {
	data, err := sess.Marshal()
	if err != nil {
		return err
	}
	if err := st.checkpoints.SaveCheckpoint(sess.ID, data); err != nil {
		return fmt.Errorf("checkpointing session %s: %w", sess.ID, err)
	}
	return nil
}
