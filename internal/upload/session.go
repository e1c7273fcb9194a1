package upload

import (
	"sync"

	"go.uber.org/atomic"
)

// Attempt identifies one upload attempt within a Session. Later attempts
// have larger values.
type Attempt uint64

// Snapshot is the state of a Session at one point in time.
type Snapshot struct {
	Attempt Attempt `json:"attempt"`
	// ID is the accepted upload's ID, empty unless a file is loaded.
	ID      string  `json:"id,omitempty"`
	Preview Preview `json:"preview"`
	Rows    []Row   `json:"-"`
	// Message is the user-facing message of the last failed attempt.
	Message string `json:"message,omitempty"`
}

// Session holds the "current file" of one caller. Results of attempts that
// were overtaken by a newer Begin or Clear are discarded, so out-of-order
// completion never replaces newer state. The zero value is ready to use.
type Session struct {
	seq atomic.Uint64

	mu    sync.Mutex
	state Snapshot
}

// Begin starts a new attempt.
func (s *Session) Begin() Attempt {
	return Attempt(s.seq.Inc())
}

// Latest returns the most recently started attempt.
func (s *Session) Latest() Attempt {
	return Attempt(s.seq.Load())
}

// Commit stores out as the current file if a is still the latest attempt.
// It reports whether the outcome was kept.
func (s *Session) Commit(a Attempt, out Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a != s.Latest() {
		return false
	}
	s.state = Snapshot{
		Attempt: a,
		ID:      out.ID.String(),
		Preview: out.Preview,
		Rows:    out.Rows,
	}
	return true
}

// Fail records err for attempt a, clearing any loaded file, if a is still
// the latest attempt.
func (s *Session) Fail(a Attempt, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a != s.Latest() {
		return false
	}
	s.state = Snapshot{
		Attempt: a,
		Preview: EmptyPreview(),
		Message: UserMessage(err),
	}
	return true
}

// Clear removes the current file. Attempts still in flight become stale.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := Attempt(s.seq.Inc())
	s.state = Snapshot{Attempt: a, Preview: EmptyPreview()}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if st.Preview.State == "" {
		st.Preview = EmptyPreview()
	}
	return st
}
