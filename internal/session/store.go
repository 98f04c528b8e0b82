// Package session holds per-user conversation state. Sessions are
// volatile, so a restart loses transcripts, while the set of known
// users lives in the durable user directory.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hausgeist/hausgeist/internal/llm"
)

// DefaultPersona is used when no persona is configured.
const DefaultPersona = "You are a helpful and polite household assistant. " +
	"You have access to a number of tools to help the user. Do not guess " +
	"values for tool parameters; ask for clarification when a request is " +
	"ambiguous or incomplete. Answer briefly, kindly and competently."

// Directory is the durable record of which users have ever interacted.
// It is satisfied by userdir.Store.
type Directory interface {
	Add(userID string) error
	All() ([]string, error)
}

// Session is one user's conversational memory.
type Session struct {
	UserID string
	// Transcript is append-only within a turn. The conversation engine
	// is the only component that mutates it, and only while holding
	// the user's turn lock.
	Transcript []llm.Message
	CreatedAt  time.Time
}

// Store owns session lifetime: creation, reset and lookup. It also
// hands out the per-user mutual-exclusion scope that serializes whole
// turns for the same user.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex

	dir     Directory
	persona string
	loc     *time.Location
	logger  *slog.Logger

	now func() time.Time // test hook
}

// NewStore creates a session store backed by the given user directory.
func NewStore(dir Directory, persona string, loc *time.Location, logger *slog.Logger) *Store {
	if persona == "" {
		persona = DefaultPersona
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
		dir:      dir,
		persona:  persona,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// GetOrCreate returns the user's session, creating it atomically on
// first contact. A freshly created session contains exactly one system
// message carrying the persona and the current date and time. The new
// user is also recorded in the durable directory; a directory failure
// is logged but does not block the conversation.
func (s *Store) GetOrCreate(userID string) *Session {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = s.newSession(userID)
		s.sessions[userID] = sess
	}
	s.mu.Unlock()

	if !ok {
		if err := s.dir.Add(userID); err != nil {
			s.logger.Warn("failed to record user in directory", "user_id", userID, "error", err)
		}
	}

	return sess
}

// Reset discards the user's transcript and reseeds it exactly as
// creation does: a single system message, nothing else.
func (s *Store) Reset(userID string) *Session {
	s.mu.Lock()
	sess := s.newSession(userID)
	s.sessions[userID] = sess
	s.mu.Unlock()

	if err := s.dir.Add(userID); err != nil {
		s.logger.Warn("failed to record user in directory", "user_id", userID, "error", err)
	}

	s.logger.Info("session reset", "user_id", userID)
	return sess
}

// KnownUserIDs lists every user who has ever interacted, from the
// durable directory, not just users with a live session.
func (s *Store) KnownUserIDs() ([]string, error) {
	return s.dir.All()
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// LockUser acquires the user's turn lock and returns the unlock
// function. Turns for the same user are fully serialized under this
// lock; turns for different users do not contend.
func (s *Store) LockUser(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// newSession builds a fresh session. Caller holds s.mu.
func (s *Store) newSession(userID string) *Session {
	now := s.now().In(s.loc)
	return &Session{
		UserID:     userID,
		Transcript: []llm.Message{llm.SystemMessage(s.systemPrompt(now))},
		CreatedAt:  now,
	}
}

func (s *Store) systemPrompt(now time.Time) string {
	return fmt.Sprintf("%s\n\nCurrent date: %s. Current time: %s.",
		s.persona,
		now.Format("2006-01-02"),
		now.Format("15:04"),
	)
}
