// Package session keeps the single active session of every authenticated user.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/clinic/core/user"
)

var ErrNoSession = errors.New("no active session")

// Session is the authenticated identity of a user.
type Session struct {
	// ID is embedded in the signed token handed to the client.
	ID string `json:"id"`
	// Token is the opaque token issued by the login tier that authenticated the user.
	Token    string    `json:"-"`
	User     user.User `json:"user"`
	IssuedAt time.Time `json:"issuedAt"`
}

func New(usr user.User, token string) Session {
	return Session{
		ID:       uuid.NewString(),
		Token:    token,
		User:     usr,
		IssuedAt: time.Now().UTC(),
	}
}

type Store interface {
	// Put replaces any active session of the same user.
	Put(sess Session)
	Get(userID string) (Session, error)
	Delete(userID string) error
	Len() int
}

// MemoryStore is a Store safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session // {userID: Session}
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (s *MemoryStore) Put(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.User.ID] = sess
}

func (s *MemoryStore) Get(userID string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

func (s *MemoryStore) Delete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[userID]; !ok {
		return ErrNoSession
	}
	delete(s.sessions, userID)
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
