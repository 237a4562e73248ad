package session

import (
	"context"
	"sync"
	"time"
)

// MemoryValidator implements Validator using in-memory storage. It is used
// in tests and for standalone development without a session store.
type MemoryValidator struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

var _ Validator = (*MemoryValidator)(nil)

// NewMemoryValidator creates a new in-memory session validator
func NewMemoryValidator() *MemoryValidator {
	return &MemoryValidator{
		sessions: make(map[string]*Session),
	}
}

// Put stores a session record keyed by its token.
func (v *MemoryValidator) Put(sess *Session) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sessions[sess.Token] = sess
}

// Delete removes a session record.
func (v *MemoryValidator) Delete(token string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.sessions, token)
}

// Validate implements Validator.Validate
func (v *MemoryValidator) Validate(_ context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	sess, ok := v.sessions[token]
	if !ok || sess.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}

	cp := *sess
	return &cp, nil
}
