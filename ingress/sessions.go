package ingress

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Session is what the host told us about a connected client
type Session struct {
	PadID    string
	UserID   string
	ClientIP string
}

// SessionDirectory maps host session ids to pad and user identity.
// The least recently used session is evicted once size is reached.
type SessionDirectory struct {
	cache *lru.Cache[string, Session]
}

// NewSessionDirectory creates a directory holding at most size sessions
func NewSessionDirectory(size int) (*SessionDirectory, error) {
	cache, err := lru.New[string, Session](size)
	if err != nil {
		return nil, err
	}
	return &SessionDirectory{cache: cache}, nil
}

// Put records or replaces a session
func (d *SessionDirectory) Put(sessionID string, s Session) {
	d.cache.Add(sessionID, s)
}

// Get returns the session for sessionID
func (d *SessionDirectory) Get(sessionID string) (Session, bool) {
	return d.cache.Get(sessionID)
}

// Forget removes a session
func (d *SessionDirectory) Forget(sessionID string) {
	d.cache.Remove(sessionID)
}

// Len returns the number of tracked sessions
func (d *SessionDirectory) Len() int {
	return d.cache.Len()
}
