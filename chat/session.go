package chat

import "sync"

// SessionManager keeps one live conversation per user. Sessions carry the
// schema context they were started with, so anything that changes that
// context (uploads, permission edits) must reset them.
type SessionManager struct {
    mu       sync.Mutex
    sessions map[int64]Session
}

func NewSessionManager() *SessionManager {
    return &SessionManager{sessions: map[int64]Session{}}
}

// Get returns the user's live session, creating one with start when none
// exists.
func (m *SessionManager) Get(userID int64, start func() Session) Session {
    m.mu.Lock()
    defer m.mu.Unlock()
    if s, ok := m.sessions[userID]; ok {
        return s
    }
    s := start()
    m.sessions[userID] = s
    return s
}

// Reset drops one user's session; the next turn starts fresh.
func (m *SessionManager) Reset(userID int64) {
    m.mu.Lock()
    defer m.mu.Unlock()
    delete(m.sessions, userID)
}

// ResetAll drops every session. Called when the dataset catalog changes.
func (m *SessionManager) ResetAll() {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.sessions = map[int64]Session{}
}
