package realtime

import "sync"

// Session is the state bound to one connection. Its fields are only touched
// while mu is held, which Engine.Handle does for the duration of an event.
type Session struct {
	ConnID    string
	UserID    string
	UserName  string
	JTI       string
	ProjectID string

	sink Sink
	mu   sync.Mutex
}

func (s *Session) authenticated() bool { return s.UserID != "" }

func (s *Session) inProject() bool { return s.ProjectID != "" }

// Registry tracks live sessions by connection id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) add(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ConnID] = sess
}

func (r *Registry) remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, connID)
}

// Get returns the live session of a connection.
func (r *Registry) Get(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[connID]
	return sess, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
