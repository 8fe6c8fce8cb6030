// Package notify is the best-effort push channel to connected student
// sessions. Delivery is fire-and-forget: the engine never blocks a state
// transition on a push, and a student who missed one sees the authoritative
// attempt state on their next poll.
package notify

import (
	"sync"
	"time"
)

// Gateway is the delivery contract the engine depends on.
type Gateway interface {
	PushToStudent(studentID, message string)
}

type Message struct {
	Type    string    `json:"type"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Session is one connected client. Created by Registry.Connect, removed by
// Registry.Disconnect; the transport owns that lifecycle.
type Session struct {
	userID string
	send   chan Message
	once   sync.Once
}

// Recv is the transport's read side of the session.
func (s *Session) Recv() <-chan Message { return s.send }

func (s *Session) close() {
	s.once.Do(func() { close(s.send) })
}

// Registry tracks live sessions per student. It is injected wherever pushes
// are needed; there is no process-wide session map.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string][]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string][]*Session{}}
}

func (r *Registry) Connect(userID string) *Session {
	s := &Session{userID: userID, send: make(chan Message, 8)}
	r.mu.Lock()
	r.sessions[userID] = append(r.sessions[userID], s)
	r.mu.Unlock()
	return s
}

func (r *Registry) Disconnect(s *Session) {
	r.mu.Lock()
	live := r.sessions[s.userID][:0]
	for _, sess := range r.sessions[s.userID] {
		if sess != s {
			live = append(live, sess)
		}
	}
	if len(live) == 0 {
		delete(r.sessions, s.userID)
	} else {
		r.sessions[s.userID] = live
	}
	r.mu.Unlock()
	s.close()
}

// PushToStudent fans the message out to every live session for the student.
// A session with a full buffer is skipped rather than waited on.
func (r *Registry) PushToStudent(studentID, message string) {
	msg := Message{Type: "notice", Message: message, At: time.Now().UTC()}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions[studentID] {
		select {
		case s.send <- msg:
		default:
		}
	}
}
