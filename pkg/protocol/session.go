package protocol

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client languages that receive structured replies.
const (
	LanguagePython = "Python"
	LanguageJSON   = "JSON"
	LanguageC      = "C"
)

// Session is the per-connection protocol state.
type Session struct {
	ID         uuid.UUID
	Transport  string
	RemoteAddr string
	StartedAt  time.Time

	mu       sync.Mutex
	language string
	requests int64
}

// NewSession creates a session for a connection.
func NewSession(transport, remoteAddr string) *Session {
	return &Session{
		ID:         uuid.New(),
		Transport:  transport,
		RemoteAddr: remoteAddr,
		StartedAt:  time.Now(),
	}
}

// SetLanguage records the language announced by INIT.
func (s *Session) SetLanguage(lang string) {
	s.mu.Lock()
	s.language = lang
	s.mu.Unlock()
}

// Language returns the negotiated language, or "" before INIT.
func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// Structured reports whether replies to INIT and REG carry JSON metadata.
func (s *Session) Structured() bool {
	lang := s.Language()
	return strings.EqualFold(lang, LanguagePython) || strings.EqualFold(lang, LanguageJSON)
}

// Requests returns the number of requests processed in this session.
func (s *Session) Requests() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Session) count() {
	s.mu.Lock()
	s.requests++
	s.mu.Unlock()
}
