package service

import (
	"sync"

	"gochat/model"
	"gochat/platform"
)

// Identity mirrors the authenticated user for the lifetime of a session.
// It is re-derived from the auth service on each sign-in and is never
// trusted from the local cache alone.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

const sessionCacheKey = "chat-store"

const defaultModel = "gpt-3.5-turbo"

// sessionSnapshot is the persisted subset of the session state. The busy
// flag is deliberately absent so it always resets to false on reload.
type sessionSnapshot struct {
	Identity      *Identity       `json:"identity"`
	Messages      []model.Message `json:"messages"`
	SelectedModel string          `json:"selectedModel"`
}

// SessionStore is the single source of truth for the client session:
// identity, the ordered message list, the selected model and the busy flag.
// All mutation goes through its entry points. There is no way to remove an
// individual message except replacing the whole sequence, so the visible
// state is always a consistent snapshot.
type SessionStore struct {
	mu            sync.Mutex
	identity      *Identity
	messages      []model.Message
	selectedModel string
	busy          bool
	cache         *platform.Cache
}

// NewSessionStore restores the persisted subset from cache when present.
// cache may be nil, in which case nothing is persisted.
func NewSessionStore(cache *platform.Cache) *SessionStore {
	s := &SessionStore{
		selectedModel: defaultModel,
		cache:         cache,
	}
	if cache != nil {
		var snap sessionSnapshot
		ok, err := cache.Get(sessionCacheKey, &snap)
		if err != nil {
			logger.Warnf("failed to restore session cache: %s", err)
		} else if ok {
			s.identity = snap.Identity
			s.messages = snap.Messages
			if snap.SelectedModel != "" {
				s.selectedModel = snap.SelectedModel
			}
		}
	}
	return s
}

// persist mirrors the persisted subset to the cache. Callers hold s.mu.
func (s *SessionStore) persist() {
	if s.cache == nil {
		return
	}
	snap := sessionSnapshot{
		Identity:      s.identity,
		Messages:      s.messages,
		SelectedModel: s.selectedModel,
	}
	if err := s.cache.Put(sessionCacheKey, snap); err != nil {
		logger.Warnf("failed to persist session cache: %s", err)
	}
}

func (s *SessionStore) SetIdentity(identity *Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
	s.persist()
}

func (s *SessionStore) Identity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	identity := *s.identity
	return &identity
}

// SetMessages replaces the message sequence wholesale.
func (s *SessionStore) SetMessages(messages []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append([]model.Message(nil), messages...)
	s.persist()
}

// ReplaceMessages applies a functional update to the message sequence and
// installs the result as the new sequence.
func (s *SessionStore) ReplaceMessages(update func([]model.Message) []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = update(append([]model.Message(nil), s.messages...))
	s.persist()
}

// AddMessage appends one message. The caller is responsible for appending
// in causally correct order.
func (s *SessionStore) AddMessage(message model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	s.persist()
}

func (s *SessionStore) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.messages...)
}

func (s *SessionStore) SetSelectedModel(mdl string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedModel = mdl
	s.persist()
}

func (s *SessionStore) SelectedModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedModel
}

func (s *SessionStore) SetBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = busy
}

func (s *SessionStore) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// BeginSend atomically flips busy from false to true and reports whether
// the caller acquired the send slot. At most one send is in flight at a
// time; a losing caller must drop its submit rather than queue it.
func (s *SessionStore) BeginSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}
