package service

import (
	"sync"

	"gochat/model"
)

// Authenticator verifies a username/password pair. *UserService satisfies it.
type Authenticator interface {
	Authenticate(username, password string) (*model.User, error)
}

// AuthService owns the current identity and fans sign-in/sign-out changes
// out to subscribers. Handlers receive the new identity, or nil on sign-out.
type AuthService struct {
	mu      sync.Mutex
	users   Authenticator
	current *Identity
	subs    map[int]func(*Identity)
	nextSub int
}

func NewAuthService(users Authenticator) *AuthService {
	return &AuthService{
		users: users,
		subs:  map[int]func(*Identity){},
	}
}

func (a *AuthService) CurrentIdentity() *Identity {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	identity := *a.current
	return &identity
}

// Subscribe registers handler for identity changes and returns an
// unsubscribe function. Subscribers must unsubscribe on teardown.
func (a *AuthService) Subscribe(handler func(*Identity)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = handler
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.subs, id)
	}
}

// notify calls handlers outside the lock so they may read back the current
// identity without deadlocking.
func (a *AuthService) notify(identity *Identity) {
	a.mu.Lock()
	handlers := make([]func(*Identity), 0, len(a.subs))
	for _, h := range a.subs {
		handlers = append(handlers, h)
	}
	a.mu.Unlock()
	for _, h := range handlers {
		h(identity)
	}
}

// SignIn verifies the credentials and publishes the new identity. On
// failure the current identity is left unchanged.
func (a *AuthService) SignIn(username, password string) (*Identity, error) {
	user, err := a.users.Authenticate(username, password)
	if err != nil {
		logger.Warnf("sign-in failed for %s: %s", username, err)
		return nil, err
	}

	identity := Identity{ID: user.ID, Email: user.Email}
	a.mu.Lock()
	a.current = &identity
	a.mu.Unlock()
	a.notify(&identity)

	out := identity
	return &out, nil
}

// SignOut clears the identity and notifies subscribers with nil.
func (a *AuthService) SignOut() {
	a.mu.Lock()
	a.current = nil
	a.mu.Unlock()
	a.notify(nil)
}
