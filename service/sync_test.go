package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gochat/model"
	"gochat/platform"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMessageStore is an in-memory MessageWriter with the same scoping and
// linkage rules as the real adapter.
type fakeMessageStore struct {
	mu          sync.Mutex
	clock       time.Time
	userMsgs    []model.Message
	responses   []model.Message
	parent      map[string]string // response id -> user message id
	userInsErr  error
	replyInsErr error
	updateErr   error
	fetchErr    error
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{
		clock:  time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
		parent: map[string]string{},
	}
}

func (f *fakeMessageStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeMessageStore) InsertUserMessage(userID, content, mdl string) (model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userInsErr != nil {
		return model.Message{}, f.userInsErr
	}
	msg := model.Message{
		ID:        uuid.New().String(),
		Content:   content,
		Role:      model.RoleUser,
		Model:     mdl,
		CreatedAt: f.tick(),
		UserID:    userID,
	}
	f.userMsgs = append(f.userMsgs, msg)
	return msg, nil
}

func (f *fakeMessageStore) InsertAssistantResponse(userID, parentID, content, mdl string) (model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyInsErr != nil {
		return model.Message{}, f.replyInsErr
	}
	found := false
	for _, m := range f.userMsgs {
		if m.ID == parentID && m.UserID == userID {
			found = true
			break
		}
	}
	if !found {
		return model.Message{}, model.ErrNotFound
	}
	msg := model.Message{
		ID:        uuid.New().String(),
		Content:   content,
		Role:      model.RoleAssistant,
		Model:     mdl,
		CreatedAt: f.tick(),
		UserID:    userID,
	}
	f.responses = append(f.responses, msg)
	f.parent[msg.ID] = parentID
	return msg, nil
}

func (f *fakeMessageStore) UpdateUserMessageContent(userID, id, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	for i, m := range f.userMsgs {
		if m.ID == id && m.UserID == userID {
			f.userMsgs[i].Content = content
			return nil
		}
	}
	return model.ErrNotFound
}

func (f *fakeMessageStore) DeleteUserMessageCascade(userID, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted []string
	kept := f.responses[:0]
	for _, r := range f.responses {
		if f.parent[r.ID] == id && r.UserID == userID {
			deleted = append(deleted, r.ID)
			delete(f.parent, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	f.responses = kept
	for i, m := range f.userMsgs {
		if m.ID == id && m.UserID == userID {
			f.userMsgs = append(f.userMsgs[:i], f.userMsgs[i+1:]...)
			return deleted, nil
		}
	}
	return nil, model.ErrNotFound
}

func (f *fakeMessageStore) FetchOrderedHistory(userID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var history []model.Message
	for _, m := range f.userMsgs {
		if m.UserID != userID {
			continue
		}
		history = append(history, m)
		for _, r := range f.responses {
			if f.parent[r.ID] == m.ID {
				history = append(history, r)
			}
		}
	}
	return history, nil
}

// fakeCompleter echoes the prompt, or fails outright when err is set.
type fakeCompleter struct {
	err error
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, mdl string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("reply to %q", prompt), nil
}

// blockingCompleter parks the first completion until released, so a test
// can observe a genuinely in-flight turn.
type blockingCompleter struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingCompleter() *blockingCompleter {
	return &blockingCompleter{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingCompleter) Complete(ctx context.Context, prompt string, mdl string) (string, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return fmt.Sprintf("reply to %q", prompt), nil
}

// fakeUsers satisfies Authenticator for a single known account.
type fakeUsers struct{}

func (fakeUsers) Authenticate(username, password string) (*model.User, error) {
	if username == "alice" && password == "secret" {
		return &model.User{ID: "u1", Username: "alice", Email: "alice@example.com"}, nil
	}
	return nil, errors.New("invalid credentials")
}

type syncFixture struct {
	session *SessionStore
	store   *fakeMessageStore
	auth    *AuthService
	ctrl    *SyncController
}

func newSyncFixture(t *testing.T, completer Completer) *syncFixture {
	t.Helper()
	f := &syncFixture{
		session: NewSessionStore(nil),
		store:   newFakeMessageStore(),
		auth:    NewAuthService(fakeUsers{}),
	}
	f.ctrl = NewSyncController(f.session, f.store, NewChatService(completer), f.auth)
	t.Cleanup(f.ctrl.Close)
	return f
}

func (f *syncFixture) signIn(t *testing.T) {
	t.Helper()
	_, err := f.auth.SignIn("alice", "secret")
	require.NoError(t, err)
}

func TestSubmitAppendsUserAndAssistantPair(t *testing.T) {
	f := newSyncFixture(t, &fakeCompleter{})
	f.signIn(t)
	f.session.SetSelectedModel("gpt-4")

	require.NoError(t, f.ctrl.Submit(context.Background(), "Hi"))

	msgs := f.session.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hi", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, `reply to "Hi"`, msgs[1].Content)
	assert.Equal(t, "gpt-4", msgs[1].Model)
	assert.True(t, msgs[1].CreatedAt.After(msgs[0].CreatedAt) || msgs[1].CreatedAt.Equal(msgs[0].CreatedAt))
	assert.False(t, f.session.Busy())

	// durable state matches the session
	history, err := f.store.FetchOrderedHistory("u1")
	require.NoError(t, err)
	assert.Equal(t, msgs, history)
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	f := newSyncFixture(t, &fakeCompleter{})
	f.signIn(t)

	assert.ErrorIs(t, f.ctrl.Submit(context.Background(), "   "), ErrEmptyMessage)
	assert.Empty(t, f.session.Messages())
	assert.False(t, f.session.Busy())
}

func TestSubmitRequiresIdentity(t *testing.T) {
	f := newSyncFixture(t, &fakeCompleter{})

	assert.ErrorIs(t, f.ctrl.Submit(context.Background(), "Hi"), ErrNotSignedIn)
	assert.Empty(t, f.session.Messages())
}

func TestSubmitWhileFirstInFlightIsDropped(t *testing.T) {
	completer := newBlockingCompleter()
	f := newSyncFixture(t, completer)
	f.signIn(t)

	done := make(chan error, 1)
	go func() {
		done <- f.ctrl.Submit(context.Background(), "first")
	}()

	<-completer.started
	assert.True(t, f.session.Busy())

	// a second submit before the first settles is dropped, not queued
	require.NoError(t, f.ctrl.Submit(context.Background(), "second"))

	close(completer.release)
	require.NoError(t, <-done)

	msgs := f.session.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.False(t, f.session.Busy())

	// exactly one pair made it to durable storage
	history, err := f.store.FetchOrderedHistory("u1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSubmitUserInsertFailureLeavesStateUntouched(t *testing.T) {
	f := newSyncFixture(t, &fakeCompleter{})
	f.signIn(t)
	f.store.userInsErr = errors.New("connection reset")

	err := f.ctrl.Submit(context.Background(), "Hi")
	require.Error(t, err)
	assert.Empty(t, f.session.Messages())
	assert.False(t, f.session.Busy())
}

func TestSubmitCompletionFailureKeepsUserMessage(t *testing.T) {
	f := newSyncFixture(t, &fakeCompleter{err: errors.New("backend exploded")})
	f.signIn(t)

	err := f.ctrl.Submit(context.Background(), "Hi")
	require.ErrorIs(t, err, ErrGenerationFailed)

	// the user message is not rolled back, locally or durably
	msgs := f.session.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	history, _ := f.store.FetchOrderedHistory("u1")
	assert.Len(t, history, 1)
	assert.False(t, f.session.Busy())
}

func TestSubmitResponseInsertFailureKeepsUserMessage(t *testing.T) {
	f := newSyncFixture(t, &fakeCompleter{})
	f.signIn(t)
	f.store.replyInsErr = errors.New("connection reset")

	err := f.ctrl.Submit(context.Background(), "Hi")
	require.Error(t, err)
	msgs := f.session.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
}

func TestEditChangesOnlyContent(t *testing.T) {
	f := newSyncFixture(t, &fakeCompleter{})
	f.signIn(t)
	require.NoError(t, f.ctrl.Submit(context.Background(), "Hi"))
	before := f.session.Messages()

	require.NoError(t, f.ctrl.Edit(before[0].ID, "Hi there"))

	after := f.session.Messages()
	require.Len(t, after, 2)
	assert.Equal(t, "Hi there", after[0].Content)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, before[0].Role, after[0].Role)
	assert.Equal(t, before[0].CreatedAt, after[0].CreatedAt)
	// the linked assistant reply is untouched
	assert.Equal(t, before[1], after[1])
}

func TestEditValidation(t *testing.T) {
	f := newSyncFixture(t, &fakeCompleter{})
	f.signIn(t)
	require.NoError(t, f.ctrl.Submit(context.Background(), "Hi"))
	msgs := f.session.Messages()

	assert.ErrorIs(t, f.ctrl.Edit(msgs[0].ID, "  "), ErrEmptyContent)
	assert.ErrorIs(t, f.ctrl.Edit("no-such-id", "text"), model.ErrNotFound)
	// assistant messages cannot be edited
	assert.ErrorIs(t, f.ctrl.Edit(msgs[1].ID, "text"), ErrNotOwner)
}

func TestEditObservesConcurrentDelete(t *testing.T) {
	f := newSyncFixture(t, &fakeCompleter{})
	f.signIn(t)
	require.NoError(t, f.ctrl.Submit(context.Background(), "Hi"))
	msgs := f.session.Messages()

	// the row disappears underneath the session snapshot
	_, err := f.store.DeleteUserMessageCascade("u1", msgs[0].ID)
	require.NoError(t, err)

	err = f.ctrl.Edit(msgs[0].ID, "too late")
	assert.ErrorIs(t, err, model.ErrNotFound)
	// the stale session content is not silently rewritten
	assert.Equal(t, "Hi", f.session.Messages()[0].Content)
}

func TestDeleteCascadeRemovesPair(t *testing.T) {
	f := newSyncFixture(t, &fakeCompleter{})
	f.signIn(t)
	require.NoError(t, f.ctrl.Submit(context.Background(), "Hi"))
	require.NoError(t, f.ctrl.Submit(context.Background(), "Bye"))
	msgs := f.session.Messages()
	require.Len(t, msgs, 4)

	require.NoError(t, f.ctrl.Delete(msgs[0].ID))

	after := f.session.Messages()
	require.Len(t, after, 2)
	assert.Equal(t, msgs[2].ID, after[0].ID)
	assert.Equal(t, msgs[3].ID, after[1].ID)
}

func TestDeleteLastPairEmptiesHistory(t *testing.T) {
	f := newSyncFixture(t, &fakeCompleter{})
	f.signIn(t)
	require.NoError(t, f.ctrl.Submit(context.Background(), "Hi"))
	msgs := f.session.Messages()

	require.NoError(t, f.ctrl.Delete(msgs[0].ID))
	assert.Empty(t, f.session.Messages())
	history, _ := f.store.FetchOrderedHistory("u1")
	assert.Empty(t, history)
}

func TestSignInLoadsHistory(t *testing.T) {
	f := newSyncFixture(t, &fakeCompleter{})

	// durable rows from a previous session
	parent, err := f.store.InsertUserMessage("u1", "old", "gpt-4")
	require.NoError(t, err)
	_, err = f.store.InsertAssistantResponse("u1", parent.ID, "old reply", "gpt-4")
	require.NoError(t, err)

	f.signIn(t)

	require.NotNil(t, f.session.Identity())
	assert.Equal(t, "u1", f.session.Identity().ID)
	msgs := f.session.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "old", msgs[0].Content)
}

func TestSignOutClearsIdentityAndMessages(t *testing.T) {
	f := newSyncFixture(t, &fakeCompleter{})
	f.signIn(t)
	require.NoError(t, f.ctrl.Submit(context.Background(), "Hi"))

	f.auth.SignOut()

	assert.Nil(t, f.session.Identity())
	assert.Empty(t, f.session.Messages())
	// durable rows survive a local sign-out
	history, _ := f.store.FetchOrderedHistory("u1")
	assert.Len(t, history, 2)
}

func TestCloseUnsubscribesFromAuthChanges(t *testing.T) {
	f := newSyncFixture(t, &fakeCompleter{})
	f.ctrl.Close()

	f.signIn(t)
	assert.Nil(t, f.session.Identity())
}

func TestCachedIdentityIsNotTrustedWithoutLiveSession(t *testing.T) {
	cache := platform.NewCache(filepath.Join(t.TempDir(), "chat-store.json"))

	seeded := NewSessionStore(cache)
	seeded.SetIdentity(&Identity{ID: "u1", Email: "alice@example.com"})
	seeded.SetMessages([]model.Message{{ID: "a", Content: "Hi", Role: model.RoleUser, UserID: "u1"}})

	// a fresh process restores the cached snapshot, but the auth provider
	// has no session
	restored := NewSessionStore(cache)
	require.NotNil(t, restored.Identity())

	store := newFakeMessageStore()
	ctrl := NewSyncController(restored, store, NewChatService(&fakeCompleter{}), NewAuthService(fakeUsers{}))
	defer ctrl.Close()

	assert.Nil(t, restored.Identity())
	assert.Empty(t, restored.Messages())

	// no durable write may happen under the stale identity
	assert.ErrorIs(t, ctrl.Submit(context.Background(), "Hi"), ErrNotSignedIn)
	history, err := store.FetchOrderedHistory("u1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestControllerAdoptsLiveIdentityOnConstruction(t *testing.T) {
	auth := NewAuthService(fakeUsers{})
	_, err := auth.SignIn("alice", "secret")
	require.NoError(t, err)

	store := newFakeMessageStore()
	parent, err := store.InsertUserMessage("u1", "old", "gpt-4")
	require.NoError(t, err)
	_, err = store.InsertAssistantResponse("u1", parent.ID, "old reply", "gpt-4")
	require.NoError(t, err)

	session := NewSessionStore(nil)
	ctrl := NewSyncController(session, store, NewChatService(&fakeCompleter{}), auth)
	defer ctrl.Close()

	require.NotNil(t, session.Identity())
	assert.Equal(t, "u1", session.Identity().ID)
	assert.Len(t, session.Messages(), 2)
}

func TestRefreshHistoryFailureLeavesMessagesUntouched(t *testing.T) {
	f := newSyncFixture(t, &fakeCompleter{})
	f.signIn(t)
	require.NoError(t, f.ctrl.Submit(context.Background(), "Hi"))
	before := f.session.Messages()

	f.store.fetchErr = errors.New("connection reset")

	require.Error(t, f.ctrl.RefreshHistory())
	assert.Equal(t, before, f.session.Messages())
}
