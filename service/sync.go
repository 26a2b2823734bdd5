package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"gochat/model"
)

var (
	// ErrEmptyContent rejects an edit with no content.
	ErrEmptyContent = errors.New("edit content cannot be empty")
	// ErrNotSignedIn gates every flow that requires an identity.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrNotOwner rejects an edit of a message the caller does not own.
	ErrNotOwner = errors.New("message does not belong to the current user")
)

// MessageWriter is the slice of the persistence adapter the controller
// drives. *model.MessageStore satisfies it.
type MessageWriter interface {
	InsertUserMessage(userID, content, mdl string) (model.Message, error)
	InsertAssistantResponse(userID, parentID, content, mdl string) (model.Message, error)
	UpdateUserMessageContent(userID, id, content string) error
	DeleteUserMessageCascade(userID, id string) ([]string, error)
	FetchOrderedHistory(userID string) ([]model.Message, error)
}

// Sender produces a persisted-ready assistant reply descriptor for a user
// message. *ChatService satisfies it.
type Sender interface {
	Send(ctx context.Context, message, mdl, userID string) (model.Message, error)
}

// AuthSource is the slice of the auth service the controller consumes.
type AuthSource interface {
	CurrentIdentity() *Identity
	Subscribe(handler func(*Identity)) func()
}

// SyncController orchestrates the message lifecycle: it drives send, edit
// and delete against the persistence adapter and the chat service, binds
// auth changes to the session store, and reconciles every result back into
// it. The session store is mutated by nothing else.
type SyncController struct {
	mu       sync.Mutex // serializes edit and delete flows
	session  *SessionStore
	messages MessageWriter
	sender   Sender
	unsub    func()
}

func NewSyncController(session *SessionStore, messages MessageWriter, sender Sender, auth AuthSource) *SyncController {
	c := &SyncController{
		session:  session,
		messages: messages,
		sender:   sender,
	}
	c.unsub = auth.Subscribe(c.handleIdentityChange)
	// a cache-restored identity is never trusted on its own; the live auth
	// session decides, exactly as a later sign-in/out event would
	c.handleIdentityChange(auth.CurrentIdentity())
	return c
}

// Close unsubscribes from auth changes.
func (c *SyncController) Close() {
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
}

// Submit runs one conversation turn: persist the user message, request a
// completion, persist and append the assistant reply. A submit while a turn
// is in flight is dropped, not queued. On a completion or persistence
// failure after the user message committed, the user message stays visible
// and persisted; the turn simply has no reply until the user resubmits.
func (c *SyncController) Submit(ctx context.Context, input string) error {
	if strings.TrimSpace(input) == "" {
		return ErrEmptyMessage
	}
	identity := c.session.Identity()
	if identity == nil {
		return ErrNotSignedIn
	}
	if !c.session.BeginSend() {
		return nil
	}
	defer c.session.SetBusy(false)

	userMsg, err := c.messages.InsertUserMessage(identity.ID, input, c.session.SelectedModel())
	if err != nil {
		logger.Warnf("failed to persist user message: %s", err)
		return err
	}
	c.session.AddMessage(userMsg)

	reply, err := c.sender.Send(ctx, input, userMsg.Model, identity.ID)
	if err != nil {
		logger.Warnf("completion failed for message %s: %s", userMsg.ID, err)
		return err
	}

	saved, err := c.messages.InsertAssistantResponse(identity.ID, userMsg.ID, reply.Content, reply.Model)
	if err != nil {
		logger.Warnf("failed to persist assistant response for %s: %s", userMsg.ID, err)
		return err
	}
	c.session.AddMessage(saved)
	return nil
}

// Edit updates the content of one of the caller's own user messages, both
// durably and in the session store. The linked assistant reply, the id and
// the timestamp are untouched.
func (c *SyncController) Edit(id, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	identity := c.session.Identity()
	if identity == nil {
		return ErrNotSignedIn
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var target *model.Message
	for _, m := range c.session.Messages() {
		if m.ID == id {
			target = &m
			break
		}
	}
	if target == nil {
		return model.ErrNotFound
	}
	if target.Role != model.RoleUser || target.UserID != identity.ID {
		return ErrNotOwner
	}

	if err := c.messages.UpdateUserMessageContent(identity.ID, id, content); err != nil {
		logger.Warnf("failed to update message %s: %s", id, err)
		return err
	}

	c.session.ReplaceMessages(func(msgs []model.Message) []model.Message {
		for i := range msgs {
			if msgs[i].ID == id {
				msgs[i].Content = content
			}
		}
		return msgs
	})
	return nil
}

// Delete removes a user message and its linked assistant reply from durable
// storage, then replaces the session sequence with the filtered one.
func (c *SyncController) Delete(id string) error {
	identity := c.session.Identity()
	if identity == nil {
		return ErrNotSignedIn
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	deleted, err := c.messages.DeleteUserMessageCascade(identity.ID, id)
	if err != nil {
		logger.Warnf("failed to delete message %s: %s", id, err)
		return err
	}

	gone := map[string]bool{id: true}
	for _, responseID := range deleted {
		gone[responseID] = true
	}
	c.session.ReplaceMessages(func(msgs []model.Message) []model.Message {
		kept := make([]model.Message, 0, len(msgs))
		for _, m := range msgs {
			if !gone[m.ID] {
				kept = append(kept, m)
			}
		}
		return kept
	})
	return nil
}

// RefreshHistory reloads the durable timeline into the session store.
func (c *SyncController) RefreshHistory() error {
	identity := c.session.Identity()
	if identity == nil {
		return ErrNotSignedIn
	}
	history, err := c.messages.FetchOrderedHistory(identity.ID)
	if err != nil {
		logger.Warnf("failed to fetch history for %s: %s", identity.ID, err)
		return err
	}
	c.session.SetMessages(history)
	return nil
}

func (c *SyncController) handleIdentityChange(identity *Identity) {
	if identity == nil {
		c.session.SetIdentity(nil)
		c.session.SetMessages(nil)
		return
	}
	c.session.SetIdentity(identity)
	if err := c.RefreshHistory(); err != nil {
		logger.Warnf("failed to load history after sign-in: %s", err)
	}
}
