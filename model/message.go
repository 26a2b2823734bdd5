package model

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ErrNotFound is returned when a row does not exist or is not owned by the
// calling user. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("message not found")

// Message is the typed timeline entity handed to the rest of the system.
// Raw row shapes never leave this package.
type Message struct {
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	Role      MessageRole `json:"role"`
	Model     string      `json:"model,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UserID    string      `json:"userId,omitempty"`
}

type UserMessage struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);index:idx_user_messages_user_created" json:"user_id"`
	Content   string    `gorm:"type:text" json:"content"`
	Model     string    `gorm:"type:varchar(64)" json:"model"`
	CreatedAt time.Time `gorm:"index:idx_user_messages_user_created" json:"created_at"`
}

func (m *UserMessage) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *UserMessage) toMessage() Message {
	return Message{
		ID:        m.ID,
		Content:   m.Content,
		Role:      RoleUser,
		Model:     m.Model,
		CreatedAt: m.CreatedAt,
		UserID:    m.UserID,
	}
}

type AssistantResponse struct {
	ID            string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID        string    `gorm:"type:varchar(36);index" json:"user_id"`
	UserMessageID string    `gorm:"type:varchar(36);index" json:"user_message_id"`
	Content       string    `gorm:"type:text" json:"content"`
	Model         string    `gorm:"type:varchar(64)" json:"model"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r *AssistantResponse) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

func (r *AssistantResponse) toMessage() Message {
	return Message{
		ID:        r.ID,
		Content:   r.Content,
		Role:      RoleAssistant,
		Model:     r.Model,
		CreatedAt: r.CreatedAt,
		UserID:    r.UserID,
	}
}

// MessageStore performs all row level operations on user_messages and
// assistant_responses. Every operation is scoped by the caller's user id;
// no cross-user read or write is representable through it.
type MessageStore struct {
	db *gorm.DB
}

func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db}
}

// InsertUserMessage durably inserts a user message and returns it with the
// assigned id and timestamp.
func (s *MessageStore) InsertUserMessage(userID, content, model string) (Message, error) {
	row := UserMessage{
		UserID:  userID,
		Content: content,
		Model:   model,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return Message{}, fmt.Errorf("failed to insert user message: %w", err)
	}
	return row.toMessage(), nil
}

// InsertAssistantResponse inserts an assistant response linked to parentID.
// The parent user message must already be committed and owned by userID;
// the link is established here and never reassigned.
func (s *MessageStore) InsertAssistantResponse(userID, parentID, content, model string) (Message, error) {
	var parent UserMessage
	err := s.db.Where("id = ? AND user_id = ?", parentID, userID).First(&parent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Message{}, fmt.Errorf("parent %s: %w", parentID, ErrNotFound)
		}
		return Message{}, fmt.Errorf("failed to look up parent message: %w", err)
	}

	row := AssistantResponse{
		UserID:        userID,
		UserMessageID: parent.ID,
		Content:       content,
		Model:         model,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return Message{}, fmt.Errorf("failed to insert assistant response: %w", err)
	}
	return row.toMessage(), nil
}

// UpdateUserMessageContent updates the content of a user message in place.
// Assistant rows are immutable, so a miss here also covers attempts to edit
// an assistant message by id.
func (s *MessageStore) UpdateUserMessageContent(userID, id, content string) error {
	res := s.db.Model(&UserMessage{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("content", content)
	if res.Error != nil {
		return fmt.Errorf("failed to update message content: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUserMessageCascade deletes the user message id together with every
// assistant response linked to it, and returns the ids of the deleted
// responses. The delete runs in two phases: responses first, then the user
// row. If the first phase fails the user row is left untouched. If the
// process dies between the phases the remaining reply-less user message is a
// documented degraded state; the caller may simply retry with the same id.
func (s *MessageStore) DeleteUserMessageCascade(userID, id string) ([]string, error) {
	var responses []AssistantResponse
	err := s.db.Select("id").
		Where("user_message_id = ? AND user_id = ?", id, userID).
		Find(&responses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up linked responses: %w", err)
	}

	responseIDs := make([]string, 0, len(responses))
	for _, r := range responses {
		responseIDs = append(responseIDs, r.ID)
	}

	if len(responseIDs) > 0 {
		if err := s.db.Where("id IN ?", responseIDs).Delete(&AssistantResponse{}).Error; err != nil {
			return nil, fmt.Errorf("failed to delete linked responses: %w", err)
		}
	}

	res := s.db.Where("id = ? AND user_id = ?", id, userID).Delete(&UserMessage{})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to delete user message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return responseIDs, nil
}

// FetchOrderedHistory returns the user's full timeline ordered by creation
// time, each user message immediately followed by its linked responses. The
// pairing comes from the stored user_message_id link, never from timestamp
// proximity.
func (s *MessageStore) FetchOrderedHistory(userID string) ([]Message, error) {
	var userRows []UserMessage
	err := s.db.Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&userRows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user messages: %w", err)
	}

	var responseRows []AssistantResponse
	err = s.db.Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&responseRows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assistant responses: %w", err)
	}

	byParent := make(map[string][]AssistantResponse, len(userRows))
	for _, r := range responseRows {
		byParent[r.UserMessageID] = append(byParent[r.UserMessageID], r)
	}

	timeline := make([]Message, 0, len(userRows)+len(responseRows))
	for _, m := range userRows {
		timeline = append(timeline, m.toMessage())
		linked := byParent[m.ID]
		sort.SliceStable(linked, func(i, j int) bool {
			return linked[i].CreatedAt.Before(linked[j].CreatedAt)
		})
		for _, r := range linked {
			timeline = append(timeline, r.toMessage())
		}
	}
	return timeline, nil
}

// DeleteOrphanResponses removes assistant responses whose parent user
// message no longer exists. Run periodically to reconcile interrupted
// cascade deletes.
func (s *MessageStore) DeleteOrphanResponses() (int64, error) {
	res := s.db.
		Where("user_message_id NOT IN (?)", s.db.Model(&UserMessage{}).Select("id")).
		Delete(&AssistantResponse{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete orphan responses: %w", res.Error)
	}
	return res.RowsAffected, nil
}
