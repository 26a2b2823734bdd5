package service

import (
	"path/filepath"
	"testing"

	"gochat/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestSweepRemovesOrphanResponses(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.UserMessage{}, &model.AssistantResponse{}))
	store := model.NewMessageStore(db)

	msg, err := store.InsertUserMessage("u1", "Hi", "gpt-4")
	require.NoError(t, err)
	_, err = store.InsertAssistantResponse("u1", msg.ID, "Hello!", "gpt-4")
	require.NoError(t, err)

	orphan := model.AssistantResponse{ID: "orphan", UserID: "u1", UserMessageID: "gone", Content: "lost", Model: "gpt-4"}
	require.NoError(t, db.Create(&orphan).Error)

	sweep := NewSweepService(store)
	removed, err := sweep.SweepOrphanResponses()
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// an intact pair is untouched, and re-running is a no-op
	history, err := store.FetchOrderedHistory("u1")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	removed, err = sweep.SweepOrphanResponses()
	require.NoError(t, err)
	assert.Zero(t, removed)
}
