package repository

import (
	"Campus/internal/model"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "comm.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.Conversation{}, &model.Message{}))
	return db
}

func participant(branchID uint64, typ model.ParticipantType, id uint64, name string) *model.Participant {
	return &model.Participant{
		Key:  model.ParticipantKey{BranchID: branchID, Type: typ, ID: id},
		Name: name,
	}
}

func incoming(content string) *model.Message {
	return &model.Message{Direction: model.DirectionIncoming, Content: content}
}

func outgoing(content string) *model.Message {
	return &model.Message{Direction: model.DirectionOutgoing, Content: content}
}

func seedConversation(t *testing.T, repo ConversationRepo, p *model.Participant, msgs ...*model.Message) *model.Conversation {
	t.Helper()
	var conv *model.Conversation
	var err error
	for i, m := range msgs {
		if i == 0 {
			conv, err = repo.UpsertOnMessage(context.Background(), p, m, false)
		} else {
			conv, err = repo.AppendToConversation(context.Background(), conv.ID, m, false)
		}
		require.NoError(t, err)
	}
	return conv
}
