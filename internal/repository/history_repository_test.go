package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cemtras-go/internal/model"
	"cemtras-go/pkg/kv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(id, title string) model.ChatHistory {
	now := time.Now()
	return model.ChatHistory{
		ID:    id,
		Title: title,
		Messages: []model.Message{
			{ID: id + "-u", Role: model.RoleUser, Content: "q", Timestamp: now},
			{ID: id + "-a", Role: model.RoleAssistant, Content: "a", Timestamp: now},
		},
		Role:        "Operations",
		CreatedAt:   now,
		LastUpdated: now,
	}
}

func TestHistoryRepoSavePrependsAndTruncates(t *testing.T) {
	repo := NewHistoryRepository(kv.NewMemoryStore())
	ctx := context.Background()

	for i := 1; i <= MaxHistories+2; i++ {
		_, err := repo.Save(ctx, "u1", snapshot(fmt.Sprintf("id-%d", i), fmt.Sprintf("t-%d", i)))
		require.NoError(t, err)
	}

	histories, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, histories, MaxHistories)
	// 最新的在头部
	assert.Equal(t, fmt.Sprintf("id-%d", MaxHistories+2), histories[0].ID)
	// 最早的两条被挤出
	assert.Equal(t, "id-3", histories[MaxHistories-1].ID)
}

func TestHistoryRepoGetMissingReturnsNil(t *testing.T) {
	repo := NewHistoryRepository(kv.NewMemoryStore())

	got, err := repo.Get(context.Background(), "u1", "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHistoryRepoUpdateReplacesMessages(t *testing.T) {
	repo := NewHistoryRepository(kv.NewMemoryStore())
	ctx := context.Background()

	saved, err := repo.Save(ctx, "u1", snapshot("id-1", "t"))
	require.NoError(t, err)

	replacement := []model.Message{{ID: "only", Role: model.RoleUser, Content: "edited"}}
	require.NoError(t, repo.Update(ctx, "u1", "id-1", replacement))

	got, err := repo.Get(ctx, "u1", "id-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "edited", got.Messages[0].Content)
	assert.False(t, got.LastUpdated.Before(saved.LastUpdated))
}

func TestHistoryRepoUpdateMissingIsNoOp(t *testing.T) {
	repo := NewHistoryRepository(kv.NewMemoryStore())
	assert.NoError(t, repo.Update(context.Background(), "u1", "missing", nil))
}

func TestHistoryRepoDeleteAndClear(t *testing.T) {
	repo := NewHistoryRepository(kv.NewMemoryStore())
	ctx := context.Background()

	_, err := repo.Save(ctx, "u1", snapshot("id-1", "t1"))
	require.NoError(t, err)
	_, err = repo.Save(ctx, "u1", snapshot("id-2", "t2"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "u1", "id-1"))
	histories, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, histories, 1)
	assert.Equal(t, "id-2", histories[0].ID)

	require.NoError(t, repo.Clear(ctx, "u1"))
	histories, err = repo.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, histories)
}

func TestHistoryRepoCorruptPayloadTreatedAsEmpty(t *testing.T) {
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), "chat_histories:u1", "{not json", 0))

	repo := NewHistoryRepository(store)
	histories, err := repo.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, histories)
}
