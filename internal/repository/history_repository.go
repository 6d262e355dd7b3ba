// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cemtras-go/internal/model"
	"cemtras-go/pkg/kv"
)

// MaxHistories 是单个用户可保留的对话历史上限（跨所有角色的全局上限）。
const MaxHistories = 10

// HistoryRepository 定义了对话历史快照的操作接口。
// 存储粒度为用户：每个用户一个键，值为按最近优先排序的快照列表。
type HistoryRepository interface {
	// Save 把新快照插入列表头部并截断到上限，返回保存后的快照。
	Save(ctx context.Context, userID string, history model.ChatHistory) (model.ChatHistory, error)
	// List 返回用户的全部快照，最近的在前。
	List(ctx context.Context, userID string) ([]model.ChatHistory, error)
	// Get 返回指定快照；不存在时返回 nil。
	Get(ctx context.Context, userID, chatID string) (*model.ChatHistory, error)
	// Update 整体替换指定快照的消息并刷新 lastUpdated；id 不存在时静默无操作。
	Update(ctx context.Context, userID, chatID string, messages []model.Message) error
	// Delete 删除一条快照。
	Delete(ctx context.Context, userID, chatID string) error
	// Clear 删除该用户的全部快照。
	Clear(ctx context.Context, userID string) error
}

type kvHistoryRepository struct {
	store kv.Store
}

// NewHistoryRepository 创建一个基于键值存储的 HistoryRepository。
func NewHistoryRepository(store kv.Store) HistoryRepository {
	return &kvHistoryRepository{store: store}
}

func historyKey(userID string) string {
	return fmt.Sprintf("chat_histories:%s", userID)
}

// load 读取用户的快照列表。键缺失或内容损坏都按空列表处理。
func (r *kvHistoryRepository) load(ctx context.Context, userID string) []model.ChatHistory {
	raw, err := r.store.Get(ctx, historyKey(userID))
	if err != nil {
		return []model.ChatHistory{}
	}
	var histories []model.ChatHistory
	if err := json.Unmarshal([]byte(raw), &histories); err != nil {
		return []model.ChatHistory{}
	}
	return histories
}

func (r *kvHistoryRepository) persist(ctx context.Context, userID string, histories []model.ChatHistory) error {
	data, err := json.Marshal(histories)
	if err != nil {
		return fmt.Errorf("failed to marshal chat histories: %w", err)
	}
	return r.store.Set(ctx, historyKey(userID), string(data), 0)
}

func (r *kvHistoryRepository) Save(ctx context.Context, userID string, history model.ChatHistory) (model.ChatHistory, error) {
	histories := r.load(ctx, userID)
	updated := append([]model.ChatHistory{history}, histories...)
	if len(updated) > MaxHistories {
		updated = updated[:MaxHistories]
	}
	if err := r.persist(ctx, userID, updated); err != nil {
		return model.ChatHistory{}, err
	}
	return history, nil
}

func (r *kvHistoryRepository) List(ctx context.Context, userID string) ([]model.ChatHistory, error) {
	return r.load(ctx, userID), nil
}

func (r *kvHistoryRepository) Get(ctx context.Context, userID, chatID string) (*model.ChatHistory, error) {
	for _, h := range r.load(ctx, userID) {
		if h.ID == chatID {
			found := h
			return &found, nil
		}
	}
	return nil, nil
}

func (r *kvHistoryRepository) Update(ctx context.Context, userID, chatID string, messages []model.Message) error {
	histories := r.load(ctx, userID)
	for i := range histories {
		if histories[i].ID == chatID {
			histories[i].Messages = messages
			histories[i].LastUpdated = time.Now()
			return r.persist(ctx, userID, histories)
		}
	}
	// id 不存在：静默无操作
	return nil
}

func (r *kvHistoryRepository) Delete(ctx context.Context, userID, chatID string) error {
	histories := r.load(ctx, userID)
	filtered := histories[:0]
	for _, h := range histories {
		if h.ID != chatID {
			filtered = append(filtered, h)
		}
	}
	return r.persist(ctx, userID, filtered)
}

func (r *kvHistoryRepository) Clear(ctx context.Context, userID string) error {
	return r.store.Delete(ctx, historyKey(userID))
}
