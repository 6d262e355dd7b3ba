// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"time"

	"cemtras-go/internal/model"
	"cemtras-go/internal/repository"

	"github.com/google/uuid"
)

// titleLimit 是自动标题截取的字符数。
const titleLimit = 30

// HistoryService 定义了对话历史快照的业务操作。
type HistoryService interface {
	// Save 保存一份新快照。title 为空时从第一条用户消息自动生成标题。
	Save(ctx context.Context, userID, title string, messages []model.Message, role string) (model.ChatHistory, error)
	List(ctx context.Context, userID string) ([]model.ChatHistory, error)
	Get(ctx context.Context, userID, chatID string) (*model.ChatHistory, error)
	Update(ctx context.Context, userID, chatID string, messages []model.Message) error
	Delete(ctx context.Context, userID, chatID string) error
	Clear(ctx context.Context, userID string) error
}

type historyService struct {
	historyRepo repository.HistoryRepository
}

// NewHistoryService 创建一个新的 HistoryService 实例。
func NewHistoryService(historyRepo repository.HistoryRepository) HistoryService {
	return &historyService{historyRepo: historyRepo}
}

// autoTitle 从第一条用户消息生成标题：截取前 30 个字符并追加省略号。
// 没有用户消息时使用固定标题。
func autoTitle(messages []model.Message) string {
	for _, m := range messages {
		if m.Role == model.RoleUser {
			runes := []rune(m.Content)
			if len(runes) > titleLimit {
				runes = runes[:titleLimit]
			}
			return string(runes) + "..."
		}
	}
	return "New Chat"
}

func (s *historyService) Save(ctx context.Context, userID, title string, messages []model.Message, role string) (model.ChatHistory, error) {
	if title == "" {
		title = autoTitle(messages)
	}

	now := time.Now()
	history := model.ChatHistory{
		ID:          uuid.NewString(),
		Title:       title,
		Messages:    copyMessages(messages),
		Role:        role,
		CreatedAt:   now,
		LastUpdated: now,
	}
	return s.historyRepo.Save(ctx, userID, history)
}

func (s *historyService) List(ctx context.Context, userID string) ([]model.ChatHistory, error) {
	return s.historyRepo.List(ctx, userID)
}

func (s *historyService) Get(ctx context.Context, userID, chatID string) (*model.ChatHistory, error) {
	return s.historyRepo.Get(ctx, userID, chatID)
}

func (s *historyService) Update(ctx context.Context, userID, chatID string, messages []model.Message) error {
	return s.historyRepo.Update(ctx, userID, chatID, copyMessages(messages))
}

func (s *historyService) Delete(ctx context.Context, userID, chatID string) error {
	return s.historyRepo.Delete(ctx, userID, chatID)
}

func (s *historyService) Clear(ctx context.Context, userID string) error {
	return s.historyRepo.Clear(ctx, userID)
}

// copyMessages 按值复制消息序列，避免会话与持久化快照共享可变切片。
func copyMessages(messages []model.Message) []model.Message {
	out := make([]model.Message, len(messages))
	copy(out, messages)
	return out
}
