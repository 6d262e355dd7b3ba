// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"cemtras-go/internal/config"
	"cemtras-go/internal/errs"
	"cemtras-go/internal/format"
	"cemtras-go/internal/model"
	"cemtras-go/internal/prompt"
	"cemtras-go/pkg/llm"
	"cemtras-go/pkg/log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 会话状态。
const (
	stateIdle    = "idle"
	stateSending = "sending"
)

// sessionTTL 是空闲会话被清理前的最长存活时间。
const sessionTTL = 30 * time.Minute

// Session 是一次交互式对话的内存态。UserID 为空串表示游客会话。
// HistoryID 在首次自动保存后绑定到对应的历史快照。
type Session struct {
	ID          string          `json:"id"`
	UserID      string          `json:"-"`
	Role        prompt.Role     `json:"role"`
	Messages    []model.Message `json:"messages"`
	Attachments []string        `json:"attachments"`
	HistoryID   string          `json:"historyId,omitempty"`
	State       string          `json:"state"`
	LastError   string          `json:"lastError,omitempty"`

	mu         sync.Mutex
	lastActive time.Time
}

// SessionView 是会话状态的只读快照，供 handler 序列化返回。
type SessionView struct {
	ID          string          `json:"id"`
	Role        prompt.Role     `json:"role"`
	Messages    []model.Message `json:"messages"`
	Attachments []string        `json:"attachments"`
	HistoryID   string          `json:"historyId,omitempty"`
	State       string          `json:"state"`
	LastError   string          `json:"lastError,omitempty"`
	Guest       bool            `json:"guest"`
}

// Snapshot 返回会话当前状态的一致性副本。
func (s *Session) Snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionView{
		ID:          s.ID,
		Role:        s.Role,
		Messages:    copyMessages(s.Messages),
		Attachments: append([]string(nil), s.Attachments...),
		HistoryID:   s.HistoryID,
		State:       s.State,
		LastError:   s.LastError,
		Guest:       s.UserID == "",
	}
}

// Owner 返回会话归属的用户 ID，游客会话为空串。
func (s *Session) Owner() string {
	return s.UserID
}

// SendResult 是一次同步发送的结果：新产生的助手消息及其结构化分段。
type SendResult struct {
	Message  model.Message    `json:"message"`
	Sections []format.Section `json:"sections"`
}

// ChatService 定义了聊天会话的业务操作。
type ChatService interface {
	// CreateSession 创建新会话。游客会话 userID 传空串。
	CreateSession(userID string, role prompt.Role) *Session
	// GetSession 按 ID 查找会话，不存在时返回 errs.ErrNotFound。
	GetSession(sessionID string) (*Session, error)
	// SendMessage 同步发送一条用户消息并等待完整回答。
	SendMessage(ctx context.Context, sessionID, text string) (*SendResult, error)
	// StreamMessage 以流式方式发送一条用户消息，分块写入 websocket。
	StreamMessage(ctx context.Context, sessionID, text string, ws *websocket.Conn, shouldStop func() bool) error
	// LoadHistory 把一份历史快照整体载入会话。
	LoadHistory(ctx context.Context, sessionID, chatID string) error
	// NewChat 清空会话的消息、附件和历史绑定，保留角色。
	NewChat(sessionID string) error
	// SetRole 切换会话角色，作用于后续发送。
	SetRole(sessionID string, role prompt.Role) error
	// ClearError 清除会话的未决错误，恢复可发送状态。
	ClearError(sessionID string) error
	// AttachFile 把一个已上传文件关联到会话。
	AttachFile(sessionID, fileName string) error
	// DeleteSession 移除会话。
	DeleteSession(sessionID string)
}

type chatService struct {
	llmClient      llm.Client
	historyService HistoryService

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewChatService 创建一个新的 ChatService 实例，并启动空闲会话清理任务。
func NewChatService(llmClient llm.Client, historyService HistoryService) ChatService {
	s := &chatService{
		llmClient:      llmClient,
		historyService: historyService,
		sessions:       make(map[string]*Session),
	}
	go s.janitor()
	return s
}

func (s *chatService) CreateSession(userID string, role prompt.Role) *Session {
	sess := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		Role:       role,
		State:      stateIdle,
		lastActive: time.Now(),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

func (s *chatService) GetSession(sessionID string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, errs.ErrNotFound
	}
	return sess, nil
}

func (s *chatService) DeleteSession(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// beginSend 执行发送前的守卫并乐观追加用户消息。
// 返回发送所需的快照（角色、对话上下文），避免在模型调用期间持锁。
func (s *chatService) beginSend(sessionID, text string) (*Session, prompt.Role, string, error) {
	// 配置缺失是持续性错误，先于一切会话状态检查
	if config.Conf.LLM.APIKey == "" {
		return nil, "", "", errs.ErrConfiguration
	}

	sess, err := s.GetSession(sessionID)
	if err != nil {
		return nil, "", "", err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.State == stateSending {
		return nil, "", "", errs.ErrSessionBusy
	}
	if sess.LastError != "" {
		return nil, "", "", errs.ErrSessionBlocked
	}

	// 乐观追加：失败时用户消息仍保留在会话中
	sess.Messages = append(sess.Messages, model.Message{
		ID:        uuid.NewString(),
		Role:      model.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	})
	sess.State = stateSending
	sess.lastActive = time.Now()

	return sess, sess.Role, buildConversationText(sess.Messages, sess.Attachments), nil
}

// finishSend 记录模型调用结果并触发自动保存。
// 成功时追加助手消息并返回它；失败时只记录错误，不产生助手消息。
func (s *chatService) finishSend(sess *Session, answer string, callErr error) *model.Message {
	sess.mu.Lock()
	sess.State = stateIdle
	sess.lastActive = time.Now()

	var msg *model.Message
	if callErr != nil {
		sess.LastError = callErr.Error()
	} else {
		m := model.Message{
			ID:        uuid.NewString(),
			Role:      model.RoleAssistant,
			Content:   answer,
			Timestamp: time.Now(),
		}
		sess.Messages = append(sess.Messages, m)
		msg = &m
	}

	userID := sess.UserID
	historyID := sess.HistoryID
	role := sess.Role
	messages := copyMessages(sess.Messages)
	sess.mu.Unlock()

	// 自动保存在锁外执行；即使原始请求已取消也要保住已生成的回答
	if shouldAutoSave(userID, messages) {
		s.autoPersist(context.Background(), sess, userID, historyID, string(role), messages)
	}
	return msg
}

func (s *chatService) SendMessage(ctx context.Context, sessionID, text string) (*SendResult, error) {
	sess, role, conversation, err := s.beginSend(sessionID, text)
	if err != nil {
		return nil, err
	}

	payload := prompt.Build(role, conversation)
	answer, callErr := s.llmClient.Generate(ctx, payload.SystemInstruction, payload.UserText, nil)

	msg := s.finishSend(sess, answer, callErr)
	if callErr != nil {
		return nil, callErr
	}
	return &SendResult{
		Message:  *msg,
		Sections: format.ParseSections(msg.Content),
	}, nil
}

// StreamMessage 以流式方式调用模型并通过 websocket 下发分块。
func (s *chatService) StreamMessage(ctx context.Context, sessionID, text string, ws *websocket.Conn, shouldStop func() bool) error {
	sess, role, conversation, err := s.beginSend(sessionID, text)
	if err != nil {
		return err
	}

	// 拦截 websocket writer 以捕获完整答案，并包装为 JSON 分块
	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	payload := prompt.Build(role, conversation)
	_, callErr := s.llmClient.StreamGenerate(ctx, payload.SystemInstruction, payload.UserText, nil, interceptor)

	msg := s.finishSend(sess, answerBuilder.String(), callErr)
	if callErr != nil {
		return callErr
	}

	// 流结束后下发结构化分段，与同步路径共用后处理器
	sendSections(ws, msg)
	sendCompletion(ws)
	return nil
}

// sendSections 把完整回答的结构化分段作为独立帧下发。
func sendSections(ws *websocket.Conn, msg *model.Message) {
	if msg == nil {
		return
	}
	frame := map[string]interface{}{
		"type":      "sections",
		"messageId": msg.ID,
		"sections":  format.ParseSections(msg.Content),
	}
	b, _ := json.Marshal(frame)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}

func (s *chatService) LoadHistory(ctx context.Context, sessionID, chatID string) error {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	userID := sess.UserID
	busy := sess.State == stateSending
	sess.mu.Unlock()
	if busy {
		return errs.ErrSessionBusy
	}

	history, err := s.historyService.Get(ctx, userID, chatID)
	if err != nil {
		return err
	}
	if history == nil {
		return errs.ErrNotFound
	}

	role, err := prompt.Parse(history.Role)
	if err != nil {
		// 历史快照里的未知角色回退为会话当前角色
		log.Warnf("历史快照包含未知角色: %q, chatID: %s", history.Role, chatID)
		role = sess.Role
	}

	sess.mu.Lock()
	sess.Messages = copyMessages(history.Messages)
	sess.Role = role
	sess.HistoryID = history.ID
	sess.Attachments = nil
	sess.LastError = ""
	sess.lastActive = time.Now()
	sess.mu.Unlock()
	return nil
}

func (s *chatService) NewChat(sessionID string) error {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.State == stateSending {
		return errs.ErrSessionBusy
	}
	sess.Messages = nil
	sess.Attachments = nil
	sess.HistoryID = ""
	sess.LastError = ""
	sess.lastActive = time.Now()
	return nil
}

func (s *chatService) SetRole(sessionID string, role prompt.Role) error {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.State == stateSending {
		return errs.ErrSessionBusy
	}
	sess.Role = role
	sess.lastActive = time.Now()
	return nil
}

func (s *chatService) ClearError(sessionID string) error {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.LastError = ""
	sess.lastActive = time.Now()
	return nil
}

func (s *chatService) AttachFile(sessionID, fileName string) error {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.Attachments = append(sess.Attachments, fileName)
	sess.lastActive = time.Now()
	return nil
}

// shouldAutoSave 判定自动保存条件：
// 已登录、至少两条消息且用户与助手各至少一条。
func shouldAutoSave(userID string, messages []model.Message) bool {
	if userID == "" || len(messages) < 2 {
		return false
	}
	var hasUser, hasAssistant bool
	for _, m := range messages {
		switch m.Role {
		case model.RoleUser:
			hasUser = true
		case model.RoleAssistant:
			hasAssistant = true
		}
	}
	return hasUser && hasAssistant
}

// autoPersist 把会话消息写入历史：首次保存绑定快照 ID，其后原位更新。
func (s *chatService) autoPersist(ctx context.Context, sess *Session, userID, historyID, role string, messages []model.Message) {
	if historyID == "" {
		history, err := s.historyService.Save(ctx, userID, "", messages, role)
		if err != nil {
			// 只记录错误，自动保存失败不影响对话本身
			log.Errorf("自动保存对话历史失败: userID=%s, error: %v", userID, err)
			return
		}
		sess.mu.Lock()
		sess.HistoryID = history.ID
		sess.mu.Unlock()
		return
	}
	if err := s.historyService.Update(ctx, userID, historyID, messages); err != nil {
		log.Errorf("自动更新对话历史失败: userID=%s, chatID=%s, error: %v", userID, historyID, err)
	}
}

// buildConversationText 把会话上下文与新问题拼接为单轮模型输入。
// 最后一条消息是刚追加的用户问题。
func buildConversationText(messages []model.Message, attachments []string) string {
	if len(messages) == 0 {
		return ""
	}
	question := messages[len(messages)-1].Content
	prior := messages[:len(messages)-1]

	var sb strings.Builder
	if len(prior) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, m := range prior {
			label := "User"
			if m.Role == model.RoleAssistant {
				label = "Assistant"
			}
			sb.WriteString(label)
			sb.WriteString(": ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if len(attachments) > 0 {
		sb.WriteString("Files attached by the user: ")
		sb.WriteString(strings.Join(attachments, ", "))
		sb.WriteString("\n\n")
	}
	sb.WriteString(question)
	return sb.String()
}

// janitor 周期性清理超过 sessionTTL 未活跃的会话。
func (s *chatService) janitor() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-sessionTTL)
		s.mu.Lock()
		for id, sess := range s.sessions {
			sess.mu.Lock()
			idle := sess.State == stateIdle && sess.lastActive.Before(cutoff)
			sess.mu.Unlock()
			if idle {
				delete(s.sessions, id)
			}
		}
		s.mu.Unlock()
	}
}

// wsWriterInterceptor 是对 websocket.Conn 的封装，用于捕获写入的消息。
type wsWriterInterceptor struct {
	conn       *websocket.Conn
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}
