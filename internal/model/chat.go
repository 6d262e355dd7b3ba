package model

import "time"

// 消息角色常量。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 代表会话中的单条消息，创建后不可变。
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatHistory 代表一份持久化的对话快照，归属于单个用户和单个角色。
type ChatHistory struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Messages    []Message `json:"messages"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// OTPEntry 代表某个手机号当前待验证的一次性验证码。
// 每个手机号至多一条；重发覆盖，验证成功或过期后删除。
type OTPEntry struct {
	Mobile    string    `json:"mobile"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}
