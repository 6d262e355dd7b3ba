// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Attachment 定义了 chat_attachments 表的 ORM 模型。
// 记录用户在会话中上传的文件元数据，文件本体存于对象存储。
type Attachment struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID      string    `gorm:"type:varchar(36);index;not null" json:"userId"`
	SessionID   string    `gorm:"type:varchar(36);index;not null" json:"sessionId"`
	FileName    string    `gorm:"type:varchar(255);not null" json:"fileName"`
	ObjectName  string    `gorm:"type:varchar(255);not null" json:"objectName"`
	Size        int64     `gorm:"not null" json:"size"`
	ContentType string    `gorm:"type:varchar(100)" json:"contentType"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Attachment) TableName() string {
	return "chat_attachments"
}
