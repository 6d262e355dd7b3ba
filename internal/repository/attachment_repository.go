// Package repository 定义了与数据存储进行数据交换的接口和实现。
package repository

import (
	"cemtras-go/internal/model"

	"gorm.io/gorm"
)

// AttachmentRepository 接口定义了会话附件元数据的持久化操作。
type AttachmentRepository interface {
	Create(attachment *model.Attachment) error
	FindByID(id string) (*model.Attachment, error)
	FindBySession(userID, sessionID string) ([]model.Attachment, error)
}

type attachmentRepository struct {
	db *gorm.DB
}

// NewAttachmentRepository 创建一个新的 AttachmentRepository 实例。
func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

// Create 在数据库中创建一条附件记录。
func (r *attachmentRepository) Create(attachment *model.Attachment) error {
	return r.db.Create(attachment).Error
}

// FindByID 根据附件 ID 查找一条记录。
func (r *attachmentRepository) FindByID(id string) (*model.Attachment, error) {
	var attachment model.Attachment
	err := r.db.Where("id = ?", id).First(&attachment).Error
	if err != nil {
		return nil, err
	}
	return &attachment, nil
}

// FindBySession 返回某用户在某会话中上传的全部附件。
func (r *attachmentRepository) FindBySession(userID, sessionID string) ([]model.Attachment, error) {
	var attachments []model.Attachment
	err := r.db.Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("created_at ASC").Find(&attachments).Error
	return attachments, err
}
