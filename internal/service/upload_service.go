// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"cemtras-go/internal/config"
	"cemtras-go/internal/errs"
	"cemtras-go/internal/model"
	"cemtras-go/internal/repository"
	"cemtras-go/pkg/log"
	"cemtras-go/pkg/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// presignedURLExpiry 是下载链接的有效期。
const presignedURLExpiry = time.Hour

// supportedExtensions 是允许作为会话附件上传的文件类型。
var supportedExtensions = map[string]struct{}{
	".pdf":  {},
	".doc":  {},
	".docx": {},
	".xls":  {},
	".xlsx": {},
	".txt":  {},
	".md":   {},
	".png":  {},
	".jpg":  {},
	".jpeg": {},
}

// UploadService 接口定义了会话附件的业务操作。
type UploadService interface {
	// Upload 把文件写入对象存储并记录元数据。
	Upload(ctx context.Context, userID, sessionID string, fileHeader *multipart.FileHeader) (*model.Attachment, error)
	// GetDownloadURL 为附件生成带时效的下载链接，校验归属。
	GetDownloadURL(ctx context.Context, userID, attachmentID string) (string, error)
	// ListBySession 返回某用户在某会话中上传的全部附件。
	ListBySession(ctx context.Context, userID, sessionID string) ([]model.Attachment, error)
}

type uploadService struct {
	attachmentRepo repository.AttachmentRepository
	minioCfg       config.MinIOConfig
}

// NewUploadService 创建一个新的 UploadService 实例。
func NewUploadService(attachmentRepo repository.AttachmentRepository, minioCfg config.MinIOConfig) UploadService {
	return &uploadService{
		attachmentRepo: attachmentRepo,
		minioCfg:       minioCfg,
	}
}

// Upload 把文件写入对象存储并记录元数据。
func (s *uploadService) Upload(ctx context.Context, userID, sessionID string, fileHeader *multipart.FileHeader) (*model.Attachment, error) {
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if _, ok := supportedExtensions[ext]; !ok {
		return nil, fmt.Errorf("%w: unsupported file type %q", errs.ErrValidation, ext)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer file.Close()

	// 对象名带用户前缀，避免跨用户命名冲突
	objectName := fmt.Sprintf("attachments/%s/%s%s", userID, uuid.NewString(), ext)
	contentType := fileHeader.Header.Get("Content-Type")

	if err := storage.PutObject(ctx, s.minioCfg.BucketName, objectName, file, fileHeader.Size, contentType); err != nil {
		log.Errorf("上传附件到对象存储失败: objectName=%s, error: %v", objectName, err)
		return nil, err
	}

	attachment := &model.Attachment{
		ID:          uuid.NewString(),
		UserID:      userID,
		SessionID:   sessionID,
		FileName:    fileHeader.Filename,
		ObjectName:  objectName,
		Size:        fileHeader.Size,
		ContentType: contentType,
		CreatedAt:   time.Now(),
	}
	if err := s.attachmentRepo.Create(attachment); err != nil {
		log.Errorf("保存附件元数据失败: objectName=%s, error: %v", objectName, err)
		return nil, err
	}

	log.Infof("附件上传成功: userID=%s, file=%s, size=%d", userID, fileHeader.Filename, fileHeader.Size)
	return attachment, nil
}

// GetDownloadURL 为附件生成带时效的下载链接，校验归属。
func (s *uploadService) GetDownloadURL(ctx context.Context, userID, attachmentID string) (string, error) {
	attachment, err := s.attachmentRepo.FindByID(attachmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", errs.ErrNotFound
		}
		return "", err
	}
	// 归属校验：他人附件视同不存在
	if attachment.UserID != userID {
		return "", errs.ErrNotFound
	}
	return storage.GetPresignedURL(ctx, s.minioCfg.BucketName, attachment.ObjectName, presignedURLExpiry)
}

// ListBySession 返回某用户在某会话中上传的全部附件。
func (s *uploadService) ListBySession(ctx context.Context, userID, sessionID string) ([]model.Attachment, error) {
	return s.attachmentRepo.FindBySession(userID, sessionID)
}
