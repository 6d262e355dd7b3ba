// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"cemtras-go/internal/service"
	"cemtras-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责处理会话附件的上传与下载请求。全部接口要求登录。
type UploadHandler struct {
	uploadService service.UploadService
	chatService   service.ChatService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService, chatService service.ChatService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService, chatService: chatService}
}

// Upload 处理附件上传：写入对象存储、记录元数据并关联到会话。
func (h *UploadHandler) Upload(c *gin.Context) {
	sessionID := c.PostForm("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少 sessionId 参数"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "未能获取上传的文件"})
		return
	}

	userID := currentUserID(c)

	// 会话必须存在且归属当前用户
	sess, err := h.chatService.GetSession(sessionID)
	if err != nil || sess.Owner() != userID {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在"})
		return
	}

	attachment, err := h.uploadService.Upload(c.Request.Context(), userID, sessionID, fileHeader)
	if err != nil {
		log.Error("Upload: failed to upload attachment", err)
		writeServiceError(c, err)
		return
	}

	// 上传成功后把文件名记入会话，模型可在后续对话中引用
	if err := h.chatService.AttachFile(sessionID, attachment.FileName); err != nil {
		log.Warnf("Upload: failed to attach file to session %s: %v", sessionID, err)
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文件上传成功",
		"data":    attachment,
	})
}

// GetDownloadURL 为附件生成带时效的下载链接。
func (h *UploadHandler) GetDownloadURL(c *gin.Context) {
	url, err := h.uploadService.GetDownloadURL(c.Request.Context(), currentUserID(c), c.Param("attachmentId"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"url": url},
	})
}

// ListBySession 返回某会话下当前用户上传的全部附件。
func (h *UploadHandler) ListBySession(c *gin.Context) {
	attachments, err := h.uploadService.ListBySession(c.Request.Context(), currentUserID(c), c.Param("sessionId"))
	if err != nil {
		log.Error("ListBySession: failed to list attachments", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取附件列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    attachments,
	})
}
