// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"cemtras-go/internal/model"
	"cemtras-go/internal/service"
	"cemtras-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// HistoryHandler 处理与对话历史快照相关的 API 请求。全部接口要求登录。
type HistoryHandler struct {
	historyService service.HistoryService
}

// NewHistoryHandler 创建一个新的 HistoryHandler。
func NewHistoryHandler(historyService service.HistoryService) *HistoryHandler {
	return &HistoryHandler{historyService: historyService}
}

// List 返回当前用户的全部历史快照，最近更新的在前。
func (h *HistoryHandler) List(c *gin.Context) {
	histories, err := h.historyService.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		log.Errorf("获取历史列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取对话历史失败",
			"data":    nil,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    histories,
	})
}

// Get 返回单份历史快照。
func (h *HistoryHandler) Get(c *gin.Context) {
	history, err := h.historyService.Get(c.Request.Context(), currentUserID(c), c.Param("chatId"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if history == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "资源不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": history})
}

// UpdateHistoryRequest 定义了更新历史快照 API 的请求体结构。
type UpdateHistoryRequest struct {
	Messages []model.Message `json:"messages" binding:"required"`
}

// Update 整体替换一份历史快照的消息序列。目标不存在时静默成功。
func (h *HistoryHandler) Update(c *gin.Context) {
	var req UpdateHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：messages 不能为空"})
		return
	}

	if err := h.historyService.Update(c.Request.Context(), currentUserID(c), c.Param("chatId"), req.Messages); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// Delete 删除一份历史快照。目标不存在时静默成功。
func (h *HistoryHandler) Delete(c *gin.Context) {
	if err := h.historyService.Delete(c.Request.Context(), currentUserID(c), c.Param("chatId")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// Clear 清空当前用户的全部历史快照。
func (h *HistoryHandler) Clear(c *gin.Context) {
	if err := h.historyService.Clear(c.Request.Context(), currentUserID(c)); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}
