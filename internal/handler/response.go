// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"cemtras-go/internal/errs"
	"cemtras-go/pkg/llm"

	"github.com/gin-gonic/gin"
)

// writeServiceError 把业务层错误映射为统一的 JSON 响应。
func writeServiceError(c *gin.Context, err error) {
	status, message := classifyServiceError(err)
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
	})
}

// classifyServiceError 返回业务错误对应的 HTTP 状态码与用户可读文案。
func classifyServiceError(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errs.ErrInvalidCredentials):
		return http.StatusUnauthorized, "无效的凭证"
	case errors.Is(err, errs.ErrDuplicateUser):
		return http.StatusConflict, "邮箱或手机号已被注册"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "资源不存在"
	case errors.Is(err, errs.ErrSessionBusy):
		return http.StatusConflict, "当前会话有未完成的请求，请稍候"
	case errors.Is(err, errs.ErrSessionBlocked):
		return http.StatusConflict, "会话存在未处理的错误，请先清除"
	case errors.Is(err, errs.ErrConfiguration):
		return http.StatusServiceUnavailable, "AI 服务未配置，请联系管理员"
	case errors.Is(err, llm.ErrAuth):
		return http.StatusServiceUnavailable, "AI 服务密钥无效"
	case errors.Is(err, llm.ErrQuota):
		return http.StatusServiceUnavailable, "AI 服务配额已用尽，请稍后重试"
	case errors.Is(err, llm.ErrBlocked):
		return http.StatusUnprocessableEntity, "内容被安全策略拦截，请调整提问"
	case errors.Is(err, llm.ErrEmpty):
		return http.StatusBadGateway, "AI 服务返回了空响应，请重试"
	default:
		return http.StatusInternalServerError, "服务器内部错误"
	}
}
