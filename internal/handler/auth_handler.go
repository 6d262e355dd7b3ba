// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"regexp"

	"cemtras-go/internal/service"
	"cemtras-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// codePattern 校验验证码必须是 6 位数字，不满足的请求在查库前即拒绝。
var codePattern = regexp.MustCompile(`^\d{6}$`)

// AuthHandler 负责处理认证相关的 API 请求：验证码下发与校验、token 刷新。
type AuthHandler struct {
	userService service.UserService
	otpService  service.OTPService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(userService service.UserService, otpService service.OTPService) *AuthHandler {
	return &AuthHandler{userService: userService, otpService: otpService}
}

// SendOTPRequest 定义了重发验证码 API 的请求体结构。
type SendOTPRequest struct {
	Mobile string `json:"mobile" binding:"required"`
}

// SendOTP 处理验证码重发请求。新验证码覆盖该手机号既有的待验证记录。
func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req SendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：手机号不能为空"})
		return
	}

	// 只向已注册的手机号下发
	if _, err := h.userService.FindByMobile(req.Mobile); err != nil {
		log.Warnf("SendOTP: mobile '%s' not registered", req.Mobile)
		writeServiceError(c, err)
		return
	}

	entry, err := h.otpService.Send(c.Request.Context(), req.Mobile)
	if err != nil {
		log.Errorf("SendOTP: Failed to send OTP for '%s', error: %v", req.Mobile, err)
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "验证码已发送",
		"data":    otpData(entry),
	})
}

// VerifyOTPRequest 定义了验证码校验 API 的请求体结构。
type VerifyOTPRequest struct {
	Mobile string `json:"mobile" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

// VerifyOTP 处理验证码校验请求。校验成功即完成认证并签发 token 对。
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：手机号和验证码不能为空"})
		return
	}

	// 格式不合法的验证码直接拒绝，不触碰存储
	if !codePattern.MatchString(req.Code) {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "验证码必须是 6 位数字"})
		return
	}

	ok, err := h.otpService.Verify(c.Request.Context(), req.Mobile, req.Code)
	if err != nil {
		log.Errorf("VerifyOTP: verification error for '%s': %v", req.Mobile, err)
		writeServiceError(c, err)
		return
	}
	if !ok {
		log.Warnf("VerifyOTP: invalid or expired code for '%s'", req.Mobile)
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "验证码错误或已过期"})
		return
	}

	user, err := h.userService.FindByMobile(req.Mobile)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	accessToken, refreshToken, err := h.userService.IssueTokens(user)
	if err != nil {
		log.Errorf("VerifyOTP: failed to issue tokens for '%s': %v", user.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "签发 token 失败"})
		return
	}

	user.IsAuthenticated = true
	log.Infof("User '%s' completed OTP verification", user.Email)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "验证成功",
		"data": gin.H{
			"user":         user,
			"token":        accessToken,
			"refreshToken": refreshToken,
		},
	})
}

// RefreshTokenRequest 定义了刷新 token API 的请求体结构。
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshToken 处理刷新 token 的请求。
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("RefreshToken: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载：refreshToken 不能为空"})
		return
	}

	newAccessToken, newRefreshToken, err := h.userService.RefreshToken(req.RefreshToken)
	if err != nil {
		log.Warnf("RefreshToken: Failed to refresh token, error: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的 refresh token"})
		return
	}

	log.Info("Token refreshed successfully")
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Token refreshed successfully",
		"data": gin.H{
			"token":        newAccessToken,
			"refreshToken": newRefreshToken,
		},
	})
}
