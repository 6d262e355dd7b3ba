// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strings"

	"cemtras-go/internal/config"
	"cemtras-go/internal/model"
	"cemtras-go/internal/service"
	"cemtras-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UserHandler 负责处理所有与普通用户相关的 API 请求。
// 注册与登录均不直接返回 token：凭证校验通过后触发 OTP 下发，
// token 由 /auth/otp/verify 在验证码校验成功后签发。
type UserHandler struct {
	userService service.UserService
	otpService  service.OTPService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService, otpService service.OTPService) *UserHandler {
	return &UserHandler{userService: userService, otpService: otpService}
}

// RegisterRequest 定义了用户注册 API 的请求体结构。
type RegisterRequest struct {
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Mobile   string `json:"mobile" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

// Register 处理用户注册请求：创建记录并向手机号下发验证码。
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	// 绑定并验证 JSON 请求体
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Register: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：姓名、邮箱、手机号和密码均为必填",
		})
		return
	}

	user, err := h.userService.Register(req.FullName, req.Email, req.Mobile, req.Password)
	if err != nil {
		log.Warnf("Register: User registration failed for '%s', error: %v", req.Email, err)
		writeServiceError(c, err)
		return
	}

	entry, err := h.otpService.Send(c.Request.Context(), user.Mobile)
	if err != nil {
		log.Errorf("Register: Failed to send OTP for '%s', error: %v", user.Mobile, err)
		writeServiceError(c, err)
		return
	}

	log.Infof("User '%s' registered successfully, OTP sent to %s", user.Email, user.Mobile)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "注册成功，验证码已发送",
		"data":    otpData(entry),
	})
}

// LoginRequest 定义了用户登录 API 的请求体结构。
// Identifier 可以是邮箱或手机号。
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// Login 处理用户登录请求：密码校验通过后向绑定手机号下发验证码。
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：登录标识和密码不能为空",
		})
		return
	}

	user, err := h.userService.Authenticate(req.Identifier, req.Password)
	if err != nil {
		log.Warnf("Login: User authentication failed for '%s', error: %v", req.Identifier, err)
		writeServiceError(c, err)
		return
	}

	entry, err := h.otpService.Send(c.Request.Context(), user.Mobile)
	if err != nil {
		log.Errorf("Login: Failed to send OTP for '%s', error: %v", user.Mobile, err)
		writeServiceError(c, err)
		return
	}

	log.Infof("User '%s' passed password check, OTP sent to %s", user.Email, user.Mobile)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "密码校验通过，验证码已发送",
		"data":    otpData(entry),
	})
}

// otpData 组装验证码下发响应。演示环境回显验证码本身。
func otpData(entry *model.OTPEntry) gin.H {
	data := gin.H{
		"mobile":    entry.Mobile,
		"expiresAt": model.LocalTime(entry.ExpiresAt),
	}
	if config.Conf.OTP.EchoCode {
		data["code"] = entry.Code
	}
	return data
}

// GetProfile 获取当前登录用户的个人信息。
// 用户信息已经由 AuthMiddleware 注入到上下文中。
func (h *UserHandler) GetProfile(c *gin.Context) {
	// 从上下文中获取由 AuthMiddleware 注入的 User 对象
	userValue, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}
	user, ok := userValue.(*model.User)
	if !ok || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "用户数据类型错误"})
		return
	}

	// 能走到这里说明 token 有效
	user.IsAuthenticated = true
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": user, "message": "success"})
}

// Logout 处理用户登出逻辑。
func (h *UserHandler) Logout(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	if err := h.userService.Logout(c.Request.Context(), tokenString); err != nil {
		log.Error("Logout: Failed to logout", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "登出失败",
		})
		return
	}

	if userValue, ok := c.Get("user"); ok {
		if user, ok := userValue.(*model.User); ok {
			log.Infof("User '%s' logged out successfully", user.Email)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "登出成功"})
}
