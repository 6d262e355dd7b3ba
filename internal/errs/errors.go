// Package errs 定义了业务层的哨兵错误，供 handler 统一映射为 HTTP 状态。
package errs

import "errors"

var (
	// ErrDuplicateUser 表示邮箱或手机号已被注册。
	ErrDuplicateUser = errors.New("user already exists")

	// ErrInvalidCredentials 表示登录标识不存在或密码不匹配。
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrValidation 表示请求在提交前即可判定非法（如 OTP 位数错误）。
	ErrValidation = errors.New("validation failed")

	// ErrNotFound 表示目标资源不存在；对历史记录的读取/删除按静默无操作处理。
	ErrNotFound = errors.New("not found")

	// ErrSessionBusy 表示会话已有一个未完成的模型调用。
	ErrSessionBusy = errors.New("session has a pending model call")

	// ErrSessionBlocked 表示会话存在未清除的错误，需先显式清除。
	ErrSessionBlocked = errors.New("session has an unresolved error")

	// ErrConfiguration 表示缺失必需配置（LLM API key），持续性错误。
	ErrConfiguration = errors.New("service is not configured")
)
