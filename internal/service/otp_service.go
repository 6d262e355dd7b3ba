// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"cemtras-go/internal/model"
	"cemtras-go/internal/repository"
	"cemtras-go/pkg/log"
	"cemtras-go/pkg/tasks"
)

// OTPNotifier 把待投递的验证码移交给下游通道（生产环境为 Kafka 生产者）。
type OTPNotifier interface {
	Notify(ctx context.Context, task tasks.OTPDeliveryTask) error
}

// OTPService 定义了一次性验证码的业务操作。
// 每个手机号的状态机：NoPending -> Pending -> {Consumed | Expired} = NoPending。
type OTPService interface {
	// Send 生成一个 6 位随机验证码并覆盖该手机号既有的待验证记录。
	// 返回的记录包含验证码本身（演示用途，生产环境不应回显）。
	Send(ctx context.Context, mobile string) (*model.OTPEntry, error)
	// Verify 校验验证码。无记录、已过期（顺带删除记录）或不匹配时返回 false；
	// 成功时删除记录（一次性使用）并返回 true。
	Verify(ctx context.Context, mobile, code string) (bool, error)
}

type otpService struct {
	otpRepo  repository.OTPRepository
	notifier OTPNotifier
	expiry   time.Duration
	now      func() time.Time
}

// NewOTPService 创建一个新的 OTPService 实例。
// expireSeconds 为 0 时使用默认的 60 秒。
func NewOTPService(otpRepo repository.OTPRepository, notifier OTPNotifier, expireSeconds int) OTPService {
	if expireSeconds <= 0 {
		expireSeconds = 60
	}
	return &otpService{
		otpRepo:  otpRepo,
		notifier: notifier,
		expiry:   time.Duration(expireSeconds) * time.Second,
		now:      time.Now,
	}
}

// generateCode 生成均匀分布的 6 位数字验证码。
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func (s *otpService) Send(ctx context.Context, mobile string) (*model.OTPEntry, error) {
	code, err := generateCode()
	if err != nil {
		return nil, err
	}

	entry := model.OTPEntry{
		Mobile:    mobile,
		Code:      code,
		ExpiresAt: s.now().Add(s.expiry),
	}
	// 覆盖既有待验证记录
	if err := s.otpRepo.Put(ctx, entry, s.expiry); err != nil {
		return nil, err
	}

	// 投递是尽力而为：通道故障不阻塞发送，验证码仍可通过演示回显获取
	if s.notifier != nil {
		task := tasks.OTPDeliveryTask{
			Mobile:    entry.Mobile,
			Code:      entry.Code,
			ExpiresAt: entry.ExpiresAt,
			SentAt:    s.now(),
		}
		if err := s.notifier.Notify(ctx, task); err != nil {
			log.Warnf("OTP 投递事件发布失败: mobile=%s, error: %v", mobile, err)
		}
	}

	return &entry, nil
}

func (s *otpService) Verify(ctx context.Context, mobile, code string) (bool, error) {
	entry, err := s.otpRepo.Get(ctx, mobile)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}

	if s.now().After(entry.ExpiresAt) {
		// 过期记录顺带清理
		if err := s.otpRepo.Delete(ctx, mobile); err != nil {
			return false, err
		}
		return false, nil
	}

	if entry.Code != code {
		// 不匹配：记录保持待验证状态
		return false, nil
	}

	// 验证成功，一次性使用
	if err := s.otpRepo.Delete(ctx, mobile); err != nil {
		return false, err
	}
	return true, nil
}
