// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cemtras-go/internal/model"
	"cemtras-go/pkg/kv"
)

// OTPRepository 定义了一次性验证码的存储接口。
// 每个手机号至多一条待验证记录；写入覆盖旧记录。
type OTPRepository interface {
	Put(ctx context.Context, entry model.OTPEntry, ttl time.Duration) error
	// Get 返回手机号的待验证记录；不存在时返回 nil。
	Get(ctx context.Context, mobile string) (*model.OTPEntry, error)
	Delete(ctx context.Context, mobile string) error
}

type kvOTPRepository struct {
	store kv.Store
}

// NewOTPRepository 创建一个基于键值存储的 OTPRepository。
func NewOTPRepository(store kv.Store) OTPRepository {
	return &kvOTPRepository{store: store}
}

func otpKey(mobile string) string {
	return fmt.Sprintf("otp:%s", mobile)
}

func (r *kvOTPRepository) Put(ctx context.Context, entry model.OTPEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal otp entry: %w", err)
	}
	return r.store.Set(ctx, otpKey(entry.Mobile), string(data), ttl)
}

func (r *kvOTPRepository) Get(ctx context.Context, mobile string) (*model.OTPEntry, error) {
	raw, err := r.store.Get(ctx, otpKey(mobile))
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry model.OTPEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// 损坏的记录按不存在处理
		return nil, nil
	}
	return &entry, nil
}

func (r *kvOTPRepository) Delete(ctx context.Context, mobile string) error {
	return r.store.Delete(ctx, otpKey(mobile))
}
