// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// OTPDeliveryTask 表示一条待投递的 OTP 短信任务。
// 验证码本身随事件投递给短信网关；演示部署中由日志消费者模拟网关。
type OTPDeliveryTask struct {
	Mobile    string    `json:"mobile"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	SentAt    time.Time `json:"sent_at"`
}
