// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"

	"cemtras-go/internal/config"
	"cemtras-go/pkg/log"
	"cemtras-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// DeliveryProcessor defines the interface for any service that can deliver an OTP task.
// This decouples the Kafka consumer from the concrete gateway implementation.
type DeliveryProcessor interface {
	Deliver(ctx context.Context, task tasks.OTPDeliveryTask) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceOTPDelivery 发送一个 OTP 投递任务到 Kafka。
func ProduceOTPDelivery(ctx context.Context, task tasks.OTPDeliveryTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return producer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(task.Mobile),
			Value: taskBytes,
		},
	)
}

// StartConsumer 启动一个 Kafka 消费者来处理 OTP 投递任务。
func StartConsumer(cfg config.KafkaConfig, processor DeliveryProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "cemtras-go-otp-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break
		}

		var task tasks.OTPDeliveryTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		// 验证码有 60 秒时效，投递失败没有重试价值，直接提交 offset
		if err := processor.Deliver(context.Background(), task); err != nil {
			log.Errorf("OTP 投递失败: mobile=%s, error: %v", task.Mobile, err)
		}
		if err := r.CommitMessages(context.Background(), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}

// LogGateway 是 DeliveryProcessor 的演示实现：仅把投递动作写入日志，
// 模拟向短信网关的移交。真实部署应替换为网关客户端。
type LogGateway struct{}

// Deliver 记录一次模拟的短信投递。
func (LogGateway) Deliver(_ context.Context, task tasks.OTPDeliveryTask) error {
	log.Infow("模拟短信投递",
		"mobile", task.Mobile,
		"code", task.Code,
		"expiresAt", task.ExpiresAt,
	)
	return nil
}
