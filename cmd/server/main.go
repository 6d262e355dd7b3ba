// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cemtras-go/internal/config"
	"cemtras-go/internal/handler"
	"cemtras-go/internal/middleware"
	"cemtras-go/internal/model"
	"cemtras-go/internal/repository"
	"cemtras-go/internal/service"
	"cemtras-go/pkg/database"
	"cemtras-go/pkg/kafka"
	"cemtras-go/pkg/kv"
	"cemtras-go/pkg/llm"
	"cemtras-go/pkg/log"
	"cemtras-go/pkg/storage"
	"cemtras-go/pkg/tasks"
	"cemtras-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// kafkaNotifier 把验证码投递任务发布到 Kafka，实现 service.OTPNotifier。
type kafkaNotifier struct{}

func (kafkaNotifier) Notify(ctx context.Context, task tasks.OTPDeliveryTask) error {
	return kafka.ProduceOTPDelivery(ctx, task)
}

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 缺失 API key 不阻止启动：聊天接口会对每次请求返回配置错误
	if cfg.LLM.APIKey == "" {
		log.Warnf("llm.api_key 未配置，AI 回答功能不可用")
	}

	// 3. 初始化数据库、Redis、MinIO 和 Kafka
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	kafka.InitProducer(cfg.Kafka)

	if err := database.DB.AutoMigrate(&model.User{}, &model.Attachment{}); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	// 4. 初始化 Repository
	redisStore := kv.NewRedisStore(database.RDB)
	userRepository := repository.NewUserRepository(database.DB)
	historyRepository := repository.NewHistoryRepository(redisStore)
	otpRepository := repository.NewOTPRepository(redisStore)
	attachmentRepository := repository.NewAttachmentRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	llmClient := llm.NewClient(cfg.LLM)
	userService := service.NewUserService(userRepository, redisStore, jwtManager)
	otpService := service.NewOTPService(otpRepository, kafkaNotifier{}, cfg.OTP.ExpireSeconds)
	historyService := service.NewHistoryService(historyRepository)
	chatService := service.NewChatService(llmClient, historyService)
	uploadService := service.NewUploadService(attachmentRepository, cfg.MinIO)

	// 6. 启动后台 Kafka 消费者：把验证码投递事件移交给（模拟的）短信网关
	go kafka.StartConsumer(cfg.Kafka, kafka.LogGateway{})

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	limiterStore := middleware.NewLimiterStore(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)

	userHandler := handler.NewUserHandler(userService, otpService)
	authHandler := handler.NewAuthHandler(userService, otpService)
	chatHandler := handler.NewChatHandler(chatService, userService, jwtManager)
	historyHandler := handler.NewHistoryHandler(historyService)
	uploadHandler := handler.NewUploadHandler(uploadService, chatService)

	// 8. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组：验证码下发/校验与 token 刷新（限流防爆破）
		auth := apiV1.Group("/auth")
		auth.Use(middleware.RateLimit(limiterStore))
		{
			auth.POST("/refreshToken", authHandler.RefreshToken)
			auth.POST("/otp/send", authHandler.SendOTP)
			auth.POST("/otp/verify", authHandler.VerifyOTP)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问，限流防爆破)
			users.POST("/register", middleware.RateLimit(limiterStore), userHandler.Register)
			users.POST("/login", middleware.RateLimit(limiterStore), userHandler.Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		// Chat 路由组：游客可用，登录用户自动注入身份
		chat := apiV1.Group("/chat")
		chat.Use(middleware.OptionalAuthMiddleware(jwtManager, userService), middleware.RateLimit(limiterStore))
		{
			chat.POST("/sessions", chatHandler.CreateSession)
			chat.GET("/sessions/:sessionId", chatHandler.GetSession)
			chat.POST("/sessions/:sessionId/messages", chatHandler.SendMessage)
			chat.POST("/sessions/:sessionId/new", chatHandler.NewChat)
			chat.PUT("/sessions/:sessionId/role", chatHandler.SetRole)
			chat.POST("/sessions/:sessionId/clear-error", chatHandler.ClearError)
			chat.POST("/sessions/:sessionId/load/:chatId", chatHandler.LoadHistory)
			chat.GET("/websocket-token", chatHandler.GetWebsocketStopToken)
		}
		// WebSocket 流式接口（升级请求不走 JSON 中间件链）
		r.GET("/chat/:sessionId", chatHandler.Handle)

		// History 路由组，需要认证
		histories := apiV1.Group("/histories")
		histories.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			histories.GET("", historyHandler.List)
			histories.GET("/:chatId", historyHandler.Get)
			histories.PUT("/:chatId", historyHandler.Update)
			histories.DELETE("/:chatId", historyHandler.Delete)
			histories.DELETE("", historyHandler.Clear)
		}

		// Attachment 路由组，需要认证
		attachments := apiV1.Group("/attachments")
		attachments.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			attachments.POST("/upload", uploadHandler.Upload)
			attachments.GET("/:attachmentId/url", uploadHandler.GetDownloadURL)
			attachments.GET("/session/:sessionId", uploadHandler.ListBySession)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费者在进程退出时随循环自然结束，无需单独关闭。
	log.Info("服务已优雅关闭")
}
