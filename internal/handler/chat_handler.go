// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cemtras-go/internal/prompt"
	"cemtras-go/internal/service"
	"cemtras-go/pkg/log"
	"cemtras-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理聊天会话的 REST 接口与 WebSocket 流式连接。
type ChatHandler struct {
	chatService   service.ChatService
	userService   service.UserService
	jwtManager    *token.JWTManager
	stopToken     string
	stopTokenLock sync.Mutex
	// 每连接停止标志
	stopFlags sync.Map // key: conn pointer string, value: bool
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, userService service.UserService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
		jwtManager:  jwtManager,
	}
}

// currentUserID 返回上下文中的登录用户 ID，游客为空串。
func currentUserID(c *gin.Context) string {
	return c.GetString("userID")
}

// parseRole 解析并校验角色参数，同时执行 General AI 的登录门槛。
func parseRole(c *gin.Context, raw string) (prompt.Role, bool) {
	role, err := prompt.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "未知的角色: " + raw})
		return "", false
	}
	if role.IsGeneral() && currentUserID(c) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "General AI 仅对登录用户开放"})
		return "", false
	}
	return role, true
}

// loadOwnedSession 查找会话并校验归属：登录用户的会话只有本人可见。
func (h *ChatHandler) loadOwnedSession(c *gin.Context) (*service.Session, bool) {
	sess, err := h.chatService.GetSession(c.Param("sessionId"))
	if err != nil {
		writeServiceError(c, err)
		return nil, false
	}
	if owner := sess.Owner(); owner != "" && owner != currentUserID(c) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "资源不存在"})
		return nil, false
	}
	return sess, true
}

// CreateSessionRequest 定义了创建会话 API 的请求体结构。
type CreateSessionRequest struct {
	Role string `json:"role" binding:"required"`
}

// CreateSession 创建一个新的聊天会话。游客也可创建（General AI 除外）。
func (h *ChatHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：角色不能为空"})
		return
	}
	role, ok := parseRole(c, req.Role)
	if !ok {
		return
	}

	sess := h.chatService.CreateSession(currentUserID(c), role)
	log.Infof("会话已创建: id=%s, role=%s, guest=%t", sess.ID, role, sess.Owner() == "")
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": sess.Snapshot()})
}

// GetSession 返回会话当前状态的快照。
func (h *ChatHandler) GetSession(c *gin.Context) {
	sess, ok := h.loadOwnedSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": sess.Snapshot()})
}

// SendMessageRequest 定义了同步发送消息 API 的请求体结构。
type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// SendMessage 同步发送一条消息并返回完整回答及其结构化分段。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	sess, ok := h.loadOwnedSession(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：消息内容不能为空"})
		return
	}

	result, err := h.chatService.SendMessage(c.Request.Context(), sess.ID, req.Text)
	if err != nil {
		log.Warnf("发送消息失败: session=%s, error: %v", sess.ID, err)
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": result})
}

// NewChat 清空会话，开始一段新对话。
func (h *ChatHandler) NewChat(c *gin.Context) {
	sess, ok := h.loadOwnedSession(c)
	if !ok {
		return
	}
	if err := h.chatService.NewChat(sess.ID); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": sess.Snapshot()})
}

// SetRoleRequest 定义了切换角色 API 的请求体结构。
type SetRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// SetRole 切换会话角色。
func (h *ChatHandler) SetRole(c *gin.Context) {
	sess, ok := h.loadOwnedSession(c)
	if !ok {
		return
	}
	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：角色不能为空"})
		return
	}
	role, ok := parseRole(c, req.Role)
	if !ok {
		return
	}
	if err := h.chatService.SetRole(sess.ID, role); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": sess.Snapshot()})
}

// ClearError 清除会话的未决错误。
func (h *ChatHandler) ClearError(c *gin.Context) {
	sess, ok := h.loadOwnedSession(c)
	if !ok {
		return
	}
	if err := h.chatService.ClearError(sess.ID); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": sess.Snapshot()})
}

// LoadHistory 把一份历史快照载入会话（仅限登录用户）。
func (h *ChatHandler) LoadHistory(c *gin.Context) {
	sess, ok := h.loadOwnedSession(c)
	if !ok {
		return
	}
	if err := h.chatService.LoadHistory(c.Request.Context(), sess.ID, c.Param("chatId")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": sess.Snapshot()})
}

// GetWebsocketStopToken 返回一个可用于停止流的令牌。
func (h *ChatHandler) GetWebsocketStopToken(c *gin.Context) {
	h.stopTokenLock.Lock()
	defer h.stopTokenLock.Unlock()
	// 在真实的多服务器设置中，这应该在 Redis 中生成和存储
	// 为简单起见，我们在这里使用一个单一的、轮换的令牌。
	h.stopToken = "WSS_STOP_CMD_" + token.GenerateRandomString(16)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"cmdToken": h.stopToken}})
}

// wsMessage 是 WebSocket 连接上的用户消息。纯文本消息视作 text 字段。
type wsMessage struct {
	Type             string `json:"type"`
	Text             string `json:"text"`
	InternalCmdToken string `json:"_internal_cmd_token"`
}

// Handle 处理一个传入的 WebSocket 连接，流式下发模型回答。
// 会话归属校验：游客会话无需 token，登录用户的会话要求本人 token（query 参数传递）。
func (h *ChatHandler) Handle(c *gin.Context) {
	sess, err := h.chatService.GetSession(c.Param("sessionId"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	if owner := sess.Owner(); owner != "" {
		claims, err := h.jwtManager.VerifyToken(c.Query("token"))
		if err != nil || claims.UserID != owner {
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，会话: %s", sess.ID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		text := string(message)
		// JSON 控制/消息帧: {"type":"stop","_internal_cmd_token":"..."} 或 {"text":"..."}
		if len(message) > 0 && message[0] == '{' {
			var frame wsMessage
			if err := json.Unmarshal(message, &frame); err == nil {
				if frame.Type == "stop" {
					h.stopTokenLock.Lock()
					valid := frame.InternalCmdToken == h.stopToken
					h.stopTokenLock.Unlock()
					if valid {
						// 设置停止标志
						h.stopFlags.Store(connKey(conn), true)
						// 回发停止确认
						resp := map[string]interface{}{
							"type":      "stop",
							"message":   "响应已停止",
							"timestamp": time.Now().UnixMilli(),
							"date":      time.Now().Format("2006-01-02T15:04:05"),
						}
						b, _ := json.Marshal(resp)
						_ = conn.WriteMessage(websocket.TextMessage, b)
						continue
					}
				}
				if frame.Text != "" {
					text = frame.Text
				}
			}
		}

		// 旧停止令牌：整条消息等于 stopToken（保留兼容）
		h.stopTokenLock.Lock()
		stopTokenValue := h.stopToken
		h.stopTokenLock.Unlock()
		if stopTokenValue != "" && text == stopTokenValue {
			log.Info("收到停止指令，正在中断流式响应...")
			h.stopFlags.Store(connKey(conn), true)
			continue
		}

		shouldStop := func() bool {
			v, ok := h.stopFlags.Load(connKey(conn))
			return ok && v.(bool)
		}
		// 清除旧标志
		h.stopFlags.Delete(connKey(conn))

		err = h.chatService.StreamMessage(c.Request.Context(), sess.ID, text, conn, shouldStop)
		if err != nil {
			log.Errorf("处理流式响应失败: session=%s, error: %v", sess.ID, err)
			_, errMsg := classifyServiceError(err)
			b, _ := json.Marshal(map[string]string{"error": errMsg})
			_ = conn.WriteMessage(websocket.TextMessage, b)
			// 错误时也发送 completion 通知，让前端结束等待状态
			resp := map[string]interface{}{
				"type":      "completion",
				"status":    "finished",
				"message":   "响应已完成",
				"timestamp": time.Now().UnixMilli(),
				"date":      time.Now().Format("2006-01-02T15:04:05"),
			}
			cb, _ := json.Marshal(resp)
			_ = conn.WriteMessage(websocket.TextMessage, cb)
		}
	}
	h.stopFlags.Delete(connKey(conn))
}

func connKey(conn *websocket.Conn) string {
	return fmt.Sprintf("%p", conn)
}
