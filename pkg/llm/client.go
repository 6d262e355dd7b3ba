// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cemtras-go/internal/config"

	"github.com/gorilla/websocket"
)

// 模型调用失败的错误分类。handler 据此映射 HTTP 状态与提示文案。
var (
	// ErrAuth 表示 API key 无效或无权限。
	ErrAuth = errors.New("llm: invalid api key")
	// ErrQuota 表示配额用尽（429）。
	ErrQuota = errors.New("llm: quota exceeded")
	// ErrBlocked 表示内容被安全策略拦截。
	ErrBlocked = errors.New("llm: content blocked by safety filters")
	// ErrEmpty 表示模型返回了空响应。
	ErrEmpty = errors.New("llm: empty response")
)

// MessageWriter defines an interface for writing WebSocket messages.
// This allows both a standard websocket.Conn and an interceptor to be used.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// GenerationParams 控制生成行为。nil 字段表示不传该参数。
type GenerationParams struct {
	Temperature     *float64
	TopP            *float64
	TopK            *int
	MaxOutputTokens *int
}

// Client defines the interface for an LLM client.
type Client interface {
	// Generate 以系统指令 + 用户输入调用模型，返回完整生成文本。
	Generate(ctx context.Context, systemInstruction, prompt string, gen *GenerationParams) (string, error)
	// StreamGenerate 以流式方式调用模型，分块写入 writer，并返回累积的完整文本。
	StreamGenerate(ctx context.Context, systemInstruction, prompt string, gen *GenerationParams, writer MessageWriter) (string, error)
}

type geminiClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client based on the config.
func NewClient(cfg config.LLMConfig) Client {
	return &geminiClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// Gemini generateContent 请求/响应结构。
type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	SystemInstruction *geminiContent    `json:"system_instruction,omitempty"`
	Contents          []geminiContent   `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (c *geminiClient) buildRequest(systemInstruction, prompt string, gen *GenerationParams) generateRequest {
	req := generateRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
	}
	if systemInstruction != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemInstruction}}}
	}

	// 生成参数：传参优先，否则回退全局配置（非零值）
	gc := &generationConfig{}
	if gen != nil {
		gc.Temperature = gen.Temperature
		gc.TopP = gen.TopP
		gc.TopK = gen.TopK
		gc.MaxOutputTokens = gen.MaxOutputTokens
	} else {
		if c.cfg.Generation.Temperature != 0 {
			t := c.cfg.Generation.Temperature
			gc.Temperature = &t
		}
		if c.cfg.Generation.TopP != 0 {
			p := c.cfg.Generation.TopP
			gc.TopP = &p
		}
		if c.cfg.Generation.TopK != 0 {
			k := c.cfg.Generation.TopK
			gc.TopK = &k
		}
		if c.cfg.Generation.MaxOutputTokens != 0 {
			m := c.cfg.Generation.MaxOutputTokens
			gc.MaxOutputTokens = &m
		}
	}
	if gc.Temperature != nil || gc.TopP != nil || gc.TopK != nil || gc.MaxOutputTokens != nil {
		req.GenerationConfig = gc
	}
	return req
}

// classifyStatus 将非 200 状态码映射到错误分类。
func classifyStatus(statusCode int, body []byte) error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, statusCode)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrQuota, statusCode)
	case statusCode == http.StatusBadRequest && bytes.Contains(body, []byte("API_KEY")):
		// Gemini 对无效 key 返回 400 + API_KEY_INVALID
		return fmt.Errorf("%w: %s", ErrAuth, strings.TrimSpace(string(body)))
	default:
		return fmt.Errorf("llm api returned status %d: %s", statusCode, strings.TrimSpace(string(body)))
	}
}

// extractText 从响应中取出文本，同时识别安全拦截与空响应。
func extractText(resp *generateResponse) (string, error) {
	if resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: %s", ErrBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", ErrEmpty
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == "SAFETY" {
		return "", fmt.Errorf("%w: finish reason SAFETY", ErrBlocked)
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		sb.WriteString(part.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmpty
	}
	return sb.String(), nil
}

// Generate calls the Gemini generateContent API and returns the full text.
func (c *geminiClient) Generate(ctx context.Context, systemInstruction, prompt string, gen *GenerationParams) (string, error) {
	reqBody := c.buildRequest(systemInstruction, prompt, gen)
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call llm api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", classifyStatus(resp.StatusCode, bodyBytes)
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to decode llm response: %w", err)
	}
	return extractText(&genResp)
}

// StreamGenerate calls the streaming variant (SSE) and writes chunks to writer.
func (c *geminiClient) StreamGenerate(ctx context.Context, systemInstruction, prompt string, gen *GenerationParams, writer MessageWriter) (string, error) {
	reqBody := c.buildRequest(systemInstruction, prompt, gen)
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call llm api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", classifyStatus(resp.StatusCode, bodyBytes)
	}

	var full strings.Builder
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("failed to read from stream: %w", err)
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if strings.TrimSpace(data) == "[DONE]" {
			break
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: %s", ErrBlocked, chunk.PromptFeedback.BlockReason)
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Text == "" {
				continue
			}
			full.WriteString(part.Text)
			if err := writer.WriteMessage(websocket.TextMessage, []byte(part.Text)); err != nil {
				return "", fmt.Errorf("failed to write message to websocket: %w", err)
			}
		}
	}

	if strings.TrimSpace(full.String()) == "" {
		return "", ErrEmpty
	}
	return full.String(), nil
}
