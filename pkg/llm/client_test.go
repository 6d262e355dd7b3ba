package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"cemtras-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "gemini-1.5-flash",
	})
}

func TestGenerateReturnsText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":generateContent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hello "},{"text":"world"}]},"finishReason":"STOP"}]}`))
	})

	got, err := client.Generate(context.Background(), "sys", "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", got)
}

func TestGenerateUnauthorizedMapsToErrAuth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	_, err := client.Generate(context.Background(), "", "prompt", nil)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestGenerateInvalidKeyBadRequestMapsToErrAuth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"status":"INVALID_ARGUMENT","details":[{"reason":"API_KEY_INVALID"}]}}`, http.StatusBadRequest)
	})

	_, err := client.Generate(context.Background(), "", "prompt", nil)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestGenerateRateLimitMapsToErrQuota(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := client.Generate(context.Background(), "", "prompt", nil)
	assert.ErrorIs(t, err, ErrQuota)
}

func TestGenerateBlockedPrompt(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	})

	_, err := client.Generate(context.Background(), "", "prompt", nil)
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestGenerateSafetyFinishReason(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`))
	})

	_, err := client.Generate(context.Background(), "", "prompt", nil)
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestGenerateEmptyResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := client.Generate(context.Background(), "", "prompt", nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

type chunkCollector struct {
	chunks []string
}

func (c *chunkCollector) WriteMessage(_ int, data []byte) error {
	c.chunks = append(c.chunks, string(data))
	return nil
}

func TestStreamGenerateAccumulatesChunks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":streamGenerateContent")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}\n"))
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo\"}]}}]}\n"))
	})

	collector := &chunkCollector{}
	full, err := client.StreamGenerate(context.Background(), "sys", "prompt", nil, collector)
	require.NoError(t, err)
	assert.Equal(t, "Hello", full)
	assert.Equal(t, []string{"Hel", "lo"}, collector.chunks)
}

func TestStreamGenerateEmptyStream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
	})

	collector := &chunkCollector{}
	_, err := client.StreamGenerate(context.Background(), "", "prompt", nil, collector)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestBuildRequestUsesConfigDefaults(t *testing.T) {
	c := &geminiClient{cfg: config.LLMConfig{
		Generation: config.LLMGenerationConfig{
			Temperature:     0.7,
			TopP:            0.8,
			TopK:            40,
			MaxOutputTokens: 2048,
		},
	}}

	req := c.buildRequest("sys", "hello", nil)
	require.NotNil(t, req.GenerationConfig)
	assert.Equal(t, 0.7, *req.GenerationConfig.Temperature)
	assert.Equal(t, 0.8, *req.GenerationConfig.TopP)
	assert.Equal(t, 40, *req.GenerationConfig.TopK)
	assert.Equal(t, 2048, *req.GenerationConfig.MaxOutputTokens)
	require.NotNil(t, req.SystemInstruction)
	require.Len(t, req.Contents, 1)
	assert.Equal(t, "user", req.Contents[0].Role)
}
