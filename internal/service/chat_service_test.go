package service

import (
	"context"
	"errors"
	"testing"

	"cemtras-go/internal/config"
	"cemtras-go/internal/errs"
	"cemtras-go/internal/format"
	"cemtras-go/internal/model"
	"cemtras-go/internal/prompt"
	"cemtras-go/internal/repository"
	"cemtras-go/pkg/kv"
	"cemtras-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLM 是 llm.Client 的测试替身，记录最近一次调用的输入。
type fakeLLM struct {
	response   string
	err        error
	calls      int
	lastSystem string
	lastPrompt string
}

func (f *fakeLLM) Generate(_ context.Context, systemInstruction, userPrompt string, _ *llm.GenerationParams) (string, error) {
	f.calls++
	f.lastSystem = systemInstruction
	f.lastPrompt = userPrompt
	return f.response, f.err
}

func (f *fakeLLM) StreamGenerate(_ context.Context, systemInstruction, userPrompt string, _ *llm.GenerationParams, writer llm.MessageWriter) (string, error) {
	f.calls++
	f.lastSystem = systemInstruction
	f.lastPrompt = userPrompt
	if f.err != nil {
		return "", f.err
	}
	_ = writer.WriteMessage(1, []byte(f.response))
	return f.response, nil
}

func newChatFixture(t *testing.T, client *fakeLLM) (ChatService, HistoryService) {
	t.Helper()
	prev := config.Conf.LLM.APIKey
	config.Conf.LLM.APIKey = "test-key"
	t.Cleanup(func() { config.Conf.LLM.APIKey = prev })

	historySvc := NewHistoryService(repository.NewHistoryRepository(kv.NewMemoryStore()))
	return NewChatService(client, historySvc), historySvc
}

func TestSendMessageMissingAPIKeyIsPersistentError(t *testing.T) {
	client := &fakeLLM{response: "ok"}
	svc, _ := newChatFixture(t, client)
	config.Conf.LLM.APIKey = ""

	sess := svc.CreateSession("user-1", prompt.RoleOperations)
	_, err := svc.SendMessage(context.Background(), sess.ID, "hello")
	require.ErrorIs(t, err, errs.ErrConfiguration)

	// 配置错误不触碰会话，也不调用模型
	view := sess.Snapshot()
	assert.Empty(t, view.Messages)
	assert.Empty(t, view.LastError)
	assert.Zero(t, client.calls)

	// 重试同样失败：错误是持续性的
	_, err = svc.SendMessage(context.Background(), sess.ID, "hello again")
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestSendMessageSuccessAppendsBothMessages(t *testing.T) {
	client := &fakeLLM{response: "**Problem Statement**\nHigh vibration.\n\n**Analysis**\nBearing wear."}
	svc, _ := newChatFixture(t, client)

	sess := svc.CreateSession("user-1", prompt.RoleOperations)
	result, err := svc.SendMessage(context.Background(), sess.ID, "mill vibration is high")
	require.NoError(t, err)

	assert.Equal(t, model.RoleAssistant, result.Message.Role)
	require.Len(t, result.Sections, 2)
	assert.Equal(t, format.KindProblem, result.Sections[0].Kind)
	assert.Equal(t, format.KindAnalysis, result.Sections[1].Kind)

	view := sess.Snapshot()
	require.Len(t, view.Messages, 2)
	assert.Equal(t, model.RoleUser, view.Messages[0].Role)
	assert.Equal(t, "mill vibration is high", view.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, view.Messages[1].Role)
	assert.Equal(t, stateIdle, view.State)
	assert.Empty(t, view.LastError)
}

func TestSendMessageUsesRoleInstruction(t *testing.T) {
	client := &fakeLLM{response: "ok"}
	svc, _ := newChatFixture(t, client)

	sess := svc.CreateSession("user-1", prompt.RoleProcurement)
	_, err := svc.SendMessage(context.Background(), sess.ID, "evaluate vendor X")
	require.NoError(t, err)

	assert.Contains(t, client.lastSystem, "Current user department: Procurement")
	assert.Contains(t, client.lastPrompt, "evaluate vendor X")
}

func TestSendMessageFailureKeepsUserMessageAndBlocks(t *testing.T) {
	client := &fakeLLM{err: llm.ErrQuota}
	svc, _ := newChatFixture(t, client)

	sess := svc.CreateSession("user-1", prompt.RoleOperations)
	_, err := svc.SendMessage(context.Background(), sess.ID, "q1")
	require.ErrorIs(t, err, llm.ErrQuota)

	// 乐观追加的用户消息保留，没有助手消息，错误挂起
	view := sess.Snapshot()
	require.Len(t, view.Messages, 1)
	assert.Equal(t, model.RoleUser, view.Messages[0].Role)
	assert.NotEmpty(t, view.LastError)
	assert.Equal(t, stateIdle, view.State)

	// 未清除错误前禁止继续发送
	_, err = svc.SendMessage(context.Background(), sess.ID, "q2")
	require.ErrorIs(t, err, errs.ErrSessionBlocked)

	// 清除错误后恢复
	require.NoError(t, svc.ClearError(sess.ID))
	client.err = nil
	client.response = "recovered"
	_, err = svc.SendMessage(context.Background(), sess.ID, "q2")
	require.NoError(t, err)
	assert.Len(t, sess.Snapshot().Messages, 3)
}

func TestGuestSessionNeverAutoSaves(t *testing.T) {
	client := &fakeLLM{response: "answer"}
	svc, historySvc := newChatFixture(t, client)

	sess := svc.CreateSession("", prompt.RoleOperations)
	_, err := svc.SendMessage(context.Background(), sess.ID, "q")
	require.NoError(t, err)

	assert.Empty(t, sess.Snapshot().HistoryID)
	histories, err := historySvc.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, histories)
}

func TestAutoSaveBindsAndThenUpdates(t *testing.T) {
	client := &fakeLLM{response: "answer one"}
	svc, historySvc := newChatFixture(t, client)
	ctx := context.Background()

	sess := svc.CreateSession("user-1", prompt.RoleEngineering)
	_, err := svc.SendMessage(ctx, sess.ID, "first question about preheater design")
	require.NoError(t, err)

	// 首次完整问答后绑定历史快照
	historyID := sess.Snapshot().HistoryID
	require.NotEmpty(t, historyID)

	histories, err := historySvc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, histories, 1)
	assert.Equal(t, "first question about preheater...", histories[0].Title)
	assert.Equal(t, "Engineering & Design", histories[0].Role)
	assert.Len(t, histories[0].Messages, 2)

	// 第二轮问答更新同一份快照，而不是新建
	client.response = "answer two"
	_, err = svc.SendMessage(ctx, sess.ID, "second question")
	require.NoError(t, err)

	assert.Equal(t, historyID, sess.Snapshot().HistoryID)
	histories, err = historySvc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, histories, 1)
	assert.Len(t, histories[0].Messages, 4)
}

func TestNoAutoSaveWithoutAssistantMessage(t *testing.T) {
	client := &fakeLLM{err: errors.New("upstream down")}
	svc, historySvc := newChatFixture(t, client)
	ctx := context.Background()

	sess := svc.CreateSession("user-1", prompt.RoleOperations)
	_, err := svc.SendMessage(ctx, sess.ID, "q")
	require.Error(t, err)

	// 只有一条用户消息：不满足保存条件
	histories, err := historySvc.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, histories)
	assert.Empty(t, sess.Snapshot().HistoryID)
}

func TestLoadHistoryRestoresConversation(t *testing.T) {
	client := &fakeLLM{response: "answer"}
	svc, _ := newChatFixture(t, client)
	ctx := context.Background()

	sess := svc.CreateSession("user-1", prompt.RoleOperations)
	_, err := svc.SendMessage(ctx, sess.ID, "original question")
	require.NoError(t, err)
	historyID := sess.Snapshot().HistoryID
	require.NotEmpty(t, historyID)

	// 开新对话后再载入旧快照
	require.NoError(t, svc.NewChat(sess.ID))
	view := sess.Snapshot()
	assert.Empty(t, view.Messages)
	assert.Empty(t, view.HistoryID)

	require.NoError(t, svc.LoadHistory(ctx, sess.ID, historyID))
	view = sess.Snapshot()
	require.Len(t, view.Messages, 2)
	assert.Equal(t, "original question", view.Messages[0].Content)
	assert.Equal(t, historyID, view.HistoryID)
	assert.Equal(t, prompt.RoleOperations, view.Role)
}

func TestLoadHistoryUnknownIDReturnsNotFound(t *testing.T) {
	client := &fakeLLM{response: "ok"}
	svc, _ := newChatFixture(t, client)

	sess := svc.CreateSession("user-1", prompt.RoleOperations)
	err := svc.LoadHistory(context.Background(), sess.ID, "no-such-chat")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSetRoleAppliesToNextSend(t *testing.T) {
	client := &fakeLLM{response: "ok"}
	svc, _ := newChatFixture(t, client)
	ctx := context.Background()

	sess := svc.CreateSession("user-1", prompt.RoleOperations)
	require.NoError(t, svc.SetRole(sess.ID, prompt.RoleGeneralAI))

	_, err := svc.SendMessage(ctx, sess.ID, "what is portland cement")
	require.NoError(t, err)
	assert.NotContains(t, client.lastSystem, "Cement Plant Expert")
}

func TestConversationContextIncludesPriorMessages(t *testing.T) {
	client := &fakeLLM{response: "first answer"}
	svc, _ := newChatFixture(t, client)
	ctx := context.Background()

	sess := svc.CreateSession("user-1", prompt.RoleOperations)
	_, err := svc.SendMessage(ctx, sess.ID, "first question")
	require.NoError(t, err)

	client.response = "second answer"
	_, err = svc.SendMessage(ctx, sess.ID, "follow-up")
	require.NoError(t, err)

	assert.Contains(t, client.lastPrompt, "first question")
	assert.Contains(t, client.lastPrompt, "first answer")
	assert.Contains(t, client.lastPrompt, "follow-up")
}

func TestGetSessionUnknownID(t *testing.T) {
	client := &fakeLLM{}
	svc, _ := newChatFixture(t, client)

	_, err := svc.GetSession("missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAttachFileRecordedInContext(t *testing.T) {
	client := &fakeLLM{response: "ok"}
	svc, _ := newChatFixture(t, client)
	ctx := context.Background()

	sess := svc.CreateSession("user-1", prompt.RoleOperations)
	require.NoError(t, svc.AttachFile(sess.ID, "kiln-report.pdf"))

	_, err := svc.SendMessage(ctx, sess.ID, "summarize the report")
	require.NoError(t, err)
	assert.Contains(t, client.lastPrompt, "kiln-report.pdf")
}

func TestDeleteSessionRemovesIt(t *testing.T) {
	client := &fakeLLM{}
	svc, _ := newChatFixture(t, client)

	sess := svc.CreateSession("user-1", prompt.RoleOperations)
	svc.DeleteSession(sess.ID)
	_, err := svc.GetSession(sess.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
