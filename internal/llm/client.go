package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cv-agent-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// CompletionClient 在eino聊天模型之上提供带token统计的单轮补全调用。
// 流水线各阶段只关心"提示词进、文本出"，不直接接触消息结构。
type CompletionClient struct {
	chatModel model.BaseChatModel
}

// NewCompletionClient 创建补全客户端
func NewCompletionClient(chatModel model.BaseChatModel) *CompletionClient {
	return &CompletionClient{chatModel: chatModel}
}

// Invoke 非流式调用：发送单条用户消息，返回完整回复文本和token用量
func (c *CompletionClient) Invoke(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, types.TokenUsage, error) {
	messages := []*schema.Message{schema.UserMessage(prompt)}

	resp, err := c.chatModel.Generate(ctx, messages,
		model.WithTemperature(temperature),
		model.WithMaxTokens(maxTokens),
	)
	if err != nil {
		if errors.Is(err, ErrCompletionService) {
			return "", types.TokenUsage{}, err
		}
		return "", types.TokenUsage{}, fmt.Errorf("%w: %v", ErrCompletionService, err)
	}
	if resp == nil {
		return "", types.TokenUsage{}, fmt.Errorf("%w: 模型返回空消息", ErrCompletionService)
	}

	return resp.Content, usageFromMeta(resp.ResponseMeta), nil
}

// InvokeStream 流式调用：每收到一段增量内容就回调 onChunk（可为nil），
// 返回拼接后的完整文本和末帧携带的token用量。
func (c *CompletionClient) InvokeStream(ctx context.Context, prompt string, onChunk func(string), temperature float32, maxTokens int) (string, types.TokenUsage, error) {
	messages := []*schema.Message{schema.UserMessage(prompt)}

	stream, err := c.chatModel.Stream(ctx, messages,
		model.WithTemperature(temperature),
		model.WithMaxTokens(maxTokens),
	)
	if err != nil {
		if errors.Is(err, ErrCompletionService) {
			return "", types.TokenUsage{}, err
		}
		return "", types.TokenUsage{}, fmt.Errorf("%w: %v", ErrCompletionService, err)
	}
	defer stream.Close()

	var sb strings.Builder
	var usage types.TokenUsage

	for {
		frame, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, ErrCompletionService) {
				return "", types.TokenUsage{}, err
			}
			return "", types.TokenUsage{}, fmt.Errorf("%w: %v", ErrCompletionService, err)
		}
		if frame == nil {
			continue
		}
		if frame.Content != "" {
			sb.WriteString(frame.Content)
			if onChunk != nil {
				onChunk(frame.Content)
			}
		}
		if u := usageFromMeta(frame.ResponseMeta); u.TotalTokens > 0 {
			usage = u
		}
	}

	return sb.String(), usage, nil
}

// usageFromMeta 从响应元数据中提取token用量，缺失时返回零值
func usageFromMeta(meta *schema.ResponseMeta) types.TokenUsage {
	if meta == nil || meta.Usage == nil {
		return types.TokenUsage{}
	}
	return types.TokenUsage{
		PromptTokens:     meta.Usage.PromptTokens,
		CompletionTokens: meta.Usage.CompletionTokens,
		TotalTokens:      meta.Usage.TotalTokens,
	}
}
