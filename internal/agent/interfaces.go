package agent

import (
	"context"

	"cv-agent-go/internal/prompt"
	"cv-agent-go/internal/types"
)

// Completer LLM补全服务的抽象，便于在测试中替换为桩实现
type Completer interface {
	// Invoke 非流式调用，返回完整回复文本和token用量
	Invoke(ctx context.Context, promptText string, temperature float32, maxTokens int) (string, types.TokenUsage, error)
	// InvokeStream 流式调用，onChunk按到达顺序接收增量片段
	InvokeStream(ctx context.Context, promptText string, onChunk func(string), temperature float32, maxTokens int) (string, types.TokenUsage, error)
}

// PromptFetcher 提示词模板拉取的抽象
type PromptFetcher interface {
	Fetch(ctx context.Context, project string, agent string) (*prompt.Template, error)
}
