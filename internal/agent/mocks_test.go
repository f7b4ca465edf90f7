package agent

import (
	"context"

	"cv-agent-go/internal/prompt"
	"cv-agent-go/internal/types"
)

// mockCompleter 测试用补全服务桩实现
type mockCompleter struct {
	response   string
	usage      types.TokenUsage
	err        error
	callCount  int
	lastPrompt string
}

func (m *mockCompleter) Invoke(ctx context.Context, promptText string, temperature float32, maxTokens int) (string, types.TokenUsage, error) {
	m.callCount++
	m.lastPrompt = promptText
	if m.err != nil {
		return "", types.TokenUsage{}, m.err
	}
	return m.response, m.usage, nil
}

func (m *mockCompleter) InvokeStream(ctx context.Context, promptText string, onChunk func(string), temperature float32, maxTokens int) (string, types.TokenUsage, error) {
	m.callCount++
	m.lastPrompt = promptText
	if m.err != nil {
		return "", types.TokenUsage{}, m.err
	}
	if onChunk != nil && m.response != "" {
		mid := len(m.response) / 2
		onChunk(m.response[:mid])
		onChunk(m.response[mid:])
	}
	return m.response, m.usage, nil
}

// mockPromptFetcher 测试用提示词桩实现
type mockPromptFetcher struct {
	content string
	version string
	err     error
}

func (m *mockPromptFetcher) Fetch(ctx context.Context, project string, agent string) (*prompt.Template, error) {
	if m.err != nil {
		return nil, m.err
	}
	content := m.content
	if content == "" {
		content = "title: ${title}\ndescription: ${description}\ncategories:\n${categories}"
	}
	return &prompt.Template{Content: content, Version: m.version}, nil
}
