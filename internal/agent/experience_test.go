package agent

import (
	"context"
	"fmt"
	"testing"

	"cv-agent-go/internal/llm"
	"cv-agent-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const salesTemplate = "NCS | Financial Services Industry Lead | 2021 – 2022\n\nDrove $5M+ pipeline and closed $2M+ in contracts."

func testTemplates() map[string]string {
	return map[string]string{
		"Sales":              salesTemplate,
		"Solution - General": "Diebold Nixdorf | Solution Architect | 2011 – 2016\n\nDelivered 35+ solutions.",
	}
}

func testClassification() *types.ClassificationResult {
	return &types.ClassificationResult{
		RoleType: "Sales",
		Keywords: []string{"pipeline", "enterprise"},
		Insights: []string{"own a $5M sales pipeline"},
	}
}

func TestCustomizeSuccess(t *testing.T) {
	completer := &mockCompleter{
		response: `{"workExperience": "tailored narrative"}`,
		usage:    types.TokenUsage{PromptTokens: 300, CompletionTokens: 200, TotalTokens: 500},
	}
	fetcher := &mockPromptFetcher{content: "role: ${classification}\ntitle: ${jdTitle}\n${focusSection}\n${keywordSection}\n${sentenceSection}\n${workExperienceTemplate}"}
	customizer := NewExperienceCustomizer(completer, fetcher, "", testTemplates(), "")

	result, usage, err := customizer.Customize(context.Background(), testClassification(), "Account Executive", nil)
	require.NoError(t, err)
	assert.Equal(t, "tailored narrative", result)
	assert.Equal(t, 500, usage.TotalTokens)

	// 模板变量已注入提示词
	assert.Contains(t, completer.lastPrompt, "role: Sales")
	assert.Contains(t, completer.lastPrompt, "title: Account Executive")
	assert.Contains(t, completer.lastPrompt, "- pipeline")
	assert.Contains(t, completer.lastPrompt, salesTemplate)
}

// 补全服务失败属于增强失败而非致命错误，退回未改写的源模板
func TestCustomizeFallsBackToTemplateOnCompletionFailure(t *testing.T) {
	completer := &mockCompleter{err: fmt.Errorf("%w: 两个通道都失败", llm.ErrCompletionService)}
	customizer := NewExperienceCustomizer(completer, &mockPromptFetcher{}, "", testTemplates(), "")

	result, usage, err := customizer.Customize(context.Background(), testClassification(), "Account Executive", nil)
	require.NoError(t, err)
	assert.Equal(t, salesTemplate, result)
	assert.Equal(t, types.TokenUsage{}, usage)
}

// 模型输出非法JSON是致命错误，不走模板兜底
func TestCustomizeMalformedResponseIsFatal(t *testing.T) {
	completer := &mockCompleter{response: "sorry, I cannot help with that"}
	customizer := NewExperienceCustomizer(completer, &mockPromptFetcher{}, "", testTemplates(), "")

	_, _, err := customizer.Customize(context.Background(), testClassification(), "Account Executive", nil)
	assert.Error(t, err)
}

func TestCustomizePromptFetchFailureIsFatal(t *testing.T) {
	completer := &mockCompleter{response: `{"workExperience": "x"}`}
	fetcher := &mockPromptFetcher{err: fmt.Errorf("状态 502")}
	customizer := NewExperienceCustomizer(completer, fetcher, "", testTemplates(), "")

	_, _, err := customizer.Customize(context.Background(), testClassification(), "Account Executive", nil)
	assert.Error(t, err)
	assert.Equal(t, 0, completer.callCount)
}

// 角色无专属模板时落到兜底键
func TestCustomizeUsesDefaultTemplateKey(t *testing.T) {
	completer := &mockCompleter{response: `{"workExperience": "generic narrative"}`}
	customizer := NewExperienceCustomizer(completer, &mockPromptFetcher{content: "${workExperienceTemplate}"}, "", testTemplates(), "")

	classification := testClassification()
	classification.RoleType = "Business Development"

	result, _, err := customizer.Customize(context.Background(), classification, "BD Lead", nil)
	require.NoError(t, err)
	assert.Equal(t, "generic narrative", result)
	assert.Contains(t, completer.lastPrompt, "Diebold Nixdorf")
}

func TestCustomizeNoTemplateNoDefault(t *testing.T) {
	completer := &mockCompleter{response: `{"workExperience": "x"}`}
	customizer := NewExperienceCustomizer(completer, &mockPromptFetcher{}, "", map[string]string{}, "")

	_, _, err := customizer.Customize(context.Background(), testClassification(), "Account Executive", nil)
	assert.Error(t, err)
	assert.Equal(t, 0, completer.callCount)
}

// 流式路径：onChunk按序收到增量，最终结果与非流式一致
func TestCustomizeStreaming(t *testing.T) {
	completer := &mockCompleter{response: `{"workExperience": "streamed narrative"}`}
	customizer := NewExperienceCustomizer(completer, &mockPromptFetcher{}, "", testTemplates(), "")

	var chunks []string
	result, _, err := customizer.Customize(context.Background(), testClassification(), "AE", func(chunk string) {
		chunks = append(chunks, chunk)
	})
	require.NoError(t, err)
	assert.Equal(t, "streamed narrative", result)
	assert.NotEmpty(t, chunks)
}

// 分类要点为空时提示词使用兜底行而不是空白小节
func TestCustomizeEmptySectionsUseFallbackLines(t *testing.T) {
	completer := &mockCompleter{response: `{"workExperience": "x"}`}
	fetcher := &mockPromptFetcher{content: "${focusSection}|${keywordSection}|${sentenceSection}"}
	customizer := NewExperienceCustomizer(completer, fetcher, "", testTemplates(), "")

	classification := &types.ClassificationResult{RoleType: "Sales"}
	_, _, err := customizer.Customize(context.Background(), classification, "AE", nil)
	require.NoError(t, err)
	assert.Contains(t, completer.lastPrompt, emptyFocusLine)
	assert.Contains(t, completer.lastPrompt, emptyKeywordLine)
	assert.Contains(t, completer.lastPrompt, emptySentenceLine)
}
