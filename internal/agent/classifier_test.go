package agent

import (
	"context"
	"errors"
	"testing"

	"cv-agent-go/internal/constants"
	"cv-agent-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func containsCategory(categories []string, role string) bool {
	for _, c := range categories {
		if c == role {
			return true
		}
	}
	return false
}

func TestClassifyValidResponse(t *testing.T) {
	completer := &mockCompleter{
		response: "```json\n{\"role_type\": \"AI Solution\", \"keywords\": [\" llm \", \"\", \"golang\"], \"insights\": [\"build AI products\"]}\n```",
		usage:    types.TokenUsage{PromptTokens: 120, CompletionTokens: 40, TotalTokens: 160},
	}
	classifier := NewClassifier(completer, &mockPromptFetcher{}, "", nil)

	result := classifier.Classify(context.Background(), types.JobDescription{
		Title:       "AI Engineer",
		Description: "Build machine learning systems.",
	})

	assert.Equal(t, "AI Solution", result.RoleType)
	assert.Equal(t, []string{"llm", "golang"}, result.Keywords)
	assert.Equal(t, []string{"build AI products"}, result.Insights)
	assert.Equal(t, 160, result.Usage.TotalTokens)
}

// 模型返回带包裹文字的分类时，包含匹配应收敛到枚举值
func TestClassifySubstringMatch(t *testing.T) {
	completer := &mockCompleter{
		response: `{"role_type": "This is clearly a Project Manager position", "keywords": [], "insights": []}`,
	}
	classifier := NewClassifier(completer, &mockPromptFetcher{}, "", nil)

	result := classifier.Classify(context.Background(), types.JobDescription{
		Title:       "Delivery Lead",
		Description: "Coordinate cross-functional teams.",
	})

	assert.Equal(t, "Project Manager", result.RoleType)
}

// 补全服务完全不可用时降级为关键词启发式，仍能合成关键词和要点
func TestClassifyHeuristicFallbackOnClientFailure(t *testing.T) {
	completer := &mockCompleter{err: errors.New("connection refused")}
	classifier := NewClassifier(completer, &mockPromptFetcher{}, "", nil)

	result := classifier.Classify(context.Background(), types.JobDescription{
		Title:       "Enterprise Account Manager",
		Description: "Own and grow a $5M sales pipeline across strategic enterprise accounts in the region.",
	})

	// "sales" 在关键词优先级中先于 "enterprise account" 被扫描到
	assert.Equal(t, "Sales", result.RoleType)
	assert.NotEmpty(t, result.Keywords)
	assert.NotEmpty(t, result.Insights)
	assert.Equal(t, types.TokenUsage{}, result.Usage)
}

func TestClassifyHeuristicFallbackOnPromptFetchFailure(t *testing.T) {
	completer := &mockCompleter{response: "should not matter"}
	fetcher := &mockPromptFetcher{err: errors.New("502 Bad Gateway")}
	classifier := NewClassifier(completer, fetcher, "", nil)

	result := classifier.Classify(context.Background(), types.JobDescription{
		Title:       "Customer Success Manager",
		Description: "Drive customer success outcomes for key clients.",
	})

	assert.Equal(t, "Customer/Client Success", result.RoleType)
	assert.Equal(t, 0, completer.callCount)
}

// 无论模型输出什么，分类结果永远落在允许的枚举内
func TestClassifyRoleAlwaysInCategorySet(t *testing.T) {
	responses := []string{
		`{"role_type": "Chief Happiness Officer", "keywords": [], "insights": []}`,
		`{"role_type": "", "keywords": [], "insights": []}`,
		`not json at all`,
		`{"role_type": 42}`,
		`{"role_type": "sales guru", "keywords": ["a"], "insights": ["b"]}`,
	}

	jds := []types.JobDescription{
		{Title: "Gardener", Description: "Take care of plants."},
		{Title: "Partnership Lead", Description: "Develop strategic alliances."},
		{Title: "Engineer", Description: "Write code for machine learning pipelines."},
	}

	for _, resp := range responses {
		for _, jd := range jds {
			completer := &mockCompleter{response: resp}
			classifier := NewClassifier(completer, &mockPromptFetcher{}, "", nil)
			result := classifier.Classify(context.Background(), jd)
			require.True(t, containsCategory(constants.DefaultRoleCategories, result.RoleType),
				"response %q jd %q yielded off-list role %q", resp, jd.Title, result.RoleType)
		}
	}
}

// 任何关键词都未命中时落到最终兜底分类
func TestKeywordFallbackDefault(t *testing.T) {
	role := keywordFallbackRole(types.JobDescription{
		Title:       "Gardener",
		Description: "Water the flowers every morning.",
	})
	assert.Equal(t, "Sales", role)
}

func TestSynthesizeKeywordsDeterministic(t *testing.T) {
	text := "pipeline pipeline pipeline enterprise enterprise account manager with strong pipeline skills"
	first := synthesizeKeywords(text, 3)
	second := synthesizeKeywords(text, 3)
	assert.Equal(t, first, second)
	require.NotEmpty(t, first)
	assert.Equal(t, "pipeline", first[0])
}

func TestSynthesizeInsightsSkipsTrivialSentences(t *testing.T) {
	description := "Yes. Own and grow a five million dollar sales pipeline across the region. " +
		"Short. Build long-term executive relationships with strategic enterprise customers."
	insights := synthesizeInsights(description, 3)
	require.Len(t, insights, 2)
	assert.Contains(t, insights[0], "sales pipeline")
}
