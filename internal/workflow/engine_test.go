package workflow

import (
	"context"
	"fmt"
	"testing"

	"cv-agent-go/internal/agent"
	"cv-agent-go/internal/llm"
	"cv-agent-go/internal/prompt"
	"cv-agent-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCompleter 按调用顺序返回预设回复的补全桩
type scriptedCompleter struct {
	responses []string
	usages    []types.TokenUsage
	err       error
	calls     int
}

func (s *scriptedCompleter) next() (string, types.TokenUsage, error) {
	if s.err != nil {
		return "", types.TokenUsage{}, s.err
	}
	idx := s.calls
	s.calls++
	if idx >= len(s.responses) {
		return "", types.TokenUsage{}, fmt.Errorf("超出脚本范围的调用: %d", idx)
	}
	var usage types.TokenUsage
	if idx < len(s.usages) {
		usage = s.usages[idx]
	}
	return s.responses[idx], usage, nil
}

func (s *scriptedCompleter) Invoke(ctx context.Context, promptText string, temperature float32, maxTokens int) (string, types.TokenUsage, error) {
	return s.next()
}

func (s *scriptedCompleter) InvokeStream(ctx context.Context, promptText string, onChunk func(string), temperature float32, maxTokens int) (string, types.TokenUsage, error) {
	text, usage, err := s.next()
	if err == nil && onChunk != nil {
		onChunk(text)
	}
	return text, usage, err
}

type staticFetcher struct{}

func (staticFetcher) Fetch(ctx context.Context, project string, agentName string) (*prompt.Template, error) {
	return &prompt.Template{Content: "prompt ${title} ${workExperienceTemplate}", Version: "v1"}, nil
}

const fullProfileResponse = `{
	"fullName": "Jane Doe", "email": "jane@example.com", "phone": "+65 8888 8888",
	"location": "Singapore", "linkedin": "in/jane", "website": "jane.dev",
	"summary": ["refined summary"], "technicalSkills": ["CRM"], "languages": ["English"],
	"education": ["NUS"], "certificates": ["PMP"], "customModules": [], "format": "A4"
}`

func scriptedResponses() ([]string, []types.TokenUsage) {
	responses := []string{
		`{"role_type": "Sales", "keywords": ["pipeline"], "insights": ["grow accounts"]}`,
		`{"workExperience": "tailored narrative"}`,
		fullProfileResponse,
		`{"workExperience": "final narrative", "personalInfo": ` + fullProfileResponse + `}`,
	}
	usages := []types.TokenUsage{
		{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
		{PromptTokens: 300, CompletionTokens: 200, TotalTokens: 500},
		{PromptTokens: 200, CompletionTokens: 150, TotalTokens: 350},
		{PromptTokens: 250, CompletionTokens: 180, TotalTokens: 430},
	}
	return responses, usages
}

func newTestEngine(completer agent.Completer) *Engine {
	templates := map[string]string{
		"Sales":              "sales template text",
		"Solution - General": "general template text",
	}
	return NewEngine(
		agent.NewClassifier(completer, staticFetcher{}, "", nil),
		agent.NewExperienceCustomizer(completer, staticFetcher{}, "", templates, ""),
		agent.NewProfileCustomizer(completer),
		agent.NewReviewer(completer),
	)
}

func testInputs() (types.JobDescription, types.PersonalInfo) {
	jd := types.JobDescription{Title: "Account Executive", Description: "Grow enterprise sales pipeline."}
	info := types.PersonalInfo{"fullName": "Jane Doe", "email": "jane@example.com", "phone": "+65 8888 8888"}
	return jd, info
}

func TestRunStageOrderAndAggregation(t *testing.T) {
	responses, usages := scriptedResponses()
	completer := &scriptedCompleter{responses: responses, usages: usages}
	engine := newTestEngine(completer)
	jd, info := testInputs()

	var observed []types.StageKey
	result, err := engine.Run(context.Background(), jd, info, func(update *types.StageUpdate) {
		observed = append(observed, update.Stage)
	})
	require.NoError(t, err)

	// 阶段事件严格按流水线顺序
	assert.Equal(t, []types.StageKey{
		types.StageClassifier,
		types.StageExperience,
		types.StageProfile,
		types.StageReviewer,
	}, observed)

	assert.Equal(t, "Sales", result.RoleClassification)
	assert.Equal(t, "final narrative", result.WorkExperience)
	assert.Equal(t, "Jane Doe", result.PersonalInfo.StringField("fullName"))
	require.Len(t, result.StageResults, 4)

	// 总用量等于各阶段用量的逐字段之和
	var expected types.TokenUsage
	for _, u := range usages {
		expected = expected.Add(u)
	}
	assert.Equal(t, expected, result.TokenUsage)
}

// 确定性桩下两次执行得到一致的结果，没有跨次状态泄漏
func TestRunIdempotentWithDeterministicStubs(t *testing.T) {
	jd, info := testInputs()

	run := func() *types.WorkflowResult {
		responses, usages := scriptedResponses()
		engine := newTestEngine(&scriptedCompleter{responses: responses, usages: usages})
		result, err := engine.Run(context.Background(), jd, info, nil)
		require.NoError(t, err)
		return result
	}

	first := run()
	second := run()

	assert.Equal(t, first.RoleClassification, second.RoleClassification)
	assert.Equal(t, first.WorkExperience, second.WorkExperience)
	assert.Equal(t, first.PersonalInfo, second.PersonalInfo)
	assert.Equal(t, first.TokenUsage, second.TokenUsage)
	for stage, update := range first.StageResults {
		assert.Equal(t, update.Usage, second.StageResults[stage].Usage)
		assert.Equal(t, update.WorkExp, second.StageResults[stage].WorkExp)
		assert.Equal(t, update.RoleType, second.StageResults[stage].RoleType)
	}
}

// 补全服务全程不可用：分类降级为启发式，经历退回源模板，
// 档案定制阶段失败中止流水线，已发出的阶段事件保留
func TestRunPartialProgressOnCompletionOutage(t *testing.T) {
	completer := &scriptedCompleter{err: fmt.Errorf("%w: 网络不可达", llm.ErrCompletionService)}
	engine := newTestEngine(completer)

	jd := types.JobDescription{
		Title:       "Enterprise Account Manager",
		Description: "Own and grow a $5M sales pipeline across strategic accounts.",
	}
	_, info := testInputs()

	var updates []*types.StageUpdate
	result, err := engine.Run(context.Background(), jd, info, func(update *types.StageUpdate) {
		updates = append(updates, update)
	})

	require.Error(t, err)
	assert.Nil(t, result)
	require.Len(t, updates, 2)
	assert.Equal(t, types.StageClassifier, updates[0].Stage)
	assert.Equal(t, "Sales", updates[0].RoleType)
	assert.Equal(t, types.StageExperience, updates[1].Stage)
	assert.Equal(t, "sales template text", updates[1].WorkExp)
}

// 输入档案不被任何阶段原地修改
func TestRunDoesNotMutateInput(t *testing.T) {
	responses, usages := scriptedResponses()
	engine := newTestEngine(&scriptedCompleter{responses: responses, usages: usages})
	jd, info := testInputs()

	_, err := engine.Run(context.Background(), jd, info, nil)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", info.StringField("fullName"))
	assert.Len(t, info, 3)
}
