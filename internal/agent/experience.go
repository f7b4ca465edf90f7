package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cv-agent-go/internal/constants"
	"cv-agent-go/internal/llm"
	"cv-agent-go/internal/logger"
	"cv-agent-go/internal/parser"
	"cv-agent-go/internal/types"
)

// 模板变量为空时写进提示词的兜底行，避免模型拿到空白小节
const (
	emptyFocusLine    = "- align experience with the responsibilities implied by the role"
	emptyKeywordLine  = "- emphasise the most relevant skills naturally"
	emptySentenceLine = "- Use professional judgement to highlight accomplishments that match the role."
)

// ExperienceCustomizer 工作经历定制阶段：按角色分类取出经历模板，
// 让模型用JD关键词改写要点，保持结构不变。
// 补全服务不可用时返回未经改写的源模板，改写属于增强而非必需。
type ExperienceCustomizer struct {
	client     Completer
	prompts    PromptFetcher
	project    string
	templates  map[string]string
	defaultKey string
}

// NewExperienceCustomizer 创建经历定制器。
// templates 为 角色分类->模板正文 的只读映射，defaultKey 为精确匹配失败时的兜底键。
func NewExperienceCustomizer(client Completer, prompts PromptFetcher, project string, templates map[string]string, defaultKey string) *ExperienceCustomizer {
	if project == "" {
		project = constants.PromptProject
	}
	if defaultKey == "" {
		defaultKey = constants.DefaultTemplateKey
	}
	return &ExperienceCustomizer{
		client:     client,
		prompts:    prompts,
		project:    project,
		templates:  templates,
		defaultKey: defaultKey,
	}
}

// Customize 生成贴合岗位的工作经历叙述。
// onChunk 非nil时走流式调用，增量片段按到达顺序回调。
func (e *ExperienceCustomizer) Customize(ctx context.Context, classification *types.ClassificationResult, jdTitle string, onChunk func(string)) (string, types.TokenUsage, error) {
	sourceTemplate, err := e.lookupTemplate(classification.RoleType)
	if err != nil {
		return "", types.TokenUsage{}, err
	}

	tmpl, err := e.prompts.Fetch(ctx, e.project, constants.PromptAgentRoleExpert)
	if err != nil {
		return "", types.TokenUsage{}, err
	}

	promptText := tmpl.Render(map[string]string{
		"classification":         classification.RoleType,
		"jdTitle":                jdTitle,
		"focusSection":           bulletSection(classification.Insights, emptyFocusLine, false),
		"keywordSection":         bulletSection(classification.Keywords, emptyKeywordLine, false),
		"sentenceSection":        bulletSection(classification.Insights, emptySentenceLine, true),
		"workExperienceTemplate": sourceTemplate,
	})

	var raw string
	var usage types.TokenUsage
	if onChunk != nil {
		raw, usage, err = e.client.InvokeStream(ctx, promptText, onChunk, constants.ExperienceTemperature, constants.ExperienceMaxTokens)
	} else {
		raw, usage, err = e.client.Invoke(ctx, promptText, constants.ExperienceTemperature, constants.ExperienceMaxTokens)
	}
	if err != nil {
		if errors.Is(err, llm.ErrCompletionService) {
			// 改写失败不致命，退回未改写的源模板
			logger.Warn().Err(err).Str("role_type", classification.RoleType).
				Msg("经历定制补全失败，返回未改写的源模板")
			return sourceTemplate, types.TokenUsage{}, nil
		}
		return "", types.TokenUsage{}, err
	}

	obj, err := parser.ExtractJSONObjectWithKeys(raw, "workExperience")
	if err != nil {
		return "", types.TokenUsage{}, fmt.Errorf("经历定制模型输出格式非法: %w", err)
	}
	workExperience, ok := obj["workExperience"].(string)
	if !ok || strings.TrimSpace(workExperience) == "" {
		return "", types.TokenUsage{}, fmt.Errorf("经历定制模型输出中 workExperience 字段缺失或为空")
	}

	return strings.TrimSpace(workExperience), usage, nil
}

// lookupTemplate 精确匹配角色分类，失败时退到兜底键，两者都没有则报错
func (e *ExperienceCustomizer) lookupTemplate(roleType string) (string, error) {
	if tmpl, ok := e.templates[roleType]; ok && tmpl != "" {
		return tmpl, nil
	}
	if tmpl, ok := e.templates[e.defaultKey]; ok && tmpl != "" {
		logger.Debug().Str("role_type", roleType).Str("default_key", e.defaultKey).
			Msg("角色分类无专属经历模板，使用兜底模板")
		return tmpl, nil
	}
	return "", fmt.Errorf("角色 %q 没有经历模板，兜底键 %q 也未配置", roleType, e.defaultKey)
}

// bulletSection 把条目渲染为提示词里的项目符号小节，空列表用兜底行
func bulletSection(items []string, emptyLine string, quoted bool) string {
	if len(items) == 0 {
		return emptyLine
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		if quoted {
			lines = append(lines, fmt.Sprintf("- %q", item))
		} else {
			lines = append(lines, "- "+item)
		}
	}
	return strings.Join(lines, "\n")
}
