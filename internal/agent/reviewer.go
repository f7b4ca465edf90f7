package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cv-agent-go/internal/constants"
	"cv-agent-go/internal/logger"
	"cv-agent-go/internal/parser"
	"cv-agent-go/internal/types"
)

// defaultPageFormat 版式字段缺失时的默认值
const defaultPageFormat = "A4"

// ReviewOutput 终审阶段的最终产出
type ReviewOutput struct {
	PersonalInfo   types.PersonalInfo
	WorkExperience string
	Usage          types.TokenUsage
}

// Reviewer 终审校对阶段：对定制后的经历和档案做一致性统稿。
// 提取采用括号配平扫描器，容忍模型输出里混入说明文字或多个JSON片段；
// 没有合格候选时直接失败，本阶段没有静默兜底。
type Reviewer struct {
	client Completer
}

// NewReviewer 创建终审器
func NewReviewer(client Completer) *Reviewer {
	return &Reviewer{client: client}
}

// Review 执行终审。original 仅作参照，联系方式字段以它为准。
func (r *Reviewer) Review(ctx context.Context, workExperience string, profile types.PersonalInfo, original types.PersonalInfo, jd types.JobDescription, classification *types.ClassificationResult) (*ReviewOutput, error) {
	profileJSON, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化候选人档案失败: %w", err)
	}

	promptText := r.buildPrompt(workExperience, string(profileJSON), jd, classification)

	raw, usage, err := r.client.Invoke(ctx, promptText, constants.ReviewerTemperature, constants.ReviewerMaxTokens)
	if err != nil {
		return nil, err
	}

	obj, err := parser.ExtractJSONObjectWithKeys(raw, "workExperience", "personalInfo")
	if err != nil {
		return nil, fmt.Errorf("终审模型输出中未找到包含 workExperience 和 personalInfo 的JSON对象: %w", err)
	}

	reviewedExperience, ok := obj["workExperience"].(string)
	if !ok || strings.TrimSpace(reviewedExperience) == "" {
		return nil, fmt.Errorf("终审模型输出的 workExperience 字段非字符串或为空")
	}
	reviewedProfile, ok := obj["personalInfo"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("终审模型输出的 personalInfo 字段非对象")
	}

	finalProfile := preserveContactFields(types.PersonalInfo(reviewedProfile), original)

	logger.Info().Int("total_tokens", usage.TotalTokens).Msg("终审校对完成")

	return &ReviewOutput{
		PersonalInfo:   finalProfile,
		WorkExperience: strings.TrimSpace(reviewedExperience),
		Usage:          usage,
	}, nil
}

// preserveContactFields 联系方式以原始档案为准，模型不得改写；版式缺失时补默认值
func preserveContactFields(reviewed types.PersonalInfo, original types.PersonalInfo) types.PersonalInfo {
	out := reviewed.Clone()
	for _, field := range []string{"fullName", "email", "phone"} {
		if v := original.StringField(field); v != "" {
			out[field] = v
		}
	}
	if v := original.StringField("format"); v != "" {
		out["format"] = v
	} else if out.StringField("format") == "" {
		out["format"] = defaultPageFormat
	}
	return out
}

// buildPrompt 拼装终审提示词
func (r *Reviewer) buildPrompt(workExperience string, profileJSON string, jd types.JobDescription, classification *types.ClassificationResult) string {
	var sb strings.Builder
	sb.WriteString("You are a senior resume reviewer and quality assurance expert. Your task is to ensure the customized resume maintains consistency, removes redundancy, and follows ATS-friendly formatting.\n\n")
	sb.WriteString("Job Description: " + jd.Title + " - " + jd.Description + "\n")
	sb.WriteString("Role Classification: " + classification.RoleType + "\n\n")
	sb.WriteString("Customized Work Experience:\n" + workExperience + "\n\n")
	sb.WriteString("Customized Personal Info:\n" + profileJSON + "\n\n")
	sb.WriteString(`Your review tasks:
1. **Style Unification**: Ensure consistent tone and language throughout all sections
2. **Redundancy Removal**: Remove duplicate skills, achievements, or keywords
3. **ATS Optimization**: Ensure keywords are naturally integrated and action verbs are strong
4. **Structure Validation**: Maintain the exact JSON structure for personal info
5. **Quality Check**: Verify all claims are backed by measurable outcomes

Guidelines:
- Maintain authenticity - don't add fake achievements
- Keep the same number of bullet points in work experience
- Ensure technical skills list has no duplicates
- Use consistent verb tenses and writing style
- Prioritize most relevant content first

Return a JSON object with this exact structure:
{
  "personalInfo": { /* refined personal info with same structure */ },
  "workExperience": "refined work experience text"
}

Output only valid JSON, no explanations or extra text.
`)
	return sb.String()
}
