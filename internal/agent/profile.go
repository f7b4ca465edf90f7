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

// requiredProfileFields 模型输出必须携带的全部顶层字段，缺一即失败，不做部分接受
var requiredProfileFields = []string{
	"fullName", "email", "phone", "location", "linkedin", "website",
	"summary", "technicalSkills", "languages", "education", "certificates",
	"customModules", "format",
}

// ProfileCustomizer 个人信息定制阶段：参照已生成的工作经历叙述，
// 重排技能、改写概述等非工作字段，输出结构与输入完全一致。
type ProfileCustomizer struct {
	client Completer
}

// NewProfileCustomizer 创建个人信息定制器
func NewProfileCustomizer(client Completer) *ProfileCustomizer {
	return &ProfileCustomizer{client: client}
}

// Customize 定制候选人档案。模型输出非法或缺少必需字段时直接失败，无兜底。
func (p *ProfileCustomizer) Customize(ctx context.Context, workExperience string, personalInfo types.PersonalInfo, classification *types.ClassificationResult) (types.PersonalInfo, types.TokenUsage, error) {
	infoJSON, err := json.MarshalIndent(personalInfo, "", "  ")
	if err != nil {
		return nil, types.TokenUsage{}, fmt.Errorf("序列化候选人档案失败: %w", err)
	}

	promptText := p.buildPrompt(workExperience, string(infoJSON), classification)

	raw, usage, err := p.client.Invoke(ctx, promptText, constants.ProfileTemperature, constants.ProfileMaxTokens)
	if err != nil {
		return nil, types.TokenUsage{}, err
	}

	var customized types.PersonalInfo
	if err := json.Unmarshal([]byte(parser.StripCodeFences(raw)), &customized); err != nil {
		return nil, types.TokenUsage{}, fmt.Errorf("个人信息定制模型输出非法JSON: %w", err)
	}

	var missing []string
	for _, field := range requiredProfileFields {
		if _, ok := customized[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, types.TokenUsage{}, fmt.Errorf("个人信息定制模型输出缺少必需字段: %s", strings.Join(missing, ", "))
	}

	logger.Debug().Int("total_tokens", usage.TotalTokens).Msg("个人信息定制完成")

	return customized, usage, nil
}

// buildPrompt 拼装个人信息定制提示词，携带经历叙述和分类上下文
func (p *ProfileCustomizer) buildPrompt(workExperience string, infoJSON string, classification *types.ClassificationResult) string {
	var sb strings.Builder
	sb.WriteString("You are a professional resume expert specializing in customizing Profile, Skills, Education, and Projects sections to align with the work experience style and terminology.\n\n")
	sb.WriteString("Role Classification: " + classification.RoleType + "\n")
	sb.WriteString("Focus Points:\n" + bulletSection(classification.Insights, emptyFocusLine, false) + "\n")
	sb.WriteString("Priority Keywords:\n" + bulletSection(classification.Keywords, emptyKeywordLine, false) + "\n\n")
	sb.WriteString("Customized Work Experience Content:\n" + workExperience + "\n\n")
	sb.WriteString("Current Personal Information:\n" + infoJSON + "\n\n")
	sb.WriteString(`Your tasks:
1. **Profile/Summary**: Adjust summary bullets to match the language style and terminology used in the work experience above
2. **Technical Skills**: Prioritize and reorder skills that are mentioned or implied in the work experience content
3. **Languages**: Keep relevant languages, prioritize those that align with the work experience context
4. **Education**: Highlight education/courses that complement the work experience narrative
5. **Certificates**: Prioritize certificates that support the work experience claims
6. **Custom Modules**: Adapt any custom sections to maintain consistency with work experience tone

STRICT Guidelines:
- NEVER add skills, languages, education, or certificates not originally present in the personal information
- Only reorder, rephrase, or prioritize existing content
- Match the professional tone and terminology style from the work experience
- Keep the exact same JSON structure

Return the customized personal information in the exact same JSON structure as provided above. Output only valid JSON, no explanations or extra text.
`)
	return sb.String()
}
