package agent

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"unicode"

	"cv-agent-go/internal/constants"
	"cv-agent-go/internal/logger"
	"cv-agent-go/internal/parser"
	"cv-agent-go/internal/types"
)

// Classifier 角色分类阶段：把岗位描述映射到固定枚举中的一个角色分类，
// 并提取关键词和要点。本阶段永不失败：模型输出异常或补全服务不可用时
// 降级为确定性的关键词启发式分类。
type Classifier struct {
	client     Completer
	prompts    PromptFetcher
	project    string
	categories []string
}

// NewClassifier 创建分类器，categories为空时使用内置默认枚举
func NewClassifier(client Completer, prompts PromptFetcher, project string, categories []string) *Classifier {
	if len(categories) == 0 {
		categories = constants.DefaultRoleCategories
	}
	if project == "" {
		project = constants.PromptProject
	}
	return &Classifier{
		client:     client,
		prompts:    prompts,
		project:    project,
		categories: categories,
	}
}

// classifierResponse 模型输出的严格JSON结构
type classifierResponse struct {
	RoleType string        `json:"role_type"`
	Keywords []interface{} `json:"keywords"`
	Insights []interface{} `json:"insights"`
}

// Classify 对岗位描述做角色分类。任何失败路径都降级为启发式结果，不返回错误。
func (c *Classifier) Classify(ctx context.Context, jd types.JobDescription) *types.ClassificationResult {
	tmpl, err := c.prompts.Fetch(ctx, c.project, constants.PromptAgentClassifier)
	if err != nil {
		logger.Warn().Err(err).Msg("分类阶段拉取提示词失败，降级为启发式分类")
		return c.heuristicResult(jd, types.TokenUsage{})
	}

	promptText := tmpl.Render(map[string]string{
		"title":       jd.Title,
		"description": jd.Description,
		"categories":  strings.Join(c.categories, "\n"),
	})

	raw, usage, err := c.client.Invoke(ctx, promptText, constants.ClassifierTemperature, constants.ClassifierMaxTokens)
	if err != nil {
		logger.Warn().Err(err).Msg("分类阶段补全调用失败，降级为启发式分类")
		return c.heuristicResult(jd, types.TokenUsage{})
	}

	var resp classifierResponse
	if err := json.Unmarshal([]byte(parser.StripCodeFences(raw)), &resp); err != nil {
		logger.Warn().Err(err).Msg("分类阶段模型输出非法JSON，降级为启发式分类")
		return c.heuristicResult(jd, usage)
	}

	result := &types.ClassificationResult{
		RoleType: c.sanitizeRoleType(resp.RoleType, jd),
		Keywords: coerceStringList(resp.Keywords),
		Insights: coerceStringList(resp.Insights),
		Usage:    usage,
	}

	logger.Info().
		Str("role_type", result.RoleType).
		Int("keywords", len(result.Keywords)).
		Int("insights", len(result.Insights)).
		Msg("角色分类完成")

	return result
}

// sanitizeRoleType 把模型返回的分类收敛到允许的枚举内：
// 先精确匹配，再不区分大小写的包含匹配，最后落到关键词启发式。
func (c *Classifier) sanitizeRoleType(raw string, jd types.JobDescription) string {
	cleaned := strings.TrimSpace(raw)

	for _, category := range c.categories {
		if cleaned == category {
			return category
		}
	}

	if cleaned != "" {
		lower := strings.ToLower(cleaned)
		for _, category := range c.categories {
			if strings.Contains(lower, strings.ToLower(category)) {
				return category
			}
		}
	}

	return keywordFallbackRole(jd)
}

// heuristicResult 完全绕开模型输出，从岗位描述原文合成分类结果
func (c *Classifier) heuristicResult(jd types.JobDescription, usage types.TokenUsage) *types.ClassificationResult {
	return &types.ClassificationResult{
		RoleType: keywordFallbackRole(jd),
		Keywords: synthesizeKeywords(jd.Title+" "+jd.Description, 8),
		Insights: synthesizeInsights(jd.Description, 3),
		Usage:    usage,
	}
}

// roleKeywordRules 关键词兜底规则，按优先级顺序扫描
var roleKeywordRules = []struct {
	category string
	terms    []string
}{
	{"Sales", []string{"sales", "revenue", "quota"}},
	{"Business Development", []string{"business development", "partnership", "alliance"}},
	{"Technical Account Manager", []string{"technical account", "tam"}},
	{"AI Solution", []string{"ai", "artificial intelligence", "machine learning"}},
	{"Project Manager", []string{"project", "program", "delivery"}},
	{"Key/Named Account Manager", []string{"key account", "named account", "enterprise account"}},
	{"Customer/Client Success", []string{"customer success", "client success", "customer experience"}},
}

// fallbackRoleType 所有关键词都未命中时的最终兜底分类
const fallbackRoleType = "Sales"

// keywordFallbackRole 对岗位描述的小写全文按固定优先级扫描分类指示词
func keywordFallbackRole(jd types.JobDescription) string {
	text := strings.ToLower(jd.Title + " " + jd.Description)
	for _, rule := range roleKeywordRules {
		for _, term := range rule.terms {
			if strings.Contains(text, term) {
				return rule.category
			}
		}
	}
	return fallbackRoleType
}

// coerceStringList 把松散的JSON数组元素收敛为去空格的字符串列表，丢弃空项
func coerceStringList(items []interface{}) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// keywordStopwords 合成关键词时跳过的常见虚词
var keywordStopwords = map[string]struct{}{
	"about": {}, "after": {}, "also": {}, "and": {}, "are": {}, "been": {},
	"being": {}, "best": {}, "both": {}, "but": {}, "can": {}, "each": {},
	"for": {}, "from": {}, "have": {}, "into": {}, "more": {}, "most": {},
	"not": {}, "other": {}, "our": {}, "over": {}, "such": {}, "than": {},
	"that": {}, "the": {}, "their": {}, "them": {}, "then": {}, "they": {},
	"this": {}, "through": {}, "very": {}, "well": {}, "were": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "while": {}, "will": {}, "with": {},
	"within": {}, "would": {}, "you": {}, "your": {},
}

// synthesizeKeywords 从原文统计高频非虚词作为关键词，结果确定有序
func synthesizeKeywords(text string, limit int) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	counts := make(map[string]int)
	for _, word := range words {
		if len(word) <= 3 {
			continue
		}
		if _, skip := keywordStopwords[word]; skip {
			continue
		}
		counts[word]++
	}

	unique := make([]string, 0, len(counts))
	for word := range counts {
		unique = append(unique, word)
	}
	// 按频次降序，频次相同按字典序，保证结果可复现
	sort.Slice(unique, func(i, j int) bool {
		if counts[unique[i]] != counts[unique[j]] {
			return counts[unique[i]] > counts[unique[j]]
		}
		return unique[i] < unique[j]
	})

	if len(unique) > limit {
		unique = unique[:limit]
	}
	return unique
}

// synthesizeInsights 取原文前几个长度达标的句子作为要点
func synthesizeInsights(text string, limit int) []string {
	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})

	out := make([]string, 0, limit)
	for _, sentence := range sentences {
		s := strings.TrimSpace(sentence)
		if len(s) < 40 {
			continue
		}
		out = append(out, s)
		if len(out) >= limit {
			break
		}
	}
	return out
}
