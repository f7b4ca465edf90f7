package types

import "encoding/json"

// StageKey 流水线阶段标识，同时作为SSE事件名对外暴露
type StageKey string

const (
	// StageClassifier 角色分类阶段
	StageClassifier StageKey = "parent"
	// StageExperience 工作经历定制阶段
	StageExperience StageKey = "roleExpert"
	// StageProfile 个人信息定制阶段
	StageProfile StageKey = "nonWorkExpert"
	// StageReviewer 终审校对阶段
	StageReviewer StageKey = "reviewer"
)

// JobDescription 岗位描述输入，流水线各阶段只读不改
type JobDescription struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// PersonalInfo 候选人档案，结构开放（姓名、联系方式、技能、教育经历、自定义模块等）
// 各阶段拿到的是副本，返回新版本，不共享可变实例
type PersonalInfo map[string]interface{}

// Clone 返回档案的深拷贝，通过JSON往返实现
func (p PersonalInfo) Clone() PersonalInfo {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		// map[string]interface{} 由JSON解码而来，重新编码不应失败
		return PersonalInfo{}
	}
	var out PersonalInfo
	if err := json.Unmarshal(data, &out); err != nil {
		return PersonalInfo{}
	}
	return out
}

// StringField 读取档案中的字符串字段，不存在或类型不符时返回空串
func (p PersonalInfo) StringField(key string) string {
	if v, ok := p[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// TokenUsage 一次LLM调用消耗的计费单元统计
type TokenUsage struct {
	PromptTokens     int `json:"prompt"`
	CompletionTokens int `json:"completion"`
	TotalTokens      int `json:"total"`
}

// Add 逐字段累加，满足交换律和结合律
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// ClassificationResult 分类阶段的输出
type ClassificationResult struct {
	RoleType string     `json:"roleType"`
	Keywords []string   `json:"keywords"`
	Insights []string   `json:"insights"`
	Usage    TokenUsage `json:"tokens"`
}

// StageUpdate 单阶段完成后推送给观察者的更新载荷
// 不同阶段只填充各自相关的字段
type StageUpdate struct {
	Stage      StageKey     `json:"stage"`
	DurationMs int64        `json:"duration"`
	Usage      TokenUsage   `json:"tokens"`
	RoleType   string       `json:"roleType,omitempty"`
	Keywords   []string     `json:"keywords,omitempty"`
	Insights   []string     `json:"insights,omitempty"`
	WorkExp    string       `json:"workExperience,omitempty"`
	Profile    PersonalInfo `json:"personalInfo,omitempty"`
}

// WorkflowResult 整条流水线的聚合结果
// TokenUsage 恒等于各阶段用量的逐字段之和
type WorkflowResult struct {
	RoleClassification string                    `json:"roleClassification"`
	PersonalInfo       PersonalInfo              `json:"personalInfo"`
	WorkExperience     string                    `json:"workExperience"`
	ProcessingTimeMs   int64                     `json:"processingTimeMs"`
	StageResults       map[StageKey]*StageUpdate `json:"perStageResults"`
	TokenUsage         TokenUsage                `json:"tokenUsage"`
}
