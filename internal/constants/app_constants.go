package constants

const (
	// PromptProject 提示词仓库中本服务对应的项目名
	PromptProject = "JD2CV_Full"

	// 各阶段在提示词仓库中的 agent 名称
	PromptAgentClassifier = "Classifier"
	PromptAgentRoleExpert = "RoleExpert"
	PromptAgentNonWork    = "NonWorkExpert"
	PromptAgentReviewer   = "Reviewer"

	// DefaultTemplateKey 经历模板映射中的兜底键，精确匹配失败时使用
	DefaultTemplateKey = "Solution - General"

	// 各阶段的采样温度与输出上限（沿用上游服务的调优值）
	ClassifierTemperature = 0.1
	ClassifierMaxTokens   = 1000
	ExperienceTemperature = 0.25
	ExperienceMaxTokens   = 5000
	ProfileTemperature    = 0.3
	ProfileMaxTokens      = 4000
	ReviewerTemperature   = 0.2
	ReviewerMaxTokens     = 5000
)

// DefaultRoleCategories 固定的角色分类枚举，配置未提供时使用
// 顺序即关键词兜底扫描的优先级
var DefaultRoleCategories = []string{
	"Sales",
	"Business Development",
	"Technical Account Manager",
	"AI Solution",
	"Partnerships Alliance Manager",
	"Project Manager",
	"Key/Named Account Manager",
	"Customer/Client Success",
}
