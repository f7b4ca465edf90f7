package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DeepSeekConfig LLM补全服务配置
type DeepSeekConfig struct {
	APIKey string `yaml:"api_key"`
	APIURL string `yaml:"api_url"`
	Model  string `yaml:"model"`
	// 任务专用模型，键为阶段名
	TaskModels map[string]string `yaml:"task_models"`
	// HTTP超时(秒)
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// PromptManagerConfig 提示词仓库配置
type PromptManagerConfig struct {
	BaseURL string `yaml:"base_url"` // 托管服务地址，缺失则启动失败
	Project string `yaml:"project"`  // 项目名，例如 "JD2CV_Full"
	// HTTP超时(秒)
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// WorkflowConfig 流水线配置
type WorkflowConfig struct {
	// 允许的角色分类枚举，顺序即关键词兜底扫描的优先级
	RoleCategories []string `yaml:"role_categories"`
}

// TemplatesConfig 角色经历模板映射，进程级只读数据，启动时加载一次
type TemplatesConfig struct {
	// 兜底模板键，精确匹配失败时使用
	DefaultKey string `yaml:"default_key"`
	// 角色分类 -> 经历模板正文
	Experience map[string]string `yaml:"experience"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Address string `yaml:"address"` // 例如 ":8080"
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	Format       string `yaml:"format"`        // json, pretty
	TimeFormat   string `yaml:"time_format"`   // 时间格式
	ReportCaller bool   `yaml:"report_caller"` // 是否报告调用位置
}

// Config 应用程序配置
type Config struct {
	DeepSeek      DeepSeekConfig      `yaml:"deepseek"`
	PromptManager PromptManagerConfig `yaml:"prompt_manager"`
	Workflow      WorkflowConfig      `yaml:"workflow"`
	Templates     TemplatesConfig     `yaml:"templates"`
	Server        ServerConfig        `yaml:"server"`
	Logger        LoggerConfig        `yaml:"logger"`
}

// LoadConfig 从文件加载配置
// 未指定路径时在常见位置查找；测试环境下找不到文件时返回默认配置
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		searchPaths := []string{
			"config.yaml",
			"./config.yaml",
			"../config.yaml",
			"../../config.yaml",
			filepath.Join(os.Getenv("HOME"), ".cv-agent", "config.yaml"),
		}

		execPath, err := os.Executable()
		if err == nil {
			execDir := filepath.Dir(execPath)
			searchPaths = append(searchPaths, filepath.Join(execDir, "config.yaml"))
			searchPaths = append(searchPaths, filepath.Join(execDir, "..", "config.yaml"))
		}

		for _, path := range searchPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}

		if configPath == "" {
			if inTestEnv() {
				return createDefaultConfig(), nil
			}
			configPath = "config.yaml"
		}
	}

	if _, err := os.Stat(configPath); err != nil {
		if inTestEnv() {
			return createDefaultConfig(), nil
		}
		return nil, fmt.Errorf("配置文件不存在: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	applyEnvOverrides(&config)
	applyDefaults(&config)

	return &config, nil
}

// inTestEnv 粗略判断当前是否运行在 go test 下
func inTestEnv() bool {
	for _, arg := range os.Args {
		if strings.Contains(arg, "test") {
			return true
		}
	}
	return false
}

// applyEnvOverrides 从环境变量覆盖敏感配置（如果存在）
func applyEnvOverrides(config *Config) {
	if envKey := os.Getenv("DEEPSEEK_API_KEY"); envKey != "" {
		config.DeepSeek.APIKey = envKey
	}
	if envURL := os.Getenv("DEEPSEEK_API_URL"); envURL != "" {
		config.DeepSeek.APIURL = envURL
	}
	if envModel := os.Getenv("DEEPSEEK_MODEL"); envModel != "" {
		config.DeepSeek.Model = envModel
	}
	if envURL := os.Getenv("PROMPT_MANAGER_URL"); envURL != "" {
		config.PromptManager.BaseURL = envURL
	}
}

// applyDefaults 填充缺省值
func applyDefaults(config *Config) {
	if config.Server.Address == "" {
		config.Server.Address = ":8080"
	}
	if config.DeepSeek.APIURL == "" {
		config.DeepSeek.APIURL = "https://api.deepseek.com/v1/chat/completions"
	}
	if config.DeepSeek.Model == "" {
		config.DeepSeek.Model = "deepseek-chat"
	}
	if config.DeepSeek.TimeoutSeconds <= 0 {
		config.DeepSeek.TimeoutSeconds = 120
	}
	if config.PromptManager.Project == "" {
		config.PromptManager.Project = "JD2CV_Full"
	}
	if config.PromptManager.TimeoutSeconds <= 0 {
		config.PromptManager.TimeoutSeconds = 15
	}
	if config.Templates.DefaultKey == "" {
		config.Templates.DefaultKey = "Solution - General"
	}
}

// createDefaultConfig 创建测试环境用的默认配置
func createDefaultConfig() *Config {
	config := &Config{}

	config.DeepSeek.APIURL = "https://api.deepseek.com/v1/chat/completions"
	config.DeepSeek.Model = "deepseek-chat"
	config.DeepSeek.TimeoutSeconds = 120
	if envKey := os.Getenv("DEEPSEEK_API_KEY"); envKey != "" {
		config.DeepSeek.APIKey = envKey
	} else {
		config.DeepSeek.APIKey = "test_api_key"
	}

	config.PromptManager.BaseURL = "http://localhost:3000/api/prompt-manager"
	config.PromptManager.Project = "JD2CV_Full"
	config.PromptManager.TimeoutSeconds = 15

	config.Workflow.RoleCategories = []string{
		"Sales",
		"Business Development",
		"Technical Account Manager",
		"AI Solution",
		"Partnerships Alliance Manager",
		"Project Manager",
		"Key/Named Account Manager",
		"Customer/Client Success",
	}

	config.Templates.DefaultKey = "Solution - General"
	config.Templates.Experience = map[string]string{
		"Sales":              "NCS | Financial Services Industry Lead | 2021 – 2022\n\nDrove $5M+ pipeline and closed $2M+ in contracts by leading GTM and sales strategy.",
		"Solution - General": "NCS | Financial Services Industry Lead | 2021 – 2022\n\nDesigned and launched 3 localized fintech solutions, accelerating deployments by 25%.",
	}

	config.Server.Address = ":8080"

	config.Logger.Level = "info"
	config.Logger.Format = "pretty"
	config.Logger.TimeFormat = "2006-01-02 15:04:05"
	config.Logger.ReportCaller = true

	return config
}

// CreateSampleConfig 创建一个示例配置文件
func CreateSampleConfig(filePath string) error {
	if _, err := os.Stat(filePath); err == nil {
		return fmt.Errorf("文件 '%s' 已存在，不会覆盖", filePath)
	}

	config := createDefaultConfig()

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("写入示例配置文件 '%s' 失败: %w", filePath, err)
	}

	fmt.Printf("示例配置文件已创建: %s\n", filePath)
	return nil
}

// GetModelForTask 根据阶段名获取模型
// 有阶段专用模型则返回专用模型，否则返回默认模型
func (c *Config) GetModelForTask(taskName string) string {
	if c.DeepSeek.TaskModels != nil {
		if model, ok := c.DeepSeek.TaskModels[taskName]; ok && model != "" {
			return model
		}
	}
	return c.DeepSeek.Model
}

// RoleCategories 返回配置的角色分类枚举，未配置时退回内置默认值
func (c *Config) RoleCategories(defaults []string) []string {
	if len(c.Workflow.RoleCategories) > 0 {
		return c.Workflow.RoleCategories
	}
	return defaults
}

// GetDuration 解析配置中的时长字符串，解析失败时返回默认值
func GetDuration(durationStr string, defaultDuration time.Duration) time.Duration {
	if durationStr == "" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return defaultDuration
	}
	return d
}
