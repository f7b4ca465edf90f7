package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cv-agent-go/internal/logger"
)

// ErrUpstreamFetch 提示词仓库返回非2xx或响应不可用，属于致命错误，不做重试
var ErrUpstreamFetch = fmt.Errorf("提示词仓库获取失败")

// Template 一份已发布的提示词模板
type Template struct {
	Content string `json:"promptContent"`
	Version string `json:"version"`
}

// Render 将模板中的 ${key} 占位符替换为给定值。
// 未提供值的占位符原样保留，方便在日志里发现遗漏。
func (t *Template) Render(vars map[string]string) string {
	rendered := t.Content
	for key, value := range vars {
		rendered = strings.ReplaceAll(rendered, "${"+key+"}", value)
	}
	return rendered
}

// Provider 从托管的提示词仓库按 项目+agent 拉取模板。
// 每次调用都实时拉取，不做跨请求缓存，保证拿到的永远是最新发布版本。
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// NewProvider 创建提示词提供者，baseURL 缺失视为配置错误
func NewProvider(baseURL string, timeout time.Duration) (*Provider, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("提示词仓库地址不能为空")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Fetch 拉取指定项目下某个agent的提示词模板
func (p *Provider) Fetch(ctx context.Context, project string, agent string) (*Template, error) {
	reqURL := fmt.Sprintf("%s?project=%s&agent=%s",
		p.baseURL, url.QueryEscape(project), url.QueryEscape(agent))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建提示词请求失败: %w", err)
	}

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取响应体失败: %v", ErrUpstreamFetch, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: 状态 %s (project=%s, agent=%s)", ErrUpstreamFetch, httpResp.Status, project, agent)
	}

	var tmpl Template
	if err := json.Unmarshal(bodyBytes, &tmpl); err != nil {
		return nil, fmt.Errorf("%w: 反序列化响应失败: %v", ErrUpstreamFetch, err)
	}
	if tmpl.Content == "" {
		return nil, fmt.Errorf("%w: 模板内容为空 (project=%s, agent=%s)", ErrUpstreamFetch, project, agent)
	}

	logger.Debug().
		Str("project", project).
		Str("agent", agent).
		Str("version", tmpl.Version).
		Msg("提示词模板拉取成功")

	return &tmpl, nil
}
