package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cv-agent-go/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	// DeepSeek的OpenAI兼容接口地址
	defaultDeepSeekAPIURL = "https://api.deepseek.com/v1/chat/completions"
	defaultDeepSeekModel  = "deepseek-chat"
)

// ErrCompletionService 补全服务最终失败（含备用通道重试后）
var ErrCompletionService = fmt.Errorf("补全服务调用失败")

// --- OpenAI兼容请求/响应结构 ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatCompletionRequest struct {
	Model         string             `json:"model"`
	Messages      []chatMessage      `json:"messages"`
	Temperature   *float32           `json:"temperature,omitempty"`
	MaxTokens     *int               `json:"max_tokens,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	StreamOptions *chatStreamOptions `json:"stream_options,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

// DeepSeekChatModel 实现 eino 的 model.BaseChatModel 接口，对接DeepSeek聊天补全服务。
// 主通道请求失败时会经由一条独立的裸HTTP通道透明重试一次，两次都失败才向上抛错。
type DeepSeekChatModel struct {
	apiKey     string
	modelName  string
	apiURL     string
	httpClient *http.Client
}

// NewDeepSeekChatModel 创建一个新的 DeepSeekChatModel 实例。
// apiKey 为必填项，缺失视为配置错误。
func NewDeepSeekChatModel(apiKey string, modelName string, apiURL string, timeout time.Duration) (*DeepSeekChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("DeepSeek API 密钥不能为空")
	}

	mn := modelName
	if strings.TrimSpace(mn) == "" {
		mn = defaultDeepSeekModel
	}

	url := apiURL
	if strings.TrimSpace(url) == "" {
		url = defaultDeepSeekAPIURL
	}

	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	logger.Info().Str("api_url", url).Str("model", mn).Msg("DeepSeek LLM 客户端初始化完成")

	return &DeepSeekChatModel{
		apiKey:     apiKey,
		modelName:  mn,
		apiURL:     url,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// buildRequest 根据消息和调用选项构造请求体
func (d *DeepSeekChatModel) buildRequest(messages []*schema.Message, stream bool, options ...model.Option) ([]byte, error) {
	opts := model.GetCommonOptions(&model.Options{Model: &d.modelName}, options...)

	apiMessages := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		apiMessages = append(apiMessages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	if len(apiMessages) == 0 {
		return nil, fmt.Errorf("消息列表不能为空")
	}

	payload := chatCompletionRequest{
		Model:       *opts.Model,
		Messages:    apiMessages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
	if stream {
		// 要求服务端在最后一帧携带token用量
		payload.StreamOptions = &chatStreamOptions{IncludeUsage: true}
	}

	return json.Marshal(payload)
}

// post 向补全服务发送一次请求并读取完整响应体
func (d *DeepSeekChatModel) post(ctx context.Context, client *http.Client, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, string(bodyBytes))
	}

	return bodyBytes, nil
}

// rawFallbackClient 备用裸HTTP通道：全新连接，不复用主通道的连接池
func (d *DeepSeekChatModel) rawFallbackClient() *http.Client {
	return &http.Client{
		Timeout:   d.httpClient.Timeout,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
}

// Generate 实现 model.BaseChatModel 接口，非流式调用
func (d *DeepSeekChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	payload, err := d.buildRequest(messages, false, options...)
	if err != nil {
		return nil, err
	}

	bodyBytes, err := d.post(ctx, d.httpClient, payload)
	if err != nil {
		logger.Warn().Err(err).Msg("DeepSeek 主通道请求失败，尝试备用通道重试一次")
		bodyBytes, err = d.post(ctx, d.rawFallbackClient(), payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCompletionService, err)
		}
	}

	var apiResp chatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, string(bodyBytes))
	}

	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: 从 API 收到空选项", ErrCompletionService)
	}

	resultMessage := &schema.Message{
		Role:    schema.Assistant,
		Content: apiResp.Choices[0].Message.Content,
	}
	if apiResp.Usage != nil {
		resultMessage.ResponseMeta = &schema.ResponseMeta{
			FinishReason: apiResp.Choices[0].FinishReason,
			Usage: &schema.TokenUsage{
				PromptTokens:     apiResp.Usage.PromptTokens,
				CompletionTokens: apiResp.Usage.CompletionTokens,
				TotalTokens:      apiResp.Usage.TotalTokens,
			},
		}
	}

	return resultMessage, nil
}

// Stream 实现 model.BaseChatModel 接口，流式调用。
// 流式通道建立失败（请求错误、非200状态或无响应体）时降级为非流式调用，
// 调用方仍能拿到最终结果，只是不会收到增量帧。
func (d *DeepSeekChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	payload, err := d.buildRequest(messages, true, options...)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := d.httpClient.Do(httpReq)
	if err != nil || httpResp.StatusCode != http.StatusOK || httpResp.Body == nil {
		if httpResp != nil && httpResp.Body != nil {
			httpResp.Body.Close()
		}
		logger.Warn().Err(err).Msg("DeepSeek 流式通道建立失败，降级为非流式调用")
		return d.fallbackStream(ctx, messages, options...)
	}

	sr, sw := schema.Pipe[*schema.Message](8)

	go func() {
		defer httpResp.Body.Close()
		defer sw.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var usage *chatUsage
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				break
			}

			var chunk chatCompletionChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				// 单帧解析失败不中断整个流
				continue
			}

			if chunk.Usage != nil {
				usage = chunk.Usage
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				msg := &schema.Message{Role: schema.Assistant, Content: chunk.Choices[0].Delta.Content}
				if closed := sw.Send(msg, nil); closed {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			sw.Send(nil, fmt.Errorf("%w: 读取流式响应失败: %v", ErrCompletionService, err))
			return
		}

		// 末帧只携带用量信息，内容为空；服务端未报告用量时保持为零值
		final := &schema.Message{Role: schema.Assistant, ResponseMeta: &schema.ResponseMeta{Usage: &schema.TokenUsage{}}}
		if usage != nil {
			final.ResponseMeta.Usage = &schema.TokenUsage{
				PromptTokens:     usage.PromptTokens,
				CompletionTokens: usage.CompletionTokens,
				TotalTokens:      usage.TotalTokens,
			}
		}
		sw.Send(final, nil)
	}()

	return sr, nil
}

// fallbackStream 将一次非流式调用包装为单帧流
func (d *DeepSeekChatModel) fallbackStream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := d.Generate(ctx, messages, options...)
	if err != nil {
		return nil, err
	}
	sr, sw := schema.Pipe[*schema.Message](1)
	sw.Send(msg, nil)
	sw.Close()
	return sr, nil
}

var _ model.BaseChatModel = (*DeepSeekChatModel)(nil)
