package handler

import (
	"context"
	"encoding/json"

	"cv-agent-go/internal/logger"
	"cv-agent-go/internal/types"
	"cv-agent-go/internal/workflow"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/protocol/http1/resp"
)

// StreamHandler SSE流式生成接口：每个阶段完成即推送一个事件，
// 调用方在最终失败时也能看到已完成阶段的进度。
type StreamHandler struct {
	engine *workflow.Engine
}

// NewStreamHandler 创建流式生成接口处理器
func NewStreamHandler(engine *workflow.Engine) *StreamHandler {
	return &StreamHandler{engine: engine}
}

// HandleGenerateStream 处理流式生成请求。
// POST /api/v1/generate/stream
//
// 成功时的事件顺序: start → parent → roleExpert → nonWorkExpert → reviewer → done。
// 校验失败或流水线失败时只发一个 error 事件然后关流，已发出的阶段事件不撤回。
func (h *StreamHandler) HandleGenerateStream(ctx context.Context, c *app.RequestContext) {
	body := c.Request.Body()

	c.SetStatusCode(consts.StatusOK)
	c.Response.Header.Set("Content-Type", "text/event-stream")
	c.Response.Header.Set("Cache-Control", "no-cache, no-transform")
	c.Response.Header.Set("Connection", "keep-alive")
	c.Response.HijackWriter(resp.NewChunkedBodyWriter(&c.Response, c.GetWriter()))

	req, validationMsg := parseAndValidate(body)
	if validationMsg != "" {
		writeEvent(c, "error", map[string]string{"message": validationMsg})
		return
	}

	requestID := ensureRequestID(req)
	logger.Info().Str("request_id", requestID).Str("jd_title", req.JD.Title).Msg("收到流式生成请求")

	writeEvent(c, "start", map[string]string{"requestId": requestID})

	result, err := h.engine.Run(ctx, *req.JD, req.PersonalInfo, func(update *types.StageUpdate) {
		writeEvent(c, string(update.Stage), update)
	})
	if err != nil {
		logger.Error().Err(err).Str("request_id", requestID).Msg("流水线执行失败")
		writeEvent(c, "error", map[string]string{"message": err.Error()})
		return
	}

	writeEvent(c, "done", result)
}

// writeEvent 写出一个SSE事件并立刻冲刷缓冲
func writeEvent(c *app.RequestContext, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Str("event", event).Msg("序列化SSE事件载荷失败")
		return
	}
	if _, err := c.WriteString("event: " + event + "\ndata: " + string(data) + "\n\n"); err != nil {
		logger.Warn().Err(err).Str("event", event).Msg("写出SSE事件失败，客户端可能已断开")
		return
	}
	if err := c.Flush(); err != nil {
		logger.Warn().Err(err).Str("event", event).Msg("冲刷SSE事件失败")
	}
}
