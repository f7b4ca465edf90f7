package handler

import (
	"context"
	"encoding/json"

	"cv-agent-go/internal/logger"
	"cv-agent-go/internal/types"
	"cv-agent-go/internal/workflow"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
)

// GenerateRequest 生成接口的请求体
type GenerateRequest struct {
	JD           *types.JobDescription `json:"jd"`
	PersonalInfo types.PersonalInfo    `json:"personalInfo"`
	RequestID    string                `json:"requestId"`
}

// GenerateResponse 同步生成接口的成功响应
type GenerateResponse struct {
	Success            bool                                  `json:"success"`
	RequestID          string                                `json:"requestId"`
	RoleClassification string                                `json:"roleClassification"`
	PersonalInfo       types.PersonalInfo                    `json:"personalInfo"`
	WorkExperience     string                                `json:"workExperience"`
	ProcessingTimeMs   int64                                 `json:"processingTimeMs"`
	PerStageResults    map[types.StageKey]*types.StageUpdate `json:"perStageResults"`
	TokenUsage         types.TokenUsage                      `json:"tokenUsage"`
}

// GenerateHandler 同步生成接口
type GenerateHandler struct {
	engine *workflow.Engine
}

// NewGenerateHandler 创建同步生成接口处理器
func NewGenerateHandler(engine *workflow.Engine) *GenerateHandler {
	return &GenerateHandler{engine: engine}
}

// parseAndValidate 解析请求体并校验必填字段，返回错误信息（空串表示通过）
func parseAndValidate(body []byte) (*GenerateRequest, string) {
	var req GenerateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, "Missing JD information"
	}
	if req.JD == nil || req.JD.Title == "" || req.JD.Description == "" {
		return nil, "Missing JD information"
	}
	if len(req.PersonalInfo) == 0 {
		return nil, "Missing personal information"
	}
	return &req, ""
}

// ensureRequestID 客户端未提供requestId时生成一个
func ensureRequestID(req *GenerateRequest) string {
	if req.RequestID != "" {
		return req.RequestID
	}
	return uuid.New().String()
}

// HandleGenerate 处理同步生成请求。
// POST /api/v1/generate
func (h *GenerateHandler) HandleGenerate(ctx context.Context, c *app.RequestContext) {
	req, validationMsg := parseAndValidate(c.Request.Body())
	if validationMsg != "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": validationMsg})
		return
	}

	requestID := ensureRequestID(req)
	logger.Info().Str("request_id", requestID).Str("jd_title", req.JD.Title).Msg("收到同步生成请求")

	result, err := h.engine.Run(ctx, *req.JD, req.PersonalInfo, nil)
	if err != nil {
		logger.Error().Err(err).Str("request_id", requestID).Msg("流水线执行失败")
		c.JSON(consts.StatusInternalServerError, map[string]string{
			"error":   "Failed to generate customized resume",
			"details": err.Error(),
		})
		return
	}

	c.JSON(consts.StatusOK, &GenerateResponse{
		Success:            true,
		RequestID:          requestID,
		RoleClassification: result.RoleClassification,
		PersonalInfo:       result.PersonalInfo,
		WorkExperience:     result.WorkExperience,
		ProcessingTimeMs:   result.ProcessingTimeMs,
		PerStageResults:    result.StageResults,
		TokenUsage:         result.TokenUsage,
	})
}

// HandleHealth 健康检查。
// GET /api/v1/health
func HandleHealth(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
}
