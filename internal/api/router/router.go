package router

import (
	"cv-agent-go/internal/api/handler"

	"github.com/cloudwego/hertz/pkg/app/server"
)

// RegisterRoutes 注册全部API路由
func RegisterRoutes(h *server.Hertz, generate *handler.GenerateHandler, stream *handler.StreamHandler) {
	api := h.Group("/api/v1")
	{
		api.POST("/generate", generate.HandleGenerate)
		api.POST("/generate/stream", stream.HandleGenerateStream)
		api.GET("/health", handler.HandleHealth)
	}
}
