package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cv-agent-go/internal/agent"
	"cv-agent-go/internal/api/handler"
	"cv-agent-go/internal/api/router"
	"cv-agent-go/internal/config"
	applogger "cv-agent-go/internal/logger"
	"cv-agent-go/internal/llm"
	"cv-agent-go/internal/prompt"
	"cv-agent-go/internal/workflow"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	// .env 先于配置加载，环境变量覆盖依赖它
	_ = godotenv.Load()

	var configPath string
	var initConfig bool
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	pflag.BoolVar(&initConfig, "init-config", false, "生成示例配置文件后退出")
	pflag.Parse()

	if initConfig {
		target := configPath
		if target == "" {
			target = "config.yaml"
		}
		if err := config.CreateSampleConfig(target); err != nil {
			applogger.Fatal().Err(err).Msg("生成示例配置失败")
		}
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		applogger.Fatal().Err(err).Msg("加载配置失败")
	}

	initLogger(cfg)
	glog.Info("配置加载成功")

	chatModel, err := llm.NewDeepSeekChatModel(
		cfg.DeepSeek.APIKey,
		cfg.DeepSeek.Model,
		cfg.DeepSeek.APIURL,
		time.Duration(cfg.DeepSeek.TimeoutSeconds)*time.Second,
	)
	if err != nil {
		glog.Fatalf("初始化DeepSeek聊天模型失败: %v", err)
	}
	completionClient := llm.NewCompletionClient(chatModel)

	promptProvider, err := prompt.NewProvider(
		cfg.PromptManager.BaseURL,
		time.Duration(cfg.PromptManager.TimeoutSeconds)*time.Second,
	)
	if err != nil {
		glog.Fatalf("初始化提示词提供者失败: %v", err)
	}
	glog.Info("提示词提供者初始化成功")

	engine := workflow.NewEngine(
		agent.NewClassifier(completionClient, promptProvider, cfg.PromptManager.Project, cfg.Workflow.RoleCategories),
		agent.NewExperienceCustomizer(completionClient, promptProvider, cfg.PromptManager.Project, cfg.Templates.Experience, cfg.Templates.DefaultKey),
		agent.NewProfileCustomizer(completionClient),
		agent.NewReviewer(completionClient),
	)
	glog.Info("流水线编排器初始化成功")

	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		glog.CtxInfof(c, "Request: %s %s", string(ctx.Method()), string(ctx.Path()))
		ctx.Next(c)
		glog.CtxInfof(c, "Response: status %d", ctx.Response.StatusCode())
	})

	router.RegisterRoutes(h, handler.NewGenerateHandler(engine), handler.NewStreamHandler(engine))
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)
	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

// initLogger 初始化zerolog并把Hertz的hlog接到同一个输出上
func initLogger(cfg *config.Config) {
	applogger.Init(applogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})

	glog.SetLogger(hertzadapter.From(applogger.Logger))
	glog.SetLevel(hlogLevel(cfg.Logger.Level))
}

func hlogLevel(level string) glog.Level {
	switch level {
	case "debug":
		return glog.LevelDebug
	case "warn":
		return glog.LevelWarn
	case "error":
		return glog.LevelError
	default:
		return glog.LevelInfo
	}
}
