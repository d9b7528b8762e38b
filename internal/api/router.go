// internal/api/router.go
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Corphon/MovieForgeMCP/internal/config"
	"github.com/Corphon/MovieForgeMCP/internal/di"
	"github.com/Corphon/MovieForgeMCP/internal/services"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	// 获取配置
	cfg := config.GetCurrentConfig()

	// 获取依赖注入容器
	container := di.GetContainer()

	// ✅ 只从容器获取服务，不再创建新实例
	runService, ok := container.Get("run").(*services.RunService)
	if !ok {
		return nil, fmt.Errorf("运行服务未正确初始化")
	}

	sequencer, ok := container.Get("sequencer").(*services.SequencerService)
	if !ok {
		return nil, fmt.Errorf("流水线服务未正确初始化")
	}

	characterService, ok := container.Get("character").(*services.CharacterService)
	if !ok {
		return nil, fmt.Errorf("角色服务未正确初始化")
	}

	sceneService, ok := container.Get("scene").(*services.SceneService)
	if !ok {
		return nil, fmt.Errorf("场景服务未正确初始化")
	}

	suggestionService, ok := container.Get("suggestion").(*services.SuggestionService)
	if !ok {
		return nil, fmt.Errorf("建议服务未正确初始化")
	}

	progressService, ok := container.Get("progress").(*services.ProgressService)
	if !ok {
		return nil, fmt.Errorf("进度服务未正确初始化")
	}

	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("LLM服务未正确初始化")
	}

	// ✅ 创建API处理器 - 只传递从容器获取的服务
	handler := NewHandler(
		runService,
		sequencer,
		characterService,
		sceneService,
		suggestionService,
		progressService,
		llmService,
	)

	// 创建路由
	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// 启用CORS与请求ID
	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())

	// 再生成端点共享一个限流器
	rateLimiter := NewRateLimiter()
	regenLimit := generationRateLimit(rateLimiter, 10, time.Minute)

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// WebSocket 支持
	r.GET("/ws/feed", handler.RunFeedWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		api.GET("/status", handler.GetStatus)

		// ===============================
		// 运行生命周期路由
		// ===============================
		runsGroup := api.Group("/runs")
		{
			runsGroup.GET("", handler.ListRuns)
			runsGroup.POST("", handler.SubmitRun)
			runsGroup.GET("/current", handler.GetCurrentRun)
			runsGroup.POST("/current/reset", handler.ResetRun)
			runsGroup.POST("/current/finalize", handler.FinalizeRun)
			runsGroup.GET("/current/progress", handler.GetRenderProgress)
		}

		// ===============================
		// 角色相关路由
		// ===============================
		charactersGroup := api.Group("/characters")
		{
			charactersGroup.POST("/:id/image/regenerate", regenLimit, handler.RegenerateCharacterImage)
			charactersGroup.POST("/:id/image/edit", regenLimit, handler.EditCharacterImage)
			charactersGroup.POST("/:id/voice-line/regenerate", regenLimit, handler.RegenerateVoiceLine)
			charactersGroup.PUT("/:id/voice-line", handler.UpdateVoiceLine)
		}

		// ===============================
		// 场景相关路由
		// ===============================
		scenesGroup := api.Group("/scenes")
		{
			scenesGroup.POST("/:id/storyboard/regenerate", regenLimit, handler.RegenerateStoryboard)
			scenesGroup.POST("/:id/description/enhance", regenLimit, handler.EnhanceSceneDescription)
			scenesGroup.PUT("/:id/description", handler.UpdateSceneDescription)
		}

		// ===============================
		// 场景建议路由
		// ===============================
		suggestionsGroup := api.Group("/suggestions")
		{
			suggestionsGroup.POST("/:id/accept", handler.AcceptSuggestion)
			suggestionsGroup.POST("/:id/reject", handler.RejectSuggestion)
		}

		// ===============================
		// LLM配置路由
		// ===============================
		llmGroup := api.Group("/llm")
		{
			llmGroup.PUT("/config", handler.UpdateLLMSettings)
		}
	}

	return r, nil
}
