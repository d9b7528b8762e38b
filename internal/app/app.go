// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Corphon/MovieForgeMCP/internal/config"
	"github.com/Corphon/MovieForgeMCP/internal/di"
	_ "github.com/Corphon/MovieForgeMCP/internal/llm/providers/openrouter"
	"github.com/Corphon/MovieForgeMCP/internal/media"
	"github.com/Corphon/MovieForgeMCP/internal/services"
	"github.com/Corphon/MovieForgeMCP/internal/storage"
	"github.com/Corphon/MovieForgeMCP/internal/utils"
	"github.com/gin-gonic/gin"
)

// App 应用单例，持有配置、路由和停止信号
type App struct {
	config   *config.AppConfig
	router   *gin.Engine
	stopChan chan struct{}
}

var (
	instance *App
	once     sync.Once
)

// GetApp 获取应用实例（单例模式）
func GetApp() *App {
	once.Do(func() {
		instance = &App{
			stopChan: make(chan struct{}),
		}
	})
	return instance
}

// GetConfig 返回应用配置
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

// SetRouter 绑定HTTP路由
func (a *App) SetRouter(router *gin.Engine) {
	a.router = router
	a.config = config.GetCurrentConfig()
}

// IsDebugMode 返回是否调试模式
func (a *App) IsDebugMode() bool {
	if a.config == nil {
		return false
	}
	return a.config.DebugMode
}

// InitLogger 初始化日志系统，日志同时写入文件和标准输出
func InitLogger(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}

	logFile := filepath.Join(logDir, fmt.Sprintf("movieforge_%s.log", time.Now().Format("20060102")))
	if err := utils.InitLogger(logFile); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	return nil
}

// InitServices 按依赖顺序初始化并注册所有服务
// 注册顺序：存储 → 运行上下文 → LLM → 媒体 → 生成门面 → 各业务服务
func InitServices() error {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return fmt.Errorf("配置未初始化")
	}

	container := di.GetContainer()

	// 1. 文件存储
	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化文件存储失败: %w", err)
	}
	container.Register("storage", fileStorage)

	// 2. 运行服务（持有唯一的运行上下文）
	runService := services.NewRunService(fileStorage)
	container.Register("run", runService)

	// 3. LLM服务
	llmService, err := services.NewLLMService()
	if err != nil {
		return fmt.Errorf("初始化LLM服务失败: %w", err)
	}
	if !llmService.IsReady() {
		log.Println("⚠️ LLM提供者未配置，文本生成阶段将不可用")
	}
	container.Register("llm", llmService)

	// 4. 媒体生成客户端（可选，未配置时图像/视频阶段软降级）
	var mediaClient services.MediaGenerator
	if cfg.MediaProjectID != "" {
		client, err := media.NewClient(context.Background(), media.Config{
			ProjectID:    cfg.MediaProjectID,
			Location:     cfg.MediaLocation,
			ImageModelID: cfg.ImageModelID,
			VideoModelID: cfg.VideoModelID,
		})
		if err != nil {
			log.Printf("⚠️ 媒体客户端初始化失败，图像/视频生成不可用: %v", err)
		} else {
			mediaClient = client
		}
	} else {
		log.Println("⚠️ 未配置媒体项目，图像/视频生成不可用")
	}

	// 5. 生成门面
	studio := services.NewStudioService(llmService, mediaClient)
	container.Register("studio", studio)

	// 6. 进度服务
	progressService := services.NewProgressService()
	container.Register("progress", progressService)

	// 7. 流水线服务
	sequencer := services.NewSequencerService(studio, runService, progressService, cfg.VisualConcurrency)
	container.Register("sequencer", sequencer)

	// 8. 审阅期的业务服务
	container.Register("character", services.NewCharacterService(studio, runService))
	container.Register("scene", services.NewSceneService(studio, runService))
	container.Register("suggestion", services.NewSuggestionService(studio, runService))

	// 定期清理已结束的渲染跟踪器
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				progressService.CleanupCompletedTasks(2 * time.Hour)
			case <-GetApp().stopChan:
				return
			}
		}
	}()

	return nil
}

// Run 启动HTTP服务器并阻塞到收到停止信号
func (a *App) Run(port string) error {
	if a.router == nil {
		return fmt.Errorf("路由未初始化")
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: a.router,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-a.stopChan:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// Stop 触发优雅关闭
func (a *App) Stop() {
	select {
	case <-a.stopChan:
	default:
		close(a.stopChan)
	}
}

// Cleanup 释放资源
func (a *App) Cleanup() {
	a.Stop()
	di.GetContainer().Clear()
}
