package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Corphon/MovieForgeMCP/internal/models"
	"github.com/Corphon/MovieForgeMCP/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStudio 是面向API测试的最小AssetStudio实现
type fakeStudio struct{}

func (f *fakeStudio) AnalyzeScript(ctx context.Context, script string) (*models.AnalysisResult, error) {
	return &models.AnalysisResult{
		Title:   "测试影片",
		Logline: "梗概",
		Characters: []models.AnalyzedCharacter{
			{Name: "林雪", Description: "天文学家"},
		},
		Scenes: []models.AnalyzedScene{
			{Number: 1, Description: "第一场"},
		},
	}, nil
}

func (f *fakeStudio) AnalyzeImageStyle(ctx context.Context, imageData, mime string) (string, error) {
	return "fake style", nil
}

func (f *fakeStudio) GenerateSceneSuggestions(ctx context.Context, logline string, scenes []models.Scene) ([]models.SceneSuggestion, error) {
	return nil, nil
}

func (f *fakeStudio) MatchVoiceActors(ctx context.Context, characters []models.AnalyzedCharacter) (models.VoiceCasting, error) {
	return models.VoiceCasting{}, nil
}

func (f *fakeStudio) GenerateCharacterVoiceLine(ctx context.Context, name, description, vocalStyle string) (string, error) {
	return "台词", nil
}

func (f *fakeStudio) GenerateCharacterImage(ctx context.Context, description, stylePrompt, quality string) (string, error) {
	return "fake://image", nil
}

func (f *fakeStudio) GenerateStoryboardVideo(ctx context.Context, description, stylePrompt, quality string) (string, error) {
	return "fake://video", nil
}

func (f *fakeStudio) EditImage(ctx context.Context, image, instruction string) (string, error) {
	return image + "?edited", nil
}

func (f *fakeStudio) EnhanceSceneDescription(ctx context.Context, description string) (string, error) {
	return description, nil
}

func (f *fakeStudio) RenderFinalVideo(ctx context.Context, production *models.Production, onProgress func(progress int, message string)) (string, error) {
	return "fake://final", nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *services.RunService) {
	t.Helper()
	return newTestRouterWithStudio(t, &fakeStudio{})
}

func newTestRouterWithStudio(t *testing.T, studio services.AssetStudio) (*gin.Engine, *services.RunService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	runs := services.NewRunService(nil)
	progress := services.NewProgressService()
	handler := NewHandler(
		runs,
		services.NewSequencerService(studio, runs, progress, 1),
		services.NewCharacterService(studio, runs),
		services.NewSceneService(studio, runs),
		services.NewSuggestionService(studio, runs),
		progress,
		services.NewLLMServiceWithProvider(nil),
	)

	r := gin.New()
	r.Use(requestIDMiddleware())
	r.POST("/api/runs", handler.SubmitRun)
	r.GET("/api/runs/current", handler.GetCurrentRun)
	r.POST("/api/runs/current/reset", handler.ResetRun)
	r.POST("/api/runs/current/finalize", handler.FinalizeRun)
	r.GET("/api/runs/current/progress", handler.GetRenderProgress)
	r.POST("/api/characters/:id/image/regenerate", handler.RegenerateCharacterImage)
	r.POST("/api/suggestions/:id/accept", handler.AcceptSuggestion)
	r.GET("/api/status", handler.GetStatus)
	return r, runs
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// blockingStudio 在剧本分析处暂停，用于观察请求上下文取消后管线是否继续
type blockingStudio struct {
	fakeStudio
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStudio) AnalyzeScript(ctx context.Context, script string) (*models.AnalysisResult, error) {
	close(s.entered)
	<-s.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fakeStudio.AnalyzeScript(ctx, script)
}

func TestSubmitRunSurvivesRequestCancel(t *testing.T) {
	studio := &blockingStudio{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	r, runs := newTestRouterWithStudio(t, studio)

	// net/http在处理器返回后取消请求上下文，这里显式模拟这一取消
	reqCtx, cancel := context.WithCancel(context.Background())
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(gin.H{
		"script":   "INT. 房间 - 夜",
		"settings": gin.H{"quality": "720p"},
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/runs", &buf).WithContext(reqCtx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	<-studio.entered
	cancel()
	close(studio.release)

	// 管线不受请求取消影响，照常运行至REVIEW
	require.Eventually(t, func() bool {
		return runs.Context.Status() == models.RunStatusReview
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmitRunAccepted(t *testing.T) {
	r, runs := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/runs", gin.H{
		"script":   "INT. 房间 - 夜",
		"settings": gin.H{"quality": "720p"},
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)

	// 流水线在后台运行至REVIEW
	require.Eventually(t, func() bool {
		return runs.Context.Status() == models.RunStatusReview
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmitRunValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	// 缺少script字段
	w := doJSON(r, http.MethodPost, "/api/runs", gin.H{"settings": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitRunConflictWhileRunning(t *testing.T) {
	r, runs := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/runs", gin.H{"script": "剧本"})
	require.Equal(t, http.StatusAccepted, w.Code)

	// RUNNING或REVIEW状态下再次提交都是冲突
	w = doJSON(r, http.MethodPost, "/api/runs", gin.H{"script": "另一个剧本"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// 重置后可以重新提交
	require.Eventually(t, func() bool {
		return runs.Context.Status() == models.RunStatusReview
	}, 2*time.Second, 10*time.Millisecond)
	w = doJSON(r, http.MethodPost, "/api/runs/current/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/api/runs", gin.H{"script": "新剧本"})
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestGetCurrentRunSnapshot(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/api/runs/current", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool               `json:"success"`
		Data    models.RunSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, models.RunStatusSetup, resp.Data.Status)
}

func TestFinalizeRequiresReview(t *testing.T) {
	r, _ := newTestRouter(t)

	// SETUP状态下不能渲染
	w := doJSON(r, http.MethodPost, "/api/runs/current/finalize", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRenderProgressNotFound(t *testing.T) {
	r, runs := newTestRouter(t)

	// 没有运行
	w := doJSON(r, http.MethodGet, "/api/runs/current/progress", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 有运行但渲染未开始
	require.NoError(t, runs.Context.Begin("剧本", services.ProductionSettings{}))
	w = doJSON(r, http.MethodGet, "/api/runs/current/progress", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegenerateCharacterImageNotFound(t *testing.T) {
	r, runs := newTestRouter(t)
	require.NoError(t, runs.Context.Begin("剧本", services.ProductionSettings{}))

	w := doJSON(r, http.MethodPost, "/api/characters/ghost/image/regenerate", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrorCharacterNotFound, resp.Error.Code)
}

func TestAcceptSuggestionNotFound(t *testing.T) {
	r, runs := newTestRouter(t)
	require.NoError(t, runs.Context.Begin("剧本", services.ProductionSettings{}))

	w := doJSON(r, http.MethodPost, "/api/suggestions/ghost/accept", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrorSuggestionNotFound, resp.Error.Code)
}

func TestGetStatus(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			RunStatus string `json:"run_status"`
			LLMReady  bool   `json:"llm_ready"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(models.RunStatusSetup), resp.Data.RunStatus)
	assert.False(t, resp.Data.LLMReady)
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("client-1", 3, time.Minute))
	}
	// 超出限额
	assert.False(t, rl.Allow("client-1", 3, time.Minute))
	// 不同客户端独立计数
	assert.True(t, rl.Allow("client-2", 3, time.Minute))
}
