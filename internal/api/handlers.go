// internal/api/handlers.go
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/Corphon/MovieForgeMCP/internal/services"
	"github.com/gin-gonic/gin"
)

// asyncContext 返回与请求取消解耦的上下文
// 异步任务在处理器返回、请求上下文被取消之后仍要继续执行
func asyncContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

// Handler 持有所有API处理器依赖的服务
type Handler struct {
	RunService        *services.RunService
	Sequencer         *services.SequencerService
	CharacterService  *services.CharacterService
	SceneService      *services.SceneService
	SuggestionService *services.SuggestionService
	ProgressService   *services.ProgressService
	LLMService        *services.LLMService

	resp *ResponseHelper
}

// NewHandler 创建API处理器
func NewHandler(
	runService *services.RunService,
	sequencer *services.SequencerService,
	characterService *services.CharacterService,
	sceneService *services.SceneService,
	suggestionService *services.SuggestionService,
	progressService *services.ProgressService,
	llmService *services.LLMService,
) *Handler {
	return &Handler{
		RunService:        runService,
		Sequencer:         sequencer,
		CharacterService:  characterService,
		SceneService:      sceneService,
		SuggestionService: suggestionService,
		ProgressService:   progressService,
		LLMService:        llmService,
		resp:              NewResponseHelper(),
	}
}

// ===============================
// 运行生命周期
// ===============================

// SubmitRun 提交剧本，开始一次新的制作运行
func (h *Handler) SubmitRun(c *gin.Context) {
	var req services.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "无效的提交参数: "+err.Error())
		return
	}

	if err := h.Sequencer.StartRun(asyncContext(c), req); err != nil {
		h.resp.Conflict(c, ErrorRunInvalidState, err.Error())
		return
	}

	h.resp.Accepted(c, gin.H{"run_id": h.RunService.Context.ID()}, "制作流水线已启动")
}

// GetCurrentRun 返回当前运行的完整快照
func (h *Handler) GetCurrentRun(c *gin.Context) {
	h.resp.Success(c, h.RunService.Context.Snapshot())
}

// ListRuns 列出已持久化的历史运行
func (h *Handler) ListRuns(c *gin.Context) {
	snapshots, err := h.RunService.ListRuns()
	if err != nil {
		h.resp.Error(c, http.StatusInternalServerError, ErrorRunListFailed, err.Error())
		return
	}
	h.resp.Success(c, snapshots)
}

// ResetRun 显式重置，丢弃文档和日志回到SETUP
func (h *Handler) ResetRun(c *gin.Context) {
	h.RunService.Context.Reset()
	h.resp.Success(c, nil, "已重置")
}

// FinalizeRun 开始最终渲染
func (h *Handler) FinalizeRun(c *gin.Context) {
	if err := h.Sequencer.StartFinalize(asyncContext(c)); err != nil {
		h.resp.Conflict(c, ErrorRunInvalidState, err.Error())
		return
	}
	h.resp.Accepted(c, nil, "最终渲染已启动")
}

// GetRenderProgress 轮询当前运行的渲染进度
func (h *Handler) GetRenderProgress(c *gin.Context) {
	runID := h.RunService.Context.ID()
	if runID == "" {
		h.resp.NotFound(c, ErrorRunNotStarted, "当前没有进行中的运行")
		return
	}

	tracker, ok := h.ProgressService.GetTracker(runID)
	if !ok {
		h.resp.NotFound(c, ErrorRenderNotRunning, "渲染尚未开始")
		return
	}

	h.resp.Success(c, tracker.Snapshot())
}

// ===============================
// 角色再生成
// ===============================

// RegenerateCharacterImage 重新生成单个角色的形象图
func (h *Handler) RegenerateCharacterImage(c *gin.Context) {
	if err := h.CharacterService.RegenerateImage(asyncContext(c), c.Param("id")); err != nil {
		h.characterError(c, err)
		return
	}
	h.resp.Accepted(c, nil, "形象重新生成已启动")
}

// EditCharacterImage 按指令修改角色图片
func (h *Handler) EditCharacterImage(c *gin.Context) {
	var req services.EditImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "缺少编辑指令")
		return
	}

	if err := h.CharacterService.EditImage(asyncContext(c), c.Param("id"), req.Instruction); err != nil {
		h.characterError(c, err)
		return
	}
	h.resp.Accepted(c, nil, "图片编辑已启动")
}

// RegenerateVoiceLine 重新生成角色台词
func (h *Handler) RegenerateVoiceLine(c *gin.Context) {
	if err := h.CharacterService.RegenerateVoiceLine(asyncContext(c), c.Param("id")); err != nil {
		if errors.Is(err, services.ErrCharacterNotFound) {
			h.resp.NotFound(c, ErrorCharacterNotFound, err.Error())
			return
		}
		h.resp.Conflict(c, ErrorNoVoiceActor, err.Error())
		return
	}
	h.resp.Accepted(c, nil, "台词重新生成已启动")
}

// UpdateVoiceLine 手工编辑角色台词
func (h *Handler) UpdateVoiceLine(c *gin.Context) {
	var req services.UpdateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "缺少台词内容")
		return
	}

	if err := h.CharacterService.UpdateVoiceLine(c.Param("id"), req.Text); err != nil {
		h.resp.NotFound(c, ErrorCharacterNotFound, err.Error())
		return
	}
	h.resp.Success(c, nil, "台词已更新")
}

func (h *Handler) characterError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrCharacterNotFound):
		h.resp.NotFound(c, ErrorCharacterNotFound, err.Error())
	case errors.Is(err, services.ErrNoImageToEdit):
		h.resp.Conflict(c, ErrorNoImageToEdit, err.Error())
	default:
		h.resp.InternalError(c, err.Error())
	}
}

// ===============================
// 场景再生成与编辑
// ===============================

// RegenerateStoryboard 重新生成单个场景的分镜
func (h *Handler) RegenerateStoryboard(c *gin.Context) {
	if err := h.SceneService.RegenerateStoryboard(asyncContext(c), c.Param("id")); err != nil {
		h.resp.NotFound(c, ErrorSceneNotFound, err.Error())
		return
	}
	h.resp.Accepted(c, nil, "分镜重新生成已启动")
}

// EnhanceSceneDescription 润色场景描述
func (h *Handler) EnhanceSceneDescription(c *gin.Context) {
	if err := h.SceneService.EnhanceDescription(asyncContext(c), c.Param("id")); err != nil {
		h.resp.NotFound(c, ErrorSceneNotFound, err.Error())
		return
	}
	h.resp.Accepted(c, nil, "描述润色已启动")
}

// UpdateSceneDescription 手工编辑场景描述
func (h *Handler) UpdateSceneDescription(c *gin.Context) {
	var req services.UpdateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "缺少描述内容")
		return
	}

	if err := h.SceneService.UpdateDescription(c.Param("id"), req.Text); err != nil {
		h.resp.NotFound(c, ErrorSceneNotFound, err.Error())
		return
	}
	h.resp.Success(c, nil, "描述已更新")
}

// ===============================
// 场景建议
// ===============================

// AcceptSuggestion 接受一条场景建议
func (h *Handler) AcceptSuggestion(c *gin.Context) {
	sceneID, err := h.SuggestionService.Accept(asyncContext(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrSuggestionNotFound) {
			h.resp.NotFound(c, ErrorSuggestionNotFound, err.Error())
			return
		}
		h.resp.Conflict(c, ErrorRunInvalidState, err.Error())
		return
	}
	h.resp.Success(c, gin.H{"scene_id": sceneID}, "建议已接受，新场景已插入")
}

// RejectSuggestion 拒绝一条场景建议
func (h *Handler) RejectSuggestion(c *gin.Context) {
	if err := h.SuggestionService.Reject(c.Param("id")); err != nil {
		h.resp.NotFound(c, ErrorSuggestionNotFound, err.Error())
		return
	}
	h.resp.Success(c, nil, "建议已拒绝")
}

// ===============================
// 设置
// ===============================

// UpdateLLMSettings 切换LLM提供者配置
func (h *Handler) UpdateLLMSettings(c *gin.Context) {
	var req struct {
		Provider string            `json:"provider" binding:"required"`
		Config   map[string]string `json:"config" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, "无效的LLM配置: "+err.Error())
		return
	}

	if err := h.LLMService.UpdateProvider(req.Provider, req.Config); err != nil {
		h.resp.Error(c, http.StatusBadRequest, ErrorLLMConfigInvalid, err.Error())
		return
	}
	h.resp.Success(c, gin.H{"provider": h.LLMService.GetProviderName()}, "LLM配置已更新")
}

// GetStatus 健康检查与整体状态
func (h *Handler) GetStatus(c *gin.Context) {
	snapshot := h.RunService.Context.Snapshot()
	h.resp.Success(c, gin.H{
		"run_status":   snapshot.Status,
		"llm_ready":    h.LLMService.IsReady(),
		"llm_provider": h.LLMService.GetProviderName(),
	})
}
