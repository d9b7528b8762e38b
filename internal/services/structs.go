// internal/services/structs.go
package services

import (
	"context"

	"github.com/Corphon/MovieForgeMCP/internal/models"
)

// AssetStudio 定义流水线依赖的全部外部生成服务契约
// 每个操作都是一次窄输入/窄输出的异步调用，可能失败
// 排序器和各控制器只看到这个接口，测试用桩实现驱动
type AssetStudio interface {
	// AnalyzeScript 分析剧本，提取标题/梗概/角色/场景
	// 剧本被判定无效或无法识别角色场景时返回错误（对整个运行是致命的）
	AnalyzeScript(ctx context.Context, script string) (*models.AnalysisResult, error)

	// AnalyzeImageStyle 从参考图提取风格描述
	AnalyzeImageStyle(ctx context.Context, imageData, mime string) (string, error)

	// GenerateSceneSuggestions 基于梗概和现有场景给出0-2条新场景建议
	GenerateSceneSuggestions(ctx context.Context, logline string, scenes []models.Scene) ([]models.SceneSuggestion, error)

	// MatchVoiceActors 为角色匹配配音演员，按角色名精确对应
	MatchVoiceActors(ctx context.Context, characters []models.AnalyzedCharacter) (models.VoiceCasting, error)

	// GenerateCharacterVoiceLine 为单个角色生成一句台词
	GenerateCharacterVoiceLine(ctx context.Context, name, description, vocalStyle string) (string, error)

	// GenerateCharacterImage 生成角色形象图
	GenerateCharacterImage(ctx context.Context, description, stylePrompt, quality string) (string, error)

	// GenerateStoryboardVideo 生成单个场景的分镜视频
	GenerateStoryboardVideo(ctx context.Context, description, stylePrompt, quality string) (string, error)

	// EditImage 按指令修改已有图片，服务未返回新图时报错
	EditImage(ctx context.Context, image, instruction string) (string, error)

	// EnhanceSceneDescription 润色场景描述
	EnhanceSceneDescription(ctx context.Context, description string) (string, error)

	// RenderFinalVideo 渲染成片，期间零次或多次回调进度
	RenderFinalVideo(ctx context.Context, production *models.Production, onProgress func(progress int, message string)) (string, error)
}

// SubmitRequest 提交一次制作运行的请求
type SubmitRequest struct {
	Script   string             `json:"script" binding:"required"`
	Settings ProductionSettings `json:"settings"`
}

// EditImageRequest 图片编辑请求
type EditImageRequest struct {
	Instruction string `json:"instruction" binding:"required"`
}

// UpdateTextRequest 手工编辑文本字段的请求
type UpdateTextRequest struct {
	Text string `json:"text" binding:"required"`
}
