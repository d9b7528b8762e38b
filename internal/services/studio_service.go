// internal/services/studio_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Corphon/MovieForgeMCP/internal/models"
	"github.com/Corphon/MovieForgeMCP/internal/utils"
	"github.com/google/uuid"
)

// MediaGenerator 定义图片/视频生成后端的契约
// 生产实现是internal/media的Vertex REST客户端
type MediaGenerator interface {
	GenerateImage(ctx context.Context, prompt, quality string) (string, error)
	EditImage(ctx context.Context, imageRef, instruction string) (string, error)
	GenerateVideo(ctx context.Context, prompt, quality string, onProgress func(progress int, message string)) (string, error)
	DescribeImageStyle(ctx context.Context, imageData, mime string) (string, error)
}

// StudioService 把AssetStudio的十个操作落到具体后端：
// 文本类操作走LLM结构化补全，图像/视频类操作走媒体生成客户端
type StudioService struct {
	LLM   *LLMService
	Media MediaGenerator
}

// NewStudioService 创建生成服务门面
func NewStudioService(llmService *LLMService, media MediaGenerator) *StudioService {
	return &StudioService{LLM: llmService, Media: media}
}

// AnalyzeScript 分析剧本并提取结构化结果
// 剧本无效或识别不出角色/场景时返回错误，由调用方决定致命性
func (s *StudioService) AnalyzeScript(ctx context.Context, script string) (*models.AnalysisResult, error) {
	prompt := fmt.Sprintf(`Analyze the following movie script and extract its structure:

%s

Extract:
1. A short evocative title
2. A one-sentence logline
3. Every named character with a one-paragraph visual description
4. An ordered list of scenes, each with a number and a vivid one-paragraph description suitable for storyboarding

If the text is not a usable script (empty, gibberish, or policy-violating), set "invalid" to true and explain in "reason".`, script)

	systemPrompt := `You are a film development assistant. Output schema:
{"title": string, "logline": string, "characters": [{"name": string, "description": string}], "scenes": [{"number": int, "description": string}], "invalid": bool, "reason": string}`

	var result models.AnalysisResult
	if err := s.LLM.CreateStructuredCompletion(ctx, prompt, systemPrompt, &result); err != nil {
		return nil, fmt.Errorf("剧本分析失败: %w", err)
	}
	if result.Invalid {
		return &result, nil
	}
	if len(result.Characters) == 0 || len(result.Scenes) == 0 {
		return nil, fmt.Errorf("分析结果中没有角色或场景")
	}
	return &result, nil
}

// AnalyzeImageStyle 从参考图提取风格描述
func (s *StudioService) AnalyzeImageStyle(ctx context.Context, imageData, mime string) (string, error) {
	if s.Media == nil {
		return "", fmt.Errorf("媒体生成服务未配置")
	}
	style, err := s.Media.DescribeImageStyle(ctx, imageData, mime)
	if err != nil {
		return "", fmt.Errorf("风格分析失败: %w", err)
	}
	return style, nil
}

// GenerateSceneSuggestions 基于梗概和现有场景给出0-2条建议
// 按契约内部兜底：任何失败都返回空列表而不是错误
func (s *StudioService) GenerateSceneSuggestions(ctx context.Context, logline string, scenes []models.Scene) ([]models.SceneSuggestion, error) {
	var sceneList strings.Builder
	for _, sc := range scenes {
		fmt.Fprintf(&sceneList, "%d. %s\n", sc.SceneNumber, sc.Description)
	}

	prompt := fmt.Sprintf(`A movie with this logline:

%s

currently has these scenes:

%s

Suggest 0 to 2 additional scenes that would strengthen the story. For each, give a short title, your reasoning, a storyboard-ready description, and the 1-based position where it should be inserted. Suggest nothing if the story is already complete.`, logline, sceneList.String())

	systemPrompt := `You are a story editor. Output schema:
{"suggestions": [{"title": string, "reasoning": string, "scene_description": string, "suggested_position": int}]}`

	var response struct {
		Suggestions []struct {
			Title             string `json:"title"`
			Reasoning         string `json:"reasoning"`
			SceneDescription  string `json:"scene_description"`
			SuggestedPosition int    `json:"suggested_position"`
		} `json:"suggestions"`
	}

	if err := s.LLM.CreateStructuredCompletion(ctx, prompt, systemPrompt, &response); err != nil {
		utils.GetLogger().Warnf("场景建议生成失败，按零条建议处理: %v", err)
		return nil, nil
	}

	suggestions := make([]models.SceneSuggestion, 0, len(response.Suggestions))
	for _, item := range response.Suggestions {
		if len(suggestions) >= 2 {
			break
		}
		suggestions = append(suggestions, models.SceneSuggestion{
			ID:                uuid.NewString(),
			Title:             item.Title,
			Reasoning:         item.Reasoning,
			SceneDescription:  item.SceneDescription,
			SuggestedPosition: item.SuggestedPosition,
		})
	}
	return suggestions, nil
}

// MatchVoiceActors 为角色匹配配音演员
// 按契约内部兜底：失败返回空映射
func (s *StudioService) MatchVoiceActors(ctx context.Context, characters []models.AnalyzedCharacter) (models.VoiceCasting, error) {
	var roster strings.Builder
	for _, c := range characters {
		fmt.Fprintf(&roster, "- %s: %s\n", c.Name, c.Description)
	}

	prompt := fmt.Sprintf(`Cast a voice actor for each of these movie characters:

%s

For every character pick a fictional actor name and a vocal style direction (e.g. "gravelly and slow", "bright and rapid"). Use the character names exactly as given.`, roster.String())

	systemPrompt := `You are a casting director. Output schema:
{"casting": [{"character_name": string, "actor_name": string, "vocal_style": string}]}`

	var response struct {
		Casting []struct {
			CharacterName string `json:"character_name"`
			ActorName     string `json:"actor_name"`
			VocalStyle    string `json:"vocal_style"`
		} `json:"casting"`
	}

	if err := s.LLM.CreateStructuredCompletion(ctx, prompt, systemPrompt, &response); err != nil {
		utils.GetLogger().Warnf("配音选角失败，按空映射处理: %v", err)
		return models.VoiceCasting{}, nil
	}

	casting := make(models.VoiceCasting, len(response.Casting))
	for _, entry := range response.Casting {
		casting[entry.CharacterName] = models.VoiceActor{
			ActorName:  entry.ActorName,
			VocalStyle: entry.VocalStyle,
		}
	}
	return casting, nil
}

// GenerateCharacterVoiceLine 为角色生成一句标志性台词
func (s *StudioService) GenerateCharacterVoiceLine(ctx context.Context, name, description, vocalStyle string) (string, error) {
	prompt := fmt.Sprintf(`Write one signature line of dialogue for this movie character:

Name: %s
Description: %s
Vocal style: %s

Return only the line itself, no quotation marks or attribution.`, name, description, vocalStyle)

	line, err := s.LLM.CompleteText(ctx, prompt, "You are a screenwriter known for memorable one-liners.")
	if err != nil {
		return "", fmt.Errorf("台词生成失败: %w", err)
	}
	return strings.Trim(line, `"“”`), nil
}

// GenerateCharacterImage 生成角色形象图
func (s *StudioService) GenerateCharacterImage(ctx context.Context, description, stylePrompt, quality string) (string, error) {
	if s.Media == nil {
		return "", fmt.Errorf("媒体生成服务未配置")
	}

	prompt := "Full-body character portrait. " + description
	if stylePrompt != "" {
		prompt += " Visual style: " + stylePrompt
	}
	return s.Media.GenerateImage(ctx, prompt, quality)
}

// GenerateStoryboardVideo 生成单个场景的分镜视频
func (s *StudioService) GenerateStoryboardVideo(ctx context.Context, description, stylePrompt, quality string) (string, error) {
	if s.Media == nil {
		return "", fmt.Errorf("媒体生成服务未配置")
	}

	prompt := "Cinematic storyboard shot. " + description
	if stylePrompt != "" {
		prompt += " Visual style: " + stylePrompt
	}
	return s.Media.GenerateVideo(ctx, prompt, quality, nil)
}

// EditImage 按指令修改已有图片
func (s *StudioService) EditImage(ctx context.Context, image, instruction string) (string, error) {
	if s.Media == nil {
		return "", fmt.Errorf("媒体生成服务未配置")
	}

	edited, err := s.Media.EditImage(ctx, image, instruction)
	if err != nil {
		return "", err
	}
	if edited == "" {
		return "", fmt.Errorf("编辑服务没有返回新图片")
	}
	return edited, nil
}

// EnhanceSceneDescription 润色场景描述
func (s *StudioService) EnhanceSceneDescription(ctx context.Context, description string) (string, error) {
	prompt := fmt.Sprintf(`Rewrite this storyboard scene description to be more vivid and cinematic, keeping the same events and under 80 words:

%s`, description)

	enhanced, err := s.LLM.CompleteText(ctx, prompt, "You are a storyboard artist's writing assistant.")
	if err != nil {
		return "", fmt.Errorf("描述润色失败: %w", err)
	}
	return enhanced, nil
}

// RenderFinalVideo 渲染成片
// 把整个文档压缩成一条渲染提示词，轮询期间的进度透传给回调
func (s *StudioService) RenderFinalVideo(ctx context.Context, production *models.Production, onProgress func(progress int, message string)) (string, error) {
	if s.Media == nil {
		return "", fmt.Errorf("媒体生成服务未配置")
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Feature short film: %s. %s\n", production.Title, production.Logline)
	if production.StylePrompt != "" {
		fmt.Fprintf(&prompt, "Visual style: %s\n", production.StylePrompt)
	}
	if production.MusicStyle != "" {
		fmt.Fprintf(&prompt, "Music style: %s\n", production.MusicStyle)
	}
	for _, scene := range production.Scenes {
		fmt.Fprintf(&prompt, "Scene %d: %s\n", scene.SceneNumber, scene.Description)
	}

	return s.Media.GenerateVideo(ctx, prompt.String(), production.Quality, onProgress)
}
