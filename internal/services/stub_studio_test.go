package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/Corphon/MovieForgeMCP/internal/models"
)

// stubStudio 是AssetStudio的可编程测试桩
// 未设置的操作返回确定性的默认值，calls按调用顺序记录操作名
type stubStudio struct {
	mu    sync.Mutex
	calls []string

	analyzeScriptFn      func(script string) (*models.AnalysisResult, error)
	analyzeStyleFn       func(imageData, mime string) (string, error)
	suggestionsFn        func(logline string, scenes []models.Scene) ([]models.SceneSuggestion, error)
	matchVoiceActorsFn   func(characters []models.AnalyzedCharacter) (models.VoiceCasting, error)
	voiceLineFn          func(name, description, vocalStyle string) (string, error)
	characterImageFn     func(description, stylePrompt, quality string) (string, error)
	storyboardVideoFn    func(description, stylePrompt, quality string) (string, error)
	editImageFn          func(image, instruction string) (string, error)
	enhanceDescriptionFn func(description string) (string, error)
	renderFinalFn        func(production *models.Production, onProgress func(int, string)) (string, error)
}

func (s *stubStudio) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
}

func (s *stubStudio) callNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubStudio) AnalyzeScript(ctx context.Context, script string) (*models.AnalysisResult, error) {
	s.record("AnalyzeScript")
	if s.analyzeScriptFn != nil {
		return s.analyzeScriptFn(script)
	}
	return &models.AnalysisResult{
		Title:   "测试影片",
		Logline: "一句话梗概。",
		Characters: []models.AnalyzedCharacter{
			{Name: "林雪", Description: "天文学家"},
			{Name: "陈阳", Description: "助手"},
		},
		Scenes: []models.AnalyzedScene{
			{Number: 1, Description: "天文台外景"},
			{Number: 2, Description: "观测室内景"},
		},
	}, nil
}

func (s *stubStudio) AnalyzeImageStyle(ctx context.Context, imageData, mime string) (string, error) {
	s.record("AnalyzeImageStyle")
	if s.analyzeStyleFn != nil {
		return s.analyzeStyleFn(imageData, mime)
	}
	return "stub style", nil
}

func (s *stubStudio) GenerateSceneSuggestions(ctx context.Context, logline string, scenes []models.Scene) ([]models.SceneSuggestion, error) {
	s.record("GenerateSceneSuggestions")
	if s.suggestionsFn != nil {
		return s.suggestionsFn(logline, scenes)
	}
	return nil, nil
}

func (s *stubStudio) MatchVoiceActors(ctx context.Context, characters []models.AnalyzedCharacter) (models.VoiceCasting, error) {
	s.record("MatchVoiceActors")
	if s.matchVoiceActorsFn != nil {
		return s.matchVoiceActorsFn(characters)
	}
	casting := models.VoiceCasting{}
	for _, c := range characters {
		casting[c.Name] = models.VoiceActor{ActorName: "演员" + c.Name, VocalStyle: "平静"}
	}
	return casting, nil
}

func (s *stubStudio) GenerateCharacterVoiceLine(ctx context.Context, name, description, vocalStyle string) (string, error) {
	s.record("GenerateCharacterVoiceLine")
	if s.voiceLineFn != nil {
		return s.voiceLineFn(name, description, vocalStyle)
	}
	return name + "的台词", nil
}

func (s *stubStudio) GenerateCharacterImage(ctx context.Context, description, stylePrompt, quality string) (string, error) {
	s.record("GenerateCharacterImage")
	if s.characterImageFn != nil {
		return s.characterImageFn(description, stylePrompt, quality)
	}
	return "stub://image/" + description, nil
}

func (s *stubStudio) GenerateStoryboardVideo(ctx context.Context, description, stylePrompt, quality string) (string, error) {
	s.record("GenerateStoryboardVideo")
	if s.storyboardVideoFn != nil {
		return s.storyboardVideoFn(description, stylePrompt, quality)
	}
	return "stub://video/" + description, nil
}

func (s *stubStudio) EditImage(ctx context.Context, image, instruction string) (string, error) {
	s.record("EditImage")
	if s.editImageFn != nil {
		return s.editImageFn(image, instruction)
	}
	return image + "?edited", nil
}

func (s *stubStudio) EnhanceSceneDescription(ctx context.Context, description string) (string, error) {
	s.record("EnhanceSceneDescription")
	if s.enhanceDescriptionFn != nil {
		return s.enhanceDescriptionFn(description)
	}
	return description + "（润色后）", nil
}

func (s *stubStudio) RenderFinalVideo(ctx context.Context, production *models.Production, onProgress func(progress int, message string)) (string, error) {
	s.record("RenderFinalVideo")
	if s.renderFinalFn != nil {
		return s.renderFinalFn(production, onProgress)
	}
	if onProgress != nil {
		onProgress(50, "渲染中")
		onProgress(100, "完成")
	}
	return "stub://final", nil
}

var _ AssetStudio = (*stubStudio)(nil)

// 测试公共出错值
var errStub = fmt.Errorf("外部服务不可用")
