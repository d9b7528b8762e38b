// internal/services/suggestion_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Corphon/MovieForgeMCP/internal/models"
	"github.com/google/uuid"
)

var ErrSuggestionNotFound = errors.New("场景建议不存在")

// SuggestionService 场景建议合并引擎
// 接受建议时：建议立即从待定集合移除（无论后续成败都已被消费），
// 新场景按建议位置插入（越界收敛），全列表同步重编号后才开始异步生成分镜，
// 编号变化对观察者立即可见，与分镜生成结果无关
type SuggestionService struct {
	Studio AssetStudio
	Runs   *RunService
}

// NewSuggestionService 创建建议合并引擎
func NewSuggestionService(studio AssetStudio, runs *RunService) *SuggestionService {
	return &SuggestionService{Studio: studio, Runs: runs}
}

// Accept 接受一条建议，返回新创建场景的ID
func (s *SuggestionService) Accept(ctx context.Context, suggestionID string) (string, error) {
	rc := s.Runs.Context

	// 1. 先消费建议
	suggestion, ok := rc.TakeSuggestion(suggestionID)
	if !ok {
		return "", ErrSuggestionNotFound
	}

	// 2. 构造带全新ID的场景，分镜处于生成中
	scene := models.Scene{
		ID:          uuid.NewString(),
		Description: suggestion.SceneDescription,
		Storyboard:  models.PendingAsset(),
	}

	// 3/4/5. 插入位置收敛到合法边界，拼接进序列并同步重编号
	epoch := rc.Epoch()
	if !rc.InsertScene(epoch, suggestion.SuggestedPosition-1, scene) {
		return "", fmt.Errorf("当前没有进行中的运行")
	}
	rc.AppendLog(fmt.Sprintf("🎬 已接受建议「%s」，新场景插入并重新编号", suggestion.Title))

	// 6. 异步补全分镜，结果按ID写回，重置后的迟到写入被丢弃
	production := rc.Production()
	go func() {
		video, err := s.Studio.GenerateStoryboardVideo(ctx, scene.Description, production.StylePrompt, production.Quality)
		if err != nil {
			rc.UpdateScene(epoch, scene.ID, func(sc *models.Scene) {
				sc.Storyboard = models.FailedAsset(err)
			})
			rc.AppendLog(fmt.Sprintf("⚠️ 新场景的分镜生成失败: %v", err))
			return
		}

		if rc.UpdateScene(epoch, scene.ID, func(sc *models.Scene) {
			sc.Storyboard = models.ReadyAsset(video)
		}) {
			rc.AppendLog("✅ 新场景的分镜已生成")
		}
	}()

	return scene.ID, nil
}

// Reject 拒绝一条建议：从待定集合移除，不改变任何其他状态
func (s *SuggestionService) Reject(suggestionID string) error {
	rc := s.Runs.Context

	if _, ok := rc.TakeSuggestion(suggestionID); !ok {
		return ErrSuggestionNotFound
	}
	rc.AppendLog("🗑️ 已拒绝一条场景建议")
	return nil
}
