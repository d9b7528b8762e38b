// internal/services/scene_service.go
package services

import (
	"context"
	"fmt"

	"github.com/Corphon/MovieForgeMCP/internal/models"
)

// SceneService 审阅阶段的单场景再生成控制器
// 与CharacterService遵循同一套加载/失败/恢复协议
type SceneService struct {
	Studio AssetStudio
	Runs   *RunService
}

// NewSceneService 创建场景控制器
func NewSceneService(studio AssetStudio, runs *RunService) *SceneService {
	return &SceneService{Studio: studio, Runs: runs}
}

// RegenerateStoryboard 重新生成单个场景的分镜视频
func (s *SceneService) RegenerateStoryboard(ctx context.Context, sceneID string) error {
	rc := s.Runs.Context

	scene, ok := rc.GetScene(sceneID)
	if !ok {
		return ErrSceneNotFound
	}

	production := rc.Production()
	epoch := rc.Epoch()
	previous := scene.Storyboard

	rc.UpdateScene(epoch, sceneID, func(sc *models.Scene) {
		sc.Storyboard = models.PendingAsset()
	})

	go func() {
		video, err := s.Studio.GenerateStoryboardVideo(ctx, scene.Description, production.StylePrompt, production.Quality)
		if err != nil {
			rc.UpdateScene(epoch, sceneID, func(sc *models.Scene) {
				sc.Storyboard = previous
			})
			rc.AppendLog(fmt.Sprintf("⚠️ 场景 %d 的分镜重新生成失败: %v", scene.SceneNumber, err))
			return
		}

		if rc.UpdateScene(epoch, sceneID, func(sc *models.Scene) {
			sc.Storyboard = models.ReadyAsset(video)
		}) {
			rc.AppendLog(fmt.Sprintf("✅ 场景 %d 的分镜已重新生成", scene.SceneNumber))
		}
	}()

	return nil
}

// EnhanceDescription 调用润色服务改写场景描述
// 失败时描述保持原值，仅记日志
func (s *SceneService) EnhanceDescription(ctx context.Context, sceneID string) error {
	rc := s.Runs.Context

	scene, ok := rc.GetScene(sceneID)
	if !ok {
		return ErrSceneNotFound
	}

	epoch := rc.Epoch()

	go func() {
		enhanced, err := s.Studio.EnhanceSceneDescription(ctx, scene.Description)
		if err != nil {
			rc.AppendLog(fmt.Sprintf("⚠️ 场景 %d 的描述润色失败: %v", scene.SceneNumber, err))
			return
		}

		if rc.UpdateScene(epoch, sceneID, func(sc *models.Scene) {
			sc.Description = enhanced
		}) {
			rc.AppendLog(fmt.Sprintf("✅ 场景 %d 的描述已润色", scene.SceneNumber))
		}
	}()

	return nil
}

// UpdateDescription 用户手工编辑场景描述，同步生效
func (s *SceneService) UpdateDescription(sceneID, description string) error {
	rc := s.Runs.Context

	if rc.UpdateScene(rc.Epoch(), sceneID, func(sc *models.Scene) {
		sc.Description = description
	}) {
		return nil
	}
	return ErrSceneNotFound
}
