package services

import (
	"context"
	"strings"
	"testing"

	"github.com/Corphon/MovieForgeMCP/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSceneService(studio AssetStudio) (*SceneService, *RunContext) {
	runs := NewRunService(nil)
	return NewSceneService(studio, runs), runs.Context
}

func seedSceneRun(t *testing.T, rc *RunContext) models.Scene {
	t.Helper()
	require.NoError(t, rc.Begin("剧本", ProductionSettings{Quality: "720p"}))
	rc.SetAnalysis(rc.Epoch(), &models.AnalysisResult{
		Title: "测试影片",
		Characters: []models.AnalyzedCharacter{
			{Name: "林雪", Description: "天文学家"},
		},
		Scenes: []models.AnalyzedScene{
			{Number: 1, Description: "天文台外景"},
			{Number: 2, Description: "观测室内景"},
		},
	})
	return rc.Snapshot().Production.Scenes[0]
}

func TestRegenerateStoryboardSuccess(t *testing.T) {
	studio := &stubStudio{
		storyboardVideoFn: func(description, stylePrompt, quality string) (string, error) {
			return "stub://new-storyboard", nil
		},
	}
	svc, rc := newTestSceneService(studio)
	scene := seedSceneRun(t, rc)

	require.NoError(t, svc.RegenerateStoryboard(context.Background(), scene.ID))

	eventually(t, func() bool {
		got, _ := rc.GetScene(scene.ID)
		return got.Storyboard.IsReady() && got.Storyboard.Value == "stub://new-storyboard"
	}, "分镜应最终就绪")
}

func TestRegenerateStoryboardFailureRestores(t *testing.T) {
	studio := &stubStudio{
		storyboardVideoFn: func(description, stylePrompt, quality string) (string, error) {
			return "", errStub
		},
	}
	svc, rc := newTestSceneService(studio)
	scene := seedSceneRun(t, rc)

	rc.UpdateScene(rc.Epoch(), scene.ID, func(sc *models.Scene) {
		sc.Storyboard = models.ReadyAsset("stub://original")
	})

	require.NoError(t, svc.RegenerateStoryboard(context.Background(), scene.ID))

	eventually(t, func() bool {
		got, _ := rc.GetScene(scene.ID)
		return got.Storyboard.IsReady() && got.Storyboard.Value == "stub://original"
	}, "失败后应恢复原分镜")
}

func TestRegenerateStoryboardUnknownScene(t *testing.T) {
	svc, rc := newTestSceneService(&stubStudio{})
	seedSceneRun(t, rc)

	assert.ErrorIs(t, svc.RegenerateStoryboard(context.Background(), "ghost"), ErrSceneNotFound)
}

func TestEnhanceDescription(t *testing.T) {
	studio := &stubStudio{
		enhanceDescriptionFn: func(description string) (string, error) {
			return description + "，镜头缓缓推近", nil
		},
	}
	svc, rc := newTestSceneService(studio)
	scene := seedSceneRun(t, rc)

	require.NoError(t, svc.EnhanceDescription(context.Background(), scene.ID))

	eventually(t, func() bool {
		got, _ := rc.GetScene(scene.ID)
		return got.Description == "天文台外景，镜头缓缓推近"
	}, "描述应被润色")
}

func TestEnhanceDescriptionFailureKeepsOriginal(t *testing.T) {
	studio := &stubStudio{
		enhanceDescriptionFn: func(description string) (string, error) {
			return "", errStub
		},
	}
	svc, rc := newTestSceneService(studio)
	scene := seedSceneRun(t, rc)

	require.NoError(t, svc.EnhanceDescription(context.Background(), scene.ID))

	eventually(t, func() bool {
		for _, line := range rc.Snapshot().Log {
			if strings.Contains(line, "润色失败") {
				return true
			}
		}
		return false
	}, "失败应记录日志")

	got, _ := rc.GetScene(scene.ID)
	assert.Equal(t, "天文台外景", got.Description)
}

func TestUpdateDescriptionSync(t *testing.T) {
	svc, rc := newTestSceneService(&stubStudio{})
	scene := seedSceneRun(t, rc)

	require.NoError(t, svc.UpdateDescription(scene.ID, "手工改写的描述"))

	got, _ := rc.GetScene(scene.ID)
	assert.Equal(t, "手工改写的描述", got.Description)

	assert.ErrorIs(t, svc.UpdateDescription("ghost", "x"), ErrSceneNotFound)
}
