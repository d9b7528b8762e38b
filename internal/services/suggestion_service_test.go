package services

import (
	"context"
	"testing"

	"github.com/Corphon/MovieForgeMCP/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSuggestionService(studio AssetStudio) (*SuggestionService, *RunContext) {
	runs := NewRunService(nil)
	return NewSuggestionService(studio, runs), runs.Context
}

// 4个已编号场景加一组待定建议
func seedSuggestionRun(t *testing.T, rc *RunContext, suggestions ...models.SceneSuggestion) {
	t.Helper()
	require.NoError(t, rc.Begin("剧本", ProductionSettings{Quality: "720p"}))
	rc.SetAnalysis(rc.Epoch(), &models.AnalysisResult{
		Title: "测试影片",
		Characters: []models.AnalyzedCharacter{
			{Name: "林雪", Description: "天文学家"},
		},
		Scenes: []models.AnalyzedScene{
			{Number: 1, Description: "场景一"},
			{Number: 2, Description: "场景二"},
			{Number: 3, Description: "场景三"},
			{Number: 4, Description: "场景四"},
		},
	})
	rc.SetSuggestions(rc.Epoch(), suggestions)
}

func TestAcceptInsertsAtSuggestedPosition(t *testing.T) {
	svc, rc := newTestSuggestionService(&stubStudio{})
	seedSuggestionRun(t, rc, models.SceneSuggestion{
		ID:                "sug1",
		Title:             "转折点",
		SceneDescription:  "插入的新场景",
		SuggestedPosition: 3,
	})

	sceneID, err := svc.Accept(context.Background(), "sug1")
	require.NoError(t, err)
	require.NotEmpty(t, sceneID)

	// 插入与重编号同步完成：新场景编号3，原场景三推后为4，总数5
	p := rc.Snapshot().Production
	require.Len(t, p.Scenes, 5)
	assert.Equal(t, sceneID, p.Scenes[2].ID)
	assert.Equal(t, 3, p.Scenes[2].SceneNumber)
	assert.Equal(t, "插入的新场景", p.Scenes[2].Description)
	assert.Equal(t, "场景三", p.Scenes[3].Description)
	assert.Equal(t, 4, p.Scenes[3].SceneNumber)
	assert.Equal(t, 5, p.Scenes[4].SceneNumber)

	// 建议已从待定集合移除
	assert.Empty(t, rc.Snapshot().Suggestions)

	// 分镜异步补全
	eventually(t, func() bool {
		got, _ := rc.GetScene(sceneID)
		return got.Storyboard.IsReady()
	}, "新场景的分镜应最终就绪")
}

func TestAcceptClampsPosition(t *testing.T) {
	t.Run("位置过大收敛到末尾", func(t *testing.T) {
		svc, rc := newTestSuggestionService(&stubStudio{})
		seedSuggestionRun(t, rc, models.SceneSuggestion{
			ID: "sug1", SceneDescription: "结尾场景", SuggestedPosition: 99,
		})

		sceneID, err := svc.Accept(context.Background(), "sug1")
		require.NoError(t, err)

		p := rc.Snapshot().Production
		require.Len(t, p.Scenes, 5)
		assert.Equal(t, sceneID, p.Scenes[4].ID)
		assert.Equal(t, 5, p.Scenes[4].SceneNumber)
	})

	t.Run("位置过小收敛到开头", func(t *testing.T) {
		svc, rc := newTestSuggestionService(&stubStudio{})
		seedSuggestionRun(t, rc, models.SceneSuggestion{
			ID: "sug1", SceneDescription: "开场场景", SuggestedPosition: -2,
		})

		sceneID, err := svc.Accept(context.Background(), "sug1")
		require.NoError(t, err)

		p := rc.Snapshot().Production
		require.Len(t, p.Scenes, 5)
		assert.Equal(t, sceneID, p.Scenes[0].ID)
		assert.Equal(t, 1, p.Scenes[0].SceneNumber)
	})
}

func TestAcceptStoryboardFailureKeepsScene(t *testing.T) {
	studio := &stubStudio{
		storyboardVideoFn: func(description, stylePrompt, quality string) (string, error) {
			return "", errStub
		},
	}
	svc, rc := newTestSuggestionService(studio)
	seedSuggestionRun(t, rc, models.SceneSuggestion{
		ID: "sug1", SceneDescription: "新场景", SuggestedPosition: 2,
	})

	sceneID, err := svc.Accept(context.Background(), "sug1")
	require.NoError(t, err)

	// 场景保留在序列中，分镜标记为失败
	eventually(t, func() bool {
		got, ok := rc.GetScene(sceneID)
		return ok && got.Storyboard.State == models.AssetFailed
	}, "分镜生成失败应留下失败标记")

	assert.Len(t, rc.Snapshot().Production.Scenes, 5)
	// 建议已被消费，不会回到待定集合
	assert.Empty(t, rc.Snapshot().Suggestions)
}

func TestAcceptUnknownSuggestion(t *testing.T) {
	svc, rc := newTestSuggestionService(&stubStudio{})
	seedSuggestionRun(t, rc)

	_, err := svc.Accept(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrSuggestionNotFound)
	assert.Len(t, rc.Snapshot().Production.Scenes, 4)
}

func TestRejectRemovesOnlySuggestion(t *testing.T) {
	svc, rc := newTestSuggestionService(&stubStudio{})
	seedSuggestionRun(t, rc,
		models.SceneSuggestion{ID: "sug1", SuggestedPosition: 1},
		models.SceneSuggestion{ID: "sug2", SuggestedPosition: 2},
	)

	require.NoError(t, svc.Reject("sug1"))

	snapshot := rc.Snapshot()
	// 场景序列不变
	assert.Len(t, snapshot.Production.Scenes, 4)
	require.Len(t, snapshot.Suggestions, 1)
	assert.Equal(t, "sug2", snapshot.Suggestions[0].ID)

	assert.ErrorIs(t, svc.Reject("sug1"), ErrSuggestionNotFound)
}
