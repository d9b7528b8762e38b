package services

import (
	"testing"

	"github.com/Corphon/MovieForgeMCP/internal/models"
	"github.com/Corphon/MovieForgeMCP/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunContext(t *testing.T) *RunContext {
	t.Helper()
	rc := NewRunContext()
	require.NoError(t, rc.Begin("INT. 房间 - 夜", ProductionSettings{Quality: "720p"}))
	rc.SetAnalysis(rc.Epoch(), &models.AnalysisResult{
		Title:   "测试影片",
		Logline: "梗概",
		Characters: []models.AnalyzedCharacter{
			{Name: "林雪", Description: "天文学家"},
			{Name: "陈阳", Description: "助手"},
		},
		Scenes: []models.AnalyzedScene{
			{Number: 1, Description: "第一场"},
			{Number: 2, Description: "第二场"},
		},
	})
	return rc
}

func TestRunContextStatusMachine(t *testing.T) {
	rc := NewRunContext()
	assert.Equal(t, models.RunStatusSetup, rc.Status())

	// SETUP→RUNNING
	require.NoError(t, rc.Begin("剧本", ProductionSettings{}))
	assert.Equal(t, models.RunStatusRunning, rc.Status())
	assert.NotEmpty(t, rc.ID())

	// 运行中不能重复提交
	assert.Error(t, rc.Begin("另一个剧本", ProductionSettings{}))

	// RUNNING→REVIEW
	rc.EnterReview(rc.Epoch())
	assert.Equal(t, models.RunStatusReview, rc.Status())

	// REVIEW→RUNNING（渲染）→COMPLETE
	require.NoError(t, rc.BeginRender())
	assert.Equal(t, models.RunStatusRunning, rc.Status())
	rc.CompleteRun(rc.Epoch(), "ref://final")
	assert.Equal(t, models.RunStatusComplete, rc.Status())

	// COMPLETE下不能再渲染
	assert.Error(t, rc.BeginRender())

	// 重置回SETUP后可以重新提交
	rc.Reset()
	assert.Equal(t, models.RunStatusSetup, rc.Status())
	assert.Empty(t, rc.ID())
	require.NoError(t, rc.Begin("新剧本", ProductionSettings{}))
}

func TestRunContextFailRecordsStage(t *testing.T) {
	rc := NewRunContext()
	require.NoError(t, rc.Begin("剧本", ProductionSettings{}))

	rc.Fail(rc.Epoch(), StageScriptAnalysis, errStub)

	snapshot := rc.Snapshot()
	assert.Equal(t, models.RunStatusError, snapshot.Status)
	assert.Contains(t, snapshot.ErrorMsg, StageScriptAnalysis)
	assert.Contains(t, snapshot.ErrorMsg, errStub.Error())
}

func TestRunContextResetBumpsEpoch(t *testing.T) {
	rc := newTestRunContext(t)
	staleEpoch := rc.Epoch()
	characterID := rc.Snapshot().Production.Characters[0].ID

	rc.Reset()

	// 旧epoch下的写入被丢弃
	applied := rc.UpdateCharacter(staleEpoch, characterID, func(ch *models.Character) {
		ch.VoiceLine = "迟到的写入"
	})
	assert.False(t, applied)
	assert.Greater(t, rc.Epoch(), staleEpoch)
	assert.Nil(t, rc.Production())
}

func TestUpdateCharacterKeyedByID(t *testing.T) {
	rc := newTestRunContext(t)
	epoch := rc.Epoch()
	snapshot := rc.Snapshot()
	target := snapshot.Production.Characters[1]

	applied := rc.UpdateCharacter(epoch, target.ID, func(ch *models.Character) {
		ch.VoiceLine = "新台词"
	})
	require.True(t, applied)

	// 只有目标角色被修改
	got := rc.Snapshot().Production
	assert.Equal(t, "新台词", got.Characters[1].VoiceLine)
	assert.Empty(t, got.Characters[0].VoiceLine)

	// 不存在的ID是no-op
	assert.False(t, rc.UpdateCharacter(epoch, "ghost", func(ch *models.Character) {
		ch.VoiceLine = "不应出现"
	}))
}

func TestTakeSuggestionConsumes(t *testing.T) {
	rc := newTestRunContext(t)
	rc.SetSuggestions(rc.Epoch(), []models.SceneSuggestion{
		{ID: "s1", Title: "建议一", SuggestedPosition: 1},
		{ID: "s2", Title: "建议二", SuggestedPosition: 2},
	})

	taken, ok := rc.TakeSuggestion("s1")
	require.True(t, ok)
	assert.Equal(t, "建议一", taken.Title)

	// 已消费，再取失败
	_, ok = rc.TakeSuggestion("s1")
	assert.False(t, ok)

	remaining := rc.Snapshot().Suggestions
	require.Len(t, remaining, 1)
	assert.Equal(t, "s2", remaining[0].ID)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	rc := newTestRunContext(t)

	snapshot := rc.Snapshot()
	snapshot.Production.Characters[0].Name = "被篡改"
	snapshot.Production.Scenes[0].Description = "被篡改"

	fresh := rc.Snapshot()
	assert.Equal(t, "林雪", fresh.Production.Characters[0].Name)
	assert.Equal(t, "第一场", fresh.Production.Scenes[0].Description)
}

func TestRunContextSubscribe(t *testing.T) {
	rc := NewRunContext()
	ch := rc.Subscribe()
	defer rc.Unsubscribe(ch)

	rc.AppendLog("测试日志")

	event := <-ch
	assert.Equal(t, "log", event.Type)
	assert.Equal(t, "测试日志", event.Line)
}

func TestRunServicePersistAndList(t *testing.T) {
	fileStorage, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	svc := NewRunService(fileStorage)
	require.NoError(t, svc.Context.Begin("剧本", ProductionSettings{}))
	runID := svc.Context.ID()

	require.NoError(t, svc.Persist())

	snapshots, err := svc.ListRuns()
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, runID, snapshots[0].ID)
	assert.Equal(t, models.RunStatusRunning, snapshots[0].Status)
}

func TestRunServicePersistWithoutRun(t *testing.T) {
	svc := NewRunService(nil)
	// 没有存储、没有运行时都是no-op
	assert.NoError(t, svc.Persist())

	snapshots, err := svc.ListRuns()
	assert.NoError(t, err)
	assert.Empty(t, snapshots)
}
