// internal/services/run_service.go
package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/Corphon/MovieForgeMCP/internal/models"
	"github.com/Corphon/MovieForgeMCP/internal/storage"
	"github.com/google/uuid"
)

// RunEvent 表示推送给订阅者的运行事件
type RunEvent struct {
	Type   string           `json:"type"` // log, status, progress
	Line   string           `json:"line,omitempty"`
	Status models.RunStatus `json:"status,omitempty"`
	// 渲染进度百分比，仅Type为progress时有效
	Progress int `json:"progress,omitempty"`
}

// RunContext 表示一次制作运行的完整上下文
// 文档、日志、状态不再是全局变量，所有控制器都通过同一个上下文引用操作
// epoch用于丢弃重置后迟到的异步写入：异步回调在启动时捕获epoch，
// 应用结果前与当前epoch比较，不一致则丢弃
type RunContext struct {
	mutex sync.RWMutex

	id          string
	status      models.RunStatus
	production  *models.Production
	suggestions []models.SceneSuggestion
	log         []string
	errorMsg    string
	epoch       uint64
	createdAt   time.Time
	lastUpdated time.Time

	subscribers map[chan RunEvent]bool
}

// NewRunContext 创建处于SETUP状态的空运行上下文
func NewRunContext() *RunContext {
	return &RunContext{
		status:      models.RunStatusSetup,
		subscribers: make(map[chan RunEvent]bool),
	}
}

// Epoch 返回当前代数，异步操作启动时应捕获该值
func (rc *RunContext) Epoch() uint64 {
	rc.mutex.RLock()
	defer rc.mutex.RUnlock()
	return rc.epoch
}

// Status 返回当前运行状态
func (rc *RunContext) Status() models.RunStatus {
	rc.mutex.RLock()
	defer rc.mutex.RUnlock()
	return rc.status
}

// ID 返回当前运行标识
func (rc *RunContext) ID() string {
	rc.mutex.RLock()
	defer rc.mutex.RUnlock()
	return rc.id
}

// Begin 开始一次新的运行: SETUP→RUNNING
// 创建空的Production文档，分配运行ID
func (rc *RunContext) Begin(script string, settings ProductionSettings) error {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if rc.status != models.RunStatusSetup {
		return fmt.Errorf("无法开始运行：当前状态为 %s", rc.status)
	}

	rc.id = uuid.NewString()
	rc.production = &models.Production{
		Script:     script,
		MusicStyle: settings.MusicStyle,
		Quality:    settings.Quality,
		FinalVideo: models.NewAsset(),
	}
	if settings.InspirationRef != nil {
		rc.production.InspirationRef = settings.InspirationRef
	}
	rc.suggestions = nil
	rc.log = nil
	rc.errorMsg = ""
	rc.createdAt = time.Now()
	rc.lastUpdated = rc.createdAt
	rc.setStatusLocked(models.RunStatusRunning)
	return nil
}

// EnterReview 排序阶段全部完成后进入Review: RUNNING→REVIEW
// 捕获epoch与当前不一致（运行已重置）时丢弃该状态切换
func (rc *RunContext) EnterReview(epoch uint64) {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if epoch != rc.epoch || rc.status != models.RunStatusRunning {
		return
	}
	rc.setStatusLocked(models.RunStatusReview)
}

// BeginRender 开始最终渲染: REVIEW→RUNNING（复用RUNNING表示渲染中）
func (rc *RunContext) BeginRender() error {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if rc.status != models.RunStatusReview {
		return fmt.Errorf("无法开始渲染：当前状态为 %s", rc.status)
	}
	rc.setStatusLocked(models.RunStatusRunning)
	return nil
}

// CompleteRun 渲染成功: RUNNING→COMPLETE
// epoch不一致时结果作废，运行保持重置后的状态
func (rc *RunContext) CompleteRun(epoch uint64, finalVideo string) {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if epoch != rc.epoch {
		return
	}
	if rc.production != nil {
		rc.production.FinalVideo = models.ReadyAsset(finalVideo)
	}
	rc.setStatusLocked(models.RunStatusComplete)
}

// Fail 致命阶段失败: →ERROR，记录阶段名和错误内容
// epoch不一致时说明失败属于已重置的运行，不污染当前运行
func (rc *RunContext) Fail(epoch uint64, stageName string, err error) {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if epoch != rc.epoch {
		return
	}
	rc.errorMsg = fmt.Sprintf("%s: %v", stageName, err)
	rc.appendLogLocked(fmt.Sprintf("❌ %s 失败: %v", stageName, err))
	rc.setStatusLocked(models.RunStatusError)
}

// Reset 显式重置: 丢弃文档与日志，回到SETUP，epoch自增
// 任何在旧epoch下启动的异步写入都会在应用前被丢弃
func (rc *RunContext) Reset() {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	rc.epoch++
	rc.id = ""
	rc.production = nil
	rc.suggestions = nil
	rc.log = nil
	rc.errorMsg = ""
	rc.setStatusLocked(models.RunStatusSetup)
}

// AppendLog 追加一条人类可读的进度日志并通知订阅者
func (rc *RunContext) AppendLog(line string) {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()
	rc.appendLogLocked(line)
}

func (rc *RunContext) appendLogLocked(line string) {
	rc.log = append(rc.log, line)
	rc.lastUpdated = time.Now()
	rc.notifyLocked(RunEvent{Type: "log", Line: line})
}

func (rc *RunContext) setStatusLocked(status models.RunStatus) {
	rc.status = status
	rc.lastUpdated = time.Now()
	rc.notifyLocked(RunEvent{Type: "status", Status: status})
}

// NotifyProgress 向订阅者推送渲染进度
func (rc *RunContext) NotifyProgress(progress int) {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()
	rc.notifyLocked(RunEvent{Type: "progress", Progress: progress})
}

// 非阻塞发送，通道已满则跳过该订阅者
func (rc *RunContext) notifyLocked(event RunEvent) {
	for subscriber := range rc.subscribers {
		select {
		case subscriber <- event:
		default:
		}
	}
}

// Subscribe 订阅运行事件，返回的通道由Unsubscribe关闭
func (rc *RunContext) Subscribe() chan RunEvent {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	ch := make(chan RunEvent, 32)
	rc.subscribers[ch] = true
	return ch
}

// Unsubscribe 取消订阅并关闭通道
func (rc *RunContext) Unsubscribe(ch chan RunEvent) {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if rc.subscribers[ch] {
		delete(rc.subscribers, ch)
		close(ch)
	}
}

// SetAnalysis 剧本分析阶段的合并：设置标题/梗概并创建角色与场景
// 只在排序阶段调用一次，为每个条目分配不可变ID
// 捕获epoch与当前不一致时丢弃整个合并，返回false
func (rc *RunContext) SetAnalysis(epoch uint64, result *models.AnalysisResult) bool {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if epoch != rc.epoch || rc.production == nil {
		return false
	}

	rc.production.Title = result.Title
	rc.production.Logline = result.Logline

	characters := make([]models.Character, 0, len(result.Characters))
	for _, c := range result.Characters {
		characters = append(characters, models.Character{
			ID:          uuid.NewString(),
			Name:        c.Name,
			Description: c.Description,
			Image:       models.NewAsset(),
		})
	}
	rc.production.Characters = characters

	scenes := make([]models.Scene, 0, len(result.Scenes))
	for _, s := range result.Scenes {
		scenes = append(scenes, models.Scene{
			ID:          uuid.NewString(),
			Description: s.Description,
			Storyboard:  models.NewAsset(),
		})
	}
	rc.production.Scenes = scenes
	rc.production.RenumberScenes()
	rc.lastUpdated = time.Now()
	return true
}

// SetStylePrompt 风格分析阶段的合并，epoch语义同SetAnalysis
func (rc *RunContext) SetStylePrompt(epoch uint64, style string) bool {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if epoch != rc.epoch || rc.production == nil {
		return false
	}
	rc.production.StylePrompt = style
	rc.lastUpdated = time.Now()
	return true
}

// SetSuggestions 替换待定建议集合，epoch语义同SetAnalysis
func (rc *RunContext) SetSuggestions(epoch uint64, suggestions []models.SceneSuggestion) bool {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if epoch != rc.epoch {
		return false
	}
	rc.suggestions = suggestions
	rc.lastUpdated = time.Now()
	return true
}

// TakeSuggestion 从待定集合中取出并移除指定建议
// 无论后续处理是否成功，建议都已被消费
func (rc *RunContext) TakeSuggestion(id string) (models.SceneSuggestion, bool) {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	for i, s := range rc.suggestions {
		if s.ID == id {
			rc.suggestions = append(rc.suggestions[:i], rc.suggestions[i+1:]...)
			rc.lastUpdated = time.Now()
			return s, true
		}
	}
	return models.SceneSuggestion{}, false
}

// UpdateCharacter 按ID对角色执行keyed更新
// 捕获epoch与当前不一致（运行已重置）或ID不存在时丢弃写入，返回false
// 绝不按位置索引写入，保证不同ID的并发更新互不干扰
func (rc *RunContext) UpdateCharacter(epoch uint64, id string, fn func(*models.Character)) bool {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if epoch != rc.epoch || rc.production == nil {
		return false
	}
	idx := rc.production.FindCharacter(id)
	if idx < 0 {
		return false
	}
	fn(&rc.production.Characters[idx])
	rc.lastUpdated = time.Now()
	return true
}

// UpdateScene 按ID对场景执行keyed更新，语义同UpdateCharacter
func (rc *RunContext) UpdateScene(epoch uint64, id string, fn func(*models.Scene)) bool {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if epoch != rc.epoch || rc.production == nil {
		return false
	}
	idx := rc.production.FindScene(id)
	if idx < 0 {
		return false
	}
	fn(&rc.production.Scenes[idx])
	rc.lastUpdated = time.Now()
	return true
}

// GetCharacter 按ID取角色快照
func (rc *RunContext) GetCharacter(id string) (models.Character, bool) {
	rc.mutex.RLock()
	defer rc.mutex.RUnlock()

	if rc.production == nil {
		return models.Character{}, false
	}
	idx := rc.production.FindCharacter(id)
	if idx < 0 {
		return models.Character{}, false
	}
	return rc.production.Characters[idx], true
}

// GetScene 按ID取场景快照
func (rc *RunContext) GetScene(id string) (models.Scene, bool) {
	rc.mutex.RLock()
	defer rc.mutex.RUnlock()

	if rc.production == nil {
		return models.Scene{}, false
	}
	idx := rc.production.FindScene(id)
	if idx < 0 {
		return models.Scene{}, false
	}
	return rc.production.Scenes[idx], true
}

// InsertScene 在指定下标插入场景并同步重编号
// 越界下标收敛到最近的合法边界，重编号在返回前完成，对观察者立即可见
func (rc *RunContext) InsertScene(epoch uint64, index int, scene models.Scene) bool {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if epoch != rc.epoch || rc.production == nil {
		return false
	}
	rc.production.InsertScene(index, scene)
	rc.lastUpdated = time.Now()
	return true
}

// Production 返回文档的深拷贝快照
func (rc *RunContext) Production() *models.Production {
	rc.mutex.RLock()
	defer rc.mutex.RUnlock()
	return rc.cloneProductionLocked()
}

func (rc *RunContext) cloneProductionLocked() *models.Production {
	if rc.production == nil {
		return nil
	}
	clone := *rc.production
	clone.Characters = append([]models.Character(nil), rc.production.Characters...)
	clone.Scenes = append([]models.Scene(nil), rc.production.Scenes...)
	if rc.production.InspirationRef != nil {
		ref := *rc.production.InspirationRef
		clone.InspirationRef = &ref
	}
	return &clone
}

// Snapshot 返回整个运行状态的只读快照
func (rc *RunContext) Snapshot() models.RunSnapshot {
	rc.mutex.RLock()
	defer rc.mutex.RUnlock()

	return models.RunSnapshot{
		ID:          rc.id,
		Status:      rc.status,
		Production:  rc.cloneProductionLocked(),
		Suggestions: append([]models.SceneSuggestion(nil), rc.suggestions...),
		Log:         append([]string(nil), rc.log...),
		ErrorMsg:    rc.errorMsg,
		CreatedAt:   rc.createdAt,
		LastUpdated: rc.lastUpdated,
	}
}

// ProductionSettings 提交时的制作设置
type ProductionSettings struct {
	MusicStyle     string                 `json:"music_style"`
	Quality        string                 `json:"quality"`
	InspirationRef *models.InspirationRef `json:"inspiration_ref,omitempty"`
}

// ---------------------------------------------------

// RunService 管理当前活跃的运行上下文并负责快照持久化
type RunService struct {
	Context *RunContext
	Storage *storage.FileStorage
}

// NewRunService 创建运行服务
func NewRunService(fileStorage *storage.FileStorage) *RunService {
	return &RunService{
		Context: NewRunContext(),
		Storage: fileStorage,
	}
}

// Persist 将当前运行快照写入磁盘
// 持久化失败只记日志，不影响运行本身
func (s *RunService) Persist() error {
	if s.Storage == nil {
		return nil
	}
	snapshot := s.Context.Snapshot()
	if snapshot.ID == "" {
		return nil
	}
	return s.Storage.SaveJSON("runs", snapshot.ID+".json", snapshot)
}

// ListRuns 列出所有已持久化的运行快照
func (s *RunService) ListRuns() ([]models.RunSnapshot, error) {
	if s.Storage == nil {
		return nil, nil
	}

	names, err := s.Storage.ListFiles("runs")
	if err != nil {
		return nil, fmt.Errorf("列出运行记录失败: %w", err)
	}

	snapshots := make([]models.RunSnapshot, 0, len(names))
	for _, name := range names {
		var snapshot models.RunSnapshot
		if err := s.Storage.LoadJSON("runs", name, &snapshot); err != nil {
			continue // 跳过损坏的记录
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}
