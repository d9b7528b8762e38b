// internal/services/sequencer_service.go
package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/Corphon/MovieForgeMCP/internal/models"
	"github.com/Corphon/MovieForgeMCP/internal/utils"
)

// 阶段名称，致命错误消息中引用
const (
	StageScriptAnalysis   = "Script Analysis"
	StageStyleAnalysis    = "Style Analysis"
	StageSceneSuggestions = "Scene Suggestions"
	StageVoiceCasting     = "Voice Casting"
	StageVoiceLines       = "Voice Lines"
	StageCharacterVisuals = "Character Visuals"
	StageStoryboards      = "Storyboards"
	StageFinalRender      = "Final Render"
)

// SequencerService 按固定顺序执行制作阶段
// 每个阶段消费当前文档并合并产出，阶段之间严格串行
// 只有剧本分析和最终渲染是致命的，其余失败都按降级处理后继续
type SequencerService struct {
	Studio      AssetStudio
	Runs        *RunService
	Progress    *ProgressService
	visualQueue *WorkQueue
}

// NewSequencerService 创建阶段排序器
// visualConcurrency控制阶段6/7对外部服务的并发度，默认1（逐个调用的限流策略）
func NewSequencerService(studio AssetStudio, runs *RunService, progress *ProgressService, visualConcurrency int) *SequencerService {
	return &SequencerService{
		Studio:      studio,
		Runs:        runs,
		Progress:    progress,
		visualQueue: NewWorkQueue(visualConcurrency),
	}
}

// StartRun 开始一次新的制作运行
// 状态切换到RUNNING后在独立goroutine中执行全部阶段，立即返回
func (s *SequencerService) StartRun(ctx context.Context, req SubmitRequest) error {
	rc := s.Runs.Context
	if err := rc.Begin(req.Script, req.Settings); err != nil {
		return err
	}

	go s.runPipeline(ctx, rc)
	return nil
}

// RunPipeline 同步执行全部阶段，demo和测试直接调用
func (s *SequencerService) RunPipeline(ctx context.Context) {
	s.runPipeline(ctx, s.Runs.Context)
}

// 管线启动时捕获一次epoch，之后的每次合并写入和状态切换都携带它；
// 运行被重置后，孤儿管线在下一个阶段边界静默退出，写入也会被上下文丢弃
func (s *SequencerService) runPipeline(ctx context.Context, rc *RunContext) {
	epoch := rc.Epoch()

	// 阶段1: 剧本分析（致命）
	if err := s.stageScriptAnalysis(ctx, rc, epoch); err != nil {
		rc.Fail(epoch, StageScriptAnalysis, err)
		s.persist()
		return
	}
	if epoch != rc.Epoch() {
		return
	}

	// 阶段2: 风格分析（无参考或参考为视频时跳过）
	s.stageStyleAnalysis(ctx, rc, epoch)

	// 阶段3: 场景建议咨询（永不致命）
	s.stageSceneSuggestions(ctx, rc, epoch)

	// 阶段4: 配音选角（空结果只警告）
	casting := s.stageVoiceCasting(ctx, rc, epoch)
	if epoch != rc.Epoch() {
		return
	}

	// 阶段5: 台词生成（只为已选角的角色，并行扇出，按ID回填）
	s.stageVoiceLines(ctx, rc, epoch, casting)

	// 阶段6: 角色形象生成（逐个串行，限流策略）
	s.stageCharacterVisuals(ctx, rc, epoch)

	// 阶段7: 分镜生成（同样逐个串行）
	s.stageStoryboards(ctx, rc, epoch)
	if epoch != rc.Epoch() {
		return
	}

	// 全部完成，进入Review，不自动开始渲染
	rc.AppendLog("🎬 所有制作阶段完成，进入审阅")
	rc.EnterReview(epoch)
	s.persist()
}

// ---------------------------------------------------
// 阶段1: 剧本分析
func (s *SequencerService) stageScriptAnalysis(ctx context.Context, rc *RunContext, epoch uint64) error {
	rc.AppendLog("📖 剧本分析中...")

	production := rc.Production()
	if production == nil {
		return fmt.Errorf("运行尚未开始")
	}

	result, err := s.Studio.AnalyzeScript(ctx, production.Script)
	if err != nil {
		return err
	}
	if result.Invalid {
		return fmt.Errorf("剧本被判定为无效: %s", result.Reason)
	}
	if len(result.Characters) == 0 || len(result.Scenes) == 0 {
		return fmt.Errorf("无法从剧本中识别角色或场景")
	}

	if !rc.SetAnalysis(epoch, result) {
		return nil // 运行已重置，结果作废
	}
	rc.AppendLog(fmt.Sprintf("✅ 剧本分析完成: %d个角色, %d个场景", len(result.Characters), len(result.Scenes)))
	return nil
}

// 阶段2: 风格分析
// 没有参考时静默跳过；视频参考不做风格分析（记日志后忽略，
// 但仍可能在最终渲染阶段使用）
func (s *SequencerService) stageStyleAnalysis(ctx context.Context, rc *RunContext, epoch uint64) {
	production := rc.Production()
	if production == nil || production.InspirationRef == nil {
		rc.AppendLog("⏭️ 未提供视觉参考，跳过风格分析")
		return
	}
	if production.InspirationRef.IsVideo {
		rc.AppendLog("⏭️ 视觉参考为视频，跳过风格分析")
		return
	}

	rc.AppendLog("🎨 风格分析中...")
	style, err := s.Studio.AnalyzeImageStyle(ctx, production.InspirationRef.Data, production.InspirationRef.Mime)
	if err != nil {
		rc.AppendLog(fmt.Sprintf("⚠️ 风格分析失败，继续使用默认风格: %v", err))
		utils.GetLogger().Warnf("风格分析失败: %v", err)
		return
	}

	if !rc.SetStylePrompt(epoch, style) {
		return
	}
	rc.AppendLog("✅ 风格分析完成")
}

// 阶段3: 场景建议咨询，任何错误都按零条建议处理
func (s *SequencerService) stageSceneSuggestions(ctx context.Context, rc *RunContext, epoch uint64) {
	production := rc.Production()
	if production == nil {
		return
	}

	rc.AppendLog("💡 征询场景建议中...")
	suggestions, err := s.Studio.GenerateSceneSuggestions(ctx, production.Logline, production.Scenes)
	if err != nil {
		rc.AppendLog("💡 本次没有可用的场景建议")
		utils.GetLogger().Warnf("场景建议生成失败: %v", err)
		return
	}

	if !rc.SetSuggestions(epoch, suggestions) {
		return
	}
	rc.AppendLog(fmt.Sprintf("✅ 收到 %d 条场景建议", len(suggestions)))
}

// 阶段4: 配音选角，按角色名精确匹配
// 空结果或失败只记警告，所有角色保持无配音状态
func (s *SequencerService) stageVoiceCasting(ctx context.Context, rc *RunContext, epoch uint64) models.VoiceCasting {
	production := rc.Production()
	if production == nil {
		return nil
	}

	rc.AppendLog("🎙️ 配音选角中...")

	candidates := make([]models.AnalyzedCharacter, 0, len(production.Characters))
	for _, c := range production.Characters {
		candidates = append(candidates, models.AnalyzedCharacter{
			Name:        c.Name,
			Description: c.Description,
		})
	}

	casting, err := s.Studio.MatchVoiceActors(ctx, candidates)
	if err != nil || len(casting) == 0 {
		rc.AppendLog("⚠️ 选角结果为空，所有角色暂无配音演员")
		if err != nil {
			utils.GetLogger().Warnf("配音选角失败: %v", err)
		}
		return nil
	}

	matched := 0
	for _, c := range production.Characters {
		actor, ok := casting[c.Name]
		if !ok {
			continue
		}
		actorCopy := actor
		if rc.UpdateCharacter(epoch, c.ID, func(ch *models.Character) {
			ch.VoiceActor = &actorCopy
		}) {
			matched++
		}
	}

	rc.AppendLog(fmt.Sprintf("✅ 选角完成: %d/%d 个角色已分配配音演员", matched, len(production.Characters)))
	return casting
}

// 阶段5: 台词生成
// 只处理已分配配音演员的角色；每个角色独立生成，可以并行，
// 完成顺序无关紧要，结果严格按角色ID回填（子集被过滤过，不能按位置对应）
// 单个角色失败不阻塞其他角色，失败的角色保持无台词
func (s *SequencerService) stageVoiceLines(ctx context.Context, rc *RunContext, epoch uint64, casting models.VoiceCasting) {
	production := rc.Production()
	if production == nil {
		return
	}

	type voiceTask struct {
		id          string
		name        string
		description string
		vocalStyle  string
	}

	var tasks []voiceTask
	for _, c := range production.Characters {
		actor, ok := casting[c.Name]
		if !ok {
			continue
		}
		tasks = append(tasks, voiceTask{
			id:          c.ID,
			name:        c.Name,
			description: c.Description,
			vocalStyle:  actor.VocalStyle,
		})
	}

	if len(tasks) == 0 {
		rc.AppendLog("⏭️ 没有已选角的角色，跳过台词生成")
		return
	}

	rc.AppendLog(fmt.Sprintf("💬 为 %d 个角色生成台词...", len(tasks)))

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task voiceTask) {
			defer wg.Done()

			line, err := s.Studio.GenerateCharacterVoiceLine(ctx, task.name, task.description, task.vocalStyle)
			if err != nil {
				rc.AppendLog(fmt.Sprintf("⚠️ %s 的台词生成失败: %v", task.name, err))
				return
			}
			rc.UpdateCharacter(epoch, task.id, func(ch *models.Character) {
				ch.VoiceLine = line
			})
			rc.AppendLog(fmt.Sprintf("✅ %s 的台词已生成", task.name))
		}(task)
	}
	wg.Wait()
}

// 阶段6: 角色形象生成
// 通过有界工作队列逐个调用外部服务（对外限流），
// 单个角色失败记日志后继续下一个，不中断运行
func (s *SequencerService) stageCharacterVisuals(ctx context.Context, rc *RunContext, epoch uint64) {
	production := rc.Production()
	if production == nil || len(production.Characters) == 0 {
		return
	}

	rc.AppendLog(fmt.Sprintf("🖼️ 生成 %d 个角色形象...", len(production.Characters)))

	tasks := make([]func(ctx context.Context), 0, len(production.Characters))
	for _, c := range production.Characters {
		character := c
		tasks = append(tasks, func(ctx context.Context) {
			rc.UpdateCharacter(epoch, character.ID, func(ch *models.Character) {
				ch.Image = models.PendingAsset()
			})

			image, err := s.Studio.GenerateCharacterImage(ctx, character.Description, production.StylePrompt, production.Quality)
			if err != nil {
				rc.AppendLog(fmt.Sprintf("⚠️ %s 的形象生成失败: %v", character.Name, err))
				rc.UpdateCharacter(epoch, character.ID, func(ch *models.Character) {
					ch.Image = models.FailedAsset(err)
				})
				return
			}

			rc.UpdateCharacter(epoch, character.ID, func(ch *models.Character) {
				ch.Image = models.ReadyAsset(image)
			})
			rc.AppendLog(fmt.Sprintf("✅ %s 的形象已生成", character.Name))
		})
	}

	s.visualQueue.RunAll(ctx, tasks)
}

// 阶段7: 分镜生成，与阶段6相同的逐个串行策略
func (s *SequencerService) stageStoryboards(ctx context.Context, rc *RunContext, epoch uint64) {
	production := rc.Production()
	if production == nil || len(production.Scenes) == 0 {
		return
	}

	rc.AppendLog(fmt.Sprintf("🎞️ 生成 %d 个场景分镜...", len(production.Scenes)))

	tasks := make([]func(ctx context.Context), 0, len(production.Scenes))
	for _, sc := range production.Scenes {
		scene := sc
		tasks = append(tasks, func(ctx context.Context) {
			rc.UpdateScene(epoch, scene.ID, func(s *models.Scene) {
				s.Storyboard = models.PendingAsset()
			})

			video, err := s.Studio.GenerateStoryboardVideo(ctx, scene.Description, production.StylePrompt, production.Quality)
			if err != nil {
				rc.AppendLog(fmt.Sprintf("⚠️ 场景 %d 的分镜生成失败: %v", scene.SceneNumber, err))
				rc.UpdateScene(epoch, scene.ID, func(s *models.Scene) {
					s.Storyboard = models.FailedAsset(err)
				})
				return
			}

			rc.UpdateScene(epoch, scene.ID, func(s *models.Scene) {
				s.Storyboard = models.ReadyAsset(video)
			})
			rc.AppendLog(fmt.Sprintf("✅ 场景 %d 的分镜已生成", scene.SceneNumber))
		})
	}

	s.visualQueue.RunAll(ctx, tasks)
}

// ---------------------------------------------------

// StartFinalize 开始最终渲染: REVIEW→RUNNING
// 渲染在独立goroutine中执行，进度通过ProgressService和事件流上报
func (s *SequencerService) StartFinalize(ctx context.Context) error {
	rc := s.Runs.Context
	if err := rc.BeginRender(); err != nil {
		return err
	}

	go s.finalize(ctx, rc)
	return nil
}

// Finalize 同步执行最终渲染，demo和测试直接调用
func (s *SequencerService) Finalize(ctx context.Context) {
	s.finalize(ctx, s.Runs.Context)
}

func (s *SequencerService) finalize(ctx context.Context, rc *RunContext) {
	epoch := rc.Epoch()
	production := rc.Production()
	if production == nil {
		rc.Fail(epoch, StageFinalRender, fmt.Errorf("没有可渲染的文档"))
		return
	}

	rc.AppendLog("🎥 最终渲染开始...")

	var tracker *ProgressTracker
	if s.Progress != nil {
		tracker = s.Progress.CreateTracker(rc.ID())
	}

	onProgress := func(progress int, message string) {
		if epoch != rc.Epoch() {
			return // 运行已重置，丢弃迟到的进度
		}
		if tracker != nil {
			tracker.UpdateProgress(progress, message)
		}
		rc.NotifyProgress(progress)
		if message != "" {
			rc.AppendLog(fmt.Sprintf("🎥 渲染中 %d%%: %s", progress, message))
		}
	}

	video, err := s.Studio.RenderFinalVideo(ctx, production, onProgress)

	if epoch != rc.Epoch() {
		return // 渲染期间被重置，结果作废
	}

	if err != nil {
		if tracker != nil {
			tracker.Fail(err.Error())
		}
		rc.Fail(epoch, StageFinalRender, err)
		s.persist()
		return
	}

	if tracker != nil {
		tracker.Complete("渲染完成")
	}
	rc.CompleteRun(epoch, video)
	rc.AppendLog("🏁 成片渲染完成")
	s.persist()
}

func (s *SequencerService) persist() {
	if err := s.Runs.Persist(); err != nil {
		utils.GetLogger().Warnf("运行快照持久化失败: %v", err)
	}
}
