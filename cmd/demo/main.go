// cmd/demo/main.go
// 离线演示: 用桩生成服务跑完整条制作流水线，不需要任何API密钥
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Corphon/MovieForgeMCP/internal/models"
	"github.com/Corphon/MovieForgeMCP/internal/services"
	"github.com/Corphon/MovieForgeMCP/internal/storage"
)

const demoScript = `EXT. 废弃天文台 - 黄昏

林雪推开锈蚀的铁门，望远镜的残骸在夕阳下投出长影。

林雪
（低声）
十年了，信号又出现了。

她的助手陈阳抱着接收器跟在身后，屏幕上的波形剧烈跳动。

INT. 观测室 - 夜

两人围着临时搭起的设备。信号解码成一串坐标，指向月球背面。`

func main() {
	fmt.Println("🚀 MovieForgeMCP 流水线演示")
	fmt.Println("=================================")

	dataDir, err := os.MkdirTemp("", "movieforge_demo_*")
	if err != nil {
		log.Fatalf("❌ 创建演示数据目录失败: %v", err)
	}
	defer os.RemoveAll(dataDir)

	fileStorage, err := storage.NewFileStorage(dataDir)
	if err != nil {
		log.Fatalf("❌ 初始化存储失败: %v", err)
	}

	runService := services.NewRunService(fileStorage)
	progressService := services.NewProgressService()
	studio := &demoStudio{}
	sequencer := services.NewSequencerService(studio, runService, progressService, 1)

	ctx := context.Background()
	rc := runService.Context

	// 1. 提交剧本，同步跑完全部阶段
	fmt.Println("\n📖 提交剧本并执行制作阶段...")
	if err := rc.Begin(demoScript, services.ProductionSettings{
		MusicStyle: "ambient electronic",
		Quality:    "720p",
	}); err != nil {
		log.Fatalf("❌ 启动运行失败: %v", err)
	}
	sequencer.RunPipeline(ctx)

	snapshot := rc.Snapshot()
	fmt.Printf("\n✅ 阶段执行完成，状态: %s\n", snapshot.Status)
	fmt.Printf("   标题: %s\n", snapshot.Production.Title)
	fmt.Printf("   梗概: %s\n", snapshot.Production.Logline)
	fmt.Printf("   角色: %d 个，场景: %d 个，建议: %d 条\n",
		len(snapshot.Production.Characters),
		len(snapshot.Production.Scenes),
		len(snapshot.Suggestions))

	// 2. 审阅期: 接受第一条场景建议
	if len(snapshot.Suggestions) > 0 {
		suggestionService := services.NewSuggestionService(studio, runService)
		sceneID, err := suggestionService.Accept(ctx, snapshot.Suggestions[0].ID)
		if err != nil {
			log.Fatalf("❌ 接受建议失败: %v", err)
		}
		fmt.Printf("\n➕ 已接受建议，新场景 %s 插入文档\n", sceneID)

		// 等分镜生成的goroutine落盘
		waitForScene(rc, sceneID)
	}

	// 3. 最终渲染
	fmt.Println("\n🎥 开始最终渲染...")
	if err := rc.BeginRender(); err != nil {
		log.Fatalf("❌ 进入渲染失败: %v", err)
	}
	sequencer.Finalize(ctx)

	final := rc.Snapshot()
	fmt.Printf("\n🏁 运行结束，状态: %s\n", final.Status)
	fmt.Printf("   成片: %s\n", final.Production.FinalVideo.Value)

	fmt.Println("\n📜 运行日志:")
	for _, line := range final.Log {
		fmt.Println("   " + line)
	}
}

// 轮询等待指定场景的分镜进入终态
func waitForScene(rc *services.RunContext, sceneID string) {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		scene, ok := rc.GetScene(sceneID)
		if ok && scene.Storyboard.State != models.AssetPending {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// ===============================
// 桩生成服务: 确定性输出，不访问网络
// ===============================

type demoStudio struct{}

func (d *demoStudio) AnalyzeScript(ctx context.Context, script string) (*models.AnalysisResult, error) {
	return &models.AnalysisResult{
		Title:   "月背信号",
		Logline: "一位天文学家十年后再次接收到指向月球背面的神秘信号。",
		Characters: []models.AnalyzedCharacter{
			{Name: "林雪", Description: "四十岁的天文学家，目光坚定，穿着磨旧的工装外套。"},
			{Name: "陈阳", Description: "年轻的助手，戴黑框眼镜，总是抱着接收设备。"},
		},
		Scenes: []models.AnalyzedScene{
			{Number: 1, Description: "黄昏中的废弃天文台，锈蚀的铁门和望远镜残骸。"},
			{Number: 2, Description: "夜里的观测室，屏幕上信号解码成月球坐标。"},
		},
	}, nil
}

func (d *demoStudio) AnalyzeImageStyle(ctx context.Context, imageData, mime string) (string, error) {
	return "cold blue tones, cinematic lighting", nil
}

func (d *demoStudio) GenerateSceneSuggestions(ctx context.Context, logline string, scenes []models.Scene) ([]models.SceneSuggestion, error) {
	return []models.SceneSuggestion{
		{
			Title:             "信号源视角",
			Reasoning:         "揭示信号来源能增强悬念收束。",
			SceneDescription:  "月球背面，一座半埋在月尘中的古老装置随信号闪烁。",
			SuggestedPosition: 3,
		},
	}, nil
}

func (d *demoStudio) MatchVoiceActors(ctx context.Context, characters []models.AnalyzedCharacter) (models.VoiceCasting, error) {
	casting := models.VoiceCasting{}
	for _, c := range characters {
		casting[c.Name] = models.VoiceActor{
			ActorName:  "Demo Voice " + c.Name,
			VocalStyle: "calm, measured",
		}
	}
	return casting, nil
}

func (d *demoStudio) GenerateCharacterVoiceLine(ctx context.Context, name, description, vocalStyle string) (string, error) {
	return fmt.Sprintf("%s: 这一次，我不会再错过了。", name), nil
}

func (d *demoStudio) GenerateCharacterImage(ctx context.Context, description, stylePrompt, quality string) (string, error) {
	return "demo://image/" + shortRef(description), nil
}

func (d *demoStudio) GenerateStoryboardVideo(ctx context.Context, description, stylePrompt, quality string) (string, error) {
	return "demo://storyboard/" + shortRef(description), nil
}

func (d *demoStudio) EditImage(ctx context.Context, image, instruction string) (string, error) {
	return image + "?edited", nil
}

func (d *demoStudio) EnhanceSceneDescription(ctx context.Context, description string) (string, error) {
	return description + "（镜头缓缓推近）", nil
}

func (d *demoStudio) RenderFinalVideo(ctx context.Context, production *models.Production, onProgress func(progress int, message string)) (string, error) {
	steps := []string{"合成分镜", "混音", "调色", "编码输出"}
	for i, step := range steps {
		if onProgress != nil {
			onProgress((i+1)*25, step)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return "demo://final/" + shortRef(production.Title), nil
}

func shortRef(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > 8 {
		runes = runes[:8]
	}
	return strings.ReplaceAll(string(runes), " ", "_")
}
