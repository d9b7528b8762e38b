// internal/services/character_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Corphon/MovieForgeMCP/internal/models"
)

// 控制器共用的查找错误
var (
	ErrCharacterNotFound = errors.New("角色不存在")
	ErrSceneNotFound     = errors.New("场景不存在")
	ErrNoImageToEdit     = errors.New("角色尚无可编辑的图片")
)

// CharacterService 审阅阶段的单角色再生成控制器
// 独立于阶段排序器工作：先同步把目标字段置为生成中（观察者立即看到加载状态），
// 再异步调用对应的生成服务；成功按ID写回，失败恢复原值并只通过日志上报
// 不同ID的并发再生成互不干扰；同一ID并发触发未定义（最后写入胜出），
// 调用方应在一次触发未完成时禁用入口
type CharacterService struct {
	Studio AssetStudio
	Runs   *RunService
}

// NewCharacterService 创建角色控制器
func NewCharacterService(studio AssetStudio, runs *RunService) *CharacterService {
	return &CharacterService{Studio: studio, Runs: runs}
}

// RegenerateImage 重新生成单个角色的形象图
// 返回nil表示再生成已启动；角色不存在时不做任何状态变更
func (s *CharacterService) RegenerateImage(ctx context.Context, characterID string) error {
	rc := s.Runs.Context

	character, ok := rc.GetCharacter(characterID)
	if !ok {
		return ErrCharacterNotFound
	}

	production := rc.Production()
	epoch := rc.Epoch()
	previous := character.Image

	// 异步调用开始前的同步可见副作用
	rc.UpdateCharacter(epoch, characterID, func(ch *models.Character) {
		ch.Image = models.PendingAsset()
	})

	go func() {
		image, err := s.Studio.GenerateCharacterImage(ctx, character.Description, production.StylePrompt, production.Quality)
		if err != nil {
			// 失败时恢复再生成前的值，不留在加载状态
			rc.UpdateCharacter(epoch, characterID, func(ch *models.Character) {
				ch.Image = previous
			})
			rc.AppendLog(fmt.Sprintf("⚠️ %s 的形象重新生成失败: %v", character.Name, err))
			return
		}

		if rc.UpdateCharacter(epoch, characterID, func(ch *models.Character) {
			ch.Image = models.ReadyAsset(image)
		}) {
			rc.AppendLog(fmt.Sprintf("✅ %s 的形象已重新生成", character.Name))
		}
	}()

	return nil
}

// EditImage 按指令修改角色已有的图片
// 与再生成相同的加载/失败/恢复协议
func (s *CharacterService) EditImage(ctx context.Context, characterID, instruction string) error {
	rc := s.Runs.Context

	character, ok := rc.GetCharacter(characterID)
	if !ok {
		return ErrCharacterNotFound
	}
	if !character.Image.IsReady() {
		return ErrNoImageToEdit
	}

	epoch := rc.Epoch()
	previous := character.Image

	rc.UpdateCharacter(epoch, characterID, func(ch *models.Character) {
		ch.Image = models.PendingAsset()
	})

	go func() {
		image, err := s.Studio.EditImage(ctx, previous.Value, instruction)
		if err != nil {
			rc.UpdateCharacter(epoch, characterID, func(ch *models.Character) {
				ch.Image = previous
			})
			rc.AppendLog(fmt.Sprintf("⚠️ %s 的图片编辑失败: %v", character.Name, err))
			return
		}

		if rc.UpdateCharacter(epoch, characterID, func(ch *models.Character) {
			ch.Image = models.ReadyAsset(image)
		}) {
			rc.AppendLog(fmt.Sprintf("✅ %s 的图片已按指令修改", character.Name))
		}
	}()

	return nil
}

// RegenerateVoiceLine 重新生成单个角色的台词
// 只对已有配音演员的角色有效
func (s *CharacterService) RegenerateVoiceLine(ctx context.Context, characterID string) error {
	rc := s.Runs.Context

	character, ok := rc.GetCharacter(characterID)
	if !ok {
		return ErrCharacterNotFound
	}
	if character.VoiceActor == nil {
		return fmt.Errorf("角色 %s 尚未分配配音演员", character.Name)
	}

	epoch := rc.Epoch()
	previous := character.VoiceLine

	rc.UpdateCharacter(epoch, characterID, func(ch *models.Character) {
		ch.VoiceLine = ""
	})

	go func() {
		line, err := s.Studio.GenerateCharacterVoiceLine(ctx, character.Name, character.Description, character.VoiceActor.VocalStyle)
		if err != nil {
			rc.UpdateCharacter(epoch, characterID, func(ch *models.Character) {
				ch.VoiceLine = previous
			})
			rc.AppendLog(fmt.Sprintf("⚠️ %s 的台词重新生成失败: %v", character.Name, err))
			return
		}

		if rc.UpdateCharacter(epoch, characterID, func(ch *models.Character) {
			ch.VoiceLine = line
		}) {
			rc.AppendLog(fmt.Sprintf("✅ %s 的台词已重新生成", character.Name))
		}
	}()

	return nil
}

// UpdateVoiceLine 用户手工编辑台词，同步生效
func (s *CharacterService) UpdateVoiceLine(characterID, line string) error {
	rc := s.Runs.Context

	if rc.UpdateCharacter(rc.Epoch(), characterID, func(ch *models.Character) {
		ch.VoiceLine = line
	}) {
		return nil
	}
	return ErrCharacterNotFound
}
