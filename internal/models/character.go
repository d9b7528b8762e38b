// internal/models/character.go
package models

// Character 表示制作中影片的一个角色
// ID在创建时分配且不可变，是跨异步更新的唯一安全引用键（名字可能重复）
type Character struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       Asset       `json:"image"`
	VoiceActor  *VoiceActor `json:"voice_actor,omitempty"`
	VoiceLine   string      `json:"voice_line,omitempty"`
}

// VoiceActor 表示选角阶段分配的配音演员
type VoiceActor struct {
	ActorName  string `json:"actor_name"`
	VocalStyle string `json:"vocal_style"`
}

// HasVoiceActor 判断角色是否已有配音演员
func (c *Character) HasVoiceActor() bool {
	return c.VoiceActor != nil
}
