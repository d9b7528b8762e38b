// internal/models/production.go
package models

// Production 表示一部制作中的影片文档（单次运行的根聚合）
// 由StageSequencer逐阶段填充，Review阶段由各控制器按字段修改
// 排序阶段只做追加/合并：每个阶段的输出合并进当前状态，不丢弃先前阶段已填充的字段
type Production struct {
	Title   string `json:"title"`
	Logline string `json:"logline"`
	Script  string `json:"script"`

	Characters []Character `json:"characters"`
	Scenes     []Scene     `json:"scenes"`

	// 制作设置，在提交/分析阶段设定后不再变更
	MusicStyle  string `json:"music_style,omitempty"`
	StylePrompt string `json:"style_prompt,omitempty"`
	Quality     string `json:"quality,omitempty"`

	InspirationRef *InspirationRef `json:"inspiration_ref,omitempty"`

	// Finalize阶段成功前保持未开始状态
	FinalVideo Asset `json:"final_video"`
}

// InspirationRef 表示用户上传的视觉参考
type InspirationRef struct {
	Data    string `json:"data"` // 数据URI或存储引用
	Mime    string `json:"mime"`
	IsVideo bool   `json:"is_video"`
}

// FindCharacter 按ID查找角色，返回索引；未找到返回-1
func (p *Production) FindCharacter(id string) int {
	for i := range p.Characters {
		if p.Characters[i].ID == id {
			return i
		}
	}
	return -1
}

// FindScene 按ID查找场景，返回索引；未找到返回-1
func (p *Production) FindScene(id string) int {
	for i := range p.Scenes {
		if p.Scenes[i].ID == id {
			return i
		}
	}
	return -1
}

// RenumberScenes 重新计算所有场景编号，保证scenes[i].SceneNumber == i+1
func (p *Production) RenumberScenes() {
	for i := range p.Scenes {
		p.Scenes[i].SceneNumber = i + 1
	}
}

// InsertScene 在指定下标处插入场景并立即重编号
// index会被收敛到[0, len(scenes)]范围内
func (p *Production) InsertScene(index int, scene Scene) {
	if index < 0 {
		index = 0
	}
	if index > len(p.Scenes) {
		index = len(p.Scenes)
	}

	p.Scenes = append(p.Scenes, Scene{})
	copy(p.Scenes[index+1:], p.Scenes[index:])
	p.Scenes[index] = scene

	p.RenumberScenes()
}

// RemoveScene 按ID删除场景并重编号，返回是否删除成功
func (p *Production) RemoveScene(id string) bool {
	idx := p.FindScene(id)
	if idx < 0 {
		return false
	}

	p.Scenes = append(p.Scenes[:idx], p.Scenes[idx+1:]...)
	p.RenumberScenes()
	return true
}
