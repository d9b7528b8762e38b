// internal/models/scene.go
package models

// Scene 表示影片中的一个分镜场景
// SceneNumber始终等于场景在列表中的1-based位置，插入/删除后必须立即重编号
type Scene struct {
	ID          string `json:"id"`
	SceneNumber int    `json:"scene_number"`
	Description string `json:"description"`
	Storyboard  Asset  `json:"storyboard"`
}

// SceneSuggestion 表示AI建议的候选新场景，等待用户接受或拒绝
// 只存在于待定集合中：接受后转换为Scene并移除，拒绝则直接移除
type SceneSuggestion struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Reasoning         string `json:"reasoning"`
	SceneDescription  string `json:"scene_description"`
	SuggestedPosition int    `json:"suggested_position"` // 1-based目标位置，越界时收敛到最近的合法边界
}
