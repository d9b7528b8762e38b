// internal/models/run.go
package models

import "time"

// RunStatus 表示一次制作运行的整体状态
// 线性状态机: SETUP→RUNNING→REVIEW→(RUNNING)→COMPLETE，任意致命失败转ERROR
// ERROR/COMPLETE只能通过显式重置回到SETUP
type RunStatus string

const (
	RunStatusSetup    RunStatus = "SETUP"
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusReview   RunStatus = "REVIEW"
	RunStatusComplete RunStatus = "COMPLETE"
	RunStatusError    RunStatus = "ERROR"
)

// RunSnapshot 表示运行状态的一次只读快照，用于API响应和持久化
type RunSnapshot struct {
	ID          string            `json:"id"`
	Status      RunStatus         `json:"status"`
	Production  *Production       `json:"production,omitempty"`
	Suggestions []SceneSuggestion `json:"suggestions,omitempty"`
	Log         []string          `json:"log"`
	ErrorMsg    string            `json:"error_msg,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	LastUpdated time.Time         `json:"last_updated"`
}

// AnalysisResult 表示剧本分析服务返回的结构化结果
type AnalysisResult struct {
	Title      string              `json:"title"`
	Logline    string              `json:"logline"`
	Characters []AnalyzedCharacter `json:"characters"`
	Scenes     []AnalyzedScene     `json:"scenes"`
	Invalid    bool                `json:"invalid,omitempty"`
	Reason     string              `json:"reason,omitempty"`
}

// AnalyzedCharacter 分析阶段提取的角色（尚未分配ID）
type AnalyzedCharacter struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AnalyzedScene 分析阶段提取的场景（尚未分配ID）
type AnalyzedScene struct {
	Number      int    `json:"number"`
	Description string `json:"description"`
}

// VoiceCasting 选角服务返回的角色名到配音演员的映射
type VoiceCasting map[string]VoiceActor
