// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// LLM相关配置
	LLMProvider string            `json:"llm_provider"`
	LLMConfig   map[string]string `json:"llm_config"`

	// 媒体生成相关配置（Vertex AI）
	MediaProjectID string `json:"media_project_id,omitempty"`
	MediaLocation  string `json:"media_location,omitempty"`
	ImageModelID   string `json:"image_model_id,omitempty"`
	VideoModelID   string `json:"video_model_id,omitempty"`

	// 阶段6/7对外部服务的并发度，默认1（逐个限流）
	VisualConcurrency int `json:"visual_concurrency"`
}

// Config 存储从环境变量读取的基础配置
type Config struct {
	Port              string
	OpenRouterAPIKey  string
	DataDir           string
	LogDir            string
	DebugMode         bool
	MediaProjectID    string
	MediaLocation     string
	VisualConcurrency int
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &Config{
		Port:              getEnv("PORT", "8080"),
		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		DataDir:           getEnvPath("DATA_DIR", "data"),
		LogDir:            getEnvPath("LOG_DIR", "logs"),
		DebugMode:         getEnvBool("DEBUG_MODE", true),
		MediaProjectID:    getEnv("GOOGLE_CLOUD_PROJECT", ""),
		MediaLocation:     getEnv("GOOGLE_CLOUD_LOCATION", ""),
		VisualConcurrency: getEnvInt("VISUAL_CONCURRENCY", 1),
	}

	if config.OpenRouterAPIKey == "" {
		// 只记录警告，不返回错误
		log.Println("警告: 未设置OpenRouter API密钥，需要在设置接口中配置才能使用LLM功能")
	}
	if config.MediaProjectID == "" || config.MediaLocation == "" {
		log.Println("警告: 未设置GOOGLE_CLOUD_PROJECT/GOOGLE_CLOUD_LOCATION，图片和视频生成不可用")
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		err = os.MkdirAll(path, 0755)
		if err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = &AppConfig{
		Port:        baseConfig.Port,
		DataDir:     baseConfig.DataDir,
		LogDir:      baseConfig.LogDir,
		DebugMode:   baseConfig.DebugMode,
		LLMProvider: "openrouter",
		LLMConfig: map[string]string{
			"api_key": baseConfig.OpenRouterAPIKey,
		},
		MediaProjectID:    baseConfig.MediaProjectID,
		MediaLocation:     baseConfig.MediaLocation,
		VisualConcurrency: baseConfig.VisualConcurrency,
	}

	// 尝试从文件加载已保存的配置，合并时以最新的基础配置为准
	if _, err := os.Stat(configFile); !os.IsNotExist(err) {
		data, err := os.ReadFile(configFile)
		if err == nil {
			var savedConfig AppConfig
			if json.Unmarshal(data, &savedConfig) == nil {
				savedConfig.Port = baseConfig.Port
				savedConfig.DataDir = baseConfig.DataDir
				savedConfig.LogDir = baseConfig.LogDir
				savedConfig.DebugMode = baseConfig.DebugMode
				if savedConfig.VisualConcurrency < 1 {
					savedConfig.VisualConcurrency = baseConfig.VisualConcurrency
				}

				// 文件中没有API密钥时使用环境变量的密钥
				if savedConfig.LLMConfig != nil && savedConfig.LLMConfig["api_key"] == "" {
					savedConfig.LLMConfig["api_key"] = baseConfig.OpenRouterAPIKey
				}

				currentConfig = &savedConfig
			}
		}
	}

	return SaveConfig()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 紧急情况，返回基于环境变量的基本配置
		baseConfig, _ := Load()
		return &AppConfig{
			Port:        baseConfig.Port,
			DataDir:     baseConfig.DataDir,
			LogDir:      baseConfig.LogDir,
			DebugMode:   baseConfig.DebugMode,
			LLMProvider: "openrouter",
			LLMConfig: map[string]string{
				"api_key": baseConfig.OpenRouterAPIKey,
			},
			MediaProjectID:    baseConfig.MediaProjectID,
			MediaLocation:     baseConfig.MediaLocation,
			VisualConcurrency: baseConfig.VisualConcurrency,
		}
	}

	configCopy := *currentConfig
	return &configCopy
}

// UpdateLLMConfig 更新LLM配置
func UpdateLLMConfig(provider string, providerConfig map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.LLMProvider = provider
	currentConfig.LLMConfig = providerConfig

	return saveConfigLocked()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	return saveConfigLocked()
}

func saveConfigLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	dir := filepath.Dir(configFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}
