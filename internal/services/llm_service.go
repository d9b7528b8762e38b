// internal/services/llm_service.go
package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/MovieForgeMCP/internal/config"
	"github.com/Corphon/MovieForgeMCP/internal/llm"
)

// LLMService 管理文本生成提供者并提供结构化补全
type LLMService struct {
	provider      llm.Provider
	providerMutex sync.RWMutex
	isReady       bool
	readyState    string

	cache *LLMCache
}

// LLMCache 结构化补全结果的简单缓存
type LLMCache struct {
	entries    map[string]*llmCacheEntry
	mutex      sync.RWMutex
	expiration time.Duration
	maxSize    int
}

type llmCacheEntry struct {
	data      []byte
	timestamp time.Time
}

// NewLLMService 按配置创建LLM服务
// 没有配置提供者时服务处于未就绪状态，调用时报错而不是崩溃
func NewLLMService() (*LLMService, error) {
	s := &LLMService{
		readyState: "未配置LLM提供者",
		cache: &LLMCache{
			entries:    make(map[string]*llmCacheEntry),
			expiration: 30 * time.Minute,
			maxSize:    100,
		},
	}

	cfg := config.GetCurrentConfig()
	if cfg == nil || cfg.LLMProvider == "" {
		return s, nil
	}

	provider, err := llm.GetProvider(cfg.LLMProvider, cfg.LLMConfig)
	if err != nil {
		s.readyState = fmt.Sprintf("LLM提供者初始化失败: %v", err)
		return s, nil // 返回未就绪服务而不是错误
	}

	s.provider = provider
	s.isReady = true
	s.readyState = "就绪"
	return s, nil
}

// NewLLMServiceWithProvider 使用指定的提供者创建LLM服务（测试和demo用）
func NewLLMServiceWithProvider(provider llm.Provider) *LLMService {
	s := &LLMService{
		cache: &LLMCache{
			entries:    make(map[string]*llmCacheEntry),
			expiration: 30 * time.Minute,
			maxSize:    100,
		},
	}
	if provider != nil {
		s.provider = provider
		s.isReady = true
		s.readyState = "就绪"
	} else {
		s.readyState = "未配置LLM提供者"
	}
	return s
}

// IsReady 返回服务是否可用
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.isReady && s.provider != nil
}

// GetProviderName 返回当前提供者名称
func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	if s.provider == nil {
		return ""
	}
	return s.provider.GetName()
}

// UpdateProvider 热切换LLM提供者
func (s *LLMService) UpdateProvider(providerName string, providerConfig map[string]string) error {
	provider, err := llm.GetProvider(providerName, providerConfig)
	if err != nil {
		return fmt.Errorf("切换LLM提供者失败: %w", err)
	}

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()
	s.provider = provider
	s.isReady = true
	s.readyState = "就绪"
	return nil
}

// CreateStructuredCompletion 执行一次补全并把结果解析进outputSchema
// 系统提示中追加JSON格式要求，响应先清理markdown围栏等噪音再解析
func (s *LLMService) CreateStructuredCompletion(ctx context.Context, prompt, systemPrompt string, outputSchema interface{}) error {
	s.providerMutex.RLock()
	if !s.isReady || s.provider == nil {
		state := s.readyState
		s.providerMutex.RUnlock()
		return fmt.Errorf("LLM服务未就绪: %s", state)
	}
	provider := s.provider
	s.providerMutex.RUnlock()

	cacheKey := s.generateCacheKey(prompt, systemPrompt)
	if s.cache.restore(cacheKey, outputSchema) {
		return nil
	}

	structuredSystemPrompt := systemPrompt
	if structuredSystemPrompt != "" {
		structuredSystemPrompt += "\n\n"
	}
	structuredSystemPrompt += "Return your response in valid JSON format, following the provided output schema, without adding explanations or preambles."

	req := llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: structuredSystemPrompt,
		Temperature:  0.3,
	}

	resp, err := provider.CompleteText(ctx, req)
	if err != nil {
		return err
	}

	text := CleanLLMJSONResponse(resp.Text)
	if err := json.Unmarshal([]byte(text), outputSchema); err != nil {
		return fmt.Errorf("解析AI响应为结构化数据失败: %w\nAI返回: %s", err, text)
	}

	s.cache.store(cacheKey, outputSchema)
	return nil
}

// CompleteText 执行一次普通文本补全
func (s *LLMService) CompleteText(ctx context.Context, prompt, systemPrompt string) (string, error) {
	s.providerMutex.RLock()
	if !s.isReady || s.provider == nil {
		state := s.readyState
		s.providerMutex.RUnlock()
		return "", fmt.Errorf("LLM服务未就绪: %s", state)
	}
	provider := s.provider
	s.providerMutex.RUnlock()

	resp, err := provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		Temperature:  0.7,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func (s *LLMService) generateCacheKey(prompt, systemPrompt string) string {
	hash := md5.Sum([]byte(prompt + "||" + systemPrompt))
	return hex.EncodeToString(hash[:])
}

func (c *LLMCache) restore(key string, outputSchema interface{}) bool {
	c.mutex.RLock()
	entry, exists := c.entries[key]
	c.mutex.RUnlock()

	if !exists || time.Since(entry.timestamp) > c.expiration {
		return false
	}
	return json.Unmarshal(entry.data, outputSchema) == nil
}

func (c *LLMCache) store(key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// 超过容量时淘汰最旧的条目
	if len(c.entries) >= c.maxSize {
		var oldestKey string
		var oldestTime time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.timestamp.Before(oldestTime) {
				oldestKey = k
				oldestTime = e.timestamp
			}
		}
		delete(c.entries, oldestKey)
	}

	c.entries[key] = &llmCacheEntry{data: data, timestamp: time.Now()}
}

// 清理JSON字符串噪音：markdown围栏、BOM、不可见空白
var jsonNoiseReplacer = strings.NewReplacer(
	"```json", "",
	"```", "",
	"\uFEFF", "",
	" ", " ",
	" ", "\n",
	" ", "\n",
)

// CleanLLMJSONResponse 去除模型响应前后的非JSON内容
func CleanLLMJSONResponse(raw string) string {
	cleaned := strings.TrimSpace(jsonNoiseReplacer.Replace(raw))

	// 截取首个 { 或 [ 到与之配对的结尾
	start := strings.IndexAny(cleaned, "{[")
	if start < 0 {
		return cleaned
	}
	end := strings.LastIndexAny(cleaned, "}]")
	if end < start {
		return cleaned
	}
	return cleaned[start : end+1]
}
