// internal/media/client.go
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Client 通过Vertex AI REST接口调用图片/视频生成模型
// 视频走predictLongRunning + 轮询，图片走同步predict
type Client struct {
	ProjectID     string
	Location      string
	ImageModelID  string
	VideoModelID  string
	VisionModelID string

	tokenSource oauth2.TokenSource
	httpClient  *http.Client
	pollEvery   time.Duration
}

// Config 媒体客户端配置
type Config struct {
	ProjectID     string
	Location      string
	ImageModelID  string
	VideoModelID  string
	VisionModelID string
}

// NewClient 创建媒体客户端，凭证走标准Google默认凭证链
// （gcloud auth login和服务账号密钥都可用）
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ProjectID == "" || cfg.Location == "" {
		return nil, fmt.Errorf("媒体客户端缺少配置: 需要ProjectID和Location")
	}

	creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("获取Google凭证失败: %w", err)
	}

	c := &Client{
		ProjectID:     cfg.ProjectID,
		Location:      cfg.Location,
		ImageModelID:  cfg.ImageModelID,
		VideoModelID:  cfg.VideoModelID,
		VisionModelID: cfg.VisionModelID,
		tokenSource:   creds.TokenSource,
		httpClient:    &http.Client{Timeout: 120 * time.Second},
		pollEvery:     5 * time.Second,
	}
	if c.ImageModelID == "" {
		c.ImageModelID = "imagen-3.0-generate-002"
	}
	if c.VideoModelID == "" {
		c.VideoModelID = "veo-3.1-generate-preview"
	}
	if c.VisionModelID == "" {
		c.VisionModelID = "gemini-2.0-flash-001"
	}
	return c, nil
}

func (c *Client) endpoint(modelID, verb string) string {
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:%s",
		c.Location, c.ProjectID, c.Location, modelID, verb)
}

func (c *Client) post(ctx context.Context, url string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return err
	}

	token, err := c.tokenSource.Token()
	if err != nil {
		return fmt.Errorf("获取访问令牌失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Vertex API错误(%d): %s", resp.StatusCode, string(respBody))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// GenerateImage 同步生成一张图片，返回base64数据URI
func (c *Client) GenerateImage(ctx context.Context, prompt, quality string) (string, error) {
	payload := map[string]interface{}{
		"instances": []map[string]interface{}{
			{"prompt": prompt},
		},
		"parameters": map[string]interface{}{
			"sampleCount":  1,
			"aspectRatio":  "16:9",
			"sampleImageSize": imageSizeForQuality(quality),
		},
	}

	var response struct {
		Predictions []struct {
			BytesBase64Encoded string `json:"bytesBase64Encoded"`
			MimeType           string `json:"mimeType"`
		} `json:"predictions"`
	}

	if err := c.post(ctx, c.endpoint(c.ImageModelID, "predict"), payload, &response); err != nil {
		return "", err
	}
	if len(response.Predictions) == 0 || response.Predictions[0].BytesBase64Encoded == "" {
		return "", fmt.Errorf("图像服务没有返回任何图片")
	}

	p := response.Predictions[0]
	mime := p.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, p.BytesBase64Encoded), nil
}

// EditImage 以原图+指令为输入生成修改后的图片
func (c *Client) EditImage(ctx context.Context, imageRef, instruction string) (string, error) {
	payload := map[string]interface{}{
		"instances": []map[string]interface{}{
			{
				"prompt": instruction,
				"image":  map[string]string{"bytesBase64Encoded": stripDataURI(imageRef)},
			},
		},
		"parameters": map[string]interface{}{
			"sampleCount": 1,
		},
	}

	var response struct {
		Predictions []struct {
			BytesBase64Encoded string `json:"bytesBase64Encoded"`
			MimeType           string `json:"mimeType"`
		} `json:"predictions"`
	}

	if err := c.post(ctx, c.endpoint(c.ImageModelID, "predict"), payload, &response); err != nil {
		return "", err
	}
	if len(response.Predictions) == 0 || response.Predictions[0].BytesBase64Encoded == "" {
		return "", fmt.Errorf("编辑服务没有返回新图片")
	}

	p := response.Predictions[0]
	mime := p.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, p.BytesBase64Encoded), nil
}

// GenerateVideo 发起长时间运行的视频生成任务并轮询到完成
// onProgress可为nil；轮询期间按保守估算上报进度
func (c *Client) GenerateVideo(ctx context.Context, prompt, quality string, onProgress func(progress int, message string)) (string, error) {
	payload := map[string]interface{}{
		"instances": []map[string]interface{}{
			{"prompt": prompt},
		},
		"parameters": map[string]interface{}{
			"aspectRatio":      "16:9",
			"durationSeconds":  8,
			"personGeneration": "allow_all",
		},
	}

	var operation struct {
		Name string `json:"name"`
	}
	if err := c.post(ctx, c.endpoint(c.VideoModelID, "predictLongRunning"), payload, &operation); err != nil {
		return "", err
	}
	if operation.Name == "" {
		return "", fmt.Errorf("视频服务没有返回操作ID")
	}

	return c.pollOperation(ctx, operation.Name, onProgress)
}

// pollOperation 轮询长时间运行操作直到done
func (c *Client) pollOperation(ctx context.Context, operationName string, onProgress func(progress int, message string)) (string, error) {
	url := fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/%s:fetchPredictOperation", c.Location, operationName)

	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	// done之前没有真实进度，按轮询次数估算并封顶在95
	estimated := 0

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		var poll struct {
			Done     bool `json:"done"`
			Response struct {
				Videos []struct {
					URI      string `json:"gcsUri"`
					MimeType string `json:"mimeType"`
				} `json:"videos"`
			} `json:"response"`
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}

		if err := c.post(ctx, url, map[string]string{"operationName": operationName}, &poll); err != nil {
			return "", err
		}

		if poll.Done {
			if poll.Error.Message != "" {
				return "", fmt.Errorf("视频生成失败: %s", poll.Error.Message)
			}
			if len(poll.Response.Videos) == 0 {
				return "", fmt.Errorf("操作完成但没有返回视频")
			}
			if onProgress != nil {
				onProgress(100, "视频生成完成")
			}
			return poll.Response.Videos[0].URI, nil
		}

		if estimated < 95 {
			estimated += 5
		}
		if onProgress != nil {
			onProgress(estimated, "视频生成中")
		}
	}
}

// DescribeImageStyle 用多模态模型提取参考图的视觉风格描述
func (c *Client) DescribeImageStyle(ctx context.Context, imageData, mime string) (string, error) {
	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role": "user",
				"parts": []map[string]interface{}{
					{"inlineData": map[string]string{
						"mimeType": mime,
						"data":     stripDataURI(imageData),
					}},
					{"text": "Describe the visual style of this image in one dense sentence usable as an image-generation style prompt: palette, lighting, medium, era, mood."},
				},
			},
		},
	}

	var response struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := c.post(ctx, c.endpoint(c.VisionModelID, "generateContent"), payload, &response); err != nil {
		return "", err
	}
	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("风格分析没有返回结果")
	}
	return response.Candidates[0].Content.Parts[0].Text, nil
}

func imageSizeForQuality(quality string) string {
	switch quality {
	case "high":
		return "2K"
	case "low":
		return "1K"
	default:
		return "1K"
	}
}

// 去掉数据URI前缀，只留base64负载
func stripDataURI(ref string) string {
	const marker = ";base64,"
	if idx := strings.Index(ref, marker); idx >= 0 {
		return ref[idx+len(marker):]
	}
	return ref
}
