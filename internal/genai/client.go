package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://ark.cn-beijing.volces.com"

// 1x1 PNG pixel base64
const mockPixel = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR4nGNgYAAAAAMAASsJTYQAAAAASUVORK5CYII="

// Client 方舟图片生成接口的客户端
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Mock       bool
	key        func(ctx context.Context) string
}

// NewClient 创建客户端，key 在每次调用时解析凭证
func NewClient(baseURL string, mock bool, key func(ctx context.Context) string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Mock:       mock,
		key:        key,
	}
}

// ImageGenParams 图片生成参数
type ImageGenParams struct {
	Model       string
	Prompt      string
	Size        string
	ImageInputs []string // 参考图，URL 或 data URI
}

// GenerateImage 生成单张图片，返回 data URI
func (c *Client) GenerateImage(ctx context.Context, p ImageGenParams) (string, error) {
	if c.Mock {
		return "data:image/png;base64," + mockPixel, nil
	}
	if p.Size == "" {
		p.Size = "1024x1024"
	}
	body := map[string]any{
		"model":  p.Model,
		"prompt": p.Prompt,
		"size":   p.Size,
	}
	if len(p.ImageInputs) > 0 {
		body["image"] = p.ImageInputs
	}

	var resp struct {
		Data []struct {
			URL    string `json:"url"`
			B64    string `json:"b64_json"`
			Format string `json:"format"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, "/api/v3/images/generations", body, &resp); err != nil {
		return "", err
	}
	for _, d := range resp.Data {
		if d.B64 != "" {
			format := d.Format
			if format == "" {
				format = "png"
			}
			return "data:image/" + format + ";base64," + d.B64, nil
		}
		if d.URL != "" {
			return d.URL, nil
		}
	}
	return "", errors.New("no images returned")
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(string(b)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.key(ctx))
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", res.StatusCode, string(bodyBytes))
	}
	return json.Unmarshal(bodyBytes, out)
}
