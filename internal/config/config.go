package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config 服务配置，全部来自环境变量
type Config struct {
	Addr       string `envconfig:"ADDR" default:":8080"`
	DBPath     string `envconfig:"DB_PATH" default:"storylist.db"`
	ArkBaseURL string `envconfig:"ARK_BASE_URL" default:"https://ark.cn-beijing.volces.com"`
	ArkAPIKey  string `envconfig:"ARK_API_KEY"`
	ChatModel  string `envconfig:"ARK_CHAT_MODEL" default:"ep-20250220181854-c8s82"`
	ImageModel string `envconfig:"ARK_IMAGE_MODEL" default:"doubao-seedream-4.0"`
	Mock       bool   `envconfig:"ARK_MOCK" default:"false"`
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}
