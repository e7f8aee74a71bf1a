package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Log          LogConfig          `mapstructure:"log"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Knowledge    KnowledgeConfig    `mapstructure:"knowledge"`
	AutoResponse AutoResponseConfig `mapstructure:"auto_response"`
	Billing      BillingConfig      `mapstructure:"billing"`
	Profile      ProfileConfig      `mapstructure:"profile"`
}

// ServerConfig HTTP/WebSocket 服务配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // local, production
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres, memory
	DSN  string `mapstructure:"dsn"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig 身份适配配置
// 核心不签发凭证; static_tokens 仅用于本地开发与测试
type AuthConfig struct {
	Mode         string                 `mapstructure:"mode"` // static, remote
	Endpoint     string                 `mapstructure:"endpoint"`
	StaticTokens map[string]StaticActor `mapstructure:"static_tokens"` // token → actor
}

// StaticActor 静态令牌映射的参与者
type StaticActor struct {
	ActorID   string `mapstructure:"actor_id"`
	ActorType string `mapstructure:"actor_type"` // USER, BUSINESS
}

// KnowledgeConfig 知识检索配置
type KnowledgeConfig struct {
	Embedder     EmbedderConfig `mapstructure:"embedder"`
	TopK         int            `mapstructure:"top_k"`
	MinScore     float32        `mapstructure:"min_score"`
	SyncInterval time.Duration  `mapstructure:"sync_interval"` // 自动同步兜底节奏
}

// EmbedderConfig 嵌入向量提供者配置
type EmbedderConfig struct {
	Provider  string `mapstructure:"provider"` // ollama, local
	OllamaURL string `mapstructure:"ollama_url"`
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"` // provider=local 时的固定维度
}

// AutoResponseConfig 自动应答运行参数
type AutoResponseConfig struct {
	RetrievalTimeout time.Duration `mapstructure:"retrieval_timeout"`
	FallbackTemplate string        `mapstructure:"fallback_template"`
}

// BillingConfig 订阅校验配置
type BillingConfig struct {
	Mode     string `mapstructure:"mode"` // allow_all, remote
	Endpoint string `mapstructure:"endpoint"`
}

// ProfileConfig 商家资料源配置
type ProfileConfig struct {
	Mode     string `mapstructure:"mode"` // static, remote
	Endpoint string `mapstructure:"endpoint"`
}

// Load 加载配置
// 优先级 (低 → 高): 默认值 → 本地 config.yaml → 环境变量
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v.SetConfigFile(localPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			break
		}
	}

	v.SetEnvPrefix("CHATCORE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8480)
	v.SetDefault("server.mode", "local")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "chatcore.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("auth.mode", "static")

	v.SetDefault("knowledge.embedder.provider", "local")
	v.SetDefault("knowledge.embedder.ollama_url", "http://localhost:11434")
	v.SetDefault("knowledge.embedder.model", "qwen3-embedding")
	v.SetDefault("knowledge.embedder.dimension", 256)
	v.SetDefault("knowledge.top_k", 4)
	v.SetDefault("knowledge.min_score", 0.35)
	v.SetDefault("knowledge.sync_interval", 6*time.Hour)

	v.SetDefault("auto_response.retrieval_timeout", 5*time.Second)

	v.SetDefault("billing.mode", "allow_all")
	v.SetDefault("profile.mode", "static")
}
