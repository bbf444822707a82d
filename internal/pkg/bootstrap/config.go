// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// NegotiationConfig 是议价引擎的全部业务参数。
// 百分比字段均相对于商品原价（base price）。
type NegotiationConfig struct {
	CostRatio            float64 `yaml:"cost_ratio"`              // 原价中假定的成本占比，例如 0.65
	MinimumMarginPct     float64 `yaml:"minimum_margin_pct"`      // 最低利润率，决定利润底线
	TargetMarginPct      float64 `yaml:"target_margin_pct"`       // 期望利润率
	MaxDiscountPct       float64 `yaml:"max_discount_pct"`        // 允许的最大折扣
	MinDiscountPct       float64 `yaml:"min_discount_pct"`        // 允许的最小折扣
	SweetSpotDiscountPct float64 `yaml:"sweet_spot_discount_pct"` // 甜点价折扣，达到即直接成交
	RoundCap             int     `yaml:"round_cap"`               // 每个会话允许的议价轮数
	RoundingStep         float64 `yaml:"rounding_step"`           // 还价金额的货币粒度，向上取整
	ExhaustionPolicy     string  `yaml:"exhaustion_policy"`       // 轮数用尽且低于底线时: reject | accept_last
	PolicyRule           string  `yaml:"policy_rule"`             // CEL 表达式，决定商品是否可议价；为空表示全部可议价

	DiscountTTL time.Duration `yaml:"discount_ttl"` // 折扣凭证的有效期
	IdleTimeout time.Duration `yaml:"idle_timeout"` // 会话闲置多久后视为过期
}

// WebhookPlatformConfig 是单个外部平台的 Webhook 配置。
type WebhookPlatformConfig struct {
	Secret string `yaml:"secret"` // 为空时跳过签名校验（仅限开发环境）
}

// WebhookConfig 汇总了所有外部平台的 Webhook 配置。
type WebhookConfig struct {
	Platforms map[string]WebhookPlatformConfig `yaml:"platforms"`
	DedupTTL  time.Duration                    `yaml:"dedup_ttl"`
}

// Config 是整个进程的配置树，形态上分为业务（App）与基础设施（Infra）两部分。
type Config struct {
	App struct {
		Negotiation NegotiationConfig `yaml:"negotiation"`
		Webhook     WebhookConfig     `yaml:"webhook"`
	} `yaml:"app"`

	Infra struct {
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers          []string `yaml:"brokers"`
			NegotiationTopic string   `yaml:"negotiation_topic"`
		} `yaml:"kafka"`
		Zookeeper struct {
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Nacos struct {
			ServerAddrs string `yaml:"server_addrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
		Notification struct {
			URL string `yaml:"url"`
		} `yaml:"notification"`
	} `yaml:"infra"`
}

var currentConfig atomic.Pointer[Config]

// DefaultConfig 返回一份可以直接在本地跑起来的配置。
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.App.Negotiation = NegotiationConfig{
		CostRatio:            0.65,
		MinimumMarginPct:     15,
		TargetMarginPct:      25,
		MaxDiscountPct:       10,
		MinDiscountPct:       2,
		SweetSpotDiscountPct: 8,
		RoundCap:             4,
		RoundingStep:         1,
		ExhaustionPolicy:     "reject",
		DiscountTTL:          24 * time.Hour,
		IdleTimeout:          30 * time.Minute,
	}
	cfg.App.Webhook.DedupTTL = 24 * time.Hour

	cfg.Infra.Mysql.DSN = getEnv("MYSQL_DSN", "root:root@tcp(127.0.0.1:3306)/haggle?parseTime=true&loc=Local")
	cfg.Infra.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Infra.Kafka.Brokers = []string{getEnv("KAFKA_BROKER", "localhost:9092")}
	cfg.Infra.Kafka.NegotiationTopic = "negotiation-events"
	cfg.Infra.Zookeeper.Servers = []string{getEnv("ZK_SERVER", "localhost:2181")}
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces")
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", "")
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", "")
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", "DEFAULT_GROUP")
	cfg.Infra.Notification.URL = getEnv("NOTIFICATION_URL", "")

	// Webhook 密钥只从环境变量读取，避免写进配置文件
	cfg.App.Webhook.Platforms = map[string]WebhookPlatformConfig{
		"shopify":     {Secret: os.Getenv("SHOPIFY_WEBHOOK_SECRET")},
		"woocommerce": {Secret: os.Getenv("WOOCOMMERCE_WEBHOOK_SECRET")},
	}

	return cfg
}

// LoadConfig 先取默认值，再用 CONFIG_PATH 指向的 YAML 覆盖。
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	currentConfig.Store(cfg)
	return cfg, nil
}

// GetCurrentConfig 返回当前生效的配置。必须在 LoadConfig 之后调用。
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	cfg := DefaultConfig()
	currentConfig.Store(cfg)
	return cfg
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
