// internal/pkg/config/config.go
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 汇总了订单核心所有可调参数。
// 加载顺序：默认值 -> YAML 文件(CONFIG_FILE) -> 环境变量覆盖。
type Config struct {
	Infra struct {
		MysqlDSN       string   `yaml:"mysql_dsn"`
		RedisAddr      string   `yaml:"redis_addr"`
		KafkaBrokers   []string `yaml:"kafka_brokers"`
		ZookeeperAddrs []string `yaml:"zookeeper_addrs"`
		JaegerEndpoint string   `yaml:"jaeger_endpoint"`
	} `yaml:"infra"`

	Order struct {
		// PaymentWindow 是订单创建后允许支付的时间窗口
		PaymentWindow time.Duration `yaml:"payment_window"`
		// SweepInterval 是兜底扫描的周期，必须远小于 PaymentWindow
		SweepInterval time.Duration `yaml:"sweep_interval"`
		// AutoCompleteAfter 是发货/待收货订单自动确认收货的宽限期
		AutoCompleteAfter time.Duration `yaml:"auto_complete_after"`
		// IdempotencyTTL 决定重复提交在多长时间内被去重
		IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
		// LockTTL 是创建/支付临界区分布式锁的 TTL
		LockTTL time.Duration `yaml:"lock_ttl"`
	} `yaml:"order"`

	Auditor struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"auditor"`

	HTTPPort int `yaml:"http_port"`
}

// Load 读取配置。文件不存在不是错误，使用默认值 + 环境变量。
func Load() (*Config, error) {
	cfg := defaults()

	if path := getEnv("CONFIG_FILE", "config.yaml"); path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// 环境变量覆盖，部署时不依赖配置文件
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Infra.MysqlDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.RedisAddr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ZOOKEEPER_ADDRS"); v != "" {
		cfg.Infra.ZookeeperAddrs = strings.Split(v, ",")
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.JaegerEndpoint = v
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Infra.MysqlDSN = "root:root@tcp(localhost:3306)/shop?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.Infra.RedisAddr = "localhost:6379"
	cfg.Infra.KafkaBrokers = []string{"localhost:9092"}
	cfg.Infra.JaegerEndpoint = "http://localhost:14268/api/traces"
	cfg.Order.PaymentWindow = 10 * time.Minute
	cfg.Order.SweepInterval = time.Minute
	cfg.Order.AutoCompleteAfter = 12 * time.Hour
	cfg.Order.IdempotencyTTL = time.Hour
	cfg.Order.LockTTL = 10 * time.Second
	cfg.Auditor.Interval = 5 * time.Minute
	cfg.HTTPPort = 8080
	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
