// internal/pkg/config/config.go
package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 聚合了所有服务共享的基础设施地址和业务参数。
// 来源优先级：环境变量 > yaml 配置文件 > 默认值。
type Config struct {
	Infra struct {
		MysqlDSN       string `yaml:"mysqlDSN"`
		KafkaBrokers   string `yaml:"kafkaBrokers"`
		RedisAddrs     string `yaml:"redisAddrs"`
		ZookeeperAddrs string `yaml:"zookeeperAddrs"`
		JaegerEndpoint string `yaml:"jaegerEndpoint"`
		Nacos          struct {
			ServerAddrs string `yaml:"serverAddrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
	} `yaml:"infra"`

	Order struct {
		// MaxRetries 是订单处理失败后允许的最大自动重试次数，超过即置为 FAILED。
		MaxRetries int `yaml:"maxRetries"`
		// ProcessingTimeout 是单个订单 Saga 的整体超时。
		ProcessingTimeout time.Duration `yaml:"processingTimeout"`
		// ReserveCallTimeout 是单次库存 RPC 的超时，超时视同依赖不可用。
		ReserveCallTimeout time.Duration `yaml:"reserveCallTimeout"`
	} `yaml:"order"`

	Inventory struct {
		// LockWait 是获取单 SKU 互斥锁的最长等待时间，超过即失败而不是死等。
		LockWait time.Duration `yaml:"lockWait"`
		// VersionRetries 是乐观锁冲突的内部重试次数。
		VersionRetries int `yaml:"versionRetries"`
		// VersionRetryDelay 是首次冲突重试的退避，之后逐次翻倍。
		VersionRetryDelay time.Duration `yaml:"versionRetryDelay"`
	} `yaml:"inventory"`
}

var (
	current *Config
	once    sync.Once
)

// Load 读取配置。路径来自 CONFIG_FILE 环境变量，文件不存在时使用默认值，
// 关键地址仍可被环境变量覆盖，保持与容器编排的约定一致。
func Load() *Config {
	once.Do(func() {
		cfg := defaults()
		if path := os.Getenv("CONFIG_FILE"); path != "" {
			if data, err := os.ReadFile(path); err == nil {
				// 配置文件解析失败直接沿用默认值，由启动日志暴露问题
				_ = yaml.Unmarshal(data, cfg)
			}
		}
		applyEnvOverrides(cfg)
		current = cfg
	})
	return current
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Infra.MysqlDSN = "oms:oms@tcp(localhost:3306)/oms?charset=utf8mb4&parseTime=True&loc=UTC"
	cfg.Infra.KafkaBrokers = "localhost:9092"
	cfg.Infra.RedisAddrs = "localhost:6379"
	cfg.Infra.ZookeeperAddrs = "localhost:2181"
	cfg.Infra.JaegerEndpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Nacos.ServerAddrs = "localhost:8848"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	cfg.Order.MaxRetries = 3
	cfg.Order.ProcessingTimeout = 30 * time.Second
	cfg.Order.ReserveCallTimeout = 5 * time.Second
	cfg.Inventory.LockWait = 3 * time.Second
	cfg.Inventory.VersionRetries = 3
	cfg.Inventory.VersionRetryDelay = 100 * time.Millisecond
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	cfg.Infra.MysqlDSN = getEnv("MYSQL_DSN", cfg.Infra.MysqlDSN)
	cfg.Infra.KafkaBrokers = getEnv("KAFKA_BROKERS", cfg.Infra.KafkaBrokers)
	cfg.Infra.RedisAddrs = getEnv("REDIS_ADDRS", cfg.Infra.RedisAddrs)
	cfg.Infra.ZookeeperAddrs = getEnv("ZOOKEEPER_ADDRS", cfg.Infra.ZookeeperAddrs)
	cfg.Infra.JaegerEndpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.JaegerEndpoint)
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
