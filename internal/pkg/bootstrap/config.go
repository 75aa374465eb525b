// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 是支持 "5s" / "2m" 形式的 YAML 时长字段。
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// ReplenishRule 是一条补货告警规则，Expression 为 CEL 表达式。
type ReplenishRule struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
}

type Config struct {
	Service struct {
		Name string `yaml:"name"`
		Port int    `yaml:"port"`
	} `yaml:"service"`

	Infra struct {
		MySQL struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			Database string `yaml:"database"`
		} `yaml:"mysql"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers    []string `yaml:"brokers"`
			EventTopic string   `yaml:"event_topic"`
		} `yaml:"kafka"`
		Zookeeper struct {
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Nacos struct {
			Enabled   bool   `yaml:"enabled"`
			Addrs     string `yaml:"addrs"`
			Namespace string `yaml:"namespace"`
			Group     string `yaml:"group"`
		} `yaml:"nacos"`
	} `yaml:"infra"`

	Engine struct {
		// LockMode 选择 SKU 串行化方式: memory | redis | zookeeper
		LockMode string   `yaml:"lock_mode"`
		LockWait Duration `yaml:"lock_wait"`
	} `yaml:"engine"`

	Sweeper struct {
		Interval  Duration `yaml:"interval"`
		BatchSize int      `yaml:"batch_size"`
	} `yaml:"sweeper"`

	Outbox struct {
		Interval  Duration `yaml:"interval"`
		BatchSize int      `yaml:"batch_size"`
	} `yaml:"outbox"`

	Replenish struct {
		Rules []ReplenishRule `yaml:"rules"`
	} `yaml:"replenish"`
}

var currentConfig *Config

// LoadConfig 从 YAML 文件加载配置并应用默认值。
// 路径为空时读取环境变量 CONFIG_PATH，仍为空则使用 configs/config.yaml。
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = getEnv("CONFIG_PATH", "configs/config.yaml")
	}

	conf := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyDefaults(conf)
	applyEnvOverrides(conf)
	currentConfig = conf
	return conf, nil
}

// GetCurrentConfig 返回最近一次加载的配置。
func GetCurrentConfig() *Config {
	return currentConfig
}

func applyDefaults(conf *Config) {
	if conf.Service.Port == 0 {
		conf.Service.Port = 8080
	}
	if conf.Engine.LockMode == "" {
		conf.Engine.LockMode = "memory"
	}
	if conf.Engine.LockWait == 0 {
		conf.Engine.LockWait = Duration(2 * time.Second)
	}
	if conf.Sweeper.Interval == 0 {
		conf.Sweeper.Interval = Duration(5 * time.Second)
	}
	if conf.Sweeper.BatchSize == 0 {
		conf.Sweeper.BatchSize = 100
	}
	if conf.Outbox.Interval == 0 {
		conf.Outbox.Interval = Duration(500 * time.Millisecond)
	}
	if conf.Outbox.BatchSize == 0 {
		conf.Outbox.BatchSize = 50
	}
	if len(conf.Infra.Kafka.Brokers) == 0 {
		conf.Infra.Kafka.Brokers = []string{"localhost:9092"}
	}
	if conf.Infra.Kafka.EventTopic == "" {
		conf.Infra.Kafka.EventTopic = "inventory-events"
	}
	if conf.Infra.Jaeger.Endpoint == "" {
		conf.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	}
}

// applyEnvOverrides 允许容器环境覆盖关键地址。
func applyEnvOverrides(conf *Config) {
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		conf.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("MYSQL_ADDR"); ok {
		conf.Infra.MySQL.Addr = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		conf.Infra.Redis.Addr = v
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		conf.Infra.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("ZK_SERVERS"); ok {
		conf.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
