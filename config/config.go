package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultWebhookURL is the production workflow webhook used when nothing else is configured.
const DefaultWebhookURL = "https://mogeeb.shop/webhook/d581640e-383a-4eb1-bbb6-a8ac9be9ad40"

// WebhookEnvCandidates lists the environment variables consulted for the
// webhook URL, highest priority first.
var WebhookEnvCandidates = []string{"N8N_WEBHOOK_URL", "WEBHOOK_URL", "N8N_WEBHOOK"}

type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Webhook  WebhookConfig  `mapstructure:"webhook" yaml:"webhook"`
	Relay    RelayConfig    `mapstructure:"relay" yaml:"relay"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	RocketMQ RocketMQConfig `mapstructure:"rocketmq" yaml:"rocketmq"`
	Consul   ConsulConfig   `mapstructure:"consul" yaml:"consul"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	CORS     CORSConfig     `mapstructure:"cors" yaml:"cors"`
}

type ServerConfig struct {
	Name            string        `mapstructure:"name" yaml:"name"`
	Version         string        `mapstructure:"version" yaml:"version"`
	Environment     string        `mapstructure:"environment" yaml:"environment"`
	Port            int           `mapstructure:"port" yaml:"port"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type WebhookConfig struct {
	URL       string `mapstructure:"url" yaml:"url"`
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
}

type RelayConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	Backoff      time.Duration `mapstructure:"backoff" yaml:"backoff"`
	TwoPhase     bool          `mapstructure:"two_phase" yaml:"two_phase"`
	WaitCeiling  time.Duration `mapstructure:"wait_ceiling" yaml:"wait_ceiling"`
	Fallback     string        `mapstructure:"fallback" yaml:"fallback"`
	StatusPolicy string        `mapstructure:"status_policy" yaml:"status_policy"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
	PendingTTL   time.Duration `mapstructure:"pending_ttl" yaml:"pending_ttl"`
	Workers      int           `mapstructure:"workers" yaml:"workers"`
	QueueSize    int           `mapstructure:"queue_size" yaml:"queue_size"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Address      string        `mapstructure:"address" yaml:"address"`
	Port         int           `mapstructure:"port" yaml:"port"`
	Password     string        `mapstructure:"password" yaml:"password"`
	Database     int           `mapstructure:"database" yaml:"database"`
	Prefix       string        `mapstructure:"prefix" yaml:"prefix"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`
	RateLimitQPS int           `mapstructure:"rate_limit_qps" yaml:"rate_limit_qps"`
}

type RocketMQConfig struct {
	NameServers   []string `mapstructure:"name_servers" yaml:"name_servers"`
	MaxRetries    int      `mapstructure:"max_retries" yaml:"max_retries"`
	GroupName     string   `mapstructure:"group_name" yaml:"group_name"`
	ConsumerGroup string   `mapstructure:"consumer_group" yaml:"consumer_group"`
	Topic         string   `mapstructure:"topic" yaml:"topic"`
}

type ConsulConfig struct {
	Enabled    bool     `mapstructure:"enabled" yaml:"enabled"`
	Address    string   `mapstructure:"address" yaml:"address"`
	Scheme     string   `mapstructure:"scheme" yaml:"scheme"`
	Datacenter string   `mapstructure:"datacenter" yaml:"datacenter"`
	Tags       []string `mapstructure:"tags" yaml:"tags"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type CORSConfig struct {
	AllowOrigin  string `mapstructure:"allow_origin" yaml:"allow_origin"`
	AllowHeaders string `mapstructure:"allow_headers" yaml:"allow_headers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "mogeeb-relay")
	v.SetDefault("server.version", "1.0.0")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.trusted_proxies", []string{"127.0.0.1/32"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.user_agent", "Mogeeb-Website/1.0")

	v.SetDefault("relay.timeout", 25*time.Second)
	v.SetDefault("relay.max_retries", 0)
	v.SetDefault("relay.backoff", time.Second)
	v.SetDefault("relay.two_phase", false)
	v.SetDefault("relay.wait_ceiling", 5*time.Minute)
	v.SetDefault("relay.fallback", "strict")
	v.SetDefault("relay.status_policy", "pinned")
	v.SetDefault("relay.poll_timeout", 5*time.Second)
	v.SetDefault("relay.pending_ttl", 10*time.Minute)
	v.SetDefault("relay.workers", 4)
	v.SetDefault("relay.queue_size", 64)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.prefix", "mogeeb:")
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.rate_limit_qps", 5)

	v.SetDefault("rocketmq.name_servers", []string{})
	v.SetDefault("rocketmq.max_retries", 2)
	v.SetDefault("rocketmq.group_name", "relay_producer_group")
	v.SetDefault("rocketmq.consumer_group", "relay_consumer_group")
	v.SetDefault("rocketmq.topic", "chat_relay_topic")

	v.SetDefault("consul.enabled", false)
	v.SetDefault("consul.address", "localhost:8500")
	v.SetDefault("consul.scheme", "http")
	v.SetDefault("consul.datacenter", "dc1")
	v.SetDefault("consul.tags", []string{"relay", "chat"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("log.compress", true)

	v.SetDefault("cors.allow_origin", "*")
	v.SetDefault("cors.allow_headers", "Content-Type, Authorization")
}

// LoadConfig reads config.yml from dir (when present), overlays environment
// variables (server.port -> SERVER_PORT) and fills every key with a default.
// A missing config file is not an error.
func LoadConfig(dir string) (*AppConfig, error) {
	var cfg AppConfig

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return &cfg, err
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return &cfg, err
	}

	cfg.Webhook.URL = ResolveWebhookURL(cfg.Webhook.URL, os.LookupEnv)
	return &cfg, nil
}

// ResolveWebhookURL picks the webhook target: the first non-empty env
// candidate, then the configured value, then DefaultWebhookURL.
func ResolveWebhookURL(configured string, lookup func(string) (string, bool)) string {
	for _, name := range WebhookEnvCandidates {
		if val, ok := lookup(name); ok && strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	if strings.TrimSpace(configured) != "" {
		return strings.TrimSpace(configured)
	}
	return DefaultWebhookURL
}
