package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	FreightBox FreightBoxConfig `yaml:"freightbox"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	NotificationsTopicName string `yaml:"notifications_topic_name"`
	ProgressTopicName      string `yaml:"progress_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AuthConfig struct {
	// HS256 secret shared with the identity provider that issues access tokens.
	AccessSecret string `yaml:"access_secret"`
}

type FreightBoxConfig struct {
	HTTPAddr               string `yaml:"http_addr"`
	KafkaConsumerGroup     string `yaml:"kafka_consumer_group"`
	TrackingViewTTLSeconds int    `yaml:"tracking_view_ttl_seconds"`
	BidRateLimitPerMinute  int    `yaml:"bid_rate_limit_per_minute"`
	RejectLosingBids       bool   `yaml:"reject_losing_bids"`
	SweepBatchSize         int    `yaml:"sweep_batch_size"`

	WorkerHTTPAddr             string `yaml:"worker_http_addr"`
	WorkerSweepIntervalSeconds int    `yaml:"worker_sweep_interval_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

// PostgresConnString builds a pgx connection string, defaulting ssl_mode to "disable".
func (c *Config) PostgresConnString() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.DBName, sslMode)
}

func (c *Config) KafkaBrokers() []string {
	return []string{fmt.Sprintf("%s:%d", c.Kafka.Host, c.Kafka.Port)}
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
