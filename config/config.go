package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	OrderHub OrderHubConfig `yaml:"orderhub"`
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
	Host                    string `yaml:"host"`
	Port                    int    `yaml:"port"`
	OrderStatusTopicName    string `yaml:"order_status_topic_name"`
	PaymentCapturedTopic    string `yaml:"payment_captured_topic_name"`
	PaymentFailedTopic      string `yaml:"payment_failed_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type OrderHubConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	// Канал: окно heartbeat и размер исходящего буфера соединения.
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
	SendBuffer       int `yaml:"send_buffer"`

	// Лимит входящих location-обновлений: штук на курьера за окно в секундах.
	LocationRateLimit         int `yaml:"location_rate_limit"`
	LocationRateWindowSeconds int `yaml:"location_rate_window_seconds"`

	// Переопределение TTL кэша заказов, 0 — дефолтный MEDIUM tier.
	OrderTTLSeconds int `yaml:"order_ttl_seconds"`

	// Демо-токены канала: token -> "role:id". Выпуск настоящих credential
	// живёт вне этого сервиса.
	ChannelTokens map[string]string `yaml:"channel_tokens"`
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
