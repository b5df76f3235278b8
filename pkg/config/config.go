package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port             string `envconfig:"PORT" default:"8080"`
	AWSRegion        string `envconfig:"AWS_REGION" default:"ap-northeast-2"`
	OrderTableName   string `envconfig:"ORDER_TABLE_NAME" default:"orders"`
	DynamoDBEndpoint string `envconfig:"DYNAMODB_ENDPOINT" default:""` // DynamoDB Local
	LogLevel         string `envconfig:"LOG_LEVEL" default:"info"`

	KafkaBrokers    string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	RealtimeTopic   string `envconfig:"REALTIME_TOPIC" default:"order-updates"`
	DeadLetterTopic string `envconfig:"DEAD_LETTER_TOPIC" default:"order-dead-letter"`

	PaymentWebhookSecret  string `envconfig:"PAYMENT_WEBHOOK_SECRET" required:"true"`
	TrackingWebhookSecret string `envconfig:"TRACKING_WEBHOOK_SECRET" required:"true"`

	EmailEndpoint string `envconfig:"EMAIL_ENDPOINT" default:""`
	EmailAPIKey   string `envconfig:"EMAIL_API_KEY" default:""`
	SMSEndpoint   string `envconfig:"SMS_ENDPOINT" default:""`
	SMSAPIKey     string `envconfig:"SMS_API_KEY" default:""`

	ShippingEndpoint string `envconfig:"SHIPPING_ENDPOINT" default:""`
	ShippingAPIKey   string `envconfig:"SHIPPING_API_KEY" default:""`

	NotifyTimeout time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"5s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
