package config

import (
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"log"
	"os"
	"time"
)

const defaultConfigPath = "config/local.yaml"

type Config struct {
	Env           string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer    HTTPServer    `yaml:"http_server"`
	Database      Database      `yaml:"database"`
	Supplier      Supplier      `yaml:"supplier"`
	Payment       Payment       `yaml:"payment"`
	Notifications Notifications `yaml:"notifications"`
	Reconciler    Reconciler    `yaml:"reconciler"`
	Tracing       Tracing       `yaml:"tracing"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	CORSOrigins []string      `yaml:"cors_origins" env:"HTTP_CORS_ORIGINS" env-separator:","`
}

type Database struct {
	Host     string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"DB_USER" env-default:"postgres"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	DBName   string `yaml:"dbname" env:"DB_NAME" env-default:"travel_booker"`
	SSLMode  string `yaml:"sslmode" env:"DB_SSLMODE" env-default:"disable"`
}

// DSN returns a lib/pq keyword/value connection string.
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.DBName,
		d.SSLMode,
	)
}

type Supplier struct {
	BaseURL string        `yaml:"base_url" env:"SUPPLIER_BASE_URL" env-default:"https://api.test.hotelbeds.com"`
	APIKey  string        `yaml:"api_key" env:"SUPPLIER_API_KEY"`
	Secret  string        `yaml:"secret" env:"SUPPLIER_SECRET"`
	Timeout time.Duration `yaml:"timeout" env-default:"20s"`
	RPS     float64       `yaml:"rps" env-default:"5"`
	Burst   int           `yaml:"burst" env-default:"5"`
}

type Payment struct {
	BaseURL    string        `yaml:"base_url" env:"PAYMENT_BASE_URL"`
	MerchantID string        `yaml:"merchant_id" env:"PAYMENT_MERCHANT_ID"`
	Secret     string        `yaml:"secret" env:"PAYMENT_SECRET"`
	ReturnURL  string        `yaml:"return_url" env:"PAYMENT_RETURN_URL"`
	Timeout    time.Duration `yaml:"timeout" env-default:"15s"`
}

type Notifications struct {
	SMTP     SMTP     `yaml:"smtp"`
	SMS      SMS      `yaml:"sms"`
	Telegram Telegram `yaml:"telegram"`
}

type SMTP struct {
	Host     string        `yaml:"host" env:"SMTP_HOST"`
	Port     int           `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User     string        `yaml:"user" env:"SMTP_USER"`
	Password string        `yaml:"password" env:"SMTP_PASSWORD"`
	From     string        `yaml:"from" env:"SMTP_FROM"`
	Timeout  time.Duration `yaml:"timeout" env-default:"10s"`
}

type SMS struct {
	BaseURL string        `yaml:"base_url" env:"SMS_BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"SMS_API_KEY"`
	Sender  string        `yaml:"sender" env:"SMS_SENDER"`
	Timeout time.Duration `yaml:"timeout" env-default:"10s"`
}

type Telegram struct {
	Token  string `yaml:"token" env:"TELEGRAM_TOKEN"`
	ChatID int64  `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
}

type Reconciler struct {
	Interval     time.Duration `yaml:"interval" env-default:"1m"`
	IntentGrace  time.Duration `yaml:"intent_grace" env-default:"2m"`
	IntentTTL    time.Duration `yaml:"intent_ttl" env-default:"30m"`
	PaymentGrace time.Duration `yaml:"payment_grace" env-default:"5m"`
	PaymentTTL   time.Duration `yaml:"payment_ttl" env-default:"1h"`
	BatchSize    int           `yaml:"batch_size" env-default:"50"`
}

type Tracing struct {
	JaegerEndpoint string `yaml:"jaeger_endpoint" env:"JAEGER_ENDPOINT"`
	ServiceName    string `yaml:"service_name" env-default:"travel-booker"`
}

func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	return cfg
}

func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	return &cfg, nil
}
