package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env-default:"local"`
	Auth       `yaml:"auth"`
	Cache      `yaml:"cache"`
	Reaper     `yaml:"reaper"`
	Postgres   `yaml:"postgres"`
	Redis      `yaml:"redis"`
	RabbitMQ   `yaml:"rabbitmq"`
	Mailer     `yaml:"mailer"`
	HTTPServer `yaml:"http_server"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	PublicURL   string        `yaml:"public_url" env-default:"http://localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Auth struct {
	Secret        string        `yaml:"secret" env:"AUTH_SECRET" env-required:"true"`
	ExpiresIn     time.Duration `yaml:"expires_in" env-default:"24h"`
	ActivationTTL time.Duration `yaml:"activation_ttl" env-default:"5m"`
}

type Cache struct {
	// Backend selects the cache implementation: "redis" or "memory".
	Backend     string        `yaml:"backend" env-default:"redis"`
	IdentityTTL time.Duration `yaml:"identity_ttl" env-default:"30m"`
}

type Reaper struct {
	Interval time.Duration `yaml:"interval" env-default:"24h"`
	Grace    time.Duration `yaml:"grace" env-default:"720h"`
}

type Postgres struct {
	Host     string `yaml:"host" env-default:"postgres"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"password" env-required:"true"`
	DBName   string `yaml:"dbname" env-required:"true"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type Redis struct {
	Address  string `yaml:"address" env-default:"localhost:6379"`
	Password string `yaml:"password" env-default:""`
	DB       int    `yaml:"db" env-default:"0"`
}

type RabbitMQ struct {
	URL       string `yaml:"url" env-required:"true"`
	QueueName string `yaml:"queue_name" env-default:"activation-emails"`
}

type Mailer struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"587"`
	Username string `yaml:"username" env:"MAIL_USER"`
	Password string `yaml:"password" env:"MAIL_PASSWORD"`
}

func MustLoad(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("Config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("Failed to read config: " + err.Error())
	}

	return &cfg
}
