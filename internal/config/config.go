package config

import (
	"time"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	Port   string `env:"PORT" envDefault:"8080"`
	AppEnv string `env:"APP_ENV" envDefault:"development"`

	DBDriver               string `env:"DB_DRIVER" envDefault:"mysql"` // mysql or sqlite
	DBUser                 string `env:"DB_USER"`
	DBPassword             string `env:"DB_PASSWORD"`
	DBHost                 string `env:"DB_HOST"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`
	SQLitePath             string `env:"SQLITE_PATH" envDefault:"bookloop.db"`

	AuthProvider      string `env:"AUTH_PROVIDER" envDefault:"firebase"` // firebase or jwt
	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`
	JWTSecret         string `env:"JWT_SECRET"`

	RedisURL           string `env:"REDIS_URL"`
	RedisChannelPrefix string `env:"REDIS_CHANNEL_PREFIX" envDefault:"bookloop"`

	GatewayTimeout   time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"5s"`
	SubscriberBuffer int           `env:"SUBSCRIBER_BUFFER" envDefault:"64"`

	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	CORSAllowSuffix string `env:"CORS_ALLOW_SUFFIX" envDefault:"vercel.app"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
