package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       Server
	Database     Database
	Redis        Redis
	JWT          JWT
	Notification Notification
}

type Server struct {
	Addr        string
	Environment string
}

type Database struct {
	DSN string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type JWT struct {
	Secret    string
	ExpiresIn time.Duration
}

type Notification struct {
	// TTL is how long a notification stays queryable before it expires.
	TTL time.Duration
	// SweepInterval is how often expired rows are physically removed.
	SweepInterval time.Duration
}

// Load reads config.yaml (optional) and merges environment variables on top.
// Env keys use underscores: SERVER_ADDR, DATABASE_DSN, JWT_SECRET, ...
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.expiresin", 24*time.Hour)
	v.SetDefault("notification.ttl", 30*24*time.Hour)
	v.SetDefault("notification.sweepinterval", time.Hour)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No file is fine: everything can come from the environment.
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not cooperate with Unmarshal unless keys are bound.
	for _, key := range []string{
		"server.addr", "server.environment",
		"database.dsn",
		"redis.addr", "redis.password", "redis.db",
		"jwt.secret", "jwt.expiresin",
		"notification.ttl", "notification.sweepinterval",
	} {
		_ = v.BindEnv(key)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
