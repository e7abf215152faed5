package config

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/guard"
)

var (
	cfg       *Config
	mu        sync.RWMutex
	reloadFns []func(*Config)
)

// Config represents the application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Guard     guard.Settings  `mapstructure:"guard"`
	Retention RetentionConfig `mapstructure:"retention"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Env     string `mapstructure:"env"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	OpTimeout    time.Duration `mapstructure:"op_timeout"`
}

type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	BcryptCost  int           `mapstructure:"bcrypt_cost"`
	CookieName  string        `mapstructure:"cookie_name"`
	SecureCooky bool          `mapstructure:"secure_cookie"`
}

type RetentionConfig struct {
	AttemptMaxAge time.Duration `mapstructure:"attempt_max_age"`
	Schedule      string        `mapstructure:"schedule"`
}

// Load reads configuration from the given file plus FLEETGRID_* environment
// overrides, and keeps watching the file for changes.
func Load(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FLEETGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	loaded, err := unmarshal(v)
	if err != nil {
		return err
	}

	mu.Lock()
	cfg = loaded
	mu.Unlock()

	v.OnConfigChange(func(e fsnotify.Event) {
		reloaded, err := unmarshal(v)
		if err != nil {
			log.Printf("[CONFIG] reload failed after %s changed: %v", e.Name, err)
			return
		}
		mu.Lock()
		cfg = reloaded
		fns := make([]func(*Config), len(reloadFns))
		copy(fns, reloadFns)
		mu.Unlock()
		log.Printf("[CONFIG] reloaded from %s", e.Name)
		for _, fn := range fns {
			fn(reloaded)
		}
	})
	v.WatchConfig()

	return nil
}

// OnReload registers a callback invoked with the new configuration after
// every successful file-watch reload. Components holding their own copy of a
// section (the guard in particular) subscribe here so a file edit actually
// reaches them.
func OnReload(fn func(*Config)) {
	mu.Lock()
	reloadFns = append(reloadFns, fn)
	mu.Unlock()
}

// Get returns the loaded configuration, or defaults when no file was loaded.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if cfg == nil {
		return defaultConfig()
	}
	return cfg
}

func unmarshal(v *viper.Viper) (*Config, error) {
	// Start from defaults so a config file that omits a section (the guard
	// block in particular) keeps its documented default values.
	c := defaultConfig()
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	d := defaultConfig()
	v.SetDefault("app.name", d.App.Name)
	v.SetDefault("app.env", d.App.Env)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.name", d.Database.Name)
	v.SetDefault("database.ssl_mode", d.Database.SSLMode)
	// Credentials default to empty so AutomaticEnv can bind FLEETGRID_*
	// overrides for them; viper only consults the environment for keys it
	// already knows about.
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("redis.host", d.Redis.Host)
	v.SetDefault("redis.port", d.Redis.Port)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)
	v.SetDefault("redis.op_timeout", d.Redis.OpTimeout)
	v.SetDefault("auth.jwt_issuer", d.Auth.JWTIssuer)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("auth.bcrypt_cost", d.Auth.BcryptCost)
	v.SetDefault("auth.cookie_name", d.Auth.CookieName)
	v.SetDefault("retention.attempt_max_age", d.Retention.AttemptMaxAge)
	v.SetDefault("retention.schedule", d.Retention.Schedule)
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name: "fleetgrid",
			Env:  "development",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       "postgres",
			Host:         "localhost",
			Port:         5432,
			Name:         "fleetgrid",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			KeyPrefix: "fleetgrid:",
			OpTimeout: 250 * time.Millisecond,
		},
		Auth: AuthConfig{
			JWTIssuer:  "fleetgrid",
			TokenTTL:   12 * time.Hour,
			BcryptCost: 12,
			CookieName: "fleetgrid_token",
		},
		Guard: guard.DefaultSettings(),
		Retention: RetentionConfig{
			AttemptMaxAge: 90 * 24 * time.Hour,
			Schedule:      "0 0 3 * * *",
		},
	}
}
