package main

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"mallify-hub/internal/scheduler"
)

type Config struct {
	App struct {
		Env string `mapstructure:"env"`
	} `mapstructure:"app"`
	Server struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	} `mapstructure:"server"`
	Database struct {
		URL         string        `mapstructure:"url"`
		MaxConns    int           `mapstructure:"max_conns"`
		PingTimeout time.Duration `mapstructure:"ping_timeout"`
	} `mapstructure:"database"`
	Redis struct {
		Addr      string        `mapstructure:"addr"`
		Password  string        `mapstructure:"password"`
		DB        int           `mapstructure:"db"`
		ActiveTTL time.Duration `mapstructure:"active_ttl"`
	} `mapstructure:"redis"`
	AMQP struct {
		URL      string `mapstructure:"url"`
		Exchange string `mapstructure:"exchange"`
	} `mapstructure:"amqp"`
	Log struct {
		Level        string `mapstructure:"level"`
		Encoding     string `mapstructure:"encoding"`
		TailCapacity int    `mapstructure:"tail_capacity"`
	} `mapstructure:"log"`
	Auth struct {
		PublicKey      string `mapstructure:"jwt_public_key"`
		PublicKeyFile  string `mapstructure:"jwt_public_key_file"`
		PrivateKeyFile string `mapstructure:"jwt_private_key_file"`
	} `mapstructure:"auth"`
	Security struct {
		InternalToken     string `mapstructure:"internal_token"`
		InternalTokenFile string `mapstructure:"internal_token_file"`
	} `mapstructure:"security"`
	Scheduler struct {
		SweepEnabled bool   `mapstructure:"sweep_enabled"`
		SweepSpec    string `mapstructure:"sweep_spec"`
	} `mapstructure:"scheduler"`
	RateLimit struct {
		ViewLimit  int           `mapstructure:"view_limit"`
		ViewWindow time.Duration `mapstructure:"view_window"`
	} `mapstructure:"rate_limit"`
	CORS struct {
		AllowOrigins []string `mapstructure:"allow_origins"`
	} `mapstructure:"cors"`
	Debug struct {
		PprofEnabled bool `mapstructure:"pprof_enabled"`
	} `mapstructure:"debug"`
}

// loadConfig reads config.yaml, .env and MALLIFY_* environment variables, then validates the result.
func loadConfig() (Config, error) {
	cfg, err := readConfig()
	if err != nil {
		return Config{}, err
	}
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readConfig() (Config, error) {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/mallify-hub")

	v.SetEnvPrefix("MALLIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", "MALLIFY_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "MALLIFY_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("amqp.url", "MALLIFY_AMQP_URL", "AMQP_URL")

	v.SetDefault("app.env", "development")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.ping_timeout", "3s")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.active_ttl", "15s")
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "mallify.flashsale")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.tail_capacity", 1000)
	v.SetDefault("auth.jwt_public_key", "")
	v.SetDefault("auth.jwt_public_key_file", "")
	v.SetDefault("auth.jwt_private_key_file", "")
	v.SetDefault("security.internal_token", "")
	v.SetDefault("security.internal_token_file", "")
	v.SetDefault("scheduler.sweep_enabled", true)
	v.SetDefault("scheduler.sweep_spec", scheduler.DefaultSweepSpec)
	v.SetDefault("rate_limit.view_limit", 30)
	v.SetDefault("rate_limit.view_window", "1m")
	v.SetDefault("cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("debug.pprof_enabled", false)

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundErr) {
			return Config{}, fmt.Errorf("read config file failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config failed: %w", err)
	}

	if strings.TrimSpace(cfg.Security.InternalToken) == "" && strings.TrimSpace(cfg.Security.InternalTokenFile) != "" {
		// #nosec G304 -- path is provided by operator configuration.
		raw, err := os.ReadFile(strings.TrimSpace(cfg.Security.InternalTokenFile))
		if err != nil {
			return Config{}, fmt.Errorf("read security.internal_token_file failed: %w", err)
		}
		cfg.Security.InternalToken = strings.TrimSpace(string(raw))
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Database.MaxConns <= 0 {
		return errors.New("database.max_conns must be greater than 0")
	}
	if cfg.Database.PingTimeout <= 0 {
		return errors.New("database.ping_timeout must be greater than 0")
	}
	if strings.TrimSpace(cfg.Auth.PublicKey) == "" && strings.TrimSpace(cfg.Auth.PublicKeyFile) == "" {
		return errors.New("auth.jwt_public_key or auth.jwt_public_key_file is required")
	}
	if strings.TrimSpace(cfg.Redis.Addr) != "" && cfg.Redis.ActiveTTL <= 0 {
		return errors.New("redis.active_ttl must be greater than 0")
	}
	if cfg.Scheduler.SweepEnabled {
		if err := scheduler.ValidateSpec(cfg.Scheduler.SweepSpec); err != nil {
			return fmt.Errorf("scheduler.sweep_spec: %w", err)
		}
	}
	if cfg.RateLimit.ViewLimit <= 0 || cfg.RateLimit.ViewWindow <= 0 {
		return errors.New("rate_limit.view_limit and rate_limit.view_window must be greater than 0")
	}

	for _, proxy := range cfg.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(proxy); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(proxy); err != nil {
			return fmt.Errorf("server.trusted_proxies: invalid address %q", proxy)
		}
	}

	if len(cfg.CORS.AllowOrigins) == 0 {
		return errors.New("cors.allow_origins must not be empty")
	}
	for _, origin := range cfg.CORS.AllowOrigins {
		if strings.TrimSpace(origin) == "*" {
			return errors.New("cors.allow_origins must not contain wildcard *")
		}
	}

	return nil
}
