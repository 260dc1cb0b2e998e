package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv       string `env:"APP_ENV" default:"development"`
	AppURL       string `env:"APP_URL" default:"http://localhost:8080"`
	Port         string `env:"PORT" default:"8080"`
	InternalHost string `env:"INTERNAL_HOST" default:"127.0.0.1"`
	InternalPort string `env:"INTERNAL_PORT" default:"8081"`
	LogLevel     string `env:"LOG_LEVEL" default:"info"`
	LogFormat    string `env:"LOG_FORMAT" default:"text"`

	// InternalAllowPrivate widens the trigger surface from loopback to RFC 1918 peers.
	InternalAllowPrivate bool `env:"INTERNAL_ALLOW_PRIVATE" default:"false"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`

	// AllowedOrigins are browser origins accepted besides APP_URL's, space separated.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"20"`
	ConnectRatePerSecond    float64 `env:"CONNECT_RATE_PER_SECOND" default:"5"`
	ConnectBurst            int     `env:"CONNECT_BURST" default:"10"`
}

// IsDevelopment reports whether the relay runs in development mode, which relaxes the origin check.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// PublicAddr is the listen address of the socket server.
func (c *Config) PublicAddr() string {
	return ":" + c.Port
}

// InternalAddr is the listen address of the trigger server.
func (c *Config) InternalAddr() string {
	return net.JoinHostPort(c.InternalHost, c.InternalPort)
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	ports := map[string]string{
		"PORT":          cfg.Port,
		"INTERNAL_PORT": cfg.InternalPort,
	}
	for name, value := range ports {
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("%s must be a port number between 1 and 65535, got %q", name, value)
		}
	}
	if cfg.Port == cfg.InternalPort {
		return errors.New("PORT and INTERNAL_PORT must differ")
	}

	if cfg.HeartbeatInterval < time.Second {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be at least 1s, got %s", cfg.HeartbeatInterval)
	}

	limits := map[string]int{
		"MAX_WEBSOCKET_CONNECTIONS": cfg.MaxWebSocketConnections,
		"MAX_CONNECTIONS_PER_IP":    cfg.MaxConnectionsPerIP,
		"CONNECT_BURST":             cfg.ConnectBurst,
	}
	for name, value := range limits {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if cfg.ConnectRatePerSecond <= 0 {
		return errors.New("CONNECT_RATE_PER_SECOND must be positive")
	}

	if !IsInternalHost(cfg.InternalHost, cfg.InternalAllowPrivate) {
		if cfg.InternalAllowPrivate {
			return fmt.Errorf("INTERNAL_HOST must be a loopback or private address, got %q", cfg.InternalHost)
		}
		return fmt.Errorf("INTERNAL_HOST must be a loopback address unless INTERNAL_ALLOW_PRIVATE is set, got %q", cfg.InternalHost)
	}

	u, err := url.Parse(cfg.AppURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("APP_URL must be an absolute URL, got %q", cfg.AppURL)
	}

	for _, origin := range cfg.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" || (u.Path != "" && u.Path != "/") {
			return fmt.Errorf("ALLOWED_ORIGINS entries must be scheme://host[:port], got %q", origin)
		}
	}

	return nil
}

// IsInternalHost reports whether host is "localhost" or a loopback IP.
// Private IPs pass only when allowPrivate is set.
func IsInternalHost(host string, allowPrivate bool) bool {
	if host == "localhost" {
		return true
	}
	return IsInternalIP(net.ParseIP(host), allowPrivate)
}

// IsInternalIP applies the same rule to an already parsed address.
func IsInternalIP(ip net.IP, allowPrivate bool) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	return allowPrivate && ip.IsPrivate()
}
