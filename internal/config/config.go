package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr        string `yaml:"addr"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	JWT struct {
		Issuer     string `yaml:"issuer"`
		Secret     string `yaml:"secret"` // normalmente via env JWT_SECRET
		AccessTTL  string `yaml:"access_ttl"`
		RefreshTTL string `yaml:"refresh_ttl"`
		ResetTTL   string `yaml:"reset_ttl"`
	} `yaml:"jwt"`

	Auth struct {
		Cookies struct {
			AccessName  string `yaml:"access_name"`
			RefreshName string `yaml:"refresh_name"`
			CSRFName    string `yaml:"csrf_name"`
			ResetName   string `yaml:"reset_name"`
			Domain      string `yaml:"domain"`
			Secure      bool   `yaml:"secure"`
		} `yaml:"cookies"`
		CSRFHeader string `yaml:"csrf_header"`
		ResetCode  struct {
			TTL    string `yaml:"ttl"`
			Digits int    `yaml:"digits"`
		} `yaml:"reset_code"`
		Permissions struct {
			CacheTTL string `yaml:"cache_ttl"`
		} `yaml:"permissions"`
	} `yaml:"auth"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		// FailOpen decide qué pasa si Redis no está disponible:
		// false (default) = fail-closed, los requests se rechazan con error de
		// infraestructura. true = se deja pasar y se loguea. Decisión explícita
		// de seguridad: no cambiar sin revisión.
		FailOpen bool `yaml:"fail_open"`

		Login struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"login"`

		Forgot struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"forgot"`

		// TTL del contador de fallos acumulados (lockout escalado).
		FailureTTL string `yaml:"failure_ttl"`
	} `yaml:"rate"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
}

// Load lee el YAML de configuración, aplica overrides por env y valida.
func Load(path string) (*Config, error) {
	var c Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "custodia"
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "custodia"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "15m"
	}
	if c.JWT.RefreshTTL == "" {
		c.JWT.RefreshTTL = "720h"
	}
	if c.JWT.ResetTTL == "" {
		c.JWT.ResetTTL = "10m"
	}
	ck := &c.Auth.Cookies
	if ck.AccessName == "" {
		ck.AccessName = "access_token"
	}
	if ck.RefreshName == "" {
		ck.RefreshName = "refresh_token"
	}
	if ck.CSRFName == "" {
		ck.CSRFName = "csrf_token"
	}
	if ck.ResetName == "" {
		ck.ResetName = "reset_token"
	}
	if c.Auth.CSRFHeader == "" {
		c.Auth.CSRFHeader = "X-CSRF-Token"
	}
	if c.Auth.ResetCode.TTL == "" {
		c.Auth.ResetCode.TTL = "10m"
	}
	if c.Auth.ResetCode.Digits == 0 {
		c.Auth.ResetCode.Digits = 6
	}
	if c.Auth.Permissions.CacheTTL == "" {
		c.Auth.Permissions.CacheTTL = "1m"
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == "" {
		c.Rate.Login.Window = "1m"
	}
	if c.Rate.Forgot.Limit == 0 {
		c.Rate.Forgot.Limit = 3
	}
	if c.Rate.Forgot.Window == "" {
		c.Rate.Forgot.Window = "5m"
	}
	if c.Rate.FailureTTL == "" {
		c.Rate.FailureTTL = "24h"
	}
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("METRICS_ADDR"); ok {
		c.Server.MetricsAddr = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_SECRET"); ok {
		c.JWT.Secret = v
	}
	if v, ok := getEnvStr("JWT_ACCESS_TTL"); ok {
		c.JWT.AccessTTL = v
	}
	if v, ok := getEnvStr("JWT_REFRESH_TTL"); ok {
		c.JWT.RefreshTTL = v
	}
	if v, ok := getEnvStr("JWT_RESET_TTL"); ok {
		c.JWT.ResetTTL = v
	}
	if v, ok := getEnvStr("AUTH_COOKIE_DOMAIN"); ok {
		c.Auth.Cookies.Domain = v
	}
	if v, ok := getEnvBool("AUTH_COOKIE_SECURE"); ok {
		c.Auth.Cookies.Secure = v
	}
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvBool("RATE_FAIL_OPEN"); ok {
		c.Rate.FailOpen = v
	}
	if v, ok := getEnvInt("RATE_LOGIN_LIMIT"); ok {
		c.Rate.Login.Limit = v
	}
	if v, ok := getEnvStr("RATE_LOGIN_WINDOW"); ok {
		c.Rate.Login.Window = v
	}
	if v, ok := getEnvInt("RATE_FORGOT_LIMIT"); ok {
		c.Rate.Forgot.Limit = v
	}
	if v, ok := getEnvStr("RATE_FORGOT_WINDOW"); ok {
		c.Rate.Forgot.Window = v
	}
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
}

// Validate chequea valores obligatorios y formatos de duración.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("config: jwt.secret es requerido (env JWT_SECRET)")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("config: jwt.secret debe tener al menos 32 bytes")
	}
	for _, d := range []string{
		c.JWT.AccessTTL, c.JWT.RefreshTTL, c.JWT.ResetTTL,
		c.Rate.Login.Window, c.Rate.Forgot.Window, c.Rate.FailureTTL,
		c.Auth.ResetCode.TTL, c.Auth.Permissions.CacheTTL,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("config: duración inválida %q: %w", d, err)
		}
	}
	// El rate limiter siempre vive en redis, aunque el cache sea memory.
	if c.Rate.Enabled && strings.TrimSpace(c.Cache.Redis.Addr) == "" {
		return fmt.Errorf("config: rate.enabled requiere cache.redis.addr")
	}
	return nil
}

// Dur parsea una duración ya validada. Para usar en wiring después de Load.
func Dur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
