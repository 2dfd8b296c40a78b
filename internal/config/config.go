package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Режимы хранилища.
const (
	ModeDatabase = "database"
	ModeSQLite   = "sqlite"
)

// Стратегии аутентификации.
const (
	StrategyAPIKey = "api_key"
	StrategyLDAP   = "ldap"
)

// AuthConfig выбор стратегии аутентификации.
type AuthConfig struct {
	Strategy string
	APIKey   string
}

func (a AuthConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Strategy, validation.Required, validation.In(StrategyAPIKey, StrategyLDAP)),
	)
}

// LDAPConfig параметры каталога для стратегии ldap.
type LDAPConfig struct {
	URL           string
	BaseDN        string
	BindDN        string
	BindPassword  string
	UserFilter    string
	UserAttribute string
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

func (r RateLimitConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RPS, validation.Min(0.0)),
		validation.Field(&r.Burst, validation.Min(0)),
	)
}

// Config хранит конфигурацию сервера
type Config struct {
	ServerAddress    string
	BaseURL          string
	Hostname         string
	FileStoragePath  string
	DatabaseDSN      string
	PgMigrationsPath string
	TLSCertPath      string
	TLSKeyPath       string
	TrustedSubnet    string
	TrustedProxies   []string
	GRPCAddress      string
	SessionSecret    string
	RedisURL         string
	LogLevel         string
	Mode             string
	Auth             AuthConfig
	LDAP             LDAPConfig
	RateLimit        RateLimitConfig
	SessionTTL       time.Duration
	RecentURLs       int
	MaxListLimit     int
	EnableHTTPS      bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_address", "localhost:8080")
	v.SetDefault("file_storage_path", "firefly.db")
	v.SetDefault("grpc_address", ":3200")
	v.SetDefault("tls_cert_path", "cert.pem")
	v.SetDefault("tls_key_path", "key.pem")
	v.SetDefault("recent_urls", 25)
	v.SetDefault("max_list_limit", 1000)
	v.SetDefault("authentication.strategy", StrategyAPIKey)
	v.SetDefault("ldap.user_filter", "(uid=%s)")
	v.SetDefault("ldap.user_attribute", "uid")
	v.SetDefault("session_ttl", 720*time.Hour)
	v.SetDefault("rate_limit.rps", 10)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("log_level", "info")
}

func newFlagSet() *pflag.FlagSet {
	f := pflag.NewFlagSet("firefly", pflag.ContinueOnError)
	f.StringP("config", "c", "", "path to YAML or JSON config file")
	f.StringP("server_address", "a", "", "server address")
	f.StringP("base_url", "b", "", "base URL of short links")
	f.StringP("file_storage_path", "f", "", "SQLite database file")
	f.StringP("database_dsn", "d", "", "PostgreSQL DSN")
	f.BoolP("enable_https", "s", false, "enable HTTPS")
	f.String("tls_cert_path", "", "path to TLS certificate")
	f.String("tls_key_path", "", "path to TLS key")
	f.StringP("trusted_subnet", "t", "", "trusted subnet in CIDR format")
	f.StringSlice("trusted_proxies", nil, "comma-separated CIDRs of reverse proxies whose X-Real-IP/X-Forwarded-For are honoured")
	f.StringP("grpc_address", "g", "", "gRPC listen address, empty disables gRPC")
	f.String("log_level", "", "log level")
	return f
}

// Load собирает конфигурацию из флагов, окружения, .env, файла конфигурации
// и значений по умолчанию (в порядке убывания приоритета).
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("hostname", "FIREFLY_HOSTNAME"); err != nil {
		return nil, err
	}

	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil {
			bindErr = errors.Join(bindErr, err)
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	configPath, _ := flags.GetString("config")
	if configPath == "" {
		configPath = os.Getenv("CONFIG")
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", configPath, err)
		}
	}

	cfg := &Config{
		ServerAddress:    v.GetString("server_address"),
		BaseURL:          v.GetString("base_url"),
		Hostname:         v.GetString("hostname"),
		FileStoragePath:  v.GetString("file_storage_path"),
		DatabaseDSN:      v.GetString("database_dsn"),
		PgMigrationsPath: v.GetString("pg_migrations_path"),
		EnableHTTPS:      v.GetBool("enable_https"),
		TLSCertPath:      v.GetString("tls_cert_path"),
		TLSKeyPath:       v.GetString("tls_key_path"),
		TrustedSubnet:    v.GetString("trusted_subnet"),
		TrustedProxies:   splitList(v.GetStringSlice("trusted_proxies")),
		GRPCAddress:      v.GetString("grpc_address"),
		RecentURLs:       v.GetInt("recent_urls"),
		MaxListLimit:     v.GetInt("max_list_limit"),
		Auth: AuthConfig{
			Strategy: strings.ToLower(v.GetString("authentication.strategy")),
			APIKey:   v.GetString("authentication.api_key"),
		},
		LDAP: LDAPConfig{
			URL:           v.GetString("ldap.url"),
			BaseDN:        v.GetString("ldap.base_dn"),
			BindDN:        v.GetString("ldap.bind_dn"),
			BindPassword:  v.GetString("ldap.bind_password"),
			UserFilter:    v.GetString("ldap.user_filter"),
			UserAttribute: v.GetString("ldap.user_attribute"),
		},
		SessionSecret: v.GetString("session_secret"),
		SessionTTL:    v.GetDuration("session_ttl"),
		RedisURL:      v.GetString("redis_url"),
		RateLimit: RateLimitConfig{
			RPS:   v.GetFloat64("rate_limit.rps"),
			Burst: v.GetInt("rate_limit.burst"),
		},
		LogLevel: v.GetString("log_level"),
	}

	// Совместимость с firefly: короткие ссылки строятся от hostname.
	if cfg.BaseURL == "" {
		if cfg.Hostname != "" {
			cfg.BaseURL = "http://" + cfg.Hostname
		} else {
			cfg.BaseURL = "http://localhost:8080"
		}
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	if cfg.DatabaseDSN != "" {
		cfg.Mode = ModeDatabase
	} else {
		cfg.Mode = ModeSQLite
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (cfg *Config) Validate() error {
	err := validation.ValidateStruct(cfg,
		validation.Field(&cfg.ServerAddress, validation.Required),
		validation.Field(&cfg.BaseURL, validation.Required, is.URL),
		validation.Field(&cfg.FileStoragePath, validation.When(cfg.Mode == ModeSQLite, validation.Required)),
		validation.Field(&cfg.TrustedSubnet, validation.By(cidr)),
		validation.Field(&cfg.TrustedProxies, validation.Each(validation.By(cidr))),
		validation.Field(&cfg.TLSCertPath, validation.When(cfg.EnableHTTPS, validation.Required)),
		validation.Field(&cfg.TLSKeyPath, validation.When(cfg.EnableHTTPS, validation.Required)),
		validation.Field(&cfg.RecentURLs, validation.Required, validation.Min(1)),
		validation.Field(&cfg.MaxListLimit, validation.Required, validation.Min(cfg.RecentURLs)),
		validation.Field(&cfg.Auth),
		validation.Field(&cfg.RateLimit),
	)
	if err != nil {
		return err
	}

	if cfg.Auth.Strategy == StrategyLDAP {
		l := &cfg.LDAP
		return validation.ValidateStruct(l,
			validation.Field(&l.URL, validation.Required),
			validation.Field(&l.BaseDN, validation.Required),
			validation.Field(&l.UserFilter, validation.Required),
			validation.Field(&l.UserAttribute, validation.Required),
		)
	}
	return nil
}

// Subnet возвращает доверенную подсеть или nil, если она не задана.
func (cfg *Config) Subnet() *net.IPNet {
	if cfg.TrustedSubnet == "" {
		return nil
	}
	_, subnet, err := net.ParseCIDR(cfg.TrustedSubnet)
	if err != nil {
		return nil
	}
	return subnet
}

// Proxies возвращает подсети доверенных обратных прокси.
func (cfg *Config) Proxies() []*net.IPNet {
	var nets []*net.IPNet
	for _, p := range cfg.TrustedProxies {
		if _, n, err := net.ParseCIDR(p); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}

// splitList разбивает элементы списка по запятым: из окружения приходит
// одна строка "10.0.0.0/8,192.168.0.0/16".
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func cidr(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, _, err := net.ParseCIDR(s); err != nil {
		return errors.New("must be a CIDR such as 192.168.0.0/24")
	}
	return nil
}
