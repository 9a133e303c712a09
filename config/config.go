package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/relay-balancer/internal/strategy"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	HealthModeTCP  = "tcp"
	HealthModeHTTP = "http"
)

type ServerConfig struct {
	Address     string `mapstructure:"address" json:"address"`
	Environment string `mapstructure:"environment" json:"environment"`
}

type StrategyConfig struct {
	Type   string `mapstructure:"type" json:"type"`
	Sticky bool   `mapstructure:"sticky" json:"sticky"`
}

type HealthCheckConfig struct {
	Interval time.Duration `mapstructure:"interval" json:"interval"`
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout"`
	Mode     string        `mapstructure:"mode" json:"mode"`
	Path     string        `mapstructure:"path" json:"path"`
}

type RelayConfig struct {
	ClientTimeout  time.Duration `mapstructure:"client_timeout" json:"client_timeout"`
	BackendTimeout time.Duration `mapstructure:"backend_timeout" json:"backend_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes" json:"max_header_bytes"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes" json:"max_body_bytes"`
	PollInterval   time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
	IdleGap        time.Duration `mapstructure:"idle_gap" json:"idle_gap"`
}

type AcceptorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
}

type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Address string `mapstructure:"address" json:"address"`
}

type BackendConfig struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
	Name string `mapstructure:"name" json:"name"`
}

// DisplayName is the name the backend is known by, host:port when unset.
func (b BackendConfig) DisplayName() string {
	if b.Name != "" {
		return b.Name
	}
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

type LoggingConfig struct {
	Level string `mapstructure:"level" json:"level"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server" json:"server"`
	Strategy    StrategyConfig    `mapstructure:"strategy" json:"strategy"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check" json:"health_check"`
	Relay       RelayConfig       `mapstructure:"relay" json:"relay"`
	Acceptor    AcceptorConfig    `mapstructure:"acceptor" json:"acceptor"`
	Admin       AdminConfig       `mapstructure:"admin" json:"admin"`
	Backends    []BackendConfig   `mapstructure:"backends" json:"backends"`
	Logging     LoggingConfig     `mapstructure:"logging" json:"logging"`
}

// Loader reads configuration from defaults, an optional config.yaml and the
// environment. Each Loader owns its own viper instance.
type Loader struct {
	v         *viper.Viper
	watchOnce sync.Once
}

// NewLoader searches paths for config.yaml, defaulting to ./config and the
// working directory.
func NewLoader(paths ...string) *Loader {
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return &Loader{v: v}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("strategy.type", string(strategy.RoundRobin))
	v.SetDefault("strategy.sticky", false)
	v.SetDefault("health_check.interval", "5s")
	v.SetDefault("health_check.timeout", "2s")
	v.SetDefault("health_check.mode", HealthModeHTTP)
	v.SetDefault("health_check.path", "/health")
	v.SetDefault("relay.client_timeout", "10s")
	v.SetDefault("relay.backend_timeout", "5s")
	v.SetDefault("relay.max_header_bytes", 64*1024)
	v.SetDefault("relay.max_body_bytes", 10*1024*1024)
	v.SetDefault("relay.poll_interval", "500ms")
	v.SetDefault("relay.idle_gap", "1s")
	v.SetDefault("acceptor.poll_interval", "1s")
	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.address", ":9090")
	v.SetDefault("logging.level", LogLevelInfo)
}

// Load reads configuration with the default search paths.
func Load() (*Config, error) {
	return NewLoader().Load()
}

// Load reads, decodes and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, fmt.Errorf("read config: %w", err)
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", l.v.ConfigFileUsed()))
	}

	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Watch calls fn with the new configuration every time the config file
// changes and the result is valid. Invalid edits are logged and skipped.
// It reports false when no config file was loaded.
func (l *Loader) Watch(fn func(*Config)) bool {
	if l.v.ConfigFileUsed() == "" {
		return false
	}

	l.watchOnce.Do(func() {
		l.v.OnConfigChange(func(e fsnotify.Event) {
			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				return
			}
			slog.Info("config file changed", slog.String("file", e.Name), slog.String("op", e.Op.String()))

			cfg, err := l.decode()
			if err != nil {
				return
			}
			fn(cfg)
		})
		l.v.WatchConfig()
	})

	return true
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(ValidateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Strategy,
			validation.By(func(value interface{}) error {
				sc, ok := value.(StrategyConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a StrategyConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Type,
						validation.Required,
						validation.By(validateAlgorithm),
					),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&hc.Timeout, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&hc.Mode,
						validation.Required,
						validation.In(HealthModeTCP, HealthModeHTTP),
					),
					validation.Field(&hc.Path,
						validation.When(hc.Mode == HealthModeHTTP,
							validation.Required,
							validation.Match(regexp.MustCompile(`^/\S*$`)),
						),
					),
				)
			}),
		),
		validation.Field(&c.Relay,
			validation.Required,
			validation.By(func(value interface{}) error {
				rc, ok := value.(RelayConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RelayConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.ClientTimeout, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&rc.BackendTimeout, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&rc.MaxHeaderBytes, validation.Required, validation.Min(512)),
					validation.Field(&rc.MaxBodyBytes, validation.Min(int64(0))),
					validation.Field(&rc.PollInterval, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&rc.IdleGap, validation.Required, validation.Min(rc.PollInterval)),
				)
			}),
		),
		validation.Field(&c.Acceptor,
			validation.Required,
			validation.By(func(value interface{}) error {
				ac, ok := value.(AcceptorConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an AcceptorConfig")
				}
				return validation.ValidateStruct(&ac,
					validation.Field(&ac.PollInterval, validation.Required, validation.Min(time.Millisecond)),
				)
			}),
		),
		validation.Field(&c.Admin,
			validation.By(func(value interface{}) error {
				ac, ok := value.(AdminConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an AdminConfig")
				}
				return validation.ValidateStruct(&ac,
					validation.Field(&ac.Address,
						validation.When(ac.Enabled, validation.Required, validation.By(ValidateHostPort)),
					),
				)
			}),
		),
		validation.Field(&c.Backends,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateBackendConfig)),
			validation.By(validateUniqueBackendNames),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
	)
}

// ValidateHostPort accepts "host:port" and ":port" listen addresses.
func ValidateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" || is.Port.Validate(port) != nil {
		return validation.NewError("validation_invalid_port", "port must be between 1 and 65535")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateAlgorithm(value interface{}) error {
	name, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := strategy.ParseAlgorithm(name); err != nil {
		return validation.NewError("validation_invalid_algorithm", "must be round-robin or least-conn")
	}

	return nil
}

func validateBackendConfig(value interface{}) error {
	backend, ok := value.(BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BackendConfig")
	}

	return validation.ValidateStruct(&backend,
		validation.Field(&backend.Host, validation.Required, is.Host),
		validation.Field(&backend.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

func validateUniqueBackendNames(value interface{}) error {
	backends, ok := value.([]BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a list of backends")
	}

	seen := make(map[string]struct{}, len(backends))
	for _, b := range backends {
		name := b.DisplayName()
		if _, dup := seen[name]; dup {
			return validation.NewError("validation_duplicate_backend", fmt.Sprintf("backend %q is listed twice", name))
		}
		seen[name] = struct{}{}
	}

	return nil
}
