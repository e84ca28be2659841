package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Backend   BackendConfig  `mapstructure:"backend"`
	Drafts    DraftsConfig   `mapstructure:"drafts"`
	Sessions  SessionsConfig `mapstructure:"sessions"`
	Log       LogConfig      `mapstructure:"log"`
	JWTSecret string         `mapstructure:"jwt_secret"`
	FormsDir  string         `mapstructure:"forms_dir"`
}

type ServerConfig struct {
	Port          int   `mapstructure:"port"`
	MaxUploadSize int64 `mapstructure:"max_upload_size"`
}

// BackendConfig points at the LIMS REST backend that owns the records.
type BackendConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	ExportPath string        `mapstructure:"export_path"`
}

type DraftsConfig struct {
	// Driver is "sql" (the configured database), "file" or "memory".
	Driver    string `mapstructure:"driver"`
	Namespace string `mapstructure:"namespace"`
	Dir       string `mapstructure:"dir"` // used by the file driver
}

type SessionsConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// Load reads app.yaml from the working directory (or the repo root) and
// overlays environment variables such as BACKEND_BASE_URL. A missing file
// is not an error; defaults and the environment still apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../..")

	SetDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults registers the default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_size", 10485760)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "lims_forms")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("backend.base_url", "http://localhost:8000/api")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.export_path", "/export")
	v.SetDefault("drafts.driver", "sql")
	v.SetDefault("drafts.namespace", "lims")
	v.SetDefault("drafts.dir", "./data/drafts")
	v.SetDefault("sessions.idle_timeout", 2*time.Hour)
	v.SetDefault("sessions.sweep_interval", time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("jwt_secret", "changeme-secret")
	v.SetDefault("forms_dir", "")
}
