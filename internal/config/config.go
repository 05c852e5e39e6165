package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Mail      MailConfig      `mapstructure:"mail"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"` // debug, release, test
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DatabaseConfig selects the gorm dialector. Driver is "postgres" or "sqlite";
// Path is only read for sqlite.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"`
	Replicas        []string      `mapstructure:"replicas"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Name + "?sslmode=" + d.SSLMode
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// WorkflowConfig carries the per-deployment rules of the requisition workflow.
type WorkflowConfig struct {
	Stage2Threshold              float64  `mapstructure:"stage2_threshold"`
	DuplicateLookbackDays        int      `mapstructure:"duplicate_lookback_days"`
	AttachmentRequiredCategories []string `mapstructure:"attachment_required_categories"`
	AttachmentMaxMB              int      `mapstructure:"attachment_max_mb"`
}

type StorageConfig struct {
	AttachmentDir string `mapstructure:"attachment_dir"`
}

// MailConfig enables e-mail delivery of notifications when Host is set.
type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

func (m MailConfig) Enabled() bool {
	return m.Host != ""
}

type SchedulerConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ReminderSpec      string `mapstructure:"reminder_spec"`
	ReminderAfterDays int    `mapstructure:"reminder_after_days"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads configPath (if it exists) and overlays environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "data/erequisition.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("workflow.stage2_threshold", 10000)
	v.SetDefault("workflow.duplicate_lookback_days", 30)
	v.SetDefault("workflow.attachment_required_categories", []string{"procurement", "emergency"})
	v.SetDefault("workflow.attachment_max_mb", 10)

	v.SetDefault("storage.attachment_dir", "storage/attachments")

	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "noreply@erequisition.local")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.reminder_spec", "0 8 * * *")
	v.SetDefault("scheduler.reminder_after_days", 3)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars keeps the flat variable names used by existing deployments.
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.mode", "GIN_MODE")
	_ = v.BindEnv("database.driver", "DB_DRIVER")
	_ = v.BindEnv("database.host", "DB_HOST")
	_ = v.BindEnv("database.port", "DB_PORT")
	_ = v.BindEnv("database.user", "DB_USER")
	_ = v.BindEnv("database.password", "DB_PASSWORD")
	_ = v.BindEnv("database.name", "DB_NAME")
	_ = v.BindEnv("database.sslmode", "DB_SSLMODE")
	_ = v.BindEnv("database.path", "DB_PATH")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("workflow.stage2_threshold", "REQUISITION_STAGE2_THRESHOLD")
	_ = v.BindEnv("workflow.duplicate_lookback_days", "REQUISITION_DUPLICATE_LOOKBACK_DAYS")
	_ = v.BindEnv("workflow.attachment_required_categories", "REQUISITION_ATTACHMENT_REQUIRED_CATEGORIES")
	_ = v.BindEnv("workflow.attachment_max_mb", "REQUISITION_ATTACHMENT_MAX_MB")
	_ = v.BindEnv("mail.host", "SMTP_HOST")
	_ = v.BindEnv("mail.port", "SMTP_PORT")
	_ = v.BindEnv("mail.username", "SMTP_USERNAME")
	_ = v.BindEnv("mail.password", "SMTP_PASSWORD")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}

	if c.Workflow.Stage2Threshold <= 0 {
		return fmt.Errorf("workflow.stage2_threshold must be positive")
	}
	if c.Workflow.DuplicateLookbackDays < 0 {
		return fmt.Errorf("workflow.duplicate_lookback_days must not be negative")
	}
	if c.Workflow.AttachmentMaxMB <= 0 {
		return fmt.Errorf("workflow.attachment_max_mb must be positive")
	}

	if c.Server.Mode == "release" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in release mode")
	}

	return nil
}
