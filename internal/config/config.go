package config

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	gomysql "github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Slack    SlackConfig    `yaml:"slack"`
	Webhooks WebhookConfig  `yaml:"webhooks"`
	Pulse    PulseConfig    `yaml:"pulse"`
	Admin    AdminConfig    `yaml:"admin"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	Console    bool   `yaml:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql, postgres or sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path"` // sqlite only
}

type SlackConfig struct {
	WebhookURL        string        `yaml:"webhook_url"`
	VerificationToken string        `yaml:"verification_token"`
	BotName           string        `yaml:"bot_name"`
	ProgressChannel   string        `yaml:"progress_channel"`
	ReportChannel     string        `yaml:"report_channel"`
	OpsChannel        string        `yaml:"ops_channel"`
	CompanyName       string        `yaml:"company_name"`
	CompanyURL        string        `yaml:"company_url"`
	IconURL           string        `yaml:"icon_url"`
	Timeout           time.Duration `yaml:"timeout"`
}

type WebhookConfig struct {
	GitHubSecret   string `yaml:"github_secret"`
	GitLabToken    string `yaml:"gitlab_token"`
	BitbucketToken string `yaml:"bitbucket_token"`
}

type PulseConfig struct {
	Tick            time.Duration `yaml:"tick"`
	CreditThreshold time.Duration `yaml:"credit_threshold"`
	LivenessEvery   int           `yaml:"liveness_every"`
	MarkerFile      string        `yaml:"marker_file"`
	IdleReminder    time.Duration `yaml:"idle_reminder"`
	StoreTimeout    time.Duration `yaml:"store_timeout"`
}

type AdminConfig struct {
	Token        string   `yaml:"token"`
	VerifySecret string   `yaml:"verify_secret"`
	AllowOrigins []string `yaml:"allow_origins"`
}

func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 5000},
		Log:      LogConfig{Level: "info", Console: true, MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 30},
		Database: DatabaseConfig{Driver: "mysql", Host: "127.0.0.1", Port: 3306, Name: "epoch", Path: "epoch.db"},
		Slack: SlackConfig{
			BotName:         "Epoch Bot",
			ProgressChannel: "#work-progress",
			ReportChannel:   "#work-submit",
			OpsChannel:      "#work-progress",
			CompanyName:     "Epoch",
			Timeout:         5 * time.Second,
		},
		Pulse: PulseConfig{
			Tick:            time.Second,
			CreditThreshold: 5 * time.Second,
			LivenessEvery:   10,
			MarkerFile:      "pulse.pid",
			IdleReminder:    15 * time.Minute,
			StoreTimeout:    5 * time.Second,
		},
		Admin: AdminConfig{AllowOrigins: []string{"*"}},
	}
}

func Load(configFile string) *Config {
	c := Default()

	paths := []string{"etc/config-dev.yaml", "/etc/epoch/config.yaml"}
	if configFile != "" {
		paths = []string{configFile}
	}
	for _, path := range paths {
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, c)
			break
		}
	}

	envOverride(&c.Database.Driver, "DB_DRIVER")
	envOverride(&c.Database.Host, "DB_HOST")
	envOverride(&c.Database.User, "DB_USER")
	envOverride(&c.Database.Password, "DB_PASS")
	envOverride(&c.Database.Name, "DB_NAME")
	envOverride(&c.Database.Path, "DB_PATH")
	envOverride(&c.Slack.WebhookURL, "SLACK_WEBHOOK_URL")
	envOverride(&c.Slack.VerificationToken, "SLACK_VERIFICATION_TOKEN")
	envOverride(&c.Webhooks.GitHubSecret, "EPOCH_GITHUB_SECRET")
	envOverride(&c.Webhooks.GitLabToken, "EPOCH_GITLAB_TOKEN")
	envOverride(&c.Webhooks.BitbucketToken, "EPOCH_BITBUCKET_TOKEN")
	envOverride(&c.Admin.Token, "EPOCH_ADMIN_TOKEN")
	envOverride(&c.Admin.VerifySecret, "EPOCH_VERIFY_SECRET")
	envOverride(&c.Pulse.MarkerFile, "EPOCH_MARKER_FILE")
	envOverride(&c.Log.Level, "LOG_LEVEL")
	envOverride(&c.Log.File, "LOG_FILE")
	envOverrideInt(&c.Server.Port, "PORT")
	envOverrideInt(&c.Database.Port, "DB_PORT")

	return c
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func (c *Config) OpenGormDB() (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	switch c.Database.Driver {
	case "mysql", "":
		cfg := gomysql.NewConfig()
		cfg.User = c.Database.User
		cfg.Passwd = c.Database.Password
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port)
		cfg.DBName = c.Database.Name
		cfg.ParseTime = true
		cfg.Loc = time.UTC

		connector, err := gomysql.NewConnector(cfg)
		if err != nil {
			return nil, fmt.Errorf("create connector: %w", err)
		}
		sqlDB := sql.OpenDB(connector)
		if err := sqlDB.Ping(); err != nil {
			return nil, fmt.Errorf("ping db: %w", err)
		}
		return gorm.Open(mysql.New(mysql.Config{Conn: sqlDB}), gcfg)

	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.Name)
		return gorm.Open(postgres.Open(dsn), gcfg)

	case "sqlite":
		if dir := filepath.Dir(c.Database.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		db, err := gorm.Open(sqlite.Open(c.Database.Path+"?_pragma=busy_timeout(5000)"), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers
		sqlDB.SetMaxOpenConns(1)
		return db, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
