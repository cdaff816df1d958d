package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds runtime configuration for the dashboard service.
type Config struct {
	ListenAddr       string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	ShutdownTimeout  time.Duration
	DefaultListLimit int

	LogLevel  string
	LogFormat string

	SnapshotLocation     string
	SnapshotTimeout      time.Duration
	SnapshotWatch        bool
	SnapshotWatchPattern string
	RefreshInterval      time.Duration
	DisplayTimezone      string
	QueueStatusColumn    string
	ChartMaxPoints       int

	HistoryDriver     string
	HistorySQLitePath string
	HistoryMaxPoints  int

	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBConnTimeout  time.Duration
	DBQueryTimeout time.Duration

	AdminUsers      []string
	UserHeader      string
	ActionsEndpoint string
	ActionsTimeout  time.Duration
}

// FromEnv loads configuration from environment variables and env files.
func FromEnv() Config {
	return Load(NewViper())
}

// NewViper returns a viper instance with AutomaticEnv enabled and the env
// files merged in. Environment variables win over every file.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	for _, path := range configFileCandidates() {
		_ = mergeEnvFile(v, path)
	}
	return v
}

// configFileCandidates lists env files from lowest to highest priority.
func configFileCandidates() []string {
	out := []string{
		"/etc/mailflow/config.env",
		"/etc/mailflow/secrets.env",
		"/etc/default/mailflow",
	}
	if credDir := strings.TrimSpace(os.Getenv("CREDENTIALS_DIRECTORY")); credDir != "" {
		credName := strings.TrimSpace(os.Getenv("APP_SECRETS_CREDENTIAL_NAME"))
		if credName == "" {
			credName = "app-secrets"
		}
		out = append(out, filepath.Join(credDir, credName))
	}
	if wd, err := os.Getwd(); err == nil {
		out = append(out, filepath.Join(wd, "mailflow.env"))
	}
	if explicit := strings.TrimSpace(os.Getenv("APP_SECRETS_FILE")); explicit != "" {
		out = append(out, explicit)
	}
	if explicit := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); explicit != "" {
		out = append(out, explicit)
	}
	return out
}

// MergeFile merges one more env file into v; used for the --config flag.
func MergeFile(v *viper.Viper, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return mergeEnvFile(v, path)
}

func mergeEnvFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	return v.MergeInConfig()
}

// Load reads every setting from v, falling back to defaults for unset or
// unparseable values.
func Load(v *viper.Viper) Config {
	return Config{
		ListenAddr:       getString(v, "APP_LISTEN_ADDR", ":8080"),
		ReadTimeout:      time.Duration(getInt(v, "APP_READ_TIMEOUT_SEC", 10)) * time.Second,
		WriteTimeout:     time.Duration(getInt(v, "APP_WRITE_TIMEOUT_SEC", 20)) * time.Second,
		ShutdownTimeout:  time.Duration(getInt(v, "APP_SHUTDOWN_TIMEOUT_SEC", 10)) * time.Second,
		DefaultListLimit: getInt(v, "APP_DEFAULT_LIST_LIMIT", 500),

		LogLevel:  getString(v, "APP_LOG_LEVEL", "info"),
		LogFormat: getString(v, "APP_LOG_FORMAT", "text"),

		SnapshotLocation:     getString(v, "APP_SNAPSHOT_LOCATION", "./snapshots"),
		SnapshotTimeout:      time.Duration(getInt(v, "APP_SNAPSHOT_TIMEOUT_SEC", 15)) * time.Second,
		SnapshotWatch:        getBool(v, "APP_SNAPSHOT_WATCH", true),
		SnapshotWatchPattern: getString(v, "APP_SNAPSHOT_WATCH_PATTERN", "*.json"),
		RefreshInterval:      time.Duration(getInt(v, "APP_REFRESH_INTERVAL_SEC", 120)) * time.Second,
		DisplayTimezone:      getString(v, "APP_DISPLAY_TIMEZONE", "Local"),
		QueueStatusColumn:    getString(v, "APP_QUEUE_STATUS_COLUMN", "Status"),
		ChartMaxPoints:       getInt(v, "APP_CHART_MAX_POINTS", 720),

		HistoryDriver:     strings.ToLower(getString(v, "APP_HISTORY_DRIVER", "")),
		HistorySQLitePath: getString(v, "APP_HISTORY_SQLITE_PATH", "./mailflow-history.db"),
		HistoryMaxPoints:  getInt(v, "APP_HISTORY_MAX_POINTS", 720),

		DBHost:         getString(v, "APP_DB_HOST", "127.0.0.1"),
		DBPort:         getInt(v, "APP_DB_PORT", 3306),
		DBUser:         getString(v, "APP_DB_USER", "mailflow"),
		DBPassword:     getString(v, "APP_DB_PASSWORD", ""),
		DBName:         getString(v, "APP_DB_NAME", "mailflow"),
		DBConnTimeout:  time.Duration(getInt(v, "APP_DB_CONN_TIMEOUT_SEC", 5)) * time.Second,
		DBQueryTimeout: time.Duration(getInt(v, "APP_DB_QUERY_TIMEOUT_SEC", 10)) * time.Second,

		AdminUsers:      getList(v, "APP_ADMIN_USERS", nil),
		UserHeader:      getString(v, "APP_USER_HEADER", "X-Remote-User"),
		ActionsEndpoint: getString(v, "APP_ACTIONS_ENDPOINT", ""),
		ActionsTimeout:  time.Duration(getInt(v, "APP_ACTIONS_TIMEOUT_SEC", 30)) * time.Second,
	}
}

// Location resolves DisplayTimezone, falling back to time.Local.
func (c Config) Location() *time.Location {
	name := strings.TrimSpace(c.DisplayTimezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// IsAdmin reports whether username is on the admin allow-list.
func (c Config) IsAdmin(username string) bool {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return false
	}
	for _, u := range c.AdminUsers {
		if strings.ToLower(u) == username {
			return true
		}
	}
	return false
}

// MySQLDSN returns a mysql driver DSN with safe defaults for TCP access.
func (c Config) MySQLDSN() string {
	params := url.Values{}
	params.Set("parseTime", "true")
	params.Set("timeout", c.DBConnTimeout.String())
	params.Set("readTimeout", c.DBQueryTimeout.String())
	params.Set("writeTimeout", c.DBQueryTimeout.String())
	params.Set("charset", "utf8mb4")
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, params.Encode())
}

func getString(v *viper.Viper, key, def string) string {
	if val := strings.TrimSpace(v.GetString(key)); val != "" {
		return val
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	val := strings.TrimSpace(v.GetString(key))
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}

func getBool(v *viper.Viper, key string, def bool) bool {
	val := strings.TrimSpace(v.GetString(key))
	if val == "" {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return parsed
}

func getList(v *viper.Viper, key string, def []string) []string {
	val := strings.TrimSpace(v.GetString(key))
	if val == "" {
		return def
	}

	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
