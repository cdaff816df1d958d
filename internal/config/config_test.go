package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", "")
	cfg := FromEnv()

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.RefreshInterval != 120*time.Second {
		t.Errorf("RefreshInterval = %v, want 2m", cfg.RefreshInterval)
	}
	if cfg.QueueStatusColumn != "Status" {
		t.Errorf("QueueStatusColumn = %q", cfg.QueueStatusColumn)
	}
	if cfg.HistoryDriver != "" {
		t.Errorf("HistoryDriver = %q, want disabled", cfg.HistoryDriver)
	}
	if !cfg.SnapshotWatch {
		t.Errorf("SnapshotWatch should default to true")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mailflow.env")
	content := strings.Join([]string{
		"# comment",
		"APP_LISTEN_ADDR=:9999",
		`APP_SNAPSHOT_LOCATION="/srv/exdash"`,
		"APP_REFRESH_INTERVAL_SEC=30",
		"APP_ADMIN_USERS=corp\\admin, ops",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("APP_CONFIG_FILE", path)
	t.Setenv("APP_REFRESH_INTERVAL_SEC", "45")

	cfg := FromEnv()
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q, want value from file", cfg.ListenAddr)
	}
	if cfg.SnapshotLocation != "/srv/exdash" {
		t.Errorf("SnapshotLocation = %q, want unquoted file value", cfg.SnapshotLocation)
	}
	if cfg.RefreshInterval != 45*time.Second {
		t.Errorf("RefreshInterval = %v, want env value 45s", cfg.RefreshInterval)
	}
	if len(cfg.AdminUsers) != 2 || cfg.AdminUsers[1] != "ops" {
		t.Errorf("AdminUsers = %v", cfg.AdminUsers)
	}
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", "")
	t.Setenv("APP_REFRESH_INTERVAL_SEC", "soon")
	t.Setenv("APP_SNAPSHOT_WATCH", "maybe")

	cfg := FromEnv()
	if cfg.RefreshInterval != 120*time.Second {
		t.Errorf("RefreshInterval = %v, want default", cfg.RefreshInterval)
	}
	if !cfg.SnapshotWatch {
		t.Errorf("SnapshotWatch = false, want default true")
	}
}

func TestMergeFile(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "extra.env")
	if err := os.WriteFile(path, []byte("APP_HISTORY_DRIVER=SQLite\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	v := NewViper()
	if err := MergeFile(v, path); err != nil {
		t.Fatalf("MergeFile: %v", err)
	}
	if got := Load(v).HistoryDriver; got != "sqlite" {
		t.Errorf("HistoryDriver = %q, want sqlite", got)
	}
	if err := MergeFile(v, filepath.Join(dir, "missing.env")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestIsAdminAndLocation(t *testing.T) {
	cfg := Config{AdminUsers: []string{`CORP\Admin`}, DisplayTimezone: "UTC"}
	if !cfg.IsAdmin(`corp\admin`) {
		t.Errorf("expected case-insensitive admin match")
	}
	if cfg.IsAdmin("") || cfg.IsAdmin("guest") {
		t.Errorf("unexpected admin match")
	}
	if cfg.Location() != time.UTC {
		t.Errorf("expected UTC location")
	}
	cfg.DisplayTimezone = "Mars/Olympus"
	if cfg.Location() != time.Local {
		t.Errorf("expected Local fallback for unknown zone")
	}
}

func TestMySQLDSN(t *testing.T) {
	cfg := Config{DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: 3306, DBName: "mailflow", DBConnTimeout: 5 * time.Second, DBQueryTimeout: 10 * time.Second}
	dsn := cfg.MySQLDSN()
	if !strings.HasPrefix(dsn, "u:p@tcp(db:3306)/mailflow?") || !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("unexpected DSN %q", dsn)
	}
}
