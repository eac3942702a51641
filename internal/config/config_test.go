package config

import (
	"os"
	"testing"
	"time"
)

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.DatabaseDriver != DriverSQLite {
		t.Fatalf("driver = %q, want %q", cfg.DatabaseDriver, DriverSQLite)
	}
	if cfg.CommandTimeout != 10*time.Second {
		t.Fatalf("command timeout = %s, want 10s", cfg.CommandTimeout)
	}
	if !cfg.AutoMigrate {
		t.Fatalf("auto migrate should default on")
	}
	if cfg.LoginBurst != 5 || cfg.LoginRatePerMinute != 10 {
		t.Fatalf("login limits = %v/%d", cfg.LoginRatePerMinute, cfg.LoginBurst)
	}
	if cfg.OTelEnabled {
		t.Fatalf("tracing should default off")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("VAXSCHED_DATABASE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/vax")
	t.Setenv("VAXSCHED_COMMAND_TIMEOUT", "3s")
	t.Setenv("VAXSCHED_LOGIN_BURST", "2")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("VAXSCHED_OTEL_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.DatabaseDriver != DriverPostgres {
		t.Fatalf("driver = %q", cfg.DatabaseDriver)
	}
	if cfg.DatabaseURL != "postgres://u:p@db:5432/vax" {
		t.Fatalf("url = %q", cfg.DatabaseURL)
	}
	if cfg.CommandTimeout != 3*time.Second || cfg.LoginBurst != 2 {
		t.Fatalf("timeout=%s burst=%d", cfg.CommandTimeout, cfg.LoginBurst)
	}
	if cfg.RedisAddr != "redis:6379" || !cfg.OTelEnabled {
		t.Fatalf("redis=%q otel=%v", cfg.RedisAddr, cfg.OTelEnabled)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"VAXSCHED_DATABASE_DRIVER": "mysql",
		"VAXSCHED_COMMAND_TIMEOUT": "soon",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}
