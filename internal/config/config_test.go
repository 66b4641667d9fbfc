package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadOverridesDefaults(t *testing.T) {
	input := `
[site]
domain = "blog.example.org"
title = "Example"

[database]
type = "mysql"
host = "db"
name = "wordpress"

[remote]
metadata_timeout = "3s"
allow_hosts = ["mastodon.social"]
`
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.Site.Domain != "blog.example.org" {
		t.Errorf("Site.Domain = %q, want blog.example.org", cfg.Site.Domain)
	}
	if cfg.Database.Type != "mysql" || cfg.Database.Host != "db" {
		t.Errorf("Database = %+v, want mysql on db", cfg.Database)
	}
	if cfg.Remote.MetadataTimeout.Duration != 3*time.Second {
		t.Errorf("MetadataTimeout = %v, want 3s", cfg.Remote.MetadataTimeout)
	}
	if cfg.Remote.ContextTimeout.Duration != 20*time.Second {
		t.Errorf("ContextTimeout = %v, want default 20s", cfg.Remote.ContextTimeout)
	}
	if cfg.OAuth.CodeLifetime.Duration != 24*time.Hour {
		t.Errorf("CodeLifetime = %v, want default 24h", cfg.OAuth.CodeLifetime)
	}
	if len(cfg.Remote.AllowHosts) != 1 {
		t.Errorf("AllowHosts = %v, want one host", cfg.Remote.AllowHosts)
	}
}

func TestManager_WriteRoundTrip(t *testing.T) {
	m := &Manager{}
	var buf bytes.Buffer
	if err := m.Write(&buf, Default()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	cfg, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.OAuth.TokenLifetime != Default().OAuth.TokenLifetime {
		t.Errorf("TokenLifetime = %v, want %v", cfg.OAuth.TokenLifetime, Default().OAuth.TokenLifetime)
	}
}

func TestManager_ReadInvalidDuration(t *testing.T) {
	m := &Manager{}
	if _, err := m.Read(strings.NewReader("[oauth]\ncode_lifetime = \"soon\"\n")); err == nil {
		t.Error("Read() with invalid duration returned nil error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "wpmastodon.toml")
	if err := os.WriteFile(path, []byte("[site]\ndomain = \"file.example\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MYSQL_HOST", "mysql.internal")
	t.Setenv("MYSQL_DATABASE", "blog")
	t.Setenv("REDIS_URL", "redis:6379")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Type != "mysql" || cfg.Database.Host != "mysql.internal" {
		t.Errorf("Database = %+v, want mysql from env", cfg.Database)
	}
	if cfg.Cache.Type != "redis" || cfg.Cache.RedisAddr != "redis:6379" {
		t.Errorf("Cache = %+v, want redis from env", cfg.Cache)
	}
	if cfg.Site.Domain != "file.example" {
		t.Errorf("Site.Domain = %q, want file.example", cfg.Site.Domain)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("does-not-exist.toml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want sqlite", cfg.Database.Type)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.Type = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted mysql without host")
	}
	cfg.Database.DSN = "wp:secret@tcp(db:3306)/blog"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with dsn error = %v", err)
	}
	cfg = Default()
	cfg.Database.Type = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted unknown database type")
	}
}

func TestApplyEnv_DSN(t *testing.T) {
	t.Setenv("WPM_DB_DSN", "wp:secret@tcp(db:3306)/blog")
	cfg := Default()
	ApplyEnv(cfg)
	if cfg.Database.Type != "mysql" || cfg.Database.DSN != "wp:secret@tcp(db:3306)/blog" {
		t.Errorf("Database = %+v, want mysql with dsn from env", cfg.Database)
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatal(err)
		}
	})
}
