package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// newViper mirrors the root command's environment setup on a fresh instance.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"CardsDir", cfg.CardsDir, "./cards"},
		{"DBPath", cfg.DBPath, filepath.Join(".cardsync", "index.db")},
		{"AllowRawWhere", cfg.AllowRawWhere, true},
		{"Dashboard.Port", cfg.Dashboard.Port, 8080},
		{"Log.File", cfg.Log.File, ""},
		{"Log.MaxSizeMB", cfg.Log.MaxSizeMB, 10},
		{"Log.MaxBackups", cfg.Log.MaxBackups, 3},
		{"Log.MaxAgeDays", cfg.Log.MaxAgeDays, 28},
		{"Log.Verbose", cfg.Log.Verbose, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tests := []struct {
		name   string
		envKey string
		envVal string
		field  func(Config) any
		want   any
	}{
		{
			name:   "cards_dir",
			envKey: "CARDSYNC_CARDS_DIR",
			envVal: "/srv/cards",
			field:  func(c Config) any { return c.CardsDir },
			want:   "/srv/cards",
		},
		{
			name:   "allow_raw_where",
			envKey: "CARDSYNC_ALLOW_RAW_WHERE",
			envVal: "false",
			field:  func(c Config) any { return c.AllowRawWhere },
			want:   false,
		},
		{
			name:   "dashboard.port",
			envKey: "CARDSYNC_DASHBOARD_PORT",
			envVal: "9000",
			field:  func(c Config) any { return c.Dashboard.Port },
			want:   9000,
		},
		{
			name:   "log.verbose",
			envKey: "CARDSYNC_LOG_VERBOSE",
			envVal: "true",
			field:  func(c Config) any { return c.Log.Verbose },
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.envKey, tt.envVal)

			cfg, err := LoadFrom(newViper())
			if err != nil {
				t.Fatalf("LoadFrom() returned unexpected error: %v", err)
			}
			if got := tt.field(cfg); got != tt.want {
				t.Errorf("%s: got %v (%T), want %v (%T)", tt.name, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".cardsync.toml")
	content := `
cards_dir = "/data/cards"

[dashboard]
port = 9100

[log]
file = "/tmp/cardsync.log"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig failed: %v", err)
	}

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CardsDir != "/data/cards" || cfg.Dashboard.Port != 9100 || cfg.Log.File != "/tmp/cardsync.log" {
		t.Errorf("cfg = %+v", cfg)
	}
	// Unset keys keep their defaults.
	if cfg.Log.MaxBackups != 3 || !cfg.AllowRawWhere {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	cfg.CardsDir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("empty cards_dir should be invalid")
	}

	cfg = Default()
	cfg.Dashboard.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("port 70000 should be invalid")
	}
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", ".cardsync.toml")
	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}
	if err := WriteDefault(path, false); err == nil {
		t.Error("second WriteDefault without force should fail")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("WriteDefault with force failed: %v", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("written config does not parse: %v", err)
	}
	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Errorf("round trip = %+v, want %+v", cfg, Default())
	}
}

func TestLogs(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "cardsync.log")
	logs := NewLogs(LogConfig{File: logPath, MaxSizeMB: 1})
	defer logs.Close()

	logs.Logger("sync").Printf("hello %d", 42)

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "[sync] ") || !strings.Contains(string(data), "hello 42") {
		t.Errorf("log file = %q", data)
	}

	if err := NewLogs(LogConfig{}).Close(); err != nil {
		t.Errorf("Close without file: %v", err)
	}
}
