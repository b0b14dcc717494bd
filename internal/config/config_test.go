package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/expedite/internal/config"
	"github.com/JaimeStill/expedite/internal/lock"
)

const baseTOML = `
responsible = "ops@example.com"
test_address = "qa@example.com"
call_timeout = "30s"

[logging]
level = "debug"

[schedule]
timezone = "America/Bogota"
windows = [{ start = "07:00", end = "18:00" }]
holidays = ["2026-12-25"]

[lock]
backend = "memory"

[database]
name = "expedite"
user = "expedite"

[cases]
base_url = "https://org.crm.dynamics.com"

[documents]
base_url = "https://docs.example.com"
file_cabinet = "fc-1"

[graph]
sender = "robot@example.com"

[variants.merge]
subcategories = ["sub-1"]
size_threshold = "10MB"

[[variants.merge.rules]]
document_type = "Certificado"

[[variants.folder.rules]]
document_type = "Acta"
act_type = "Reforma"
`

func writeConfig(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return filepath.Join(dir, config.BaseConfigFile)
}

func TestLoadFile(t *testing.T) {
	cfg, err := config.LoadFile(writeConfig(t, map[string]string{config.BaseConfigFile: baseTOML}))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if !cfg.Production() || cfg.Redirect() != "" {
		t.Errorf("Mode = %q Redirect() = %q, want production without redirect", cfg.Mode, cfg.Redirect())
	}
	if cfg.CallTimeoutDuration() != 30*time.Second {
		t.Errorf("CallTimeoutDuration() = %v, want 30s", cfg.CallTimeoutDuration())
	}
	if cfg.DeliveryTimeoutDuration() != 10*time.Minute {
		t.Errorf("DeliveryTimeoutDuration() = %v, want 10m", cfg.DeliveryTimeoutDuration())
	}
	if cfg.Lock.Backend != lock.BackendMemory {
		t.Errorf("Lock.Backend = %q, want memory", cfg.Lock.Backend)
	}
	if cfg.Graph.DriveUser != "robot@example.com" {
		t.Errorf("Graph.DriveUser = %q, want sender default", cfg.Graph.DriveUser)
	}
	if cfg.NeedsStorage() {
		t.Error("NeedsStorage() = true for onedrive without archive")
	}

	merge, err := cfg.Variants.Get(config.VariantMerge)
	if err != nil {
		t.Fatalf("Get(merge) error = %v", err)
	}
	if merge.SizeThresholdBytes() != 10*1024*1024 {
		t.Errorf("SizeThresholdBytes() = %d, want 10MB", merge.SizeThresholdBytes())
	}
	if tags := merge.Tags(); len(tags.Subcategories) != 1 || tags.Subcategories[0] != "sub-1" {
		t.Errorf("Tags() = %+v", tags)
	}
	if len(merge.Rules) != 1 || merge.Rules[0].DocumentType != "Certificado" {
		t.Errorf("merge rules = %+v", merge.Rules)
	}

	folder, _ := cfg.Variants.Get(config.VariantFolder)
	if folder.BasePath != "Expediciones/folder" || folder.BotCode != "ExpedicionCopias_folder" {
		t.Errorf("folder defaults = %+v", folder)
	}
	if len(folder.Rules) != 1 || folder.Rules[0].ActType != "Reforma" {
		t.Errorf("folder rules = %+v", folder.Rules)
	}
}

func TestLoadFileOverlayAndEnv(t *testing.T) {
	path := writeConfig(t, map[string]string{
		config.BaseConfigFile: baseTOML,
		"config.qa.toml": `
mode = "qa"

[variants.merge]
size_threshold = "5MB"
`,
	})
	t.Setenv(config.EnvExpediteEnv, "qa")
	t.Setenv(config.EnvExpediteTestAddress, "tester@example.com")
	t.Setenv("EXPEDITE_LOCK_BACKEND", "redis")

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Production() {
		t.Error("Production() = true, want qa from overlay")
	}
	if cfg.Redirect() != "tester@example.com" {
		t.Errorf("Redirect() = %q, want env test address", cfg.Redirect())
	}
	if cfg.Lock.Backend != lock.BackendRedis {
		t.Errorf("Lock.Backend = %q, want env override", cfg.Lock.Backend)
	}
	merge, _ := cfg.Variants.Get(config.VariantMerge)
	if merge.SizeThresholdBytes() != 5*1024*1024 {
		t.Errorf("SizeThresholdBytes() = %d, want overlay 5MB", merge.SizeThresholdBytes())
	}
	if len(merge.Subcategories) != 1 {
		t.Error("overlay must keep base subcategories it does not set")
	}
}

func TestInvalidModeFallsBackToProduction(t *testing.T) {
	path := writeConfig(t, map[string]string{config.BaseConfigFile: "mode = \"staging\"\n" + baseTOML})

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Mode != config.ModeProduction {
		t.Errorf("Mode = %q, want prod", cfg.Mode)
	}
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad call timeout", map[string]string{config.EnvExpediteCallTimeout: "soon"}, "invalid call_timeout"},
		{"bad log level", map[string]string{config.EnvLoggingLevel: "loud"}, "logging: invalid level"},
		{"blob drive needs storage", map[string]string{"EXPEDITE_DELIVERY_DRIVE": "blob"}, "storage: connection_string required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.LoadFile(writeConfig(t, map[string]string{config.BaseConfigFile: baseTOML}))
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("LoadFile() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadFile() = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestRequiredAddresses(t *testing.T) {
	tests := []struct {
		name    string
		remove  string
		mode    string
		wantErr string
	}{
		{"responsible", `responsible = "ops@example.com"`, "", "responsible required"},
		{"test address in qa", `test_address = "qa@example.com"`, "qa", "test_address required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.mode != "" {
				t.Setenv(config.EnvExpediteMode, tt.mode)
			}
			body := strings.Replace(baseTOML, tt.remove, "", 1)
			_, err := config.LoadFile(writeConfig(t, map[string]string{config.BaseConfigFile: body}))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadFile() = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestVariantsGetUnknown(t *testing.T) {
	var v config.VariantsConfig
	if _, err := v.Get("zip"); err == nil {
		t.Error("Get(zip) = nil error, want unknown variant")
	}
	if !config.IsVariant("folder") || config.IsVariant("zip") {
		t.Error("IsVariant() mismatch")
	}
}

func TestLoggingConfig(t *testing.T) {
	c := config.LoggingConfig{Level: "WARN", Format: "JSON"}
	if err := c.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if c.SlogLevel().String() != "WARN" || !c.JSON() {
		t.Errorf("SlogLevel() = %v JSON() = %v", c.SlogLevel(), c.JSON())
	}
}
