package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
app:
  name: "termin"
  base_url: "https://example.com"
database:
  path: "test.db"
admin:
  password: "secret"
  token_secret: "signing-secret"
zoom:
  account_id: "acc"
  client_id: "cid"
  client_secret: "csecret"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.App.Name != "termin" {
		t.Errorf("expected app name termin, got %s", cfg.App.Name)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Scheduling.Timezone != "Europe/Berlin" {
		t.Errorf("expected default timezone, got %s", cfg.Scheduling.Timezone)
	}
	if !cfg.Zoom.Configured() {
		t.Error("expected zoom to be configured")
	}
	if cfg.Google.Configured() {
		t.Error("expected google to be unconfigured")
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("TERMIN_ADMIN_PASSWORD", "from-env")

	yamlContent := `
database:
  path: "test.db"
admin:
  password: "${TERMIN_ADMIN_PASSWORD}"
  token_secret: "signing-secret"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Admin.Password != "from-env" {
		t.Errorf("expected password from env, got %s", cfg.Admin.Password)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Admin:    AdminConfig{Password: "pw", TokenSecret: "secret"},
			},
			wantErr: false,
		},
		{
			name: "missing database path",
			cfg: Config{
				Admin: AdminConfig{Password: "pw", TokenSecret: "secret"},
			},
			wantErr: true,
		},
		{
			name: "missing admin password",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Admin:    AdminConfig{TokenSecret: "secret"},
			},
			wantErr: true,
		},
		{
			name: "zoom configured without secret",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Admin:    AdminConfig{Password: "pw", TokenSecret: "secret"},
				Zoom:     ZoomConfig{AccountID: "a", ClientID: "c"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
