package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: t.Parallel() is intentionally omitted in this package.
// These tests share process-global environment variables; t.Setenv in
// TestLoad_EnvOverride would race with any concurrent reader.

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"python3.11", "python3.10", "python3", "python"}, cfg.Runtime.Candidates)
	assert.Equal(t, 3, cfg.Install.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Install.AttemptTimeout)
	assert.Equal(t, "requirements.txt", cfg.Install.Manifest)
	assert.Empty(t, cfg.Install.SystemPackages)
	assert.Equal(t, "uploads", cfg.Paths.UploadDir)
	assert.Equal(t, "/tmp/uploads", cfg.Paths.TmpUploadDir)
	assert.Equal(t, uint32(0o755), cfg.Paths.Mode)
	assert.Equal(t, "alembic", cfg.Migrate.Tool)
	assert.Equal(t, []string{"upgrade", "head"}, cfg.Migrate.Args)
	assert.Equal(t, "app.main:app", cfg.Launch.Module)
	assert.Equal(t, 1, cfg.Launch.Workers)
	assert.Equal(t, 65*time.Second, cfg.Launch.KeepAlive)
	assert.True(t, cfg.Preflight.Enabled)
	assert.Equal(t, "forwarder-bootstrap", cfg.Telemetry.ServiceName)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FWDBOOT_LAUNCH_WORKERS", "4")
	t.Setenv("FWDBOOT_INSTALL_MAX_ATTEMPTS", "5")
	t.Setenv("FWDBOOT_MIGRATE_TOOL", "custom-migrate")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Launch.Workers)
	assert.Equal(t, 5, cfg.Install.MaxAttempts)
	assert.Equal(t, "custom-migrate", cfg.Migrate.Tool)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
runtime:
  candidates: ["python3.12"]
launch:
  workers: 2
  log_level: debug
preflight:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"python3.12"}, cfg.Runtime.Candidates)
	assert.Equal(t, 2, cfg.Launch.Workers)
	assert.Equal(t, "debug", cfg.Launch.LogLevel)
	assert.False(t, cfg.Preflight.Enabled)
	// Untouched sections keep their defaults.
	assert.Equal(t, "alembic", cfg.Migrate.Tool)
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		wantE string
	}{
		{
			name:  "zero max attempts",
			env:   map[string]string{"FWDBOOT_INSTALL_MAX_ATTEMPTS": "0"},
			wantE: "install.max_attempts",
		},
		{
			name:  "zero workers",
			env:   map[string]string{"FWDBOOT_LAUNCH_WORKERS": "0"},
			wantE: "launch.workers",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, val := range tc.env {
				t.Setenv(k, val)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantE)
		})
	}
}
