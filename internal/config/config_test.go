package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	base := t.TempDir()
	t.Setenv("ADDONFORGE_BASE_DIR", base)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, base, cfg.BaseDir)
	assert.Equal(t, filepath.Join(base, "vcpkg"), cfg.ToolRoot())
	assert.Equal(t, filepath.Join(base, "ffmpeg"), cfg.SourcePath())
	assert.Equal(t, filepath.Join(base, "addon_src"), cfg.AddonPath())
	assert.Equal(t, filepath.Join(base, ".ffmpeg_staging"), cfg.StagingPath())
	assert.Equal(t, []string{"x264", "x265", "vpx"}, cfg.Package.Features)
	assert.Equal(t, 5*time.Second, cfg.Retry.Backoff.Duration)
	assert.Len(t, cfg.Mirrors, 2)
}

func TestLoadFile(t *testing.T) {
	base := t.TempDir()
	t.Setenv("ADDONFORGE_BASE_DIR", base)

	path := filepath.Join(base, "conf", FileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(`
base_dir = ".."
tool_dir = "/opt/vcpkg"
mirrors = ["https://mirror.example/vcpkg.git"]

[retry]
max_attempts = 5
backoff = "250ms"

[package]
name = "ffmpeg"
features = ["x264"]
triplet = "x64-windows-static"
archive_exts = [".tar.gz"]
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "conf", ".."), cfg.BaseDir)
	assert.Equal(t, "/opt/vcpkg", cfg.ToolRoot())
	assert.Equal(t, []string{"https://mirror.example/vcpkg.git"}, cfg.Mirrors)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Backoff.Duration)
	assert.Equal(t, "x64-windows-static", cfg.Package.Triplet)
	assert.Equal(t, 1, cfg.CloneDepth)
}

func TestLoadEnvOverrides(t *testing.T) {
	base := t.TempDir()
	t.Setenv("ADDONFORGE_BASE_DIR", base)
	t.Setenv("ADDONFORGE_TRIPLET", "arm64-osx")
	t.Setenv("ADDONFORGE_MIRRORS", " https://a.example/v.git , ,https://b.example/v.git")
	t.Setenv("ADDONFORGE_MAX_ATTEMPTS", "7")
	t.Setenv("ADDONFORGE_BACKOFF", "1m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "arm64-osx", cfg.Package.Triplet)
	assert.Equal(t, []string{"https://a.example/v.git", "https://b.example/v.git"}, cfg.Mirrors)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Retry.Backoff.Duration)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("ADDONFORGE_BASE_DIR", t.TempDir())
	t.Setenv("ADDONFORGE_MAX_ATTEMPTS", "many")

	_, err := Load("")
	assert.ErrorContains(t, err, "ADDONFORGE_MAX_ATTEMPTS")
}

func TestLoadRejectsBadFile(t *testing.T) {
	base := t.TempDir()
	t.Setenv("ADDONFORGE_BASE_DIR", base)
	path := filepath.Join(base, FileName)
	require.NoError(t, os.WriteFile(path, []byte("[retry]\nbackoff = \"soon\"\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	require.NoError(t, cfg.Validate())

	cfg.Mirrors = nil
	cfg.Package.Name = " "
	cfg.CloneDepth = 0
	cfg.Retry.MaxAttempts = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "mirror")
	assert.ErrorContains(t, err, "package.name")
	assert.ErrorContains(t, err, "clone_depth")
	assert.ErrorContains(t, err, "max_attempts")
}

func TestValidateDirectories(t *testing.T) {
	base := filepath.Join(t.TempDir(), "project")

	tests := []struct {
		name   string
		mutate func(c *Config)
		key    string
	}{
		{"empty tool_dir", func(c *Config) { c.ToolDir = "" }, "tool_dir"},
		{"blank source_dir", func(c *Config) { c.SourceDir = "  " }, "source_dir"},
		{"dot addon_dir", func(c *Config) { c.AddonDir = "./" }, "addon_dir"},
		{"parent tool_dir", func(c *Config) { c.ToolDir = ".." }, "tool_dir"},
		{"absolute base", func(c *Config) { c.SourceDir = base }, "source_dir"},
		{"absolute ancestor", func(c *Config) { c.AddonDir = filepath.Dir(base) }, "addon_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(base)
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.key)
		})
	}

	cfg := DefaultConfig(base)
	cfg.ToolDir = filepath.Join(filepath.Dir(base), "vcpkg")
	cfg.SourceDir = filepath.Join("third_party", "ffmpeg")
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsEmptyDirectories(t *testing.T) {
	base := t.TempDir()
	t.Setenv("ADDONFORGE_BASE_DIR", base)
	path := filepath.Join(base, FileName)
	require.NoError(t, os.WriteFile(path, []byte("tool_dir = \"\"\nsource_dir = \"\"\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorContains(t, err, "tool_dir")
	assert.ErrorContains(t, err, "source_dir")
}

func TestSaveRoundTrip(t *testing.T) {
	base := t.TempDir()
	t.Setenv("ADDONFORGE_BASE_DIR", base)

	cfg := DefaultConfig(base)
	cfg.Retry.Backoff = Duration{90 * time.Second}
	path := filepath.Join(base, FileName)
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, loaded.Retry.Backoff.Duration)
	assert.Equal(t, cfg.Package, loaded.Package)
}
