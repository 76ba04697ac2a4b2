package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const FileName = "addonforge.toml"

type Config struct {
	BaseDir    string   `toml:"base_dir"`
	ToolDir    string   `toml:"tool_dir"`
	SourceDir  string   `toml:"source_dir"`
	AddonDir   string   `toml:"addon_dir"`
	StateFile  string   `toml:"state_file"`
	ReportFile string   `toml:"report_file"`
	Mirrors    []string `toml:"mirrors"`
	CloneDepth int      `toml:"clone_depth"`
	Retry      Retry    `toml:"retry"`
	Package    Package  `toml:"package"`
}

type Retry struct {
	MaxAttempts int      `toml:"max_attempts"`
	Backoff     Duration `toml:"backoff"`
}

type Package struct {
	Name        string   `toml:"name"`
	Features    []string `toml:"features"`
	Triplet     string   `toml:"triplet"`
	ArchiveExts []string `toml:"archive_exts"`
}

// Duration reads and writes TOML strings such as "2s" or "1m30s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func DefaultConfig(base string) *Config {
	return &Config{
		BaseDir:    base,
		ToolDir:    "vcpkg",
		SourceDir:  "ffmpeg",
		AddonDir:   "addon_src",
		StateFile:  filepath.Join(".addonforge", "state.db"),
		ReportFile: filepath.Join("addon_src", "prepare.json"),
		Mirrors: []string{
			"https://github.com/microsoft/vcpkg.git",
			"https://gitee.com/mirrors/vcpkg.git",
		},
		CloneDepth: 1,
		Retry: Retry{
			MaxAttempts: 3,
			Backoff:     Duration{5 * time.Second},
		},
		Package: Package{
			Name:        "ffmpeg",
			Features:    []string{"x264", "x265", "vpx"},
			ArchiveExts: []string{".tar.gz", ".tar.xz", ".tar.zst", ".zip"},
		},
	}
}

// Load reads .env, then the TOML file at path (or addonforge.toml in the
// base directory), then ADDONFORGE_* overrides. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	base := strings.TrimSpace(os.Getenv("ADDONFORGE_BASE_DIR"))
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		base = wd
	}

	cfg := DefaultConfig(base)

	if path == "" {
		path = filepath.Join(base, FileName)
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if cfg.BaseDir == "" {
			cfg.BaseDir = base
		} else if !filepath.IsAbs(cfg.BaseDir) {
			cfg.BaseDir = filepath.Join(filepath.Dir(path), cfg.BaseDir)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return Write(cfg, f)
}

func Write(cfg *Config, w io.Writer) error {
	return toml.NewEncoder(w).Encode(cfg)
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("ADDONFORGE_TRIPLET")); v != "" {
		c.Package.Triplet = v
	}
	if v := strings.TrimSpace(os.Getenv("ADDONFORGE_TOOL_DIR")); v != "" {
		c.ToolDir = v
	}
	if v := strings.TrimSpace(os.Getenv("ADDONFORGE_MIRRORS")); v != "" {
		var mirrors []string
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				mirrors = append(mirrors, m)
			}
		}
		c.Mirrors = mirrors
	}
	if v := strings.TrimSpace(os.Getenv("ADDONFORGE_MAX_ATTEMPTS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ADDONFORGE_MAX_ATTEMPTS: %w", err)
		}
		c.Retry.MaxAttempts = n
	}
	if v := strings.TrimSpace(os.Getenv("ADDONFORGE_BACKOFF")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ADDONFORGE_BACKOFF: %w", err)
		}
		c.Retry.Backoff = Duration{d}
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Mirrors) == 0 {
		errs = append(errs, errors.New("at least one mirror is required"))
	}
	if strings.TrimSpace(c.Package.Name) == "" {
		errs = append(errs, errors.New("package.name is required"))
	}
	if c.CloneDepth < 1 {
		errs = append(errs, fmt.Errorf("clone_depth must be positive, got %d", c.CloneDepth))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.Backoff.Duration < 0 {
		errs = append(errs, errors.New("retry.backoff must not be negative"))
	}
	if len(c.Package.ArchiveExts) == 0 {
		errs = append(errs, errors.New("package.archive_exts is required"))
	}
	dirs := []struct {
		key   string
		value string
	}{
		{"tool_dir", c.ToolDir},
		{"source_dir", c.SourceDir},
		{"addon_dir", c.AddonDir},
	}
	for _, d := range dirs {
		if err := c.checkDir(d.key, d.value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// checkDir rejects directories that would resolve to base_dir or one of its
// parents. These trees get removed wholesale by bootstrap retries and clean.
func (c *Config) checkDir(key, value string) error {
	v := strings.TrimSpace(value)
	if v == "" || filepath.Clean(v) == "." {
		return fmt.Errorf("%s must name a directory, got %q", key, value)
	}
	if contains(c.resolve(v), c.BaseDir) {
		return fmt.Errorf("%s %q must not be base_dir or one of its parents", key, value)
	}
	return nil
}

// contains reports whether path is dir or lies below it.
func contains(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

func (c *Config) ToolRoot() string   { return c.resolve(c.ToolDir) }
func (c *Config) SourcePath() string { return c.resolve(c.SourceDir) }
func (c *Config) AddonPath() string  { return c.resolve(c.AddonDir) }
func (c *Config) StatePath() string  { return c.resolve(c.StateFile) }
func (c *Config) ReportPath() string { return c.resolve(c.ReportFile) }

// StagingPath is where archives are unpacked before promotion.
func (c *Config) StagingPath() string {
	return filepath.Join(filepath.Dir(c.SourcePath()), "."+filepath.Base(c.SourceDir)+"_staging")
}
