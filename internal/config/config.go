package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/inflatable-cookie/effigy-sub000/internal/logger"
	"github.com/inflatable-cookie/effigy-sub000/internal/process"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "EFFIGY"

// FileConfig represents the top-level structure of a session file.
type FileConfig struct {
	Env               []string      `mapstructure:"env"`
	EnvFiles          []string      `mapstructure:"env_files"`
	Processes         []ProcConfig  `mapstructure:"processes"`
	TabOrder          []string      `mapstructure:"tab_order"`
	DismissOnComplete bool          `mapstructure:"dismiss_on_complete"`
	ShellTab          string        `mapstructure:"shell_tab"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	Log               logger.Config `mapstructure:"log"`
	HistoryDSN        string        `mapstructure:"history_dsn"`
	MetricsListen     string        `mapstructure:"metrics_listen"`
}

type ProcConfig struct {
	Name         string   `mapstructure:"name"`
	Run          string   `mapstructure:"run"`
	Cwd          string   `mapstructure:"cwd"`
	StartDelayMS int      `mapstructure:"start_delay_ms"`
	PTY          bool     `mapstructure:"pty"`
	Env          []string `mapstructure:"env"`
}

// Config is a loaded, validated session.
type Config struct {
	// Root anchors relative working directories: the session file's directory.
	Root              string
	Specs             []process.Spec
	TabOrder          []string
	DismissOnComplete bool
	ShellTab          string
	ShutdownTimeout   time.Duration
	// Env holds global KEY=VALUE pairs: env_files in order, then env.
	Env           []string
	Log           logger.Config
	HistoryDSN    string
	MetricsListen string
}

// Toggles are environment switches read once at session start.
type Toggles struct {
	Diagnostics  bool // EFFIGY_TUI_DIAGNOSTICS
	DisableVT100 bool // EFFIGY_TUI_DISABLE_VT100
}

// LoadToggles reads the EFFIGY_TUI_* switches from the environment.
func LoadToggles() Toggles {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return Toggles{
		Diagnostics:  v.GetBool("tui_diagnostics"),
		DisableVT100: v.GetBool("tui_disable_vt100"),
	}
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("toml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// keys must be known for AutomaticEnv to apply during Unmarshal
	for _, k := range []string{"dismiss_on_complete", "shell_tab", "shutdown_timeout", "history_dsn", "metrics_listen",
		"log.file", "log.level", "log.format"} {
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads and validates a session file. TOML, YAML and JSON are selected
// by extension; files without one are read as TOML. EFFIGY_* variables
// override scalar settings (EFFIGY_HISTORY_DSN, EFFIGY_LOG_FILE, ...).
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	root, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}

	specs, err := buildSpecs(fc.Processes)
	if err != nil {
		return nil, err
	}
	env, err := globalEnv(root, fc)
	if err != nil {
		return nil, err
	}
	if fc.ShutdownTimeout < 0 {
		return nil, errors.New("shutdown_timeout must not be negative")
	}
	return &Config{
		Root:              root,
		Specs:             specs,
		TabOrder:          fc.TabOrder,
		DismissOnComplete: fc.DismissOnComplete,
		ShellTab:          fc.ShellTab,
		ShutdownTimeout:   fc.ShutdownTimeout,
		Env:               env,
		Log:               fc.Log,
		HistoryDSN:        fc.HistoryDSN,
		MetricsListen:     fc.MetricsListen,
	}, nil
}

func buildSpecs(pcs []ProcConfig) ([]process.Spec, error) {
	if len(pcs) == 0 {
		return nil, errors.New("config defines no processes")
	}
	seen := make(map[string]struct{}, len(pcs))
	out := make([]process.Spec, 0, len(pcs))
	for i, pc := range pcs {
		name := strings.TrimSpace(pc.Name)
		if name == "" {
			return nil, fmt.Errorf("process #%d requires name", i+1)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate process name %q", name)
		}
		seen[name] = struct{}{}
		if strings.TrimSpace(pc.Run) == "" {
			return nil, fmt.Errorf("process %s requires run", name)
		}
		if pc.StartDelayMS < 0 {
			return nil, fmt.Errorf("process %s: start_delay_ms must not be negative", name)
		}
		out = append(out, process.Spec{
			Name:       name,
			Command:    pc.Run,
			WorkDir:    pc.Cwd,
			StartDelay: time.Duration(pc.StartDelayMS) * time.Millisecond,
			PTY:        pc.PTY,
			Env:        pc.Env,
		})
	}
	return out, nil
}

// globalEnv applies env_files in order, then the env list. Relative env
// file paths are resolved against root.
func globalEnv(root string, fc FileConfig) ([]string, error) {
	var out []string
	for _, p := range fc.EnvFiles {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		pairs, err := LoadEnvFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, pairs...)
	}
	for _, kv := range fc.Env {
		if strings.IndexByte(kv, '=') > 0 {
			out = append(out, kv)
		}
	}
	return out, nil
}

// LoadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes) preserving file order. Lines starting with # are ignored.
func LoadEnvFile(path string) ([]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			k := strings.TrimSpace(line[:i])
			if k == "" {
				continue
			}
			out = append(out, k+"="+strings.TrimSpace(line[i+1:]))
		}
	}
	return out, nil
}
