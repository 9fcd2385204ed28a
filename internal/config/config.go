package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/loykin/sasswatch/internal/logger"
	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"
)

const (
	DefaultSassBinPath       = "sass"
	DefaultMinCSSExtension   = ".min.css"
	DefaultPauseInterval     = 10 // milliseconds
	DefaultEncoding          = "utf8"
	DefaultAutoPrefixCommand = "postcss --use autoprefixer"
	DefaultListen            = "127.0.0.1:7787"
	DefaultBasePath          = "/api"
)

// DefaultBrowsers is the browserslist query handed to the prefixer.
var DefaultBrowsers = []string{"> 1%", "last 2 versions"}

// Prefixes accepted in front of keys in editor settings files.
var settingsPrefixes = []string{"liveSassCompiler.", "sass."}

var ErrInvalidConfig = errors.New("invalid config")

// Compiler holds everything that affects how a directory is compiled and
// how its output is post-processed.
type Compiler struct {
	SassBinPath                   string   `mapstructure:"sass_bin_path"`
	IncludePath                   []string `mapstructure:"include_path"`
	DisableMinifiedFileGeneration bool     `mapstructure:"disable_minified_file_generation"`
	DisableSourceMap              bool     `mapstructure:"disable_source_map"`
	Debug                         bool     `mapstructure:"debug"`
	PauseInterval                 int      `mapstructure:"pause_interval"`
	DisableAutoPrefixer           bool     `mapstructure:"disable_auto_prefixer"`
	AutoPrefixBrowsersList        []string `mapstructure:"auto_prefix_browsers_list"`
	AutoPrefixCommand             string   `mapstructure:"auto_prefix_command"`
	TargetDirectory               string   `mapstructure:"target_directory"`
	WatchDirectories              []string `mapstructure:"watch_directories"`
	MinCSSExtension               string   `mapstructure:"min_css_extension"`
	Encoding                      string   `mapstructure:"encoding"`
}

func DefaultCompiler() Compiler {
	return Compiler{
		SassBinPath:            DefaultSassBinPath,
		PauseInterval:          DefaultPauseInterval,
		AutoPrefixBrowsersList: append([]string(nil), DefaultBrowsers...),
		AutoPrefixCommand:      DefaultAutoPrefixCommand,
		MinCSSExtension:        DefaultMinCSSExtension,
		Encoding:               DefaultEncoding,
	}
}

// PauseDuration is how long a freshly started compiler must stay alive.
func (c Compiler) PauseDuration() time.Duration {
	return time.Duration(c.PauseInterval) * time.Millisecond
}

func (c Compiler) Validate() error {
	switch {
	case strings.TrimSpace(c.SassBinPath) == "":
		return fmt.Errorf("%w: sass_bin_path is empty", ErrInvalidConfig)
	case c.MinCSSExtension == "":
		return fmt.Errorf("%w: min_css_extension is empty", ErrInvalidConfig)
	case !strings.HasSuffix(c.MinCSSExtension, ".css") || c.MinCSSExtension == ".css":
		return fmt.Errorf("%w: min_css_extension %q must end in .css and differ from it", ErrInvalidConfig, c.MinCSSExtension)
	case c.PauseInterval < 0:
		return fmt.Errorf("%w: pause_interval must not be negative", ErrInvalidConfig)
	}
	return nil
}

// defaults keyed the way viper sees them; also the set of recognised keys.
func compilerDefaults(c Compiler) map[string]any {
	return map[string]any{
		"sass_bin_path":                    c.SassBinPath,
		"include_path":                     c.IncludePath,
		"disable_minified_file_generation": c.DisableMinifiedFileGeneration,
		"disable_source_map":               c.DisableSourceMap,
		"debug":                            c.Debug,
		"pause_interval":                   c.PauseInterval,
		"disable_auto_prefixer":            c.DisableAutoPrefixer,
		"auto_prefix_browsers_list":        c.AutoPrefixBrowsersList,
		"auto_prefix_command":              c.AutoPrefixCommand,
		"target_directory":                 c.TargetDirectory,
		"watch_directories":                c.WatchDirectories,
		"min_css_extension":                c.MinCSSExtension,
		"encoding":                         c.Encoding,
	}
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Color      bool   `mapstructure:"color"`
	Timestamps bool   `mapstructure:"timestamps"`
	Source     bool   `mapstructure:"source"`
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func (l LogConfig) Logger() logger.Config {
	return logger.Config{
		Slog: logger.SlogConfig{
			Level:      logger.Level(l.Level),
			Format:     logger.Format(l.Format),
			Color:      l.Color,
			TimeStamps: l.Timestamps,
			Source:     l.Source,
		},
		File: logger.FileConfig{
			Dir:        l.Dir,
			MaxSizeMB:  l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAgeDays: l.MaxAgeDays,
			Compress:   l.Compress,
		},
	}
}

// File is the daemon configuration file.
type File struct {
	ProjectRoot   string    `mapstructure:"project_root"`
	Listen        string    `mapstructure:"listen"`
	BasePath      string    `mapstructure:"base_path"`
	MetricsListen string    `mapstructure:"metrics_listen"`
	StoreDSN      string    `mapstructure:"store_dsn"`
	HistoryDSN    []string  `mapstructure:"history_dsn"`
	SettingsFile  string    `mapstructure:"settings_file"`
	Log           LogConfig `mapstructure:"log"`
	Compiler      Compiler  `mapstructure:"compiler"`
}

// Default returns the configuration used when no file is given.
func Default() *File {
	return &File{
		ProjectRoot: ".",
		Listen:      DefaultListen,
		BasePath:    DefaultBasePath,
		Log:         LogConfig{Level: "info", Format: "text", Timestamps: true},
		Compiler:    DefaultCompiler(),
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("project_root", d.ProjectRoot)
	v.SetDefault("listen", d.Listen)
	v.SetDefault("base_path", d.BasePath)
	v.SetDefault("metrics_listen", "")
	v.SetDefault("store_dsn", "")
	v.SetDefault("history_dsn", []string{})
	v.SetDefault("settings_file", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.timestamps", d.Log.Timestamps)
	for k, val := range compilerDefaults(d.Compiler) {
		v.SetDefault("compiler."+k, val)
	}
	v.SetEnvPrefix("SASSWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the daemon file. TOML, YAML and JSON are picked by extension;
// .jsonc files may carry comments and trailing commas. Relative paths inside
// the file are resolved against the file's directory.
func Load(path string) (*File, error) {
	v := newViper()
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	path = filepath.Clean(path)
	if strings.EqualFold(filepath.Ext(path), ".jsonc") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigType("json")
		if err := v.ReadConfig(bytes.NewReader(jsonc.ToJSON(data))); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	var fc File
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	base := filepath.Dir(path)
	fc.ProjectRoot = relativeTo(base, fc.ProjectRoot)
	if fc.SettingsFile != "" {
		cmp, err := overlaySettings(fc.Compiler, relativeTo(base, fc.SettingsFile))
		if err != nil {
			return nil, err
		}
		fc.Compiler = cmp
	}
	if err := fc.Compiler.Validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

// LoadSettings reads an editor settings file (JSON with comments) on top of
// the compiler defaults. Keys may be camelCase and prefixed with
// "liveSassCompiler." or "sass.". Unrelated keys are ignored.
func LoadSettings(path string) (Compiler, error) {
	cmp, err := overlaySettings(DefaultCompiler(), path)
	if err != nil {
		return Compiler{}, err
	}
	if err := cmp.Validate(); err != nil {
		return Compiler{}, err
	}
	return cmp, nil
}

func overlaySettings(base Compiler, path string) (Compiler, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Compiler{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return Compiler{}, fmt.Errorf("parse settings %s: %w", path, err)
	}

	defaults := compilerDefaults(base)
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	known := make(map[string]any)
	for k, val := range raw {
		key := settingsKey(k)
		if _, ok := defaults[key]; ok {
			known[key] = val
		}
	}
	if err := v.MergeConfigMap(known); err != nil {
		return Compiler{}, err
	}
	var out Compiler
	if err := v.Unmarshal(&out); err != nil {
		return Compiler{}, fmt.Errorf("decode settings %s: %w", path, err)
	}
	return out, nil
}

func settingsKey(k string) string {
	for _, p := range settingsPrefixes {
		if strings.HasPrefix(k, p) {
			k = strings.TrimPrefix(k, p)
			break
		}
	}
	if strings.Contains(k, ".") {
		return ""
	}
	return snakeCase(k)
}

// snakeCase maps minCSSExtension to min_css_extension.
func snakeCase(s string) string {
	rs := []rune(s)
	var b strings.Builder
	for i, r := range rs {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && (unicode.IsLower(rs[i-1]) || unicode.IsDigit(rs[i-1]))
			nextLower := i > 0 && i+1 < len(rs) && unicode.IsLower(rs[i+1]) && unicode.IsUpper(rs[i-1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func relativeTo(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
