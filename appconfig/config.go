package appconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// ExtractOptions mirrors the flags understood by the external unpacking tool.
type ExtractOptions struct {
	IgnoreExts   string `json:"ignoreExts,omitempty" toml:"ignore_exts,omitempty"`
	OnlyExts     string `json:"onlyExts,omitempty" toml:"only_exts,omitempty"`
	Debug        bool   `json:"debug,omitempty" toml:"debug,omitempty"`
	ConvertTex   bool   `json:"convertTex,omitempty" toml:"convert_tex,omitempty"`
	SingleDir    bool   `json:"singleDir,omitempty" toml:"single_dir,omitempty"`
	Recursive    bool   `json:"recursive,omitempty" toml:"recursive,omitempty"`
	CopyProject  bool   `json:"copyProject,omitempty" toml:"copy_project,omitempty"`
	UseName      bool   `json:"useName,omitempty" toml:"use_name,omitempty"`
	NoTexConvert bool   `json:"noTexConvert,omitempty" toml:"no_tex_convert,omitempty"`
	Overwrite    bool   `json:"overwrite,omitempty" toml:"overwrite,omitempty"`
}

// TaggerConfig holds the ONNX tagger settings.
type TaggerConfig struct {
	ModelDir             string  `json:"modelDir" toml:"model_dir"`
	ORTSharedLibraryPath string  `json:"ortSharedLibraryPath" toml:"ort_shared_library_path"`
	Threshold            float64 `json:"threshold" toml:"threshold"`
}

// Config holds application configuration: library and output locations,
// external tool overrides and tagger settings.
type Config struct {
	LibraryRoot string `json:"libraryRoot" toml:"library_root"`
	OutputDir   string `json:"outputDir" toml:"output_dir"`
	Flatten     bool   `json:"flatten" toml:"flatten"`

	// ResourcesDir is the directory holding the bundled platform tools
	// (win-x64/, osx-arm64/, ...). Empty means "next to the executable".
	ResourcesDir    string `json:"resourcesDir" toml:"resources_dir"`
	ExtractTool     string `json:"extractTool" toml:"extract_tool"`
	WallpaperHelper string `json:"wallpaperHelper" toml:"wallpaper_helper"`

	CatalogPath string `json:"catalogPath" toml:"catalog_path"`
	MaxAssets   int    `json:"maxAssets" toml:"max_assets"`
	LogLevel    string `json:"logLevel" toml:"log_level"`

	Extract ExtractOptions `json:"extract" toml:"extract"`
	Tagger  TaggerConfig   `json:"tagger" toml:"tagger"`
}

const (
	DefaultMaxAssets = 15
	DefaultThreshold = 0.35
)

var (
	cfgMu sync.RWMutex
	cfg   = defaultConfig()
)

// defaultConfig returns a Config populated with sensible defaults.
func defaultConfig() Config {
	return Config{
		MaxAssets: DefaultMaxAssets,
		LogLevel:  "info",
		Extract:   ExtractOptions{Recursive: true},
		Tagger:    TaggerConfig{Threshold: DefaultThreshold},
	}
}

// Default returns the built-in configuration.
func Default() Config { return defaultConfig() }

// Get returns a copy of the current in-memory config.
func Get() Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg
}

// Set replaces the in-memory config.
func Set(c Config) {
	cfgMu.Lock()
	cfg = c
	cfgMu.Unlock()
}

// Path returns the config file location: WALLKIT_CONFIG when set, otherwise
// config.json under the user config directory.
func Path() (string, error) {
	if p := strings.TrimSpace(os.Getenv("WALLKIT_CONFIG")); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "locate user config directory")
	}
	return filepath.Join(dir, "wallkit", "config.json"), nil
}

// Load reads the config at path (or Path() when empty), applies defaults and
// environment overrides, and updates the in-memory config. A missing file is
// not an error.
func Load(path string) (Config, string, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return Config{}, "", err
		}
		path = p
	}

	c := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, &c); err != nil {
			return Config{}, path, err
		}
	case os.IsNotExist(err):
	default:
		return Config{}, path, errors.Wrapf(err, "read config file at %s", path)
	}

	applyEnv(&c)
	mergeDefaults(&c)
	Set(c)
	return c, path, nil
}

func decode(path string, data []byte, c *Config) error {
	if isTOML(path) {
		if _, err := toml.Decode(string(data), c); err != nil {
			return errors.Wrapf(err, "parse config TOML %s", path)
		}
		return nil
	}
	if err := json.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parse config JSON %s", path)
	}
	return nil
}

// mergeDefaults fills zero values that have a non-zero default.
func mergeDefaults(c *Config) {
	def := defaultConfig()
	if c.MaxAssets <= 0 {
		c.MaxAssets = def.MaxAssets
	}
	if c.Tagger.Threshold <= 0 || c.Tagger.Threshold > 1 {
		c.Tagger.Threshold = def.Tagger.Threshold
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

func applyEnv(c *Config) {
	c.LibraryRoot = getEnv("WALLKIT_LIBRARY_ROOT", c.LibraryRoot)
	c.OutputDir = getEnv("WALLKIT_OUTPUT_DIR", c.OutputDir)
	c.ResourcesDir = getEnv("WALLKIT_RESOURCES_DIR", c.ResourcesDir)
	c.ExtractTool = getEnv("WALLKIT_EXTRACT_TOOL", c.ExtractTool)
	c.CatalogPath = getEnv("WALLKIT_CATALOG", c.CatalogPath)
	c.LogLevel = getEnv("WALLKIT_LOG_LEVEL", c.LogLevel)
	c.Tagger.ModelDir = getEnv("WALLKIT_MODEL_DIR", c.Tagger.ModelDir)
	c.Tagger.ORTSharedLibraryPath = getEnv("ONNXRUNTIME_SHARED_LIBRARY_PATH", c.Tagger.ORTSharedLibraryPath)
	c.Tagger.Threshold = getEnvFloat("WALLKIT_TAG_THRESHOLD", c.Tagger.Threshold)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// Save writes the config to disk, creating the directory as needed. Returns the path.
func Save(path string, c Config) (string, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return "", err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, errors.Wrap(err, "create config directory")
	}

	var data []byte
	if isTOML(path) {
		var b strings.Builder
		if err := toml.NewEncoder(&b).Encode(c); err != nil {
			return path, errors.Wrap(err, "marshal config")
		}
		data = []byte(b.String())
	} else {
		var err error
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return path, errors.Wrap(err, "marshal config")
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return path, errors.Wrap(err, "write config file")
	}
	Set(c)
	return path, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
