package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/cwygoda/ytaudio/internal/retry"
)

// Formats lists the supported output formats.
var Formats = []string{"mp3", "aac", "opus", "wav"}

// Qualities lists the bitrate presets.
var Qualities = []string{"best", "good", "small"}

// MaxRetries is the largest retry count whose attempts fit retry.MaxAttempts.
const MaxRetries = retry.MaxAttempts - 1

// bitratePresets maps format and quality to kbps. wav is lossless.
var bitratePresets = map[string]map[string]int{
	"mp3":  {"best": 320, "good": 192, "small": 128},
	"aac":  {"best": 256, "good": 192, "small": 128},
	"opus": {"best": 192, "good": 128, "small": 96},
}

// FetcherConfig defines an external command fetcher for matching URLs.
type FetcherConfig struct {
	Name    string   `toml:"name"`
	Pattern string   `toml:"pattern"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// Config holds application configuration.
type Config struct {
	OutputDir      string          `toml:"output_dir"`
	Format         string          `toml:"format"`
	Quality        string          `toml:"quality"`
	BitrateKbps    int             `toml:"bitrate"`
	Workers        int             `toml:"workers"`
	Retries        int             `toml:"retries"`
	BaseDelay      time.Duration   `toml:"base_delay"`
	MaxDelay       time.Duration   `toml:"max_delay"`
	NoJitter       bool            `toml:"no_jitter"`
	RetryUnknown   bool            `toml:"retry_unknown"`
	NoMetadata     bool            `toml:"no_metadata"`
	HistoryDB      string          `toml:"history_db"`
	NoHistory      bool            `toml:"no_history"`
	SkipDownloaded bool            `toml:"skip_downloaded"`
	Listen         string          `toml:"listen"`
	Secret         string          `toml:"secret"`
	LogLevel       string          `toml:"log_level"`
	NoTUI          bool            `toml:"no_tui"`
	YTDLPPath      string          `toml:"ytdlp_path"`
	FFmpegPath     string          `toml:"ffmpeg_path"`
	Fetchers       []FetcherConfig `toml:"fetcher"`

	// Not read from the config file.
	ConfigPath string   `toml:"-"`
	BatchFile  string   `toml:"-"`
	URLs       []string `toml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		OutputDir:  DefaultOutputDir(),
		Format:     "mp3",
		Quality:    "best",
		Workers:    4,
		Retries:    3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		HistoryDB:  DefaultDBPath(),
		LogLevel:   "info",
		YTDLPPath:  "yt-dlp",
		FFmpegPath: "ffmpeg",
	}
}

// DefaultDBPath returns the default history database path using XDG_CACHE_HOME.
func DefaultDBPath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "ytaudio", "history.db")
}

// DefaultConfigPath returns the config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "ytaudio", "config.toml")
}

// DefaultOutputDir is the current working directory.
func DefaultOutputDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// ExpandPath expands a leading ~/ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// LoadFile decodes a TOML file over cfg. A missing file is not an error
// unless required is set.
func LoadFile(path string, cfg *Config, required bool) error {
	_, err := toml.DecodeFile(path, cfg)
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrNotExist) && !required {
		return nil
	}
	return fmt.Errorf("load config %s: %w", path, err)
}

// Load builds Config from defaults, the config file, .env and YTAUDIO_*
// environment variables, and finally args. Positional args are URLs.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	path, explicit := configPathFromArgs(args)
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := LoadFile(path, cfg, explicit); err != nil {
		return nil, err
	}
	cfg.ConfigPath = path
	applyEnv(cfg)

	fs := flag.NewFlagSet("ytaudio", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  ytaudio [flags] URL...\n  ytaudio -f urls.txt [flags]\n  ytaudio history [-limit N]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Config file path")
	fs.StringVar(&cfg.BatchFile, "file", "", "Read URLs from file, one per line")
	fs.StringVar(&cfg.BatchFile, "f", "", "Shorthand for --file")
	fs.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Output directory")
	fs.StringVar(&cfg.OutputDir, "o", cfg.OutputDir, "Shorthand for --output-dir")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "Output format: mp3, aac, opus, wav")
	fs.StringVar(&cfg.Quality, "quality", cfg.Quality, "Bitrate preset: best, good, small")
	fs.StringVar(&cfg.Quality, "q", cfg.Quality, "Shorthand for --quality")
	fs.IntVar(&cfg.BitrateKbps, "bitrate", cfg.BitrateKbps, "Bitrate in kbps, overrides --quality")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Parallel downloads (1-16)")
	fs.IntVar(&cfg.Workers, "w", cfg.Workers, "Shorthand for --workers")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, fmt.Sprintf("Retries per URL after the first attempt (0-%d)", MaxRetries))
	fs.DurationVar(&cfg.BaseDelay, "base-delay", cfg.BaseDelay, "First retry delay")
	fs.DurationVar(&cfg.MaxDelay, "max-delay", cfg.MaxDelay, "Maximum retry delay")
	fs.BoolVar(&cfg.NoJitter, "no-jitter", cfg.NoJitter, "Disable retry jitter")
	fs.BoolVar(&cfg.RetryUnknown, "retry-unknown", cfg.RetryUnknown, "Retry errors that match no known pattern")
	fs.BoolVar(&cfg.NoMetadata, "no-metadata", cfg.NoMetadata, "Do not embed title and artist tags")
	fs.StringVar(&cfg.HistoryDB, "history-db", cfg.HistoryDB, "SQLite history database path")
	fs.BoolVar(&cfg.NoHistory, "no-history", cfg.NoHistory, "Do not record download history")
	fs.BoolVar(&cfg.SkipDownloaded, "skip-downloaded", cfg.SkipDownloaded, "Skip URLs already downloaded according to history")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "Serve /health, /status and /metrics on this address")
	fs.StringVar(&cfg.Secret, "secret", cfg.Secret, "Require signed POST /cancel requests with this secret")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.BoolVar(&cfg.NoTUI, "no-tui", cfg.NoTUI, "Plain log output instead of the live display")
	fs.StringVar(&cfg.YTDLPPath, "ytdlp", cfg.YTDLPPath, "yt-dlp binary")
	fs.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "ffmpeg binary")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.URLs = fs.Args()
	cfg.OutputDir = ExpandPath(cfg.OutputDir)
	cfg.HistoryDB = ExpandPath(cfg.HistoryDB)
	cfg.BatchFile = ExpandPath(cfg.BatchFile)
	cfg.Format = strings.ToLower(cfg.Format)
	cfg.Quality = strings.ToLower(cfg.Quality)
	return cfg, nil
}

// configPathFromArgs finds --config ahead of flag parsing so the file can
// supply flag defaults.
func configPathFromArgs(args []string) (string, bool) {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return ExpandPath(value), true
		}
		if i+1 < len(args) {
			return ExpandPath(args[i+1]), true
		}
	}
	return "", false
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("YTAUDIO_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("YTAUDIO_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("YTAUDIO_QUALITY"); v != "" {
		cfg.Quality = v
	}
	if v := os.Getenv("YTAUDIO_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("YTAUDIO_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retries = n
		}
	}
	if v := os.Getenv("YTAUDIO_HISTORY_DB"); v != "" {
		cfg.HistoryDB = v
	}
	if v := os.Getenv("YTAUDIO_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("YTAUDIO_SECRET"); v != "" {
		cfg.Secret = v
	}
	if v := os.Getenv("YTAUDIO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("YTAUDIO_YTDLP"); v != "" {
		cfg.YTDLPPath = v
	}
	if v := os.Getenv("YTAUDIO_FFMPEG"); v != "" {
		cfg.FFmpegPath = v
	}
}

// Validate checks option ranges and enumerations.
func (c *Config) Validate() error {
	if !slices.Contains(Formats, c.Format) {
		return fmt.Errorf("invalid format %q (expected %s)", c.Format, strings.Join(Formats, ", "))
	}
	if !slices.Contains(Qualities, c.Quality) {
		return fmt.Errorf("invalid quality %q (expected %s)", c.Quality, strings.Join(Qualities, ", "))
	}
	if c.BitrateKbps < 0 {
		return fmt.Errorf("invalid bitrate %d", c.BitrateKbps)
	}
	if c.Workers < 1 || c.Workers > 16 {
		return fmt.Errorf("invalid workers %d (expected 1-16)", c.Workers)
	}
	if c.Retries < 0 || c.Retries > MaxRetries {
		return fmt.Errorf("invalid retries %d (expected 0-%d)", c.Retries, MaxRetries)
	}
	if _, err := retry.NewPolicy(c.RetryConfig()); err != nil {
		return err
	}
	for _, fc := range c.Fetchers {
		if fc.Name == "" || fc.Pattern == "" || fc.Command == "" {
			return fmt.Errorf("fetcher %q: name, pattern and command are required", fc.Name)
		}
	}
	return nil
}

// Bitrate resolves the target bitrate in kbps; 0 means codec default.
func (c *Config) Bitrate() int {
	if c.Format == "wav" {
		return 0
	}
	if c.BitrateKbps > 0 {
		return c.BitrateKbps
	}
	return bitratePresets[c.Format][c.Quality]
}

// RetryConfig maps the retry options onto retry.Config.
func (c *Config) RetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  c.Retries + 1,
		BaseDelay:    c.BaseDelay,
		MaxDelay:     c.MaxDelay,
		Jitter:       !c.NoJitter,
		RetryUnknown: c.RetryUnknown,
	}
}
