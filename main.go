package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"anycoder/client/openai"
	"anycoder/logger"
	"anycoder/text"
	"anycoder/types"
	"anycoder/watcher"

	"github.com/spf13/pflag"
)

const configEnv = "ANYCODER_CONFIG"

type Config struct {
	Root                string  `json:"root"`
	LogLevel            string  `json:"log_level"` // trace, debug, info, warn, error
	LogFile             string  `json:"log_file"`  // empty = stderr
	ProviderURL         string  `json:"provider_url"`
	ProviderModel       string  `json:"provider_model"`
	APIKeyEnv           string  `json:"api_key_env"` // name of the env var holding the API key
	ProviderTemperature float64 `json:"provider_temperature"`
	ProviderMaxTokens   int     `json:"provider_max_tokens"`
	CompletionTimeout   int     `json:"completion_timeout"` // in milliseconds
	MaxRetries          int     `json:"max_retries"`
	CompressRequests    bool    `json:"compress_requests"`
	AnchorMode          string  `json:"anchor_mode"` // strict, best-effort
	Debounce            int     `json:"debounce"`    // in milliseconds
	ContextLines        int     `json:"context_lines"`
	HistoryDB           string  `json:"history_db"`  // empty = no history
	NvimSocket          string  `json:"nvim_socket"` // empty = no editor bridge

	// Connect relays stdin/stdout to a running daemon's NvimSocket
	Connect bool `json:"-"`
}

func defaultConfig() Config {
	return Config{
		Root:              ".",
		LogLevel:          "info",
		ProviderURL:       openai.DefaultURL,
		ProviderModel:     openai.DefaultModel,
		APIKeyEnv:         "OPENROUTER_API_KEY",
		CompletionTimeout: 60000,
		MaxRetries:        2,
		AnchorMode:        string(types.AnchorStrict),
		Debounce:          int(watcher.DefaultDebounce / time.Millisecond),
		ContextLines:      text.NarrowContextLines,
	}
}

func newFlagSet(cfg *Config, configPath *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("anycoder", pflag.ContinueOnError)
	fs.StringVarP(configPath, "config", "c", *configPath, "JSON config file.")
	fs.StringVarP(&cfg.Root, "root", "r", cfg.Root, "Directory to watch.")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: trace, debug, info, warn, error.")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Log file (default: stderr).")
	fs.StringVar(&cfg.ProviderURL, "provider-url", cfg.ProviderURL, "Base URL of the OpenAI-compatible API.")
	fs.StringVarP(&cfg.ProviderModel, "model", "m", cfg.ProviderModel, "Model name.")
	fs.StringVar(&cfg.APIKeyEnv, "api-key-env", cfg.APIKeyEnv, "Environment variable holding the API key.")
	fs.Float64Var(&cfg.ProviderTemperature, "temperature", cfg.ProviderTemperature, "Sampling temperature.")
	fs.IntVar(&cfg.ProviderMaxTokens, "max-tokens", cfg.ProviderMaxTokens, "Maximum tokens in the model response (0 = provider default).")
	fs.IntVar(&cfg.CompletionTimeout, "timeout", cfg.CompletionTimeout, "Timeout of one autocomplete in milliseconds.")
	fs.IntVar(&cfg.MaxRetries, "retries", cfg.MaxRetries, "Retries for failed model calls.")
	fs.BoolVar(&cfg.CompressRequests, "compress", cfg.CompressRequests, "Brotli-compress request bodies.")
	fs.StringVar(&cfg.AnchorMode, "anchor-mode", cfg.AnchorMode, "Handling of responses without a cursor token: strict, best-effort.")
	fs.IntVar(&cfg.Debounce, "debounce", cfg.Debounce, "Quiet period after a write in milliseconds.")
	fs.IntVar(&cfg.ContextLines, "context-lines", cfg.ContextLines, "Lines around the cursor in the small context.")
	fs.StringVar(&cfg.HistoryDB, "history-db", cfg.HistoryDB, "SQLite database recording autocomplete outcomes.")
	fs.StringVar(&cfg.NvimSocket, "nvim-socket", cfg.NvimSocket, "Unix socket for Neovim connections.")
	fs.BoolVar(&cfg.Connect, "connect", cfg.Connect, "Relay stdin/stdout to the daemon at --nvim-socket.")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: anycoder [flags]")
		fmt.Fprintf(os.Stderr, "\nWatches a directory and completes code wherever you write %s.\n", text.CursorMarker)
		fmt.Fprintln(os.Stderr, "\nFlags:")
		fs.PrintDefaults()
	}
	return fs
}

// loadConfig layers defaults, the --config file, the ANYCODER_CONFIG env
// JSON and command-line flags, later sources winning.
func loadConfig(args []string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()
	var configPath string

	// first pass only finds --config and rejects bad flags early
	if err := newFlagSet(&cfg, &configPath).Parse(args); err != nil {
		return Config{}, err
	}

	cfg = defaultConfig()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("invalid config %s: %w", configPath, err)
		}
	}
	if env := getenv(configEnv); env != "" {
		if err := json.Unmarshal([]byte(env), &cfg); err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", configEnv, err)
		}
	}

	if err := newFlagSet(&cfg, &configPath).Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.AnchorMode {
	case "", string(types.AnchorStrict), string(types.AnchorBestEffort), "besteffort", "tolerant":
	default:
		return fmt.Errorf("unknown anchor mode %q", c.AnchorMode)
	}
	if c.Debounce < 0 || c.CompletionTimeout < 0 || c.MaxRetries < 0 {
		return errors.New("debounce, timeout and retries must not be negative")
	}
	if c.Connect && c.NvimSocket == "" {
		return errors.New("--connect needs --nvim-socket")
	}
	return nil
}

func (c Config) providerConfig(getenv func(string) string) types.ProviderConfig {
	return types.ProviderConfig{
		ProviderURL:         c.ProviderURL,
		APIKey:              getenv(c.APIKeyEnv),
		ProviderModel:       c.ProviderModel,
		ProviderTemperature: c.ProviderTemperature,
		ProviderMaxTokens:   c.ProviderMaxTokens,
		CompletionTimeout:   c.CompletionTimeout,
		MaxRetries:          c.MaxRetries,
		CompressRequests:    c.CompressRequests,
	}
}

func runDaemon(config Config) {
	daemon, err := NewDaemon(config, os.Getenv)
	if err != nil {
		logger.Fatal("error creating daemon: %v", err)
	}

	if err := daemon.Start(); err != nil {
		logger.Fatal("error running daemon: %v", err)
	}
}

func runClient(config Config) {
	client := NewClient(config.NvimSocket)
	if err := client.Connect(); err != nil {
		logger.Fatal("error connecting to daemon: %v", err)
	}
}

func main() {
	config, err := loadConfig(os.Args[1:], os.Getenv)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "anycoder: %v\n", err)
		os.Exit(2)
	}

	l, err := logger.Setup(config.LogFile, logger.ParseLogLevel(config.LogLevel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "anycoder: %v\n", err)
		os.Exit(1)
	}
	defer l.Close()

	if config.Connect {
		runClient(config)
		return
	}
	runDaemon(config)
}
