package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AppConfig holds all server configuration.
// Priority (lowest → highest): defaults < JSON config file < WEREWOLF_* env vars < CLI flags.
type AppConfig struct {
	// Server
	Host      string   `mapstructure:"host"`
	Port      int      `mapstructure:"port"`
	WSAddr    string   `mapstructure:"ws_addr"`    // WebSocket bridge listen address, empty = off
	WSOrigins []string `mapstructure:"ws_origins"` // allowed Origin headers, "*" = any
	DB        string   `mapstructure:"db"`         // ledger connection string, empty = off

	// Game
	MinPlayers         int           `mapstructure:"min_players"`
	RecommendedPlayers int           `mapstructure:"recommended_players"`
	ActionTimeout      time.Duration `mapstructure:"action_timeout"` // 0 disables

	// Transport
	MaxLineBytes int           `mapstructure:"max_line_bytes"`
	SendQueue    int           `mapstructure:"send_queue"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"` // inbound frames per second
	RateBurst    int           `mapstructure:"rate_burst"`

	// Logging
	LogLevel     string `mapstructure:"log_level"`
	LogOutputDir string `mapstructure:"log_output_dir"`
	LogWire      bool   `mapstructure:"log_wire"`
	LogDB        bool   `mapstructure:"log_db"`

	// AI Storyteller
	StorytellerProvider    string `mapstructure:"storyteller_provider"`    // ollama | openai | claude | gemini | groq | openai-compatible
	StorytellerModel       string `mapstructure:"storyteller_model"`       // model name
	StorytellerOllamaURL   string `mapstructure:"storyteller_ollama_url"`  // Ollama server URL
	StorytellerURL         string `mapstructure:"storyteller_url"`         // base URL for openai-compatible
	StorytellerAPIKey      string `mapstructure:"storyteller_api_key"`     // API key for openai-compatible
	StorytellerTemperature string `mapstructure:"storyteller_temperature"` // float 0-2 as string
	StorytellerThinking    string `mapstructure:"storyteller_thinking"`    // none | low | medium | high | auto
	GroqAPIKey             string `mapstructure:"groq_api_key"`            // API key for groq provider
}

func (cfg AppConfig) toLogConfig() LogConfig {
	return LogConfig{
		OutputDir: cfg.LogOutputDir,
		LogWire:   cfg.LogWire,
		LogDB:     cfg.LogDB,
	}
}

// tcpAddr is the game listener address
func (cfg AppConfig) tcpAddr() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

func defaultConfig() AppConfig {
	return AppConfig{
		Host:                 "0.0.0.0",
		Port:                 3001,
		DB:                   "file::memory:?cache=shared",
		MinPlayers:           5,
		RecommendedPlayers:   6,
		ActionTimeout:        90 * time.Second,
		MaxLineBytes:         4096,
		SendQueue:            256,
		WriteTimeout:         10 * time.Second,
		RateLimit:            10,
		RateBurst:            20,
		LogLevel:             "info",
		StorytellerOllamaURL: "http://localhost:11434",
	}
}

// sanitizeConfig replaces values the server cannot run with by their defaults
func sanitizeConfig(cfg AppConfig) AppConfig {
	def := defaultConfig()
	if cfg.Port <= 0 || cfg.Port > 65535 {
		zap.L().Warn("Config: invalid port, using default", zap.Int("port", cfg.Port))
		cfg.Port = def.Port
	}
	if cfg.MinPlayers < 1 {
		cfg.MinPlayers = def.MinPlayers
	}
	if cfg.RecommendedPlayers < cfg.MinPlayers {
		cfg.RecommendedPlayers = cfg.MinPlayers
	}
	if cfg.ActionTimeout < 0 {
		cfg.ActionTimeout = 0
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = def.MaxLineBytes
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = def.SendQueue
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}
	return cfg
}

func setDefaults(v *viper.Viper, def AppConfig) {
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("ws_addr", def.WSAddr)
	v.SetDefault("ws_origins", def.WSOrigins)
	v.SetDefault("db", def.DB)
	v.SetDefault("min_players", def.MinPlayers)
	v.SetDefault("recommended_players", def.RecommendedPlayers)
	v.SetDefault("action_timeout", def.ActionTimeout)
	v.SetDefault("max_line_bytes", def.MaxLineBytes)
	v.SetDefault("send_queue", def.SendQueue)
	v.SetDefault("write_timeout", def.WriteTimeout)
	v.SetDefault("rate_limit", def.RateLimit)
	v.SetDefault("rate_burst", def.RateBurst)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_output_dir", def.LogOutputDir)
	v.SetDefault("log_wire", def.LogWire)
	v.SetDefault("log_db", def.LogDB)
	v.SetDefault("storyteller_provider", def.StorytellerProvider)
	v.SetDefault("storyteller_model", def.StorytellerModel)
	v.SetDefault("storyteller_ollama_url", def.StorytellerOllamaURL)
	v.SetDefault("storyteller_url", def.StorytellerURL)
	v.SetDefault("storyteller_api_key", def.StorytellerAPIKey)
	v.SetDefault("storyteller_temperature", def.StorytellerTemperature)
	v.SetDefault("storyteller_thinking", def.StorytellerThinking)
	v.SetDefault("groq_api_key", def.GroqAPIKey)
}

// registerFlags registers all CLI flags. Flag names use dashes; the config key is the
// same name with underscores.
func registerFlags(fs *pflag.FlagSet) {
	fs.String("config", "config.json", "path to JSON config file")
	fs.String("host", "", "TCP listen host")
	fs.Int("port", 0, "TCP listen port")
	fs.String("ws-addr", "", "WebSocket bridge listen address (e.g. :8080), empty disables it")
	fs.StringSlice("ws-origins", nil, "allowed WebSocket origins, * for any")
	fs.String("db", "", "ledger connection string")
	fs.Int("min-players", 0, "players required to START")
	fs.Int("recommended-players", 0, "below this START warns")
	fs.Duration("action-timeout", 0, "how long a night role or hunter may take, 0 disables")
	fs.Int("max-line-bytes", 0, "longest accepted protocol line")
	fs.Int("send-queue", 0, "outbound frames buffered per connection")
	fs.Duration("write-timeout", 0, "socket write deadline")
	fs.Float64("rate-limit", 0, "inbound frames per second per connection")
	fs.Int("rate-burst", 0, "inbound burst per connection")
	fs.String("log-level", "", "debug|info|warn|error")
	fs.String("log-output-dir", "", "directory for extended log files")
	fs.Bool("log-wire", false, "log every protocol frame")
	fs.Bool("log-db", false, "log ledger dumps")
	fs.String("storyteller-provider", "", "AI storyteller provider (ollama|openai|claude|gemini|groq|openai-compatible)")
	fs.String("storyteller-model", "", "AI storyteller model name")
	fs.String("storyteller-ollama-url", "", "Ollama server URL")
	fs.String("storyteller-url", "", "base URL for openai-compatible provider")
	fs.String("storyteller-api-key", "", "API key for storyteller provider")
	fs.String("storyteller-temperature", "", "sampling temperature 0-1")
	fs.String("storyteller-thinking", "", "thinking mode: none|low|medium|high|auto")
	fs.String("groq-api-key", "", "Groq API key")
}

// loadConfig layers defaults, the JSON config file, env vars and args.
// A missing config file or .env is not an error.
func loadConfig(args []string) (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		zap.L().Warn("Config: failed to load .env", zap.Error(err))
	}

	fs := pflag.NewFlagSet("werewolf", pflag.ContinueOnError)
	registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return AppConfig{}, err
	}

	v := viper.New()
	setDefaults(v, defaultConfig())

	v.SetEnvPrefix("WEREWOLF")
	v.AutomaticEnv()
	if err := v.BindEnv("groq_api_key", "WEREWOLF_GROQ_API_KEY", "GROQ_API_KEY"); err != nil {
		return AppConfig{}, err
	}

	configPath, _ := fs.GetString("config")
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return AppConfig{}, fmt.Errorf("read config %s: %w", configPath, err)
		}
	} else {
		zap.L().Info("Config: loaded", zap.String("path", configPath))
	}

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return AppConfig{}, bindErr
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse config: %w", err)
	}
	return sanitizeConfig(cfg), nil
}
