package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPrompt is the instruction sent to the vision model alongside the
// tongue photo.
const DefaultPrompt = `
You are an expert Traditional Chinese Medicine (TCM) practitioner.
Analyze the provided tongue image step-by-step:
1. Tongue Color: (e.g., Pale, Red, Purple)
2. Coating Color & Thickness: (e.g., White, Yellow, Thin, Thick)
3. Shape/Features: (e.g., Swollen, Teeth marks, Cracks)

Based on this, provide a TCM Syndrome differentiation and recommend
a standard herbal formula.
`

// DefaultBoilingInstructions is shown under every successful analysis.
const DefaultBoilingInstructions = `
---
**Standard Boiling Instructions:**
1. Soak herbs in cold water for 30 minutes.
2. Bring to a boil, then simmer for 40 minutes.
3. Strain and drink while warm.
`

type Config struct {
	ListenAddr          string `yaml:"listen_addr"`
	DBPath              string `yaml:"db_path"`
	SaveDir             string `yaml:"save_dir"`
	VisionBackend       string `yaml:"vision_backend"`
	GoogleAPIKey        string `yaml:"google_api_key"`
	GeminiModel         string `yaml:"gemini_model"`
	ClaudeAPIKey        string `yaml:"claude_api_key"`
	ClaudeModel         string `yaml:"claude_model"`
	OllamaHost          string `yaml:"ollama_host"`
	OllamaModel         string `yaml:"ollama_model"`
	Prompt              string `yaml:"prompt"`
	BoilingInstructions string `yaml:"boiling_instructions"`
	LogLevel            string `yaml:"log_level"`
	LogFile             string `yaml:"log_file"`
}

func defaults() *Config {
	return &Config{
		ListenAddr:          ":8080",
		DBPath:              "data/records.db",
		SaveDir:             "data",
		VisionBackend:       "gemini",
		GeminiModel:         "gemini-1.5-flash",
		ClaudeModel:         "claude-opus-4-6",
		OllamaHost:          "http://localhost:11434",
		OllamaModel:         "llava",
		Prompt:              DefaultPrompt,
		BoilingInstructions: DefaultBoilingInstructions,
		LogLevel:            "info",
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment variables, in increasing order of precedence.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = getEnv("LISTEN_ADDR", c.ListenAddr)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.SaveDir = getEnv("SAVE_DIR", c.SaveDir)
	c.VisionBackend = getEnv("VISION_BACKEND", c.VisionBackend)
	c.GoogleAPIKey = getEnv("GOOGLE_API_KEY", c.GoogleAPIKey)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.ClaudeAPIKey = getEnv("CLAUDE_API_KEY", c.ClaudeAPIKey)
	c.ClaudeModel = getEnv("CLAUDE_MODEL", c.ClaudeModel)
	c.OllamaHost = getEnv("OLLAMA_HOST", c.OllamaHost)
	c.OllamaModel = getEnv("OLLAMA_MODEL", c.OllamaModel)
	c.Prompt = getEnv("ANALYSIS_PROMPT", c.Prompt)
	c.BoilingInstructions = getEnv("BOILING_INSTRUCTIONS", c.BoilingInstructions)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
}

// Validate reports missing credentials for the selected vision backend.
func (c *Config) Validate() error {
	switch c.VisionBackend {
	case "gemini":
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required when VISION_BACKEND=gemini")
		}
	case "claude":
		if c.ClaudeAPIKey == "" {
			return fmt.Errorf("CLAUDE_API_KEY is required when VISION_BACKEND=claude")
		}
	case "ollama":
	default:
		return fmt.Errorf("unknown VISION_BACKEND %q", c.VisionBackend)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}
