package common

import (
	"os"
	"strconv"
	"time"

	"github.com/invoiceflow/invoice-extractor/constants"
)

// Config holds all application configuration
type Config struct {
	Extract ExtractConfig
	Rate    RateConfig
	LLM     LLMConfig
}

// ExtractConfig holds text-extraction configuration
type ExtractConfig struct {
	Pdftoppm    string
	Tesseract   string
	Magick      string // optional contrast preprocessor; empty disables it
	DPI         int
	MaxOCRPages int
}

// RateConfig holds client-side rate limiting configuration
type RateConfig struct {
	MaxCallsPerWindow int
	Window            time.Duration
}

// LLMConfig holds document-understanding service configuration
type LLMConfig struct {
	Model          string
	APIKey         string
	Temperature    float32
	Timeout        time.Duration
	MaxAttempts    int
	MaxPromptChars int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Extract: ExtractConfig{
			Pdftoppm:    getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:   getEnv("TESSERACT_BIN", "tesseract"),
			Magick:      getEnv("MAGICK_BIN", ""),
			DPI:         getEnvAsInt("OCR_DPI", constants.DefaultOCRDPI),
			MaxOCRPages: getEnvAsInt("OCR_MAX_PAGES", constants.DefaultMaxOCRPages),
		},
		Rate: RateConfig{
			MaxCallsPerWindow: getEnvAsInt("RATE_MAX_CALLS", constants.DefaultMaxCallsPerWindow),
			Window:            getEnvAsDuration("RATE_WINDOW", constants.DefaultRateWindow),
		},
		LLM: LLMConfig{
			Model:          getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			APIKey:         getEnv("GEMINI_API_KEY", ""),
			Temperature:    getEnvAsFloat32("GEMINI_TEMPERATURE", 0.0),
			Timeout:        getEnvAsDuration("GEMINI_TIMEOUT", 45*time.Second),
			MaxAttempts:    getEnvAsInt("EXTRACT_MAX_ATTEMPTS", constants.DefaultMaxAttempts),
			MaxPromptChars: getEnvAsInt("PROMPT_MAX_CHARS", 12000),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return NewAppError(CodeConfig, "GEMINI_API_KEY is required", ErrInvalidInput)
	}
	if c.Rate.MaxCallsPerWindow <= 0 {
		return NewAppError(CodeConfig, "RATE_MAX_CALLS must be positive", ErrInvalidInput)
	}
	if c.LLM.MaxAttempts <= 0 {
		return NewAppError(CodeConfig, "EXTRACT_MAX_ATTEMPTS must be positive", ErrInvalidInput)
	}
	return nil
}
