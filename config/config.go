package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              string
	DatabaseURL       string
	LLMProvider       string
	OpenAIAPIKey      string
	AnthropicAPIKey   string
	PineconeAPIKey    string
	PineconeIndexName string
	SessionLogDir     string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("[INFO] No .env file found, using environment variables")
	}

	return &Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DB_URL"),
		LLMProvider:       getEnv("LLM_PROVIDER", "openai"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		PineconeAPIKey:    os.Getenv("PINECONE_API_KEY"),
		PineconeIndexName: getEnv("PINECONE_INDEX_NAME", "autodidact-refs-index"),
		SessionLogDir:     getEnv("SESSION_LOG_DIR", defaultLogDir()),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func defaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".autodidact/sessions"
	}
	return home + "/.autodidact/sessions"
}
