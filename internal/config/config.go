package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"shopilots.com/chatbot/internal/domain"
)

type Config struct {
	GeminiAPIKey         string
	GeminiChatModel      string
	GeminiEmbeddingModel string

	EmbeddingProvider    string // gemini, ollama or hugot
	LocalModelEnabled    bool
	OllamaURL            string
	OllamaModel          string
	OllamaEmbeddingModel string
	HugotModelPath       string

	DatabaseURL          string
	AnalyticsDatabaseURL string
	CorpusDir            string
	PromptsFile          string

	HTTPPort string
	LogLevel string

	ChunkSize           int
	ChunkOverlap        int
	TopK                int
	SimilarityThreshold float64
	PromptBudgetChars   int
	HistoryTurns        int
	HistoryInRetrieval  bool

	EmbedBatchSize  int
	EmbedRatePerSec float64

	EmbedTimeout      time.Duration
	CompletionTimeout time.Duration
	RequestTimeout    time.Duration
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = FromEnv()
}

// FromEnv reads the configuration from the process environment.
func FromEnv() Config {
	return Config{
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiChatModel:      getEnv("GEMINI_CHAT_MODEL", "gemini-1.5-flash-latest"),
		GeminiEmbeddingModel: getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),

		EmbeddingProvider:    strings.ToLower(getEnv("EMBEDDING_PROVIDER", "gemini")),
		LocalModelEnabled:    getEnvAsBool("LOCAL_MODEL_ENABLED", false),
		OllamaURL:            getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:          getEnv("OLLAMA_MODEL", "llama3.2"),
		OllamaEmbeddingModel: getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
		HugotModelPath:       getEnv("HUGOT_MODEL_PATH", "./models/sentence-transformers_all-MiniLM-L6-v2"),

		DatabaseURL:          getEnv("DATABASE_URL", "vector_store.db"),
		AnalyticsDatabaseURL: getEnv("ANALYTICS_DATABASE_URL", "analytics.db"),
		CorpusDir:            getEnv("CORPUS_DIR", "docs"),
		PromptsFile:          getEnv("PROMPTS_FILE", ""),

		HTTPPort: getEnv("HTTP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),

		ChunkSize:           getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:        getEnvAsInt("CHUNK_OVERLAP", 200),
		TopK:                getEnvAsInt("TOP_K", 4),
		SimilarityThreshold: getEnvAsFloat("SIMILARITY_THRESHOLD", 0.35),
		PromptBudgetChars:   getEnvAsInt("PROMPT_BUDGET_CHARS", 6000),
		HistoryTurns:        getEnvAsInt("HISTORY_TURNS", 6),
		HistoryInRetrieval:  getEnvAsBool("HISTORY_IN_RETRIEVAL", false),

		EmbedBatchSize:  getEnvAsInt("EMBED_BATCH_SIZE", 32),
		EmbedRatePerSec: getEnvAsFloat("EMBED_RATE_PER_SEC", 20),

		EmbedTimeout:      getEnvAsDuration("EMBED_TIMEOUT", 5*time.Second),
		CompletionTimeout: getEnvAsDuration("COMPLETION_TIMEOUT", 10*time.Second),
		RequestTimeout:    getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Second),
	}
}

// Validate checks the retrieval and chunking parameters.
func (c Config) Validate() error {
	if err := ValidateChunking(c.ChunkSize, c.ChunkOverlap); err != nil {
		return err
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: TOP_K must be positive, got %d", domain.ErrInvalidConfiguration, c.TopK)
	}
	if c.SimilarityThreshold < -1 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: SIMILARITY_THRESHOLD must be within [-1, 1], got %.3f", domain.ErrInvalidConfiguration, c.SimilarityThreshold)
	}
	if c.PromptBudgetChars <= 0 {
		return fmt.Errorf("%w: PROMPT_BUDGET_CHARS must be positive", domain.ErrInvalidConfiguration)
	}
	if c.EmbedBatchSize <= 0 {
		return fmt.Errorf("%w: EMBED_BATCH_SIZE must be positive", domain.ErrInvalidConfiguration)
	}
	switch c.EmbeddingProvider {
	case "gemini", "ollama", "hugot":
	default:
		return fmt.Errorf("%w: unknown EMBEDDING_PROVIDER %q", domain.ErrInvalidConfiguration, c.EmbeddingProvider)
	}
	return nil
}

// ValidateChunking checks chunk size and overlap.
func ValidateChunking(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidConfiguration, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", domain.ErrInvalidConfiguration, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: chunk overlap (%d) must be smaller than chunk size (%d)", domain.ErrInvalidConfiguration, overlap, size)
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}
