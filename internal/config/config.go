package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI string
	DBName   string
	Port     string
	GinMode  string

	CORSOrigins []string

	// JWT verification. Token issuance is handled by the identity service;
	// this service only validates bearer tokens and reads the claims.
	JWTSecret string

	// Redis Configuration (rate limiting + asynq)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	RateLimitReqs   int
	RateLimitWindow int

	// Gemini providers
	GeminiAPIKey    string
	GeminiTier      string
	GenerationModel string
	EmbeddingsModel string

	// Provider deadlines
	EmbeddingTimeout  time.Duration
	GenerationTimeout time.Duration

	// Chunking
	MaxChunkSize int
	MinChunkSize int
	ChunkOverlap int

	// Retrieval
	TopK               int
	MinSimilarityScore float64
	MaxContextChars    int

	// Embedding batches: BatchSize chunks per batch, at most
	// EmbedConcurrency in-flight embedding calls within a batch.
	EmbedBatchSize   int
	EmbedConcurrency int

	// Document source connector
	SourceRoot   string
	SourceFolder string

	// Full-corpus sync schedule (cron expression; empty disables)
	SyncCron string

	// OTLP trace exporter endpoint
	OTLPEndpoint string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/knowledge_base"),
		DBName:   getEnv("DB_NAME", "knowledge_base"),
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),

		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		JWTSecret: getEnv("JWT_SECRET", ""),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiTier:      getEnv("GEMINI_TIER", "free"),
		GenerationModel: getEnv("GENERATION_MODEL", "gemini-2.0-flash"),
		EmbeddingsModel: getEnv("EMBEDDINGS_MODEL", "text-embedding-004"),

		EmbeddingTimeout:  time.Duration(getEnvInt("EMBEDDING_TIMEOUT_SECONDS", 15)) * time.Second,
		GenerationTimeout: time.Duration(getEnvInt("GENERATION_TIMEOUT_SECONDS", 45)) * time.Second,

		MaxChunkSize: getEnvInt("MAX_CHUNK_SIZE", 1000),
		MinChunkSize: getEnvInt("MIN_CHUNK_SIZE", 100),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 0),

		TopK:               getEnvInt("RETRIEVAL_TOP_K", 10),
		MinSimilarityScore: getEnvFloat64("MIN_SIMILARITY_SCORE", 0.60),
		MaxContextChars:    getEnvInt("MAX_CONTEXT_CHARS", 12000),

		EmbedBatchSize:   getEnvInt("EMBED_BATCH_SIZE", 5),
		EmbedConcurrency: getEnvInt("EMBED_CONCURRENCY", 3),

		SourceRoot:   getEnv("SOURCE_ROOT", "./documents"),
		SourceFolder: getEnv("SOURCE_FOLDER", ""),

		SyncCron: getEnv("SYNC_CRON", ""),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required - set it in .env file")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
