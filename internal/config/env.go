package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port        string
	DatabaseURL string
	SslCertPath string

	AIAPIKey   string
	GenModel   string
	EmbedModel string
	EmbedDim   int

	SearchEndpoint string
	SearchAPIKey   string
	SearchIndex    string

	AwsAccessKey  string
	AwsSecretKey  string
	AwsRegion     string
	ArchiveBucket string

	MaxChunkSize    int
	MinChunkSize    int
	PDFMaxChunkSize int
	PDFMinChunkSize int
	PreviewChars    int
	CallTimeout     time.Duration
}

// LoadConfig loads the environment variables and returns the config.
// DATABASE_URL and ARCHIVE_BUCKET are optional: without a database the
// tracker runs in memory, without a bucket raw uploads are not archived.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),

		AIAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GenModel:   getEnv("GEN_MODEL", "gemini-1.5-flash"),
		EmbedModel: getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:   getEnvInt("EMBED_DIM", 768),

		SearchEndpoint: getEnv("SEARCH_ENDPOINT", ""),
		SearchAPIKey:   getEnv("SEARCH_API_KEY", ""),
		SearchIndex:    getEnv("SEARCH_INDEX", "legal-documents"),

		AwsAccessKey:  getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:  getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:     getEnv("AWS_REGION", "us-east-2"),
		ArchiveBucket: getEnv("ARCHIVE_BUCKET", ""),

		MaxChunkSize:    getEnvInt("MAX_CHUNK_SIZE", 1000),
		MinChunkSize:    getEnvInt("MIN_CHUNK_SIZE", 100),
		PDFMaxChunkSize: getEnvInt("PDF_MAX_CHUNK_SIZE", 1500),
		PDFMinChunkSize: getEnvInt("PDF_MIN_CHUNK_SIZE", 200),
		PreviewChars:    getEnvInt("PREVIEW_CHARS", 200),
		CallTimeout:     time.Duration(getEnvInt("CALL_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	if cfg.AIAPIKey == "" {
		logrus.Fatal("GEMINI_API_KEY not set")
	}
	if cfg.SearchEndpoint == "" || cfg.SearchAPIKey == "" {
		logrus.Fatal("SEARCH_ENDPOINT and SEARCH_API_KEY must be set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.Warnf("%s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}
