package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port            int
	MaxWorkers      int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	APIToken        string
	AllowedOrigins  []string

	// Logging configuration
	LogFormat string
	LogFile   string

	// Local store configuration
	DataDir string

	// Remote backend configuration
	RemoteBackend string

	DriveClientID     string
	DriveClientSecret string
	DriveRedirectURL  string
	DriveFolderID     string

	S3Endpoint        string
	S3AccessKeyID     string
	S3AccessKeySecret string
	S3Bucket          string
	S3Region          string
	S3PathSuffix      string

	PostgresURL string

	// Vision extraction configuration
	VisionAPIKey    string
	VisionAPIURL    string
	VisionModelID   string
	VisionTimeout   time.Duration
	VisionMaxTokens int

	// Sync configuration
	SyncProbeURL      string
	SyncProbeInterval time.Duration
	SyncInterval      time.Duration
	StartOnline       bool
	RunnerQueueSize   int

	// Capture pipeline configuration
	ImageMaxDimension int
	ImageQuality      int
	ImageTargetSizeKB int
}

// LoadConfig loads the application configuration from environment variables
func LoadConfig() (*Config, error) {
	loadDotEnv()

	// Create and populate config
	config := &Config{
		// Server configuration
		Port:            getEnvInt("PORT", 8080),
		MaxWorkers:      getEnvInt("MAX_WORKERS", 5),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 90*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		APIToken:        os.Getenv("API_TOKEN"),
		AllowedOrigins:  getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"}),

		// Logging configuration
		LogFormat: getEnvString("LOG_FORMAT", "pretty"),
		LogFile:   os.Getenv("LOG_FILE"),

		// Local store configuration
		DataDir: getEnvString("DATA_DIR", "./data"),

		// Remote backend configuration
		RemoteBackend: strings.ToLower(getEnvString("REMOTE_BACKEND", "none")),

		DriveClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		DriveClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		DriveRedirectURL:  getEnvString("GOOGLE_REDIRECT_URL", "http://localhost:8080/v1/auth/drive/callback"),
		DriveFolderID:     os.Getenv("DRIVE_FOLDER_ID"),

		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3AccessKeySecret: os.Getenv("S3_ACCESS_KEY_SECRET"),
		S3Bucket:          getEnvString("S3_BUCKET", "receipts"),
		S3Region:          getEnvString("S3_REGION", "us-east-1"),
		S3PathSuffix:      getEnvString("S3_PATH_SUFFIX", "/storage/v1/s3"),

		PostgresURL: os.Getenv("POSTGRES_DB_URL"),

		// Vision extraction configuration
		VisionAPIKey:    os.Getenv("VISION_API_KEY"),
		VisionAPIURL:    getEnvString("VISION_API_URL", "https://openrouter.ai/api/v1/chat/completions"),
		VisionModelID:   getEnvString("VISION_MODEL_ID", "openai/gpt-4o-mini"),
		VisionTimeout:   getEnvDuration("VISION_TIMEOUT", 60*time.Second),
		VisionMaxTokens: getEnvInt("VISION_MAX_TOKENS", 300),

		// Sync configuration
		SyncProbeURL:      os.Getenv("SYNC_PROBE_URL"),
		SyncProbeInterval: getEnvDuration("SYNC_PROBE_INTERVAL", 30*time.Second),
		SyncInterval:      getEnvDuration("SYNC_INTERVAL", 5*time.Minute),
		StartOnline:       getEnvBool("START_ONLINE", true),
		RunnerQueueSize:   getEnvInt("RUNNER_QUEUE_SIZE", 64),

		// Capture pipeline configuration
		ImageMaxDimension: getEnvInt("IMAGE_MAX_DIMENSION", 1920),
		ImageQuality:      getEnvInt("IMAGE_QUALITY", 80),
		ImageTargetSizeKB: getEnvInt("IMAGE_TARGET_SIZE_KB", 0),
	}

	// Validate critical configuration
	validateConfig(config)

	return config, nil
}

// loadDotEnv loads .env from the project root, falling back to the current directory
func loadDotEnv() {
	// Get the executable directory
	execPath, err := os.Executable()
	if err != nil {
		log.Printf("Warning: Could not determine executable path: %v", err)
	}

	// Determine project root directory
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(execPath)))
	envPath := filepath.Join(projectRoot, ".env")

	// Load .env file if it exists
	if err := godotenv.Load(envPath); err != nil {
		// Try loading from current directory as fallback
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found or error loading .env file. Using environment variables.")
		} else {
			log.Println("Loaded environment variables from current directory .env file")
		}
	} else {
		log.Printf("Loaded environment variables from %s", envPath)
	}
}

// validateConfig checks if critical configuration values are set and logs warnings if they're missing
func validateConfig(config *Config) {
	if config.VisionAPIKey == "" {
		log.Println("Warning: No vision API key provided. Receipt scanning will return blank suggestions.")
	}

	switch config.RemoteBackend {
	case "drive":
		if config.DriveClientID == "" || config.DriveClientSecret == "" {
			log.Println("Warning: GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET missing. Drive sync will fail.")
		}
	case "s3":
		if config.S3Endpoint == "" || config.S3AccessKeyID == "" || config.S3AccessKeySecret == "" {
			log.Println("Warning: S3 configuration is incomplete. Remote sync will fail.")
		}
	case "postgres":
		if config.PostgresURL == "" {
			log.Println("Warning: No POSTGRES_DB_URL provided. Remote sync will fail.")
		}
	case "none":
	default:
		log.Printf("Warning: Unknown REMOTE_BACKEND %q", config.RemoteBackend)
	}

	if config.APIToken == "" {
		log.Println("Warning: No API_TOKEN set. The HTTP API is unauthenticated.")
	}
}

// getEnvInt gets an integer from an environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid value for %s: %s, using default: %s", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvBool gets a boolean from an environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	valueStr = strings.ToLower(valueStr)
	return valueStr == "true" || valueStr == "1" || valueStr == "yes"
}

// getEnvString gets a string from an environment variable with a default value
func getEnvString(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvStringSlice gets a string slice from a comma-separated environment variable
func getEnvStringSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
