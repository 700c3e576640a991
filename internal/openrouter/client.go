package openrouter

import (
	"net/http"
	"time"
)

// DefaultAPIURL is the OpenRouter chat completions endpoint
const DefaultAPIURL = "https://openrouter.ai/api/v1/chat/completions"

// OpenRouterError represents an error that occurred during OpenRouter API interaction
type OpenRouterError struct {
	Op  string // Operation that caused the error
	Err error  // Original error
}

// Error implements the error interface
func (e *OpenRouterError) Error() string {
	if e.Err == nil {
		return "openrouter error: " + e.Op
	}
	return "openrouter error: " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *OpenRouterError) Unwrap() error {
	return e.Err
}

// Client represents a client for an OpenAI-compatible vision chat API
type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
	modelID    string
	maxTokens  int
	referer    string
}

// Config holds configuration for the OpenRouter client
type Config struct {
	APIKey    string
	APIURL    string
	ModelID   string
	Timeout   time.Duration
	MaxTokens int
	Referer   string
}

// DefaultConfig returns a default configuration for the OpenRouter client
func DefaultConfig() *Config {
	return &Config{
		APIURL:    DefaultAPIURL,
		ModelID:   "openai/gpt-4o-mini",
		Timeout:   60 * time.Second,
		MaxTokens: 300,
		Referer:   "https://github.com/ridwanfathin/receipt-sync-service",
	}
}

// NewClient creates a new OpenRouter client
func NewClient(config *Config) *Client {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}

	apiURL := config.APIURL
	if apiURL == "" {
		apiURL = defaults.APIURL
	}
	modelID := config.ModelID
	if modelID == "" {
		modelID = defaults.ModelID
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaults.MaxTokens
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaults.Timeout
	}
	referer := config.Referer
	if referer == "" {
		referer = defaults.Referer
	}

	return &Client{
		apiKey:    config.APIKey,
		apiURL:    apiURL,
		modelID:   modelID,
		maxTokens: maxTokens,
		referer:   referer,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Configured reports whether an API key is set
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// WithAPIKey returns a copy of the client that authenticates with key
func (c *Client) WithAPIKey(key string) *Client {
	clone := *c
	clone.apiKey = key
	return &clone
}
