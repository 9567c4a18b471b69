package notifier

import "time"

// Config holds connection settings for the email delivery API.
type Config struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// DefaultConfig returns settings suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:9100",
		Timeout:    15 * time.Second,
		MaxRetries: 2,
	}
}

// sendRequest is the delivery API payload for a templated send.
type sendRequest struct {
	TemplateID string                 `json:"template_id"`
	Recipient  string                 `json:"recipient"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}
