package config

import (
	"fmt"
	"time"
)

// Backend protocol types. A passthrough backend already speaks the canonical
// chat-completion shape; a translating backend speaks a single-prompt
// completion protocol and needs envelope synthesis.
const (
	BackendTypePassthrough = "passthrough"
	BackendTypeTranslating = "translating"
)

type BackendsConfig struct {
	// Active names the backend every request is dispatched to.
	Active   string                   `yaml:"active"`
	Backends map[string]BackendConfig `yaml:"backends"`
}

type BackendConfig struct {
	Type          string            `yaml:"type"`
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	Model         string            `yaml:"model"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	Timeout       time.Duration     `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers,omitempty"`
}

// Validate enforces startup-time constraints: the active backend must exist,
// and a passthrough backend without a credential is a fatal misconfiguration.
func (c *BackendsConfig) Validate() error {
	if c.Active == "" {
		return fmt.Errorf("backends: active backend is required")
	}
	cfg, ok := c.Backends[c.Active]
	if !ok {
		return fmt.Errorf("backends: active backend %q is not configured", c.Active)
	}
	switch cfg.Type {
	case BackendTypePassthrough:
		if cfg.APIKey == "" {
			return fmt.Errorf("backends: %s: api_key is required for a passthrough backend (set API_KEY)", c.Active)
		}
	case BackendTypeTranslating:
		// No credential; base_url has a local default.
	default:
		return fmt.Errorf("backends: %s: unknown type %q", c.Active, cfg.Type)
	}
	if cfg.BaseURL == "" {
		return fmt.Errorf("backends: %s: base_url is required", c.Active)
	}
	return nil
}
