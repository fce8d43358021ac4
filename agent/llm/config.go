// Package llm holds the chat model settings.
package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
	openrouterx "github.com/tanpawarit/chative-toolflow/pkg/openrouter"
)

// Config is read with the OPENROUTER prefix. Without an API key the
// assistant is disabled and the tools are driven directly.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY"`
	Model              string        `envconfig:"MODEL" default:"openai/gpt-4o-mini"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" default:"1000"`
	Temperature        float32       `envconfig:"TEMPERATURE" default:"0.2"`
	Timeout            time.Duration `envconfig:"TIMEOUT" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL"`
	SiteName           string        `envconfig:"SITE_NAME" default:"chative-toolflow"`
	VerifyModel        bool          `envconfig:"VERIFY_MODEL" default:"false"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func (c Config) Validate() error {
	if !c.Enabled() {
		return fmt.Errorf("%w: openrouter api key is required", contract.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: model is required", contract.ErrValidation)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be within 0..2, got %v", contract.ErrValidation, c.Temperature)
	}
	return nil
}

func (c Config) OpenRouter() openrouterx.Config {
	var maxTokens *int
	if c.MaxCompletionToken > 0 {
		n := c.MaxCompletionToken
		maxTokens = &n
	}
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              strings.TrimSpace(c.Model),
		MaxCompletionToken: maxTokens,
		Temperature:        c.Temperature,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
