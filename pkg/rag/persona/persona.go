package persona

import "fmt"

// ResponseShape controls how a persona's answer is packaged.
type ResponseShape string

const (
	ShapePlain      ResponseShape = "plain"
	ShapeStructured ResponseShape = "structured"
)

// Strategy modifies prompts and generation parameters for one persona.
// Implementations are read-only after construction and safe for concurrent use.
type Strategy interface {
	Name() string
	ModifySystemPrompt(base string) string
	ModifyUserPrompt(base string) string
	ModifySearchQuery(query string) string
	Temperature() float64
	Shape() ResponseShape
	IncludeSources() bool
	IncludeConfidence() bool
	IncludeSuggestions() bool
	StrictValidation() bool
}

// Config is a data-driven Strategy. All built-in personas are Configs.
type Config struct {
	PersonaName          string        `json:"name"`
	Description          string        `json:"description"`
	Style                string        `json:"style"`
	SystemPromptModifier string        `json:"system_prompt_modifier"`
	UserPromptModifier   string        `json:"user_prompt_modifier"`
	SearchQueryPrefix    string        `json:"-"`
	Temp                 float64       `json:"temperature"`
	ResponseShape        ResponseShape `json:"response_format"`
	Sources              bool          `json:"include_sources"`
	Confidence           bool          `json:"include_confidence"`
	Suggestions          bool          `json:"include_suggestions"`
	Strict               bool          `json:"strict_validation"`
}

var _ Strategy = &Config{}

func (c *Config) Name() string { return c.PersonaName }

func (c *Config) ModifySystemPrompt(base string) string {
	if c.SystemPromptModifier == "" {
		return base
	}
	return fmt.Sprintf("%s\n\n%s", c.SystemPromptModifier, base)
}

func (c *Config) ModifyUserPrompt(base string) string {
	if c.UserPromptModifier == "" {
		return base
	}
	return fmt.Sprintf("%s\n\n%s", base, c.UserPromptModifier)
}

func (c *Config) ModifySearchQuery(query string) string {
	if c.SearchQueryPrefix == "" {
		return query
	}
	return c.SearchQueryPrefix + " " + query
}

func (c *Config) Temperature() float64     { return c.Temp }
func (c *Config) Shape() ResponseShape     { return c.ResponseShape }
func (c *Config) IncludeSources() bool     { return c.Sources }
func (c *Config) IncludeConfidence() bool  { return c.Confidence }
func (c *Config) IncludeSuggestions() bool { return c.Suggestions }
func (c *Config) StrictValidation() bool   { return c.Strict }
