// Package alttext suggests alternative text for catalog images using
// vision-capable LLM providers.
package alttext

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/lehigh-university-libraries/portfolio/internal/datauri"
	"github.com/lehigh-university-libraries/portfolio/internal/models"
)

// Request is one description request
type Request struct {
	Model       string
	Temperature float64
	Prompt      string
	MIMEType    string
	Image       []byte
}

// Provider describes an image
type Provider interface {
	Describe(ctx context.Context, req Request) (string, error)
}

// Providers lists the supported provider names
var Providers = []string{"gemini", "openai", "ollama"}

// New returns the provider registered under name. An empty name falls back
// to ALTTEXT_PROVIDER, then ollama.
func New(name string) (Provider, error) {
	switch resolveProvider(name) {
	case "gemini":
		return NewGemini(), nil
	case "openai":
		return NewOpenAI(), nil
	case "ollama":
		return NewOllama(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

func resolveProvider(name string) string {
	if name == "" {
		name = os.Getenv("ALTTEXT_PROVIDER")
	}
	if name == "" {
		name = "ollama"
	}
	return strings.ToLower(name)
}

// DefaultModel returns the model used when none is given
func DefaultModel(provider string) string {
	switch resolveProvider(provider) {
	case "gemini":
		return envOr("GEMINI_MODEL", "gemini-1.5-flash")
	case "openai":
		return envOr("OPENAI_MODEL", "gpt-4o")
	case "ollama":
		return envOr("OLLAMA_MODEL", "llava:13b")
	default:
		return ""
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// BuildPrompt asks for a single sentence suited to an img alt attribute
func BuildPrompt(r models.ImageRecord) string {
	return fmt.Sprintf(`Write alternative text for this image from a personal portfolio website.
The image was uploaded as %q in the %q section.
Respond with one plain sentence of at most 125 characters. Do not start with "Image of" or "Picture of".`, r.Name, r.Category)
}

// Suggest decodes the record's embedded image and asks p to describe it
func Suggest(ctx context.Context, p Provider, r models.ImageRecord, model string) (string, error) {
	mediaType, data, err := datauri.Decode(r.URL)
	if err != nil {
		return "", fmt.Errorf("image %s has no embedded content: %w", r.ID, err)
	}
	if !models.IsImageType(mediaType) {
		return "", fmt.Errorf("image %s has content type %s", r.ID, mediaType)
	}

	text, err := p.Describe(ctx, Request{
		Model:       model,
		Temperature: 0.2,
		Prompt:      BuildPrompt(r),
		MIMEType:    mediaType,
		Image:       data,
	})
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(text), `"`), nil
}
