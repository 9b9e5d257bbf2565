// Package synthesis generates natural-language text from transcripts through
// a pluggable language model provider.
//
// OpenAI-compatible providers (openai, openrouter, ollama, claude) share the
// llm chat client; gemini uses the genai SDK. Prompts come from an embedded
// YAML catalog. With provider "none" every call fails with
// services.ErrSynthesisUnavailable.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vidscribe/internal/config"
	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/services/llm"
)

// DefaultTimeout bounds a single synthesis call when the config leaves it unset.
const DefaultTimeout = 60 * time.Second

// Provider is a language-generation capability.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Service applies catalog prompts through a provider with a per-call timeout.
type Service struct {
	provider Provider
	catalog  *Catalog
	timeout  time.Duration
	logger   *slog.Logger
}

// NewService builds a Service from config. A disabled provider is not an
// error; calls report ErrSynthesisUnavailable instead.
func NewService(cfg config.LLMConfig, logger *slog.Logger) (*Service, error) {
	catalog, err := LoadCatalog()
	if err != nil {
		return nil, err
	}
	provider, err := NewProvider(cfg)
	if err != nil && !errors.Is(err, services.ErrSynthesisUnavailable) {
		return nil, err
	}
	timeout := DefaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return New(provider, catalog, timeout, logger), nil
}

// New assembles a Service from parts. provider may be nil.
func New(provider Provider, catalog *Catalog, timeout time.Duration, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		provider: provider,
		catalog:  catalog,
		timeout:  timeout,
		logger:   logging.NewComponentLogger(logger, "synthesis"),
	}
}

// Available reports whether a provider is configured.
func (s *Service) Available() bool { return s != nil && s.provider != nil }

// Ready returns ErrSynthesisUnavailable when no provider is configured.
func (s *Service) Ready() error {
	if !s.Available() {
		return unavailable()
	}
	return nil
}

// Catalog returns the prompt catalog.
func (s *Service) Catalog() *Catalog { return s.catalog }

// Answer synthesizes a grounded answer to question from excerpts.
func (s *Service) Answer(ctx context.Context, question string, excerpts []Excerpt) (string, error) {
	if err := s.Ready(); err != nil {
		return "", err
	}
	prompt, err := s.catalog.AskPrompt(question, excerpts)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, "answer", prompt)
}

// Apply runs a post-processing template over transcript text.
func (s *Service) Apply(ctx context.Context, templateName, transcript string) (string, error) {
	if err := s.Ready(); err != nil {
		return "", err
	}
	if strings.TrimSpace(transcript) == "" {
		return "", services.Wrap(services.ErrValidation, "synthesis", "apply", "transcript text is empty", nil)
	}
	prompt, err := s.catalog.Render(templateName, transcript)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, "apply:"+templateName, prompt)
}

func (s *Service) complete(ctx context.Context, op, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	out, err := s.provider.Complete(ctx, s.catalog.System, prompt)
	elapsed := time.Since(started)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", services.Wrap(services.ErrTimeout, "synthesis", op,
				fmt.Sprintf("%s did not answer within %s", s.provider.Name(), s.timeout), err)
		}
		return "", services.Wrap(services.ErrExternalTool, "synthesis", op, s.provider.Name(), err)
	}
	s.logger.Debug("synthesis complete",
		logging.String("provider", s.provider.Name()),
		logging.String("operation", op),
		logging.Duration("elapsed", elapsed),
		logging.Int("prompt_chars", len(prompt)),
	)
	out = strings.TrimSpace(out)
	if out == "" {
		return "", services.Wrap(services.ErrExternalTool, "synthesis", op, "provider returned an empty answer", nil)
	}
	return out, nil
}

func unavailable() error {
	return services.Wrap(services.ErrSynthesisUnavailable, "synthesis", "answer",
		"no language model provider configured; set [llm] provider in the config", nil)
}

// NewProvider returns the provider named in cfg.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "", config.ProviderNone:
		return nil, unavailable()
	case config.ProviderGemini:
		return NewGemini(cfg.APIKey, cfg.Model), nil
	case config.ProviderOpenAI, config.ProviderOpenRouter, config.ProviderOllama, config.ProviderClaude:
		return NewChat(cfg.Provider, llm.NewClient(llm.Config{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			Referer:        cfg.Referer,
			Title:          cfg.Title,
			TimeoutSeconds: cfg.TimeoutSeconds,
		})), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "synthesis", "provider", fmt.Sprintf("unsupported provider %q", cfg.Provider), nil)
	}
}
