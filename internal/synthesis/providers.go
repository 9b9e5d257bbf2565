package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"vidscribe/internal/services/llm"
)

// Chat adapts an OpenAI-compatible llm.Client.
type Chat struct {
	name   string
	client *llm.Client
}

// NewChat wraps client under the given provider name.
func NewChat(name string, client *llm.Client) *Chat {
	return &Chat{name: name, client: client}
}

func (c *Chat) Name() string { return c.name }

func (c *Chat) Complete(ctx context.Context, system, prompt string) (string, error) {
	return c.client.Complete(ctx, system, prompt)
}

// Gemini calls the Gemini API through the genai SDK.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
}

// NewGemini constructs a Gemini provider.
func NewGemini(apiKey, model string) *Gemini {
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash"
	}
	return &Gemini{apiKey: apiKey, model: model}
}

// WithBaseURL points the client at a different API host.
func (g *Gemini) WithBaseURL(url string) *Gemini {
	g.baseURL = url
	return g
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Complete(ctx context.Context, system, prompt string) (string, error) {
	if strings.TrimSpace(g.apiKey) == "" {
		return "", errors.New("gemini: api key required")
	}
	cc := &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return "", fmt.Errorf("gemini: create client: %w", err)
	}

	var gc *genai.GenerateContentConfig
	if system = strings.TrimSpace(system); system != "" {
		gc = &genai.GenerateContentConfig{SystemInstruction: genai.NewContentFromText(system, genai.RoleUser)}
	}
	result, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), gc)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty response")
	}
	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}
