package synthesis_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"vidscribe/internal/config"
	"vidscribe/internal/services"
	"vidscribe/internal/synthesis"
)

func TestCatalogTemplates(t *testing.T) {
	c, err := synthesis.LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	want := []string{"clean", "summary", "translate_en", "translate_ja", "detailed", "meeting_notes"}
	if !slices.Equal(c.Names(), want) {
		t.Fatalf("names = %v, want %v", c.Names(), want)
	}
	prompt, err := c.Render("summary", "hello there")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(prompt, "concise summary") || !strings.Contains(prompt, "hello there") {
		t.Fatalf("unexpected prompt:\n%s", prompt)
	}
	fallback, err := c.Render("does-not-exist", "text")
	if err != nil || !strings.Contains(fallback, "Clean up and correct") {
		t.Fatalf("expected clean fallback, got %q, %v", fallback, err)
	}
}

func TestAskPromptIncludesExcerpts(t *testing.T) {
	c, _ := synthesis.LoadCatalog()
	prompt, err := c.AskPrompt("What was decided?", []synthesis.Excerpt{
		{FileName: "standup", Language: "en", Timestamp: "00:00:05 -> 00:00:09", Speaker: "SPEAKER_01", Text: "We ship Friday."},
		{FileName: "retro", Text: "Fewer meetings."},
	})
	if err != nil {
		t.Fatalf("AskPrompt: %v", err)
	}
	for _, want := range []string{`"What was decided?"`, "From standup (en) [00:00:05 -> 00:00:09]:", "- SPEAKER_01: We ship Friday.", "From retro:", "- Fewer meetings."} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestParseCatalogRejectsBadTemplate(t *testing.T) {
	_, err := synthesis.ParseCatalog([]byte("system: x\ntemplates:\n  - name: broken\n    prompt: \"{{.Transcript\"\nask: ok\n"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

type fakeProvider struct {
	reply  string
	block  bool
	system string
	prompt string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	f.system, f.prompt = system, prompt
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, nil
}

func TestServiceUnavailableWithoutProvider(t *testing.T) {
	svc, err := synthesis.NewService(config.LLMConfig{Provider: config.ProviderNone}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if svc.Available() {
		t.Fatal("expected synthesis to be unavailable")
	}
	_, err = svc.Answer(context.Background(), "q", nil)
	if !errors.Is(err, services.ErrSynthesisUnavailable) {
		t.Fatalf("expected ErrSynthesisUnavailable, got %v", err)
	}
	if services.Code(err) != "synthesis_unavailable" {
		t.Fatalf("unexpected code %q", services.Code(err))
	}
	if _, err := svc.Apply(context.Background(), "summary", "text"); !errors.Is(err, services.ErrSynthesisUnavailable) {
		t.Fatalf("expected ErrSynthesisUnavailable from Apply, got %v", err)
	}
}

func TestServiceAnswerUsesSystemPrompt(t *testing.T) {
	catalog, _ := synthesis.LoadCatalog()
	fake := &fakeProvider{reply: "  Friday.  "}
	svc := synthesis.New(fake, catalog, time.Second, nil)
	answer, err := svc.Answer(context.Background(), "When do we ship?", []synthesis.Excerpt{{FileName: "a", Text: "We ship Friday."}})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer != "Friday." {
		t.Fatalf("answer = %q", answer)
	}
	if fake.system != catalog.System || !strings.Contains(fake.prompt, "We ship Friday.") {
		t.Fatalf("unexpected provider input: system=%q prompt=%q", fake.system, fake.prompt)
	}
}

func TestServiceTimeout(t *testing.T) {
	catalog, _ := synthesis.LoadCatalog()
	svc := synthesis.New(&fakeProvider{block: true}, catalog, 20*time.Millisecond, nil)
	start := time.Now()
	_, err := svc.Answer(context.Background(), "q", nil)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout was not enforced")
	}
}

func TestServiceApplyRejectsEmptyTranscript(t *testing.T) {
	catalog, _ := synthesis.LoadCatalog()
	svc := synthesis.New(&fakeProvider{reply: "x"}, catalog, time.Second, nil)
	if _, err := svc.Apply(context.Background(), "clean", "   "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOpenAICompatibleProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "Here are the notes."}}},
		})
	}))
	defer server.Close()

	svc, err := synthesis.NewService(config.LLMConfig{
		Provider:       config.ProviderOllama,
		BaseURL:        server.URL,
		Model:          "llama3.1",
		TimeoutSeconds: 5,
	}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	out, err := svc.Apply(context.Background(), "meeting_notes", "we agreed to ship")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out != "Here are the notes." {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestNewProviderRejectsUnknown(t *testing.T) {
	if _, err := synthesis.NewProvider(config.LLMConfig{Provider: "watson"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	p, err := synthesis.NewProvider(config.LLMConfig{Provider: config.ProviderGemini, APIKey: "k"})
	if err != nil || p.Name() != "gemini" {
		t.Fatalf("expected gemini provider, got %v, %v", p, err)
	}
}
