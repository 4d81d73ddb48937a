package llm

import (
	"context"
	"io"
	"strings"

	genai "google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiEngine is a thin wrapper around the official genai client that
// streams candidate text as it is generated.
type GeminiEngine struct {
	cli   *genai.Client
	model string
}

// NewGeminiEngine creates the client. An empty apiKey lets genai read
// GEMINI_API_KEY / GOOGLE_API_KEY from the environment.
func NewGeminiEngine(ctx context.Context, apiKey, model string) (*GeminiEngine, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultGeminiModel
	}
	return &GeminiEngine{cli: cli, model: model}, nil
}

func (g *GeminiEngine) Name() string { return "Gemini:" + g.model }

func (g *GeminiEngine) Complete(ctx context.Context, r Request) (io.ReadCloser, error) {
	if r.Prompt == "" {
		return nil, ErrEmptyPrompt
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: r.Prompt}}}}
	return pipeStream(ctx, func(ctx context.Context, emit emitFunc) error {
		for resp, err := range g.cli.Models.GenerateContentStream(ctx, g.model, contents, nil) {
			if err != nil {
				return err
			}
			if err := emit(candidateText(resp)); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
