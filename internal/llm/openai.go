package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const DefaultOpenAIModel = "gpt-4o-mini"

var ErrMissingAPIKey = errors.New("llm: api key is required")

// OpenAIEngine streams chat completions from OpenAI or any compatible
// endpoint (Groq, Ollama) selected with baseURL.
type OpenAIEngine struct {
	client openai.Client
	model  string
}

func NewOpenAIEngine(apiKey, model, baseURL string) (*OpenAIEngine, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if u := strings.TrimSpace(baseURL); u != "" {
		opts = append(opts, option.WithBaseURL(u))
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIEngine{client: openai.NewClient(opts...), model: model}, nil
}

func (o *OpenAIEngine) Name() string { return "OpenAI:" + o.model }

func (o *OpenAIEngine) Complete(ctx context.Context, r Request) (io.ReadCloser, error) {
	if r.Prompt == "" {
		return nil, ErrEmptyPrompt
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(r.Prompt),
		},
	}
	return pipeStream(ctx, func(ctx context.Context, emit emitFunc) error {
		stream := o.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if err := emit(chunk.Choices[0].Delta.Content); err != nil {
				return err
			}
		}
		return stream.Err()
	}), nil
}
