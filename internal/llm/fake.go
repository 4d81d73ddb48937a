package llm

import (
	"context"
	"io"
	"strings"
)

// FakeEngine answers deterministically for offline runs: the prompt is echoed
// back as the code block and the renaming block is an empty object. Output is
// cut into chunks of ChunkSize bytes so streaming paths get exercised.
type FakeEngine struct {
	ChunkSize int
}

func NewFakeEngine(chunkSize int) *FakeEngine {
	if chunkSize <= 0 {
		chunkSize = 64
	}
	return &FakeEngine{ChunkSize: chunkSize}
}

func (f *FakeEngine) Name() string { return "FakeLLM" }

func (f *FakeEngine) Complete(ctx context.Context, r Request) (io.ReadCloser, error) {
	if r.Prompt == "" {
		return nil, ErrEmptyPrompt
	}
	fence := fenceFor(r.Prompt)
	body := fence + "text\n" + r.Prompt + "\n" + fence + "\n\n```json\n{}\n```\n"
	size := f.ChunkSize
	return pipeStream(ctx, func(ctx context.Context, emit emitFunc) error {
		for len(body) > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			n := size
			if n > len(body) {
				n = len(body)
			}
			if err := emit(body[:n]); err != nil {
				return err
			}
			body = body[n:]
		}
		return nil
	}), nil
}

// fenceFor returns a backtick fence longer than any backtick run in text.
func fenceFor(text string) string {
	longest, run := 0, 0
	for _, r := range text {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}
