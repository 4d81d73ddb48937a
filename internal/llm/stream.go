package llm

import (
	"context"
	"io"
)

// emitFunc hands one piece of model text to the reader side.
type emitFunc func(text string) error

// pipeStream runs produce in its own goroutine and exposes what it emits as
// an io.ReadCloser. Closing the reader cancels produce's context.
func pipeStream(ctx context.Context, produce func(ctx context.Context, emit emitFunc) error) io.ReadCloser {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	go func() {
		defer cancel()
		err := produce(ctx, func(text string) error {
			if text == "" {
				return nil
			}
			_, err := io.WriteString(pw, text)
			return err
		})
		pw.CloseWithError(err)
	}()
	return &pipeReader{PipeReader: pr, cancel: cancel}
}

type pipeReader struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (p *pipeReader) Close() error {
	p.cancel()
	return p.PipeReader.Close()
}
