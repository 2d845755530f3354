// Package render produces the HTML and Markdown artifacts from a parsed
// message stream. Rendering is chunked and parallel under the CPU limiter,
// but chunk output is written strictly in original order, so the bytes are
// identical to a sequential render regardless of scheduling.
package render

import (
	"bytes"
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"wet-go/internal/chat"
	"wet-go/internal/limit"
)

// chunkSize adapts to the message count: small exports get small chunks for
// low latency, huge exports get bigger ones to keep task-scheduling overhead
// bounded.
func chunkSize(total int) int {
	switch {
	case total <= 512:
		return 64
	case total <= 8192:
		return 256
	default:
		return 1024
	}
}

// chunkFunc renders msgs[start:end] into buf. start is the absolute index of
// the chunk's first message, so renderers can derive cross-chunk state (day
// separators) from the preceding message deterministically.
type chunkFunc func(ctx context.Context, start int, msgs []chat.Message, buf *bytes.Buffer) error

// renderChunked splits msgs into fixed-size contiguous chunks, renders them
// concurrently under cpu, and writes the results to w in chunk order.
// Out-of-order completions sit in their per-chunk buffer until every
// lower-indexed chunk has been written.
func renderChunked(ctx context.Context, msgs []chat.Message, cpu *limit.Limiter, w io.Writer, fn chunkFunc) error {
	n := len(msgs)
	if n == 0 {
		return nil
	}
	size := chunkSize(n)
	numChunks := (n + size - 1) / size

	results := make([]chan []byte, numChunks)
	for i := range results {
		results[i] = make(chan []byte, 1)
	}

	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < numChunks; i++ {
		start := i * size
		end := min(start+size, n)
		out := results[i]
		g.Go(func() error {
			var buf bytes.Buffer
			err := cpu.Do(ctx, func() error {
				return fn(ctx, start, msgs[start:end], &buf)
			})
			if err != nil {
				return err
			}
			out <- buf.Bytes()
			return nil
		})
	}

	g.Go(func() error {
		for i := 0; i < numChunks; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case data := <-results[i]:
				if _, err := w.Write(data); err != nil {
					return err
				}
			}
		}
		return nil
	})

	return g.Wait()
}
