package thumb

import (
	"context"
	"fmt"
	"os"

	"wet-go/internal/wet"
)

// PassthroughRenderer is the stand-in thumbnail capability used when no
// native codec is linked in: it returns the original file bytes unchanged.
// For true images the result is a valid (if unscaled) thumbnail; for other
// eligible types downstream rendering falls back to placeholders anyway.
type PassthroughRenderer struct{}

var _ wet.ThumbnailRenderer = PassthroughRenderer{}

func (PassthroughRenderer) Render(ctx context.Context, path string, maxDim int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading source file: %w", err)
	}
	return data, nil
}
