package wet

import "context"

// ThumbnailRenderer is the opaque "render a thumbnail image for this file"
// capability. Implementations may shell out to native codecs, decode in
// process, or (for tooling without codecs linked in) pass original bytes
// through. The thumbnail store treats the output as an opaque byte blob;
// only determinism matters: the same file and maxDim must yield the same
// bytes.
type ThumbnailRenderer interface {
	Render(ctx context.Context, path string, maxDim int) ([]byte, error)
}
