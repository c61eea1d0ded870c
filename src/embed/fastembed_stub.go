//go:build !fastembed

package embed

import (
	"context"
	"fmt"
)

// Options configure the local FastEmbed provider. The real implementation
// is compiled in with -tags fastembed; this stub keeps default builds free
// of the onnxruntime requirement.
type Options struct {
	Model     string
	CacheDir  string
	MaxLength int
	BatchSize int
}

func defaultFastEmbedOptions() *Options { return nil }

func NewFastEmbedder(ctx context.Context, opt *Options) (Embedder, error) {
	return nil, fmt.Errorf("fastembed support not included; rebuild with -tags fastembed")
}
