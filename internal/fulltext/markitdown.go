// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fulltext

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pdiddy/literature-manager/internal/container"
)

const imageMarkitdown = "markitdown:latest"

// Markitdown converts documents by piping them through the markitdown
// container image.
type Markitdown struct {
	runtime container.Runtime
}

// NewMarkitdown verifies the image exists locally in rt.
func NewMarkitdown(ctx context.Context, rt container.Runtime) (*Markitdown, error) {
	if err := rt.ImageExists(ctx, imageMarkitdown); err != nil {
		return nil, fmt.Errorf("markitdown image not available in %s: %w", rt.Name(), err)
	}
	return &Markitdown{runtime: rt}, nil
}

// Text implements Source.
func (m *Markitdown) Text(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	out, err := m.runtime.Filter(ctx, imageMarkitdown, f)
	if err != nil {
		return "", fmt.Errorf("converting %s with markitdown: %w", path, err)
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return "", fmt.Errorf("markitdown produced empty output for %s", path)
	}
	return text, nil
}
