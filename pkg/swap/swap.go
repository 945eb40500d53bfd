// Package swap replaces faces in a frame with a reference identity.
package swap

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/L0G1H/deepfakery/pkg/recognition"
	"github.com/disintegration/imaging"
)

// ErrNoEmbedding is returned when the reference face has no identity vector.
var ErrNoEmbedding = errors.New("reference face has no embedding")

// Swapper replaces one target face. Implementations must not modify frame.
type Swapper interface {
	Swap(ctx context.Context, frame image.Image, target, reference recognition.Face) (image.Image, error)
}

// Composite swaps every target into a copy of frame, in order, each swap
// applied to the result of the previous one. With no targets frame is
// returned as is.
func Composite(ctx context.Context, s Swapper, frame image.Image, targets []recognition.Face, reference recognition.Face) (image.Image, error) {
	if len(targets) == 0 {
		return frame, nil
	}
	if len(reference.Embedding) == 0 {
		return nil, ErrNoEmbedding
	}

	var result image.Image = imaging.Clone(frame)
	for i, target := range targets {
		out, err := s.Swap(ctx, result, target, reference)
		if err != nil {
			return nil, fmt.Errorf("swap face %d of %d: %w", i+1, len(targets), err)
		}
		result = out
	}
	return result, nil
}
