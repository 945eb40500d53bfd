package recognition

import (
	"context"
	"image"

	"github.com/L0G1H/deepfakery/pkg/logging"
)

// DefaultMinOverlap is the intersection-over-union a detector box needs with
// an aligner box to borrow its landmarks.
const DefaultMinOverlap = 0.3

// AlignedLocator runs a box-only detector and fills in landmarks from a
// second locator that provides them. Faces the aligner cannot match are
// dropped, so every face it returns can be used as a swap target.
type AlignedLocator struct {
	base       Locator
	aligner    Locator
	minOverlap float64
}

// NewAlignedLocator wraps base. aligner is not closed by Close.
func NewAlignedLocator(base, aligner Locator) *AlignedLocator {
	return &AlignedLocator{base: base, aligner: aligner, minOverlap: DefaultMinOverlap}
}

// Name implements Locator.
func (l *AlignedLocator) Name() string { return l.base.Name() }

// Close implements Locator.
func (l *AlignedLocator) Close() error { return l.base.Close() }

// Detect implements Locator. Boxes, scores and order come from the base
// detector; the aligner is only consulted when some face lacks landmarks.
func (l *AlignedLocator) Detect(ctx context.Context, img image.Image) ([]Face, error) {
	faces, err := l.base.Detect(ctx, img)
	if err != nil {
		return nil, err
	}

	complete := true
	for _, f := range faces {
		if !f.HasLandmarks() {
			complete = false
			break
		}
	}
	if complete {
		return faces, nil
	}

	anchors, err := l.aligner.Detect(ctx, img)
	if err != nil {
		return nil, err
	}

	used := make([]bool, len(anchors))
	aligned := make([]Face, 0, len(faces))
	for _, f := range faces {
		if f.HasLandmarks() {
			aligned = append(aligned, f)
			continue
		}
		best, bestIoU := -1, l.minOverlap
		for i, a := range anchors {
			if used[i] || !a.HasLandmarks() {
				continue
			}
			if v := iou(f.Box, a.Box); v >= bestIoU {
				best, bestIoU = i, v
			}
		}
		if best < 0 {
			logging.Debugf("%s face at %v has no landmarks and no %s match, skipped", l.base.Name(), f.Box, l.aligner.Name())
			continue
		}
		used[best] = true
		f.Landmarks = append([]Point(nil), anchors[best].Landmarks...)
		aligned = append(aligned, f)
	}
	return aligned, nil
}

// iou is the intersection-over-union of two rectangles.
func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	in := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - in
	return in / union
}
