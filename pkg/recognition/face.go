// Package recognition locates faces in images.
// Detection itself is delegated to a backend (the inference engine, dlib via
// go-face, a pigo cascade or AWS Rekognition); this package defines the
// common face descriptor and the single/many lookup rules callers rely on.
package recognition

import (
	"context"
	"errors"
	"image"
)

// Point is a landmark position in image pixel coordinates.
type Point struct {
	X, Y float32
}

// Face is an opaque handle to a single detected face. It is only meaningful
// for the image it was detected in and is never persisted.
type Face struct {
	Box image.Rectangle
	// Landmarks holds five points in the order left eye, right eye, nose,
	// left mouth corner, right mouth corner (left meaning smaller x).
	// Empty when the backend does not provide them.
	Landmarks []Point
	Score     float32
	// Embedding is the identity vector. Only engine faces carry one usable
	// as a swap reference.
	Embedding []float32
	Source    string
}

// HasLandmarks reports whether the face carries the five alignment points.
func (f Face) HasLandmarks() bool {
	return len(f.Landmarks) == 5
}

// Locator detects faces with one particular backend.
type Locator interface {
	Name() string
	// Detect returns every face found, in backend order. No faces is an
	// empty slice, not an error.
	Detect(ctx context.Context, img image.Image) ([]Face, error)
	Close() error
}

// ErrNoImage is returned when Detect is given a nil or empty image.
var ErrNoImage = errors.New("no image to analyse")

// ErrModelNotLoaded is returned when a backend's models are not loaded.
var ErrModelNotLoaded = errors.New("detection models not loaded")

// ErrNoLandmarks is returned when a face without its five alignment points
// is used as a swap target.
var ErrNoLandmarks = errors.New("face has no alignment landmarks")

func checkImage(img image.Image) error {
	if img == nil || img.Bounds().Empty() {
		return ErrNoImage
	}
	return nil
}

// orderLandmarks puts a pair of points in left-to-right order.
func orderLandmarks(a, b Point) (Point, Point) {
	if b.X < a.X {
		return b, a
	}
	return a, b
}
