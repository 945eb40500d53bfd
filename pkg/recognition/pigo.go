package recognition

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/L0G1H/deepfakery/pkg/config"
	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
)

// PigoLocator detects faces with a pixel-intensity cascade. It is pure Go and
// needs no native libraries, but yields boxes only.
type PigoLocator struct {
	classifier *pigo.Pigo
	params     config.PigoConfig
}

// NewPigoLocator unpacks the cascade file named in cfg.
func NewPigoLocator(cfg config.PigoConfig) (*PigoLocator, error) {
	data, err := os.ReadFile(cfg.Cascade)
	if err != nil {
		return nil, fmt.Errorf("cannot open cascade file %s: %w", cfg.Cascade, err)
	}
	return newPigoLocator(data, cfg)
}

func newPigoLocator(cascade []byte, cfg config.PigoConfig) (*PigoLocator, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack cascade: %w", err)
	}
	return &PigoLocator{classifier: classifier, params: cfg}, nil
}

// Name implements Locator.
func (l *PigoLocator) Name() string { return "pigo" }

// Close implements Locator.
func (l *PigoLocator) Close() error { return nil }

// Detect implements Locator.
func (l *PigoLocator) Detect(ctx context.Context, img image.Image) ([]Face, error) {
	if err := checkImage(img); err != nil {
		return nil, err
	}

	src := imaging.Clone(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	cParams := pigo.CascadeParams{
		MinSize:     l.params.MinSize,
		MaxSize:     l.params.MaxSize,
		ShiftFactor: l.params.ShiftFactor,
		ScaleFactor: l.params.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	// Each detection is a (row, col, scale, score) quadruplet; clustering
	// merges overlapping windows.
	dets := l.classifier.RunCascade(cParams, 0.0)
	dets = l.classifier.ClusterDetections(dets, l.params.IouThreshold)

	return l.toFaces(dets, img.Bounds()), nil
}

// toFaces maps cascade detections on an image with the given bounds to
// faces, dropping those below the quality threshold. Boxes are clipped to
// the image and expressed in its coordinate space.
func (l *PigoLocator) toFaces(dets []pigo.Detection, bounds image.Rectangle) []Face {
	local := image.Rect(0, 0, bounds.Dx(), bounds.Dy())
	var faces []Face
	for _, d := range dets {
		if float64(d.Q) < l.params.MinQuality {
			continue
		}
		half := d.Scale / 2
		box := image.Rect(d.Col-half, d.Row-half, d.Col+half, d.Row+half).
			Intersect(local).
			Add(bounds.Min)
		faces = append(faces, Face{
			Box:    box,
			Score:  d.Q,
			Source: l.Name(),
		})
	}
	return faces
}
