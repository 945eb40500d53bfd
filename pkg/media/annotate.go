package media

import (
	"fmt"
	"image"

	"github.com/L0G1H/deepfakery/pkg/recognition"
	"github.com/fogleman/gg"
)

// Annotate returns a copy of img with every face box, its index and score,
// and its landmarks drawn on top.
func Annotate(img image.Image, faces []recognition.Face) image.Image {
	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(img, 0, 0)

	dx, dy := float64(b.Min.X), float64(b.Min.Y)
	for i, f := range faces {
		r := f.Box
		dc.SetRGB(0, 1, 0)
		dc.SetLineWidth(2)
		dc.DrawRectangle(float64(r.Min.X)-dx, float64(r.Min.Y)-dy, float64(r.Dx()), float64(r.Dy()))
		dc.Stroke()

		label := fmt.Sprintf("#%d %.2f", i, f.Score)
		dc.DrawString(label, float64(r.Min.X)-dx, float64(r.Min.Y)-dy-4)

		dc.SetRGB(1, 0, 0)
		for _, p := range f.Landmarks {
			dc.DrawCircle(float64(p.X)-dx, float64(p.Y)-dy, 2)
			dc.Fill()
		}
	}
	return dc.Image()
}
