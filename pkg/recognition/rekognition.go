package recognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/L0G1H/deepfakery/pkg/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

// rekognitionAPI is the part of the Rekognition client this backend calls.
type rekognitionAPI interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

// RekognitionLocator detects faces with AWS Rekognition. Boxes and the five
// alignment landmarks come back as ratios and are mapped to pixels.
type RekognitionLocator struct {
	client        rekognitionAPI
	minConfidence float32
}

// NewRekognitionLocator builds a client from the default AWS credential chain.
func NewRekognitionLocator(ctx context.Context, cfg config.RekognitionConfig) (*RekognitionLocator, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &RekognitionLocator{
		client:        rekognition.NewFromConfig(awsCfg),
		minConfidence: float32(cfg.MinConfidence),
	}, nil
}

// Name implements Locator.
func (l *RekognitionLocator) Name() string { return "rekognition" }

// Close implements Locator.
func (l *RekognitionLocator) Close() error { return nil }

// Detect implements Locator.
func (l *RekognitionLocator) Detect(ctx context.Context, img image.Image) ([]Face, error) {
	if err := checkImage(img); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode image for rekognition: %w", err)
	}

	out, err := l.client.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: buf.Bytes()},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		return nil, fmt.Errorf("rekognition DetectFaces: %w", err)
	}

	bounds := img.Bounds()
	w, h := float32(bounds.Dx()), float32(bounds.Dy())
	toPoint := func(x, y *float32) Point {
		return Point{
			X: float32(bounds.Min.X) + aws.ToFloat32(x)*w,
			Y: float32(bounds.Min.Y) + aws.ToFloat32(y)*h,
		}
	}

	var faces []Face
	for _, d := range out.FaceDetails {
		confidence := aws.ToFloat32(d.Confidence)
		if confidence < l.minConfidence || d.BoundingBox == nil {
			continue
		}

		bb := d.BoundingBox
		topLeft := toPoint(bb.Left, bb.Top)
		box := image.Rect(
			int(topLeft.X),
			int(topLeft.Y),
			int(topLeft.X+aws.ToFloat32(bb.Width)*w),
			int(topLeft.Y+aws.ToFloat32(bb.Height)*h),
		).Intersect(bounds)

		faces = append(faces, Face{
			Box:       box,
			Landmarks: alignmentLandmarks(d.Landmarks, toPoint),
			Score:     confidence / 100,
			Source:    l.Name(),
		})
	}
	return faces, nil
}

// alignmentLandmarks picks the eyes, nose and mouth corners out of the
// Rekognition landmark list. Returns nil unless all five are present.
func alignmentLandmarks(marks []types.Landmark, toPoint func(x, y *float32) Point) []Point {
	found := make(map[types.LandmarkType]Point, 5)
	for _, m := range marks {
		switch m.Type {
		case types.LandmarkTypeEyeLeft, types.LandmarkTypeEyeRight, types.LandmarkTypeNose,
			types.LandmarkTypeMouthLeft, types.LandmarkTypeMouthRight:
			found[m.Type] = toPoint(m.X, m.Y)
		}
	}
	if len(found) != 5 {
		return nil
	}

	eyeA, eyeB := orderLandmarks(found[types.LandmarkTypeEyeLeft], found[types.LandmarkTypeEyeRight])
	mouthA, mouthB := orderLandmarks(found[types.LandmarkTypeMouthLeft], found[types.LandmarkTypeMouthRight])
	return []Point{eyeA, eyeB, found[types.LandmarkTypeNose], mouthA, mouthB}
}
