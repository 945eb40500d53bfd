package recognition

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

func landmark(kind types.LandmarkType, x, y float32) types.Landmark {
	return types.Landmark{Type: kind, X: aws.Float32(x), Y: aws.Float32(y)}
}

func TestRekognitionLocator_Detect(t *testing.T) {
	api := &MockRekognition{Output: &rekognition.DetectFacesOutput{
		FaceDetails: []types.FaceDetail{
			{
				Confidence: aws.Float32(99.5),
				BoundingBox: &types.BoundingBox{
					Left: aws.Float32(0.25), Top: aws.Float32(0.1),
					Width: aws.Float32(0.5), Height: aws.Float32(0.5),
				},
				Landmarks: []types.Landmark{
					// Rekognition's "left" is the subject's left, i.e. larger x.
					landmark(types.LandmarkTypeEyeLeft, 0.6, 0.3),
					landmark(types.LandmarkTypeEyeRight, 0.4, 0.3),
					landmark(types.LandmarkTypeNose, 0.5, 0.4),
					landmark(types.LandmarkTypeMouthLeft, 0.58, 0.5),
					landmark(types.LandmarkTypeMouthRight, 0.42, 0.5),
					landmark(types.LandmarkTypeChinBottom, 0.5, 0.6),
				},
			},
			{
				Confidence:  aws.Float32(40),
				BoundingBox: &types.BoundingBox{Left: aws.Float32(0), Top: aws.Float32(0), Width: aws.Float32(0.1), Height: aws.Float32(0.1)},
			},
		},
	}}
	l := &RekognitionLocator{client: api, minConfidence: 90}

	faces, err := l.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 200, 100)))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if api.Input == nil || len(api.Input.Image.Bytes) == 0 {
		t.Fatal("expected encoded image to be sent")
	}
	if len(faces) != 1 {
		t.Fatalf("expected low-confidence face to be dropped, got %d faces", len(faces))
	}

	f := faces[0]
	if f.Box != image.Rect(50, 10, 150, 60) {
		t.Errorf("unexpected box %v", f.Box)
	}
	if !f.HasLandmarks() {
		t.Fatal("expected five landmarks")
	}
	if f.Landmarks[0].X != 80 || f.Landmarks[1].X != 120 {
		t.Errorf("eyes not ordered left to right: %+v", f.Landmarks[:2])
	}
	if f.Landmarks[2] != (Point{X: 100, Y: 40}) {
		t.Errorf("unexpected nose %+v", f.Landmarks[2])
	}
	if f.Landmarks[3].X >= f.Landmarks[4].X {
		t.Errorf("mouth corners not ordered: %+v", f.Landmarks[3:])
	}
	if f.Score < 0.99 || f.Score > 1 {
		t.Errorf("unexpected score %f", f.Score)
	}
}

func TestRekognitionLocator_PartialLandmarks(t *testing.T) {
	api := &MockRekognition{Output: &rekognition.DetectFacesOutput{
		FaceDetails: []types.FaceDetail{{
			Confidence:  aws.Float32(95),
			BoundingBox: &types.BoundingBox{Left: aws.Float32(0), Top: aws.Float32(0), Width: aws.Float32(1), Height: aws.Float32(1)},
			Landmarks:   []types.Landmark{landmark(types.LandmarkTypeNose, 0.5, 0.5)},
		}},
	}}
	l := &RekognitionLocator{client: api}

	faces, err := l.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10)))
	if err != nil {
		t.Fatal(err)
	}
	if len(faces) != 1 || faces[0].Landmarks != nil {
		t.Errorf("expected one face without landmarks, got %+v", faces)
	}
}

func TestRekognitionLocator_Error(t *testing.T) {
	boom := errors.New("throttled")
	l := &RekognitionLocator{client: &MockRekognition{Err: boom}}

	if _, err := l.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10))); !errors.Is(err, boom) {
		t.Errorf("expected wrapped API error, got %v", err)
	}
}
