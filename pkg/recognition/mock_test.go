package recognition

import (
	"context"
	"image"

	"github.com/Kagami/go-face"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
)

type MockFaceEngine struct {
	RecognizeFunc    func(data []byte) ([]face.Face, error)
	RecognizeCNNFunc func(data []byte) ([]face.Face, error)
	CloseFunc        func()
}

func (m *MockFaceEngine) Recognize(data []byte) ([]face.Face, error) {
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(data)
	}
	return nil, nil
}

func (m *MockFaceEngine) RecognizeCNN(data []byte) ([]face.Face, error) {
	if m.RecognizeCNNFunc != nil {
		return m.RecognizeCNNFunc(data)
	}
	return nil, nil
}

func (m *MockFaceEngine) Close() {
	if m.CloseFunc != nil {
		m.CloseFunc()
	}
}

type MockLocator struct {
	Faces []Face
	Err   error
	Calls int
}

func (m *MockLocator) Name() string { return "mock" }

func (m *MockLocator) Detect(ctx context.Context, img image.Image) ([]Face, error) {
	m.Calls++
	return m.Faces, m.Err
}

func (m *MockLocator) Close() error { return nil }

type MockRekognition struct {
	Output *rekognition.DetectFacesOutput
	Err    error
	Input  *rekognition.DetectFacesInput
}

func (m *MockRekognition) DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
	m.Input = params
	return m.Output, m.Err
}
