package recognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/L0G1H/deepfakery/pkg/logging"
)

// FaceEngine is the subset of *face.Recognizer the dlib backend uses.
type FaceEngine interface {
	Recognize(imgData []byte) ([]face.Face, error)
	RecognizeCNN(imgData []byte) ([]face.Face, error)
	Close()
}

// DlibLocator detects faces with dlib via go-face. Its faces carry a 128-d
// dlib descriptor, which the swap model cannot use as a reference, so it only
// serves main-image detection.
type DlibLocator struct {
	rec       FaceEngine
	modelPath string
	useCNN    bool
	loaded    bool
	mu        sync.RWMutex
	factory   func(path string) (FaceEngine, error)
}

// NewDlibLocator creates an unloaded dlib locator.
func NewDlibLocator() *DlibLocator {
	return &DlibLocator{
		factory: func(path string) (FaceEngine, error) {
			return face.NewRecognizer(path)
		},
	}
}

// SetCNN switches to the CNN detector (mmod_human_face_detector.dat).
func (l *DlibLocator) SetCNN(useCNN bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.useCNN = useCNN
}

// LoadModels loads the dlib models from modelPath. The directory must hold
// shape_predictor_5_face_landmarks.dat and dlib_face_recognition_resnet_model_v1.dat,
// plus mmod_human_face_detector.dat when the CNN detector is used.
func (l *DlibLocator) LoadModels(modelPath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded {
		return nil
	}

	logging.Infof("Loading dlib models from: %s", modelPath)

	rec, err := l.factory(modelPath)
	if err != nil {
		return fmt.Errorf("failed to load dlib models: %w", err)
	}

	l.rec = rec
	l.modelPath = modelPath
	l.loaded = true
	return nil
}

// IsLoaded returns true if models are loaded.
func (l *DlibLocator) IsLoaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

// Name implements Locator.
func (l *DlibLocator) Name() string { return "dlib" }

// Close releases the recognizer resources.
func (l *DlibLocator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rec != nil {
		l.rec.Close()
		l.rec = nil
	}
	l.loaded = false
	return nil
}

// Detect implements Locator.
func (l *DlibLocator) Detect(ctx context.Context, img image.Image) ([]Face, error) {
	if err := checkImage(img); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.loaded {
		return nil, ErrModelNotLoaded
	}

	// go-face only accepts encoded JPEG data.
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode image for dlib: %w", err)
	}

	recognize := l.rec.Recognize
	if l.useCNN {
		recognize = l.rec.RecognizeCNN
	}
	found, err := recognize(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("dlib face detection failed: %w", err)
	}

	origin := img.Bounds().Min
	result := make([]Face, len(found))
	for i, f := range found {
		descriptor := make([]float32, len(f.Descriptor))
		copy(descriptor, f.Descriptor[:])
		result[i] = Face{
			Box:       f.Rectangle.Add(origin),
			Score:     1.0, // go-face doesn't report confidence
			Embedding: descriptor,
			Source:    l.Name(),
		}
	}

	logging.Debugf("dlib detected %d face(s)", len(result))
	return result, nil
}
