package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/L0G1H/deepfakery/pkg/media"
	"github.com/L0G1H/deepfakery/pkg/recognition"
)

// MockLocator answers Detect from a per-call function.
type MockLocator struct {
	name   string
	detect func(call int, img image.Image) ([]recognition.Face, error)
	calls  int
}

func (m *MockLocator) Name() string { return m.name }

func (m *MockLocator) Detect(ctx context.Context, img image.Image) ([]recognition.Face, error) {
	m.calls++
	if m.detect == nil {
		return nil, nil
	}
	return m.detect(m.calls, img)
}

func (m *MockLocator) Close() error { return nil }

// facesLocator always reports the same faces.
func facesLocator(faces ...recognition.Face) *MockLocator {
	return &MockLocator{name: "mock", detect: func(int, image.Image) ([]recognition.Face, error) {
		return faces, nil
	}}
}

func face(x int) recognition.Face {
	return recognition.Face{Box: image.Rect(x, 0, x+2, 2), Score: 0.9}
}

func refFace() recognition.Face {
	return recognition.Face{Box: image.Rect(0, 0, 4, 4), Embedding: []float32{0.1, 0.2, 0.3}}
}

// MockSwapper paints each target box white and records the boxes it saw.
type MockSwapper struct {
	boxes  []image.Rectangle
	failAt int
	err    error
}

func (m *MockSwapper) Swap(ctx context.Context, frame image.Image, target, reference recognition.Face) (image.Image, error) {
	m.boxes = append(m.boxes, target.Box)
	if m.failAt > 0 && len(m.boxes) == m.failAt {
		return nil, m.err
	}
	b := frame.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, frame.At(x, y))
		}
	}
	for y := target.Box.Min.Y; y < target.Box.Max.Y; y++ {
		for x := target.Box.Min.X; x < target.Box.Max.X; x++ {
			out.Set(x, y, color.White)
		}
	}
	return out, nil
}

type MockReader struct {
	meta   media.VideoMeta
	frames []image.Image
	failAt int
	reads  int
	closed bool
}

func (m *MockReader) Meta() media.VideoMeta { return m.meta }

func (m *MockReader) Read() (image.Image, error) {
	m.reads++
	if m.failAt > 0 && m.reads == m.failAt {
		return nil, errors.New("corrupt packet")
	}
	if m.reads > len(m.frames) {
		return nil, io.EOF
	}
	return m.frames[m.reads-1], nil
}

func (m *MockReader) Close() error {
	m.closed = true
	return nil
}

type MockWriter struct {
	frames []image.Image
	closed bool
}

func (m *MockWriter) Write(frame image.Image) error {
	m.frames = append(m.frames, frame)
	return nil
}

func (m *MockWriter) Close() error {
	m.closed = true
	return nil
}

// videoFixture wires a generator to in-memory video I/O.
type videoFixture struct {
	reader  *MockReader
	writer  *MockWriter
	created int
	openErr error
}

func (f *videoFixture) install(g *Generator) {
	g.openVideo = func(path string) (media.VideoReader, error) {
		if f.openErr != nil {
			return nil, f.openErr
		}
		return f.reader, nil
	}
	g.createVideo = func(path, codec string, fps float64, width, height int) (media.VideoWriter, error) {
		f.created++
		return f.writer, nil
	}
}

func frames(n, w, h int) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		out[i] = image.NewNRGBA(image.Rect(0, 0, w, h))
	}
	return out
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	if err := media.WriteImage(img, path); err != nil {
		t.Fatalf("failed to write fixture %s: %v", path, err)
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}
}

// fixtureDir holds a main photo, a reference photo and an empty video file.
func fixtureDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "main.png"), 12, 8)
	writePNG(t, filepath.Join(dir, "ref.png"), 6, 6)
	touch(t, filepath.Join(dir, "main.mp4"))
	return dir
}
