package media

import (
	"errors"
	"image"
	"io"
)

type MockReader struct {
	meta   VideoMeta
	frames []image.Image
	failAt int // 1-based index of the Read that fails, 0 for never
	reads  int
	closed bool
}

func (m *MockReader) Meta() VideoMeta { return m.meta }

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
	err    error
	closed bool
}

func (m *MockWriter) Write(frame image.Image) error {
	if m.err != nil {
		return m.err
	}
	m.frames = append(m.frames, frame)
	return nil
}

func (m *MockWriter) Close() error {
	m.closed = true
	return nil
}

func numbered(n int) []image.Image {
	frames := make([]image.Image, n)
	for i := range frames {
		frames[i] = image.NewNRGBA(image.Rect(0, 0, i+1, 1))
	}
	return frames
}
