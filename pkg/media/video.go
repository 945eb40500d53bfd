package media

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/L0G1H/deepfakery/pkg/logging"
	"gocv.io/x/gocv"
)

// DefaultCodec is the fourcc used when none is configured.
const DefaultCodec = "mp4v"

// VideoMeta is what the container declares about its video stream.
// FrameCount may not match the number of decodable frames.
type VideoMeta struct {
	FPS        float64
	FrameCount int
	Width      int
	Height     int
}

// VideoReader yields frames in display order. Read returns io.EOF at the end
// of the stream.
type VideoReader interface {
	Meta() VideoMeta
	Read() (image.Image, error)
	Close() error
}

// VideoWriter appends frames to an output container.
type VideoWriter interface {
	Write(frame image.Image) error
	Close() error
}

// FrameSequence is a decoded video held in memory.
type FrameSequence struct {
	Frames []image.Image
	FPS    float64
}

// Len returns the number of frames.
func (s FrameSequence) Len() int { return len(s.Frames) }

// CaptureReader reads a video file through OpenCV.
type CaptureReader struct {
	vc   *gocv.VideoCapture
	mat  gocv.Mat
	meta VideoMeta
}

// OpenVideo opens path for sequential reading.
func OpenVideo(path string) (*CaptureReader, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		if vc != nil {
			vc.Close()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s: cannot open container", ErrUnreadable, path)
	}

	return &CaptureReader{
		vc:  vc,
		mat: gocv.NewMat(),
		meta: VideoMeta{
			FPS:        vc.Get(gocv.VideoCaptureFPS),
			FrameCount: int(vc.Get(gocv.VideoCaptureFrameCount)),
			Width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
		},
	}, nil
}

// Meta implements VideoReader.
func (r *CaptureReader) Meta() VideoMeta { return r.meta }

// Read implements VideoReader.
func (r *CaptureReader) Read() (image.Image, error) {
	if ok := r.vc.Read(&r.mat); !ok || r.mat.Empty() {
		return nil, io.EOF
	}
	img, err := r.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}

// Close implements VideoReader.
func (r *CaptureReader) Close() error {
	r.mat.Close()
	return r.vc.Close()
}

// FileWriter encodes frames into a video file through OpenCV.
type FileWriter struct {
	vw     *gocv.VideoWriter
	width  int
	height int
}

// CreateVideo opens path for writing with the given fourcc, frame rate and
// frame size.
func CreateVideo(path, codec string, fps float64, width, height int) (*FileWriter, error) {
	if codec == "" {
		codec = DefaultCodec
	}
	vw, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create video %s: %w", path, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("failed to create video %s: writer did not open", path)
	}
	return &FileWriter{vw: vw, width: width, height: height}, nil
}

// Write implements VideoWriter.
func (w *FileWriter) Write(frame image.Image) error {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()
	return w.vw.Write(mat)
}

// Close implements VideoWriter.
func (w *FileWriter) Close() error {
	return w.vw.Close()
}

// ReadFrames drains r into memory. It stops at end of stream or once the
// declared frame count is reached; a decode failure before that truncates
// the sequence at the last good frame.
func ReadFrames(r VideoReader) FrameSequence {
	meta := r.Meta()
	seq := FrameSequence{FPS: meta.FPS}

	for meta.FrameCount <= 0 || len(seq.Frames) < meta.FrameCount {
		frame, err := r.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logging.Debugf("Stopping decode after %d frames: %v", len(seq.Frames), err)
			}
			break
		}
		seq.Frames = append(seq.Frames, frame)
	}

	if meta.FrameCount > 0 && len(seq.Frames) < meta.FrameCount {
		logging.Debugf("Decoded %d of %d declared frames", len(seq.Frames), meta.FrameCount)
	}
	return seq
}

// WriteFrames encodes every frame of seq to w in order.
func WriteFrames(seq FrameSequence, w VideoWriter) error {
	for i, frame := range seq.Frames {
		if err := w.Write(frame); err != nil {
			return fmt.Errorf("failed to write frame %d: %w", i, err)
		}
	}
	return nil
}

// DecodeVideo reads a whole video into memory. If the container cannot be
// opened it returns an empty sequence with FPS 0 together with an error
// wrapping ErrUnreadable.
func DecodeVideo(path string) (FrameSequence, error) {
	r, err := OpenVideo(path)
	if err != nil {
		logging.Warnf("Error: could not open video %s", path)
		return FrameSequence{}, err
	}
	defer r.Close()
	return ReadFrames(r), nil
}

// EncodeVideo writes seq to path with the given fourcc. The frame size comes
// from the first frame. An empty sequence writes nothing.
func EncodeVideo(seq FrameSequence, path, codec string) error {
	if seq.Len() == 0 {
		logging.Warn("Error: no frames to write")
		return nil
	}

	size := seq.Frames[0].Bounds().Size()
	w, err := CreateVideo(path, codec, seq.FPS, size.X, size.Y)
	if err != nil {
		return err
	}
	if err := WriteFrames(seq, w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
