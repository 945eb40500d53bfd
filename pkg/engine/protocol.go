package engine

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/L0G1H/deepfakery/pkg/recognition"
	"github.com/disintegration/imaging"
)

// Request opcodes.
const (
	opDetect byte = 0x01
	opSwap   byte = 0x02
)

// Reply status bytes.
const (
	statusOK    byte = 0
	statusError byte = 1
)

// maxImageSide bounds decoded dimensions so a corrupt reply cannot trigger
// a huge allocation.
const maxImageSide = 1 << 15

// ErrProtocol is returned for replies that do not follow the wire format.
var ErrProtocol = errors.New("malformed engine reply")

// WorkerError is a failure reported by the worker itself (status 1).
type WorkerError struct {
	Message string
}

func (e *WorkerError) Error() string {
	return "engine worker error: " + e.Message
}

func encodeDetect(img image.Image) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(opDetect)
	writeImage(buf, img)
	return buf.Bytes()
}

func encodeSwap(frame image.Image, target, reference recognition.Face) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(opSwap)
	writeImage(buf, frame)
	writeFace(buf, target)
	writeFloats(buf, reference.Embedding)
	return buf.Bytes()
}

// writeImage serialises img as uint32 width, uint32 height and w*h*4 bytes of
// non-premultiplied RGBA, rows top to bottom.
func writeImage(w *bytes.Buffer, img image.Image) {
	src := imaging.Clone(img)
	b := src.Bounds()
	binary.Write(w, binary.BigEndian, uint32(b.Dx()))
	binary.Write(w, binary.BigEndian, uint32(b.Dy()))
	rowLen := b.Dx() * 4
	for y := 0; y < b.Dy(); y++ {
		off := y * src.Stride
		w.Write(src.Pix[off : off+rowLen])
	}
}

func writeFace(w *bytes.Buffer, f recognition.Face) {
	box := [4]float32{
		float32(f.Box.Min.X), float32(f.Box.Min.Y),
		float32(f.Box.Max.X), float32(f.Box.Max.Y),
	}
	binary.Write(w, binary.BigEndian, box)
	binary.Write(w, binary.BigEndian, f.Score)
	binary.Write(w, binary.BigEndian, uint32(len(f.Landmarks)))
	for _, p := range f.Landmarks {
		binary.Write(w, binary.BigEndian, [2]float32{p.X, p.Y})
	}
	writeFloats(w, f.Embedding)
}

func writeFloats(w *bytes.Buffer, v []float32) {
	binary.Write(w, binary.BigEndian, uint32(len(v)))
	if len(v) > 0 {
		binary.Write(w, binary.BigEndian, v)
	}
}

// checkStatus consumes the status byte and turns a status 1 reply into a
// *WorkerError.
func checkStatus(r *bytes.Reader) error {
	status, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: empty reply", ErrProtocol)
	}
	switch status {
	case statusOK:
		return nil
	case statusError:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return fmt.Errorf("%w: truncated error message", ErrProtocol)
		}
		if int(n) > r.Len() {
			return fmt.Errorf("%w: error message length %d exceeds reply", ErrProtocol, n)
		}
		msg := make([]byte, n)
		io.ReadFull(r, msg)
		return &WorkerError{Message: string(msg)}
	default:
		return fmt.Errorf("%w: unknown status %d", ErrProtocol, status)
	}
}

func decodeDetect(reply []byte) ([]recognition.Face, error) {
	r := bytes.NewReader(reply)
	if err := checkStatus(r); err != nil {
		return nil, err
	}

	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: missing face count", ErrProtocol)
	}

	faces := make([]recognition.Face, 0, n)
	for i := uint32(0); i < n; i++ {
		f, err := readFace(r)
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		faces = append(faces, f)
	}
	return faces, nil
}

func readFace(r *bytes.Reader) (recognition.Face, error) {
	var f recognition.Face
	var box [4]float32
	if err := binary.Read(r, binary.BigEndian, &box); err != nil {
		return f, fmt.Errorf("%w: truncated box", ErrProtocol)
	}
	f.Box = image.Rect(round(box[0]), round(box[1]), round(box[2]), round(box[3]))

	if err := binary.Read(r, binary.BigEndian, &f.Score); err != nil {
		return f, fmt.Errorf("%w: truncated score", ErrProtocol)
	}

	var kpsCount uint32
	if err := binary.Read(r, binary.BigEndian, &kpsCount); err != nil {
		return f, fmt.Errorf("%w: truncated landmark count", ErrProtocol)
	}
	if int64(kpsCount)*8 > int64(r.Len()) {
		return f, fmt.Errorf("%w: %d landmarks exceed reply", ErrProtocol, kpsCount)
	}
	for i := uint32(0); i < kpsCount; i++ {
		var p [2]float32
		binary.Read(r, binary.BigEndian, &p)
		f.Landmarks = append(f.Landmarks, recognition.Point{X: p[0], Y: p[1]})
	}

	var err error
	f.Embedding, err = readFloats(r)
	if err != nil {
		return f, err
	}
	f.Source = Name
	return f, nil
}

// readFloats reads a uint32 count followed by that many float32 values.
func readFloats(r *bytes.Reader) ([]float32, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: truncated length", ErrProtocol)
	}
	if n == 0 {
		return nil, nil
	}
	if int64(n)*4 > int64(r.Len()) {
		return nil, fmt.Errorf("%w: %d values exceed reply", ErrProtocol, n)
	}
	v := make([]float32, n)
	if err := binary.Read(r, binary.BigEndian, v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return v, nil
}

func decodeSwap(reply []byte) (image.Image, error) {
	r := bytes.NewReader(reply)
	if err := checkStatus(r); err != nil {
		return nil, err
	}
	return readImage(r)
}

func readImage(r *bytes.Reader) (*image.NRGBA, error) {
	var dims [2]uint32
	if err := binary.Read(r, binary.BigEndian, &dims); err != nil {
		return nil, fmt.Errorf("%w: truncated image header", ErrProtocol)
	}
	w, h := dims[0], dims[1]
	if w == 0 || h == 0 || w > maxImageSide || h > maxImageSide {
		return nil, fmt.Errorf("%w: bad image size %dx%d", ErrProtocol, w, h)
	}
	img := image.NewNRGBA(image.Rect(0, 0, int(w), int(h)))
	if _, err := io.ReadFull(r, img.Pix); err != nil {
		return nil, fmt.Errorf("%w: truncated pixel data", ErrProtocol)
	}
	return img, nil
}

func round(v float32) int {
	return int(math.Round(float64(v)))
}
