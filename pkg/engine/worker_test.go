package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/L0G1H/deepfakery/pkg/recognition"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestOptions_argv(t *testing.T) {
	opts := Options{
		Command:   "deepfakery-engine",
		Args:      []string{"--threads", "2"},
		SwapModel: "/models/inswapper_128.onnx",
		Pack:      "buffalo_l",
		DetSize:   640,
		Provider:  "CUDAExecutionProvider",
	}

	got := strings.Join(opts.argv(), " ")
	want := "--threads 2 --swap-model /models/inswapper_128.onnx --det-size 640 --provider CUDAExecutionProvider --pack buffalo_l"
	if got != want {
		t.Errorf("argv = %q, want %q", got, want)
	}
}

func TestWorker_Detect(t *testing.T) {
	emb := make([]float32, 512)
	emb[0] = 0.5
	kps := [][2]float32{{12, 14}, {28, 14}, {20, 20}, {14, 26}, {26, 26}}
	reply := okReply().
		u32(2).
		face([4]float32{10, 10, 30.4, 30.6}, 0.91, kps, emb).
		face([4]float32{40, 5, 60, 25}, 0.75, nil, nil).
		Bytes()

	w, stdin, _ := newMockWorker(reply)
	img := solid(4, 3, color.NRGBA{R: 255, A: 255})

	faces, err := w.Detect(context.Background(), img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	sent := stdin.Bytes()
	wantPayload := 1 + 8 + 4*3*4
	if len(sent) != 4+wantPayload {
		t.Fatalf("expected %d bytes sent, got %d", 4+wantPayload, len(sent))
	}
	if binary.BigEndian.Uint32(sent[:4]) != uint32(wantPayload) {
		t.Errorf("bad length header %d", binary.BigEndian.Uint32(sent[:4]))
	}
	if sent[4] != opDetect {
		t.Errorf("expected detect opcode, got %#x", sent[4])
	}
	if binary.BigEndian.Uint32(sent[5:9]) != 4 || binary.BigEndian.Uint32(sent[9:13]) != 3 {
		t.Error("image dimensions not sent")
	}
	if !bytes.Equal(sent[13:17], []byte{255, 0, 0, 255}) {
		t.Errorf("unexpected first pixel %v", sent[13:17])
	}

	if len(faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(faces))
	}
	if faces[0].Box != image.Rect(10, 10, 30, 31) {
		t.Errorf("unexpected box %v", faces[0].Box)
	}
	if !faces[0].HasLandmarks() || faces[0].Landmarks[2] != (recognition.Point{X: 20, Y: 20}) {
		t.Errorf("unexpected landmarks %v", faces[0].Landmarks)
	}
	if len(faces[0].Embedding) != 512 || faces[0].Embedding[0] != 0.5 {
		t.Error("embedding not decoded")
	}
	if faces[0].Source != Name {
		t.Errorf("unexpected source %q", faces[0].Source)
	}
	if faces[1].Landmarks != nil || faces[1].Embedding != nil {
		t.Error("second face should have no landmarks or embedding")
	}
}

func TestWorker_DetectNoFaces(t *testing.T) {
	w, _, _ := newMockWorker(okReply().u32(0).Bytes())

	faces, err := w.Detect(context.Background(), solid(2, 2, color.NRGBA{A: 255}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("expected no faces, got %d", len(faces))
	}
}

func TestWorker_DetectOffsetImage(t *testing.T) {
	reply := okReply().u32(1).face([4]float32{1, 2, 3, 4}, 1, [][2]float32{{1, 1}}, nil).Bytes()
	w, _, _ := newMockWorker(reply)

	sub := solid(20, 20, color.NRGBA{A: 255}).SubImage(image.Rect(10, 10, 20, 20))
	faces, err := w.Detect(context.Background(), sub)
	if err != nil {
		t.Fatal(err)
	}
	if faces[0].Box != image.Rect(11, 12, 13, 14) {
		t.Errorf("box not translated into image coordinates: %v", faces[0].Box)
	}
	if faces[0].Landmarks[0] != (recognition.Point{X: 11, Y: 11}) {
		t.Errorf("landmark not translated: %v", faces[0].Landmarks[0])
	}
}

func TestWorker_Swap(t *testing.T) {
	w, stdin, _ := newMockWorker(okReply().image(3, 2, 7).Bytes())

	frame := solid(3, 2, color.NRGBA{A: 255})
	target := recognition.Face{Box: image.Rect(0, 0, 2, 2), Score: 0.9, Landmarks: fiveLandmarks()}
	reference := recognition.Face{Embedding: []float32{1, 2, 3}}

	out, err := w.Swap(context.Background(), frame, target, reference)
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	if out.Bounds() != frame.Bounds() {
		t.Errorf("unexpected bounds %v", out.Bounds())
	}
	if px := out.(*image.NRGBA).Pix[0]; px != 7 {
		t.Errorf("swapped pixels not returned, got %d", px)
	}

	sent := stdin.Bytes()
	if sent[4] != opSwap {
		t.Errorf("expected swap opcode, got %#x", sent[4])
	}
	// header + op + image + box + score + kps count + kps + emb count + emb
	want := 4 + 1 + 8 + 3*2*4 + 16 + 4 + 4 + 5*8 + 4 + 4 + 3*4
	if len(sent) != want {
		t.Errorf("expected %d bytes sent, got %d", want, len(sent))
	}
	if frame.Pix[0] != 0 {
		t.Error("input frame was modified")
	}
}

func TestWorker_SwapSizeMismatch(t *testing.T) {
	w, _, _ := newMockWorker(okReply().image(1, 1, 0).Bytes())

	target := recognition.Face{Landmarks: fiveLandmarks()}
	_, err := w.Swap(context.Background(), solid(3, 2, color.NRGBA{}), target, recognition.Face{})
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol, got %v", err)
	}
}

func TestWorker_SwapWithoutLandmarks(t *testing.T) {
	tests := []struct {
		name      string
		landmarks []recognition.Point
	}{
		{"none", nil},
		{"partial", fiveLandmarks()[:2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, stdin, _ := newMockWorker(okReply().image(3, 2, 7).Bytes())
			target := recognition.Face{Box: image.Rect(0, 0, 2, 2), Landmarks: tt.landmarks}

			_, err := w.Swap(context.Background(), solid(3, 2, color.NRGBA{}), target, recognition.Face{Embedding: []float32{1}})
			if !errors.Is(err, recognition.ErrNoLandmarks) {
				t.Fatalf("expected ErrNoLandmarks, got %v", err)
			}
			if stdin.Len() != 0 {
				t.Errorf("nothing should be sent to the worker, got %d bytes", stdin.Len())
			}
		})
	}
}

func fiveLandmarks() []recognition.Point {
	return []recognition.Point{{X: 0.5, Y: 0.5}, {X: 1.5, Y: 0.5}, {X: 1, Y: 1}, {X: 0.5, Y: 1.5}, {X: 1.5, Y: 1.5}}
}

func TestWorker_ErrorReply(t *testing.T) {
	msg := "onnxruntime: CUDA out of memory"
	w, _, _ := newMockWorker(errorReply(msg))

	_, err := w.Detect(context.Background(), solid(2, 2, color.NRGBA{}))
	var werr *WorkerError
	if !errors.As(err, &werr) {
		t.Fatalf("expected WorkerError, got %v", err)
	}
	if err.Error() != "engine worker error: "+msg {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestWorker_MalformedReplies(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
	}{
		{"empty", []byte{}},
		{"unknown status", []byte{9}},
		{"missing count", []byte{statusOK}},
		{"truncated face", okReply().u32(1).f32(1, 2).Bytes()},
		{"oversized embedding", okReply().u32(1).f32(0, 0, 1, 1, 1).u32(0).u32(1 << 20).Bytes()},
		{"truncated error message", []byte{statusError, 0, 0, 0, 9, 'x'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _, _ := newMockWorker(tt.reply)
			if _, err := w.Detect(context.Background(), solid(1, 1, color.NRGBA{})); !errors.Is(err, ErrProtocol) {
				t.Errorf("expected ErrProtocol, got %v", err)
			}
		})
	}
}

func TestWorker_Crash(t *testing.T) {
	w, _, _ := newMockWorker()
	w.Cmd = NewSafeCommand("deepfakery-engine")
	w.Cmd.Stderr.WriteString("ModuleNotFoundError: No module named 'insightface'")

	_, err := w.Detect(context.Background(), solid(1, 1, color.NRGBA{}))
	if !errors.Is(err, ErrWorkerCrashed) {
		t.Fatalf("expected ErrWorkerCrashed, got %v", err)
	}
	if !strings.Contains(w.Logs(), "insightface") {
		t.Error("stderr should be kept for diagnostics")
	}
}

func TestWorker_CanceledContext(t *testing.T) {
	w, stdin, _ := newMockWorker(okReply().u32(0).Bytes())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := w.Detect(ctx, solid(1, 1, color.NRGBA{})); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if stdin.Len() != 0 {
		t.Error("nothing should be sent after cancellation")
	}
}

func TestWorker_Close(t *testing.T) {
	w, stdin, data := newMockWorker()

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !stdin.closed || !data.closed {
		t.Error("pipes should be closed")
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if _, err := w.Communicate(context.Background(), []byte{opDetect}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestWorker_DetectNilImage(t *testing.T) {
	w, _, _ := newMockWorker()
	if _, err := w.Detect(context.Background(), nil); !errors.Is(err, recognition.ErrNoImage) {
		t.Errorf("expected ErrNoImage, got %v", err)
	}
}

func TestStart_MissingCommand(t *testing.T) {
	if _, err := Start(Options{}); err == nil {
		t.Error("expected error for empty command")
	}
	if _, err := Start(Options{Command: "/nonexistent/deepfakery-engine"}); err == nil {
		t.Error("expected error for missing binary")
	}
}
