// Package engine drives the external inference worker that runs the
// face-analysis and inswapper ONNX models. Requests go to the worker's stdin
// and replies come back on a dedicated pipe (fd 3 in the child), both framed
// as [uint32 big-endian length][payload].
package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"

	"github.com/L0G1H/deepfakery/pkg/logging"
	"github.com/L0G1H/deepfakery/pkg/recognition"
)

// Name identifies faces produced by the engine's detector.
const Name = "engine"

// maxReply bounds a single reply frame.
const maxReply = 1 << 30

// ErrWorkerCrashed is returned when the worker process dies or closes its pipes.
var ErrWorkerCrashed = errors.New("engine worker crashed")

// ErrClosed is returned for calls made after Close.
var ErrClosed = errors.New("engine worker closed")

// Options describes how to launch the worker.
type Options struct {
	Command   string
	Args      []string
	SwapModel string
	Pack      string
	DetSize   int
	Provider  string
}

func (o Options) argv() []string {
	args := append([]string{}, o.Args...)
	args = append(args,
		"--swap-model", o.SwapModel,
		"--det-size", strconv.Itoa(o.DetSize),
		"--provider", o.Provider,
	)
	if o.Pack != "" {
		args = append(args, "--pack", o.Pack)
	}
	return args
}

// SafeCommand wraps exec.Cmd with a buffer capturing the worker's stderr so
// its logs can be shown if it dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand prepares a command without starting it.
func NewSafeCommand(name string, args ...string) *SafeCommand {
	cmd := exec.Command(name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// Worker is a running inference worker. It implements recognition.Locator
// for reference and main faces and swap.Swapper. Calls are serialized.
type Worker struct {
	Cmd      *SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	mu     sync.Mutex
	closed bool
}

// Start launches the worker process.
func Start(opts Options) (*Worker, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("engine command not configured")
	}

	cmd := NewSafeCommand(opts.Command, opts.argv()...)

	// The child sees the write end as fd 3.
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	cmd.ExtraFiles = []*os.File{w}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to start engine %s: %w", opts.Command, err)
	}

	// Only the child keeps the write end open, so its exit shows up as EOF.
	w.Close()

	logging.Component(Name).WithFields(logging.Fields{
		"pid":      cmd.Process.Pid,
		"provider": opts.Provider,
		"det_size": opts.DetSize,
	}).Info("Engine worker started")

	return &Worker{Cmd: cmd, Stdin: stdin, DataPipe: r}, nil
}

// Communicate sends one request frame and reads one reply frame.
func (w *Worker) Communicate(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}

	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, w.crashed(err)
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, w.crashed(err)
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, w.crashed(err)
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxReply {
		return nil, fmt.Errorf("%w: reply of %d bytes", ErrProtocol, respLen)
	}
	respBody := make([]byte, respLen)
	if _, err := io.ReadFull(w.DataPipe, respBody); err != nil {
		return nil, w.crashed(err)
	}
	return respBody, nil
}

// crashed classifies a pipe failure. A closed pipe or short read means the
// worker is gone; the captured stderr is attached to the log.
func (w *Worker) crashed(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) {
		entry := logging.Component(Name).WithError(err)
		if logs := w.Logs(); logs != "" {
			entry = entry.WithField("stderr", logs)
		}
		entry.Error("Engine worker stopped responding")
		return fmt.Errorf("%w: %v", ErrWorkerCrashed, err)
	}
	return err
}

// Logs returns what the worker wrote to stderr so far.
func (w *Worker) Logs() string {
	if w.Cmd == nil || w.Cmd.Stderr == nil {
		return ""
	}
	return w.Cmd.Stderr.String()
}

// Name implements recognition.Locator.
func (w *Worker) Name() string { return Name }

// Detect implements recognition.Locator. Faces carry landmarks and the
// identity embedding needed for a swap reference.
func (w *Worker) Detect(ctx context.Context, img image.Image) ([]recognition.Face, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, recognition.ErrNoImage
	}

	reply, err := w.Communicate(ctx, encodeDetect(img))
	if err != nil {
		return nil, err
	}

	faces, err := decodeDetect(reply)
	if err != nil {
		return nil, err
	}

	origin := img.Bounds().Min
	for i := range faces {
		faces[i].Box = faces[i].Box.Add(origin)
		for j := range faces[i].Landmarks {
			faces[i].Landmarks[j].X += float32(origin.X)
			faces[i].Landmarks[j].Y += float32(origin.Y)
		}
	}
	return faces, nil
}

// Swap implements swap.Swapper. The worker pastes the synthesized face back
// into a copy of frame and returns the whole frame.
func (w *Worker) Swap(ctx context.Context, frame image.Image, target, reference recognition.Face) (image.Image, error) {
	if !target.HasLandmarks() {
		return nil, fmt.Errorf("swap target at %v: %w", target.Box, recognition.ErrNoLandmarks)
	}

	origin := frame.Bounds().Min
	local := target
	local.Box = target.Box.Sub(origin)
	local.Landmarks = make([]recognition.Point, len(target.Landmarks))
	for i, p := range target.Landmarks {
		local.Landmarks[i] = recognition.Point{X: p.X - float32(origin.X), Y: p.Y - float32(origin.Y)}
	}

	reply, err := w.Communicate(ctx, encodeSwap(frame, local, reference))
	if err != nil {
		return nil, err
	}

	out, err := decodeSwap(reply)
	if err != nil {
		return nil, err
	}
	if out.Bounds().Size() != frame.Bounds().Size() {
		return nil, fmt.Errorf("%w: swapped frame is %v, want %v", ErrProtocol, out.Bounds().Size(), frame.Bounds().Size())
	}
	return out, nil
}

// Close shuts the worker down and waits for it to exit.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	if err := w.Cmd.Wait(); err != nil {
		logging.Component(Name).WithError(err).Debug("Engine worker exited")
	}
	return nil
}
