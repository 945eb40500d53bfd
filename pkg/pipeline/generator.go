// Package pipeline composes model provisioning, face location, swapping and
// media I/O into the photo and video deepfake jobs.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/L0G1H/deepfakery/pkg/config"
	"github.com/L0G1H/deepfakery/pkg/logging"
	"github.com/L0G1H/deepfakery/pkg/media"
	"github.com/L0G1H/deepfakery/pkg/notify"
	"github.com/L0G1H/deepfakery/pkg/recognition"
	"github.com/L0G1H/deepfakery/pkg/swap"
)

// Options tunes the jobs a Generator runs.
type Options struct {
	Codec            string
	ProgressInterval int
	// ProgressBar draws a bar on ProgressOut while a video is processed.
	ProgressBar bool
	ProgressOut io.Writer
	DebugDir    string
	DebugEvery  int
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Codec:            cfg.Video.Codec,
		ProgressInterval: cfg.Video.ProgressInterval,
		ProgressBar:      cfg.Video.ProgressBar,
		DebugDir:         cfg.Detection.DebugDir,
		DebugEvery:       cfg.Video.DebugEvery,
	}
}

// Generator runs deepfake jobs. It is built once at startup and holds the
// loaded detectors and swapper for the lifetime of the process.
type Generator struct {
	mainLocator recognition.Locator
	refLocator  recognition.Locator
	swapper     swap.Swapper
	opts        Options
	notifier    *notify.Notifier

	openVideo   func(path string) (media.VideoReader, error)
	createVideo func(path, codec string, fps float64, width, height int) (media.VideoWriter, error)
}

// New returns a Generator. mainLocator finds the faces to replace,
// refLocator finds the reference face and must yield embeddings.
func New(mainLocator, refLocator recognition.Locator, swapper swap.Swapper, opts Options) *Generator {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 10
	}
	if opts.Codec == "" {
		opts.Codec = media.DefaultCodec
	}
	return &Generator{
		mainLocator: mainLocator,
		refLocator:  refLocator,
		swapper:     swapper,
		opts:        opts,
		openVideo: func(path string) (media.VideoReader, error) {
			return media.OpenVideo(path)
		},
		createVideo: func(path, codec string, fps float64, width, height int) (media.VideoWriter, error) {
			return media.CreateVideo(path, codec, fps, width, height)
		},
	}
}

// SetNotifier enables completion notifications.
func (g *Generator) SetNotifier(n *notify.Notifier) {
	g.notifier = n
}

// loadImage checks path exists and decodes it.
func loadImage(log *logging.Entry, stage, path string) (image.Image, error) {
	if !media.Exists(path) {
		log.Errorf("Error: %s does not exist.", path)
		return nil, Recoverable(stage, fmt.Errorf("%w: %s", ErrInputMissing, path))
	}
	img, err := media.ReadImage(path)
	if err != nil {
		log.Errorf("Error: Failed to load image at %s", path)
		return nil, Recoverable(stage, fmt.Errorf("%w: %v", ErrInputUnreadable, err))
	}
	return img, nil
}

// resolveReference loads the deepfake image and finds its single face.
func (g *Generator) resolveReference(ctx context.Context, log *logging.Entry, path string) (recognition.Face, error) {
	img, err := loadImage(log, "load deepfake image", path)
	if err != nil {
		return recognition.Face{}, err
	}
	return g.locateReference(ctx, log, img)
}

// locateReference finds the single face of an already loaded deepfake image.
func (g *Generator) locateReference(ctx context.Context, log *logging.Entry, img image.Image) (recognition.Face, error) {
	lookup, err := recognition.Locate(ctx, g.refLocator, img, false)
	if err != nil {
		return recognition.Face{}, classify("detect reference face", err)
	}

	face, ok := lookup.Single()
	if !ok {
		log.Error("Deepfake face could not be loaded.")
		if lookup.Ambiguous {
			return recognition.Face{}, Recoverable("detect reference face",
				fmt.Errorf("%w (%d found)", ErrAmbiguousReference, lookup.Detected))
		}
		return recognition.Face{}, Recoverable("detect reference face", ErrNoReferenceFace)
	}
	if len(face.Embedding) == 0 {
		return recognition.Face{}, Recoverable("detect reference face", swap.ErrNoEmbedding)
	}
	return face, nil
}

// swapFrame replaces every face in frame with reference. A frame without
// faces comes back unchanged.
func (g *Generator) swapFrame(ctx context.Context, frame image.Image, reference recognition.Face) (image.Image, []recognition.Face, error) {
	lookup, err := recognition.Locate(ctx, g.mainLocator, frame, true)
	if err != nil {
		return nil, nil, classify("detect faces", err)
	}

	targets := lookup.All()
	out, err := swap.Composite(ctx, g.swapper, frame, targets, reference)
	if err != nil {
		return nil, nil, classify("swap faces", err)
	}
	return out, targets, nil
}

func (g *Generator) saveDebug(log *logging.Entry, name string, img image.Image, faces []recognition.Face) {
	if g.opts.DebugDir == "" {
		return
	}
	if err := media.SaveDebug(g.opts.DebugDir, name, img, faces); err != nil {
		log.WithError(err).Warn("Failed to save debug image")
	}
}
