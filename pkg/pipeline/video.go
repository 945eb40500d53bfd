package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/L0G1H/deepfakery/pkg/config"
	"github.com/L0G1H/deepfakery/pkg/logging"
	"github.com/L0G1H/deepfakery/pkg/media"
	"github.com/schollz/progressbar/v3"
)

// VideoDeepfake streams the video at mainPath frame by frame, replacing every
// face with the single face found in refPath, and writes each frame to
// outPath as soon as it is done.
//
// The reference face is resolved before the output is created. A frame that
// fails to decode or swap ends the loop; frames already written are kept and
// the report is marked partial instead of returning an error. A crashed
// engine is the exception and is returned as a fatal error.
func (g *Generator) VideoDeepfake(ctx context.Context, mainPath, refPath, outPath string) (*Report, error) {
	start := time.Now()
	mainPath = config.ExpandHome(mainPath)
	refPath = config.ExpandHome(refPath)
	outPath = config.ExpandHome(outPath)

	report := newReport(JobVideo, outPath)
	log := logging.Job(report.ID.String(), string(JobVideo))

	log.Info("Loading video...")
	reader, err := g.open(log, mainPath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	meta := reader.Meta()
	report.Declared = meta.FrameCount
	log.WithFields(logging.Fields{
		"fps":    meta.FPS,
		"frames": meta.FrameCount,
		"width":  meta.Width,
		"height": meta.Height,
	}).Debug("Video metadata")

	reference, err := g.resolveReference(ctx, log, refPath)
	if err != nil {
		return nil, err
	}

	writer, err := g.createVideo(outPath, g.opts.Codec, meta.FPS, meta.Width, meta.Height)
	if err != nil {
		log.WithError(err).Error("Failed to create output video")
		return nil, Recoverable("create output", fmt.Errorf("%w: %v", ErrOutputWrite, err))
	}
	defer func() {
		if err := writer.Close(); err != nil {
			log.WithError(err).Warn("Failed to finalise output video")
		}
	}()

	bar := g.newBar(meta.FrameCount)
	var fatal error

	for {
		if err := ctx.Err(); err != nil {
			report.Partial, report.Cause = true, err
			break
		}

		frame, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			report.Partial, report.Cause = true, err
			break
		}

		n := report.Frames + 1
		log.Debugf("Processing frame %d/%d", n, meta.FrameCount)

		out, faces, err := g.swapFrame(ctx, frame, reference)
		if err != nil {
			if IsFatal(err) {
				fatal = err
			}
			report.Partial, report.Cause = true, err
			break
		}

		if err := writer.Write(out); err != nil {
			report.Partial, report.Cause = true, fmt.Errorf("%w: %v", ErrOutputWrite, err)
			break
		}

		report.Frames = n
		report.FacesSwapped += len(faces)

		if g.opts.DebugEvery > 0 && n%g.opts.DebugEvery == 0 {
			g.saveDebug(log, fmt.Sprintf("%s-frame-%06d", report.ID.String()[:8], n), frame, faces)
		}
		if n%g.opts.ProgressInterval == 0 && meta.FrameCount > 0 {
			log.Infof("Progress: %.2f%%", float64(n)/float64(meta.FrameCount)*100)
		}
		if bar != nil {
			bar.Add(1)
		}
	}

	if bar != nil {
		bar.Finish()
	}

	if meta.FrameCount > 0 && report.Frames != meta.FrameCount && !report.Partial {
		log.Debugf("Container declared %d frames, %d were decoded", meta.FrameCount, report.Frames)
	}

	report.Duration = time.Since(start)

	if fatal != nil {
		log.WithError(fatal).Error("Error during video processing")
		return report, fatal
	}
	if report.Partial {
		log.WithError(report.Cause).Errorf("Error during video processing, stopped after %d frames", report.Frames)
	}

	log.Infof("Video processing completed. Output saved to %s", outPath)
	g.notifier.Done(fmt.Sprintf("%s created (%d frames).", outPath, report.Frames))
	return report, nil
}

// VideoDeepfakeInMemory decodes the whole video first, swaps every frame and
// then encodes the result. It stops at the first failing frame and writes
// the frames done so far.
func (g *Generator) VideoDeepfakeInMemory(ctx context.Context, mainPath, refPath, outPath string) (*Report, error) {
	start := time.Now()
	mainPath = config.ExpandHome(mainPath)
	refPath = config.ExpandHome(refPath)
	outPath = config.ExpandHome(outPath)

	report := newReport(JobVideo, outPath)
	log := logging.Job(report.ID.String(), string(JobVideo))

	seq, declared, err := g.extract(log, mainPath)
	if err != nil {
		return nil, err
	}
	report.Declared = declared

	reference, err := g.resolveReference(ctx, log, refPath)
	if err != nil {
		return nil, err
	}

	done := media.FrameSequence{FPS: seq.FPS, Frames: make([]image.Image, 0, seq.Len())}
	var fatal error
	for i, frame := range seq.Frames {
		if err := ctx.Err(); err != nil {
			report.Partial, report.Cause = true, err
			break
		}
		log.Debugf("%d / %d", i+1, seq.Len())

		out, faces, err := g.swapFrame(ctx, frame, reference)
		if err != nil {
			if IsFatal(err) {
				fatal = err
			}
			report.Partial, report.Cause = true, err
			break
		}
		done.Frames = append(done.Frames, out)
		report.FacesSwapped += len(faces)

		if (i+1)%g.opts.ProgressInterval == 0 {
			log.Infof("Progress: %.2f%%", float64(i+1)/float64(seq.Len())*100)
		}
	}

	if fatal != nil {
		report.Duration = time.Since(start)
		return report, fatal
	}

	if done.Len() == 0 {
		report.Output = ""
		report.Duration = time.Since(start)
		log.Warnf("No frames to write, %s was not created.", outPath)
		return report, nil
	}

	if err := g.WriteFrames(done, outPath); err != nil {
		return nil, Recoverable("write output", fmt.Errorf("%w: %v", ErrOutputWrite, err))
	}
	report.Frames = done.Len()
	report.Duration = time.Since(start)

	if report.Partial {
		log.WithError(report.Cause).Errorf("Error during video processing, stopped after %d frames", report.Frames)
	}
	log.Infof("%s created.", outPath)
	g.notifier.Done(fmt.Sprintf("%s created (%d frames).", outPath, report.Frames))
	return report, nil
}

// ExtractFrames decodes every frame of the video at path into memory.
func (g *Generator) ExtractFrames(path string) (media.FrameSequence, error) {
	seq, _, err := g.extract(logging.Component("pipeline"), config.ExpandHome(path))
	return seq, err
}

// WriteFrames encodes seq to path. An empty sequence writes nothing.
func (g *Generator) WriteFrames(seq media.FrameSequence, path string) error {
	if seq.Len() == 0 {
		logging.Warn("No frames to write.")
		return nil
	}
	size := seq.Frames[0].Bounds().Size()
	w, err := g.createVideo(config.ExpandHome(path), g.opts.Codec, seq.FPS, size.X, size.Y)
	if err != nil {
		return err
	}
	if err := media.WriteFrames(seq, w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (g *Generator) open(log *logging.Entry, path string) (media.VideoReader, error) {
	if !media.Exists(path) {
		log.Errorf("Error: %s does not exist.", path)
		return nil, Recoverable("open video", fmt.Errorf("%w: %s", ErrInputMissing, path))
	}
	reader, err := g.openVideo(path)
	if err != nil {
		log.Errorf("Error: Could not open video file %s", path)
		return nil, Recoverable("open video", fmt.Errorf("%w: %v", ErrInputUnreadable, err))
	}
	return reader, nil
}

func (g *Generator) extract(log *logging.Entry, path string) (media.FrameSequence, int, error) {
	reader, err := g.open(log, path)
	if err != nil {
		return media.FrameSequence{}, 0, err
	}
	defer reader.Close()
	return media.ReadFrames(reader), reader.Meta().FrameCount, nil
}

func (g *Generator) newBar(total int) *progressbar.ProgressBar {
	if !g.opts.ProgressBar || g.opts.ProgressOut == nil {
		return nil
	}
	if total <= 0 {
		total = -1
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Swapping faces"),
		progressbar.OptionSetWriter(g.opts.ProgressOut),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(g.opts.ProgressOut)
		}),
	)
}
