package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/L0G1H/deepfakery/pkg/config"
	"github.com/L0G1H/deepfakery/pkg/logging"
	"github.com/L0G1H/deepfakery/pkg/media"
	"github.com/L0G1H/deepfakery/pkg/recognition"
	"github.com/L0G1H/deepfakery/pkg/swap"
)

// PhotoDeepfake replaces every face in the image at mainPath with the single
// face found in refPath and writes the result to outPath. Paths may start
// with ~. Both images are loaded before any detection runs. Nothing is
// written unless every step succeeds.
func (g *Generator) PhotoDeepfake(ctx context.Context, mainPath, refPath, outPath string) (*Report, error) {
	start := time.Now()
	mainPath = config.ExpandHome(mainPath)
	refPath = config.ExpandHome(refPath)
	outPath = config.ExpandHome(outPath)

	report := newReport(JobPhoto, outPath)
	log := logging.Job(report.ID.String(), string(JobPhoto))

	for _, in := range []struct{ stage, path string }{
		{"load main image", mainPath},
		{"load deepfake image", refPath},
	} {
		if !media.Exists(in.path) {
			log.Errorf("Error: %s does not exist.", in.path)
			return nil, Recoverable(in.stage, fmt.Errorf("%w: %s", ErrInputMissing, in.path))
		}
	}

	mainImg, err := loadImage(log, "load main image", mainPath)
	if err != nil {
		return nil, err
	}
	refImg, err := loadImage(log, "load deepfake image", refPath)
	if err != nil {
		return nil, err
	}

	lookup, err := recognition.Locate(ctx, g.mainLocator, mainImg, true)
	if err != nil {
		return nil, classify("detect faces", err)
	}
	targets := lookup.All()
	if len(targets) == 0 {
		log.Error("No faces detected in the main image.")
		return nil, Recoverable("detect faces", ErrNoMainFaces)
	}

	reference, err := g.locateReference(ctx, log, refImg)
	if err != nil {
		return nil, err
	}

	g.saveDebug(log, report.ID.String()[:8]+"-main", mainImg, targets)

	result, err := swap.Composite(ctx, g.swapper, mainImg, targets, reference)
	if err != nil {
		return nil, classify("swap faces", err)
	}

	if err := media.WriteImage(result, outPath); err != nil {
		log.WithError(err).Error("Failed to write output image")
		return nil, Recoverable("write output", fmt.Errorf("%w: %v", ErrOutputWrite, err))
	}

	report.Frames = 1
	report.Declared = 1
	report.FacesSwapped = len(targets)
	report.Duration = time.Since(start)

	log.Infof("%s created.", outPath)
	g.notifier.Done(fmt.Sprintf("%s created.", outPath))
	return report, nil
}
