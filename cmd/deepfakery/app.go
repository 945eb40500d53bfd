package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/L0G1H/deepfakery/pkg/acceleration"
	"github.com/L0G1H/deepfakery/pkg/config"
	"github.com/L0G1H/deepfakery/pkg/engine"
	"github.com/L0G1H/deepfakery/pkg/logging"
	"github.com/L0G1H/deepfakery/pkg/notify"
	"github.com/L0G1H/deepfakery/pkg/pipeline"
	"github.com/L0G1H/deepfakery/pkg/provision"
	"github.com/L0G1H/deepfakery/pkg/recognition"
)

// app holds the process-wide state every job shares.
type app struct {
	generator   *pipeline.Generator
	worker      *engine.Worker
	mainLocator recognition.Locator
}

// provisionModel makes sure the swap model is on disk.
func provisionModel(ctx context.Context, cfg *config.Config) error {
	client := &http.Client{}
	if cfg.Model.Timeout > 0 {
		client.Timeout = time.Duration(cfg.Model.Timeout) * time.Second
	}
	p := provision.New(client)
	p.SetProgress(os.Stderr)

	err := p.EnsureArtifact(ctx, provision.Artifact{
		URL:      cfg.Model.URL,
		Path:     cfg.Model.Path,
		Checksum: cfg.Model.Checksum,
	})
	if err != nil {
		logging.WithError(err).Error("Failed to download the model")
		return pipeline.Fatal("provision model", err)
	}
	return nil
}

// selectProvider picks the onnxruntime execution provider for the engine.
func selectProvider(cfg *config.Config) (string, error) {
	backend, err := acceleration.ParseBackend(cfg.Engine.Backend)
	if err != nil {
		return "", err
	}
	accel := acceleration.NewManager()
	accelCfg := acceleration.DefaultConfig()
	accelCfg.PreferredBackend = backend
	if err := accel.Initialize(accelCfg); err != nil {
		return "", err
	}
	return accel.Provider(), nil
}

// newMainLocator returns the detector for faces to be replaced. Backends
// other than the engine are wrapped so the engine supplies the landmarks the
// swap model aligns with.
func newMainLocator(ctx context.Context, cfg *config.Config, worker *engine.Worker) (recognition.Locator, error) {
	var base recognition.Locator
	switch cfg.Detection.Backend {
	case "dlib":
		l := recognition.NewDlibLocator()
		l.SetCNN(cfg.Detection.Dlib.UseCNN)
		if err := l.LoadModels(cfg.Detection.Dlib.ModelDir); err != nil {
			return nil, err
		}
		base = l
	case "pigo":
		l, err := recognition.NewPigoLocator(cfg.Detection.Pigo)
		if err != nil {
			return nil, err
		}
		base = l
	case "rekognition":
		l, err := recognition.NewRekognitionLocator(ctx, cfg.Detection.Rekognition)
		if err != nil {
			return nil, err
		}
		base = l
	default:
		return worker, nil
	}
	return recognition.NewAlignedLocator(base, worker), nil
}

// newApp provisions the model, starts the engine and builds the generator.
// Any failure here is fatal.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := provisionModel(ctx, cfg); err != nil {
		return nil, err
	}

	provider, err := selectProvider(cfg)
	if err != nil {
		return nil, pipeline.Fatal("select backend", err)
	}

	worker, err := engine.Start(engine.Options{
		Command:   cfg.Engine.Command,
		Args:      cfg.Engine.Args,
		SwapModel: cfg.Model.Path,
		Pack:      cfg.Engine.Pack,
		DetSize:   cfg.Engine.DetSize,
		Provider:  provider,
	})
	if err != nil {
		return nil, pipeline.Fatal("start engine", err)
	}

	mainLocator, err := newMainLocator(ctx, cfg, worker)
	if err != nil {
		worker.Close()
		return nil, pipeline.Fatal("load detector", fmt.Errorf("%s: %w", cfg.Detection.Backend, err))
	}

	opts := pipeline.OptionsFromConfig(cfg)
	opts.ProgressOut = os.Stderr
	g := pipeline.New(mainLocator, worker, worker, opts)
	g.SetNotifier(notify.New(cfg.Notify.Enabled))

	return &app{generator: g, worker: worker, mainLocator: mainLocator}, nil
}

// Close releases the detectors and stops the engine.
func (a *app) Close() {
	if a.mainLocator != nil && a.mainLocator != recognition.Locator(a.worker) {
		a.mainLocator.Close()
	}
	if a.worker != nil {
		a.worker.Close()
	}
}
