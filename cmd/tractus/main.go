package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/neurite-lab/tractus/internal/config"
	"github.com/neurite-lab/tractus/internal/env"
	"github.com/neurite-lab/tractus/internal/logger"
	"github.com/neurite-lab/tractus/internal/pipeline"
)

func main() {
	var (
		flagInput      = flag.String("i", "", "Input peaks volume, or raw DWI with --raw-diffusion-input")
		flagOutDir     = flag.String("o", "", "Output directory (default: directory of the input)")
		flagOutputType = flag.String("output-type", string(config.OutputTractSegmentation),
			"Output semantics: tract_segmentation, endings_segmentation, TOM or dm_regression")
		flagSingleFile = flag.Bool("single-output-file", false, "Write one multi-channel volume instead of per-bundle files")
		flagCSDType    = flag.String("csd-type", string(config.CSDStandard),
			"Spherical deconvolution variant: csd, csd_msmt or csd_msmt_5tt")
		flagBvals     = flag.String("bvals", "", "Path to the bvals sidecar (default: next to the input)")
		flagBvecs     = flag.String("bvecs", "", "Path to the bvecs sidecar (default: next to the input)")
		flagBrainMask = flag.String("brain-mask", "", "Path to a precomputed brain mask")
		flagRawInput  = flag.Bool("raw-diffusion-input", false, "Input is raw diffusion data; derive peaks first")
		flagKeep      = flag.Bool("keep-intermediate-files", false, "Keep the temporary working directory")
		flagFlip      = flag.Bool("flip", false, "Flip peak x components before inference")
		flagPreview   = flag.Bool("preview", false, "Render a PNG preview of the segmentation")
		flagProbs     = flag.Bool("probabilities", false, "Write raw model probabilities instead of binary masks")
		flagDevice    = flag.String("device", "", "Inference device passed to the runner (e.g. cpu, cuda)")
		flagConfig    = flag.String("config", "", "Path to a YAML config file")
		flagWatchDir  = flag.String("watch-dir", "", "Watch a directory and segment every volume dropped into it")
		flagVerbose   = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	environment := env.FromEnv()

	level := slog.LevelInfo
	if *flagVerbose {
		level = slog.LevelDebug
	}

	cfg := config.Default()
	if *flagConfig != "" {
		loaded, err := config.LoadAndValidate(*flagConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tractus: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	slog.SetDefault(
		logger.New(environment,
			logger.WithLevel(level),
			logger.WithLogToFile(cfg.Logging.LogToFile),
			logger.WithLogFile(cfg.Logging.File),
		),
	)

	if *flagInput == "" && *flagWatchDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	outputType, err := config.ParseOutputType(*flagOutputType)
	if err != nil {
		slog.Error("Invalid output type", "error", err)
		os.Exit(1)
	}

	csdType, err := config.ParseCSDType(*flagCSDType)
	if err != nil {
		slog.Error("Invalid csd type", "error", err)
		os.Exit(1)
	}

	opts := &pipeline.Options{
		Input:             *flagInput,
		OutDir:            *flagOutDir,
		OutputType:        outputType,
		CSDType:           csdType,
		Bvals:             *flagBvals,
		Bvecs:             *flagBvecs,
		BrainMask:         *flagBrainMask,
		RawDiffusionInput: *flagRawInput,
		KeepIntermediates: *flagKeep,
		FlipPeaks:         *flagFlip,
		Preview:           *flagPreview,
		Probabilities:     *flagProbs,
		SingleFile:        *flagSingleFile,
		Device:            *flagDevice,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *flagWatchDir != "" {
		factory := func() (*pipeline.Runner, error) { return pipeline.New(cfg) }

		// With a config file the watch loop picks up edits between volumes.
		if *flagConfig != "" {
			watcher, err := config.NewWatcher(*flagConfig, func(_ *config.Config, err error) {
				if err != nil {
					slog.Error("Config reload failed, keeping previous config", "error", err)
				}
			})
			if err != nil {
				slog.Error("Failed to watch config", "error", err)
				os.Exit(1)
			}
			factory = func() (*pipeline.Runner, error) { return pipeline.New(watcher.Snapshot()) }
		}

		if err := pipeline.Watch(ctx, *flagWatchDir, opts, factory); err != nil && ctx.Err() == nil {
			slog.Error("Watch mode failed", "error", err)
			os.Exit(1)
		}
		return
	}

	runner, err := pipeline.New(cfg)
	if err != nil {
		slog.Error("Failed to initialize pipeline", "error", err)
		os.Exit(1)
	}
	defer runner.Close()

	result, err := runner.Run(ctx, opts)
	if err != nil {
		slog.Error("Segmentation failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Done",
		"files", len(result.Written),
		"duration", result.Duration,
	)
	if result.PreviewPath != "" {
		slog.Info("Preview written", "path", result.PreviewPath)
	}
}
