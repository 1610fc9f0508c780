// Package pipeline wires the preprocessing toolkit, the inference backend
// and the output writer into one synchronous segmentation run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/neurite-lab/tractus/internal/backend"
	"github.com/neurite-lab/tractus/internal/backend/onnx"
	"github.com/neurite-lab/tractus/internal/config"
	"github.com/neurite-lab/tractus/internal/mrtrix"
	"github.com/neurite-lab/tractus/internal/nifti"
	"github.com/neurite-lab/tractus/internal/preview"
	"github.com/neurite-lab/tractus/internal/segment"
	"github.com/neurite-lab/tractus/internal/weights"
	"github.com/neurite-lab/tractus/internal/xfs"
)

// Options describe one segmentation run.
type Options struct {
	// Input is the peaks volume, or the raw DWI volume when RawDiffusionInput.
	Input string

	// OutDir is the output directory. Empty means the input's directory.
	OutDir string

	OutputType config.OutputType
	CSDType    config.CSDType

	// Gradient table sidecars; empty means derived from the input path.
	Bvals string
	Bvecs string

	// BrainMask is a precomputed mask; empty means computed by the toolkit.
	BrainMask string

	// RawDiffusionInput runs the CSD peak-extraction chain first.
	RawDiffusionInput bool

	// KeepIntermediates leaves the temp working directory in place.
	KeepIntermediates bool

	// FlipPeaks mirrors the peak x components before inference.
	FlipPeaks bool

	// Preview renders a PNG mosaic of the result.
	Preview bool

	// Probabilities writes raw model output instead of thresholded masks.
	Probabilities bool

	// SingleFile writes one multi-channel volume instead of per-bundle files.
	SingleFile bool

	// Device is passed through to the inference runner (e.g. "cpu", "cuda").
	Device string
}

// Result reports what a run produced.
type Result struct {
	// Peaks is the peaks volume that went into inference. Empty when the
	// volume was derived into the working directory and cleaned up with it.
	Peaks       string
	Written     []string
	PreviewPath string
	Duration    time.Duration
}

// Runner executes segmentation pipelines.
type Runner struct {
	cfg      *config.Config
	toolkit  *mrtrix.Client
	backends *backend.Registry
	weights  *weights.Manager
}

// New builds a Runner from the config, registering the ONNX inference
// backend.
func New(cfg *config.Config) (*Runner, error) {
	onnxBackend, err := onnx.NewBackend(cfg.RunnerBinary(), cfg.RunnerTimeout())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inference backend: %w", err)
	}

	backends := backend.NewRegistry()
	backends.Register(onnxBackend)

	return &Runner{
		cfg:      cfg,
		toolkit:  mrtrix.NewClient(cfg),
		backends: backends,
		weights:  weights.NewManager(cfg),
	}, nil
}

// NewWithDeps builds a Runner from explicit collaborators.
func NewWithDeps(cfg *config.Config, toolkit *mrtrix.Client, backends *backend.Registry, wm *weights.Manager) *Runner {
	return &Runner{
		cfg:      cfg,
		toolkit:  toolkit,
		backends: backends,
		weights:  wm,
	}
}

// Close releases backend resources.
func (r *Runner) Close() error {
	return r.backends.Close()
}

// Run executes one segmentation end to end.
func (r *Runner) Run(ctx context.Context, opts *Options) (*Result, error) {
	start := time.Now()

	profile, err := config.ProfileFor(opts.OutputType)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(opts.Input); err != nil {
		return nil, fmt.Errorf("input volume not found: %w", err)
	}

	outDir := opts.OutDir
	if outDir == "" {
		outDir = filepath.Dir(opts.Input)
	}
	if err := xfs.EnsureDir(outDir); err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp(outDir, "tractus-tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	defer func() {
		if opts.KeepIntermediates {
			slog.Info("Keeping intermediate files", "dir", workDir)
			return
		}
		if err := os.RemoveAll(workDir); err != nil {
			slog.Warn("Failed to remove working directory", "dir", workDir, "error", err)
		}
	}()

	peaksPath, err := r.resolvePeaks(ctx, opts, workDir)
	if err != nil {
		return nil, err
	}
	sourcePeaks := peaksPath

	peaksVol, err := nifti.Load(peaksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load peaks volume: %w", err)
	}
	if err := segment.ValidatePeaks(peaksVol); err != nil {
		return nil, err
	}

	if opts.FlipPeaks {
		segment.FlipPeaksX(peaksVol)
		flipped := filepath.Join(workDir, "peaks_flipped.nii.gz")
		if err := nifti.Save(peaksVol, flipped, nifti.SaveOptions{Descrip: "peaks x-flipped"}); err != nil {
			return nil, fmt.Errorf("failed to save flipped peaks: %w", err)
		}
		peaksPath = flipped
	}

	output, err := r.infer(ctx, profile, peaksPath, workDir, opts)
	if err != nil {
		return nil, err
	}

	// The output volume lives in the same coordinate space as the input; a
	// runner that drops the transform would break every downstream viewer.
	if !nifti.SameAffine(output.Affine, peaksVol.Affine) {
		slog.Warn("Runner output affine differs from input, restoring input affine")
		output.Affine = peaksVol.Affine
	}
	output.Pixdim = peaksVol.Pixdim

	written, err := segment.Write(&segment.WriteRequest{
		Output:        output,
		Profile:       profile,
		OutDir:        outDir,
		SingleFile:    opts.SingleFile,
		Probabilities: opts.Probabilities,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		Peaks:   peaksPath,
		Written: written,
	}
	if !opts.KeepIntermediates && inDir(peaksPath, workDir) {
		result.Peaks = sourcePeaks
		if inDir(sourcePeaks, workDir) {
			result.Peaks = ""
		}
	}

	if opts.Preview {
		previewPath := filepath.Join(outDir, fmt.Sprintf("preview_%s.png", profile.OutputType))
		if err := preview.Render(output, profile, previewPath); err != nil {
			return nil, fmt.Errorf("failed to render preview: %w", err)
		}
		result.PreviewPath = previewPath
	}

	result.Duration = time.Since(start)
	slog.Info("Segmentation finished",
		"output_type", profile.OutputType,
		"files", len(written),
		"duration", result.Duration,
	)

	return result, nil
}

// resolvePeaks returns the peaks volume path, running the CSD chain when the
// input is raw diffusion data.
func (r *Runner) resolvePeaks(ctx context.Context, opts *Options, workDir string) (string, error) {
	if !opts.RawDiffusionInput {
		return opts.Input, nil
	}

	grads, err := mrtrix.ResolveGradients(opts.Input, opts.Bvals, opts.Bvecs)
	if err != nil {
		return "", err
	}

	slog.Info("Extracting fiber orientation peaks",
		"dwi", opts.Input,
		"csd_type", opts.CSDType,
		"bvals", grads.Bvals,
		"bvecs", grads.Bvecs,
	)

	peaks, err := r.toolkit.CreatePeaks(ctx, &mrtrix.PeaksRequest{
		DWI:       opts.Input,
		Bvals:     grads.Bvals,
		Bvecs:     grads.Bvecs,
		BrainMask: opts.BrainMask,
		CSDType:   opts.CSDType,
		WorkDir:   workDir,
	})
	if err != nil {
		return "", fmt.Errorf("peak extraction failed: %w", err)
	}

	return peaks, nil
}

// infer resolves weights, runs the backend and loads the result volume.
func (r *Runner) infer(ctx context.Context, profile *config.Profile, peaksPath, workDir string, opts *Options) (*nifti.Volume, error) {
	b, ok := r.backends.Get(backend.ProviderONNXRuntime)
	if !ok {
		return nil, backend.ErrNotFound
	}

	weightsPath, err := r.weights.Resolve(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve weights: %w", err)
	}

	outputPath := filepath.Join(workDir, "model_output.nii.gz")
	params := map[string]any{}
	if opts.Device != "" {
		params["device"] = opts.Device
	}

	slog.Info("Running inference", "weights", weightsPath, "peaks", peaksPath)

	resp, err := b.Infer(ctx, &backend.Request{
		ModelPath:  weightsPath,
		InputPath:  peaksPath,
		OutputPath: outputPath,
		Parameters: params,
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("Inference complete", "duration", resp.Metadata.Duration)

	output, err := nifti.Load(resp.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model output: %w", err)
	}

	return output, nil
}

func inDir(path, dir string) bool {
	return strings.HasPrefix(path, dir+string(os.PathSeparator))
}
