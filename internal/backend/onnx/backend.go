// Package onnx runs segmentation inference through an external ONNX Runtime
// CLI. The runner reads a peaks volume, evaluates the pretrained network and
// writes the raw per-class probability volume back to disk.
package onnx

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/neurite-lab/tractus/internal/backend"
	"github.com/neurite-lab/tractus/internal/mapsafe"
)

// Backend implements backend.Backend for the ONNX runner binary.
type Backend struct {
	executor *backend.Executor
}

// NewBackend creates a new ONNX runner backend.
func NewBackend(binPath string, timeout time.Duration) (*Backend, error) {
	executor, err := backend.NewExecutor(binPath, timeout)
	if err != nil {
		return nil, err
	}

	return &Backend{
		executor: executor,
	}, nil
}

// NewBackendWithRunner creates a backend with a custom command runner.
func NewBackendWithRunner(binPath string, timeout time.Duration, runner backend.CommandRunner) *Backend {
	return &Backend{
		executor: backend.NewExecutorWithRunner(binPath, timeout, runner),
	}
}

// Provider returns the backend provider.
func (b *Backend) Provider() backend.Provider {
	return backend.ProviderONNXRuntime
}

// Infer executes synchronous inference. The runner writes its result volume
// to req.OutputPath; the call fails if the file is missing afterwards.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	args := b.buildArgs(req)

	start := time.Now()
	stdout, err := b.executor.Execute(ctx, args, nil)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	if _, err := os.Stat(req.OutputPath); err != nil {
		return nil, fmt.Errorf("runner produced no output volume: %w", err)
	}

	return &backend.Response{
		OutputPath: req.OutputPath,
		Metadata: &backend.ResponseMetadata{
			Provider:  b.Provider(),
			Model:     req.ModelPath,
			Timestamp: time.Now(),
			Duration:  time.Since(start),
			BackendSpecific: map[string]any{
				"stdout": string(stdout),
				"args":   args,
			},
		},
	}, nil
}

// buildArgs builds the runner command-line arguments.
func (b *Backend) buildArgs(req *backend.Request) []string {
	args := []string{
		"--model", req.ModelPath,
		"--input", req.InputPath,
		"--output", req.OutputPath,
	}

	p := req.Parameters
	if p == nil {
		return args
	}

	// Execution device
	if v := mapsafe.Get(p, "device", ""); v != "" {
		args = append(args, "--device", v)
	}

	// Slice batch size
	if v := mapsafe.Get(p, "batch_size", 0); v > 0 {
		args = append(args, "--batch-size", fmt.Sprintf("%d", v))
	}

	// Intra-op thread count
	if v := mapsafe.Get(p, "threads", 0); v > 0 {
		args = append(args, "--threads", fmt.Sprintf("%d", v))
	}

	// Extra passthrough flags
	args = append(args, mapsafe.GetStrings(p, "extra_args")...)

	return args
}

// Close cleans up resources. The runner does not hold any.
func (b *Backend) Close() error {
	return nil
}
