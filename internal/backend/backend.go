package backend

import (
	"context"
	"time"
)

// Provider is a string identifier for an inference backend provider.
type Provider string

const (
	ProviderONNXRuntime Provider = "onnxruntime"
)

// Backend defines the core interface for all inference backends.
type Backend interface {
	// Provider returns the backend identifier.
	Provider() Provider

	// Infer executes inference on a volume stored on disk and writes the
	// result volume to req.OutputPath.
	Infer(ctx context.Context, req *Request) (*Response, error)

	// Close cleans up resources.
	Close() error
}

// Request encapsulates all parameters for an inference call. Volumes are
// exchanged through the filesystem because the external runners only speak
// file paths.
type Request struct {
	// ModelPath is the path to the pretrained weights file.
	ModelPath string

	// InputPath is the path to the input volume.
	InputPath string

	// OutputPath is where the backend must write the result volume.
	OutputPath string

	// Parameters contains backend-specific inference parameters.
	Parameters map[string]any
}

// Response contains the result of an inference operation.
type Response struct {
	// OutputPath is the path of the written result volume.
	OutputPath string

	// Metadata contains backend-specific information.
	Metadata *ResponseMetadata
}

// ResponseMetadata contains metadata about the response.
type ResponseMetadata struct {
	Provider        Provider       `json:"provider"`
	Model           string         `json:"model"`
	Timestamp       time.Time      `json:"timestamp"`
	Duration        time.Duration  `json:"duration"`
	BackendSpecific map[string]any `json:"backend_specific"`
}
