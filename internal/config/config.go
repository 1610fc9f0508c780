package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/neurite-lab/tractus/internal/bundles"
	"github.com/neurite-lab/tractus/internal/envvar"
	"github.com/neurite-lab/tractus/internal/xfs"
)

// OutputType selects the semantics of the segmentation output.
type OutputType string

const (
	// OutputTractSegmentation produces one binary mask per bundle.
	OutputTractSegmentation OutputType = "tract_segmentation"

	// OutputEndingsSegmentation produces beginning and end region masks per bundle.
	OutputEndingsSegmentation OutputType = "endings_segmentation"

	// OutputTOM produces a tract orientation map (3-channel vector field) per bundle.
	OutputTOM OutputType = "TOM"

	// OutputDMRegression produces a regressed fiber density map per bundle.
	OutputDMRegression OutputType = "dm_regression"
)

// CSDType selects the spherical deconvolution variant used during peak extraction.
type CSDType string

const (
	CSDStandard CSDType = "csd"
	CSDMSMT     CSDType = "csd_msmt"
	CSDMSMT5TT  CSDType = "csd_msmt_5tt"
)

// Error definitions for the config package.
var (
	ErrUnknownOutputType = errors.New("unknown output type")
	ErrUnknownCSDType    = errors.New("unknown csd type")
)

// Profile describes one pretrained model: its weights, the shape of its
// output, and the file-naming conventions of the written segmentation.
type Profile struct {
	OutputType OutputType

	// WeightsFile is the file name of the pretrained weights.
	WeightsFile string

	// WeightsURL is where the weights can be fetched when missing locally.
	WeightsURL string

	// Classes is the number of output classes.
	Classes int

	// ChannelsPerClass is 1 for scalar outputs, 3 for orientation fields.
	ChannelsPerClass int

	// Threshold applied to model output. Ignored when Binary is false.
	Threshold float32

	// Binary indicates the thresholded output is stored as a uint8 mask.
	Binary bool

	// DirName is the per-bundle output directory name.
	DirName string

	// SingleFileName is the multi-channel output file name.
	SingleFileName string

	// LabelNames lists the per-class output names in channel order.
	LabelNames []string
}

// Channels returns the total model output channel count.
func (p *Profile) Channels() int {
	return p.Classes * p.ChannelsPerClass
}

const weightsBaseURL = "https://zenodo.org/records/3518348/files"

var profiles = map[OutputType]*Profile{
	OutputTractSegmentation: {
		OutputType:       OutputTractSegmentation,
		WeightsFile:      "tractus_tract_segmentation_v1.onnx",
		WeightsURL:       weightsBaseURL + "/tractus_tract_segmentation_v1.onnx",
		Classes:          bundles.Count,
		ChannelsPerClass: 1,
		Threshold:        0.5,
		Binary:           true,
		DirName:          "bundle_segmentations",
		SingleFileName:   "bundle_segmentations.nii.gz",
		LabelNames:       bundles.Names,
	},
	OutputEndingsSegmentation: {
		OutputType:       OutputEndingsSegmentation,
		WeightsFile:      "tractus_endings_segmentation_v1.onnx",
		WeightsURL:       weightsBaseURL + "/tractus_endings_segmentation_v1.onnx",
		Classes:          2 * bundles.Count,
		ChannelsPerClass: 1,
		Threshold:        0.5,
		Binary:           true,
		DirName:          "endings_segmentations",
		SingleFileName:   "endings_segmentations.nii.gz",
		LabelNames:       bundles.EndingNames(),
	},
	OutputTOM: {
		OutputType:       OutputTOM,
		WeightsFile:      "tractus_peak_regression_v1.onnx",
		WeightsURL:       weightsBaseURL + "/tractus_peak_regression_v1.onnx",
		Classes:          bundles.Count,
		ChannelsPerClass: 3,
		Threshold:        0,
		Binary:           false,
		DirName:          "TOM",
		SingleFileName:   "TOM.nii.gz",
		LabelNames:       bundles.Names,
	},
	OutputDMRegression: {
		OutputType:       OutputDMRegression,
		WeightsFile:      "tractus_dm_regression_v1.onnx",
		WeightsURL:       weightsBaseURL + "/tractus_dm_regression_v1.onnx",
		Classes:          bundles.Count,
		ChannelsPerClass: 1,
		Threshold:        0.01,
		Binary:           false,
		DirName:          "dm_regression",
		SingleFileName:   "dm_regression.nii.gz",
		LabelNames:       bundles.Names,
	},
}

// ProfileFor returns the pretrained-model profile for an output type.
func ProfileFor(outputType OutputType) (*Profile, error) {
	p, ok := profiles[outputType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOutputType, outputType)
	}
	return p, nil
}

// ParseOutputType validates a CLI output type value.
func ParseOutputType(s string) (OutputType, error) {
	t := OutputType(s)
	if _, ok := profiles[t]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownOutputType, s)
	}
	return t, nil
}

// ParseCSDType validates a CLI csd type value.
func ParseCSDType(s string) (CSDType, error) {
	switch t := CSDType(s); t {
	case CSDStandard, CSDMSMT, CSDMSMT5TT:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCSDType, s)
	}
}

// PeakChannels is the expected channel count of the input peaks volume:
// three principal fiber directions, three components each.
const PeakChannels = 9

// Config holds the user-tunable configuration, loaded from YAML.
type Config struct {
	Version string        `json:"version"           yaml:"version"`
	Storage StorageConfig `json:"storage,omitempty" yaml:"storage,omitempty"`
	Runner  RunnerConfig  `json:"runner,omitempty"  yaml:"runner,omitempty"`
	MRtrix  MRtrixConfig  `json:"mrtrix,omitempty"  yaml:"mrtrix,omitempty"`
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// StorageConfig holds the pretrained weights location.
type StorageConfig struct {
	WeightsDir string `json:"weights_dir,omitempty" yaml:"weights_dir,omitempty"`
}

// RunnerConfig holds the model runner binary settings.
type RunnerConfig struct {
	Binary         string `json:"binary,omitempty"          yaml:"binary,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// MRtrixConfig holds the diffusion toolkit settings.
type MRtrixConfig struct {
	BinDir         string `json:"bin_dir,omitempty"         yaml:"bin_dir,omitempty"`
	NThreads       int    `json:"nthreads,omitempty"        yaml:"nthreads,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	File      string `json:"file,omitempty"        yaml:"file,omitempty"`
	LogToFile bool   `json:"log_to_file,omitempty" yaml:"log_to_file,omitempty"`
}

// RunnerTimeout returns the configured runner timeout.
func (c *Config) RunnerTimeout() time.Duration {
	if c.Runner.TimeoutSeconds > 0 {
		return time.Duration(c.Runner.TimeoutSeconds) * time.Second
	}
	return 10 * time.Minute
}

// MRtrixTimeout returns the configured toolkit timeout.
func (c *Config) MRtrixTimeout() time.Duration {
	if c.MRtrix.TimeoutSeconds > 0 {
		return time.Duration(c.MRtrix.TimeoutSeconds) * time.Second
	}
	return 2 * time.Hour
}

// RunnerBinary returns the model runner binary.
// Precedence:
// 1. TRACTUS_RUNNER_BIN environment variable.
// 2. Binary field in the config.
func (c *Config) RunnerBinary() string {
	if p := os.Getenv(envvar.TractusRunnerBin); p != "" {
		return xfs.ExpandTilde(p)
	}
	return c.Runner.Binary
}

// MRtrixBinDir returns the directory holding the toolkit binaries. Empty
// means the binaries are resolved on PATH.
// Precedence:
// 1. TRACTUS_MRTRIX_BIN environment variable.
// 2. BinDir field in the config.
func (c *Config) MRtrixBinDir() string {
	if p := os.Getenv(envvar.TractusMRtrixBin); p != "" {
		return xfs.ExpandTilde(p)
	}
	return c.MRtrix.BinDir
}
