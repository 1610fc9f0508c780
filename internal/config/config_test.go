package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurite-lab/tractus/internal/bundles"
	"github.com/neurite-lab/tractus/internal/envvar"
)

func TestProfileFor(t *testing.T) {
	tests := []struct {
		outputType OutputType
		channels   int
		binary     bool
	}{
		{OutputTractSegmentation, bundles.Count, true},
		{OutputEndingsSegmentation, 2 * bundles.Count, true},
		{OutputTOM, 3 * bundles.Count, false},
		{OutputDMRegression, bundles.Count, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.outputType), func(t *testing.T) {
			p, err := ProfileFor(tt.outputType)
			require.NoError(t, err)

			assert.Equal(t, tt.channels, p.Channels())
			assert.Equal(t, tt.binary, p.Binary)
			assert.Len(t, p.LabelNames, p.Classes)
			assert.NotEmpty(t, p.WeightsFile)
			assert.NotEmpty(t, p.WeightsURL)
		})
	}

	_, err := ProfileFor(OutputType("tractogram"))
	assert.ErrorIs(t, err, ErrUnknownOutputType)
}

func TestParseOutputType(t *testing.T) {
	got, err := ParseOutputType("TOM")
	require.NoError(t, err)
	assert.Equal(t, OutputTOM, got)

	_, err = ParseOutputType("tom")
	assert.ErrorIs(t, err, ErrUnknownOutputType)
}

func TestParseCSDType(t *testing.T) {
	got, err := ParseCSDType("csd_msmt_5tt")
	require.NoError(t, err)
	assert.Equal(t, CSDMSMT5TT, got)

	_, err = ParseCSDType("gqi")
	assert.ErrorIs(t, err, ErrUnknownCSDType)
}

func TestLoadAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "1"
storage:
  weights_dir: /data/weights
runner:
  binary: /opt/onnx-runner
  timeout_seconds: 120
mrtrix:
  nthreads: 8
`), 0o644))

	cfg, err := LoadAndValidate(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/weights", cfg.Storage.WeightsDir)
	assert.Equal(t, "/opt/onnx-runner", cfg.Runner.Binary)
	assert.Equal(t, 8, cfg.MRtrix.NThreads)
	// Defaults survive a partial config.
	assert.Equal(t, "logs/tractus.log", cfg.Logging.File)
}

func TestLoadAndValidateRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "1"
weights: /data/weights
`), 0o644))

	_, err := LoadAndValidate(path)
	assert.Error(t, err)
}

func TestLoadAndValidateRejectsBadVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`version: "2"`), 0o644))

	_, err := LoadAndValidate(path)
	assert.Error(t, err)
}

func TestLoadAndValidateMissingFile(t *testing.T) {
	_, err := LoadAndValidate(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRunnerBinary(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "onnx-runner", cfg.RunnerBinary())

	cfg.Runner.Binary = "/opt/runner/onnx-runner"
	assert.Equal(t, "/opt/runner/onnx-runner", cfg.RunnerBinary())

	t.Setenv(envvar.TractusRunnerBin, "/usr/local/bin/onnx-runner")
	assert.Equal(t, "/usr/local/bin/onnx-runner", cfg.RunnerBinary())
}

func TestMRtrixBinDir(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.MRtrixBinDir())

	cfg.MRtrix.BinDir = "/opt/mrtrix3/bin"
	assert.Equal(t, "/opt/mrtrix3/bin", cfg.MRtrixBinDir())

	t.Setenv(envvar.TractusMRtrixBin, "/usr/local/mrtrix3/bin")
	assert.Equal(t, "/usr/local/mrtrix3/bin", cfg.MRtrixBinDir())
}
