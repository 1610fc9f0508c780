package envvar

const (
	// TractusEnv is the environment variable used to determine the environment
	TractusEnv = "TRACTUS_ENV"

	// TractusWeightsPath is the environment variable used to override the pretrained weights directory
	TractusWeightsPath = "TRACTUS_WEIGHTS_PATH"

	// TractusMRtrixBin is the environment variable used to locate the diffusion toolkit binaries
	TractusMRtrixBin = "TRACTUS_MRTRIX_BIN"

	// TractusRunnerBin is the environment variable used to locate the model runner binary
	TractusRunnerBin = "TRACTUS_RUNNER_BIN"
)
