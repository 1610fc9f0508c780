package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Version: "1",
		Storage: StorageConfig{WeightsDir: DefaultWeightsPath()},
		Runner:  RunnerConfig{Binary: "onnx-runner"},
		MRtrix:  MRtrixConfig{},
		Logging: LoggingConfig{File: "logs/tractus.log"},
	}
}

// DefaultConfigPath returns the default path for the tractus config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "tractus", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "tractus")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "tractus")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "tractus")
		}
		return filepath.Join(home, ".config", "tractus")
	}
}

// DefaultWeightsPath returns the default path for the pretrained weights directory.
func DefaultWeightsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "tractus", "weights")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "tractus", "weights")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "tractus", "weights")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "tractus", "weights")
		}
		return filepath.Join(home, ".cache", "tractus", "weights")
	}
}
