package env

import (
	"os"
	"strings"

	"github.com/neurite-lab/tractus/internal/envvar"
)

// Environment identifies the runtime environment.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// FromEnv determines the environment from TRACTUS_ENV.
// Anything other than "production" (or "prod") is treated as development.
func FromEnv() Environment {
	switch strings.ToLower(os.Getenv(envvar.TractusEnv)) {
	case "production", "prod":
		return Production
	default:
		return Development
	}
}
