package mrtrix

import (
	"errors"
	"fmt"
	"os"

	"github.com/neurite-lab/tractus/internal/xfs"
)

// Error definitions for gradient sidecar resolution.
var (
	ErrMissingBvals = errors.New("bvals sidecar not found")
	ErrMissingBvecs = errors.New("bvecs sidecar not found")
)

// Gradients holds the resolved gradient table sidecar paths.
type Gradients struct {
	Bvals string
	Bvecs string
}

// ResolveGradients returns the gradient sidecars for a diffusion volume.
// Explicit paths win; otherwise the sidecars are expected next to the input
// ("<stem>.bvals" / "<stem>.bvecs", falling back to "Diffusion.bvals" style
// singular forms). Missing sidecars are an error: the deconvolution chain
// cannot run without a gradient table.
func ResolveGradients(dwiPath, bvals, bvecs string) (*Gradients, error) {
	stem := xfs.StripExtensions(dwiPath)

	resolvedBvals, err := resolveSidecar(bvals, []string{stem + ".bvals", stem + ".bval"}, ErrMissingBvals)
	if err != nil {
		return nil, err
	}

	resolvedBvecs, err := resolveSidecar(bvecs, []string{stem + ".bvecs", stem + ".bvec"}, ErrMissingBvecs)
	if err != nil {
		return nil, err
	}

	return &Gradients{Bvals: resolvedBvals, Bvecs: resolvedBvecs}, nil
}

func resolveSidecar(explicit string, candidates []string, missing error) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %s", missing, explicit)
		}
		return explicit, nil
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: tried %v", missing, candidates)
}
