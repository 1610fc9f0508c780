// Package segment shapes raw model output into the requested segmentation
// layout and writes it to disk.
package segment

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/sourcegraph/conc/pool"

	"github.com/neurite-lab/tractus/internal/config"
	"github.com/neurite-lab/tractus/internal/nifti"
	"github.com/neurite-lab/tractus/internal/xfs"
)

// Error definitions for the segment package.
var (
	ErrBadPeaksShape = errors.New("peaks volume must be 4D with 9 channels")
	ErrChannelCount  = errors.New("model output channel count does not match profile")
)

// ValidatePeaks checks that a volume is a usable peaks input: 4D, three
// fiber directions with three components each.
func ValidatePeaks(v *nifti.Volume) error {
	if v.Dim[3] != config.PeakChannels {
		return fmt.Errorf("%w: got %d channels", ErrBadPeaksShape, v.Dim[3])
	}
	return nil
}

// FlipPeaksX negates the x component of every peak vector. Some scanners
// produce gradient tables whose x axis is mirrored relative to the
// convention the models were trained on.
func FlipPeaksX(v *nifti.Volume) {
	n := v.NumVoxels()
	for c := 0; c < v.Dim[3]; c += 3 {
		base := c * n
		for i := base; i < base+n; i++ {
			v.Data[i] = -v.Data[i]
		}
	}
}

// WriteRequest describes one segmentation write.
type WriteRequest struct {
	// Output is the raw model output volume.
	Output *nifti.Volume

	// Profile selects channel semantics, threshold and naming.
	Profile *config.Profile

	// OutDir is the output directory.
	OutDir string

	// SingleFile writes one multi-channel volume instead of per-bundle files.
	SingleFile bool

	// Probabilities skips thresholding and keeps raw model output.
	Probabilities bool
}

// Write shapes and writes the segmentation, returning the written paths.
// The number of files matches the layout: one for SingleFile, otherwise one
// per class. The output volume keeps the model input's affine untouched.
func Write(req *WriteRequest) ([]string, error) {
	profile := req.Profile
	v := req.Output

	if v.Channels() != profile.Channels() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrChannelCount, v.Channels(), profile.Channels())
	}

	if !req.Probabilities {
		applyThreshold(v, profile)
	}

	if req.SingleFile {
		path := filepath.Join(req.OutDir, profile.SingleFileName)
		if err := xfs.EnsureDir(req.OutDir); err != nil {
			return nil, err
		}
		opts := nifti.SaveOptions{
			AsUint8: profile.Binary && !req.Probabilities,
			Descrip: string(profile.OutputType),
		}
		if err := nifti.Save(v, path, opts); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	dir := filepath.Join(req.OutDir, profile.DirName)
	if err := xfs.EnsureDir(dir); err != nil {
		return nil, err
	}

	paths := make([]string, len(profile.LabelNames))
	p := pool.New().WithErrors().WithMaxGoroutines(runtime.NumCPU())

	for i, name := range profile.LabelNames {
		i, name := i, name
		p.Go(func() error {
			out, err := classVolume(v, profile, i)
			if err != nil {
				return err
			}

			path := filepath.Join(dir, name+".nii.gz")
			opts := nifti.SaveOptions{
				AsUint8: profile.Binary && !req.Probabilities,
				Descrip: name,
			}
			if err := nifti.Save(out, path, opts); err != nil {
				return fmt.Errorf("failed to write %s: %w", name, err)
			}

			paths[i] = path
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	return paths, nil
}

// classVolume extracts the channels of one class into a standalone volume.
func classVolume(v *nifti.Volume, profile *config.Profile, class int) (*nifti.Volume, error) {
	if profile.ChannelsPerClass == 1 {
		return v.Channel(class)
	}

	n := v.NumVoxels()
	out := nifti.New([4]int{v.Dim[0], v.Dim[1], v.Dim[2], profile.ChannelsPerClass}, v.Affine)
	out.Pixdim = v.Pixdim

	for c := 0; c < profile.ChannelsPerClass; c++ {
		src := (class*profile.ChannelsPerClass + c) * n
		if src+n > len(v.Data) {
			return nil, fmt.Errorf("%w: class %d out of range", ErrChannelCount, class)
		}
		copy(out.Data[c*n:(c+1)*n], v.Data[src:src+n])
	}

	return out, nil
}

// applyThreshold binarizes masks or zeroes sub-threshold regression output,
// according to the profile.
func applyThreshold(v *nifti.Volume, profile *config.Profile) {
	if profile.Threshold <= 0 {
		return
	}

	if profile.Binary {
		for i, val := range v.Data {
			if val > profile.Threshold {
				v.Data[i] = 1
			} else {
				v.Data[i] = 0
			}
		}
		return
	}

	for i, val := range v.Data {
		if val < profile.Threshold {
			v.Data[i] = 0
		}
	}
}
