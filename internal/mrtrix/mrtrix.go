// Package mrtrix drives the external diffusion toolkit programs used to turn
// raw diffusion-weighted images into fiber-orientation peak volumes.
package mrtrix

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/neurite-lab/tractus/internal/backend"
	"github.com/neurite-lab/tractus/internal/config"
)

// Client invokes the toolkit programs. Programs are resolved inside BinDir
// when set, otherwise through PATH.
type Client struct {
	runner   backend.CommandRunner
	binDir   string
	nthreads int
	timeout  time.Duration
}

// NewClient creates a toolkit client from the config.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		runner:   backend.ExecCommandRunner{},
		binDir:   cfg.MRtrixBinDir(),
		nthreads: cfg.MRtrix.NThreads,
		timeout:  cfg.MRtrixTimeout(),
	}
}

// NewClientWithRunner creates a toolkit client with a custom runner.
func NewClientWithRunner(runner backend.CommandRunner, binDir string, nthreads int, timeout time.Duration) *Client {
	return &Client{
		runner:   runner,
		binDir:   binDir,
		nthreads: nthreads,
		timeout:  timeout,
	}
}

// PeaksRequest describes one peak-extraction run.
type PeaksRequest struct {
	// DWI is the raw diffusion-weighted input volume.
	DWI string

	// Bvals and Bvecs are the FSL-style gradient table sidecars.
	Bvals string
	Bvecs string

	// BrainMask is the mask volume. When empty the mask is computed first.
	BrainMask string

	// CSDType selects the deconvolution variant.
	CSDType config.CSDType

	// WorkDir receives all intermediate files.
	WorkDir string
}

// CreatePeaks runs the full preprocessing chain and returns the path of the
// produced peaks volume: mask (unless supplied), response function
// estimation, FOD estimation, peak extraction.
func (c *Client) CreatePeaks(ctx context.Context, req *PeaksRequest) (string, error) {
	mask := req.BrainMask
	if mask == "" {
		var err error
		mask, err = c.BrainMask(ctx, req.DWI, req.Bvals, req.Bvecs, req.WorkDir)
		if err != nil {
			return "", err
		}
	}

	fods, err := c.estimateFODs(ctx, req, mask)
	if err != nil {
		return "", err
	}

	peaks := filepath.Join(req.WorkDir, "peaks.nii.gz")
	if err := c.run(ctx, "sh2peaks", c.withCommon(fods, peaks)); err != nil {
		return "", err
	}

	return peaks, nil
}

// BrainMask computes a brain mask from the raw diffusion volume and returns
// its path.
func (c *Client) BrainMask(ctx context.Context, dwi, bvals, bvecs, workDir string) (string, error) {
	mask := filepath.Join(workDir, "nodif_brain_mask.nii.gz")
	args := c.withGrad(bvals, bvecs, dwi, mask)
	if err := c.run(ctx, "dwi2mask", args); err != nil {
		return "", err
	}
	return mask, nil
}

// estimateFODs runs response estimation and spherical deconvolution for the
// requested variant and returns the white-matter FOD volume path.
func (c *Client) estimateFODs(ctx context.Context, req *PeaksRequest, mask string) (string, error) {
	wd := req.WorkDir

	switch req.CSDType {
	case config.CSDStandard:
		response := filepath.Join(wd, "response.txt")
		if err := c.run(ctx, "dwi2response", c.withGrad(req.Bvals, req.Bvecs, "tournier", req.DWI, response, "-mask", mask)); err != nil {
			return "", err
		}

		fods := filepath.Join(wd, "WM_FODs.nii.gz")
		if err := c.run(ctx, "dwi2fod", c.withGrad(req.Bvals, req.Bvecs, "csd", req.DWI, response, fods, "-mask", mask)); err != nil {
			return "", err
		}
		return fods, nil

	case config.CSDMSMT:
		wmResp := filepath.Join(wd, "RF_WM.txt")
		gmResp := filepath.Join(wd, "RF_GM.txt")
		csfResp := filepath.Join(wd, "RF_CSF.txt")
		if err := c.run(ctx, "dwi2response", c.withGrad(req.Bvals, req.Bvecs, "dhollander", req.DWI, wmResp, gmResp, csfResp, "-mask", mask)); err != nil {
			return "", err
		}

		fods := filepath.Join(wd, "WM_FODs.nii.gz")
		gm := filepath.Join(wd, "GM.nii.gz")
		csf := filepath.Join(wd, "CSF.nii.gz")
		if err := c.run(ctx, "dwi2fod", c.withGrad(req.Bvals, req.Bvecs, "msmt_csd", req.DWI, wmResp, fods, gmResp, gm, csfResp, csf, "-mask", mask)); err != nil {
			return "", err
		}
		return fods, nil

	case config.CSDMSMT5TT:
		t1Seg := filepath.Join(wd, "5TT.nii.gz")
		if err := c.run(ctx, "5ttgen", []string{"fsl", req.DWI, t1Seg}); err != nil {
			return "", err
		}

		wmResp := filepath.Join(wd, "RF_WM.txt")
		gmResp := filepath.Join(wd, "RF_GM.txt")
		csfResp := filepath.Join(wd, "RF_CSF.txt")
		if err := c.run(ctx, "dwi2response", c.withGrad(req.Bvals, req.Bvecs, "msmt_5tt", req.DWI, t1Seg, wmResp, gmResp, csfResp)); err != nil {
			return "", err
		}

		fods := filepath.Join(wd, "WM_FODs.nii.gz")
		gm := filepath.Join(wd, "GM.nii.gz")
		csf := filepath.Join(wd, "CSF.nii.gz")
		if err := c.run(ctx, "dwi2fod", c.withGrad(req.Bvals, req.Bvecs, "msmt_csd", req.DWI, wmResp, fods, gmResp, gm, csfResp, csf, "-mask", mask)); err != nil {
			return "", err
		}
		return fods, nil

	default:
		return "", fmt.Errorf("%w: %s", config.ErrUnknownCSDType, req.CSDType)
	}
}

// withGrad prepends the FSL gradient table flags to positional args.
func (c *Client) withGrad(bvals, bvecs string, args ...string) []string {
	out := append([]string{}, args...)
	out = append(out, "-fslgrad", bvecs, bvals)
	return c.common(out)
}

func (c *Client) withCommon(args ...string) []string {
	return c.common(append([]string{}, args...))
}

func (c *Client) common(args []string) []string {
	args = append(args, "-force", "-quiet")
	if c.nthreads > 0 {
		args = append(args, "-nthreads", strconv.Itoa(c.nthreads))
	}
	return args
}

// run executes one toolkit program.
func (c *Client) run(ctx context.Context, program string, args []string) error {
	bin := program
	if c.binDir != "" {
		bin = filepath.Join(c.binDir, program)
	}

	executor := backend.NewExecutorWithRunner(bin, c.timeout, c.runner)

	slog.Debug("Running toolkit program", "program", program, "args", args)
	start := time.Now()

	if _, err := executor.Execute(ctx, args, nil); err != nil {
		return fmt.Errorf("%s: %w", program, err)
	}

	slog.Info("Toolkit program finished", "program", program, "duration", time.Since(start))
	return nil
}
