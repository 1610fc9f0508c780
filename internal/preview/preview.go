// Package preview renders a quick-look PNG mosaic of a segmentation so a
// run can be eyeballed without opening a neuroimaging viewer.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/neurite-lab/tractus/internal/config"
	"github.com/neurite-lab/tractus/internal/nifti"
)

// mosaic grid: 3x3 axial slices evenly spaced through the volume.
const (
	mosaicCols   = 3
	mosaicRows   = 3
	mosaicSlices = mosaicCols * mosaicRows
)

// Render writes an axial mosaic of the segmentation to path. Each class gets
// a distinct hue; voxels are colored by their strongest class. Orientation
// maps are rendered by vector magnitude instead.
func Render(v *nifti.Volume, profile *config.Profile, path string) error {
	nx, ny, nz := v.Dim[0], v.Dim[1], v.Dim[2]
	if nx == 0 || ny == 0 || nz == 0 {
		return fmt.Errorf("cannot render empty volume")
	}

	img := image.NewRGBA(image.Rect(0, 0, mosaicCols*nx, mosaicRows*ny))

	for s := 0; s < mosaicSlices; s++ {
		z := (s + 1) * nz / (mosaicSlices + 1)
		ox := (s % mosaicCols) * nx
		oy := (s / mosaicCols) * ny

		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				c := voxelColor(v, profile, x, y, z)
				// Flip y so anterior ends up at the top of the tile.
				img.Set(ox+x, oy+ny-1-y, c)
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create preview file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode preview: %w", err)
	}

	return nil
}

func voxelColor(v *nifti.Volume, profile *config.Profile, x, y, z int) color.RGBA {
	best, bestVal := -1, float32(0)

	for class := 0; class < profile.Classes; class++ {
		val := classStrength(v, profile, x, y, z, class)
		if val > bestVal {
			best, bestVal = class, val
		}
	}

	if best < 0 || bestVal <= 0 {
		return color.RGBA{A: 255}
	}

	r, g, b := classHue(best, profile.Classes)
	scale := float64(bestVal)
	if scale > 1 {
		scale = 1
	}
	return color.RGBA{
		R: uint8(float64(r) * scale),
		G: uint8(float64(g) * scale),
		B: uint8(float64(b) * scale),
		A: 255,
	}
}

func classStrength(v *nifti.Volume, profile *config.Profile, x, y, z, class int) float32 {
	if profile.ChannelsPerClass == 1 {
		return v.At(x, y, z, class)
	}

	// Orientation field: use vector magnitude.
	var sum float64
	for c := 0; c < profile.ChannelsPerClass; c++ {
		val := float64(v.At(x, y, z, class*profile.ChannelsPerClass+c))
		sum += val * val
	}
	return float32(math.Sqrt(sum))
}

// classHue maps a class index onto a color wheel.
func classHue(class, total int) (r, g, b uint8) {
	h := float64(class) / float64(total) * 6
	f := h - math.Floor(h)

	switch int(h) % 6 {
	case 0:
		return 255, uint8(255 * f), 0
	case 1:
		return uint8(255 * (1 - f)), 255, 0
	case 2:
		return 0, 255, uint8(255 * f)
	case 3:
		return 0, uint8(255 * (1 - f)), 255
	case 4:
		return uint8(255 * f), 0, 255
	default:
		return 255, 0, uint8(255 * (1 - f))
	}
}
