package preview

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurite-lab/tractus/internal/config"
	"github.com/neurite-lab/tractus/internal/nifti"
)

func TestRender(t *testing.T) {
	profile := &config.Profile{
		Classes:          2,
		ChannelsPerClass: 1,
	}

	v := nifti.New([4]int{8, 8, 12, 2}, nil)
	for z := 0; z < 12; z++ {
		v.Set(3, 3, z, 0, 1)
		v.Set(5, 5, z, 1, 1)
	}

	path := filepath.Join(t.TempDir(), "preview.png")
	require.NoError(t, Render(v, profile, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)

	// 3x3 mosaic of 8x8 tiles.
	assert.Equal(t, 24, img.Bounds().Dx())
	assert.Equal(t, 24, img.Bounds().Dy())
}

func TestRender_OrientationMaps(t *testing.T) {
	profile := &config.Profile{
		Classes:          1,
		ChannelsPerClass: 3,
	}

	v := nifti.New([4]int{4, 4, 4, 3}, nil)
	v.Set(2, 2, 2, 0, 0.6)
	v.Set(2, 2, 2, 1, 0.8)

	path := filepath.Join(t.TempDir(), "preview.png")
	require.NoError(t, Render(v, profile, path))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestRender_EmptyVolume(t *testing.T) {
	profile := &config.Profile{Classes: 1, ChannelsPerClass: 1}
	v := &nifti.Volume{Dim: [4]int{0, 0, 0, 1}}

	err := Render(v, profile, filepath.Join(t.TempDir(), "preview.png"))
	assert.Error(t, err)
}
