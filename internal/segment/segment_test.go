package segment

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/neurite-lab/tractus/internal/config"
	"github.com/neurite-lab/tractus/internal/nifti"
)

func testAffine() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		-2, 0, 0, 80,
		0, 2, 0, -120,
		0, 0, 2, -60,
		0, 0, 0, 1,
	})
}

// smallProfile keeps the written file count manageable in tests.
func smallProfile(binary bool, perClass int, threshold float32) *config.Profile {
	return &config.Profile{
		OutputType:       config.OutputTractSegmentation,
		Classes:          3,
		ChannelsPerClass: perClass,
		Threshold:        threshold,
		Binary:           binary,
		DirName:          "bundle_segmentations",
		SingleFileName:   "bundle_segmentations.nii.gz",
		LabelNames:       []string{"CA", "CC_1", "MCP"},
	}
}

func TestValidatePeaks(t *testing.T) {
	ok := nifti.New([4]int{4, 4, 4, 9}, nil)
	assert.NoError(t, ValidatePeaks(ok))

	bad := nifti.New([4]int{4, 4, 4, 6}, nil)
	assert.ErrorIs(t, ValidatePeaks(bad), ErrBadPeaksShape)

	threeD := nifti.New([4]int{4, 4, 4, 1}, nil)
	assert.ErrorIs(t, ValidatePeaks(threeD), ErrBadPeaksShape)
}

func TestFlipPeaksX(t *testing.T) {
	v := nifti.New([4]int{2, 2, 2, 9}, nil)
	for c := 0; c < 9; c++ {
		v.Set(0, 0, 0, c, float32(c+1))
	}

	FlipPeaksX(v)

	// x components (channels 0, 3, 6) are negated, y and z untouched.
	assert.Equal(t, float32(-1), v.At(0, 0, 0, 0))
	assert.Equal(t, float32(2), v.At(0, 0, 0, 1))
	assert.Equal(t, float32(3), v.At(0, 0, 0, 2))
	assert.Equal(t, float32(-4), v.At(0, 0, 0, 3))
	assert.Equal(t, float32(-7), v.At(0, 0, 0, 6))
	assert.Equal(t, float32(9), v.At(0, 0, 0, 8))
}

func TestWrite_PerBundle(t *testing.T) {
	profile := smallProfile(true, 1, 0.5)
	v := nifti.New([4]int{4, 4, 4, 3}, testAffine())
	v.Set(1, 1, 1, 0, 0.9)
	v.Set(2, 2, 2, 1, 0.4) // below threshold

	dir := t.TempDir()
	paths, err := Write(&WriteRequest{Output: v, Profile: profile, OutDir: dir})
	require.NoError(t, err)

	// One file per class, named after the bundle.
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(dir, "bundle_segmentations", "CA.nii.gz"), paths[0])

	ca, err := nifti.Load(paths[0])
	require.NoError(t, err)
	assert.Equal(t, float32(1), ca.At(1, 1, 1, 0))
	assert.True(t, nifti.SameAffine(testAffine(), ca.Affine), "output affine must match input affine")

	cc1, err := nifti.Load(paths[1])
	require.NoError(t, err)
	assert.Equal(t, float32(0), cc1.At(2, 2, 2, 0), "sub-threshold voxel must be masked out")
}

func TestWrite_SingleFile(t *testing.T) {
	profile := smallProfile(true, 1, 0.5)
	v := nifti.New([4]int{4, 4, 4, 3}, testAffine())
	v.Set(0, 0, 0, 2, 0.8)

	dir := t.TempDir()
	paths, err := Write(&WriteRequest{Output: v, Profile: profile, OutDir: dir, SingleFile: true})
	require.NoError(t, err)

	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(dir, "bundle_segmentations.nii.gz"), paths[0])

	got, err := nifti.Load(paths[0])
	require.NoError(t, err)
	assert.Equal(t, 3, got.Channels())
	assert.Equal(t, float32(1), got.At(0, 0, 0, 2))
	assert.True(t, nifti.SameAffine(testAffine(), got.Affine))
}

func TestWrite_Probabilities(t *testing.T) {
	profile := smallProfile(true, 1, 0.5)
	v := nifti.New([4]int{4, 4, 4, 3}, testAffine())
	v.Set(1, 1, 1, 0, 0.42)

	dir := t.TempDir()
	paths, err := Write(&WriteRequest{Output: v, Profile: profile, OutDir: dir, Probabilities: true})
	require.NoError(t, err)

	got, err := nifti.Load(paths[0])
	require.NoError(t, err)
	assert.InDelta(t, 0.42, got.At(1, 1, 1, 0), 1e-6, "probabilities must not be thresholded")
}

func TestWrite_OrientationMaps(t *testing.T) {
	profile := smallProfile(false, 3, 0)
	v := nifti.New([4]int{4, 4, 4, 9}, testAffine())
	// Class 1 occupies channels 3..5.
	v.Set(1, 1, 1, 3, 0.1)
	v.Set(1, 1, 1, 4, 0.2)
	v.Set(1, 1, 1, 5, 0.3)

	dir := t.TempDir()
	paths, err := Write(&WriteRequest{Output: v, Profile: profile, OutDir: dir})
	require.NoError(t, err)
	require.Len(t, paths, 3)

	tom, err := nifti.Load(paths[1])
	require.NoError(t, err)
	assert.Equal(t, 3, tom.Channels())
	assert.InDelta(t, 0.1, tom.At(1, 1, 1, 0), 1e-6)
	assert.InDelta(t, 0.3, tom.At(1, 1, 1, 2), 1e-6)
}

func TestWrite_RegressionThreshold(t *testing.T) {
	profile := smallProfile(false, 1, 0.01)
	v := nifti.New([4]int{2, 2, 2, 3}, nil)
	v.Set(0, 0, 0, 0, 0.005) // noise
	v.Set(1, 0, 0, 0, 0.75)

	dir := t.TempDir()
	paths, err := Write(&WriteRequest{Output: v, Profile: profile, OutDir: dir})
	require.NoError(t, err)

	got, err := nifti.Load(paths[0])
	require.NoError(t, err)
	assert.Equal(t, float32(0), got.At(0, 0, 0, 0), "sub-threshold density is zeroed")
	assert.InDelta(t, 0.75, got.At(1, 0, 0, 0), 1e-6, "density values stay continuous")
}

func TestWrite_ChannelMismatch(t *testing.T) {
	profile := smallProfile(true, 1, 0.5)
	v := nifti.New([4]int{4, 4, 4, 5}, nil)

	_, err := Write(&WriteRequest{Output: v, Profile: profile, OutDir: t.TempDir()})
	assert.ErrorIs(t, err, ErrChannelCount)
}
