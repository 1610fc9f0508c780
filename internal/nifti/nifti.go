// Package nifti reads and writes NIfTI-1 volumes.
//
// Layout follows the official nifti1 header definition,
// https://nifti.nimh.nih.gov/pub/dist/src/niftilib/nifti1.h
package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// header is the 348-byte NIfTI-1 header.
type header struct {
	SizeofHdr          int32      // Must be 348
	UnusedDataType     [10]int8   // Unused
	UnusedDbName       [18]int8   // Unused
	UnusedExtents      int32      // Unused
	UnusedSessionError int16      // Unused
	UnusedRegular      int8       // Unused
	DimInfo            int8       // MRI slice ordering
	Dim                [8]int16   // Data array dimensions
	IntentP1           float32    // 1st intent parameter
	IntentP2           float32    // 2nd intent parameter
	IntentP3           float32    // 3rd intent parameter
	IntentCode         int16      // NIFTI_INTENT_* code
	Datatype           int16      // Defines data type
	Bitpix             int16      // Number bits/voxel
	SliceStart         int16      // First slice index
	Pixdim             [8]float32 // Grid spacing
	VoxOffset          float32    // Offset into .nii file
	SclSlope           float32    // Data scaling: slope
	SclInter           float32    // Data scaling: offset
	SliceEnd           int16      // Last slice index
	SliceCode          int8       // Slice timing order
	XyztUnits          int8       // Units of pixdim[1..4]
	CalMax             float32    // Max display intensity
	CalMin             float32    // Min display intensity
	SliceDuration      float32    // Time for 1 slice
	Toffset            float32    // Time axis shift
	UnusedGlmax        int32      // Unused
	UnusedGlmin        int32      // Unused
	Descrip            [80]int8   // Any text you like
	AuxFile            [24]int8   // Auxiliary filename
	QformCode          int16      // NIFTI_XFORM_* code
	SformCode          int16      // NIFTI_XFORM_* code
	QuaternB           float32    // Quaternion b params
	QuaternC           float32    // Quaternion c params
	QuaternD           float32    // Quaternion d params
	QoffsetX           float32    // Quaternion x shift
	QoffsetY           float32    // Quaternion y shift
	QoffsetZ           float32    // Quaternion z shift
	SrowX              [4]float32 // 1st row affine transform
	SrowY              [4]float32 // 2nd row affine transform
	SrowZ              [4]float32 // 3rd row affine transform
	IntentName         [16]int8   // 'name' or meaning of data
	Magic              [4]int8    // Must be "ni1\0" or "n+1\0"
}

const (
	headerBytes  = 348
	dataOffset   = 352
	magicSingle  = "n+1"
	sformAligned = 1 // NIFTI_XFORM_SCANNER_ANAT
)

// NIfTI-1 datatype codes.
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
)

// Error definitions for the nifti package.
var (
	ErrBadHeader    = errors.New("invalid nifti-1 header")
	ErrBadMagic     = errors.New("invalid nifti-1 magic, data must share the file with the header")
	ErrUnsupportedD = errors.New("unsupported nifti-1 datatype")
)

// Volume is an in-memory NIfTI volume. Data is stored as float32 regardless
// of on-disk datatype, x fastest, then y, z, t.
type Volume struct {
	Data   []float32
	Dim    [4]int     // nx, ny, nz, nt (nt is 1 for 3D volumes)
	Pixdim [4]float32 // voxel spacing; Pixdim[3] is TR or 1
	Affine *mat.Dense // 4x4 voxel-to-world transform (sform)
}

// New allocates a zero-filled volume with the given dimensions and affine.
// A nil affine yields identity.
func New(dim [4]int, affine *mat.Dense) *Volume {
	if dim[3] < 1 {
		dim[3] = 1
	}
	if affine == nil {
		affine = IdentityAffine()
	}
	return &Volume{
		Data:   make([]float32, dim[0]*dim[1]*dim[2]*dim[3]),
		Dim:    dim,
		Pixdim: [4]float32{1, 1, 1, 1},
		Affine: affine,
	}
}

// IdentityAffine returns a 4x4 identity transform.
func IdentityAffine() *mat.Dense {
	a := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		a.Set(i, i, 1)
	}
	return a
}

// At returns the value at voxel (x, y, z) in channel t.
func (v *Volume) At(x, y, z, t int) float32 {
	return v.Data[v.offset(x, y, z, t)]
}

// Set stores a value at voxel (x, y, z) in channel t.
func (v *Volume) Set(x, y, z, t int, val float32) {
	v.Data[v.offset(x, y, z, t)] = val
}

func (v *Volume) offset(x, y, z, t int) int {
	return ((t*v.Dim[2]+z)*v.Dim[1]+y)*v.Dim[0] + x
}

// Channels returns the size of the 4th dimension.
func (v *Volume) Channels() int {
	return v.Dim[3]
}

// NumVoxels returns the spatial voxel count (nx*ny*nz).
func (v *Volume) NumVoxels() int {
	return v.Dim[0] * v.Dim[1] * v.Dim[2]
}

// Channel returns a 3D view of one channel as a new volume sharing no data.
func (v *Volume) Channel(t int) (*Volume, error) {
	if t < 0 || t >= v.Dim[3] {
		return nil, fmt.Errorf("channel %d out of range [0, %d)", t, v.Dim[3])
	}

	n := v.NumVoxels()
	out := &Volume{
		Data:   make([]float32, n),
		Dim:    [4]int{v.Dim[0], v.Dim[1], v.Dim[2], 1},
		Pixdim: v.Pixdim,
		Affine: mat.DenseCopyOf(v.Affine),
	}
	copy(out.Data, v.Data[t*n:(t+1)*n])
	return out, nil
}

// SameAffine reports whether two affines are equal within tolerance.
func SameAffine(a, b *mat.Dense) bool {
	return mat.EqualApprox(a, b, 1e-4)
}

// Load reads a NIfTI-1 volume from path. Gzip-compressed files are detected
// by extension.
func Load(path string) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open volume: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	return Decode(r)
}

// Decode reads a NIfTI-1 volume from an uncompressed stream.
func Decode(r io.Reader) (*Volume, error) {
	raw := make([]byte, headerBytes)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var h header
	order, err := detectOrder(raw, &h)
	if err != nil {
		return nil, err
	}

	if string(trimZero(h.Magic[:])) != magicSingle {
		return nil, ErrBadMagic
	}

	nd := int(h.Dim[0])
	if nd < 3 {
		return nil, fmt.Errorf("%w: want at least 3 dimensions, got %d", ErrBadHeader, nd)
	}

	dim := [4]int{int(h.Dim[1]), int(h.Dim[2]), int(h.Dim[3]), 1}
	if nd >= 4 && h.Dim[4] > 1 {
		dim[3] = int(h.Dim[4])
	}

	// Skip past the header padding up to the data offset.
	offset := int64(h.VoxOffset)
	if offset < dataOffset {
		offset = dataOffset
	}
	if _, err := io.CopyN(io.Discard, r, offset-headerBytes); err != nil {
		return nil, fmt.Errorf("failed to seek to data offset: %w", err)
	}

	n := dim[0] * dim[1] * dim[2] * dim[3]
	data, err := readData(r, order, int(h.Datatype), n)
	if err != nil {
		return nil, err
	}

	// Apply data scaling when present.
	if h.SclSlope != 0 && !(h.SclSlope == 1 && h.SclInter == 0) {
		for i := range data {
			data[i] = h.SclSlope*data[i] + h.SclInter
		}
	}

	return &Volume{
		Data:   data,
		Dim:    dim,
		Pixdim: [4]float32{h.Pixdim[1], h.Pixdim[2], h.Pixdim[3], h.Pixdim[4]},
		Affine: affineFromHeader(&h),
	}, nil
}

// detectOrder decodes the header, retrying with big-endian byte order when
// dim[0] is out of range.
func detectOrder(raw []byte, h *header) (binary.ByteOrder, error) {
	var order binary.ByteOrder = binary.LittleEndian
	if err := binary.Read(bytes.NewReader(raw), order, h); err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}

	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		order = binary.BigEndian
		*h = header{}
		if err := binary.Read(bytes.NewReader(raw), order, h); err != nil {
			return nil, fmt.Errorf("failed to decode header: %w", err)
		}
	}

	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		return nil, fmt.Errorf("%w: dim[0]=%d not in [1, 7]", ErrBadHeader, h.Dim[0])
	}
	if h.SizeofHdr != headerBytes {
		return nil, fmt.Errorf("%w: sizeof_hdr=%d", ErrBadHeader, h.SizeofHdr)
	}

	return order, nil
}

func readData(r io.Reader, order binary.ByteOrder, datatype, n int) ([]float32, error) {
	out := make([]float32, n)

	switch datatype {
	case dtUint8:
		buf := make([]uint8, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("failed to read voxel data: %w", err)
		}
		for i, v := range buf {
			out[i] = float32(v)
		}
	case dtInt16:
		buf := make([]int16, n)
		if err := binary.Read(r, order, &buf); err != nil {
			return nil, fmt.Errorf("failed to read voxel data: %w", err)
		}
		for i, v := range buf {
			out[i] = float32(v)
		}
	case dtInt32:
		buf := make([]int32, n)
		if err := binary.Read(r, order, &buf); err != nil {
			return nil, fmt.Errorf("failed to read voxel data: %w", err)
		}
		for i, v := range buf {
			out[i] = float32(v)
		}
	case dtFloat32:
		if err := binary.Read(r, order, &out); err != nil {
			return nil, fmt.Errorf("failed to read voxel data: %w", err)
		}
	case dtFloat64:
		buf := make([]float64, n)
		if err := binary.Read(r, order, &buf); err != nil {
			return nil, fmt.Errorf("failed to read voxel data: %w", err)
		}
		for i, v := range buf {
			out[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("%w: code %d", ErrUnsupportedD, datatype)
	}

	return out, nil
}

func affineFromHeader(h *header) *mat.Dense {
	a := mat.NewDense(4, 4, nil)

	if h.SformCode > 0 {
		for j := 0; j < 4; j++ {
			a.Set(0, j, float64(h.SrowX[j]))
			a.Set(1, j, float64(h.SrowY[j]))
			a.Set(2, j, float64(h.SrowZ[j]))
		}
		a.Set(3, 3, 1)
		return a
	}

	// No sform: fall back to a scaling transform from pixdim.
	a.Set(0, 0, float64(h.Pixdim[1]))
	a.Set(1, 1, float64(h.Pixdim[2]))
	a.Set(2, 2, float64(h.Pixdim[3]))
	a.Set(3, 3, 1)
	return a
}

func trimZero(b []int8) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c == 0 {
			break
		}
		out = append(out, byte(c))
	}
	return out
}
