package nifti

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

// SaveOptions control how a volume is encoded.
type SaveOptions struct {
	// AsUint8 stores voxels as unsigned bytes. Only valid for data already in
	// [0, 255]; used for binary segmentation masks.
	AsUint8 bool

	// Descrip is written into the header description field.
	Descrip string
}

// Save writes the volume to path. A .gz suffix enables gzip compression.
func Save(v *Volume, path string, opts SaveOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create volume file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		defer gz.Close()
		w = gz
	}

	return Encode(v, w, opts)
}

// Encode writes the volume to an uncompressed stream.
func Encode(v *Volume, w io.Writer, opts SaveOptions) error {
	h := headerFor(v, opts)

	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// 4-byte extension flag, all zero: no extensions.
	if _, err := w.Write(make([]byte, dataOffset-headerBytes)); err != nil {
		return fmt.Errorf("failed to write extension flag: %w", err)
	}

	if opts.AsUint8 {
		buf := make([]uint8, len(v.Data))
		for i, val := range v.Data {
			buf[i] = uint8(val)
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("failed to write voxel data: %w", err)
		}
		return nil
	}

	if err := binary.Write(w, binary.LittleEndian, v.Data); err != nil {
		return fmt.Errorf("failed to write voxel data: %w", err)
	}
	return nil
}

func headerFor(v *Volume, opts SaveOptions) header {
	h := header{
		SizeofHdr: headerBytes,
		VoxOffset: dataOffset,
		SclSlope:  1,
		SformCode: sformAligned,
		QformCode: 0,
		XyztUnits: 2 | 8, // NIFTI_UNITS_MM | NIFTI_UNITS_SEC
	}

	nd := 3
	if v.Dim[3] > 1 {
		nd = 4
	}
	h.Dim[0] = int16(nd)
	for i := 0; i < 4; i++ {
		h.Dim[i+1] = int16(v.Dim[i])
	}
	for i := nd + 1; i < 8; i++ {
		h.Dim[i] = 1
	}

	h.Pixdim[0] = 1
	for i := 0; i < 4; i++ {
		h.Pixdim[i+1] = v.Pixdim[i]
	}

	if opts.AsUint8 {
		h.Datatype = dtUint8
		h.Bitpix = 8
	} else {
		h.Datatype = dtFloat32
		h.Bitpix = 32
	}

	for j := 0; j < 4; j++ {
		h.SrowX[j] = float32(v.Affine.At(0, j))
		h.SrowY[j] = float32(v.Affine.At(1, j))
		h.SrowZ[j] = float32(v.Affine.At(2, j))
	}
	h.QoffsetX = h.SrowX[3]
	h.QoffsetY = h.SrowY[3]
	h.QoffsetZ = h.SrowZ[3]

	copyString(h.Descrip[:], opts.Descrip)
	copyString(h.Magic[:], magicSingle)

	return h
}

func copyString(dst []int8, s string) {
	for i := 0; i < len(s) && i < len(dst)-1; i++ {
		dst[i] = int8(s[i])
	}
}
