package memory

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Index file layout, little endian:
//
//	magic   [4]byte "MNVI"
//	version uint32
//	dim     uint32
//	count   uint32
//	rows    count*dim float32
var indexMagic = [4]byte{'M', 'N', 'V', 'I'}

const indexVersion = 1

var errCorruptIndex = errors.New("corrupt index file")

type indexHeader struct {
	Magic   [4]byte
	Version uint32
	Dim     uint32
	Count   uint32
}

func encodeIndex(dim int, vectors [][]float32) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(16 + len(vectors)*dim*4)

	h := indexHeader{Magic: indexMagic, Version: indexVersion, Dim: uint32(dim), Count: uint32(len(vectors))}
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}

	row := make([]byte, dim*4)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("row %d has %d dimensions, want %d: %w", i, len(v), dim, ErrDimension)
		}
		for j, f := range v {
			binary.LittleEndian.PutUint32(row[j*4:], math.Float32bits(f))
		}
		buf.Write(row)
	}
	return buf.Bytes(), nil
}

func decodeIndex(data []byte) (int, [][]float32, error) {
	r := bytes.NewReader(data)

	var h indexHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return 0, nil, fmt.Errorf("%w: header: %v", errCorruptIndex, err)
	}
	if h.Magic != indexMagic {
		return 0, nil, fmt.Errorf("%w: bad magic %q", errCorruptIndex, h.Magic[:])
	}
	if h.Version != indexVersion {
		return 0, nil, fmt.Errorf("%w: unsupported version %d", errCorruptIndex, h.Version)
	}

	dim, count := int(h.Dim), int(h.Count)
	if dim == 0 {
		if count > 0 {
			return 0, nil, fmt.Errorf("%w: %d rows of zero dimension", errCorruptIndex, count)
		}
		return 0, nil, nil
	}
	// A short body is a torn write; keep the complete rows. The header count
	// is never trusted beyond what the body holds.
	if rows := r.Len() / (dim * 4); count > rows {
		count = rows
	}
	if count == 0 {
		return dim, [][]float32{}, nil
	}

	vectors := make([][]float32, count)
	row := make([]byte, dim*4)
	for i := range vectors {
		if _, err := io.ReadFull(r, row); err != nil {
			return 0, nil, fmt.Errorf("%w: row %d: %v", errCorruptIndex, i, err)
		}
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(row[j*4:]))
		}
		vectors[i] = v
	}
	return dim, vectors, nil
}
