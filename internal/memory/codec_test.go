package memory

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestIndexCodec(t *testing.T) {
	vectors := [][]float32{{1, 2, 3}, {-0.5, 0, 0.25}}
	data, err := encodeIndex(3, vectors)
	if err != nil {
		t.Fatalf("encodeIndex failed: %v", err)
	}
	if string(data[:4]) != "MNVI" {
		t.Errorf("missing magic, got %q", data[:4])
	}
	if len(data) != 16+2*3*4 {
		t.Errorf("unexpected size %d", len(data))
	}

	dim, got, err := decodeIndex(data)
	if err != nil {
		t.Fatalf("decodeIndex failed: %v", err)
	}
	if dim != 3 || len(got) != 2 || got[1][0] != -0.5 || got[1][2] != 0.25 {
		t.Errorf("unexpected decode: dim %d rows %v", dim, got)
	}
}

func TestIndexCodec_TornWrite(t *testing.T) {
	data, _ := encodeIndex(2, [][]float32{{1, 2}, {3, 4}})
	dim, got, err := decodeIndex(data[:len(data)-3])
	if err != nil {
		t.Fatalf("decodeIndex failed: %v", err)
	}
	if dim != 2 || len(got) != 1 {
		t.Errorf("expected the complete row only, got %v", got)
	}
}

func TestIndexCodec_Errors(t *testing.T) {
	if _, err := encodeIndex(2, [][]float32{{1}}); !errors.Is(err, ErrDimension) {
		t.Errorf("expected ErrDimension for short row, got %v", err)
	}

	tests := map[string][]byte{
		"short":   []byte("MN"),
		"magic":   append([]byte("XXXX"), make([]byte, 12)...),
		"version": {'M', 'N', 'V', 'I', 9, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, _, err := decodeIndex(data); !errors.Is(err, errCorruptIndex) {
				t.Errorf("expected corrupt index error, got %v", err)
			}
		})
	}
}

func TestIndexCodec_Empty(t *testing.T) {
	data, err := encodeIndex(384, nil)
	if err != nil {
		t.Fatal(err)
	}
	dim, got, err := decodeIndex(data)
	if err != nil || dim != 384 || len(got) != 0 {
		t.Errorf("unexpected empty decode: %d %v %v", dim, got, err)
	}
}

func header(dim, count uint32) []byte {
	data := []byte{'M', 'N', 'V', 'I', 1, 0, 0, 0}
	data = binary.LittleEndian.AppendUint32(data, dim)
	return binary.LittleEndian.AppendUint32(data, count)
}

func TestIndexCodec_HostileHeader(t *testing.T) {
	t.Run("zero dimension with rows", func(t *testing.T) {
		if _, _, err := decodeIndex(header(0, 1<<31)); !errors.Is(err, errCorruptIndex) {
			t.Errorf("expected corrupt index error, got %v", err)
		}
	})

	t.Run("count larger than body", func(t *testing.T) {
		data := header(2, 1<<31)
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(1))
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(2))

		dim, got, err := decodeIndex(data)
		if err != nil {
			t.Fatalf("decodeIndex failed: %v", err)
		}
		if dim != 2 || len(got) != 1 || got[0][1] != 2 {
			t.Errorf("expected the single complete row, got %v", got)
		}
	})

	t.Run("huge dimension without body", func(t *testing.T) {
		dim, got, err := decodeIndex(header(1<<30, 5))
		if err != nil || dim != 1<<30 || len(got) != 0 {
			t.Errorf("expected no rows, got %d %v %v", dim, got, err)
		}
	})
}
