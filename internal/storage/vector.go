package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Embeddings persist as little-endian float32 blobs. The encoding is part of
// the schema: rows written by older builds must keep decoding.

func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, 0, len(v)*4)
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob is %d bytes, not a whole number of float32s", len(b))
	}
	v := make([]float32, 0, len(b)/4)
	for len(b) > 0 {
		v = append(v, math.Float32frombits(binary.LittleEndian.Uint32(b)))
		b = b[4:]
	}
	return v, nil
}
