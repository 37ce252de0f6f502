package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"
)

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte, dim int) ([]float32, error) {
	if len(data) != dim*4 {
		return nil, fmt.Errorf("vector blob has %d bytes, expected %d", len(data), dim*4)
	}
	out := make([]float32, dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}
