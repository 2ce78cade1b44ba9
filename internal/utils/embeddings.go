package utils

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// dotProduct calculates the dot product of two vectors.
func dotProduct(vec1, vec2 []float32) (float32, error) {
	if len(vec1) != len(vec2) {
		return 0, fmt.Errorf("vectors must have the same dimension (%d != %d)", len(vec1), len(vec2))
	}
	var product float64
	for i := range vec1 {
		product += float64(vec1[i]) * float64(vec2[i])
	}
	return float32(product), nil
}

// Magnitude calculates the L2 norm (magnitude) of a vector.
func Magnitude(vec []float32) float32 {
	var sumOfSquares float64
	for _, val := range vec {
		sumOfSquares += float64(val) * float64(val)
	}
	return float32(math.Sqrt(sumOfSquares))
}

// CosineSimilarity calculates the cosine similarity between two vectors.
func CosineSimilarity(vec1, vec2 []float32) (float32, error) {
	if len(vec1) == 0 || len(vec2) == 0 {
		return 0, fmt.Errorf("vectors cannot be empty")
	}
	return CosineWithMagnitudes(vec1, Magnitude(vec1), vec2, Magnitude(vec2))
}

// CosineWithMagnitudes is CosineSimilarity with precomputed magnitudes.
func CosineWithMagnitudes(vec1 []float32, mag1 float32, vec2 []float32, mag2 float32) (float32, error) {
	dotProduct, err := dotProduct(vec1, vec2)
	if err != nil {
		return 0, err
	}

	if mag1 == 0 || mag2 == 0 {
		return 0, nil
	}

	return dotProduct / (mag1 * mag2), nil
}

// FloatsToBytes encodes a vector as little-endian float32s.
func FloatsToBytes(v []float32) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(len(v) * 4)
	_ = binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

// BytesToFloats decodes a vector written by FloatsToBytes.
func BytesToFloats(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("decode vector blob: %w", err)
	}
	return out, nil
}
