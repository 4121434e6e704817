package provider

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// Local produces deterministic pseudo-embeddings without any network access.
// Vectors are derived from SHA-256 of the text, so equal texts always map to
// equal vectors. Useful offline and in tests, useless for similarity.
type Local struct {
	dimension int
}

// NewLocal creates a Local provider of LocalDimension.
func NewLocal() *Local {
	return &Local{dimension: LocalDimension}
}

func (l *Local) GenerateEmbedding(ctx context.Context, model, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, l.dimension)
	var block [sha256.Size]byte
	var counter [4]byte
	for i := range vec {
		// each 32-byte block feeds 32 elements
		if i%sha256.Size == 0 {
			binary.BigEndian.PutUint32(counter[:], uint32(i/sha256.Size))
			h := sha256.New()
			h.Write(counter[:])
			h.Write([]byte(text))
			copy(block[:], h.Sum(nil))
		}
		vec[i] = float64(block[i%sha256.Size])/127.5 - 1
	}
	return vec, nil
}

func (l *Local) Name() string           { return ProviderLocal }
func (l *Local) ChatModel() string      { return "" }
func (l *Local) EmbeddingModel() string { return DefaultLocalModel }
func (l *Local) Dimension() int         { return l.dimension }
func (l *Local) Close() error           { return nil }
