package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// GetEmbedding returns the cached vector for a content hash and embedder id.
// ok is false on a miss.
func (s *Store) GetEmbedding(ctx context.Context, hash, embedder string) ([]float32, bool, error) {
	var (
		dims int
		blob []byte
	)
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT dims, vector FROM embeddings WHERE content_hash = ? AND embedder = ?", hash, embedder,
	).Scan(&dims, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get embedding: %w", err)
	}
	vec, err := decodeVector(blob, dims)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// PutEmbedding stores a vector, replacing any previous value.
func (s *Store) PutEmbedding(ctx context.Context, hash, embedder string, vec []float32) error {
	err := s.exec(ctx,
		`INSERT INTO embeddings (content_hash, embedder, dims, vector, created_at) VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(content_hash, embedder) DO UPDATE SET dims = excluded.dims, vector = excluded.vector, created_at = excluded.created_at`,
		hash, embedder, len(vec), encodeVector(vec), time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("put embedding: %w", err)
	}
	return nil
}

// CountEmbeddings returns how many vectors are cached.
func (s *Store) CountEmbeddings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM embeddings").Scan(&n); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}

// ClearEmbeddings drops every cached vector.
func (s *Store) ClearEmbeddings(ctx context.Context) error {
	if err := s.exec(ctx, "DELETE FROM embeddings"); err != nil {
		return fmt.Errorf("clear embeddings: %w", err)
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte, dims int) ([]float32, error) {
	if len(blob) != dims*4 {
		return nil, fmt.Errorf("embedding blob has %d bytes, expected %d", len(blob), dims*4)
	}
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
