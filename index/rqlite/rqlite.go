// Package rqlite implements the vector index on an rqlite cluster
// with the sqlite-vec extension. Nearest-neighbour search runs
// server-side through the vec0 match operator.
package rqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/a-h/ragchat/chunk"
	"github.com/a-h/ragchat/index"
	"github.com/rqlite/gorqlite"
)

func New(conn *gorqlite.Connection) *Store {
	return &Store{
		conn: conn,
	}
}

type Store struct {
	conn *gorqlite.Connection
}

func (s *Store) Upsert(ctx context.Context, entries []index.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	statements := make([]gorqlite.ParameterizedStatement, len(entries))
	for i, e := range entries {
		embeddingJSON, err := json.Marshal(e.Embedding)
		if err != nil {
			return fmt.Errorf("rqlite: failed to marshal embedding: %w", err)
		}
		statements[i] = gorqlite.ParameterizedStatement{
			Query: `insert or replace into chunk_vec (chunk_id, document_title, source_url, chunk_text, start_offset, end_offset, embedding)
values (?, ?, ?, ?, ?, ?, ?)`,
			Arguments: []any{e.Chunk.ID, e.Chunk.DocumentTitle, e.Chunk.SourceURL, e.Chunk.Text, e.Chunk.StartOffset, e.Chunk.EndOffset, string(embeddingJSON)},
		}
	}
	if _, err := s.conn.WriteParameterizedContext(ctx, statements); err != nil {
		return fmt.Errorf("rqlite: upsert failed: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, embedding []float32, topK int) (results []index.Result, err error) {
	if topK <= 0 {
		return nil, nil
	}
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("rqlite: failed to marshal query embedding: %w", err)
	}
	// Insertion order is not recoverable from a vec0 table, so ties on
	// distance fall back to chunk id to keep results deterministic.
	stmt := gorqlite.ParameterizedStatement{
		Query: `select chunk_id, document_title, source_url, chunk_text, start_offset, end_offset, distance
from chunk_vec
where embedding match ? and k = ?
order by distance asc, chunk_id asc`,
		Arguments: []any{string(embeddingJSON), topK},
	}
	result, err := s.conn.QueryOneParameterizedContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("rqlite: search failed: %w", err)
	}
	for result.Next() {
		var c chunk.Chunk
		var startOffset, endOffset int64
		var distance float64
		if err = result.Scan(&c.ID, &c.DocumentTitle, &c.SourceURL, &c.Text, &startOffset, &endOffset, &distance); err != nil {
			return nil, fmt.Errorf("rqlite: failed to scan result: %w", err)
		}
		c.StartOffset = int(startOffset)
		c.EndOffset = int(endOffset)
		results = append(results, index.Result{
			Chunk: c,
			// sqlite-vec reports cosine distance, convert to similarity.
			Score: 1 - distance,
		})
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (count int, err error) {
	result, err := s.conn.QueryOneContext(ctx, `select count(*) from chunk_vec`)
	if err != nil {
		return 0, fmt.Errorf("rqlite: count failed: %w", err)
	}
	if !result.Next() {
		return 0, fmt.Errorf("rqlite: count returned no rows")
	}
	var count64 int64
	if err = result.Scan(&count64); err != nil {
		return 0, fmt.Errorf("rqlite: failed to scan count: %w", err)
	}
	return int(count64), nil
}

func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.conn.WriteOneContext(ctx, `delete from chunk_vec`); err != nil {
		return fmt.Errorf("rqlite: reset failed: %w", err)
	}
	return nil
}
