// Package file implements the vector index as a single JSON file on
// disk with brute-force cosine search. A missing or unreadable file is
// treated as an empty index: ingestion is expected to rebuild it.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/a-h/ragchat/index"
)

func New(log *slog.Logger, path string, dimension int) (*Store, error) {
	s := &Store{
		log:       log,
		path:      path,
		dimension: dimension,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Store holds all entries in memory in insertion order and persists
// them to disk after every mutation.
type Store struct {
	log       *slog.Logger
	path      string
	dimension int

	mu      sync.RWMutex
	entries []index.Entry
	byID    map[string]int
}

type fileContents struct {
	Dimension int           `json:"dimension"`
	Entries   []index.Entry `json:"entries"`
}

func (s *Store) load() error {
	s.entries = nil
	s.byID = map[string]int{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("file: failed to read index %s: %w", s.path, err)
	}
	var contents fileContents
	if err = json.Unmarshal(data, &contents); err != nil {
		s.log.Warn("index file is corrupt, starting empty", slog.String("path", s.path), slog.Any("error", err))
		return nil
	}
	if s.dimension > 0 && contents.Dimension != s.dimension {
		s.log.Warn("index file has a different embedding dimension, starting empty",
			slog.String("path", s.path),
			slog.Int("file", contents.Dimension),
			slog.Int("configured", s.dimension))
		return nil
	}
	s.entries = contents.Entries
	for i, e := range s.entries {
		s.byID[e.Chunk.ID] = i
	}
	return nil
}

// save writes to a temp file in the same directory, then renames it
// over the index so readers never observe a partial write.
func (s *Store) save() error {
	data, err := json.Marshal(fileContents{Dimension: s.dimension, Entries: s.entries})
	if err != nil {
		return fmt.Errorf("file: failed to marshal index: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("file: failed to create temp file: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("file: failed to write temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("file: failed to close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("file: failed to replace index: %w", err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, entries []index.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if s.dimension > 0 && len(e.Embedding) != s.dimension {
			return fmt.Errorf("file: entry %s has dimension %d, index expects %d", e.Chunk.ID, len(e.Embedding), s.dimension)
		}
	}
	for _, e := range entries {
		// Replacement keeps the original insertion position so tie
		// ordering is stable across re-ingestion.
		if i, ok := s.byID[e.Chunk.ID]; ok {
			s.entries[i] = e
			continue
		}
		s.byID[e.Chunk.ID] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return s.save()
}

func (s *Store) Search(ctx context.Context, embedding []float32, topK int) (results []index.Result, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension > 0 && len(embedding) != s.dimension {
		return nil, fmt.Errorf("file: query has dimension %d, index expects %d", len(embedding), s.dimension)
	}
	if topK <= 0 || len(s.entries) == 0 {
		return nil, nil
	}
	results = make([]index.Result, len(s.entries))
	for i, e := range s.entries {
		results[i] = index.Result{
			Chunk: e.Chunk,
			Score: cosineSimilarity(embedding, e.Embedding),
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.byID = map[string]int{}
	return s.save()
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
