package kb

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	indexFileName = "index.json"
	parentsDir    = "parents"
	imagesDir     = "images"
)

// Store is the durable, versioned record of documents, chunks, images
// and embeddings. It owns load/persist of the index document, the
// parent-text and image blob directories, and the sparse index rebuilt
// from the current chunk set. Readers see a consistent snapshot;
// ingestion mutates a clone and swaps it in atomically at persist.
type Store struct {
	dir string

	mu     sync.RWMutex
	index  *Index
	sparse *SparseIndex
}

// StoreStats summarizes the current index contents.
type StoreStats struct {
	Documents int
	Chunks    int
	Images    int
}

// NewStore opens (or creates) a store rooted at dir. An unusable
// storage directory is the one fatal condition; a missing or corrupt
// index file is recovered by starting empty.
func NewStore(dir string) (*Store, error) {
	for _, d := range []string{dir, filepath.Join(dir, parentsDir), filepath.Join(dir, imagesDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	s := &Store{
		dir:    dir,
		index:  NewIndex(),
		sparse: NewSparseIndex(),
	}
	if err := s.Load(); err != nil {
		log.Printf("kb: failed to load index, starting empty: %v", err)
		if swapErr := s.swap(NewIndex()); swapErr != nil {
			return nil, swapErr
		}
	}
	return s, nil
}

// Load reads the index document from disk and rebuilds the sparse index
// from the loaded chunk set. A missing file yields an empty index, not
// an error; a corrupt or invariant-violating file is an error.
func (s *Store) Load() error {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s.swap(NewIndex())
		}
		return fmt.Errorf("read index: %w", err)
	}

	index := NewIndex()
	if err := json.Unmarshal(data, index); err != nil {
		return fmt.Errorf("decode index: %w", err)
	}
	index.ensureMaps()
	if err := index.Validate(); err != nil {
		return fmt.Errorf("validate index: %w", err)
	}
	return s.swap(index)
}

// Persist atomically rewrites the index document (write new file, then
// rename over the old one) and swaps the given index in as the current
// snapshot. Readers never observe a partial write.
func (s *Store) Persist(index *Index) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	path := filepath.Join(s.dir, indexFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace index: %w", err)
	}
	return s.swap(index)
}

// swap installs index as the current snapshot after rebuilding the
// sparse index from its chunks.
func (s *Store) swap(index *Index) error {
	if err := s.sparse.Build(sortedChunks(index)); err != nil {
		return fmt.Errorf("rebuild sparse index: %w", err)
	}
	s.mu.Lock()
	s.index = index
	s.mu.Unlock()
	return nil
}

// Snapshot returns the current index. It is read-only by contract:
// callers must not mutate it. Use CloneIndex for mutation.
func (s *Store) Snapshot() *Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// CloneIndex returns a deep copy of the current index for ingestion to
// mutate without affecting concurrent readers.
func (s *Store) CloneIndex() *Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Clone()
}

// Sparse returns the lexical index over the current snapshot's chunks.
func (s *Store) Sparse() *SparseIndex {
	return s.sparse
}

// Fingerprint derives the deterministic document ID from a filename and
// its modification time. Re-ingesting an unchanged file reproduces the
// same ID; a touched file mints a new one.
func (s *Store) Fingerprint(filename string, mtime time.Time) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d", filename, mtime.UnixNano())))
	return hex.EncodeToString(sum[:])[:12]
}

// WriteParentText persists a parent chunk's full text as a blob keyed
// by chunk ID, keeping large strings out of the index document.
func (s *Store) WriteParentText(chunkID, text string) error {
	path := filepath.Join(s.dir, parentsDir, chunkID+".txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write parent blob %s: %w", chunkID, err)
	}
	return nil
}

// ReadParentText loads a parent chunk's full text blob.
func (s *Store) ReadParentText(chunkID string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, parentsDir, chunkID+".txt"))
	if err != nil {
		return "", fmt.Errorf("read parent blob %s: %w", chunkID, err)
	}
	return string(data), nil
}

// RemoveParentText deletes a parent text blob. Missing blobs are fine.
func (s *Store) RemoveParentText(chunkID string) {
	err := os.Remove(filepath.Join(s.dir, parentsDir, chunkID+".txt"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("kb: remove parent blob %s: %v", chunkID, err)
	}
}

// WriteImageBlob persists image bytes keyed by image ID and returns the
// blob path recorded on the Image.
func (s *Store) WriteImageBlob(imageID string, data []byte) (string, error) {
	path := filepath.Join(s.dir, imagesDir, imageID+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image blob %s: %w", imageID, err)
	}
	return path, nil
}

// RemoveImageBlob deletes an image blob. Missing blobs are fine.
func (s *Store) RemoveImageBlob(imageID string) {
	err := os.Remove(filepath.Join(s.dir, imagesDir, imageID+".png"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("kb: remove image blob %s: %v", imageID, err)
	}
}

// Stats reports document/chunk/image counts for the current snapshot.
func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StoreStats{
		Documents: len(s.index.Documents),
		Chunks:    len(s.index.Chunks),
		Images:    len(s.index.Images),
	}
}

// sortedChunks lists an index's chunks in ID order so sparse rebuilds
// are deterministic.
func sortedChunks(index *Index) []*Chunk {
	ids := make([]string, 0, len(index.Chunks))
	for id := range index.Chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	chunks := make([]*Chunk, 0, len(ids))
	for _, id := range ids {
		chunks = append(chunks, index.Chunks[id])
	}
	return chunks
}
