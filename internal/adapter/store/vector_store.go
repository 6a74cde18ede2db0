package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
	"multirag/internal/domain"
)

// IndexFile is the artifact every collection directory must contain.
const IndexFile = "index.db"

// SchemaVersion is the index layout this build reads and writes.
const SchemaVersion = 1

var (
	bucketVectors = []byte("vectors")
	bucketChunks  = []byte("chunks")
	bucketMeta    = []byte("meta")
	keyVersion    = []byte("schema_version")
	keyDimension  = []byte("dimension")
	keyModel      = []byte("model")
)

var (
	// ErrSchemaVersion is returned for an index written by a newer layout.
	ErrSchemaVersion = errors.New("unsupported index schema version")
	// ErrNotIndex is returned for a bbolt file without the index buckets.
	ErrNotIndex = errors.New("not a collection index")
)

// CollectionIndex is a bbolt-backed similarity index over one collection.
// Search is brute force over squared L2 distance.
type CollectionIndex struct {
	db        *bbolt.DB
	dimension int
	model     string
}

// Item is one chunk with its embedding, as stored in the index.
type Item struct {
	Chunk  domain.Chunk
	Vector []float32
}

type storedVector struct {
	Vector []float32 `json:"v"`
}

type storedChunk struct {
	Content  string            `json:"content"`
	Source   string            `json:"source,omitempty"`
	Position int               `json:"position"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OpenCollectionIndex opens an existing index read-only.
func OpenCollectionIndex(path string) (*CollectionIndex, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	idx := &CollectionIndex{db: db}
	if err := idx.readMeta(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// CreateCollectionIndex opens or creates a writable index at path.
func CreateCollectionIndex(path string, dimension int, model string) (*CollectionIndex, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketVectors, bucketChunks, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		meta := tx.Bucket(bucketMeta)
		if meta.Get(keyVersion) != nil {
			return nil
		}
		if err := meta.Put(keyVersion, []byte(strconv.Itoa(SchemaVersion))); err != nil {
			return err
		}
		if err := meta.Put(keyDimension, []byte(strconv.Itoa(dimension))); err != nil {
			return err
		}
		return meta.Put(keyModel, []byte(model))
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	idx := &CollectionIndex{db: db}
	if err := idx.readMeta(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (s *CollectionIndex) readMeta() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil || tx.Bucket(bucketVectors) == nil || tx.Bucket(bucketChunks) == nil {
			return ErrNotIndex
		}

		version, err := strconv.Atoi(string(meta.Get(keyVersion)))
		if err != nil {
			return fmt.Errorf("invalid schema version: %w", err)
		}
		if version > SchemaVersion {
			return fmt.Errorf("%w: %d (supported: %d)", ErrSchemaVersion, version, SchemaVersion)
		}

		dim, err := strconv.Atoi(string(meta.Get(keyDimension)))
		if err != nil {
			return fmt.Errorf("invalid dimension: %w", err)
		}
		s.dimension = dim
		s.model = string(meta.Get(keyModel))
		return nil
	})
}

// Dimension returns the embedding dimension of the index.
func (s *CollectionIndex) Dimension() int {
	return s.dimension
}

// Model returns the embedding model the index was built with.
func (s *CollectionIndex) Model() string {
	return s.model
}

// Upsert adds or updates chunks in the index.
func (s *CollectionIndex) Upsert(items []Item) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		vectors := tx.Bucket(bucketVectors)
		chunks := tx.Bucket(bucketChunks)

		for _, item := range items {
			if item.Chunk.ID == "" {
				return fmt.Errorf("chunk without id")
			}
			if len(item.Vector) != s.dimension {
				return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dimension, len(item.Vector))
			}

			vdata, err := json.Marshal(storedVector{Vector: item.Vector})
			if err != nil {
				return err
			}
			cdata, err := json.Marshal(storedChunk{
				Content:  item.Chunk.Content,
				Source:   item.Chunk.Source,
				Position: item.Chunk.Position,
				Metadata: item.Chunk.Metadata,
			})
			if err != nil {
				return err
			}

			key := []byte(item.Chunk.ID)
			if err := vectors.Put(key, vdata); err != nil {
				return err
			}
			if err := chunks.Put(key, cdata); err != nil {
				return err
			}
		}
		return nil
	})
}

// Search returns the k chunks nearest to query, by ascending squared L2
// distance. Entries with the same distance are ordered by chunk id.
func (s *CollectionIndex) Search(query []float32, k int) ([]domain.ScoredChunk, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", s.dimension, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	type scored struct {
		id       string
		distance float64
	}

	var scores []scored
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).ForEach(func(key, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("corrupted vector %s: %w", key, err)
			}
			if len(stored.Vector) != s.dimension {
				return fmt.Errorf("corrupted vector %s: dimension %d", key, len(stored.Vector))
			}
			scores = append(scores, scored{id: string(key), distance: squaredL2(query, stored.Vector)})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// bbolt iterates keys in byte order, so the stable sort breaks ties by id.
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].distance < scores[j].distance
	})
	if k > len(scores) {
		k = len(scores)
	}

	results := make([]domain.ScoredChunk, 0, k)
	err = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		for _, sc := range scores[:k] {
			data := b.Get([]byte(sc.id))
			if data == nil {
				return fmt.Errorf("chunk not found: %s", sc.id)
			}
			var stored storedChunk
			if err := json.Unmarshal(data, &stored); err != nil {
				return fmt.Errorf("corrupted chunk %s: %w", sc.id, err)
			}
			results = append(results, domain.ScoredChunk{
				Chunk: domain.Chunk{
					ID:       sc.id,
					Content:  stored.Content,
					Source:   stored.Source,
					Position: stored.Position,
					Metadata: stored.Metadata,
				},
				Distance: sc.distance,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// Count returns the number of chunks in the index.
func (s *CollectionIndex) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketChunks).Stats().KeyN
		return nil
	})
	return n, err
}

// Close releases the underlying database.
func (s *CollectionIndex) Close() error {
	return s.db.Close()
}

// squaredL2 calculates the squared euclidean distance between two vectors.
func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
