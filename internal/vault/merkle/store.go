package merkle

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"

	"github.com/Mootikins/crucible/internal/crucible/errno"
	"github.com/Mootikins/crucible/pkg/utils/json"
)

var bucketTrees = []byte("merkle_trees")

// StoredTree is the persisted form of a note's tree: the tree itself
// plus the metadata the next ingest needs to decide whether to diff.
type StoredTree struct {
	Tree        *Tree     `json:"tree"`
	RootHash    string    `json:"root_hash"`
	LastUpdated time.Time `json:"last_updated"`
}

// Store persists merkle trees in a BoltDB file, keyed by vault-relative
// path. Writes are idempotent per (path, root hash).
type Store struct {
	db *bolt.DB
}

// OpenStore opens (creating if needed) the merkle store at path.
func OpenStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open merkle store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketTrees); err != nil {
			return fmt.Errorf("failed to create bucket %q: %w", bucketTrees, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying BoltDB instance.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores the tree for relPath. If the stored root hash already
// matches, the write is skipped and Put returns false.
func (s *Store) Put(relPath string, tree *Tree) (bool, error) {
	wrote := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTrees)
		if existing := b.Get([]byte(relPath)); existing != nil {
			var prior StoredTree
			if err := json.Unmarshal(existing, &prior); err == nil &&
				prior.RootHash == tree.RootHash {
				return nil
			}
		}
		data, err := json.Marshal(StoredTree{
			Tree:        tree,
			RootHash:    tree.RootHash,
			LastUpdated: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal tree: %w", err)
		}
		wrote = true
		return b.Put([]byte(relPath), data)
	})
	if err != nil {
		return false, fmt.Errorf("failed to store tree for %q: %w", relPath, err)
	}
	return wrote, nil
}

// Get returns the stored tree for relPath, or errno.ErrTreeNotFound.
func (s *Store) Get(relPath string) (*StoredTree, error) {
	var stored StoredTree
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTrees)
		data := b.Get([]byte(relPath))
		if data == nil {
			return errno.ErrTreeNotFound
		}
		return json.Unmarshal(data, &stored)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// Delete removes the stored tree for relPath. Deleting a missing key is
// a no-op.
func (s *Store) Delete(relPath string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTrees)
		return b.Delete([]byte(relPath))
	})
}
